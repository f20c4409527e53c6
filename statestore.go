package boardirc

import (
	"bytes"
	"errors"
	"fmt"
	"io/fs"
	"net/url"
	"os"
	"path/filepath"

	"github.com/rs/zerolog"
	"gopkg.in/yaml.v3"
)

// ChannelState is the durable part of a channel.
type ChannelState struct {
	Topic string `yaml:"topic"`
	Key   string `yaml:"key,omitempty"`
}

// StateStore keeps one record per channel in a directory. A store without a
// directory keeps nothing.
type StateStore struct {
	dir string
	log zerolog.Logger
}

// NewStateStore returns a store writing to dir, creating it if needed.
func NewStateStore(dir string, log zerolog.Logger) (*StateStore, error) {
	if dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("creating state directory: %w", err)
		}
	}
	return &StateStore{dir: dir, log: log.With().Str("component", "statestore").Logger()}, nil
}

// path maps a channel name to its record file. Escaping turns every path
// separator into %2F so a name cannot leave the directory.
func (s *StateStore) path(name string) string {
	return filepath.Join(s.dir, url.PathEscape(ircLower(name))+".yaml")
}

// Load returns the stored state of a channel. Missing and malformed records
// both read as the zero state.
func (s *StateStore) Load(name string) ChannelState {
	var st ChannelState
	if s.dir == "" {
		return st
	}
	b, err := os.ReadFile(s.path(name))
	if errors.Is(err, fs.ErrNotExist) {
		return st
	}
	if err != nil {
		s.log.Error().Err(err).Str("channel", name).Msg("Reading channel state")
		return st
	}
	dec := yaml.NewDecoder(bytes.NewReader(b))
	dec.KnownFields(true)
	if err := dec.Decode(&st); err != nil {
		s.log.Warn().Err(err).Str("channel", name).Msg("Ignoring malformed channel state")
		return ChannelState{}
	}
	return st
}

// Save replaces the stored state of a channel. The record is written to a
// temporary file and renamed over the old one.
func (s *StateStore) Save(name string, st ChannelState) error {
	if s.dir == "" {
		return nil
	}
	b, err := yaml.Marshal(&st)
	if err != nil {
		return fmt.Errorf("encoding channel state: %w", err)
	}

	f, err := os.CreateTemp(s.dir, ".state-*")
	if err != nil {
		return fmt.Errorf("saving channel state: %w", err)
	}
	tmp := f.Name()
	if _, err := f.Write(b); err != nil {
		f.Close()
		os.Remove(tmp)
		return fmt.Errorf("saving channel state: %w", err)
	}
	if err := f.Sync(); err != nil {
		f.Close()
		os.Remove(tmp)
		return fmt.Errorf("saving channel state: %w", err)
	}
	if err := f.Close(); err != nil {
		os.Remove(tmp)
		return fmt.Errorf("saving channel state: %w", err)
	}
	if err := os.Rename(tmp, s.path(name)); err != nil {
		os.Remove(tmp)
		return fmt.Errorf("saving channel state: %w", err)
	}
	return nil
}
