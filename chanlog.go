package boardirc

import (
	"fmt"
	"net/url"
	"path/filepath"
	"time"

	"github.com/rs/zerolog"
	"gopkg.in/natefinch/lumberjack.v2"
)

const transcriptTimeFormat = "2006-01-02 15:04:05 UTC"

// Transcripts appends channel traffic to one rotated file per channel. The
// zero directory disables transcripts.
type Transcripts struct {
	dir   string
	files map[string]*lumberjack.Logger
	now   func() time.Time
	log   zerolog.Logger
}

func NewTranscripts(dir string, log zerolog.Logger) *Transcripts {
	return &Transcripts{
		dir:   dir,
		files: make(map[string]*lumberjack.Logger),
		now:   time.Now,
		log:   log,
	}
}

// Message records a chat line from nick.
func (t *Transcripts) Message(channel, nick, text string) {
	t.write(channel, fmt.Sprintf("[%s] <%s> %s\n", t.timestamp(), nick, text))
}

// Event records a membership or mode change made by nick.
func (t *Transcripts) Event(channel, nick, event string) {
	t.write(channel, fmt.Sprintf("[%s] * %s %s\n", t.timestamp(), nick, event))
}

func (t *Transcripts) timestamp() string {
	return t.now().UTC().Format(transcriptTimeFormat)
}

func (t *Transcripts) write(channel, line string) {
	if t.dir == "" {
		return
	}
	key := ircLower(channel)
	f := t.files[key]
	if f == nil {
		f = &lumberjack.Logger{
			Filename:   filepath.Join(t.dir, url.PathEscape(key)+".log"),
			MaxSize:    50,
			MaxBackups: 5,
		}
		t.files[key] = f
	}
	if _, err := f.Write([]byte(line)); err != nil {
		t.log.Error().Err(err).Str("channel", channel).Msg("Writing transcript")
	}
}

// Close closes every open transcript file.
func (t *Transcripts) Close() {
	for key, f := range t.files {
		f.Close()
		delete(t.files, key)
	}
}
