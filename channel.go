package boardirc

import (
	"maps"
	"regexp"
	"slices"
	"strings"

	"github.com/rs/zerolog"

	"github.com/awfulava/boardirc/fourchan"
)

var validChannelName = regexp.MustCompile(`^[&#+!][^\x00\x07\n\r ,:]{0,50}$`)

var ircLowerReplacer = strings.NewReplacer("[", "{", "]", "}", `\`, "|", "^", "~")

// ircLower folds a nickname or channel name the way RFC 1459 compares them.
func ircLower(s string) string {
	return ircLowerReplacer.Replace(asciiLower(s))
}

func asciiLower(s string) string {
	return strings.Map(func(r rune) rune {
		if 'A' <= r && r <= 'Z' {
			return r + 'a' - 'A'
		}
		return r
	}, s)
}

// Channel is a named set of sessions with a topic and an optional key.
type Channel struct {
	name    string
	state   ChannelState
	members map[*Session]struct{}
}

// Name is the channel name as first joined.
func (c *Channel) Name() string {
	return c.name
}

func (c *Channel) Topic() string {
	return c.state.Topic
}

// Key is the join key, or empty when the channel has none.
func (c *Channel) Key() string {
	return c.state.Key
}

func (c *Channel) Len() int {
	return len(c.members)
}

func (c *Channel) HasMember(s *Session) bool {
	_, ok := c.members[s]
	return ok
}

// Members returns the members ordered by nickname.
func (c *Channel) Members() []*Session {
	members := slices.Collect(maps.Keys(c.members))
	slices.SortFunc(members, func(a, b *Session) int {
		return strings.Compare(a.nick, b.nick)
	})
	return members
}

// Registry holds every channel with at least one member. It is owned by the
// server loop and is not safe for concurrent use.
type Registry struct {
	channels map[string]*Channel
	store    *StateStore
	log      zerolog.Logger
}

func NewRegistry(store *StateStore, log zerolog.Logger) *Registry {
	return &Registry{
		channels: make(map[string]*Channel),
		store:    store,
		log:      log,
	}
}

// Get returns an existing channel or nil.
func (r *Registry) Get(name string) *Channel {
	return r.channels[ircLower(name)]
}

// GetOrCreate returns the channel, creating it with its stored topic and key
// when it does not exist. Board channels without a stored topic get the
// board's description.
func (r *Registry) GetOrCreate(name string) *Channel {
	if ch := r.Get(name); ch != nil {
		return ch
	}
	ch := &Channel{
		name:    name,
		state:   r.store.Load(name),
		members: make(map[*Session]struct{}),
	}
	if ch.state.Topic == "" {
		if target, ok := parseChannelTarget(name); ok && !target.IsThread() {
			if desc, ok := fourchan.BoardDescription(target.Board); ok {
				ch.state.Topic = desc
			}
		}
	}
	r.channels[ircLower(name)] = ch
	return ch
}

func (r *Registry) AddMember(ch *Channel, s *Session) {
	ch.members[s] = struct{}{}
}

// RemoveMember removes s and disposes of the channel once it is empty.
func (r *Registry) RemoveMember(ch *Channel, s *Session) {
	delete(ch.members, s)
	r.DisposeIfEmpty(ch)
}

// DisposeIfEmpty forgets ch when it has no members. Its stored state is
// kept for the next time it is created.
func (r *Registry) DisposeIfEmpty(ch *Channel) {
	if len(ch.members) == 0 && r.channels[ircLower(ch.name)] == ch {
		delete(r.channels, ircLower(ch.name))
	}
}

// SetTopic changes and persists the topic.
func (r *Registry) SetTopic(ch *Channel, topic string) {
	ch.state.Topic = topic
	r.save(ch)
}

// SetKey changes and persists the key. An empty key removes it.
func (r *Registry) SetKey(ch *Channel, key string) {
	ch.state.Key = key
	r.save(ch)
}

func (r *Registry) save(ch *Channel) {
	if err := r.store.Save(ch.name, ch.state); err != nil {
		r.log.Error().Err(err).Str("channel", ch.name).Msg("Persisting channel state")
	}
}

func (r *Registry) Len() int {
	return len(r.channels)
}

// All returns every channel ordered by name.
func (r *Registry) All() []*Channel {
	return slices.SortedFunc(maps.Values(r.channels), func(a, b *Channel) int {
		return compareFolded(a.name, b.name)
	})
}
