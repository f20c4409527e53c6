package boardirc

import (
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"
)

func newTestRegistry(t *testing.T) *Registry {
	t.Helper()
	store, err := NewStateStore(t.TempDir(), zerolog.Nop())
	require.NoError(t, err)
	return NewRegistry(store, zerolog.Nop())
}

func TestIRCLower(t *testing.T) {
	t.Parallel()
	require.Equal(t, "nick{}|~", ircLower("NICK[]\\^"))
	require.Equal(t, "#/a/", ircLower("#/A/"))
	require.Equal(t, "ümlaut", ircLower("ümlaut"))
}

func TestRegistryDisposesEmptyChannels(t *testing.T) {
	t.Parallel()
	r := newTestRegistry(t)
	a, b := &Session{nick: "a"}, &Session{nick: "b"}

	ch := r.GetOrCreate("#Chat")
	r.AddMember(ch, a)
	r.AddMember(ch, b)
	require.Same(t, ch, r.Get("#chat"))
	require.Equal(t, []*Session{a, b}, ch.Members())

	r.SetTopic(ch, "news")
	r.SetKey(ch, "k")
	r.RemoveMember(ch, a)
	require.Same(t, ch, r.Get("#CHAT"))
	r.RemoveMember(ch, b)
	require.Nil(t, r.Get("#chat"))
	require.Zero(t, r.Len())

	again := r.GetOrCreate("#chat")
	require.NotSame(t, ch, again)
	require.Zero(t, again.Len())
	require.Equal(t, "news", again.Topic())
	require.Equal(t, "k", again.Key())
}

func TestBoardChannelsDefaultToDescription(t *testing.T) {
	t.Parallel()
	r := newTestRegistry(t)

	require.Equal(t, "Technology", r.GetOrCreate("#/g/").Topic())
	require.Empty(t, r.GetOrCreate("#/g/123").Topic())
	require.Empty(t, r.GetOrCreate("#/nosuchboard/").Topic())

	ch := r.GetOrCreate("#/a/")
	r.SetTopic(ch, "our own topic")
	r.DisposeIfEmpty(ch)
	require.Equal(t, "our own topic", r.GetOrCreate("#/a/").Topic())
}

func TestRegistryAllIsSorted(t *testing.T) {
	t.Parallel()
	r := newTestRegistry(t)
	for _, name := range []string{"#b", "#C", "#a"} {
		r.GetOrCreate(name)
	}
	var names []string
	for _, ch := range r.All() {
		names = append(names, ch.Name())
	}
	require.Equal(t, []string{"#a", "#b", "#C"}, names)
}
