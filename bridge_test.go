package boardirc

import (
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"

	"github.com/awfulava/boardirc/fourchan"
	"github.com/awfulava/boardirc/poller"
)

func TestParseChannelTarget(t *testing.T) {
	t.Parallel()
	tests := []struct {
		name string
		want poller.Target
		ok   bool
	}{
		{"#/a/", poller.Target{Board: "a"}, true},
		{"#/VG/", poller.Target{Board: "vg"}, true},
		{"#/g/12345", poller.Target{Board: "g", Thread: 12345}, true},
		{"#/g/0", poller.Target{}, false},
		{"#/g/0123", poller.Target{}, false},
		{"#/g/+1", poller.Target{}, false},
		{"#/g/-5", poller.Target{}, false},
		{"#/g/abc", poller.Target{}, false},
		{"#/g", poller.Target{}, false},
		{"#//", poller.Target{}, false},
		{"#chat", poller.Target{}, false},
		{"&/a/", poller.Target{}, false},
	}
	for _, tt := range tests {
		got, ok := parseChannelTarget(tt.name)
		require.Equal(t, tt.ok, ok, tt.name)
		require.Equal(t, tt.want, got, tt.name)
	}
}

func receive(t *testing.T, q *fakeQueues) poller.Request {
	t.Helper()
	select {
	case req := <-q.requests:
		return req
	default:
		t.Fatal("no watch request queued")
	}
	return poller.Request{}
}

func TestBoardJoinRegistersWatchOnce(t *testing.T) {
	t.Parallel()
	s, q := newTestServer(t)
	alice := register(t, s, "alice")
	bob := register(t, s, "bob")

	send(alice, "JOIN #/a/")
	got := output(alice)
	require.Contains(t, got, ":irc.test 332 alice #/a/ :Anime & Manga")
	require.Equal(t, ":/a/!boardirc@irc.test PRIVMSG #/a/ :Welcome to /a/, loading threads...", got[len(got)-1])
	require.Equal(t, poller.Request{
		Action:   poller.LoadAndFollow,
		Target:   poller.Target{Board: "a"},
		Delivery: &poller.Delivery{Session: alice.id, Channel: "#/a/"},
	}, receive(t, q))

	send(bob, "JOIN #/a/")
	got = output(bob)
	require.Equal(t, ":/a/!boardirc@irc.test PRIVMSG #/a/ :Welcome to /a/, following new posts...", got[len(got)-1])
	require.Empty(t, q.requests)
	require.Equal(t, 2, s.bridge.Watching(poller.Target{Board: "a"}))
}

func TestLastWatcherLeavingStopsWatch(t *testing.T) {
	t.Parallel()
	s, q := newTestServer(t)
	alice := register(t, s, "alice")
	bob := register(t, s, "bob")
	send(alice, "JOIN #/a/123")
	send(bob, "JOIN #/a/123")
	require.Equal(t, poller.Target{Board: "a", Thread: 123}, receive(t, q).Target)

	send(alice, "PART #/a/123")
	require.Empty(t, q.requests)

	send(bob, "QUIT")
	require.Equal(t, poller.Request{Action: poller.Stop, Target: poller.Target{Board: "a", Thread: 123}}, receive(t, q))
	require.Zero(t, s.bridge.Watching(poller.Target{Board: "a", Thread: 123}))
}

func TestFullRequestQueueIsReported(t *testing.T) {
	t.Parallel()
	cfg := DefaultConfig()
	cfg.Name = "irc.test"
	require.NoError(t, cfg.Validate())
	q := &fakeQueues{requests: make(chan poller.Request), events: make(chan poller.Event)}
	s, err := NewServer(cfg, q, zerolog.Nop(), nil)
	require.NoError(t, err)
	alice := register(t, s, "alice")

	send(alice, "JOIN #/a/")
	got := output(alice)
	require.Equal(t, ":/a/!boardirc@irc.test PRIVMSG #/a/ :The board poller is busy right now. Part and join again later.", got[len(got)-1])
	require.Zero(t, s.bridge.Watching(poller.Target{Board: "a"}))
}

func TestDeliverDirectGoesToRequesterOnly(t *testing.T) {
	t.Parallel()
	s, _ := newTestServer(t)
	alice := register(t, s, "alice")
	bob := register(t, s, "bob")
	send(alice, "JOIN #/a/")
	send(bob, "JOIN #/a/")
	output(alice)
	output(bob)

	s.bridge.Deliver(poller.Event{
		Kind:     poller.NewThread,
		Target:   poller.Target{Board: "a"},
		Post:     fourchan.Post{No: 100, Board: "a", Subject: "Hi", Comment: "first line<br>second line"},
		Delivery: &poller.Delivery{Session: alice.id, Channel: "#/a/"},
	})
	require.Equal(t, []string{":/a/100!boardirc@irc.test PRIVMSG #/a/ :\x02Hi\x02: first line"}, output(alice))
	require.Empty(t, output(bob))

	// The requester left before the back-fill arrived.
	send(alice, "PART #/a/")
	output(alice)
	s.bridge.Deliver(poller.Event{
		Kind:     poller.NewThread,
		Target:   poller.Target{Board: "a"},
		Post:     fourchan.Post{No: 101, Board: "a", Comment: "late"},
		Delivery: &poller.Delivery{Session: alice.id, Channel: "#/a/"},
	})
	require.Empty(t, output(alice))
}

func TestDeliverBroadcastGoesToEveryWatcher(t *testing.T) {
	t.Parallel()
	s, _ := newTestServer(t)
	alice := register(t, s, "alice")
	bob := register(t, s, "bob")
	carol := register(t, s, "carol")
	send(alice, "JOIN #/a/")
	send(bob, "JOIN #/a/")
	send(carol, "JOIN #/g/")
	output(alice)
	output(bob)
	output(carol)

	s.bridge.Deliver(poller.Event{
		Kind:   poller.UpdatedThread,
		Target: poller.Target{Board: "a"},
		Post:   fourchan.Post{No: 200, Board: "a", Comment: "bumped", Tim: 1700000000000, Ext: ".jpg"},
	})
	want := []string{":/a/200!boardirc@irc.test PRIVMSG #/a/ :[https://i.4cdn.org/a/1700000000000.jpg] bumped"}
	require.Equal(t, want, output(alice))
	require.Equal(t, want, output(bob))
	require.Empty(t, output(carol))
}

func TestDeliverThreadPostRendersFullText(t *testing.T) {
	t.Parallel()
	s, _ := newTestServer(t)
	alice := register(t, s, "alice")
	send(alice, "JOIN #/a/100")
	output(alice)

	s.bridge.Deliver(poller.Event{
		Kind:   poller.NewPost,
		Target: poller.Target{Board: "a", Thread: 100},
		Post:   fourchan.Post{No: 105, Resto: 100, Board: "a", Comment: "line one<br>line two"},
	})
	require.Equal(t, []string{
		":/a/105!boardirc@irc.test PRIVMSG #/a/100 :line one",
		":/a/105!boardirc@irc.test PRIVMSG #/a/100 :line two",
	}, output(alice))
}

func TestThreadSpellingsShareNoWatch(t *testing.T) {
	t.Parallel()
	s, q := newTestServer(t)
	alice := register(t, s, "alice")
	bob := register(t, s, "bob")

	send(alice, "JOIN #/a/0123")
	got := output(alice)
	require.Equal(t, ":boardirc!boardirc@irc.test PRIVMSG #/a/0123 :This channel (#/a/0123) doesn't look like a board. Nothing will happen in this channel.", got[len(got)-1])
	require.Empty(t, q.requests)

	send(bob, "JOIN #/a/123")
	output(bob)
	require.Equal(t, poller.Target{Board: "a", Thread: 123}, receive(t, q).Target)

	s.bridge.Deliver(poller.Event{
		Kind:   poller.NewPost,
		Target: poller.Target{Board: "a", Thread: 123},
		Post:   fourchan.Post{No: 124, Resto: 123, Board: "a", Comment: "hi"},
	})
	require.Equal(t, []string{":/a/124!boardirc@irc.test PRIVMSG #/a/123 :hi"}, output(bob))
	require.Empty(t, output(alice))
}

func TestBackFillFollowsSessionNotNick(t *testing.T) {
	t.Parallel()
	s, q := newTestServer(t)
	alice := register(t, s, "alice")
	send(alice, "JOIN #/a/")
	req := receive(t, q)
	send(alice, "QUIT")

	// Someone else takes the nick and the channel before the back-fill
	// arrives.
	other := register(t, s, "alice")
	send(other, "JOIN #/a/")
	output(other)

	s.bridge.Deliver(poller.Event{
		Kind:     poller.NewThread,
		Target:   poller.Target{Board: "a"},
		Post:     fourchan.Post{No: 100, Board: "a", Comment: "old"},
		Delivery: req.Delivery,
	})
	require.Empty(t, output(other))
}

func TestThreadGoneEndsWatch(t *testing.T) {
	t.Parallel()
	s, q := newTestServer(t)
	alice := register(t, s, "alice")
	bob := register(t, s, "bob")
	target := poller.Target{Board: "b", Thread: 77}
	send(alice, "JOIN #/b/77")
	send(bob, "JOIN #/b/77")
	require.Equal(t, target, receive(t, q).Target)
	output(alice)
	output(bob)

	s.bridge.Deliver(poller.Event{Kind: poller.ThreadGone, Target: target})
	want := []string{":/b/77!boardirc@irc.test PRIVMSG #/b/77 :Thread /b/77 is gone. Nothing more will happen in this channel."}
	require.Equal(t, want, output(alice))
	require.Equal(t, want, output(bob))
	require.Zero(t, s.bridge.Watching(target))

	// Leaving sends no Stop for the dropped watch.
	send(alice, "PART #/b/77")
	require.Empty(t, q.requests)

	// A later join starts over.
	send(alice, "JOIN #/b/77")
	got := output(alice)
	require.Equal(t, ":/b/77!boardirc@irc.test PRIVMSG #/b/77 :Welcome to /b/77, loading thread...", got[len(got)-1])
	require.Equal(t, poller.LoadAndFollow, receive(t, q).Action)
}
