package boardirc

import (
	"fmt"
	"regexp"
	"runtime/debug"
	"strconv"
	"strings"

	"github.com/rs/zerolog"

	"github.com/awfulava/boardirc/poller"
)

// bridgeNick is the nick and user of the bridge's own messages. Clients
// cannot take it.
const bridgeNick = "boardirc"

var validBoardName = regexp.MustCompile(`^[a-z0-9]{1,16}$`)

// parseChannelTarget maps #/board/ to a board watch and #/board/<number> to
// a thread watch.
func parseChannelTarget(name string) (poller.Target, bool) {
	rest, ok := strings.CutPrefix(name, "#/")
	if !ok {
		return poller.Target{}, false
	}
	board, thread, ok := strings.Cut(rest, "/")
	board = asciiLower(board)
	if !ok || !validBoardName.MatchString(board) {
		return poller.Target{}, false
	}
	if thread == "" {
		return poller.Target{Board: board}, true
	}
	// One spelling per thread, so every channel maps to a distinct target.
	n, err := strconv.ParseInt(thread, 10, 64)
	if err != nil || n <= 0 || strconv.FormatInt(n, 10) != thread {
		return poller.Target{}, false
	}
	return poller.Target{Board: board, Thread: n}, true
}

// channelName is the channel carrying a target's messages.
func channelName(target poller.Target) string {
	return "#" + target.String()
}

// Bridge connects channels to poller watches. It registers a watch for the
// first session joining a board or thread channel, keeps track of who
// watches what and writes change events into channels. Like the rest of the
// connection domain it runs on the server loop.
type Bridge struct {
	server   *Server
	requests chan<- poller.Request
	watchers map[poller.Target]map[*Session]struct{}
	log      zerolog.Logger
}

func newBridge(server *Server, requests chan<- poller.Request) *Bridge {
	return &Bridge{
		server:   server,
		requests: requests,
		watchers: make(map[poller.Target]map[*Session]struct{}),
		log:      server.log.With().Str("component", "bridge").Logger(),
	}
}

// ClientJoined welcomes s to ch and starts following the board or thread
// behind it.
func (b *Bridge) ClientJoined(s *Session, ch *Channel) {
	target, ok := parseChannelTarget(ch.Name())
	if !ok {
		b.send(s, ch.Name(), bridgeNick, fmt.Sprintf("This channel (%s) doesn't look like a board. Nothing will happen in this channel.", ch.Name()))
		return
	}
	sender := target.String()

	watchers := b.watchers[target]
	if watchers != nil {
		b.send(s, ch.Name(), sender, fmt.Sprintf("Welcome to %s, following new posts...", sender))
		watchers[s] = struct{}{}
		return
	}

	req := poller.Request{
		Action:   poller.LoadAndFollow,
		Target:   target,
		Delivery: &poller.Delivery{Session: s.id, Channel: ch.Name()},
	}
	select {
	case b.requests <- req:
	default:
		b.server.metrics.DroppedRequests.Inc()
		b.log.Warn().Stringer("target", target).Str("nick", s.nick).Msg("Poller queue full, dropping watch request")
		b.send(s, ch.Name(), sender, "The board poller is busy right now. Part and join again later.")
		return
	}

	what := "threads"
	if target.IsThread() {
		what = "thread"
	}
	b.send(s, ch.Name(), sender, fmt.Sprintf("Welcome to %s, loading %s...", sender, what))
	b.watchers[target] = map[*Session]struct{}{s: {}}
	b.log.Info().Stringer("target", target).Str("nick", s.nick).Msg("Watch started")
}

// ClientLeft forgets s as a watcher of ch and stops the watch when nobody is
// left.
func (b *Bridge) ClientLeft(s *Session, ch *Channel) {
	target, ok := parseChannelTarget(ch.Name())
	if !ok {
		return
	}
	watchers := b.watchers[target]
	if _, ok := watchers[s]; !ok {
		return
	}
	delete(watchers, s)
	if len(watchers) > 0 {
		return
	}
	delete(b.watchers, target)

	select {
	case b.requests <- poller.Request{Action: poller.Stop, Target: target}:
		b.log.Info().Stringer("target", target).Msg("Watch stopped")
	default:
		b.server.metrics.DroppedRequests.Inc()
		b.log.Warn().Stringer("target", target).Msg("Poller queue full, watch keeps running")
	}
}

// Watching reports the number of sessions watching target.
func (b *Bridge) Watching(target poller.Target) int {
	return len(b.watchers[target])
}

// Deliver writes a change event into its channel. Events with a delivery go
// to that session only; others go to every watcher of the target. ThreadGone
// ends the watch of that thread.
func (b *Bridge) Deliver(ev poller.Event) {
	defer func() {
		if r := recover(); r != nil {
			b.log.Error().Interface("panic", r).Bytes("stack", debug.Stack()).Msg("Delivering event panicked")
		}
	}()

	if ev.Kind == poller.ThreadGone {
		b.threadGone(ev.Target)
		return
	}

	sender := fmt.Sprintf("/%s/%d", ev.Target.Board, ev.Post.No)
	var text string
	if ev.Target.IsThread() {
		text = ev.Post.Text()
	} else {
		text = ev.Post.Summary()
	}

	if d := ev.Delivery; d != nil {
		s := b.server.sessionByID(d.Session)
		if s == nil {
			b.log.Debug().Stringer("session", d.Session).Msg("Dropping back-fill for departed session")
			return
		}
		if _, ok := s.channels[ircLower(d.Channel)]; !ok {
			return
		}
		b.send(s, d.Channel, sender, text)
		b.server.metrics.Deliveries.WithLabelValues("direct").Inc()
		return
	}

	ch := b.server.registry.Get(channelName(ev.Target))
	if ch == nil {
		return
	}
	for s := range b.watchers[ev.Target] {
		b.send(s, ch.Name(), sender, text)
		b.server.metrics.Deliveries.WithLabelValues("broadcast").Inc()
	}
}

// threadGone tells the watchers of a thread that it is gone and forgets
// them. The next join starts a new watch.
func (b *Bridge) threadGone(target poller.Target) {
	watchers := b.watchers[target]
	delete(b.watchers, target)
	b.log.Info().Stringer("target", target).Int("watchers", len(watchers)).Msg("Thread gone")

	ch := b.server.registry.Get(channelName(target))
	if ch == nil {
		return
	}
	for s := range watchers {
		b.send(s, ch.Name(), target.String(), fmt.Sprintf("Thread %s is gone. Nothing more will happen in this channel.", target))
	}
}

// send writes text to s in channel as a PRIVMSG from the synthetic nick
// sender, split into as many lines as needed.
func (b *Bridge) send(s *Session, channel, sender, text string) {
	prefix := fmt.Sprintf(":%s!%s@%s PRIVMSG %s :", sender, bridgeNick, b.server.name, channel)
	for _, line := range messageLines(prefix, text) {
		s.message(line)
	}
}
