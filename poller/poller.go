package poller

import (
	"cmp"
	"context"
	"errors"
	"maps"
	"runtime/debug"
	"slices"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"github.com/awfulava/boardirc/fourchan"
)

// DefaultInterval is the pause between two poll cycles.
const DefaultInterval = 3 * time.Second

// DefaultQueueSize is the capacity of every queue.
const DefaultQueueSize = 1024

// Config configures a Poller.
type Config struct {
	Interval  time.Duration
	QueueSize int
}

// boardWatch is the last seen snapshot of a board: thread number to last
// modification time. An unprimed watch has no usable snapshot yet; its first
// successful poll only records a baseline.
type boardWatch struct {
	seen   map[int64]int64
	primed bool
}

// threadWatch is the last seen post list of a thread. last is the highest
// post number ever seen, so a post that drops out of a stale response and
// comes back is not announced twice.
type threadWatch struct {
	seen   []int64
	last   int64
	primed bool
}

// Poller watches boards and threads and emits change events. It owns all
// watch state; the connection domain talks to it only through Requests and
// Events.
type Poller struct {
	source   Source
	interval time.Duration
	log      zerolog.Logger
	metrics  *Metrics

	requests chan Request
	events   chan Event
	updates  chan update

	// Owned by the update loop.
	boards  map[string]*boardWatch
	threads map[Target]*threadWatch
}

// New returns a poller reading from source. Metrics are registered with reg
// when it is not nil.
func New(source Source, cfg Config, log zerolog.Logger, reg prometheus.Registerer) *Poller {
	if cfg.Interval <= 0 {
		cfg.Interval = DefaultInterval
	}
	if cfg.QueueSize <= 0 {
		cfg.QueueSize = DefaultQueueSize
	}
	return &Poller{
		source:   source,
		interval: cfg.Interval,
		log:      log.With().Str("component", "poller").Logger(),
		metrics:  NewMetrics(reg),

		requests: make(chan Request, cfg.QueueSize),
		events:   make(chan Event, cfg.QueueSize),
		updates:  make(chan update, cfg.QueueSize),

		boards:  make(map[string]*boardWatch),
		threads: make(map[Target]*threadWatch),
	}
}

// Requests is the watch registration queue.
func (p *Poller) Requests() chan<- Request {
	return p.requests
}

// Events is the change event queue.
func (p *Poller) Events() <-chan Event {
	return p.events
}

// Run serves requests and polls until ctx is cancelled.
func (p *Poller) Run(ctx context.Context) error {
	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return p.requestLoop(ctx)
	})
	g.Go(func() error {
		return p.updateLoop(ctx)
	})
	return g.Wait()
}

// requestLoop performs bulk loads for new watches, then forwards each request
// to the update loop behind the seed it produced.
func (p *Poller) requestLoop(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case req := <-p.requests:
			p.handleRequest(ctx, req)
		}
	}
}

func (p *Poller) handleRequest(ctx context.Context, req Request) {
	log := p.log.With().Stringer("target", req.Target).Stringer("action", req.Action).Logger()
	log.Info().Msg("Watch request")

	if req.Action == LoadAndFollow {
		var s *seed
		if req.Target.IsThread() {
			s = p.loadThread(ctx, req)
		} else {
			s = p.loadBoard(ctx, req)
		}
		if s != nil {
			p.enqueueUpdate(ctx, update{seed: s})
		}
	}
	p.enqueueUpdate(ctx, update{request: &req})
}

// loadBoard delivers the OP of every thread of the board to the requester,
// oldest first, and returns the snapshot it delivered.
func (p *Poller) loadBoard(ctx context.Context, req Request) *seed {
	board := req.Target.Board
	stubs, err := p.source.BoardIndex(ctx, board)
	if err != nil {
		p.metrics.FetchErrors.WithLabelValues("index").Inc()
		p.log.Warn().Err(err).Str("board", board).Msg("Bulk load failed")
		return nil
	}
	sortStubs(stubs)

	s := &seed{target: req.Target, threads: make(map[int64]int64, len(stubs))}
	for _, st := range stubs {
		posts, err := p.source.Thread(ctx, board, st.No)
		if err != nil {
			// Left out of the seed; the update loop announces it later.
			p.metrics.FetchErrors.WithLabelValues("thread").Inc()
			p.log.Warn().Err(err).Str("board", board).Int64("thread", st.No).Msg("Skipping thread during bulk load")
			continue
		}
		if len(posts) == 0 {
			continue
		}
		s.threads[st.No] = st.LastModified
		if !p.emit(ctx, Event{Kind: NewThread, Target: req.Target, Post: posts[0], Delivery: req.Delivery}) {
			return s
		}
	}
	return s
}

// loadThread delivers every post of the thread to the requester.
func (p *Poller) loadThread(ctx context.Context, req Request) *seed {
	posts, err := p.source.Thread(ctx, req.Target.Board, req.Target.Thread)
	if err != nil {
		p.metrics.FetchErrors.WithLabelValues("thread").Inc()
		p.log.Warn().Err(err).Stringer("target", req.Target).Msg("Bulk load failed")
		return nil
	}

	s := &seed{target: req.Target, posts: postNumbers(posts)}
	for _, post := range posts {
		kind := NewPost
		if !post.IsReply() {
			kind = NewThread
		}
		if !p.emit(ctx, Event{Kind: kind, Target: req.Target, Post: post, Delivery: req.Delivery}) {
			break
		}
	}
	return s
}

func (p *Poller) enqueueUpdate(ctx context.Context, u update) {
	select {
	case <-ctx.Done():
	case p.updates <- u:
	}
}

// emit blocks until the event is queued. It reports false when ctx was
// cancelled first.
func (p *Poller) emit(ctx context.Context, ev Event) bool {
	select {
	case <-ctx.Done():
		return false
	case p.events <- ev:
		p.metrics.Events.WithLabelValues(ev.Kind.String()).Inc()
		return true
	}
}

func (p *Poller) updateLoop(ctx context.Context) error {
	for {
		p.cycle(ctx)
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(p.interval):
		}
	}
}

// cycle applies pending updates and polls every watch once.
func (p *Poller) cycle(ctx context.Context) {
	start := time.Now()
	defer func() {
		if r := recover(); r != nil {
			p.metrics.Panics.Inc()
			p.log.Error().Interface("panic", r).Bytes("stack", debug.Stack()).Msg("Poll cycle panicked")
		}
	}()

	p.drainUpdates()

	for _, board := range slices.Sorted(maps.Keys(p.boards)) {
		if ctx.Err() != nil {
			return
		}
		p.pollBoard(ctx, board, p.boards[board])
	}
	for _, target := range slices.SortedFunc(maps.Keys(p.threads), compareTargets) {
		if ctx.Err() != nil {
			return
		}
		p.pollThread(ctx, target, p.threads[target])
	}

	p.metrics.Cycles.Inc()
	p.metrics.CycleSeconds.Observe(time.Since(start).Seconds())
}

func (p *Poller) drainUpdates() {
	for {
		select {
		case u := <-p.updates:
			p.apply(u)
		default:
			p.metrics.Watches.WithLabelValues("board").Set(float64(len(p.boards)))
			p.metrics.Watches.WithLabelValues("thread").Set(float64(len(p.threads)))
			return
		}
	}
}

func (p *Poller) apply(u update) {
	if s := u.seed; s != nil {
		if s.target.IsThread() {
			p.threads[s.target] = &threadWatch{seen: s.posts, last: maxNumber(s.posts), primed: true}
		} else {
			p.boards[s.target.Board] = &boardWatch{seen: s.threads, primed: true}
		}
		return
	}

	req := u.request
	switch req.Action {
	case LoadAndFollow:
		if req.Target.IsThread() {
			if p.threads[req.Target] == nil {
				p.threads[req.Target] = &threadWatch{}
			}
		} else if p.boards[req.Target.Board] == nil {
			p.boards[req.Target.Board] = &boardWatch{seen: make(map[int64]int64)}
		}
	case Stop:
		if req.Target.IsThread() {
			delete(p.threads, req.Target)
		} else {
			delete(p.boards, req.Target.Board)
		}
		p.log.Info().Stringer("target", req.Target).Msg("Watch stopped")
	}
}

// pollBoard diffs the board index against the snapshot. A failed index fetch
// leaves the snapshot untouched.
func (p *Poller) pollBoard(ctx context.Context, board string, w *boardWatch) {
	stubs, err := p.source.BoardIndex(ctx, board)
	if err != nil {
		p.metrics.FetchErrors.WithLabelValues("index").Inc()
		p.log.Warn().Err(err).Str("board", board).Msg("Board poll failed")
		return
	}
	sortStubs(stubs)

	target := Target{Board: board}
	next := make(map[int64]int64, len(stubs))
	for _, st := range stubs {
		prev, known := w.seen[st.No]
		switch {
		case !w.primed:
			next[st.No] = st.LastModified
		case !known:
			if p.announce(ctx, target, st.No, NewThread) {
				next[st.No] = st.LastModified
			}
		case st.LastModified > prev:
			if p.announce(ctx, target, st.No, UpdatedThread) {
				next[st.No] = st.LastModified
			} else {
				next[st.No] = prev
			}
		case st.LastModified < prev:
			// Upstream sometimes serves an older index right after a newer
			// one. Keep the newer baseline.
			p.metrics.StaleReads.Inc()
			p.log.Debug().Str("board", board).Int64("thread", st.No).
				Int64("seen", prev).Int64("got", st.LastModified).Msg("Discarding stale index entry")
			next[st.No] = prev
		default:
			next[st.No] = prev
		}
	}
	w.seen = next
	w.primed = true
}

// announce fetches the thread and emits its OP. It reports whether the event
// was emitted; when it was not, the caller keeps the old baseline so the
// change is retried next cycle.
func (p *Poller) announce(ctx context.Context, target Target, thread int64, kind Kind) bool {
	posts, err := p.source.Thread(ctx, target.Board, thread)
	if err != nil {
		p.metrics.FetchErrors.WithLabelValues("thread").Inc()
		p.log.Warn().Err(err).Str("board", target.Board).Int64("thread", thread).Msg("Thread fetch failed")
		return false
	}
	if len(posts) == 0 {
		return false
	}
	return p.emit(ctx, Event{Kind: kind, Target: target, Post: posts[0]})
}

// pollThread emits every post not seen before. A thread that disappeared
// upstream is reported with ThreadGone and dropped.
func (p *Poller) pollThread(ctx context.Context, target Target, w *threadWatch) {
	posts, err := p.source.Thread(ctx, target.Board, target.Thread)
	if errors.Is(err, fourchan.ErrNotFound) {
		p.log.Info().Stringer("target", target).Msg("Thread is gone, dropping watch")
		if p.emit(ctx, Event{Kind: ThreadGone, Target: target}) {
			delete(p.threads, target)
		}
		return
	}
	if err != nil {
		p.metrics.FetchErrors.WithLabelValues("thread").Inc()
		p.log.Warn().Err(err).Stringer("target", target).Msg("Thread poll failed")
		return
	}

	numbers := postNumbers(posts)
	if !w.primed {
		w.seen, w.last, w.primed = numbers, maxNumber(numbers), true
		return
	}

	seen := make(map[int64]struct{}, len(w.seen))
	for _, no := range w.seen {
		seen[no] = struct{}{}
	}
	for _, post := range posts {
		if _, ok := seen[post.No]; ok || post.No <= w.last {
			continue
		}
		if !p.emit(ctx, Event{Kind: NewPost, Target: target, Post: post}) {
			return
		}
		w.last = post.No
	}
	w.seen = numbers
}

func sortStubs(stubs []fourchan.ThreadStub) {
	slices.SortStableFunc(stubs, func(a, b fourchan.ThreadStub) int {
		return cmp.Or(cmp.Compare(a.LastModified, b.LastModified), cmp.Compare(a.No, b.No))
	})
}

func compareTargets(a, b Target) int {
	return cmp.Or(cmp.Compare(a.Board, b.Board), cmp.Compare(a.Thread, b.Thread))
}

func postNumbers(posts []fourchan.Post) []int64 {
	numbers := make([]int64, len(posts))
	for i, post := range posts {
		numbers[i] = post.No
	}
	return numbers
}

func maxNumber(numbers []int64) int64 {
	var m int64
	for _, n := range numbers {
		m = max(m, n)
	}
	return m
}
