package boardirc

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"net"
	"strconv"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog"

	"github.com/awfulava/boardirc/poller"
)

// Version is reported in the registration replies.
const Version = "0.3.0"

const (
	aliveCheckInterval = 10 * time.Second
	handshakeTimeout   = 30 * time.Second
)

// Queues are the two ends of the poller the server talks to. *poller.Poller
// implements it.
type Queues interface {
	Requests() chan<- poller.Request
	Events() <-chan poller.Event
}

// Server is the IRC side of the gateway. A single goroutine, the server
// loop, owns every session, the channel registry and the bridge; accepted
// connections, read data, write completions and poller events all reach it
// through channels.
type Server struct {
	cfg     Config
	name    string
	created time.Time
	log     zerolog.Logger
	metrics *Metrics
	now     func() time.Time

	tlsConfig   *tls.Config
	registry    *Registry
	bridge      *Bridge
	transcripts *Transcripts
	events      <-chan poller.Event

	sessions map[uuid.UUID]*Session
	nicks    map[string]*Session
	dirty    map[*Session]struct{}
	doomed   []doomedSession

	accepted chan net.Conn
	inbound  chan inbound
	written  chan written

	wg sync.WaitGroup
}

type doomedSession struct {
	session *Session
	reason  string
}

// NewServer creates a server for an already validated configuration. Its
// metrics are registered with reg unless it is nil.
func NewServer(cfg Config, queues Queues, log zerolog.Logger, reg prometheus.Registerer) (*Server, error) {
	tlsConfig, err := cfg.TLSConfig()
	if err != nil {
		return nil, err
	}
	store, err := NewStateStore(cfg.StateDir, log)
	if err != nil {
		return nil, err
	}

	s := &Server{
		cfg:     cfg,
		name:    cfg.Name,
		created: time.Now(),
		log:     log,
		metrics: NewMetrics(reg),
		now:     time.Now,

		tlsConfig:   tlsConfig,
		registry:    NewRegistry(store, log.With().Str("component", "registry").Logger()),
		transcripts: NewTranscripts(cfg.LogDir, log),
		events:      queues.Events(),

		sessions: make(map[uuid.UUID]*Session),
		nicks:    make(map[string]*Session),
		dirty:    make(map[*Session]struct{}),

		accepted: make(chan net.Conn),
		inbound:  make(chan inbound),
		written:  make(chan written),
	}
	s.bridge = newBridge(s, queues.Requests())
	return s, nil
}

// Serve listens on every configured port and runs the server loop until ctx
// is cancelled.
func (s *Server) Serve(ctx context.Context) error {
	var config net.ListenConfig
	var listeners []net.Listener
	for _, port := range s.cfg.Ports {
		addr := net.JoinHostPort(s.cfg.Listen, strconv.Itoa(port))
		l, err := config.Listen(ctx, "tcp", addr)
		if err != nil {
			for _, l := range listeners {
				l.Close()
			}
			return fmt.Errorf("Listen: %w", err)
		}
		s.log.Info().Str("addr", l.Addr().String()).Bool("tls", s.tlsConfig != nil).Msg("Listening")
		listeners = append(listeners, l)
	}
	return s.ServeListeners(ctx, listeners...)
}

// ServeListeners runs the server loop on already bound listeners until ctx
// is cancelled. The listeners are closed on return.
func (s *Server) ServeListeners(ctx context.Context, listeners ...net.Listener) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	for _, l := range listeners {
		s.wg.Add(1)
		go func() {
			defer s.wg.Done()
			s.acceptLoop(ctx, l)
		}()
	}

	s.loop(ctx)

	for _, l := range listeners {
		l.Close()
	}
	s.wg.Wait()
	return nil
}

// acceptLoop hands accepted connections to the server loop. TLS handshakes
// run on their own goroutine so a slow client cannot hold up others.
func (s *Server) acceptLoop(ctx context.Context, l net.Listener) {
	for {
		conn, err := l.Accept()
		if err != nil {
			if ctx.Err() != nil || errors.Is(err, net.ErrClosed) {
				return
			}
			s.log.Error().Err(err).Msg("Accept failed")
			select {
			case <-ctx.Done():
				return
			case <-time.After(time.Second):
			}
			continue
		}

		if s.tlsConfig == nil {
			s.handOver(ctx, conn)
			continue
		}
		s.wg.Add(1)
		go func() {
			defer s.wg.Done()
			tc := tls.Server(conn, s.tlsConfig)
			hctx, cancel := context.WithTimeout(ctx, handshakeTimeout)
			defer cancel()
			if err := tc.HandshakeContext(hctx); err != nil {
				s.log.Info().Err(err).Str("remote", conn.RemoteAddr().String()).Msg("TLS handshake failed")
				conn.Close()
				return
			}
			s.handOver(ctx, tc)
		}()
	}
}

func (s *Server) handOver(ctx context.Context, conn net.Conn) {
	select {
	case <-ctx.Done():
		conn.Close()
	case s.accepted <- conn:
	}
}

func (s *Server) loop(ctx context.Context) {
	ticker := time.NewTicker(aliveCheckInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			s.shutdown()
			return
		case conn := <-s.accepted:
			s.addSession(ctx, conn)
		case in := <-s.inbound:
			s.handleInbound(in)
		case w := <-s.written:
			s.handleWritten(w)
		case ev := <-s.events:
			s.bridge.Deliver(ev)
			s.drainEvents()
		case <-ticker.C:
			s.checkAliveness()
		}
		s.reap()
		s.flush()
	}
}

func (s *Server) addSession(ctx context.Context, conn net.Conn) {
	sess := newSession(s, conn)
	s.sessions[sess.id] = sess
	s.updateGauges()
	sess.log.Info().Msg("Accepted connection")

	s.wg.Add(2)
	go func() {
		defer s.wg.Done()
		sess.readLoop(ctx)
	}()
	go func() {
		defer s.wg.Done()
		sess.writeLoop(ctx)
	}()
}

func (s *Server) handleInbound(in inbound) {
	sess := in.session
	if sess.closed {
		return
	}
	if in.err != nil {
		s.metrics.Disconnects.WithLabelValues("read").Inc()
		sess.disconnect(quitReason(in.err))
		return
	}
	sess.received(in.data, s.now())
}

func (s *Server) handleWritten(w written) {
	sess := w.session
	sess.writing = false
	if sess.closed {
		return
	}
	if w.err != nil {
		s.metrics.Disconnects.WithLabelValues("write").Inc()
		sess.disconnect(w.err.Error())
		return
	}
	sess.flush()
}

// drainEvents delivers every event already queued by the poller.
func (s *Server) drainEvents() {
	for {
		select {
		case ev := <-s.events:
			s.bridge.Deliver(ev)
		default:
			return
		}
	}
}

func (s *Server) checkAliveness() {
	now := s.now()
	for _, sess := range s.sessions {
		sess.checkAliveness(now)
	}
}

// markDirty remembers that sess has output to flush at the end of the
// current loop iteration.
func (s *Server) markDirty(sess *Session) {
	s.dirty[sess] = struct{}{}
}

func (s *Server) flush() {
	for sess := range s.dirty {
		sess.flush()
	}
	clear(s.dirty)
}

// scheduleDisconnect closes sess at the end of the current loop iteration.
// It is used where disconnecting right away would modify state the caller is
// iterating over.
func (s *Server) scheduleDisconnect(sess *Session, reason string) {
	s.doomed = append(s.doomed, doomedSession{session: sess, reason: reason})
}

func (s *Server) reap() {
	for len(s.doomed) > 0 {
		doomed := s.doomed
		s.doomed = nil
		for _, d := range doomed {
			if !d.session.closed {
				s.metrics.Disconnects.WithLabelValues("sendq").Inc()
				d.session.disconnect(d.reason)
			}
		}
	}
}

// removeSession unlinks a closed session from every channel and index and
// tells the users who shared a channel with it.
func (s *Server) removeSession(sess *Session, reason string) {
	delete(s.sessions, sess.id)
	delete(s.dirty, sess)
	if sess.nick != "" && s.nicks[ircLower(sess.nick)] == sess {
		delete(s.nicks, ircLower(sess.nick))
	}

	if sess.registered() {
		sess.messageRelated(fmt.Sprintf(":%s QUIT :%s", sess.prefix(), reason), false)
	}
	for _, ch := range sess.joinedChannels() {
		s.transcripts.Event(ch.Name(), sess.nick, fmt.Sprintf("quit (%s)", reason))
		s.bridge.ClientLeft(sess, ch)
		s.registry.RemoveMember(ch, sess)
	}
	clear(sess.channels)
	s.updateGauges()
}

// shutdown disconnects every session and closes the transcripts.
func (s *Server) shutdown() {
	s.log.Info().Int("sessions", len(s.sessions)).Msg("Shutting down")
	for _, sess := range s.sessions {
		sess.disconnect("Server shutting down")
	}
	s.reap()
	s.transcripts.Close()
}

// sessionByID returns the live session with the given id.
func (s *Server) sessionByID(id uuid.UUID) *Session {
	return s.sessions[id]
}

func (s *Server) sessionByNick(nick string) *Session {
	return s.nicks[ircLower(nick)]
}

// nickInUse reports whether nick belongs to a session other than sess.
func (s *Server) nickInUse(nick string, sess *Session) bool {
	if ircLower(nick) == bridgeNick {
		return true
	}
	other := s.sessionByNick(nick)
	return other != nil && other != sess
}

func (s *Server) changeNick(sess *Session, nick string) {
	if sess.nick != "" && s.nicks[ircLower(sess.nick)] == sess {
		delete(s.nicks, ircLower(sess.nick))
	}
	sess.nick = nick
	s.nicks[ircLower(nick)] = sess
}

// registeredSessions returns every registered session.
func (s *Server) registeredSessions() []*Session {
	var sessions []*Session
	for _, sess := range s.sessions {
		if sess.registered() {
			sessions = append(sessions, sess)
		}
	}
	return sessions
}

func (s *Server) updateGauges() {
	s.metrics.Sessions.Set(float64(len(s.sessions)))
	s.metrics.Channels.Set(float64(s.registry.Len()))
}
