package boardirc

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"maps"
	"net"
	"slices"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

const (
	// maxSendQ is the most output a session may have pending before it is
	// disconnected.
	maxSendQ = 1 << 20

	// maxReadQ bounds an unterminated line. Longer lines are discarded.
	maxReadQ = 8 * maxLineLength

	readChunkSize = 4096
	writeTimeout  = 30 * time.Second

	pingAfter    = 90 * time.Second
	timeoutAfter = 180 * time.Second
)

type phase int

const (
	phaseAwaitingPassword phase = iota
	phaseRegistering
	phaseRegistered
)

// Session is one client connection. All fields are owned by the server
// loop; the reader and writer goroutines only exchange byte slices with it.
type Session struct {
	server *Server
	id     uuid.UUID
	conn   net.Conn
	log    zerolog.Logger

	readBuf  []byte
	writeBuf []byte

	// discarding drops input up to the next LF after an overlong line.
	discarding bool

	// out hands pending output to the writer goroutine. It holds at most one
	// buffer in flight plus the final one queued on disconnect.
	out     chan []byte
	writing bool
	closed  bool

	phase          phase
	capNegotiating bool

	nick     string
	user     string
	host     string
	realname string
	away     string

	lastActivity time.Time
	pingSent     bool

	// channels maps the folded channel name to the joined channel.
	channels map[string]*Channel
}

// newSession creates a session for conn. A nil conn gives a session whose
// output stays in writeBuf.
func newSession(server *Server, conn net.Conn) *Session {
	s := &Session{
		server:       server,
		id:           uuid.New(),
		conn:         conn,
		phase:        phaseRegistering,
		host:         "unknown",
		lastActivity: server.now(),
		channels:     make(map[string]*Channel),
	}
	if server.cfg.Password != "" {
		s.phase = phaseAwaitingPassword
	}

	var remote string
	if conn != nil {
		remote = conn.RemoteAddr().String()
		if host, _, err := net.SplitHostPort(remote); err == nil {
			s.host = host
		}
		s.out = make(chan []byte, 2)
	}
	s.log = server.log.With().Stringer("session", s.id).Str("remote", remote).Logger()
	return s
}

// nickArgument returns the IRC argument for this connection. It is * before
// a nick is chosen and the nick after.
func (s *Session) nickArgument() string {
	if s.nick == "" {
		return "*"
	}
	return s.nick
}

// prefix is the nick!user@host source of messages from this session.
func (s *Session) prefix() string {
	return fmt.Sprintf("%s!%s@%s", s.nick, s.user, s.host)
}

func (s *Session) registered() bool {
	return s.phase == phaseRegistered
}

// joinedChannels returns the joined channels ordered by name.
func (s *Session) joinedChannels() []*Channel {
	return slices.SortedFunc(maps.Values(s.channels), func(a, b *Channel) int {
		return compareFolded(a.name, b.name)
	})
}

// message queues a line. Nothing is written once the session is closed.
func (s *Session) message(line string) {
	if s.closed {
		return
	}
	if len(s.writeBuf)+len(line)+2 > maxSendQ {
		s.server.scheduleDisconnect(s, "SendQ exceeded")
		return
	}
	s.appendLine(line)
}

func (s *Session) appendLine(line string) {
	s.writeBuf = append(s.writeBuf, line...)
	s.writeBuf = append(s.writeBuf, '\r', '\n')
	s.server.markDirty(s)
}

// reply queues a line with the server name as source.
func (s *Session) reply(msg string) {
	s.message(":" + s.server.name + " " + msg)
}

func (s *Session) replyf(format string, args ...any) {
	s.reply(fmt.Sprintf(format, args...))
}

// flush hands the pending output to the writer unless it is still busy with
// the previous buffer.
func (s *Session) flush() {
	if s.out == nil || s.writing || s.closed || len(s.writeBuf) == 0 {
		return
	}
	s.out <- s.writeBuf
	s.writeBuf = nil
	s.writing = true
}

// received appends data to the read buffer and dispatches every complete
// line. Lines that do not parse are dropped, and so is a line that grows
// past maxReadQ, up to and including its LF.
func (s *Session) received(data []byte, now time.Time) {
	s.lastActivity = now
	s.pingSent = false

	if s.discarding {
		i := bytes.IndexByte(data, '\n')
		if i < 0 {
			return
		}
		data = data[i+1:]
		s.discarding = false
	}

	s.readBuf = append(s.readBuf, data...)
	lines, rest := splitLines(s.readBuf)
	for _, line := range lines {
		if s.closed {
			return
		}
		msg, err := ParseSingleClientMessage(line)
		if err != nil {
			s.log.Debug().Err(err).Msg("Dropping malformed line")
			continue
		}
		s.log.Debug().Str("command", msg.RawCommand).Strs("params", msg.Parameters).Msg("Received")
		s.handleMessage(msg)
	}
	s.readBuf = append(s.readBuf[:0], rest...)
	if len(s.readBuf) > maxReadQ {
		s.log.Debug().Int("length", len(s.readBuf)).Msg("Discarding overlong line")
		s.readBuf = s.readBuf[:0]
		s.discarding = true
	}
}

// checkAliveness disconnects silent sessions and pings idle ones.
func (s *Session) checkAliveness(now time.Time) {
	idle := now.Sub(s.lastActivity)
	if idle > timeoutAfter {
		s.disconnect("ping timeout")
		return
	}
	if !s.pingSent && idle > pingAfter {
		if s.registered() {
			s.message("PING :" + s.server.name)
			s.pingSent = true
		} else {
			s.disconnect("ping timeout")
		}
	}
}

// disconnect tells the client why, removes the session from the server and
// lets the writer flush and close the connection.
func (s *Session) disconnect(reason string) {
	if s.closed {
		return
	}
	s.appendLine("ERROR :" + reason)
	s.closed = true
	s.log.Info().Str("nick", s.nick).Str("reason", reason).Msg("Disconnected")
	s.server.removeSession(s, reason)

	if s.out != nil {
		if len(s.writeBuf) > 0 {
			s.out <- s.writeBuf
			s.writeBuf = nil
		}
		close(s.out)
	}
}

type inbound struct {
	session *Session
	data    []byte
	err     error
}

type written struct {
	session *Session
	err     error
}

// readLoop forwards everything read from the connection to the server loop.
// It ends with the first read error, which is forwarded too.
func (s *Session) readLoop(ctx context.Context) {
	for {
		buf := make([]byte, readChunkSize)
		n, err := s.conn.Read(buf)
		if n > 0 {
			select {
			case <-ctx.Done():
				return
			case s.server.inbound <- inbound{session: s, data: buf[:n]}:
			}
		}
		if err != nil {
			select {
			case <-ctx.Done():
			case s.server.inbound <- inbound{session: s, err: err}:
			}
			return
		}
	}
}

// writeLoop writes every buffer handed over by the server loop and reports
// back after each one. It closes the connection when out is closed. After
// ctx is cancelled it keeps writing without reporting so the final ERROR
// line still goes out.
func (s *Session) writeLoop(ctx context.Context) {
	defer s.conn.Close()
	for buf := range s.out {
		if err := s.conn.SetWriteDeadline(time.Now().Add(writeTimeout)); err != nil {
			s.log.Debug().Err(err).Msg("Setting write deadline")
		}
		_, err := s.conn.Write(buf)
		select {
		case <-ctx.Done():
		case s.server.written <- written{session: s, err: err}:
		}
		if err != nil {
			return
		}
	}
}

// quitReason turns a read error into the reason shown to other users.
func quitReason(err error) string {
	if errors.Is(err, io.EOF) {
		return "EOT"
	}
	return err.Error()
}

func compareFolded(a, b string) int {
	return strings.Compare(ircLower(a), ircLower(b))
}
