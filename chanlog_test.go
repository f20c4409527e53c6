package boardirc

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"
)

func TestTranscripts(t *testing.T) {
	t.Parallel()
	dir := t.TempDir()
	tr := NewTranscripts(dir, zerolog.Nop())
	tr.now = func() time.Time { return time.Date(2024, 5, 1, 12, 30, 0, 0, time.FixedZone("X", 3600)) }

	tr.Event("#/a/", "alice", "joined")
	tr.Message("#/A/", "alice", "hello")
	tr.Close()

	b, err := os.ReadFile(filepath.Join(dir, "%23%2Fa%2F.log"))
	require.NoError(t, err)
	require.Equal(t, "[2024-05-01 11:30:00 UTC] * alice joined\n"+
		"[2024-05-01 11:30:00 UTC] <alice> hello\n", string(b))
}

func TestTranscriptsDisabled(t *testing.T) {
	t.Parallel()
	tr := NewTranscripts("", zerolog.Nop())
	tr.Message("#chat", "alice", "hello")
	require.Empty(t, tr.files)
}

func TestSessionTrafficIsTranscribed(t *testing.T) {
	t.Parallel()
	dir := t.TempDir()
	s, _ := newTestServer(t, func(c *Config) { c.LogDir = dir })
	alice := register(t, s, "alice")
	send(alice, "JOIN #chat", "PRIVMSG #chat :hi", "TOPIC #chat :cats", "PART #chat :bye")
	s.transcripts.Close()

	b, err := os.ReadFile(filepath.Join(dir, "%23chat.log"))
	require.NoError(t, err)
	require.Regexp(t, `(?s)\* alice joined\n.*<alice> hi\n.*\* alice set topic to "cats"\n.*\* alice left \(bye\)\n$`, string(b))
}
