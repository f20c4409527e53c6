package boardirc

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestParseSingleClientMessage(t *testing.T) {
	t.Parallel()
	tests := []struct {
		name    string
		line    string
		want    *ClientMessage
		wantErr error
	}{
		{
			name: "command only",
			line: "MOTD",
			want: &ClientMessage{RawCommand: "MOTD", Command: Command_Motd},
		},
		{
			name: "standard arguments",
			line: "USER alice 0 * :Alice Liddell",
			want: &ClientMessage{
				RawCommand: "USER",
				Command:    Command_User,
				Parameters: []string{"alice", "0", "*", "Alice Liddell"},
			},
		},
		{
			name: "prefix and extra spaces",
			line: ":alice!a@host  privmsg   #chat :hi  there",
			want: &ClientMessage{
				Prefix:     "alice!a@host",
				RawCommand: "PRIVMSG",
				Command:    Command_Privmsg,
				Parameters: []string{"#chat", "hi  there"},
			},
		},
		{
			name: "empty trailing argument",
			line: "PRIVMSG #chat :",
			want: &ClientMessage{
				RawCommand: "PRIVMSG",
				Command:    Command_Privmsg,
				Parameters: []string{"#chat", ""},
			},
		},
		{
			name: "unknown command",
			line: "FROB x",
			want: &ClientMessage{RawCommand: "FROB", Command: Command_Unknown, Parameters: []string{"x"}},
		},
		{
			name:    "prefix only",
			line:    ":alice!a@host",
			wantErr: ErrPrefixOnlyMessage,
		},
		{
			name:    "empty",
			line:    "",
			wantErr: ErrEmptyCommand,
		},
		{
			name:    "too long",
			line:    "PRIVMSG #chat :" + strings.Repeat("x", maxLineLength),
			wantErr: ErrMessageTooLong,
		},
		{
			name:    "invalid UTF-8",
			line:    "PRIVMSG #chat :\xff\xfe",
			wantErr: ErrInvalidEncoding,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ParseSingleClientMessage([]byte(tt.line))
			if tt.wantErr != nil {
				require.ErrorIs(t, err, tt.wantErr)
				return
			}
			require.NoError(t, err)
			require.Equal(t, tt.want, got)
		})
	}
}

func TestSplitLines(t *testing.T) {
	t.Parallel()
	lines, rest := splitLines([]byte("NICK a\r\nUSER a 0 * :A\nJOI"))
	require.Len(t, lines, 2)
	require.Equal(t, "NICK a", string(lines[0]))
	require.Equal(t, "USER a 0 * :A", string(lines[1]))
	require.Equal(t, "JOI", string(rest))

	lines, rest = splitLines([]byte("no terminator"))
	require.Empty(t, lines)
	require.Equal(t, "no terminator", string(rest))
}
