package boardirc

import (
	"strings"
	"testing"
	"unicode/utf8"

	"github.com/stretchr/testify/require"
)

func TestMessageLines(t *testing.T) {
	t.Parallel()
	prefix := ":/a/1!boardirc@irc.test PRIVMSG #/a/ :"

	require.Equal(t, []string{prefix + "one", prefix + "two"}, messageLines(prefix, "one\r\n\ntwo\n"))
	require.Empty(t, messageLines(prefix, "\n\n"))

	long := strings.Repeat("word ", 300)
	lines := messageLines(prefix, long)
	require.Greater(t, len(lines), 1)
	var words int
	for _, line := range lines {
		require.LessOrEqual(t, len(line)+2, 512)
		require.True(t, strings.HasPrefix(line, prefix))
		words += len(strings.Fields(strings.TrimPrefix(line, prefix)))
	}
	require.Equal(t, 300, words)
}

func TestMessageLinesCutsLongWordsOnRuneBoundaries(t *testing.T) {
	t.Parallel()
	prefix := ":x PRIVMSG #c :"
	word := strings.Repeat("ü", 600)
	lines := messageLines(prefix, "start "+word)

	var rebuilt strings.Builder
	for _, line := range lines {
		require.LessOrEqual(t, len(line)+2, 512)
		body := strings.TrimPrefix(line, prefix)
		require.True(t, utf8.ValidString(body))
		rebuilt.WriteString(body)
	}
	require.Equal(t, "start"+word, rebuilt.String())
}
