package boardirc

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"
)

func TestStateStoreRoundTrip(t *testing.T) {
	t.Parallel()
	dir := t.TempDir()
	store, err := NewStateStore(dir, zerolog.Nop())
	require.NoError(t, err)

	require.Equal(t, ChannelState{}, store.Load("#chat"))

	want := ChannelState{Topic: "key: value\nand: \"quotes\"", Key: "s3same"}
	require.NoError(t, store.Save("#Chat", want))
	require.Equal(t, want, store.Load("#chat"))

	require.NoError(t, store.Save("#chat", ChannelState{Topic: "second"}))
	require.Equal(t, ChannelState{Topic: "second"}, store.Load("#CHAT"))

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	require.Len(t, entries, 1, "temporary files must not be left behind")
}

func TestStateStoreEscapesNames(t *testing.T) {
	t.Parallel()
	dir := t.TempDir()
	store, err := NewStateStore(filepath.Join(dir, "state"), zerolog.Nop())
	require.NoError(t, err)

	require.NoError(t, store.Save("#../../escape", ChannelState{Topic: "x"}))
	entries, err := os.ReadDir(filepath.Join(dir, "state"))
	require.NoError(t, err)
	require.Len(t, entries, 1)
	require.Equal(t, "%23..%2F..%2Fescape.yaml", entries[0].Name())
	require.Equal(t, "x", store.Load("#../../escape").Topic)
}

func TestStateStoreIgnoresMalformedRecords(t *testing.T) {
	t.Parallel()
	dir := t.TempDir()
	store, err := NewStateStore(dir, zerolog.Nop())
	require.NoError(t, err)

	for _, content := range []string{
		"topic: [unterminated",
		"topic: fine\nexec: rm -rf /\n",
		"- just\n- a list\n",
	} {
		require.NoError(t, os.WriteFile(store.path("#chat"), []byte(content), 0o644))
		require.Equal(t, ChannelState{}, store.Load("#chat"), content)
	}
}

func TestStateStoreWithoutDirectoryKeepsNothing(t *testing.T) {
	t.Parallel()
	store, err := NewStateStore("", zerolog.Nop())
	require.NoError(t, err)
	require.NoError(t, store.Save("#chat", ChannelState{Topic: "x"}))
	require.Equal(t, ChannelState{}, store.Load("#chat"))
}
