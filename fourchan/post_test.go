package fourchan

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestPostImage(t *testing.T) {
	t.Parallel()

	p := Post{No: 1, Board: "a"}
	require.Nil(t, p.Image())

	p = Post{No: 2, Board: "a", Tim: 1500000000123, Ext: ".png", Filename: "cat", W: 10, H: 20}
	img := p.Image()
	require.NotNil(t, img)
	require.Equal(t, "https://i.4cdn.org/a/1500000000123.png", img.URL())
	require.Equal(t, "https://t.4cdn.org/a/1500000000123s.jpg", img.ThumbURL())
	require.Equal(t, "<Image cat.png (10x20)>", img.String())

	p.media = &MediaHosts{Image: "http://img.local", Thumb: "http://thumb.local"}
	require.Equal(t, "http://img.local/a/1500000000123.png", p.Image().URL())
}

func TestPostIdentity(t *testing.T) {
	t.Parallel()

	op := Post{No: 100, Comment: "a"}
	reply := Post{No: 101, Resto: 100, Comment: "a"}
	require.False(t, op.IsReply())
	require.True(t, reply.IsReply())
	require.Equal(t, int64(100), op.ThreadNo())
	require.Equal(t, int64(100), reply.ThreadNo())
	require.True(t, op.Equal(Post{No: 100, Comment: "different"}))
	require.False(t, op.Equal(reply))
}

func TestPostSummary(t *testing.T) {
	t.Parallel()

	require.Equal(t, "(no post text)", Post{}.Summary())
	require.Equal(t, "first line", Post{Comment: "first line<br>second line"}.Summary())

	long := strings.Repeat("word ", 20)
	require.Equal(t, strings.TrimSpace(strings.Repeat("word ", SummaryMaxWords))+"...", Post{Comment: long}.Summary())

	p := Post{Board: "g", Subject: "Daily", Comment: "hi", Tim: 7, Ext: ".jpg"}
	require.Equal(t, "[https://i.4cdn.org/g/7.jpg] \x02Daily\x02: hi", p.Summary())
}

func TestPostText(t *testing.T) {
	t.Parallel()

	p := Post{Board: "g", Comment: "one<br>two", Tim: 7, Ext: ".jpg"}
	require.Equal(t, "[https://i.4cdn.org/g/7.jpg] one\ntwo", p.Text())
}
