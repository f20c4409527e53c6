package fourchan

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestSanitize(t *testing.T) {
	t.Parallel()
	for _, tc := range []struct {
		name string
		in   string
		want string
	}{
		{"empty", "", ""},
		{"plain", "hello world", "hello world"},
		{"entities", "it&#039;s &gt; &amp; &quot;x&quot;", `it's > & "x"`},
		{"line break", "one<br>two", "one\ntwo"},
		{"greentext", `<span class="quote">&gt;implying</span><br>no`, "\x0303>implying\x0f\nno"},
		{"legacy greentext", `<font class="unkfunc">&gt;old</font>`, "\x0303>old\x0f"},
		{"dead link", `<span class="deadlink">&gt;&gt;123</span>`, "\x0303>>123\x0f"},
		{"quote link", `<a href="#p123" class="quotelink">&gt;&gt;123</a> yes`, ">>123 yes"},
		{"bold", "<b>loud</b> quiet", "\x02loud\x02 quiet"},
		{"banned", `<b style="color: red;">(USER WAS BANNED FOR THIS POST)</b>`, "\x0304(USER WAS BANNED FOR THIS POST)\x0f"},
		{"spoiler", `<s>secret</s>`, "\x0301,01secret\x0f"},
		{"spoiler span", `<span class="spoiler">secret</span>`, "\x0301,01secret\x0f"},
		{"code", `<pre class="prettyprint">x := 1</pre>`, "[code]x := 1[/code]"},
		{"abbr dropped", `a<span class="abbr">Comment too long. <a href="x">Click here</a></span>b`, "ab"},
		{"wbr", "long<wbr>word", "longword"},
		{"literal tags", "[banned]x[/banned]", "[banned:lit]x[/banned]"},
		{"control characters", "a\x02b\x03c\r\nd", "abcd"},
		{"stray end tag", "a</span>b", "ab"},
	} {
		t.Run(tc.name, func(t *testing.T) {
			require.Equal(t, tc.want, Sanitize(tc.in))
		})
	}
}
