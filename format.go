package boardirc

import (
	"strings"
)

// messageLines formats body as one or more protocol lines of the form
// "<prefix><text>", truncating along sensible boundaries so that no line
// exceeds the 512 byte limit including CR LF. Newlines in body start new
// lines; empty lines are dropped.
func messageLines(prefix, body string) []string {
	messageLen := 512 - len(prefix) - 2
	if messageLen < 1 {
		messageLen = 1
	}

	body = strings.ReplaceAll(body, "\r\n", "\n")
	body = strings.ReplaceAll(body, "\r", "\n")

	var b strings.Builder
	var lines []string
	for line := range strings.SplitSeq(body, "\n") {
		if line == "" {
			continue
		}
		if len(line) <= messageLen {
			lines = append(lines, prefix+line)
			continue
		}

		// In the bad case, the individual line is too long. Truncate it
		// into separate lines.
		for word := range strings.SplitSeq(line, " ") {
			// If the word by itself is too long, truncate it down to a
			// reasonable length. Note that if this is true, the builder
			// is flushed first so we start from a fresh string.
			if len(word) > messageLen && b.Len() > 0 {
				lines = append(lines, prefix+b.String())
				b.Reset()
			}
			for len(word) > messageLen {
				cut := truncateUTF8(word, messageLen)
				lines = append(lines, prefix+word[:cut])
				word = word[cut:]
			}

			if b.Len() == 0 {
				// Guaranteed to be small enough after above truncation.
				b.WriteString(word)
			} else if b.Len()+1+len(word) > messageLen {
				// Flush and append the word.
				lines = append(lines, prefix+b.String())
				b.Reset()
				b.WriteString(word)
			} else {
				b.WriteString(" ")
				b.WriteString(word)
			}
		}
		if b.Len() > 0 {
			lines = append(lines, prefix+b.String())
			b.Reset()
		}
	}
	return lines
}

// truncateUTF8 returns the largest index <= n that does not split a UTF-8
// sequence of s.
func truncateUTF8(s string, n int) int {
	if n >= len(s) {
		return len(s)
	}
	for i := n; i > 0; i-- {
		// Continuation bytes look like 10xxxxxx.
		if s[i]&0xC0 != 0x80 {
			return i
		}
	}
	return n
}
