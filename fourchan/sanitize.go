package fourchan

import (
	"regexp"
	"strings"
	"unicode"

	"golang.org/x/net/html"
	"golang.org/x/net/html/atom"
	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

// IRC formatting codes.
const (
	ircBold    = "\x02"
	ircReset   = "\x0f"
	ircRed     = "\x0304"
	ircGreen   = "\x0303"
	ircSpoiler = "\x0301,01"
)

var literalTags = regexp.MustCompile(`\[(banned|moot)\]`)

// format is how one element renders: the codes written around its contents,
// or skip to drop the contents entirely.
type format struct {
	tag   atom.Atom
	open  string
	close string
	skip  bool
}

// Sanitize converts upstream comment markup into terminal-safe text using IRC
// formatting codes. Line breaks become newlines; every other control
// character found in the upstream text is removed.
func Sanitize(raw string) string {
	if raw == "" {
		return ""
	}
	raw = literalTags.ReplaceAllString(raw, "[$1:lit]")

	var (
		b       strings.Builder
		stack   []format
		skipped int
	)
	z := html.NewTokenizer(strings.NewReader(raw))
	for {
		tt := z.Next()
		switch tt {
		case html.ErrorToken:
			// io.EOF or malformed input; either way we keep what we have.
			return b.String()
		case html.TextToken:
			if skipped == 0 {
				b.WriteString(cleanText(string(z.Text())))
			}
		case html.StartTagToken, html.SelfClosingTagToken:
			name, hasAttr := z.TagName()
			tag := atom.Lookup(name)
			attrs := make(map[string]string)
			for hasAttr {
				var k, v []byte
				k, v, hasAttr = z.TagAttr()
				attrs[string(k)] = string(v)
			}

			switch tag {
			case atom.Br:
				if skipped == 0 {
					b.WriteByte('\n')
				}
				continue
			case atom.Wbr, atom.Img, atom.Hr:
				continue
			}
			if tt == html.SelfClosingTagToken {
				continue
			}

			f := formatFor(tag, attrs)
			if skipped > 0 {
				f = format{tag: tag, skip: true}
			}
			if f.skip {
				skipped++
			} else {
				b.WriteString(f.open)
			}
			stack = append(stack, f)
		case html.EndTagToken:
			name, _ := z.TagName()
			tag := atom.Lookup(name)
			i := len(stack) - 1
			for i >= 0 && stack[i].tag != tag {
				i--
			}
			if i < 0 {
				// Stray end tag.
				continue
			}
			for j := len(stack) - 1; j >= i; j-- {
				if stack[j].skip {
					skipped--
				} else {
					b.WriteString(stack[j].close)
				}
			}
			stack = stack[:i]
		}
	}
}

func formatFor(tag atom.Atom, attrs map[string]string) format {
	class := attrs["class"]
	style := strings.ReplaceAll(attrs["style"], " ", "")
	f := format{tag: tag}
	switch tag {
	case atom.Pre:
		f.open, f.close = "[code]", "[/code]"
	case atom.B, atom.Strong:
		if strings.Contains(style, "color:red") {
			// "USER WAS BANNED FOR THIS POST"
			f.open, f.close = ircRed, ircReset
		} else {
			f.open, f.close = ircBold, ircBold
		}
	case atom.Font:
		if class == "unkfunc" {
			f.open, f.close = ircGreen, ircReset
		}
	case atom.Span:
		switch {
		case class == "abbr":
			f.skip = true
		case class == "quote", strings.HasSuffix(class, "deadlink"):
			f.open, f.close = ircGreen, ircReset
		case class == "spoiler":
			f.open, f.close = ircSpoiler, ircReset
		}
	case atom.S:
		f.open, f.close = ircSpoiler, ircReset
	case atom.Div:
		if strings.Contains(style, "dashed") {
			f.open, f.close = "[moot]", "[/moot]"
		}
	}
	return f
}

// cleanText normalizes upstream text and strips control characters so that
// upstream content can neither break protocol lines nor smuggle in
// formatting codes of its own.
func cleanText(s string) string {
	t := transform.Chain(norm.NFC, runes.Remove(runes.In(unicode.Cc)))
	out, _, err := transform.String(t, s)
	if err != nil {
		return strings.Map(func(r rune) rune {
			if unicode.IsControl(r) {
				return -1
			}
			return r
		}, s)
	}
	return out
}
