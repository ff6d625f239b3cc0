// Package letter post-processes model-written letters: markup is stripped
// and the text is split into paragraphs for display.
package letter

import (
	"html"
	"regexp"
	"strings"
	"unicode/utf8"

	"github.com/microcosm-cc/bluemonday"
)

// Paragraphs the text model is asked to write.
const WantParagraphs = 2

var strict = bluemonday.StrictPolicy()

// markup matches HTML comments and lowercase tags of real HTML elements
// with well-formed attributes. Any other '<' in a letter is prose, as in
// "x<y" or "<Grandma>".
var markup = regexp.MustCompile(`<!--[\s\S]*?-->|</?(?:a|abbr|b|blockquote|body|br|center|code|del|div|em|font|footer|form|h[1-6]|head|header|hr|html|i|iframe|img|input|ins|li|link|mark|meta|noscript|object|ol|p|pre|s|script|section|small|span|strike|strong|style|sub|sup|svg|table|tbody|td|template|textarea|th|thead|title|tr|u|ul)` + attrs + `\s*/?>`)

const attrs = `(?:\s+[a-zA-Z_:][-\w:.]*(?:\s*=\s*(?:"[^"]*"|'[^']*'|[^\s"'<>=]+))?)*`

// Paragraph is one block of a letter with its position in the cleaned text.
type Paragraph struct {
	Text      string
	StartLine int
	EndLine   int
}

// Clean removes any HTML the model emitted, normalises line endings and
// trims surrounding whitespace. The result is plain text.
func Clean(text string) string {
	text = strings.ReplaceAll(text, "\r\n", "\n")
	text = html.UnescapeString(strict.Sanitize(escapeProse(text)))
	return strings.TrimSpace(text)
}

// escapeProse entity-encodes every '<' that does not open a markup match so
// the sanitizer keeps it as text.
func escapeProse(text string) string {
	if !strings.Contains(text, "<") {
		return text
	}
	var b strings.Builder
	last := 0
	for _, m := range markup.FindAllStringIndex(text, -1) {
		b.WriteString(strings.ReplaceAll(text[last:m[0]], "<", "&lt;"))
		b.WriteString(text[m[0]:m[1]])
		last = m[1]
	}
	b.WriteString(strings.ReplaceAll(text[last:], "<", "&lt;"))
	return b.String()
}

// Paragraphs splits text on blank lines and heading lines.
func Paragraphs(text string) []Paragraph {
	text = strings.TrimSpace(strings.ReplaceAll(text, "\r\n", "\n"))
	if text == "" {
		return nil
	}

	lines := strings.Split(text, "\n")
	var out []Paragraph
	var current []string
	startLine := 1

	flush := func(endLine int) {
		if len(current) == 0 {
			return
		}
		t := strings.TrimSpace(strings.Join(current, "\n"))
		if t != "" {
			out = append(out, Paragraph{Text: t, StartLine: startLine, EndLine: endLine})
		}
		current = nil
	}

	for i, line := range lines {
		lineNum := i + 1
		trimmed := strings.TrimSpace(line)

		if trimmed == "" {
			flush(lineNum - 1)
			startLine = lineNum + 1
			continue
		}
		if strings.HasPrefix(trimmed, "#") && len(current) > 0 {
			flush(lineNum - 1)
			startLine = lineNum
		}
		current = append(current, line)
	}
	flush(len(lines))

	return out
}

// Excerpt shortens text to at most max bytes on a word boundary, or a rune
// boundary when no word break is close, adding an ellipsis when cut.
func Excerpt(text string, max int) string {
	text = strings.Join(strings.Fields(text), " ")
	if max <= 0 || len(text) <= max {
		return text
	}
	for max > 0 && !utf8.RuneStart(text[max]) {
		max--
	}
	cut := text[:max]
	if i := strings.LastIndexByte(cut, ' '); i > max/2 {
		cut = cut[:i]
	}
	return strings.TrimSpace(cut) + "..."
}
