package letter

import (
	"strings"
	"testing"
	"unicode/utf8"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestClean_StripsMarkup(t *testing.T) {
	in := "<p>Dear Sam,</p>\r\n\r\n<script>alert(1)</script>It's been <b>years</b> & still..."
	got := Clean(in)
	assert.NotContains(t, got, "<")
	assert.NotContains(t, got, "alert")
	assert.Contains(t, got, "It's been years & still...")
	assert.NotContains(t, got, "\r")
}

func TestClean_PlainTextUnchanged(t *testing.T) {
	text := "Dear friend,\n\nWe met in 1999."
	assert.Equal(t, text, Clean("  "+text+"\n"))
}

func TestClean_KeepsAngleBracketsInProse(t *testing.T) {
	tests := []struct {
		in, want string
	}{
		{"Dear <Grandma Rose>,\n\nI promise x<y and <3 always.", "Dear <Grandma Rose>,\n\nI promise x<y and <3 always."},
		{"<Name>, you were right.", "<Name>, you were right."},
		{"<I miss you>", "<I miss you>"},
		{"a < b > c", "a < b > c"},
		{"<p>Dear <Ana>,</p> <3", "Dear <Ana>, <3"},
		{"Love<br/>Leo", "LoveLeo"},
		{`<span class="x">hi</span> & bye`, "hi & bye"},
		{"<!-- note -->Hello", "Hello"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, Clean(tt.in), "Clean(%q)", tt.in)
	}
}

func TestParagraphs_Empty(t *testing.T) {
	assert.Nil(t, Paragraphs(""))
	assert.Nil(t, Paragraphs(" \n\n "))
}

func TestParagraphs_TwoParagraphs(t *testing.T) {
	text := "Dear Ana,\nit has been long.\n\n\nWith love,\nLeo"
	got := Paragraphs(text)
	require.Len(t, got, WantParagraphs)

	assert.Equal(t, "Dear Ana,\nit has been long.", got[0].Text)
	assert.Equal(t, 1, got[0].StartLine)
	assert.Equal(t, 2, got[0].EndLine)

	assert.Equal(t, "With love,\nLeo", got[1].Text)
	assert.Equal(t, 5, got[1].StartLine)
	assert.Equal(t, 6, got[1].EndLine)
}

func TestParagraphs_HeadingStartsBlock(t *testing.T) {
	got := Paragraphs("intro line\n# Title\nbody")
	require.Len(t, got, 2)
	assert.Equal(t, "intro line", got[0].Text)
	assert.Equal(t, "# Title\nbody", got[1].Text)
	assert.Equal(t, 2, got[1].StartLine)
}

func TestExcerpt(t *testing.T) {
	assert.Equal(t, "short text", Excerpt("short   text", 50))

	long := strings.Repeat("word ", 40)
	got := Excerpt(long, 30)
	assert.True(t, strings.HasSuffix(got, "..."))
	assert.LessOrEqual(t, len(got), 33)
	assert.Equal(t, "abc", Excerpt("abc", 0))
}

func TestExcerpt_RuneBoundary(t *testing.T) {
	text := strings.Repeat("é", 20)
	for max := 1; max < len(text); max++ {
		got := Excerpt(text, max)
		assert.True(t, utf8.ValidString(got), "max=%d got %q", max, got)
		assert.True(t, strings.HasSuffix(got, "..."))
		assert.LessOrEqual(t, len(got), max+3)
	}
	assert.Equal(t, "ééééé...", Excerpt(text, 11))
}
