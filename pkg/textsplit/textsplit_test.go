package textsplit

import (
	"strings"
	"testing"
	"unicode/utf8"

	"github.com/stretchr/testify/assert"
)

func TestSplitShortTextIsSingleChunk(t *testing.T) {
	chunks := Split("hello\nworld", 3800)
	assert.Equal(t, []string{"hello\nworld"}, chunks)
}

func TestSplitEmpty(t *testing.T) {
	assert.Nil(t, Split("", 100))
}

func TestSplitPrefersLateLineBreak(t *testing.T) {
	text := strings.Repeat("a", 80) + "\n" + strings.Repeat("b", 50)
	chunks := Split(text, 100)

	assert.Len(t, chunks, 2)
	assert.Equal(t, strings.Repeat("a", 80), chunks[0])
	assert.Equal(t, "\n"+strings.Repeat("b", 50), chunks[1])
}

func TestSplitIgnoresEarlyLineBreak(t *testing.T) {
	text := strings.Repeat("a", 10) + "\n" + strings.Repeat("b", 200)
	chunks := Split(text, 100)

	assert.Equal(t, 100, utf8.RuneCountInString(chunks[0]))
	assert.Equal(t, text, strings.Join(chunks, ""))
}

func TestSplitReassemblesAndRespectsMax(t *testing.T) {
	cases := map[string]string{
		"no newlines":     strings.Repeat("x", 9000),
		"dense newlines":  strings.Repeat("line of text\n", 900),
		"sparse newlines": strings.Repeat(strings.Repeat("y", 3000)+"\n", 5),
		"leading newline": "\n" + strings.Repeat("z", 5000),
		"multibyte":       strings.Repeat("é✅ ligne\n", 1200),
	}

	for name, text := range cases {
		t.Run(name, func(t *testing.T) {
			chunks := Split(text, 3800)
			assert.Equal(t, text, strings.Join(chunks, ""))
			for _, chunk := range chunks {
				assert.LessOrEqual(t, utf8.RuneCountInString(chunk), 3800)
				assert.NotEmpty(t, chunk)
			}
		})
	}
}

func TestSplitTinyMaxSizeTerminates(t *testing.T) {
	chunks := Split("\n\n\nabc", 1)
	assert.Equal(t, []string{"\n", "\n", "\n", "a", "b", "c"}, chunks)
}

func TestHead(t *testing.T) {
	head, rest := Head("abcdef", 4)
	assert.Equal(t, "abcd", head)
	assert.Equal(t, "ef", rest)

	head, rest = Head("abc", 4)
	assert.Equal(t, "abc", head)
	assert.Empty(t, rest)
}
