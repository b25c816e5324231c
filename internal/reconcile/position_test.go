package reconcile

import (
	"math/rand"
	"strings"
	"testing"
	"unicode/utf8"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestOffsetToPosition(t *testing.T) {
	text := "ab\ncd\r\n\né🙂x"

	tests := []struct {
		name   string
		offset int
		want   Position
	}{
		{name: "start", offset: 0, want: Position{Line: 1, Column: 0}},
		{name: "mid first line", offset: 1, want: Position{Line: 1, Column: 1}},
		{name: "first newline", offset: 2, want: Position{Line: 1, Column: 2}},
		{name: "second line", offset: 3, want: Position{Line: 2, Column: 0}},
		{name: "carriage return counts", offset: 6, want: Position{Line: 2, Column: 3}},
		{name: "empty line", offset: 7, want: Position{Line: 3, Column: 0}},
		{name: "two byte rune is one unit", offset: 10, want: Position{Line: 4, Column: 1}},
		{name: "astral rune is two units", offset: 14, want: Position{Line: 4, Column: 3}},
		{name: "end of text", offset: len(text), want: Position{Line: 4, Column: 4}},
		{name: "negative clamps", offset: -5, want: Position{Line: 1, Column: 0}},
		{name: "past end clamps", offset: 100, want: Position{Line: 4, Column: 4}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, OffsetToPosition(text, tt.offset))
		})
	}
}

func TestPositionToOffset_Clamps(t *testing.T) {
	text := "abc\n🙂"

	assert.Equal(t, 0, PositionToOffset(text, Position{Line: 0, Column: 3}))
	assert.Equal(t, 3, PositionToOffset(text, Position{Line: 1, Column: 99}))
	assert.Equal(t, len(text), PositionToOffset(text, Position{Line: 9, Column: 0}))
	// column 1 is inside the surrogate pair
	assert.Equal(t, 4, PositionToOffset(text, Position{Line: 2, Column: 1}))
	assert.Equal(t, len(text), PositionToOffset(text, Position{Line: 2, Column: 2}))
}

func TestPositionRoundTrip_Property(t *testing.T) {
	rng := rand.New(rand.NewSource(7))
	alphabet := []string{"a", "Z", " ", "\n", "\r\n", "é", "日", "🙂", "\t", "'", "\""}

	for iter := 0; iter < 200; iter++ {
		var b strings.Builder
		n := rng.Intn(60)
		for i := 0; i < n; i++ {
			b.WriteString(alphabet[rng.Intn(len(alphabet))])
		}
		text := b.String()
		idx := New(text)

		for off := 0; off <= len(text); off++ {
			if off < len(text) && !utf8.RuneStart(text[off]) {
				continue
			}
			pos := idx.Position(off)
			require.Equalf(t, off, idx.Offset(pos), "text %q offset %d pos %v", text, off, pos)
		}
	}
}

func TestSpanForRange(t *testing.T) {
	text := "x = \"SELECT 1\"\ny = 'DELETE\nFROM t'"

	start := strings.Index(text, "DELETE")
	end := start + len("DELETE\nFROM t")
	span, err := SpanForRange(text, start, end)
	require.NoError(t, err)

	assert.Equal(t, start, span.AbsoluteStart)
	assert.Equal(t, end, span.AbsoluteEnd)
	assert.Equal(t, 2, span.StartLine)
	assert.Equal(t, 5, span.StartColumn)
	assert.Equal(t, 3, span.EndLine)
	assert.Equal(t, 6, span.EndColumn, "end column is exclusive")
	assert.Equal(t, "DELETE\nFROM t", text[span.AbsoluteStart:span.AbsoluteEnd])

	_, err = SpanForRange(text, 5, 2)
	assert.Error(t, err)
	_, err = SpanForRange(text, 0, len(text)+1)
	assert.Error(t, err)

	empty, err := SpanForRange(text, 3, 3)
	require.NoError(t, err)
	assert.Equal(t, 0, empty.Len())
	assert.Equal(t, empty.StartColumn, empty.EndColumn)
}

func TestText_Line(t *testing.T) {
	idx := New("one\ntwo\r\nthree")
	assert.Equal(t, 3, idx.LineCount())
	assert.Equal(t, "one", idx.Line(1))
	assert.Equal(t, "two\r", idx.Line(2))
	assert.Equal(t, "three", idx.Line(3))
	assert.Equal(t, "", idx.Line(4))
}
