// Package reconcile maps between byte offsets and editor positions and keeps
// spans valid across in-place text replacements.
//
// Offsets are UTF-8 byte offsets. Lines are 1-based. Columns count UTF-16 code
// units since the last '\n', which is what editor surfaces use. Only '\n'
// terminates a line, so in CRLF text the '\r' is the last unit of its line.
package reconcile

import (
	"fmt"
	"sort"
	"unicode/utf16"
	"unicode/utf8"

	"github.com/StepaOpa/SQLinter/internal/model"
)

// Position is a line/column pair in one text snapshot.
type Position struct {
	Line   int // 1-based
	Column int // UTF-16 code units, 0-based
}

func (p Position) String() string {
	return fmt.Sprintf("%d:%d", p.Line, p.Column)
}

// Text is a text snapshot with a line index.
type Text struct {
	s          string
	lineStarts []int
}

// New indexes text. The index is only valid for this exact snapshot.
func New(text string) *Text {
	starts := make([]int, 1, 64)
	for i := 0; i < len(text); i++ {
		if text[i] == '\n' {
			starts = append(starts, i+1)
		}
	}
	return &Text{s: text, lineStarts: starts}
}

func (t *Text) String() string { return t.s }

func (t *Text) Len() int { return len(t.s) }

// LineCount returns the number of lines; an empty text has one line.
func (t *Text) LineCount() int { return len(t.lineStarts) }

// Line returns the content of a 1-based line without its '\n'.
func (t *Text) Line(line int) string {
	if line < 1 || line > len(t.lineStarts) {
		return ""
	}
	start, end := t.lineBounds(line)
	return t.s[start:end]
}

func (t *Text) lineBounds(line int) (int, int) {
	start := t.lineStarts[line-1]
	end := len(t.s)
	if line < len(t.lineStarts) {
		end = t.lineStarts[line] - 1
	}
	return start, end
}

// Position converts an offset to a position. Offsets are clamped to
// [0, len]; an offset inside a multi-byte rune maps to the rune's start.
func (t *Text) Position(offset int) Position {
	if offset < 0 {
		offset = 0
	}
	if offset > len(t.s) {
		offset = len(t.s)
	}
	idx := sort.Search(len(t.lineStarts), func(i int) bool { return t.lineStarts[i] > offset }) - 1
	lineStart := t.lineStarts[idx]
	units := 0
	for off := lineStart; off < offset; {
		r, size := utf8.DecodeRuneInString(t.s[off:])
		if off+size > offset {
			break
		}
		units += unitLen(r)
		off += size
	}
	return Position{Line: idx + 1, Column: units}
}

// Offset converts a position to an offset. Lines past the end map to len;
// columns past the end of the line map to the line end. A column that falls
// inside a surrogate pair maps to the start of that rune.
func (t *Text) Offset(pos Position) int {
	if pos.Line < 1 || pos.Column < 0 {
		return 0
	}
	if pos.Line > len(t.lineStarts) {
		return len(t.s)
	}
	start, end := t.lineBounds(pos.Line)
	units := 0
	off := start
	for off < end && units < pos.Column {
		r, size := utf8.DecodeRuneInString(t.s[off:end])
		need := unitLen(r)
		if units+need > pos.Column {
			break
		}
		units += need
		off += size
	}
	return off
}

// Span builds a SourceSpan for [start, end).
func (t *Text) Span(start, end int) (model.SourceSpan, error) {
	if start < 0 || end > len(t.s) || start > end {
		return model.SourceSpan{}, fmt.Errorf("range [%d,%d) out of bounds for text of %d bytes", start, end, len(t.s))
	}
	sp := t.Position(start)
	ep := t.Position(end)
	return model.SourceSpan{
		AbsoluteStart: start,
		AbsoluteEnd:   end,
		StartLine:     sp.Line,
		StartColumn:   sp.Column,
		EndLine:       ep.Line,
		EndColumn:     ep.Column,
	}, nil
}

// unitLen is the UTF-16 length of r; invalid bytes count as one unit.
func unitLen(r rune) int {
	n := utf16.RuneLen(r)
	if n < 0 {
		return 1
	}
	return n
}

// OffsetToPosition is New(text).Position(offset).
func OffsetToPosition(text string, offset int) Position {
	return New(text).Position(offset)
}

// PositionToOffset is New(text).Offset(pos).
func PositionToOffset(text string, pos Position) int {
	return New(text).Offset(pos)
}

// SpanForRange is New(text).Span(start, end).
func SpanForRange(text string, start, end int) (model.SourceSpan, error) {
	return New(text).Span(start, end)
}
