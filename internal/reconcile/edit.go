package reconcile

import (
	"fmt"

	"github.com/StepaOpa/SQLinter/internal/model"
)

// Disposition says what happened to a span after an edit.
type Disposition int

const (
	Unchanged Disposition = iota // span lies entirely before the edit
	Shifted                      // span starts at or after the edit end
	Dropped                      // span overlaps the edit; re-extract to recover it
)

func (d Disposition) String() string {
	switch d {
	case Unchanged:
		return "unchanged"
	case Shifted:
		return "shifted"
	default:
		return "dropped"
	}
}

// Edit replaces old[Start:End] with NewText.
type Edit struct {
	Start   int
	End     int
	NewText string
}

// Delta is the change in length, in bytes, the edit causes.
func (e Edit) Delta() int {
	return len(e.NewText) - (e.End - e.Start)
}

// EditFor returns the edit that replaces span with newText.
func EditFor(span model.SourceSpan, newText string) Edit {
	return Edit{Start: span.AbsoluteStart, End: span.AbsoluteEnd, NewText: newText}
}

// ApplyReplacement replaces the region covered by span with newText and
// returns the new full text and the span that now covers newText.
func ApplyReplacement(text string, span model.SourceSpan, newText string) (string, model.SourceSpan, error) {
	out, err := Apply(text, EditFor(span, newText))
	if err != nil {
		return text, span, err
	}
	replaced, err := out.Span(span.AbsoluteStart, span.AbsoluteStart+len(newText))
	if err != nil {
		return text, span, err
	}
	return out.String(), replaced, nil
}

// Apply performs the edit and indexes the result.
func Apply(text string, e Edit) (*Text, error) {
	if e.Start < 0 || e.End > len(text) || e.Start > e.End {
		return nil, fmt.Errorf("edit [%d,%d) out of bounds for text of %d bytes", e.Start, e.End, len(text))
	}
	return New(text[:e.Start] + e.NewText + text[e.End:]), nil
}

// Shift rebases a span computed against the pre-edit text onto after, the
// post-edit text. Spans ending at or before the edit start are unchanged,
// spans starting at or after the edit end move by e.Delta(), and everything
// else is dropped.
func Shift(after *Text, span model.SourceSpan, e Edit) (model.SourceSpan, Disposition) {
	switch {
	case span.AbsoluteEnd <= e.Start:
		return span, Unchanged
	case span.AbsoluteStart >= e.End:
		d := e.Delta()
		moved, err := after.Span(span.AbsoluteStart+d, span.AbsoluteEnd+d)
		if err != nil {
			return model.SourceSpan{}, Dropped
		}
		return moved, Shifted
	default:
		return model.SourceSpan{}, Dropped
	}
}
