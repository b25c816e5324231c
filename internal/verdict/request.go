package verdict

import (
	"github.com/StepaOpa/SQLinter/internal/model"
	"github.com/StepaOpa/SQLinter/internal/registry"
)

// Query is one candidate as sent to an external engine.
type Query struct {
	ID          string `json:"id"`
	Query       string `json:"query"`
	Line        string `json:"line_content,omitempty"`
	Start       int    `json:"start"`
	End         int    `json:"end"`
	StartLine   int    `json:"start_line"`
	StartColumn int    `json:"start_column"`
	EndLine     int    `json:"end_line"`
	EndColumn   int    `json:"end_column"`
}

// Request is the body handed to an external engine for one file.
type Request struct {
	File    string  `json:"file"`
	Text    string  `json:"text,omitempty"`
	Queries []Query `json:"queries"`
}

// NewRequest describes candidates of path. Ids are the query identities the
// registry will assign, so engines can echo them back.
func NewRequest(path string, text []byte, candidates []model.Candidate, withText bool) Request {
	req := Request{File: path, Queries: make([]Query, 0, len(candidates))}
	if withText {
		req.Text = string(text)
	}
	for _, c := range candidates {
		req.Queries = append(req.Queries, Query{
			ID:          string(registry.NewIdentity(c.Text, path, c.Span.AbsoluteStart)),
			Query:       c.Text,
			Line:        c.LineContent,
			Start:       c.Span.AbsoluteStart,
			End:         c.Span.AbsoluteEnd,
			StartLine:   c.Span.StartLine,
			StartColumn: c.Span.StartColumn,
			EndLine:     c.Span.EndLine,
			EndColumn:   c.Span.EndColumn,
		})
	}
	return req
}
