package model

import "fmt"

// Location represents the physical location of a code segment
type Location struct {
	FilePath string
	Line     int
}

func (l Location) String() string {
	return fmt.Sprintf("%s:%d", l.FilePath, l.Line)
}

// SourceSpan locates a region of one text snapshot.
// Absolute offsets are UTF-8 byte offsets, end exclusive.
// Lines are 1-based, columns are 0-based UTF-16 code units; EndColumn is exclusive.
type SourceSpan struct {
	AbsoluteStart int `json:"start"`
	AbsoluteEnd   int `json:"end"`
	StartLine     int `json:"start_line"`
	StartColumn   int `json:"start_column"`
	EndLine       int `json:"end_line"`
	EndColumn     int `json:"end_column"`
}

func (s SourceSpan) Len() int {
	return s.AbsoluteEnd - s.AbsoluteStart
}

func (s SourceSpan) String() string {
	return fmt.Sprintf("%d:%d-%d:%d", s.StartLine, s.StartColumn, s.EndLine, s.EndColumn)
}

// Overlaps reports whether both spans share at least one byte. Empty spans
// overlap a span that strictly contains their offset.
func (s SourceSpan) Overlaps(o SourceSpan) bool {
	if s.AbsoluteStart == s.AbsoluteEnd {
		return o.AbsoluteStart < s.AbsoluteStart && s.AbsoluteStart < o.AbsoluteEnd
	}
	if o.AbsoluteStart == o.AbsoluteEnd {
		return s.AbsoluteStart < o.AbsoluteStart && o.AbsoluteStart < s.AbsoluteEnd
	}
	return s.AbsoluteStart < o.AbsoluteEnd && o.AbsoluteStart < s.AbsoluteEnd
}

// Candidate is an SQL literal found by an extractor. Text is the raw literal
// body, so text[Span.AbsoluteStart:Span.AbsoluteEnd] == Text.
type Candidate struct {
	Text        string
	Span        SourceSpan
	LineContent string // source line the literal starts on, for display
}

// QueryIdentity is a stable key for one query slot, see registry.NewIdentity.
type QueryIdentity string

// VerdictKind is the judgement a verdict source reached for one query.
type VerdictKind int

const (
	VerdictUnknown VerdictKind = iota
	VerdictCorrect
	VerdictError
	VerdictWarning
)

func (k VerdictKind) String() string {
	switch k {
	case VerdictCorrect:
		return "Correct"
	case VerdictError:
		return "Error"
	case VerdictWarning:
		return "Warning"
	default:
		return "Unknown"
	}
}

// ParseVerdictKind maps a wire tag onto a VerdictKind. Unrecognised tags are
// Unknown, never an error.
func ParseVerdictKind(tag string) VerdictKind {
	switch tag {
	case "True", "true", "Correct", "correct", "OK", "ok":
		return VerdictCorrect
	case "Error", "error", "False", "false":
		return VerdictError
	case "Warning", "warning":
		return VerdictWarning
	default:
		return VerdictUnknown
	}
}

func (k VerdictKind) MarshalText() ([]byte, error) {
	return []byte(k.String()), nil
}

func (k *VerdictKind) UnmarshalText(b []byte) error {
	*k = ParseVerdictKind(string(b))
	return nil
}

// Verdict is one verdict source output, aligned with its input candidate.
type Verdict struct {
	Candidate  Candidate
	Kind       VerdictKind
	Reason     string
	Correction *string
}

// QueryRecord is a candidate plus its verdict, owned by the registry.
type QueryRecord struct {
	Identity   QueryIdentity `json:"id"`
	QueryText  string        `json:"query"`
	Verdict    VerdictKind   `json:"verdict"`
	Reason     string        `json:"reason"`
	Correction *string       `json:"correction,omitempty"`
	Span       SourceSpan    `json:"span"`
	FilePath   string        `json:"file"`
}

// Fixable reports whether the record carries a correction that differs from
// the current query text.
func (r QueryRecord) Fixable() bool {
	return r.Correction != nil && *r.Correction != r.QueryText
}

func (r QueryRecord) Location() Location {
	return Location{FilePath: r.FilePath, Line: r.Span.StartLine}
}

// RiskLevel defines the severity of an audit finding
type RiskLevel string

const (
	RiskLevelFatal      RiskLevel = "FATAL"
	RiskLevelWarning    RiskLevel = "WARNING"
	RiskLevelSuggestion RiskLevel = "SUGGESTION"
)

// Issue represents a potential problem found by the auditor
type Issue struct {
	Type       string // e.g., "NO_WHERE_CLAUSE", "INDEX_MISSING"
	Level      RiskLevel
	Message    string
	Suggestion string
	Candidate  Candidate
}

// SchemaCtx represents the loaded database schema context
type SchemaCtx struct {
	Tables map[string]*Table
}

type Table struct {
	Name    string
	Columns map[string]*Column
	Indexes []*Index
}

type Column struct {
	Name string
	Type string // Simplified type representation
}

type Index struct {
	Name    string
	Columns []string // Ordered list of column names in the index
	Unique  bool
}
