package extractor

import (
	"errors"
	"fmt"
	"iter"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strings"

	"github.com/StepaOpa/SQLinter/internal/model"
	"github.com/StepaOpa/SQLinter/internal/reconcile"
)

// literal is the body of one string literal, as byte offsets into the source.
type literal struct {
	start, end int
}

// lexer reports every string literal body in src, in source order, until
// visit returns false. It returns an *model.ExtractionError on malformed input.
type lexer func(src []byte, visit func(literal) bool) error

// candidates validates src with lex and returns a sequence that re-lexes on
// every iteration, keeping only SQL-looking bodies.
func candidates(src []byte, lex lexer) (iter.Seq[model.Candidate], error) {
	if err := lex(src, func(literal) bool { return true }); err != nil {
		return empty, err
	}
	return func(yield func(model.Candidate) bool) {
		var text *reconcile.Text
		_ = lex(src, func(l literal) bool {
			body := string(src[l.start:l.end])
			if !IsSQL(body) {
				return true
			}
			if text == nil {
				text = reconcile.New(string(src))
			}
			span, err := text.Span(l.start, l.end)
			if err != nil {
				return true
			}
			return yield(model.Candidate{
				Text:        body,
				Span:        span,
				LineContent: strings.TrimRight(text.Line(span.StartLine), "\r"),
			})
		})
	}, nil
}

func empty(func(model.Candidate) bool) {}

// RegexExtractor is a basic extractor using regular expressions
type RegexExtractor struct {
}

func NewRegexExtractor() *RegexExtractor {
	return &RegexExtractor{}
}

// Patterns for different quote types
// Note: We use non-greedy *? to stop at the first closing quote
// We can't use backreferences in Go regexp (RE2)
var (
	doubleQuoteSQL = regexp.MustCompile(`"(?i)(?:` + statementKeywords + `)\b[^"\n]*?"`)
	singleQuoteSQL = regexp.MustCompile(`'(?i)(?:` + statementKeywords + `)\b[^'\n]*?'`)
	backTickSQL    = regexp.MustCompile("`(?i)(?:" + statementKeywords + ")\\b[^`]*?`")
)

func (e *RegexExtractor) Extract(src []byte) (iter.Seq[model.Candidate], error) {
	return candidates(src, lexRegex)
}

// lexRegex reports quoted strings that open with a statement keyword. Matches
// of different quote styles may nest; the earliest one wins.
func lexRegex(src []byte, visit func(literal) bool) error {
	var found []literal
	for _, re := range []*regexp.Regexp{doubleQuoteSQL, singleQuoteSQL, backTickSQL} {
		for _, m := range re.FindAllIndex(src, -1) {
			if m[1]-m[0] >= 2 {
				// Strip quotes
				found = append(found, literal{start: m[0] + 1, end: m[1] - 1})
			}
		}
	}
	sort.Slice(found, func(i, j int) bool { return found[i].start < found[j].start })

	last := -1
	for _, l := range found {
		if l.start-1 < last {
			continue
		}
		last = l.end + 1
		if !visit(l) {
			return nil
		}
	}
	return nil
}

// Manager selects the appropriate extractor based on file extension
type Manager struct {
	extractors map[string]model.Extractor
	fallback   model.Extractor
}

func NewManager() *Manager {
	return &Manager{
		extractors: make(map[string]model.Extractor),
		fallback:   NewRegexExtractor(),
	}
}

// NewDefaultManager registers the language-aware extractors.
func NewDefaultManager() *Manager {
	mgr := NewManager()
	mgr.Register("py", NewPythonExtractor())
	mgr.Register("pyi", NewPythonExtractor())
	mgr.Register("go", NewGoExtractor())
	return mgr
}

func (m *Manager) Register(ext string, extr model.Extractor) {
	m.extractors[strings.ToLower(strings.TrimPrefix(ext, "."))] = extr
}

// For returns the extractor used for filePath.
func (m *Manager) For(filePath string) model.Extractor {
	ext := strings.ToLower(strings.TrimPrefix(filepath.Ext(filePath), "."))
	if extr, ok := m.extractors[ext]; ok {
		return extr
	}
	return m.fallback
}

// Extract runs the extractor for filePath over content. The path only selects
// the extractor and labels errors.
func (m *Manager) Extract(filePath string, content []byte) (iter.Seq[model.Candidate], error) {
	seq, err := m.For(filePath).Extract(content)
	if err != nil {
		var xe *model.ExtractionError
		if errors.As(err, &xe) && xe.FilePath == "" {
			xe.FilePath = filePath
		}
		return empty, err
	}
	return seq, nil
}

// ExtractFile reads filePath and extracts from its content.
func (m *Manager) ExtractFile(filePath string) ([]byte, iter.Seq[model.Candidate], error) {
	content, err := os.ReadFile(filePath)
	if err != nil {
		return nil, empty, fmt.Errorf("read %s: %w", filePath, err)
	}
	seq, err := m.Extract(filePath, content)
	return content, seq, err
}
