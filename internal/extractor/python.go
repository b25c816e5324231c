package extractor

import (
	"bytes"
	"iter"
	"strings"

	"github.com/StepaOpa/SQLinter/internal/model"
)

// PythonExtractor finds SQL in Python string literals, including f-strings,
// raw and byte strings, and triple-quoted blocks.
type PythonExtractor struct{}

func NewPythonExtractor() *PythonExtractor {
	return &PythonExtractor{}
}

func (e *PythonExtractor) Extract(src []byte) (iter.Seq[model.Candidate], error) {
	return candidates(src, lexPython)
}

var pythonPrefixes = map[string]bool{
	"r": true, "u": true, "b": true, "f": true,
	"br": true, "rb": true, "fr": true, "rf": true,
}

func lexPython(src []byte, visit func(literal) bool) error {
	i := 0
	for i < len(src) {
		c := src[i]
		switch {
		case c == '#':
			nl := bytes.IndexByte(src[i:], '\n')
			if nl < 0 {
				return nil
			}
			i += nl + 1
		case c == '\'' || c == '"':
			l, next, err := lexPythonString(src, i)
			if err != nil {
				return err
			}
			if !visit(l) {
				return nil
			}
			i = next
		case isIdentByte(c):
			j := i
			for j < len(src) && isIdentByte(src[j]) {
				j++
			}
			if j < len(src) && (src[j] == '\'' || src[j] == '"') && pythonPrefixes[strings.ToLower(string(src[i:j]))] {
				l, next, err := lexPythonString(src, j)
				if err != nil {
					return err
				}
				if !visit(l) {
					return nil
				}
				i = next
				continue
			}
			i = j
		default:
			i++
		}
	}
	return nil
}

// lexPythonString lexes the string whose opening quote is at src[at].
func lexPythonString(src []byte, at int) (literal, int, error) {
	q := src[at]
	triple := at+2 < len(src) && src[at+1] == q && src[at+2] == q
	width := 1
	if triple {
		width = 3
	}
	start := at + width
	for j := start; j < len(src); {
		switch c := src[j]; {
		case c == '\\':
			j += 2
		case c == '\n' && !triple:
			return literal{}, 0, unterminated(src, at)
		case c == q && !triple:
			return literal{start: start, end: j}, j + 1, nil
		case c == q && j+2 < len(src) && src[j+1] == q && src[j+2] == q:
			return literal{start: start, end: j}, j + 3, nil
		default:
			j++
		}
	}
	return literal{}, 0, unterminated(src, at)
}

func unterminated(src []byte, at int) error {
	return &model.ExtractionError{
		Line: bytes.Count(src[:at], []byte{'\n'}) + 1,
		Msg:  "unterminated string literal",
	}
}

func isIdentByte(c byte) bool {
	return c == '_' || c >= 'a' && c <= 'z' || c >= 'A' && c <= 'Z' || c >= '0' && c <= '9' || c >= 0x80
}
