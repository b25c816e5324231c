package extractor

import (
	"bytes"
	"go/scanner"
	"go/token"
	"iter"

	"github.com/StepaOpa/SQLinter/internal/model"
)

// GoExtractor finds SQL in Go interpreted and raw string literals using the
// standard Go tokenizer.
type GoExtractor struct{}

func NewGoExtractor() *GoExtractor {
	return &GoExtractor{}
}

func (e *GoExtractor) Extract(src []byte) (iter.Seq[model.Candidate], error) {
	return candidates(src, lexGo)
}

func lexGo(src []byte, visit func(literal) bool) error {
	fset := token.NewFileSet()
	file := fset.AddFile("", fset.Base(), len(src))

	var firstErr *model.ExtractionError
	var s scanner.Scanner
	s.Init(file, src, func(pos token.Position, msg string) {
		if firstErr == nil {
			firstErr = &model.ExtractionError{Line: pos.Line, Msg: msg}
		}
	}, 0)

	for {
		pos, tok, lit := s.Scan()
		if tok == token.EOF {
			break
		}
		if tok != token.STRING || firstErr != nil {
			continue
		}
		off := file.Offset(pos)
		end := off + len(lit) - 1
		if src[off] == '`' {
			// the scanner drops '\r' from raw literals, so find the closing quote in src
			closing := bytes.IndexByte(src[off+1:], '`')
			if closing < 0 {
				continue
			}
			end = off + 1 + closing
		}
		if !visit(literal{start: off + 1, end: end}) {
			return nil
		}
	}
	if firstErr != nil {
		return firstErr
	}
	return nil
}
