package model

import (
	"context"
	"iter"

	"github.com/pingcap/tidb/parser/ast"
)

// Extractor finds SQL literals in source text.
type Extractor interface {
	// Extract returns a lazy, restartable sequence of candidates. On malformed
	// input the sequence is empty and the error is an *ExtractionError.
	Extract(src []byte) (iter.Seq[Candidate], error)
}

// VerdictSource judges candidates. The result has exactly one verdict per
// candidate, in input order.
type VerdictSource interface {
	Name() string
	Analyze(ctx context.Context, filePath string, text []byte, candidates []Candidate) ([]Verdict, error)
}

// CredentialGated is implemented by verdict sources that must not be invoked
// without a credential.
type CredentialGated interface {
	NeedsCredential() bool
}

// Rule represents a single audit logic unit
type Rule interface {
	// Name returns the unique identifier of the rule
	Name() string
	// Check examines the candidate and returns any issues found
	// It receives the candidate, the parsed AST, and the Schema context
	Check(c *Candidate, node ast.StmtNode, schema *SchemaCtx) ([]Issue, error)
}

// Reporter defines how to output results
type Reporter interface {
	Report(records []QueryRecord) error
}
