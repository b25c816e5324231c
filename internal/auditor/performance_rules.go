package auditor

import (
	"math"
	"strings"

	"fortio.org/safecast"
	"github.com/pingcap/tidb/parser/ast"
	"github.com/pingcap/tidb/parser/opcode"
	"github.com/pingcap/tidb/parser/test_driver"

	"github.com/StepaOpa/SQLinter/internal/model"
)

// DeepPaginationRule detects LIMIT offset, count where offset is large
type DeepPaginationRule struct {
	Threshold int64
}

func (r *DeepPaginationRule) Name() string { return "deep_pagination" }

func (r *DeepPaginationRule) Check(c *model.Candidate, node ast.StmtNode, schema *model.SchemaCtx) ([]model.Issue, error) {
	var issues []model.Issue
	limitThreshold := r.Threshold
	if limitThreshold == 0 {
		limitThreshold = 5000 // default
	}

	// Helper to check Limit node
	checkLimit := func(limit *ast.Limit) {
		if limit != nil && limit.Offset != nil {
			if val, ok := limit.Offset.(*test_driver.ValueExpr); ok {
				if intVal, ok := offsetValue(val); ok && intVal > limitThreshold {
					issues = append(issues, model.Issue{
						Type:       "DEEP_PAGINATION",
						Level:      model.RiskLevelWarning,
						Message:    "Deep pagination detected (High Offset)",
						Suggestion: "Use keyset pagination (WHERE id > last_id) instead of OFFSET.",
						Candidate:  *c,
					})
				}
			}
		}
	}

	switch stmt := node.(type) {
	case *ast.SelectStmt:
		checkLimit(stmt.Limit)
	case *ast.SetOprStmt:
		checkLimit(stmt.Limit)
	}

	return issues, nil
}

// offsetValue reads an integer literal; the grammar stores LIMIT operands as
// uint64.
func offsetValue(val *test_driver.ValueExpr) (int64, bool) {
	switch v := val.GetValue().(type) {
	case int64:
		return v, true
	case uint64:
		n, err := safecast.Conv[int64](v)
		if err != nil {
			return math.MaxInt64, true
		}
		return n, true
	default:
		return 0, false
	}
}

// NegativeQueryRule detects !=, NOT IN, LIKE '%...'
type NegativeQueryRule struct{}

func (r *NegativeQueryRule) Name() string { return "negative_query" }

func (r *NegativeQueryRule) Check(c *model.Candidate, node ast.StmtNode, schema *model.SchemaCtx) ([]model.Issue, error) {
	var issues []model.Issue

	// We use a visitor to find expressions anywhere in the statement
	v := &negativeVisitor{issues: &issues, c: c}
	node.Accept(v)

	return issues, nil
}

type negativeVisitor struct {
	issues *[]model.Issue
	c      *model.Candidate
}

func (v *negativeVisitor) Enter(in ast.Node) (ast.Node, bool) {
	if pattern, ok := in.(*ast.PatternInExpr); ok && pattern.Not {
		*v.issues = append(*v.issues, model.Issue{
			Type:       "NEGATIVE_QUERY",
			Level:      model.RiskLevelWarning,
			Message:    "Avoid using NOT IN",
			Suggestion: "Use NOT EXISTS or LEFT JOIN ... IS NULL which are often better optimized.",
			Candidate:  *v.c,
		})
	}

	if binOp, ok := in.(*ast.BinaryOperationExpr); ok {
		if binOp.Op == opcode.NE { // !=
			*v.issues = append(*v.issues, model.Issue{
				Type:       "NEGATIVE_QUERY",
				Level:      model.RiskLevelWarning,
				Message:    "Avoid using != (Not Equal)",
				Suggestion: "Negative comparison often prevents index usage.",
				Candidate:  *v.c,
			})
		}
	}

	if pattern, ok := in.(*ast.PatternLikeOrIlikeExpr); ok {
		// Check for leading wildcard
		if strVal, ok := pattern.Pattern.(*test_driver.ValueExpr); ok {
			s := strVal.GetString()
			if strings.HasPrefix(s, "%") {
				*v.issues = append(*v.issues, model.Issue{
					Type:       "LEADING_WILDCARD",
					Level:      model.RiskLevelWarning,
					Message:    "LIKE query with leading wildcard",
					Suggestion: "Leading wildcards confuse the optimizer and prevent index usage (Full Table Scan).",
					Candidate:  *v.c,
				})
			}
		}
	}

	return in, false
}

func (v *negativeVisitor) Leave(in ast.Node) (ast.Node, bool) {
	return in, true
}
