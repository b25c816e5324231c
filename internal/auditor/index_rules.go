package auditor

import (
	"fmt"
	"sort"

	"github.com/pingcap/tidb/parser/ast"

	"github.com/StepaOpa/SQLinter/internal/model"
	"github.com/StepaOpa/SQLinter/internal/parser"
)

// IndexMissRule checks if WHERE usage aligns with available indexes
type IndexMissRule struct{}

func (r *IndexMissRule) Name() string { return "index_miss" }

func (r *IndexMissRule) Check(c *model.Candidate, node ast.StmtNode, schema *model.SchemaCtx) ([]model.Issue, error) {
	var issues []model.Issue

	// 1. Identify Target Table Name and WHERE clause
	tableName, whereExpr := parser.Target(node)
	if tableName == "" || whereExpr == nil {
		return nil, nil // Nothing to check or complex query
	}

	// 2. Lookup Table in Schema
	table, ok := parser.LookupTable(schema, tableName)
	if !ok {
		// Table not found in schema, maybe alias or missing schema
		return nil, nil
	}

	// 3. Extract Columns used in WHERE as simple Equality or Range
	// We only care about columns that are candidates for indexing (e.g. A=1, A IN (..), A > 1)
	usedCols := make(map[string]bool)
	v := &columnVisitor{cols: usedCols}
	whereExpr.Accept(v)

	if len(usedCols) == 0 {
		return nil, nil // No columns found in where? strange
	}

	// 4. Check against Indexes
	// Strategy: At least ONE index must have its FIRST column present in usedCols.
	// This ensures we are not doing a full table scan (usually).
	hasHit := false

	if len(table.Indexes) == 0 {
		// Column-level and table-level keys both land in Indexes.
		issues = append(issues, model.Issue{
			Type:       "NO_INDEXES_DEFINED",
			Level:      model.RiskLevelWarning,
			Message:    fmt.Sprintf("Table '%s' has no indexes defined.", tableName),
			Suggestion: "Add indexes to optimize queries.",
			Candidate:  *c,
		})
		return issues, nil
	}

	for _, idx := range table.Indexes {
		if len(idx.Columns) > 0 {
			firstCol := idx.Columns[0]
			if usedCols[firstCol] {
				hasHit = true
				break
			}
		}
	}

	if !hasHit {
		// Construct error message with available indexes
		var indexStr string
		for _, idx := range table.Indexes {
			indexStr += fmt.Sprintf("[%s(%v)] ", idx.Name, idx.Columns)
		}

		issues = append(issues, model.Issue{
			Type:       "INDEX_MISS",
			Level:      model.RiskLevelWarning,
			Message:    fmt.Sprintf("Query on '%s' does not hit any index prefix. WHERE uses %v but available indexes are: %s", tableName, mapKeys(usedCols), indexStr),
			Suggestion: "Ensure the WHERE clause filters on the leftmost column of an index.",
			Candidate:  *c,
		})
	}

	return issues, nil
}

func mapKeys(m map[string]bool) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

type columnVisitor struct {
	cols map[string]bool
}

func (v *columnVisitor) Enter(in ast.Node) (ast.Node, bool) {
	if col, ok := in.(*ast.ColumnName); ok {
		v.cols[col.Name.O] = true
	}
	// Columns wrapped in a function call still count; a stricter check would
	// look at the parent node.

	return in, false
}

func (v *columnVisitor) Leave(in ast.Node) (ast.Node, bool) {
	return in, true
}
