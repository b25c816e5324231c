package parser

import (
	"strings"

	"github.com/pingcap/tidb/parser/ast"

	"github.com/StepaOpa/SQLinter/internal/model"
)

// Tables lists the tables a statement reads or writes, left to right across
// joins. Derived tables and subqueries are not entered.
func Tables(node ast.StmtNode) []string {
	var (
		tables []string
		walk   func(ast.ResultSetNode)
	)
	walk = func(r ast.ResultSetNode) {
		switch n := r.(type) {
		case *ast.Join:
			if n.Left != nil {
				walk(n.Left)
			}
			if n.Right != nil {
				walk(n.Right)
			}
		case *ast.TableSource:
			if tn, ok := n.Source.(*ast.TableName); ok {
				tables = append(tables, tn.Name.O)
			}
		}
	}
	if refs := tableRefs(node); refs != nil && refs.TableRefs != nil {
		walk(refs.TableRefs)
	}
	return tables
}

func tableRefs(node ast.StmtNode) *ast.TableRefsClause {
	switch stmt := node.(type) {
	case *ast.SelectStmt:
		return stmt.From
	case *ast.UpdateStmt:
		return stmt.TableRefs
	case *ast.DeleteStmt:
		return stmt.TableRefs
	case *ast.InsertStmt:
		return stmt.Table
	}
	return nil
}

// Target returns the first table of a statement and its WHERE clause. Either
// may be empty.
func Target(node ast.StmtNode) (string, ast.ExprNode) {
	var where ast.ExprNode
	switch stmt := node.(type) {
	case *ast.SelectStmt:
		where = stmt.Where
	case *ast.UpdateStmt:
		where = stmt.Where
	case *ast.DeleteStmt:
		where = stmt.Where
	}
	if tables := Tables(node); len(tables) > 0 {
		return tables[0], where
	}
	return "", where
}

// LookupTable finds name in schema. Table names compare case-insensitively,
// as MySQL does on most platforms.
func LookupTable(schema *model.SchemaCtx, name string) (*model.Table, bool) {
	if schema == nil || name == "" {
		return nil, false
	}
	if t, ok := schema.Tables[name]; ok {
		return t, true
	}
	for key, t := range schema.Tables {
		if strings.EqualFold(key, name) {
			return t, true
		}
	}
	return nil, false
}
