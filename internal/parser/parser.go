package parser

import (
	"fmt"
	"os"
	"regexp"
	"strings"

	"github.com/pingcap/tidb/parser"
	"github.com/pingcap/tidb/parser/ast"
	_ "github.com/pingcap/tidb/parser/test_driver"

	"github.com/StepaOpa/SQLinter/internal/model"
)

// SQLParser wraps the TiDB parser. It is not safe for concurrent use.
type SQLParser struct {
	p *parser.Parser
}

func NewSQLParser() *SQLParser {
	return &SQLParser{
		p: parser.New(),
	}
}

// Parse converts a SQL string into an AST
func (sp *SQLParser) Parse(sql string) (ast.StmtNode, error) {
	// Extracted fragments often carry driver placeholders the grammar only
	// accepts as '?'.
	stmtNodes, _, err := sp.p.Parse(Normalize(sql), "", "")
	if err != nil {
		return nil, err
	}
	if len(stmtNodes) == 0 {
		return nil, fmt.Errorf("no valid SQL found")
	}
	// For now, we return the first statement found
	return stmtNodes[0], nil
}

var (
	driverParam   = regexp.MustCompile(`%\([A-Za-z_]\w*\)s|%s|\$\d+|(?:^|[\s(,=<>])(:[A-Za-z_]\w*)`)
	interpolation = regexp.MustCompile(`\{[^{}]*\}`)
)

// Normalize rewrites DB-API and numbered placeholders (%s, %(name)s, $1,
// :name) to '?'.
func Normalize(sql string) string {
	return driverParam.ReplaceAllStringFunc(sql, func(m string) string {
		if i := strings.IndexByte(m, ':'); i >= 0 && !strings.HasPrefix(m, "%") {
			return m[:i] + "?"
		}
		return "?"
	})
}

// HasInterpolation reports whether sql holds host-language interpolation such
// as f-string fields, so a parse failure may not be the query's fault.
func HasInterpolation(sql string) bool {
	return interpolation.MatchString(sql)
}

// LoadSchema reads a SQL file and populates the SchemaCtx
func (sp *SQLParser) LoadSchema(path string) (*model.SchemaCtx, error) {
	content, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read schema: %w", err)
	}

	schema := &model.SchemaCtx{
		Tables: make(map[string]*model.Table),
	}

	// Parse the whole schema file
	// Note: Parse returns []ast.StmtNode
	stmts, _, err := sp.p.Parse(string(content), "", "")
	if err != nil {
		return nil, fmt.Errorf("schema parse error: %w", err)
	}

	for _, stmt := range stmts {
		if createTable, ok := stmt.(*ast.CreateTableStmt); ok {
			table := parseCreateTable(createTable)
			schema.Tables[table.Name] = table
		}
	}

	return schema, nil
}

func parseCreateTable(node *ast.CreateTableStmt) *model.Table {
	t := &model.Table{
		Name:    node.Table.Name.O,
		Columns: make(map[string]*model.Column),
		Indexes: make([]*model.Index, 0),
	}

	for _, col := range node.Cols {
		name := col.Name.Name.O
		t.Columns[name] = &model.Column{
			Name: name,
			Type: col.Tp.String(),
		}
		// id INT PRIMARY KEY, email VARCHAR(64) UNIQUE
		for _, opt := range col.Options {
			switch opt.Tp {
			case ast.ColumnOptionPrimaryKey:
				t.Indexes = append(t.Indexes, &model.Index{Name: "PRIMARY", Unique: true, Columns: []string{name}})
			case ast.ColumnOptionUniqKey:
				t.Indexes = append(t.Indexes, &model.Index{Name: name, Unique: true, Columns: []string{name}})
			}
		}
	}

	for _, cons := range node.Constraints {
		switch cons.Tp {
		case ast.ConstraintPrimaryKey, ast.ConstraintKey, ast.ConstraintIndex, ast.ConstraintUniq, ast.ConstraintUniqKey, ast.ConstraintUniqIndex:
			idx := &model.Index{
				Name:    cons.Name,
				Unique:  cons.Tp == ast.ConstraintPrimaryKey || cons.Tp == ast.ConstraintUniq || cons.Tp == ast.ConstraintUniqKey || cons.Tp == ast.ConstraintUniqIndex,
				Columns: make([]string, 0, len(cons.Keys)),
			}
			if idx.Name == "" && cons.Tp == ast.ConstraintPrimaryKey {
				idx.Name = "PRIMARY"
			}
			for _, keyCol := range cons.Keys {
				if keyCol.Column != nil {
					idx.Columns = append(idx.Columns, keyCol.Column.Name.O)
				}
			}
			t.Indexes = append(t.Indexes, idx)
		}
	}

	return t
}
