package auditor

import (
	"testing"

	"github.com/StepaOpa/SQLinter/internal/model"
	"github.com/StepaOpa/SQLinter/internal/parser"
)

func TestNoWhereRule_Check(t *testing.T) {
	p := parser.NewSQLParser()
	rule := &NoWhereRule{}

	tests := []struct {
		name       string
		sql        string
		wantIssues int
	}{
		{
			name:       "UPDATE without WHERE",
			sql:        "UPDATE users SET name = 'test'",
			wantIssues: 1,
		},
		{
			name:       "UPDATE with WHERE",
			sql:        "UPDATE users SET name = 'test' WHERE id = 1",
			wantIssues: 0,
		},
		{
			name:       "DELETE without WHERE",
			sql:        "DELETE FROM users",
			wantIssues: 1,
		},
		{
			name:       "DELETE with WHERE",
			sql:        "DELETE FROM users WHERE id = 1",
			wantIssues: 0,
		},
		{
			name:       "SELECT ignored",
			sql:        "SELECT * FROM users",
			wantIssues: 0,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			stmt, err := p.Parse(tt.sql)
			if err != nil {
				t.Fatalf("Parse failed: %v", err)
			}
			c := &model.Candidate{Text: tt.sql}

			issues, err := rule.Check(c, stmt, nil)
			if err != nil {
				t.Fatalf("Check failed: %v", err)
			}

			if len(issues) != tt.wantIssues {
				t.Errorf("Check() got %d issues, want %d", len(issues), tt.wantIssues)
			}
		})
	}
}

func TestSelectStarRule_Check(t *testing.T) {
	p := parser.NewSQLParser()
	rule := &SelectStarRule{}

	tests := []struct {
		name       string
		sql        string
		wantIssues int
	}{
		{
			name:       "SELECT *",
			sql:        "SELECT * FROM users",
			wantIssues: 1,
		},
		{
			name:       "SELECT columns",
			sql:        "SELECT id, name FROM users",
			wantIssues: 0,
		},
		{
			name:       "SELECT * with aggregate",
			sql:        "SELECT count(*) FROM users",
			wantIssues: 0, // count(*) is usually fine or different rule
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			stmt, err := p.Parse(tt.sql)
			if err != nil {
				t.Fatalf("Parse failed: %v", err)
			}
			c := &model.Candidate{Text: tt.sql}

			issues, err := rule.Check(c, stmt, nil)
			if err != nil {
				t.Fatalf("Check failed: %v", err)
			}

			if len(issues) != tt.wantIssues {
				// Special check for count(*) which might be parsed differently
				// TiDB parser parses count(*) as an aggregate function, not wildcard field usually.
				// But let's verify behavior.
				// Actually SELECT * is wildcard field.
				t.Errorf("Check() got %d issues, want %d", len(issues), tt.wantIssues)
			}
		})
	}
}

func testSchema() *model.SchemaCtx {
	return &model.SchemaCtx{Tables: map[string]*model.Table{
		"users": {
			Name: "users",
			Columns: map[string]*model.Column{
				"id":    {Name: "id", Type: "int"},
				"name":  {Name: "name", Type: "varchar(255)"},
				"email": {Name: "email", Type: "varchar(255)"},
			},
			Indexes: []*model.Index{
				{Name: "PRIMARY", Columns: []string{"id"}, Unique: true},
				{Name: "idx_email", Columns: []string{"email"}},
			},
		},
		"logs": {
			Name:    "logs",
			Columns: map[string]*model.Column{"msg": {Name: "msg", Type: "text"}},
		},
	}}
}

func TestSchemaRules_Check(t *testing.T) {
	p := parser.NewSQLParser()
	schema := testSchema()

	tests := []struct {
		name     string
		rule     model.Rule
		sql      string
		schema   *model.SchemaCtx
		wantType string // empty means no issue
	}{
		{"index hit", &IndexMissRule{}, "SELECT id FROM users WHERE email = 'a@b.c'", schema, ""},
		{"index miss", &IndexMissRule{}, "SELECT id FROM users WHERE name = 'bob'", schema, "INDEX_MISS"},
		{"index miss on update", &IndexMissRule{}, "UPDATE users SET email = 'x' WHERE name = 'bob'", schema, "INDEX_MISS"},
		{"no indexes", &IndexMissRule{}, "SELECT msg FROM logs WHERE msg = 'x'", schema, "NO_INDEXES_DEFINED"},
		{"unknown table", &IndexMissRule{}, "SELECT a FROM other WHERE a = 1", schema, ""},
		{"nil schema", &IndexMissRule{}, "SELECT id FROM users WHERE name = 'bob'", nil, ""},
		{"no FROM", &IndexMissRule{}, "SELECT 1", schema, ""},
		{"implicit conversion", &ImplicitConversionRule{}, "SELECT id FROM users WHERE name = 42", schema, "IMPLICIT_CONVERSION"},
		{"quoted number", &ImplicitConversionRule{}, "SELECT id FROM users WHERE name = '42'", schema, ""},
		{"implicit conversion nil schema", &ImplicitConversionRule{}, "SELECT id FROM users WHERE name = 42", nil, ""},
		{"deep pagination", &DeepPaginationRule{Threshold: 100}, "SELECT id FROM users LIMIT 1000, 10", nil, "DEEP_PAGINATION"},
		{"shallow pagination", &DeepPaginationRule{Threshold: 100}, "SELECT id FROM users LIMIT 10, 10", nil, ""},
		{"not in", &NegativeQueryRule{}, "SELECT id FROM users WHERE id NOT IN (1, 2)", nil, "NEGATIVE_QUERY"},
		{"not equal", &NegativeQueryRule{}, "SELECT id FROM users WHERE id != 1", nil, "NEGATIVE_QUERY"},
		{"leading wildcard", &NegativeQueryRule{}, "SELECT id FROM users WHERE name LIKE '%bob'", nil, "LEADING_WILDCARD"},
		{"trailing wildcard", &NegativeQueryRule{}, "SELECT id FROM users WHERE name LIKE 'bob%'", nil, ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			stmt, err := p.Parse(tt.sql)
			if err != nil {
				t.Fatalf("Parse failed: %v", err)
			}

			issues, err := tt.rule.Check(&model.Candidate{Text: tt.sql}, stmt, tt.schema)
			if err != nil {
				t.Fatalf("Check failed: %v", err)
			}

			if tt.wantType == "" {
				if len(issues) != 0 {
					t.Errorf("Check() got %+v, want no issues", issues)
				}
				return
			}
			if len(issues) != 1 || issues[0].Type != tt.wantType {
				t.Errorf("Check() got %+v, want one %s issue", issues, tt.wantType)
			}
		})
	}
}
