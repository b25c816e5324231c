package parser

import (
	"os"
	"path/filepath"
	"reflect"
	"testing"

	"github.com/StepaOpa/SQLinter/internal/model"
)

func TestSQLParser_Parse(t *testing.T) {
	parser := NewSQLParser()

	tests := []struct {
		name    string
		sql     string
		wantErr bool
	}{
		{
			name:    "Valid SELECT",
			sql:     "SELECT * FROM users",
			wantErr: false,
		},
		{
			name:    "Valid INSERT",
			sql:     "INSERT INTO users (name) VALUES ('test')",
			wantErr: false,
		},
		{
			name:    "Invalid SQL",
			sql:     "SELECT * FROM",
			wantErr: true,
		},
		{
			name:    "Empty SQL",
			sql:     "", // TiDB parser might return text as empty
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			stmt, err := parser.Parse(tt.sql)
			if (err != nil) != tt.wantErr {
				t.Errorf("Parse() error = %v, wantErr %v", err, tt.wantErr)
				return
			}
			if !tt.wantErr && stmt == nil {
				t.Errorf("Parse() returned nil statement for valid SQL")
			}
		})
	}
}

func TestSQLParser_LoadSchema(t *testing.T) {
	// Create a temporary schema file
	content := `
		CREATE TABLE users (
			id INT PRIMARY KEY,
			name VARCHAR(255),
			email VARCHAR(255),
			KEY idx_email (email)
		);
	`
	tmpfile, err := os.CreateTemp("", "schema-*.sql")
	if err != nil {
		t.Fatal(err)
	}
	defer os.Remove(tmpfile.Name()) // clean up

	if _, err := tmpfile.Write([]byte(content)); err != nil {
		t.Fatal(err)
	}
	if err := tmpfile.Close(); err != nil {
		t.Fatal(err)
	}

	parser := NewSQLParser()
	schema, err := parser.LoadSchema(tmpfile.Name())
	if err != nil {
		t.Fatalf("LoadSchema() error = %v", err)
	}

	// Verify schema content
	if len(schema.Tables) != 1 {
		t.Errorf("Expected 1 table, got %d", len(schema.Tables))
	}

	table, ok := schema.Tables["users"]
	if !ok {
		t.Fatalf("Table 'users' not found")
	}

	if len(table.Columns) != 3 {
		t.Errorf("Expected 3 columns, got %d", len(table.Columns))
	}

	if len(table.Indexes) != 2 { // One PK + One KEY
		t.Errorf("Expected 2 indexes, got %d", len(table.Indexes))
	}
}

func TestNormalize(t *testing.T) {
	tests := []struct {
		sql  string
		want string
	}{
		{"SELECT * FROM users WHERE id = %s", "SELECT * FROM users WHERE id = ?"},
		{"SELECT * FROM users WHERE id = %(id)s AND a = %s", "SELECT * FROM users WHERE id = ? AND a = ?"},
		{"UPDATE t SET a = $1 WHERE b = $2", "UPDATE t SET a = ? WHERE b = ?"},
		{"SELECT * FROM t WHERE a = :name", "SELECT * FROM t WHERE a = ?"},
		{"SELECT '10:30', a::text FROM t", "SELECT '10:30', a::text FROM t"},
	}

	for _, tt := range tests {
		if got := Normalize(tt.sql); got != tt.want {
			t.Errorf("Normalize(%q) = %q, want %q", tt.sql, got, tt.want)
		}
	}
}

func TestSQLParser_ParsePlaceholders(t *testing.T) {
	parser := NewSQLParser()

	for _, sql := range []string{
		"SELECT name FROM users WHERE id = %s",
		"DELETE FROM users WHERE id = :id",
	} {
		if _, err := parser.Parse(sql); err != nil {
			t.Errorf("Parse(%q) error = %v", sql, err)
		}
	}
}

func TestHasInterpolation(t *testing.T) {
	if !HasInterpolation("SELECT * FROM {table} WHERE id = 1") {
		t.Error("expected f-string field to be detected")
	}
	if HasInterpolation("SELECT * FROM users") {
		t.Error("plain SQL reported as interpolated")
	}
}

func writeSchema(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "schema.sql")
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestSQLParser_LoadSchemaColumnKeys(t *testing.T) {
	path := writeSchema(t, `
		CREATE TABLE accounts (
			id INT PRIMARY KEY,
			email VARCHAR(64) UNIQUE,
			org_id INT,
			UNIQUE KEY uq_org (org_id, email)
		);
	`)

	schema, err := NewSQLParser().LoadSchema(path)
	if err != nil {
		t.Fatalf("LoadSchema() error = %v", err)
	}
	table := schema.Tables["accounts"]
	if table == nil {
		t.Fatal("table 'accounts' not found")
	}

	want := []model.Index{
		{Name: "PRIMARY", Unique: true, Columns: []string{"id"}},
		{Name: "email", Unique: true, Columns: []string{"email"}},
		{Name: "uq_org", Unique: true, Columns: []string{"org_id", "email"}},
	}
	if len(table.Indexes) != len(want) {
		t.Fatalf("got %d indexes, want %d", len(table.Indexes), len(want))
	}
	for i, w := range want {
		if got := *table.Indexes[i]; !reflect.DeepEqual(got, w) {
			t.Errorf("index %d = %+v, want %+v", i, got, w)
		}
	}
}

func TestTarget(t *testing.T) {
	p := NewSQLParser()

	tests := []struct {
		sql       string
		table     string
		hasWhere  bool
		allTables []string
	}{
		{"SELECT * FROM users WHERE id = 1", "users", true, []string{"users"}},
		{"SELECT * FROM orders o JOIN users u ON o.uid = u.id JOIN items i ON i.oid = o.id", "orders", false, []string{"orders", "users", "items"}},
		{"UPDATE users SET name = 'x' WHERE id = 2", "users", true, []string{"users"}},
		{"DELETE FROM users", "users", false, []string{"users"}},
		{"INSERT INTO logs (msg) VALUES ('x')", "logs", false, []string{"logs"}},
		{"SELECT 1", "", false, nil},
	}

	for _, tt := range tests {
		stmt, err := p.Parse(tt.sql)
		if err != nil {
			t.Fatalf("Parse(%q) error = %v", tt.sql, err)
		}
		table, where := Target(stmt)
		if table != tt.table || (where != nil) != tt.hasWhere {
			t.Errorf("Target(%q) = %q, where=%v; want %q, where=%v", tt.sql, table, where != nil, tt.table, tt.hasWhere)
		}
		if got := Tables(stmt); !reflect.DeepEqual(got, tt.allTables) {
			t.Errorf("Tables(%q) = %v, want %v", tt.sql, got, tt.allTables)
		}
	}
}

func TestLookupTable(t *testing.T) {
	schema := &model.SchemaCtx{Tables: map[string]*model.Table{"Users": {Name: "Users"}}}

	if _, ok := LookupTable(schema, "Users"); !ok {
		t.Error("exact name not found")
	}
	if _, ok := LookupTable(schema, "users"); !ok {
		t.Error("table names should match case-insensitively")
	}
	if _, ok := LookupTable(schema, "orders"); ok {
		t.Error("unknown table found")
	}
	if _, ok := LookupTable(nil, "users"); ok {
		t.Error("nil schema returned a table")
	}
}
