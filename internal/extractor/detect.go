package extractor

import (
	"regexp"
	"strings"
)

const statementKeywords = `SELECT|INSERT|UPDATE|DELETE|CREATE|DROP|ALTER|WITH|SHOW|DESCRIBE|EXPLAIN|TRUNCATE`

var (
	strongSQL      = regexp.MustCompile(`(?i)\b(?:` + statementKeywords + `)\b`)
	leadingUpper   = regexp.MustCompile(`^\(*\s*(?:` + statementKeywords + `)\b`)
	leadingAnyCase = regexp.MustCompile(`(?i)^\(*\s*(?:` + statementKeywords + `)\b`)
	anySQL         = regexp.MustCompile(`(?i)\b(?:` + statementKeywords + `|FROM|WHERE|JOIN|INNER|LEFT|RIGHT|GROUP|ORDER|HAVING|LIMIT|OFFSET|UNION|INTO|VALUES|SET|TABLE|INDEX|VIEW|PRIMARY|FOREIGN|KEY|DISTINCT|BETWEEN|LIKE|EXISTS|RETURNING|CONFLICT)\b`)

	sqlComment = regexp.MustCompile(`(?s)^(?:--[^\n]*(?:\n|$)|/\*.*?\*/|\s)+`)

	// Fragments that show a literal holds host code, not a query.
	hostCode = regexp.MustCompile(`(?im)(?:\.execute(?:many)?\(|\.fetch(?:all|one|many)\(|\bcursor\.|\bconn\.|^\s*(?:import|def|class|func|package)\s|^\s*from\s+[\w.]+\s+import\s)`)
)

// IsSQL reports whether a literal body looks like an SQL statement.
//
// A body qualifies when, after leading SQL comments, it starts with an
// upper-case statement keyword ("SELECT bad syntax"), or starts with one in
// any case and holds a second SQL keyword ("select * from t"), or holds a
// statement keyword and at least two more SQL keywords anywhere.
func IsSQL(text string) bool {
	if strings.TrimSpace(text) == "" || hostCode.MatchString(text) {
		return false
	}

	keywords := len(anySQL.FindAllStringIndex(text, -1))
	head := sqlComment.ReplaceAllString(text, "")
	switch {
	case leadingUpper.MatchString(head):
		return true
	case leadingAnyCase.MatchString(head):
		return keywords >= 2
	case strongSQL.MatchString(text):
		return keywords >= 3
	default:
		return false
	}
}
