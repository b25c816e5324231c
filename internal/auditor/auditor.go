package auditor

import (
	"sync"

	"go.uber.org/zap"

	"github.com/StepaOpa/SQLinter/internal/model"
	"github.com/StepaOpa/SQLinter/internal/parser"
)

// Result is the audit outcome of one candidate. ParseErr is set when the
// query could not be parsed; no rule ran in that case.
type Result struct {
	Candidate model.Candidate
	ParseErr  error
	Issues    []model.Issue
}

type Auditor struct {
	mu     sync.Mutex // the TiDB parser is not reentrant
	rules  []model.Rule
	schema *model.SchemaCtx
	parser *parser.SQLParser
	log    *zap.Logger
}

func NewAuditor(schema *model.SchemaCtx, p *parser.SQLParser, log *zap.Logger) *Auditor {
	if log == nil {
		log = zap.NewNop()
	}
	return &Auditor{
		rules:  make([]model.Rule, 0),
		schema: schema,
		parser: p,
		log:    log,
	}
}

// NewDefaultAuditor registers every built-in rule.
func NewDefaultAuditor(schema *model.SchemaCtx, p *parser.SQLParser, paginationThreshold int64, log *zap.Logger) *Auditor {
	a := NewAuditor(schema, p, log)
	a.Register(&NoWhereRule{})
	a.Register(&SelectStarRule{})
	a.Register(&IndexMissRule{})
	a.Register(&ImplicitConversionRule{})
	a.Register(&DeepPaginationRule{Threshold: paginationThreshold})
	a.Register(&NegativeQueryRule{})
	return a
}

func (a *Auditor) Register(rule model.Rule) {
	a.rules = append(a.rules, rule)
}

// Rules lists the registered rule names in order.
func (a *Auditor) Rules() []string {
	names := make([]string, 0, len(a.rules))
	for _, r := range a.rules {
		names = append(names, r.Name())
	}
	return names
}

// AuditOne parses c and runs every rule over it.
func (a *Auditor) AuditOne(c model.Candidate) Result {
	a.mu.Lock()
	stmt, err := a.parser.Parse(c.Text)
	a.mu.Unlock()
	if err != nil {
		return Result{Candidate: c, ParseErr: err}
	}

	res := Result{Candidate: c}
	for _, rule := range a.rules {
		issues, err := rule.Check(&c, stmt, a.schema)
		if err != nil {
			a.log.Warn("rule failed", zap.String("rule", rule.Name()), zap.Error(err))
			continue
		}
		res.Issues = append(res.Issues, issues...)
	}
	return res
}
