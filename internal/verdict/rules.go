package verdict

import (
	"context"
	"fmt"
	"strings"

	"github.com/StepaOpa/SQLinter/internal/auditor"
	"github.com/StepaOpa/SQLinter/internal/model"
	"github.com/StepaOpa/SQLinter/internal/parser"
)

// Rules judges queries offline with the TiDB parser and the audit rules. A
// parse failure is an Error, a FATAL issue is an Error, any other issue is a
// Warning, and a clean query is Correct. Rules never proposes corrections.
type Rules struct {
	auditor *auditor.Auditor
}

func NewRules(a *auditor.Auditor) *Rules {
	return &Rules{auditor: a}
}

func (s *Rules) Name() string { return "rules" }

func (s *Rules) Analyze(ctx context.Context, filePath string, text []byte, candidates []model.Candidate) ([]model.Verdict, error) {
	out := make([]model.Verdict, 0, len(candidates))
	for _, c := range candidates {
		if err := ctx.Err(); err != nil {
			return nil, &model.AnalysisUnavailableError{Source: s.Name(), Detail: "interrupted", Err: err}
		}
		out = append(out, judge(s.auditor.AuditOne(c)))
	}
	return out, nil
}

func judge(res auditor.Result) model.Verdict {
	v := model.Verdict{Candidate: res.Candidate}
	if res.ParseErr != nil {
		if parser.HasInterpolation(res.Candidate.Text) {
			v.Reason = "query is assembled at runtime; cannot check it statically"
			return v
		}
		v.Kind = model.VerdictError
		v.Reason = "syntax error: " + strings.TrimSpace(firstLine(res.ParseErr.Error()))
		return v
	}
	if len(res.Issues) == 0 {
		v.Kind = model.VerdictCorrect
		return v
	}

	v.Kind = model.VerdictWarning
	reasons := make([]string, 0, len(res.Issues))
	for _, is := range res.Issues {
		if is.Level == model.RiskLevelFatal {
			v.Kind = model.VerdictError
		}
		reasons = append(reasons, fmt.Sprintf("[%s] %s %s", is.Level, is.Message, is.Suggestion))
	}
	v.Reason = strings.Join(reasons, "\n")
	return v
}

func firstLine(s string) string {
	if i := strings.IndexByte(s, '\n'); i >= 0 {
		return s[:i]
	}
	return s
}
