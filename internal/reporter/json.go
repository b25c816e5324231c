package reporter

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"

	"github.com/StepaOpa/SQLinter/internal/model"
)

// JSONReporter writes records as one JSON document.
type JSONReporter struct {
	out io.Writer
}

func NewJSONReporter(out io.Writer) *JSONReporter {
	return &JSONReporter{out: out}
}

type jsonReport struct {
	Records []model.QueryRecord `json:"records"`
	Summary map[string]int      `json:"summary"`
}

func (r *JSONReporter) Report(records []model.QueryRecord) error {
	if records == nil {
		records = []model.QueryRecord{}
	}
	sum := map[string]int{"total": len(records)}
	for _, rec := range records {
		sum[strings.ToLower(rec.Verdict.String())]++
	}

	enc := json.NewEncoder(r.out)
	enc.SetIndent("", "  ")
	if err := enc.Encode(jsonReport{Records: records, Summary: sum}); err != nil {
		return fmt.Errorf("write json report: %w", err)
	}
	return nil
}
