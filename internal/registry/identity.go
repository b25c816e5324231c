package registry

import (
	"encoding/hex"
	"strconv"

	"github.com/zeebo/xxh3"

	"github.com/StepaOpa/SQLinter/internal/model"
)

// NewIdentity derives the identity of the query slot holding text at start in
// path. Equal triples collide on purpose; moving a query changes its identity.
func NewIdentity(text, path string, start int) model.QueryIdentity {
	h := xxh3.New()
	_, _ = h.WriteString(text)
	_, _ = h.Write([]byte{0})
	_, _ = h.WriteString(path)
	_, _ = h.Write([]byte{0})
	_, _ = h.Write(strconv.AppendInt(nil, int64(start), 10))
	sum := h.Sum128().Bytes()
	return model.QueryIdentity(hex.EncodeToString(sum[:]))
}

// NewRecord builds the registry record for a verdict in path.
func NewRecord(path string, v model.Verdict) model.QueryRecord {
	return model.QueryRecord{
		Identity:   NewIdentity(v.Candidate.Text, path, v.Candidate.Span.AbsoluteStart),
		QueryText:  v.Candidate.Text,
		Verdict:    v.Kind,
		Reason:     v.Reason,
		Correction: v.Correction,
		Span:       v.Candidate.Span,
		FilePath:   path,
	}
}

// NewRecords converts a pass's verdicts, preserving order.
func NewRecords(path string, verdicts []model.Verdict) []model.QueryRecord {
	records := make([]model.QueryRecord, 0, len(verdicts))
	for _, v := range verdicts {
		records = append(records, NewRecord(path, v))
	}
	return records
}
