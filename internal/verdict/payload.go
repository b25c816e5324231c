// Package verdict holds the verdict sources and the wire format they share.
//
// A payload is a JSON array of items, or an object wrapping that array under
// "results", "queries" or "verdicts". An object carrying "error" is a failed
// invocation. Items that do not decode are ignored, so their candidates fall
// back to Unknown.
package verdict

import (
	"bytes"
	"encoding/json"
	"errors"
	"strconv"
	"strings"

	"github.com/StepaOpa/SQLinter/internal/model"
	"github.com/StepaOpa/SQLinter/internal/registry"
)

// Item is one decoded payload element.
type Item struct {
	ID         string
	Query      *string
	Kind       model.VerdictKind
	Reason     string
	Correction *string
	Start      *int
	End        *int
}

type wireItem struct {
	ID         json.RawMessage `json:"id"`
	Query      *string         `json:"query"`
	Verdict    json.RawMessage `json:"verdict"`
	Reason     json.RawMessage `json:"reason"`
	Correction *string         `json:"correction"`
	Start      *int            `json:"start"`
	End        *int            `json:"end"`
}

var errNoArray = errors.New("payload is neither an array nor an object wrapping one")

// Decode parses a verdict payload produced by source.
func Decode(source string, data []byte) ([]Item, error) {
	data = stripFence(data)

	var raws []json.RawMessage
	switch first := firstByte(data); first {
	case '[':
		if err := json.Unmarshal(data, &raws); err != nil {
			return nil, &model.ResponseFormatError{Source: source, Err: err}
		}
	case '{':
		var obj map[string]json.RawMessage
		if err := json.Unmarshal(data, &obj); err != nil {
			return nil, &model.ResponseFormatError{Source: source, Err: err}
		}
		if msg, ok := obj["error"]; ok {
			return nil, &model.AnalysisUnavailableError{Source: source, Detail: text(msg)}
		}
		found := false
		for _, key := range []string{"results", "queries", "verdicts"} {
			if arr, ok := obj[key]; ok {
				if err := json.Unmarshal(arr, &raws); err != nil {
					return nil, &model.ResponseFormatError{Source: source, Err: err}
				}
				found = true
				break
			}
		}
		if !found {
			return nil, &model.ResponseFormatError{Source: source, Err: errNoArray}
		}
	default:
		return nil, &model.ResponseFormatError{Source: source, Err: errNoArray}
	}

	items := make([]Item, 0, len(raws))
	for _, raw := range raws {
		var w wireItem
		if err := json.Unmarshal(raw, &w); err != nil {
			continue
		}
		items = append(items, Item{
			ID:         text(w.ID),
			Query:      w.Query,
			Kind:       kind(w.Verdict),
			Reason:     text(w.Reason),
			Correction: w.Correction,
			Start:      w.Start,
			End:        w.End,
		})
	}
	return items, nil
}

func firstByte(data []byte) byte {
	data = bytes.TrimSpace(data)
	if len(data) == 0 {
		return 0
	}
	return data[0]
}

// stripFence removes a Markdown code fence around the payload, which chat
// models add despite being asked not to.
func stripFence(data []byte) []byte {
	s := strings.TrimSpace(string(data))
	if !strings.HasPrefix(s, "```") {
		return data
	}
	s = strings.TrimPrefix(s, "```")
	if nl := strings.IndexByte(s, '\n'); nl >= 0 {
		s = s[nl+1:]
	}
	s = strings.TrimSuffix(strings.TrimSpace(s), "```")
	return []byte(s)
}

// text renders a JSON scalar as a string; null and composites are empty.
func text(raw json.RawMessage) string {
	if len(raw) == 0 {
		return ""
	}
	var s string
	if json.Unmarshal(raw, &s) == nil {
		return s
	}
	var n json.Number
	if json.Unmarshal(raw, &n) == nil {
		return n.String()
	}
	var b bool
	if json.Unmarshal(raw, &b) == nil {
		return strconv.FormatBool(b)
	}
	return ""
}

func kind(raw json.RawMessage) model.VerdictKind {
	var b bool
	if json.Unmarshal(raw, &b) == nil {
		if b {
			return model.VerdictCorrect
		}
		return model.VerdictError
	}
	return model.ParseVerdictKind(text(raw))
}

// Align pairs every candidate with at most one item: first by id, then by
// start offset, then by query text. The result has one verdict per candidate
// in input order; unmatched candidates are Unknown with an empty reason.
func Align(path string, candidates []model.Candidate, items []Item) []model.Verdict {
	used := make([]bool, len(items))
	byID := make(map[string][]int)
	byStart := make(map[int][]int)
	byQuery := make(map[string][]int)
	for i, it := range items {
		if it.ID != "" {
			byID[it.ID] = append(byID[it.ID], i)
		}
		if it.Start != nil {
			byStart[*it.Start] = append(byStart[*it.Start], i)
		}
		if it.Query != nil {
			byQuery[*it.Query] = append(byQuery[*it.Query], i)
		}
	}
	take := func(idx []int) (int, bool) {
		for _, i := range idx {
			if !used[i] {
				used[i] = true
				return i, true
			}
		}
		return 0, false
	}

	// Id matches are claimed for every candidate before any fallback runs, so
	// a positional fallback never steals an item addressed to a later query.
	match := make([]int, len(candidates))
	for ci, c := range candidates {
		match[ci] = -1
		if i, ok := take(byID[string(registry.NewIdentity(c.Text, path, c.Span.AbsoluteStart))]); ok {
			match[ci] = i
		}
	}
	for ci, c := range candidates {
		if match[ci] >= 0 {
			continue
		}
		if i, ok := take(byStart[c.Span.AbsoluteStart]); ok {
			match[ci] = i
		} else if i, ok := take(byQuery[c.Text]); ok {
			match[ci] = i
		}
	}

	out := make([]model.Verdict, len(candidates))
	for ci, c := range candidates {
		out[ci] = model.Verdict{Candidate: c, Kind: model.VerdictUnknown}
		if match[ci] < 0 {
			continue
		}
		it := items[match[ci]]
		out[ci].Kind = it.Kind
		out[ci].Reason = it.Reason
		if it.Correction != nil && strings.TrimSpace(*it.Correction) != "" {
			fix := *it.Correction
			out[ci].Correction = &fix
		}
	}
	return out
}

// Unknown returns a verdict of Unknown for every candidate.
func Unknown(candidates []model.Candidate) []model.Verdict {
	out := make([]model.Verdict, len(candidates))
	for i, c := range candidates {
		out[i] = model.Verdict{Candidate: c}
	}
	return out
}
