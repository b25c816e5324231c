package main

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"math"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/StepaOpa/SQLinter/internal/config"
	"github.com/StepaOpa/SQLinter/internal/docstore"
	"github.com/StepaOpa/SQLinter/internal/engine"
	"github.com/StepaOpa/SQLinter/internal/extractor"
	"github.com/StepaOpa/SQLinter/internal/model"
)

const sample = `ok = "SELECT id FROM users WHERE id = 1"` + "\n" + `broken = "SELECT bad syntax"` + "\n"

type syntaxSource struct{}

func (syntaxSource) Name() string { return "syntax" }

func (syntaxSource) Analyze(_ context.Context, _ string, _ []byte, candidates []model.Candidate) ([]model.Verdict, error) {
	out := make([]model.Verdict, len(candidates))
	for i, c := range candidates {
		out[i] = model.Verdict{Candidate: c, Kind: model.VerdictCorrect}
		if strings.Contains(c.Text, "bad syntax") {
			fix := strings.Replace(c.Text, "bad syntax", "bad FROM syntax", 1)
			out[i] = model.Verdict{Candidate: c, Kind: model.VerdictError, Reason: "missing FROM", Correction: &fix}
		}
	}
	return out, nil
}

type noDocs struct{}

func (noDocs) Read(path string) (string, error) { return "", os.ErrNotExist }

func TestServe_SavedThenApply(t *testing.T) {
	eng := engine.New(extractor.NewDefaultManager(), syntaxSource{}, nil, noDocs{}, engine.Options{AnalyzeOnSave: true}, nil)

	inR, inW := io.Pipe()
	outR, outW := io.Pipe()
	done := make(chan error, 1)
	go func() {
		done <- serve(context.Background(), inR, outW, eng, nil)
		outW.Close()
	}()
	lines := bufio.NewScanner(outR)
	next := func() wireEffect {
		t.Helper()
		require.True(t, lines.Scan(), "expected another effect")
		var ef wireEffect
		require.NoError(t, json.Unmarshal(lines.Bytes(), &ef))
		return ef
	}
	send := func(v any) {
		t.Helper()
		data, err := json.Marshal(v)
		require.NoError(t, err)
		_, err = inW.Write(append(data, '\n'))
		require.NoError(t, err)
	}

	text := sample
	send(engine.Event{Type: engine.EventSaved, Path: "q.py", Text: &text})
	ef := next()
	require.Equal(t, engine.EffectRecords, ef.Type)
	require.Len(t, ef.Records, 2)
	bad := ef.Records[1]
	assert.Equal(t, model.VerdictError, bad.Verdict)
	assert.Equal(t, lspRange{Start: lspPosition{Line: 1, Character: 10}, End: lspPosition{Line: 1, Character: 27}}, bad.Range)

	send(engine.Event{Type: engine.EventApply, Identity: bad.Identity})
	ef = next()
	assert.Equal(t, engine.EffectWrite, ef.Type)
	assert.Contains(t, ef.Text, `broken = "SELECT bad FROM syntax"`)
	ef = next()
	assert.Equal(t, engine.EffectRecords, ef.Type)
	assert.Len(t, ef.Records, 1)

	send(engine.Event{Type: engine.EventDismiss, Identity: bad.Identity})
	ef = next()
	assert.Equal(t, engine.EffectNotice, ef.Type)
	assert.Equal(t, engine.NoticeInfo, ef.Level)

	_, err := inW.Write([]byte("not json\n"))
	require.NoError(t, err)
	ef = next()
	assert.Equal(t, engine.NoticeWarning, ef.Level)

	require.NoError(t, inW.Close())
	require.NoError(t, <-done)
}

func TestServe_SavesOfOneFileRunInOrder(t *testing.T) {
	for range 50 {
		eng := engine.New(extractor.NewDefaultManager(), syntaxSource{}, nil, noDocs{}, engine.Options{AnalyzeOnSave: true}, nil)

		var in bytes.Buffer
		for _, text := range []string{
			`q = "SELECT first_version FROM t"` + "\n",
			`q = "SELECT second_version FROM t"` + "\n",
		} {
			data, err := json.Marshal(engine.Event{Type: engine.EventSaved, Path: "q.py", Text: &text})
			require.NoError(t, err)
			in.Write(append(data, '\n'))
		}

		var out bytes.Buffer
		require.NoError(t, serve(context.Background(), &in, &out, eng, nil))

		records := eng.Registry().Records("q.py")
		require.Len(t, records, 1)
		assert.Equal(t, "SELECT second_version FROM t", records[0].QueryText)

		var effects []wireEffect
		for _, line := range strings.Split(strings.TrimSpace(out.String()), "\n") {
			var ef wireEffect
			require.NoError(t, json.Unmarshal([]byte(line), &ef))
			effects = append(effects, ef)
		}
		require.Len(t, effects, 2)
		require.Len(t, effects[1].Records, 1)
		assert.Equal(t, "SELECT second_version FROM t", effects[1].Records[0].QueryText)
	}
}

func TestLaneKey(t *testing.T) {
	eng := engine.New(extractor.NewDefaultManager(), syntaxSource{}, nil, noDocs{}, engine.Options{}, nil)
	_, err := eng.Analyze(context.Background(), "q.py", sample)
	require.NoError(t, err)
	rec := eng.Registry().Records("q.py")[0]

	assert.Equal(t, "a.py", laneKey(eng, engine.Event{Type: engine.EventSaved, Path: "a.py"}))
	assert.Equal(t, "q.py", laneKey(eng, engine.Event{Type: engine.EventApply, Identity: rec.Identity}))
	assert.Equal(t, "", laneKey(eng, engine.Event{Type: engine.EventDismiss, Identity: "gone"}))
}

func TestToRange(t *testing.T) {
	r, err := toRange(model.SourceSpan{StartLine: 1, StartColumn: 4, EndLine: 3, EndColumn: 0})
	require.NoError(t, err)
	assert.Equal(t, lspRange{Start: lspPosition{0, 4}, End: lspPosition{2, 0}}, r)

	_, err = toRange(model.SourceSpan{StartLine: 0})
	assert.Error(t, err, "line 0 is not a valid 1-based line")

	_, err = toRange(model.SourceSpan{StartLine: 1, StartColumn: math.MaxInt64, EndLine: 1})
	assert.Error(t, err)
}

func TestRunExtract(t *testing.T) {
	path := filepath.Join(t.TempDir(), "q.py")
	require.NoError(t, os.WriteFile(path, []byte(sample), 0o644))

	var buf bytes.Buffer
	require.NoError(t, runExtract(&buf, extractor.NewDefaultManager(), []string{path}))
	out := buf.String()
	assert.Contains(t, out, "SELECT id FROM users WHERE id = 1")
	assert.Contains(t, out, "2:10-2:27 [51,68) SELECT bad syntax")

	extractJSON = true
	defer func() { extractJSON = false }()
	buf.Reset()
	require.NoError(t, runExtract(&buf, extractor.NewDefaultManager(), []string{path}))
	var first extractedQuery
	require.NoError(t, json.Unmarshal([]byte(strings.SplitN(buf.String(), "\n", 2)[0]), &first))
	assert.Equal(t, 6, first.Span.AbsoluteStart)

	assert.Error(t, runExtract(&buf, extractor.NewDefaultManager(), []string{filepath.Join(t.TempDir(), "missing.py")}))
}

func TestFailThreshold(t *testing.T) {
	records := []model.QueryRecord{{Verdict: model.VerdictCorrect}, {Verdict: model.VerdictWarning}}

	tests := []struct {
		level string
		want  bool
	}{
		{"error", false},
		{"warning", true},
		{"never", false},
	}
	for _, tt := range tests {
		th, err := failThreshold(tt.level)
		require.NoError(t, err)
		assert.Equal(t, tt.want, failed(records, th), tt.level)
	}
	_, err := failThreshold("sometimes")
	assert.Error(t, err)
}

func TestNewReporter(t *testing.T) {
	_, err := newReporter("html", io.Discard)
	assert.Error(t, err)
	r, err := newReporter("json", io.Discard)
	require.NoError(t, err)
	assert.NoError(t, r.Report(nil))
}

type downSource struct{}

func (downSource) Name() string { return "down" }

func (downSource) Analyze(context.Context, string, []byte, []model.Candidate) ([]model.Verdict, error) {
	return nil, &model.AnalysisUnavailableError{Source: "down", Detail: "upstream 503"}
}

func TestScan_CountsSkippedFiles(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "a.py"), []byte(sample), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "b.py"), []byte(sample), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "empty.py"), []byte("x = 1\n"), 0o644))

	a := &app{
		cfg:    config.Default(),
		log:    zap.NewNop(),
		docs:   docstore.New(),
		engine: engine.New(extractor.NewDefaultManager(), downSource{}, nil, docstore.New(), engine.Options{}, nil),
	}
	records, skipped, err := scan(context.Background(), a, []string{dir})
	require.NoError(t, err)
	assert.Empty(t, records)
	assert.Equal(t, 2, skipped)
}

func TestOutcome(t *testing.T) {
	errorOnly, err := failThreshold("error")
	require.NoError(t, err)
	never, err := failThreshold("never")
	require.NoError(t, err)
	bad := []model.QueryRecord{{Verdict: model.VerdictError}}

	tests := []struct {
		name      string
		records   []model.QueryRecord
		skipped   int
		threshold map[model.VerdictKind]bool
		findings  bool
		fails     bool
	}{
		{"clean", nil, 0, errorOnly, false, false},
		{"findings", bad, 0, errorOnly, true, true},
		{"unanalysed files", nil, 2, errorOnly, false, true},
		{"unanalysed files tolerated", nil, 2, never, false, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := outcome(tt.records, tt.skipped, tt.threshold)
			assert.Equal(t, tt.fails, err != nil)
			assert.Equal(t, tt.findings, errors.Is(err, errFindings))
		})
	}
}
