// Package engine runs analysis passes and user actions against the registry.
//
// At most one pass per file is active. Starting a pass cancels the file's
// in-flight pass and waits for it to exit; each pass carries the file's
// generation at start and only installs its records if that generation is
// still current. Passes for different files run in parallel.
package engine

import (
	"context"
	"errors"
	"fmt"
	"iter"
	"slices"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/StepaOpa/SQLinter/internal/model"
	"github.com/StepaOpa/SQLinter/internal/reconcile"
	"github.com/StepaOpa/SQLinter/internal/registry"
)

// ErrSuperseded is returned by a pass whose result was discarded because a
// newer pass or an edit replaced it.
var ErrSuperseded = errors.New("analysis superseded by a newer pass")

// Extractor finds candidates in the content of a file.
type Extractor interface {
	Extract(filePath string, content []byte) (iter.Seq[model.Candidate], error)
}

// Docs reads the current text of a file.
type Docs interface {
	Read(path string) (string, error)
}

type Options struct {
	// Timeout bounds one verdict source call. Zero means one minute.
	Timeout time.Duration
	// HasCredential reports whether a credential is configured. Sources that
	// need one are not invoked while it returns false. Nil means present.
	HasCredential func() bool
	// AnalyzeOnSave makes saved events start a pass.
	AnalyzeOnSave bool
}

// slot is the per-file pass state.
type slot struct {
	mu     sync.Mutex
	gen    uint64
	cancel context.CancelFunc
	done   chan struct{}
	text   *reconcile.Text // snapshot the file's record spans refer to
}

type Engine struct {
	extractor Extractor
	source    model.VerdictSource
	reg       *registry.Registry
	docs      Docs
	opts      Options
	log       *zap.Logger

	mu    sync.Mutex
	slots map[string]*slot
}

func New(ex Extractor, src model.VerdictSource, reg *registry.Registry, docs Docs, opts Options, log *zap.Logger) *Engine {
	if opts.Timeout <= 0 {
		opts.Timeout = time.Minute
	}
	if log == nil {
		log = zap.NewNop()
	}
	if reg == nil {
		reg = registry.New()
	}
	return &Engine{
		extractor: ex,
		source:    src,
		reg:       reg,
		docs:      docs,
		opts:      opts,
		log:       log.Named("engine"),
		slots:     make(map[string]*slot),
	}
}

// Registry returns the registry the engine owns.
func (e *Engine) Registry() *registry.Registry { return e.reg }

func (e *Engine) slot(path string) *slot {
	e.mu.Lock()
	defer e.mu.Unlock()
	s, ok := e.slots[path]
	if !ok {
		s = &slot{}
		e.slots[path] = s
	}
	return s
}

// Text returns the snapshot the records of path were computed against.
func (e *Engine) Text(path string) (string, bool) {
	s := e.slot(path)
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.text == nil {
		return "", false
	}
	return s.text.String(), true
}

// PassResult describes a completed pass.
type PassResult struct {
	Path       string
	Generation uint64
	Records    []model.QueryRecord
}

// Analyze runs a pass over text and installs its records for path. On error
// the registry entry for path is left as it was.
func (e *Engine) Analyze(ctx context.Context, path, text string) (PassResult, error) {
	s := e.slot(path)

	s.mu.Lock()
	s.gen++
	gen := s.gen
	prevCancel, prevDone := s.cancel, s.done
	passCtx, cancel := context.WithCancel(ctx)
	done := make(chan struct{})
	s.cancel, s.done = cancel, done
	s.mu.Unlock()

	defer close(done)
	defer cancel()

	log := e.log.With(zap.String("path", path), zap.Uint64("generation", gen))
	if prevCancel != nil {
		prevCancel()
		select {
		case <-prevDone:
		case <-ctx.Done():
			return PassResult{}, model.WithPath(path, ctx.Err())
		}
		if passCtx.Err() != nil && e.stale(s, gen) {
			return PassResult{}, model.WithPath(path, ErrSuperseded)
		}
	}

	records, err := e.run(passCtx, path, text, log)
	if err != nil {
		if passCtx.Err() != nil && ctx.Err() == nil && e.stale(s, gen) {
			log.Debug("pass cancelled by a newer one")
			return PassResult{}, model.WithPath(path, ErrSuperseded)
		}
		log.Warn("pass failed", zap.Error(err))
		return PassResult{}, model.WithPath(path, err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.gen != gen {
		log.Info("discarding superseded result")
		return PassResult{}, model.WithPath(path, ErrSuperseded)
	}
	e.reg.ReplaceFileRecords(path, records)
	s.text = reconcile.New(text)
	log.Info("pass complete", zap.Int("records", len(records)))
	return PassResult{Path: path, Generation: gen, Records: e.reg.Records(path)}, nil
}

func (e *Engine) stale(s *slot, gen uint64) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.gen != gen
}

func (e *Engine) run(ctx context.Context, path, text string, log *zap.Logger) ([]model.QueryRecord, error) {
	if g, ok := e.source.(model.CredentialGated); ok && g.NeedsCredential() {
		if e.opts.HasCredential != nil && !e.opts.HasCredential() {
			return nil, &model.ConfigurationError{Setting: "credential", Err: model.ErrMissingCredential}
		}
	}

	seq, err := e.extractor.Extract(path, []byte(text))
	if err != nil {
		return nil, err
	}
	candidates := slices.Collect(seq)
	log.Debug("extracted", zap.Int("candidates", len(candidates)))
	if len(candidates) == 0 {
		return nil, nil
	}

	callCtx, cancel := context.WithTimeout(ctx, e.opts.Timeout)
	defer cancel()
	verdicts, err := e.source.Analyze(callCtx, path, []byte(text), candidates)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) && ctx.Err() == nil {
			return nil, &model.AnalysisUnavailableError{Source: e.source.Name(), Detail: fmt.Sprintf("timed out after %s", e.opts.Timeout), Err: err}
		}
		return nil, err
	}
	if len(verdicts) != len(candidates) {
		return nil, &model.ResponseFormatError{Source: e.source.Name(), Err: fmt.Errorf("got %d verdicts for %d queries", len(verdicts), len(candidates))}
	}
	return registry.NewRecords(path, verdicts), nil
}

// AnalyzeFile reads path through the engine's document store and analyses it.
func (e *Engine) AnalyzeFile(ctx context.Context, path string) (PassResult, error) {
	if e.docs == nil {
		return PassResult{}, model.WithPath(path, errors.New("no document store"))
	}
	text, err := e.docs.Read(path)
	if err != nil {
		return PassResult{}, model.WithPath(path, err)
	}
	return e.Analyze(ctx, path, text)
}

// Forget cancels any pass for path and drops its records and snapshot.
func (e *Engine) Forget(path string) {
	s := e.slot(path)
	s.mu.Lock()
	s.gen++
	if s.cancel != nil {
		s.cancel()
	}
	s.text = nil
	s.mu.Unlock()
	e.reg.ReplaceFileRecords(path, nil)
}

// PathOf returns the file holding the record with identity id.
func (e *Engine) PathOf(id model.QueryIdentity) (string, bool) {
	rec, ok := e.reg.Lookup(id)
	if !ok {
		return "", false
	}
	return rec.FilePath, true
}
