package engine

import (
	"errors"
	"fmt"

	"go.uber.org/zap"

	"github.com/StepaOpa/SQLinter/internal/model"
	"github.com/StepaOpa/SQLinter/internal/reconcile"
)

// ErrNoCorrection is returned when applying a record that has no fix.
var ErrNoCorrection = errors.New("query has no correction")

// ApplyResult is the outcome of applying one correction.
type ApplyResult struct {
	Path    string
	Text    string           // full text after the replacement
	Span    model.SourceSpan // covers the inserted correction
	Dropped int              // other records invalidated by the edit
	Records []model.QueryRecord
}

// Apply replaces the query identified by id with its correction. The record
// is removed, records after it are shifted and records overlapping it are
// dropped. A pass in flight for the file is superseded. A stale id yields
// a *model.StaleIdentityError and changes nothing.
func (e *Engine) Apply(id model.QueryIdentity) (ApplyResult, error) {
	rec, ok := e.reg.Lookup(id)
	if !ok {
		return ApplyResult{}, &model.StaleIdentityError{Identity: id}
	}
	if rec.Correction == nil {
		return ApplyResult{}, model.WithPath(rec.FilePath, ErrNoCorrection)
	}
	path := rec.FilePath
	s := e.slot(path)

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.text == nil {
		return ApplyResult{}, &model.StaleIdentityError{Identity: id}
	}
	before := s.text.String()

	var res ApplyResult
	err := e.reg.Update(path, func(records []model.QueryRecord) ([]model.QueryRecord, error) {
		var target *model.QueryRecord
		for i := range records {
			if records[i].Identity == id {
				target = &records[i]
				break
			}
		}
		if target == nil {
			return nil, &model.StaleIdentityError{Identity: id}
		}
		span := target.Span
		if span.AbsoluteEnd > len(before) || before[span.AbsoluteStart:span.AbsoluteEnd] != target.QueryText {
			return nil, &model.StaleIdentityError{Identity: id}
		}

		edit := reconcile.EditFor(span, *target.Correction)
		after, err := reconcile.Apply(before, edit)
		if err != nil {
			return nil, fmt.Errorf("apply correction: %w", err)
		}
		replaced, err := after.Span(edit.Start, edit.Start+len(edit.NewText))
		if err != nil {
			return nil, fmt.Errorf("apply correction: %w", err)
		}

		kept := make([]model.QueryRecord, 0, len(records)-1)
		for _, r := range records {
			if r.Identity == id {
				continue
			}
			moved, disp := reconcile.Shift(after, r.Span, edit)
			if disp == reconcile.Dropped {
				res.Dropped++
				continue
			}
			r.Span = moved
			kept = append(kept, r)
		}
		res = ApplyResult{Path: path, Text: after.String(), Span: replaced, Dropped: res.Dropped}
		return kept, nil
	})
	if err != nil {
		return ApplyResult{}, model.WithPath(path, err)
	}

	// the in-flight pass, if any, was computed against the old text
	s.gen++
	if s.cancel != nil {
		s.cancel()
	}
	s.text = reconcile.New(res.Text)
	res.Records = e.reg.Records(path)
	e.log.Info("applied correction", zap.String("path", path), zap.String("identity", string(id)), zap.Int("dropped", res.Dropped))
	return res, nil
}

// Dismiss removes the record identified by id. A stale id yields a
// *model.StaleIdentityError.
func (e *Engine) Dismiss(id model.QueryIdentity) (string, error) {
	rec, ok := e.reg.Lookup(id)
	if !ok {
		return "", &model.StaleIdentityError{Identity: id}
	}
	if err := e.reg.Remove(rec.FilePath, id); err != nil {
		return rec.FilePath, model.WithPath(rec.FilePath, err)
	}
	e.log.Debug("dismissed", zap.String("path", rec.FilePath), zap.String("identity", string(id)))
	return rec.FilePath, nil
}
