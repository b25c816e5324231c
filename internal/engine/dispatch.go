package engine

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/multierr"
	"go.uber.org/zap"

	"github.com/StepaOpa/SQLinter/internal/model"
)

type EventType string

const (
	EventSaved   EventType = "saved"
	EventAnalyze EventType = "analyze"
	EventApply   EventType = "apply"
	EventDismiss EventType = "dismiss"
)

// Event is a trigger from the presentation surface. Text, when set, is the
// file's current content; otherwise it is read from the document store.
type Event struct {
	Type     EventType           `json:"type"`
	Path     string              `json:"path,omitempty"`
	Text     *string             `json:"text,omitempty"`
	Identity model.QueryIdentity `json:"id,omitempty"`
}

type EffectType string

const (
	// EffectRecords publishes the current records of a file.
	EffectRecords EffectType = "records"
	// EffectWrite asks the surface to replace a file's content.
	EffectWrite EffectType = "write"
	// EffectNotice shows a message.
	EffectNotice EffectType = "notice"
)

type NoticeLevel string

const (
	NoticeInfo    NoticeLevel = "info"
	NoticeWarning NoticeLevel = "warning"
	NoticeError   NoticeLevel = "error"
	// NoticePrompt asks the user to fix configuration.
	NoticePrompt NoticeLevel = "prompt"
)

type Effect struct {
	Type    EffectType          `json:"type"`
	Path    string              `json:"path,omitempty"`
	Records []model.QueryRecord `json:"records,omitempty"`
	Text    string              `json:"text,omitempty"`
	Level   NoticeLevel         `json:"level,omitempty"`
	Message string              `json:"message,omitempty"`
}

// Surface renders effects. Write must persist the new text of a file.
type Surface interface {
	Show(path string, records []model.QueryRecord)
	Notify(level NoticeLevel, message string)
	Write(path, text string) error
}

// Handler turns an event into effects.
type Handler func(ctx context.Context, ev Event) []Effect

// Handlers is the engine's dispatch table.
func (e *Engine) Handlers() map[EventType]Handler {
	return map[EventType]Handler{
		EventSaved:   e.onSaved,
		EventAnalyze: e.onAnalyze,
		EventApply:   e.onApply,
		EventDismiss: e.onDismiss,
	}
}

// Dispatch runs the handler for ev. It never panics; failures become notices.
func (e *Engine) Dispatch(ctx context.Context, ev Event) (effects []Effect) {
	defer func() {
		if r := recover(); r != nil {
			e.log.Error("handler panicked", zap.String("event", string(ev.Type)), zap.Any("panic", r))
			effects = []Effect{notice(NoticeError, fmt.Sprintf("internal error handling %s: %v", ev.Type, r))}
		}
	}()

	h, ok := e.Handlers()[ev.Type]
	if !ok {
		return []Effect{notice(NoticeWarning, fmt.Sprintf("unknown event %q", ev.Type))}
	}
	return h(ctx, ev)
}

// Deliver hands effects to a surface in order. Write failures are collected.
func Deliver(s Surface, effects []Effect) error {
	var errs error
	for _, ef := range effects {
		switch ef.Type {
		case EffectRecords:
			s.Show(ef.Path, ef.Records)
		case EffectNotice:
			s.Notify(ef.Level, ef.Message)
		case EffectWrite:
			if err := s.Write(ef.Path, ef.Text); err != nil {
				errs = multierr.Append(errs, model.WithPath(ef.Path, err))
				s.Notify(NoticeError, fmt.Sprintf("write %s: %v", ef.Path, err))
			}
		}
	}
	return errs
}

func (e *Engine) onSaved(ctx context.Context, ev Event) []Effect {
	if !e.opts.AnalyzeOnSave {
		return nil
	}
	return e.onAnalyze(ctx, ev)
}

func (e *Engine) onAnalyze(ctx context.Context, ev Event) []Effect {
	if ev.Path == "" {
		return []Effect{notice(NoticeWarning, "analyze: no file given")}
	}
	var (
		res PassResult
		err error
	)
	if ev.Text != nil {
		res, err = e.Analyze(ctx, ev.Path, *ev.Text)
	} else {
		res, err = e.AnalyzeFile(ctx, ev.Path)
	}
	if err != nil {
		return []Effect{NoticeFor(err)}
	}
	return []Effect{{Type: EffectRecords, Path: res.Path, Records: res.Records}}
}

func (e *Engine) onApply(_ context.Context, ev Event) []Effect {
	res, err := e.Apply(ev.Identity)
	if err != nil {
		return []Effect{NoticeFor(err)}
	}
	effects := []Effect{
		{Type: EffectWrite, Path: res.Path, Text: res.Text},
		{Type: EffectRecords, Path: res.Path, Records: res.Records},
	}
	if res.Dropped > 0 {
		effects = append(effects, notice(NoticeInfo, fmt.Sprintf("%d overlapping queries need re-analysis", res.Dropped)))
	}
	return effects
}

func (e *Engine) onDismiss(_ context.Context, ev Event) []Effect {
	path, err := e.Dismiss(ev.Identity)
	if err != nil {
		return []Effect{NoticeFor(err)}
	}
	return []Effect{{Type: EffectRecords, Path: path, Records: e.reg.Records(path)}}
}

func notice(level NoticeLevel, msg string) Effect {
	return Effect{Type: EffectNotice, Level: level, Message: msg}
}

// NoticeFor maps an engine error onto the notice shown to the user.
func NoticeFor(err error) Effect {
	var (
		cfg *model.ConfigurationError
		xe  *model.ExtractionError
	)
	switch {
	case errors.Is(err, model.ErrStaleIdentity):
		return notice(NoticeInfo, "query is no longer present; nothing to do")
	case errors.Is(err, ErrSuperseded):
		return notice(NoticeInfo, err.Error())
	case errors.As(err, &cfg):
		return notice(NoticePrompt, fmt.Sprintf("configure %s to enable analysis (%v)", cfg.Setting, cfg.Err))
	case errors.As(err, &xe):
		return notice(NoticeWarning, err.Error())
	default:
		return notice(NoticeError, err.Error())
	}
}
