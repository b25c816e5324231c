package main

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"sync"

	"fortio.org/safecast"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/StepaOpa/SQLinter/internal/engine"
	"github.com/StepaOpa/SQLinter/internal/model"
)

const maxEventSize = 16 << 20

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the editor bridge: JSON events on stdin, JSON effects on stdout",
	Long: `serve reads one event per line from stdin, for example
  {"type":"saved","path":"app/db.py","text":"..."}
  {"type":"apply","id":"<query id>"}
and writes the resulting effects (records, write, notice) one per line to
stdout. Ranges use zero-based lines and UTF-16 characters.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		a, err := newApp()
		if err != nil {
			return err
		}
		defer a.close()
		return serve(cmd.Context(), os.Stdin, os.Stdout, a.engine, a.log)
	},
}

type dispatcher interface {
	Dispatch(ctx context.Context, ev engine.Event) []engine.Effect
}

type lspPosition struct {
	Line      uint32 `json:"line"`
	Character uint32 `json:"character"`
}

type lspRange struct {
	Start lspPosition `json:"start"`
	End   lspPosition `json:"end"`
}

type wireRecord struct {
	model.QueryRecord
	Range lspRange `json:"range"`
}

type wireEffect struct {
	Type    engine.EffectType  `json:"type"`
	Path    string             `json:"path,omitempty"`
	Records []wireRecord       `json:"records,omitempty"`
	Text    string             `json:"text,omitempty"`
	Level   engine.NoticeLevel `json:"level,omitempty"`
	Message string             `json:"message,omitempty"`
}

func toRange(s model.SourceSpan) (lspRange, error) {
	var (
		r   lspRange
		err error
	)
	if r.Start.Line, err = safecast.Conv[uint32](s.StartLine - 1); err != nil {
		return r, err
	}
	if r.Start.Character, err = safecast.Conv[uint32](s.StartColumn); err != nil {
		return r, err
	}
	if r.End.Line, err = safecast.Conv[uint32](s.EndLine - 1); err != nil {
		return r, err
	}
	if r.End.Character, err = safecast.Conv[uint32](s.EndColumn); err != nil {
		return r, err
	}
	return r, nil
}

// jsonSurface encodes effects as JSON lines. It is safe for concurrent use.
type jsonSurface struct {
	mu  sync.Mutex
	enc *json.Encoder
	log *zap.Logger
}

func (s *jsonSurface) emit(ef wireEffect) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.enc.Encode(ef)
}

func (s *jsonSurface) Show(path string, records []model.QueryRecord) {
	wire := make([]wireRecord, 0, len(records))
	for _, rec := range records {
		r, err := toRange(rec.Span)
		if err != nil {
			s.log.Warn("span out of range", zap.String("path", path), zap.String("identity", string(rec.Identity)), zap.Error(err))
			continue
		}
		wire = append(wire, wireRecord{QueryRecord: rec, Range: r})
	}
	if err := s.emit(wireEffect{Type: engine.EffectRecords, Path: path, Records: wire}); err != nil {
		s.log.Error("write effect", zap.Error(err))
	}
}

func (s *jsonSurface) Notify(level engine.NoticeLevel, message string) {
	if err := s.emit(wireEffect{Type: engine.EffectNotice, Level: level, Message: message}); err != nil {
		s.log.Error("write effect", zap.Error(err))
	}
}

// Write hands the new text to the editor, which owns the buffer.
func (s *jsonSurface) Write(path, text string) error {
	return s.emit(wireEffect{Type: engine.EffectWrite, Path: path, Text: text})
}

// lanes runs events in arrival order per file. Different files proceed
// concurrently.
type lanes struct {
	mu      sync.Mutex
	pending map[string][]engine.Event
	wg      sync.WaitGroup
	run     func(engine.Event)
}

func newLanes(run func(engine.Event)) *lanes {
	return &lanes{pending: make(map[string][]engine.Event), run: run}
}

func (l *lanes) push(key string, ev engine.Event) {
	l.mu.Lock()
	defer l.mu.Unlock()
	q, busy := l.pending[key]
	l.pending[key] = append(q, ev)
	if busy {
		return
	}
	l.wg.Add(1)
	go l.drain(key)
}

func (l *lanes) drain(key string) {
	defer l.wg.Done()
	for {
		l.mu.Lock()
		q := l.pending[key]
		if len(q) == 0 {
			delete(l.pending, key)
			l.mu.Unlock()
			return
		}
		ev := q[0]
		l.pending[key] = q[1:]
		l.mu.Unlock()
		l.run(ev)
	}
}

func (l *lanes) wait() { l.wg.Wait() }

// locator resolves the file a record belongs to.
type locator interface {
	PathOf(id model.QueryIdentity) (string, bool)
}

// laneKey is the file an event acts on. Identity events whose record is
// unknown share the "" lane.
func laneKey(d dispatcher, ev engine.Event) string {
	if ev.Path != "" {
		return ev.Path
	}
	if loc, ok := d.(locator); ok && ev.Identity != "" {
		if path, ok := loc.PathOf(ev.Identity); ok {
			return path
		}
	}
	return ""
}

// serve runs until in is exhausted or ctx is done. Events for the same file
// are handled in the order they arrive.
func serve(ctx context.Context, in io.Reader, out io.Writer, d dispatcher, log *zap.Logger) error {
	if log == nil {
		log = zap.NewNop()
	}
	surface := &jsonSurface{enc: json.NewEncoder(out), log: log}

	sc := bufio.NewScanner(in)
	sc.Buffer(make([]byte, 0, 64*1024), maxEventSize)

	work := newLanes(func(ev engine.Event) {
		if err := engine.Deliver(surface, d.Dispatch(ctx, ev)); err != nil {
			log.Error("deliver effects", zap.Error(err))
		}
	})
	defer work.wait()
	for sc.Scan() {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		line := sc.Bytes()
		if len(line) == 0 {
			continue
		}
		var ev engine.Event
		if err := json.Unmarshal(line, &ev); err != nil {
			surface.Notify(engine.NoticeWarning, fmt.Sprintf("bad event: %v", err))
			continue
		}
		work.push(laneKey(d, ev), ev)
	}
	if err := sc.Err(); err != nil {
		return fmt.Errorf("read events: %w", err)
	}
	return nil
}
