// Package cache persists verdicts in SQLite so unchanged queries are not sent
// to a verdict source twice.
package cache

import (
	"context"
	"encoding/hex"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/zeebo/xxh3"
	"go.uber.org/zap"
	"zombiezen.com/go/sqlite"
	"zombiezen.com/go/sqlite/sqlitex"

	"github.com/StepaOpa/SQLinter/internal/model"
)

const schema = `
CREATE TABLE IF NOT EXISTS verdicts (
	key        TEXT PRIMARY KEY,
	source     TEXT NOT NULL,
	query      TEXT NOT NULL,
	verdict    TEXT NOT NULL,
	reason     TEXT NOT NULL,
	correction TEXT,
	created_at INTEGER NOT NULL
);
`

// Entry is a cached verdict.
type Entry struct {
	Kind       model.VerdictKind
	Reason     string
	Correction *string
}

// Store is a verdict cache backed by one SQLite connection.
type Store struct {
	mu   sync.Mutex
	conn *sqlite.Conn
}

// Open opens or creates the cache database at path.
func Open(path string) (*Store, error) {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("create cache dir: %w", err)
		}
	}
	conn, err := sqlite.OpenConn(path, sqlite.OpenCreate, sqlite.OpenReadWrite, sqlite.OpenWAL)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	if err := sqlitex.ExecuteTransient(conn, "PRAGMA synchronous = NORMAL", nil); err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("set synchronous: %w", err)
	}
	if err := sqlitex.ExecuteScript(conn, schema, nil); err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("create tables: %w", err)
	}
	return &Store{conn: conn}, nil
}

func (s *Store) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.conn.Close()
}

// Key identifies the verdict of source for query.
func Key(source, query string) string {
	h := xxh3.New()
	_, _ = h.WriteString(source)
	_, _ = h.Write([]byte{0})
	_, _ = h.WriteString(query)
	sum := h.Sum128().Bytes()
	return hex.EncodeToString(sum[:])
}

// Get returns the cached verdict of source for query.
func (s *Store) Get(source, query string) (Entry, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var e Entry
	found := false
	err := sqlitex.Execute(s.conn, `SELECT verdict, reason, correction FROM verdicts WHERE key = ?`, &sqlitex.ExecOptions{
		Args: []any{Key(source, query)},
		ResultFunc: func(stmt *sqlite.Stmt) error {
			found = true
			e.Kind = model.ParseVerdictKind(stmt.ColumnText(0))
			e.Reason = stmt.ColumnText(1)
			if stmt.ColumnType(2) != sqlite.TypeNull {
				fix := stmt.ColumnText(2)
				e.Correction = &fix
			}
			return nil
		},
	})
	if err != nil {
		return Entry{}, false, fmt.Errorf("read cache: %w", err)
	}
	return e, found, nil
}

// Put stores the verdict of source for query, replacing any earlier one.
func (s *Store) Put(source, query string, e Entry) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	var correction any
	if e.Correction != nil {
		correction = *e.Correction
	}
	err := sqlitex.Execute(s.conn,
		`INSERT OR REPLACE INTO verdicts (key, source, query, verdict, reason, correction, created_at) VALUES (?, ?, ?, ?, ?, ?, ?)`,
		&sqlitex.ExecOptions{
			Args: []any{Key(source, query), source, query, e.Kind.String(), e.Reason, correction, time.Now().Unix()},
		})
	if err != nil {
		return fmt.Errorf("write cache: %w", err)
	}
	return nil
}

// Len is the number of cached verdicts.
func (s *Store) Len() (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var n int64
	err := sqlitex.ExecuteTransient(s.conn, `SELECT count(*) FROM verdicts`, &sqlitex.ExecOptions{
		ResultFunc: func(stmt *sqlite.Stmt) error {
			n = stmt.ColumnInt64(0)
			return nil
		},
	})
	return int(n), err
}

// Fingerprinter is implemented by sources whose verdicts depend on settings
// beyond their name, such as the model they ask. The fingerprint replaces
// the name in cache keys.
type Fingerprinter interface {
	Fingerprint() string
}

// Source answers from the store and forwards only misses to the wrapped
// source. Unknown verdicts are never stored.
type Source struct {
	inner model.VerdictSource
	store *Store
	log   *zap.Logger
}

func Wrap(inner model.VerdictSource, store *Store, log *zap.Logger) *Source {
	if log == nil {
		log = zap.NewNop()
	}
	return &Source{inner: inner, store: store, log: log}
}

func (s *Source) Name() string { return s.inner.Name() }

func (s *Source) key() string {
	if f, ok := s.inner.(Fingerprinter); ok {
		return f.Fingerprint()
	}
	return s.inner.Name()
}

func (s *Source) NeedsCredential() bool {
	g, ok := s.inner.(model.CredentialGated)
	return ok && g.NeedsCredential()
}

func (s *Source) Analyze(ctx context.Context, filePath string, text []byte, candidates []model.Candidate) ([]model.Verdict, error) {
	out := make([]model.Verdict, len(candidates))
	key := s.key()
	var misses []model.Candidate
	var missAt []int
	for i, c := range candidates {
		e, ok, err := s.store.Get(key, c.Text)
		if err != nil {
			s.log.Warn("cache lookup failed", zap.Error(err))
		}
		if !ok {
			misses = append(misses, c)
			missAt = append(missAt, i)
			continue
		}
		out[i] = model.Verdict{Candidate: c, Kind: e.Kind, Reason: e.Reason, Correction: e.Correction}
	}
	s.log.Debug("cache", zap.String("path", filePath), zap.Int("hits", len(candidates)-len(misses)), zap.Int("misses", len(misses)))
	if len(misses) == 0 {
		return out, nil
	}

	fresh, err := s.inner.Analyze(ctx, filePath, text, misses)
	if err != nil {
		return nil, err
	}
	if len(fresh) != len(misses) {
		return nil, &model.ResponseFormatError{Source: s.inner.Name(), Err: fmt.Errorf("got %d verdicts for %d queries", len(fresh), len(misses))}
	}
	for j, v := range fresh {
		out[missAt[j]] = v
		if v.Kind == model.VerdictUnknown {
			continue
		}
		if err := s.store.Put(key, v.Candidate.Text, Entry{Kind: v.Kind, Reason: v.Reason, Correction: v.Correction}); err != nil {
			s.log.Warn("cache write failed", zap.Error(err))
		}
	}
	return out, nil
}
