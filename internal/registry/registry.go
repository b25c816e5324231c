// Package registry holds the current query records of every analysed file.
//
// Each file has its own lock; writers to one file never block readers or
// writers of another. Lookups by identity go through an identity to path index
// and a per-file position map.
package registry

import (
	"slices"
	"sort"
	"sync"

	"github.com/StepaOpa/SQLinter/internal/model"
)

type fileEntry struct {
	mu      sync.RWMutex
	records []model.QueryRecord
	pos     map[model.QueryIdentity]int
}

// Registry maps file paths to ordered query records.
type Registry struct {
	mu    sync.Mutex // guards files, never held while an entry lock is taken
	files map[string]*fileEntry
	index sync.Map // model.QueryIdentity -> string
}

func New() *Registry {
	return &Registry{files: make(map[string]*fileEntry)}
}

func (r *Registry) entry(path string, create bool) *fileEntry {
	r.mu.Lock()
	defer r.mu.Unlock()
	e, ok := r.files[path]
	if !ok && create {
		e = &fileEntry{pos: make(map[model.QueryIdentity]int)}
		r.files[path] = e
	}
	return e
}

// ReplaceFileRecords swaps the records of path. Identities issued for the old
// set stop resolving. Of several records sharing an identity the first is kept.
func (r *Registry) ReplaceFileRecords(path string, records []model.QueryRecord) {
	e := r.entry(path, true)
	e.mu.Lock()
	defer e.mu.Unlock()
	r.swap(path, e, records)
}

// swap installs records and keeps the index in step. e.mu must be held.
// Identities present in both sets stay resolvable throughout.
func (r *Registry) swap(path string, e *fileEntry, records []model.QueryRecord) {
	kept := make([]model.QueryRecord, 0, len(records))
	pos := make(map[model.QueryIdentity]int, len(records))
	for _, rec := range records {
		if _, dup := pos[rec.Identity]; dup {
			continue
		}
		rec.FilePath = path
		pos[rec.Identity] = len(kept)
		kept = append(kept, rec)
		r.index.Store(rec.Identity, path)
	}
	for id := range e.pos {
		if _, still := pos[id]; !still {
			r.index.CompareAndDelete(id, path)
		}
	}
	e.records = kept
	e.pos = pos
}

// Lookup finds a record by identity in any file.
func (r *Registry) Lookup(id model.QueryIdentity) (model.QueryRecord, bool) {
	v, ok := r.index.Load(id)
	if !ok {
		return model.QueryRecord{}, false
	}
	e := r.entry(v.(string), false)
	if e == nil {
		return model.QueryRecord{}, false
	}
	e.mu.RLock()
	defer e.mu.RUnlock()
	i, ok := e.pos[id]
	if !ok {
		return model.QueryRecord{}, false
	}
	return e.records[i], true
}

// Remove deletes exactly one record. The other records keep their order and
// identity. A missing identity yields a *model.StaleIdentityError.
func (r *Registry) Remove(path string, id model.QueryIdentity) error {
	return r.Update(path, func(records []model.QueryRecord) ([]model.QueryRecord, error) {
		i := slices.IndexFunc(records, func(rec model.QueryRecord) bool { return rec.Identity == id })
		if i < 0 {
			return nil, &model.StaleIdentityError{Identity: id}
		}
		return slices.Delete(records, i, i+1), nil
	})
}

// UpdateSpan moves one record without changing its identity.
func (r *Registry) UpdateSpan(path string, id model.QueryIdentity, span model.SourceSpan) error {
	return r.Update(path, func(records []model.QueryRecord) ([]model.QueryRecord, error) {
		i := slices.IndexFunc(records, func(rec model.QueryRecord) bool { return rec.Identity == id })
		if i < 0 {
			return nil, &model.StaleIdentityError{Identity: id}
		}
		records[i].Span = span
		sort.SliceStable(records, func(a, b int) bool {
			return records[a].Span.AbsoluteStart < records[b].Span.AbsoluteStart
		})
		return records, nil
	})
}

// Update runs fn on a copy of the records of path under the file's write lock
// and installs the result unless fn fails. Nothing changes on error.
func (r *Registry) Update(path string, fn func([]model.QueryRecord) ([]model.QueryRecord, error)) error {
	e := r.entry(path, true)
	e.mu.Lock()
	defer e.mu.Unlock()

	next, err := fn(slices.Clone(e.records))
	if err != nil {
		return err
	}
	r.swap(path, e, next)
	return nil
}

// Records returns a snapshot of the records of path in extraction order.
func (r *Registry) Records(path string) []model.QueryRecord {
	e := r.entry(path, false)
	if e == nil {
		return nil
	}
	e.mu.RLock()
	defer e.mu.RUnlock()
	return slices.Clone(e.records)
}

// Files lists paths that currently hold at least one record, sorted.
func (r *Registry) Files() []string {
	r.mu.Lock()
	entries := make(map[string]*fileEntry, len(r.files))
	for p, e := range r.files {
		entries[p] = e
	}
	r.mu.Unlock()

	var paths []string
	for p, e := range entries {
		e.mu.RLock()
		n := len(e.records)
		e.mu.RUnlock()
		if n > 0 {
			paths = append(paths, p)
		}
	}
	sort.Strings(paths)
	return paths
}

// Len is the number of records held for path.
func (r *Registry) Len(path string) int {
	e := r.entry(path, false)
	if e == nil {
		return 0
	}
	e.mu.RLock()
	defer e.mu.RUnlock()
	return len(e.records)
}
