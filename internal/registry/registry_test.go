package registry

import (
	"errors"
	"fmt"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/StepaOpa/SQLinter/internal/model"
)

func record(path, text string, start int) model.QueryRecord {
	return model.QueryRecord{
		Identity:  NewIdentity(text, path, start),
		QueryText: text,
		Span:      model.SourceSpan{AbsoluteStart: start, AbsoluteEnd: start + len(text)},
		FilePath:  path,
	}
}

func TestNewIdentity(t *testing.T) {
	a := NewIdentity("SELECT 1", "a.py", 10)

	assert.Len(t, string(a), 32)
	assert.Equal(t, a, NewIdentity("SELECT 1", "a.py", 10), "same slot, same identity")
	assert.NotEqual(t, a, NewIdentity("SELECT 1", "a.py", 11))
	assert.NotEqual(t, a, NewIdentity("SELECT 1", "b.py", 10))
	assert.NotEqual(t, a, NewIdentity("SELECT 2", "a.py", 10))
	assert.NotEqual(t, NewIdentity("ab", "c", 1), NewIdentity("a", "bc", 1), "fields are delimited")
}

func TestNewRecords(t *testing.T) {
	fix := "SELECT 1"
	verdicts := []model.Verdict{
		{Candidate: model.Candidate{Text: "SELECT * FROM t", Span: model.SourceSpan{AbsoluteStart: 10, AbsoluteEnd: 25}}, Kind: model.VerdictCorrect},
		{Candidate: model.Candidate{Text: "SELECT bad", Span: model.SourceSpan{AbsoluteStart: 50, AbsoluteEnd: 60}}, Kind: model.VerdictError, Reason: "syntax", Correction: &fix},
	}

	recs := NewRecords("q.py", verdicts)
	require.Len(t, recs, 2)
	assert.Equal(t, NewIdentity("SELECT bad", "q.py", 50), recs[1].Identity)
	assert.Equal(t, "q.py", recs[1].FilePath)
	assert.Equal(t, model.VerdictError, recs[1].Verdict)
	assert.True(t, recs[1].Fixable())
	assert.False(t, recs[0].Fixable())
}

func TestRegistry_ReplaceAndLookup(t *testing.T) {
	reg := New()
	first := []model.QueryRecord{record("a.py", "SELECT 1", 0), record("a.py", "SELECT 2", 20)}
	reg.ReplaceFileRecords("a.py", first)

	got, ok := reg.Lookup(first[1].Identity)
	require.True(t, ok)
	assert.Equal(t, "SELECT 2", got.QueryText)
	assert.Equal(t, first, reg.Records("a.py"))

	second := []model.QueryRecord{record("a.py", "SELECT 3", 5)}
	reg.ReplaceFileRecords("a.py", second)

	_, ok = reg.Lookup(first[0].Identity)
	assert.False(t, ok, "old identities stop resolving")
	_, ok = reg.Lookup(second[0].Identity)
	assert.True(t, ok)
	assert.Equal(t, 1, reg.Len("a.py"))
}

func TestRegistry_DuplicateIdentityKeepsFirst(t *testing.T) {
	reg := New()
	a := record("a.py", "SELECT 1", 0)
	b := a
	b.Reason = "second"
	reg.ReplaceFileRecords("a.py", []model.QueryRecord{a, b, record("a.py", "SELECT 2", 9)})

	recs := reg.Records("a.py")
	require.Len(t, recs, 2)
	assert.Empty(t, recs[0].Reason)
}

func TestRegistry_Remove(t *testing.T) {
	reg := New()
	recs := []model.QueryRecord{
		record("a.py", "SELECT 1", 0),
		record("a.py", "SELECT 2", 20),
		record("a.py", "SELECT 3", 40),
	}
	reg.ReplaceFileRecords("a.py", recs)

	require.NoError(t, reg.Remove("a.py", recs[1].Identity))
	assert.Equal(t, []model.QueryRecord{recs[0], recs[2]}, reg.Records("a.py"))

	got, ok := reg.Lookup(recs[2].Identity)
	require.True(t, ok)
	assert.Equal(t, recs[2], got)

	err := reg.Remove("a.py", recs[1].Identity)
	assert.True(t, errors.Is(err, model.ErrStaleIdentity))
	var stale *model.StaleIdentityError
	require.ErrorAs(t, err, &stale)
	assert.Equal(t, recs[1].Identity, stale.Identity)

	assert.ErrorIs(t, reg.Remove("missing.py", recs[0].Identity), model.ErrStaleIdentity)
}

func TestRegistry_UpdateSpan(t *testing.T) {
	reg := New()
	recs := []model.QueryRecord{record("a.py", "SELECT 1", 0), record("a.py", "SELECT 2", 20)}
	reg.ReplaceFileRecords("a.py", recs)

	moved := model.SourceSpan{AbsoluteStart: 25, AbsoluteEnd: 33, StartLine: 2, EndLine: 2}
	require.NoError(t, reg.UpdateSpan("a.py", recs[1].Identity, moved))

	got, ok := reg.Lookup(recs[1].Identity)
	require.True(t, ok, "identity survives a span update")
	assert.Equal(t, moved, got.Span)

	assert.ErrorIs(t, reg.UpdateSpan("a.py", "nope", moved), model.ErrStaleIdentity)
}

func TestRegistry_UpdateIsAtomic(t *testing.T) {
	reg := New()
	recs := []model.QueryRecord{record("a.py", "SELECT 1", 0)}
	reg.ReplaceFileRecords("a.py", recs)

	boom := errors.New("boom")
	err := reg.Update("a.py", func(rs []model.QueryRecord) ([]model.QueryRecord, error) {
		rs[0].Reason = "mutated"
		return nil, boom
	})
	assert.ErrorIs(t, err, boom)
	assert.Equal(t, recs, reg.Records("a.py"), "failed update leaves state untouched")
}

func TestRegistry_RecordsIsSnapshot(t *testing.T) {
	reg := New()
	reg.ReplaceFileRecords("a.py", []model.QueryRecord{record("a.py", "SELECT 1", 0)})

	snap := reg.Records("a.py")
	snap[0].QueryText = "changed"
	assert.Equal(t, "SELECT 1", reg.Records("a.py")[0].QueryText)
	assert.Nil(t, reg.Records("never.py"))
}

func TestRegistry_Files(t *testing.T) {
	reg := New()
	reg.ReplaceFileRecords("b.py", []model.QueryRecord{record("b.py", "SELECT 1", 0)})
	reg.ReplaceFileRecords("a.py", []model.QueryRecord{record("a.py", "SELECT 1", 0)})
	reg.ReplaceFileRecords("c.py", nil)

	assert.Equal(t, []string{"a.py", "b.py"}, reg.Files())
}

func TestRegistry_ConcurrentFiles(t *testing.T) {
	reg := New()
	var wg sync.WaitGroup
	for f := 0; f < 8; f++ {
		path := fmt.Sprintf("f%d.py", f)
		wg.Add(2)
		go func() {
			defer wg.Done()
			for i := 0; i < 200; i++ {
				reg.ReplaceFileRecords(path, []model.QueryRecord{
					record(path, "SELECT 1", i),
					record(path, "SELECT 2", i+100),
				})
			}
		}()
		go func() {
			defer wg.Done()
			for i := 0; i < 200; i++ {
				recs := reg.Records(path)
				if len(recs) != 0 && len(recs) != 2 {
					t.Errorf("torn snapshot: %d records", len(recs))
				}
				for _, rec := range recs {
					reg.Lookup(rec.Identity)
				}
			}
		}()
	}
	wg.Wait()

	for f := 0; f < 8; f++ {
		path := fmt.Sprintf("f%d.py", f)
		recs := reg.Records(path)
		require.Len(t, recs, 2)
		assert.Equal(t, 199, recs[0].Span.AbsoluteStart)
		for _, rec := range recs {
			got, ok := reg.Lookup(rec.Identity)
			require.True(t, ok)
			assert.Equal(t, path, got.FilePath)
		}
	}
}

func TestRegistry_LookupDuringReplace(t *testing.T) {
	r := New()
	kept := record("a.py", "SELECT 1", 0)
	r.ReplaceFileRecords("a.py", []model.QueryRecord{kept})

	stop := make(chan struct{})
	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		for i := 0; ; i++ {
			select {
			case <-stop:
				return
			default:
			}
			r.ReplaceFileRecords("a.py", []model.QueryRecord{kept, record("a.py", fmt.Sprintf("SELECT %d", i+2), 100)})
		}
	}()

	for range 2000 {
		_, ok := r.Lookup(kept.Identity)
		if !assert.True(t, ok, "identity present in every set must resolve") {
			break
		}
	}
	close(stop)
	wg.Wait()
}
