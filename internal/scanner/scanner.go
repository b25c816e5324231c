package scanner

import (
	"context"
	"io/fs"
	"path/filepath"
	"sort"
	"strings"

	"go.uber.org/multierr"
	"golang.org/x/sync/errgroup"

	"github.com/StepaOpa/SQLinter/internal/model"
)

// DefaultExtensions are the source files scanned when none are configured.
var DefaultExtensions = []string{"py", "pyi", "go"}

// FileWalker is responsible for traversing directories and feeding files to a channel
type FileWalker struct {
	Extensions map[string]struct{}
	Excludes   []string
}

func NewFileWalker(exts []string, excludes []string) *FileWalker {
	if len(exts) == 0 {
		exts = DefaultExtensions
	}
	e := make(map[string]struct{})
	for _, ext := range exts {
		e[strings.ToLower(strings.TrimPrefix(ext, "."))] = struct{}{}
	}
	return &FileWalker{
		Extensions: e,
		Excludes:   excludes,
	}
}

// Walk starts the traversal of every root and returns a channel of file paths.
// It runs in a separate goroutine and closes both channels when done.
func (fw *FileWalker) Walk(ctx context.Context, roots ...string) (<-chan string, <-chan error) {
	paths := make(chan string, 100)
	errs := make(chan error, len(roots))

	go func() {
		defer close(paths)
		defer close(errs)

		for _, root := range roots {
			if err := fw.walk(ctx, root, paths); err != nil {
				errs <- err
				if ctx.Err() != nil {
					return
				}
			}
		}
	}()

	return paths, errs
}

func (fw *FileWalker) walk(ctx context.Context, root string, paths chan<- string) error {
	return filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		if d.IsDir() {
			if path == root {
				return nil
			}
			for _, exclude := range fw.Excludes {
				if strings.Contains(path, exclude) {
					return filepath.SkipDir
				}
			}
			if strings.HasPrefix(d.Name(), ".") {
				return filepath.SkipDir // .git, .venv and friends
			}
			return nil
		}

		if !fw.Match(path) {
			return nil
		}
		select {
		case paths <- path:
		case <-ctx.Done():
			return ctx.Err()
		}
		return nil
	})
}

// Match reports whether a file path passes the extension and exclude filters.
func (fw *FileWalker) Match(path string) bool {
	name := filepath.Base(path)
	for _, exclude := range fw.Excludes {
		matched, _ := filepath.Match(exclude, name)
		if matched || strings.Contains(path, exclude) {
			return false
		}
	}
	ext := strings.ToLower(strings.TrimPrefix(filepath.Ext(path), "."))
	_, ok := fw.Extensions[ext]
	return ok
}

type ScanResult struct {
	File    string
	Records []model.QueryRecord
	Error   error
}

// Processor runs one file through analysis.
type Processor func(ctx context.Context, path string) ([]model.QueryRecord, error)

// WorkerPool manages concurrent processing
type WorkerPool struct {
	Concurrency int
	Processor   Processor
}

func NewWorkerPool(concurrency int, proc Processor) *WorkerPool {
	if concurrency <= 0 {
		concurrency = 1
	}
	return &WorkerPool{
		Concurrency: concurrency,
		Processor:   proc,
	}
}

// Start processes paths with at most Concurrency files in flight. A failing
// file does not stop the others; its error travels in its result.
func (wp *WorkerPool) Start(ctx context.Context, paths <-chan string) <-chan ScanResult {
	results := make(chan ScanResult)

	go func() {
		defer close(results)

		var g errgroup.Group
		g.SetLimit(wp.Concurrency)
		for path := range paths {
			if ctx.Err() != nil {
				break
			}
			g.Go(func() error {
				recs, err := wp.Processor(ctx, path)
				select {
				case results <- ScanResult{File: path, Records: recs, Error: err}:
				case <-ctx.Done():
				}
				return nil
			})
		}
		_ = g.Wait()
	}()

	return results
}

// Collect drains results into records ordered by file and position, joining
// per-file errors.
func Collect(results <-chan ScanResult) ([]model.QueryRecord, error) {
	var (
		records []model.QueryRecord
		errs    error
	)
	for res := range results {
		if res.Error != nil {
			errs = multierr.Append(errs, res.Error)
			continue
		}
		records = append(records, res.Records...)
	}
	sort.SliceStable(records, func(i, j int) bool {
		if records[i].FilePath != records[j].FilePath {
			return records[i].FilePath < records[j].FilePath
		}
		return records[i].Span.AbsoluteStart < records[j].Span.AbsoluteStart
	})
	return records, errs
}

// Scan walks roots and processes every matching file through pool.
func Scan(ctx context.Context, fw *FileWalker, pool *WorkerPool, roots ...string) ([]model.QueryRecord, error) {
	paths, walkErrs := fw.Walk(ctx, roots...)
	records, err := Collect(pool.Start(ctx, paths))
	for werr := range walkErrs {
		err = multierr.Append(err, werr)
	}
	return records, err
}
