package scan

import (
	"context"
	"errors"
	"log/slog"
	"runtime"
	"sync"
	"sync/atomic"

	"golang.org/x/sync/errgroup"

	"symgrep/internal/elfx"
	"symgrep/internal/pattern"
)

// Result is the outcome of scanning one file. Exactly one of Matches and Err
// is meaningful.
type Result struct {
	Path    string
	Matches []Match
	Err     error
}

// Stats summarizes a run.
type Stats struct {
	Files   int64 // candidates visited
	Skipped int64 // non-ELF candidates
	Scanned int64 // ELF files parsed
	Matched int64 // ELF files with at least one match
	Failed  int64 // files that returned an error
}

// Scanner dispatches ScanFile over every candidate under a root on a bounded
// pool of workers. The compiled pattern is shared read-only; nothing else is
// shared between workers.
type Scanner struct {
	Pattern *pattern.Pattern
	Options Options
	Walk    WalkOptions

	// Workers bounds concurrent scans; zero means runtime.NumCPU().
	Workers int
}

// Run scans root and calls emit once per file that produced matches or an
// error. Calls to emit are serialized, so a file's output is never
// interleaved with another's; the order across files is unspecified. Non-ELF
// files are dropped without a result. Canceling ctx stops dispatching new
// files; scans already running complete.
func (s *Scanner) Run(ctx context.Context, root string, emit func(Result)) (Stats, error) {
	var stats Stats
	if !s.Options.IncludeImports && !s.Options.IncludeExports {
		return stats, nil
	}

	workers := s.Workers
	if workers <= 0 {
		workers = runtime.NumCPU()
	}
	slog.Info("Scanning for ELF files...", "root", root, "workers", workers)

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(workers)

	var mu sync.Mutex
	walkErr := Walk(root, s.Walk, func(path string) error {
		if err := gctx.Err(); err != nil {
			return err
		}
		atomic.AddInt64(&stats.Files, 1)
		g.Go(func() error {
			r, ok := s.scanOne(path, &stats)
			if !ok {
				return nil
			}
			mu.Lock()
			defer mu.Unlock()
			emit(r)
			return nil
		})
		return nil
	})
	_ = g.Wait()

	slog.Info("Scan finished",
		"files", stats.Files,
		"elf", stats.Scanned,
		"matched", stats.Matched,
		"failed", stats.Failed)
	return stats, walkErr
}

func (s *Scanner) scanOne(path string, stats *Stats) (Result, bool) {
	matches, err := ScanFile(path, s.Pattern, s.Options)
	switch {
	case errors.Is(err, elfx.ErrNotELF):
		atomic.AddInt64(&stats.Skipped, 1)
		slog.Debug("not an ELF file", "path", path)
		return Result{}, false
	case err != nil:
		atomic.AddInt64(&stats.Failed, 1)
		return Result{Path: path, Err: err}, true
	}

	atomic.AddInt64(&stats.Scanned, 1)
	if len(matches) == 0 {
		return Result{}, false
	}
	atomic.AddInt64(&stats.Matched, 1)
	return Result{Path: path, Matches: matches}, true
}
