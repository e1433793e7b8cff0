// Package engine reconciles a target addon directory against resolved
// sources: backup first, then bounded-concurrency materialization with a
// live status view.
package engine

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"sync"
	"time"

	"github.com/wowsync/wowsync/internal/archive"
	"github.com/wowsync/wowsync/internal/cache"
	"github.com/wowsync/wowsync/internal/provider"
	"github.com/wowsync/wowsync/internal/resolver"
	"github.com/wowsync/wowsync/internal/store"
	"github.com/wowsync/wowsync/internal/toc"
)

// ErrUnsafeTarget indicates the target directory is populated with
// something that is not an addon inventory. Syncing into it could
// destroy unrelated data.
var ErrUnsafeTarget = errors.New("target directory does not look like an addon directory")

// Engine orchestrates target backup and concurrent source syncs.
type Engine struct {
	cache   *cache.Cache
	store   *store.Store // optional run history, may be nil
	logger  *slog.Logger
	out     io.Writer
	workers int
}

// New creates a sync engine. out receives the live status table; nil
// defaults to stdout.
func New(c *cache.Cache, st *store.Store, out io.Writer, logger *slog.Logger) *Engine {
	if logger == nil {
		logger = slog.Default()
	}
	if out == nil {
		out = os.Stdout
	}
	return &Engine{
		cache:   c,
		store:   st,
		logger:  logger,
		out:     out,
		workers: provider.PoolWidth,
	}
}

// Report summarizes one sync pass.
type Report struct {
	Target    string
	Total     int
	Succeeded int
	Failed    int
	Skipped   []string
	Backup    string
}

// Sync reconciles targetDir against the resolution result. The target is
// backed up (deduplicated by content) before any source touches it; each
// source then materializes concurrently, failures isolated per source.
// Completion is best effort across all sources, never all-or-nothing.
func (e *Engine) Sync(ctx context.Context, targetDir string, res *resolver.Result, reg *provider.Registry) (*Report, error) {
	report := &Report{Target: targetDir, Skipped: res.Skipped}

	backupPath, err := e.prepareTarget(targetDir)
	if err != nil {
		return nil, err
	}
	report.Backup = backupPath

	sources := res.Sources(reg)
	report.Total = len(sources)
	if len(sources) == 0 {
		e.logger.Warn("nothing to sync: no sources resolved")
		return report, nil
	}

	run := &store.SyncRun{Target: targetDir, SourcesTotal: len(sources), Skipped: len(res.Skipped)}
	if e.store != nil {
		if err := e.store.CreateSyncRun(run); err != nil {
			e.logger.Warn("unable to record sync run", "error", err)
		} else {
			e.recordResolution(run.ID, res)
		}
	}

	e.dispatch(ctx, targetDir, sources, reg)

	for _, src := range sources {
		if src.Status().Succeeded() {
			report.Succeeded++
		} else {
			report.Failed++
		}
	}

	if e.store != nil && run.ID != 0 {
		run.SourcesFailed = report.Failed
		if report.Failed > 0 {
			run.Status = "partial"
		} else {
			run.Status = "success"
		}
		if err := e.store.FinishSyncRun(run); err != nil {
			e.logger.Warn("unable to finish sync run record", "error", err)
		}
	}

	e.logger.Info("sync completed",
		"target", targetDir,
		"sources", report.Total,
		"succeeded", report.Succeeded,
		"failed", report.Failed,
		"skipped", len(report.Skipped),
	)
	return report, nil
}

// prepareTarget validates the target directory and takes a deduplicated
// backup when it already holds an inventory. It returns the backup path,
// empty when no backup was needed.
func (e *Engine) prepareTarget(targetDir string) (string, error) {
	fi, err := os.Stat(targetDir)
	switch {
	case os.IsNotExist(err):
		if err := os.MkdirAll(targetDir, 0755); err != nil {
			return "", fmt.Errorf("creating target directory: %w", err)
		}
		return "", nil
	case err != nil:
		return "", fmt.Errorf("checking target directory: %w", err)
	case !fi.IsDir():
		return "", fmt.Errorf("target %s is not a directory", targetDir)
	}

	entries, err := toc.Scan(targetDir)
	if errors.Is(err, toc.ErrNoAddonsFound) {
		dirents, readErr := os.ReadDir(targetDir)
		if readErr != nil {
			return "", fmt.Errorf("reading target directory: %w", readErr)
		}
		if len(dirents) > 0 {
			// A populated directory with no inventory is likely not
			// ours to mutate.
			return "", fmt.Errorf("%w: %s is non-empty but contains no addons", ErrUnsafeTarget, targetDir)
		}
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("scanning target: %w", err)
	}

	e.logger.Info("backing up target before sync", "target", targetDir, "addons", len(entries))
	data, err := archive.ZipDir(targetDir, e.logger)
	if err != nil {
		return "", fmt.Errorf("archiving target: %w", err)
	}
	path, created, err := e.cache.StoreBackup(time.Now(), data)
	if err != nil {
		return "", fmt.Errorf("storing backup: %w", err)
	}
	if created {
		e.logger.Info("backup written", "path", path)
	} else {
		e.logger.Info("identical backup already cached", "path", path)
	}
	return path, nil
}

// dispatch fans the sources out over the worker pool, reprinting the
// status table once per completion in whatever order the pool yields.
func (e *Engine) dispatch(ctx context.Context, targetDir string, sources []provider.Source, reg *provider.Registry) {
	jobs := make(chan provider.Source, len(sources))
	done := make(chan provider.Source, len(sources))

	var wg sync.WaitGroup
	for w := 0; w < e.workers; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for src := range jobs {
				e.syncOne(ctx, src, targetDir)
				done <- src
			}
		}()
	}

	for _, src := range sources {
		jobs <- src
	}
	close(jobs)

	go func() {
		wg.Wait()
		close(done)
	}()

	view := newProgressView(e.out, sources)
	for range done {
		view.Redraw()
	}
}

// syncOne runs a single source sync, isolating its failure. A panicking
// source is a programming error in the source; it is captured and logged
// so sibling in-flight syncs continue undisturbed.
func (e *Engine) syncOne(ctx context.Context, src provider.Source, targetDir string) {
	defer func() {
		if r := recover(); r != nil {
			err := fmt.Errorf("panic during sync: %v", r)
			src.Status().SetError(err)
			e.logger.Error("source sync panicked", "provider", src.ProviderName(), "source", src.Name(), "panic", r)
		}
	}()

	if err := src.Sync(ctx, targetDir); err != nil {
		e.logger.Warn("source sync failed", "provider", src.ProviderName(), "source", src.Name(), "error", err)
		return
	}
	e.logger.Debug("source sync succeeded", "provider", src.ProviderName(), "source", src.Name(), "subdirs", src.Status().Subdirs())
}

// recordResolution stores the id assignments for history.
func (e *Engine) recordResolution(runID int64, res *resolver.Result) {
	var assignments []store.ResolvedSource
	for _, id := range res.IDs {
		src, ok := res.Assigned[id]
		if !ok {
			continue
		}
		assignments = append(assignments, store.ResolvedSource{
			RunID:    runID,
			Addon:    id,
			Provider: src.ProviderName(),
			Source:   src.Name(),
		})
	}
	if err := e.store.RecordResolution(runID, assignments); err != nil {
		e.logger.Warn("unable to record resolution", "error", err)
	}
}
