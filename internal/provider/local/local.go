// Package local implements the local-filesystem provider: directories
// supplied directly by the caller, materialized into the target by
// symbolic link rather than copying.
package local

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/wowsync/wowsync/internal/archive"
	"github.com/wowsync/wowsync/internal/provider"
	"github.com/wowsync/wowsync/internal/toc"
)

// Provider wraps configured directories as sources. No discovery is
// needed; the directories are the sources.
type Provider struct {
	dirs   []string
	logger *slog.Logger
}

// New creates the local provider over the given addon directories.
func New(dirs []string, logger *slog.Logger) *Provider {
	if logger == nil {
		logger = slog.Default()
	}
	return &Provider{dirs: dirs, logger: logger}
}

func (p *Provider) Name() string { return "local" }

func (p *Provider) Metadata() map[string]string {
	return map[string]string{"kind": "local-filesystem"}
}

// Discover wraps each existing configured directory as a DirSource.
func (p *Provider) Discover(ctx context.Context, ids []string) ([]provider.Source, error) {
	var sources []provider.Source
	for _, dir := range p.dirs {
		fi, err := os.Stat(dir)
		if err != nil || !fi.IsDir() {
			p.logger.Warn("skipping local source: not a directory", "path", dir)
			continue
		}
		sources = append(sources, NewDirSource(dir, p.logger))
	}
	return sources, nil
}

// DirSource is one local directory whose addon subfolders are linked into
// the target.
type DirSource struct {
	path   string
	logger *slog.Logger

	addonsResolved bool
	addonNames     []string

	status provider.SyncStatus
}

// NewDirSource creates a source for a local addon directory.
func NewDirSource(path string, logger *slog.Logger) *DirSource {
	if logger == nil {
		logger = slog.Default()
	}
	return &DirSource{path: path, logger: logger.With("source", filepath.Base(path))}
}

func (s *DirSource) Name() string { return filepath.Base(s.path) }

func (s *DirSource) ProviderName() string { return "local" }

func (s *DirSource) Status() *provider.SyncStatus { return &s.status }

// Addons scans the directory once and caches the valid addon ids found.
func (s *DirSource) Addons(ctx context.Context) ([]string, error) {
	if s.addonsResolved {
		return s.addonNames, nil
	}
	s.addonsResolved = true

	entries, err := toc.Scan(s.path)
	if err != nil {
		s.logger.Warn("no addons in local source", "path", s.path, "error", err)
		return nil, nil
	}
	s.addonNames = toc.Names(toc.Valid(entries))
	return s.addonNames, nil
}

// Sync links each addon subfolder into targetDir. Content is never
// copied; the link points back at the local source directory.
func (s *DirSource) Sync(ctx context.Context, targetDir string) error {
	s.status.Reset()

	names, err := s.Addons(ctx)
	if err != nil {
		s.status.SetError(err)
		return err
	}
	if len(names) == 0 {
		err := fmt.Errorf("local source %s supplies no addons", s.path)
		s.status.SetError(err)
		return err
	}

	var synced []string
	for _, name := range names {
		if _, err := archive.Link(filepath.Join(s.path, name), targetDir, s.logger); err != nil {
			s.status.SetError(err)
			return err
		}
		synced = append(synced, name)
	}
	s.status.SetSuccess(synced)
	return nil
}
