// Package github implements the hosted-git provider: a static,
// configuration-supplied list of repositories, each exposing addons under
// a subfolder.
package github

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/exec"
	"path/filepath"
	"strings"

	"github.com/wowsync/wowsync/internal/archive"
	"github.com/wowsync/wowsync/internal/cache"
	"github.com/wowsync/wowsync/internal/config"
	"github.com/wowsync/wowsync/internal/download"
	"github.com/wowsync/wowsync/internal/provider"
)

const (
	apiBase      = "https://api.github.com/repos"
	codeloadBase = "https://codeload.github.com"
)

// Provider supplies RepoSources built from configured repo specs.
type Provider struct {
	specs  []config.RepoSpec
	client *download.Client
	cache  *cache.Cache
	logger *slog.Logger
}

// New creates the github provider from configured repository specs.
func New(specs []config.RepoSpec, client *download.Client, c *cache.Cache, logger *slog.Logger) *Provider {
	if logger == nil {
		logger = slog.Default()
	}
	return &Provider{specs: specs, client: client, cache: c, logger: logger}
}

func (p *Provider) Name() string { return "github" }

func (p *Provider) Metadata() map[string]string {
	return map[string]string{"kind": "hosted-git"}
}

// Discover returns one source per configured repository. The list is
// static, so the requested ids are not consulted; membership is checked
// later against each source's addon list.
func (p *Provider) Discover(ctx context.Context, ids []string) ([]provider.Source, error) {
	sources := make([]provider.Source, 0, len(p.specs))
	for _, spec := range p.specs {
		src, err := NewRepoSource(spec, p.client, p.cache, p.logger)
		if err != nil {
			p.logger.Warn("skipping invalid repo spec", "repo", spec.Repo, "error", err)
			continue
		}
		sources = append(sources, src)
	}
	return sources, nil
}

// RepoSource is one hosted-git repository supplying addons under a
// subfolder.
type RepoSource struct {
	repo         string // "author/repo"
	name         string // repo basename
	addonPath    string
	apiBase      string
	codeloadBase string
	client       *download.Client
	cache        *cache.Cache
	logger       *slog.Logger

	addonsResolved bool
	addonNames     []string

	status provider.SyncStatus
}

// NewRepoSource builds a source from a parsed repo spec.
func NewRepoSource(spec config.RepoSpec, client *download.Client, c *cache.Cache, logger *slog.Logger) (*RepoSource, error) {
	if logger == nil {
		logger = slog.Default()
	}
	repo := strings.Trim(spec.Repo, "/")
	parts := strings.Split(repo, "/")
	if len(parts) != 2 || parts[0] == "" || parts[1] == "" {
		return nil, fmt.Errorf("repo spec must be author/repo, got %q", spec.Repo)
	}
	return &RepoSource{
		repo:         repo,
		name:         parts[1],
		addonPath:    strings.Trim(spec.AddonPath, "/"),
		apiBase:      apiBase,
		codeloadBase: codeloadBase,
		client:       client,
		cache:        c,
		logger:       logger.With("source", parts[1]),
	}, nil
}

func (s *RepoSource) Name() string { return s.name }

func (s *RepoSource) ProviderName() string { return "github" }

func (s *RepoSource) Status() *provider.SyncStatus { return &s.status }

// contentEntry is one item of the contents API response.
type contentEntry struct {
	Name string `json:"name"`
	Type string `json:"type"`
}

// Addons lists the addon folder names under the repo's addon path via the
// contents API. An unreachable or missing listing degrades to an empty
// list with a warning. The result is cached for the source's lifetime.
func (s *RepoSource) Addons(ctx context.Context) ([]string, error) {
	if s.addonsResolved {
		return s.addonNames, nil
	}
	s.addonsResolved = true

	url := fmt.Sprintf("%s/%s/contents/%s", s.apiBase, s.repo, s.addonPath)
	resp, err := s.client.Fetch(ctx, url)
	if err != nil {
		s.logger.Warn("unable to get addon list", "url", url, "error", err)
		return nil, nil
	}

	var entries []contentEntry
	if err := json.Unmarshal(resp.Body, &entries); err != nil {
		// An error document ({"message": ...}) is not an array.
		s.logger.Warn("unexpected contents response", "url", url, "error", err)
		return nil, nil
	}

	var names []string
	for _, e := range entries {
		if e.Type == "dir" {
			names = append(names, e.Name)
		}
	}
	s.logger.Debug("addons available", "url", url, "count", len(names))
	s.addonNames = names
	return names, nil
}

// Sync materializes the repository into targetDir. With the external git
// tool available the repo is cloned (or pulled) into the content cache
// and each addon folder is linked into the target; without it, a zipball
// snapshot is downloaded and reconciled in place.
func (s *RepoSource) Sync(ctx context.Context, targetDir string) error {
	s.status.Reset()

	var (
		synced []string
		err    error
	)
	if gitPath, lookErr := exec.LookPath("git"); lookErr == nil {
		synced, err = s.syncWithGit(ctx, gitPath, targetDir)
	} else {
		s.logger.Debug("git not found, falling back to zipball snapshot")
		synced, err = s.syncFromZipball(ctx, targetDir)
	}

	if err != nil {
		s.status.SetError(err)
		return err
	}
	s.status.SetSuccess(synced)
	return nil
}

// syncWithGit clones or updates the repo under the cache and links each
// addon folder into the target.
func (s *RepoSource) syncWithGit(ctx context.Context, gitPath, targetDir string) ([]string, error) {
	cloneDir := filepath.Join(s.cache.Dir(), "repos", s.name)

	var cmd *exec.Cmd
	if fi, err := os.Stat(filepath.Join(cloneDir, ".git")); err == nil && fi.IsDir() {
		cmd = exec.CommandContext(ctx, gitPath, "-C", cloneDir, "pull", "--ff-only")
	} else {
		if err := os.MkdirAll(filepath.Dir(cloneDir), 0755); err != nil {
			return nil, fmt.Errorf("creating clone directory: %w", err)
		}
		cmd = exec.CommandContext(ctx, gitPath, "clone", "--depth", "1",
			"https://github.com/"+s.repo+".git", cloneDir)
	}
	if err := s.runAndLog(cmd); err != nil {
		return nil, fmt.Errorf("git %s: %w", s.repo, err)
	}

	addonRoot := cloneDir
	if s.addonPath != "" {
		addonRoot = filepath.Join(cloneDir, filepath.FromSlash(s.addonPath))
	}
	entries, err := os.ReadDir(addonRoot)
	if err != nil {
		return nil, fmt.Errorf("listing addon folders: %w", err)
	}

	var synced []string
	for _, e := range entries {
		if !e.IsDir() {
			continue
		}
		if _, err := archive.Link(filepath.Join(addonRoot, e.Name()), targetDir, s.logger); err != nil {
			return synced, err
		}
		synced = append(synced, e.Name())
	}
	return synced, nil
}

// syncFromZipball downloads a snapshot archive, caches it, and reconciles
// its addon folders into the target.
func (s *RepoSource) syncFromZipball(ctx context.Context, targetDir string) ([]string, error) {
	url := fmt.Sprintf("%s/%s/zip/HEAD", s.codeloadBase, s.repo)
	resp, err := s.client.Fetch(ctx, url)
	if err != nil {
		return nil, fmt.Errorf("downloading snapshot: %w", err)
	}

	if _, err := s.cache.Store(s.name+".zip", resp.Body); err != nil {
		if errors.Is(err, cache.ErrNotADirectory) {
			return nil, fmt.Errorf("caching snapshot: %w", err)
		}
		s.logger.Warn("unable to cache snapshot", "error", err)
	}

	return archive.Unpack(resp.Body, targetDir, archive.SyncOptions{}, s.logger)
}

// runAndLog runs an external command, forwarding its output lines to the
// debug log.
func (s *RepoSource) runAndLog(cmd *exec.Cmd) error {
	out, err := cmd.CombinedOutput()
	for _, line := range strings.Split(strings.TrimRight(string(out), "\n"), "\n") {
		if line != "" {
			s.logger.Debug("git", "line", line)
		}
	}
	if err != nil {
		return fmt.Errorf("%w: %s", err, strings.TrimSpace(string(out)))
	}
	return nil
}
