package curseforge

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"path"
	"regexp"
	"strings"
	"sync"

	"github.com/wowsync/wowsync/internal/archive"
	"github.com/wowsync/wowsync/internal/cache"
	"github.com/wowsync/wowsync/internal/download"
	"github.com/wowsync/wowsync/internal/provider"
)

// ProjectSource is one marketplace project. Its archive is downloaded at
// most once per run: verification and sync share the same buffered bytes.
type ProjectSource struct {
	slug    string
	baseURL string
	client  *download.Client
	cache   *cache.Cache
	logger  *slog.Logger

	mu       sync.Mutex
	fetched  bool
	fetchErr error
	zipName  string
	version  string
	zipData  []byte
	names    []string

	status provider.SyncStatus
}

// NewProjectSource creates a source for a marketplace project slug.
func NewProjectSource(slug string, client *download.Client, c *cache.Cache, logger *slog.Logger) *ProjectSource {
	if logger == nil {
		logger = slog.Default()
	}
	return &ProjectSource{
		slug:    slug,
		baseURL: urlBase,
		client:  client,
		cache:   c,
		logger:  logger.With("source", slug),
	}
}

func (s *ProjectSource) Name() string { return s.slug }

func (s *ProjectSource) ProviderName() string { return "curseforge" }

func (s *ProjectSource) Status() *provider.SyncStatus { return &s.status }

// Version returns the release version parsed from the archive file name,
// available after the first fetch.
func (s *ProjectSource) Version() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.version
}

// Addons downloads the project archive (once) and lists the addon names
// it supplies. This is the expensive verification step of resolution.
func (s *ProjectSource) Addons(ctx context.Context) ([]string, error) {
	if err := s.fetch(ctx); err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.names, nil
}

// fetch resolves the project's download URL, buffers the archive, lists
// its addon folders, and stores the archive in the content cache. The
// outcome, success or failure, is memoized for the source's lifetime.
func (s *ProjectSource) fetch(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.fetched {
		return s.fetchErr
	}
	s.fetched = true
	s.fetchErr = s.doFetch(ctx)
	return s.fetchErr
}

func (s *ProjectSource) doFetch(ctx context.Context) error {
	pageURL := fmt.Sprintf("%s/wow/addons/%s/download", s.baseURL, s.slug)
	page, err := s.client.Fetch(ctx, pageURL)
	if err != nil {
		return fmt.Errorf("fetching download page: %w", err)
	}

	fileRe := regexp.MustCompile(`href="(/wow/addons/` + regexp.QuoteMeta(s.slug) + `/download/\d+/file)"`)
	m := fileRe.FindSubmatch(page.Body)
	if m == nil {
		return fmt.Errorf("unable to locate file url on download page for %s", s.slug)
	}

	resp, err := s.client.Fetch(ctx, s.baseURL+string(m[1]))
	if err != nil {
		return fmt.Errorf("downloading archive: %w", err)
	}

	zipName := path.Base(resp.FinalURL)
	stem := strings.TrimSuffix(zipName, path.Ext(zipName))
	version := stem
	if i := strings.LastIndex(stem, "-"); i >= 0 {
		version = stem[i+1:]
	}

	names, err := archive.TocNames(resp.Body)
	if err != nil {
		return fmt.Errorf("inspecting archive: %w", err)
	}

	if _, err := s.cache.Store(zipName, resp.Body); err != nil {
		// A cache path squatted by a regular file poisons every write of
		// the run; surface it instead of proceeding without a cache.
		if errors.Is(err, cache.ErrNotADirectory) {
			return fmt.Errorf("caching archive: %w", err)
		}
		s.logger.Warn("unable to cache archive", "name", zipName, "error", err)
	}

	s.zipName = zipName
	s.version = version
	s.zipData = resp.Body
	s.names = names
	s.logger.Debug("downloaded archive", "name", zipName, "version", version, "addons", names)
	return nil
}

// Sync materializes the project archive into targetDir using the two-pass
// reconcile. Calling Sync on a source whose archive could never be
// fetched is an expected failure recorded in status; a source carrying no
// archive after a successful fetch is a programming error.
func (s *ProjectSource) Sync(ctx context.Context, targetDir string) error {
	s.status.Reset()

	if err := s.fetch(ctx); err != nil {
		s.status.SetError(err)
		return err
	}

	s.mu.Lock()
	zipData := s.zipData
	s.mu.Unlock()
	if zipData == nil {
		panic("curseforge: project source fetched but has no archive")
	}

	synced, err := archive.Unpack(zipData, targetDir, archive.SyncOptions{}, s.logger)
	if err != nil {
		s.status.SetError(err)
		return err
	}
	s.status.SetSuccess(synced)
	return nil
}
