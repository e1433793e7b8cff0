package github

import (
	"archive/zip"
	"bytes"
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"reflect"
	"sync/atomic"
	"testing"

	"github.com/wowsync/wowsync/internal/cache"
	"github.com/wowsync/wowsync/internal/config"
	"github.com/wowsync/wowsync/internal/download"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// buildSnapshot assembles an in-memory zipball of empty files, in entry
// order.
func buildSnapshot(t *testing.T, entries ...string) []byte {
	t.Helper()
	var buf bytes.Buffer
	zw := zip.NewWriter(&buf)
	for _, name := range entries {
		if _, err := zw.Create(name); err != nil {
			t.Fatalf("creating zip entry: %v", err)
		}
	}
	if err := zw.Close(); err != nil {
		t.Fatalf("closing zip: %v", err)
	}
	return buf.Bytes()
}

func newRepoSource(t *testing.T, repo, addonPath string, c *cache.Cache) *RepoSource {
	t.Helper()
	if c == nil {
		c = cache.New(t.TempDir(), testLogger())
	}
	spec := config.RepoSpec{Repo: repo, AddonPath: addonPath}
	src, err := NewRepoSource(spec, download.NewClient(testLogger()), c, testLogger())
	if err != nil {
		t.Fatalf("building repo source: %v", err)
	}
	return src
}

func TestNewRepoSource(t *testing.T) {
	tests := []struct {
		name     string
		repo     string
		wantName string
		wantErr  bool
	}{
		{"valid", "fgprodigal/RayUI", "RayUI", false},
		{"trailing slash", "fgprodigal/RayUI/", "RayUI", false},
		{"missing repo", "fgprodigal", "", true},
		{"empty author", "/RayUI", "", true},
		{"too many segments", "a/b/c", "", true},
		{"empty", "", "", true},
	}

	client := download.NewClient(testLogger())
	c := cache.New(t.TempDir(), testLogger())

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			src, err := NewRepoSource(config.RepoSpec{Repo: tt.repo, AddonPath: "Interface/AddOns"}, client, c, testLogger())
			if tt.wantErr {
				if err == nil {
					t.Fatalf("expected error for %q", tt.repo)
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if src.Name() != tt.wantName {
				t.Errorf("Name() = %q, want %q", src.Name(), tt.wantName)
			}
			if src.ProviderName() != "github" {
				t.Errorf("unexpected provider name %q", src.ProviderName())
			}
		})
	}
}

func TestRepoAddonsFromContentsAPI(t *testing.T) {
	var hits int32
	mux := http.NewServeMux()
	mux.HandleFunc("/fgprodigal/RayUI/contents/Interface/AddOns", func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&hits, 1)
		w.Write([]byte(`[
			{"name": "RayUI", "type": "dir"},
			{"name": "README.md", "type": "file"},
			{"name": "RayUI_Options", "type": "dir"}
		]`))
	})
	srv := httptest.NewServer(mux)
	defer srv.Close()

	src := newRepoSource(t, "fgprodigal/RayUI", "Interface/AddOns", nil)
	src.apiBase = srv.URL

	names, err := src.Addons(context.Background())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	// Only directory entries are addons
	if !reflect.DeepEqual(names, []string{"RayUI", "RayUI_Options"}) {
		t.Errorf("unexpected addon names %v", names)
	}

	// The listing is fetched once per source lifetime
	if _, err := src.Addons(context.Background()); err != nil {
		t.Fatalf("unexpected error on second call: %v", err)
	}
	if got := atomic.LoadInt32(&hits); got != 1 {
		t.Errorf("expected 1 listing fetch, got %d", got)
	}
}

func TestRepoAddonsDegradeOnErrorDocument(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"message": "Not Found"}`))
	}))
	defer srv.Close()

	src := newRepoSource(t, "fgprodigal/RayUI", "Interface/AddOns", nil)
	src.apiBase = srv.URL

	names, err := src.Addons(context.Background())
	if err != nil {
		t.Fatalf("an error document must degrade, not fail: %v", err)
	}
	if len(names) != 0 {
		t.Errorf("expected no addons, got %v", names)
	}
}

func TestRepoAddonsDegradeOnHTTPFailure(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "nope", http.StatusNotFound)
	}))
	defer srv.Close()

	src := newRepoSource(t, "fgprodigal/RayUI", "Interface/AddOns", nil)
	src.apiBase = srv.URL

	names, err := src.Addons(context.Background())
	if err != nil {
		t.Fatalf("an unreachable listing must degrade, not fail: %v", err)
	}
	if len(names) != 0 {
		t.Errorf("expected no addons, got %v", names)
	}
}

func TestSyncFromZipballMaterializesAddons(t *testing.T) {
	snapshot := buildSnapshot(t,
		"RayUI-HEAD/Interface/AddOns/RayUI/RayUI.toc",
		"RayUI-HEAD/Interface/AddOns/RayUI/core.lua",
	)
	mux := http.NewServeMux()
	mux.HandleFunc("/fgprodigal/RayUI/zip/HEAD", func(w http.ResponseWriter, r *http.Request) {
		w.Write(snapshot)
	})
	srv := httptest.NewServer(mux)
	defer srv.Close()

	c := cache.New(t.TempDir(), testLogger())
	src := newRepoSource(t, "fgprodigal/RayUI", "Interface/AddOns", c)
	src.codeloadBase = srv.URL

	target := t.TempDir()
	synced, err := src.syncFromZipball(context.Background(), target)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !reflect.DeepEqual(synced, []string{"RayUI"}) {
		t.Errorf("unexpected synced folders %v", synced)
	}
	if _, err := os.Stat(filepath.Join(target, "RayUI", "RayUI.toc")); err != nil {
		t.Errorf("addon folder not materialized: %v", err)
	}
	if cached := c.Find("RayUI.zip"); len(cached) != 1 {
		t.Errorf("expected the snapshot cached as RayUI.zip, got %v", cached)
	}
}

func TestSyncFromZipballFailsWhenCachePathIsAFile(t *testing.T) {
	snapshot := buildSnapshot(t, "RayUI-HEAD/RayUI/RayUI.toc")
	mux := http.NewServeMux()
	mux.HandleFunc("/fgprodigal/RayUI/zip/HEAD", func(w http.ResponseWriter, r *http.Request) {
		w.Write(snapshot)
	})
	srv := httptest.NewServer(mux)
	defer srv.Close()

	cacheRoot := filepath.Join(t.TempDir(), "cache")
	if err := os.WriteFile(cacheRoot, []byte("squatter"), 0644); err != nil {
		t.Fatalf("planting file: %v", err)
	}
	src := newRepoSource(t, "fgprodigal/RayUI", "", cache.New(cacheRoot, testLogger()))
	src.codeloadBase = srv.URL

	if _, err := src.syncFromZipball(context.Background(), t.TempDir()); !errors.Is(err, cache.ErrNotADirectory) {
		t.Fatalf("expected ErrNotADirectory, got %v", err)
	}
}

func TestDiscoverSkipsInvalidSpecs(t *testing.T) {
	specs := []config.RepoSpec{
		{Repo: "fgprodigal/RayUI", AddonPath: "Interface/AddOns"},
		{Repo: "not-a-repo-spec"},
		{Repo: "someone/SomeUI"},
	}
	p := New(specs, download.NewClient(testLogger()), cache.New(t.TempDir(), testLogger()), testLogger())

	sources, err := p.Discover(context.Background(), nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(sources) != 2 {
		t.Fatalf("expected 2 sources, got %d", len(sources))
	}
	if sources[0].Name() != "RayUI" || sources[1].Name() != "SomeUI" {
		t.Errorf("unexpected sources: %s, %s", sources[0].Name(), sources[1].Name())
	}
}
