package curseforge

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"testing"

	"github.com/wowsync/wowsync/internal/cache"
	"github.com/wowsync/wowsync/internal/config"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// fakeSearcher returns canned results per key and records the keys asked.
type fakeSearcher struct {
	mu      sync.Mutex
	results map[string][]SearchResult
	asked   []string
}

func (f *fakeSearcher) Search(ctx context.Context, key string) ([]SearchResult, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.asked = append(f.asked, key)
	return f.results[key], nil
}

func testConfig(minScore, maxTry int) config.CurseForgeConfig {
	return config.CurseForgeConfig{
		Search: config.SearchConfig{},
		Match:  config.MatchConfig{MinScore: minScore, MaxTry: maxTry},
	}
}

func newTestProvider(t *testing.T, s Searcher, minScore, maxTry int) *Provider {
	t.Helper()
	c := cache.New(t.TempDir(), testLogger())
	return New(s, nil, c, testConfig(minScore, maxTry), testLogger())
}

// stubProject plants a pre-fetched project source so verification reads
// the given addon names without touching the network.
func stubProject(p *Provider, slug string, names []string, err error) {
	src := &ProjectSource{slug: slug, logger: testLogger(), fetched: true, fetchErr: err, names: names}
	if err == nil {
		src.zipData = []byte("stub")
	}
	p.projects[slug] = src
}

func TestDiscoverWithoutSearcher(t *testing.T) {
	p := newTestProvider(t, nil, 80, 5)
	sources, err := p.Discover(context.Background(), []string{"MyAddon"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if sources != nil {
		t.Errorf("expected no sources without a searcher, got %v", sources)
	}
}

func TestResolveIDNoCandidates(t *testing.T) {
	s := &fakeSearcher{results: map[string][]SearchResult{}}
	p := newTestProvider(t, s, 80, 5)

	_, err := p.resolveID(context.Background(), "MyAddon", 80, 5)
	if !errors.Is(err, ErrNoCandidates) {
		t.Fatalf("expected ErrNoCandidates, got %v", err)
	}
	// A zero-candidate id never triggers a verification download
	if len(p.projects) != 0 {
		t.Errorf("expected no project sources created, got %d", len(p.projects))
	}
}

func TestResolveIDVerifiesCandidate(t *testing.T) {
	s := &fakeSearcher{results: map[string][]SearchResult{
		"MyAddon": {{Slug: "myaddon"}},
	}}
	p := newTestProvider(t, s, 80, 5)
	stubProject(p, "myaddon", []string{"MyAddon", "MyAddon_Config"}, nil)

	src, err := p.resolveID(context.Background(), "MyAddon", 80, 5)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if src.Name() != "myaddon" {
		t.Errorf("expected project myaddon, got %q", src.Name())
	}
}

func TestResolveIDVerificationIsCaseSensitive(t *testing.T) {
	s := &fakeSearcher{results: map[string][]SearchResult{
		"MyAddon": {{Slug: "myaddon"}},
	}}
	p := newTestProvider(t, s, 80, 5)
	// The archive supplies the folder in a different case: no match
	stubProject(p, "myaddon", []string{"myaddon"}, nil)

	_, err := p.resolveID(context.Background(), "MyAddon", 80, 5)
	if !errors.Is(err, ErrNoVerifiedMatch) {
		t.Fatalf("expected ErrNoVerifiedMatch, got %v", err)
	}
}

func TestResolveIDMinScoreBound(t *testing.T) {
	// The true match ranks below min_score; it must not be examined
	s := &fakeSearcher{results: map[string][]SearchResult{
		"MyAddon": {{Slug: "myaddon"}, {Slug: "zzqx"}},
	}}
	p := newTestProvider(t, s, 80, 5)
	stubProject(p, "myaddon", []string{"SomethingElse"}, nil)
	stubProject(p, "zzqx", []string{"MyAddon"}, nil)

	_, err := p.resolveID(context.Background(), "MyAddon", 80, 5)
	if !errors.Is(err, ErrNoVerifiedMatch) {
		t.Fatalf("expected ErrNoVerifiedMatch, got %v", err)
	}
}

func TestResolveIDMaxTryBound(t *testing.T) {
	// All candidates rank above min_score; the true match sits third
	s := &fakeSearcher{results: map[string][]SearchResult{
		"MyAddon": {{Slug: "myaddon"}, {Slug: "myaddon-a"}, {Slug: "myaddon-b"}},
	}}

	p := newTestProvider(t, s, 80, 5)
	stubProject(p, "myaddon", []string{"SomethingElse"}, nil)
	stubProject(p, "myaddon-a", []string{"SomethingElse"}, nil)
	stubProject(p, "myaddon-b", []string{"MyAddon"}, nil)

	// With max_try 2 only the first two candidates are examined
	if _, err := p.resolveID(context.Background(), "MyAddon", 80, 2); !errors.Is(err, ErrNoVerifiedMatch) {
		t.Fatalf("expected ErrNoVerifiedMatch with max_try=2, got %v", err)
	}

	// Raising the bound reaches the match
	src, err := p.resolveID(context.Background(), "MyAddon", 80, 3)
	if err != nil {
		t.Fatalf("unexpected error with max_try=3: %v", err)
	}
	if src.Name() != "myaddon-b" {
		t.Errorf("expected myaddon-b, got %q", src.Name())
	}
}

func TestResolveIDFailingCandidateIsRejected(t *testing.T) {
	s := &fakeSearcher{results: map[string][]SearchResult{
		"MyAddon": {{Slug: "myaddon"}, {Slug: "myaddon-a"}},
	}}
	p := newTestProvider(t, s, 80, 5)
	// First candidate's download fails; the loop moves on
	stubProject(p, "myaddon", nil, errors.New("503 from marketplace"))
	stubProject(p, "myaddon-a", []string{"MyAddon"}, nil)

	src, err := p.resolveID(context.Background(), "MyAddon", 80, 5)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if src.Name() != "myaddon-a" {
		t.Errorf("expected myaddon-a, got %q", src.Name())
	}
}

func TestResolveIDFuzzyExpansion(t *testing.T) {
	// The exact name misses; a token key finds the project
	s := &fakeSearcher{results: map[string][]SearchResult{
		"myaddon": {{Slug: "myaddon"}},
	}}
	p := newTestProvider(t, s, 80, 5)
	stubProject(p, "myaddon", []string{"MyAddon_Widgets"}, nil)

	src, err := p.resolveID(context.Background(), "MyAddon_Widgets", 80, 5)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if src.Name() != "myaddon" {
		t.Errorf("expected myaddon, got %q", src.Name())
	}

	s.mu.Lock()
	asked := append([]string(nil), s.asked...)
	s.mu.Unlock()
	if asked[0] != "MyAddon_Widgets" {
		t.Errorf("expected exact name searched first, got %v", asked)
	}
	if !containsString(asked, "myaddon widgets") || !containsString(asked, "myaddon") {
		t.Errorf("expected fuzzy keys searched, got %v", asked)
	}
}

func TestDiscoverDedupesSharedProject(t *testing.T) {
	// Two ids verify against the same project: one source comes back
	s := &fakeSearcher{results: map[string][]SearchResult{
		"AddonA": {{Slug: "bundle"}},
		"AddonB": {{Slug: "bundle"}},
	}}
	p := newTestProvider(t, s, 0, 5)
	stubProject(p, "bundle", []string{"AddonA", "AddonB"}, nil)

	sources, err := p.Discover(context.Background(), []string{"AddonA", "AddonB"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(sources) != 1 {
		t.Fatalf("expected 1 deduplicated source, got %d", len(sources))
	}
	if sources[0].Name() != "bundle" {
		t.Errorf("unexpected source %q", sources[0].Name())
	}
}

func TestSearchMemoized(t *testing.T) {
	s := &fakeSearcher{results: map[string][]SearchResult{
		"key": {{Slug: "proj"}},
	}}
	p := newTestProvider(t, s, 80, 5)

	for i := 0; i < 3; i++ {
		if _, err := p.search(context.Background(), "key"); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
	}
	if len(s.asked) != 1 {
		t.Errorf("expected 1 upstream search, got %d", len(s.asked))
	}
}
