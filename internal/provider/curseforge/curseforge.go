// Package curseforge implements the community-marketplace provider. It
// has no fixed source list: for each requested addon id it searches the
// marketplace, expands fuzzy keys when the exact name misses, ranks the
// candidates by string similarity, and verifies the best ones by
// downloading their archives and checking the addon names inside.
package curseforge

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"sync"

	fuzzy "github.com/paul-mannino/go-fuzzywuzzy"

	"github.com/wowsync/wowsync/internal/cache"
	"github.com/wowsync/wowsync/internal/config"
	"github.com/wowsync/wowsync/internal/download"
	"github.com/wowsync/wowsync/internal/provider"
)

const (
	urlBase    = "https://www.curseforge.com"
	searchPath = "wow/addons/search"
)

// ErrNoCandidates indicates searching produced no candidate projects for
// an id, after fuzzy expansion and blacklist filtering.
var ErrNoCandidates = errors.New("no candidate projects found")

// ErrNoVerifiedMatch indicates the verification loop exhausted its
// bounded candidate list without confirming the id.
var ErrNoVerifiedMatch = errors.New("no candidate verified to contain addon")

// Provider is the search-based marketplace provider.
type Provider struct {
	searcher  Searcher
	client    *download.Client
	cache     *cache.Cache
	blacklist []string
	minScore  int
	maxTry    int
	logger    *slog.Logger

	mu       sync.Mutex
	searches map[string][]SearchResult
	projects map[string]*ProjectSource
}

// New creates the curseforge provider. A nil searcher degrades the
// provider to contributing no candidates, never a crash.
func New(searcher Searcher, client *download.Client, c *cache.Cache, cfg config.CurseForgeConfig, logger *slog.Logger) *Provider {
	if logger == nil {
		logger = slog.Default()
	}
	return &Provider{
		searcher:  searcher,
		client:    client,
		cache:     c,
		blacklist: cfg.Search.Blacklist,
		minScore:  cfg.Match.MinScore,
		maxTry:    cfg.Match.MaxTry,
		logger:    logger,
		searches:  make(map[string][]SearchResult),
		projects:  make(map[string]*ProjectSource),
	}
}

func (p *Provider) Name() string { return "curseforge" }

func (p *Provider) Metadata() map[string]string {
	return map[string]string{"kind": "community-marketplace"}
}

// Discover resolves each requested id to a verified project source.
// Per-id discovery is network-latency-bound and ids are independent, so
// the ids are fanned out over a bounded worker pool. Ids that cannot be
// resolved are simply absent from the result.
func (p *Provider) Discover(ctx context.Context, ids []string) ([]provider.Source, error) {
	if p.searcher == nil {
		p.logger.Warn("marketplace search unavailable: no page renderer configured")
		return nil, nil
	}
	if len(ids) == 0 {
		return nil, nil
	}

	// Match bounds are read once per resolution pass.
	minScore, maxTry := p.minScore, p.maxTry

	type outcome struct {
		index int
		src   *ProjectSource
		err   error
	}

	jobs := make(chan int, len(ids))
	results := make(chan outcome, len(ids))

	var wg sync.WaitGroup
	for w := 0; w < provider.PoolWidth; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := range jobs {
				src, err := p.resolveID(ctx, ids[i], minScore, maxTry)
				results <- outcome{index: i, src: src, err: err}
			}
		}()
	}

	for i := range ids {
		jobs <- i
	}
	close(jobs)

	go func() {
		wg.Wait()
		close(results)
	}()

	collected := make([]*ProjectSource, len(ids))
	for out := range results {
		if out.err != nil {
			p.logger.Debug("id not resolved on marketplace", "addon", ids[out.index], "reason", out.err)
			continue
		}
		collected[out.index] = out.src
	}

	// Dedupe by project, first id order winning: one repo project may
	// satisfy several ids.
	seen := make(map[string]bool)
	var sources []provider.Source
	for _, src := range collected {
		if src == nil || seen[src.Name()] {
			continue
		}
		seen[src.Name()] = true
		sources = append(sources, src)
	}
	return sources, nil
}

// resolveID runs the per-id pipeline: exact search, fuzzy expansion,
// similarity ranking, then bounded verification. Steps are strictly
// sequential within one id.
func (p *Provider) resolveID(ctx context.Context, id string, minScore, maxTry int) (*ProjectSource, error) {
	cands, err := p.search(ctx, id)
	if err != nil {
		p.logger.Warn("search failed", "key", id, "error", err)
		cands = nil
	}

	if len(cands) == 0 {
		keys := FuzzyKeys(id, p.blacklist)
		if len(keys) == 0 {
			return nil, ErrNoCandidates
		}
		p.logger.Debug("no exact hit, trying fuzzy keys", "addon", id, "keys", keys)

		seen := make(map[string]bool)
		for _, key := range keys {
			res, err := p.search(ctx, key)
			if err != nil {
				p.logger.Warn("search failed", "key", key, "error", err)
				continue
			}
			for _, c := range res {
				if seen[c.Slug] {
					continue
				}
				seen[c.Slug] = true
				cands = append(cands, c)
			}
		}
		if len(cands) == 0 {
			return nil, ErrNoCandidates
		}
	}

	type scored struct {
		cand  SearchResult
		score int
	}
	ranked := make([]scored, 0, len(cands))
	for _, c := range cands {
		ranked = append(ranked, scored{cand: c, score: fuzzy.WRatio(id, c.Slug)})
	}
	// Ties are broken purely by rank order; the stable sort keeps the
	// original candidate order within equal scores.
	sort.SliceStable(ranked, func(i, j int) bool {
		return ranked[i].score > ranked[j].score
	})

	for i, sc := range ranked {
		if i >= maxTry || sc.score < minScore {
			break
		}
		src := p.project(sc.cand.Slug)
		names, err := src.Addons(ctx)
		if err != nil {
			// A failing candidate is rejected, not fatal.
			p.logger.Debug("candidate rejected", "project", sc.cand.Slug, "error", err)
			continue
		}
		p.logger.Debug("examined candidate", "project", sc.cand.Slug, "score", sc.score, "addons", names)
		if containsString(names, id) {
			return src, nil
		}
	}
	return nil, fmt.Errorf("%w: %s", ErrNoVerifiedMatch, id)
}

// search memoizes marketplace searches per key for the run.
func (p *Provider) search(ctx context.Context, key string) ([]SearchResult, error) {
	p.mu.Lock()
	if res, ok := p.searches[key]; ok {
		p.mu.Unlock()
		return res, nil
	}
	p.mu.Unlock()

	res, err := p.searcher.Search(ctx, key)
	if err != nil {
		return nil, err
	}

	p.mu.Lock()
	p.searches[key] = res
	p.mu.Unlock()
	return res, nil
}

// project returns the memoized source for a project slug, creating it on
// first use so that concurrent ids verifying the same project share one
// download.
func (p *Provider) project(slug string) *ProjectSource {
	p.mu.Lock()
	defer p.mu.Unlock()
	if src, ok := p.projects[slug]; ok {
		return src
	}
	src := NewProjectSource(slug, p.client, p.cache, p.logger)
	p.projects[slug] = src
	return src
}
