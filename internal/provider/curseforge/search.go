package curseforge

import (
	"context"
	"net/url"
	"regexp"
	"strings"
)

// SearchResult is one record produced by the marketplace search
// collaborator.
type SearchResult struct {
	// Slug is the project's URL name, unique on the marketplace.
	Slug string
	// DisplayName is the human-readable project title.
	DisplayName string
	// URL is the project page.
	URL string
	// Downloads is the project's download count, when known.
	Downloads int
}

// Searcher issues a marketplace search for a key and returns the matching
// project records. Implementations are external collaborators; the
// provider only consumes their record lists.
type Searcher interface {
	Search(ctx context.Context, key string) ([]SearchResult, error)
}

// nonAlnumRe matches runs of characters that separate name tokens.
var nonAlnumRe = regexp.MustCompile(`[^a-z0-9]+`)

// FuzzyKeys derives the search keys tried when an exact-name search comes
// up empty: the lower-cased, punctuation-stripped full name plus its
// individual tokens, minus blacklisted keys and the id itself. The
// derivation is idempotent.
func FuzzyKeys(id string, blacklist []string) []string {
	blocked := make(map[string]bool, len(blacklist)+1)
	for _, b := range blacklist {
		blocked[strings.ToLower(b)] = true
	}
	name := strings.ToLower(id)
	blocked[name] = true

	norm := strings.TrimSpace(nonAlnumRe.ReplaceAllString(name, " "))
	stems := strings.Fields(norm)
	if norm != "" && !containsString(stems, norm) {
		stems = append([]string{norm}, stems...)
	}

	var keys []string
	for _, s := range stems {
		if !blocked[s] {
			keys = append(keys, s)
		}
	}
	return keys
}

func containsString(list []string, s string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}

// PageRenderer fetches a fully rendered page for a URL and query
// parameters. The marketplace listing is built client-side, so a plain
// GET returns an empty shell; rendering is delegated to an external
// collaborator.
type PageRenderer interface {
	Render(ctx context.Context, rawURL string, params url.Values) (string, error)
}

// projectLinkRe pulls project slugs out of a rendered search listing.
var projectLinkRe = regexp.MustCompile(`href="/wow/addons/([a-z0-9][a-z0-9_-]*)"`)

// RenderedSearcher implements Searcher on top of a PageRenderer.
type RenderedSearcher struct {
	Renderer PageRenderer
}

// Search renders the marketplace search page for key and extracts the
// project records, first occurrence winning per slug.
func (s *RenderedSearcher) Search(ctx context.Context, key string) ([]SearchResult, error) {
	html, err := s.Renderer.Render(ctx, urlBase+"/"+searchPath, url.Values{"search": []string{key}})
	if err != nil {
		return nil, err
	}

	seen := make(map[string]bool)
	var results []SearchResult
	for _, m := range projectLinkRe.FindAllStringSubmatch(html, -1) {
		slug := m[1]
		if slug == "search" || seen[slug] {
			continue
		}
		seen[slug] = true
		results = append(results, SearchResult{
			Slug:        slug,
			DisplayName: slug,
			URL:         urlBase + "/wow/addons/" + slug,
		})
	}
	return results, nil
}
