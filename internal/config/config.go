// Package config loads and resolves wowsync configuration.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"
)

// Config is the top-level configuration.
type Config struct {
	Scan       ScanConfig       `yaml:"scan"`
	Sync       SyncConfig       `yaml:"sync"`
	Cache      CacheConfig      `yaml:"cache"`
	GitHub     GitHubConfig     `yaml:"github"`
	CurseForge CurseForgeConfig `yaml:"curseforge"`
	Local      LocalConfig      `yaml:"local"`

	// raw mirrors the effective config as a generic map for Get().
	raw map[string]interface{}
}

// ScanConfig remembers the last scanned directory.
type ScanConfig struct {
	Dir string `yaml:"dir"`
}

// SyncConfig holds sync settings.
type SyncConfig struct {
	File string `yaml:"file"`
}

// CacheConfig holds the content cache location.
type CacheConfig struct {
	Dir string `yaml:"dir"`
}

// GitHubConfig holds the static repository source list.
type GitHubConfig struct {
	Providers []RepoSpec `yaml:"providers"`
}

// RepoSpec is one hosted-git repository that supplies addons.
type RepoSpec struct {
	// Repo is "author/repo".
	Repo string `yaml:"repo"`
	// AddonPath is the in-repo folder whose subfolders are addons.
	AddonPath string `yaml:"addon_path"`
}

// CurseForgeConfig holds search and match tuning.
type CurseForgeConfig struct {
	Search SearchConfig `yaml:"search"`
	Match  MatchConfig  `yaml:"match"`
}

// SearchConfig holds search-side settings.
type SearchConfig struct {
	// Blacklist lists fuzzy search keys too generic to be useful.
	Blacklist []string `yaml:"blacklist"`
	// Renderer is an external command that fetches a fully rendered
	// page: it receives the URL as its final argument and writes HTML
	// to stdout. Empty disables CurseForge searching.
	Renderer string `yaml:"renderer"`
}

// MatchConfig bounds the candidate verification loop.
type MatchConfig struct {
	MinScore int `yaml:"min_score"`
	MaxTry   int `yaml:"max_try"`
}

// LocalConfig lists local directories that supply addons by symlink.
type LocalConfig struct {
	Dirs []string `yaml:"dirs"`
}

// DefaultConfig returns a config with sensible defaults.
func DefaultConfig() *Config {
	cacheDir := ".wowsync-cache"
	if home, err := os.UserHomeDir(); err == nil {
		cacheDir = filepath.Join(home, ".cache", "wowsync")
	}
	return &Config{
		Cache: CacheConfig{Dir: cacheDir},
		GitHub: GitHubConfig{
			Providers: []RepoSpec{
				{Repo: "fgprodigal/RayUI", AddonPath: "Interface/AddOns"},
			},
		},
		CurseForge: CurseForgeConfig{
			Search: SearchConfig{
				Blacklist: []string{"option", "options", "ui", "core", "data", "the"},
			},
			Match: MatchConfig{
				MinScore: 80,
				MaxTry:   5,
			},
		},
	}
}

// Load reads a config file from the given path, layered over defaults.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config file: %w", err)
	}

	cfg := DefaultConfig()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parsing config file: %w", err)
	}
	return cfg, nil
}

// FindConfigFile searches for a config file in standard locations.
func FindConfigFile() (string, error) {
	searchPaths := []string{
		"wowsync.yaml",
		"/etc/wowsync/wowsync.yaml",
	}
	if home, err := os.UserHomeDir(); err == nil {
		searchPaths = append(searchPaths,
			filepath.Join(home, ".config", "wowsync", "wowsync.yaml"),
		)
	}

	for _, path := range searchPaths {
		if _, err := os.Stat(path); err == nil {
			return path, nil
		}
	}
	return "", fmt.Errorf("no config file found (searched: %v)", searchPaths)
}

// Save writes the effective config to the given path, creating parent
// directories as needed.
func (c *Config) Save(path string) error {
	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("marshaling config: %w", err)
	}
	if dir := filepath.Dir(path); dir != "" && dir != "." {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return fmt.Errorf("creating config directory: %w", err)
		}
	}
	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("writing config file: %w", err)
	}
	return nil
}

// Get resolves a dot-delimited key path (e.g. "curseforge.match.min_score")
// against the effective configuration. It returns the value and whether
// the full path resolved.
func (c *Config) Get(keyPath string) (interface{}, bool) {
	if c.raw == nil {
		// Re-marshal through YAML so Get sees exactly what a config
		// file reader would.
		data, err := yaml.Marshal(c)
		if err != nil {
			return nil, false
		}
		var m map[string]interface{}
		if err := yaml.Unmarshal(data, &m); err != nil {
			return nil, false
		}
		c.raw = m
	}

	var cur interface{} = c.raw
	for _, key := range strings.Split(keyPath, ".") {
		m, ok := cur.(map[string]interface{})
		if !ok {
			return nil, false
		}
		cur, ok = m[key]
		if !ok {
			return nil, false
		}
	}
	return cur, true
}
