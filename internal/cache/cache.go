// Package cache implements the content-addressed store for downloaded
// archives and directory backups.
package cache

import (
	"crypto/sha256"
	"encoding/base64"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"time"
)

// ErrNotADirectory indicates the cache path exists but is not a directory.
// This is a fatal configuration error.
var ErrNotADirectory = errors.New("cache path exists and is not a directory")

const backupStampFormat = "20060102T150405"

// Cache is a flat directory of immutable entries addressed by basename.
type Cache struct {
	dir    string
	logger *slog.Logger
}

// New creates a cache rooted at dir. The directory itself is created
// lazily on first write.
func New(dir string, logger *slog.Logger) *Cache {
	if logger == nil {
		logger = slog.Default()
	}
	return &Cache{dir: dir, logger: logger}
}

// Dir returns the cache directory path.
func (c *Cache) Dir() string {
	return c.dir
}

// ensureDir creates the cache directory if needed.
func (c *Cache) ensureDir() error {
	fi, err := os.Stat(c.dir)
	switch {
	case err == nil:
		if !fi.IsDir() {
			return fmt.Errorf("%w: %s", ErrNotADirectory, c.dir)
		}
		return nil
	case os.IsNotExist(err):
		if err := os.MkdirAll(c.dir, 0755); err != nil {
			return fmt.Errorf("creating cache directory: %w", err)
		}
		return nil
	default:
		return fmt.Errorf("checking cache directory: %w", err)
	}
}

// Store writes data under the given basename, overwriting any previous
// entry of the same name. It returns the full path of the entry.
func (c *Cache) Store(basename string, data []byte) (string, error) {
	if basename == "" || basename != filepath.Base(basename) {
		return "", fmt.Errorf("invalid cache entry name %q: must be a basename", basename)
	}
	if err := c.ensureDir(); err != nil {
		return "", err
	}

	path := filepath.Join(c.dir, basename)
	if err := os.WriteFile(path, data, 0644); err != nil {
		return "", fmt.Errorf("writing cache entry: %w", err)
	}
	c.logger.Debug("stored cache entry", "name", basename, "bytes", len(data))
	return path, nil
}

// Find returns the cache entries whose basename matches the glob pattern,
// sorted by name. A missing cache directory yields no matches.
func (c *Cache) Find(pattern string) []string {
	matches, err := filepath.Glob(filepath.Join(c.dir, pattern))
	if err != nil {
		return nil
	}
	sort.Strings(matches)
	return matches
}

// Digest computes the URL-safe base64 SHA-256 digest of data, as embedded
// in backup file names.
func Digest(data []byte) string {
	sum := sha256.Sum256(data)
	return base64.RawURLEncoding.EncodeToString(sum[:])
}

// StoreBackup persists a directory backup archive unless a byte-identical
// backup already exists. Deduplication is by exact content digest embedded
// in the entry name. It returns the entry path and whether a new entry
// was written.
func (c *Cache) StoreBackup(stamp time.Time, data []byte) (string, bool, error) {
	digest := Digest(data)

	if existing := c.Find("backup-*-" + digest + ".zip"); len(existing) > 0 {
		c.logger.Debug("identical backup exists, skipping write", "path", existing[0])
		return existing[0], false, nil
	}

	name := fmt.Sprintf("backup-%s-%s.zip", stamp.Format(backupStampFormat), digest)
	path, err := c.Store(name, data)
	if err != nil {
		return "", false, err
	}
	return path, true, nil
}
