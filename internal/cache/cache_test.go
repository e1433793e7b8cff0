package cache

import (
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestStoreAndFind(t *testing.T) {
	c := New(filepath.Join(t.TempDir(), "cache"), testLogger())

	path, err := c.Store("addon-1.2.zip", []byte("payload"))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("reading stored entry: %v", err)
	}
	if string(data) != "payload" {
		t.Errorf("expected payload, got %q", data)
	}

	// Overwriting the same name is idempotent
	if _, err := c.Store("addon-1.2.zip", []byte("payload2")); err != nil {
		t.Fatalf("overwrite failed: %v", err)
	}

	matches := c.Find("addon-*.zip")
	if len(matches) != 1 {
		t.Fatalf("expected 1 match, got %d", len(matches))
	}
}

func TestStoreRejectsNonBasename(t *testing.T) {
	c := New(t.TempDir(), testLogger())

	tests := []string{"", "sub/file.zip", "../escape.zip", "/abs.zip"}
	for _, name := range tests {
		if _, err := c.Store(name, []byte("x")); err == nil {
			t.Errorf("expected error for name %q", name)
		}
	}
}

func TestFindMissingCacheDir(t *testing.T) {
	c := New(filepath.Join(t.TempDir(), "never-created"), testLogger())
	if matches := c.Find("*"); len(matches) != 0 {
		t.Errorf("expected no matches, got %v", matches)
	}
}

func TestEnsureDirCollision(t *testing.T) {
	dir := t.TempDir()
	file := filepath.Join(dir, "occupied")
	if err := os.WriteFile(file, []byte("x"), 0644); err != nil {
		t.Fatalf("write: %v", err)
	}

	c := New(file, testLogger())
	if _, err := c.Store("entry.zip", []byte("x")); err == nil {
		t.Fatal("expected error when cache path is a file")
	}
}

func TestStoreBackupDedup(t *testing.T) {
	c := New(t.TempDir(), testLogger())
	content := []byte("identical backup bytes")

	first, created, err := c.StoreBackup(time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC), content)
	if err != nil {
		t.Fatalf("first backup: %v", err)
	}
	if !created {
		t.Fatal("expected first backup to be written")
	}

	// Same content at a later time: no second entry
	second, created, err := c.StoreBackup(time.Date(2026, 3, 2, 10, 0, 0, 0, time.UTC), content)
	if err != nil {
		t.Fatalf("second backup: %v", err)
	}
	if created {
		t.Error("expected identical backup to be deduplicated")
	}
	if first != second {
		t.Errorf("expected same entry path, got %q and %q", first, second)
	}
	if got := len(c.Find("backup-*.zip")); got != 1 {
		t.Errorf("expected 1 backup entry, got %d", got)
	}

	// Different content gets its own entry
	_, created, err = c.StoreBackup(time.Date(2026, 3, 3, 10, 0, 0, 0, time.UTC), []byte("different bytes"))
	if err != nil {
		t.Fatalf("third backup: %v", err)
	}
	if !created {
		t.Error("expected new backup for different content")
	}
	if got := len(c.Find("backup-*.zip")); got != 2 {
		t.Errorf("expected 2 backup entries, got %d", got)
	}
}

func TestBackupNameCarriesDigest(t *testing.T) {
	c := New(t.TempDir(), testLogger())
	content := []byte("some bytes")

	path, _, err := c.StoreBackup(time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC), content)
	if err != nil {
		t.Fatalf("backup: %v", err)
	}

	name := filepath.Base(path)
	if !strings.HasPrefix(name, "backup-20260301T100000-") {
		t.Errorf("unexpected stamp in name %q", name)
	}
	if !strings.Contains(name, Digest(content)) {
		t.Errorf("expected digest %q in name %q", Digest(content), name)
	}
	// URL-safe alphabet keeps the digest filename-clean
	if strings.ContainsAny(Digest(content), "/+=") {
		t.Errorf("digest not filename-safe: %q", Digest(content))
	}
}
