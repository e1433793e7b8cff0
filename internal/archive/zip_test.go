package archive

import (
	"archive/zip"
	"bytes"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// buildZip assembles an in-memory zip from name -> content pairs.
func buildZip(t *testing.T, files map[string]string) []byte {
	t.Helper()
	var buf bytes.Buffer
	zw := zip.NewWriter(&buf)
	for name, content := range files {
		w, err := zw.Create(name)
		if err != nil {
			t.Fatalf("creating zip entry: %v", err)
		}
		if _, err := w.Write([]byte(content)); err != nil {
			t.Fatalf("writing zip entry: %v", err)
		}
	}
	if err := zw.Close(); err != nil {
		t.Fatalf("closing zip: %v", err)
	}
	return buf.Bytes()
}

func TestZipDirRoundTrip(t *testing.T) {
	src := t.TempDir()
	if err := os.MkdirAll(filepath.Join(src, "MyAddon"), 0755); err != nil {
		t.Fatalf("mkdir: %v", err)
	}
	if err := os.WriteFile(filepath.Join(src, "MyAddon", "MyAddon.toc"), []byte("## Version: 1\n"), 0644); err != nil {
		t.Fatalf("write: %v", err)
	}
	if err := os.WriteFile(filepath.Join(src, "MyAddon", "core.lua"), []byte("-- code"), 0644); err != nil {
		t.Fatalf("write: %v", err)
	}

	data, err := ZipDir(src, testLogger())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	zr, err := zip.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		t.Fatalf("reading archive: %v", err)
	}
	names := make(map[string]bool)
	for _, f := range zr.File {
		names[f.Name] = true
	}
	if !names["MyAddon/MyAddon.toc"] || !names["MyAddon/core.lua"] {
		t.Errorf("archive missing expected members: %v", names)
	}
}

func TestZipDirFollowsSymlinkedAddons(t *testing.T) {
	real := t.TempDir()
	if err := os.WriteFile(filepath.Join(real, "Linked.toc"), []byte("## Version: 1\n"), 0644); err != nil {
		t.Fatalf("write: %v", err)
	}

	src := t.TempDir()
	if err := os.Symlink(real, filepath.Join(src, "Linked")); err != nil {
		t.Fatalf("symlink: %v", err)
	}

	data, err := ZipDir(src, testLogger())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	names, err := TocNames(data)
	if err != nil {
		t.Fatalf("listing toc names: %v", err)
	}
	if len(names) != 1 || names[0] != "Linked" {
		t.Errorf("expected linked addon captured in backup, got %v", names)
	}
}

func TestTocNames(t *testing.T) {
	data := buildZip(t, map[string]string{
		"AddonA/AddonA.toc":      "## Version: 1\n",
		"AddonA/core.lua":        "",
		"Bundle/AddonB/AddonB.toc": "## Version: 2\n",
		"README.md":              "docs",
	})

	names, err := TocNames(data)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(names) != 2 {
		t.Fatalf("expected 2 addon folders, got %v", names)
	}
	got := map[string]bool{names[0]: true, names[1]: true}
	if !got["AddonA"] || !got["AddonB"] {
		t.Errorf("unexpected addon names: %v", names)
	}
}

func TestUnpackRoundTrip(t *testing.T) {
	data := buildZip(t, map[string]string{
		"MyAddon/MyAddon.toc": "## Interface: 70300\n## Version: 1.0\n",
		"MyAddon/core.lua":    "-- code",
	})

	target := t.TempDir()
	synced, err := Unpack(data, target, SyncOptions{}, testLogger())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(synced) != 1 || synced[0] != "MyAddon" {
		t.Fatalf("expected MyAddon synced, got %v", synced)
	}

	// The unpacked folder is a valid addon again: folder and toc agree
	toc := filepath.Join(target, "MyAddon", "MyAddon.toc")
	content, err := os.ReadFile(toc)
	if err != nil {
		t.Fatalf("reading unpacked toc: %v", err)
	}
	if !strings.Contains(string(content), "## Version: 1.0") {
		t.Errorf("unexpected toc content: %q", content)
	}
}

func TestUnpackRefusesSymlinkedTarget(t *testing.T) {
	data := buildZip(t, map[string]string{
		"MyAddon/MyAddon.toc": "## Version: 1\n",
	})

	linked := t.TempDir()
	target := t.TempDir()
	if err := os.Symlink(linked, filepath.Join(target, "MyAddon")); err != nil {
		t.Fatalf("symlink: %v", err)
	}

	_, err := Unpack(data, target, SyncOptions{}, testLogger())
	if err == nil {
		t.Fatal("expected refusal for symlinked target subfolder")
	}
	if !strings.Contains(err.Error(), "linked repository") {
		t.Errorf("unexpected error: %v", err)
	}
	// The linked directory stays untouched
	entries, _ := os.ReadDir(linked)
	if len(entries) != 0 {
		t.Errorf("linked directory was written through: %v", entries)
	}
}

func TestUnpackEmptyArchive(t *testing.T) {
	data := buildZip(t, map[string]string{"README.md": "no addons here"})
	_, err := Unpack(data, t.TempDir(), SyncOptions{}, testLogger())
	if err == nil {
		t.Fatal("expected error for archive with no addon folders")
	}
}

func TestUnpackRejectsTraversal(t *testing.T) {
	data := buildZip(t, map[string]string{
		"MyAddon/MyAddon.toc":  "## Version: 1\n",
		"../escape/evil.toc":   "## Version: 666\n",
	})

	target := t.TempDir()
	_, err := Unpack(data, target, SyncOptions{}, testLogger())
	if err == nil {
		t.Fatal("expected error for traversal member")
	}
	if _, statErr := os.Stat(filepath.Join(filepath.Dir(target), "escape")); statErr == nil {
		t.Error("traversal member escaped the scratch directory")
	}
}
