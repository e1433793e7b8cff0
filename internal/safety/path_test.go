package safety

import (
	"path/filepath"
	"strings"
	"testing"
)

func TestCleanRelativePath(t *testing.T) {
	tests := []struct {
		name    string
		in      string
		want    string
		wantErr bool
	}{
		{"simple", "MyAddon/core.lua", filepath.Join("MyAddon", "core.lua"), false},
		{"dot segments collapse", "a/./b", filepath.Join("a", "b"), false},
		{"empty", "", "", true},
		{"current dir", ".", "", true},
		{"absolute", "/etc/passwd", "", true},
		{"parent traversal", "../outside", "", true},
		{"nested traversal", "a/../../outside", "", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := CleanRelativePath(tt.in)
			if tt.wantErr {
				if err == nil {
					t.Fatalf("expected error for %q, got %q", tt.in, got)
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if got != tt.want {
				t.Errorf("got %q, want %q", got, tt.want)
			}
		})
	}
}

func TestJoinUnder(t *testing.T) {
	root := t.TempDir()

	joined, err := JoinUnder(root, "sub/file.toc")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !strings.HasPrefix(joined, root) {
		t.Errorf("joined path %q escapes root %q", joined, root)
	}

	if _, err := JoinUnder(root, "../sibling"); err == nil {
		t.Error("expected traversal rejection")
	}
	if _, err := JoinUnder(root, "/abs"); err == nil {
		t.Error("expected absolute path rejection")
	}
}
