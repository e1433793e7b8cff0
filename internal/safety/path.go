// Package safety guards filesystem paths handled during archive
// extraction and directory reconciliation.
package safety

import (
	"fmt"
	"path/filepath"
	"strings"
)

// CleanRelativePath normalizes an archive member path and rejects
// absolute paths and parent traversal.
func CleanRelativePath(p string) (string, error) {
	if p == "" {
		return "", fmt.Errorf("path is empty")
	}
	clean := filepath.Clean(filepath.FromSlash(p))
	if clean == "." {
		return "", fmt.Errorf("path resolves to current directory")
	}
	if filepath.IsAbs(clean) {
		return "", fmt.Errorf("absolute path not allowed: %q", p)
	}
	if clean == ".." || strings.HasPrefix(clean, ".."+string(filepath.Separator)) {
		return "", fmt.Errorf("parent traversal not allowed: %q", p)
	}
	return clean, nil
}

// JoinUnder joins a relative path under root, verifying the result stays
// inside root.
func JoinUnder(root, rel string) (string, error) {
	cleanRel, err := CleanRelativePath(rel)
	if err != nil {
		return "", err
	}
	rootAbs, err := filepath.Abs(root)
	if err != nil {
		return "", fmt.Errorf("resolve root: %w", err)
	}
	joined := filepath.Join(rootAbs, cleanRel)
	relBack, err := filepath.Rel(rootAbs, joined)
	if err != nil {
		return "", fmt.Errorf("compare paths: %w", err)
	}
	if relBack == ".." || strings.HasPrefix(relBack, ".."+string(filepath.Separator)) {
		return "", fmt.Errorf("path escapes root: %q", rel)
	}
	return joined, nil
}
