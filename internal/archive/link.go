package archive

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"runtime"
)

// recursiveRemoveIsSafe reports whether os.RemoveAll on this platform
// resists symlink-race attacks (file-descriptor based traversal). On
// other platforms an existing real directory must be removed by hand
// before a link can replace it.
func recursiveRemoveIsSafe() bool {
	switch runtime.GOOS {
	case "linux", "darwin", "freebsd", "netbsd", "openbsd", "dragonfly":
		return true
	}
	return false
}

// Link installs srcDir into target as a symbolic link named after the
// source folder. An existing entry at the link location is removed first:
// symlinks are unlinked, real directories are recursively deleted only
// when that is safe on the host platform, and otherwise the caller is
// told to remove the directory manually.
func Link(srcDir, target string, logger *slog.Logger) (string, error) {
	if logger == nil {
		logger = slog.Default()
	}

	absSrc, err := filepath.Abs(srcDir)
	if err != nil {
		return "", fmt.Errorf("resolving source: %w", err)
	}
	linkPath := filepath.Join(target, filepath.Base(absSrc))

	if fi, err := os.Lstat(linkPath); err == nil {
		logger.Warn("removing existing target before link", "path", linkPath)
		if fi.Mode()&os.ModeSymlink != 0 {
			if err := os.Remove(linkPath); err != nil {
				return "", fmt.Errorf("removing existing link: %w", err)
			}
		} else if fi.IsDir() {
			if !recursiveRemoveIsSafe() {
				return "", fmt.Errorf("%s must be deleted manually before a link from %s can be created", linkPath, absSrc)
			}
			if err := os.RemoveAll(linkPath); err != nil {
				return "", fmt.Errorf("removing existing directory: %w", err)
			}
		} else {
			if err := os.Remove(linkPath); err != nil {
				return "", fmt.Errorf("removing existing file: %w", err)
			}
		}
	}

	if err := os.Symlink(absSrc, linkPath); err != nil {
		return "", fmt.Errorf("creating link: %w", err)
	}
	return linkPath, nil
}
