package archive

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
)

// SyncOptions controls directory reconciliation.
type SyncOptions struct {
	// Purge removes target files absent from the source during the
	// second pass. Off by default: leftover files are harmless, a
	// wrongly deleted one is not.
	Purge bool
}

// SyncDir reconciles dst against src in two passes: first an additive
// create/update pass, then (only with Purge) a removal pass for files
// absent from src. The directory itself is never pruned. The pass order
// guarantees dst is never empty of both old and new content.
func SyncDir(src, dst string, opts SyncOptions) error {
	if err := os.MkdirAll(dst, 0755); err != nil {
		return fmt.Errorf("creating target: %w", err)
	}

	if err := additivePass(src, dst); err != nil {
		return err
	}
	if opts.Purge {
		if err := removalPass(src, dst); err != nil {
			return err
		}
	}
	return nil
}

// additivePass copies files from src into dst, creating directories and
// overwriting files whose size or mtime differ.
func additivePass(src, dst string) error {
	return filepath.Walk(src, func(p string, info os.FileInfo, err error) error {
		if err != nil {
			return err
		}
		rel, err := filepath.Rel(src, p)
		if err != nil {
			return err
		}
		if rel == "." {
			return nil
		}
		target := filepath.Join(dst, rel)

		if info.IsDir() {
			return os.MkdirAll(target, 0755)
		}

		if tfi, err := os.Stat(target); err == nil {
			if tfi.Size() == info.Size() && tfi.ModTime().Equal(info.ModTime()) {
				return nil
			}
		}
		if err := copyFile(p, target, info); err != nil {
			return fmt.Errorf("copying %s: %w", rel, err)
		}
		return nil
	})
}

// removalPass deletes files and directories in dst that have no
// counterpart in src. dst itself is left in place.
func removalPass(src, dst string) error {
	var doomed []string
	err := filepath.Walk(dst, func(p string, info os.FileInfo, err error) error {
		if err != nil {
			return err
		}
		rel, err := filepath.Rel(dst, p)
		if err != nil {
			return err
		}
		if rel == "." {
			return nil
		}
		if _, err := os.Lstat(filepath.Join(src, rel)); os.IsNotExist(err) {
			doomed = append(doomed, p)
			if info.IsDir() {
				return filepath.SkipDir
			}
		}
		return nil
	})
	if err != nil {
		return err
	}
	for _, p := range doomed {
		if err := os.RemoveAll(p); err != nil {
			return fmt.Errorf("removing %s: %w", p, err)
		}
	}
	return nil
}

// copyFile copies src to dst preserving mode and mtime.
func copyFile(src, dst string, info os.FileInfo) error {
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()

	out, err := os.OpenFile(dst, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, info.Mode().Perm())
	if err != nil {
		return err
	}
	if _, err := io.Copy(out, in); err != nil {
		out.Close()
		return err
	}
	if err := out.Close(); err != nil {
		return err
	}
	return os.Chtimes(dst, info.ModTime(), info.ModTime())
}
