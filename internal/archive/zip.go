// Package archive implements the materialization primitives used by
// sources: in-memory zip snapshots, archive unpacking with two-pass
// directory reconciliation, and symlink-based installs.
package archive

import (
	"archive/zip"
	"bytes"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path"
	"path/filepath"
	"strings"

	"github.com/wowsync/wowsync/internal/safety"
)

// ZipDir archives a directory tree into an in-memory zip. Symlinked
// subdirectories are followed so linked addons are captured in backups.
// Files that vanish mid-walk are logged and skipped rather than failing
// the archive.
func ZipDir(src string, logger *slog.Logger) ([]byte, error) {
	if logger == nil {
		logger = slog.Default()
	}

	absSrc, err := filepath.Abs(src)
	if err != nil {
		return nil, fmt.Errorf("resolving source: %w", err)
	}

	var buf bytes.Buffer
	zw := zip.NewWriter(&buf)

	var walk func(dir, rel string) error
	walk = func(dir, rel string) error {
		entries, err := os.ReadDir(dir)
		if err != nil {
			return fmt.Errorf("reading %s: %w", dir, err)
		}
		for _, entry := range entries {
			full := filepath.Join(dir, entry.Name())
			entryRel := path.Join(rel, entry.Name())

			// Stat (not Lstat) so symlinked directories are descended.
			fi, err := os.Stat(full)
			if err != nil {
				logger.Warn("missing or broken file, skipping", "path", full)
				continue
			}

			if fi.IsDir() {
				if err := walk(full, entryRel); err != nil {
					return err
				}
				continue
			}

			data, err := os.ReadFile(full)
			if err != nil {
				logger.Warn("unreadable file, skipping", "path", full)
				continue
			}
			hdr := &zip.FileHeader{Name: entryRel, Method: zip.Deflate}
			hdr.Modified = fi.ModTime()
			w, err := zw.CreateHeader(hdr)
			if err != nil {
				return fmt.Errorf("creating zip entry %s: %w", entryRel, err)
			}
			if _, err := w.Write(data); err != nil {
				return fmt.Errorf("writing zip entry %s: %w", entryRel, err)
			}
		}
		return nil
	}

	if err := walk(absSrc, ""); err != nil {
		return nil, err
	}
	if err := zw.Close(); err != nil {
		return nil, fmt.Errorf("finalizing zip: %w", err)
	}
	return buf.Bytes(), nil
}

// TocDirs lists the distinct directories inside a zip archive that contain
// a .toc file, in archive order. Each is a candidate addon folder.
func TocDirs(zipData []byte) ([]string, error) {
	zr, err := zip.NewReader(bytes.NewReader(zipData), int64(len(zipData)))
	if err != nil {
		return nil, fmt.Errorf("opening zip: %w", err)
	}

	seen := make(map[string]bool)
	var dirs []string
	for _, f := range zr.File {
		if !strings.HasSuffix(strings.ToLower(f.Name), ".toc") {
			continue
		}
		dir := path.Dir(f.Name)
		if dir == "." || seen[dir] {
			continue
		}
		seen[dir] = true
		dirs = append(dirs, dir)
	}
	return dirs, nil
}

// TocNames lists the addon names a zip archive supplies: the base names of
// the directories holding a .toc file.
func TocNames(zipData []byte) ([]string, error) {
	dirs, err := TocDirs(zipData)
	if err != nil {
		return nil, err
	}
	names := make([]string, 0, len(dirs))
	for _, d := range dirs {
		names = append(names, path.Base(d))
	}
	return names, nil
}

// extract unpacks zipData into dir, guarding every member path.
func extract(zipData []byte, dir string) error {
	zr, err := zip.NewReader(bytes.NewReader(zipData), int64(len(zipData)))
	if err != nil {
		return fmt.Errorf("opening zip: %w", err)
	}

	for _, f := range zr.File {
		dest, err := safety.JoinUnder(dir, f.Name)
		if err != nil {
			return fmt.Errorf("unsafe zip member %q: %w", f.Name, err)
		}
		if f.FileInfo().IsDir() {
			if err := os.MkdirAll(dest, 0755); err != nil {
				return fmt.Errorf("creating %s: %w", dest, err)
			}
			continue
		}
		if err := os.MkdirAll(filepath.Dir(dest), 0755); err != nil {
			return fmt.Errorf("creating %s: %w", filepath.Dir(dest), err)
		}
		rc, err := f.Open()
		if err != nil {
			return fmt.Errorf("opening zip member %s: %w", f.Name, err)
		}
		out, err := os.Create(dest)
		if err != nil {
			rc.Close()
			return fmt.Errorf("creating %s: %w", dest, err)
		}
		_, err = io.Copy(out, rc)
		rc.Close()
		if cerr := out.Close(); err == nil {
			err = cerr
		}
		if err != nil {
			return fmt.Errorf("extracting %s: %w", f.Name, err)
		}
	}
	return nil
}

// Unpack extracts an addon archive to a scratch directory, locates the
// addon folders inside it (directories carrying a .toc file), and
// reconciles each into the matching subfolder of target. A target
// subfolder that is currently a symlink is refused, since it likely
// points at a linked repository.
//
// It returns the base names of the reconciled subfolders.
func Unpack(zipData []byte, target string, opts SyncOptions, logger *slog.Logger) ([]string, error) {
	if logger == nil {
		logger = slog.Default()
	}

	addonDirs, err := TocDirs(zipData)
	if err != nil {
		return nil, err
	}
	if len(addonDirs) == 0 {
		return nil, fmt.Errorf("archive contains no addon folders")
	}

	// Refuse before touching the filesystem: materializing over a
	// symlink would write through into the linked repository.
	for _, d := range addonDirs {
		tgt := filepath.Join(target, path.Base(d))
		if fi, err := os.Lstat(tgt); err == nil && fi.Mode()&os.ModeSymlink != 0 {
			return nil, fmt.Errorf("target %s is a symlink; it may be a linked repository, remove it from the source list first", tgt)
		}
	}

	scratch, err := os.MkdirTemp("", "wowsync-unpack-")
	if err != nil {
		return nil, fmt.Errorf("creating scratch directory: %w", err)
	}
	defer os.RemoveAll(scratch)

	if err := extract(zipData, scratch); err != nil {
		return nil, err
	}

	var synced []string
	for _, d := range addonDirs {
		src := filepath.Join(scratch, filepath.FromSlash(d))
		tgt := filepath.Join(target, path.Base(d))
		logger.Debug("reconciling addon folder", "from", d, "to", tgt)
		if err := SyncDir(src, tgt, opts); err != nil {
			return synced, fmt.Errorf("reconciling %s: %w", path.Base(d), err)
		}
		synced = append(synced, path.Base(d))
	}
	return synced, nil
}
