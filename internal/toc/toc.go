// Package toc reads World of Warcraft addon inventories from disk.
//
// An addon is a folder containing a table-of-contents file of the same
// name (AddonName/AddonName.toc). The TOC file carries `## Key: value`
// header tags such as Interface and Version.
package toc

import (
	"bufio"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"
)

// ErrNoAddonsFound indicates a scan directory contained no addon folders.
var ErrNoAddonsFound = errors.New("no addons found")

// headerRe matches a `## Key: value` TOC header line.
var headerRe = regexp.MustCompile(`^##\s*(\w+)\s*:\s*(.+)$`)

// Entry is one addon detected during a scan.
type Entry struct {
	// Name is the addon id, derived from the TOC file's base name.
	Name string
	// Dir is the addon folder containing the TOC file.
	Dir string
	// Path is the full path of the TOC file.
	Path string
	// Keys holds tag names in the order they appeared in the file.
	Keys []string
	// Meta maps tag name to value. Keys are case-sensitive and no
	// fixed schema is applied; unknown tags are retained verbatim.
	Meta map[string]string
	// Err is set when the entry failed validation (e.g. the TOC base
	// name disagrees with its containing folder).
	Err error
}

// Tag returns the value of a header tag, or fallback if absent.
func (e *Entry) Tag(key, fallback string) string {
	if v, ok := e.Meta[key]; ok {
		return v
	}
	return fallback
}

// NormalizeDir maps a user-supplied scan directory to the actual addon
// directory. A WoW install keeps addons under Interface/AddOns, and users
// commonly point the tool at the install root or the Interface folder.
func NormalizeDir(dir string) string {
	base := filepath.Base(dir)
	switch {
	case base == "AddOns":
		return dir
	case base == "Interface":
		return filepath.Join(dir, "AddOns")
	}
	nested := filepath.Join(dir, "Interface", "AddOns")
	if fi, err := os.Stat(nested); err == nil && fi.IsDir() {
		return nested
	}
	return dir
}

// Scan walks directory/*/<name>.toc and parses each TOC file found.
// Entries whose id disagrees with the containing folder are returned with
// Err set rather than dropped, so callers can log each exclusion.
// It returns ErrNoAddonsFound when the directory yields no entries at all.
func Scan(dir string) ([]Entry, error) {
	addonDir := NormalizeDir(dir)

	subdirs, err := os.ReadDir(addonDir)
	if err != nil {
		return nil, fmt.Errorf("reading addon directory: %w", err)
	}

	var entries []Entry
	for _, sub := range subdirs {
		if !sub.IsDir() && sub.Type()&os.ModeSymlink == 0 {
			continue
		}
		subPath := filepath.Join(addonDir, sub.Name())
		files, err := os.ReadDir(subPath)
		if err != nil {
			continue
		}
		for _, f := range files {
			if f.IsDir() || !strings.EqualFold(filepath.Ext(f.Name()), ".toc") {
				continue
			}
			entries = append(entries, parse(filepath.Join(subPath, f.Name())))
		}
	}

	if len(entries) == 0 {
		return nil, fmt.Errorf("%w in %s", ErrNoAddonsFound, addonDir)
	}
	return entries, nil
}

// parse reads one TOC file. Malformed or non-text content degrades to an
// entry with no tags; only the folder/name mismatch marks the entry invalid.
func parse(path string) Entry {
	dir := filepath.Dir(path)
	name := strings.TrimSuffix(filepath.Base(path), filepath.Ext(path))

	e := Entry{
		Name: name,
		Dir:  dir,
		Path: path,
		Meta: make(map[string]string),
	}

	if name != filepath.Base(dir) {
		e.Err = fmt.Errorf("toc name %q does not match folder %q", name, filepath.Base(dir))
		return e
	}

	f, err := os.Open(path)
	if err != nil {
		return e
	}
	defer f.Close()

	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for scanner.Scan() {
		m := headerRe.FindStringSubmatch(strings.TrimRight(scanner.Text(), "\r"))
		if m == nil {
			continue
		}
		key, value := m[1], strings.TrimSpace(m[2])
		if _, seen := e.Meta[key]; !seen {
			e.Keys = append(e.Keys, key)
		}
		e.Meta[key] = value
	}
	// A scan error (binary junk, oversized lines) means no tags, not a
	// failed entry.
	return e
}

// Valid returns the entries with no validation error.
func Valid(entries []Entry) []Entry {
	var out []Entry
	for _, e := range entries {
		if e.Err == nil {
			out = append(out, e)
		}
	}
	return out
}

// Invalid returns the entries that failed validation.
func Invalid(entries []Entry) []Entry {
	var out []Entry
	for _, e := range entries {
		if e.Err != nil {
			out = append(out, e)
		}
	}
	return out
}

// Names returns the ids of the given entries in order.
func Names(entries []Entry) []string {
	names := make([]string, 0, len(entries))
	for _, e := range entries {
		names = append(names, e.Name)
	}
	return names
}

// FormatSummary renders a fixed-width inventory listing for terminal output.
func FormatSummary(entries []Entry) string {
	var b strings.Builder
	fmt.Fprintf(&b, "%-4s %-10s %-20s %s\n", "Id", "Interface", "Version", "Name")
	for i, e := range entries {
		fmt.Fprintf(&b, "%-4d %-10s %-20s %s\n",
			i,
			e.Tag("Interface", "N/A"),
			e.Tag("Version", "N/A"),
			e.Name,
		)
	}
	return strings.TrimRight(b.String(), "\n")
}
