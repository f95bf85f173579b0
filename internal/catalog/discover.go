package catalog

import (
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"strings"
)

// Selection narrows the set of source directories considered for a merge.
type Selection struct {
	// IncludeOnly names the only source directories to consider. When set,
	// Exclude is ignored.
	IncludeOnly []string

	// Exclude names source directories to skip.
	Exclude []string

	// All requests every transformed source. It is the default behaviour and
	// currently selects nothing beyond what an empty Selection does.
	All bool
}

// ParseList splits a comma-delimited flag value into trimmed, non-empty names.
func ParseList(s string) []string {
	if s == "" {
		return nil
	}
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

// SelectSources returns the names of the immediate subdirectories of root
// that the selection admits, sorted by name.
func SelectSources(root string, sel Selection) ([]string, error) {
	entries, err := os.ReadDir(root)
	if err != nil {
		return nil, fmt.Errorf("failed to read transformed data directory: %w", err)
	}

	var names []string
	for _, entry := range entries {
		if !isDir(root, entry) {
			continue
		}
		name := entry.Name()
		switch {
		case len(sel.IncludeOnly) > 0:
			if !slices.Contains(sel.IncludeOnly, name) {
				continue
			}
		case len(sel.Exclude) > 0:
			if slices.Contains(sel.Exclude, name) {
				continue
			}
		}
		names = append(names, name)
	}

	slices.Sort(names)
	return names, nil
}

// ListTables returns the .tsv files directly inside dir, sorted.
// Subdirectories are not descended into.
func ListTables(dir string) ([]string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("failed to read source directory %s: %w", dir, err)
	}

	var files []string
	for _, entry := range entries {
		if !strings.HasSuffix(entry.Name(), TableExt) {
			continue
		}
		info, err := os.Stat(filepath.Join(dir, entry.Name()))
		if err != nil || !info.Mode().IsRegular() {
			continue
		}
		files = append(files, filepath.Join(dir, entry.Name()))
	}

	slices.Sort(files)
	return files, nil
}

// isDir follows symlinks so a linked source directory still counts.
func isDir(root string, entry os.DirEntry) bool {
	if entry.IsDir() {
		return true
	}
	if entry.Type()&os.ModeSymlink == 0 {
		return false
	}
	info, err := os.Stat(filepath.Join(root, entry.Name()))
	return err == nil && info.IsDir()
}
