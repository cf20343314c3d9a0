package netpath

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
)

// maxScanDepth bounds how far below the repositories root the scanner
// descends. Network paths sit at most five segments deep.
const maxScanDepth = 5

// specialDirs are non-sharded top-level directories that never contain
// network paths.
var specialDirs = map[string]bool{
	"info":          true,
	"__purgatory__": true,
}

// ScanTree walks the repositories tree rooted at root to a bounded
// depth and returns every network path found, sorted. A missing root
// yields an empty result: a snapshot with no repositories is valid.
func ScanTree(root string) ([]NetworkPath, error) {
	if _, err := os.Stat(root); os.IsNotExist(err) {
		return nil, nil
	} else if err != nil {
		return nil, fmt.Errorf("scan %q: %w", root, err)
	}

	var paths []NetworkPath

	var walk func(dir string, depth int) error
	walk = func(dir string, depth int) error {
		entries, err := os.ReadDir(dir)
		if err != nil {
			return fmt.Errorf("scan %q: %w", dir, err)
		}

		for _, entry := range entries {
			if !entry.IsDir() {
				continue
			}
			if depth == 0 && specialDirs[entry.Name()] {
				continue
			}

			path := filepath.Join(dir, entry.Name())
			rel, err := filepath.Rel(root, path)
			if err != nil {
				return fmt.Errorf("scan %q: %w", path, err)
			}

			if p, err := Parse(filepath.ToSlash(rel)); err == nil {
				// A matched network directory is a leaf as far as
				// routing is concerned.
				paths = append(paths, p)
				continue
			}

			if depth+1 < maxScanDepth {
				if err := walk(path, depth+1); err != nil {
					return err
				}
			}
		}
		return nil
	}

	if err := walk(root, 0); err != nil {
		return nil, err
	}

	sort.Slice(paths, func(i, j int) bool { return paths[i] < paths[j] })

	return paths, nil
}

// Dedup returns paths with duplicates removed, preserving sort order.
func Dedup(paths []NetworkPath) []NetworkPath {
	sorted := append([]NetworkPath(nil), paths...)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i] < sorted[j] })

	deduped := sorted[:0]
	for _, p := range sorted {
		if len(deduped) == 0 || deduped[len(deduped)-1] != p {
			deduped = append(deduped, p)
		}
	}
	return deduped
}

// Marshal renders paths as the newline-delimited wire form of the
// route protocol.
func Marshal(paths []NetworkPath) string {
	var sb strings.Builder
	for _, p := range paths {
		sb.WriteString(string(p))
		sb.WriteByte('\n')
	}
	return sb.String()
}
