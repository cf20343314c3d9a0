// Package snapshot manages the destination directory trees of backup
// runs: one timestamped directory per run, a `current` symlink to the
// last complete run, and an in-progress marker while a run is in
// flight.
package snapshot

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
)

const (
	// CurrentLink is the symlink in the snapshot root pointing at the
	// most recent complete snapshot.
	CurrentLink = "current"
	// incompleteMarker exists inside a snapshot directory for as long
	// as the producing run has not finished successfully.
	incompleteMarker = "incomplete"
)

// Directory is the snapshot tree of one run.
type Directory struct {
	Root string
	ID   string
}

// Create makes a fresh snapshot directory under root and marks it
// incomplete.
func Create(root string) (*Directory, error) {
	id := fmt.Sprintf("%s-%s", time.Now().UTC().Format("20060102T150405"), uuid.New().String()[:8])

	dir := &Directory{Root: root, ID: id}
	if err := os.MkdirAll(dir.Path(), 0700); err != nil {
		return nil, fmt.Errorf("create snapshot: %w", err)
	}

	marker, err := os.Create(filepath.Join(dir.Path(), incompleteMarker))
	if err != nil {
		return nil, fmt.Errorf("create snapshot: %w", err)
	}
	if err := marker.Close(); err != nil {
		return nil, fmt.Errorf("create snapshot: %w", err)
	}

	return dir, nil
}

// Path returns the snapshot directory path.
func (d *Directory) Path() string {
	return filepath.Join(d.Root, d.ID)
}

// RepositoriesDir returns the sharded repository tree inside the
// snapshot.
func (d *Directory) RepositoriesDir() string {
	return filepath.Join(d.Path(), "repositories")
}

// Finalize removes the in-progress marker and atomically repoints the
// `current` symlink at this snapshot. The previous snapshot is never
// mutated.
func (d *Directory) Finalize() error {
	if err := os.Remove(filepath.Join(d.Path(), incompleteMarker)); err != nil {
		return fmt.Errorf("finalize snapshot: %w", err)
	}

	tmp := filepath.Join(d.Root, CurrentLink+".new")
	if err := os.Remove(tmp); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("finalize snapshot: %w", err)
	}
	if err := os.Symlink(d.ID, tmp); err != nil {
		return fmt.Errorf("finalize snapshot: %w", err)
	}
	if err := os.Rename(tmp, filepath.Join(d.Root, CurrentLink)); err != nil {
		return fmt.Errorf("finalize snapshot: %w", err)
	}

	return nil
}

// Discard removes the snapshot tree if it is still marked incomplete.
// An aborted run must not leave its partial snapshot behind. Finalized
// snapshots are never touched.
func (d *Directory) Discard() error {
	if _, err := os.Stat(filepath.Join(d.Path(), incompleteMarker)); os.IsNotExist(err) {
		return nil
	} else if err != nil {
		return fmt.Errorf("discard snapshot: %w", err)
	}

	if err := os.RemoveAll(d.Path()); err != nil {
		return fmt.Errorf("discard snapshot: %w", err)
	}
	return nil
}

// Previous returns the path of the most recent complete snapshot, or
// "" when there is none. Backup runs hard-link unchanged files against
// it.
func Previous(root string) string {
	target, err := os.Readlink(filepath.Join(root, CurrentLink))
	if err != nil {
		return ""
	}
	if !filepath.IsAbs(target) {
		target = filepath.Join(root, target)
	}
	if _, err := os.Stat(target); err != nil {
		return ""
	}
	return target
}

// Select resolves the snapshot to restore from. An empty selector
// means the most recent complete snapshot. Selecting an incomplete
// snapshot is an error.
func Select(root, selector string) (string, error) {
	var path string
	if selector == "" {
		if path = Previous(root); path == "" {
			return "", fmt.Errorf("no complete snapshot in %q", root)
		}
	} else {
		path = filepath.Join(root, selector)
	}

	if _, err := os.Stat(path); err != nil {
		return "", fmt.Errorf("select snapshot: %w", err)
	}
	if _, err := os.Stat(filepath.Join(path, incompleteMarker)); err == nil {
		return "", fmt.Errorf("snapshot %q is incomplete", path)
	}

	return path, nil
}
