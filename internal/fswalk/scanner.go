package fswalk

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"syscall"
	"time"
)

// ErrRootNotFound is fatal: there is nothing to reconcile against.
var ErrRootNotFound = errors.New("fswalk: attachment root not found")

// FileEntry is one observation of the filesystem. Entries are never
// mutated in place; cleanup actions produce new observations on the
// next scan.
type FileEntry struct {
	Path    string // absolute, normalized
	Name    string
	Size    int64
	ModTime time.Time
	IsDir   bool
}

// Warning is a non-fatal condition encountered during the walk.
type Warning struct {
	Path    string
	Message string
}

// Snapshot is the complete, immutable result of one walk. Entries are
// sorted lexicographically by path so downstream diffing is reproducible.
type Snapshot struct {
	Root     string
	Entries  []FileEntry
	Warnings []Warning
}

// Files returns only the regular-file entries.
func (s *Snapshot) Files() []FileEntry {
	out := make([]FileEntry, 0, len(s.Entries))
	for _, e := range s.Entries {
		if !e.IsDir {
			out = append(out, e)
		}
	}
	return out
}

// Dirs returns only the directory entries.
func (s *Snapshot) Dirs() []FileEntry {
	out := make([]FileEntry, 0, len(s.Entries))
	for _, e := range s.Entries {
		if e.IsDir {
			out = append(out, e)
		}
	}
	return out
}

type walker struct {
	opts     *Options
	snapshot *Snapshot
	// visited guards against symlink cycles: each (dev, inode) directory
	// target is descended into at most once.
	visited map[[2]uint64]bool
}

// Scan walks the attachment root and returns a deterministic snapshot.
// A missing root is fatal; unreadable children and symlink cycles are
// collected as warnings and excluded from the result.
func Scan(ctx context.Context, root string, opts *Options) (*Snapshot, error) {
	if opts == nil {
		opts = DefaultOptions()
	}
	root, err := filepath.Abs(root)
	if err != nil {
		return nil, fmt.Errorf("resolve root: %w", err)
	}
	root = filepath.Clean(root)

	info, err := os.Stat(root)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("%w: %s", ErrRootNotFound, root)
		}
		return nil, fmt.Errorf("stat root: %w", err)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("%w: %s is not a directory", ErrRootNotFound, root)
	}

	w := &walker{
		opts:     opts,
		snapshot: &Snapshot{Root: root},
		visited:  map[[2]uint64]bool{},
	}
	w.markVisited(info)

	if err := w.walk(ctx, root, 0); err != nil {
		return nil, err
	}

	sort.Slice(w.snapshot.Entries, func(i, j int) bool {
		return w.snapshot.Entries[i].Path < w.snapshot.Entries[j].Path
	})
	return w.snapshot, nil
}

func (w *walker) walk(ctx context.Context, dir string, depth int) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	dirEntries, err := os.ReadDir(dir)
	if err != nil {
		w.warn(dir, err.Error())
		return nil
	}

	for i, de := range dirEntries {
		if i%128 == 0 && ctx.Err() != nil {
			return ctx.Err()
		}

		childPath := filepath.Join(dir, de.Name())
		if w.opts.ShouldExclude(childPath) {
			continue
		}

		info, err := os.Lstat(childPath)
		if err != nil {
			w.warn(childPath, err.Error())
			continue
		}

		isLink := info.Mode()&os.ModeSymlink != 0
		if isLink {
			if !w.opts.FollowSymlinks {
				continue
			}
			resolved, err := os.Stat(childPath)
			if err != nil {
				w.warn(childPath, "broken symlink: "+err.Error())
				continue
			}
			if resolved.IsDir() {
				if !w.markVisited(resolved) {
					w.warn(childPath, "symlink cycle detected, skipping")
					continue
				}
			}
			info = resolved
		}

		switch {
		case info.IsDir():
			if !isLink && !w.markVisited(info) {
				// Hard-linked or bind-mounted duplicate; visit once.
				continue
			}
			w.snapshot.Entries = append(w.snapshot.Entries, FileEntry{
				Path:    childPath,
				Name:    de.Name(),
				ModTime: info.ModTime(),
				IsDir:   true,
			})
			if err := w.walk(ctx, childPath, depth+1); err != nil {
				return err
			}
		case info.Mode().IsRegular():
			w.snapshot.Entries = append(w.snapshot.Entries, FileEntry{
				Path:    childPath,
				Name:    de.Name(),
				Size:    info.Size(),
				ModTime: info.ModTime(),
			})
		default:
			// Sockets, devices, fifos: not attachments.
		}
	}
	return nil
}

func (w *walker) warn(path, msg string) {
	w.snapshot.Warnings = append(w.snapshot.Warnings, Warning{Path: path, Message: msg})
}

// markVisited records a directory identity and reports whether it was new.
func (w *walker) markVisited(info os.FileInfo) bool {
	stat, ok := info.Sys().(*syscall.Stat_t)
	if !ok {
		return true
	}
	key := [2]uint64{uint64(stat.Dev), uint64(stat.Ino)}
	if w.visited[key] {
		return false
	}
	w.visited[key] = true
	return true
}
