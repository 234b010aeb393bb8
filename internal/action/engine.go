package action

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sync"
	"syscall"
	"time"

	"github.com/zotsweep/zotsweep/internal/pathutil"
	"github.com/zotsweep/zotsweep/internal/reconcile"
	"github.com/zotsweep/zotsweep/internal/undolog"
)

// ErrRestoreConflict marks a restore target occupied by a different
// file. The conflicting file is skipped and reported; the batch
// continues.
var ErrRestoreConflict = errors.New("action: restore target occupied")

// Config wires the engine to its directories and undo log.
type Config struct {
	// Root is the attachment root every relocated path is taken
	// relative to.
	Root string
	// QuarantineDir receives relocated files, mirroring their
	// root-relative layout.
	QuarantineDir string
	// TrashDir receives removed files. Files here are only ever deleted
	// by an explicit purge, never as a side effect.
	TrashDir string
	// Workers bounds the mutation worker pool. Values < 1 mean serial.
	Workers int
}

// Engine is the sole writer of the attachment tree and the undo log.
// Every mutation is journaled pre-image first: the in_progress record
// reaches disk before the filesystem call it describes.
type Engine struct {
	cfg   Config
	log   *undolog.Log
	runID string
}

// NewEngine creates an engine for one run.
func NewEngine(cfg Config, log *undolog.Log) *Engine {
	if cfg.Workers < 1 {
		cfg.Workers = 1
	}
	cfg.Root = pathutil.Normalize(cfg.Root)
	return &Engine{
		cfg:   cfg,
		log:   log,
		runID: time.Now().Format("20060102-150405"),
	}
}

// RunID identifies this engine's records in the undo log.
func (e *Engine) RunID() string { return e.runID }

// Recover settles any records a previous run left in_progress. It must
// be called before the first mutation of a run.
func (e *Engine) Recover() (int, error) {
	return e.log.Recover(undolog.ResolveByDisk)
}

// summaryAdder is the slice of report.Summary the engine needs; taking
// an interface keeps the engine decoupled from rendering.
type summaryAdder interface {
	AddCommitted(size int64)
	AddFailure(path string, err error)
	AddSkipped()
	AddConflict(path string, err error)
	AddPrunedDir()
}

// Relocate moves each target into the quarantine directory, preserving
// its root-relative layout.
func (e *Engine) Relocate(ctx context.Context, targets []reconcile.Classified, sum summaryAdder) error {
	return e.moveBatch(ctx, targets, undolog.OpRelocate, e.cfg.QuarantineDir, sum)
}

// Remove moves each target into the trash directory. True deletion is
// never performed here; purging the trash is the user's separate act.
func (e *Engine) Remove(ctx context.Context, targets []reconcile.Classified, sum summaryAdder) error {
	return e.moveBatch(ctx, targets, undolog.OpRemove, e.cfg.TrashDir, sum)
}

func (e *Engine) moveBatch(ctx context.Context, targets []reconcile.Classified, op undolog.Op, destRoot string, sum summaryAdder) error {
	if destRoot == "" {
		return fmt.Errorf("action: no destination directory configured for %s", op)
	}

	sem := make(chan struct{}, e.cfg.Workers)
	var wg sync.WaitGroup
	for _, t := range targets {
		if ctx.Err() != nil {
			break
		}
		// Only eligible unlinked files are ever mutated; linked and
		// ambiguous files cannot reach this point through Targets(),
		// but an explicit scope list is re-checked here.
		if t.Class != reconcile.Unlinked || !t.Eligible {
			sum.AddSkipped()
			continue
		}

		wg.Add(1)
		sem <- struct{}{}
		go func(t reconcile.Classified) {
			defer wg.Done()
			defer func() { <-sem }()
			e.moveOne(ctx, op, t.File.Path, t.File.Size, destRoot, sum)
		}(t)
	}
	wg.Wait()
	return ctx.Err()
}

func (e *Engine) moveOne(ctx context.Context, op undolog.Op, src string, size int64, destRoot string, sum summaryAdder) {
	if ctx.Err() != nil {
		sum.AddSkipped()
		return
	}

	dest := freeName(filepath.Join(destRoot, pathutil.RelativeTo(e.cfg.Root, src)))

	seq, err := e.log.Begin(e.runID, op, src, dest)
	if err != nil {
		sum.AddFailure(src, err)
		return
	}
	if err := moveFile(src, dest); err != nil {
		e.finalize(seq, undolog.StateFailed)
		sum.AddFailure(src, err)
		return
	}
	e.finalize(seq, undolog.StateCommitted)
	sum.AddCommitted(size)
}

// Restore moves previously relocated or removed files back to their
// original paths, consuming their undo records. One conflicting path
// never aborts the batch.
func (e *Engine) Restore(ctx context.Context, originalPaths []string, sum summaryAdder) error {
	for _, orig := range originalPaths {
		if err := ctx.Err(); err != nil {
			return err
		}
		orig = pathutil.Normalize(orig)

		rec, err := e.log.LatestForPath(orig)
		if err != nil {
			sum.AddFailure(orig, err)
			continue
		}
		if rec == nil {
			restored, err := e.log.WasRestored(orig)
			if err == nil && restored {
				// Second restore of the same path: a no-op, not an error.
				sum.AddSkipped()
				continue
			}
			sum.AddFailure(orig, errors.New("no restorable record for path"))
			continue
		}

		if _, err := os.Stat(orig); err == nil {
			sum.AddConflict(orig, fmt.Errorf("%w: %s", ErrRestoreConflict, orig))
			continue
		}

		seq, err := e.log.Begin(e.runID, undolog.OpRestore, rec.DestPath, orig)
		if err != nil {
			sum.AddFailure(orig, err)
			continue
		}
		if err := moveFile(rec.DestPath, orig); err != nil {
			e.finalize(seq, undolog.StateFailed)
			sum.AddFailure(orig, err)
			continue
		}
		e.finalize(seq, undolog.StateCommitted)
		if err := e.log.MarkRestored(rec.Seq); err != nil {
			sum.AddFailure(orig, err)
			continue
		}
		var size int64
		if info, err := os.Stat(orig); err == nil {
			size = info.Size()
		}
		sum.AddCommitted(size)
	}
	return nil
}

// RestoreAll restores every restorable record, newest first per path.
func (e *Engine) RestoreAll(ctx context.Context, sum summaryAdder) error {
	recs, err := e.log.Restorable()
	if err != nil {
		return err
	}
	seen := map[string]bool{}
	var paths []string
	for _, r := range recs {
		if !seen[r.OriginalPath] {
			seen[r.OriginalPath] = true
			paths = append(paths, r.OriginalPath)
		}
	}
	return e.Restore(ctx, paths, sum)
}

// PruneEmptyDirs removes directory-deletion candidates bottom-up. Each
// directory's emptiness is re-checked immediately before removal; junk
// files inside an otherwise empty directory are swept with it.
func (e *Engine) PruneEmptyDirs(ctx context.Context, candidates []string, sum summaryAdder) error {
	for _, dir := range candidates {
		if err := ctx.Err(); err != nil {
			return err
		}
		if !pathutil.WithinRoot(e.cfg.Root, dir) || dir == e.cfg.Root {
			sum.AddSkipped()
			continue
		}
		removed, err := removeIfEffectivelyEmpty(dir)
		if err != nil {
			sum.AddFailure(dir, err)
			continue
		}
		if removed {
			sum.AddPrunedDir()
		} else {
			sum.AddSkipped()
		}
	}
	return nil
}

func removeIfEffectivelyEmpty(dir string) (bool, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return false, err
	}
	var junk []string
	for _, de := range entries {
		if de.IsDir() || !reconcile.IsJunk(de.Name()) {
			// Not empty after all; a concurrent writer may have raced us.
			return false, nil
		}
		junk = append(junk, de.Name())
	}
	for _, name := range junk {
		if err := os.Remove(filepath.Join(dir, name)); err != nil {
			return false, err
		}
	}
	if err := os.Remove(dir); err != nil {
		return false, err
	}
	return true, nil
}

// Purge permanently deletes trash contents older than the cutoff. A zero
// cutoff empties the whole trash. This is the only irreversible
// operation in the engine and only ever touches the trash tree.
func (e *Engine) Purge(ctx context.Context, olderThan time.Duration, sum summaryAdder) error {
	if e.cfg.TrashDir == "" {
		return errors.New("action: no trash directory configured")
	}
	cutoff := time.Now().Add(-olderThan)

	err := filepath.Walk(e.cfg.TrashDir, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			if os.IsNotExist(err) {
				return nil
			}
			return err
		}
		if cerr := ctx.Err(); cerr != nil {
			return cerr
		}
		if info.IsDir() {
			return nil
		}
		if olderThan > 0 && info.ModTime().After(cutoff) {
			sum.AddSkipped()
			return nil
		}
		if err := os.Remove(path); err != nil {
			sum.AddFailure(path, err)
			return nil
		}
		sum.AddCommitted(info.Size())
		return nil
	})
	if err != nil {
		return err
	}
	return pruneEmptyTree(e.cfg.TrashDir)
}

// pruneEmptyTree removes now-empty subdirectories of root, keeping root.
func pruneEmptyTree(root string) error {
	var dirs []string
	filepath.Walk(root, func(path string, info os.FileInfo, err error) error {
		if err == nil && info.IsDir() && path != root {
			dirs = append(dirs, path)
		}
		return nil
	})
	// Deepest first.
	for i := len(dirs) - 1; i >= 0; i-- {
		if _, err := removeIfEffectivelyEmpty(dirs[i]); err != nil && !os.IsNotExist(err) {
			return err
		}
	}
	return nil
}

func (e *Engine) finalize(seq int64, state undolog.State) {
	if err := e.log.Finalize(seq, state); err != nil {
		fmt.Fprintf(os.Stderr, "warning: failed to finalize undo record %d: %v\n", seq, err)
	}
}

// freeName returns path, or path with a numeric suffix when it is
// already occupied in the destination tree.
func freeName(path string) string {
	if _, err := os.Lstat(path); os.IsNotExist(err) {
		return path
	}
	ext := filepath.Ext(path)
	stem := path[:len(path)-len(ext)]
	for i := 1; ; i++ {
		candidate := fmt.Sprintf("%s.%d%s", stem, i, ext)
		if _, err := os.Lstat(candidate); os.IsNotExist(err) {
			return candidate
		}
	}
}

// moveFile renames src to dst, creating parent directories and falling
// back to copy+fsync+remove for cross-device moves.
func moveFile(src, dst string) error {
	if err := os.MkdirAll(filepath.Dir(dst), 0755); err != nil {
		return fmt.Errorf("create destination directory: %w", err)
	}
	if err := os.Rename(src, dst); err == nil {
		return nil
	} else if !isCrossDevice(err) {
		return err
	}

	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()

	info, err := in.Stat()
	if err != nil {
		return err
	}
	out, err := os.OpenFile(dst, os.O_WRONLY|os.O_CREATE|os.O_EXCL, info.Mode().Perm())
	if err != nil {
		return err
	}
	if _, err := io.Copy(out, in); err != nil {
		out.Close()
		os.Remove(dst)
		return err
	}
	if err := out.Sync(); err != nil {
		out.Close()
		os.Remove(dst)
		return err
	}
	if err := out.Close(); err != nil {
		os.Remove(dst)
		return err
	}
	return os.Remove(src)
}

func isCrossDevice(err error) bool {
	return errors.Is(err, syscall.EXDEV)
}
