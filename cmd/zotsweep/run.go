package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/dustin/go-humanize"

	"github.com/zotsweep/zotsweep/internal/action"
	"github.com/zotsweep/zotsweep/internal/config"
	"github.com/zotsweep/zotsweep/internal/fswalk"
	"github.com/zotsweep/zotsweep/internal/library"
	"github.com/zotsweep/zotsweep/internal/pathutil"
	"github.com/zotsweep/zotsweep/internal/reconcile"
	"github.com/zotsweep/zotsweep/internal/report"
	"github.com/zotsweep/zotsweep/internal/undolog"
)

// Flags shared by relocate and remove.
var (
	flagDryRun     bool
	flagPruneDirs  bool
	flagTypes      []string
	flagWorkers    int
	flagRoot       string
	flagCase       string
	flagSimilarity float64
	flagExclude    []string
)

// runEnv holds everything a mutating command needs: configuration, the
// run lock, the undo log, and a recovered engine.
type runEnv struct {
	cfg        *config.Config
	log        *undolog.Log
	engine     *action.Engine
	lockFile   *os.File
	quarantine string
}

func (e *runEnv) quarantineDir() string { return e.quarantine }

func loadRunConfig() (*config.Config, error) {
	cfg, err := config.Load(flagConfig)
	if err != nil {
		return nil, err
	}
	if flagRoot != "" {
		cfg.Root = flagRoot
	}
	if flagWorkers > 0 {
		cfg.Workers = flagWorkers
	}
	if len(flagTypes) > 0 {
		cfg.FileTypes = flagTypes
	}
	if flagCase != "" {
		cfg.Match.Case = flagCase
	}
	if flagSimilarity >= 0 {
		cfg.Match.Similarity = flagSimilarity
	}
	cfg.Exclude = append(cfg.Exclude, flagExclude...)
	if cfg.Root != "" {
		abs, err := filepath.Abs(cfg.Root)
		if err != nil {
			return nil, fmt.Errorf("resolve root: %w", err)
		}
		cfg.Root = pathutil.Normalize(abs)
	}
	return cfg, nil
}

// openEnv prepares a mutating run: lock, undo log, engine, recovery.
func openEnv(cfg *config.Config) (*runEnv, error) {
	lock, err := acquireLock(cfg.LockPath())
	if err != nil {
		return nil, err
	}

	log, err := undolog.Open(cfg.UndoLogPath())
	if err != nil {
		releaseLock(lock)
		return nil, err
	}

	quarantine := filepath.Join(cfg.QuarantineDir, "unlinked-"+time.Now().Format("20060102-150405"))
	engine := action.NewEngine(action.Config{
		Root:          cfg.Root,
		QuarantineDir: quarantine,
		TrashDir:      cfg.TrashDir,
		Workers:       cfg.Workers,
	}, log)

	// Settle anything a crashed or aborted run left behind before any
	// new mutation.
	if n, err := engine.Recover(); err != nil {
		log.Close()
		releaseLock(lock)
		return nil, fmt.Errorf("undo log recovery: %w", err)
	} else if n > 0 {
		fmt.Fprintf(os.Stderr, "recovered %d interrupted action(s) from a previous run\n", n)
	}

	return &runEnv{cfg: cfg, log: log, engine: engine, lockFile: lock, quarantine: quarantine}, nil
}

func (e *runEnv) close() {
	if e.log != nil {
		e.log.Close()
	}
	releaseLock(e.lockFile)
}

func acquireLock(path string) (*os.File, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return nil, err
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_RDWR, 0644)
	if err != nil {
		return nil, err
	}
	if err := syscall.Flock(int(f.Fd()), syscall.LOCK_EX|syscall.LOCK_NB); err != nil {
		f.Close()
		return nil, fmt.Errorf("another zotsweep run is in progress")
	}
	return f, nil
}

func releaseLock(f *os.File) {
	if f != nil {
		syscall.Flock(int(f.Fd()), syscall.LOCK_UN)
		f.Close()
	}
}

// signalContext returns a context canceled on SIGINT/SIGTERM; a second
// signal force-exits.
func signalContext(parent context.Context) (context.Context, context.CancelFunc) {
	ctx, cancel := context.WithCancel(parent)
	sigCh := make(chan os.Signal, 2)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	go func() {
		<-sigCh
		fmt.Fprintln(os.Stderr, "\nCanceling... (press Ctrl+C again to force)")
		cancel()
		<-sigCh
		os.Exit(130)
	}()
	return ctx, cancel
}

var spinnerFrames = []string{"⠋", "⠙", "⠹", "⠸", "⠼", "⠴", "⠦", "⠧", "⠇", "⠏"}

func isTerminal() bool {
	fi, err := os.Stdout.Stat()
	if err != nil {
		return false
	}
	return fi.Mode()&os.ModeCharDevice != 0
}

// startSpinner shows a stderr spinner with elapsed time until the
// returned stop function is called. Off a TTY it does nothing.
func startSpinner(label string) (stop func()) {
	if !isTerminal() {
		return func() {}
	}
	done := make(chan struct{})
	finished := make(chan struct{})
	go func() {
		defer close(finished)
		ticker := time.NewTicker(80 * time.Millisecond)
		defer ticker.Stop()
		start := time.Now()
		idx := 0
		for {
			select {
			case <-done:
				fmt.Fprint(os.Stderr, "\r\033[K")
				return
			case <-ticker.C:
				elapsed := time.Since(start).Round(100 * time.Millisecond)
				fmt.Fprintf(os.Stderr, "\r\033[K%s %s... | %s",
					spinnerFrames[idx%len(spinnerFrames)], label, elapsed)
				idx++
			}
		}
	}()
	return func() {
		close(done)
		<-finished
	}
}

// classify fetches the library index and walks the attachment root
// concurrently, then diffs the two complete snapshots.
func classify(ctx context.Context, cfg *config.Config) (*reconcile.Result, *fswalk.Snapshot, error) {
	root := cfg.Root

	client := library.NewClient(library.ClientOptions{
		BaseURL:           cfg.Library.BaseURL,
		LibraryID:         cfg.Library.ID,
		LibraryType:       cfg.Library.Type,
		APIKey:            cfg.Library.APIKey,
		PageSize:          cfg.Library.PageSize,
		RequestsPerSecond: cfg.Library.RequestsPerSecond,
	})

	opts := fswalk.DefaultOptions().
		AddExcludePrefix(cfg.QuarantineDir).
		AddExcludePrefix(cfg.TrashDir).
		AddExcludePrefix(cfg.StateDir)
	for _, pattern := range cfg.Exclude {
		if err := opts.AddExcludePattern(pattern); err != nil {
			return nil, nil, fmt.Errorf("invalid exclude pattern %q: %w", pattern, err)
		}
	}

	// Index fetch and disk walk share no state; run them side by side
	// and hand the reconciler two complete snapshots.
	type indexResult struct {
		ix  *library.Index
		err error
	}
	type scanResult struct {
		snap *fswalk.Snapshot
		err  error
	}
	indexCh := make(chan indexResult, 1)
	scanCh := make(chan scanResult, 1)

	stopSpinner := startSpinner("Reconciling")

	go func() {
		ix, err := library.BuildIndex(ctx, client, library.IndexOptions{
			Root:       root,
			StorageDir: cfg.StorageDir,
		})
		indexCh <- indexResult{ix, err}
	}()
	go func() {
		snap, err := fswalk.Scan(ctx, root, opts)
		scanCh <- scanResult{snap, err}
	}()

	ixRes, scRes := <-indexCh, <-scanCh
	stopSpinner()
	if ixRes.err != nil {
		return nil, nil, ixRes.err
	}
	if scRes.err != nil {
		return nil, nil, scRes.err
	}

	for _, w := range scRes.snap.Warnings {
		fmt.Fprintf(os.Stderr, "warning: %s: %s\n", w.Path, w.Message)
	}

	result := reconcile.Classify(ixRes.ix, scRes.snap, reconcile.Options{
		Case:                pathutil.ParseCasePolicy(cfg.Match.Case),
		SimilarityThreshold: cfg.Match.Similarity,
		FileTypes:           cfg.FileTypes,
	})
	return result, scRes.snap, nil
}

// absAgainstRoot resolves a user-supplied path relative to the
// attachment root unless it is already absolute.
func absAgainstRoot(root, path string) string {
	if filepath.IsAbs(path) {
		return pathutil.Normalize(path)
	}
	return pathutil.Normalize(filepath.Join(root, path))
}

// scopeTargets narrows the eligible unlinked files to the paths the
// user named; an empty scope selects all of them.
func scopeTargets(result *reconcile.Result, root string, args []string) ([]reconcile.Classified, error) {
	targets := result.Targets()
	if len(args) == 0 {
		return targets, nil
	}

	wanted := make(map[string]bool, len(args))
	for _, a := range args {
		if !filepath.IsAbs(a) {
			a = filepath.Join(root, a)
		}
		wanted[pathutil.Normalize(a)] = true
	}

	var scoped []reconcile.Classified
	for _, t := range targets {
		if wanted[t.File.Path] {
			scoped = append(scoped, t)
			delete(wanted, t.File.Path)
		}
	}
	for path := range wanted {
		return nil, fmt.Errorf("%s is not an eligible unlinked file", path)
	}
	return scoped, nil
}

// printDryRun reports what an operation would do without doing it.
func printDryRun(op string, targets []reconcile.Classified, result *reconcile.Result) {
	var bytes int64
	for _, t := range targets {
		fmt.Printf("would %s %s (%s)\n", op, t.File.Path, humanize.Bytes(uint64(t.File.Size)))
		bytes += t.File.Size
	}
	if flagPruneDirs {
		for _, d := range result.EmptyDirs {
			fmt.Printf("would prune %s\n", d)
		}
	}
	fmt.Printf("\n%d file(s), %s total; %d ambiguous file(s) untouched\n",
		len(targets), humanize.Bytes(uint64(bytes)), len(result.Bucket(reconcile.Ambiguous)))
}

// runCleanup is the shared body of relocate and remove.
func runCleanup(opName string, apply func(ctx context.Context, env *runEnv, targets []reconcile.Classified, sum *report.Summary) error, args []string) error {
	cfg, err := loadRunConfig()
	if err != nil {
		return err
	}
	if err := cfg.Validate(); err != nil {
		return err
	}

	ctx, cancel := signalContext(context.Background())
	defer cancel()
	if cfg.Timeout.Duration > 0 {
		var cancelTimeout context.CancelFunc
		ctx, cancelTimeout = context.WithTimeout(ctx, cfg.Timeout.Duration)
		defer cancelTimeout()
	}

	fmt.Fprintf(os.Stderr, "Reconciling %s against library %s...\n", cfg.Root, cfg.Library.ID)
	result, _, err := classify(ctx, cfg)
	if err != nil {
		return err
	}

	targets, err := scopeTargets(result, cfg.Root, args)
	if err != nil {
		return err
	}

	if flagDryRun {
		printDryRun(opName, targets, result)
		return nil
	}
	if len(targets) == 0 && !flagPruneDirs {
		fmt.Println("Nothing to do.")
		return nil
	}

	env, err := openEnv(cfg)
	if err != nil {
		return err
	}
	defer env.close()

	sum := report.NewSummary(opName)
	if err := apply(ctx, env, targets, sum); err != nil {
		return err
	}
	if flagPruneDirs {
		if err := env.engine.PruneEmptyDirs(ctx, result.EmptyDirs, sum); err != nil {
			return err
		}
	}

	sum.Render(os.Stdout)
	if !sum.Clean() {
		return errPartial
	}
	return nil
}
