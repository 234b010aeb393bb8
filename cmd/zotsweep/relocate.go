package main

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/zotsweep/zotsweep/internal/reconcile"
	"github.com/zotsweep/zotsweep/internal/report"
)

var relocateCmd = &cobra.Command{
	Use:   "relocate [paths...]",
	Short: "Move unlinked files into quarantine",
	Long: `Relocate moves unlinked attachment files into a timestamped
quarantine directory, preserving their layout relative to the
attachment root. Every move is recorded in the undo log and can be
reversed with restore. Without arguments, all unlinked files are
relocated; with arguments, only the named paths.`,
	RunE: runRelocate,
}

func init() {
	f := relocateCmd.Flags()
	f.BoolVarP(&flagDryRun, "dry-run", "n", false, "Classify and report without mutating anything")
	f.BoolVar(&flagPruneDirs, "prune-dirs", false, "Also remove empty directories after file actions")
	f.StringSliceVarP(&flagTypes, "types", "t", nil, "File types eligible for cleanup (e.g. pdf,doc); empty = all")
	f.IntVarP(&flagWorkers, "workers", "w", 0, "Number of mutation workers (overrides config)")
	f.StringVarP(&flagRoot, "root", "r", "", "Attachment root directory (overrides config)")
	f.StringVar(&flagCase, "case", "", "Path matching case policy: strict|fold (overrides config)")
	f.Float64Var(&flagSimilarity, "similarity", -1, "Fuzzy filename similarity threshold 0..1, 0 disables (overrides config)")
	f.StringSliceVarP(&flagExclude, "exclude", "e", nil, "Regex patterns to exclude from the scan (can be repeated)")
}

func runRelocate(cmd *cobra.Command, args []string) error {
	return runCleanup("relocate", func(ctx context.Context, env *runEnv, targets []reconcile.Classified, sum *report.Summary) error {
		if len(targets) > 0 {
			fmt.Fprintf(os.Stderr, "Quarantine: %s\n", env.quarantineDir())
		}
		return env.engine.Relocate(ctx, targets, sum)
	}, args)
}
