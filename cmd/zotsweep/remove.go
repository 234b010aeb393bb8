package main

import (
	"context"

	"github.com/spf13/cobra"

	"github.com/zotsweep/zotsweep/internal/reconcile"
	"github.com/zotsweep/zotsweep/internal/report"
)

var removeCmd = &cobra.Command{
	Use:   "remove [paths...]",
	Short: "Move unlinked files into the trash",
	Long: `Remove moves unlinked attachment files into the trash directory.
Nothing is ever hard-deleted: trashed files stay restorable until you
explicitly run purge. Without arguments, all unlinked files are
removed; with arguments, only the named paths.`,
	RunE: runRemove,
}

func init() {
	f := removeCmd.Flags()
	f.BoolVarP(&flagDryRun, "dry-run", "n", false, "Classify and report without mutating anything")
	f.BoolVar(&flagPruneDirs, "prune-dirs", false, "Also remove empty directories after file actions")
	f.StringSliceVarP(&flagTypes, "types", "t", nil, "File types eligible for cleanup (e.g. pdf,doc); empty = all")
	f.IntVarP(&flagWorkers, "workers", "w", 0, "Number of mutation workers (overrides config)")
	f.StringVarP(&flagRoot, "root", "r", "", "Attachment root directory (overrides config)")
	f.StringVar(&flagCase, "case", "", "Path matching case policy: strict|fold (overrides config)")
	f.Float64Var(&flagSimilarity, "similarity", -1, "Fuzzy filename similarity threshold 0..1, 0 disables (overrides config)")
	f.StringSliceVarP(&flagExclude, "exclude", "e", nil, "Regex patterns to exclude from the scan (can be repeated)")
}

func runRemove(cmd *cobra.Command, args []string) error {
	return runCleanup("remove", func(ctx context.Context, env *runEnv, targets []reconcile.Classified, sum *report.Summary) error {
		return env.engine.Remove(ctx, targets, sum)
	}, args)
}
