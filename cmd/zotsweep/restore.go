package main

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/zotsweep/zotsweep/internal/report"
)

var restoreCmd = &cobra.Command{
	Use:   "restore [paths...]",
	Short: "Move relocated or removed files back to their original paths",
	Long: `Restore reverses earlier relocate and remove actions using the
undo log: for each path the most recent non-restored action is undone.
A path whose original location is now occupied by a different file is
skipped and reported; the rest of the batch continues. Paths are the
original locations, relative to the attachment root or absolute.`,
	RunE: runRestore,
}

var flagRestoreAll bool

func init() {
	f := restoreCmd.Flags()
	f.BoolVar(&flagRestoreAll, "all", false, "Restore every restorable file in the undo log")
	f.StringVarP(&flagRoot, "root", "r", "", "Attachment root directory (overrides config)")
}

func runRestore(cmd *cobra.Command, args []string) error {
	if !flagRestoreAll && len(args) == 0 {
		return fmt.Errorf("nothing to restore: name paths or pass --all")
	}
	if flagRestoreAll && len(args) > 0 {
		return fmt.Errorf("--all cannot be combined with explicit paths")
	}

	cfg, err := loadRunConfig()
	if err != nil {
		return err
	}
	// Restore needs no library access; only the root and the undo log.
	if cfg.Root == "" {
		return fmt.Errorf("no attachment root configured (set root in the config file or ZOTSWEEP_ROOT)")
	}

	ctx, cancel := signalContext(context.Background())
	defer cancel()

	env, err := openEnv(cfg)
	if err != nil {
		return err
	}
	defer env.close()

	sum := report.NewSummary("restore")
	if flagRestoreAll {
		err = env.engine.RestoreAll(ctx, sum)
	} else {
		paths := make([]string, len(args))
		for i, a := range args {
			paths[i] = absAgainstRoot(cfg.Root, a)
		}
		err = env.engine.Restore(ctx, paths, sum)
	}
	if err != nil {
		return err
	}

	sum.Render(os.Stdout)
	if !sum.Clean() {
		return errPartial
	}
	return nil
}
