package main

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/zotsweep/zotsweep/internal/report"
)

var purgeCmd = &cobra.Command{
	Use:   "purge",
	Short: "Permanently delete removed files from the trash",
	Long: `Purge empties the trash directory that remove feeds. Unlike every
other command this is irreversible: purged files cannot be restored.
Use --older-than to keep recent removals around.`,
	RunE: runPurge,
}

var flagOlderThan time.Duration

func init() {
	purgeCmd.Flags().DurationVar(&flagOlderThan, "older-than", 0, "Only purge files removed longer ago than this (e.g. 720h)")
}

func runPurge(cmd *cobra.Command, args []string) error {
	cfg, err := loadRunConfig()
	if err != nil {
		return err
	}

	ctx, cancel := signalContext(context.Background())
	defer cancel()

	env, err := openEnv(cfg)
	if err != nil {
		return err
	}
	defer env.close()

	fmt.Printf("Purging trash: %s\n", cfg.TrashDir)

	sum := report.NewSummary("purge")
	if err := env.engine.Purge(ctx, flagOlderThan, sum); err != nil {
		return err
	}

	sum.Render(os.Stdout)
	if !sum.Clean() {
		return errPartial
	}
	return nil
}
