package main

import (
	"context"
	"fmt"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/spf13/cobra"

	"github.com/zotsweep/zotsweep/internal/tui"
)

var reviewCmd = &cobra.Command{
	Use:   "review",
	Short: "Browse classification results interactively",
	Long: `Review classifies the attachment tree against the library and opens
an interactive browser over the result. It is read-only: no files are
moved and nothing is written to the undo log.`,
	RunE: runReview,
}

func init() {
	f := reviewCmd.Flags()
	f.StringSliceVarP(&flagTypes, "types", "t", nil, "File types eligible for cleanup (e.g. pdf,doc); empty = all")
	f.StringVarP(&flagRoot, "root", "r", "", "Attachment root directory (overrides config)")
	f.StringVar(&flagCase, "case", "", "Path matching case policy: strict|fold (overrides config)")
	f.Float64Var(&flagSimilarity, "similarity", -1, "Fuzzy filename similarity threshold 0..1, 0 disables (overrides config)")
	f.StringSliceVarP(&flagExclude, "exclude", "e", nil, "Regex patterns to exclude from the scan (can be repeated)")
}

func runReview(cmd *cobra.Command, args []string) error {
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
		var tcancel context.CancelFunc
		ctx, tcancel = context.WithTimeout(ctx, cfg.Timeout.Duration)
		defer tcancel()
	}

	result, _, err := classify(ctx, cfg)
	if err != nil {
		return err
	}

	model := tui.NewModel(cfg.Root, result)
	p := tea.NewProgram(model, tea.WithAltScreen())
	if _, err := p.Run(); err != nil {
		return fmt.Errorf("TUI error: %w", err)
	}
	return nil
}
