package main

import (
	"errors"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/zotsweep/zotsweep/internal/config"
)

var version = "0.1.0"

// errPartial signals that the run finished but some items failed;
// the summary has already been printed.
var errPartial = errors.New("completed with per-item failures")

func main() {
	if err := rootCmd.Execute(); err != nil {
		if errors.Is(err, errPartial) {
			os.Exit(1)
		}
		fmt.Fprintln(os.Stderr, err)
		os.Exit(2)
	}
}

var rootCmd = &cobra.Command{
	Use:   "zotsweep",
	Short: "Reconcile Zotero attachment files against the library",
	Long: `zotsweep compares the attachment files on disk against the
attachments your Zotero library knows about, classifies every file as
linked, unlinked, or ambiguous, and cleans up unlinked files reversibly:
relocate moves them to quarantine, remove moves them to trash, and
restore puts them back. Nothing is deleted without an undo record.`,

	SilenceUsage: true,
}

var flagConfig string

func init() {
	rootCmd.Version = version
	rootCmd.PersistentFlags().StringVar(&flagConfig, "config", config.DefaultPath(), "Path to config file")
	rootCmd.AddCommand(relocateCmd)
	rootCmd.AddCommand(removeCmd)
	rootCmd.AddCommand(restoreCmd)
	rootCmd.AddCommand(statusCmd)
	rootCmd.AddCommand(reviewCmd)
	rootCmd.AddCommand(purgeCmd)
}
