package main

import (
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"github.com/zotsweep/zotsweep/internal/undolog"
)

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show recent undo log activity",
	Long: `Status lists recent entries from the undo log, newest first, and
flags any actions left in progress by an interrupted run. It never
touches the library API or the attachment tree.`,
	RunE: runStatus,
}

var flagStatusLimit int

func init() {
	statusCmd.Flags().IntVarP(&flagStatusLimit, "limit", "n", 20, "Maximum number of entries to show")
}

func runStatus(cmd *cobra.Command, args []string) error {
	cfg, err := loadRunConfig()
	if err != nil {
		return err
	}

	logPath := cfg.UndoLogPath()
	if _, err := os.Stat(logPath); os.IsNotExist(err) {
		fmt.Println("No undo log yet. Run relocate or remove first.")
		return nil
	}

	log, err := undolog.Open(logPath)
	if err != nil {
		return err
	}
	defer log.Close()

	records, err := log.Records(flagStatusLimit)
	if err != nil {
		return err
	}
	if len(records) == 0 {
		fmt.Println("Undo log is empty.")
		return nil
	}

	pending, err := log.InProgress()
	if err != nil {
		return err
	}
	if len(pending) > 0 {
		fmt.Fprintf(os.Stderr, "Warning: %d action(s) from an interrupted run are unresolved; the next relocate, remove, or restore will settle them.\n", len(pending))
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "SEQ\tWHEN\tOP\tSTATE\tORIGINAL\tDESTINATION")
	for _, r := range records {
		fmt.Fprintf(w, "%d\t%s\t%s\t%s\t%s\t%s\n",
			r.Seq,
			humanize.Time(r.CreatedAt),
			r.Op,
			r.State,
			r.OriginalPath,
			r.DestPath,
		)
	}
	return w.Flush()
}
