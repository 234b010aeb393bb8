package report

import (
	"fmt"
	"io"
	"sync"
	"text/tabwriter"

	"github.com/dustin/go-humanize"
)

// ItemError is one per-file failure surfaced to the caller.
type ItemError struct {
	Path    string
	Message string
}

// Summary aggregates the outcome of one Action Engine invocation.
// Per-item failures never abort the batch; they are counted here and
// the run exits non-fatally.
type Summary struct {
	mu sync.Mutex

	Op         string
	Committed  int
	Failed     int
	Skipped    int
	Conflicts  int
	PrunedDirs int
	BytesMoved int64
	Failures   []ItemError
}

// NewSummary creates a summary for the named operation.
func NewSummary(op string) *Summary {
	return &Summary{Op: op}
}

// AddCommitted records a successful mutation of size bytes.
func (s *Summary) AddCommitted(size int64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.Committed++
	s.BytesMoved += size
}

// AddFailure records a per-item failure.
func (s *Summary) AddFailure(path string, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.Failed++
	s.Failures = append(s.Failures, ItemError{Path: path, Message: err.Error()})
}

// AddSkipped records an item deliberately not acted on.
func (s *Summary) AddSkipped() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.Skipped++
}

// AddConflict records a restore target occupied by a different file.
func (s *Summary) AddConflict(path string, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.Conflicts++
	s.Failures = append(s.Failures, ItemError{Path: path, Message: err.Error()})
}

// AddPrunedDir records one removed empty directory.
func (s *Summary) AddPrunedDir() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.PrunedDirs++
}

// Clean reports whether every item succeeded.
func (s *Summary) Clean() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.Failed == 0 && s.Conflicts == 0
}

// Render writes a human-readable summary table.
func (s *Summary) Render(w io.Writer) {
	s.mu.Lock()
	defer s.mu.Unlock()

	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintf(tw, "Operation:\t%s\n", s.Op)
	fmt.Fprintf(tw, "Committed:\t%s\n", humanize.Comma(int64(s.Committed)))
	if s.BytesMoved > 0 {
		fmt.Fprintf(tw, "Moved:\t%s\n", humanize.Bytes(uint64(s.BytesMoved)))
	}
	if s.Skipped > 0 {
		fmt.Fprintf(tw, "Skipped:\t%s\n", humanize.Comma(int64(s.Skipped)))
	}
	if s.Conflicts > 0 {
		fmt.Fprintf(tw, "Conflicts:\t%s\n", humanize.Comma(int64(s.Conflicts)))
	}
	if s.Failed > 0 {
		fmt.Fprintf(tw, "Failed:\t%s\n", humanize.Comma(int64(s.Failed)))
	}
	if s.PrunedDirs > 0 {
		fmt.Fprintf(tw, "Pruned dirs:\t%s\n", humanize.Comma(int64(s.PrunedDirs)))
	}
	tw.Flush()

	for _, f := range s.Failures {
		fmt.Fprintf(w, "  %s: %s\n", f.Path, f.Message)
	}
}
