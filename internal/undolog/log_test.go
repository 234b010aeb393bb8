package undolog

import (
	"os"
	"path/filepath"
	"testing"
)

func openTestLog(t *testing.T) *Log {
	t.Helper()
	l, err := Open(filepath.Join(t.TempDir(), "undo.db"))
	if err != nil {
		t.Fatalf("open log: %v", err)
	}
	t.Cleanup(func() { l.Close() })
	return l
}

func TestBeginFinalizeLifecycle(t *testing.T) {
	l := openTestLog(t)

	seq, err := l.Begin("run1", OpRelocate, "/lib/orphan.pdf", "/q/orphan.pdf")
	if err != nil {
		t.Fatalf("begin: %v", err)
	}

	open, err := l.InProgress()
	if err != nil {
		t.Fatalf("in progress: %v", err)
	}
	if len(open) != 1 || open[0].Seq != seq {
		t.Fatalf("expected one in-progress record, got %+v", open)
	}

	if err := l.Finalize(seq, StateCommitted); err != nil {
		t.Fatalf("finalize: %v", err)
	}

	rec, err := l.LatestForPath("/lib/orphan.pdf")
	if err != nil {
		t.Fatalf("latest: %v", err)
	}
	if rec == nil || rec.State != StateCommitted || rec.DestPath != "/q/orphan.pdf" {
		t.Fatalf("unexpected record: %+v", rec)
	}
}

func TestFinalizeRejectsNonFinalStates(t *testing.T) {
	l := openTestLog(t)
	seq, err := l.Begin("run1", OpRemove, "/a", "/b")
	if err != nil {
		t.Fatalf("begin: %v", err)
	}
	if err := l.Finalize(seq, StateInProgress); err == nil {
		t.Fatalf("expected error finalizing to in_progress")
	}
	if err := l.Finalize(seq+100, StateCommitted); err == nil {
		t.Fatalf("expected error finalizing missing record")
	}
}

func TestMarkRestoredConsumesRecord(t *testing.T) {
	l := openTestLog(t)
	seq, _ := l.Begin("run1", OpRemove, "/lib/x.pdf", "/trash/x.pdf")
	if err := l.Finalize(seq, StateCommitted); err != nil {
		t.Fatalf("finalize: %v", err)
	}
	if err := l.MarkRestored(seq); err != nil {
		t.Fatalf("mark restored: %v", err)
	}

	rec, err := l.LatestForPath("/lib/x.pdf")
	if err != nil {
		t.Fatalf("latest: %v", err)
	}
	if rec != nil {
		t.Fatalf("restored record should no longer be restorable: %+v", rec)
	}
	restored, err := l.WasRestored("/lib/x.pdf")
	if err != nil {
		t.Fatalf("was restored: %v", err)
	}
	if !restored {
		t.Fatalf("expected path to be reported as already restored")
	}
}

func TestLatestForPathPicksNewest(t *testing.T) {
	l := openTestLog(t)
	first, _ := l.Begin("run1", OpRelocate, "/lib/a.pdf", "/q/one/a.pdf")
	l.Finalize(first, StateCommitted)
	second, _ := l.Begin("run2", OpRelocate, "/lib/a.pdf", "/q/two/a.pdf")
	l.Finalize(second, StateCommitted)

	rec, err := l.LatestForPath("/lib/a.pdf")
	if err != nil {
		t.Fatalf("latest: %v", err)
	}
	if rec.Seq != second || rec.DestPath != "/q/two/a.pdf" {
		t.Fatalf("expected newest record, got %+v", rec)
	}
}

// A record left in_progress by a crash is settled against disk state on
// the next startup, never left dangling.
func TestRecoverSettlesInterruptedMove(t *testing.T) {
	dir := t.TempDir()
	l, err := Open(filepath.Join(dir, "undo.db"))
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	defer l.Close()

	completed := filepath.Join(dir, "moved.pdf")
	if err := os.WriteFile(completed, []byte("x"), 0644); err != nil {
		t.Fatalf("write: %v", err)
	}

	// Move finished before the crash: original gone, dest present.
	l.Begin("run1", OpRelocate, filepath.Join(dir, "gone.pdf"), completed)
	// Move never happened: original still present.
	still := filepath.Join(dir, "still.pdf")
	os.WriteFile(still, []byte("y"), 0644)
	l.Begin("run1", OpRelocate, still, filepath.Join(dir, "never.pdf"))

	n, err := l.Recover(ResolveByDisk)
	if err != nil {
		t.Fatalf("recover: %v", err)
	}
	if n != 2 {
		t.Fatalf("expected 2 settled records, got %d", n)
	}

	open, err := l.InProgress()
	if err != nil {
		t.Fatalf("in progress: %v", err)
	}
	if len(open) != 0 {
		t.Fatalf("recovery left in-progress records: %+v", open)
	}

	recs, err := l.Records(10)
	if err != nil {
		t.Fatalf("records: %v", err)
	}
	states := map[State]int{}
	for _, r := range recs {
		states[r.State]++
	}
	if states[StateCommitted] != 1 || states[StateFailed] != 1 {
		t.Fatalf("unexpected states after recovery: %v", states)
	}
}
