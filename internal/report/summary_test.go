package report

import (
	"bytes"
	"errors"
	"strings"
	"sync"
	"testing"
)

func TestCleanReflectsFailuresAndConflicts(t *testing.T) {
	s := NewSummary("relocate")
	s.AddCommitted(100)
	s.AddSkipped()
	if !s.Clean() {
		t.Fatal("summary with only commits and skips should be clean")
	}

	s.AddFailure("/lib/a.pdf", errors.New("permission denied"))
	if s.Clean() {
		t.Fatal("summary with a failure should not be clean")
	}

	c := NewSummary("restore")
	c.AddConflict("/lib/b.pdf", errors.New("original path occupied"))
	if c.Clean() {
		t.Fatal("summary with a conflict should not be clean")
	}
}

func TestRenderListsFailures(t *testing.T) {
	s := NewSummary("remove")
	s.AddCommitted(2048)
	s.AddFailure("/lib/a.pdf", errors.New("permission denied"))

	var buf bytes.Buffer
	s.Render(&buf)
	out := buf.String()

	for _, want := range []string{"remove", "/lib/a.pdf", "permission denied"} {
		if !strings.Contains(out, want) {
			t.Errorf("render output missing %q:\n%s", want, out)
		}
	}
}

func TestConcurrentAdds(t *testing.T) {
	s := NewSummary("relocate")
	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			s.AddCommitted(10)
		}()
	}
	wg.Wait()

	if s.Committed != 50 || s.BytesMoved != 500 {
		t.Fatalf("committed=%d bytes=%d, want 50/500", s.Committed, s.BytesMoved)
	}
}
