package reconcile

import (
	"reflect"
	"testing"
	"time"

	"github.com/zotsweep/zotsweep/internal/fswalk"
	"github.com/zotsweep/zotsweep/internal/library"
	"github.com/zotsweep/zotsweep/internal/pathutil"
)

func indexOf(paths ...string) *library.Index {
	ix := &library.Index{}
	for i, p := range paths {
		ix.Records = append(ix.Records, library.Attachment{
			Key:          string(rune('A' + i)),
			Mode:         library.LinkModeLinked,
			ResolvedPath: p,
		})
	}
	return ix
}

func snapshotOf(root string, files []string, dirs []string) *fswalk.Snapshot {
	snap := &fswalk.Snapshot{Root: root}
	for _, d := range dirs {
		snap.Entries = append(snap.Entries, fswalk.FileEntry{Path: d, Name: pathBase(d), IsDir: true})
	}
	for _, f := range files {
		snap.Entries = append(snap.Entries, fswalk.FileEntry{Path: f, Name: pathBase(f), Size: 1, ModTime: time.Unix(0, 0)})
	}
	return snap
}

func pathBase(p string) string {
	for i := len(p) - 1; i >= 0; i-- {
		if p[i] == '/' {
			return p[i+1:]
		}
	}
	return p
}

func classOf(t *testing.T, res *Result, path string) Classified {
	t.Helper()
	for _, f := range res.Files {
		if f.File.Path == path {
			return f
		}
	}
	t.Fatalf("path %s not classified", path)
	return Classified{}
}

// The worked example: two linked records, one orphan, one empty directory.
func TestClassifyScenario(t *testing.T) {
	ix := indexOf("/lib/a.pdf", "/lib/b.pdf")
	snap := snapshotOf("/lib",
		[]string{"/lib/a.pdf", "/lib/b.pdf", "/lib/orphan.pdf"},
		[]string{"/lib/old"},
	)

	res := Classify(ix, snap, Options{})

	if got := classOf(t, res, "/lib/a.pdf").Class; got != Linked {
		t.Fatalf("a.pdf: %v", got)
	}
	if got := classOf(t, res, "/lib/b.pdf").Class; got != Linked {
		t.Fatalf("b.pdf: %v", got)
	}
	orphan := classOf(t, res, "/lib/orphan.pdf")
	if orphan.Class != Unlinked || !orphan.Eligible {
		t.Fatalf("orphan.pdf: %+v", orphan)
	}
	if !reflect.DeepEqual(res.EmptyDirs, []string{"/lib/old"}) {
		t.Fatalf("empty dirs: %v", res.EmptyDirs)
	}
}

func TestClassifyTotality(t *testing.T) {
	ix := indexOf("/lib/a.pdf")
	snap := snapshotOf("/lib",
		[]string{"/lib/a.pdf", "/lib/x/a.pdf", "/lib/y/z.pdf", "/lib/.DS_Store"},
		[]string{"/lib/x", "/lib/y"},
	)

	res := Classify(ix, snap, Options{})
	if len(res.Files) != len(snap.Files()) {
		t.Fatalf("classification not total: %d of %d", len(res.Files), len(snap.Files()))
	}
	counts := map[Class]int{}
	for _, f := range res.Files {
		counts[f.Class]++
	}
	if counts[Linked]+counts[Unlinked]+counts[Ambiguous] != len(res.Files) {
		t.Fatalf("buckets do not partition the scan: %v", counts)
	}
}

// A file matching a record only by filename must never be auto-deleted.
func TestFilenameMatchInOtherDirIsAmbiguous(t *testing.T) {
	ix := indexOf("/lib/papers/a.pdf")
	snap := snapshotOf("/lib", []string{"/lib/misc/a.pdf"}, []string{"/lib/misc", "/lib/papers"})

	res := Classify(ix, snap, Options{})
	got := classOf(t, res, "/lib/misc/a.pdf")
	if got.Class != Ambiguous {
		t.Fatalf("expected Ambiguous, got %v (%s)", got.Class, got.Reason)
	}
	if len(res.Targets()) != 0 {
		t.Fatalf("ambiguous file leaked into targets")
	}
}

func TestFuzzySimilarityYieldsAmbiguous(t *testing.T) {
	ix := indexOf("/lib/smith-2019-review.pdf")
	snap := snapshotOf("/lib", []string{"/lib/old/smith-2019-reviev.pdf"}, []string{"/lib/old"})

	strict := Classify(ix, snap, Options{})
	if got := classOf(t, strict, "/lib/old/smith-2019-reviev.pdf").Class; got != Unlinked {
		t.Fatalf("without threshold expected Unlinked, got %v", got)
	}

	fuzzy := Classify(ix, snap, Options{SimilarityThreshold: 0.85})
	got := classOf(t, fuzzy, "/lib/old/smith-2019-reviev.pdf")
	if got.Class != Ambiguous {
		t.Fatalf("with threshold expected Ambiguous, got %v", got.Class)
	}
}

func TestCaseFoldMatching(t *testing.T) {
	ix := indexOf("/lib/A.PDF")
	snap := snapshotOf("/lib", []string{"/lib/a.pdf"}, nil)

	strict := Classify(ix, snap, Options{Case: pathutil.CaseStrict})
	// Same basename after folding: protected as ambiguous, not unlinked.
	if got := classOf(t, strict, "/lib/a.pdf").Class; got != Ambiguous {
		t.Fatalf("strict: expected Ambiguous, got %v", got)
	}

	folded := Classify(ix, snap, Options{Case: pathutil.CaseFold})
	if got := classOf(t, folded, "/lib/a.pdf").Class; got != Linked {
		t.Fatalf("folded: expected Linked, got %v", got)
	}
}

func TestEmptyDirsNeverContainLinked(t *testing.T) {
	ix := indexOf("/lib/deep/a.pdf")
	snap := snapshotOf("/lib",
		[]string{"/lib/deep/a.pdf", "/lib/deep/sub/orphan.pdf"},
		[]string{"/lib/deep", "/lib/deep/sub", "/lib/dead"},
	)

	res := Classify(ix, snap, Options{})
	for _, d := range res.EmptyDirs {
		if d == "/lib/deep" {
			t.Fatalf("directory holding a linked file offered for deletion")
		}
	}
	// sub only holds an unlinked file; dead holds nothing. Both qualify,
	// deepest first.
	if !reflect.DeepEqual(res.EmptyDirs, []string{"/lib/deep/sub", "/lib/dead"}) {
		t.Fatalf("empty dirs: %v", res.EmptyDirs)
	}
}

func TestFileTypeFilter(t *testing.T) {
	ix := indexOf("/lib/a.pdf")
	snap := snapshotOf("/lib",
		[]string{"/lib/a.pdf", "/lib/notes.txt", "/lib/orphan.pdf"},
		nil,
	)

	res := Classify(ix, snap, Options{FileTypes: []string{"pdf"}})
	txt := classOf(t, res, "/lib/notes.txt")
	if txt.Class != Unlinked || txt.Eligible {
		t.Fatalf("out-of-type file should be unlinked but ineligible: %+v", txt)
	}
	targets := res.Targets()
	if len(targets) != 1 || targets[0].File.Path != "/lib/orphan.pdf" {
		t.Fatalf("targets: %+v", targets)
	}
}

func TestClassifyDeterministic(t *testing.T) {
	ix := indexOf("/lib/a.pdf", "/lib/b.pdf")
	snap := snapshotOf("/lib",
		[]string{"/lib/a.pdf", "/lib/c.pdf", "/lib/d/b.pdf"},
		[]string{"/lib/d"},
	)

	first := Classify(ix, snap, Options{SimilarityThreshold: 0.8})
	second := Classify(ix, snap, Options{SimilarityThreshold: 0.8})
	if !reflect.DeepEqual(first, second) {
		t.Fatalf("classification is not deterministic")
	}
}
