package reconcile

import (
	"fmt"
	"path/filepath"
	"sort"
	"strings"

	"github.com/hbollon/go-edlib"

	"github.com/zotsweep/zotsweep/internal/fswalk"
	"github.com/zotsweep/zotsweep/internal/library"
	"github.com/zotsweep/zotsweep/internal/pathutil"
)

// Class is the classification bucket for one on-disk file.
type Class uint8

const (
	// Linked files have an exact-match attachment record and must never
	// be mutated.
	Linked Class = iota
	// Unlinked files have no corresponding record and are cleanup
	// candidates.
	Unlinked
	// Ambiguous files only match a record partially (same filename,
	// different directory, or a near-identical filename). They are never
	// silently treated as either bucket.
	Ambiguous
)

func (c Class) String() string {
	switch c {
	case Linked:
		return "linked"
	case Unlinked:
		return "unlinked"
	default:
		return "ambiguous"
	}
}

// junkNames are OS droppings that never count as library content. They
// are ignored when judging directory emptiness and are swept together
// with the directory that holds them.
var junkNames = map[string]bool{
	".DS_Store":   true,
	"desktop.ini": true,
	"Thumbs.db":   true,
}

// IsJunk reports whether a filename is an ignorable OS artifact.
func IsJunk(name string) bool {
	return junkNames[name]
}

// Options configures classification. The zero value means strict path
// comparison, no fuzzy matching, and no file-type restriction.
type Options struct {
	// Case selects the path comparison policy.
	Case pathutil.CasePolicy

	// SimilarityThreshold enables fuzzy basename comparison when > 0:
	// a file whose name is at least this similar (0..1) to some record's
	// name is classified Ambiguous rather than Unlinked.
	SimilarityThreshold float64

	// FileTypes restricts which extensions are eligible for cleanup,
	// e.g. ["pdf", "doc"]. Empty means every file is eligible. Files of
	// other types still appear in the Unlinked bucket but are not
	// selectable targets and block directory pruning.
	FileTypes []string
}

// Classified is one file observation together with its bucket.
type Classified struct {
	File   fswalk.FileEntry
	Class  Class
	Reason string

	// MatchKey is the item key of the record a Linked or Ambiguous file
	// matched against.
	MatchKey string

	// Eligible marks Unlinked files that may actually be acted upon
	// (right file type, not a junk name).
	Eligible bool
}

// Result is the full classification of one (index, scan) snapshot pair.
// Every scanned file appears in exactly one bucket.
type Result struct {
	Files []Classified

	// EmptyDirs are directory-deletion candidates: directories that,
	// recursively, hold no linked or ambiguous file and nothing that
	// would survive an unlinked cleanup. Sorted deepest-first so they
	// can be removed bottom-up.
	EmptyDirs []string
}

// Bucket returns the files classified into the given bucket.
func (r *Result) Bucket(c Class) []Classified {
	var out []Classified
	for _, f := range r.Files {
		if f.Class == c {
			out = append(out, f)
		}
	}
	return out
}

// Targets returns the eligible unlinked files, the implicit scope for
// relocate and remove.
func (r *Result) Targets() []Classified {
	var out []Classified
	for _, f := range r.Files {
		if f.Class == Unlinked && f.Eligible {
			out = append(out, f)
		}
	}
	return out
}

// Classify diffs a library index against a filesystem snapshot. It is a
// pure function: the same two snapshots always yield the same result,
// and it owns no filesystem state.
func Classify(index *library.Index, scan *fswalk.Snapshot, opts Options) *Result {
	byPath := make(map[string]library.Attachment)
	baseKeys := make(map[string][]library.Attachment)
	var baseNames []string
	for _, rec := range index.Located() {
		key := pathutil.Key(rec.ResolvedPath, opts.Case)
		byPath[key] = rec
		base := foldedBase(rec.ResolvedPath)
		if _, seen := baseKeys[base]; !seen {
			baseNames = append(baseNames, base)
		}
		baseKeys[base] = append(baseKeys[base], rec)
	}

	typeSet := make(map[string]bool, len(opts.FileTypes))
	for _, t := range opts.FileTypes {
		typeSet[strings.ToLower(strings.TrimPrefix(strings.TrimSpace(t), "."))] = true
	}

	res := &Result{Files: make([]Classified, 0, len(scan.Entries))}
	for _, fe := range scan.Files() {
		res.Files = append(res.Files, classifyFile(fe, byPath, baseKeys, baseNames, typeSet, opts))
	}
	res.EmptyDirs = emptyDirCandidates(scan, res.Files)
	return res
}

func classifyFile(fe fswalk.FileEntry, byPath map[string]library.Attachment, baseKeys map[string][]library.Attachment, baseNames []string, typeSet map[string]bool, opts Options) Classified {
	c := Classified{File: fe, Class: Unlinked}

	if rec, ok := byPath[pathutil.Key(fe.Path, opts.Case)]; ok {
		c.Class = Linked
		c.MatchKey = rec.Key
		return c
	}

	base := foldedBase(fe.Path)
	if recs, ok := baseKeys[base]; ok {
		c.Class = Ambiguous
		c.MatchKey = recs[0].Key
		c.Reason = fmt.Sprintf("filename matches item %s at %s", recs[0].Key, recs[0].ResolvedPath)
		return c
	}

	if opts.SimilarityThreshold > 0 {
		for _, candidate := range baseNames {
			sim, err := edlib.StringsSimilarity(base, candidate, edlib.DamerauLevenshtein)
			if err != nil {
				continue
			}
			if float64(sim) >= opts.SimilarityThreshold {
				recs := baseKeys[candidate]
				c.Class = Ambiguous
				c.MatchKey = recs[0].Key
				c.Reason = fmt.Sprintf("filename %.0f%% similar to %q (item %s)", sim*100, candidate, recs[0].Key)
				return c
			}
		}
	}

	// Plain unlinked. Junk names and out-of-scope file types stay in the
	// bucket but are not actionable targets.
	switch {
	case IsJunk(fe.Name):
		c.Reason = "junk file"
	case len(typeSet) > 0 && !typeSet[extOf(fe.Name)]:
		c.Reason = "file type not selected"
	default:
		c.Eligible = true
	}
	return c
}

// emptyDirCandidates computes deletion candidates bottom-up: a directory
// qualifies only if nothing under it, recursively, would survive an
// unlinked cleanup. Junk files are ignored; linked, ambiguous, and
// ineligible unlinked files block every ancestor.
func emptyDirCandidates(scan *fswalk.Snapshot, files []Classified) []string {
	blocked := make(map[string]bool)
	blockAncestors := func(path string) {
		for dir := filepath.Dir(path); pathutil.WithinRoot(scan.Root, dir); dir = filepath.Dir(dir) {
			if blocked[dir] {
				break
			}
			blocked[dir] = true
			if dir == scan.Root {
				break
			}
		}
	}

	for _, f := range files {
		if IsJunk(f.File.Name) {
			continue
		}
		if f.Class != Unlinked || !f.Eligible {
			blockAncestors(f.File.Path)
		}
	}

	var candidates []string
	for _, d := range scan.Dirs() {
		if !blocked[d.Path] {
			candidates = append(candidates, d.Path)
		}
	}
	// Deepest first, so removal can proceed bottom-up.
	sort.Slice(candidates, func(i, j int) bool {
		di := strings.Count(candidates[i], string(filepath.Separator))
		dj := strings.Count(candidates[j], string(filepath.Separator))
		if di != dj {
			return di > dj
		}
		return candidates[i] < candidates[j]
	})
	return candidates
}

func foldedBase(path string) string {
	return strings.ToLower(filepath.Base(path))
}

func extOf(name string) string {
	return strings.ToLower(strings.TrimPrefix(filepath.Ext(name), "."))
}
