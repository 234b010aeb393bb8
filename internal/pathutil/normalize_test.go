package pathutil

import "testing"

func TestKeyStrictVsFold(t *testing.T) {
	strict := Key("/Lib/Papers/../Papers/A.PDF", CaseStrict)
	if strict != "/Lib/Papers/A.PDF" {
		t.Fatalf("strict key: %q", strict)
	}

	folded := Key("/Lib/Papers/A.PDF", CaseFold)
	if folded != "/lib/papers/a.pdf" {
		t.Fatalf("folded key: %q", folded)
	}
}

func TestParseCasePolicy(t *testing.T) {
	if ParseCasePolicy("fold") != CaseFold {
		t.Fatalf("expected fold")
	}
	if ParseCasePolicy("FOLD ") != CaseFold {
		t.Fatalf("expected fold for mixed case")
	}
	if ParseCasePolicy("strict") != CaseStrict {
		t.Fatalf("expected strict")
	}
	if ParseCasePolicy("bogus") != CaseStrict {
		t.Fatalf("unknown policy should fall back to strict")
	}
}

func TestWithinRoot(t *testing.T) {
	if !WithinRoot("/lib", "/lib/a.pdf") {
		t.Fatalf("child should be within root")
	}
	if !WithinRoot("/lib", "/lib") {
		t.Fatalf("root should be within itself")
	}
	if WithinRoot("/lib", "/library/a.pdf") {
		t.Fatalf("sibling prefix must not count as within root")
	}
}

func TestRelativeTo(t *testing.T) {
	if rel := RelativeTo("/lib", "/lib/papers/a.pdf"); rel != "papers/a.pdf" {
		t.Fatalf("rel: %q", rel)
	}
	// Outside the root, fall back to the basename.
	if rel := RelativeTo("/lib", "/elsewhere/b.pdf"); rel != "b.pdf" {
		t.Fatalf("rel outside root: %q", rel)
	}
}
