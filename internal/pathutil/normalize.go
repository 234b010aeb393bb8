package pathutil

import (
	"path/filepath"
	"strings"
)

// CasePolicy controls how paths are compared.
type CasePolicy int

const (
	// CaseStrict compares paths byte-for-byte after cleaning.
	CaseStrict CasePolicy = iota
	// CaseFold lower-cases paths before comparison, for
	// case-insensitive filesystems (APFS, NTFS defaults).
	CaseFold
)

// ParseCasePolicy maps a config string to a CasePolicy.
// Unknown values fall back to strict, the safer default.
func ParseCasePolicy(s string) CasePolicy {
	if strings.EqualFold(strings.TrimSpace(s), "fold") {
		return CaseFold
	}
	return CaseStrict
}

// Normalize returns a canonical filesystem path string.
// It removes trailing slashes, collapses "." and "..", and
// preserves relative paths when provided.
func Normalize(path string) string {
	if path == "" {
		return path
	}
	return filepath.Clean(path)
}

// Key returns the comparison key for a path under the given policy.
// The path is normalized first; folding applies to the whole path.
func Key(path string, policy CasePolicy) string {
	p := Normalize(path)
	if policy == CaseFold {
		return strings.ToLower(p)
	}
	return p
}

// WithinRoot reports whether path is root or lies underneath it.
// Both arguments must already be normalized absolute paths.
func WithinRoot(root, path string) bool {
	if path == root {
		return true
	}
	return strings.HasPrefix(path, root+string(filepath.Separator))
}

// RelativeTo returns path relative to root, or the path's basename
// when it does not sit under root. Used when mirroring a file's
// layout into the quarantine or trash tree.
func RelativeTo(root, path string) string {
	rel, err := filepath.Rel(root, path)
	if err != nil || strings.HasPrefix(rel, "..") {
		return filepath.Base(path)
	}
	return rel
}
