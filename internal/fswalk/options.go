package fswalk

import (
	"regexp"

	"github.com/zotsweep/zotsweep/internal/pathutil"
)

// Options configures the walk.
type Options struct {
	// FollowSymlinks resolves directory symlinks during the walk. Each
	// link target is visited at most once; cycles produce a warning.
	FollowSymlinks bool

	// ExcludePatterns are regular expressions for paths to skip.
	ExcludePatterns []*regexp.Regexp

	// ExcludePrefixes are absolute directory paths whose subtrees are
	// skipped entirely (the quarantine and trash trees live under the
	// attachment root and must never be classified).
	ExcludePrefixes []string
}

// DefaultOptions returns sensible defaults for walking.
func DefaultOptions() *Options {
	return &Options{FollowSymlinks: true}
}

// WithFollowSymlinks sets symlink behavior.
func (o *Options) WithFollowSymlinks(follow bool) *Options {
	o.FollowSymlinks = follow
	return o
}

// AddExcludePattern adds a regex pattern to exclude.
func (o *Options) AddExcludePattern(pattern string) error {
	re, err := regexp.Compile(pattern)
	if err != nil {
		return err
	}
	o.ExcludePatterns = append(o.ExcludePatterns, re)
	return nil
}

// AddExcludePrefix excludes an absolute directory subtree.
func (o *Options) AddExcludePrefix(dir string) *Options {
	if dir != "" {
		o.ExcludePrefixes = append(o.ExcludePrefixes, pathutil.Normalize(dir))
	}
	return o
}

// ShouldExclude checks if a path matches any exclude rule.
func (o *Options) ShouldExclude(path string) bool {
	for _, prefix := range o.ExcludePrefixes {
		if pathutil.WithinRoot(prefix, path) {
			return true
		}
	}
	for _, re := range o.ExcludePatterns {
		if re.MatchString(path) {
			return true
		}
	}
	return false
}
