package staging

import (
	"path"
	"path/filepath"

	"github.com/bmatcuk/doublestar/v4"
)

// Entry is a copy rule from a directory inside every package to a directory in the staging root.
type Entry struct {
	// Source is the directory inside a package root, e.g. "bin".
	Source string
	// Pattern selects files relative to Source.
	Pattern string
	// Destination is the directory relative to the staging root.
	Destination string
	// Excludes are globs matched against the relative path and the base name.
	Excludes []string
}

// Matches reports whether the file at rel (relative to Source, slash separated) is copied.
func (e Entry) Matches(rel string) bool {
	rel = filepath.ToSlash(rel)

	ok, err := doublestar.Match(e.pattern(), rel)
	if err != nil || !ok {
		return false
	}

	return !e.Excluded(rel)
}

// Excluded reports whether rel is filtered out by one of the exclusion globs.
func (e Entry) Excluded(rel string) bool {
	rel = filepath.ToSlash(rel)
	base := path.Base(rel)

	for _, exclude := range e.Excludes {
		if ok, _ := doublestar.Match(exclude, rel); ok {
			return true
		}

		if ok, _ := doublestar.Match(exclude, base); ok {
			return true
		}
	}

	return false
}

// Validate checks that every glob in the entry is well-formed.
func (e Entry) Validate() error {
	for _, pattern := range append([]string{e.pattern()}, e.Excludes...) {
		if !doublestar.ValidatePattern(pattern) {
			return &PatternError{Pattern: pattern}
		}
	}

	return nil
}

func (e Entry) pattern() string {
	if e.Pattern == "" {
		return "**"
	}

	return e.Pattern
}

// PatternError reports a malformed glob.
type PatternError struct {
	Pattern string
}

func (e *PatternError) Error() string {
	return "bad pattern " + e.Pattern + ": " + doublestar.ErrBadPattern.Error()
}

// Unwrap lets errors.Is match doublestar.ErrBadPattern.
func (e *PatternError) Unwrap() error {
	return doublestar.ErrBadPattern
}
