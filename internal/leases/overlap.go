// Package leases implements the file-path reservation system that gives
// agents an advisory claim over the files or globs they are about to edit
// (spec.md §4.6). Reservations are lazily-expiring and approximate: this
// package answers "might these two patterns touch the same file" rather
// than walking a real filesystem, since the claimed paths need not exist
// yet and the engine has no working tree of its own to check against.
package leases

import "strings"

// Overlaps reports whether two path patterns could plausibly address the
// same file. The patterns are one of:
//   - a literal path ("pkg/foo.go")
//   - a single "*" glob within one path segment ("pkg/*.go")
//   - a recursive "**" glob ("pkg/**", "pkg/**/foo_test.go")
//
// This is a documented approximation, not an exact set-overlap test: two
// patterns are treated as overlapping when they are identical, when one
// matches the other treated as a literal path, or when they share a
// non-wildcard prefix up to the first wildcard segment in either pattern.
// A false-positive overlap only costs an agent a claim conflict it can
// retry past with a narrower pattern; a false negative would let two
// agents stomp on the same file, which is the worse failure mode, so the
// approximation is deliberately conservative (biased toward reporting
// overlap).
func Overlaps(a, b string) bool {
	if a == b {
		return true
	}
	if matchesPattern(a, b) || matchesPattern(b, a) {
		return true
	}
	return sharePrefix(a, b)
}

// matchesPattern reports whether the literal-ish path matches pattern,
// where pattern may contain "*" or "**" wildcard segments.
func matchesPattern(path, pattern string) bool {
	if path == pattern {
		return true
	}

	if strings.Contains(pattern, "**") {
		parts := strings.SplitN(pattern, "**", 2)
		prefix := parts[0]
		suffix := strings.TrimPrefix(parts[1], "/")

		if !strings.HasPrefix(path, prefix) {
			return false
		}
		if suffix == "" {
			return true
		}
		remaining := strings.TrimPrefix(path, prefix)
		if strings.Contains(suffix, "*") {
			// "**" spans zero or more segments: try the suffix pattern
			// against every trailing run of segments.
			for {
				if matchesPattern(remaining, suffix) {
					return true
				}
				i := strings.IndexByte(remaining, '/')
				if i < 0 {
					return false
				}
				remaining = remaining[i+1:]
			}
		}
		return strings.HasSuffix(remaining, suffix)
	}

	if strings.Contains(pattern, "*") {
		// A single "*" never crosses a path separator.
		if strings.Count(path, "/") != strings.Count(pattern, "/") {
			return false
		}
		parts := strings.Split(pattern, "*")
		if !strings.HasPrefix(path, parts[0]) {
			return false
		}
		if !strings.HasSuffix(path, parts[len(parts)-1]) {
			return false
		}
		remaining := path
		for _, part := range parts {
			if part == "" {
				continue
			}
			idx := strings.Index(remaining, part)
			if idx == -1 {
				return false
			}
			remaining = remaining[idx+len(part):]
		}
		return true
	}

	return strings.HasPrefix(path, pattern+"/")
}

// sharePrefix reports whether a and b share a directory prefix up to the
// first wildcard segment of either pattern, treating e.g. "pkg/a/*" and
// "pkg/a/**" as overlapping even though neither literally matches the
// other.
func sharePrefix(a, b string) bool {
	aBase := wildcardPrefix(a)
	bBase := wildcardPrefix(b)
	if aBase == "" || bBase == "" {
		return false
	}
	shorter, longer := aBase, bBase
	if len(longer) < len(shorter) {
		shorter, longer = longer, shorter
	}
	return strings.HasPrefix(longer, shorter)
}

// wildcardPrefix returns the portion of pattern before its first wildcard
// segment, or "" if pattern contains no wildcard.
func wildcardPrefix(pattern string) string {
	idx := strings.IndexAny(pattern, "*")
	if idx == -1 {
		return ""
	}
	prefix := pattern[:idx]
	if i := strings.LastIndex(prefix, "/"); i >= 0 {
		return prefix[:i+1]
	}
	return ""
}
