// Package naming generates stable project slugs and memorable, collision-free
// agent names.
package naming

import (
	"crypto/sha1"
	"encoding/hex"
	"regexp"
	"strings"
)

var unsafeChars = regexp.MustCompile(`[^A-Za-z0-9._-]+`)

const slugPrefixLen = 40
const slugHashLen = 10

// Slug derives a short, filesystem-safe, stable identifier for a project's
// human-supplied key (an absolute path or a repo URL). The same humanKey
// always yields the same slug; distinct keys that sanitize to the same
// prefix still diverge because of the hash suffix.
func Slug(humanKey string) string {
	sanitized := sanitize(humanKey)
	if len(sanitized) > slugPrefixLen {
		sanitized = sanitized[:slugPrefixLen]
	}
	sanitized = strings.Trim(sanitized, "-")
	if sanitized == "" {
		sanitized = "project"
	}

	sum := sha1.Sum([]byte(humanKey))
	hash := hex.EncodeToString(sum[:])[:slugHashLen]
	return sanitized + "-" + hash
}

// sanitize maps every character outside [A-Za-z0-9._-] to '-' and collapses
// consecutive replacements into a single dash.
func sanitize(s string) string {
	return unsafeChars.ReplaceAllString(s, "-")
}

// SanitizeNameHint reduces a caller-supplied name hint to alphanumerics only,
// capped at 40 characters, for use as a requested agent name.
func SanitizeNameHint(hint string) string {
	var b strings.Builder
	for _, r := range hint {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9':
			b.WriteRune(r)
		}
		if b.Len() >= 40 {
			break
		}
	}
	return b.String()
}
