// Package dedup decides insert versus update for normalized grants
// using a deterministic identity fingerprint.
package dedup

import (
	"crypto/sha256"
	"encoding/hex"
	"strings"
	"unicode"
)

// fingerprint fields are joined with a unit separator so that
// ("a", "bc") and ("ab", "c") never collide.
const fieldSeparator = "\x1f"

// Fingerprint computes the identity hash for a grant candidate.
// It prefers (source, application URL); when the URL is absent it falls
// back to (source, normalized title). Identical input always yields an
// identical fingerprint.
func Fingerprint(source, applicationURL, title string) string {
	source = strings.ToLower(strings.TrimSpace(source))
	key := strings.TrimSpace(applicationURL)
	if key != "" {
		key = strings.ToLower(key)
	} else {
		key = normalizeTitle(title)
	}
	sum := sha256.Sum256([]byte(source + fieldSeparator + key))
	return hex.EncodeToString(sum[:])
}

// normalizeTitle lowercases, strips punctuation and collapses runs of
// whitespace so cosmetic edits do not change identity.
func normalizeTitle(title string) string {
	var b strings.Builder
	b.Grow(len(title))
	lastSpace := true
	for _, r := range strings.ToLower(title) {
		switch {
		case unicode.IsLetter(r) || unicode.IsDigit(r):
			b.WriteRune(r)
			lastSpace = false
		case unicode.IsSpace(r):
			if !lastSpace {
				b.WriteByte(' ')
				lastSpace = true
			}
		}
	}
	return strings.TrimSpace(b.String())
}
