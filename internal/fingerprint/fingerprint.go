// Package fingerprint derives deterministic digests from normalized
// article payloads. Fingerprints are the keys for the response cache and
// the request deduplicator, so normalization must be applied identically
// on the write and read paths.
package fingerprint

import (
	"crypto/sha256"
	"encoding/hex"
	"strings"
)

// Normalize canonicalizes article text for hashing: leading/trailing
// whitespace is trimmed, runs of spaces and tabs inside a line collapse to
// a single space, and paragraph breaks (blank lines) are preserved as a
// single empty line. Cosmetically different inputs that are semantically
// identical therefore produce the same fingerprint, while any textual
// difference survives normalization.
func Normalize(text string) string {
	lines := strings.Split(text, "\n")

	var b strings.Builder
	b.Grow(len(text))

	blankRun := 0
	wrote := false
	for _, line := range lines {
		collapsed := collapseSpaces(strings.TrimSpace(line))
		if collapsed == "" {
			blankRun++
			continue
		}
		if wrote {
			b.WriteByte('\n')
			if blankRun > 0 {
				// Preserve the paragraph break, but only one.
				b.WriteByte('\n')
			}
		}
		blankRun = 0
		b.WriteString(collapsed)
		wrote = true
	}

	return b.String()
}

// collapseSpaces replaces runs of spaces and tabs with a single space.
func collapseSpaces(s string) string {
	var b strings.Builder
	b.Grow(len(s))
	inRun := false
	for _, r := range s {
		if r == ' ' || r == '\t' {
			inRun = true
			continue
		}
		if inRun && b.Len() > 0 {
			b.WriteByte(' ')
		}
		inRun = false
		b.WriteRune(r)
	}
	return b.String()
}

// Hash computes the SHA-256 hex digest of {endpoint, normalized text}.
// Identical inputs always produce the identical fingerprint; the endpoint
// is part of the key so the same article analyzed by different operations
// never collides.
func Hash(endpoint, text string) string {
	h := sha256.New()
	h.Write([]byte(endpoint))
	h.Write([]byte{0}) // separator
	h.Write([]byte(Normalize(text)))
	return hex.EncodeToString(h.Sum(nil))
}

// HashContent returns the SHA-256 hex digest of the given content string
// without normalization. Used where the caller has already canonicalized
// the payload (e.g. the deduplicator's client-scoped keys).
func HashContent(content string) string {
	h := sha256.Sum256([]byte(content))
	return hex.EncodeToString(h[:])
}
