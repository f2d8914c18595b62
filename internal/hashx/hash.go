// Package hashx derives the dedup-defining content hash and the short
// preview string for clipboard entries. Both endpoints must produce
// identical values for identical content, so the hash algorithm is part of
// the wire contract: hex-encoded SHA-256, 64 characters.
package hashx

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"strings"
	"unicode/utf8"
)

// PreviewMaxLen is the maximum preview length in runes.
const PreviewMaxLen = 200

// ContentHash returns the hex-encoded SHA-256 digest of content.
func ContentHash(content []byte) string {
	sum := sha256.Sum256(content)
	return hex.EncodeToString(sum[:])
}

// TextPreview derives a single-line preview from text content, truncated to
// PreviewMaxLen runes. Interior newlines and tabs are collapsed to spaces.
func TextPreview(content []byte) string {
	s := strings.TrimSpace(string(content))
	s = strings.Join(strings.Fields(s), " ")
	if utf8.RuneCountInString(s) <= PreviewMaxLen {
		return s
	}
	runes := []rune(s)
	return string(runes[:PreviewMaxLen])
}

// BinaryPreview derives a preview label for non-text content.
func BinaryPreview(label string, size int) string {
	return fmt.Sprintf("%s (%d bytes)", label, size)
}
