package search

import (
	"crypto/sha256"
	"encoding/hex"
	"strings"
)

// CanonicalText returns the text an entry is embedded from. It depends only
// on the arguments, so an unchanged entry always yields the same text.
func CanonicalText(title, detail string, tags []string) string {
	parts := []string{"title: " + strings.TrimSpace(title)}
	if d := strings.TrimSpace(detail); d != "" {
		parts = append(parts, "detail: "+d)
	}
	var clean []string
	for _, t := range tags {
		if t = strings.TrimSpace(t); t != "" {
			clean = append(clean, t)
		}
	}
	if len(clean) > 0 {
		parts = append(parts, "tags: "+strings.Join(clean, ", "))
	}
	return strings.Join(parts, "\n")
}

// TextHash returns a sha256 hash (hex) of the canonical text.
func TextHash(text string) string {
	h := sha256.Sum256([]byte(text))
	return hex.EncodeToString(h[:])
}
