package hashtag

import (
	"regexp"
	"strings"
)

const (
	// MinKeyLength and MaxKeyLength bound the normalized key, not the
	// raw token the extractor accepts.
	MinKeyLength = 2
	MaxKeyLength = 50
)

var (
	whitespaceRun = regexp.MustCompile(`\s+`)
	dashRun       = regexp.MustCompile(`-{2,}`)
	invalidChars  = regexp.MustCompile(`[^a-z0-9_-]`)
	digitsOnly    = regexp.MustCompile(`^[0-9]+$`)
)

// Normalize folds a raw tag string to its canonical lookup key:
// lowercase, trim, whitespace runs to a single dash, dash runs collapsed,
// edge dashes stripped, anything outside [a-z0-9_-] removed. Pure and
// deterministic; two raw strings with the same key are the same tag.
func Normalize(raw string) string {
	key := strings.ToLower(raw)
	key = strings.TrimSpace(key)
	key = whitespaceRun.ReplaceAllString(key, "-")
	key = dashRun.ReplaceAllString(key, "-")
	key = strings.Trim(key, "-")
	key = invalidChars.ReplaceAllString(key, "")
	return key
}

// IsValidKey reports whether a normalized key may be persisted or
// rendered as a link. Keys outside [MinKeyLength, MaxKeyLength] or
// consisting entirely of digits are rejected.
func IsValidKey(key string) bool {
	if len(key) < MinKeyLength || len(key) > MaxKeyLength {
		return false
	}
	return !digitsOnly.MatchString(key)
}

// Pair couples a raw tag with its normalized key.
type Pair struct {
	Original   string
	Normalized string
}

// NormalizePairs maps raw tags to {original, normalized} pairs, silently
// dropping tags whose key fails validation. Duplicate keys keep the
// first-seen original.
func NormalizePairs(raws []string) []Pair {
	seen := make(map[string]bool, len(raws))
	pairs := make([]Pair, 0, len(raws))
	for _, raw := range raws {
		key := Normalize(raw)
		if !IsValidKey(key) || seen[key] {
			continue
		}
		seen[key] = true
		pairs = append(pairs, Pair{Original: raw, Normalized: key})
	}
	return pairs
}
