// Package hashtag implements hashtag extraction and normalization for
// post and review content. Extraction finds #tag tokens in free text;
// normalization folds raw tag text to the canonical key that tags are
// stored and deduplicated under.
package hashtag

import (
	"regexp"
	"strings"
)

// Tag grammar: '#' followed by a letter, then letters/digits/underscores,
// body length 1-100.
var (
	// storagePattern anchors only on #<letter><word-chars>*. Used when
	// collecting tags for persistence, where surrounding context does
	// not matter.
	storagePattern = regexp.MustCompile(`#([a-zA-Z][a-zA-Z0-9_]{0,99})`)

	// strictPattern additionally requires the '#' not to be preceded by
	// a word character or another '#', so tags inside words and URLs
	// fragments are not split out. Used for link rendering.
	strictPattern = regexp.MustCompile(`(?:^|[^0-9A-Za-z_#])#([a-zA-Z][a-zA-Z0-9_]{0,99})`)
)

// Match is one hashtag occurrence in the source text. Start and End
// delimit the exact matched span including the leading '#', so replacing
// [Start:End) reproduces the surrounding text verbatim.
type Match struct {
	Raw   string // tag body without '#', original casing
	Start int    // byte offset of the '#'
	End   int    // byte offset one past the last tag character
}

// ExtractForStorage returns the distinct raw hashtag bodies in text,
// deduplicated case-insensitively, preserving first-seen order.
func ExtractForStorage(text string) []string {
	matches := storagePattern.FindAllStringSubmatch(text, -1)
	if len(matches) == 0 {
		return nil
	}

	seen := make(map[string]bool, len(matches))
	tags := make([]string, 0, len(matches))
	for _, m := range matches {
		raw := m[1]
		lower := strings.ToLower(raw)
		if seen[lower] {
			continue
		}
		seen[lower] = true
		tags = append(tags, raw)
	}
	return tags
}

// ExtractMatches returns every hashtag occurrence in text with its exact
// span, using the strict boundary-checked grammar. Occurrences are not
// deduplicated; callers rendering links need every span.
func ExtractMatches(text string) []Match {
	idx := strictPattern.FindAllStringSubmatchIndex(text, -1)
	if len(idx) == 0 {
		return nil
	}

	matches := make([]Match, 0, len(idx))
	for _, loc := range idx {
		bodyStart, bodyEnd := loc[2], loc[3]
		matches = append(matches, Match{
			Raw:   text[bodyStart:bodyEnd],
			Start: bodyStart - 1, // include the '#'
			End:   bodyEnd,
		})
	}
	return matches
}
