package classify

import (
	"unicode"
	"unicode/utf8"
)

// MaxTextBytes is the default cap on stored text.
const MaxTextBytes = 1 << 20

// TruncationMarker is appended to text cut at the cap.
const TruncationMarker = "\n\n... [truncated: exceeds 1 MiB limit]"

// minVisible is the number of non-whitespace runes text needs to be kept.
const minVisible = 2

// ValidText reports whether s has at least two non-whitespace runes.
func ValidText(s string) bool {
	n := 0
	for _, r := range s {
		if !unicode.IsSpace(r) {
			n++
			if n >= minVisible {
				return true
			}
		}
	}
	return false
}

// Truncate cuts s to at most limit bytes on a rune boundary and appends
// TruncationMarker. Text within the limit is returned unchanged.
func Truncate(s string, limit int) string {
	if len(s) <= limit {
		return s
	}
	cut := limit
	for cut > 0 && !utf8.RuneStart(s[cut]) {
		cut--
	}
	return s[:cut] + TruncationMarker
}
