package util

import "strings"

// maxTitleLength caps sanitized titles so generated filenames stay portable.
const maxTitleLength = 80

// SanitizeTitle strips filesystem-unsafe characters from a meeting title,
// collapses whitespace runs to single underscores, and truncates the result
// to 80 characters. An empty result degrades to "call".
func SanitizeTitle(title string) string {
	var b strings.Builder
	b.Grow(len(title))

	lastUnderscore := false
	for _, r := range title {
		switch {
		case r == ' ' || r == '\t' || r == '\n' || r == '\r':
			if !lastUnderscore && b.Len() > 0 {
				b.WriteByte('_')
				lastUnderscore = true
			}
		case strings.ContainsRune(`/\:*?"<>|`, r) || r < 0x20 || r == 0x7F:
			// Dropped: unsafe on at least one target filesystem.
		default:
			b.WriteRune(r)
			lastUnderscore = false
		}
	}

	s := strings.Trim(b.String(), "_.")
	// Truncate on a rune boundary; a byte slice could cut a multibyte
	// character in half and emit invalid UTF-8 into the filename.
	if runes := []rune(s); len(runes) > maxTitleLength {
		s = strings.TrimRight(string(runes[:maxTitleLength]), "_.")
	}
	if s == "" {
		return "call"
	}
	return s
}
