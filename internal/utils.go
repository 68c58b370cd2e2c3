package internal

import (
	"strings"
	"unicode/utf8"
)

// ParseTags splits a space separated tag string, as typed by the author, into
// its tags. It returns nil when there is no tag.
//
//	"React TypeScript #Node" -> ["React" "TypeScript" "#Node"]
func ParseTags(tags string) []string {
	fields := strings.Fields(tags)
	if len(fields) == 0 {
		return nil
	}
	return fields
}

// Excerpt returns the first n runes of s with the surrounding space trimmed,
// followed by "..." when s was cut.
func Excerpt(s string, n int) string {
	s = strings.TrimSpace(s)
	if n <= 0 || utf8.RuneCountInString(s) <= n {
		return s
	}
	return strings.TrimSpace(string([]rune(s)[:n])) + "..."
}
