package dispatch

import (
	"strings"
	"unicode/utf8"
)

const ellipsis = "..."

// Truncate cuts s to at most max runes, ending with "..." when shortened.
func Truncate(s string, max int) string {
	if max <= 0 || utf8.RuneCountInString(s) <= max {
		return s
	}
	if max <= len(ellipsis) {
		return string([]rune(s)[:max])
	}
	return string([]rune(s)[:max-len(ellipsis)]) + ellipsis
}

// BuildHeader renders the poll question as prefix, optional category line and
// question text. When the result exceeds max runes only the question text is
// shortened, unless that leaves too little room, in which case the whole
// header is cut.
func BuildHeader(prefix, category, text string, max int) string {
	parts := make([]string, 0, 3)
	if prefix != "" {
		parts = append(parts, prefix)
	}
	if category != "" {
		parts = append(parts, "(Кат: "+category+")")
	}
	parts = append(parts, text)
	header := strings.Join(parts, "\n")
	if max <= 0 || utf8.RuneCountInString(header) <= max {
		return header
	}

	base := utf8.RuneCountInString(header) - utf8.RuneCountInString(text)
	available := max - base - len(ellipsis)
	if available > 20 {
		parts[len(parts)-1] = string([]rune(text)[:available]) + ellipsis
		return strings.Join(parts, "\n")
	}
	return Truncate(header, max)
}
