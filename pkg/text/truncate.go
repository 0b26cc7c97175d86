package text

import (
	"strings"
	"unicode/utf8"
)

// Truncate shortens value to at most limit bytes without splitting a rune.
// Invalid UTF-8 sequences are dropped so the result is safe for text columns.
func Truncate(value string, limit int) string {
	value = strings.ToValidUTF8(value, "")
	if limit <= 0 {
		return ""
	}
	if len(value) <= limit {
		return value
	}
	cut := limit
	for cut > 0 && !utf8.RuneStart(value[cut]) {
		cut--
	}
	return value[:cut]
}
