package util

import "unicode/utf8"

// TruncateUTF8 caps s at maxBytes without splitting a multi-byte rune, so
// the result is always valid UTF-8 when the input is.
func TruncateUTF8(s string, maxBytes int) string {
	if len(s) <= maxBytes {
		return s
	}
	cut := maxBytes
	for cut > 0 && !utf8.RuneStart(s[cut]) {
		cut--
	}
	return s[:cut]
}
