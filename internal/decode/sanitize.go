package decode

import (
	"strings"
	"unicode"
	"unicode/utf8"
)

// Sanitize extracts a plausible character name from raw decoded text.
//
// The text is cut at the first NUL and trimmed; the name then runs up to the
// first rune that is not a letter or digit. Results that are empty, purely
// numeric, a single Latin letter, or shorter than three runes without a Han
// rune are rejected.
func Sanitize(raw string) (string, bool) {
	if i := strings.IndexByte(raw, 0); i >= 0 {
		raw = raw[:i]
	}
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return "", false
	}

	var sb strings.Builder
	runes := 0
	onlyDigits := true
	hasHan := false
	for _, r := range raw {
		if r == utf8.RuneError || unicode.IsControl(r) || !(unicode.IsLetter(r) || unicode.IsDigit(r)) {
			if runes == 0 {
				return "", false
			}
			break
		}
		sb.WriteRune(r)
		runes++
		if unicode.IsLetter(r) {
			onlyDigits = false
		}
		if unicode.Is(unicode.Han, r) {
			hasHan = true
		}
	}

	name := sb.String()
	switch {
	case runes == 0:
		return "", false
	case onlyDigits:
		return "", false
	case runes == 1 && isLatinLetter(rune(name[0])):
		return "", false
	case runes < 3 && !hasHan:
		return "", false
	}
	return name, true
}

func isLatinLetter(r rune) bool {
	return (r >= 'a' && r <= 'z') || (r >= 'A' && r <= 'Z')
}
