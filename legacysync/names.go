package legacysync

import (
	"strings"
	"unicode"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"
	"golang.org/x/text/unicode/norm"
)

var upperPtBR = cases.Upper(language.BrazilianPortuguese)

// MatchKey derives the stable key used for every name comparison in this
// package. Raw names are never compared directly.
//
// The key is trimmed, internal whitespace is collapsed, the text is
// uppercased with pt-BR casing (so ç and accented vowels uppercase
// correctly), and then diacritics are stripped by NFD decomposition: that
// last step also maps Ç to C and Ñ to N, making the key accent-insensitive
// while the stored display name keeps its accents.
func MatchKey(name string) string {
	key := strings.Join(strings.Fields(name), " ")
	if key == "" {
		return ""
	}
	key = upperPtBR.String(key)
	return stripDiacritics(key)
}

// collapseSpaces trims and collapses internal whitespace without touching
// case or accents.
func collapseSpaces(s string) string {
	return strings.Join(strings.Fields(s), " ")
}

// SameName reports whether two display names resolve to the same match key.
func SameName(a, b string) bool {
	return MatchKey(a) == MatchKey(b) && MatchKey(a) != ""
}

func stripDiacritics(s string) string {
	decomposed := norm.NFD.String(s)
	var b strings.Builder
	b.Grow(len(decomposed))
	for _, r := range decomposed {
		if unicode.Is(unicode.Mn, r) {
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}
