package legacysync

import (
	"strings"
	"unicode"
	"unicode/utf8"

	"golang.org/x/text/encoding/charmap"
)

// The legacy POS databases predate any reliable charset declaration. Text
// columns usually hold a single-byte Western code page regardless of what the
// connection claims, and some rows were round-tripped through UTF-8 by older
// import tools, leaving mojibake baked into the stored bytes. DecodeLegacy
// produces best-effort valid UTF-8; it never fails.

// Runes that do not occur in Brazilian names or addresses. Seeing one after a
// candidate decode means the code page guess was wrong.
var mojibakeIndicators = map[rune]bool{
	'�': true, // replacement char (unmapped byte)
	'‡':      true,
	'€':      true,
	'¤':      true,
	'¶':      true,
	'¬':      true,
	'±':      true,
}

// Known bad substrings left behind by UTF-8 text read as Latin-1. Ordered:
// the uppercase cedilla pair must run before the generic Ã fixes.
var mojibakeRepairs = []struct{ bad, good string }{
	{"Ã‡", "Ç"},
	{"Ã§", "ç"},
	{"Ã£", "ã"},
	{"Ãµ", "õ"},
	{"Ã¡", "á"},
	{"Ã©", "é"},
	{"Ã­", "í"},
	{"Ã³", "ó"},
	{"Ãº", "ú"},
	{"Ã¢", "â"},
	{"Ãª", "ê"},
	{"Ã´", "ô"},
	{"Ãš", "Ú"},
	{"Ã‰", "É"},
	{"Ã", "Á"},
}

// Words where é before a/o/u is legitimate and must not be "repaired" into ç.
// Mostly first names. Compared case-insensitively against the whole word.
var cedillaWhitelist = map[string]bool{
	"LÉA":    true,
	"LÉO":    true,
	"CLÉA":   true,
	"CLÉO":   true,
	"ANDRÉA": true,
	"ROMÉO":  true,
	"TÉO":    true,
}

// DecodeLegacy turns raw legacy bytes into UTF-8. declaredCharset is the
// source's claimed encoding and is only honored when it says UTF-8 and the
// bytes agree; otherwise the byte stream is assumed to be a single-byte
// Western code page. Candidate pages are tried in order and a candidate is
// accepted when its output carries no mojibake indicator; if both fail the
// check, the first candidate wins.
func DecodeLegacy(raw []byte, declaredCharset string) string {
	if len(raw) == 0 {
		return ""
	}

	charset := strings.ToLower(strings.ReplaceAll(strings.TrimSpace(declaredCharset), "-", ""))
	if charset == "utf8" && utf8.Valid(raw) {
		return RepairMojibake(string(raw))
	}

	candidates := []*charmap.Charmap{charmap.Windows1252, charmap.CodePage850}
	var first string
	for i, cm := range candidates {
		decoded, err := cm.NewDecoder().Bytes(raw)
		if err != nil {
			continue
		}
		s := string(decoded)
		if i == 0 {
			first = s
		}
		if !containsMojibake(s) {
			return RepairMojibake(s)
		}
	}
	if first == "" {
		// Decoders for single-byte pages do not fail in practice; this is
		// the never-throw fallback for completeness.
		first = string(raw)
	}
	return first
}

// NormalizeLegacyText is DecodeLegacy for values the driver already handed
// over as a Go string.
func NormalizeLegacyText(s string, declaredCharset string) string {
	if s == "" {
		return ""
	}
	if !utf8.ValidString(s) {
		return DecodeLegacy([]byte(s), declaredCharset)
	}
	return RepairMojibake(s)
}

// RepairMojibake applies the fixed substring table, then the guarded cedilla
// heuristic. Pure function.
func RepairMojibake(s string) string {
	for _, r := range mojibakeRepairs {
		if strings.Contains(s, r.bad) {
			s = strings.ReplaceAll(s, r.bad, r.good)
		}
	}
	return repairMisdecodedCedilla(s)
}

// repairMisdecodedCedilla fixes ç systematically misdecoded as é. In
// Portuguese ç never starts a word, only follows a, e, i, o, u, n, r or l,
// and only precedes a, o or u; an é in that position is almost always a
// corrupted ç ("GONÉALVES", "LOURENÉO"). Words on the whitelist are the
// legitimate exceptions and are left alone.
func repairMisdecodedCedilla(s string) string {
	if !strings.ContainsAny(s, "éÉ") {
		return s
	}

	runes := []rune(s)
	out := make([]rune, 0, len(runes))
	start := -1 // current word start in runes

	flush := func(end int) {
		if start < 0 {
			return
		}
		out = append(out, repairWord(runes[start:end])...)
		start = -1
	}

	for i, r := range runes {
		if unicode.IsLetter(r) {
			if start < 0 {
				start = i
			}
			continue
		}
		flush(i)
		out = append(out, r)
	}
	flush(len(runes))
	return string(out)
}

func repairWord(word []rune) []rune {
	if cedillaWhitelist[strings.ToUpper(string(word))] {
		return word
	}
	fixed := make([]rune, len(word))
	copy(fixed, word)
	for i, r := range word {
		if r != 'é' && r != 'É' {
			continue
		}
		if i == 0 || i == len(word)-1 {
			continue
		}
		if !cedillaPrecededBy(word[i-1]) || !cedillaFollowedBy(word[i+1]) {
			continue
		}
		if r == 'é' {
			fixed[i] = 'ç'
		} else {
			fixed[i] = 'Ç'
		}
	}
	return fixed
}

func cedillaPrecededBy(r rune) bool {
	switch unicode.ToUpper(r) {
	case 'A', 'E', 'I', 'O', 'U', 'N', 'R', 'L':
		return true
	}
	return false
}

func cedillaFollowedBy(r rune) bool {
	switch unicode.ToUpper(r) {
	case 'A', 'O', 'U', 'Ã', 'Õ', 'Á', 'Ó', 'Ú':
		return true
	}
	return false
}

func containsMojibake(s string) bool {
	for _, r := range s {
		if mojibakeIndicators[r] {
			return true
		}
	}
	return false
}

// NormalizeRow runs every string in a legacy row through the decode pipeline:
// keys, scalar values, and recursively the members of nested maps and slices.
// Non-string scalars pass through unchanged.
func NormalizeRow(row map[string]interface{}, declaredCharset string) map[string]interface{} {
	if row == nil {
		return nil
	}
	normalized := make(map[string]interface{}, len(row))
	for key, value := range row {
		normalized[NormalizeLegacyText(key, declaredCharset)] = normalizeValue(value, declaredCharset)
	}
	return normalized
}

func normalizeValue(value interface{}, declaredCharset string) interface{} {
	switch v := value.(type) {
	case nil:
		return nil
	case []byte:
		return DecodeLegacy(v, declaredCharset)
	case string:
		return NormalizeLegacyText(v, declaredCharset)
	case map[string]interface{}:
		return NormalizeRow(v, declaredCharset)
	case []interface{}:
		items := make([]interface{}, len(v))
		for i, item := range v {
			items[i] = normalizeValue(item, declaredCharset)
		}
		return items
	default:
		return value
	}
}
