package duplicates

import (
	"strings"
	"unicode"

	"github.com/agnivade/levenshtein"
	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

// MaxNameDistance is the largest edit distance at which two names still match.
const MaxNameDistance = 2

// minFuzzyLength keeps very short names out of the edit distance check,
// where two edits can turn any name into any other.
const minFuzzyLength = 4

// NormalizeName folds accents, lower-cases, drops punctuation and collapses
// whitespace: "  José  O'Brien " becomes "jose o brien".
func NormalizeName(name string) string {
	t := transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)
	folded, _, err := transform.String(t, name)
	if err != nil {
		folded = name
	}

	folded = strings.Map(func(r rune) rune {
		if unicode.IsLetter(r) || unicode.IsDigit(r) {
			return unicode.ToLower(r)
		}
		return ' '
	}, folded)
	return strings.Join(strings.Fields(folded), " ")
}

var soundexCodes = [26]byte{
	'0', '1', '2', '3', '0', '1', '2', '0', '0', '2', '2', '4', '5',
	'5', '0', '1', '2', '6', '2', '3', '0', '1', '0', '2', '0', '2',
}

// Soundex returns the American Soundex code of word. Non a-z characters are
// ignored; a word without letters yields "".
func Soundex(word string) string {
	word = strings.ToLower(word)
	out := make([]byte, 0, 4)
	var last byte
	for i := 0; i < len(word) && len(out) < 4; i++ {
		c := word[i]
		if c < 'a' || c > 'z' {
			continue
		}
		code := soundexCodes[c-'a']
		if len(out) == 0 {
			out = append(out, c-'a'+'A')
			last = code
			continue
		}
		switch {
		case c == 'h' || c == 'w':
			// h and w do not separate letters with the same code
		case code == '0':
			last = 0
		case code != last:
			out = append(out, code)
			last = code
		}
	}
	if len(out) == 0 {
		return ""
	}
	for len(out) < 4 {
		out = append(out, '0')
	}
	return string(out)
}

// PhoneticKey is the Soundex code of every token of a normalized name.
func PhoneticKey(normalized string) string {
	tokens := strings.Fields(normalized)
	codes := make([]string, 0, len(tokens))
	for _, tok := range tokens {
		if code := Soundex(tok); code != "" {
			codes = append(codes, code)
		}
	}
	return strings.Join(codes, " ")
}

// nameMatch decides whether two normalized names refer to the same person.
// It reports which checks matched and the edit distance.
func nameMatch(a, b nameInfo) (matchedBy []string, distance int, ok bool) {
	if a.normalized == "" || b.normalized == "" {
		return nil, 0, false
	}

	distance = levenshtein.ComputeDistance(a.normalized, b.normalized)
	if a.phonetic != "" && a.phonetic == b.phonetic {
		matchedBy = append(matchedBy, MatchPhonetic)
	}
	if a.runes >= minFuzzyLength && b.runes >= minFuzzyLength && distance <= MaxNameDistance {
		matchedBy = append(matchedBy, MatchEditDistance)
	}
	return matchedBy, distance, len(matchedBy) > 0
}

type nameInfo struct {
	normalized string
	phonetic   string
	runes      int
}

func newNameInfo(name string) nameInfo {
	n := NormalizeName(name)
	return nameInfo{
		normalized: n,
		phonetic:   PhoneticKey(n),
		runes:      len([]rune(n)),
	}
}
