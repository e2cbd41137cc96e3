package casting

import (
	"slices"
	"strings"
	"unicode"

	"github.com/antzucaro/matchr"
)

// Similarity floors for protagonist matching. A speaker that also shares a
// Double Metaphone code with the protagonist needs less string similarity.
const (
	phoneticThreshold = 0.85
	fuzzyThreshold    = 0.92
)

// honorifics are dropped before names are compared.
var honorifics = []string{"mr", "mrs", "ms", "miss", "dr", "doctor", "sir", "lady", "lord", "captain", "professor", "prof"}

// matchProtagonist finds the speaker label that names the protagonist. An
// exact label wins, then a case-insensitive one, then the best fuzzy match
// over name tokens, so "Elizabeth Bennet" finds "Elizabeth" and "Dr. Watson"
// finds "Watson". speakers must be sorted; ties go to the first.
func matchProtagonist(protagonist string, speakers []string) (string, bool) {
	if slices.Contains(speakers, protagonist) {
		return protagonist, true
	}
	for _, s := range speakers {
		if strings.EqualFold(s, protagonist) {
			return s, true
		}
	}

	want := nameTokens(protagonist)
	if len(want) == 0 {
		return "", false
	}
	wantCodes := metaphoneCodes(want)

	var best string
	var bestScore float64
	bestPhonetic := false
	for _, s := range speakers {
		have := nameTokens(s)
		if len(have) == 0 {
			continue
		}
		score := tokenSimilarity(want, have)
		phonetic := sharesCode(wantCodes, metaphoneCodes(have))
		switch {
		case phonetic && score >= phoneticThreshold:
			if !bestPhonetic || score > bestScore {
				best, bestScore, bestPhonetic = s, score, true
			}
		case !bestPhonetic && score >= fuzzyThreshold && score > bestScore:
			best, bestScore = s, score
		}
	}
	return best, best != ""
}

// nameTokens lowercases name, splits it on anything but letters and digits
// and drops honorifics.
func nameTokens(name string) []string {
	fields := strings.FieldsFunc(strings.ToLower(name), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})
	return slices.DeleteFunc(fields, func(f string) bool { return slices.Contains(honorifics, f) })
}

// tokenSimilarity is the best Jaro-Winkler score of the joined names or of
// any pair of tokens.
func tokenSimilarity(a, b []string) float64 {
	score := matchr.JaroWinkler(strings.Join(a, " "), strings.Join(b, " "), false)
	for _, x := range a {
		for _, y := range b {
			score = max(score, matchr.JaroWinkler(x, y, false))
		}
	}
	return score
}

func metaphoneCodes(tokens []string) []string {
	var codes []string
	for _, t := range tokens {
		primary, secondary := matchr.DoubleMetaphone(t)
		for _, c := range []string{primary, secondary} {
			if c != "" && !slices.Contains(codes, c) {
				codes = append(codes, c)
			}
		}
	}
	return codes
}

func sharesCode(a, b []string) bool {
	return slices.ContainsFunc(a, func(c string) bool { return slices.Contains(b, c) })
}
