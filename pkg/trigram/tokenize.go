package trigram

import (
	"strings"
	"unicode"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

// startPad and endPad bracket each token before the sliding window runs, so
// a one- or two-rune token still yields at least one trigram and searches
// can distinguish "at the start of a word" from "in the middle."
const (
	startPad = rune(0x02)
	endPad   = rune(0x03)
)

var stripMarks = transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)

// normalize lowercases text, collapses Unicode combining marks onto their
// base rune (so "café" and "cafe" tokenize the same way), and folds every
// run of non-alphanumeric runes into a single space.
func normalize(text string) string {
	stripped, _, err := transform.String(stripMarks, text)
	if err != nil {
		stripped = text
	}
	stripped = strings.ToLower(stripped)

	var b strings.Builder
	b.Grow(len(stripped))
	lastWasSpace := false
	for _, r := range stripped {
		if unicode.IsLetter(r) || unicode.IsDigit(r) {
			b.WriteRune(r)
			lastWasSpace = false
			continue
		}
		if !lastWasSpace {
			b.WriteRune(' ')
			lastWasSpace = true
		}
	}
	return strings.TrimSpace(b.String())
}

// Tokenize extracts the multiset of 3-grams from text: normalize, split on
// whitespace, pad each token with start/end sentinels, and slide a
// length-3 window over the padded rune sequence. Query normalization
// reuses the same function, so index and query trigrams always compare
// equal for equivalent text.
func Tokenize(text string) []string {
	normalized := normalize(text)
	if normalized == "" {
		return nil
	}

	var grams []string
	for _, word := range strings.Fields(normalized) {
		padded := make([]rune, 0, len(word)+2)
		padded = append(padded, startPad)
		padded = append(padded, []rune(word)...)
		padded = append(padded, endPad)

		for i := 0; i+3 <= len(padded); i++ {
			grams = append(grams, string(padded[i:i+3]))
		}
	}
	return grams
}
