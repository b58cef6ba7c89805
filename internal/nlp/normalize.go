package nlp

import (
	"strconv"
	"strings"

	"golang.org/x/text/unicode/norm"
)

// Normalizer folds input text into a canonical form before tokenization:
// NFKC normalization (which also folds full-width digits and Latin to ASCII)
// followed by kanji numeral conversion driven by a configurable lexicon.
type Normalizer struct {
	// lexicon maps single kanji numerals to their values. Values of 10 and
	// 100 act as positional multipliers.
	lexicon map[rune]int
}

// NewNormalizer builds a normalizer from a string-keyed lexicon as loaded
// from configuration. Multi-rune keys are ignored.
func NewNormalizer(lexicon map[string]int) *Normalizer {
	runes := make(map[rune]int, len(lexicon))
	for k, v := range lexicon {
		rs := []rune(k)
		if len(rs) == 1 {
			runes[rs[0]] = v
		}
	}
	return &Normalizer{lexicon: runes}
}

// Normalize returns the canonical form of text.
func (n *Normalizer) Normalize(text string) string {
	folded := norm.NFKC.String(text)
	return n.convertNumerals(folded)
}

// convertNumerals rewrites maximal runs of lexicon numerals into ASCII
// digits. Runs that do not form a well-defined number (e.g. "十十") are left
// untouched.
func (n *Normalizer) convertNumerals(text string) string {
	if len(n.lexicon) == 0 {
		return text
	}

	var b strings.Builder
	runes := []rune(text)
	for i := 0; i < len(runes); {
		if _, ok := n.lexicon[runes[i]]; !ok {
			b.WriteRune(runes[i])
			i++
			continue
		}
		j := i
		for j < len(runes) {
			if _, ok := n.lexicon[runes[j]]; !ok {
				break
			}
			j++
		}
		if value, ok := n.numeralValue(runes[i:j]); ok {
			b.WriteString(strconv.Itoa(value))
		} else {
			b.WriteString(string(runes[i:j]))
		}
		i = j
	}
	return b.String()
}

// numeralValue evaluates a kanji numeral run. Supports positional composition
// up to the largest multiplier in the lexicon: 三十五 = 35, 百二十 = 120,
// 五〇 = 50 (plain digit concatenation).
func (n *Normalizer) numeralValue(runes []rune) (int, bool) {
	// Pure digit sequence (〇五 style): concatenate.
	allDigits := true
	for _, r := range runes {
		if n.lexicon[r] >= 10 {
			allDigits = false
			break
		}
	}
	if allDigits {
		value := 0
		for _, r := range runes {
			value = value*10 + n.lexicon[r]
		}
		return value, true
	}

	// Positional composition with multipliers.
	total, current := 0, 0
	lastMultiplier := 1 << 30
	for _, r := range runes {
		v := n.lexicon[r]
		if v < 10 {
			if current != 0 {
				return 0, false
			}
			current = v
			continue
		}
		// Multiplier. Must strictly decrease across the run (百 before 十).
		if v >= lastMultiplier {
			return 0, false
		}
		lastMultiplier = v
		if current == 0 {
			current = 1
		}
		total += current * v
		current = 0
	}
	return total + current, true
}
