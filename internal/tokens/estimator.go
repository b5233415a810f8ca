// Package tokens provides token estimation for conversational text.
package tokens

import (
	"math"
	"unicode"
)

// Estimator estimates the token count of a string.
type Estimator interface {
	Estimate(text string) int
}

// ScriptEstimator estimates tokens by weighing each rune according to its
// script class. CJK ideographs and kana consume far more tokens per
// character than Latin text, so a flat characters-per-token ratio
// systematically underestimates mixed-script conversations.
type ScriptEstimator struct{}

// NewScriptEstimator creates a ScriptEstimator.
func NewScriptEstimator() *ScriptEstimator {
	return &ScriptEstimator{}
}

// Compile-time interface check.
var _ Estimator = (*ScriptEstimator)(nil)

// Per-rune weights in token units.
const (
	weightCJK        = 1.5
	weightCJKPunct   = 1.0
	weightWhitespace = 0.1
	weightOther      = 0.3
)

// Estimate returns the estimated token count for the given text.
// The result is always rounded up to avoid underestimation.
func (e *ScriptEstimator) Estimate(text string) int {
	if len(text) == 0 {
		return 0
	}
	var units float64
	for _, r := range text {
		switch {
		case isCJK(r):
			units += weightCJK
		case isCJKPunct(r):
			units += weightCJKPunct
		case unicode.IsSpace(r):
			units += weightWhitespace
		default:
			units += weightOther
		}
	}
	return int(math.Ceil(units))
}

// isCJK reports whether r is a CJK ideograph, kana, or hangul syllable.
func isCJK(r rune) bool {
	return unicode.Is(unicode.Han, r) ||
		unicode.Is(unicode.Hiragana, r) ||
		unicode.Is(unicode.Katakana, r) ||
		unicode.Is(unicode.Hangul, r)
}

// isCJKPunct reports whether r is CJK punctuation or a fullwidth form
// (U+3000–U+303F and U+FF00–U+FF65).
func isCJKPunct(r rune) bool {
	return (r >= 0x3000 && r <= 0x303F) || (r >= 0xFF00 && r <= 0xFF65)
}
