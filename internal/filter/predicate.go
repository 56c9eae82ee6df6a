package filter

import (
	"github.com/raaihank/numsieve/internal/digits"
	"github.com/raaihank/numsieve/internal/pattern"
)

// Predicate reports whether a candidate satisfies a constraint set. It is
// pure and safe for concurrent use.
type Predicate func(candidate string) bool

// Build validates c for mode and returns its predicate. Checks run cheapest
// first and stop at the first failure: length (scan only), prefix, suffix,
// excluded digits, digital root, digit sum, pattern.
func Build(c Constraints, mode Mode) (Predicate, error) {
	if err := c.Validate(mode); err != nil {
		return nil, err
	}

	var matcher *pattern.Matcher
	if c.Pattern != "" {
		m, err := pattern.Compile(c.Strategy, c.Pattern, c.ChunkSize)
		if err != nil {
			return nil, &ConstraintError{Field: "strategy", Reason: err.Error()}
		}
		matcher = m
	}

	var excluded [256]bool
	for i := 0; i < len(c.ExcludedDigits); i++ {
		excluded[c.ExcludedDigits[i]] = true
	}
	hasExcluded := c.ExcludedDigits != ""
	checkLength := mode == ModeScan
	prefix, suffix := c.Prefix, c.Suffix
	single, two := c.SingleDigitSum, c.TwoDigitSum

	return func(s string) bool {
		if checkLength && len(s) != CandidateLength {
			return false
		}
		if prefix != "" && (len(s) < len(prefix) || s[:len(prefix)] != prefix) {
			return false
		}
		if suffix != "" && (len(s) < len(suffix) || s[len(s)-len(suffix):] != suffix) {
			return false
		}
		if hasExcluded {
			for i := 0; i < len(s); i++ {
				if excluded[s[i]] {
					return false
				}
			}
		}
		if single.Set && digits.DigitalRoot(s) != single.Value {
			return false
		}
		if two.Set && digits.DigitSum(s) != two.Value {
			return false
		}
		if matcher != nil && !matcher.Match(s) {
			return false
		}
		return true
	}, nil
}
