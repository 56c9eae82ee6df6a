// Package filter turns user-authored constraints into the predicate every
// candidate number is evaluated with.
package filter

import (
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/raaihank/numsieve/internal/pattern"
)

// CandidateLength is the fixed length of every candidate number.
const CandidateLength = 10

// Mode selects how candidates are produced.
type Mode string

const (
	ModeGenerate Mode = "generate"
	ModeScan     Mode = "scan"
)

// ErrInvalidConstraint is wrapped by every ConstraintError.
var ErrInvalidConstraint = errors.New("invalid constraint")

// ConstraintError names the offending field.
type ConstraintError struct {
	Field  string
	Reason string
}

func (e *ConstraintError) Error() string {
	return fmt.Sprintf("invalid constraint %s: %s", e.Field, e.Reason)
}

func (e *ConstraintError) Unwrap() error { return ErrInvalidConstraint }

// Input is the raw form of a constraint set as typed by a user.
type Input struct {
	Prefix         string `json:"prefix"`
	Suffix         string `json:"suffix"`
	Exclude        string `json:"exclude"`
	SingleDigitSum string `json:"single_digit_sum"`
	TwoDigitSum    string `json:"two_digit_sum"`
	Pattern        string `json:"pattern"`
	Strategy       string `json:"strategy"`
	ChunkSize      int    `json:"chunk_size,omitempty"`
}

// Target is an optional integer constraint.
type Target struct {
	Value int
	Set   bool
}

// MarshalJSON encodes an unset target as null.
func (t Target) MarshalJSON() ([]byte, error) {
	if !t.Set {
		return []byte("null"), nil
	}
	return []byte(strconv.Itoa(t.Value)), nil
}

// UnmarshalJSON accepts null or an integer.
func (t *Target) UnmarshalJSON(data []byte) error {
	if string(data) == "null" {
		*t = Target{}
		return nil
	}
	var n int
	if err := json.Unmarshal(data, &n); err != nil {
		return err
	}
	*t = Target{Value: n, Set: true}
	return nil
}

func (t Target) String() string {
	if !t.Set {
		return ""
	}
	return strconv.Itoa(t.Value)
}

// Constraints is a parsed, canonical constraint set. It is a plain value:
// copies never share state.
type Constraints struct {
	Prefix         string           `json:"prefix"`
	Suffix         string           `json:"suffix"`
	ExcludedDigits string           `json:"excluded_digits"` // sorted, unique
	SingleDigitSum Target           `json:"single_digit_sum"`
	TwoDigitSum    Target           `json:"two_digit_sum"`
	Pattern        string           `json:"pattern"`
	Strategy       pattern.Strategy `json:"strategy"`
	ChunkSize      int              `json:"chunk_size"`
}

// Parse validates field syntax and canonicalizes in.
func Parse(in Input) (Constraints, error) {
	c := Constraints{
		Prefix:    strings.TrimSpace(in.Prefix),
		Suffix:    strings.TrimSpace(in.Suffix),
		Pattern:   strings.TrimSpace(in.Pattern),
		ChunkSize: in.ChunkSize,
	}

	if !isDigits(c.Prefix) {
		return Constraints{}, &ConstraintError{Field: "prefix", Reason: fmt.Sprintf("%q is not a digit string", c.Prefix)}
	}
	if !isDigits(c.Suffix) {
		return Constraints{}, &ConstraintError{Field: "suffix", Reason: fmt.Sprintf("%q is not a digit string", c.Suffix)}
	}

	excluded, err := parseDigitSet(in.Exclude)
	if err != nil {
		return Constraints{}, &ConstraintError{Field: "exclude", Reason: err.Error()}
	}
	c.ExcludedDigits = excluded

	if c.SingleDigitSum, err = parseTarget(in.SingleDigitSum); err != nil {
		return Constraints{}, &ConstraintError{Field: "single_digit_sum", Reason: err.Error()}
	}
	if c.SingleDigitSum.Set && c.SingleDigitSum.Value > 9 {
		return Constraints{}, &ConstraintError{Field: "single_digit_sum", Reason: fmt.Sprintf("%d is outside 0-9", c.SingleDigitSum.Value)}
	}
	if c.TwoDigitSum, err = parseTarget(in.TwoDigitSum); err != nil {
		return Constraints{}, &ConstraintError{Field: "two_digit_sum", Reason: err.Error()}
	}

	if c.Strategy, err = pattern.ParseStrategy(in.Strategy); err != nil {
		return Constraints{}, &ConstraintError{Field: "strategy", Reason: err.Error()}
	}
	if c.ChunkSize < 0 {
		return Constraints{}, &ConstraintError{Field: "chunk_size", Reason: "must not be negative"}
	}
	if c.ChunkSize == 0 {
		c.ChunkSize = pattern.DefaultChunkSize
	}
	return c, nil
}

// Validate checks the cross-field invariants for mode.
func (c Constraints) Validate(mode Mode) error {
	switch mode {
	case ModeGenerate:
		if n := len(c.Prefix) + len(c.Suffix); n > CandidateLength {
			return &ConstraintError{
				Field:  "prefix/suffix",
				Reason: fmt.Sprintf("combined length %d exceeds %d digits", n, CandidateLength),
			}
		}
	case ModeScan:
	default:
		return fmt.Errorf("unknown mode %q", mode)
	}
	return nil
}

// FreeDigits is the number of positions not fixed by prefix and suffix.
func (c Constraints) FreeDigits() int {
	return CandidateLength - len(c.Prefix) - len(c.Suffix)
}

// PatternUsable reports whether the pattern can ever match. A pattern of the
// wrong length is kept and simply rejects everything.
func (c Constraints) PatternUsable() bool {
	return c.Pattern == "" || len(c.Pattern) == CandidateLength
}

// Tag encodes every constraint value into a single token used for export
// headers and file names. Distinct constraint sets yield distinct tags.
func (c Constraints) Tag() string {
	var b strings.Builder
	fmt.Fprintf(&b, "st%s-----end%s--sds%s--dds%s--nnn%s",
		c.Prefix, c.Suffix, c.SingleDigitSum, c.TwoDigitSum, c.ExcludedDigits)
	if c.Pattern != "" {
		b.WriteString("--pat")
		b.WriteString(escapeTag(c.Pattern))
		b.WriteString("--alg")
		b.WriteString(string(c.Strategy))
		if c.Strategy == pattern.Windowed && c.ChunkSize != pattern.DefaultChunkSize {
			fmt.Fprintf(&b, "%d", c.ChunkSize)
		}
	}
	return b.String()
}

func (c Constraints) String() string {
	b, _ := json.Marshal(c)
	return string(b)
}

// escapeTag keeps [A-Za-z0-9] and hex-escapes everything else as _hh, so
// the mapping stays injective and filesystem safe.
func escapeTag(s string) string {
	var b strings.Builder
	for i := 0; i < len(s); i++ {
		ch := s[i]
		if ch >= '0' && ch <= '9' || ch >= 'a' && ch <= 'z' || ch >= 'A' && ch <= 'Z' {
			b.WriteByte(ch)
			continue
		}
		fmt.Fprintf(&b, "_%02x", ch)
	}
	return b.String()
}

func parseDigitSet(s string) (string, error) {
	var seen [10]bool
	for _, r := range s {
		switch {
		case r >= '0' && r <= '9':
			seen[r-'0'] = true
		case r == ',' || r == ' ' || r == '\t':
		default:
			return "", fmt.Errorf("%q is not a digit", r)
		}
	}
	var out []byte
	for d, ok := range seen {
		if ok {
			out = append(out, byte('0'+d))
		}
	}
	return string(out), nil
}

func parseTarget(s string) (Target, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return Target{}, nil
	}
	n, err := strconv.Atoi(s)
	if err != nil {
		return Target{}, fmt.Errorf("%q is not an integer", s)
	}
	if n < 0 {
		return Target{}, fmt.Errorf("%d is negative", n)
	}
	return Target{Value: n, Set: true}, nil
}

func isDigits(s string) bool {
	for i := 0; i < len(s); i++ {
		if s[i] < '0' || s[i] > '9' {
			return false
		}
	}
	return true
}
