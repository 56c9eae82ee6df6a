// Package pattern matches candidate numbers against symbolic templates such
// as "XXYY812818". Two strategies exist and they accept different sets:
//
//   - windowed: the template is cut into fixed-width chunks; all-digit chunks
//     are literal anchors, every other chunk is a label whose occurrences must
//     all see the same candidate chunk.
//   - multiset: the template and candidate must group their positions the
//     same way (same character-partition shape); digits carry no literal
//     meaning.
package pattern

import (
	"fmt"
	"strings"
)

// Strategy names a matching algorithm.
type Strategy string

const (
	Windowed Strategy = "windowed"
	Multiset Strategy = "multiset"
)

// DefaultChunkSize is the window width used by the windowed strategy.
const DefaultChunkSize = 2

// ParseStrategy resolves a user supplied strategy name. Empty means Windowed.
func ParseStrategy(s string) (Strategy, error) {
	switch Strategy(strings.ToLower(strings.TrimSpace(s))) {
	case "", Windowed:
		return Windowed, nil
	case Multiset:
		return Multiset, nil
	default:
		return "", fmt.Errorf("unknown pattern strategy %q (must be windowed or multiset)", s)
	}
}

// Matcher is a compiled (strategy, template) pair. It is immutable and safe
// for concurrent use.
type Matcher struct {
	strategy  Strategy
	pattern   string
	chunkSize int

	// windowed
	chunks []chunk

	// multiset
	shape []int
}

type chunk struct {
	text    string
	literal bool
	label   int
}

// Compile prepares a matcher. chunkSize is only used by Windowed; values < 1
// fall back to DefaultChunkSize.
func Compile(strategy Strategy, pattern string, chunkSize int) (*Matcher, error) {
	if chunkSize < 1 {
		chunkSize = DefaultChunkSize
	}
	m := &Matcher{strategy: strategy, pattern: pattern, chunkSize: chunkSize}
	switch strategy {
	case Windowed:
		m.chunks = compileChunks(pattern, chunkSize)
	case Multiset:
		m.shape = shapeOf(pattern)
	default:
		return nil, fmt.Errorf("unknown pattern strategy %q", strategy)
	}
	return m, nil
}

// Strategy reports the algorithm the matcher was compiled with.
func (m *Matcher) Strategy() Strategy { return m.strategy }

// Pattern returns the template text.
func (m *Matcher) Pattern() string { return m.pattern }

// Match reports whether candidate satisfies the template. An empty template
// matches everything; a length mismatch never matches.
func (m *Matcher) Match(candidate string) bool {
	if m.pattern == "" {
		return true
	}
	if len(candidate) != len(m.pattern) {
		return false
	}
	if m.strategy == Multiset {
		return equalShape(m.shape, candidate)
	}
	return m.matchChunks(candidate)
}

// Match is a one-shot helper around Compile.
func Match(strategy Strategy, pattern, candidate string) bool {
	m, err := Compile(strategy, pattern, DefaultChunkSize)
	if err != nil {
		return false
	}
	return m.Match(candidate)
}
