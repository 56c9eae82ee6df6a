package pattern

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseStrategy(t *testing.T) {
	s, err := ParseStrategy("")
	require.NoError(t, err)
	assert.Equal(t, Windowed, s)

	s, err = ParseStrategy(" MultiSet ")
	require.NoError(t, err)
	assert.Equal(t, Multiset, s)

	_, err = ParseStrategy("regex")
	assert.Error(t, err)
}

func TestMatchWindowed(t *testing.T) {
	const p = "XXYY812818"

	t.Run("LengthMismatch", func(t *testing.T) {
		assert.False(t, MatchWindowed(p, "112281281", 2))
	})

	t.Run("AnchorsAndLabels", func(t *testing.T) {
		assert.True(t, MatchWindowed(p, "1122812818", 2))
		assert.True(t, MatchWindowed(p, "0000812818", 2), "labels need not be distinct")
	})

	t.Run("AnchorChanged", func(t *testing.T) {
		assert.False(t, MatchWindowed(p, "1122812819", 2))
		assert.False(t, MatchWindowed(p, "1122822818", 2))
	})

	t.Run("RepeatedLabelMustAgree", func(t *testing.T) {
		assert.True(t, MatchWindowed("AAAA12BB34", "5656129934", 2))
		assert.False(t, MatchWindowed("AAAA12BB34", "5657129934", 2))
	})

	t.Run("EmptyPatternMatchesAll", func(t *testing.T) {
		assert.True(t, MatchWindowed("", "9876543210", 2))
	})

	t.Run("ChunkSizeThree", func(t *testing.T) {
		assert.True(t, MatchWindowed("ABCABC1234", "7777771234", 3))
		assert.True(t, MatchWindowed("ABCABC1234", "1231231234", 3))
		assert.False(t, MatchWindowed("ABCABC1234", "1231241234", 3))
	})
}

func TestMatchMultiset(t *testing.T) {
	assert.True(t, MatchMultiset("AABAB", "11212"))
	assert.True(t, MatchMultiset("AABAB", "99494"))
	assert.False(t, MatchMultiset("AABAB", "11213"))
	assert.False(t, MatchMultiset("AABAB", "11211"))
	assert.False(t, MatchMultiset("AABAB", "1121"))

	// digits in the template are grouping symbols, not anchors
	assert.True(t, MatchMultiset("1122", "7733"))
	assert.True(t, MatchMultiset("ABCDEFGHIJ", "0123456789"))
	assert.False(t, MatchMultiset("ABCDEFGHIJ", "0123456788"))
}

func TestStrategiesDisagree(t *testing.T) {
	// anchors only mean something to the windowed strategy
	assert.False(t, Match(Windowed, "XXYY812818", "1122334455"))
	assert.True(t, Match(Multiset, "XXYY812818", "3344201202"))
	assert.False(t, Match(Windowed, "XXYY812818", "3344201202"))
}

func TestCompile(t *testing.T) {
	m, err := Compile(Multiset, "AABBCCDDEE", 0)
	require.NoError(t, err)
	assert.Equal(t, Multiset, m.Strategy())
	assert.Equal(t, "AABBCCDDEE", m.Pattern())
	assert.True(t, m.Match("1122334455"))

	_, err = Compile(Strategy("fuzzy"), "AA", 2)
	assert.Error(t, err)
}
