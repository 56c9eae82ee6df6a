package filter

import (
	"encoding/json"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/raaihank/numsieve/internal/pattern"
)

func TestParse(t *testing.T) {
	t.Run("Canonicalizes", func(t *testing.T) {
		c, err := Parse(Input{
			Prefix:         " 98 ",
			Suffix:         "21",
			Exclude:        "7, 4,4 0",
			SingleDigitSum: "5",
			TwoDigitSum:    "41",
			Pattern:        "XXYY812818",
		})
		require.NoError(t, err)
		assert.Equal(t, "98", c.Prefix)
		assert.Equal(t, "047", c.ExcludedDigits)
		assert.Equal(t, Target{Value: 5, Set: true}, c.SingleDigitSum)
		assert.Equal(t, Target{Value: 41, Set: true}, c.TwoDigitSum)
		assert.Equal(t, pattern.Windowed, c.Strategy)
		assert.Equal(t, pattern.DefaultChunkSize, c.ChunkSize)
	})

	t.Run("Rejects", func(t *testing.T) {
		bad := map[string]Input{
			"prefix":           {Prefix: "9a"},
			"suffix":           {Suffix: "+1"},
			"exclude":          {Exclude: "4x"},
			"single_digit_sum": {SingleDigitSum: "10"},
			"two_digit_sum":    {TwoDigitSum: "-3"},
			"strategy":         {Strategy: "regex"},
			"chunk_size":       {ChunkSize: -1},
		}
		for field, in := range bad {
			_, err := Parse(in)
			require.Error(t, err, field)
			assert.True(t, errors.Is(err, ErrInvalidConstraint), field)
			var ce *ConstraintError
			require.True(t, errors.As(err, &ce), field)
			assert.Equal(t, field, ce.Field)
		}
	})
}

func TestValidate(t *testing.T) {
	c, err := Parse(Input{Prefix: "123456", Suffix: "78901"})
	require.NoError(t, err)
	assert.ErrorIs(t, c.Validate(ModeGenerate), ErrInvalidConstraint)
	assert.NoError(t, c.Validate(ModeScan))

	c, err = Parse(Input{Prefix: "12345", Suffix: "67890"})
	require.NoError(t, err)
	assert.NoError(t, c.Validate(ModeGenerate))
	assert.Equal(t, 0, c.FreeDigits())
}

func TestBuild(t *testing.T) {
	build := func(in Input, mode Mode) Predicate {
		t.Helper()
		c, err := Parse(in)
		require.NoError(t, err)
		p, err := Build(c, mode)
		require.NoError(t, err)
		return p
	}

	t.Run("PrefixSuffix", func(t *testing.T) {
		p := build(Input{Prefix: "98", Suffix: "21"}, ModeGenerate)
		assert.True(t, p("9800000021"))
		assert.False(t, p("9700000021"))
		assert.False(t, p("9800000022"))
	})

	t.Run("ExcludedDigits", func(t *testing.T) {
		p := build(Input{Exclude: "04"}, ModeGenerate)
		assert.True(t, p("1235678912"))
		assert.False(t, p("1235678910"))
		assert.False(t, p("4235678912"))
	})

	t.Run("Sums", func(t *testing.T) {
		p := build(Input{SingleDigitSum: "9", TwoDigitSum: "45"}, ModeGenerate)
		assert.True(t, p("1234567890"))
		assert.False(t, p("1234567891"))

		p = build(Input{TwoDigitSum: "90"}, ModeGenerate)
		assert.True(t, p("9999999999"))
	})

	t.Run("Pattern", func(t *testing.T) {
		p := build(Input{Pattern: "XXYY812818"}, ModeGenerate)
		assert.True(t, p("1122812818"))
		assert.True(t, p("1123812818"), "a label binds a whole chunk, not equal digits")
		assert.False(t, p("1122812819"), "anchor chunk differs")

		p = build(Input{Pattern: "XXYYXX2818"}, ModeGenerate)
		assert.True(t, p("1122112818"))
		assert.False(t, p("1122332818"), "repeated label bound to a different chunk")

		p = build(Input{Pattern: "AABBCCDDEE", Strategy: "multiset"}, ModeGenerate)
		assert.True(t, p("1122334455"))
		assert.False(t, p("1122334456"))
	})

	t.Run("WrongLengthPatternRejectsEverything", func(t *testing.T) {
		c, err := Parse(Input{Pattern: "XXYY"})
		require.NoError(t, err)
		assert.False(t, c.PatternUsable())
		p, err := Build(c, ModeGenerate)
		require.NoError(t, err)
		assert.False(t, p("1122812818"))
		assert.False(t, p("0000000000"))
	})

	t.Run("ScanChecksLength", func(t *testing.T) {
		p := build(Input{}, ModeScan)
		assert.True(t, p("9876543210"))
		assert.False(t, p("987654321"))
		assert.False(t, p("98765432100"))
	})

	t.Run("InvalidForGenerate", func(t *testing.T) {
		c, err := Parse(Input{Prefix: "12345678", Suffix: "901"})
		require.NoError(t, err)
		_, err = Build(c, ModeGenerate)
		assert.ErrorIs(t, err, ErrInvalidConstraint)
	})
}

func TestTag(t *testing.T) {
	c, err := Parse(Input{Prefix: "98", Suffix: "21", Exclude: "4", SingleDigitSum: "5"})
	require.NoError(t, err)
	assert.Equal(t, "st98-----end21--sds5--dds--nnn4", c.Tag())

	withPattern, err := Parse(Input{Prefix: "98", Suffix: "21", Exclude: "4", SingleDigitSum: "5", Pattern: "AB/C"})
	require.NoError(t, err)
	assert.Equal(t, "st98-----end21--sds5--dds--nnn4--patAB_2fC--algwindowed", withPattern.Tag())

	multiset, err := Parse(Input{Prefix: "98", Suffix: "21", Exclude: "4", SingleDigitSum: "5", Pattern: "AB/C", Strategy: "multiset"})
	require.NoError(t, err)
	assert.NotEqual(t, withPattern.Tag(), multiset.Tag())

	// an escape sequence typed literally must not collide with the escaped form
	literal, err := Parse(Input{Pattern: "AB_2fC"})
	require.NoError(t, err)
	slash, err := Parse(Input{Pattern: "AB/C"})
	require.NoError(t, err)
	assert.NotEqual(t, literal.Tag(), slash.Tag())
}

func TestConstraintsJSON(t *testing.T) {
	c, err := Parse(Input{Prefix: "98", TwoDigitSum: "41", Pattern: "AABBCCDDEE", Strategy: "multiset"})
	require.NoError(t, err)

	var back Constraints
	require.NoError(t, json.Unmarshal([]byte(c.String()), &back))
	assert.Equal(t, c, back)
	assert.False(t, back.SingleDigitSum.Set)
	assert.Equal(t, Target{Value: 41, Set: true}, back.TwoDigitSum)
}
