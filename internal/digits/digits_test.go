package digits

import (
	"strconv"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestDigitSum(t *testing.T) {
	tests := []struct {
		in   string
		want int
	}{
		{"1234567890", 45},
		{"0000000000", 0},
		{"9999999999", 90},
		{"7", 7},
		{"", 0},
		{"12-34", 10},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, DigitSum(tt.in), "DigitSum(%q)", tt.in)
	}
}

func TestDigitalRoot(t *testing.T) {
	assert.Equal(t, 9, DigitalRoot("9999999999"))
	assert.Equal(t, 9, DigitalRoot("1234567890"))
	assert.Equal(t, 0, DigitalRoot("0000000000"))
	assert.Equal(t, 2, DigitalRoot("9800000021"))
	assert.Equal(t, 5, DigitalRoot("5"))
}

func TestDigitalRootRange(t *testing.T) {
	for _, s := range []string{"1", "19", "99999", "9876543210", "1000000001", "5555555555"} {
		r := DigitalRoot(s)
		assert.GreaterOrEqual(t, r, 0)
		assert.LessOrEqual(t, r, 9)
		// reapplying to its own result is a no-op
		assert.Equal(t, r, DigitalRoot(strconv.Itoa(r)), "idempotence for %q", s)
	}
}
