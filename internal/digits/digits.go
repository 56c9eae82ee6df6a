// Package digits computes the digit metrics shown next to every match.
package digits

// DigitSum returns the one-pass sum of the decimal digits in s.
// Bytes that are not ASCII digits contribute nothing.
func DigitSum(s string) int {
	sum := 0
	for i := 0; i < len(s); i++ {
		c := s[i]
		if c >= '0' && c <= '9' {
			sum += int(c - '0')
		}
	}
	return sum
}

// DigitalRoot sums the digits of s and keeps summing the digits of the
// result until a single digit (0-9) remains.
func DigitalRoot(s string) int {
	return reduce(DigitSum(s))
}

func reduce(n int) int {
	for n >= 10 {
		n = n/10 + n%10
	}
	return n
}
