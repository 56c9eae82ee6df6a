// Package sink accumulates matched numbers, either as an ordered in-memory
// list for display or as a CSV text blob for download.
package sink

import (
	"github.com/raaihank/numsieve/internal/digits"
)

// MatchRecord is produced once per accepted candidate.
type MatchRecord struct {
	Number         string `json:"number"`
	SingleDigitSum int    `json:"single_digit_sum"`
	TwoDigitSum    int    `json:"two_digit_sum"`
}

// NewRecord computes the metrics for number.
func NewRecord(number string) MatchRecord {
	return MatchRecord{
		Number:         number,
		SingleDigitSum: digits.DigitalRoot(number),
		TwoDigitSum:    digits.DigitSum(number),
	}
}

// Output is what a sink hands back when a run ends.
type Output struct {
	Records     []MatchRecord `json:"records,omitempty"`
	Data        []byte        `json:"-"`
	Filename    string        `json:"filename,omitempty"`
	ContentType string        `json:"content_type,omitempty"`
}

// Sink receives matches in encounter order. Implementations are safe for
// concurrent use; callers that care about order must serialize Accept.
type Sink interface {
	Accept(records ...MatchRecord)
	Len() int
	Finalize() Output
}
