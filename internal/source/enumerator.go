package source

import (
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/raaihank/numsieve/internal/filter"
)

// Enumerator walks every candidate prefix + zeroPad(i, free) + suffix for
// i in [0, 10^free), in ascending order of i.
type Enumerator struct {
	prefix string
	suffix string
	free   int
	count  int64

	next int64
	buf  []byte
}

// NewEnumerator fails with an InvalidConstraint error when prefix and suffix
// leave no room inside the candidate length.
func NewEnumerator(prefix, suffix string) (*Enumerator, error) {
	free := filter.CandidateLength - len(prefix) - len(suffix)
	if free < 0 {
		return nil, &filter.ConstraintError{
			Field:  "prefix/suffix",
			Reason: fmt.Sprintf("combined length %d exceeds %d digits", len(prefix)+len(suffix), filter.CandidateLength),
		}
	}
	count := int64(1)
	for i := 0; i < free; i++ {
		count *= 10
	}
	e := &Enumerator{prefix: prefix, suffix: suffix, free: free, count: count}
	e.Reset()
	return e, nil
}

// Count is the size of the candidate space.
func (e *Enumerator) Count() int64 { return e.count }

// At returns the i-th candidate without touching the cursor.
func (e *Enumerator) At(i int64) string {
	if i < 0 || i >= e.count {
		return ""
	}
	mid := strconv.FormatInt(i, 10)
	var b strings.Builder
	b.Grow(filter.CandidateLength)
	b.WriteString(e.prefix)
	for n := len(mid); n < e.free; n++ {
		b.WriteByte('0')
	}
	if e.free > 0 {
		b.WriteString(mid)
	}
	b.WriteString(e.suffix)
	return b.String()
}

// Reset rewinds the cursor to the first candidate.
func (e *Enumerator) Reset() {
	e.next = 0
	e.buf = []byte(e.At(0))
}

func (e *Enumerator) NextBatch(dst []string, max int) ([]string, error) {
	for n := 0; n < max; n++ {
		if e.next >= e.count {
			return dst, io.EOF
		}
		dst = append(dst, string(e.buf))
		e.next++
		e.increment()
	}
	if e.next >= e.count {
		return dst, io.EOF
	}
	return dst, nil
}

// increment advances the free span of buf by one, odometer style.
func (e *Enumerator) increment() {
	lo := len(e.prefix)
	for i := lo + e.free - 1; i >= lo; i-- {
		if e.buf[i] < '9' {
			e.buf[i]++
			return
		}
		e.buf[i] = '0'
	}
}

func (e *Enumerator) Progress() (int64, int64) { return e.next, e.count }

func (e *Enumerator) Close() error { return nil }
