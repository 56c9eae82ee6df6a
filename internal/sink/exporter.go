package sink

import (
	"bytes"
	"strconv"
	"sync"

	"github.com/google/uuid"

	"github.com/raaihank/numsieve/internal/filter"
)

// MetricsHeader heads an export that carries digit sums.
const MetricsHeader = "Number,Single Digit Sum,Two Digit Sum"

const (
	csvContentType = "text/csv; charset=utf-8"
	scanFilePrefix = "processed_numbers--"

	// maxTagLen keeps prefixed file names well under the usual 255 byte
	// name limit.
	maxTagLen = 160
)

// Exporter renders matches as newline-terminated CSV lines.
type Exporter struct {
	mu       sync.Mutex
	buf      bytes.Buffer
	metrics  bool
	filename string
	count    int
}

// NewExporter seeds the buffer with its header. With metrics the header is
// MetricsHeader; without, it is the constraint tag so the file stays
// self-describing.
func NewExporter(c filter.Constraints, mode filter.Mode, includeMetrics bool) *Exporter {
	e := &Exporter{
		metrics:  includeMetrics,
		filename: Filename(c, mode),
	}
	if includeMetrics {
		e.buf.WriteString(MetricsHeader)
	} else {
		e.buf.WriteString(c.Tag())
	}
	e.buf.WriteByte('\n')
	return e
}

// Filename derives the download name from the constraint tag. Distinct
// constraint sets never share a name. Tags longer than maxTagLen are cut and
// suffixed with a name-based UUID of the full tag; the export header still
// carries the whole tag.
func Filename(c filter.Constraints, mode filter.Mode) string {
	name := shortTag(c.Tag()) + ".csv"
	if mode == filter.ModeScan {
		name = scanFilePrefix + name
	}
	return name
}

func shortTag(tag string) string {
	if len(tag) <= maxTagLen {
		return tag
	}
	sum := uuid.NewSHA1(uuid.NameSpaceURL, []byte(tag)).String()
	return tag[:maxTagLen-len(sum)-3] + "--h" + sum
}

func (e *Exporter) Accept(records ...MatchRecord) {
	e.mu.Lock()
	defer e.mu.Unlock()

	var line []byte
	for _, r := range records {
		line = append(line[:0], r.Number...)
		if e.metrics {
			line = append(line, ',')
			line = strconv.AppendInt(line, int64(r.SingleDigitSum), 10)
			line = append(line, ',')
			line = strconv.AppendInt(line, int64(r.TwoDigitSum), 10)
		}
		line = append(line, '\n')
		e.buf.Write(line)
		e.count++
	}
}

func (e *Exporter) Len() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.count
}

func (e *Exporter) Filename() string { return e.filename }

// Finalize returns a copy of the text so far; the exporter stays usable.
func (e *Exporter) Finalize() Output {
	e.mu.Lock()
	defer e.mu.Unlock()
	return Output{
		Data:        bytes.Clone(e.buf.Bytes()),
		Filename:    e.filename,
		ContentType: csvContentType,
	}
}

// Render builds an export from records that were collected for display.
func Render(records []MatchRecord, c filter.Constraints, mode filter.Mode, includeMetrics bool) Output {
	e := NewExporter(c, mode, includeMetrics)
	e.Accept(records...)
	return e.Finalize()
}
