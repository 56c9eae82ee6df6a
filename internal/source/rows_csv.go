package source

import (
	"bufio"
	"encoding/csv"
	"errors"
	"fmt"
	"os"
)

// delimitedRows reads CSV/TSV records; each field is one cell.
type delimitedRows struct {
	file   *os.File
	count  *countingReader
	size   int64
	reader *csv.Reader
}

func openDelimited(path string, comma rune) (*delimitedRows, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open delimited file: %w", err)
	}
	info, err := file.Stat()
	if err != nil {
		file.Close()
		return nil, fmt.Errorf("failed to stat delimited file: %w", err)
	}

	count := &countingReader{r: file}
	reader := csv.NewReader(bufio.NewReader(count))
	reader.Comma = comma
	reader.FieldsPerRecord = -1
	reader.LazyQuotes = true
	reader.TrimLeadingSpace = true

	return &delimitedRows{file: file, count: count, size: info.Size(), reader: reader}, nil
}

func (d *delimitedRows) ReadRow() ([]any, error) {
	record, err := d.reader.Read()
	if err != nil {
		var parseErr *csv.ParseError
		if errors.As(err, &parseErr) {
			// a broken record is a malformed row, not a broken file
			return []any{}, nil
		}
		return nil, err
	}
	row := make([]any, len(record))
	for i, field := range record {
		row[i] = field
	}
	return row, nil
}

// Progress is byte based; the buffered reader runs slightly ahead of the
// records actually returned.
func (d *delimitedRows) Progress() (int64, int64) { return d.count.n, d.size }

func (d *delimitedRows) Close() error { return d.file.Close() }
