package source

import (
	"encoding/json"
	"fmt"
	"io"
	"math"
	"path/filepath"
	"strconv"
	"strings"
)

// RowReader is the external tabular producer consumed by a Scanner.
// ReadRow returns io.EOF at the end of input; any other error is terminal.
type RowReader interface {
	ReadRow() ([]any, error)
	Close() error
}

type progressReporter interface {
	Progress() (done, total int64)
}

// FileFormat represents supported upload formats.
type FileFormat string

const (
	FormatCSV     FileFormat = "csv"
	FormatTSV     FileFormat = "tsv"
	FormatJSON    FileFormat = "json"
	FormatParquet FileFormat = "parquet"
	FormatXLSX    FileFormat = "xlsx"
)

// DetectFileFormat detects file format from extension, defaulting to CSV.
func DetectFileFormat(filename string) FileFormat {
	switch strings.ToLower(filepath.Ext(filename)) {
	case ".tsv":
		return FormatTSV
	case ".json", ".jsonl", ".ndjson":
		return FormatJSON
	case ".parquet":
		return FormatParquet
	case ".xlsx", ".xlsm":
		return FormatXLSX
	default:
		return FormatCSV
	}
}

// OpenRows opens path with the reader matching format.
func OpenRows(path string, format FileFormat) (RowReader, error) {
	switch format {
	case FormatCSV:
		return openDelimited(path, ',')
	case FormatTSV:
		return openDelimited(path, '\t')
	case FormatJSON:
		return openJSONLines(path)
	case FormatParquet:
		return openParquet(path)
	case FormatXLSX:
		return openXLSX(path)
	default:
		return nil, fmt.Errorf("unsupported file format: %s", format)
	}
}

// CellString stringifies a raw cell. Integral floats are printed without
// exponent or fraction so spreadsheet numbers survive as digit strings.
func CellString(v any) string {
	switch x := v.(type) {
	case nil:
		return ""
	case string:
		return x
	case []byte:
		return string(x)
	case json.Number:
		if f, err := x.Float64(); err == nil && strings.ContainsAny(x.String(), "eE") {
			return formatFloat(f)
		}
		return x.String()
	case int:
		return strconv.Itoa(x)
	case int32:
		return strconv.FormatInt(int64(x), 10)
	case int64:
		return strconv.FormatInt(x, 10)
	case uint32:
		return strconv.FormatUint(uint64(x), 10)
	case uint64:
		return strconv.FormatUint(x, 10)
	case float32:
		return formatFloat(float64(x))
	case float64:
		return formatFloat(x)
	case bool:
		return strconv.FormatBool(x)
	case fmt.Stringer:
		return x.String()
	default:
		return fmt.Sprint(x)
	}
}

func formatFloat(f float64) string {
	if f == math.Trunc(f) && math.Abs(f) < 1e18 {
		return strconv.FormatInt(int64(f), 10)
	}
	return strconv.FormatFloat(f, 'f', -1, 64)
}

// SliceRows serves rows from memory.
type SliceRows struct {
	rows [][]any
	next int
}

// NewSliceRows wraps rows.
func NewSliceRows(rows [][]any) *SliceRows { return &SliceRows{rows: rows} }

func (s *SliceRows) ReadRow() ([]any, error) {
	if s.next >= len(s.rows) {
		return nil, io.EOF
	}
	row := s.rows[s.next]
	s.next++
	return row, nil
}

func (s *SliceRows) Progress() (int64, int64) { return int64(s.next), int64(len(s.rows)) }

func (s *SliceRows) Close() error { return nil }

// countingReader tracks bytes consumed for byte-based progress.
type countingReader struct {
	r io.Reader
	n int64
}

func (c *countingReader) Read(p []byte) (int, error) {
	n, err := c.r.Read(p)
	c.n += int64(n)
	return n, err
}
