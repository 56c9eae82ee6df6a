package source

import (
	"bufio"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"sort"
)

// jsonRows reads a stream of JSON values. An array is a row of cells, an
// object contributes its "number" field if present and otherwise all of its
// values in key order, and a scalar is a one-cell row.
type jsonRows struct {
	file    *os.File
	count   *countingReader
	size    int64
	decoder *json.Decoder
}

func openJSONLines(path string) (*jsonRows, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open JSON file: %w", err)
	}
	info, err := file.Stat()
	if err != nil {
		file.Close()
		return nil, fmt.Errorf("failed to stat JSON file: %w", err)
	}
	count := &countingReader{r: file}
	decoder := json.NewDecoder(bufio.NewReader(count))
	decoder.UseNumber()
	return &jsonRows{file: file, count: count, size: info.Size(), decoder: decoder}, nil
}

func (j *jsonRows) ReadRow() ([]any, error) {
	var v any
	if err := j.decoder.Decode(&v); err != nil {
		if err == io.EOF {
			return nil, io.EOF
		}
		return nil, fmt.Errorf("failed to decode JSON row: %w", err)
	}
	switch x := v.(type) {
	case []any:
		return x, nil
	case map[string]any:
		if n, ok := x["number"]; ok {
			return []any{n}, nil
		}
		keys := make([]string, 0, len(x))
		for k := range x {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		row := make([]any, 0, len(keys))
		for _, k := range keys {
			row = append(row, x[k])
		}
		return row, nil
	default:
		return []any{x}, nil
	}
}

func (j *jsonRows) Progress() (int64, int64) { return j.count.n, j.size }

func (j *jsonRows) Close() error { return j.file.Close() }
