package source

import (
	"fmt"
	"io"

	"github.com/xuri/excelize/v2"
)

// xlsxRows serves the first worksheet of a workbook. Spreadsheets are small
// enough to load whole, which also gives an exact row total.
type xlsxRows struct {
	rows [][]string
	next int
}

func openXLSX(path string) (*xlsxRows, error) {
	f, err := excelize.OpenFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open workbook: %w", err)
	}
	defer f.Close()

	sheets := f.GetSheetList()
	if len(sheets) == 0 {
		return &xlsxRows{}, nil
	}
	rows, err := f.GetRows(sheets[0], excelize.Options{RawCellValue: true})
	if err != nil {
		return nil, fmt.Errorf("failed to read sheet %q: %w", sheets[0], err)
	}
	return &xlsxRows{rows: rows}, nil
}

func (x *xlsxRows) ReadRow() ([]any, error) {
	if x.next >= len(x.rows) {
		return nil, io.EOF
	}
	record := x.rows[x.next]
	x.next++
	row := make([]any, len(record))
	for i, cell := range record {
		row[i] = cell
	}
	return row, nil
}

func (x *xlsxRows) Progress() (int64, int64) { return int64(x.next), int64(len(x.rows)) }

func (x *xlsxRows) Close() error { return nil }
