package source

import (
	"fmt"
	"io"
	"os"

	"github.com/segmentio/parquet-go"
)

const parquetReadAhead = 256

// parquetRows walks every row group of a parquet file; each leaf value of a
// row is one cell.
type parquetRows struct {
	file   *os.File
	pf     *parquet.File
	groups []parquet.RowGroup
	group  int
	rows   parquet.Rows

	buf     []parquet.Row
	pending [][]any
	read    int64
	total   int64
}

func openParquet(path string) (*parquetRows, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open Parquet file: %w", err)
	}
	info, err := file.Stat()
	if err != nil {
		file.Close()
		return nil, fmt.Errorf("failed to stat Parquet file: %w", err)
	}
	pf, err := parquet.OpenFile(file, info.Size())
	if err != nil {
		file.Close()
		return nil, fmt.Errorf("failed to read Parquet metadata: %w", err)
	}
	return &parquetRows{
		file:   file,
		pf:     pf,
		groups: pf.RowGroups(),
		buf:    make([]parquet.Row, parquetReadAhead),
		total:  pf.NumRows(),
	}, nil
}

func (p *parquetRows) ReadRow() ([]any, error) {
	for len(p.pending) == 0 {
		if err := p.fill(); err != nil {
			return nil, err
		}
	}
	row := p.pending[0]
	p.pending = p.pending[1:]
	p.read++
	return row, nil
}

func (p *parquetRows) fill() error {
	if p.rows == nil {
		if p.group >= len(p.groups) {
			return io.EOF
		}
		p.rows = p.groups[p.group].Rows()
		p.group++
	}
	n, err := p.rows.ReadRows(p.buf)
	for _, row := range p.buf[:n] {
		cells := make([]any, 0, len(row))
		for _, v := range row {
			cells = append(cells, parquetCell(v))
		}
		p.pending = append(p.pending, cells)
	}
	if err == io.EOF {
		closeErr := p.rows.Close()
		p.rows = nil
		return closeErr
	}
	if err != nil {
		return fmt.Errorf("failed to read Parquet rows: %w", err)
	}
	return nil
}

func parquetCell(v parquet.Value) any {
	if v.IsNull() {
		return nil
	}
	switch v.Kind() {
	case parquet.Boolean:
		return v.Boolean()
	case parquet.Int32:
		return v.Int32()
	case parquet.Int64:
		return v.Int64()
	case parquet.Float:
		return v.Float()
	case parquet.Double:
		return v.Double()
	case parquet.ByteArray, parquet.FixedLenByteArray:
		return string(v.ByteArray())
	default:
		return v.String()
	}
}

func (p *parquetRows) Progress() (int64, int64) { return p.read, p.total }

func (p *parquetRows) Close() error {
	if p.rows != nil {
		p.rows.Close()
		p.rows = nil
	}
	return p.file.Close()
}
