package source

import (
	"errors"
	"fmt"
	"io"
	"strings"

	"go.uber.org/zap"

	"github.com/raaihank/numsieve/internal/filter"
)

// ErrMalformedRow marks a row that produced no valid candidate. It is counted
// and skipped, never returned from NextBatch.
var ErrMalformedRow = errors.New("malformed row")

// Policy selects how a raw cell is normalized into a candidate.
type Policy string

const (
	// Strict accepts a cell only if, after trimming, it is exactly 10 digits.
	Strict Policy = "strict"
	// Permissive strips every non-digit and accepts exactly 10 remaining digits.
	Permissive Policy = "permissive"
)

// ParsePolicy resolves a policy name. Empty means Strict.
func ParsePolicy(s string) (Policy, error) {
	switch Policy(strings.ToLower(strings.TrimSpace(s))) {
	case "", Strict:
		return Strict, nil
	case Permissive:
		return Permissive, nil
	default:
		return "", fmt.Errorf("unknown scan policy %q (must be strict or permissive)", s)
	}
}

// NormalizeStrict trims cell and accepts it only if it is exactly 10 digits.
func NormalizeStrict(cell string) (string, bool) {
	s := strings.TrimSpace(cell)
	if len(s) != filter.CandidateLength {
		return "", false
	}
	for i := 0; i < len(s); i++ {
		if s[i] < '0' || s[i] > '9' {
			return "", false
		}
	}
	return s, true
}

// NormalizePermissive drops every non-digit and accepts exactly 10 digits.
func NormalizePermissive(cell string) (string, bool) {
	var b [filter.CandidateLength]byte
	n := 0
	for i := 0; i < len(cell); i++ {
		c := cell[i]
		if c < '0' || c > '9' {
			continue
		}
		if n == len(b) {
			return "", false
		}
		b[n] = c
		n++
	}
	if n != filter.CandidateLength {
		return "", false
	}
	return string(b[:]), true
}

// Normalizer returns the normalization function for p.
func (p Policy) Normalizer() func(string) (string, bool) {
	if p == Permissive {
		return NormalizePermissive
	}
	return NormalizeStrict
}

// ScanOptions configures a Scanner.
type ScanOptions struct {
	Policy Policy
	// Column restricts scanning to one zero-based cell per row. -1 scans
	// every cell.
	Column int
}

// ScanStats counts what the scanner has seen so far.
type ScanStats struct {
	Rows          int64 `json:"rows"`
	Cells         int64 `json:"cells"`
	Accepted      int64 `json:"accepted"`
	RejectedCells int64 `json:"rejected_cells"`
	MalformedRows int64 `json:"malformed_rows"`
}

// Scanner turns rows from a RowReader into candidates.
type Scanner struct {
	rows      RowReader
	column    int
	normalize func(string) (string, bool)
	logger    *zap.Logger

	stats ScanStats
	done  bool
}

// NewScanner wraps rows. The scanner owns rows and closes it on Close.
func NewScanner(rows RowReader, opts ScanOptions, logger *zap.Logger) *Scanner {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Scanner{
		rows:      rows,
		column:    opts.Column,
		normalize: opts.Policy.Normalizer(),
		logger:    logger,
	}
}

// NextBatch reads whole rows, so a batch can overshoot max by the cells of
// its last row.
func (s *Scanner) NextBatch(dst []string, max int) ([]string, error) {
	if s.done {
		return dst, io.EOF
	}
	start := len(dst)
	for len(dst)-start < max {
		row, err := s.rows.ReadRow()
		if err == io.EOF {
			s.done = true
			return dst, io.EOF
		}
		if err != nil {
			s.done = true
			return dst, err
		}
		s.stats.Rows++
		before := len(dst)
		dst = s.scanRow(dst, row)
		if len(dst) == before {
			s.stats.MalformedRows++
			s.logger.Debug("Skipping row",
				zap.Int64("row", s.stats.Rows),
				zap.Error(ErrMalformedRow))
		}
	}
	return dst, nil
}

func (s *Scanner) scanRow(dst []string, row []any) []string {
	if s.column >= 0 {
		if s.column >= len(row) {
			return dst
		}
		row = row[s.column : s.column+1]
	}
	for _, cell := range row {
		s.stats.Cells++
		if n, ok := s.normalize(CellString(cell)); ok {
			s.stats.Accepted++
			dst = append(dst, n)
		} else {
			s.stats.RejectedCells++
		}
	}
	return dst
}

// Stats returns the counters accumulated so far.
func (s *Scanner) Stats() ScanStats { return s.stats }

// Progress reports the underlying reader's progress when it knows it, and
// rows read against an unknown total otherwise.
func (s *Scanner) Progress() (int64, int64) {
	if p, ok := s.rows.(progressReporter); ok {
		return p.Progress()
	}
	return s.stats.Rows, -1
}

func (s *Scanner) Close() error { return s.rows.Close() }
