package main

import (
	"fmt"
	"io"
	"strconv"
	"time"

	"github.com/fatih/color"
	"github.com/olekukonko/tablewriter"

	"github.com/raaihank/numsieve/internal/pipeline"
	"github.com/raaihank/numsieve/internal/service"
	"github.com/raaihank/numsieve/internal/sink"
)

var (
	bold    = color.New(color.Bold)
	success = color.New(color.FgGreen, color.Bold)
	warning = color.New(color.FgYellow)
	failure = color.New(color.FgRed, color.Bold)
	faint   = color.New(color.Faint)
)

func stateColor(s pipeline.State) *color.Color {
	switch s {
	case pipeline.StateCompleted:
		return success
	case pipeline.StateCancelled:
		return warning
	case pipeline.StateFailed:
		return failure
	default:
		return bold
	}
}

func printProgress(w io.Writer, info *service.Info) {
	p := info.Progress
	if p.Total > 0 {
		faint.Fprintf(w, "\r%5.1f%%  processed %d  matches %d  %s", p.Fraction*100, p.Processed, p.Matches, time.Duration(p.Elapsed).Round(time.Millisecond))
		return
	}
	faint.Fprintf(w, "\rprocessed %d  matches %d  %s", p.Processed, p.Matches, time.Duration(p.Elapsed).Round(time.Millisecond))
}

func printCancelling(w io.Writer) {
	if w == nil {
		return
	}
	warning.Fprintln(w, "\nInterrupted, cancelling run (partial results are kept)...")
}

func printSummary(w io.Writer, info *service.Info) {
	p := info.Progress
	bold.Fprintf(w, "Run %s ", info.ID)
	stateColor(p.State).Fprintln(w, p.State.String())
	fmt.Fprintf(w, "  mode:      %s (%s)\n", info.Mode, info.Source)
	fmt.Fprintf(w, "  tag:       %s\n", info.Tag)
	fmt.Fprintf(w, "  processed: %d in %d batches, %s\n", p.Processed, p.Batches, time.Duration(p.Elapsed).Round(time.Millisecond))
	fmt.Fprintf(w, "  matches:   %d\n", p.Matches)

	if !info.PatternUsable {
		warning.Fprintf(w, "Pattern %q is not 10 characters long, so no number can match it.\n", info.Constraints.Pattern)
	}
	if info.Error != "" {
		failure.Fprintf(w, "Error: %s\n", info.Error)
	}
	if !info.HadAnyMatch && p.State == pipeline.StateCompleted {
		warning.Fprintln(w, "No results found for these constraints.")
	}
}

func printExported(w io.Writer, path string, matches int64) {
	success.Fprintf(w, "Exported %d matches to %s\n", matches, path)
}

// renderMatches prints records as a numbered table
func renderMatches(w io.Writer, records []sink.MatchRecord, total int) {
	table := tablewriter.NewWriter(w)
	table.SetHeader([]string{"No.", "Number", "Single Digit Sum", "Two Digit Sum"})
	table.SetAlignment(tablewriter.ALIGN_RIGHT)
	for i, r := range records {
		table.Append([]string{
			strconv.Itoa(i + 1),
			r.Number,
			strconv.Itoa(r.SingleDigitSum),
			strconv.Itoa(r.TwoDigitSum),
		})
	}
	table.Render()

	if len(records) < total {
		faint.Fprintf(w, "showing %d of %d matches (use --limit 0 to print all, or --output export)\n", len(records), total)
	}
}
