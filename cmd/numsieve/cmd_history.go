package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strconv"
	"time"

	"github.com/olekukonko/tablewriter"
	"github.com/spf13/cobra"

	"github.com/raaihank/numsieve/internal/cache"
	"github.com/raaihank/numsieve/internal/history"
)

const queryTimeout = 10 * time.Second

var (
	historyLimit int
	statusJSON   bool
)

var historyCmd = &cobra.Command{
	Use:   "history",
	Short: "List recent runs from the PostgreSQL run journal",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		journal, err := history.NewJournal(historyConfig(cfg.History), log.WithComponent("history").Logger)
		if err != nil {
			return err
		}
		defer journal.Close()

		ctx, cancel := context.WithTimeout(cmd.Context(), queryTimeout)
		defer cancel()

		runs, err := journal.Recent(ctx, historyLimit)
		if err != nil {
			return err
		}
		stats, err := journal.GetStats(ctx)
		if err != nil {
			return err
		}

		out := cmd.OutOrStdout()
		renderHistory(out, runs)
		bold.Fprintf(out, "%d runs: %d completed, %d cancelled, %d failed; %d matches; avg %s\n",
			stats.TotalRuns, stats.CompletedRuns, stats.CancelledRuns, stats.FailedRuns, stats.TotalMatches,
			(time.Duration(stats.AvgDurationMs) * time.Millisecond).Round(time.Millisecond))
		return nil
	},
}

var statusCmd = &cobra.Command{
	Use:   "status [run-id]",
	Short: "Show the latest snapshot of a run from the Redis status board",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		board, err := cache.NewStatusBoard(&cache.Config{
			Addr:      cfg.Redis.Addr,
			Password:  cfg.Redis.Password,
			DB:        cfg.Redis.DB,
			PoolSize:  cfg.Redis.PoolSize,
			TTL:       cfg.Redis.TTL,
			KeyPrefix: cfg.Redis.Prefix,
		}, log.WithComponent("cache").Logger)
		if err != nil {
			return err
		}
		defer board.Close()

		ctx, cancel := context.WithTimeout(cmd.Context(), queryTimeout)
		defer cancel()

		status, err := board.Get(ctx, args[0])
		if errors.Is(err, cache.ErrNotFound) {
			return fmt.Errorf("no status for run %s (unknown or expired)", args[0])
		}
		if err != nil {
			return err
		}

		out := cmd.OutOrStdout()
		if statusJSON {
			enc := json.NewEncoder(out)
			enc.SetIndent("", "  ")
			return enc.Encode(status)
		}
		printStatus(out, status)
		return nil
	},
}

func init() {
	historyCmd.Flags().IntVarP(&historyLimit, "limit", "n", 20, "number of runs to list")
	statusCmd.Flags().BoolVar(&statusJSON, "json", false, "print the raw snapshot as JSON")
}

func renderHistory(w io.Writer, runs []*history.RunRecord) {
	table := tablewriter.NewWriter(w)
	table.SetHeader([]string{"Run", "Mode", "State", "Processed", "Matches", "Started", "Duration", "Tag"})
	for _, r := range runs {
		duration := "-"
		if r.FinishedAt != nil {
			duration = r.FinishedAt.Sub(r.StartedAt).Round(time.Millisecond).String()
		}
		table.Append([]string{
			shortID(r.ID),
			r.Mode,
			r.State,
			strconv.FormatInt(r.Processed, 10),
			strconv.FormatInt(r.Matches, 10),
			r.StartedAt.Local().Format(time.DateTime),
			duration,
			r.Tag,
		})
	}
	table.Render()
}

func printStatus(w io.Writer, s *cache.RunStatus) {
	p := s.Progress
	bold.Fprintf(w, "Run %s ", s.ID)
	stateColor(p.State).Fprintln(w, p.State.String())
	fmt.Fprintf(w, "  mode:      %s\n", s.Mode)
	fmt.Fprintf(w, "  tag:       %s\n", s.Tag)
	fmt.Fprintf(w, "  processed: %d  matches: %d  batches: %d\n", p.Processed, p.Matches, p.Batches)
	if p.Total > 0 {
		fmt.Fprintf(w, "  progress:  %.1f%%\n", p.Fraction*100)
	}
	fmt.Fprintf(w, "  updated:   %s\n", s.UpdatedAt.Local().Format(time.DateTime))
	if s.Error != "" {
		failure.Fprintf(w, "Error: %s\n", s.Error)
	}
}

func shortID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}
