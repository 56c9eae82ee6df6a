package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/raaihank/numsieve/internal/filter"
	"github.com/raaihank/numsieve/internal/service"
)

const progressInterval = 500 * time.Millisecond

// runFlags holds the flags shared by generate and scan
type runFlags struct {
	prefix    string
	suffix    string
	exclude   string
	sds       string
	dds       string
	pattern   string
	strategy  string
	chunkSize int

	policy string
	column int

	output  string
	metrics bool
	outDir  string
	limit   int
	quiet   bool
}

var (
	generateFlags runFlags
	scanFlags     runFlags
)

var generateCmd = &cobra.Command{
	Use:   "generate",
	Short: "Enumerate every 10-digit number matching the constraints",
	Long: `Enumerates the 10-digit candidates consistent with --prefix and --suffix in
ascending order and keeps those that pass every other constraint.

Example:
  numsieve generate --prefix 98 --suffix 21 --sds 5 --exclude 0`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		req := generateFlags.request(cmd)
		return executeRun(cmd, &generateFlags, func(ctx context.Context, m *service.Manager) (*service.Info, error) {
			return m.StartGenerate(ctx, req)
		})
	},
}

var scanCmd = &cobra.Command{
	Use:   "scan [file]",
	Short: "Filter the numbers found in a CSV, TSV, JSON lines, Parquet or XLSX file",
	Long: `Reads every row of the file, normalizes each cell to a 10-digit candidate
and keeps those that pass the constraints. Cells that cannot be normalized are
counted as malformed and skipped.

Example:
  numsieve scan contacts.xlsx --policy permissive --column 2 --prefix 98`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		req := scanFlags.request(cmd)
		upload := service.Upload{Path: args[0], Name: filepath.Base(args[0])}
		return executeRun(cmd, &scanFlags, func(ctx context.Context, m *service.Manager) (*service.Info, error) {
			return m.StartScan(ctx, req, upload)
		})
	},
}

func init() {
	addConstraintFlags(generateCmd, &generateFlags)
	addConstraintFlags(scanCmd, &scanFlags)

	scanCmd.Flags().StringVar(&scanFlags.policy, "policy", "", "cell normalization: strict or permissive (default from scan.policy)")
	scanCmd.Flags().IntVar(&scanFlags.column, "column", -1, "only read this 0-based column; -1 reads every cell")
}

func addConstraintFlags(cmd *cobra.Command, f *runFlags) {
	fs := cmd.Flags()
	fs.StringVar(&f.prefix, "prefix", "", "required leading digits")
	fs.StringVar(&f.suffix, "suffix", "", "required trailing digits")
	fs.StringVar(&f.exclude, "exclude", "", "digits that must not appear")
	fs.StringVar(&f.sds, "sds", "", "single digit sum (digital root) target, 0-9")
	fs.StringVar(&f.dds, "dds", "", "two digit sum (sum of all digits) target")
	fs.StringVar(&f.pattern, "pattern", "", "10-char pattern; digit chunks are anchors, a repeated label chunk must repeat its first chunk (windowed) or letters group positions (multiset)")
	fs.StringVar(&f.strategy, "strategy", "", "pattern strategy: windowed or multiset (default from pattern.strategy)")
	fs.IntVar(&f.chunkSize, "chunk-size", 0, "windowed chunk length (default from pattern.chunk_size)")

	fs.StringVarP(&f.output, "output", "o", "collect", "collect (print a table) or export (write a CSV file)")
	fs.BoolVar(&f.metrics, "metrics", true, "include digit sums in the export")
	fs.StringVar(&f.outDir, "out-dir", "", "directory for exported files (default from export.dir)")
	fs.IntVar(&f.limit, "limit", 50, "rows to print for collect runs; 0 prints all")
	fs.BoolVarP(&f.quiet, "quiet", "q", false, "do not print progress")
}

// request converts the flags to a run request. Flags left at their default
// fall back to the configuration.
func (f *runFlags) request(cmd *cobra.Command) service.Request {
	req := service.Request{
		Constraints: filter.Input{
			Prefix:         f.prefix,
			Suffix:         f.suffix,
			Exclude:        f.exclude,
			SingleDigitSum: f.sds,
			TwoDigitSum:    f.dds,
			Pattern:        f.pattern,
			Strategy:       f.strategy,
			ChunkSize:      f.chunkSize,
		},
		Output: service.OutputKind(f.output),
		Policy: f.policy,
	}
	if cmd.Flags().Changed("metrics") {
		metrics := f.metrics
		req.IncludeMetrics = &metrics
	}
	if cmd.Flags().Changed("column") {
		column := f.column
		req.Column = &column
	}
	return req
}

func executeRun(cmd *cobra.Command, f *runFlags, start func(context.Context, *service.Manager) (*service.Info, error)) error {
	m := service.NewManager(serviceConfig(cfg), log.Logger)
	defer func() {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := m.Shutdown(ctx); err != nil {
			log.Warn("Run did not stop in time", zap.Error(err))
		}
	}()

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	info, err := start(ctx, m)
	if err != nil {
		return err
	}

	progress := cmd.ErrOrStderr()
	if f.quiet {
		progress = nil
	}
	final, err := waitForRun(ctx, m, info.ID, progress)
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	printSummary(out, final)

	switch final.Output {
	case service.OutputExport:
		dir := f.outDir
		if dir == "" {
			dir = cfg.Export.Dir
		}
		export, err := m.Export(final.ID)
		if err != nil {
			return err
		}
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("failed to create export directory: %w", err)
		}
		path := filepath.Join(dir, export.Filename)
		if err := os.WriteFile(path, export.Data, 0o644); err != nil {
			return fmt.Errorf("failed to write export: %w", err)
		}
		printExported(out, path, final.Progress.Matches)
	default:
		records, total, err := m.Matches(final.ID, 0, f.limit)
		if err != nil {
			return err
		}
		if total > 0 {
			renderMatches(out, records, total)
		}
	}

	if final.Error != "" {
		return fmt.Errorf("run failed: %s", final.Error)
	}
	return nil
}

// waitForRun blocks until run id is terminal. The first interrupt cancels the
// run; its partial matches are still reported.
func waitForRun(ctx context.Context, m *service.Manager, id string, progress io.Writer) (*service.Info, error) {
	type result struct {
		info *service.Info
		err  error
	}
	done := make(chan result, 1)
	go func() {
		info, err := m.Wait(context.Background(), id)
		done <- result{info, err}
	}()

	ticker := time.NewTicker(progressInterval)
	defer ticker.Stop()

	interrupt := ctx.Done()
	for {
		select {
		case res := <-done:
			if progress != nil {
				fmt.Fprintln(progress)
			}
			return res.info, res.err
		case <-interrupt:
			interrupt = nil
			if err := m.Cancel(id); err != nil {
				return nil, err
			}
			printCancelling(progress)
		case <-ticker.C:
			if progress == nil {
				continue
			}
			if info, err := m.Get(id); err == nil {
				printProgress(progress, info)
			}
		}
	}
}
