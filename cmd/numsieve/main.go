package main

import (
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"github.com/raaihank/numsieve/internal/config"
	"github.com/raaihank/numsieve/internal/logger"
	"github.com/raaihank/numsieve/internal/pipeline"
	"github.com/raaihank/numsieve/internal/service"
)

var (
	version = "0.1.0"
	commit  = "dev"
	date    = "unknown"
)

var (
	configPath string
	logLevel   string

	cfg *config.Config
	log *logger.Logger
)

var rootCmd = &cobra.Command{
	Use:   "numsieve",
	Short: "Enumerate or filter 10-digit numbers against digit constraints",
	Long: `numsieve finds 10-digit numbers matching a prefix, a suffix, excluded
digits, digit-sum targets and a letter pattern.

It either enumerates every candidate consistent with the prefix and suffix
(generate) or filters the numbers found in an uploaded CSV, TSV, JSON lines,
Parquet or XLSX file (scan). Matches are shown as a table or exported as CSV.`,
	Version:      fmt.Sprintf("%s (commit: %s, built: %s)", version, commit, date),
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		var err error
		cfg, err = config.Load(configPath)
		if err != nil {
			return fmt.Errorf("failed to load configuration: %w", err)
		}
		if logLevel != "" {
			cfg.Logging.Level = logLevel
		}
		out := io.Writer(os.Stderr)
		if cmd.Name() == "serve" {
			out = os.Stdout
		}
		log, err = newLogger(cfg, out)
		if err != nil {
			return fmt.Errorf("failed to initialize logger: %w", err)
		}
		return nil
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		if log != nil {
			_ = log.Sync()
			_ = log.Close()
		}
	},
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "", "path to configuration file")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "override logging.level (debug, info, warn, error)")

	rootCmd.AddCommand(generateCmd, scanCmd, serveCmd, historyCmd, statusCmd, configCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func newLogger(cfg *config.Config, out io.Writer) (*logger.Logger, error) {
	loggerConfig := logger.Config{
		Level:  cfg.Logging.Level,
		Format: cfg.Logging.Format,
		Output: out,
	}
	if cfg.Logging.File.Enabled {
		loggerConfig.File = &logger.FileConfig{
			Enabled:    true,
			Path:       cfg.Logging.File.Path,
			MaxSize:    cfg.Logging.File.MaxSize,
			MaxAge:     cfg.Logging.File.MaxAge,
			MaxBackups: cfg.Logging.File.MaxBackups,
			Compress:   cfg.Logging.File.Compress,
		}
	}
	return logger.New(loggerConfig)
}

// serviceConfig maps the file configuration onto run defaults
func serviceConfig(cfg *config.Config) service.Config {
	return service.Config{
		Pipeline: pipeline.Config{
			BatchSize:     cfg.Pipeline.BatchSize,
			Workers:       cfg.Pipeline.Workers,
			ProgressEvery: cfg.Pipeline.ProgressEvery,
		},
		DefaultStrategy:  cfg.Pattern.Strategy,
		DefaultChunkSize: cfg.Pattern.ChunkSize,
		DefaultPolicy:    cfg.Scan.Policy,
		DefaultColumn:    cfg.Scan.Column,
		IncludeMetrics:   cfg.Export.IncludeMetrics,
		MaxActive:        cfg.Runs.MaxActive,
		Retention:        cfg.Runs.Retention,
		MaxMatches:       cfg.Runs.MaxMatches,
	}
}
