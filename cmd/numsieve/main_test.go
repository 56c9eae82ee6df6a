package main

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/fatih/color"
	"github.com/spf13/cobra"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/raaihank/numsieve/internal/filter"
	"github.com/raaihank/numsieve/internal/pipeline"
	"github.com/raaihank/numsieve/internal/service"
	"github.com/raaihank/numsieve/internal/sink"
)

func init() {
	color.NoColor = true
}

func writeConfig(t *testing.T) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "numsieve.yaml")
	require.NoError(t, os.WriteFile(path, []byte("logging:\n  level: error\npipeline:\n  batch_size: 100\n"), 0o644))
	return path
}

func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	var out bytes.Buffer
	rootCmd.SetOut(&out)
	rootCmd.SetErr(&out)
	rootCmd.SetArgs(args)
	err := rootCmd.Execute()
	return out.String(), err
}

func TestGenerateCommand(t *testing.T) {
	out, err := execute(t, "generate", "--config", writeConfig(t), "--prefix", "98765432", "--suffix", "1", "--limit", "3", "--quiet")
	require.NoError(t, err)

	assert.Contains(t, out, "completed")
	assert.Contains(t, out, "matches:   10")
	assert.Contains(t, out, "SINGLE DIGIT SUM")
	assert.Contains(t, out, "9876543201")
	assert.NotContains(t, out, "9876543241")
	assert.Contains(t, out, "showing 3 of 10 matches")
}

func TestScanCommandExports(t *testing.T) {
	dir := t.TempDir()
	input := filepath.Join(dir, "numbers.csv")
	require.NoError(t, os.WriteFile(input, []byte("9812345621\n9800000000\nnot a number\n"), 0o644))

	out, err := execute(t, "scan", input, "--config", writeConfig(t), "--prefix", "98", "--output", "export", "--out-dir", dir, "--metrics=false", "--quiet")
	require.NoError(t, err)
	assert.Contains(t, out, "Exported 2 matches")

	data, err := os.ReadFile(filepath.Join(dir, "processed_numbers--st98-----end--sds--dds--nnn.csv"))
	require.NoError(t, err)
	assert.Equal(t, "st98-----end--sds--dds--nnn\n9812345621\n9800000000\n", string(data))
}

func TestConfigCommand(t *testing.T) {
	out, err := execute(t, "config", "--config", writeConfig(t))
	require.NoError(t, err)
	assert.Contains(t, out, "batch_size: 100")
	assert.Contains(t, out, "strategy: windowed")
}

func TestRunFlagsRequest(t *testing.T) {
	var f runFlags
	cmd := &cobra.Command{Use: "test"}
	addConstraintFlags(cmd, &f)
	cmd.Flags().IntVar(&f.column, "column", -1, "")

	require.NoError(t, cmd.ParseFlags([]string{"--prefix", "98", "--sds", "5", "--pattern", "AABBCCDDEE", "--strategy", "multiset"}))
	req := f.request(cmd)
	assert.Equal(t, filter.Input{Prefix: "98", SingleDigitSum: "5", Pattern: "AABBCCDDEE", Strategy: "multiset"}, req.Constraints)
	assert.Equal(t, service.OutputCollect, req.Output)
	assert.Nil(t, req.IncludeMetrics)
	assert.Nil(t, req.Column)

	require.NoError(t, cmd.ParseFlags([]string{"--metrics=false", "--column", "2"}))
	req = f.request(cmd)
	require.NotNil(t, req.IncludeMetrics)
	assert.False(t, *req.IncludeMetrics)
	require.NotNil(t, req.Column)
	assert.Equal(t, 2, *req.Column)
}

func TestPatternFlagUsage(t *testing.T) {
	var f runFlags
	cmd := &cobra.Command{Use: "test"}
	addConstraintFlags(cmd, &f)

	usage := cmd.Flags().Lookup("pattern").Usage
	assert.NotContains(t, usage, "equal digits")
	assert.Contains(t, usage, "anchors")
	assert.Contains(t, usage, "windowed")
	assert.Contains(t, usage, "multiset")
}

func TestPrintSummaryNoResults(t *testing.T) {
	var buf bytes.Buffer
	printSummary(&buf, &service.Info{
		ID:            "run-1",
		Mode:          filter.ModeGenerate,
		Source:        "enumeration",
		PatternUsable: true,
		Progress:      pipeline.Progress{State: pipeline.StateCompleted, Processed: 100},
	})
	assert.Contains(t, buf.String(), "Run run-1 completed")
	assert.Contains(t, buf.String(), "No results found")
}

func TestRenderMatches(t *testing.T) {
	var buf bytes.Buffer
	renderMatches(&buf, []sink.MatchRecord{sink.NewRecord("9812345621")}, 1)

	lines := strings.Split(buf.String(), "\n")
	require.GreaterOrEqual(t, len(lines), 4)
	assert.Contains(t, lines[1], "NO.")
	assert.Contains(t, buf.String(), "9812345621")
	assert.Contains(t, buf.String(), "41")
	assert.NotContains(t, buf.String(), "showing")
}
