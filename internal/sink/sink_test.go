package sink

import (
	"strings"
	"sync"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/raaihank/numsieve/internal/filter"
)

func constraints(t *testing.T, in filter.Input) filter.Constraints {
	t.Helper()
	c, err := filter.Parse(in)
	require.NoError(t, err)
	return c
}

func TestNewRecord(t *testing.T) {
	assert.Equal(t, MatchRecord{Number: "9800000021", SingleDigitSum: 2, TwoDigitSum: 20}, NewRecord("9800000021"))
	assert.Equal(t, MatchRecord{Number: "1234567890", SingleDigitSum: 9, TwoDigitSum: 45}, NewRecord("1234567890"))
}

func TestCollector(t *testing.T) {
	c := NewCollector()
	c.Accept(NewRecord("9800000021"), NewRecord("9800000121"))
	c.Accept(NewRecord("9800000221"))

	want := []MatchRecord{NewRecord("9800000021"), NewRecord("9800000121"), NewRecord("9800000221")}
	out := c.Finalize()
	if diff := cmp.Diff(want, out.Records); diff != "" {
		t.Errorf("records mismatch (-want +got):\n%s", diff)
	}
	assert.Equal(t, 3, c.Len())

	t.Run("Page", func(t *testing.T) {
		assert.Equal(t, want[1:2], c.Page(1, 1))
		assert.Equal(t, want[1:], c.Page(1, 0))
		assert.Equal(t, want, c.Page(-4, 10))
		assert.Empty(t, c.Page(3, 10))
	})

	t.Run("FinalizeIsACopy", func(t *testing.T) {
		out := c.Finalize()
		out.Records[0].Number = "0000000000"
		assert.Equal(t, "9800000021", c.Page(0, 1)[0].Number)
	})
}

func TestCollectorConcurrentAccept(t *testing.T) {
	c := NewCollector()
	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 100; j++ {
				c.Accept(NewRecord("9999999999"))
			}
		}()
	}
	wg.Wait()
	assert.Equal(t, 800, c.Len())
}

func TestExporterWithMetrics(t *testing.T) {
	c := constraints(t, filter.Input{Prefix: "98", Suffix: "21"})
	e := NewExporter(c, filter.ModeGenerate, true)
	e.Accept(NewRecord("9800000021"), NewRecord("9812345621"))

	out := e.Finalize()
	assert.Equal(t, "Number,Single Digit Sum,Two Digit Sum\n9800000021,2,20\n9812345621,5,41\n", string(out.Data))
	assert.Equal(t, "st98-----end21--sds--dds--nnn.csv", out.Filename)
	assert.Equal(t, "text/csv; charset=utf-8", out.ContentType)
	assert.Equal(t, 2, e.Len())
}

func TestExporterTagHeader(t *testing.T) {
	c := constraints(t, filter.Input{Prefix: "98", Suffix: "21", SingleDigitSum: "5", Exclude: "4"})
	e := NewExporter(c, filter.ModeGenerate, false)
	e.Accept(NewRecord("9800000221"))

	lines := strings.Split(strings.TrimSuffix(string(e.Finalize().Data), "\n"), "\n")
	assert.Equal(t, []string{"st98-----end21--sds5--dds--nnn4", "9800000221"}, lines)
}

func TestExporterEmpty(t *testing.T) {
	e := NewExporter(filter.Constraints{}, filter.ModeGenerate, true)
	assert.Equal(t, MetricsHeader+"\n", string(e.Finalize().Data))
	assert.Zero(t, e.Len())
}

func TestFilename(t *testing.T) {
	a := constraints(t, filter.Input{Prefix: "98", Pattern: "AABBCCDDEE"})
	b := constraints(t, filter.Input{Prefix: "98", Pattern: "AABBCCDDEE", Strategy: "multiset"})
	c := constraints(t, filter.Input{Prefix: "9", Suffix: "8"})
	d := constraints(t, filter.Input{Prefix: "98"})

	names := map[string]bool{}
	for _, cs := range []filter.Constraints{a, b, c, d} {
		names[Filename(cs, filter.ModeGenerate)] = true
	}
	assert.Len(t, names, 4)

	assert.True(t, strings.HasPrefix(Filename(d, filter.ModeScan), "processed_numbers--st98"))
	assert.True(t, strings.HasSuffix(Filename(d, filter.ModeScan), ".csv"))
}

func TestFilenameLongPattern(t *testing.T) {
	long := strings.Repeat("ab/", 120)
	a := constraints(t, filter.Input{Prefix: "98", Pattern: long})
	b := constraints(t, filter.Input{Prefix: "98", Pattern: long + "c"})

	nameA := Filename(a, filter.ModeScan)
	nameB := Filename(b, filter.ModeScan)
	assert.LessOrEqual(t, len(nameA), 255)
	assert.LessOrEqual(t, len(nameB), 255)
	assert.NotEqual(t, nameA, nameB)
	assert.Equal(t, nameA, Filename(a, filter.ModeScan))
	assert.True(t, strings.HasPrefix(nameA, "processed_numbers--st98-----end"))
	assert.NotContains(t, nameA, "/")

	e := NewExporter(a, filter.ModeScan, false)
	header, _, _ := strings.Cut(string(e.Finalize().Data), "\n")
	assert.Equal(t, a.Tag(), header)
	assert.Equal(t, nameA, e.Filename())
}

func TestRender(t *testing.T) {
	c := constraints(t, filter.Input{Suffix: "21"})
	out := Render([]MatchRecord{NewRecord("9800000021")}, c, filter.ModeScan, false)
	assert.Equal(t, "st-----end21--sds--dds--nnn\n9800000021\n", string(out.Data))
	assert.Equal(t, "processed_numbers--st-----end21--sds--dds--nnn.csv", out.Filename)
}
