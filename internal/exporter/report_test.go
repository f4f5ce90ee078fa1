package exporter

import (
	"bytes"
	"context"
	"encoding/csv"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"

	"chanalysis/internal/flow"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func f64(v float64) *float64 { return &v }

func sampleEntries() []flow.ReportEntry {
	return []flow.ReportEntry{
		{
			Symbol:    "BBCA",
			BaseScore: 82.5,
			Score:     87.5,
			Metrics: flow.Metrics{
				Symbol:           "BBCA",
				NetForeign:       1.2e9,
				Streak:           7,
				DownDays:         1,
				WeightedAvgPrice: 9050,
				LastPrice:        9200,
				PctChangeVsAvg:   1.66,
				RetailNet:        f64(-4e8),
			},
			Divergence: flow.Divergence{Status: flow.DivergenceComputed, Correlation: -0.6123, Flag: true},
			Recommendation: flow.Recommendation{
				Label:    "Strong Accumulation",
				Advice:   "Buy on weakness",
				BuyZone:  f64(8950),
				SellZone: f64(9500),
				CutLoss:  f64(8700),
			},
			LiquidityEstimate: f64(3.5e11),
		},
		{
			Symbol:     "TLKM",
			BaseScore:  40,
			Score:      40,
			Metrics:    flow.Metrics{Symbol: "TLKM", NetForeign: -3e6, Streak: 2, LastPrice: 3100},
			Divergence: flow.Divergence{Status: flow.DivergenceUnavailable},
			Recommendation: flow.Recommendation{
				Label:  "Watch",
				Advice: "Wait",
			},
		},
	}
}

func readCSV(t *testing.T, path string) [][]string {
	t.Helper()
	data, err := os.ReadFile(path)
	require.NoError(t, err)
	require.True(t, bytes.HasPrefix(data, []byte{0xEF, 0xBB, 0xBF}), "missing BOM")

	records, err := csv.NewReader(bytes.NewReader(data[3:])).ReadAll()
	require.NoError(t, err)
	return records
}

func TestReportExporterCSV(t *testing.T) {
	dir := t.TempDir()
	exp := NewReportExporter(dir, FormatCSV, discardLogger())
	at := time.Date(2025, 3, 14, 8, 0, 5, 0, time.UTC)

	paths, err := exp.Export(context.Background(), sampleEntries(), at)
	require.NoError(t, err)
	require.Len(t, paths, 1)
	assert.Equal(t, filepath.Join(dir, "foreign_flow_20250314_080005.csv"), paths[0])

	records := readCSV(t, paths[0])
	require.Len(t, records, 3)
	assert.Equal(t, ReportHeaders, records[0])

	bbca := records[1]
	assert.Equal(t, "1", bbca[0])
	assert.Equal(t, "BBCA", bbca[1])
	assert.Equal(t, "87.50", bbca[2])
	assert.Equal(t, "Strong Accumulation", bbca[4])
	assert.Equal(t, "Rp 1.2 B", bbca[9])
	assert.Equal(t, "-400000000.00", bbca[13])
	assert.Equal(t, "computed", bbca[15])
	assert.Equal(t, "-0.612", bbca[16])
	assert.Equal(t, "8950.00", bbca[17])

	tlkm := records[2]
	assert.Equal(t, "2", tlkm[0])
	assert.Equal(t, "-Rp 3 M", tlkm[9])
	assert.Empty(t, tlkm[13], "absent retail net stays empty")
	assert.Empty(t, tlkm[14], "absent liquidity stays empty")
	assert.Equal(t, "unavailable", tlkm[15])
	assert.Empty(t, tlkm[16])
	assert.Empty(t, tlkm[19])
}

func TestReportExporterXLSX(t *testing.T) {
	dir := t.TempDir()
	exp := NewReportExporter(dir, FormatXLSX, discardLogger())

	paths, err := exp.Export(context.Background(), sampleEntries(), time.Now())
	require.NoError(t, err)
	require.Len(t, paths, 1)
	assert.Equal(t, ".xlsx", filepath.Ext(paths[0]))

	f, err := excelize.OpenFile(paths[0])
	require.NoError(t, err)
	defer f.Close()

	rows, err := f.GetRows(reportSheet)
	require.NoError(t, err)
	require.Len(t, rows, 3)
	assert.Equal(t, ReportHeaders, rows[0])
	assert.Equal(t, "BBCA", rows[1][1])
	assert.Equal(t, "TLKM", rows[2][1])

	score, err := f.GetCellValue(reportSheet, "C2")
	require.NoError(t, err)
	assert.Equal(t, "87.5", score)
}

func TestReportExporterBoth(t *testing.T) {
	dir := t.TempDir()
	exp := NewReportExporter(dir, FormatBoth, discardLogger())

	paths, err := exp.Export(context.Background(), sampleEntries(), time.Now())
	require.NoError(t, err)
	require.Len(t, paths, 2)
	for _, p := range paths {
		_, err := os.Stat(p)
		assert.NoError(t, err)
	}
}

func TestReportExporterEmptyAndCancelled(t *testing.T) {
	dir := t.TempDir()
	exp := NewReportExporter(dir, "pdf", discardLogger())
	assert.Equal(t, FormatCSV, exp.format)

	paths, err := exp.Export(context.Background(), nil, time.Now())
	require.NoError(t, err)
	records := readCSV(t, paths[0])
	assert.Len(t, records, 1, "header only")

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err = exp.Export(ctx, sampleEntries(), time.Now())
	assert.ErrorIs(t, err, context.Canceled)
}

func TestCSVWriterAppend(t *testing.T) {
	w := NewCSVWriter(t.TempDir(), discardLogger())

	path, err := w.WriteCSV("out/a.csv", WriteOptions{Headers: []string{"x"}, Records: [][]string{{"1"}}})
	require.NoError(t, err)
	_, err = w.WriteCSV("out/a.csv", WriteOptions{Headers: []string{"x"}, Records: [][]string{{"2"}}, Append: true})
	require.NoError(t, err)

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "x\n1\n2\n", string(data))
}

func TestFormatIDRShort(t *testing.T) {
	tests := []struct {
		in   float64
		want string
	}{
		{0, "Rp 0"},
		{950, "Rp 950"},
		{1500000, "Rp 1.5 M"},
		{2e9, "Rp 2 B"},
		{-7.3e12, "-Rp 7.3 T"},
	}
	for _, tt := range tests {
		t.Run(tt.want, func(t *testing.T) {
			assert.Equal(t, tt.want, formatIDRShort(tt.in))
		})
	}
}
