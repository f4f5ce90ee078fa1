package main

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeDataset(t *testing.T) string {
	t.Helper()
	var b strings.Builder
	b.WriteString("Date,Symbol,Close,Volume,ForeignBuy,ForeignSell\n")
	start := time.Date(2025, 3, 3, 0, 0, 0, 0, time.UTC)
	for i := 0; i < 6; i++ {
		day := start.AddDate(0, 0, i).Format("2006-01-02")
		fmt.Fprintf(&b, "%s,BBCA,%d,1000000,5000000000,1000000000\n", day, 9000+10*i)
		fmt.Fprintf(&b, "%s,TLKM,%d,2000000,2000000000,500000000\n", day, 3000+5*i)
	}
	path := filepath.Join(t.TempDir(), "flows.csv")
	require.NoError(t, os.WriteFile(path, []byte(b.String()), 0o644))
	return path
}

func TestParseFlags(t *testing.T) {
	opts, err := parseFlags([]string{"-csv", "a.csv", "-period", "5", "-top", "3", "-floor", "0"})
	require.NoError(t, err)
	assert.Equal(t, "a.csv", opts.csvFile)
	assert.Equal(t, 5, opts.period)
	assert.Equal(t, 3, opts.topN)
	assert.Zero(t, opts.floor)
	assert.Equal(t, "csv", opts.format)

	_, err = parseFlags(nil)
	assert.EqualError(t, err, "-csv is required")

	_, err = parseFlags([]string{"-csv", "a.csv", "-top", "0"})
	assert.EqualError(t, err, "-top must be at least 1, got 0")
}

func TestRunTopOne(t *testing.T) {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	opts, err := parseFlags([]string{"-csv", writeDataset(t), "-period", "5", "-top", "1", "-floor", "0"})
	require.NoError(t, err)

	var out bytes.Buffer
	require.NoError(t, run(context.Background(), opts, &out, logger))
	report := out.String()
	assert.Equal(t, 1, strings.Count(report, "*BBCA*")+strings.Count(report, "*TLKM*"))
	assert.NotContains(t, report, "No liquid symbols")
}

func TestRun(t *testing.T) {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	outDir := t.TempDir()
	opts := options{
		csvFile: writeDataset(t),
		period:  5,
		topN:    10,
		symbols: "bbca, tlkm",
		outDir:  outDir,
		format:  "both",
	}

	var out bytes.Buffer
	require.NoError(t, run(context.Background(), opts, &out, logger))
	assert.Contains(t, out.String(), "Foreign Accumulation Report (5 Days)")

	files, err := filepath.Glob(filepath.Join(outDir, "foreign_flow_*"))
	require.NoError(t, err)
	assert.Len(t, files, 2)
}

func TestRunErrors(t *testing.T) {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	dataset := writeDataset(t)

	tests := []struct {
		name string
		opts options
	}{
		{"missing file", options{csvFile: filepath.Join(t.TempDir(), "x.csv"), period: 5}},
		{"bad period", options{csvFile: dataset, period: 0}},
		{"missing policy", options{csvFile: dataset, period: 5, policy: filepath.Join(t.TempDir(), "p.yaml")}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Error(t, run(context.Background(), tt.opts, io.Discard, logger))
		})
	}
}
