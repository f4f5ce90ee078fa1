package exporter

import (
	"context"
	"fmt"
	"log/slog"
	"path/filepath"
	"time"

	"chanalysis/internal/flow"
)

// Export formats
const (
	FormatCSV  = "csv"
	FormatXLSX = "xlsx"
	FormatBoth = "both"
)

// ReportHeaders are the columns of an exported report
var ReportHeaders = []string{
	"Rank", "Symbol", "Score", "Base Score", "Label", "Advice",
	"Streak", "Down Days", "Net Foreign", "Net Foreign (IDR)",
	"Weighted Avg Price", "Last Price", "Pct vs Avg", "Retail Net",
	"Liquidity", "Divergence", "Correlation", "Buy Zone", "Sell Zone", "Cut Loss",
}

// ReportExporter writes report entries to timestamped files in a directory
type ReportExporter struct {
	dir    string
	format string
	csv    *CSVWriter
	logger *slog.Logger
}

// NewReportExporter creates an exporter. An unknown format falls back to CSV.
func NewReportExporter(dir, format string, logger *slog.Logger) *ReportExporter {
	if logger == nil {
		logger = slog.Default()
	}
	switch format {
	case FormatCSV, FormatXLSX, FormatBoth:
	default:
		format = FormatCSV
	}
	logger = logger.With(slog.String("component", "exporter"))
	return &ReportExporter{
		dir:    dir,
		format: format,
		csv:    NewCSVWriter(dir, logger),
		logger: logger,
	}
}

// BaseName returns the file name, without extension, for a report generated at t
func BaseName(t time.Time) string {
	return "foreign_flow_" + t.Format("20060102_150405")
}

// Export writes entries and returns the paths written
func (e *ReportExporter) Export(ctx context.Context, entries []flow.ReportEntry, generatedAt time.Time) ([]string, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	base := BaseName(generatedAt)
	var paths []string

	if e.format == FormatCSV || e.format == FormatBoth {
		path, err := e.csv.WriteCSV(base+".csv", WriteOptions{
			Headers:   ReportHeaders,
			Records:   csvRecords(entries),
			BOMPrefix: true,
		})
		if err != nil {
			return paths, fmt.Errorf("csv export: %w", err)
		}
		paths = append(paths, path)
	}

	if e.format == FormatXLSX || e.format == FormatBoth {
		path := filepath.Join(e.dir, base+".xlsx")
		if err := writeXLSX(path, ReportHeaders, xlsxRows(entries)); err != nil {
			return paths, fmt.Errorf("xlsx export: %w", err)
		}
		paths = append(paths, path)
	}

	e.logger.InfoContext(ctx, "report exported",
		slog.Int("entries", len(entries)),
		slog.Any("files", paths))
	return paths, nil
}

func csvRecords(entries []flow.ReportEntry) [][]string {
	records := make([][]string, 0, len(entries))
	for i, entry := range entries {
		m := entry.Metrics
		rec := entry.Recommendation
		records = append(records, []string{
			formatInt(i + 1),
			entry.Symbol,
			formatFloat(entry.Score),
			formatFloat(entry.BaseScore),
			rec.Label,
			rec.Advice,
			formatInt(m.Streak),
			formatInt(m.DownDays),
			formatFloat(m.NetForeign),
			formatIDRShort(m.NetForeign),
			formatFloat(m.WeightedAvgPrice),
			formatFloat(m.LastPrice),
			formatFloat(m.PctChangeVsAvg),
			formatOptional(m.RetailNet),
			formatOptional(entry.LiquidityEstimate),
			entry.Divergence.Status.String(),
			correlation(entry.Divergence),
			formatOptional(rec.BuyZone),
			formatOptional(rec.SellZone),
			formatOptional(rec.CutLoss),
		})
	}
	return records
}

func xlsxRows(entries []flow.ReportEntry) [][]interface{} {
	rows := make([][]interface{}, 0, len(entries))
	for i, entry := range entries {
		m := entry.Metrics
		rec := entry.Recommendation
		rows = append(rows, []interface{}{
			i + 1,
			entry.Symbol,
			entry.Score,
			entry.BaseScore,
			rec.Label,
			rec.Advice,
			m.Streak,
			m.DownDays,
			m.NetForeign,
			formatIDRShort(m.NetForeign),
			m.WeightedAvgPrice,
			m.LastPrice,
			m.PctChangeVsAvg,
			cell(m.RetailNet),
			cell(entry.LiquidityEstimate),
			entry.Divergence.Status.String(),
			correlation(entry.Divergence),
			cell(rec.BuyZone),
			cell(rec.SellZone),
			cell(rec.CutLoss),
		})
	}
	return rows
}

func correlation(d flow.Divergence) string {
	if !d.Computed() {
		return ""
	}
	return fmt.Sprintf("%.3f", d.Correlation)
}

// cell returns nil for absent values so the cell stays empty
func cell(v *float64) interface{} {
	if v == nil {
		return nil
	}
	return *v
}
