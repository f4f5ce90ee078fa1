// Package exporter writes analysis reports to disk.
//
// CSVWriter is the low-level CSV writer (optional UTF-8 BOM so Excel
// detects the encoding). ReportExporter turns ranked report entries into
// rows and writes them as CSV, XLSX (excelize) or both, one timestamped
// file per run:
//
//	exp := exporter.NewReportExporter("exports", exporter.FormatBoth, logger)
//	paths, err := exp.Export(ctx, entries, time.Now())
package exporter
