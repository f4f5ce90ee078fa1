// Command flow-report scores an offline CSV dataset and prints the report.
//
//	flow-report -csv flows.csv -period 10 -top 5 -out exports -format xlsx
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"chanalysis/internal/config"
	"chanalysis/internal/exporter"
	"chanalysis/internal/flow"
	"chanalysis/internal/infrastructure"
	"chanalysis/internal/source"
	"chanalysis/internal/validation"
)

type options struct {
	csvFile string
	period  int
	topN    int
	floor   float64
	policy  string
	symbols string
	outDir  string
	format  string
	verbose bool
}

func parseFlags(args []string) (options, error) {
	var opts options
	fs := flag.NewFlagSet("flow-report", flag.ContinueOnError)
	fs.StringVar(&opts.csvFile, "csv", "", "CSV dataset (Date,Symbol,Close,Volume,ForeignBuy,ForeignSell,...)")
	fs.IntVar(&opts.period, "period", 10, "analysis window in trading days")
	fs.IntVar(&opts.topN, "top", 10, "number of ranked entries, at least 1")
	fs.Float64Var(&opts.floor, "floor", 10_000_000_000, "minimum average daily turnover in IDR (0 disables)")
	fs.StringVar(&opts.policy, "policy", "", "YAML scoring policy file")
	fs.StringVar(&opts.symbols, "symbols", "", "comma separated symbols (defaults to every symbol in the file)")
	fs.StringVar(&opts.outDir, "out", "", "export directory (no export when empty)")
	fs.StringVar(&opts.format, "format", exporter.FormatCSV, "export format: csv, xlsx or both")
	fs.BoolVar(&opts.verbose, "v", false, "debug logging")
	if err := fs.Parse(args); err != nil {
		return opts, err
	}
	if opts.csvFile == "" {
		return opts, errors.New("-csv is required")
	}
	if opts.topN < 1 {
		return opts, fmt.Errorf("-top must be at least 1, got %d", opts.topN)
	}
	return opts, nil
}

func main() {
	opts, err := parseFlags(os.Args[1:])
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(2)
	}

	level := "info"
	if opts.verbose {
		level = "debug"
	}
	logger := infrastructure.NewLoggerWithWriter(os.Stderr, config.LoggingConfig{Level: level, Output: "console"})

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, opts, os.Stdout, logger); err != nil {
		logger.Error("flow report failed", slog.String("error", err.Error()))
		os.Exit(1)
	}
}

func run(ctx context.Context, opts options, out io.Writer, logger *slog.Logger) error {
	policy, err := config.LoadPolicy(opts.policy)
	if err != nil {
		return err
	}

	cfg := flow.Config{
		Period:         opts.period,
		LiquidityFloor: opts.floor,
		TopN:           opts.topN,
		Policy:         policy,
	}
	if err := cfg.Validate(); err != nil {
		return err
	}

	validator := validation.NewFileValidator(logger)
	if err := validator.ValidateCSVFile(opts.csvFile); err != nil {
		return err
	}
	if opts.outDir != "" {
		if err := validator.ValidateOutputDirectory(opts.outDir); err != nil {
			return err
		}
	}

	mem, err := source.LoadCSVFile(opts.csvFile)
	if err != nil {
		return err
	}

	symbols := mem.Symbols()
	if opts.symbols != "" {
		symbols = symbols[:0:0]
		for _, s := range strings.Split(opts.symbols, ",") {
			if s = strings.ToUpper(strings.TrimSpace(s)); s != "" {
				symbols = append(symbols, s)
			}
		}
	}

	entries, stats, err := flow.NewAnalyzer(mem, logger).AnalyzeWithStats(ctx, symbols, cfg)
	if err != nil {
		return err
	}
	logger.Debug("analysis complete",
		slog.Int("symbols", stats.Symbols),
		slog.Int("scored", stats.Scored),
		slog.Any("excluded", stats.Excluded))

	generatedAt := time.Now().UTC()
	text, err := flow.Render(entries, flow.RenderOptions{Period: cfg.Period, GeneratedAt: generatedAt, Policy: policy})
	if err != nil {
		return err
	}
	if _, err := fmt.Fprintln(out, text); err != nil {
		return err
	}

	if opts.outDir != "" {
		paths, err := exporter.NewReportExporter(opts.outDir, opts.format, logger).Export(ctx, entries, generatedAt)
		if err != nil {
			return err
		}
		for _, p := range paths {
			logger.Info("report written", slog.String("path", p))
		}
	}
	return nil
}
