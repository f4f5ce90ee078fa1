package flow

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"
)

// Source provides the per-symbol data the pipeline consumes
type Source interface {
	// Window returns up to period daily records in ascending date order. It may be short or empty.
	Window(ctx context.Context, symbol string, period int) ([]DailyRecord, error)
	// LiquidityEstimate returns the symbol's average daily turnover; ok is false when unknown.
	LiquidityEstimate(ctx context.Context, symbol string) (value float64, ok bool, err error)
}

// Config is the explicit configuration of one analysis run
type Config struct {
	Period         int     `json:"period" yaml:"period"`
	LiquidityFloor float64 `json:"liquidity_floor" yaml:"liquidity_floor"`
	TopN           int     `json:"top_n" yaml:"top_n"`
	Policy         Policy  `json:"policy" yaml:"policy"`
}

// DefaultConfig returns a 10-day, top-10, 10B turnover floor configuration
func DefaultConfig() Config {
	return Config{
		Period:         10,
		LiquidityFloor: 10_000_000_000,
		TopN:           10,
		Policy:         DefaultPolicy(),
	}
}

// Validate checks the configuration; violations are programming errors, not data conditions
func (c Config) Validate() error {
	if c.Period <= 0 {
		return fmt.Errorf("%w: period must be positive, got %d", ErrInvalidConfig, c.Period)
	}
	if c.TopN < 0 {
		return fmt.Errorf("%w: top_n must not be negative, got %d", ErrInvalidConfig, c.TopN)
	}
	if c.LiquidityFloor < 0 {
		return fmt.Errorf("%w: liquidity floor must not be negative", ErrInvalidConfig)
	}
	return c.Policy.Validate()
}

// Exclusion reasons reported through RunStats
const (
	ExcludedFetch        = "fetch_error"
	ExcludedInsufficient = "insufficient_data"
	ExcludedMissingPrice = "missing_price"
	ExcludedLiquidity    = "liquidity"
)

// RunStats summarizes one Analyze call
type RunStats struct {
	Symbols  int            `json:"symbols"`
	Scored   int            `json:"scored"`
	Ranked   int            `json:"ranked"`
	Excluded map[string]int `json:"excluded"`
	Duration time.Duration  `json:"duration"`
}

// Analyzer runs the foreign-flow pipeline over a Source
type Analyzer struct {
	source Source
	logger *slog.Logger
}

// NewAnalyzer creates a new analyzer reading from source
func NewAnalyzer(source Source, logger *slog.Logger) *Analyzer {
	if logger == nil {
		logger = slog.Default()
	}
	return &Analyzer{
		source: source,
		logger: logger.With(slog.String("component", "flow.analyzer")),
	}
}

// Analyze scores every symbol and returns the ranked report entries.
// A symbol with bad or missing data is excluded; it never fails the run.
func (a *Analyzer) Analyze(ctx context.Context, symbols []string, cfg Config) ([]ReportEntry, error) {
	entries, _, err := a.AnalyzeWithStats(ctx, symbols, cfg)
	return entries, err
}

// AnalyzeWithStats is Analyze plus a summary of what was scored and excluded
func (a *Analyzer) AnalyzeWithStats(ctx context.Context, symbols []string, cfg Config) ([]ReportEntry, RunStats, error) {
	start := time.Now()
	stats := RunStats{Symbols: len(symbols), Excluded: make(map[string]int)}

	if err := cfg.Validate(); err != nil {
		return nil, stats, err
	}

	a.logger.InfoContext(ctx, "starting foreign flow analysis",
		slog.Int("symbols", len(symbols)),
		slog.Int("period", cfg.Period),
		slog.Float64("liquidity_floor", cfg.LiquidityFloor),
		slog.Int("top_n", cfg.TopN),
	)

	candidates := make([]ReportEntry, 0, len(symbols))
	for _, symbol := range symbols {
		if err := ctx.Err(); err != nil {
			return nil, stats, fmt.Errorf("analysis cancelled: %w", err)
		}

		window, err := a.source.Window(ctx, symbol, cfg.Period)
		if err != nil {
			a.logger.WarnContext(ctx, "failed to load window, skipping symbol",
				slog.String("symbol", symbol),
				slog.String("error", err.Error()))
			stats.Excluded[ExcludedFetch]++
			continue
		}

		var liquidity *float64
		if value, ok, err := a.source.LiquidityEstimate(ctx, symbol); err != nil {
			a.logger.DebugContext(ctx, "liquidity estimate unavailable",
				slog.String("symbol", symbol),
				slog.String("error", err.Error()))
		} else if ok {
			liquidity = ptr(value)
		}

		entry, err := Evaluate(symbol, window, liquidity, cfg)
		if err != nil {
			reason := ExcludedInsufficient
			if errors.Is(err, ErrMissingPrice) {
				reason = ExcludedMissingPrice
			}
			a.logger.DebugContext(ctx, "symbol excluded",
				slog.String("symbol", symbol),
				slog.String("reason", reason),
				slog.String("error", err.Error()))
			stats.Excluded[reason]++
			continue
		}

		candidates = append(candidates, entry)
	}

	stats.Scored = len(candidates)
	stats.Excluded[ExcludedLiquidity] = len(candidates) - len(FilterByLiquidity(candidates, cfg.LiquidityFloor))

	ranked := Rank(candidates, cfg.LiquidityFloor, cfg.TopN)
	stats.Ranked = len(ranked)
	stats.Duration = time.Since(start)

	a.logger.InfoContext(ctx, "foreign flow analysis completed",
		slog.Int("scored", stats.Scored),
		slog.Int("ranked", stats.Ranked),
		slog.Any("excluded", stats.Excluded),
		slog.Duration("duration", stats.Duration),
	)

	return ranked, stats, nil
}

// Evaluate runs aggregation, scoring, divergence and recommendation for one symbol.
// cfg is assumed valid.
func Evaluate(symbol string, window []DailyRecord, liquidity *float64, cfg Config) (ReportEntry, error) {
	window = orderWindow(window)
	if len(window) > cfg.Period {
		window = window[len(window)-cfg.Period:]
	}

	metrics, err := Aggregate(window, cfg.Period)
	if err != nil {
		return ReportEntry{}, fmt.Errorf("aggregate %s: %w", symbol, err)
	}
	metrics.Symbol = symbol

	if liquidity != nil && !isFinite(*liquidity) {
		liquidity = nil
	}

	policy := cfg.Policy
	in := ScoreInput{
		Metrics:        metrics,
		Period:         cfg.Period,
		LiquidityFloor: cfg.LiquidityFloor,
	}
	if total, ok := metrics.TotalTurnover(); ok {
		in.TotalTurnover = total
	} else if liquidity != nil && *liquidity > 0 {
		in.TotalTurnover = *liquidity * float64(cfg.Period)
	}

	base := policy.Score(in)
	divergence := policy.DetectDivergence(window)
	final := policy.AdjustForDivergence(base, divergence, metrics.NetForeign)

	return ReportEntry{
		Symbol:            symbol,
		Metrics:           metrics,
		BaseScore:         base,
		Score:             final,
		Divergence:        divergence,
		Recommendation:    policy.Recommend(metrics, final, divergence),
		LiquidityEstimate: liquidity,
	}, nil
}
