package source

import (
	"context"
	"log/slog"

	"chanalysis/internal/flow"
)

// WindowSource returns up to days records of a symbol, oldest first
type WindowSource interface {
	Window(ctx context.Context, symbol string, days int) ([]flow.DailyRecord, error)
}

// LiquiditySource estimates a symbol's average daily turnover
type LiquiditySource interface {
	LiquidityEstimate(ctx context.Context, symbol string) (float64, bool, error)
}

// FallbackSource prefers Primary and falls back to Secondary when the primary
// window is short or the primary request fails.
type FallbackSource struct {
	Primary   WindowSource
	Secondary WindowSource
	Liquidity LiquiditySource
	Logger    *slog.Logger
}

// MinPrimaryRows is the row count above which the primary window is used as is
func MinPrimaryRows(days int) int {
	return max(5, days/2)
}

// Window implements flow.Source
func (f *FallbackSource) Window(ctx context.Context, symbol string, days int) ([]flow.DailyRecord, error) {
	logger := f.logger()

	var (
		primary    []flow.DailyRecord
		primaryErr error
	)
	if f.Primary != nil {
		records, err := f.Primary.Window(ctx, symbol, days)
		if err == nil && len(records) >= MinPrimaryRows(days) {
			return records, nil
		}
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		primary, primaryErr = records, err
		logger.DebugContext(ctx, "primary window short, using fallback",
			slog.String("symbol", symbol),
			slog.Int("rows", len(records)),
			slog.Any("error", err),
		)
	}

	if f.Secondary == nil {
		return primary, primaryErr
	}
	return f.Secondary.Window(ctx, symbol, days)
}

// LiquidityEstimate implements flow.Source. ok is false without a liquidity source.
func (f *FallbackSource) LiquidityEstimate(ctx context.Context, symbol string) (float64, bool, error) {
	if f.Liquidity == nil {
		return 0, false, nil
	}
	return f.Liquidity.LiquidityEstimate(ctx, symbol)
}

func (f *FallbackSource) logger() *slog.Logger {
	if f.Logger != nil {
		return f.Logger
	}
	return slog.Default()
}
