package source

import (
	"context"
	"log/slog"

	"golang.org/x/sync/errgroup"

	"chanalysis/internal/flow"
)

// Prefetch loads every symbol's window and liquidity estimate from src with at
// most limit requests in flight. A symbol whose window cannot be fetched keeps
// its error in the returned source, so the analyzer excludes it instead of the
// whole run failing. Only context cancellation aborts the prefetch.
func Prefetch(ctx context.Context, src flow.Source, symbols []string, period, limit int, logger *slog.Logger) (*MemorySource, error) {
	if logger == nil {
		logger = slog.Default()
	}
	if limit <= 0 {
		limit = 4
	}

	mem := NewMemorySource()
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(limit)

	for _, symbol := range symbols {
		g.Go(func() error {
			window, err := src.Window(gctx, symbol, period)
			if err != nil {
				if gctx.Err() != nil {
					return gctx.Err()
				}
				logger.WarnContext(gctx, "window fetch failed",
					slog.String("symbol", symbol),
					slog.String("error", err.Error()),
				)
				mem.SetError(symbol, err)
				return nil
			}
			mem.SetWindow(symbol, window)

			liquidity, ok, err := src.LiquidityEstimate(gctx, symbol)
			switch {
			case err != nil:
				logger.DebugContext(gctx, "liquidity estimate unavailable",
					slog.String("symbol", symbol),
					slog.String("error", err.Error()),
				)
			case ok:
				mem.SetLiquidity(symbol, liquidity)
			}
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return nil, err
	}
	return mem, nil
}
