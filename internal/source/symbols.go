package source

import (
	"context"
	"log/slog"
)

// FallbackSymbols are liquid IDX names scanned when no upstream list is available
var FallbackSymbols = []string{
	"TLKM", "BBCA", "BBRI", "BMRI", "ASII", "UNVR", "MDKA", "ADRO", "ICBP", "ANTM",
	"INDF", "BBNI", "ITMG", "TPIA", "AMMN", "MEDC", "PGAS", "SMGR", "KLBF", "BRIS",
}

// SymbolLister returns the upstream's most foreign-active symbols
type SymbolLister interface {
	TopForeign(ctx context.Context, n int) ([]string, error)
}

// TopSymbols asks lister for n symbols and falls back to the first n of
// FallbackSymbols when the lister is nil, fails or returns nothing.
func TopSymbols(ctx context.Context, lister SymbolLister, n int, logger *slog.Logger) []string {
	if n <= 0 {
		return nil
	}
	if logger == nil {
		logger = slog.Default()
	}

	if lister != nil {
		symbols, err := lister.TopForeign(ctx, n)
		if err == nil && len(symbols) > 0 {
			return symbols
		}
		if err != nil {
			logger.WarnContext(ctx, "top foreign list unavailable, using fallback symbols",
				slog.String("error", err.Error()))
		}
	}

	fallback := FallbackSymbols
	if n < len(fallback) {
		fallback = fallback[:n]
	}
	return append([]string(nil), fallback...)
}
