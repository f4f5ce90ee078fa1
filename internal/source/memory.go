package source

import (
	"context"
	"sort"
	"sync"

	"chanalysis/internal/flow"
)

// MemorySource serves windows and liquidity estimates held in memory.
// Fetch errors can be stored per symbol so they surface at analysis time.
type MemorySource struct {
	mu        sync.RWMutex
	windows   map[string][]flow.DailyRecord
	liquidity map[string]float64
	errs      map[string]error
}

// NewMemorySource creates an empty source
func NewMemorySource() *MemorySource {
	return &MemorySource{
		windows:   make(map[string][]flow.DailyRecord),
		liquidity: make(map[string]float64),
		errs:      make(map[string]error),
	}
}

// Append adds one record to its symbol's window
func (m *MemorySource) Append(rec flow.DailyRecord) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.windows[rec.Symbol] = append(m.windows[rec.Symbol], rec)
}

// SetWindow replaces a symbol's window
func (m *MemorySource) SetWindow(symbol string, records []flow.DailyRecord) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.windows[symbol] = append([]flow.DailyRecord(nil), records...)
	delete(m.errs, symbol)
}

// SetLiquidity stores a symbol's average daily turnover
func (m *MemorySource) SetLiquidity(symbol string, value float64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.liquidity[symbol] = value
}

// SetError makes Window fail for symbol with err
func (m *MemorySource) SetError(symbol string, err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.errs[symbol] = err
}

// Symbols returns the symbols with a stored window, sorted
func (m *MemorySource) Symbols() []string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	symbols := make([]string, 0, len(m.windows))
	for s := range m.windows {
		symbols = append(symbols, s)
	}
	sort.Strings(symbols)
	return symbols
}

// Window implements flow.Source. It returns the last period records, oldest first.
func (m *MemorySource) Window(_ context.Context, symbol string, period int) ([]flow.DailyRecord, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if err := m.errs[symbol]; err != nil {
		return nil, err
	}
	records := append([]flow.DailyRecord(nil), m.windows[symbol]...)
	return tail(sortByDate(records), period), nil
}

// LiquidityEstimate implements flow.Source
func (m *MemorySource) LiquidityEstimate(_ context.Context, symbol string) (float64, bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	v, ok := m.liquidity[symbol]
	return v, ok, nil
}

// Collect returns m itself, so a loaded file can stand in for a scraped table
func (m *MemorySource) Collect(ctx context.Context, _ int) (*MemorySource, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return m, nil
}
