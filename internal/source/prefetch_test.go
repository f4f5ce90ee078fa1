package source

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"chanalysis/internal/flow"
)

// slowSource tracks the number of concurrent Window calls
type slowSource struct {
	inflight, peak atomic.Int32
	fail           map[string]error
	liquidity      map[string]float64
}

func (s *slowSource) Window(ctx context.Context, symbol string, days int) ([]flow.DailyRecord, error) {
	n := s.inflight.Add(1)
	defer s.inflight.Add(-1)
	for {
		p := s.peak.Load()
		if n <= p || s.peak.CompareAndSwap(p, n) {
			break
		}
	}
	select {
	case <-time.After(5 * time.Millisecond):
	case <-ctx.Done():
		return nil, ctx.Err()
	}
	if err := s.fail[symbol]; err != nil {
		return nil, err
	}
	return makeWindow(symbol, days), nil
}

func (s *slowSource) LiquidityEstimate(_ context.Context, symbol string) (float64, bool, error) {
	v, ok := s.liquidity[symbol]
	return v, ok, nil
}

func TestPrefetch(t *testing.T) {
	src := &slowSource{
		fail:      map[string]error{"FAIL": errors.New("upstream down")},
		liquidity: map[string]float64{"BBCA": 30e9},
	}
	symbols := []string{"BBCA", "TLKM", "FAIL", "ASII", "BMRI", "BBRI", "ADRO", "ANTM"}

	mem, err := Prefetch(context.Background(), src, symbols, 10, 3, discardLogger())
	require.NoError(t, err)

	assert.LessOrEqual(t, src.peak.Load(), int32(3))

	window, err := mem.Window(context.Background(), "TLKM", 10)
	require.NoError(t, err)
	assert.Len(t, window, 10)

	_, err = mem.Window(context.Background(), "FAIL", 10)
	assert.EqualError(t, err, "upstream down")

	liq, ok, _ := mem.LiquidityEstimate(context.Background(), "BBCA")
	assert.True(t, ok)
	assert.Equal(t, 30e9, liq)
	_, ok, _ = mem.LiquidityEstimate(context.Background(), "TLKM")
	assert.False(t, ok)
}

func TestPrefetchFeedsAnalyzer(t *testing.T) {
	src := &slowSource{fail: map[string]error{"FAIL": errors.New("upstream down")}}
	mem, err := Prefetch(context.Background(), src, []string{"BBCA", "FAIL"}, 10, 2, discardLogger())
	require.NoError(t, err)

	cfg := flow.DefaultConfig()
	cfg.LiquidityFloor = 0
	_, stats, err := flow.NewAnalyzer(mem, discardLogger()).AnalyzeWithStats(context.Background(), []string{"BBCA", "FAIL"}, cfg)
	require.NoError(t, err)
	assert.Equal(t, 1, stats.Scored)
	assert.Equal(t, 1, stats.Excluded[flow.ExcludedFetch])
}

func TestPrefetchCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := Prefetch(ctx, &slowSource{}, []string{"BBCA", "TLKM"}, 10, 2, discardLogger())
	assert.ErrorIs(t, err, context.Canceled)
}

type stubLister struct {
	symbols []string
	err     error
}

func (s stubLister) TopForeign(context.Context, int) ([]string, error) {
	return s.symbols, s.err
}

func TestTopSymbols(t *testing.T) {
	tests := []struct {
		name   string
		lister SymbolLister
		n      int
		want   []string
	}{
		{"upstream list", stubLister{symbols: []string{"GOTO", "BUKA"}}, 5, []string{"GOTO", "BUKA"}},
		{"upstream error", stubLister{err: errors.New("down")}, 3, []string{"TLKM", "BBCA", "BBRI"}},
		{"upstream empty", stubLister{}, 2, []string{"TLKM", "BBCA"}},
		{"no lister", nil, 20, FallbackSymbols},
		{"more than fallback", nil, 50, FallbackSymbols},
		{"zero", nil, 0, nil},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, TopSymbols(context.Background(), tt.lister, tt.n, discardLogger()))
		})
	}
}

func TestTopSymbolsDoesNotAliasFallback(t *testing.T) {
	got := TopSymbols(context.Background(), nil, 2, discardLogger())
	got[0] = "XXXX"
	assert.Equal(t, "TLKM", FallbackSymbols[0])
}

func TestMemorySourceConcurrentAppend(t *testing.T) {
	mem := NewMemorySource()
	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			rec := makeWindow("BBCA", 20)[i]
			mem.Append(rec)
		}(i)
	}
	wg.Wait()

	window, err := mem.Window(context.Background(), "BBCA", 5)
	require.NoError(t, err)
	require.Len(t, window, 5)
	assert.Equal(t, 20, window[4].Date.Day())
}
