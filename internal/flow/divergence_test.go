package flow

import (
	"math"
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var divergenceForeignNet = []float64{60, -10, 90, 20, 40}

// pairedWindow builds a window whose daily foreign and retail nets follow the given series
func pairedWindow(foreign, retail []float64) []DailyRecord {
	window := make([]DailyRecord, len(foreign))
	for i := range foreign {
		rec := day(i, 0, 0, 1000)
		if foreign[i] >= 0 {
			rec.ForeignBuy = foreign[i]
		} else {
			rec.ForeignSell = -foreign[i]
		}
		if retail != nil {
			rec = withRetail(rec, 0, 0)
			if retail[i] >= 0 {
				*rec.RetailBuy = retail[i]
			} else {
				*rec.RetailSell = -retail[i]
			}
		}
		window[i] = rec
	}
	return window
}

func TestDetectDivergence(t *testing.T) {
	policy := DefaultPolicy()

	tests := []struct {
		name   string
		retail []float64
		status DivergenceStatus
		flag   bool
		band   string
		corr   float64
	}{
		{
			name:   "perfect opposition",
			retail: []float64{-60, 10, -90, -20, -40},
			status: DivergenceComputed,
			flag:   true,
			band:   "strong divergence",
			corr:   -1,
		},
		{
			name:   "strong divergence",
			retail: []float64{-50, 30, -40, 10, -60},
			status: DivergenceComputed,
			flag:   true,
			band:   "strong divergence",
			corr:   -0.7788,
		},
		{
			name:   "moderate divergence",
			retail: []float64{-30, 20, -10, 5, -50},
			status: DivergenceComputed,
			flag:   true,
			band:   "moderate divergence",
			corr:   -0.5205,
		},
		{
			name:   "moderate divergence near upper bound",
			retail: []float64{10, 0, -20, 5, -20},
			status: DivergenceComputed,
			flag:   true,
			band:   "moderate divergence",
			corr:   -0.4178,
		},
		{
			name:   "flows move together",
			retail: []float64{60, -10, 90, 20, 40},
			status: DivergenceComputed,
			flag:   false,
			band:   "no significant divergence",
			corr:   1,
		},
		{
			name:   "constant retail series",
			retail: []float64{5, 5, 5, 5, 5},
			status: DivergenceInsufficient,
		},
		{
			name:   "no retail data",
			retail: nil,
			status: DivergenceUnavailable,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			d := policy.DetectDivergence(pairedWindow(divergenceForeignNet, tt.retail))

			assert.Equal(t, tt.status, d.Status)
			assert.Equal(t, tt.flag, d.Flag)
			assert.NotEmpty(t, d.Narrative)
			if tt.status == DivergenceComputed {
				assert.Equal(t, tt.band, d.Band)
				assert.InDelta(t, tt.corr, d.Correlation, 1e-4)
				assert.Equal(t, 5, d.PairedDays)
			}
		})
	}
}

func TestDetectDivergence_ConstantForeignSeries(t *testing.T) {
	policy := DefaultPolicy()
	window := pairedWindow([]float64{50, 50, 50, 50}, []float64{-10, 20, -30, 40})

	d := policy.DetectDivergence(window)
	assert.Equal(t, DivergenceInsufficient, d.Status)
	assert.False(t, d.Flag)
	assert.False(t, math.IsNaN(d.Correlation))
}

func TestDetectDivergence_TooFewPairedDays(t *testing.T) {
	policy := DefaultPolicy()

	// only two days carry retail data
	window := pairedWindow(divergenceForeignNet, []float64{-60, 10, -90, -20, -40})
	for i := 2; i < len(window); i++ {
		window[i].RetailBuy = nil
		window[i].RetailSell = nil
	}

	d := policy.DetectDivergence(window)
	assert.Equal(t, DivergenceInsufficient, d.Status)
	assert.Equal(t, 2, d.PairedDays)
	assert.False(t, d.Flag)
}

func TestDetectDivergence_SkipsDaysWithoutRetail(t *testing.T) {
	policy := DefaultPolicy()

	window := pairedWindow(divergenceForeignNet, []float64{-60, 10, -90, -20, -40})
	window[1].RetailBuy = nil

	d := policy.DetectDivergence(window)
	require.True(t, d.Computed())
	assert.Equal(t, 4, d.PairedDays)
	assert.InDelta(t, -1, d.Correlation, 1e-9)
}

func TestDivergenceBandFor_Boundaries(t *testing.T) {
	bands := DefaultPolicy().sorted().DivergenceBands

	tests := []struct {
		r     float64
		label string
	}{
		{-1, "strong divergence"},
		{-0.6501, "strong divergence"},
		{-0.65, "moderate divergence"},
		{-0.4001, "moderate divergence"},
		{-0.40, "no significant divergence"},
		{0, "no significant divergence"},
		{1, "no significant divergence"},
	}

	for _, tt := range tests {
		assert.Equal(t, tt.label, divergenceBandFor(bands, tt.r).Label, "r=%v", tt.r)
	}
}

func TestDetectDivergence_CorrelationRange(t *testing.T) {
	policy := DefaultPolicy()
	rng := rand.New(rand.NewSource(7))

	for i := 0; i < 200; i++ {
		n := 3 + rng.Intn(20)
		foreign := make([]float64, n)
		retail := make([]float64, n)
		for j := range foreign {
			foreign[j] = (rng.Float64() - 0.5) * 1e9
			retail[j] = (rng.Float64() - 0.5) * 1e9
		}

		d := policy.DetectDivergence(pairedWindow(foreign, retail))
		if !d.Computed() {
			continue
		}
		require.GreaterOrEqual(t, d.Correlation, -1.0)
		require.LessOrEqual(t, d.Correlation, 1.0)
	}
}

func TestPearson(t *testing.T) {
	r, ok := pearson([]float64{1, 2, 3}, []float64{2, 4, 6})
	require.True(t, ok)
	assert.InDelta(t, 1, r, 1e-12)

	_, ok = pearson([]float64{1}, []float64{2})
	assert.False(t, ok)

	_, ok = pearson([]float64{1, 2}, []float64{1, 2, 3})
	assert.False(t, ok)

	_, ok = pearson([]float64{1, 1, 1}, []float64{1, 2, 3})
	assert.False(t, ok)
}
