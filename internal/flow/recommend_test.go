package flow

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRecommend_BandBoundaries(t *testing.T) {
	policy := DefaultPolicy()
	m := Metrics{WeightedAvgPrice: 1000, LastPrice: 1000}

	tests := []struct {
		score float64
		label string
	}{
		{0, LabelStrongDistribution},
		{39.99, LabelStrongDistribution},
		{40, LabelModerateDistribution},
		{54.99, LabelModerateDistribution},
		{55, LabelNeutral},
		{69.99, LabelNeutral},
		{70, LabelModerateAccumulation},
		{84.99, LabelModerateAccumulation},
		{85, LabelStrongAccumulation},
		{100, LabelStrongAccumulation},
	}

	for _, tt := range tests {
		t.Run(fmt.Sprintf("score %.2f", tt.score), func(t *testing.T) {
			rec := policy.Recommend(m, tt.score, Divergence{})
			assert.Equal(t, tt.label, rec.Label)
			assert.NotEmpty(t, rec.Advice)
		})
	}
}

func TestRecommend_FullRangeCoverage(t *testing.T) {
	policy := DefaultPolicy()
	labels := map[string]bool{}

	for i := 0; i <= 10000; i++ {
		rec := policy.Recommend(Metrics{}, float64(i)/100, Divergence{})
		require.NotEmpty(t, rec.Label)
		labels[rec.Label] = true
	}

	assert.Len(t, labels, 5)
}

func TestRecommend_Zones(t *testing.T) {
	policy := DefaultPolicy()
	// last price is 5% above the weighted average: an uptrend
	m := Metrics{WeightedAvgPrice: 1000, LastPrice: 1050, NetForeign: 100}

	tests := []struct {
		name     string
		score    float64
		buy      *float64
		sell     *float64
		flexible bool
	}{
		{"strong accumulation", 90, ptr(1000), ptr(1134), true},
		{"moderate accumulation", 75, ptr(990), ptr(1113), true},
		{"neutral", 60, nil, nil, false},
		{"moderate distribution", 45, nil, ptr(1044.75), false},
		{"strong distribution", 10, nil, nil, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := policy.Recommend(m, tt.score, Divergence{})

			assertZone(t, tt.buy, rec.BuyZone, "buy zone")
			assertZone(t, tt.sell, rec.SellZone, "sell zone")
			require.NotNil(t, rec.CutLoss)
			assert.InDelta(t, 970.225, *rec.CutLoss, 1e-9)
			assert.Equal(t, TrendUp, rec.Trend)
			assert.Equal(t, tt.flexible, rec.Flexible)
		})
	}
}

func assertZone(t *testing.T, expected, actual *float64, name string) {
	t.Helper()
	if expected == nil {
		assert.Nil(t, actual, name)
		return
	}
	require.NotNil(t, actual, name)
	assert.InDelta(t, *expected, *actual, 1e-9, name)
}

func TestRecommend_Trend(t *testing.T) {
	policy := DefaultPolicy()

	tests := []struct {
		name  string
		wap   float64
		last  float64
		trend string
	}{
		{"well above average", 1000, 1050, TrendUp},
		{"at one percent threshold", 1000, 1010, TrendCheck},
		{"below average", 1000, 950, TrendCheck},
		{"unknown average", 0, 1050, TrendCheck},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := policy.Recommend(Metrics{WeightedAvgPrice: tt.wap, LastPrice: tt.last}, 90, Divergence{})
			assert.Equal(t, tt.trend, rec.Trend)
			assert.Equal(t, tt.trend == TrendUp, rec.Flexible)
		})
	}
}

func TestRecommend_NoWeightedAverage(t *testing.T) {
	policy := DefaultPolicy()
	m := Metrics{LastPrice: 1050}

	rec := policy.Recommend(m, 90, Divergence{})

	require.NotNil(t, rec.BuyZone)
	assert.InDelta(t, 1050, *rec.BuyZone, 1e-9, "buy zone falls back to the last price")
	require.NotNil(t, rec.CutLoss)
	assert.InDelta(t, 1050*0.98*0.985, *rec.CutLoss, 1e-9)
	assert.Equal(t, TrendCheck, rec.Trend)
}

func TestRecommend_NoPrices(t *testing.T) {
	rec := DefaultPolicy().Recommend(Metrics{}, 90, Divergence{})

	assert.Equal(t, LabelStrongAccumulation, rec.Label)
	assert.Nil(t, rec.BuyZone)
	assert.Nil(t, rec.SellZone)
	assert.Nil(t, rec.CutLoss)
}

func TestRecommend_DivergenceAdvice(t *testing.T) {
	policy := DefaultPolicy()
	flagged := Divergence{Status: DivergenceComputed, Correlation: -0.8, Flag: true}
	m := Metrics{WeightedAvgPrice: 1000, LastPrice: 1000, NetForeign: 100}

	rec := policy.Recommend(m, 90, flagged)
	assert.Contains(t, rec.Advice, "divergence supports accumulation")

	rec = policy.Recommend(m, 60, flagged)
	assert.NotContains(t, rec.Advice, "divergence")

	m.NetForeign = -100
	rec = policy.Recommend(m, 90, flagged)
	assert.NotContains(t, rec.Advice, "divergence")
}

func TestRecommend_CustomBandsUnsorted(t *testing.T) {
	policy := DefaultPolicy()
	policy.ScoreBands = []ScoreBand{
		{Lower: 50, Label: "High", Advice: "buy"},
		{Lower: 0, Label: "Low", Advice: "wait"},
	}

	assert.Equal(t, "Low", policy.Recommend(Metrics{}, 49.9, Divergence{}).Label)
	assert.Equal(t, "High", policy.Recommend(Metrics{}, 50, Divergence{}).Label)
	assert.Equal(t, "High", policy.Recommend(Metrics{}, 120, Divergence{}).Label)
}
