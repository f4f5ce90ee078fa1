package flow

import (
	"math"
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestScore_WorkedExample(t *testing.T) {
	policy := DefaultPolicy()
	m, err := Aggregate(workedWindow(), 3)
	require.NoError(t, err)

	in := ScoreInput{Metrics: m, Period: 3}
	c := policy.Components(in)

	assert.InDelta(t, 2.0/3.0, c.Streak, 1e-9)
	assert.InDelta(t, 0.5, c.Flow, 1e-9, "net foreign without turnover is neutral")
	assert.InDelta(t, 1-(1010-300400.0/300.0)/(300400.0/300.0), c.Stability, 1e-9)
	assert.InDelta(t, 0.5, c.Liquidity, 1e-9, "no floor is neutral")

	assert.InDelta(t, 62.37, policy.Score(in), 0.01)
}

func TestScore_FlowComponent(t *testing.T) {
	policy := DefaultPolicy()

	tests := []struct {
		name     string
		net      float64
		turnover float64
		expected float64
	}{
		{"scaled ratio", 140, 14000, 0.1},
		{"negative net uses magnitude", -140, 14000, 0.1},
		{"capped at one", 5000, 14000, 1},
		{"no turnover with flow", 140, 0, 0.5},
		{"no turnover no flow", 0, 0, 0},
		{"turnover without flow", 0, 14000, 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := policy.Components(ScoreInput{
				Metrics:       Metrics{NetForeign: tt.net},
				Period:        10,
				TotalTurnover: tt.turnover,
			})
			assert.InDelta(t, tt.expected, c.Flow, 1e-9)
		})
	}
}

func TestScore_StabilityComponent(t *testing.T) {
	policy := DefaultPolicy()

	tests := []struct {
		name     string
		wap      float64
		last     float64
		expected float64
	}{
		{"at average", 1000, 1000, 1},
		{"ten percent above", 1000, 1100, 0.9},
		{"ten percent below", 1000, 900, 0.9},
		{"deviation capped", 1000, 3000, 0.5},
		{"unknown average", 0, 1000, 0.5},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := policy.Components(ScoreInput{
				Metrics: Metrics{WeightedAvgPrice: tt.wap, LastPrice: tt.last},
				Period:  10,
			})
			assert.InDelta(t, tt.expected, c.Stability, 1e-9)
		})
	}
}

func TestScore_LiquidityComponent(t *testing.T) {
	policy := DefaultPolicy()

	tests := []struct {
		name     string
		turnover float64
		floor    float64
		expected float64
	}{
		{"half of floor", 5e9, 10e9, 0.5},
		{"above floor capped", 30e9, 10e9, 1},
		{"no volume", 0, 10e9, 0},
		{"floor disabled", 5e9, 0, 0.5},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := policy.Components(ScoreInput{
				Metrics:        Metrics{AvgDailyTurnover: tt.turnover},
				Period:         10,
				LiquidityFloor: tt.floor,
			})
			assert.InDelta(t, tt.expected, c.Liquidity, 1e-9)
		})
	}
}

func TestScore_StreakCapped(t *testing.T) {
	policy := DefaultPolicy()
	c := policy.Components(ScoreInput{Metrics: Metrics{Streak: 12}, Period: 10})
	assert.Equal(t, 1.0, c.Streak)

	c = policy.Components(ScoreInput{Metrics: Metrics{Streak: 3}, Period: 0})
	assert.Zero(t, c.Streak)
}

func TestScore_Bounds(t *testing.T) {
	policy := DefaultPolicy()
	rng := rand.New(rand.NewSource(42))

	for i := 0; i < 500; i++ {
		in := ScoreInput{
			Metrics: Metrics{
				Streak:           rng.Intn(15),
				NetForeign:       (rng.Float64() - 0.5) * 1e12,
				WeightedAvgPrice: rng.Float64() * 10000,
				LastPrice:        rng.Float64() * 20000,
				AvgDailyTurnover: rng.Float64() * 1e11,
			},
			Period:         1 + rng.Intn(30),
			LiquidityFloor: rng.Float64() * 2e10,
			TotalTurnover:  rng.Float64() * 1e12,
		}

		score := policy.Score(in)
		require.GreaterOrEqual(t, score, 0.0)
		require.LessOrEqual(t, score, 100.0)
		require.Equal(t, score, policy.Score(in), "score must be deterministic")
	}
}

func TestScore_Maximum(t *testing.T) {
	policy := DefaultPolicy()
	in := ScoreInput{
		Metrics: Metrics{
			Streak:           10,
			NetForeign:       1e12,
			WeightedAvgPrice: 1000,
			LastPrice:        1000,
			AvgDailyTurnover: 20e9,
		},
		Period:         10,
		LiquidityFloor: 10e9,
		TotalTurnover:  1e12,
	}

	// default weights total 0.95
	assert.InDelta(t, 95, policy.Score(in), 1e-9)
}

func TestAdjustForDivergence(t *testing.T) {
	policy := DefaultPolicy()
	flagged := Divergence{Status: DivergenceComputed, Correlation: -0.8, Flag: true}
	unflagged := Divergence{Status: DivergenceComputed, Correlation: 0.3}

	tests := []struct {
		name     string
		score    float64
		d        Divergence
		net      float64
		expected float64
	}{
		{"bonus for net buying", 60, flagged, 100, 65},
		{"penalty for net selling", 60, flagged, -100, 55},
		{"penalty for flat flow", 60, flagged, 0, 55},
		{"no flag", 60, unflagged, 100, 60},
		{"unavailable", 60, Divergence{Status: DivergenceUnavailable, Flag: true}, 100, 60},
		{"insufficient", 60, Divergence{Status: DivergenceInsufficient}, 100, 60},
		{"clamped high", 98, flagged, 100, 100},
		{"clamped low", 3, flagged, -100, 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.InDelta(t, tt.expected, policy.AdjustForDivergence(tt.score, tt.d, tt.net), 1e-9)
		})
	}
}

func TestClampScore(t *testing.T) {
	assert.Equal(t, 0.0, ClampScore(-3))
	assert.Equal(t, 100.0, ClampScore(140))
	assert.Equal(t, 55.5, ClampScore(55.5))
	assert.Equal(t, 0.0, ClampScore(math.NaN()))
	assert.Equal(t, 100.0, ClampScore(math.Inf(1)))
}
