package flow

import (
	"math"
)

// ScoreInput carries the optional liquidity context of a score computation
type ScoreInput struct {
	Metrics Metrics
	Period  int
	// LiquidityFloor is the minimum average daily turnover; 0 means unknown
	LiquidityFloor float64
	// TotalTurnover is the window's total turnover; 0 means unknown
	TotalTurnover float64
}

// ScoreComponents holds the normalized [0,1] components of a score
type ScoreComponents struct {
	Streak    float64 `json:"streak"`
	Flow      float64 `json:"flow"`
	Stability float64 `json:"stability"`
	Liquidity float64 `json:"liquidity"`
}

// Components computes the normalized score components
func (p Policy) Components(in ScoreInput) ScoreComponents {
	m := in.Metrics
	var c ScoreComponents

	if in.Period > 0 {
		c.Streak = math.Min(1, float64(m.Streak)/float64(in.Period))
	}

	switch {
	case in.TotalTurnover > 0:
		c.Flow = clamp(math.Abs(m.NetForeign)/in.TotalTurnover*p.FlowScale, 0, 1)
	case m.NetForeign != 0:
		c.Flow = p.NeutralComponent
	}

	if m.WeightedAvgPrice > 0 {
		deviation := math.Abs(m.LastPrice-m.WeightedAvgPrice) / m.WeightedAvgPrice
		c.Stability = math.Max(0, 1-math.Min(deviation, p.MaxPriceDeviation))
	} else {
		c.Stability = p.NeutralComponent
	}

	if in.LiquidityFloor > 0 {
		c.Liquidity = clamp(m.AvgDailyTurnover/in.LiquidityFloor, 0, 1)
	} else {
		c.Liquidity = p.NeutralComponent
	}

	return c
}

// Score maps metrics to the composite score in [0,100]. It has no side effects.
func (p Policy) Score(in ScoreInput) float64 {
	c := p.Components(in)
	w := p.Weights
	raw := 100 * (w.Streak*c.Streak + w.Flow*c.Flow + w.Stability*c.Stability + w.Liquidity*c.Liquidity)
	return ClampScore(raw)
}

// AdjustForDivergence applies the divergence bonus or penalty and clamps the result
func (p Policy) AdjustForDivergence(score float64, d Divergence, netForeign float64) float64 {
	if !d.Computed() || !d.Flag {
		return ClampScore(score)
	}
	if netForeign > 0 {
		return ClampScore(score + p.DivergenceAdjustment)
	}
	return ClampScore(score - p.DivergenceAdjustment)
}

// ClampScore bounds a score to [0,100]; NaN becomes 0
func ClampScore(score float64) float64 {
	if math.IsNaN(score) {
		return 0
	}
	return clamp(score, 0, 100)
}

func clamp(v, lo, hi float64) float64 {
	return math.Max(lo, math.Min(hi, v))
}
