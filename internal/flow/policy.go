package flow

import (
	"fmt"
	"math"
	"sort"
)

// ComponentWeights contains the weights of the composite score components
type ComponentWeights struct {
	Streak    float64 `json:"streak" yaml:"streak"`       // Consistency of foreign buying - 45%
	Flow      float64 `json:"flow" yaml:"flow"`           // Net foreign flow relative to turnover - 25%
	Stability float64 `json:"stability" yaml:"stability"` // Last price vs weighted average - 15%
	Liquidity float64 `json:"liquidity" yaml:"liquidity"` // Average turnover vs floor - 10%
}

// Sum returns the total of all weights
func (cw ComponentWeights) Sum() float64 {
	return cw.Streak + cw.Flow + cw.Stability + cw.Liquidity
}

// IsValid checks that no weight is negative and the total does not exceed 1
func (cw ComponentWeights) IsValid() bool {
	return cw.Streak >= 0 && cw.Flow >= 0 && cw.Stability >= 0 && cw.Liquidity >= 0 &&
		cw.Sum() > 0 && cw.Sum() <= 1.0001
}

// ZoneRule derives trade zones for a score band. A zero multiplier means no zone.
type ZoneRule struct {
	BuyMultiplier  float64 `json:"buy_multiplier" yaml:"buy_multiplier"`   // Applied to the weighted average price
	SellMultiplier float64 `json:"sell_multiplier" yaml:"sell_multiplier"` // Applied to the last price
}

// ScoreBand maps scores >= Lower to a label
type ScoreBand struct {
	Lower        float64  `json:"lower" yaml:"lower"`
	Label        string   `json:"label" yaml:"label"`
	Advice       string   `json:"advice" yaml:"advice"`
	Zones        ZoneRule `json:"zones" yaml:"zones"`
	Accumulation bool     `json:"accumulation" yaml:"accumulation"`
}

// DivergenceBand maps correlations >= Lower to a label
type DivergenceBand struct {
	Lower     float64 `json:"lower" yaml:"lower"`
	Label     string  `json:"label" yaml:"label"`
	Narrative string  `json:"narrative" yaml:"narrative"`
	Flag      bool    `json:"flag" yaml:"flag"`
}

// Policy is the complete scoring and recommendation policy.
// It is passed by value; the zero value is not usable, start from DefaultPolicy.
type Policy struct {
	Weights ComponentWeights `json:"weights" yaml:"weights"`

	// FlowScale multiplies |net foreign| / total turnover before capping at 1
	FlowScale float64 `json:"flow_scale" yaml:"flow_scale"`
	// NeutralComponent is used for flow/liquidity/stability when their inputs are unknown
	NeutralComponent float64 `json:"neutral_component" yaml:"neutral_component"`
	// MaxPriceDeviation caps the relative deviation used by the stability component
	MaxPriceDeviation float64 `json:"max_price_deviation" yaml:"max_price_deviation"`

	// DivergenceAdjustment is added (net foreign > 0) or subtracted when divergence is flagged
	DivergenceAdjustment float64 `json:"divergence_adjustment" yaml:"divergence_adjustment"`
	MinPairedDays        int     `json:"min_paired_days" yaml:"min_paired_days"`

	ScoreBands      []ScoreBand      `json:"score_bands" yaml:"score_bands"`
	DivergenceBands []DivergenceBand `json:"divergence_bands" yaml:"divergence_bands"`

	// Support and cut-loss derivation
	SupportMultiplier         float64 `json:"support_multiplier" yaml:"support_multiplier"`
	FallbackSupportMultiplier float64 `json:"fallback_support_multiplier" yaml:"fallback_support_multiplier"`
	CutLossMultiplier         float64 `json:"cut_loss_multiplier" yaml:"cut_loss_multiplier"`
	UptrendMultiplier         float64 `json:"uptrend_multiplier" yaml:"uptrend_multiplier"`
}

// Band labels of the default policy
const (
	LabelStrongAccumulation   = "Strong Accumulation"
	LabelModerateAccumulation = "Moderate Accumulation"
	LabelNeutral              = "Neutral"
	LabelModerateDistribution = "Moderate Distribution"
	LabelStrongDistribution   = "Strong Distribution"

	TrendUp    = "Uptrend"
	TrendCheck = "Check Trend"
)

// DefaultPolicy returns the canonical scoring policy
func DefaultPolicy() Policy {
	return Policy{
		Weights: ComponentWeights{
			Streak:    0.45,
			Flow:      0.25,
			Stability: 0.15,
			Liquidity: 0.10,
		},
		FlowScale:            10,
		NeutralComponent:     0.5,
		MaxPriceDeviation:    0.5,
		DivergenceAdjustment: 5,
		MinPairedDays:        3,
		ScoreBands: []ScoreBand{
			{Lower: 0, Label: LabelStrongDistribution, Advice: "Sell / Avoid"},
			{Lower: 40, Label: LabelModerateDistribution, Advice: "Take profit / reduce position",
				Zones: ZoneRule{SellMultiplier: 0.995}},
			{Lower: 55, Label: LabelNeutral, Advice: "Wait for confirmation (watch volume & foreign net)"},
			{Lower: 70, Label: LabelModerateAccumulation, Advice: "Hold / add on weakness (scale-in)",
				Zones: ZoneRule{BuyMultiplier: 0.99, SellMultiplier: 1.06}, Accumulation: true},
			{Lower: 85, Label: LabelStrongAccumulation, Advice: "Aggressive hold / buy on breakout",
				Zones: ZoneRule{BuyMultiplier: 1.0, SellMultiplier: 1.08}, Accumulation: true},
		},
		DivergenceBands: []DivergenceBand{
			{Lower: math.Inf(-1), Label: "strong divergence", Flag: true,
				Narrative: "Foreign and retail flows move in opposite directions: early reversal or hidden accumulation"},
			{Lower: -0.65, Label: "moderate divergence", Flag: true,
				Narrative: "Foreign and retail flows lean in opposite directions"},
			{Lower: -0.40, Label: "no significant divergence", Flag: false,
				Narrative: "No significant divergence"},
		},
		SupportMultiplier:         0.985,
		FallbackSupportMultiplier: 0.98,
		CutLossMultiplier:         0.985,
		UptrendMultiplier:         1.01,
	}
}

// Validate checks the policy and returns the first problem found
func (p Policy) Validate() error {
	if !p.Weights.IsValid() {
		return fmt.Errorf("%w: weights must be non-negative and sum to at most 1 (got %.4f)", ErrInvalidConfig, p.Weights.Sum())
	}
	if p.FlowScale <= 0 {
		return fmt.Errorf("%w: flow scale must be positive", ErrInvalidConfig)
	}
	if p.NeutralComponent < 0 || p.NeutralComponent > 1 {
		return fmt.Errorf("%w: neutral component must be in [0,1]", ErrInvalidConfig)
	}
	if p.MaxPriceDeviation <= 0 || p.MaxPriceDeviation > 1 {
		return fmt.Errorf("%w: max price deviation must be in (0,1]", ErrInvalidConfig)
	}
	if p.DivergenceAdjustment < 0 {
		return fmt.Errorf("%w: divergence adjustment must not be negative", ErrInvalidConfig)
	}
	if p.MinPairedDays < 2 {
		return fmt.Errorf("%w: at least 2 paired days are needed for a correlation", ErrInvalidConfig)
	}
	if len(p.ScoreBands) == 0 || lowestScoreBound(p.ScoreBands) > 0 {
		return fmt.Errorf("%w: score bands must cover 0", ErrInvalidConfig)
	}
	if len(p.DivergenceBands) == 0 || lowestDivergenceBound(p.DivergenceBands) > -1 {
		return fmt.Errorf("%w: divergence bands must cover -1", ErrInvalidConfig)
	}
	return nil
}

// sorted returns a copy of the policy with both band tables ordered by lower bound
func (p Policy) sorted() Policy {
	scoreBands := append([]ScoreBand(nil), p.ScoreBands...)
	sort.SliceStable(scoreBands, func(i, j int) bool { return scoreBands[i].Lower < scoreBands[j].Lower })
	divBands := append([]DivergenceBand(nil), p.DivergenceBands...)
	sort.SliceStable(divBands, func(i, j int) bool { return divBands[i].Lower < divBands[j].Lower })
	p.ScoreBands = scoreBands
	p.DivergenceBands = divBands
	return p
}

func lowestScoreBound(bands []ScoreBand) float64 {
	lowest := math.Inf(1)
	for _, b := range bands {
		lowest = math.Min(lowest, b.Lower)
	}
	return lowest
}

func lowestDivergenceBound(bands []DivergenceBand) float64 {
	lowest := math.Inf(1)
	for _, b := range bands {
		lowest = math.Min(lowest, b.Lower)
	}
	return lowest
}

// scoreBandFor returns the band with the greatest lower bound not above score.
// Bands must be sorted ascending.
func scoreBandFor(bands []ScoreBand, score float64) ScoreBand {
	idx := sort.Search(len(bands), func(i int) bool { return bands[i].Lower > score }) - 1
	if idx < 0 {
		idx = 0
	}
	return bands[idx]
}

// divergenceBandFor is the divergence counterpart of scoreBandFor
func divergenceBandFor(bands []DivergenceBand, r float64) DivergenceBand {
	idx := sort.Search(len(bands), func(i int) bool { return bands[i].Lower > r }) - 1
	if idx < 0 {
		idx = 0
	}
	return bands[idx]
}
