package flow

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestComponentWeights(t *testing.T) {
	tests := []struct {
		name    string
		weights ComponentWeights
		valid   bool
	}{
		{"default", DefaultPolicy().Weights, true},
		{"exactly one", ComponentWeights{0.4, 0.3, 0.2, 0.1}, true},
		{"above one", ComponentWeights{0.5, 0.3, 0.2, 0.1}, false},
		{"negative weight", ComponentWeights{0.6, -0.1, 0.2, 0.1}, false},
		{"all zero", ComponentWeights{}, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.valid, tt.weights.IsValid())
		})
	}

	assert.InDelta(t, 0.95, DefaultPolicy().Weights.Sum(), 1e-9)
}

func TestPolicyValidate(t *testing.T) {
	tests := []struct {
		name   string
		modify func(*Policy)
	}{
		{"zero flow scale", func(p *Policy) { p.FlowScale = 0 }},
		{"neutral above one", func(p *Policy) { p.NeutralComponent = 1.5 }},
		{"zero max deviation", func(p *Policy) { p.MaxPriceDeviation = 0 }},
		{"negative adjustment", func(p *Policy) { p.DivergenceAdjustment = -5 }},
		{"one paired day", func(p *Policy) { p.MinPairedDays = 1 }},
		{"no score bands", func(p *Policy) { p.ScoreBands = nil }},
		{"score bands miss zero", func(p *Policy) { p.ScoreBands = p.ScoreBands[1:] }},
		{"no divergence bands", func(p *Policy) { p.DivergenceBands = nil }},
		{"divergence bands miss minus one", func(p *Policy) { p.DivergenceBands = p.DivergenceBands[1:] }},
	}

	assert.NoError(t, DefaultPolicy().Validate())

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := DefaultPolicy()
			tt.modify(&p)
			assert.ErrorIs(t, p.Validate(), ErrInvalidConfig)
		})
	}
}

func TestPolicySortedDoesNotMutate(t *testing.T) {
	p := DefaultPolicy()
	p.ScoreBands[0], p.ScoreBands[4] = p.ScoreBands[4], p.ScoreBands[0]

	sorted := p.sorted()

	assert.Equal(t, LabelStrongDistribution, sorted.ScoreBands[0].Label)
	assert.Equal(t, LabelStrongAccumulation, p.ScoreBands[0].Label)
}

func TestDivergenceStatusString(t *testing.T) {
	assert.Equal(t, "unavailable", DivergenceUnavailable.String())
	assert.Equal(t, "insufficient-data", DivergenceInsufficient.String())
	assert.Equal(t, "computed", DivergenceComputed.String())
	assert.Equal(t, "unknown", DivergenceStatus(9).String())
}
