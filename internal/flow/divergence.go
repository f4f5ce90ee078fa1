package flow

import (
	"math"
)

// DetectDivergence correlates daily foreign net flow with daily retail net flow.
// Days without retail data are left out of the pairing.
func (p Policy) DetectDivergence(window []DailyRecord) Divergence {
	foreign := make([]float64, 0, len(window))
	retail := make([]float64, 0, len(window))

	for _, rec := range window {
		net, ok := rec.RetailNet()
		if !ok {
			continue
		}
		foreign = append(foreign, rec.ForeignNet())
		retail = append(retail, net)
	}

	if len(retail) == 0 {
		return Divergence{
			Status:    DivergenceUnavailable,
			Narrative: "Retail data unavailable for divergence detection",
		}
	}

	minPaired := max(p.MinPairedDays, 2)
	if len(retail) < minPaired {
		return Divergence{
			Status:     DivergenceInsufficient,
			Narrative:  "Not enough paired foreign/retail days for correlation",
			PairedDays: len(retail),
		}
	}

	r, ok := pearson(foreign, retail)
	if !ok {
		return Divergence{
			Status:     DivergenceInsufficient,
			Narrative:  "Correlation undefined: a flow series is constant",
			PairedDays: len(retail),
		}
	}

	band := divergenceBandFor(p.sorted().DivergenceBands, r)
	return Divergence{
		Status:      DivergenceComputed,
		Correlation: r,
		Flag:        band.Flag,
		Band:        band.Label,
		Narrative:   band.Narrative,
		PairedDays:  len(retail),
	}
}

// pearson computes the Pearson correlation coefficient.
// ok is false when either series has zero variance or the result is not finite.
func pearson(x, y []float64) (float64, bool) {
	if len(x) != len(y) || len(x) < 2 {
		return 0, false
	}

	meanX := mean(x)
	meanY := mean(y)

	var sumXY, sumXX, sumYY float64
	for i := range x {
		dx := x[i] - meanX
		dy := y[i] - meanY
		sumXY += dx * dy
		sumXX += dx * dx
		sumYY += dy * dy
	}

	if sumXX == 0 || sumYY == 0 {
		return 0, false
	}

	r := sumXY / math.Sqrt(sumXX*sumYY)
	if math.IsNaN(r) || math.IsInf(r, 0) {
		return 0, false
	}

	return clamp(r, -1, 1), true
}

func mean(values []float64) float64 {
	if len(values) == 0 {
		return 0
	}
	var sum float64
	for _, v := range values {
		sum += v
	}
	return sum / float64(len(values))
}
