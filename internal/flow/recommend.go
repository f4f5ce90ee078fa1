package flow

// Recommend maps the final score, divergence and metrics to a recommendation.
// It is a pure function of its inputs.
func (p Policy) Recommend(m Metrics, score float64, d Divergence) Recommendation {
	band := scoreBandFor(p.sorted().ScoreBands, ClampScore(score))

	rec := Recommendation{
		Label:  band.Label,
		Advice: band.Advice,
		Trend:  TrendCheck,
	}

	// A flagged divergence while foreign flow is net positive hints at hidden accumulation
	if d.Computed() && d.Flag && band.Accumulation && m.NetForeign > 0 {
		rec.Advice += " (divergence supports accumulation)"
	}

	hasAvg := m.WeightedAvgPrice > 0
	hasLast := m.LastPrice > 0

	if band.Zones.BuyMultiplier > 0 {
		switch {
		case hasAvg:
			rec.BuyZone = ptr(m.WeightedAvgPrice * band.Zones.BuyMultiplier)
		case hasLast:
			rec.BuyZone = ptr(m.LastPrice)
		}
	}
	if band.Zones.SellMultiplier > 0 && hasLast {
		rec.SellZone = ptr(m.LastPrice * band.Zones.SellMultiplier)
	}

	var support float64
	switch {
	case hasAvg:
		support = m.WeightedAvgPrice * p.SupportMultiplier
	case hasLast:
		support = m.LastPrice * p.FallbackSupportMultiplier
	}
	if support > 0 {
		rec.CutLoss = ptr(support * p.CutLossMultiplier)
	}

	if hasAvg && hasLast && m.LastPrice > m.WeightedAvgPrice*p.UptrendMultiplier {
		rec.Trend = TrendUp
	}
	rec.Flexible = rec.Trend == TrendUp && band.Accumulation

	return rec
}
