package flow

import (
	"fmt"
	"sort"
)

// Minimum number of records a window needs before it is scored
const MinWindowDays = 5

// MinRequiredDays returns the minimum record count for a period: max(5, period/3),
// capped at the period itself so that a complete window always qualifies.
func MinRequiredDays(period int) int {
	return min(max(MinWindowDays, period/3), period)
}

// Aggregate reduces a chronologically ascending window into Metrics.
// Only the last period records are used.
func Aggregate(window []DailyRecord, period int) (Metrics, error) {
	if period <= 0 {
		return Metrics{}, fmt.Errorf("%w: period must be positive, got %d", ErrInvalidConfig, period)
	}

	if len(window) > period {
		window = window[len(window)-period:]
	}

	required := MinRequiredDays(period)
	if len(window) == 0 || len(window) < required {
		return Metrics{}, fmt.Errorf("%w: %d days < %d required", ErrInsufficientData, len(window), required)
	}

	var (
		m              = Metrics{Symbol: window[0].Symbol, DaysUsed: len(window)}
		weightedPrice  float64
		priceSum       float64
		turnoverSum    float64
		retailSum      float64
		retailComplete = true
	)

	for i, rec := range window {
		if !rec.HasPrice() {
			return Metrics{}, fmt.Errorf("%w: %s record %d (%s)", ErrMissingPrice, rec.Symbol, i, rec.Date.Format("2006-01-02"))
		}

		buy, sell := finiteOrZero(rec.ForeignBuy), finiteOrZero(rec.ForeignSell)
		m.ForeignBuyTotal += buy
		m.ForeignSellTotal += sell

		switch net := rec.ForeignNet(); {
		case net > 0:
			m.Streak++
		case net < 0:
			m.DownDays++
		}

		weightedPrice += rec.Close * buy
		priceSum += rec.Close
		turnoverSum += rec.Turnover()

		if net, ok := rec.RetailNet(); ok {
			retailSum += net
		} else {
			retailComplete = false
		}
	}

	days := float64(len(window))
	m.NetForeign = m.ForeignBuyTotal - m.ForeignSellTotal
	m.AvgPrice = priceSum / days
	m.LastPrice = window[len(window)-1].Close
	m.AvgDailyTurnover = turnoverSum / days

	if m.ForeignBuyTotal > 0 {
		m.WeightedAvgPrice = weightedPrice / m.ForeignBuyTotal
	} else {
		m.WeightedAvgPrice = m.AvgPrice
		m.PriceFallback = true
	}

	if m.AvgPrice > 0 {
		m.PctChangeVsAvg = (m.LastPrice - m.AvgPrice) / m.AvgPrice * 100
	}

	if retailComplete {
		m.RetailNet = ptr(retailSum)
	}

	return m, nil
}

// orderWindow returns the window sorted by date ascending, copying only when needed
func orderWindow(window []DailyRecord) []DailyRecord {
	if sort.SliceIsSorted(window, func(i, j int) bool { return window[i].Date.Before(window[j].Date) }) {
		return window
	}
	ordered := append([]DailyRecord(nil), window...)
	sort.SliceStable(ordered, func(i, j int) bool { return ordered[i].Date.Before(ordered[j].Date) })
	return ordered
}
