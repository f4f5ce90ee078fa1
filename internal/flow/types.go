package flow

import (
	"errors"
	"math"
	"time"
)

var (
	// ErrInsufficientData is returned when a window is empty or shorter than the minimum day count
	ErrInsufficientData = errors.New("insufficient data")
	// ErrMissingPrice is returned when any record in the window lacks a closing price
	ErrMissingPrice = errors.New("missing closing price")
	// ErrInvalidConfig is returned for invalid invocations (non-positive period, negative top_n, ...)
	ErrInvalidConfig = errors.New("invalid analysis config")
)

// DailyRecord represents a single day's trading facts for a symbol
type DailyRecord struct {
	Symbol      string    `json:"symbol"`
	Date        time.Time `json:"date"`
	Close       float64   `json:"close"`
	Volume      float64   `json:"volume"`
	ForeignBuy  float64   `json:"foreign_buy"`  // Value bought by foreign participants
	ForeignSell float64   `json:"foreign_sell"` // Value sold by foreign participants
	RetailBuy   *float64  `json:"retail_buy,omitempty"`
	RetailSell  *float64  `json:"retail_sell,omitempty"`
}

// HasPrice reports whether the record carries a usable closing price
func (r DailyRecord) HasPrice() bool {
	return r.Close > 0 && !math.IsInf(r.Close, 0)
}

// HasRetail reports whether both retail fields are present
func (r DailyRecord) HasRetail() bool {
	return r.RetailBuy != nil && r.RetailSell != nil
}

// ForeignNet returns foreign buy minus foreign sell for the day.
// Non-finite amounts count as zero.
func (r DailyRecord) ForeignNet() float64 {
	return finiteOrZero(r.ForeignBuy) - finiteOrZero(r.ForeignSell)
}

// RetailNet returns retail buy minus retail sell; ok is false when retail data
// is absent or not finite
func (r DailyRecord) RetailNet() (net float64, ok bool) {
	if !r.HasRetail() {
		return 0, false
	}
	net = *r.RetailBuy - *r.RetailSell
	if !isFinite(net) {
		return 0, false
	}
	return net, true
}

// Turnover returns close times volume
func (r DailyRecord) Turnover() float64 {
	return r.Close * finiteOrZero(r.Volume)
}

// Metrics contains the aggregates derived from a symbol window
type Metrics struct {
	Symbol           string   `json:"symbol"`
	ForeignBuyTotal  float64  `json:"foreign_buy_total"`
	ForeignSellTotal float64  `json:"foreign_sell_total"`
	NetForeign       float64  `json:"net_foreign"`
	Streak           int      `json:"streak"`    // Days with positive foreign net
	DownDays         int      `json:"down_days"` // Days with negative foreign net
	WeightedAvgPrice float64  `json:"weighted_avg_price"`
	PriceFallback    bool     `json:"price_fallback"` // WeightedAvgPrice is the mean close (no foreign buying)
	AvgPrice         float64  `json:"avg_price"`
	LastPrice        float64  `json:"last_price"`
	PctChangeVsAvg   float64  `json:"pct_change_vs_avg"`
	AvgDailyTurnover float64  `json:"avg_daily_turnover"`
	RetailNet        *float64 `json:"retail_net,omitempty"`
	DaysUsed         int      `json:"days_used"`
}

// TotalTurnover returns the summed close*volume of the window, false when no volume is known
func (m Metrics) TotalTurnover() (float64, bool) {
	if m.AvgDailyTurnover <= 0 || m.DaysUsed == 0 {
		return 0, false
	}
	return m.AvgDailyTurnover * float64(m.DaysUsed), true
}

// DivergenceStatus describes whether a correlation could be computed
type DivergenceStatus int

const (
	// DivergenceUnavailable means no retail series exists for the symbol
	DivergenceUnavailable DivergenceStatus = iota
	// DivergenceInsufficient means too few paired days or a zero-variance series
	DivergenceInsufficient
	// DivergenceComputed means Correlation holds a valid coefficient
	DivergenceComputed
)

// String returns the string representation of the status
func (s DivergenceStatus) String() string {
	switch s {
	case DivergenceUnavailable:
		return "unavailable"
	case DivergenceInsufficient:
		return "insufficient-data"
	case DivergenceComputed:
		return "computed"
	default:
		return "unknown"
	}
}

// MarshalText implements encoding.TextMarshaler
func (s DivergenceStatus) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// Divergence is the result of the foreign/retail correlation check
type Divergence struct {
	Status      DivergenceStatus `json:"status"`
	Correlation float64          `json:"correlation"` // Only meaningful when Status is DivergenceComputed
	Flag        bool             `json:"flag"`
	Band        string           `json:"band,omitempty"`
	Narrative   string           `json:"narrative"`
	PairedDays  int              `json:"paired_days"`
}

// Computed reports whether a correlation coefficient is available
func (d Divergence) Computed() bool {
	return d.Status == DivergenceComputed
}

// Recommendation is the labeled trade-zone advice for a symbol
type Recommendation struct {
	Label    string   `json:"label"`
	Advice   string   `json:"advice"`
	BuyZone  *float64 `json:"buy_zone,omitempty"`
	SellZone *float64 `json:"sell_zone,omitempty"`
	CutLoss  *float64 `json:"cut_loss,omitempty"`
	Trend    string   `json:"trend"`
	Flexible bool     `json:"flexible"` // Uptrend while still accumulating: trail the exit
}

// ReportEntry is one ranked line of the report
type ReportEntry struct {
	Symbol            string         `json:"symbol"`
	Metrics           Metrics        `json:"metrics"`
	BaseScore         float64        `json:"base_score"`
	Score             float64        `json:"score"` // After divergence adjustment
	Divergence        Divergence     `json:"divergence"`
	Recommendation    Recommendation `json:"recommendation"`
	LiquidityEstimate *float64       `json:"liquidity_estimate,omitempty"`
}

// Liquidity returns the liquidity estimate and whether it is known
func (e ReportEntry) Liquidity() (float64, bool) {
	if e.LiquidityEstimate == nil {
		return 0, false
	}
	return *e.LiquidityEstimate, true
}

func isFinite(v float64) bool {
	return !math.IsNaN(v) && !math.IsInf(v, 0)
}

// finiteOrZero treats NaN and infinite amounts as missing
func finiteOrZero(v float64) float64 {
	if !isFinite(v) {
		return 0
	}
	return v
}

func ptr(v float64) *float64 {
	return &v
}
