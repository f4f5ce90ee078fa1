package source

import (
	"context"
	"encoding/json"
	"fmt"
	"net/url"
	"strings"
	"time"

	apierrors "chanalysis/internal/errors"
	"chanalysis/internal/flow"
)

// StockbitClient reads daily price and volume from the public Stockbit chart endpoint
type StockbitClient struct {
	baseURL  string
	upstream *upstream
}

// NewStockbitClient creates a client rooted at baseURL
func NewStockbitClient(baseURL string, opts ClientOptions) *StockbitClient {
	return &StockbitClient{
		baseURL:  strings.TrimRight(baseURL, "/"),
		upstream: newUpstream("stockbit", opts),
	}
}

type stockbitCandle struct {
	T *int64   `json:"t"`
	C *float64 `json:"c"`
	V *float64 `json:"v"`
}

// Window returns up to days candles as records with zero foreign flow
func (c *StockbitClient) Window(ctx context.Context, symbol string, days int) ([]flow.DailyRecord, error) {
	endpoint := fmt.Sprintf("%s/api/chart/%s/historical?range=%dd", c.baseURL, url.PathEscape(symbol), days)
	body, err := c.upstream.get(ctx, endpoint)
	if err != nil {
		return nil, err
	}

	var env struct {
		Data []stockbitCandle `json:"data"`
	}
	if err := json.Unmarshal(body, &env); err != nil {
		return nil, apierrors.NewParsingError("decode stockbit chart", err).WithContext("symbol", symbol)
	}

	records := make([]flow.DailyRecord, 0, len(env.Data))
	for _, candle := range env.Data {
		if candle.T == nil {
			continue
		}
		records = append(records, flow.DailyRecord{
			Symbol: symbol,
			Date:   time.Unix(*candle.T, 0).UTC(),
			Close:  valueOr0(candle.C),
			Volume: valueOr0(candle.V),
		})
	}

	return tail(sortByDate(records), days), nil
}

// LiquidityEstimate returns the last close times the last volume.
// ok is false when the chart has no usable candle.
func (c *StockbitClient) LiquidityEstimate(ctx context.Context, symbol string) (float64, bool, error) {
	records, err := c.Window(ctx, symbol, 5)
	if err != nil {
		return 0, false, err
	}
	for i := len(records) - 1; i >= 0; i-- {
		if turnover := records[i].Turnover(); turnover > 0 {
			return turnover, true, nil
		}
	}
	return 0, false, nil
}
