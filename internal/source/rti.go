package source

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"net/http/cookiejar"
	"net/url"
	"sort"
	"strings"
	"sync"
	"time"

	apierrors "chanalysis/internal/errors"
	"chanalysis/internal/flow"
)

// RTIConfig holds the RTI API endpoints and optional credentials
type RTIConfig struct {
	APIBase  string
	LoginURL string
	Email    string
	Password string
}

// RTIClient reads foreign flow from the RTI JSON API
type RTIClient struct {
	cfg      RTIConfig
	upstream *upstream
	session  loginSession
}

// NewRTIClient creates a client. The HTTP client gets a cookie jar so a login
// session carries over to later API calls.
func NewRTIClient(cfg RTIConfig, opts ClientOptions) *RTIClient {
	opts = opts.withDefaults()
	if opts.HTTPClient.Jar == nil {
		jar, _ := cookiejar.New(nil)
		client := *opts.HTTPClient
		client.Jar = jar
		opts.HTTPClient = &client
	}
	cfg.APIBase = strings.TrimRight(cfg.APIBase, "/")
	return &RTIClient{
		cfg:      cfg,
		upstream: newUpstream("rti", opts),
	}
}

// rtiEnvelope is the {"data": [...]} wrapper of every RTI response
type rtiEnvelope[T any] struct {
	Data []T `json:"data"`
}

type rtiFlowItem struct {
	Date        string   `json:"Date"`
	Close       *float64 `json:"Close"`
	Volume      *float64 `json:"Volume"`
	ForeignBuy  *float64 `json:"ForeignBuy"`
	ForeignSell *float64 `json:"ForeignSell"`
	RetailBuy   *float64 `json:"RetailBuy"`
	RetailSell  *float64 `json:"RetailSell"`
}

type rtiTopItem struct {
	Code string `json:"Code"`
}

// Window returns the last days records of symbol's foreign flow, oldest first
func (c *RTIClient) Window(ctx context.Context, symbol string, days int) ([]flow.DailyRecord, error) {
	c.ensureLogin(ctx)

	endpoint := fmt.Sprintf("%s/api/StockDetail/%s/ForeignFlow", c.cfg.APIBase, url.PathEscape(symbol))
	body, err := c.upstream.get(ctx, endpoint)
	if err != nil {
		return nil, err
	}

	var env rtiEnvelope[rtiFlowItem]
	if err := json.Unmarshal(body, &env); err != nil {
		return nil, apierrors.NewParsingError("decode rti foreign flow", err).WithContext("symbol", symbol)
	}

	records := make([]flow.DailyRecord, 0, len(env.Data))
	for _, item := range env.Data {
		date, err := parseDate(item.Date)
		if err != nil {
			c.upstream.logger.DebugContext(ctx, "skipping rti row with bad date",
				slog.String("symbol", symbol),
				slog.String("date", item.Date),
			)
			continue
		}
		records = append(records, flow.DailyRecord{
			Symbol:      symbol,
			Date:        date,
			Close:       valueOr0(item.Close),
			Volume:      valueOr0(item.Volume),
			ForeignBuy:  valueOr0(item.ForeignBuy),
			ForeignSell: valueOr0(item.ForeignSell),
			RetailBuy:   item.RetailBuy,
			RetailSell:  item.RetailSell,
		})
	}

	return tail(sortByDate(records), days), nil
}

// TopForeign returns up to n symbols from the market top foreign flow list
func (c *RTIClient) TopForeign(ctx context.Context, n int) ([]string, error) {
	c.ensureLogin(ctx)

	body, err := c.upstream.get(ctx, c.cfg.APIBase+"/api/Market/TopForeignFlow")
	if err != nil {
		return nil, err
	}

	var env rtiEnvelope[rtiTopItem]
	if err := json.Unmarshal(body, &env); err != nil {
		return nil, apierrors.NewParsingError("decode rti top foreign flow", err)
	}

	symbols := make([]string, 0, n)
	for _, item := range env.Data {
		if len(symbols) == n {
			break
		}
		if code := strings.ToUpper(strings.TrimSpace(item.Code)); code != "" {
			symbols = append(symbols, code)
		}
	}
	return symbols, nil
}

// ensureLogin posts the credentials until one login succeeds. A failed login is
// logged and the client carries on anonymously, since most endpoints answer
// without a session.
func (c *RTIClient) ensureLogin(ctx context.Context) {
	if c.cfg.Email == "" || c.cfg.Password == "" || c.cfg.LoginURL == "" {
		return
	}
	if err := c.session.ensure(ctx, c.upstream, c.cfg.LoginURL, c.cfg.Email, c.cfg.Password); err != nil {
		c.upstream.logger.WarnContext(ctx, "rti login failed, continuing without session",
			slog.String("error", err.Error()))
	}
}

// Minimum gap between login attempts after an upstream failure
const loginRetryAfter = time.Minute

// loginSession remembers a successful login. Attempts cut short by the
// caller's context are retried on the next call; other failures wait
// loginRetryAfter.
type loginSession struct {
	mu       sync.Mutex
	loggedIn bool
	failedAt time.Time
}

func (s *loginSession) ensure(ctx context.Context, u *upstream, loginURL, email, password string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.loggedIn {
		return nil
	}
	if !s.failedAt.IsZero() && time.Since(s.failedAt) < loginRetryAfter {
		return nil
	}

	err := login(ctx, u, loginURL, email, password)
	switch {
	case err == nil:
		s.loggedIn = true
	case ctx.Err() == nil:
		s.failedAt = time.Now()
	}
	return err
}

func login(ctx context.Context, u *upstream, loginURL, email, password string) error {
	form := url.Values{"email": {email}, "password": {password}}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, loginURL, strings.NewReader(form.Encode()))
	if err != nil {
		return fmt.Errorf("build login request: %w", err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.Header.Set("Accept", "text/html,application/json")
	_, err = u.do(ctx, req)
	return err
}

var dateLayouts = []string{
	time.RFC3339,
	"2006-01-02T15:04:05",
	"2006-01-02 15:04:05",
	"2006-01-02",
}

func parseDate(s string) (time.Time, error) {
	s = strings.TrimSpace(s)
	for _, layout := range dateLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t, nil
		}
	}
	return time.Time{}, fmt.Errorf("unrecognised date %q", s)
}

func valueOr0(v *float64) float64 {
	if v == nil {
		return 0
	}
	return *v
}

func sortByDate(records []flow.DailyRecord) []flow.DailyRecord {
	sort.SliceStable(records, func(i, j int) bool {
		return records[i].Date.Before(records[j].Date)
	})
	return records
}

// tail keeps the last n records; n <= 0 keeps everything
func tail(records []flow.DailyRecord, n int) []flow.DailyRecord {
	if n > 0 && len(records) > n {
		return records[len(records)-n:]
	}
	return records
}
