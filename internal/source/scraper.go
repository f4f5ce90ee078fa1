package source

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"net/http"
	"net/http/cookiejar"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
	"github.com/chromedp/chromedp"

	apierrors "chanalysis/internal/errors"
	"chanalysis/internal/flow"
)

// PageFetcher returns the HTML of a page
type PageFetcher interface {
	Fetch(ctx context.Context, pageURL string) (string, error)
}

// HTTPFetcher fetches pages over plain HTTP, logging in when credentials are set
type HTTPFetcher struct {
	upstream *upstream
	loginURL string
	email    string
	password string
	session  loginSession
}

// NewHTTPFetcher creates a fetcher with its own cookie-backed session
func NewHTTPFetcher(loginURL, email, password string, opts ClientOptions) *HTTPFetcher {
	opts = opts.withDefaults()
	if opts.HTTPClient.Jar == nil {
		jar, _ := cookiejar.New(nil)
		client := *opts.HTTPClient
		client.Jar = jar
		opts.HTTPClient = &client
	}
	return &HTTPFetcher{
		upstream: newUpstream("rti_web", opts),
		loginURL: loginURL,
		email:    email,
		password: password,
	}
}

// Fetch implements PageFetcher
func (f *HTTPFetcher) Fetch(ctx context.Context, pageURL string) (string, error) {
	if f.email != "" && f.password != "" && f.loginURL != "" {
		if err := f.session.ensure(ctx, f.upstream, f.loginURL, f.email, f.password); err != nil {
			f.upstream.logger.WarnContext(ctx, "rti web login failed, continuing without session",
				slog.String("error", err.Error()))
		}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, pageURL, nil)
	if err != nil {
		return "", fmt.Errorf("build page request: %w", err)
	}
	req.Header.Set("Accept", "text/html")
	body, err := f.upstream.do(ctx, req)
	if err != nil {
		return "", err
	}
	return string(body), nil
}

// BrowserFetcher renders pages in headless Chrome before reading the DOM
type BrowserFetcher struct {
	allocCtx    context.Context
	cancel      context.CancelFunc
	waitFor     string
	pageTimeout time.Duration
	logger      *slog.Logger
}

// NewBrowserFetcher starts a headless Chrome allocator. Close releases it.
func NewBrowserFetcher(userAgent string, pageTimeout time.Duration, logger *slog.Logger) *BrowserFetcher {
	if logger == nil {
		logger = slog.Default()
	}
	if pageTimeout <= 0 {
		pageTimeout = 30 * time.Second
	}
	opts := append(chromedp.DefaultExecAllocatorOptions[:],
		chromedp.Flag("headless", true),
		chromedp.DisableGPU,
	)
	if userAgent != "" {
		opts = append(opts, chromedp.UserAgent(userAgent))
	}
	allocCtx, cancel := chromedp.NewExecAllocator(context.Background(), opts...)

	return &BrowserFetcher{
		allocCtx:    allocCtx,
		cancel:      cancel,
		waitFor:     "table",
		pageTimeout: pageTimeout,
		logger:      logger.With(slog.String("component", "source.browser")),
	}
}

// Fetch implements PageFetcher
func (f *BrowserFetcher) Fetch(ctx context.Context, pageURL string) (string, error) {
	tabCtx, cancelTab := chromedp.NewContext(f.allocCtx)
	defer cancelTab()
	tabCtx, cancelTimeout := context.WithTimeout(tabCtx, f.pageTimeout)
	defer cancelTimeout()

	// propagate the caller's cancellation into the browser tab
	stop := context.AfterFunc(ctx, cancelTab)
	defer stop()

	var html string
	start := time.Now()
	err := chromedp.Run(tabCtx,
		chromedp.Navigate(pageURL),
		chromedp.WaitReady(f.waitFor, chromedp.ByQuery),
		chromedp.OuterHTML("html", &html, chromedp.ByQuery),
	)
	if err != nil {
		return "", apierrors.NewNetworkError("render page", err).WithContext("url", pageURL)
	}
	f.logger.DebugContext(ctx, "page rendered",
		slog.String("url", pageURL),
		slog.Duration("duration", time.Since(start)),
	)
	return html, nil
}

// Close shuts the browser down
func (f *BrowserFetcher) Close() {
	f.cancel()
}

// TableRow is one symbol's line of the foreign table for a single day
type TableRow struct {
	Symbol      string
	ForeignBuy  float64
	ForeignSell float64
	Price       float64  // 0 when the cell is empty or unreadable
	RetailNet   *float64 // present only on wide tables
}

// ParseForeignTable reads the first table of the page. Columns are symbol,
// (unused), foreign buy, foreign sell, price, (unused), retail net. Rows with
// fewer than five cells are skipped.
func ParseForeignTable(html string) ([]TableRow, error) {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return nil, apierrors.NewParsingError("parse foreign table html", err)
	}

	table := doc.Find("table").First()
	if table.Length() == 0 {
		return nil, nil
	}

	var rows []TableRow
	table.Find("tr").Each(func(i int, tr *goquery.Selection) {
		if i == 0 {
			return // header
		}
		var cells []string
		tr.Find("td").Each(func(_ int, td *goquery.Selection) {
			cells = append(cells, strings.TrimSpace(td.Text()))
		})
		if len(cells) < 5 || cells[0] == "" {
			return
		}

		row := TableRow{
			Symbol:      strings.ToUpper(cells[0]),
			ForeignBuy:  zeroIfNaN(ParseAmount(cells[2])),
			ForeignSell: zeroIfNaN(ParseAmount(cells[3])),
			Price:       zeroIfNaN(ParseAmount(cells[4])),
		}
		if len(cells) >= 7 {
			if v := ParseAmount(cells[6]); !math.IsNaN(v) {
				row.RetailNet = &v
			}
		}
		rows = append(rows, row)
	})
	return rows, nil
}

var nonNumeric = regexp.MustCompile(`[^\d.\-]`)

// ParseAmount reads a money or volume cell such as "Rp 1,250,000" or
// "IDR -3,400.5". It returns NaN when nothing numeric remains.
func ParseAmount(s string) float64 {
	s = strings.TrimSpace(s)
	s = strings.ReplaceAll(s, ",", "")
	s = strings.ReplaceAll(s, "IDR", "")
	s = strings.ReplaceAll(s, "Rp", "")
	s = nonNumeric.ReplaceAllString(s, "")
	if s == "" {
		return math.NaN()
	}
	v, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return math.NaN()
	}
	return v
}

func zeroIfNaN(v float64) float64 {
	if math.IsNaN(v) {
		return 0
	}
	return v
}

// RTIScraper collects per-day foreign tables into per-symbol windows
type RTIScraper struct {
	fetcher    PageFetcher
	foreignURL string
	pause      time.Duration
	now        func() time.Time
	logger     *slog.Logger
}

// NewRTIScraper creates a scraper reading {foreignURL}?date=YYYY-MM-DD pages
func NewRTIScraper(fetcher PageFetcher, foreignURL string, logger *slog.Logger) *RTIScraper {
	if logger == nil {
		logger = slog.Default()
	}
	return &RTIScraper{
		fetcher:    fetcher,
		foreignURL: foreignURL,
		pause:      150 * time.Millisecond,
		now:        time.Now,
		logger:     logger.With(slog.String("component", "source.rti_scraper")),
	}
}

// Collect walks back one calendar day at a time from today until days dates
// returned rows, giving up after days*4 attempts. Pages that fail or hold no
// table count as non-trading days.
func (s *RTIScraper) Collect(ctx context.Context, days int) (*MemorySource, error) {
	mem := NewMemorySource()
	if days <= 0 {
		return mem, nil
	}

	d := s.now()
	fetched, attempts := 0, 0
	for fetched < days && attempts < days*4 {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		date := time.Date(d.Year(), d.Month(), d.Day(), 0, 0, 0, 0, time.UTC)
		rows := s.fetchDay(ctx, date)
		if len(rows) > 0 {
			for _, r := range rows {
				rec := flow.DailyRecord{
					Symbol:      r.Symbol,
					Date:        date,
					Close:       r.Price,
					ForeignBuy:  r.ForeignBuy,
					ForeignSell: r.ForeignSell,
				}
				if r.RetailNet != nil {
					// the table only carries the net; book it as a one-sided buy
					buy, sell := *r.RetailNet, 0.0
					rec.RetailBuy, rec.RetailSell = &buy, &sell
				}
				mem.Append(rec)
			}
			fetched++
		}

		d = d.AddDate(0, 0, -1)
		attempts++

		if s.pause > 0 {
			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-time.After(s.pause):
			}
		}
	}

	s.logger.InfoContext(ctx, "rti foreign tables collected",
		slog.Int("trading_days", fetched),
		slog.Int("attempts", attempts),
		slog.Int("symbols", len(mem.Symbols())),
	)
	return mem, nil
}

func (s *RTIScraper) fetchDay(ctx context.Context, date time.Time) []TableRow {
	pageURL := fmt.Sprintf("%s?date=%s", s.foreignURL, date.Format("2006-01-02"))
	html, err := s.fetcher.Fetch(ctx, pageURL)
	if err != nil {
		s.logger.DebugContext(ctx, "foreign table fetch failed",
			slog.String("date", date.Format("2006-01-02")),
			slog.String("error", err.Error()),
		)
		return nil
	}
	rows, err := ParseForeignTable(html)
	if err != nil {
		s.logger.WarnContext(ctx, "foreign table parse failed",
			slog.String("date", date.Format("2006-01-02")),
			slog.String("error", err.Error()),
		)
		return nil
	}
	return rows
}
