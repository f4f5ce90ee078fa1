package source

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/sony/gobreaker"
	"golang.org/x/time/rate"

	apierrors "chanalysis/internal/errors"
)

const maxBodySize = 10 << 20

// Recorder receives one observation per upstream request.
// *infrastructure.PipelineMetrics satisfies it.
type Recorder interface {
	RecordUpstream(ctx context.Context, source string, duration time.Duration, err error)
}

// ClientOptions configures an upstream HTTP client
type ClientOptions struct {
	HTTPClient *http.Client
	Timeout    time.Duration
	RPS        float64
	UserAgent  string
	Recorder   Recorder
	Logger     *slog.Logger
}

func (o ClientOptions) withDefaults() ClientOptions {
	if o.Timeout <= 0 {
		o.Timeout = 15 * time.Second
	}
	if o.HTTPClient == nil {
		o.HTTPClient = &http.Client{Timeout: o.Timeout}
	}
	if o.RPS <= 0 {
		o.RPS = 5
	}
	if o.UserAgent == "" {
		o.UserAgent = "chanalysis/1.0"
	}
	if o.Logger == nil {
		o.Logger = slog.Default()
	}
	return o
}

// upstream is the shared request path: rate limit, circuit breaker, metrics
type upstream struct {
	name      string
	client    *http.Client
	limiter   *rate.Limiter
	breaker   *gobreaker.CircuitBreaker
	userAgent string
	recorder  Recorder
	logger    *slog.Logger
}

func newUpstream(name string, opts ClientOptions) *upstream {
	opts = opts.withDefaults()
	return &upstream{
		name:      name,
		client:    opts.HTTPClient,
		limiter:   rate.NewLimiter(rate.Limit(opts.RPS), 1),
		breaker:   newBreaker(name),
		userAgent: opts.UserAgent,
		recorder:  opts.Recorder,
		logger:    opts.Logger.With(slog.String("component", "source."+name)),
	}
}

// newBreaker opens after three consecutive failures or a 5% failure rate over 20 requests
func newBreaker(name string) *gobreaker.CircuitBreaker {
	st := gobreaker.Settings{Name: name}
	st.Interval = 60 * time.Second
	st.Timeout = 60 * time.Second
	st.ReadyToTrip = func(counts gobreaker.Counts) bool {
		if counts.ConsecutiveFailures >= 3 {
			return true
		}
		if counts.Requests < 20 {
			return false
		}
		return float64(counts.TotalFailures)/float64(counts.Requests) > 0.05
	}
	return gobreaker.NewCircuitBreaker(st)
}

// do sends req and returns the body of a 2xx response
func (u *upstream) do(ctx context.Context, req *http.Request) ([]byte, error) {
	if err := u.limiter.Wait(ctx); err != nil {
		return nil, err
	}

	req = req.WithContext(ctx)
	req.Header.Set("User-Agent", u.userAgent)
	if req.Header.Get("Accept") == "" {
		req.Header.Set("Accept", "application/json")
	}

	start := time.Now()
	result, err := u.breaker.Execute(func() (interface{}, error) {
		resp, err := u.client.Do(req)
		if err != nil {
			return nil, apierrors.NewNetworkError(fmt.Sprintf("%s request failed", u.name), err)
		}
		defer resp.Body.Close()

		body, err := io.ReadAll(io.LimitReader(resp.Body, maxBodySize))
		if err != nil {
			return nil, apierrors.NewNetworkError(fmt.Sprintf("%s read body", u.name), err)
		}
		// only server-side failures count against the breaker
		if resp.StatusCode >= http.StatusInternalServerError {
			return nil, u.statusError(req, resp.StatusCode)
		}
		return &response{status: resp.StatusCode, body: body}, nil
	})
	if err == nil {
		if resp := result.(*response); resp.status < 200 || resp.status > 299 {
			err = u.statusError(req, resp.status)
		}
	}

	if u.recorder != nil {
		u.recorder.RecordUpstream(ctx, u.name, time.Since(start), err)
	}
	if err != nil {
		u.logger.DebugContext(ctx, "upstream request failed",
			slog.String("url", req.URL.Redacted()),
			slog.String("error", err.Error()),
		)
		return nil, err
	}
	return result.(*response).body, nil
}

type response struct {
	status int
	body   []byte
}

func (u *upstream) statusError(req *http.Request, status int) error {
	return apierrors.NewUpstreamError(u.name, status).WithContext("url", req.URL.Redacted())
}

func (u *upstream) get(ctx context.Context, url string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("build %s request: %w", u.name, err)
	}
	return u.do(ctx, req)
}
