package scheduler

import (
	"bytes"
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"chanalysis/internal/notify"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestClockToSpec(t *testing.T) {
	tests := []struct {
		clock   string
		want    string
		wantErr bool
	}{
		{"01:00", "0 1 * * *", false},
		{"11:00", "0 11 * * *", false},
		{"23:45", "45 23 * * *", false},
		{"7:05", "5 7 * * *", false},
		{"24:00", "", true},
		{"noon", "", true},
	}

	for _, tt := range tests {
		t.Run(tt.clock, func(t *testing.T) {
			got, err := ClockToSpec(tt.clock)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestSchedulerRegistration(t *testing.T) {
	s := New(func(context.Context) error { return nil }, 0, discardLogger())

	require.NoError(t, s.AddDaily("morning", "01:00"))
	require.NoError(t, s.AddDaily("evening", "11:00"))
	assert.Error(t, s.AddDaily("morning", "02:00"), "duplicate name")
	assert.Error(t, s.AddDaily("bad", "1am"))

	require.NoError(t, s.Start(context.Background()))
	assert.Error(t, s.Start(context.Background()), "already running")

	next := s.Next()
	require.Len(t, next, 2)
	for name, want := range map[string]int{"morning": 1, "evening": 11} {
		at := next[name].UTC()
		assert.Equal(t, want, at.Hour(), name)
		assert.Zero(t, at.Minute(), name)
		assert.True(t, at.After(time.Now()), name)
	}

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	require.NoError(t, s.Stop(ctx))
	require.NoError(t, s.Stop(ctx), "stopping twice is a no-op")
}

func TestSchedulerRunNowAppliesTimeout(t *testing.T) {
	s := New(func(ctx context.Context) error {
		<-ctx.Done()
		return ctx.Err()
	}, 20*time.Millisecond, discardLogger())

	err := s.RunNow(context.Background(), "manual")
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestSchedulerRunUsesStartContext(t *testing.T) {
	type key struct{}
	var got any
	s := New(func(ctx context.Context) error {
		got = ctx.Value(key{})
		return nil
	}, 0, discardLogger())

	require.NoError(t, s.Start(context.WithValue(context.Background(), key{}, "root")))
	s.run("morning")
	assert.Equal(t, "root", got)
	require.NoError(t, s.Stop(context.Background()))
}

func TestCronLoggerAdapter(t *testing.T) {
	var buf bytes.Buffer
	l := cronLogger{logger: slog.New(slog.NewTextHandler(&buf, nil))}

	l.Error(errors.New("boom"), "panic", "job", "morning")
	assert.Contains(t, buf.String(), "cron: panic")
	assert.Contains(t, buf.String(), "error=boom")
	assert.Contains(t, buf.String(), "job=morning")
}

// stubGenerator returns a fixed report or error
type stubGenerator struct {
	report string
	err    error
}

func (g stubGenerator) Generate(context.Context) (string, error) {
	return g.report, g.err
}

// recordingNotifier keeps every message it is asked to send
type recordingNotifier struct {
	mu   sync.Mutex
	sent []string
	err  error
}

func (r *recordingNotifier) Name() string { return "test" }

func (r *recordingNotifier) Send(_ context.Context, text string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.sent = append(r.sent, text)
	return r.err
}

type deliveryCounter struct {
	ok, failed int
}

func (d *deliveryCounter) RecordDelivery(_ context.Context, _ string, err error) {
	if err != nil {
		d.failed++
		return
	}
	d.ok++
}

const report = "📊 *Foreign Accumulation Report (10 Days)*\n\n" +
	"*BBCA* — Foreign Buy 8/10 days (Strong Accumulation)\nScore: 80.0/100\n\n" +
	"*TLKM* — Foreign Buy 6/10 days (Moderate Accumulation)\nScore: 62.0/100"

func TestReportJob(t *testing.T) {
	n := &recordingNotifier{}
	rec := &deliveryCounter{}
	job := ReportJob(stubGenerator{report: report}, n, 3, rec, discardLogger())

	require.NoError(t, job(context.Background()))

	require.Len(t, n.sent, 2)
	assert.Equal(t, report, n.sent[0])
	assert.Equal(t, notify.WatchlistHeader+"\n"+
		"*BBCA* — Foreign Buy 8/10 days (Strong Accumulation)\n"+
		"*TLKM* — Foreign Buy 6/10 days (Moderate Accumulation)", n.sent[1])
	assert.Equal(t, 2, rec.ok)
}

func TestReportJobWithoutWatchlist(t *testing.T) {
	n := &recordingNotifier{}
	job := ReportJob(stubGenerator{report: "📊 *Foreign Accumulation Report (10 Days)*\nNo liquid symbols"}, n, 3, nil, discardLogger())

	require.NoError(t, job(context.Background()))
	assert.Len(t, n.sent, 1)

	n = &recordingNotifier{}
	require.NoError(t, ReportJob(stubGenerator{report: report}, n, 0, nil, discardLogger())(context.Background()))
	assert.Len(t, n.sent, 1, "watchlist disabled")
}

func TestReportJobGenerationFailure(t *testing.T) {
	n := &recordingNotifier{}
	job := ReportJob(stubGenerator{err: errors.New("rti unavailable")}, n, 3, nil, discardLogger())

	err := job(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "rti unavailable")
	assert.Equal(t, []string{"❌ Daily job failed: rti unavailable"}, n.sent)
}

func TestReportJobDeliveryFailure(t *testing.T) {
	n := &recordingNotifier{err: errors.New("blocked")}
	rec := &deliveryCounter{}
	job := ReportJob(stubGenerator{report: report}, n, 3, rec, discardLogger())

	err := job(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "deliver report: blocked")
	assert.Contains(t, err.Error(), "deliver watchlist: blocked")
	assert.Equal(t, 2, rec.failed)
}
