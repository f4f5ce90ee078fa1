package notify

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	apierrors "chanalysis/internal/errors"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// fakeBotAPI records sendMessage calls and answers getUpdates from a queue
type fakeBotAPI struct {
	mu       sync.Mutex
	sent     []sendMessageRequest
	methods  []string
	updates  [][]Update
	failNext int
}

func (f *fakeBotAPI) handler(t *testing.T) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.True(t, strings.HasPrefix(r.URL.Path, "/bot123:ABC/"), r.URL.Path)
		method := strings.TrimPrefix(r.URL.Path, "/bot123:ABC/")

		f.mu.Lock()
		defer f.mu.Unlock()
		f.methods = append(f.methods, method)

		if f.failNext > 0 {
			f.failNext--
			w.WriteHeader(http.StatusTooManyRequests)
			_, _ = w.Write([]byte(`{"ok":false,"error_code":429,"description":"Too Many Requests","parameters":{"retry_after":1}}`))
			return
		}

		switch method {
		case "sendMessage":
			var req sendMessageRequest
			assert.NoError(t, json.NewDecoder(r.Body).Decode(&req))
			if req.ChatID == "forbidden" {
				w.WriteHeader(http.StatusForbidden)
				_, _ = w.Write([]byte(`{"ok":false,"error_code":403,"description":"Forbidden: bot was blocked by the user"}`))
				return
			}
			f.sent = append(f.sent, req)
			_, _ = w.Write([]byte(`{"ok":true,"result":{"message_id":1}}`))
		case "getUpdates":
			var batch []Update
			if len(f.updates) > 0 {
				batch, f.updates = f.updates[0], f.updates[1:]
			}
			result, _ := json.Marshal(batch)
			_, _ = w.Write([]byte(`{"ok":true,"result":` + string(result) + `}`))
		default:
			_, _ = w.Write([]byte(`{"ok":true,"result":true}`))
		}
	})
}

func newTestNotifier(t *testing.T, api *fakeBotAPI) *TelegramNotifier {
	t.Helper()
	srv := httptest.NewServer(api.handler(t))
	t.Cleanup(srv.Close)

	n := NewTelegramNotifier(TelegramConfig{APIBase: srv.URL, BotToken: "123:ABC", ChatID: "-100200"}, discardLogger())
	n.limiter.SetLimit(1000)
	n.limiter.SetBurst(10)
	return n
}

func TestTelegramSend(t *testing.T) {
	api := &fakeBotAPI{}
	n := newTestNotifier(t, api)

	require.NoError(t, n.Send(context.Background(), "*BBCA* — Foreign Buy 8/10 days"))

	require.Len(t, api.sent, 1)
	assert.Equal(t, "-100200", api.sent[0].ChatID)
	assert.Equal(t, "Markdown", api.sent[0].ParseMode)
	assert.True(t, api.sent[0].DisableWebPagePreview)
	assert.Equal(t, "*BBCA* — Foreign Buy 8/10 days", api.sent[0].Text)
}

func TestTelegramSendSplitsLongReports(t *testing.T) {
	api := &fakeBotAPI{}
	n := newTestNotifier(t, api)

	report := strings.Repeat(strings.Repeat("x", 99)+"\n", 60)
	require.NoError(t, n.Send(context.Background(), report))
	assert.Len(t, api.sent, 2)
}

func TestTelegramRetriesAfterRateLimit(t *testing.T) {
	api := &fakeBotAPI{failNext: 1}
	n := newTestNotifier(t, api)

	start := time.Now()
	require.NoError(t, n.Send(context.Background(), "hello"))
	assert.GreaterOrEqual(t, time.Since(start), time.Second)
	assert.Equal(t, []string{"sendMessage", "sendMessage"}, api.methods)
}

func TestTelegramErrors(t *testing.T) {
	api := &fakeBotAPI{}
	n := newTestNotifier(t, api)

	err := n.SendTo(context.Background(), "forbidden", "hello")
	require.Error(t, err)
	assert.True(t, apierrors.IsType(err, apierrors.ErrTypeUpstream))
	assert.Contains(t, err.Error(), "403")

	err = n.SendTo(context.Background(), "", "hello")
	assert.True(t, apierrors.IsType(err, apierrors.ErrTypeConfig))

	noToken := NewTelegramNotifier(TelegramConfig{ChatID: "1"}, discardLogger())
	err = noToken.Send(context.Background(), "hello")
	assert.True(t, apierrors.IsType(err, apierrors.ErrTypeConfig))
}

func TestRedact(t *testing.T) {
	err := redact(io.ErrUnexpectedEOF, "123:ABC")
	assert.Equal(t, io.ErrUnexpectedEOF, err)

	wrapped := redact(errorString(`Post "https://api.telegram.org/bot123:ABC/sendMessage": EOF`), "123:ABC")
	assert.Equal(t, `Post "https://api.telegram.org/bot<token>/sendMessage": EOF`, wrapped.Error())
}

type errorString string

func (e errorString) Error() string { return string(e) }

func TestCommandPoller(t *testing.T) {
	api := &fakeBotAPI{updates: [][]Update{
		{
			{UpdateID: 10, Message: &Message{Text: "/start", Chat: chat(42)}},
			{UpdateID: 11, Message: &Message{Text: "/id@chananalysis_bot", Chat: chat(-100200)}},
		},
		{
			{UpdateID: 12, Message: &Message{Text: "hello there", Chat: chat(42)}},
			{UpdateID: 13},
		},
	}}
	n := newTestNotifier(t, api)

	poller := NewCommandPoller(n, Greeting("01:00", "11:00"), discardLogger())
	poller.pollTimeout = 0

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- poller.Run(ctx) }()

	require.Eventually(t, func() bool {
		api.mu.Lock()
		defer api.mu.Unlock()
		return len(api.updates) == 0 && len(api.sent) == 2
	}, 5*time.Second, 10*time.Millisecond)
	cancel()
	require.NoError(t, <-done)

	api.mu.Lock()
	defer api.mu.Unlock()
	assert.Equal(t, "deleteWebhook", api.methods[0])
	assert.Equal(t, "42", api.sent[0].ChatID)
	assert.Equal(t, "Hello 👋 Chananalysis bot is active. Reports are sent at 08:00 & 18:00 WIB.", api.sent[0].Text)
	assert.Equal(t, "-100200", api.sent[1].ChatID)
	assert.Equal(t, "Chat ID: -100200", api.sent[1].Text)
}

func chat(id int64) struct {
	ID int64 `json:"id"`
} {
	return struct {
		ID int64 `json:"id"`
	}{ID: id}
}

func TestCommand(t *testing.T) {
	tests := map[string]string{
		"/start":            "/start",
		"/ID@some_bot":      "/id",
		"  /id  extra args": "/id",
		"start":             "",
		"":                  "",
	}
	for in, want := range tests {
		assert.Equal(t, want, command(in), in)
	}
}

func TestGreeting(t *testing.T) {
	assert.Equal(t, "Hello 👋 Chananalysis bot is active. Reports are sent at 08:00 WIB.", Greeting("01:00", "bad"))
	assert.Equal(t, "Hello 👋 Chananalysis bot is active.", Greeting())
	assert.Equal(t, "Hello 👋 Chananalysis bot is active. Reports are sent at 05:30 WIB.", Greeting("22:30"))
}

var _ Bot = (*TelegramNotifier)(nil)
