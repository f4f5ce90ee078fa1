package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"golang.org/x/time/rate"

	apierrors "chanalysis/internal/errors"
)

// MaxMessageLength is the Bot API limit for one sendMessage text
const MaxMessageLength = 4096

// TelegramConfig configures the Bot API client
type TelegramConfig struct {
	APIBase  string
	BotToken string
	ChatID   string
	Timeout  time.Duration
}

// TelegramNotifier sends Markdown messages to one chat
type TelegramNotifier struct {
	cfg     TelegramConfig
	client  *http.Client
	limiter *rate.Limiter
	logger  *slog.Logger
}

// NewTelegramNotifier creates a notifier. Messages are paced at one per second,
// the Bot API's per-chat limit.
func NewTelegramNotifier(cfg TelegramConfig, logger *slog.Logger) *TelegramNotifier {
	if cfg.APIBase == "" {
		cfg.APIBase = "https://api.telegram.org"
	}
	cfg.APIBase = strings.TrimRight(cfg.APIBase, "/")
	if cfg.Timeout <= 0 {
		cfg.Timeout = 30 * time.Second
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &TelegramNotifier{
		cfg:     cfg,
		client:  &http.Client{Timeout: cfg.Timeout + 10*time.Second},
		limiter: rate.NewLimiter(rate.Every(time.Second), 1),
		logger:  logger.With(slog.String("component", "notify.telegram")),
	}
}

// Name implements Notifier
func (t *TelegramNotifier) Name() string { return "telegram" }

type sendMessageRequest struct {
	ChatID                string `json:"chat_id"`
	Text                  string `json:"text"`
	ParseMode             string `json:"parse_mode,omitempty"`
	DisableWebPagePreview bool   `json:"disable_web_page_preview"`
}

// apiResponse is the envelope of every Bot API reply
type apiResponse struct {
	OK          bool            `json:"ok"`
	Result      json.RawMessage `json:"result,omitempty"`
	ErrorCode   int             `json:"error_code,omitempty"`
	Description string          `json:"description,omitempty"`
	Parameters  *struct {
		RetryAfter int `json:"retry_after"`
	} `json:"parameters,omitempty"`
}

// Send implements Notifier. Long reports go out as several messages.
func (t *TelegramNotifier) Send(ctx context.Context, text string) error {
	return t.SendTo(ctx, t.cfg.ChatID, text)
}

// SendTo posts text to chatID with Markdown parsing and no link previews
func (t *TelegramNotifier) SendTo(ctx context.Context, chatID, text string) error {
	if chatID == "" {
		return apierrors.NewConfigError("telegram chat id is not set", nil)
	}
	for _, chunk := range SplitMessage(text, MaxMessageLength) {
		req := sendMessageRequest{
			ChatID:                chatID,
			Text:                  chunk,
			ParseMode:             "Markdown",
			DisableWebPagePreview: true,
		}
		if err := t.call(ctx, "sendMessage", req, nil); err != nil {
			return err
		}
	}
	t.logger.InfoContext(ctx, "message sent", slog.String("chat_id", chatID), slog.Int("length", len(text)))
	return nil
}

// DeleteWebhook removes any webhook so getUpdates polling is allowed
func (t *TelegramNotifier) DeleteWebhook(ctx context.Context) error {
	return t.call(ctx, "deleteWebhook", map[string]any{"drop_pending_updates": false}, nil)
}

// Update is the subset of a Bot API update the command poller reads
type Update struct {
	UpdateID int64    `json:"update_id"`
	Message  *Message `json:"message,omitempty"`
}

// Message is an incoming chat message
type Message struct {
	MessageID int64  `json:"message_id"`
	Text      string `json:"text"`
	Chat      struct {
		ID int64 `json:"id"`
	} `json:"chat"`
}

// GetUpdates long-polls for updates after offset, waiting up to timeout
func (t *TelegramNotifier) GetUpdates(ctx context.Context, offset int64, timeout time.Duration) ([]Update, error) {
	var updates []Update
	err := t.call(ctx, "getUpdates", map[string]any{
		"offset":          offset,
		"timeout":         int(timeout.Seconds()),
		"allowed_updates": []string{"message"},
	}, &updates)
	return updates, err
}

// call posts payload to the Bot API method and decodes the result into out.
// A 429 is retried once after the advertised delay.
func (t *TelegramNotifier) call(ctx context.Context, method string, payload, out any) error {
	if t.cfg.BotToken == "" {
		return apierrors.NewConfigError("telegram bot token is not set", nil)
	}
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("encode %s: %w", method, err)
	}

	for attempt := 0; ; attempt++ {
		if method == "sendMessage" {
			if err := t.limiter.Wait(ctx); err != nil {
				return err
			}
		}

		resp, retryAfter, err := t.post(ctx, method, body)
		if err != nil {
			return err
		}
		if resp.OK {
			if out != nil && len(resp.Result) > 0 {
				if err := json.Unmarshal(resp.Result, out); err != nil {
					return apierrors.NewParsingError("decode telegram "+method, err)
				}
			}
			return nil
		}

		if resp.ErrorCode == http.StatusTooManyRequests && attempt == 0 && retryAfter > 0 {
			t.logger.WarnContext(ctx, "telegram rate limited, retrying",
				slog.String("method", method),
				slog.Duration("retry_after", retryAfter),
			)
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(retryAfter):
			}
			continue
		}

		return apierrors.NewUpstreamError("telegram", resp.ErrorCode).
			WithContext("method", method).
			WithContext("description", resp.Description)
	}
}

func (t *TelegramNotifier) post(ctx context.Context, method string, body []byte) (*apiResponse, time.Duration, error) {
	endpoint := fmt.Sprintf("%s/bot%s/%s", t.cfg.APIBase, t.cfg.BotToken, method)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(body))
	if err != nil {
		return nil, 0, fmt.Errorf("build %s request: %w", method, err)
	}
	req.Header.Set("Content-Type", "application/json")

	res, err := t.client.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return nil, 0, ctx.Err()
		}
		return nil, 0, apierrors.NewNetworkError("telegram "+method, redact(err, t.cfg.BotToken))
	}
	defer res.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(res.Body, 1<<20))
	if err != nil {
		return nil, 0, apierrors.NewNetworkError("read telegram response", err)
	}

	var resp apiResponse
	if err := json.Unmarshal(raw, &resp); err != nil {
		return nil, 0, apierrors.NewUpstreamError("telegram", res.StatusCode).WithContext("method", method)
	}
	if !resp.OK && resp.ErrorCode == 0 {
		resp.ErrorCode = res.StatusCode
	}

	var retryAfter time.Duration
	if resp.Parameters != nil {
		retryAfter = time.Duration(resp.Parameters.RetryAfter) * time.Second
	}
	return &resp, retryAfter, nil
}

// redact strips the bot token from transport errors, which quote the URL
func redact(err error, token string) error {
	if token == "" || !strings.Contains(err.Error(), token) {
		return err
	}
	return errors.New(strings.ReplaceAll(err.Error(), token, "<token>"))
}
