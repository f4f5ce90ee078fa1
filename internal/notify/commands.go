package notify

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"time"
)

// Bot is the part of the Bot API the command poller needs
type Bot interface {
	DeleteWebhook(ctx context.Context) error
	GetUpdates(ctx context.Context, offset int64, timeout time.Duration) ([]Update, error)
	SendTo(ctx context.Context, chatID, text string) error
}

// CommandPoller answers /start and /id through getUpdates long polling
type CommandPoller struct {
	bot         Bot
	greeting    string
	pollTimeout time.Duration
	retryDelay  time.Duration
	logger      *slog.Logger
}

// NewCommandPoller creates a poller replying greeting to /start
func NewCommandPoller(bot Bot, greeting string, logger *slog.Logger) *CommandPoller {
	if logger == nil {
		logger = slog.Default()
	}
	return &CommandPoller{
		bot:         bot,
		greeting:    greeting,
		pollTimeout: 30 * time.Second,
		retryDelay:  5 * time.Second,
		logger:      logger.With(slog.String("component", "notify.commands")),
	}
}

// Greeting builds the /start reply from the UTC delivery times, shown in WIB (UTC+7)
func Greeting(utcTimes ...string) string {
	wib := make([]string, 0, len(utcTimes))
	for _, t := range utcTimes {
		parsed, err := time.Parse("15:04", t)
		if err != nil {
			continue
		}
		wib = append(wib, parsed.Add(7*time.Hour).Format("15:04"))
	}
	if len(wib) == 0 {
		return "Hello 👋 Chananalysis bot is active."
	}
	return fmt.Sprintf("Hello 👋 Chananalysis bot is active. Reports are sent at %s WIB.", strings.Join(wib, " & "))
}

// Run deletes any webhook, then polls until ctx is cancelled. Poll failures
// are logged and retried after a pause.
func (p *CommandPoller) Run(ctx context.Context) error {
	if err := p.bot.DeleteWebhook(ctx); err != nil {
		p.logger.WarnContext(ctx, "delete webhook failed", slog.String("error", err.Error()))
	}
	p.logger.InfoContext(ctx, "telegram polling started")

	var offset int64
	for {
		if err := ctx.Err(); err != nil {
			p.logger.InfoContext(context.WithoutCancel(ctx), "telegram polling stopped")
			return nil
		}

		updates, err := p.bot.GetUpdates(ctx, offset, p.pollTimeout)
		if err != nil {
			if ctx.Err() != nil {
				continue
			}
			p.logger.WarnContext(ctx, "get updates failed", slog.String("error", err.Error()))
			select {
			case <-ctx.Done():
			case <-time.After(p.retryDelay):
			}
			continue
		}

		for _, u := range updates {
			offset = max(offset, u.UpdateID+1)
			p.handle(ctx, u)
		}
	}
}

func (p *CommandPoller) handle(ctx context.Context, u Update) {
	if u.Message == nil {
		return
	}
	chatID := strconv.FormatInt(u.Message.Chat.ID, 10)

	var reply string
	switch command(u.Message.Text) {
	case "/start":
		reply = p.greeting
	case "/id":
		reply = "Chat ID: " + chatID
	default:
		return
	}

	if err := p.bot.SendTo(ctx, chatID, reply); err != nil {
		p.logger.WarnContext(ctx, "command reply failed",
			slog.String("chat_id", chatID),
			slog.String("error", err.Error()),
		)
	}
}

// command returns the leading /command of text without any @botname suffix
func command(text string) string {
	fields := strings.Fields(text)
	if len(fields) == 0 || !strings.HasPrefix(fields[0], "/") {
		return ""
	}
	cmd, _, _ := strings.Cut(fields[0], "@")
	return strings.ToLower(cmd)
}
