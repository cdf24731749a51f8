package notifications

import (
	"context"
	"errors"
	"fmt"
	"html"
	"strings"

	"golang.org/x/time/rate"
	tele "gopkg.in/telebot.v3"

	"github.com/jang1230/upbit-auto-trader-sub000/internal/logger"
)

// TelegramConfig configures the Telegram sink
type TelegramConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	Token   string `mapstructure:"token" validate:"required_if=Enabled true"`
	ChatID  int64  `mapstructure:"chat_id" validate:"required_if=Enabled true"`
	// Events limits which event types are sent; empty sends alerts and fills
	Events            []string `mapstructure:"events"`
	MessagesPerSecond float64  `mapstructure:"messages_per_second" validate:"gte=0"`
}

// EventTypes returns the configured filter
func (c TelegramConfig) EventTypes() []EventType {
	if len(c.Events) == 0 {
		return []EventType{EventFill, EventRiskExit, EventOrderFailed, EventOrderUnknown, EventFeedReconnect}
	}
	out := make([]EventType, len(c.Events))
	for i, e := range c.Events {
		out[i] = EventType(strings.ToLower(strings.TrimSpace(e)))
	}
	return out
}

type messageSender interface {
	Send(to tele.Recipient, what interface{}, opts ...interface{}) (*tele.Message, error)
}

// TelegramSink sends events to one chat
type TelegramSink struct {
	sender  messageSender
	chat    *tele.Chat
	limiter *rate.Limiter
	log     *logger.Logger
}

// NewTelegramSink creates a send-only bot; it never polls for updates
func NewTelegramSink(cfg TelegramConfig, log *logger.Logger) (*TelegramSink, error) {
	if cfg.Token == "" || cfg.ChatID == 0 {
		return nil, errors.New("telegram token and chat id are required")
	}
	bot, err := tele.NewBot(tele.Settings{Token: cfg.Token, Offline: true})
	if err != nil {
		return nil, fmt.Errorf("telegram bot: %w", err)
	}
	return newTelegramSink(bot, cfg, log), nil
}

func newTelegramSink(sender messageSender, cfg TelegramConfig, log *logger.Logger) *TelegramSink {
	perSecond := cfg.MessagesPerSecond
	if perSecond <= 0 {
		perSecond = 1
	}
	return &TelegramSink{
		sender:  sender,
		chat:    &tele.Chat{ID: cfg.ChatID},
		limiter: rate.NewLimiter(rate.Limit(perSecond), 3),
		log:     log.Named("telegram"),
	}
}

func (t *TelegramSink) Notify(ctx context.Context, e Event) error {
	if err := t.limiter.Wait(ctx); err != nil {
		return err
	}
	_, err := t.sender.Send(t.chat, FormatHTML(e), tele.ModeHTML)
	return err
}

// FormatHTML renders an event as a Telegram HTML message
func FormatHTML(e Event) string {
	icon := "ℹ️"
	switch e.Type {
	case EventFill:
		icon = "✅"
	case EventRiskExit:
		icon = "🛑"
	case EventOrderFailed, EventOrderUnknown:
		icon = "🚨"
	case EventFeedReconnect:
		icon = "⚠️"
	}

	var sb strings.Builder
	fmt.Fprintf(&sb, "%s <b>%s</b> %s\n", icon, html.EscapeString(e.Symbol), html.EscapeString(string(e.Type)))
	if e.Reason != "" {
		fmt.Fprintf(&sb, "reason: <code>%s</code>\n", html.EscapeString(e.Reason))
	}
	if e.Fill != nil {
		fmt.Fprintf(&sb, "%s %.8f @ %.8f (fee %.8f)\n", strings.ToUpper(string(e.Fill.Side)), e.Fill.Quantity, e.Fill.Price, e.Fill.Fee)
	}
	if e.Snapshot != nil && e.Snapshot.QuantityHeld > 0 {
		fmt.Fprintf(&sb, "position %.8f avg %.8f\n", e.Snapshot.QuantityHeld, e.Snapshot.AvgEntryPrice)
	}
	if e.Message != "" {
		sb.WriteString(html.EscapeString(e.Message))
	}
	return strings.TrimRight(sb.String(), "\n")
}
