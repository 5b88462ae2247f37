package notify

import (
	"context"
	"fmt"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"github.com/okvist/packmule/internal/config"
	"github.com/okvist/packmule/internal/domain"
)

// Telegram mirrors run status to a chat via a bot, as a secondary route
// next to the announce broadcaster.
type Telegram struct {
	bot    *tgbotapi.BotAPI
	chatID int64
}

func NewTelegram(cfg config.TelegramConfig) (*Telegram, error) {
	bot, err := tgbotapi.NewBotAPI(cfg.BotToken)
	if err != nil {
		return nil, fmt.Errorf("failed to create telegram bot: %w", err)
	}

	return &Telegram{bot: bot, chatID: cfg.ChatID}, nil
}

func (t *Telegram) Notify(ctx context.Context, sev domain.Severity, text string) error {
	icon := "✅"
	if sev == domain.SeverityFailure {
		icon = "❌"
	}

	msg := tgbotapi.NewMessage(t.chatID, fmt.Sprintf("%s %s", icon, text))
	if _, err := t.bot.Send(msg); err != nil {
		return fmt.Errorf("failed to send telegram notification: %w", err)
	}
	return nil
}
