// internal/notify/telegram.go
package notify

import (
	"context"
	"fmt"

	appconfig "apply-engine/internal/common/config"
	"apply-engine/internal/common/errors"
	"apply-engine/internal/models"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
)

// BotAPI is the slice of the Telegram client the notifier uses.
type BotAPI interface {
	Send(c tgbotapi.Chattable) (tgbotapi.Message, error)
}

// TelegramNotifier pushes outcome messages to a chat.
type TelegramNotifier struct {
	bot    BotAPI
	chatID int64
}

func NewTelegramNotifier(cfg appconfig.TelegramConfig) (*TelegramNotifier, error) {
	bot, err := tgbotapi.NewBotAPI(cfg.Token)
	if err != nil {
		return nil, fmt.Errorf("init telegram bot: %w", err)
	}
	return &TelegramNotifier{bot: bot, chatID: cfg.ChatID}, nil
}

// NewTelegramNotifierWithBot wires a pre-built bot client, for tests.
func NewTelegramNotifierWithBot(bot BotAPI, chatID int64) *TelegramNotifier {
	return &TelegramNotifier{bot: bot, chatID: chatID}
}

func (n *TelegramNotifier) Name() string { return "telegram" }

func (n *TelegramNotifier) Notify(_ context.Context, job *models.ApplicationJob, outcome models.Outcome, reason string) error {
	text := fmt.Sprintf("<b>%s</b>\n%s\n<a href=%q>posting</a>",
		subject(job, outcome), body(job, outcome, reason), job.JobURL)
	msg := tgbotapi.NewMessage(n.chatID, text)
	msg.ParseMode = tgbotapi.ModeHTML

	if _, err := n.bot.Send(msg); err != nil {
		return errors.NewNotificationSendFailedError("telegram", err)
	}
	return nil
}
