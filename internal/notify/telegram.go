package notify

import (
	"fmt"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"calseed/internal/generator"
)

// TelegramNotifier posts per-cycle summaries to an ops chat.
type TelegramNotifier struct {
	bot    *tgbotapi.BotAPI
	chatID int64
}

// NewTelegram creates a notifier for the given bot token and chat.
func NewTelegram(token string, chatID int64) (*TelegramNotifier, error) {
	bot, err := tgbotapi.NewBotAPI(token)
	if err != nil {
		return nil, fmt.Errorf("create telegram bot: %w", err)
	}
	return &TelegramNotifier{bot: bot, chatID: chatID}, nil
}

// SendCycleSummary posts the result of one generation cycle.
func (n *TelegramNotifier) SendCycleSummary(res generator.CycleResult) error {
	text := fmt.Sprintf(
		"Generation cycle %s\nUsers sampled: %d\nCreated: %d\nFailed: %d\nSkipped: %d\nOrg quota remaining: %d",
		res.CycleID, res.UsersSampled, res.Created, res.Failed, res.Skipped, res.OrgRemaining,
	)
	msg := tgbotapi.NewMessage(n.chatID, text)
	if _, err := n.bot.Send(msg); err != nil {
		return fmt.Errorf("send summary: %w", err)
	}
	return nil
}
