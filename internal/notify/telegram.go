package notify

import (
	"context"
	"errors"
	"fmt"

	"github.com/go-telegram/bot"

	"github.com/nerrad567/iotmon/internal/infrastructure/config"
)

// TypeTelegram is the channel name of TelegramNotifier.
const TypeTelegram = "telegram"

// TelegramNotifier posts each message to every configured chat.
type TelegramNotifier struct {
	bot     *bot.Bot
	chatIDs []int64
}

// NewTelegramNotifier creates the bot client without contacting Telegram.
// Extra options are passed to bot.New, which tests use to point the client
// at a fake server.
func NewTelegramNotifier(cfg config.TelegramConfig, opts ...bot.Option) (*TelegramNotifier, error) {
	opts = append([]bot.Option{bot.WithSkipGetMe()}, opts...)

	b, err := bot.New(cfg.Token, opts...)
	if err != nil {
		return nil, fmt.Errorf("creating telegram bot: %w", err)
	}

	return &TelegramNotifier{
		bot:     b,
		chatIDs: cfg.ChatIDs,
	}, nil
}

// Type implements Notifier.
func (t *TelegramNotifier) Type() string { return TypeTelegram }

// Send implements Notifier. Every chat is attempted; failures are joined.
func (t *TelegramNotifier) Send(ctx context.Context, m Message) error {
	var errs []error
	for _, chatID := range t.chatIDs {
		_, err := t.bot.SendMessage(ctx, &bot.SendMessageParams{
			ChatID: chatID,
			Text:   m.Text(),
		})
		if err != nil {
			errs = append(errs, fmt.Errorf("chat %d: %w", chatID, err))
		}
	}
	return errors.Join(errs...)
}
