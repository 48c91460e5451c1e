package telegram

import (
	"context"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/rs/zerolog"

	"telegram-access-subscription/internal/domain/ports/adapter"
	"telegram-access-subscription/internal/infra/metrics"
)

var (
	_ adapter.Notifier = (*BotNotifier)(nil)
	_ adapter.Notifier = (*NoopNotifier)(nil)
)

// BotNotifier delivers plain-text notices as private messages.
type BotNotifier struct {
	bot botAPI
}

func NewBotNotifier(bot botAPI) *BotNotifier {
	return &BotNotifier{bot: bot}
}

func (n *BotNotifier) SendMessage(ctx context.Context, telegramID int64, text string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	_, err := n.bot.Send(tgbotapi.NewMessage(telegramID, text))
	metrics.IncNotification(err)
	return err
}

// NoopNotifier logs messages instead of sending them; used when no bot token
// is configured.
type NoopNotifier struct {
	log *zerolog.Logger
}

func NewNoopNotifier(logger *zerolog.Logger) *NoopNotifier {
	l := logger.With().Str("component", "noop_notifier").Logger()
	return &NoopNotifier{log: &l}
}

func (n *NoopNotifier) SendMessage(ctx context.Context, telegramID int64, text string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	n.log.Info().Int64("telegram_id", telegramID).Str("text", text).Msg("notice")
	metrics.IncNotification(nil)
	return nil
}
