package telegram

import (
	"errors"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"telegram-access-subscription/internal/config"
)

// botAPI is the slice of tgbotapi.BotAPI the adapters use.
type botAPI interface {
	Send(c tgbotapi.Chattable) (tgbotapi.Message, error)
	Request(c tgbotapi.Chattable) (*tgbotapi.APIResponse, error)
	GetChatMember(config tgbotapi.GetChatMemberConfig) (tgbotapi.ChatMember, error)
}

var _ botAPI = (*tgbotapi.BotAPI)(nil)

// NewBotAPI authenticates against Telegram once; both adapters share the result.
func NewBotAPI(cfg config.BotConfig) (*tgbotapi.BotAPI, error) {
	if cfg.Token == "" {
		return nil, errors.New("bot token is empty")
	}
	return tgbotapi.NewBotAPI(cfg.Token)
}
