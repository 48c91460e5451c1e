package adapter

import "context"

// Notifier delivers a plain-text message to a user's chat.
type Notifier interface {
	SendMessage(ctx context.Context, telegramID int64, text string) error
}
