package model

import "time"

// BotState is a short-lived chat-bot session row. Rows past ExpiresAt are
// purged by the reconciler's housekeeping stage.
type BotState struct {
	TelegramID int64
	Step       string
	Data       map[string]string
	ExpiresAt  time.Time
}

func (b *BotState) Expired(now time.Time) bool {
	return b == nil || !b.ExpiresAt.After(now)
}
