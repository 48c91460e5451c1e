package repository

import (
	"context"
	"time"

	"telegram-access-subscription/internal/domain/model"
)

// BotStateRepository stores chat-bot session rows with an expiry.
type BotStateRepository interface {
	Set(ctx context.Context, st *model.BotState) error
	Get(ctx context.Context, tgID int64) (*model.BotState, error)
	Clear(ctx context.Context, tgID int64) error
	// PurgeExpired deletes rows expired at now and returns how many went.
	PurgeExpired(ctx context.Context, now time.Time) (int64, error)
}
