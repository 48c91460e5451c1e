package repository

import (
	"context"

	"telegram-access-subscription/internal/domain/model"
)

// -----------------------------
// Action log
// -----------------------------

type ActionLogRepository interface {
	Append(ctx context.Context, tx Tx, e *model.ActionLogEntry) error
	// Claim inserts an entry carrying a dedup key. It returns false, without
	// error, when an entry with the same (subscription, key) already exists.
	Claim(ctx context.Context, tx Tx, e *model.ActionLogEntry) (bool, error)
	ListBySubscription(ctx context.Context, tx Tx, subscriptionID string, limit int) ([]*model.ActionLogEntry, error)
}
