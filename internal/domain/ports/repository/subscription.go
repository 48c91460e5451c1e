package repository

import (
	"context"
	"time"

	"telegram-access-subscription/internal/domain/model"
)

// -----------------------------
// Subscriptions
// -----------------------------

type SubscriptionRepository interface {
	Create(ctx context.Context, tx Tx, s *model.Subscription) error
	FindByID(ctx context.Context, tx Tx, id string) (*model.Subscription, error)
	// Update writes status, dates, notes and is_free. Access flags are never
	// written here; see SetAccessFlag.
	Update(ctx context.Context, tx Tx, s *model.Subscription) error
	// SetAccessFlag updates exactly one granted-flag column.
	SetAccessFlag(ctx context.Context, tx Tx, id string, sys model.AccessSystem, granted bool) error
	// Delete removes the subscription together with its payments and action-log entries.
	Delete(ctx context.Context, tx Tx, id string) error

	ListDueForExpiry(ctx context.Context, tx Tx, now time.Time, limit int) ([]*model.Subscription, error)
	// ListExpiringBetween returns active subscriptions with from < end_date <= to
	// that have no action-log entry keyed by excludeAction.
	ListExpiringBetween(ctx context.Context, tx Tx, from, to time.Time, excludeAction string, limit int) ([]*model.Subscription, error)
	// ListAccessDrift returns active subscriptions with at least one false flag
	// and expired/cancelled ones with at least one true flag, least recently
	// attempted first.
	ListAccessDrift(ctx context.Context, tx Tx, limit int) ([]*model.Subscription, error)
	// MarkAccessAttempt records a drift repair attempt so rows that keep
	// failing rotate behind the rest.
	MarkAccessAttempt(ctx context.Context, tx Tx, id string, at time.Time) error
	CountByStatus(ctx context.Context, tx Tx) (map[model.SubscriptionStatus]int, error)
}
