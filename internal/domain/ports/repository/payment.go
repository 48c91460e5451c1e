package repository

import (
	"context"
	"time"

	"telegram-access-subscription/internal/domain/model"
)

// -----------------------------
// Payments
// -----------------------------

type PaymentRepository interface {
	Create(ctx context.Context, tx Tx, p *model.Payment) error
	FindByID(ctx context.Context, tx Tx, id string) (*model.Payment, error)
	FindByExternalID(ctx context.Context, tx Tx, externalID string) (*model.Payment, error)

	// MarkCompleted moves a payment to completed unless it already is
	// completed or refunded. It reports whether this call made the change.
	MarkCompleted(ctx context.Context, tx Tx, id string, at time.Time, payload []byte) (bool, error)
	// MarkFailed only affects pending payments.
	MarkFailed(ctx context.Context, tx Tx, id, reason string, payload []byte) (bool, error)
	// MarkRefunded only affects completed payments.
	MarkRefunded(ctx context.Context, tx Tx, id string, payload []byte) (bool, error)
}
