package usecase

import (
	"context"

	"telegram-access-subscription/internal/domain/model"
)

// SubscriptionAdmin is the lifecycle surface used by the HTTP API.
type SubscriptionAdmin interface {
	Get(ctx context.Context, id string) (*model.Subscription, error)
	Create(ctx context.Context, in model.NewSubscriptionInput) (*model.Subscription, error)
	Transition(ctx context.Context, id string, upd model.SubscriptionUpdate) (*model.Subscription, error)
	Delete(ctx context.Context, id, actor string) error
	SyncAccess(ctx context.Context, id, actor string) (*model.Subscription, model.AccessReport, error)
	Actions(ctx context.Context, id string, limit int) ([]*model.ActionLogEntry, error)
}

// PaymentIntake consumes provider payment events.
type PaymentIntake interface {
	HandleConfirmed(ctx context.Context, externalID string, payload []byte) (model.PaymentOutcome, error)
	HandleFailed(ctx context.Context, externalID, reason string, payload []byte) (model.PaymentOutcome, error)
	HandleRefunded(ctx context.Context, externalID string, payload []byte) (model.PaymentOutcome, error)
}

type PromoResolver interface {
	Resolve(ctx context.Context, req model.PromoRequest) (*model.PromoQuote, error)
	CreatePromocode(ctx context.Context, p *model.Promocode) error
}

type Checkout interface {
	Checkout(ctx context.Context, req model.CheckoutRequest) (*model.CheckoutResult, error)
}

// Reconciler runs one expiry/notification/access pass.
type Reconciler interface {
	RunPass(ctx context.Context) (model.PassReport, error)
}
