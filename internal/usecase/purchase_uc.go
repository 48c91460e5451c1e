package usecase

import (
	"context"
	"errors"
	"fmt"

	"telegram-access-subscription/internal/clock"
	"telegram-access-subscription/internal/domain"
	"telegram-access-subscription/internal/domain/model"
	"telegram-access-subscription/internal/domain/ports/repository"
	ucport "telegram-access-subscription/internal/domain/ports/usecase"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v4"
	"github.com/rs/zerolog"
)

// Compile-time check
var _ PurchaseUseCase = (*purchaseUC)(nil)

type PurchaseUseCase interface {
	ucport.Checkout
}

type purchaseUC struct {
	users    repository.UserRepository
	tariffs  repository.TariffRepository
	subs     repository.SubscriptionRepository
	payments repository.PaymentRepository
	actions  repository.ActionLogRepository
	pricing  PricingUseCase
	tm       repository.TransactionManager
	clock    clock.Clock
	log      *zerolog.Logger
}

func NewPurchaseUseCase(
	users repository.UserRepository,
	tariffs repository.TariffRepository,
	subs repository.SubscriptionRepository,
	payments repository.PaymentRepository,
	actions repository.ActionLogRepository,
	pricing PricingUseCase,
	tm repository.TransactionManager,
	clk clock.Clock,
	logger *zerolog.Logger,
) *purchaseUC {
	l := logger.With().Str("component", "purchase").Logger()
	return &purchaseUC{
		users:    users,
		tariffs:  tariffs,
		subs:     subs,
		payments: payments,
		actions:  actions,
		pricing:  pricing,
		tm:       tm,
		clock:    clk,
		log:      &l,
	}
}

// Checkout creates a pending subscription and its pending payment. The payment's
// external id is what the provider echoes back in its webhook.
func (u *purchaseUC) Checkout(ctx context.Context, req model.CheckoutRequest) (*model.CheckoutResult, error) {
	if req.UserID == "" || req.TariffID == "" || req.PeriodMonths < model.MinPeriodMonths || req.PeriodMonths > model.MaxPeriodMonths {
		return nil, domain.ErrInvalidArgument
	}
	user, err := u.users.FindByID(ctx, repository.NoTX, req.UserID)
	if err != nil {
		return nil, invalidIfMissing(err, "user")
	}
	tariff, err := u.tariffs.FindByID(ctx, repository.NoTX, req.TariffID)
	if err != nil {
		return nil, invalidIfMissing(err, "tariff")
	}
	if !tariff.IsActive {
		return nil, fmt.Errorf("%w: tariff %s is not on sale", domain.ErrInvalidArgument, tariff.ID)
	}
	price, ok := tariff.PriceFor(req.PeriodMonths)
	if !ok {
		return nil, fmt.Errorf("%w: no %d-month price for tariff %s", domain.ErrInvalidArgument, req.PeriodMonths, tariff.ID)
	}

	amount, currency, bonus := price.Amount, price.Currency, 0
	var quote *model.PromoQuote
	if req.PromoCode != "" {
		quote, err = u.pricing.Resolve(ctx, model.PromoRequest{
			Code:         req.PromoCode,
			Username:     user.Username,
			Amount:       price.Amount,
			PeriodMonths: req.PeriodMonths,
			TariffID:     tariff.ID,
		})
		if err != nil {
			return nil, err
		}
		if !quote.Valid {
			return nil, fmt.Errorf("%w: promo code %s", domain.ErrInvalidArgument, quote.Reason)
		}
		if quote.OverrideTariffID != "" {
			if tariff, err = u.tariffs.FindByID(ctx, repository.NoTX, quote.OverrideTariffID); err != nil {
				return nil, err
			}
			if price, ok = tariff.PriceFor(req.PeriodMonths); !ok {
				return nil, domain.ErrInvalidArgument
			}
		}
		amount, bonus = quote.FinalAmount, quote.ExtraDays
		if quote.Currency != "" {
			currency = quote.Currency
		}
	}

	sub, err := model.NewSubscription(uuid.NewString(), user.ID, req.PeriodMonths, amount, currency, model.SubscriptionStatusPending)
	if err != nil {
		return nil, err
	}
	now := u.clock.Now()
	sub.TariffID = &tariff.ID
	sub.PricePlanID = &price.ID
	sub.IsFree = amount == 0
	sub.CreatedAt, sub.UpdatedAt = now, now

	pay := &model.Payment{
		ID:             uuid.NewString(),
		SubscriptionID: sub.ID,
		UserID:         user.ID,
		Amount:         amount,
		Currency:       currency,
		Status:         model.PaymentStatusPending,
		ExternalID:     uuid.NewString(),
		PromoCode:      model.NormalizeCode(req.PromoCode),
		BonusDays:      bonus,
		CreatedAt:      now,
	}

	err = u.tm.WithTx(ctx, pgx.TxOptions{}, func(ctx context.Context, tx repository.Tx) error {
		if err := u.subs.Create(ctx, tx, sub); err != nil {
			return err
		}
		if err := u.payments.Create(ctx, tx, pay); err != nil {
			return err
		}
		subID := sub.ID
		return u.actions.Append(ctx, tx, model.NewActionLogEntry(user.ID, &subID, model.ActionCheckoutCreated, map[string]any{
			"payment_id":  pay.ID,
			"external_id": pay.ExternalID,
			"tariff_id":   tariff.ID,
			"amount":      amount,
			"promo_code":  pay.PromoCode,
			"bonus_days":  bonus,
		}, now))
	})
	if err != nil {
		return nil, err
	}
	u.log.Info().Str("subscription_id", sub.ID).Str("payment_id", pay.ID).Int64("amount", amount).Msg("checkout created")
	return &model.CheckoutResult{Subscription: sub, Payment: pay, Quote: quote}, nil
}

func invalidIfMissing(err error, what string) error {
	if errors.Is(err, domain.ErrNotFound) {
		return fmt.Errorf("%w: unknown %s", domain.ErrInvalidArgument, what)
	}
	return err
}
