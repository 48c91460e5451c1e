//go:build !integration

package usecase_test

import (
	"context"
	"errors"
	"testing"

	"github.com/jackc/pgx/v4"

	"telegram-access-subscription/internal/domain"
	"telegram-access-subscription/internal/domain/model"
	"telegram-access-subscription/internal/domain/ports/repository"
)

func TestPurchaseUseCase_Checkout(t *testing.T) {
	ctx := context.Background()

	t.Run("creates pending subscription and payment in one transaction", func(t *testing.T) {
		h := newHarness()
		seedTariffs(h)
		h.seedUser("u1", 101)
		txCalls := 0
		h.tm.WithTxFunc = func(ctx context.Context, _ pgx.TxOptions, fn func(ctx context.Context, tx repository.Tx) error) error {
			txCalls++
			return fn(ctx, repository.NoTX)
		}

		res, err := h.purchase.Checkout(ctx, model.CheckoutRequest{UserID: "u1", TariffID: "basic", PeriodMonths: 3})
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if txCalls != 1 {
			t.Errorf("expected one transaction, got %d", txCalls)
		}
		if res.Subscription.Status != model.SubscriptionStatusPending || res.Subscription.Amount != 2700 {
			t.Errorf("unexpected subscription %+v", res.Subscription)
		}
		if res.Payment.Status != model.PaymentStatusPending || res.Payment.ExternalID == "" {
			t.Errorf("unexpected payment %+v", res.Payment)
		}
		if len(h.store.byAction(model.ActionCheckoutCreated)) != 1 {
			t.Error("expected checkout entry")
		}
	})

	t.Run("override promo switches tariff and carries bonus into activation", func(t *testing.T) {
		h := newHarness()
		seedTariffs(h)
		h.seedUser("u1", 101)
		premium := "premium"
		_ = h.promos.Create(ctx, nil, &model.Promocode{Code: "UPGRADE", Type: model.PromoTypeMass, DiscountType: model.DiscountFixed, DiscountValue: 500, OverrideTariffID: &premium, BonusDays: map[int]int{3: 14}, IsActive: true})

		res, err := h.purchase.Checkout(ctx, model.CheckoutRequest{UserID: "u1", TariffID: "basic", PeriodMonths: 3, PromoCode: "upgrade"})
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if *res.Subscription.TariffID != "premium" || res.Subscription.Amount != 4000 || res.Payment.BonusDays != 14 {
			t.Fatalf("unexpected checkout %+v / %+v", res.Subscription, res.Payment)
		}

		if _, err := h.payment.HandleConfirmed(ctx, res.Payment.ExternalID, nil); err != nil {
			t.Fatal(err)
		}
		if got := h.mustSub(res.Subscription.ID).EndDate; !got.Equal(testNow.AddDate(0, 3, 14)) {
			t.Errorf("expected 3 months + 14 days, got %v", got)
		}
	})

	t.Run("invalid promo is a validation error", func(t *testing.T) {
		h := newHarness()
		seedTariffs(h)
		h.seedUser("u1", 101)
		_, err := h.purchase.Checkout(ctx, model.CheckoutRequest{UserID: "u1", TariffID: "basic", PeriodMonths: 1, PromoCode: "NOPE"})
		if !errors.Is(err, domain.ErrInvalidArgument) {
			t.Fatalf("expected ErrInvalidArgument, got %v", err)
		}
	})

	t.Run("unpriced period is rejected", func(t *testing.T) {
		h := newHarness()
		seedTariffs(h)
		h.seedUser("u1", 101)
		_, err := h.purchase.Checkout(ctx, model.CheckoutRequest{UserID: "u1", TariffID: "premium", PeriodMonths: 1})
		if !errors.Is(err, domain.ErrInvalidArgument) {
			t.Fatalf("expected ErrInvalidArgument, got %v", err)
		}
	})
}
