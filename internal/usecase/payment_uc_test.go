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

// seedCheckout stores a pending subscription with a pending payment.
func (h *harness) seedCheckout(subID, payID, externalID string, periodMonths, bonusDays int) {
	ctx := context.Background()
	h.seedUser("u1", 101)
	s := h.seedSub(subID, "u1", model.SubscriptionStatusPending, nil, model.AccessFlags{})
	s.PeriodMonths = periodMonths
	_ = h.subs.Update(ctx, nil, s)
	_ = h.payments.Create(ctx, nil, &model.Payment{
		ID:             payID,
		SubscriptionID: subID,
		UserID:         "u1",
		Amount:         1000,
		Currency:       "USD",
		Status:         model.PaymentStatusPending,
		ExternalID:     externalID,
		BonusDays:      bonusDays,
		CreatedAt:      testNow,
	})
}

func TestPaymentUseCase_HandleConfirmed(t *testing.T) {
	ctx := context.Background()

	t.Run("duplicate delivery activates exactly once", func(t *testing.T) {
		h := newHarness()
		h.seedCheckout("s1", "p1", "tx-1", 3, 14)

		first, err := h.payment.HandleConfirmed(ctx, "tx-1", []byte(`{"n":1}`))
		if err != nil || first != model.PaymentOutcomeProcessed {
			t.Fatalf("first delivery: got %s, %v", first, err)
		}
		second, err := h.payment.HandleConfirmed(ctx, "tx-1", []byte(`{"n":2}`))
		if err != nil || second != model.PaymentOutcomeDuplicate {
			t.Fatalf("second delivery: got %s, %v", second, err)
		}

		sub := h.mustSub("s1")
		if sub.Status != model.SubscriptionStatusActive {
			t.Fatalf("expected active, got %s", sub.Status)
		}
		want := testNow.AddDate(0, 3, 14)
		if !sub.EndDate.Equal(want) {
			t.Errorf("expected end %v, got %v", want, sub.EndDate)
		}
		if n := len(h.store.byAction(model.ActionPaymentSuccess)); n != 1 {
			t.Errorf("expected one payment_webhook_success entry, got %d", n)
		}
		for _, p := range []*fakeProvider{h.chat, h.kb, h.files} {
			if g, _ := p.calls(); g != 1 {
				t.Errorf("%s: expected one grant, got %d", p.sys, g)
			}
		}
		if p, _ := h.payments.FindByID(ctx, nil, "p1"); p.Status != model.PaymentStatusCompleted || string(p.Payload) != `{"n":1}` {
			t.Errorf("unexpected payment state %+v", p)
		}
	})

	t.Run("confirmation on an active subscription extends from its end", func(t *testing.T) {
		h := newHarness()
		h.seedCheckout("s1", "p1", "tx-1", 1, 0)
		end := testNow.AddDate(0, 0, 10)
		s := h.mustSub("s1")
		s.Status, s.EndDate = model.SubscriptionStatusActive, &end
		_ = h.subs.Update(ctx, nil, s)

		if _, err := h.payment.HandleConfirmed(ctx, "tx-1", nil); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if got := h.mustSub("s1").EndDate; !got.Equal(end.AddDate(0, 1, 0)) {
			t.Errorf("expected extension from current end, got %v", got)
		}
	})

	t.Run("failed activation leaves the payment pending for the retry", func(t *testing.T) {
		h := newHarness()
		h.seedCheckout("s1", "p1", "tx-1", 1, 0)
		calls := 0
		h.subs.UpdateFunc = func(*model.Subscription) error {
			calls++
			if calls == 1 {
				return errors.New("connection reset")
			}
			return nil
		}

		if _, err := h.payment.HandleConfirmed(ctx, "tx-1", nil); err == nil {
			t.Fatal("expected the first delivery to fail")
		}
		if p, _ := h.payments.FindByID(ctx, nil, "p1"); p.Status != model.PaymentStatusPending {
			t.Fatalf("payment must stay pending after a failed activation, got %s", p.Status)
		}
		if h.mustSub("s1").Status != model.SubscriptionStatusPending {
			t.Fatal("subscription must not change on a failed activation")
		}

		out, err := h.payment.HandleConfirmed(ctx, "tx-1", nil)
		if err != nil || out != model.PaymentOutcomeProcessed {
			t.Fatalf("retry: got %s, %v", out, err)
		}
		if h.mustSub("s1").Status != model.SubscriptionStatusActive {
			t.Errorf("expected active after the retry, got %s", h.mustSub("s1").Status)
		}
		if p, _ := h.payments.FindByID(ctx, nil, "p1"); p.Status != model.PaymentStatusCompleted {
			t.Errorf("expected completed payment, got %s", p.Status)
		}
		if n := len(h.store.byAction(model.ActionPaymentSuccess)); n != 1 {
			t.Errorf("expected one payment_webhook_success entry, got %d", n)
		}
	})

	t.Run("completion and activation share one transaction", func(t *testing.T) {
		h := newHarness()
		h.seedCheckout("s1", "p1", "tx-1", 1, 0)
		txs := 0
		h.tm.WithTxFunc = func(ctx context.Context, _ pgx.TxOptions, fn func(ctx context.Context, tx repository.Tx) error) error {
			txs++
			return fn(ctx, nil)
		}
		if _, err := h.payment.HandleConfirmed(ctx, "tx-1", nil); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if txs != 1 {
			t.Errorf("expected one transaction, got %d", txs)
		}
	})

	t.Run("losing the completion race is a duplicate", func(t *testing.T) {
		h := newHarness()
		h.seedCheckout("s1", "p1", "tx-1", 1, 0)
		// another delivery completes the payment between lookup and commit
		h.subs.UpdateFunc = func(*model.Subscription) error {
			_, err := h.payments.MarkCompleted(ctx, nil, "p1", testNow, nil)
			return err
		}
		out, err := h.payment.HandleConfirmed(ctx, "tx-1", nil)
		if err != nil || out != model.PaymentOutcomeDuplicate {
			t.Fatalf("expected duplicate, got %s, %v", out, err)
		}
		if n := len(h.store.byAction(model.ActionPaymentSuccess)); n != 0 {
			t.Errorf("a rolled back activation must not be logged, got %d entries", n)
		}
	})

	t.Run("unknown transaction is ignored", func(t *testing.T) {
		h := newHarness()
		out, err := h.payment.HandleConfirmed(ctx, "missing", nil)
		if err != nil || out != model.PaymentOutcomeIgnored {
			t.Fatalf("expected ignored, got %s, %v", out, err)
		}
	})

	t.Run("empty transaction id is a validation error", func(t *testing.T) {
		h := newHarness()
		if _, err := h.payment.HandleConfirmed(ctx, "", nil); !errors.Is(err, domain.ErrInvalidArgument) {
			t.Fatalf("expected ErrInvalidArgument, got %v", err)
		}
	})
}

func TestPaymentUseCase_HandleFailed(t *testing.T) {
	ctx := context.Background()
	h := newHarness()
	h.seedCheckout("s1", "p1", "tx-1", 1, 0)

	out, err := h.payment.HandleFailed(ctx, "tx-1", "card declined", nil)
	if err != nil || out != model.PaymentOutcomeProcessed {
		t.Fatalf("expected processed, got %s, %v", out, err)
	}
	out, _ = h.payment.HandleFailed(ctx, "tx-1", "card declined", nil)
	if out != model.PaymentOutcomeDuplicate {
		t.Errorf("expected duplicate, got %s", out)
	}
	if h.mustSub("s1").Status != model.SubscriptionStatusPending {
		t.Error("failed payment must not change the subscription")
	}
	if len(h.store.byAction(model.ActionPaymentFailed)) != 1 {
		t.Error("expected one failure entry")
	}
}

func TestPaymentUseCase_HandleRefunded(t *testing.T) {
	ctx := context.Background()

	t.Run("refund cancels and revokes", func(t *testing.T) {
		h := newHarness()
		h.seedCheckout("s1", "p1", "tx-1", 1, 0)
		if _, err := h.payment.HandleConfirmed(ctx, "tx-1", nil); err != nil {
			t.Fatal(err)
		}

		out, err := h.payment.HandleRefunded(ctx, "tx-1", nil)
		if err != nil || out != model.PaymentOutcomeProcessed {
			t.Fatalf("expected processed, got %s, %v", out, err)
		}
		sub := h.mustSub("s1")
		if sub.Status != model.SubscriptionStatusCancelled || sub.Access.Any() {
			t.Errorf("expected cancelled without access, got %s %+v", sub.Status, sub.Access)
		}
		if again, _ := h.payment.HandleRefunded(ctx, "tx-1", nil); again != model.PaymentOutcomeDuplicate {
			t.Errorf("expected duplicate refund, got %s", again)
		}
		if len(h.store.byAction(model.ActionPaymentRefunded)) != 1 {
			t.Error("expected one refund entry")
		}
	})

	t.Run("refund of a pending payment is ignored", func(t *testing.T) {
		h := newHarness()
		h.seedCheckout("s1", "p1", "tx-1", 1, 0)
		if out, _ := h.payment.HandleRefunded(ctx, "tx-1", nil); out != model.PaymentOutcomeIgnored {
			t.Errorf("expected ignored, got %s", out)
		}
	})
}
