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

	"github.com/rs/zerolog"
)

// Compile-time check
var _ PaymentUseCase = (*paymentUC)(nil)

var errPaymentSettled = errors.New("payment already settled")

// PaymentUseCase turns provider payment events into lifecycle transitions.
// Every handler is safe to call repeatedly for the same transaction.
type PaymentUseCase interface {
	ucport.PaymentIntake
}

type paymentUC struct {
	payments  repository.PaymentRepository
	subs      repository.SubscriptionRepository
	actions   repository.ActionLogRepository
	lifecycle LifecycleUseCase
	clock     clock.Clock
	log       *zerolog.Logger
}

func NewPaymentUseCase(
	payments repository.PaymentRepository,
	subs repository.SubscriptionRepository,
	actions repository.ActionLogRepository,
	lifecycle LifecycleUseCase,
	clk clock.Clock,
	logger *zerolog.Logger,
) *paymentUC {
	l := logger.With().Str("component", "payments").Logger()
	return &paymentUC{payments: payments, subs: subs, actions: actions, lifecycle: lifecycle, clock: clk, log: &l}
}

func (u *paymentUC) HandleConfirmed(ctx context.Context, externalID string, payload []byte) (model.PaymentOutcome, error) {
	p, outcome, err := u.lookup(ctx, externalID)
	if p == nil {
		return outcome, err
	}
	if p.Status == model.PaymentStatusCompleted || p.Status == model.PaymentStatusRefunded {
		u.log.Info().Str("external_id", externalID).Str("status", string(p.Status)).Msg("duplicate confirmation ignored")
		return model.PaymentOutcomeDuplicate, nil
	}

	sub, err := u.subs.FindByID(ctx, repository.NoTX, p.SubscriptionID)
	if err != nil {
		return "", err
	}

	// an active subscription is extended from its current end
	now := u.clock.Now()
	base := now
	if sub.IsActive() && sub.EndDate != nil && sub.EndDate.After(now) {
		base = *sub.EndDate
	}
	end := base.AddDate(0, model.ClampPeriodMonths(sub.PeriodMonths), p.BonusDays)
	upd := model.SubscriptionUpdate{
		Status:  statusPtr(model.SubscriptionStatusActive),
		EndDate: &end,
		Source:  model.SourcePayment,
		Action:  model.ActionPaymentSuccess,
		Extra: map[string]any{
			"payment_id":  p.ID,
			"external_id": p.ExternalID,
			"amount":      p.Amount,
			"currency":    p.Currency,
			"bonus_days":  p.BonusDays,
		},
	}
	if !sub.IsActive() {
		upd.StartDate = &now
	}

	// the payment settles in the same transaction as the subscription write,
	// so a failed activation leaves it pending for the provider's retry
	_, err = u.lifecycle.TransitionGuarded(ctx, sub.ID, upd, func(ctx context.Context, tx repository.Tx) error {
		won, err := u.payments.MarkCompleted(ctx, tx, p.ID, now, payload)
		if err != nil {
			return err
		}
		if !won {
			return errPaymentSettled
		}
		return nil
	})
	if errors.Is(err, errPaymentSettled) {
		u.log.Info().Str("external_id", externalID).Msg("confirmation lost the completion race; treated as duplicate")
		return model.PaymentOutcomeDuplicate, nil
	}
	if err != nil {
		u.log.Error().Err(err).Str("payment_id", p.ID).Str("subscription_id", sub.ID).Msg("activation failed; payment left pending")
		return "", err
	}
	u.log.Info().Str("payment_id", p.ID).Str("subscription_id", sub.ID).Time("end_date", end).Msg("payment confirmed")
	return model.PaymentOutcomeProcessed, nil
}

func (u *paymentUC) HandleFailed(ctx context.Context, externalID, reason string, payload []byte) (model.PaymentOutcome, error) {
	p, outcome, err := u.lookup(ctx, externalID)
	if p == nil {
		return outcome, err
	}
	switch p.Status {
	case model.PaymentStatusFailed:
		return model.PaymentOutcomeDuplicate, nil
	case model.PaymentStatusPending:
	default:
		u.log.Warn().Str("external_id", externalID).Str("status", string(p.Status)).Msg("failure event for settled payment ignored")
		return model.PaymentOutcomeIgnored, nil
	}
	won, err := u.payments.MarkFailed(ctx, repository.NoTX, p.ID, reason, payload)
	if err != nil {
		return "", err
	}
	if !won {
		return model.PaymentOutcomeDuplicate, nil
	}
	u.appendLog(ctx, p, model.ActionPaymentFailed, map[string]any{"external_id": externalID, "reason": reason})
	return model.PaymentOutcomeProcessed, nil
}

func (u *paymentUC) HandleRefunded(ctx context.Context, externalID string, payload []byte) (model.PaymentOutcome, error) {
	p, outcome, err := u.lookup(ctx, externalID)
	if p == nil {
		return outcome, err
	}
	switch p.Status {
	case model.PaymentStatusRefunded:
		return model.PaymentOutcomeDuplicate, nil
	case model.PaymentStatusCompleted:
	default:
		u.log.Warn().Str("external_id", externalID).Str("status", string(p.Status)).Msg("refund for uncompleted payment ignored")
		return model.PaymentOutcomeIgnored, nil
	}
	won, err := u.payments.MarkRefunded(ctx, repository.NoTX, p.ID, payload)
	if err != nil {
		return "", err
	}
	if !won {
		return model.PaymentOutcomeDuplicate, nil
	}

	details := map[string]any{"payment_id": p.ID, "external_id": externalID, "amount": p.Amount}
	sub, err := u.subs.FindByID(ctx, repository.NoTX, p.SubscriptionID)
	if err != nil {
		return "", err
	}
	if !sub.IsActive() {
		u.appendLog(ctx, p, model.ActionPaymentRefunded, details)
		return model.PaymentOutcomeProcessed, nil
	}
	_, err = u.lifecycle.Transition(ctx, sub.ID, model.SubscriptionUpdate{
		Status: statusPtr(model.SubscriptionStatusCancelled),
		Source: model.SourceRefund,
		Action: model.ActionPaymentRefunded,
		Extra:  details,
	})
	if err != nil {
		return "", err
	}
	return model.PaymentOutcomeProcessed, nil
}

// lookup returns the payment, or a nil payment with the outcome to report.
func (u *paymentUC) lookup(ctx context.Context, externalID string) (*model.Payment, model.PaymentOutcome, error) {
	if externalID == "" {
		return nil, "", fmt.Errorf("%w: empty transaction id", domain.ErrInvalidArgument)
	}
	p, err := u.payments.FindByExternalID(ctx, repository.NoTX, externalID)
	if errors.Is(err, domain.ErrNotFound) {
		u.log.Warn().Str("external_id", externalID).Msg("payment event for unknown transaction discarded")
		return nil, model.PaymentOutcomeIgnored, nil
	}
	if err != nil {
		return nil, "", err
	}
	return p, "", nil
}

func (u *paymentUC) appendLog(ctx context.Context, p *model.Payment, action string, details map[string]any) {
	subID := p.SubscriptionID
	entry := model.NewActionLogEntry(p.UserID, &subID, action, details, u.clock.Now())
	if err := u.actions.Append(ctx, repository.NoTX, entry); err != nil {
		u.log.Error().Err(err).Str("payment_id", p.ID).Str("action", action).Msg("failed to write action log")
	}
}

func statusPtr(s model.SubscriptionStatus) *model.SubscriptionStatus { return &s }
