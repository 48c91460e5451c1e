package usecase

import (
	"context"
	"errors"
	"fmt"
	"time"

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
var _ LifecycleUseCase = (*lifecycleUC)(nil)

// LifecycleUseCase owns every subscription status change. External access and
// user notices follow from the change; their failures never roll it back.
type LifecycleUseCase interface {
	ucport.SubscriptionAdmin
	// ExpireOverdue expires the subscription if it is still active past its
	// end date and reports whether it did.
	ExpireOverdue(ctx context.Context, id string) (bool, error)
	// TransitionGuarded is Transition with guard run in the same transaction
	// as the subscription write. A guard error rolls the write back and is
	// returned unchanged; nothing else happens.
	TransitionGuarded(ctx context.Context, id string, upd model.SubscriptionUpdate, guard TxGuard) (*model.Subscription, error)
}

// TxGuard runs inside the transaction that persists a transition.
type TxGuard func(ctx context.Context, tx repository.Tx) error

// auditTimeout bounds ledger writes made after the caller's context is gone.
const auditTimeout = 5 * time.Second

type lifecycleUC struct {
	subs    repository.SubscriptionRepository
	users   repository.UserRepository
	tariffs repository.TariffRepository
	actions repository.ActionLogRepository
	tm      repository.TransactionManager
	access  AccessUseCase
	notices NotificationUseCase
	clock   clock.Clock
	log     *zerolog.Logger
}

func NewLifecycleUseCase(
	subs repository.SubscriptionRepository,
	users repository.UserRepository,
	tariffs repository.TariffRepository,
	actions repository.ActionLogRepository,
	tm repository.TransactionManager,
	access AccessUseCase,
	notices NotificationUseCase,
	clk clock.Clock,
	logger *zerolog.Logger,
) *lifecycleUC {
	l := logger.With().Str("component", "lifecycle").Logger()
	return &lifecycleUC{
		subs:    subs,
		users:   users,
		tariffs: tariffs,
		actions: actions,
		tm:      tm,
		access:  access,
		notices: notices,
		clock:   clk,
		log:     &l,
	}
}

func (uc *lifecycleUC) Get(ctx context.Context, id string) (*model.Subscription, error) {
	return uc.subs.FindByID(ctx, repository.NoTX, id)
}

func (uc *lifecycleUC) Transition(ctx context.Context, id string, upd model.SubscriptionUpdate) (*model.Subscription, error) {
	return uc.TransitionGuarded(ctx, id, upd, nil)
}

func (uc *lifecycleUC) TransitionGuarded(ctx context.Context, id string, upd model.SubscriptionUpdate, guard TxGuard) (*model.Subscription, error) {
	sub, err := uc.subs.FindByID(ctx, repository.NoTX, id)
	if err != nil {
		return nil, err
	}
	return uc.apply(ctx, sub, upd, guard)
}

func (uc *lifecycleUC) ExpireOverdue(ctx context.Context, id string) (bool, error) {
	sub, err := uc.subs.FindByID(ctx, repository.NoTX, id)
	if err != nil {
		return false, err
	}
	if !sub.IsOverdue(uc.clock.Now()) {
		return false, nil
	}
	expired := model.SubscriptionStatusExpired
	_, err = uc.apply(ctx, sub, model.SubscriptionUpdate{
		Status: &expired,
		Source: model.SourceScheduler,
		Action: model.ActionSubscriptionExpired,
	}, nil)
	return err == nil, err
}

// apply runs one transition on a loaded subscription.
func (uc *lifecycleUC) apply(ctx context.Context, sub *model.Subscription, upd model.SubscriptionUpdate, guard TxGuard) (*model.Subscription, error) {
	now := uc.clock.Now()
	old := *sub

	target := sub.Status
	if upd.Status != nil {
		if _, err := model.ParseSubscriptionStatus(string(*upd.Status)); err != nil {
			return nil, err
		}
		target = *upd.Status
	}
	if !model.CanTransition(old.Status, target) {
		return nil, fmt.Errorf("%w: %s -> %s", domain.ErrInvalidTransition, old.Status, target)
	}

	changed := []string{}
	if upd.StartDate != nil {
		sub.StartDate = upd.StartDate
		changed = append(changed, "start_date")
	}
	if upd.EndDate != nil {
		sub.EndDate = upd.EndDate
		changed = append(changed, "end_date")
	}
	if upd.Notes != nil {
		sub.Notes = *upd.Notes
		changed = append(changed, "notes")
	}
	if upd.IsFree != nil {
		sub.IsFree = *upd.IsFree
		changed = append(changed, "is_free")
	}
	if sub.StartDate != nil && sub.EndDate != nil && sub.EndDate.Before(*sub.StartDate) {
		return nil, fmt.Errorf("%w: end_date before start_date", domain.ErrInvalidArgument)
	}

	if target == model.SubscriptionStatusActive && old.Status != model.SubscriptionStatusActive {
		// (re)activation without a usable end date starts a fresh period
		if upd.EndDate == nil && (sub.EndDate == nil || !sub.EndDate.After(now)) {
			start := now
			if upd.StartDate != nil {
				start = *upd.StartDate
			}
			end := sub.DefaultEndDate(start)
			sub.StartDate, sub.EndDate = &start, &end
		}
	}

	forced := false
	if target == model.SubscriptionStatusActive && sub.EndDate != nil && !sub.EndDate.After(now) {
		target = model.SubscriptionStatusExpired
		forced = true
	}
	sub.Status = target
	sub.UpdatedAt = now

	if err := uc.persist(ctx, sub, guard); err != nil {
		return nil, err
	}

	var report *model.AccessReport
	switch {
	case target == model.SubscriptionStatusActive && old.Status != model.SubscriptionStatusActive:
		r := uc.access.EnsureGranted(ctx, sub)
		report = &r
	case (target == model.SubscriptionStatusExpired || target == model.SubscriptionStatusCancelled) && sub.Access.Any():
		r := uc.access.EnsureRevoked(ctx, sub)
		report = &r
	}

	action := upd.Action
	if action == "" {
		action = model.ActionSubscriptionUpdated
	}
	details := map[string]any{
		"source":         string(upd.Source),
		"actor":          upd.Actor,
		"old_status":     string(old.Status),
		"new_status":     string(target),
		"changed_fields": changed,
		"forced_expiry":  forced,
	}
	if report != nil {
		details["access"] = report.Details()
	}
	for k, v := range upd.Extra {
		details[k] = v
	}
	uc.appendLog(ctx, sub, action, details, now)

	if forced {
		uc.log.Info().Str("subscription_id", sub.ID).Msg("end date already passed; subscription expired")
	}
	if kind, ok := statusNotice(&old, sub); ok {
		uc.notices.NotifyStatusChange(ctx, sub, kind)
	}
	if upd.EndDate != nil && sub.IsActive() && sub.EndDate.After(now) {
		if _, err := uc.notices.CheckThresholds(ctx, sub); err != nil {
			uc.log.Warn().Err(err).Str("subscription_id", sub.ID).Msg("threshold check failed")
		}
	}
	return sub, nil
}

func (uc *lifecycleUC) persist(ctx context.Context, sub *model.Subscription, guard TxGuard) error {
	if guard == nil {
		return uc.subs.Update(ctx, repository.NoTX, sub)
	}
	return uc.tm.WithTx(ctx, pgx.TxOptions{}, func(ctx context.Context, tx repository.Tx) error {
		if err := uc.subs.Update(ctx, tx, sub); err != nil {
			return err
		}
		return guard(ctx, tx)
	})
}

func statusNotice(old, cur *model.Subscription) (StatusNotice, bool) {
	switch {
	case cur.Status == model.SubscriptionStatusActive && old.Status == model.SubscriptionStatusPending:
		return NoticeActivated, true
	case cur.Status == model.SubscriptionStatusActive && old.Status != model.SubscriptionStatusActive:
		return NoticeRenewed, true
	case cur.Status == model.SubscriptionStatusActive && old.EndDate != nil && cur.EndDate != nil && cur.EndDate.After(*old.EndDate):
		return NoticeRenewed, true
	case old.Status != model.SubscriptionStatusActive:
		return "", false
	case cur.Status == model.SubscriptionStatusExpired:
		return NoticeExpired, true
	case cur.Status == model.SubscriptionStatusCancelled:
		return NoticeCancelled, true
	}
	return "", false
}

func (uc *lifecycleUC) Create(ctx context.Context, in model.NewSubscriptionInput) (*model.Subscription, error) {
	if in.Status == "" {
		in.Status = model.SubscriptionStatusPending
	}
	if _, err := uc.users.FindByID(ctx, repository.NoTX, in.UserID); err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return nil, fmt.Errorf("%w: unknown user %s", domain.ErrInvalidArgument, in.UserID)
		}
		return nil, err
	}
	sub, err := model.NewSubscription(uuid.NewString(), in.UserID, in.PeriodMonths, in.Amount, in.Currency, in.Status)
	if err != nil {
		return nil, err
	}
	if in.TariffID != nil {
		t, err := uc.tariffs.FindByID(ctx, repository.NoTX, *in.TariffID)
		if err != nil {
			if errors.Is(err, domain.ErrNotFound) {
				return nil, fmt.Errorf("%w: unknown tariff %s", domain.ErrInvalidArgument, *in.TariffID)
			}
			return nil, err
		}
		sub.TariffID = &t.ID
		if price, ok := t.PriceFor(sub.PeriodMonths); ok {
			sub.PricePlanID = &price.ID
			if sub.Currency == "" {
				sub.Currency = price.Currency
			}
		}
	}
	now := uc.clock.Now()
	sub.StartDate, sub.EndDate = in.StartDate, in.EndDate
	sub.IsFree, sub.Notes = in.IsFree, in.Notes
	sub.CreatedAt, sub.UpdatedAt = now, now
	if sub.StartDate != nil && sub.EndDate != nil && sub.EndDate.Before(*sub.StartDate) {
		return nil, fmt.Errorf("%w: end_date before start_date", domain.ErrInvalidArgument)
	}

	forced := false
	if sub.Status == model.SubscriptionStatusActive {
		if sub.StartDate == nil {
			sub.StartDate = &now
		}
		if sub.EndDate == nil {
			end := sub.DefaultEndDate(*sub.StartDate)
			sub.EndDate = &end
		}
		if !sub.EndDate.After(now) {
			sub.Status = model.SubscriptionStatusExpired
			forced = true
		}
	}

	if err := uc.subs.Create(ctx, repository.NoTX, sub); err != nil {
		return nil, err
	}

	details := map[string]any{
		"source":        string(model.SourceAdmin),
		"actor":         in.Actor,
		"new_status":    string(sub.Status),
		"forced_expiry": forced,
	}
	if sub.IsActive() {
		report := uc.access.EnsureGranted(ctx, sub)
		details["access"] = report.Details()
	}
	uc.appendLog(ctx, sub, model.ActionSubscriptionCreated, details, now)

	if sub.IsActive() {
		uc.notices.NotifyStatusChange(ctx, sub, NoticeActivated)
		if _, err := uc.notices.CheckThresholds(ctx, sub); err != nil {
			uc.log.Warn().Err(err).Str("subscription_id", sub.ID).Msg("threshold check failed")
		}
	}
	return sub, nil
}

func (uc *lifecycleUC) Delete(ctx context.Context, id, actor string) error {
	sub, err := uc.subs.FindByID(ctx, repository.NoTX, id)
	if err != nil {
		return err
	}
	details := map[string]any{
		"subscription_id": sub.ID,
		"actor":           actor,
		"status":          string(sub.Status),
	}
	if sub.Access.Any() {
		report := uc.access.EnsureRevoked(ctx, sub)
		details["access"] = report.Details()
	}
	if err := uc.subs.Delete(ctx, repository.NoTX, sub.ID); err != nil {
		return err
	}
	// the subscription's own entries are gone with it; keep a detached record
	entry := model.NewActionLogEntry(sub.UserID, nil, model.ActionSubscriptionDeleted, details, uc.clock.Now())
	wctx, cancel := detached(ctx)
	defer cancel()
	if err := uc.actions.Append(wctx, repository.NoTX, entry); err != nil {
		uc.log.Error().Err(err).Str("subscription_id", sub.ID).Msg("failed to write action log")
	}
	return nil
}

func (uc *lifecycleUC) SyncAccess(ctx context.Context, id, actor string) (*model.Subscription, model.AccessReport, error) {
	sub, err := uc.subs.FindByID(ctx, repository.NoTX, id)
	if err != nil {
		return nil, model.AccessReport{}, err
	}
	var report model.AccessReport
	switch sub.Status {
	case model.SubscriptionStatusActive:
		report = uc.access.EnsureGranted(ctx, sub)
	case model.SubscriptionStatusExpired, model.SubscriptionStatusCancelled:
		report = uc.access.EnsureRevoked(ctx, sub)
	default:
		return sub, report, nil
	}
	uc.appendLog(ctx, sub, model.ActionAccessSynced, map[string]any{
		"actor":  actor,
		"status": string(sub.Status),
		"access": report.Details(),
	}, uc.clock.Now())
	return sub, report, nil
}

func (uc *lifecycleUC) Actions(ctx context.Context, id string, limit int) ([]*model.ActionLogEntry, error) {
	if _, err := uc.subs.FindByID(ctx, repository.NoTX, id); err != nil {
		return nil, err
	}
	if limit <= 0 || limit > 500 {
		limit = 100
	}
	return uc.actions.ListBySubscription(ctx, repository.NoTX, id, limit)
}

// appendLog runs detached from ctx; the change it records is already committed.
func (uc *lifecycleUC) appendLog(ctx context.Context, sub *model.Subscription, action string, details map[string]any, at time.Time) {
	subID := sub.ID
	entry := model.NewActionLogEntry(sub.UserID, &subID, action, details, at)
	wctx, cancel := detached(ctx)
	defer cancel()
	if err := uc.actions.Append(wctx, repository.NoTX, entry); err != nil {
		uc.log.Error().Err(err).Str("subscription_id", sub.ID).Str("action", action).Msg("failed to write action log")
	}
}

// detached keeps ctx values but not its cancellation, bounded by auditTimeout.
func detached(ctx context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(context.WithoutCancel(ctx), auditTimeout)
}
