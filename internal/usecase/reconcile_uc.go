package usecase

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"time"

	"telegram-access-subscription/internal/clock"
	"telegram-access-subscription/internal/domain/model"
	"telegram-access-subscription/internal/domain/ports/repository"
	ucport "telegram-access-subscription/internal/domain/ports/usecase"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"
)

// Compile-time check
var _ ReconcileUseCase = (*reconcileUC)(nil)

// ReconcileUseCase runs one sweep over the ledger. Overlap protection is the
// caller's job (see sched.PassGuard).
type ReconcileUseCase interface {
	ucport.Reconciler
}

type ReconcileOptions struct {
	Concurrency int  // items processed in parallel within a stage
	BatchSize   int  // max items fetched per stage query
	RetryAccess bool // run the access drift stage
}

type reconcileUC struct {
	subs      repository.SubscriptionRepository
	states    repository.BotStateRepository
	lifecycle LifecycleUseCase
	notices   NotificationUseCase
	access    AccessUseCase
	clock     clock.Clock
	opts      ReconcileOptions
	log       *zerolog.Logger
}

func NewReconcileUseCase(
	subs repository.SubscriptionRepository,
	states repository.BotStateRepository,
	lifecycle LifecycleUseCase,
	notices NotificationUseCase,
	access AccessUseCase,
	clk clock.Clock,
	opts ReconcileOptions,
	logger *zerolog.Logger,
) *reconcileUC {
	if opts.Concurrency <= 0 {
		opts.Concurrency = 4
	}
	if opts.BatchSize <= 0 {
		opts.BatchSize = 500
	}
	l := logger.With().Str("component", "reconciler").Logger()
	return &reconcileUC{
		subs:      subs,
		states:    states,
		lifecycle: lifecycle,
		notices:   notices,
		access:    access,
		clock:     clk,
		opts:      opts,
		log:       &l,
	}
}

// RunPass executes the stages in order. A failing item never stops its stage,
// and a failing stage never stops the next one; stage-level errors are joined
// into the returned error.
func (r *reconcileUC) RunPass(ctx context.Context) (model.PassReport, error) {
	start := r.clock.Now()
	report := model.PassReport{StartedAt: start}
	var errs []error

	if err := r.expireStage(ctx, &report); err != nil {
		errs = append(errs, fmt.Errorf("expire: %w", err))
	}
	if err := r.expiringStage(ctx, &report); err != nil {
		errs = append(errs, fmt.Errorf("expiring soon: %w", err))
	}
	if r.opts.RetryAccess {
		if err := r.accessStage(ctx, &report); err != nil {
			errs = append(errs, fmt.Errorf("access retry: %w", err))
		}
	}
	if r.states != nil {
		n, err := r.states.PurgeExpired(ctx, r.clock.Now())
		if err != nil {
			errs = append(errs, fmt.Errorf("housekeeping: %w", err))
		}
		report.StatesPurged = n
	}

	report.Duration = r.clock.Now().Sub(start)
	report.Errors += len(errs)
	r.log.Info().
		Int("expired", report.Expired).
		Int("notified", report.Notified).
		Int("notify_failed", report.NotifyFailed).
		Int("access_reconciled", report.AccessReconciled).
		Int64("states_purged", report.StatesPurged).
		Int("errors", report.Errors).
		Dur("took", report.Duration).
		Msg("reconciler pass finished")
	return report, errors.Join(errs...)
}

// expireStage drains every overdue subscription, one batch at a time.
func (r *reconcileUC) expireStage(ctx context.Context, report *model.PassReport) error {
	for {
		due, err := r.subs.ListDueForExpiry(ctx, repository.NoTX, r.clock.Now(), r.opts.BatchSize)
		if err != nil {
			return err
		}
		var expired, failed atomic.Int64
		r.each(ctx, due, func(ctx context.Context, s *model.Subscription) {
			ok, err := r.lifecycle.ExpireOverdue(ctx, s.ID)
			if err != nil {
				failed.Add(1)
				r.log.Error().Err(err).Str("subscription_id", s.ID).Msg("expire failed")
				return
			}
			if ok {
				expired.Add(1)
			}
		})
		report.Expired += int(expired.Load())
		report.Errors += int(failed.Load())
		if !r.more(ctx, len(due), failed.Load()) {
			return nil
		}
	}
}

func (r *reconcileUC) expiringStage(ctx context.Context, report *model.PassReport) error {
	defs, err := r.notices.Definitions(ctx)
	if err != nil {
		return err
	}
	now := r.clock.Now()
	var errs []error
	for _, def := range defs {
		if err := r.expiringFor(ctx, def, now, report); err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", def.ActionKey, err))
		}
	}
	return errors.Join(errs...)
}

func (r *reconcileUC) expiringFor(ctx context.Context, def *model.NotificationDefinition, now time.Time, report *model.PassReport) error {
	from, to := def.Window(now)
	for {
		subs, err := r.subs.ListExpiringBetween(ctx, repository.NoTX, from, to, def.ActionKey, r.opts.BatchSize)
		if err != nil {
			return err
		}
		var sent, failed atomic.Int64
		r.each(ctx, subs, func(ctx context.Context, s *model.Subscription) {
			ok, err := r.notices.EmitExpiring(ctx, s, def)
			if err != nil {
				failed.Add(1)
				return
			}
			if ok {
				sent.Add(1)
			}
		})
		report.Notified += int(sent.Load())
		report.NotifyFailed += int(failed.Load())
		if !r.more(ctx, len(subs), failed.Load()) {
			return nil
		}
	}
}

// accessStage handles one batch per pass. Every row it visits is marked as
// attempted, so rows that cannot be repaired stop shadowing the others.
func (r *reconcileUC) accessStage(ctx context.Context, report *model.PassReport) error {
	drift, err := r.subs.ListAccessDrift(ctx, repository.NoTX, r.opts.BatchSize)
	if err != nil {
		return err
	}
	var changed, failed atomic.Int64
	r.each(ctx, drift, func(ctx context.Context, s *model.Subscription) {
		var rep model.AccessReport
		switch s.Status {
		case model.SubscriptionStatusActive:
			rep = r.access.EnsureGranted(ctx, s)
		case model.SubscriptionStatusExpired, model.SubscriptionStatusCancelled:
			rep = r.access.EnsureRevoked(ctx, s)
		default:
			return
		}
		changed.Add(int64(len(rep.Changed)))
		failed.Add(int64(len(rep.Failures)))
		if err := r.subs.MarkAccessAttempt(ctx, repository.NoTX, s.ID, r.clock.Now()); err != nil {
			r.log.Warn().Err(err).Str("subscription_id", s.ID).Msg("access attempt not recorded")
		}
	})
	report.AccessReconciled += int(changed.Load())
	report.Errors += int(failed.Load())
	return nil
}

// more reports whether a draining stage should fetch again: the last batch
// was full and at least one of its rows left the result set.
func (r *reconcileUC) more(ctx context.Context, fetched int, failed int64) bool {
	return ctx.Err() == nil && fetched >= r.opts.BatchSize && int64(fetched) > failed
}

// each runs fn over items with bounded concurrency. fn handles its own errors.
func (r *reconcileUC) each(ctx context.Context, items []*model.Subscription, fn func(context.Context, *model.Subscription)) {
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(r.opts.Concurrency)
	for _, s := range items {
		if gctx.Err() != nil {
			break
		}
		g.Go(func() error {
			fn(gctx, s)
			return nil
		})
	}
	_ = g.Wait()
}
