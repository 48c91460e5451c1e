package usecase

import (
	"context"
	"errors"
	"fmt"
	"time"

	"telegram-access-subscription/internal/domain"
	"telegram-access-subscription/internal/domain/model"
	"telegram-access-subscription/internal/domain/ports/adapter"
	"telegram-access-subscription/internal/domain/ports/repository"

	"github.com/rs/zerolog"
)

// Compile-time check
var _ AccessUseCase = (*accessUC)(nil)

// AccessUseCase keeps the granted-flags of a subscription in line with the
// external systems. Both operations are idempotent: a system whose flag is
// already in the target state is not called.
type AccessUseCase interface {
	EnsureGranted(ctx context.Context, sub *model.Subscription) model.AccessReport
	EnsureRevoked(ctx context.Context, sub *model.Subscription) model.AccessReport
}

type accessUC struct {
	providers []adapter.AccessProvider
	subs      repository.SubscriptionRepository
	users     repository.UserRepository
	timeout   time.Duration
	log       *zerolog.Logger
}

// NewAccessUseCase wires the orchestrator over a list of providers, visited in order.
// A non-positive timeout falls back to 10s.
func NewAccessUseCase(
	providers []adapter.AccessProvider,
	subs repository.SubscriptionRepository,
	users repository.UserRepository,
	timeout time.Duration,
	logger *zerolog.Logger,
) *accessUC {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	l := logger.With().Str("component", "access").Logger()
	return &accessUC{providers: providers, subs: subs, users: users, timeout: timeout, log: &l}
}

func (a *accessUC) EnsureGranted(ctx context.Context, sub *model.Subscription) model.AccessReport {
	return a.ensure(ctx, sub, model.AccessGrant)
}

func (a *accessUC) EnsureRevoked(ctx context.Context, sub *model.Subscription) model.AccessReport {
	return a.ensure(ctx, sub, model.AccessRevoke)
}

func (a *accessUC) ensure(ctx context.Context, sub *model.Subscription, op model.AccessOperation) model.AccessReport {
	report := model.AccessReport{Operation: op, Failures: map[model.AccessSystem]string{}}
	target := op == model.AccessGrant

	var pending []adapter.AccessProvider
	for _, p := range a.providers {
		if sub.Access.Granted(p.System()) == target {
			report.Skipped = append(report.Skipped, p.System())
			continue
		}
		pending = append(pending, p)
	}
	if len(pending) == 0 {
		return report
	}

	user, err := a.users.FindByID(ctx, repository.NoTX, sub.UserID)
	if err != nil {
		for _, p := range pending {
			a.fail(&report, sub, p.System(), op, fmt.Errorf("load user: %w", err))
		}
		return report
	}

	for _, p := range pending {
		sys := p.System()
		identity := user.IdentityFor(sys)
		if identity == "" {
			a.fail(&report, sub, sys, op, domain.ErrIdentityMissing)
			continue
		}
		if err := a.call(ctx, p, op, identity); err != nil {
			a.fail(&report, sub, sys, op, err)
			continue
		}
		if err := a.persistFlag(ctx, sub.ID, sys, target); err != nil {
			// remote side changed; the next sync repeats the idempotent call
			a.fail(&report, sub, sys, op, fmt.Errorf("persist flag: %w", err))
			continue
		}
		sub.Access.Set(sys, target)
		report.Changed = append(report.Changed, sys)
		a.log.Info().Str("subscription_id", sub.ID).Str("system", string(sys)).Str("op", string(op)).Msg("access updated")
	}
	return report
}

// persistFlag outlives ctx so a remote change that succeeded is still recorded.
func (a *accessUC) persistFlag(ctx context.Context, id string, sys model.AccessSystem, granted bool) error {
	wctx, cancel := detached(ctx)
	defer cancel()
	return a.subs.SetAccessFlag(wctx, repository.NoTX, id, sys, granted)
}

func (a *accessUC) call(ctx context.Context, p adapter.AccessProvider, op model.AccessOperation, identity string) error {
	cctx, cancel := context.WithTimeout(ctx, a.timeout)
	defer cancel()
	if op == model.AccessGrant {
		return p.Grant(cctx, identity)
	}
	return p.Revoke(cctx, identity)
}

func (a *accessUC) fail(report *model.AccessReport, sub *model.Subscription, sys model.AccessSystem, op model.AccessOperation, err error) {
	report.Failures[sys] = err.Error()
	ev := a.log.Error()
	if errors.Is(err, domain.ErrIdentityMissing) || errors.Is(err, domain.ErrNotConfigured) {
		ev = a.log.Warn()
	}
	ev.Err(err).
		Str("subscription_id", sub.ID).
		Str("system", string(sys)).
		Str("op", string(op)).
		Msg("access call failed")
}
