// Package access holds cross-cutting wrappers for adapter.AccessProvider.
package access

import (
	"context"
	"time"

	"golang.org/x/time/rate"

	"telegram-access-subscription/internal/domain"
	"telegram-access-subscription/internal/domain/model"
	"telegram-access-subscription/internal/domain/ports/adapter"
	"telegram-access-subscription/internal/infra/metrics"
)

// Wrap applies the standard stack: metrics outermost, then rate limiting.
// rps <= 0 disables limiting.
func Wrap(inner adapter.AccessProvider, rps float64, burst int) adapter.AccessProvider {
	return NewMetered(NewRateLimited(inner, rps, burst))
}

// --- unconfigured

var _ adapter.AccessProvider = Unconfigured("")

// Unconfigured stands in for a system whose settings are missing. Every call
// fails with ErrNotConfigured so only that system's work is skipped.
type Unconfigured model.AccessSystem

func (u Unconfigured) System() model.AccessSystem           { return model.AccessSystem(u) }
func (u Unconfigured) Grant(context.Context, string) error  { return domain.ErrNotConfigured }
func (u Unconfigured) Revoke(context.Context, string) error { return domain.ErrNotConfigured }

// --- rate limited

type rateLimited struct {
	inner   adapter.AccessProvider
	limiter *rate.Limiter
}

func NewRateLimited(inner adapter.AccessProvider, rps float64, burst int) adapter.AccessProvider {
	if rps <= 0 {
		return inner
	}
	if burst <= 0 {
		burst = 1
	}
	return &rateLimited{inner: inner, limiter: rate.NewLimiter(rate.Limit(rps), burst)}
}

func (r *rateLimited) System() model.AccessSystem { return r.inner.System() }

// Waiting counts against the caller's deadline, so a saturated system times
// out like any other failed call.
func (r *rateLimited) Grant(ctx context.Context, identity string) error {
	if err := r.limiter.Wait(ctx); err != nil {
		return err
	}
	return r.inner.Grant(ctx, identity)
}

func (r *rateLimited) Revoke(ctx context.Context, identity string) error {
	if err := r.limiter.Wait(ctx); err != nil {
		return err
	}
	return r.inner.Revoke(ctx, identity)
}

// --- metered

type metered struct {
	inner adapter.AccessProvider
	now   func() time.Time
}

func NewMetered(inner adapter.AccessProvider) adapter.AccessProvider {
	return &metered{inner: inner, now: time.Now}
}

func (m *metered) System() model.AccessSystem { return m.inner.System() }

func (m *metered) Grant(ctx context.Context, identity string) error {
	start := m.now()
	err := m.inner.Grant(ctx, identity)
	metrics.ObserveAccessCall(string(m.inner.System()), string(model.AccessGrant), m.now().Sub(start), err)
	return err
}

func (m *metered) Revoke(ctx context.Context, identity string) error {
	start := m.now()
	err := m.inner.Revoke(ctx, identity)
	metrics.ObserveAccessCall(string(m.inner.System()), string(model.AccessRevoke), m.now().Sub(start), err)
	return err
}
