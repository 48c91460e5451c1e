package sched

import (
	"context"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"

	red "telegram-access-subscription/internal/infra/redis"
)

// PassGuard admits at most one reconciler pass at a time. Acquire never
// blocks: ok is false when a pass is already running.
type PassGuard interface {
	Acquire(ctx context.Context) (release func(), ok bool, err error)
}

var (
	_ PassGuard = (*LocalGuard)(nil)
	_ PassGuard = (*RedisGuard)(nil)
)

// LocalGuard is an in-process flag.
type LocalGuard struct {
	running atomic.Bool
}

func NewLocalGuard() *LocalGuard { return &LocalGuard{} }

func (g *LocalGuard) Acquire(context.Context) (func(), bool, error) {
	if !g.running.CompareAndSwap(false, true) {
		return nil, false, nil
	}
	return func() { g.running.Store(false) }, true, nil
}

// RedisGuard adds a cluster-wide lease on top of a local guard so replicas
// sharing a database never sweep concurrently. The lease expires after ttl
// even if its holder dies.
type RedisGuard struct {
	local  *LocalGuard
	locker red.Locker
	key    string
	ttl    time.Duration
	log    *zerolog.Logger
}

func NewRedisGuard(locker red.Locker, key string, ttl time.Duration, logger *zerolog.Logger) *RedisGuard {
	if key == "" {
		key = "lock:reconciler"
	}
	l := logger.With().Str("component", "pass_guard").Logger()
	return &RedisGuard{local: NewLocalGuard(), locker: locker, key: key, ttl: ttl, log: &l}
}

func (g *RedisGuard) Acquire(ctx context.Context) (func(), bool, error) {
	releaseLocal, ok, _ := g.local.Acquire(ctx)
	if !ok {
		return nil, false, nil
	}
	token, ok, err := g.locker.TryLock(ctx, g.key, g.ttl)
	if err != nil || !ok {
		releaseLocal()
		return nil, false, err
	}
	return func() {
		// the pass context may already be cancelled; unlock on a fresh one
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := g.locker.Unlock(ctx, g.key, token); err != nil {
			g.log.Warn().Err(err).Str("key", g.key).Msg("lease release failed; it will expire on its own")
		}
		releaseLocal()
	}, true, nil
}
