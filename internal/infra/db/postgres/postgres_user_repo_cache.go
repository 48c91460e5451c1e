package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"telegram-access-subscription/internal/domain/model"
	"telegram-access-subscription/internal/domain/ports/repository"
	"telegram-access-subscription/internal/infra/metrics"
	red "telegram-access-subscription/internal/infra/redis"

	"github.com/rs/zerolog"
)

var _ repository.UserRepository = (*userRepoCacheDecorator)(nil)

type userRepoCacheDecorator struct {
	inner repository.UserRepository
	cache red.RedisClient
	ttl   time.Duration
	log   *zerolog.Logger
}

func NewUserRepoCacheDecorator(inner repository.UserRepository, cache red.RedisClient, ttl time.Duration, logger *zerolog.Logger) repository.UserRepository {
	if ttl <= 0 {
		ttl = time.Hour
	}
	l := logger.With().Str("component", "user_cache").Logger()
	return &userRepoCacheDecorator{inner: inner, cache: cache, ttl: ttl, log: &l}
}

func userIDKey(id string) string  { return fmt.Sprintf("user:id:%s", id) }
func userTGKey(tgID int64) string { return fmt.Sprintf("user:tgid:%d", tgID) }

// Save drops both keys; identities feed access calls and must not go stale.
func (d *userRepoCacheDecorator) Save(ctx context.Context, tx repository.Tx, u *model.User) error {
	if err := d.cache.Del(ctx, userIDKey(u.ID), userTGKey(u.TelegramID)); err != nil {
		d.log.Warn().Err(err).Str("user_id", u.ID).Msg("cache invalidation failed")
	}
	return d.inner.Save(ctx, tx, u)
}

func (d *userRepoCacheDecorator) FindByID(ctx context.Context, tx repository.Tx, id string) (*model.User, error) {
	if tx != nil {
		return d.inner.FindByID(ctx, tx, id)
	}
	return d.cached(ctx, userIDKey(id), func() (*model.User, error) { return d.inner.FindByID(ctx, tx, id) })
}

func (d *userRepoCacheDecorator) FindByTelegramID(ctx context.Context, tx repository.Tx, tgID int64) (*model.User, error) {
	if tx != nil {
		return d.inner.FindByTelegramID(ctx, tx, tgID)
	}
	return d.cached(ctx, userTGKey(tgID), func() (*model.User, error) { return d.inner.FindByTelegramID(ctx, tx, tgID) })
}

func (d *userRepoCacheDecorator) cached(ctx context.Context, key string, load func() (*model.User, error)) (*model.User, error) {
	val, err := d.cache.Get(ctx, key)
	if err == nil {
		var user model.User
		if json.Unmarshal([]byte(val), &user) == nil {
			metrics.IncCacheRequest("user", "hit")
			return &user, nil
		}
	} else if !errors.Is(err, red.Nil) {
		d.log.Warn().Err(err).Str("key", key).Msg("cache read failed")
	}

	metrics.IncCacheRequest("user", "miss")
	user, err := load()
	if err != nil {
		return nil, err
	}
	b, err := json.Marshal(user)
	if err != nil {
		return user, nil
	}
	// warm both keys so either lookup hits next time
	_ = d.cache.Set(ctx, userIDKey(user.ID), b, d.ttl)
	_ = d.cache.Set(ctx, userTGKey(user.TelegramID), b, d.ttl)
	return user, nil
}
