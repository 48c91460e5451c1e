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

var _ repository.TariffRepository = (*tariffRepoCacheDecorator)(nil)

const tariffListKey = "tariffs:active"

type tariffRepoCacheDecorator struct {
	inner repository.TariffRepository
	cache red.RedisClient
	ttl   time.Duration
	log   *zerolog.Logger
}

func NewTariffRepoCacheDecorator(inner repository.TariffRepository, cache red.RedisClient, ttl time.Duration, logger *zerolog.Logger) repository.TariffRepository {
	if ttl <= 0 {
		ttl = time.Hour
	}
	l := logger.With().Str("component", "tariff_cache").Logger()
	return &tariffRepoCacheDecorator{inner: inner, cache: cache, ttl: ttl, log: &l}
}

func tariffKey(id string) string { return fmt.Sprintf("tariff:%s", id) }

// Reads inside a transaction skip the cache.
func (d *tariffRepoCacheDecorator) FindByID(ctx context.Context, tx repository.Tx, id string) (*model.Tariff, error) {
	if tx != nil {
		return d.inner.FindByID(ctx, tx, id)
	}
	key := tariffKey(id)
	var t model.Tariff
	if d.lookup(ctx, key, &t) {
		metrics.IncCacheRequest("tariff", "hit")
		return &t, nil
	}
	metrics.IncCacheRequest("tariff", "miss")
	found, err := d.inner.FindByID(ctx, tx, id)
	if err != nil {
		return nil, err
	}
	d.store(ctx, key, found)
	return found, nil
}

func (d *tariffRepoCacheDecorator) ListActive(ctx context.Context, tx repository.Tx) ([]*model.Tariff, error) {
	if tx != nil {
		return d.inner.ListActive(ctx, tx)
	}
	var list []*model.Tariff
	if d.lookup(ctx, tariffListKey, &list) {
		metrics.IncCacheRequest("tariff_list", "hit")
		return list, nil
	}
	metrics.IncCacheRequest("tariff_list", "miss")
	list, err := d.inner.ListActive(ctx, tx)
	if err != nil {
		return nil, err
	}
	if len(list) > 0 {
		d.store(ctx, tariffListKey, list)
	}
	return list, nil
}

// Save invalidates before writing so a failed write still drops stale data.
func (d *tariffRepoCacheDecorator) Save(ctx context.Context, tx repository.Tx, t *model.Tariff) error {
	if err := d.cache.Del(ctx, tariffKey(t.ID), tariffListKey); err != nil {
		d.log.Warn().Err(err).Str("tariff_id", t.ID).Msg("cache invalidation failed")
	}
	return d.inner.Save(ctx, tx, t)
}

func (d *tariffRepoCacheDecorator) lookup(ctx context.Context, key string, dst interface{}) bool {
	val, err := d.cache.Get(ctx, key)
	if err != nil {
		if !errors.Is(err, red.Nil) {
			d.log.Warn().Err(err).Str("key", key).Msg("cache read failed")
		}
		return false
	}
	return json.Unmarshal([]byte(val), dst) == nil
}

func (d *tariffRepoCacheDecorator) store(ctx context.Context, key string, v interface{}) {
	b, err := json.Marshal(v)
	if err != nil {
		return
	}
	if err := d.cache.Set(ctx, key, b, d.ttl); err != nil {
		d.log.Warn().Err(err).Str("key", key).Msg("cache write failed")
	}
}
