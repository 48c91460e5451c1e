//go:build !integration

package postgres

import (
	"context"
	"io"
	"time"

	"telegram-access-subscription/internal/domain/model"
	"telegram-access-subscription/internal/domain/ports/repository"
	red "telegram-access-subscription/internal/infra/redis"

	"github.com/rs/zerolog"
)

// --- Mocks for cache decorator tests ---

type mockInnerTariffRepo struct {
	SaveFunc       func(ctx context.Context, tx repository.Tx, t *model.Tariff) error
	FindByIDFunc   func(ctx context.Context, tx repository.Tx, id string) (*model.Tariff, error)
	ListActiveFunc func(ctx context.Context, tx repository.Tx) ([]*model.Tariff, error)
}

func (m *mockInnerTariffRepo) Save(ctx context.Context, tx repository.Tx, t *model.Tariff) error {
	return m.SaveFunc(ctx, tx, t)
}
func (m *mockInnerTariffRepo) FindByID(ctx context.Context, tx repository.Tx, id string) (*model.Tariff, error) {
	return m.FindByIDFunc(ctx, tx, id)
}
func (m *mockInnerTariffRepo) ListActive(ctx context.Context, tx repository.Tx) ([]*model.Tariff, error) {
	return m.ListActiveFunc(ctx, tx)
}

type mockInnerUserRepo struct {
	SaveFunc             func(ctx context.Context, tx repository.Tx, u *model.User) error
	FindByIDFunc         func(ctx context.Context, tx repository.Tx, id string) (*model.User, error)
	FindByTelegramIDFunc func(ctx context.Context, tx repository.Tx, tgID int64) (*model.User, error)
}

func (m *mockInnerUserRepo) Save(ctx context.Context, tx repository.Tx, u *model.User) error {
	return m.SaveFunc(ctx, tx, u)
}
func (m *mockInnerUserRepo) FindByID(ctx context.Context, tx repository.Tx, id string) (*model.User, error) {
	return m.FindByIDFunc(ctx, tx, id)
}
func (m *mockInnerUserRepo) FindByTelegramID(ctx context.Context, tx repository.Tx, tgID int64) (*model.User, error) {
	return m.FindByTelegramIDFunc(ctx, tx, tgID)
}

// mockRedisClient mocks our Redis client wrapper. Unset funcs behave like an
// empty cache.
type mockRedisClient struct {
	GetFunc    func(ctx context.Context, key string) (string, error)
	SetFunc    func(ctx context.Context, key string, value interface{}, expiration time.Duration) error
	DelFunc    func(ctx context.Context, keys ...string) error
	IncrFunc   func(ctx context.Context, key string) (int64, error)
	ExpireFunc func(ctx context.Context, key string, expiration time.Duration) error
}

var _ red.RedisClient = &mockRedisClient{}

func (m *mockRedisClient) Get(ctx context.Context, key string) (string, error) {
	if m.GetFunc == nil {
		return "", red.Nil
	}
	return m.GetFunc(ctx, key)
}
func (m *mockRedisClient) Set(ctx context.Context, key string, value interface{}, expiration time.Duration) error {
	if m.SetFunc == nil {
		return nil
	}
	return m.SetFunc(ctx, key, value, expiration)
}
func (m *mockRedisClient) Del(ctx context.Context, keys ...string) error {
	if m.DelFunc == nil {
		return nil
	}
	return m.DelFunc(ctx, keys...)
}
func (m *mockRedisClient) Ping(ctx context.Context) error { return nil }
func (m *mockRedisClient) Incr(ctx context.Context, key string) (int64, error) {
	if m.IncrFunc == nil {
		return 1, nil
	}
	return m.IncrFunc(ctx, key)
}
func (m *mockRedisClient) Expire(ctx context.Context, key string, expiration time.Duration) error {
	if m.ExpireFunc == nil {
		return nil
	}
	return m.ExpireFunc(ctx, key, expiration)
}
func (m *mockRedisClient) Close() error { return nil }

func nopLogger() *zerolog.Logger {
	l := zerolog.New(io.Discard)
	return &l
}
