package repository

import (
	"context"

	"telegram-access-subscription/internal/domain/model"
)

type PromocodeRepository interface {
	Create(ctx context.Context, tx Tx, p *model.Promocode) error
	// FindByCode matches case-insensitively.
	FindByCode(ctx context.Context, tx Tx, code string) (*model.Promocode, error)
}
