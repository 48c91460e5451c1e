package repository

import (
	"context"

	"telegram-access-subscription/internal/domain/model"
)

type NotificationDefinitionRepository interface {
	Save(ctx context.Context, tx Tx, d *model.NotificationDefinition) error
	ListActiveExpiryDefinitions(ctx context.Context, tx Tx) ([]*model.NotificationDefinition, error)
}
