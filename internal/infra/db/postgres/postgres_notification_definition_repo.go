package postgres

import (
	"context"

	"github.com/jackc/pgx/v4/pgxpool"

	"telegram-access-subscription/internal/domain"
	"telegram-access-subscription/internal/domain/model"
	"telegram-access-subscription/internal/domain/ports/repository"
)

var _ repository.NotificationDefinitionRepository = (*notificationDefinitionRepo)(nil)

type notificationDefinitionRepo struct {
	pool *pgxpool.Pool
}

func NewNotificationDefinitionRepo(pool *pgxpool.Pool) *notificationDefinitionRepo {
	return &notificationDefinitionRepo{pool: pool}
}

func (r *notificationDefinitionRepo) Save(ctx context.Context, tx repository.Tx, d *model.NotificationDefinition) error {
	if err := d.Validate(); err != nil {
		return err
	}
	vars := make([]string, 0, len(d.Variables))
	for _, v := range d.Variables {
		vars = append(vars, string(v))
	}
	const q = `
INSERT INTO notification_definitions (id, action_key, days_before_expiry, template, variables, is_active)
VALUES ($1,$2,$3,$4,$5,$6)
ON CONFLICT (id) DO UPDATE SET
  action_key=$2, days_before_expiry=$3, template=$4, variables=$5, is_active=$6;`
	_, err := execSQL(ctx, r.pool, tx, q, d.ID, d.ActionKey, d.DaysBeforeExpiry, d.Template, vars, d.IsActive)
	return err
}

func (r *notificationDefinitionRepo) ListActiveExpiryDefinitions(ctx context.Context, tx repository.Tx) ([]*model.NotificationDefinition, error) {
	const q = `
SELECT id, action_key, days_before_expiry, template, variables, is_active
  FROM notification_definitions
 WHERE is_active
 ORDER BY days_before_expiry DESC, action_key ASC;`
	rows, err := queryRows(ctx, r.pool, tx, q)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []*model.NotificationDefinition
	for rows.Next() {
		var (
			d    model.NotificationDefinition
			vars []string
		)
		if err := rows.Scan(&d.ID, &d.ActionKey, &d.DaysBeforeExpiry, &d.Template, &vars, &d.IsActive); err != nil {
			return nil, domain.ErrReadDatabaseRow
		}
		for _, v := range vars {
			d.Variables = append(d.Variables, model.TemplateVar(v))
		}
		out = append(out, &d)
	}
	if err := rows.Err(); err != nil {
		return nil, domain.ErrReadDatabaseRow
	}
	return out, nil
}
