package postgres

import (
	"context"
	"encoding/json"

	"github.com/jackc/pgx/v4/pgxpool"

	"telegram-access-subscription/internal/domain"
	"telegram-access-subscription/internal/domain/model"
	"telegram-access-subscription/internal/domain/ports/repository"
)

var _ repository.ActionLogRepository = (*actionLogRepo)(nil)

type actionLogRepo struct {
	pool *pgxpool.Pool
}

func NewActionLogRepo(pool *pgxpool.Pool) *actionLogRepo {
	return &actionLogRepo{pool: pool}
}

func (r *actionLogRepo) Append(ctx context.Context, tx repository.Tx, e *model.ActionLogEntry) error {
	details, err := json.Marshal(e.Details)
	if err != nil {
		return domain.ErrInvalidArgument
	}
	const q = `
INSERT INTO action_logs (id, user_id, subscription_id, action, details, dedup_key, created_at)
VALUES ($1,$2,$3,$4,$5,$6,$7);`
	_, err = execSQL(ctx, r.pool, tx, q, e.ID, e.UserID, e.SubscriptionID, e.Action, string(details), e.DedupKey, e.CreatedAt)
	return err
}

// Claim inserts a keyed entry unless one already exists for the same
// subscription and key. It reports whether this call inserted it.
func (r *actionLogRepo) Claim(ctx context.Context, tx repository.Tx, e *model.ActionLogEntry) (bool, error) {
	if e.DedupKey == nil || e.SubscriptionID == nil {
		return false, domain.ErrInvalidArgument
	}
	details, err := json.Marshal(e.Details)
	if err != nil {
		return false, domain.ErrInvalidArgument
	}
	const q = `
INSERT INTO action_logs (id, user_id, subscription_id, action, details, dedup_key, created_at)
VALUES ($1,$2,$3,$4,$5,$6,$7)
ON CONFLICT (subscription_id, dedup_key) WHERE dedup_key IS NOT NULL DO NOTHING;`
	tag, err := execSQL(ctx, r.pool, tx, q, e.ID, e.UserID, e.SubscriptionID, e.Action, string(details), e.DedupKey, e.CreatedAt)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() == 1, nil
}

func (r *actionLogRepo) ListBySubscription(ctx context.Context, tx repository.Tx, subscriptionID string, limit int) ([]*model.ActionLogEntry, error) {
	const q = `
SELECT id, user_id, subscription_id, action, details, dedup_key, created_at
  FROM action_logs
 WHERE subscription_id=$1
 ORDER BY created_at DESC, id DESC
 LIMIT $2;`
	rows, err := queryRows(ctx, r.pool, tx, q, subscriptionID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []*model.ActionLogEntry
	for rows.Next() {
		var (
			e   model.ActionLogEntry
			raw []byte
		)
		if err := rows.Scan(&e.ID, &e.UserID, &e.SubscriptionID, &e.Action, &raw, &e.DedupKey, &e.CreatedAt); err != nil {
			return nil, domain.ErrReadDatabaseRow
		}
		if len(raw) > 0 {
			if err := json.Unmarshal(raw, &e.Details); err != nil {
				return nil, domain.ErrReadDatabaseRow
			}
		}
		out = append(out, &e)
	}
	if err := rows.Err(); err != nil {
		return nil, domain.ErrReadDatabaseRow
	}
	return out, nil
}
