package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v4"
	"github.com/jackc/pgx/v4/pgxpool"

	"telegram-access-subscription/internal/domain"
	"telegram-access-subscription/internal/domain/model"
	"telegram-access-subscription/internal/domain/ports/repository"
)

// Ensure subscriptionRepo implements repository.SubscriptionRepository
var _ repository.SubscriptionRepository = (*subscriptionRepo)(nil)

type subscriptionRepo struct {
	pool *pgxpool.Pool
}

func NewSubscriptionRepo(pool *pgxpool.Pool) *subscriptionRepo {
	return &subscriptionRepo{pool: pool}
}

const subColumns = `id, user_id, tariff_id, price_plan_id, period_months, amount, currency, status,
  start_date, end_date, community_chat_granted, knowledge_base_granted, file_storage_granted,
  is_free, notes, created_at, updated_at`

func (r *subscriptionRepo) Create(ctx context.Context, tx repository.Tx, s *model.Subscription) error {
	const q = `
INSERT INTO subscriptions (` + subColumns + `)
VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,$16,$17);`
	_, err := execSQL(ctx, r.pool, tx, q,
		s.ID, s.UserID, s.TariffID, s.PricePlanID, s.PeriodMonths, s.Amount, s.Currency, string(s.Status),
		s.StartDate, s.EndDate, s.Access.CommunityChat, s.Access.KnowledgeBase, s.Access.FileStorage,
		s.IsFree, s.Notes, s.CreatedAt, s.UpdatedAt)
	return err
}

func (r *subscriptionRepo) FindByID(ctx context.Context, tx repository.Tx, id string) (*model.Subscription, error) {
	const q = `SELECT ` + subColumns + ` FROM subscriptions WHERE id=$1;`
	row, err := pickRow(ctx, r.pool, tx, q, id)
	if err != nil {
		return nil, err
	}
	s, err := scanSub(row)
	if err != nil {
		return nil, mapScanErr(err)
	}
	return s, nil
}

// Update writes the mutable business columns. Access flags are owned by
// SetAccessFlag so a stale snapshot never clobbers a concurrent grant.
func (r *subscriptionRepo) Update(ctx context.Context, tx repository.Tx, s *model.Subscription) error {
	const q = `
UPDATE subscriptions SET
  tariff_id=$2, price_plan_id=$3, period_months=$4, amount=$5, currency=$6, status=$7,
  start_date=$8, end_date=$9, is_free=$10, notes=$11, updated_at=$12
WHERE id=$1;`
	tag, err := execSQL(ctx, r.pool, tx, q,
		s.ID, s.TariffID, s.PricePlanID, s.PeriodMonths, s.Amount, s.Currency, string(s.Status),
		s.StartDate, s.EndDate, s.IsFree, s.Notes, s.UpdatedAt)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrNotFound
	}
	return nil
}

func (r *subscriptionRepo) SetAccessFlag(ctx context.Context, tx repository.Tx, id string, sys model.AccessSystem, granted bool) error {
	col, err := flagColumn(sys)
	if err != nil {
		return err
	}
	q := fmt.Sprintf(`UPDATE subscriptions SET %s=$2, updated_at=NOW() WHERE id=$1;`, col)
	tag, err := execSQL(ctx, r.pool, tx, q, id, granted)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrNotFound
	}
	return nil
}

func (r *subscriptionRepo) Delete(ctx context.Context, tx repository.Tx, id string) error {
	tag, err := execSQL(ctx, r.pool, tx, `DELETE FROM subscriptions WHERE id=$1;`, id)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrNotFound
	}
	return nil
}

func (r *subscriptionRepo) ListDueForExpiry(ctx context.Context, tx repository.Tx, now time.Time, limit int) ([]*model.Subscription, error) {
	const q = `SELECT ` + subColumns + `
  FROM subscriptions
 WHERE status='active' AND end_date IS NOT NULL AND end_date <= $1
 ORDER BY end_date ASC
 LIMIT $2;`
	return r.list(ctx, tx, q, now, limit)
}

func (r *subscriptionRepo) ListExpiringBetween(ctx context.Context, tx repository.Tx, from, to time.Time, excludeAction string, limit int) ([]*model.Subscription, error) {
	const q = `SELECT ` + subColumns + `
  FROM subscriptions s
 WHERE s.status='active'
   AND s.end_date > $1 AND s.end_date <= $2
   AND NOT EXISTS (
     SELECT 1 FROM action_logs a WHERE a.subscription_id = s.id AND a.dedup_key = $3
   )
 ORDER BY s.end_date ASC
 LIMIT $4;`
	return r.list(ctx, tx, q, from, to, excludeAction, limit)
}

func (r *subscriptionRepo) ListAccessDrift(ctx context.Context, tx repository.Tx, limit int) ([]*model.Subscription, error) {
	const q = `SELECT ` + subColumns + `
  FROM subscriptions
 WHERE (status='active' AND NOT (community_chat_granted AND knowledge_base_granted AND file_storage_granted))
    OR (status IN ('expired','cancelled') AND (community_chat_granted OR knowledge_base_granted OR file_storage_granted))
 ORDER BY access_attempted_at ASC NULLS FIRST, updated_at ASC
 LIMIT $1;`
	return r.list(ctx, tx, q, limit)
}

func (r *subscriptionRepo) MarkAccessAttempt(ctx context.Context, tx repository.Tx, id string, at time.Time) error {
	_, err := execSQL(ctx, r.pool, tx, `UPDATE subscriptions SET access_attempted_at=$2 WHERE id=$1;`, id, at)
	return err
}

func (r *subscriptionRepo) CountByStatus(ctx context.Context, tx repository.Tx) (map[model.SubscriptionStatus]int, error) {
	const q = `SELECT status, COUNT(*) FROM subscriptions GROUP BY status;`
	rows, err := queryRows(ctx, r.pool, tx, q)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	counts := make(map[model.SubscriptionStatus]int)
	for rows.Next() {
		var status string
		var count int
		if err := rows.Scan(&status, &count); err != nil {
			return nil, domain.ErrReadDatabaseRow
		}
		counts[model.SubscriptionStatus(status)] = count
	}
	if err := rows.Err(); err != nil {
		return nil, domain.ErrReadDatabaseRow
	}
	return counts, nil
}

func (r *subscriptionRepo) list(ctx context.Context, tx repository.Tx, q string, args ...interface{}) ([]*model.Subscription, error) {
	rows, err := queryRows(ctx, r.pool, tx, q, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []*model.Subscription
	for rows.Next() {
		s, err := scanSub(rows)
		if err != nil {
			return nil, domain.ErrReadDatabaseRow
		}
		out = append(out, s)
	}
	if err := rows.Err(); err != nil {
		return nil, domain.ErrReadDatabaseRow
	}
	return out, nil
}

func flagColumn(sys model.AccessSystem) (string, error) {
	switch sys {
	case model.AccessCommunityChat:
		return "community_chat_granted", nil
	case model.AccessKnowledgeBase:
		return "knowledge_base_granted", nil
	case model.AccessFileStorage:
		return "file_storage_granted", nil
	}
	return "", domain.ErrInvalidArgument
}

func scanSub(row pgx.Row) (*model.Subscription, error) {
	var (
		s      model.Subscription
		status string
	)
	if err := row.Scan(
		&s.ID, &s.UserID, &s.TariffID, &s.PricePlanID, &s.PeriodMonths, &s.Amount, &s.Currency, &status,
		&s.StartDate, &s.EndDate, &s.Access.CommunityChat, &s.Access.KnowledgeBase, &s.Access.FileStorage,
		&s.IsFree, &s.Notes, &s.CreatedAt, &s.UpdatedAt,
	); err != nil {
		return nil, err
	}
	s.Status = model.SubscriptionStatus(status)
	return &s, nil
}
