package postgres

import (
	"context"
	"time"

	"github.com/jackc/pgx/v4"
	"github.com/jackc/pgx/v4/pgxpool"

	"telegram-access-subscription/internal/domain/model"
	"telegram-access-subscription/internal/domain/ports/repository"
)

var _ repository.PaymentRepository = (*paymentRepo)(nil)

type paymentRepo struct{ pool *pgxpool.Pool }

func NewPaymentRepo(pool *pgxpool.Pool) *paymentRepo {
	return &paymentRepo{pool: pool}
}

const paymentColumns = `id, subscription_id, user_id, amount, currency, status, external_id, promo_code,
  bonus_days, created_at, completed_at, error_message, payload`

func (r *paymentRepo) Create(ctx context.Context, tx repository.Tx, p *model.Payment) error {
	const q = `
INSERT INTO payments (` + paymentColumns + `)
VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13);`
	_, err := execSQL(ctx, r.pool, tx, q,
		p.ID, p.SubscriptionID, p.UserID, p.Amount, p.Currency, string(p.Status), p.ExternalID, p.PromoCode,
		p.BonusDays, p.CreatedAt, p.CompletedAt, p.ErrorMessage, jsonbOrNil(p.Payload))
	return err
}

func (r *paymentRepo) FindByID(ctx context.Context, tx repository.Tx, id string) (*model.Payment, error) {
	return r.one(ctx, tx, `SELECT `+paymentColumns+` FROM payments WHERE id=$1`, id)
}

func (r *paymentRepo) FindByExternalID(ctx context.Context, tx repository.Tx, externalID string) (*model.Payment, error) {
	return r.one(ctx, tx, `SELECT `+paymentColumns+` FROM payments WHERE external_id=$1`, externalID)
}

// MarkCompleted settles any not-yet-completed payment. It reports false when
// another delivery already completed or refunded it.
func (r *paymentRepo) MarkCompleted(ctx context.Context, tx repository.Tx, id string, at time.Time, payload []byte) (bool, error) {
	const q = `
UPDATE payments SET status='completed', completed_at=$2, error_message='', payload=COALESCE($3, payload)
 WHERE id=$1 AND status NOT IN ('completed','refunded');`
	return r.conditional(ctx, tx, q, id, at, jsonbOrNil(payload))
}

func (r *paymentRepo) MarkFailed(ctx context.Context, tx repository.Tx, id, reason string, payload []byte) (bool, error) {
	const q = `
UPDATE payments SET status='failed', error_message=$2, payload=COALESCE($3, payload)
 WHERE id=$1 AND status='pending';`
	return r.conditional(ctx, tx, q, id, reason, jsonbOrNil(payload))
}

func (r *paymentRepo) MarkRefunded(ctx context.Context, tx repository.Tx, id string, payload []byte) (bool, error) {
	const q = `
UPDATE payments SET status='refunded', payload=COALESCE($2, payload)
 WHERE id=$1 AND status='completed';`
	return r.conditional(ctx, tx, q, id, jsonbOrNil(payload))
}

func (r *paymentRepo) conditional(ctx context.Context, tx repository.Tx, q string, args ...interface{}) (bool, error) {
	tag, err := execSQL(ctx, r.pool, tx, q, args...)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() == 1, nil
}

func (r *paymentRepo) one(ctx context.Context, tx repository.Tx, q string, arg string) (*model.Payment, error) {
	// lock the row when the caller holds a transaction
	if _, ok := tx.(pgx.Tx); ok {
		q += " FOR UPDATE"
	}
	row, err := pickRow(ctx, r.pool, tx, q+";", arg)
	if err != nil {
		return nil, err
	}
	p, err := scanPayment(row)
	if err != nil {
		return nil, mapScanErr(err)
	}
	return p, nil
}

func scanPayment(row pgx.Row) (*model.Payment, error) {
	var (
		p       model.Payment
		status  string
		payload []byte
	)
	if err := row.Scan(
		&p.ID, &p.SubscriptionID, &p.UserID, &p.Amount, &p.Currency, &status, &p.ExternalID, &p.PromoCode,
		&p.BonusDays, &p.CreatedAt, &p.CompletedAt, &p.ErrorMessage, &payload,
	); err != nil {
		return nil, err
	}
	p.Status = model.PaymentStatus(status)
	p.Payload = payload
	return &p, nil
}

// jsonbOrNil keeps an empty body as SQL NULL instead of invalid JSON.
func jsonbOrNil(b []byte) interface{} {
	if len(b) == 0 {
		return nil
	}
	return string(b)
}
