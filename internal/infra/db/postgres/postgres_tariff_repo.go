package postgres

import (
	"context"

	"github.com/jackc/pgx/v4"
	"github.com/jackc/pgx/v4/pgxpool"

	"telegram-access-subscription/internal/domain"
	"telegram-access-subscription/internal/domain/model"
	"telegram-access-subscription/internal/domain/ports/repository"
)

var _ repository.TariffRepository = (*tariffRepo)(nil)

type tariffRepo struct {
	pool *pgxpool.Pool
}

func NewTariffRepo(pool *pgxpool.Pool) *tariffRepo {
	return &tariffRepo{pool: pool}
}

// Save upserts the tariff and replaces its price rows. Without a caller tx
// it opens its own so the price list never lands half-written.
func (r *tariffRepo) Save(ctx context.Context, tx repository.Tx, t *model.Tariff) error {
	if tx == nil {
		return NewTxManager(r.pool).WithTx(ctx, pgx.TxOptions{}, func(ctx context.Context, tx repository.Tx) error {
			return r.save(ctx, tx, t)
		})
	}
	return r.save(ctx, tx, t)
}

func (r *tariffRepo) save(ctx context.Context, tx repository.Tx, t *model.Tariff) error {
	const upsert = `
INSERT INTO tariffs (id, name, is_active, created_at) VALUES ($1,$2,$3,$4)
ON CONFLICT (id) DO UPDATE SET name=$2, is_active=$3;`
	if _, err := execSQL(ctx, r.pool, tx, upsert, t.ID, t.Name, t.IsActive, t.CreatedAt); err != nil {
		return err
	}
	if _, err := execSQL(ctx, r.pool, tx, `DELETE FROM tariff_prices WHERE tariff_id=$1;`, t.ID); err != nil {
		return err
	}
	const price = `
INSERT INTO tariff_prices (id, tariff_id, period_months, amount, currency) VALUES ($1,$2,$3,$4,$5);`
	for _, p := range t.Prices {
		if _, err := execSQL(ctx, r.pool, tx, price, p.ID, t.ID, p.PeriodMonths, p.Amount, p.Currency); err != nil {
			return err
		}
	}
	return nil
}

func (r *tariffRepo) FindByID(ctx context.Context, tx repository.Tx, id string) (*model.Tariff, error) {
	const q = `SELECT id, name, is_active, created_at FROM tariffs WHERE id=$1;`
	row, err := pickRow(ctx, r.pool, tx, q, id)
	if err != nil {
		return nil, err
	}
	var t model.Tariff
	if err := row.Scan(&t.ID, &t.Name, &t.IsActive, &t.CreatedAt); err != nil {
		return nil, mapScanErr(err)
	}
	prices, err := r.prices(ctx, tx, []string{t.ID})
	if err != nil {
		return nil, err
	}
	t.Prices = prices[t.ID]
	return &t, nil
}

func (r *tariffRepo) ListActive(ctx context.Context, tx repository.Tx) ([]*model.Tariff, error) {
	const q = `SELECT id, name, is_active, created_at FROM tariffs WHERE is_active ORDER BY name ASC;`
	rows, err := queryRows(ctx, r.pool, tx, q)
	if err != nil {
		return nil, err
	}
	var (
		out []*model.Tariff
		ids []string
	)
	for rows.Next() {
		var t model.Tariff
		if err := rows.Scan(&t.ID, &t.Name, &t.IsActive, &t.CreatedAt); err != nil {
			rows.Close()
			return nil, domain.ErrReadDatabaseRow
		}
		out = append(out, &t)
		ids = append(ids, t.ID)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, domain.ErrReadDatabaseRow
	}
	if len(ids) == 0 {
		return out, nil
	}
	prices, err := r.prices(ctx, tx, ids)
	if err != nil {
		return nil, err
	}
	for _, t := range out {
		t.Prices = prices[t.ID]
	}
	return out, nil
}

func (r *tariffRepo) prices(ctx context.Context, tx repository.Tx, ids []string) (map[string][]model.TariffPrice, error) {
	const q = `
SELECT id, tariff_id, period_months, amount, currency
  FROM tariff_prices
 WHERE tariff_id = ANY($1)
 ORDER BY period_months ASC;`
	rows, err := queryRows(ctx, r.pool, tx, q, ids)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := make(map[string][]model.TariffPrice, len(ids))
	for rows.Next() {
		var (
			p        model.TariffPrice
			tariffID string
		)
		if err := rows.Scan(&p.ID, &tariffID, &p.PeriodMonths, &p.Amount, &p.Currency); err != nil {
			return nil, domain.ErrReadDatabaseRow
		}
		out[tariffID] = append(out[tariffID], p)
	}
	if err := rows.Err(); err != nil {
		return nil, domain.ErrReadDatabaseRow
	}
	return out, nil
}
