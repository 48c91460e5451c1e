package postgres

import (
	"context"
	"encoding/json"

	"github.com/jackc/pgx/v4/pgxpool"

	"telegram-access-subscription/internal/domain"
	"telegram-access-subscription/internal/domain/model"
	"telegram-access-subscription/internal/domain/ports/repository"
)

var _ repository.PromocodeRepository = (*promocodeRepo)(nil)

type promocodeRepo struct {
	pool *pgxpool.Pool
}

func NewPromocodeRepo(pool *pgxpool.Pool) *promocodeRepo {
	return &promocodeRepo{pool: pool}
}

func (r *promocodeRepo) Create(ctx context.Context, tx repository.Tx, p *model.Promocode) error {
	bonus, err := json.Marshal(nonNilBonus(p.BonusDays))
	if err != nil {
		return domain.ErrInvalidArgument
	}
	const q = `
INSERT INTO promocodes (
  id, code, type, discount_type, discount_value, max_uses, used_count, allowed_users, allowed_tariffs,
  override_tariff_id, bonus_days, valid_from, valid_until, is_active, created_at
) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15);`
	_, err = execSQL(ctx, r.pool, tx, q,
		p.ID, model.NormalizeCode(p.Code), string(p.Type), string(p.DiscountType), p.DiscountValue, p.MaxUses, p.UsedCount,
		nonNilStrings(p.AllowedUsers), nonNilStrings(p.AllowedTariffs), p.OverrideTariffID, string(bonus),
		p.ValidFrom, p.ValidUntil, p.IsActive, p.CreatedAt)
	return err
}

// FindByCode matches case-insensitively; codes are stored normalized.
func (r *promocodeRepo) FindByCode(ctx context.Context, tx repository.Tx, code string) (*model.Promocode, error) {
	const q = `
SELECT id, code, type, discount_type, discount_value, max_uses, used_count, allowed_users, allowed_tariffs,
       override_tariff_id, bonus_days, valid_from, valid_until, is_active, created_at
  FROM promocodes WHERE code=$1;`
	row, err := pickRow(ctx, r.pool, tx, q, model.NormalizeCode(code))
	if err != nil {
		return nil, err
	}
	var (
		p            model.Promocode
		typ, discTyp string
		bonus        []byte
	)
	if err := row.Scan(&p.ID, &p.Code, &typ, &discTyp, &p.DiscountValue, &p.MaxUses, &p.UsedCount,
		&p.AllowedUsers, &p.AllowedTariffs, &p.OverrideTariffID, &bonus,
		&p.ValidFrom, &p.ValidUntil, &p.IsActive, &p.CreatedAt); err != nil {
		return nil, mapScanErr(err)
	}
	p.Type = model.PromoType(typ)
	p.DiscountType = model.DiscountType(discTyp)
	if len(bonus) > 0 {
		if err := json.Unmarshal(bonus, &p.BonusDays); err != nil {
			return nil, domain.ErrReadDatabaseRow
		}
	}
	return &p, nil
}

func nonNilStrings(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}

func nonNilBonus(m map[int]int) map[int]int {
	if m == nil {
		return map[int]int{}
	}
	return m
}
