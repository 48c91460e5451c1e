package postgres

import (
	"context"
	"encoding/json"
	"time"

	"github.com/jackc/pgx/v4/pgxpool"

	"telegram-access-subscription/internal/domain"
	"telegram-access-subscription/internal/domain/model"
	"telegram-access-subscription/internal/domain/ports/repository"
)

var _ repository.BotStateRepository = (*botStateRepo)(nil)

// botStateRepo keeps conversational state in Postgres. Expired rows are
// invisible to Get and removed by PurgeExpired.
type botStateRepo struct {
	pool *pgxpool.Pool
	now  func() time.Time
}

func NewBotStateRepo(pool *pgxpool.Pool, now func() time.Time) *botStateRepo {
	if now == nil {
		now = time.Now
	}
	return &botStateRepo{pool: pool, now: now}
}

func (r *botStateRepo) Set(ctx context.Context, st *model.BotState) error {
	if st == nil || st.TelegramID <= 0 || st.Step == "" {
		return domain.ErrInvalidArgument
	}
	data, err := json.Marshal(st.Data)
	if err != nil {
		return domain.ErrInvalidArgument
	}
	const q = `
INSERT INTO bot_states (telegram_id, step, data, expires_at) VALUES ($1,$2,$3,$4)
ON CONFLICT (telegram_id) DO UPDATE SET step=$2, data=$3, expires_at=$4;`
	_, err = execSQL(ctx, r.pool, nil, q, st.TelegramID, st.Step, string(data), st.ExpiresAt)
	return err
}

func (r *botStateRepo) Get(ctx context.Context, tgID int64) (*model.BotState, error) {
	const q = `SELECT telegram_id, step, data, expires_at FROM bot_states WHERE telegram_id=$1 AND expires_at > $2;`
	row, err := pickRow(ctx, r.pool, nil, q, tgID, r.now())
	if err != nil {
		return nil, err
	}
	var (
		st  model.BotState
		raw []byte
	)
	if err := row.Scan(&st.TelegramID, &st.Step, &raw, &st.ExpiresAt); err != nil {
		return nil, mapScanErr(err)
	}
	if len(raw) > 0 {
		if err := json.Unmarshal(raw, &st.Data); err != nil {
			return nil, domain.ErrReadDatabaseRow
		}
	}
	return &st, nil
}

func (r *botStateRepo) Clear(ctx context.Context, tgID int64) error {
	_, err := execSQL(ctx, r.pool, nil, `DELETE FROM bot_states WHERE telegram_id=$1;`, tgID)
	return err
}

func (r *botStateRepo) PurgeExpired(ctx context.Context, now time.Time) (int64, error) {
	tag, err := execSQL(ctx, r.pool, nil, `DELETE FROM bot_states WHERE expires_at <= $1;`, now)
	if err != nil {
		return 0, err
	}
	return tag.RowsAffected(), nil
}
