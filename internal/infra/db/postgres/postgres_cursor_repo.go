package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v4"
	"github.com/jackc/pgx/v4/pgxpool"

	"telegram-archive-bot/internal/domain/model"
	"telegram-archive-bot/internal/domain/ports/repository"
)

var _ repository.CursorRepository = (*PostgresCursorRepo)(nil)

// PostgresCursorRepo keeps the single-row polling watermark. The migration
// seeds row id=1, so Load never sees an empty table on a healthy schema.
type PostgresCursorRepo struct {
	pool *pgxpool.Pool
}

func NewPostgresCursorRepo(pool *pgxpool.Pool) *PostgresCursorRepo {
	return &PostgresCursorRepo{pool: pool}
}

func (r *PostgresCursorRepo) Load(ctx context.Context, tx repository.Tx) (model.Cursor, error) {
	row, err := pickRow(ctx, r.pool, tx, `SELECT last_update_id FROM cursor WHERE id=1;`)
	if err != nil {
		return model.Cursor{}, err
	}
	var c model.Cursor
	if err := row.Scan(&c.LastUpdateID); err != nil {
		if err == pgx.ErrNoRows {
			return model.Cursor{}, nil
		}
		return model.Cursor{}, fmt.Errorf("load cursor: %w", err)
	}
	return c, nil
}

// Advance moves the watermark forward, never back. GREATEST makes concurrent
// commits safe to apply in any order.
func (r *PostgresCursorRepo) Advance(ctx context.Context, tx repository.Tx, upTo int64) error {
	const q = `UPDATE cursor SET last_update_id = GREATEST(last_update_id, $1) WHERE id=1;`
	if _, err := pickExec(ctx, r.pool, tx, q, upTo); err != nil {
		return fmt.Errorf("advance cursor: %w", err)
	}
	return nil
}
