package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v4/pgxpool"

	"telegram-archive-bot/internal/domain"
	"telegram-archive-bot/internal/domain/model"
	"telegram-archive-bot/internal/domain/ports/repository"
)

var _ repository.OutboxRepository = (*PostgresOutboxRepo)(nil)

type PostgresOutboxRepo struct {
	pool *pgxpool.Pool
}

func NewPostgresOutboxRepo(pool *pgxpool.Pool) *PostgresOutboxRepo {
	return &PostgresOutboxRepo{pool: pool}
}

func (r *PostgresOutboxRepo) Insert(ctx context.Context, tx repository.Tx, msg *model.OutboundMessage) error {
	const q = `
INSERT INTO outbound_messages (id, chat_id, body, reply_to, status, attempts, created_at, updated_at)
VALUES ($1,$2,$3,$4,$5,$6,$7,$8);
`
	_, err := pickExec(ctx, r.pool, tx, q, msg.ID, msg.ChatID, msg.Body, msg.ReplyToID, string(msg.Status), msg.Attempts, msg.CreatedAt, msg.UpdatedAt)
	if err != nil {
		return fmt.Errorf("insert outbound: %w", err)
	}
	return nil
}

func (r *PostgresOutboxRepo) MarkSent(ctx context.Context, tx repository.Tx, id string, attempts int) error {
	return r.setStatus(ctx, tx, id, model.DeliverySent, attempts)
}

func (r *PostgresOutboxRepo) MarkFailed(ctx context.Context, tx repository.Tx, id string, attempts int) error {
	return r.setStatus(ctx, tx, id, model.DeliveryFailed, attempts)
}

func (r *PostgresOutboxRepo) setStatus(ctx context.Context, tx repository.Tx, id string, status model.DeliveryStatus, attempts int) error {
	const q = `UPDATE outbound_messages SET status=$2, attempts=$3, updated_at=now() WHERE id=$1;`
	tag, err := pickExec(ctx, r.pool, tx, q, id, string(status), attempts)
	if err != nil {
		return fmt.Errorf("mark outbound %s: %w", status, err)
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrNotFound
	}
	return nil
}

func (r *PostgresOutboxRepo) ListPending(ctx context.Context, tx repository.Tx, limit int) ([]*model.OutboundMessage, error) {
	const q = `
SELECT id, chat_id, body, reply_to, status, attempts, created_at, updated_at
  FROM outbound_messages WHERE status='pending' ORDER BY id ASC LIMIT $1;
`
	rows, err := pickQuery(ctx, r.pool, tx, q, limit)
	if err != nil {
		return nil, fmt.Errorf("list pending: %w", err)
	}
	defer rows.Close()

	var out []*model.OutboundMessage
	for rows.Next() {
		var m model.OutboundMessage
		var status string
		if err := rows.Scan(&m.ID, &m.ChatID, &m.Body, &m.ReplyToID, &status, &m.Attempts, &m.CreatedAt, &m.UpdatedAt); err != nil {
			return nil, fmt.Errorf("scan pending: %w", err)
		}
		m.Status = model.DeliveryStatus(status)
		out = append(out, &m)
	}
	return out, rows.Err()
}

func (r *PostgresOutboxRepo) CountByStatus(ctx context.Context, tx repository.Tx, status model.DeliveryStatus) (int, error) {
	row, err := pickRow(ctx, r.pool, tx, `SELECT COUNT(*) FROM outbound_messages WHERE status=$1;`, string(status))
	if err != nil {
		return 0, err
	}
	var n int
	if err := row.Scan(&n); err != nil {
		return 0, fmt.Errorf("count outbound: %w", err)
	}
	return n, nil
}
