package postgres

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/jackc/pgx/v4"
	"github.com/jackc/pgx/v4/pgxpool"

	"telegram-archive-bot/internal/domain"
	"telegram-archive-bot/internal/domain/model"
	"telegram-archive-bot/internal/domain/ports/repository"
)

var _ repository.ConversationRepository = (*PostgresConversationRepo)(nil)

type PostgresConversationRepo struct {
	pool *pgxpool.Pool
}

func NewPostgresConversationRepo(pool *pgxpool.Pool) *PostgresConversationRepo {
	return &PostgresConversationRepo{pool: pool}
}

func (r *PostgresConversationRepo) Find(ctx context.Context, tx repository.Tx, key string) (*model.Conversation, error) {
	const q = `
SELECT key, state, context_json, version, last_update_id, updated_at
  FROM conversations WHERE key=$1;
`
	row, err := pickRow(ctx, r.pool, tx, q, key)
	if err != nil {
		return nil, err
	}
	var (
		c      model.Conversation
		rawCtx []byte
	)
	if err := row.Scan(&c.Key, &c.State, &rawCtx, &c.Version, &c.LastUpdateID, &c.UpdatedAt); err != nil {
		if err == pgx.ErrNoRows {
			return nil, domain.ErrNotFound
		}
		return nil, fmt.Errorf("find conversation: %w", err)
	}
	c.Context = map[string]string{}
	if len(rawCtx) > 0 {
		if err := json.Unmarshal(rawCtx, &c.Context); err != nil {
			return nil, fmt.Errorf("decode conversation context: %w", err)
		}
	}
	return &c, nil
}

// Save performs the version-guarded write. expectedVersion 0 means the row
// must not exist yet; any mismatch between expectation and stored state is a
// lost race and surfaces as domain.ErrVersionConflict.
func (r *PostgresConversationRepo) Save(ctx context.Context, tx repository.Tx, conv *model.Conversation, expectedVersion int64) error {
	rawCtx, err := json.Marshal(conv.Context)
	if err != nil {
		return fmt.Errorf("encode conversation context: %w", err)
	}

	if expectedVersion == 0 {
		const ins = `
INSERT INTO conversations (key, state, context_json, version, last_update_id, updated_at)
VALUES ($1,$2,$3,1,$4,now())
ON CONFLICT (key) DO NOTHING;
`
		tag, err := pickExec(ctx, r.pool, tx, ins, conv.Key, string(conv.State), rawCtx, conv.LastUpdateID)
		if err != nil {
			return fmt.Errorf("insert conversation: %w", err)
		}
		if tag.RowsAffected() == 0 {
			return domain.ErrVersionConflict
		}
		conv.Version = 1
		return nil
	}

	const upd = `
UPDATE conversations
   SET state=$2, context_json=$3, version=$4, last_update_id=$5, updated_at=now()
 WHERE key=$1 AND version=$6;
`
	tag, err := pickExec(ctx, r.pool, tx, upd, conv.Key, string(conv.State), rawCtx, expectedVersion+1, conv.LastUpdateID, expectedVersion)
	if err != nil {
		return fmt.Errorf("update conversation: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrVersionConflict
	}
	conv.Version = expectedVersion + 1
	return nil
}
