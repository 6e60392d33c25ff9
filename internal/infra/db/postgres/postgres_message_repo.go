package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v4"
	"github.com/jackc/pgx/v4/pgxpool"

	"telegram-archive-bot/internal/domain"
	"telegram-archive-bot/internal/domain/model"
	"telegram-archive-bot/internal/domain/ports/repository"
)

var _ repository.MessageRepository = (*PostgresMessageRepo)(nil)

type PostgresMessageRepo struct {
	pool *pgxpool.Pool
}

func NewPostgresMessageRepo(pool *pgxpool.Pool) *PostgresMessageRepo {
	return &PostgresMessageRepo{pool: pool}
}

func (r *PostgresMessageRepo) Insert(ctx context.Context, tx repository.Tx, msg *model.ArchivedMessage) (int64, error) {
	const q = `
INSERT INTO messages (chat_id, user_tg_id, text, encrypted, created_at, is_deleted, is_edited)
VALUES ($1,$2,$3,$4,$5,false,false)
RETURNING id;
`
	row, err := pickRow(ctx, r.pool, tx, q, msg.ChatID, msg.UserTgID, msg.Text, msg.Encrypted, msg.CreatedAt)
	if err != nil {
		return 0, err
	}
	var id int64
	if err := row.Scan(&id); err != nil {
		return 0, fmt.Errorf("insert message: %w", err)
	}
	msg.ID = id
	return id, nil
}

func (r *PostgresMessageRepo) FindLatestByAuthor(ctx context.Context, tx repository.Tx, chatID, userTgID int64) (*model.ArchivedMessage, error) {
	const q = `
SELECT id, chat_id, user_tg_id, text, encrypted, created_at, is_deleted, is_edited
  FROM messages
 WHERE chat_id=$1 AND user_tg_id=$2 AND NOT is_deleted
 ORDER BY id DESC LIMIT 1;
`
	row, err := pickRow(ctx, r.pool, tx, q, chatID, userTgID)
	if err != nil {
		return nil, err
	}
	var m model.ArchivedMessage
	if err := row.Scan(&m.ID, &m.ChatID, &m.UserTgID, &m.Text, &m.Encrypted, &m.CreatedAt, &m.IsDeleted, &m.IsEdited); err != nil {
		if err == pgx.ErrNoRows {
			return nil, domain.ErrNotFound
		}
		return nil, fmt.Errorf("find latest message: %w", err)
	}
	return &m, nil
}

// MarkDeleted flags the row instead of removing it. The archive keeps deleted
// texts searchable by admins.
func (r *PostgresMessageRepo) MarkDeleted(ctx context.Context, tx repository.Tx, messageID int64) error {
	tag, err := pickExec(ctx, r.pool, tx, `UPDATE messages SET is_deleted=true WHERE id=$1;`, messageID)
	if err != nil {
		return fmt.Errorf("mark deleted: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrNotFound
	}
	return nil
}

func (r *PostgresMessageRepo) AddVersion(ctx context.Context, tx repository.Tx, v *model.MessageVersion) error {
	const ins = `
INSERT INTO message_versions (message_id, text, encrypted, edited_at)
VALUES ($1,$2,$3,$4) RETURNING id;
`
	row, err := pickRow(ctx, r.pool, tx, ins, v.MessageID, v.Text, v.Encrypted, v.EditedAt)
	if err != nil {
		return err
	}
	if err := row.Scan(&v.ID); err != nil {
		return fmt.Errorf("insert message version: %w", err)
	}
	if _, err := pickExec(ctx, r.pool, tx, `UPDATE messages SET is_edited=true WHERE id=$1;`, v.MessageID); err != nil {
		return fmt.Errorf("flag edited: %w", err)
	}
	return nil
}

// SearchByTag matches original texts and their edit revisions. Encrypted rows
// cannot be matched server-side and are skipped here; searches against an
// encrypted archive go through ListRecent instead.
func (r *PostgresMessageRepo) SearchByTag(ctx context.Context, tx repository.Tx, chatID int64, tag string, limit int) ([]*model.SearchHit, error) {
	const q = `
SELECT t.text, COALESCE(NULLIF(u.username, ''), t.user_tg_id::text) AS author
  FROM (
       SELECT m.id, m.text, m.user_tg_id, m.encrypted
         FROM messages m
        WHERE m.chat_id=$1
       UNION ALL
       SELECT m.id, v.text, m.user_tg_id, v.encrypted
         FROM message_versions v
         JOIN messages m ON m.id = v.message_id
        WHERE m.chat_id=$1
       ) t
  LEFT JOIN users u ON u.telegram_id = t.user_tg_id
 WHERE NOT t.encrypted AND t.text ILIKE '%' || $2 || '%'
 ORDER BY t.id DESC
 LIMIT $3;
`
	rows, err := pickQuery(ctx, r.pool, tx, q, chatID, tag, limit)
	if err != nil {
		return nil, fmt.Errorf("search messages: %w", err)
	}
	defer rows.Close()

	var hits []*model.SearchHit
	for rows.Next() {
		var h model.SearchHit
		if err := rows.Scan(&h.Text, &h.Author); err != nil {
			return nil, fmt.Errorf("scan search hit: %w", err)
		}
		hits = append(hits, &h)
	}
	return hits, rows.Err()
}

// ListRecent returns the newest texts for a chat, originals and edit
// revisions alike, encrypted rows included. Feeds the decrypt-and-filter
// search path when at-rest encryption is on.
func (r *PostgresMessageRepo) ListRecent(ctx context.Context, tx repository.Tx, chatID int64, limit int) ([]*model.SearchHit, error) {
	const q = `
SELECT t.text, t.encrypted, COALESCE(NULLIF(u.username, ''), t.user_tg_id::text) AS author
  FROM (
       SELECT m.id, m.text, m.user_tg_id, m.encrypted
         FROM messages m
        WHERE m.chat_id=$1
       UNION ALL
       SELECT m.id, v.text, m.user_tg_id, v.encrypted
         FROM message_versions v
         JOIN messages m ON m.id = v.message_id
        WHERE m.chat_id=$1
       ) t
  LEFT JOIN users u ON u.telegram_id = t.user_tg_id
 ORDER BY t.id DESC
 LIMIT $2;
`
	rows, err := pickQuery(ctx, r.pool, tx, q, chatID, limit)
	if err != nil {
		return nil, fmt.Errorf("list recent messages: %w", err)
	}
	defer rows.Close()

	var hits []*model.SearchHit
	for rows.Next() {
		var h model.SearchHit
		if err := rows.Scan(&h.Text, &h.Encrypted, &h.Author); err != nil {
			return nil, fmt.Errorf("scan recent message: %w", err)
		}
		hits = append(hits, &h)
	}
	return hits, rows.Err()
}

func (r *PostgresMessageRepo) CountMessages(ctx context.Context, tx repository.Tx) (int, error) {
	row, err := pickRow(ctx, r.pool, tx, `SELECT COUNT(*) FROM messages;`)
	if err != nil {
		return 0, err
	}
	var n int
	if err := row.Scan(&n); err != nil {
		return 0, fmt.Errorf("count messages: %w", err)
	}
	return n, nil
}
