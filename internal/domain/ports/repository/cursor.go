package repository

import (
	"context"

	"telegram-archive-bot/internal/domain/model"
)

// CursorRepository persists the polling watermark. Advance is monotonic: a
// value at or below the stored watermark is a no-op, so concurrent commits can
// each pass their own view of the completion prefix safely.
type CursorRepository interface {
	Load(ctx context.Context, tx Tx) (model.Cursor, error)
	Advance(ctx context.Context, tx Tx, upTo int64) error
}
