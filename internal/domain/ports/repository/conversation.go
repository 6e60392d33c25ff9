package repository

import (
	"context"

	"telegram-archive-bot/internal/domain/model"
)

// ConversationRepository is the versioned store of per-chat state.
//
// Save is the optimistic-concurrency point: it succeeds only when the stored
// version still equals expectedVersion (0 meaning "no row yet"), and writes
// version expectedVersion+1. A lost race returns domain.ErrVersionConflict.
type ConversationRepository interface {
	Find(ctx context.Context, tx Tx, key string) (*model.Conversation, error)
	Save(ctx context.Context, tx Tx, conv *model.Conversation, expectedVersion int64) error
}
