package repository

import (
	"context"

	"telegram-archive-bot/internal/domain/model"
)

// MessageRepository is the archive of group messages and their edit history.
type MessageRepository interface {
	Insert(ctx context.Context, tx Tx, msg *model.ArchivedMessage) (int64, error)
	// FindLatestByAuthor returns the newest archived message for (chat, user).
	FindLatestByAuthor(ctx context.Context, tx Tx, chatID, userTgID int64) (*model.ArchivedMessage, error)
	MarkDeleted(ctx context.Context, tx Tx, messageID int64) error
	// AddVersion appends an edit revision and flags the original as edited.
	AddVersion(ctx context.Context, tx Tx, v *model.MessageVersion) error
	// SearchByTag matches the tag against original texts and edited versions.
	// Encrypted rows cannot be matched server-side; ListRecent feeds the
	// decrypt-and-filter path for them.
	SearchByTag(ctx context.Context, tx Tx, chatID int64, tag string, limit int) ([]*model.SearchHit, error)
	// ListRecent returns the newest texts (originals and edit revisions) for
	// a chat, encrypted rows included.
	ListRecent(ctx context.Context, tx Tx, chatID int64, limit int) ([]*model.SearchHit, error)
	CountMessages(ctx context.Context, tx Tx) (int, error)
}
