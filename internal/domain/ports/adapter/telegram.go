package adapter

import (
	"context"
	"time"

	"telegram-archive-bot/internal/domain/model"
)

// UpdateSource yields the ordered sequence of inbound updates starting at
// offset. Implementations classify failures: network/5xx conditions wrap
// domain.ErrTransientSource, rejected credentials wrap domain.ErrAuth.
// Duplicate ids may appear after a restart; deduplication is the engine's job.
type UpdateSource interface {
	Poll(ctx context.Context, offset int64, limit int, timeout time.Duration) ([]*model.Update, error)
}

// MessageSender delivers one outbound message. Retry policy lives in the
// sender loop, not here.
type MessageSender interface {
	Send(ctx context.Context, msg *model.OutboundMessage) error
}

// AdminDirectory answers chat-administrator questions. Implementations cache:
// the same chat is asked repeatedly during member tracking and command checks.
type AdminDirectory interface {
	// ChatAdminIDs returns user ids of non-bot administrators of the chat.
	ChatAdminIDs(ctx context.Context, chatID int64) ([]int64, error)
	IsChatAdmin(ctx context.Context, chatID, userID int64) (bool, error)
}

// BotAdapter aggregates the platform surface the engine needs.
type BotAdapter interface {
	UpdateSource
	MessageSender
	AdminDirectory
}
