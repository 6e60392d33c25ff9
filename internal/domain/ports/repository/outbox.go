package repository

import (
	"context"

	"telegram-archive-bot/internal/domain/model"
)

// OutboxRepository is the durable queue of outbound messages. Rows are
// inserted inside the same transaction as the conversation commit and owned by
// the sender until they reach a terminal status; pending rows survive restarts
// and are re-enqueued by ListPending at startup.
type OutboxRepository interface {
	Insert(ctx context.Context, tx Tx, msg *model.OutboundMessage) error
	MarkSent(ctx context.Context, tx Tx, id string, attempts int) error
	MarkFailed(ctx context.Context, tx Tx, id string, attempts int) error
	// ListPending returns pending messages ordered by id (ULID = enqueue order).
	ListPending(ctx context.Context, tx Tx, limit int) ([]*model.OutboundMessage, error)
	CountByStatus(ctx context.Context, tx Tx, status model.DeliveryStatus) (int, error)
}
