package telegram

import (
	"context"
	"time"

	"telegram-archive-bot/internal/domain/model"
	"telegram-archive-bot/internal/domain/ports/adapter"
	"telegram-archive-bot/internal/infra/logging"
)

var _ adapter.BotAdapter = (*NoopBotAdapter)(nil)

// NoopBotAdapter lets the process run without platform credentials in dev:
// polling yields nothing and sends are logged instead of delivered.
type NoopBotAdapter struct{}

func NewNoopBotAdapter() *NoopBotAdapter { return &NoopBotAdapter{} }

func (n *NoopBotAdapter) Poll(ctx context.Context, offset int64, limit int, timeout time.Duration) ([]*model.Update, error) {
	select {
	case <-time.After(timeout):
		return nil, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func (n *NoopBotAdapter) Send(ctx context.Context, msg *model.OutboundMessage) error {
	logging.Global.Info().Int64("chat_id", msg.ChatID).Str("body", msg.Body).Msg("noop send")
	return nil
}

func (n *NoopBotAdapter) ChatAdminIDs(ctx context.Context, chatID int64) ([]int64, error) {
	return nil, nil
}

func (n *NoopBotAdapter) IsChatAdmin(ctx context.Context, chatID, userID int64) (bool, error) {
	return false, nil
}
