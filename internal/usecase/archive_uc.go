package usecase

import (
	"context"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"telegram-archive-bot/internal/domain/model"
	"telegram-archive-bot/internal/domain/ports/repository"
	"telegram-archive-bot/internal/infra/logging"
)

// Compile-time check
var _ ArchiveUseCase = (*archiveUC)(nil)

// ArchiveStats is the operator's view of the archive and the delivery queue.
type ArchiveStats struct {
	Users           int `json:"users"`
	InactiveUsers   int `json:"inactive_users"`
	Messages        int `json:"messages"`
	PendingOutbound int `json:"pending_outbound"`
	FailedOutbound  int `json:"failed_outbound"`
}

// ArchiveUseCase serves the admin API: tag search and archive statistics.
type ArchiveUseCase interface {
	Search(ctx context.Context, chatID int64, tag string, limit int) ([]*model.SearchHit, error)
	Stats(ctx context.Context) (*ArchiveStats, error)
}

type archiveUC struct {
	messages repository.MessageRepository
	users    repository.UserRepository
	outbox   repository.OutboxRepository
	enc      Encryptor // optional

	log *zerolog.Logger
}

func NewArchiveUseCase(messages repository.MessageRepository, users repository.UserRepository, outbox repository.OutboxRepository, enc Encryptor, logger *zerolog.Logger) *archiveUC {
	return &archiveUC{messages: messages, users: users, outbox: outbox, enc: enc, log: logger}
}

func (a *archiveUC) Search(ctx context.Context, chatID int64, tag string, limit int) ([]*model.SearchHit, error) {
	defer logging.TraceDuration(a.log, "ArchiveUC.Search")()
	if limit <= 0 || limit > 100 {
		limit = 20
	}
	return searchArchive(ctx, a.messages, a.enc, chatID, tag, limit)
}

// searchScanCap bounds the rows fetched when the match cannot run in SQL.
const searchScanCap = 500

// searchArchive answers one tag query. Plaintext archives match in SQL; an
// encrypted archive cannot, so the newest rows are fetched, decrypted and
// filtered here.
func searchArchive(ctx context.Context, msgs repository.MessageRepository, enc Encryptor, chatID int64, tag string, limit int) ([]*model.SearchHit, error) {
	if enc == nil {
		return msgs.SearchByTag(ctx, repository.NoTX, chatID, tag, limit)
	}
	rows, err := msgs.ListRecent(ctx, repository.NoTX, chatID, searchScanCap)
	if err != nil {
		return nil, err
	}
	needle := strings.ToLower(tag)
	var hits []*model.SearchHit
	for _, h := range rows {
		text := h.Text
		if h.Encrypted {
			dec, decErr := enc.Decrypt(h.Text)
			if decErr != nil {
				continue // unreadable under the current key
			}
			text = dec
		}
		if !strings.Contains(strings.ToLower(text), needle) {
			continue
		}
		h.Text = text
		h.Encrypted = false
		hits = append(hits, h)
		if len(hits) >= limit {
			break
		}
	}
	return hits, nil
}

func (a *archiveUC) Stats(ctx context.Context) (*ArchiveStats, error) {
	defer logging.TraceDuration(a.log, "ArchiveUC.Stats")()
	users, err := a.users.CountUsers(ctx, repository.NoTX)
	if err != nil {
		return nil, err
	}
	inactive, err := a.users.CountInactiveUsers(ctx, repository.NoTX, time.Now().AddDate(0, -1, 0))
	if err != nil {
		return nil, err
	}
	msgs, err := a.messages.CountMessages(ctx, repository.NoTX)
	if err != nil {
		return nil, err
	}
	pending, err := a.outbox.CountByStatus(ctx, repository.NoTX, model.DeliveryPending)
	if err != nil {
		return nil, err
	}
	failed, err := a.outbox.CountByStatus(ctx, repository.NoTX, model.DeliveryFailed)
	if err != nil {
		return nil, err
	}
	return &ArchiveStats{
		Users:           users,
		InactiveUsers:   inactive,
		Messages:        msgs,
		PendingOutbound: pending,
		FailedOutbound:  failed,
	}, nil
}
