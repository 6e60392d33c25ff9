package usecase

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v4"
	"github.com/rs/zerolog"

	"telegram-archive-bot/internal/dispatch"
	"telegram-archive-bot/internal/domain"
	"telegram-archive-bot/internal/domain/model"
	"telegram-archive-bot/internal/domain/ports/adapter"
	"telegram-archive-bot/internal/domain/ports/repository"
	"telegram-archive-bot/internal/infra/logging"
	"telegram-archive-bot/internal/infra/metrics"
)

// DedupCache is the optional fast-path duplicate filter. Correctness never
// depends on it: the conversation's last_update_id is the durable guard.
type DedupCache interface {
	Seen(ctx context.Context, updateID int64) (bool, error)
	MarkProcessed(ctx context.Context, updateID int64) (bool, error)
}

// OutboundQueue is the live sender's intake. Enqueue after commit is a wake-up
// call, not the source of truth; the sender reconciles from the outbox table,
// so a refused enqueue only delays delivery.
type OutboundQueue interface {
	Enqueue(msg *model.OutboundMessage) error
}

// Encryptor scrambles archived text at rest when configured.
type Encryptor interface {
	Encrypt(plaintext string) (string, error)
	Decrypt(ciphertext string) (string, error)
}

// Texts resolves user-facing strings by locale key.
type Texts interface {
	T(key string, args ...interface{}) string
}

// FloodLimiter throttles command traffic per user. Optional; a failing or
// absent limiter lets traffic through.
type FloodLimiter interface {
	AllowCommand(ctx context.Context, userID int64, command string) (bool, error)
}

// Compile-time check
var _ EngineUseCase = (*engineUC)(nil)

// EngineUseCase processes one normalized update end to end: dispatch, then a
// single transaction committing the conversation, the cursor watermark, the
// outbox rows and the archive mutations.
type EngineUseCase interface {
	ProcessUpdate(ctx context.Context, upd *model.Update) error
	// StartCursor returns the durable polling position for engine startup.
	StartCursor(ctx context.Context) (model.Cursor, error)
	// TrackBatch registers a polled batch with the completion watermark.
	TrackBatch(upds []*model.Update)
}

type engineUC struct {
	convs    repository.ConversationRepository
	cursor   repository.CursorRepository
	outbox   repository.OutboxRepository
	messages repository.MessageRepository
	users    repository.UserRepository
	tm       repository.TransactionManager

	router *dispatch.Router
	admins adapter.AdminDirectory
	wm     *Watermark

	dedup DedupCache    // optional
	queue OutboundQueue // optional
	enc   Encryptor     // optional
	flood FloodLimiter  // optional
	texts Texts

	commitRetries int
	log           *zerolog.Logger
}

func NewEngineUseCase(
	convs repository.ConversationRepository,
	cursor repository.CursorRepository,
	outbox repository.OutboxRepository,
	messages repository.MessageRepository,
	users repository.UserRepository,
	tm repository.TransactionManager,
	router *dispatch.Router,
	admins adapter.AdminDirectory,
	wm *Watermark,
	dedup DedupCache,
	queue OutboundQueue,
	enc Encryptor,
	flood FloodLimiter,
	texts Texts,
	commitRetries int,
	logger *zerolog.Logger,
) *engineUC {
	if commitRetries <= 0 {
		commitRetries = 3
	}
	return &engineUC{
		convs:         convs,
		cursor:        cursor,
		outbox:        outbox,
		messages:      messages,
		users:         users,
		tm:            tm,
		router:        router,
		admins:        admins,
		wm:            wm,
		dedup:         dedup,
		queue:         queue,
		enc:           enc,
		flood:         flood,
		texts:         texts,
		commitRetries: commitRetries,
		log:           logger,
	}
}

func (e *engineUC) StartCursor(ctx context.Context) (model.Cursor, error) {
	return e.cursor.Load(ctx, repository.NoTX)
}

func (e *engineUC) TrackBatch(upds []*model.Update) {
	for _, u := range upds {
		e.wm.Track(u.ID)
	}
}

func (e *engineUC) ProcessUpdate(ctx context.Context, upd *model.Update) error {
	ctx = logging.WithUpdateID(logging.WithChatID(ctx, upd.ChatID), upd.ID)
	log := logging.With(ctx, e.log)
	defer logging.TraceDuration(log, "EngineUC.ProcessUpdate")()
	start := time.Now()

	status, err := e.process(ctx, upd, log)
	metrics.ObserveUpdate(string(upd.Kind), status, int(time.Since(start).Milliseconds()))
	return err
}

func (e *engineUC) process(ctx context.Context, upd *model.Update, log *zerolog.Logger) (string, error) {
	// fast-path duplicate filter; errors here only cost a redundant dispatch
	if e.dedup != nil {
		if seen, err := e.dedup.Seen(ctx, upd.ID); err == nil && seen {
			if err := e.acknowledge(ctx, upd.ID); err != nil {
				return "error", err
			}
			e.finish(ctx, upd.ID, nil)
			log.Debug().Msg("duplicate update dropped by cache")
			return "duplicate", nil
		}
	}

	if e.flood != nil && upd.Kind == model.UpdateCommand {
		if allowed, err := e.flood.AllowCommand(ctx, upd.UserID, upd.Command); err == nil && !allowed {
			if err := e.acknowledge(ctx, upd.ID); err != nil {
				return "error", err
			}
			e.finish(ctx, upd.ID, nil)
			log.Debug().Str("command", upd.Command).Msg("command rate limit exceeded, dropping")
			return "rate_limited", nil
		}
	}

	key := model.ConversationKey(upd.ChatID)

	var lastErr error
	for attempt := 0; attempt < e.commitRetries; attempt++ {
		snap, err := e.loadSnapshot(ctx, key)
		if err != nil {
			return "error", err
		}

		// durable idempotency: the conversation already absorbed this id
		if upd.ID <= snap.LastUpdateID {
			if err := e.acknowledge(ctx, upd.ID); err != nil {
				return "error", err
			}
			e.finish(ctx, upd.ID, nil)
			log.Debug().Int64("last_update_id", snap.LastUpdateID).Msg("duplicate update dropped by store")
			return "duplicate", nil
		}

		out, err := e.router.Dispatch(upd, snap)
		if err != nil {
			// a broken handler must not wedge the pipeline: consume the
			// update and answer with the fallback instead of silence
			log.Error().Err(err).Msg("dispatch failed, replying with fallback")
			fb, fbErr := model.NewOutboundMessage(upd.ChatID, e.texts.T("unknown_command"))
			if fbErr != nil {
				return "error", fbErr
			}
			if ackErr := e.acknowledge(ctx, upd.ID, fb); ackErr != nil {
				return "error", ackErr
			}
			e.finish(ctx, upd.ID, []*model.OutboundMessage{fb})
			return "dispatch_error", nil
		}

		outMsgs, err := e.buildOutbound(ctx, upd, out)
		if err != nil {
			return "error", err
		}

		err = e.commit(ctx, upd, snap, out, outMsgs)
		if err == nil {
			e.finish(ctx, upd.ID, outMsgs)
			return "processed", nil
		}
		if !errors.Is(err, domain.ErrVersionConflict) {
			return "error", err
		}
		metrics.IncVersionConflict()
		lastErr = err
		log.Warn().Int("attempt", attempt+1).Msg("conversation version conflict, reloading")
	}
	return "conflict", fmt.Errorf("commit retries exhausted for update %d: %w", upd.ID, lastErr)
}

func (e *engineUC) loadSnapshot(ctx context.Context, key string) (*model.Snapshot, error) {
	conv, err := e.convs.Find(ctx, repository.NoTX, key)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return model.EmptySnapshot(key), nil
		}
		return nil, err
	}
	return conv.Snapshot(), nil
}

// acknowledge advances the durable cursor for an update that caused no state
// change (duplicates, throttled commands, dispatch failures). Any msgs ride
// in the same transaction; the dispatch-failure path uses that to still
// deliver the fallback reply.
func (e *engineUC) acknowledge(ctx context.Context, updateID int64, msgs ...*model.OutboundMessage) error {
	mark := e.wm.Peek(updateID)
	return e.tm.WithTx(ctx, pgx.TxOptions{}, func(ctx context.Context, tx repository.Tx) error {
		if err := e.cursor.Advance(ctx, tx, mark); err != nil {
			return err
		}
		for _, m := range msgs {
			if err := e.outbox.Insert(ctx, tx, m); err != nil {
				return err
			}
		}
		return nil
	})
}

// buildOutbound turns the outcome's replies, admin notices and search results
// into outbox rows. Runs before the commit transaction so the rows are part
// of it; everything here is read-only.
func (e *engineUC) buildOutbound(ctx context.Context, upd *model.Update, out *dispatch.Outcome) ([]*model.OutboundMessage, error) {
	var msgs []*model.OutboundMessage

	for _, rep := range out.Replies {
		chatID := rep.ChatID
		if chatID == 0 {
			chatID = upd.ChatID
		}
		m, err := model.NewOutboundMessage(chatID, rep.Body)
		if err != nil {
			return nil, err
		}
		m.ReplyToID = rep.ReplyToID
		msgs = append(msgs, m)
	}

	if out.Notify != nil {
		adminIDs, err := e.admins.ChatAdminIDs(ctx, out.Notify.ChatID)
		if err != nil {
			// notification is best-effort; losing it must not lose the update
			logging.With(ctx, e.log).Warn().Err(err).Int64("chat_id", out.Notify.ChatID).Msg("admin lookup failed, dropping notice")
		}
		for _, id := range adminIDs {
			m, err := model.NewOutboundMessage(id, out.Notify.Text)
			if err != nil {
				return nil, err
			}
			msgs = append(msgs, m)
		}
	}

	if out.Search != nil {
		body, outcome := e.runSearch(ctx, out.Search)
		metrics.IncSearch(outcome)
		replyChat := out.Search.ReplyChatID
		if replyChat == 0 {
			replyChat = upd.ChatID
		}
		m, err := model.NewOutboundMessage(replyChat, body)
		if err != nil {
			return nil, err
		}
		msgs = append(msgs, m)
	}

	return msgs, nil
}

func (e *engineUC) runSearch(ctx context.Context, op *dispatch.SearchOp) (string, string) {
	limit := op.Limit
	if limit <= 0 {
		limit = 20
	}
	hits, err := searchArchive(ctx, e.messages, e.enc, op.ChatID, op.Tag, limit)
	if err != nil {
		return e.texts.T("search_failed"), "error"
	}
	if len(hits) == 0 {
		return e.texts.T("search_empty", op.Tag), "empty"
	}
	body := e.texts.T("search_header", len(hits), op.Tag)
	for _, h := range hits {
		body += "\n" + e.texts.T("search_line", h.Text, h.Author)
	}
	return body, "hit"
}

// commit is the single atomic step: conversation save with the optimistic
// version check, cursor advance, outbox inserts, archive mutations and the
// author upsert all land together or not at all.
func (e *engineUC) commit(ctx context.Context, upd *model.Update, snap *model.Snapshot, out *dispatch.Outcome, outMsgs []*model.OutboundMessage) error {
	conv := e.applyOutcome(snap, out, upd.ID)
	mark := e.wm.Peek(upd.ID)

	return e.tm.WithTx(ctx, pgx.TxOptions{}, func(ctx context.Context, tx repository.Tx) error {
		if err := e.convs.Save(ctx, tx, conv, snap.Version); err != nil {
			return err
		}
		if err := e.cursor.Advance(ctx, tx, mark); err != nil {
			return err
		}
		for _, m := range outMsgs {
			if err := e.outbox.Insert(ctx, tx, m); err != nil {
				return err
			}
		}
		if err := e.applyArchiveOps(ctx, tx, out.Archive); err != nil {
			return err
		}
		return e.touchUser(ctx, tx, upd)
	})
}

func (e *engineUC) applyOutcome(snap *model.Snapshot, out *dispatch.Outcome, updateID int64) *model.Conversation {
	conv := &model.Conversation{
		Key:          snap.Key,
		State:        snap.State,
		Context:      make(map[string]string, len(snap.Context)+len(out.Patch)),
		Version:      snap.Version,
		LastUpdateID: updateID,
		UpdatedAt:    time.Now(),
	}
	for k, v := range snap.Context {
		conv.Context[k] = v
	}
	for k, v := range out.Patch {
		if v == "" {
			delete(conv.Context, k)
			continue
		}
		conv.Context[k] = v
	}
	if out.NextState != "" {
		conv.State = out.NextState
	}
	return conv
}

func (e *engineUC) applyArchiveOps(ctx context.Context, tx repository.Tx, ops []dispatch.ArchiveOp) error {
	for _, op := range ops {
		switch v := op.(type) {
		case dispatch.SaveMessage:
			msg, err := model.NewArchivedMessage(v.ChatID, v.UserTgID, v.Text)
			if err != nil {
				return err
			}
			if err := e.encryptMessage(msg); err != nil {
				return err
			}
			if _, err := e.messages.Insert(ctx, tx, msg); err != nil {
				return err
			}
			metrics.IncArchiveWrite("save")

		case dispatch.RecordEdit:
			latest, err := e.messages.FindLatestByAuthor(ctx, tx, v.ChatID, v.UserTgID)
			if errors.Is(err, domain.ErrNotFound) {
				// edit of a message archived before the bot joined: store it
				// as a fresh message instead of dropping the text
				msg, nerr := model.NewArchivedMessage(v.ChatID, v.UserTgID, v.Text)
				if nerr != nil {
					return nerr
				}
				if err := e.encryptMessage(msg); err != nil {
					return err
				}
				if _, err := e.messages.Insert(ctx, tx, msg); err != nil {
					return err
				}
				metrics.IncArchiveWrite("save")
				continue
			}
			if err != nil {
				return err
			}
			ver := &model.MessageVersion{MessageID: latest.ID, Text: v.Text, EditedAt: v.EditedAt}
			if e.enc != nil {
				enc, err := e.enc.Encrypt(ver.Text)
				if err != nil {
					return err
				}
				ver.Text = enc
				ver.Encrypted = true
			}
			if err := e.messages.AddVersion(ctx, tx, ver); err != nil {
				return err
			}
			metrics.IncArchiveWrite("edit")

		case dispatch.DeleteLatest:
			latest, err := e.messages.FindLatestByAuthor(ctx, tx, v.ChatID, v.UserTgID)
			if errors.Is(err, domain.ErrNotFound) {
				continue // nothing archived, nothing to delete
			}
			if err != nil {
				return err
			}
			if err := e.messages.MarkDeleted(ctx, tx, latest.ID); err != nil {
				return err
			}
			metrics.IncArchiveWrite("delete")
		}
	}
	return nil
}

func (e *engineUC) encryptMessage(msg *model.ArchivedMessage) error {
	if e.enc == nil {
		return nil
	}
	enc, err := e.enc.Encrypt(msg.Text)
	if err != nil {
		return err
	}
	msg.Text = enc
	msg.Encrypted = true
	return nil
}

func (e *engineUC) touchUser(ctx context.Context, tx repository.Tx, upd *model.Update) error {
	if upd.UserID == 0 || upd.FromBot || upd.Kind == model.UpdateChatMember {
		return nil
	}
	u, err := e.users.FindByTelegramID(ctx, tx, upd.UserID)
	if errors.Is(err, domain.ErrNotFound) {
		nu, nerr := model.NewUser("", upd.UserID, upd.Username)
		if nerr != nil {
			return nerr
		}
		return e.users.Save(ctx, tx, nu)
	}
	if err != nil {
		return err
	}
	u.Touch()
	if upd.Username != "" {
		u.Username = upd.Username
	}
	return e.users.Save(ctx, tx, u)
}

// finish runs the post-commit bookkeeping: watermark, dedup mark, live sender
// wake-up. All best-effort; durable state is already committed.
func (e *engineUC) finish(ctx context.Context, updateID int64, outMsgs []*model.OutboundMessage) {
	mark := e.wm.Complete(updateID)
	metrics.SetCursorWatermark(mark)
	if e.dedup != nil {
		_, _ = e.dedup.MarkProcessed(ctx, updateID)
	}
	if e.queue != nil {
		for _, m := range outMsgs {
			if err := e.queue.Enqueue(m); err != nil {
				logging.With(ctx, e.log).Debug().Err(err).Str("outbound_id", m.ID).Msg("sender intake refused, reconciler will pick it up")
			}
		}
	}
}
