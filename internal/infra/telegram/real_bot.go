package telegram

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"telegram-archive-bot/internal/config"
	"telegram-archive-bot/internal/domain"
	"telegram-archive-bot/internal/domain/model"
	"telegram-archive-bot/internal/domain/ports/adapter"
)

var _ adapter.BotAdapter = (*RealBotAdapter)(nil)

const adminCacheTTL = 5 * time.Minute

type adminCacheEntry struct {
	ids       []int64
	fetchedAt time.Time
}

// RealBotAdapter implements the platform surface against the Bot API via
// tgbotapi. Polling is pull-based: the engine owns the offset and calls Poll
// once per batch, so a batch is never acknowledged before it is committed.
type RealBotAdapter struct {
	bot    *tgbotapi.BotAPI
	selfID int64

	mu         sync.Mutex
	adminCache map[int64]adminCacheEntry
}

func NewRealBotAdapter(cfg *config.BotConfig) (*RealBotAdapter, error) {
	if cfg == nil {
		return nil, errors.New("bot config is nil")
	}
	bot, err := tgbotapi.NewBotAPI(cfg.Token)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrAuth, err)
	}
	return &RealBotAdapter{
		bot:        bot,
		selfID:     bot.Self.ID,
		adminCache: make(map[int64]adminCacheEntry),
	}, nil
}

// Poll fetches one batch of updates at the given offset and normalizes them.
func (r *RealBotAdapter) Poll(ctx context.Context, offset int64, limit int, timeout time.Duration) ([]*model.Update, error) {
	u := tgbotapi.NewUpdate(int(offset))
	u.Limit = limit
	u.Timeout = int(timeout.Seconds())
	u.AllowedUpdates = []string{"message", "edited_message", "callback_query", "chat_member", "my_chat_member"}

	raw, err := r.bot.GetUpdates(u)
	if err != nil {
		return nil, classifyPollError(err)
	}

	out := make([]*model.Update, 0, len(raw))
	for _, ru := range raw {
		upd, ok := r.normalize(ctx, ru)
		if !ok {
			continue
		}
		out = append(out, upd)
	}
	return out, nil
}

// Send delivers one outbound message. Retry policy is the caller's.
func (r *RealBotAdapter) Send(ctx context.Context, msg *model.OutboundMessage) error {
	m := tgbotapi.NewMessage(msg.ChatID, msg.Body)
	if msg.ReplyToID != 0 {
		m.ReplyToMessageID = int(msg.ReplyToID)
	}
	if _, err := r.bot.Send(m); err != nil {
		return classifySendError(err)
	}
	return nil
}

func (r *RealBotAdapter) ChatAdminIDs(ctx context.Context, chatID int64) ([]int64, error) {
	r.mu.Lock()
	if e, ok := r.adminCache[chatID]; ok && time.Since(e.fetchedAt) < adminCacheTTL {
		ids := e.ids
		r.mu.Unlock()
		return ids, nil
	}
	r.mu.Unlock()

	members, err := r.bot.GetChatAdministrators(tgbotapi.ChatAdministratorsConfig{
		ChatConfig: tgbotapi.ChatConfig{ChatID: chatID},
	})
	if err != nil {
		return nil, classifyPollError(err)
	}
	ids := make([]int64, 0, len(members))
	for _, m := range members {
		if m.User == nil || m.User.IsBot {
			continue
		}
		ids = append(ids, m.User.ID)
	}

	r.mu.Lock()
	r.adminCache[chatID] = adminCacheEntry{ids: ids, fetchedAt: time.Now()}
	r.mu.Unlock()
	return ids, nil
}

func (r *RealBotAdapter) IsChatAdmin(ctx context.Context, chatID, userID int64) (bool, error) {
	ids, err := r.ChatAdminIDs(ctx, chatID)
	if err != nil {
		return false, err
	}
	for _, id := range ids {
		if id == userID {
			return true, nil
		}
	}
	return false, nil
}

// normalize maps one raw Bot API update onto the domain type. Updates the
// engine has no use for (no chat, from this bot itself) are dropped.
func (r *RealBotAdapter) normalize(ctx context.Context, ru tgbotapi.Update) (*model.Update, bool) {
	switch {
	case ru.Message != nil:
		return r.normalizeMessage(ctx, int64(ru.UpdateID), ru.Message, false)
	case ru.EditedMessage != nil:
		return r.normalizeMessage(ctx, int64(ru.UpdateID), ru.EditedMessage, true)
	case ru.CallbackQuery != nil:
		return r.normalizeCallback(int64(ru.UpdateID), ru.CallbackQuery)
	case ru.ChatMember != nil:
		return normalizeMemberChange(int64(ru.UpdateID), ru.ChatMember)
	case ru.MyChatMember != nil:
		return normalizeMemberChange(int64(ru.UpdateID), ru.MyChatMember)
	default:
		return nil, false
	}
}

func (r *RealBotAdapter) normalizeMessage(ctx context.Context, updateID int64, m *tgbotapi.Message, edited bool) (*model.Update, bool) {
	if m.From == nil || m.Chat == nil {
		return nil, false
	}
	if m.From.ID == r.selfID {
		return nil, false
	}

	kind := model.UpdateMessage
	if edited {
		kind = model.UpdateEdited
	}
	upd, err := model.NewUpdate(updateID, m.Chat.ID, m.From.ID, kind)
	if err != nil {
		return nil, false
	}
	upd.Username = m.From.UserName
	upd.Text = m.Text
	upd.Private = m.Chat.IsPrivate()
	upd.FromBot = m.From.IsBot
	if m.ReplyToMessage != nil {
		upd.ReplyToID = int64(m.ReplyToMessage.MessageID)
	}
	if edited && m.EditDate > 0 {
		upd.EditedAt = time.Unix(int64(m.EditDate), 0)
	}

	if cmd, args, ok := model.ParseCommand(m.Text); ok && !edited {
		upd.Kind = model.UpdateCommand
		upd.Command = cmd
		upd.Args = args
	}

	// admin status of the author within this chat, resolved up front so the
	// routing layer stays free of I/O; private chats have no administrators
	if !upd.Private {
		isAdmin, err := r.IsChatAdmin(ctx, upd.ChatID, upd.UserID)
		if err == nil {
			upd.FromAdmin = isAdmin
		}
	}
	return upd, true
}

func (r *RealBotAdapter) normalizeCallback(updateID int64, cq *tgbotapi.CallbackQuery) (*model.Update, bool) {
	if cq.From == nil || cq.Message == nil || cq.Message.Chat == nil {
		return nil, false
	}
	upd, err := model.NewUpdate(updateID, cq.Message.Chat.ID, cq.From.ID, model.UpdateCallback)
	if err != nil {
		return nil, false
	}
	upd.Username = cq.From.UserName
	upd.Text = cq.Data
	upd.Private = cq.Message.Chat.IsPrivate()
	return upd, true
}

func normalizeMemberChange(updateID int64, cm *tgbotapi.ChatMemberUpdated) (*model.Update, bool) {
	upd, err := model.NewUpdate(updateID, cm.Chat.ID, cm.From.ID, model.UpdateChatMember)
	if err != nil {
		return nil, false
	}
	upd.Username = cm.From.UserName
	mc := &model.MemberChange{
		ChatTitle: cm.Chat.Title,
		WasMember: isMemberStatus(cm.OldChatMember.Status, cm.OldChatMember.IsMember),
		IsMember:  isMemberStatus(cm.NewChatMember.Status, cm.NewChatMember.IsMember),
	}
	if u := cm.NewChatMember.User; u != nil {
		mc.MemberID = u.ID
		mc.MemberName = displayName(u)
		mc.MemberIsBot = u.IsBot
	}
	upd.Member = mc
	return upd, true
}

func isMemberStatus(status string, restrictedIsMember bool) bool {
	switch status {
	case "creator", "administrator", "member":
		return true
	case "restricted":
		return restrictedIsMember
	default: // "left", "kicked"
		return false
	}
}

func displayName(u *tgbotapi.User) string {
	if u.UserName != "" {
		return u.UserName
	}
	return u.FirstName
}

// classifyPollError maps Bot API failures onto the domain taxonomy: rejected
// credentials are fatal, everything else on the source side is retryable.
func classifyPollError(err error) error {
	var apiErr *tgbotapi.Error
	if errors.As(err, &apiErr) {
		if apiErr.Code == 401 {
			return fmt.Errorf("%w: %v", domain.ErrAuth, err)
		}
	}
	return fmt.Errorf("%w: %v", domain.ErrTransientSource, err)
}

// classifySendError separates retryable delivery failures (rate limits,
// server errors, network) from permanent ones (bad request, blocked by user).
func classifySendError(err error) error {
	var apiErr *tgbotapi.Error
	if errors.As(err, &apiErr) {
		switch {
		case apiErr.Code == 401:
			return fmt.Errorf("%w: %v", domain.ErrAuth, err)
		case apiErr.Code == 400 || apiErr.Code == 403:
			return fmt.Errorf("%w: %v", domain.ErrDeliveryFailed, err)
		}
	}
	return fmt.Errorf("%w: %v", domain.ErrTransientSource, err)
}
