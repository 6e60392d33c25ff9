package usecase

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/jackc/pgx/v4"

	"telegram-archive-bot/internal/domain"
	"telegram-archive-bot/internal/domain/model"
	"telegram-archive-bot/internal/domain/ports/repository"
)

// memStore is a small in-memory stand-in for the whole Postgres layer. One
// struct implements every repository plus the transaction manager so tests
// can assert on the combined committed state.
type memStore struct {
	mu sync.Mutex

	convs   map[string]*model.Conversation
	cursor  int64
	outbox  []*model.OutboundMessage
	msgs    []*model.ArchivedMessage
	vers    []*model.MessageVersion
	users   map[int64]*model.User
	nextMsg int64

	// forceConflicts makes the next N conversation saves lose the race.
	forceConflicts int
	saveErr        error
}

func newMemStore() *memStore {
	return &memStore{
		convs: make(map[string]*model.Conversation),
		users: make(map[int64]*model.User),
	}
}

// --- repository.TransactionManager ---

func (m *memStore) WithTx(ctx context.Context, txOpt pgx.TxOptions, fn func(ctx context.Context, tx repository.Tx) error) error {
	// single mutex stands in for transactional isolation
	return fn(ctx, m)
}

// --- repository.ConversationRepository ---

func (m *memStore) Find(ctx context.Context, tx repository.Tx, key string) (*model.Conversation, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	c, ok := m.convs[key]
	if !ok {
		return nil, domain.ErrNotFound
	}
	cp := *c
	cp.Context = make(map[string]string, len(c.Context))
	for k, v := range c.Context {
		cp.Context[k] = v
	}
	return &cp, nil
}

func (m *memStore) Save(ctx context.Context, tx repository.Tx, conv *model.Conversation, expectedVersion int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.saveErr != nil {
		return m.saveErr
	}
	if m.forceConflicts > 0 {
		m.forceConflicts--
		return domain.ErrVersionConflict
	}
	cur, ok := m.convs[conv.Key]
	if expectedVersion == 0 {
		if ok {
			return domain.ErrVersionConflict
		}
	} else {
		if !ok || cur.Version != expectedVersion {
			return domain.ErrVersionConflict
		}
	}
	cp := *conv
	cp.Version = expectedVersion + 1
	m.convs[conv.Key] = &cp
	conv.Version = cp.Version
	return nil
}

// --- repository.CursorRepository ---

func (m *memStore) Load(ctx context.Context, tx repository.Tx) (model.Cursor, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return model.Cursor{LastUpdateID: m.cursor}, nil
}

func (m *memStore) Advance(ctx context.Context, tx repository.Tx, upTo int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if upTo > m.cursor {
		m.cursor = upTo
	}
	return nil
}

// --- repository.OutboxRepository ---

func (m *memStore) Insert(ctx context.Context, tx repository.Tx, msg *model.OutboundMessage) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := *msg
	m.outbox = append(m.outbox, &cp)
	return nil
}

func (m *memStore) MarkSent(ctx context.Context, tx repository.Tx, id string, attempts int) error {
	return m.markStatus(id, model.DeliverySent, attempts)
}

func (m *memStore) MarkFailed(ctx context.Context, tx repository.Tx, id string, attempts int) error {
	return m.markStatus(id, model.DeliveryFailed, attempts)
}

func (m *memStore) markStatus(id string, status model.DeliveryStatus, attempts int) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, row := range m.outbox {
		if row.ID == id {
			row.Status = status
			row.Attempts = attempts
			return nil
		}
	}
	return domain.ErrNotFound
}

func (m *memStore) ListPending(ctx context.Context, tx repository.Tx, limit int) ([]*model.OutboundMessage, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*model.OutboundMessage
	for _, row := range m.outbox {
		if row.Status == model.DeliveryPending && len(out) < limit {
			cp := *row
			out = append(out, &cp)
		}
	}
	return out, nil
}

func (m *memStore) CountByStatus(ctx context.Context, tx repository.Tx, status model.DeliveryStatus) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	n := 0
	for _, row := range m.outbox {
		if row.Status == status {
			n++
		}
	}
	return n, nil
}

// --- repository.MessageRepository ---

func (m *memStore) InsertMessage(ctx context.Context, tx repository.Tx, msg *model.ArchivedMessage) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.nextMsg++
	msg.ID = m.nextMsg
	cp := *msg
	m.msgs = append(m.msgs, &cp)
	return msg.ID, nil
}

func (m *memStore) FindLatestByAuthor(ctx context.Context, tx repository.Tx, chatID, userTgID int64) (*model.ArchivedMessage, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for i := len(m.msgs) - 1; i >= 0; i-- {
		row := m.msgs[i]
		if row.ChatID == chatID && row.UserTgID == userTgID && !row.IsDeleted {
			cp := *row
			return &cp, nil
		}
	}
	return nil, domain.ErrNotFound
}

func (m *memStore) MarkDeleted(ctx context.Context, tx repository.Tx, messageID int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, row := range m.msgs {
		if row.ID == messageID {
			row.IsDeleted = true
			return nil
		}
	}
	return domain.ErrNotFound
}

func (m *memStore) AddVersion(ctx context.Context, tx repository.Tx, v *model.MessageVersion) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := *v
	m.vers = append(m.vers, &cp)
	for _, row := range m.msgs {
		if row.ID == v.MessageID {
			row.IsEdited = true
		}
	}
	return nil
}

func (m *memStore) SearchByTag(ctx context.Context, tx repository.Tx, chatID int64, tag string, limit int) ([]*model.SearchHit, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var hits []*model.SearchHit
	for _, row := range m.msgs {
		if row.ChatID != chatID || row.Encrypted || len(hits) >= limit {
			continue
		}
		if strings.Contains(row.Text, tag) {
			hits = append(hits, &model.SearchHit{Text: row.Text, Author: "tester"})
		}
	}
	return hits, nil
}

func (m *memStore) ListRecent(ctx context.Context, tx repository.Tx, chatID int64, limit int) ([]*model.SearchHit, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var hits []*model.SearchHit
	for i := len(m.msgs) - 1; i >= 0 && len(hits) < limit; i-- {
		row := m.msgs[i]
		if row.ChatID != chatID {
			continue
		}
		hits = append(hits, &model.SearchHit{Text: row.Text, Encrypted: row.Encrypted, Author: "tester"})
	}
	return hits, nil
}

func (m *memStore) CountMessages(ctx context.Context, tx repository.Tx) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.msgs), nil
}

// --- repository.UserRepository ---

func (m *memStore) SaveUser(ctx context.Context, tx repository.Tx, u *model.User) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := *u
	m.users[u.TelegramID] = &cp
	return nil
}

func (m *memStore) FindByTelegramID(ctx context.Context, tx repository.Tx, tgID int64) (*model.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	u, ok := m.users[tgID]
	if !ok {
		return nil, domain.ErrNotFound
	}
	cp := *u
	return &cp, nil
}

func (m *memStore) CountUsers(ctx context.Context, tx repository.Tx) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.users), nil
}

func (m *memStore) CountInactiveUsers(ctx context.Context, tx repository.Tx, since time.Time) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	n := 0
	for _, u := range m.users {
		if u.LastActiveAt.Before(since) {
			n++
		}
	}
	return n, nil
}

// messageRepoView and userRepoView resolve the method-name collisions between
// the repositories the one memStore implements.
type messageRepoView struct{ *memStore }

func (v messageRepoView) Insert(ctx context.Context, tx repository.Tx, msg *model.ArchivedMessage) (int64, error) {
	return v.InsertMessage(ctx, tx, msg)
}

type userRepoView struct{ *memStore }

func (v userRepoView) Save(ctx context.Context, tx repository.Tx, u *model.User) error {
	return v.SaveUser(ctx, tx, u)
}

// --- adapter.AdminDirectory ---

type memAdmins struct {
	admins map[int64][]int64 // chatID -> admin user ids
}

func (m *memAdmins) ChatAdminIDs(ctx context.Context, chatID int64) ([]int64, error) {
	return m.admins[chatID], nil
}

func (m *memAdmins) IsChatAdmin(ctx context.Context, chatID, userID int64) (bool, error) {
	for _, id := range m.admins[chatID] {
		if id == userID {
			return true, nil
		}
	}
	return false, nil
}

// --- DedupCache ---

type memDedup struct {
	mu   sync.Mutex
	seen map[int64]bool
}

func newMemDedup() *memDedup { return &memDedup{seen: make(map[int64]bool)} }

func (d *memDedup) Seen(ctx context.Context, updateID int64) (bool, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.seen[updateID], nil
}

func (d *memDedup) MarkProcessed(ctx context.Context, updateID int64) (bool, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	first := !d.seen[updateID]
	d.seen[updateID] = true
	return first, nil
}

// --- OutboundQueue ---

type memQueue struct {
	mu   sync.Mutex
	msgs []*model.OutboundMessage
}

func (q *memQueue) Enqueue(msg *model.OutboundMessage) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.msgs = append(q.msgs, msg)
	return nil
}

// --- FloodLimiter ---

type memFlood struct {
	mu     sync.Mutex
	counts map[string]int
	limit  int
}

func newMemFlood(limit int) *memFlood {
	return &memFlood{counts: make(map[string]int), limit: limit}
}

func (f *memFlood) AllowCommand(ctx context.Context, userID int64, command string) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	key := fmt.Sprintf("%d:%s", userID, command)
	f.counts[key]++
	return f.counts[key] <= f.limit, nil
}

// --- Encryptor ---

// memCipher is a trivially reversible stand-in for the AES-GCM service.
type memCipher struct{}

func (memCipher) Encrypt(plaintext string) (string, error) {
	return "sealed:" + plaintext, nil
}

func (memCipher) Decrypt(ciphertext string) (string, error) {
	if !strings.HasPrefix(ciphertext, "sealed:") {
		return "", domain.ErrInvalidArgument
	}
	return strings.TrimPrefix(ciphertext, "sealed:"), nil
}

// --- Texts ---

// plainTexts formats like the English locale without loading files.
type plainTexts struct{}

func (plainTexts) T(key string, args ...interface{}) string {
	switch key {
	case "ask_name":
		return "What is your name?"
	case "unknown_command":
		return "Unknown command. Send /help for the list of commands."
	case "nice_to_meet":
		return "Nice to meet you, " + args[0].(string) + "!"
	case "search_empty":
		return fmt.Sprintf("No messages found for %s.", args...)
	case "search_header":
		return fmt.Sprintf("Found %d message(s) for %s:", args...)
	case "search_line":
		return fmt.Sprintf("• %s (%s)", args...)
	default:
		return key
	}
}
