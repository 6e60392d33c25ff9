package model

import (
	"fmt"
	"time"

	"telegram-archive-bot/internal/domain"
)

// StateTag identifies a step of the conversation state machine. The set of
// valid tags is declared by the dispatcher's routing table and validated at
// startup; the store treats the tag as opaque.
type StateTag string

const (
	// StateIdle is the rest state a conversation returns to after a flow ends.
	StateIdle StateTag = "idle"
	// StateAwaitingName waits for the user's name during onboarding.
	StateAwaitingName StateTag = "awaiting_name"
)

// Conversation is the durable per-chat state machine instance.
type Conversation struct {
	Key          string
	State        StateTag
	Context      map[string]string
	Version      int64
	LastUpdateID int64
	UpdatedAt    time.Time
}

// Snapshot is a versioned read of a conversation handed to pure handlers.
// Handlers must not mutate it; changes travel back as a context patch.
type Snapshot struct {
	Key          string
	State        StateTag
	Context      map[string]string
	Version      int64
	LastUpdateID int64
}

// ConversationKey derives the storage key for a chat. Conversations are
// chat-scoped; private chats have chat id == user id on Telegram, so the chat
// id alone keys both group archiving and private flows.
func ConversationKey(chatID int64) string {
	return fmt.Sprintf("chat:%d", chatID)
}

// NewConversation creates the lazily-initialized idle conversation for a key.
func NewConversation(key string) (*Conversation, error) {
	if key == "" {
		return nil, domain.ErrInvalidArgument
	}
	return &Conversation{
		Key:       key,
		State:     StateIdle,
		Context:   map[string]string{},
		Version:   0,
		UpdatedAt: time.Now(),
	}, nil
}

// Snapshot copies the conversation into an immutable read for dispatch.
func (c *Conversation) Snapshot() *Snapshot {
	ctx := make(map[string]string, len(c.Context))
	for k, v := range c.Context {
		ctx[k] = v
	}
	return &Snapshot{
		Key:          c.Key,
		State:        c.State,
		Context:      ctx,
		Version:      c.Version,
		LastUpdateID: c.LastUpdateID,
	}
}

// EmptySnapshot is the snapshot dispatched for a chat with no stored
// conversation yet (version 0 signals "create on commit").
func EmptySnapshot(key string) *Snapshot {
	return &Snapshot{Key: key, State: StateIdle, Context: map[string]string{}}
}

// Get returns a context value, tolerating a nil map.
func (s *Snapshot) Get(key string) string {
	if s == nil || s.Context == nil {
		return ""
	}
	return s.Context[key]
}
