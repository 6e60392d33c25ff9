package model

import (
	"crypto/rand"
	"time"

	"github.com/oklog/ulid/v2"

	"telegram-archive-bot/internal/domain"
)

// DeliveryStatus is the lifecycle of an outbound message.
type DeliveryStatus string

const (
	DeliveryPending DeliveryStatus = "pending"
	DeliverySent    DeliveryStatus = "sent"
	DeliveryFailed  DeliveryStatus = "failed"
)

// OutboundMessage is a response owned by the sender until it reaches a
// terminal status. IDs are ULIDs so lexicographic order is enqueue order.
type OutboundMessage struct {
	ID        string
	ChatID    int64
	Body      string
	ReplyToID int64
	Status    DeliveryStatus
	Attempts  int
	CreatedAt time.Time
	UpdatedAt time.Time
}

// NewOutboundMessage creates a pending message for a chat.
func NewOutboundMessage(chatID int64, body string) (*OutboundMessage, error) {
	if chatID == 0 || body == "" {
		return nil, domain.ErrInvalidArgument
	}
	now := time.Now()
	return &OutboundMessage{
		ID:        ulid.MustNew(ulid.Timestamp(now), rand.Reader).String(),
		ChatID:    chatID,
		Body:      body,
		Status:    DeliveryPending,
		CreatedAt: now,
		UpdatedAt: now,
	}, nil
}

// Terminal reports whether the message left the sender's ownership.
func (m *OutboundMessage) Terminal() bool {
	return m.Status == DeliverySent || m.Status == DeliveryFailed
}
