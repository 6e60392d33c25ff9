package model

import (
	"time"

	"github.com/google/uuid"

	"telegram-archive-bot/internal/domain"
)

// User is a Telegram user seen by the archive. Created lazily from the first
// archived message; username may be empty (Telegram does not require one).
type User struct {
	ID           string
	TelegramID   int64
	Username     string
	RegisteredAt time.Time
	LastActiveAt time.Time
	IsAdmin      bool
}

func NewUser(id string, tgID int64, username string) (*User, error) {
	if id == "" {
		id = uuid.NewString()
	}
	if tgID <= 0 {
		return nil, domain.ErrInvalidArgument
	}
	now := time.Now()
	return &User{
		ID:           id,
		TelegramID:   tgID,
		Username:     username,
		RegisteredAt: now,
		LastActiveAt: now,
	}, nil
}

func (u *User) Touch() { u.LastActiveAt = time.Now() }
