package model

import (
	"time"

	"telegram-archive-bot/internal/domain"
)

// ArchivedMessage is a group-chat message preserved in the archive. The
// original text is immutable; edits append MessageVersion rows and deletions
// only flip the flag, so history is never lost.
type ArchivedMessage struct {
	ID        int64
	ChatID    int64
	UserTgID  int64
	Text      string
	Encrypted bool
	CreatedAt time.Time
	IsDeleted bool
	IsEdited  bool
}

// MessageVersion is one edited revision of an archived message.
type MessageVersion struct {
	ID        int64
	MessageID int64
	Text      string
	Encrypted bool
	EditedAt  time.Time
}

// SearchHit is a search result joined back to its author. Encrypted marks
// Text as ciphertext the caller still has to decrypt.
type SearchHit struct {
	Text      string
	Encrypted bool
	Author    string // username, or the numeric id when the user has none
}

// NewArchivedMessage validates a message before it enters the archive.
func NewArchivedMessage(chatID, userTgID int64, text string) (*ArchivedMessage, error) {
	if chatID == 0 || userTgID == 0 || text == "" {
		return nil, domain.ErrInvalidArgument
	}
	return &ArchivedMessage{
		ChatID:    chatID,
		UserTgID:  userTgID,
		Text:      text,
		CreatedAt: time.Now(),
	}, nil
}
