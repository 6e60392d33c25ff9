package model

import (
	"strings"
	"time"

	"telegram-archive-bot/internal/domain"
)

// UpdateKind classifies a normalized inbound platform event.
type UpdateKind string

const (
	UpdateMessage    UpdateKind = "message"
	UpdateEdited     UpdateKind = "edited_message"
	UpdateCommand    UpdateKind = "command"
	UpdateCallback   UpdateKind = "callback"
	UpdateChatMember UpdateKind = "chat_member"
)

// Update is one inbound event from the messaging platform, normalized away from
// the transport library's types. It is immutable once built; only the engine's
// cursor remembers it after processing.
type Update struct {
	ID         int64
	Kind       UpdateKind
	ChatID     int64
	UserID     int64
	Username   string
	Text       string
	Command    string // without leading slash, empty unless Kind == UpdateCommand
	Args       string // raw argument string after the command token
	ReplyToID  int64  // platform message id this update replies to, 0 if none
	EditedAt   time.Time
	Member     *MemberChange
	Private    bool
	FromBot    bool
	FromAdmin  bool
	ReceivedAt time.Time
}

// MemberChange carries a chat_member status transition.
type MemberChange struct {
	ChatTitle   string
	MemberID    int64
	MemberName  string
	MemberIsBot bool
	WasMember   bool
	IsMember    bool
}

// NewUpdate validates the minimal identity every update must carry.
func NewUpdate(id, chatID, userID int64, kind UpdateKind) (*Update, error) {
	if id <= 0 || chatID == 0 {
		return nil, domain.ErrInvalidArgument
	}
	return &Update{
		ID:         id,
		Kind:       kind,
		ChatID:     chatID,
		UserID:     userID,
		ReceivedAt: time.Now(),
	}, nil
}

// ParseCommand splits "/cmd@bot arg..." into its token and argument string.
// Returns ok=false when text is not a command.
func ParseCommand(text string) (cmd, args string, ok bool) {
	if !strings.HasPrefix(text, "/") {
		return "", "", false
	}
	head, rest, _ := strings.Cut(text[1:], " ")
	if head == "" {
		return "", "", false
	}
	if at := strings.IndexByte(head, '@'); at >= 0 {
		head = head[:at]
	}
	return head, strings.TrimSpace(rest), true
}

// Joined reports a transition from non-member to member.
func (m *MemberChange) Joined() bool { return m != nil && !m.WasMember && m.IsMember }

// Left reports a transition from member to non-member.
func (m *MemberChange) Left() bool { return m != nil && m.WasMember && !m.IsMember }
