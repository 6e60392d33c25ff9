package dispatch

import (
	"time"

	"telegram-archive-bot/internal/domain/model"
)

// Reply is an outbound message requested by a handler. ChatID 0 means the
// chat the update came from.
type Reply struct {
	ChatID    int64
	Body      string
	ReplyToID int64
}

// ArchiveOp is a requested archive mutation. Handlers describe mutations,
// the engine executes them inside the commit transaction.
type ArchiveOp interface{ archiveOp() }

// SaveMessage archives a new group message.
type SaveMessage struct {
	ChatID   int64
	UserTgID int64
	Text     string
}

// RecordEdit appends an edit revision to the author's latest archived message.
type RecordEdit struct {
	ChatID   int64
	UserTgID int64
	Text     string
	EditedAt time.Time
}

// DeleteLatest marks the author's latest archived message as deleted.
type DeleteLatest struct {
	ChatID   int64
	UserTgID int64
}

func (SaveMessage) archiveOp()  {}
func (RecordEdit) archiveOp()   {}
func (DeleteLatest) archiveOp() {}

// SearchOp asks the engine to run a tag search after dispatch and deliver the
// hits to ReplyChatID. Keeping the query out of the handler keeps dispatch
// free of I/O.
type SearchOp struct {
	ChatID      int64
	Tag         string
	Limit       int
	ReplyChatID int64
}

// AdminNotice asks the engine to message every administrator of ChatID.
type AdminNotice struct {
	ChatID int64
	Text   string
}

// Outcome is the complete effect of one dispatched update. An empty Outcome
// is valid: the update is consumed and only the cursor moves.
type Outcome struct {
	NextState model.StateTag    // empty = keep current state
	Patch     map[string]string // context keys to set; empty-value keys are removed
	Replies   []Reply
	Archive   []ArchiveOp
	Search    *SearchOp
	Notify    *AdminNotice
}

// Reply appends an outbound message addressed to the update's own chat.
func (o *Outcome) Reply(body string) *Outcome {
	o.Replies = append(o.Replies, Reply{Body: body})
	return o
}

// Set records a context patch entry.
func (o *Outcome) Set(key, value string) *Outcome {
	if o.Patch == nil {
		o.Patch = make(map[string]string, 1)
	}
	o.Patch[key] = value
	return o
}
