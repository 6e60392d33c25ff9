package model

// Cursor is the durable watermark of the highest update id known to be fully
// processed, including every id below it. Mutated only through commits; it
// never regresses.
type Cursor struct {
	LastUpdateID int64
}

// NextOffset is the polling offset that resumes just after the watermark.
func (c Cursor) NextOffset() int64 { return c.LastUpdateID + 1 }
