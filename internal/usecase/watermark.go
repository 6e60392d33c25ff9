package usecase

import "sync"

// Watermark tracks which update ids of the in-flight window have committed
// and exposes the highest id below which everything is durable. Chats commit
// concurrently and out of id order; the durable cursor must only ever cover
// a contiguous completed prefix, or a crash would skip uncommitted updates.
type Watermark struct {
	mu         sync.Mutex
	last       int64 // highest id with everything at or below it committed
	maxSeen    int64
	incomplete map[int64]struct{}
}

func NewWatermark(start int64) *Watermark {
	return &Watermark{last: start, incomplete: make(map[int64]struct{})}
}

// Track registers an id as in-flight. Ids at or below the current watermark
// are ignored; they are re-deliveries of already durable updates.
func (w *Watermark) Track(id int64) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if id <= w.last {
		return
	}
	if id > w.maxSeen {
		w.maxSeen = id
	}
	w.incomplete[id] = struct{}{}
}

// Peek answers "what would the watermark be if id were committed" without
// mutating anything. The commit transaction advances the durable cursor to
// this value; the in-memory state moves only after the commit succeeds.
func (w *Watermark) Peek(id int64) int64 {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.valueExcluding(id)
}

// Complete marks an id committed and returns the new watermark.
func (w *Watermark) Complete(id int64) int64 {
	w.mu.Lock()
	defer w.mu.Unlock()
	delete(w.incomplete, id)
	v := w.valueExcluding(0)
	if v > w.last {
		w.last = v
	}
	return w.last
}

// Value returns the current contiguous-completion watermark.
func (w *Watermark) Value() int64 {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.last
}

// valueExcluding computes the watermark treating skip as committed.
// Caller holds the lock. The window is one poll batch, so the scan is short.
func (w *Watermark) valueExcluding(skip int64) int64 {
	min := int64(0)
	for id := range w.incomplete {
		if id == skip {
			continue
		}
		if min == 0 || id < min {
			min = id
		}
	}
	if min == 0 {
		if w.maxSeen > w.last {
			return w.maxSeen
		}
		return w.last
	}
	if min-1 > w.last {
		return min - 1
	}
	return w.last
}
