package sender

import (
	"context"
	"sync/atomic"
	"time"
)

// tokenBucket enforces a global send rate with a small burst allowance.
// State is one atomic word: the earliest permitted time of the NEXT send,
// in nanoseconds. Reserving a slot is a CAS; waiting happens outside the
// CAS loop so contending senders never spin while blocked.
type tokenBucket struct {
	next     atomic.Int64
	interval time.Duration
	burst    int64
}

func newTokenBucket(ratePerSecond int, burst int) *tokenBucket {
	if ratePerSecond <= 0 {
		ratePerSecond = 30
	}
	if burst <= 0 {
		burst = 1
	}
	return &tokenBucket{
		interval: time.Second / time.Duration(ratePerSecond),
		burst:    int64(burst),
	}
}

// Take reserves the next send slot and blocks until it opens.
func (b *tokenBucket) Take(ctx context.Context) error {
	interval := int64(b.interval)
	for {
		now := time.Now().UnixNano()
		cur := b.next.Load()
		// idle periods refill the burst window; never schedule further back
		// than burst slots before now
		base := cur
		if floor := now - (b.burst-1)*interval; base < floor {
			base = floor
		}
		if !b.next.CompareAndSwap(cur, base+interval) {
			continue
		}
		wait := time.Duration(base - now)
		if wait <= 0 {
			return nil
		}
		select {
		case <-time.After(wait):
			return nil
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}
