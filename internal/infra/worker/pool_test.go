package worker

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"telegram-archive-bot/internal/domain"
)

func TestPool_SerialPerKey(t *testing.T) {
	p := NewPool(4)
	ctx := context.Background()
	p.Start(ctx)

	var mu sync.Mutex
	order := make(map[int64][]int)

	const perKey = 20
	var wg sync.WaitGroup
	for key := int64(1); key <= 3; key++ {
		for i := 0; i < perKey; i++ {
			key, i := key, i
			wg.Add(1)
			err := p.Submit(ctx, key, func(ctx context.Context) error {
				defer wg.Done()
				// without per-key serialization this sleep interleaves seq
				time.Sleep(time.Millisecond)
				mu.Lock()
				order[key] = append(order[key], i)
				mu.Unlock()
				return nil
			})
			if err != nil {
				t.Fatalf("Submit failed: %v", err)
			}
		}
	}
	wg.Wait()
	p.Stop()

	for key, seq := range order {
		if len(seq) != perKey {
			t.Fatalf("key %d: expected %d tasks, got %d", key, perKey, len(seq))
		}
		for i, v := range seq {
			if v != i {
				t.Errorf("key %d: task %d ran at position %d", key, v, i)
				break
			}
		}
	}
}

func TestPool_StopDrainsQueuedTasks(t *testing.T) {
	p := NewPool(2)
	ctx := context.Background()
	p.Start(ctx)

	var mu sync.Mutex
	done := 0
	for i := 0; i < 10; i++ {
		if err := p.Submit(ctx, int64(i), func(ctx context.Context) error {
			time.Sleep(time.Millisecond)
			mu.Lock()
			done++
			mu.Unlock()
			return nil
		}); err != nil {
			t.Fatalf("Submit failed: %v", err)
		}
	}
	p.Stop()

	if done != 10 {
		t.Errorf("expected all 10 tasks drained before Stop returned, got %d", done)
	}
}

func TestPool_SubmitAfterStop(t *testing.T) {
	p := NewPool(1)
	p.Start(context.Background())
	p.Stop()

	err := p.Submit(context.Background(), 1, func(ctx context.Context) error { return nil })
	if !errors.Is(err, domain.ErrQueueClosed) {
		t.Fatalf("Submit after Stop = %v, want ErrQueueClosed", err)
	}
}
