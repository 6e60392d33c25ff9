//go:build integration

package postgres

import (
	"context"
	"testing"
)

func TestCursorRepo_Integration(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test in short mode.")
	}

	repo := NewPostgresCursorRepo(testPool)
	ctx := context.Background()

	t.Run("should start at zero and advance", func(t *testing.T) {
		cleanup(t)

		c, err := repo.Load(ctx, nil)
		if err != nil {
			t.Fatalf("Load failed: %v", err)
		}
		if c.LastUpdateID != 0 {
			t.Errorf("expected fresh watermark 0, got %d", c.LastUpdateID)
		}
		if c.NextOffset() != 1 {
			t.Errorf("expected next offset 1, got %d", c.NextOffset())
		}

		if err := repo.Advance(ctx, nil, 42); err != nil {
			t.Fatalf("Advance failed: %v", err)
		}
		c, err = repo.Load(ctx, nil)
		if err != nil {
			t.Fatalf("Load after advance failed: %v", err)
		}
		if c.LastUpdateID != 42 {
			t.Errorf("expected watermark 42, got %d", c.LastUpdateID)
		}
	})

	t.Run("should never move backwards", func(t *testing.T) {
		cleanup(t)

		if err := repo.Advance(ctx, nil, 100); err != nil {
			t.Fatalf("Advance failed: %v", err)
		}
		// a commit carrying an older view of the completion prefix
		if err := repo.Advance(ctx, nil, 55); err != nil {
			t.Fatalf("Advance (older) failed: %v", err)
		}
		c, err := repo.Load(ctx, nil)
		if err != nil {
			t.Fatalf("Load failed: %v", err)
		}
		if c.LastUpdateID != 100 {
			t.Errorf("watermark regressed: expected 100, got %d", c.LastUpdateID)
		}
	})
}
