//go:build integration

package postgres

import (
	"context"
	"errors"
	"testing"

	"telegram-archive-bot/internal/domain"
	"telegram-archive-bot/internal/domain/model"
)

func TestConversationRepo_Integration(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test in short mode.")
	}

	repo := NewPostgresConversationRepo(testPool)
	ctx := context.Background()

	t.Run("should create, read and update a conversation", func(t *testing.T) {
		cleanup(t)

		key := model.ConversationKey(1001)
		conv, err := model.NewConversation(key)
		if err != nil {
			t.Fatalf("model.NewConversation() failed: %v", err)
		}
		conv.State = model.StateAwaitingName
		conv.LastUpdateID = 7

		if err := repo.Save(ctx, nil, conv, 0); err != nil {
			t.Fatalf("Save (create) failed: %v", err)
		}
		if conv.Version != 1 {
			t.Errorf("expected version 1 after create, got %d", conv.Version)
		}

		found, err := repo.Find(ctx, nil, key)
		if err != nil {
			t.Fatalf("Find failed: %v", err)
		}
		if found.State != model.StateAwaitingName {
			t.Errorf("expected state %q, got %q", model.StateAwaitingName, found.State)
		}
		if found.LastUpdateID != 7 {
			t.Errorf("expected last_update_id 7, got %d", found.LastUpdateID)
		}

		found.State = model.StateIdle
		found.Context["name"] = "Alice"
		found.LastUpdateID = 8
		if err := repo.Save(ctx, nil, found, found.Version); err != nil {
			t.Fatalf("Save (update) failed: %v", err)
		}

		again, err := repo.Find(ctx, nil, key)
		if err != nil {
			t.Fatalf("Find after update failed: %v", err)
		}
		if again.Version != 2 {
			t.Errorf("expected version 2, got %d", again.Version)
		}
		if again.Context["name"] != "Alice" {
			t.Errorf("expected context name Alice, got %q", again.Context["name"])
		}
	})

	t.Run("should return ErrNotFound for a missing key", func(t *testing.T) {
		cleanup(t)

		_, err := repo.Find(ctx, nil, model.ConversationKey(99))
		if !errors.Is(err, domain.ErrNotFound) {
			t.Fatalf("expected ErrNotFound, got %v", err)
		}
	})

	t.Run("should reject a stale version", func(t *testing.T) {
		cleanup(t)

		key := model.ConversationKey(2002)
		conv, _ := model.NewConversation(key)
		if err := repo.Save(ctx, nil, conv, 0); err != nil {
			t.Fatalf("Save (create) failed: %v", err)
		}

		// a second writer commits first
		fresh, err := repo.Find(ctx, nil, key)
		if err != nil {
			t.Fatalf("Find failed: %v", err)
		}
		if err := repo.Save(ctx, nil, fresh, fresh.Version); err != nil {
			t.Fatalf("Save (winner) failed: %v", err)
		}

		// the loser still holds version 1
		stale, _ := model.NewConversation(key)
		stale.Version = 1
		if err := repo.Save(ctx, nil, stale, 1); !errors.Is(err, domain.ErrVersionConflict) {
			t.Fatalf("expected ErrVersionConflict, got %v", err)
		}
	})

	t.Run("should reject a duplicate create", func(t *testing.T) {
		cleanup(t)

		key := model.ConversationKey(3003)
		first, _ := model.NewConversation(key)
		if err := repo.Save(ctx, nil, first, 0); err != nil {
			t.Fatalf("Save (create) failed: %v", err)
		}
		second, _ := model.NewConversation(key)
		err := repo.Save(ctx, nil, second, 0)
		if !errors.Is(err, domain.ErrVersionConflict) {
			t.Fatalf("expected ErrVersionConflict on duplicate create, got %v", err)
		}
	})
}
