//go:build integration

package postgres

import (
	"context"
	"errors"
	"testing"
	"time"

	"telegram-archive-bot/internal/domain"
	"telegram-archive-bot/internal/domain/model"
)

func TestUserRepo_Integration(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test in short mode.")
	}

	repo := NewPostgresUserRepo(testPool)
	ctx := context.Background()

	t.Run("should upsert by telegram id", func(t *testing.T) {
		cleanup(t)

		u, err := model.NewUser("", 123456789, "integration_user")
		if err != nil {
			t.Fatalf("model.NewUser() failed: %v", err)
		}
		if err := repo.Save(ctx, nil, u); err != nil {
			t.Fatalf("Failed to save new user: %v", err)
		}

		found, err := repo.FindByTelegramID(ctx, nil, 123456789)
		if err != nil {
			t.Fatalf("Failed to find user by telegram ID: %v", err)
		}
		if found.Username != "integration_user" {
			t.Errorf("expected username 'integration_user', got %q", found.Username)
		}

		found.Username = "renamed_user"
		found.IsAdmin = true
		if err := repo.Save(ctx, nil, found); err != nil {
			t.Fatalf("Failed to update user: %v", err)
		}

		updated, err := repo.FindByTelegramID(ctx, nil, 123456789)
		if err != nil {
			t.Fatalf("Failed to re-find user: %v", err)
		}
		if updated.Username != "renamed_user" || !updated.IsAdmin {
			t.Errorf("upsert did not apply: username=%q is_admin=%v", updated.Username, updated.IsAdmin)
		}
	})

	t.Run("should return ErrNotFound for unknown telegram id", func(t *testing.T) {
		cleanup(t)

		_, err := repo.FindByTelegramID(ctx, nil, 987)
		if !errors.Is(err, domain.ErrNotFound) {
			t.Fatalf("expected ErrNotFound, got %v", err)
		}
	})

	t.Run("should correctly count users", func(t *testing.T) {
		cleanup(t)

		active, _ := model.NewUser("", 111, "active")
		idle, _ := model.NewUser("", 222, "idle")
		idle.LastActiveAt = time.Now().Add(-48 * time.Hour)
		if err := repo.Save(ctx, nil, active); err != nil {
			t.Fatalf("Save active failed: %v", err)
		}
		if err := repo.Save(ctx, nil, idle); err != nil {
			t.Fatalf("Save idle failed: %v", err)
		}

		total, err := repo.CountUsers(ctx, nil)
		if err != nil {
			t.Fatalf("CountUsers failed: %v", err)
		}
		if total != 2 {
			t.Errorf("expected total 2, got %d", total)
		}

		inactive, err := repo.CountInactiveUsers(ctx, nil, time.Now().Add(-24*time.Hour))
		if err != nil {
			t.Fatalf("CountInactiveUsers failed: %v", err)
		}
		if inactive != 1 {
			t.Errorf("expected 1 inactive, got %d", inactive)
		}
	})
}
