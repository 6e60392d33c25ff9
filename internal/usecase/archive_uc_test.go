package usecase

import (
	"context"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"telegram-archive-bot/internal/domain/model"
)

func TestArchive_Stats(t *testing.T) {
	store := newMemStore()
	logger := zerolog.Nop()
	uc := NewArchiveUseCase(messageRepoView{store}, userRepoView{store}, store, nil, &logger)
	ctx := context.Background()

	u1, _ := model.NewUser("", 1, "a")
	u2, _ := model.NewUser("", 2, "b")
	u2.LastActiveAt = time.Now().AddDate(0, -2, 0)
	_ = store.SaveUser(ctx, nil, u1)
	_ = store.SaveUser(ctx, nil, u2)

	msg, _ := model.NewArchivedMessage(-100, 1, "hello")
	_, _ = store.InsertMessage(ctx, nil, msg)

	sent, _ := model.NewOutboundMessage(1, "done")
	_ = store.Insert(ctx, nil, sent)
	_ = store.MarkSent(ctx, nil, sent.ID, 1)
	pending, _ := model.NewOutboundMessage(1, "waiting")
	_ = store.Insert(ctx, nil, pending)
	failed, _ := model.NewOutboundMessage(1, "dead")
	_ = store.Insert(ctx, nil, failed)
	_ = store.MarkFailed(ctx, nil, failed.ID, 3)

	stats, err := uc.Stats(ctx)
	if err != nil {
		t.Fatal(err)
	}
	want := ArchiveStats{Users: 2, InactiveUsers: 1, Messages: 1, PendingOutbound: 1, FailedOutbound: 1}
	if *stats != want {
		t.Errorf("Stats = %+v, want %+v", *stats, want)
	}
}

func TestArchive_SearchClampsLimit(t *testing.T) {
	store := newMemStore()
	logger := zerolog.Nop()
	uc := NewArchiveUseCase(messageRepoView{store}, userRepoView{store}, store, nil, &logger)
	ctx := context.Background()

	for i := 0; i < 30; i++ {
		msg, _ := model.NewArchivedMessage(-100, 1, "tagged #x")
		_, _ = store.InsertMessage(ctx, nil, msg)
	}

	hits, err := uc.Search(ctx, -100, "#x", 0)
	if err != nil {
		t.Fatal(err)
	}
	if len(hits) != 20 {
		t.Errorf("default limit returned %d hits, want 20", len(hits))
	}
}

func TestArchive_SearchDecryptsWhenConfigured(t *testing.T) {
	store := newMemStore()
	logger := zerolog.Nop()
	uc := NewArchiveUseCase(messageRepoView{store}, userRepoView{store}, store, memCipher{}, &logger)
	ctx := context.Background()

	hit, _ := model.NewArchivedMessage(-100, 1, "sealed:shipping #launch today")
	hit.Encrypted = true
	_, _ = store.InsertMessage(ctx, nil, hit)
	miss, _ := model.NewArchivedMessage(-100, 1, "sealed:nothing to see")
	miss.Encrypted = true
	_, _ = store.InsertMessage(ctx, nil, miss)

	hits, err := uc.Search(ctx, -100, "#launch", 10)
	if err != nil {
		t.Fatal(err)
	}
	if len(hits) != 1 {
		t.Fatalf("hits = %d, want 1", len(hits))
	}
	if hits[0].Text != "shipping #launch today" {
		t.Errorf("hit text = %q, want the decrypted message", hits[0].Text)
	}
	if hits[0].Encrypted {
		t.Error("returned hit still flagged encrypted")
	}
}
