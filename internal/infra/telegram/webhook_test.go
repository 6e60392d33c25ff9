package telegram

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"
)

func testWebhook(secret string, bufSize int) *WebhookSource {
	bot := &RealBotAdapter{selfID: 999, adminCache: map[int64]adminCacheEntry{}}
	return NewWebhookSource(bot, secret, bufSize)
}

const sampleUpdate = `{
	"update_id": 101,
	"message": {
		"message_id": 1,
		"from": {"id": 42, "username": "alice"},
		"chat": {"id": 42, "type": "private"},
		"text": "/start"
	}
}`

func TestWebhookSource_Handler(t *testing.T) {
	t.Run("should reject a wrong secret token", func(t *testing.T) {
		w := testWebhook("s3cret", 8)
		req := httptest.NewRequest(http.MethodPost, "/webhook", strings.NewReader(sampleUpdate))
		req.Header.Set(secretTokenHeader, "wrong")
		rec := httptest.NewRecorder()

		w.Handler()(rec, req)
		if rec.Code != http.StatusUnauthorized {
			t.Errorf("expected 401, got %d", rec.Code)
		}
	})

	t.Run("should reject a malformed payload", func(t *testing.T) {
		w := testWebhook("", 8)
		req := httptest.NewRequest(http.MethodPost, "/webhook", strings.NewReader("{not json"))
		rec := httptest.NewRecorder()

		w.Handler()(rec, req)
		if rec.Code != http.StatusBadRequest {
			t.Errorf("expected 400, got %d", rec.Code)
		}
	})

	t.Run("should buffer a valid update for Poll", func(t *testing.T) {
		w := testWebhook("s3cret", 8)
		req := httptest.NewRequest(http.MethodPost, "/webhook", strings.NewReader(sampleUpdate))
		req.Header.Set(secretTokenHeader, "s3cret")
		rec := httptest.NewRecorder()

		w.Handler()(rec, req)
		if rec.Code != http.StatusOK {
			t.Fatalf("expected 200, got %d", rec.Code)
		}

		got, err := w.Poll(context.Background(), 1, 10, 100*time.Millisecond)
		if err != nil {
			t.Fatalf("Poll failed: %v", err)
		}
		if len(got) != 1 {
			t.Fatalf("expected 1 update, got %d", len(got))
		}
		if got[0].ID != 101 || got[0].Command != "start" {
			t.Errorf("unexpected normalized update: %+v", got[0])
		}
	})

	t.Run("should ask for redelivery when the buffer is full", func(t *testing.T) {
		w := testWebhook("", 1)
		for i, want := range []int{http.StatusOK, http.StatusInternalServerError} {
			req := httptest.NewRequest(http.MethodPost, "/webhook", strings.NewReader(sampleUpdate))
			rec := httptest.NewRecorder()
			w.Handler()(rec, req)
			if rec.Code != want {
				t.Errorf("request %d: expected %d, got %d", i, want, rec.Code)
			}
		}
	})
}

func TestWebhookSource_Poll(t *testing.T) {
	t.Run("should drop updates below the offset", func(t *testing.T) {
		w := testWebhook("", 8)
		for _, body := range []string{
			strings.Replace(sampleUpdate, "101", "90", 1),
			sampleUpdate,
		} {
			rec := httptest.NewRecorder()
			w.Handler()(rec, httptest.NewRequest(http.MethodPost, "/webhook", strings.NewReader(body)))
		}

		got, err := w.Poll(context.Background(), 100, 10, 100*time.Millisecond)
		if err != nil {
			t.Fatalf("Poll failed: %v", err)
		}
		if len(got) != 1 || got[0].ID != 101 {
			t.Fatalf("expected only update 101, got %d updates", len(got))
		}
	})

	t.Run("should return empty after the timeout", func(t *testing.T) {
		w := testWebhook("", 8)
		start := time.Now()
		got, err := w.Poll(context.Background(), 1, 10, 50*time.Millisecond)
		if err != nil {
			t.Fatalf("Poll failed: %v", err)
		}
		if len(got) != 0 {
			t.Errorf("expected no updates, got %d", len(got))
		}
		if time.Since(start) < 50*time.Millisecond {
			t.Error("Poll returned before the timeout elapsed")
		}
	})
}
