package telegram

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"telegram-archive-bot/internal/domain/model"
	"telegram-archive-bot/internal/domain/ports/adapter"
	"telegram-archive-bot/internal/infra/logging"
)

var _ adapter.UpdateSource = (*WebhookSource)(nil)

const secretTokenHeader = "X-Telegram-Bot-Api-Secret-Token"

// WebhookSource adapts push delivery to the engine's pull loop: the HTTP
// handler buffers normalized updates and Poll drains the buffer. Returning
// 500 on a full buffer makes the platform redeliver, so nothing is lost —
// the engine's idempotency handles the resulting duplicates.
type WebhookSource struct {
	bot    *RealBotAdapter
	secret string
	buf    chan *model.Update
}

func NewWebhookSource(bot *RealBotAdapter, secret string, bufSize int) *WebhookSource {
	if bufSize <= 0 {
		bufSize = 256
	}
	return &WebhookSource{
		bot:    bot,
		secret: secret,
		buf:    make(chan *model.Update, bufSize),
	}
}

// Handler returns the endpoint the platform pushes updates to.
func (w *WebhookSource) Handler() http.HandlerFunc {
	return func(rw http.ResponseWriter, req *http.Request) {
		log := logging.With(req.Context(), &logging.Global)
		if w.secret != "" && req.Header.Get(secretTokenHeader) != w.secret {
			rw.WriteHeader(http.StatusUnauthorized)
			return
		}
		var ru tgbotapi.Update
		if err := json.NewDecoder(req.Body).Decode(&ru); err != nil {
			log.Warn().Err(err).Msg("webhook: malformed update payload")
			rw.WriteHeader(http.StatusBadRequest)
			return
		}
		upd, ok := w.bot.normalize(req.Context(), ru)
		if !ok {
			rw.WriteHeader(http.StatusOK)
			return
		}
		select {
		case w.buf <- upd:
			rw.WriteHeader(http.StatusOK)
		default:
			log.Warn().Int64("update_id", upd.ID).Msg("webhook: buffer full, asking for redelivery")
			rw.WriteHeader(http.StatusInternalServerError)
		}
	}
}

// Poll drains buffered updates: it blocks for the first one up to timeout,
// then collects whatever else is ready, capped at limit. Updates below the
// offset were already committed and are dropped here.
func (w *WebhookSource) Poll(ctx context.Context, offset int64, limit int, timeout time.Duration) ([]*model.Update, error) {
	if limit <= 0 {
		limit = 100
	}
	var out []*model.Update

	timer := time.NewTimer(timeout)
	defer timer.Stop()

	select {
	case upd := <-w.buf:
		if upd.ID >= offset {
			out = append(out, upd)
		}
	case <-timer.C:
		return nil, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}

	for len(out) < limit {
		select {
		case upd := <-w.buf:
			if upd.ID >= offset {
				out = append(out, upd)
			}
		default:
			return out, nil
		}
	}
	return out, nil
}
