package application

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"telegram-archive-bot/internal/config"
	"telegram-archive-bot/internal/domain"
	"telegram-archive-bot/internal/domain/model"
	"telegram-archive-bot/internal/domain/ports/adapter"
	"telegram-archive-bot/internal/infra/redis"
	"telegram-archive-bot/internal/infra/worker"
	"telegram-archive-bot/internal/usecase"
)

const (
	leaderLockKey = "engine:leader"
	leaderLockTTL = 30 * time.Second
)

// Engine is the process supervisor for the update pipeline: it polls the
// source at the durable cursor, fans a batch out per chat, waits for the
// batch to finish, and repeats. One batch is in flight at a time; within a
// batch, chats run concurrently and each chat runs serially.
type Engine struct {
	uc     usecase.EngineUseCase
	source adapter.UpdateSource
	pool   *worker.Pool
	locker redis.Locker // optional; fences a second poller instance

	pollTimeout time.Duration
	batchSize   int
	gracePeriod time.Duration

	log *zerolog.Logger
}

func NewEngine(uc usecase.EngineUseCase, source adapter.UpdateSource, pool *worker.Pool, locker redis.Locker, botCfg *config.BotConfig, engCfg *config.EngineConfig, logger *zerolog.Logger) *Engine {
	return &Engine{
		uc:          uc,
		source:      source,
		pool:        pool,
		locker:      locker,
		pollTimeout: time.Duration(botCfg.PollTimeoutSeconds) * time.Second,
		batchSize:   botCfg.PollBatchSize,
		gracePeriod: engCfg.GracePeriod,
		log:         logger,
	}
}

// Run blocks until ctx is canceled or a fatal error occurs. Auth failures are
// fatal: retrying with rejected credentials cannot succeed.
func (e *Engine) Run(ctx context.Context) error {
	token, err := e.acquireLeadership(ctx)
	if err != nil {
		return err
	}
	if token != "" {
		defer e.releaseLeadership(token)
		go e.refreshLeadership(ctx, token)
	}

	e.pool.Start(ctx)
	defer e.drain()

	backoff := time.Second
	for {
		select {
		case <-ctx.Done():
			e.log.Info().Msg("engine: shutdown requested")
			return nil
		default:
		}

		cur, err := e.uc.StartCursor(ctx)
		if err != nil {
			e.log.Error().Err(err).Msg("engine: cursor load failed")
			if !e.sleep(ctx, backoff) {
				return nil
			}
			continue
		}

		batch, err := e.source.Poll(ctx, cur.NextOffset(), e.batchSize, e.pollTimeout)
		if err != nil {
			if errors.Is(err, domain.ErrAuth) {
				e.log.Error().Err(err).Msg("engine: source rejected credentials")
				return err
			}
			if errors.Is(err, context.Canceled) {
				return nil
			}
			e.log.Warn().Err(err).Dur("backoff", backoff).Msg("engine: transient poll failure")
			if !e.sleep(ctx, backoff) {
				return nil
			}
			if backoff < 30*time.Second {
				backoff *= 2
			}
			continue
		}
		backoff = time.Second

		if len(batch) == 0 {
			continue
		}
		e.processBatch(ctx, batch)
	}
}

// processBatch fans the batch out by chat and waits for every update to
// settle before the next poll. The barrier keeps the window the watermark
// tracks bounded to one batch. When an update fails, the rest of its chat's
// lane is held back for this batch: committing a later update first would
// raise the conversation's last_update_id past the failed one, and its
// redelivery would then be absorbed as a duplicate instead of retried.
func (e *Engine) processBatch(ctx context.Context, batch []*model.Update) {
	e.uc.TrackBatch(batch)
	e.log.Debug().Int("size", len(batch)).Int64("first", batch[0].ID).Int64("last", batch[len(batch)-1].ID).Msg("engine: batch accepted")

	var wg sync.WaitGroup
	var mu sync.Mutex
	failedChats := make(map[int64]struct{})
	for _, upd := range batch {
		upd := upd
		wg.Add(1)
		err := e.pool.Submit(ctx, upd.ChatID, func(taskCtx context.Context) error {
			defer wg.Done()
			mu.Lock()
			_, held := failedChats[upd.ChatID]
			mu.Unlock()
			if held {
				e.log.Warn().Int64("update_id", upd.ID).Int64("chat_id", upd.ChatID).Msg("engine: held behind a failed update, will be re-polled")
				return nil
			}
			if err := e.uc.ProcessUpdate(taskCtx, upd); err != nil {
				mu.Lock()
				failedChats[upd.ChatID] = struct{}{}
				mu.Unlock()
				e.log.Error().Err(err).Int64("update_id", upd.ID).Msg("engine: update failed, will be re-polled")
			}
			return nil
		})
		if err != nil {
			wg.Done()
			mu.Lock()
			failedChats[upd.ChatID] = struct{}{}
			mu.Unlock()
			e.log.Error().Err(err).Int64("update_id", upd.ID).Msg("engine: submit failed")
		}
	}
	wg.Wait()
}

// drain gives in-flight work the grace period, then gives up on it. Anything
// not committed in time is re-polled after restart; idempotency absorbs it.
func (e *Engine) drain() {
	done := make(chan struct{})
	go func() {
		e.pool.Stop()
		close(done)
	}()
	select {
	case <-done:
		e.log.Info().Msg("engine: drained cleanly")
	case <-time.After(e.gracePeriod):
		e.log.Warn().Dur("grace_period", e.gracePeriod).Msg("engine: drain timed out, abandoning in-flight work")
	}
}

// acquireLeadership blocks until this instance holds the poll lock. With no
// locker configured (single-instance deployments) it returns immediately.
func (e *Engine) acquireLeadership(ctx context.Context) (string, error) {
	if e.locker == nil {
		return "", nil
	}
	for {
		token, err := e.locker.TryLock(ctx, leaderLockKey, leaderLockTTL)
		if err == nil {
			e.log.Info().Msg("engine: leadership acquired")
			return token, nil
		}
		if !errors.Is(err, domain.ErrAlreadyExists) {
			return "", err
		}
		e.log.Info().Msg("engine: another instance holds the poll lock, standing by")
		if !e.sleep(ctx, leaderLockTTL/3) {
			return "", ctx.Err()
		}
	}
}

func (e *Engine) refreshLeadership(ctx context.Context, token string) {
	ticker := time.NewTicker(leaderLockTTL / 3)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := e.locker.Refresh(ctx, leaderLockKey, token, leaderLockTTL); err != nil {
				e.log.Error().Err(err).Msg("engine: leadership refresh failed")
			}
		}
	}
}

func (e *Engine) releaseLeadership(token string) {
	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()
	if err := e.locker.Unlock(ctx, leaderLockKey, token); err != nil {
		e.log.Warn().Err(err).Msg("engine: leadership release failed")
	}
}

func (e *Engine) sleep(ctx context.Context, d time.Duration) bool {
	select {
	case <-time.After(d):
		return true
	case <-ctx.Done():
		return false
	}
}
