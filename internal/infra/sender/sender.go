package sender

import (
	"context"
	"errors"
	"time"

	"github.com/rs/zerolog"

	"telegram-archive-bot/internal/config"
	"telegram-archive-bot/internal/domain"
	"telegram-archive-bot/internal/domain/model"
	"telegram-archive-bot/internal/domain/ports/adapter"
	"telegram-archive-bot/internal/domain/ports/repository"
	"telegram-archive-bot/internal/infra/metrics"
)

// pending is one queued message with its retry schedule.
type pending struct {
	msg     *model.OutboundMessage
	readyAt time.Time
}

// Sender drains the durable outbox: per-chat FIFO queues served round-robin
// under a global rate limit. A message leaves the sender only in a terminal
// status; rows still pending at startup are re-adopted from the table, so a
// crash between commit and delivery loses nothing.
type Sender struct {
	outbox    repository.OutboxRepository
	transport adapter.MessageSender
	bucket    *tokenBucket

	intake   chan *model.OutboundMessage
	failures chan *model.OutboundMessage

	// dispatcher-goroutine state, no locking needed
	queues   map[int64][]*pending
	ring     []int64
	ringIdx  int
	inFlight map[string]struct{}

	maxAttempts       int
	baseBackoff       time.Duration
	reconcileInterval time.Duration

	log *zerolog.Logger
}

func NewSender(outbox repository.OutboxRepository, transport adapter.MessageSender, cfg *config.SenderConfig, logger *zerolog.Logger) *Sender {
	return &Sender{
		outbox:            outbox,
		transport:         transport,
		bucket:            newTokenBucket(cfg.RatePerSecond, 1),
		intake:            make(chan *model.OutboundMessage, cfg.QueueSize),
		failures:          make(chan *model.OutboundMessage, cfg.QueueSize),
		queues:            make(map[int64][]*pending),
		inFlight:          make(map[string]struct{}),
		maxAttempts:       cfg.MaxAttempts,
		baseBackoff:       cfg.BaseBackoff,
		reconcileInterval: cfg.ReconcileInterval,
		log:               logger,
	}
}

// Enqueue wakes the sender up for a freshly committed message. Non-blocking:
// a full intake returns ErrQueueFull and the reconciler re-adopts the row
// from the table, so the message is delayed, not lost.
func (s *Sender) Enqueue(msg *model.OutboundMessage) error {
	select {
	case s.intake <- msg:
		return nil
	default:
		return domain.ErrQueueFull
	}
}

// Run is the dispatch loop. It first re-adopts every pending row, then
// serves the queues until ctx is canceled.
func (s *Sender) Run(ctx context.Context) error {
	if err := s.recover(ctx); err != nil {
		return err
	}

	reconcile := time.NewTicker(s.reconcileInterval)
	defer reconcile.Stop()

	for {
		s.drainIntake()

		p, chatID := s.nextReady()
		if p == nil {
			if !s.waitForWork(ctx, reconcile.C) {
				return nil
			}
			continue
		}

		gateStart := time.Now()
		if err := s.bucket.Take(ctx); err != nil {
			return nil
		}
		if time.Since(gateStart) > time.Millisecond {
			metrics.IncRateLimiterWait()
		}

		s.deliver(ctx, p, chatID)
		metrics.SetOutboundQueueDepth(s.depth())

		select {
		case <-ctx.Done():
			return nil
		default:
		}
	}
}

// recover re-adopts pending rows left over from a previous run.
func (s *Sender) recover(ctx context.Context) error {
	rows, err := s.outbox.ListPending(ctx, repository.NoTX, 1000)
	if err != nil {
		return err
	}
	for _, m := range rows {
		s.adopt(m)
	}
	if len(rows) > 0 {
		s.log.Info().Int("count", len(rows)).Msg("sender: re-adopted pending messages")
	}
	metrics.SetOutboundQueueDepth(s.depth())
	return nil
}

func (s *Sender) reconcilePending(ctx context.Context) {
	rows, err := s.outbox.ListPending(ctx, repository.NoTX, 1000)
	if err != nil {
		s.log.Warn().Err(err).Msg("sender: reconcile scan failed")
		return
	}
	adopted := 0
	for _, m := range rows {
		if s.adopt(m) {
			adopted++
		}
	}
	if adopted > 0 {
		s.log.Info().Int("count", adopted).Msg("sender: reconciler adopted stuck messages")
	}
}

// adopt places a message on its chat queue unless it is already tracked.
func (s *Sender) adopt(m *model.OutboundMessage) bool {
	if _, ok := s.inFlight[m.ID]; ok {
		return false
	}
	s.inFlight[m.ID] = struct{}{}
	if _, ok := s.queues[m.ChatID]; !ok {
		s.ring = append(s.ring, m.ChatID)
	}
	s.queues[m.ChatID] = append(s.queues[m.ChatID], &pending{msg: m, readyAt: time.Now()})
	return true
}

func (s *Sender) drainIntake() {
	for {
		select {
		case m := <-s.intake:
			s.adopt(m)
		default:
			return
		}
	}
}

// nextReady walks the ring once, starting after the last served chat, and
// pops the head of the first queue whose head is past its backoff.
func (s *Sender) nextReady() (*pending, int64) {
	now := time.Now()
	for i := 0; i < len(s.ring); i++ {
		s.ringIdx = (s.ringIdx + 1) % len(s.ring)
		chatID := s.ring[s.ringIdx]
		q := s.queues[chatID]
		if len(q) == 0 || q[0].readyAt.After(now) {
			continue
		}
		s.queues[chatID] = q[1:]
		return q[0], chatID
	}
	return nil, 0
}

// waitForWork blocks until new intake, a backoff expiry, a reconcile tick or
// shutdown. Returns false on shutdown.
func (s *Sender) waitForWork(ctx context.Context, reconcile <-chan time.Time) bool {
	wait := s.earliestBackoff()
	timer := time.NewTimer(wait)
	defer timer.Stop()

	select {
	case m := <-s.intake:
		s.adopt(m)
		return true
	case <-timer.C:
		return true
	case <-reconcile:
		s.reconcilePending(ctx)
		return true
	case <-ctx.Done():
		return false
	}
}

func (s *Sender) earliestBackoff() time.Duration {
	wait := time.Second
	now := time.Now()
	for _, q := range s.queues {
		if len(q) == 0 {
			continue
		}
		if d := q[0].readyAt.Sub(now); d > 0 && d < wait {
			wait = d
		}
	}
	if wait < 10*time.Millisecond {
		wait = 10 * time.Millisecond
	}
	return wait
}

// deliver attempts one send and settles the message's fate: sent, retry
// with exponential backoff, or terminal failure after the attempt budget.
func (s *Sender) deliver(ctx context.Context, p *pending, chatID int64) {
	m := p.msg
	start := time.Now()
	err := s.transport.Send(ctx, m)
	latency := int(time.Since(start).Milliseconds())
	m.Attempts++

	switch {
	case err == nil:
		if dbErr := s.outbox.MarkSent(ctx, repository.NoTX, m.ID, m.Attempts); dbErr != nil {
			// delivered but not recorded: the reconciler will re-adopt and
			// re-send; duplicates are the accepted failure mode
			s.log.Error().Err(dbErr).Str("id", m.ID).Msg("sender: sent but not marked")
		}
		delete(s.inFlight, m.ID)
		metrics.ObserveOutbound("sent", m.Attempts > 1, latency)

	case errors.Is(err, domain.ErrDeliveryFailed) || errors.Is(err, domain.ErrAuth):
		// permanent: no retry can help
		s.fail(ctx, m, err, latency)

	default:
		if m.Attempts >= s.maxAttempts {
			s.fail(ctx, m, err, latency)
			return
		}
		backoff := s.baseBackoff << (m.Attempts - 1)
		p.readyAt = time.Now().Add(backoff)
		s.queues[chatID] = append([]*pending{p}, s.queues[chatID]...) // back to the head, order preserved
		s.log.Warn().Err(err).Str("id", m.ID).Int("attempt", m.Attempts).Dur("backoff", backoff).Msg("sender: transient failure, will retry")
		metrics.ObserveOutbound("retried", true, latency)
	}
}

func (s *Sender) fail(ctx context.Context, m *model.OutboundMessage, cause error, latency int) {
	if dbErr := s.outbox.MarkFailed(ctx, repository.NoTX, m.ID, m.Attempts); dbErr != nil {
		s.log.Error().Err(dbErr).Str("id", m.ID).Msg("sender: failed but not marked")
	}
	delete(s.inFlight, m.ID)
	s.log.Error().Err(cause).Str("id", m.ID).Int64("chat_id", m.ChatID).Int("attempts", m.Attempts).Msg("sender: message failed terminally")
	metrics.ObserveOutbound("failed", m.Attempts > 1, latency)
	select {
	case s.failures <- m:
	default: // no observer, don't stall the dispatch loop
	}
}

// Failures exposes terminally failed messages to whoever wants to alert on
// them. The channel is best-effort; the outbox row is the durable record.
func (s *Sender) Failures() <-chan *model.OutboundMessage {
	return s.failures
}

func (s *Sender) depth() int {
	n := 0
	for _, q := range s.queues {
		n += len(q)
	}
	return n
}
