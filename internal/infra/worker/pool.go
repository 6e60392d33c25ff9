package worker

import (
	"context"
	"errors"
	"hash/fnv"
	"runtime"
	"strconv"
	"sync"

	"telegram-archive-bot/internal/domain"
)

type Task func(ctx context.Context) error

// Pool runs tasks on a fixed set of workers, partitioned by key: tasks that
// share a key always land on the same worker and therefore run serially in
// submission order. Tasks with different keys run concurrently.
type Pool struct {
	wg    sync.WaitGroup
	lanes []chan Task
	n     int

	mu      sync.Mutex
	started bool
	stopped bool
}

func NewPool(workers int) *Pool {
	if workers <= 0 {
		workers = runtime.NumCPU()
	}
	lanes := make([]chan Task, workers)
	for i := range lanes {
		lanes[i] = make(chan Task, 16)
	}
	return &Pool{lanes: lanes, n: workers}
}

func (p *Pool) Start(ctx context.Context) {
	p.mu.Lock()
	if p.started {
		p.mu.Unlock()
		return
	}
	p.started = true
	p.mu.Unlock()

	for i := 0; i < p.n; i++ {
		p.wg.Add(1)
		go func(lane chan Task) {
			defer p.wg.Done()
			for task := range lane {
				if task == nil {
					continue
				}
				_ = task(ctx)
			}
		}(p.lanes[i])
	}
}

// Submit queues a task on the lane owned by key, blocking when the lane is
// full. Blocking is the backpressure: a batch cannot outrun its slowest chat.
func (p *Pool) Submit(ctx context.Context, key int64, task Task) error {
	if task == nil {
		return errors.New("nil task")
	}
	p.mu.Lock()
	if p.stopped {
		p.mu.Unlock()
		return domain.ErrQueueClosed
	}
	p.mu.Unlock()

	select {
	case p.lanes[p.laneFor(key)] <- task:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Stop closes the lanes and waits for queued tasks to finish.
func (p *Pool) Stop() {
	p.mu.Lock()
	if p.stopped {
		p.mu.Unlock()
		return
	}
	p.stopped = true
	p.mu.Unlock()

	for _, lane := range p.lanes {
		close(lane)
	}
	p.wg.Wait()
}

func (p *Pool) laneFor(key int64) int {
	h := fnv.New32a()
	h.Write([]byte(strconv.FormatInt(key, 10)))
	return int(h.Sum32()) % p.n
}
