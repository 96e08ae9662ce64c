package workerpool

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"
)

var (
	// ErrStopped is returned for tasks submitted to, or still queued in, a
	// stopped pool.
	ErrStopped = errors.New("worker pool stopped")
	// ErrQueueFull is returned by Submit when the queue has no room.
	ErrQueueFull = errors.New("worker pool queue full")
)

// Task is a unit of work. Done, when set, is called exactly once with the
// outcome: the error from Fn, a recovered panic, or ErrStopped when the
// pool shut down before the task ran.
type Task struct {
	ID      string
	Fn      func(context.Context) error
	Context context.Context
	Done    func(error)
}

func (t Task) finish(err error) {
	if t.Done != nil {
		t.Done(err)
	}
}

// Config holds worker pool configuration
type Config struct {
	Name       string
	MaxWorkers int
	QueueSize  int
	Logger     *zap.Logger
}

// Pool runs tasks on a fixed number of goroutines fed from a bounded queue
type Pool struct {
	name      string
	workers   int
	queueSize int
	queue     chan Task
	logger    *zap.Logger

	wg       sync.WaitGroup
	stopOnce sync.Once
	stopCh   chan struct{}
	// mu orders enqueues against Stop: once stopped is set no task can
	// reach the queue, so the final drain sees every queued task.
	mu      sync.RWMutex
	stopped bool

	active    atomic.Int32
	submitted atomic.Uint64
	completed atomic.Uint64
	failed    atomic.Uint64
	rejected  atomic.Uint64
}

// New starts a pool
func New(cfg *Config) *Pool {
	if cfg.MaxWorkers <= 0 {
		cfg.MaxWorkers = 8
	}
	if cfg.QueueSize <= 0 {
		cfg.QueueSize = 256
	}
	if cfg.Logger == nil {
		cfg.Logger = zap.NewNop()
	}

	p := &Pool{
		name:      cfg.Name,
		workers:   cfg.MaxWorkers,
		queueSize: cfg.QueueSize,
		queue:     make(chan Task, cfg.QueueSize),
		logger:    cfg.Logger,
		stopCh:    make(chan struct{}),
	}
	for i := 0; i < p.workers; i++ {
		p.wg.Add(1)
		go p.run(i)
	}

	p.logger.Info("Worker pool started",
		zap.String("name", p.name),
		zap.Int("max_workers", p.workers),
		zap.Int("queue_size", p.queueSize))
	return p
}

func (p *Pool) run(id int) {
	defer p.wg.Done()
	for {
		select {
		case <-p.stopCh:
			p.drain()
			return
		case task := <-p.queue:
			p.execute(id, task)
		}
	}
}

// drain rejects whatever is still queued so no Done callback is lost
func (p *Pool) drain() {
	for {
		select {
		case task := <-p.queue:
			p.rejected.Add(1)
			task.finish(ErrStopped)
		default:
			return
		}
	}
}

func (p *Pool) execute(workerID int, task Task) {
	p.active.Add(1)
	defer p.active.Add(-1)

	start := time.Now()
	err := p.safeExecute(task)
	if err != nil {
		p.failed.Add(1)
		p.logger.Debug("Task failed",
			zap.String("pool", p.name),
			zap.Int("worker_id", workerID),
			zap.String("task_id", task.ID),
			zap.Duration("duration", time.Since(start)),
			zap.Error(err))
	} else {
		p.completed.Add(1)
	}
	task.finish(err)
}

func (p *Pool) safeExecute(task Task) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("task %s panicked: %v", task.ID, r)
			p.logger.Error("Task panic recovered",
				zap.String("pool", p.name),
				zap.String("task_id", task.ID),
				zap.Any("panic", r))
		}
	}()

	ctx := task.Context
	if ctx == nil {
		ctx = context.Background()
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	return task.Fn(ctx)
}

// Submit queues a task without blocking
func (p *Pool) Submit(task Task) error {
	p.mu.RLock()
	defer p.mu.RUnlock()
	if p.stopped {
		p.rejected.Add(1)
		return ErrStopped
	}

	select {
	case <-p.stopCh:
		p.rejected.Add(1)
		return ErrStopped
	case p.queue <- task:
		p.submitted.Add(1)
		return nil
	default:
		p.rejected.Add(1)
		return ErrQueueFull
	}
}

// SubmitWithContext queues a task, blocking until there is room, the pool
// stops, or ctx is done.
func (p *Pool) SubmitWithContext(ctx context.Context, task Task) error {
	p.mu.RLock()
	defer p.mu.RUnlock()
	if p.stopped {
		p.rejected.Add(1)
		return ErrStopped
	}

	select {
	case <-p.stopCh:
		p.rejected.Add(1)
		return ErrStopped
	case <-ctx.Done():
		p.rejected.Add(1)
		return ctx.Err()
	case p.queue <- task:
		p.submitted.Add(1)
		return nil
	}
}

// Stop stops the workers after their current task. Queued tasks are
// rejected with ErrStopped.
func (p *Pool) Stop(timeout time.Duration) error {
	var err error
	p.stopOnce.Do(func() {
		close(p.stopCh)
		// Blocked submitters see stopCh and release the read lock.
		p.mu.Lock()
		p.stopped = true
		p.mu.Unlock()

		done := make(chan struct{})
		go func() {
			p.wg.Wait()
			p.drain()
			close(done)
		}()

		select {
		case <-done:
			p.logger.Info("Worker pool stopped", zap.String("name", p.name))
		case <-time.After(timeout):
			err = fmt.Errorf("worker pool %q stop timed out after %v", p.name, timeout)
		}
	})
	return err
}

// Stats is a point-in-time view of the pool
type Stats struct {
	Name           string `json:"name"`
	MaxWorkers     int    `json:"max_workers"`
	ActiveWorkers  int    `json:"active_workers"`
	QueueSize      int    `json:"queue_size"`
	QueuedTasks    int    `json:"queued_tasks"`
	TotalTasks     uint64 `json:"total_tasks"`
	CompletedTasks uint64 `json:"completed_tasks"`
	FailedTasks    uint64 `json:"failed_tasks"`
	RejectedTasks  uint64 `json:"rejected_tasks"`

	// QueueUtilization is queue fill as a percentage
	QueueUtilization float64 `json:"queue_utilization"`
}

// Stats returns current pool statistics
func (p *Pool) Stats() Stats {
	queued := len(p.queue)
	return Stats{
		Name:             p.name,
		MaxWorkers:       p.workers,
		ActiveWorkers:    int(p.active.Load()),
		QueueSize:        p.queueSize,
		QueuedTasks:      queued,
		TotalTasks:       p.submitted.Load(),
		CompletedTasks:   p.completed.Load(),
		FailedTasks:      p.failed.Load(),
		RejectedTasks:    p.rejected.Load(),
		QueueUtilization: float64(queued) / float64(p.queueSize) * 100,
	}
}
