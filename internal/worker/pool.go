package worker

import (
	"context"
	"fmt"
	"log/slog"
	"runtime/debug"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"
	"strava-mirror/internal/metrics"
)

// drainTimeout bounds how long Shutdown waits for cancelled tasks to record
// their outcome
const drainTimeout = 5 * time.Second

// Task is a unit of background work. ctx is cancelled when the pool shuts
// down, never when the request that submitted it finishes.
type Task func(ctx context.Context) error

// Pool runs detached background tasks with bounded concurrency. Tasks that
// arrive while every slot is busy wait for one to free up.
type Pool struct {
	group  *errgroup.Group
	ctx    context.Context
	cancel context.CancelFunc
	logger *slog.Logger

	mu      sync.Mutex
	closed  bool
	pending sync.WaitGroup // queued and running tasks
}

// NewPool creates a pool running at most size tasks at once
func NewPool(size int) *Pool {
	if size < 1 {
		size = 1
	}

	group := &errgroup.Group{}
	group.SetLimit(size)

	ctx, cancel := context.WithCancel(context.Background())

	return &Pool{
		group:  group,
		ctx:    ctx,
		cancel: cancel,
		logger: slog.Default(),
	}
}

// Submit queues task to run as soon as a slot is free. It returns false only
// once the pool has been shut down.
func (p *Pool) Submit(name string, task Task) bool {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.closed {
		metrics.PoolTasksTotal.WithLabelValues(metrics.ResultDropped).Inc()
		p.logger.Warn("Dropping task, pool is shut down", "task", name)
		return false
	}

	p.pending.Add(1)
	metrics.PoolTasksQueued.Inc()

	// group.Go blocks until a slot is free, so it runs off the caller's goroutine
	go p.group.Go(func() error {
		defer p.pending.Done()
		metrics.PoolTasksQueued.Dec()

		if p.ctx.Err() != nil {
			metrics.PoolTasksTotal.WithLabelValues(metrics.ResultDropped).Inc()
			p.logger.Warn("Skipping queued task, pool was cancelled", "task", name)
			return nil
		}

		p.run(name, task)
		// Errors are logged per task and never cancel siblings
		return nil
	})
	return true
}

func (p *Pool) run(name string, task Task) {
	start := time.Now()
	metrics.PoolTasksRunning.Inc()
	defer metrics.PoolTasksRunning.Dec()

	defer func() {
		if r := recover(); r != nil {
			metrics.PoolTasksTotal.WithLabelValues(metrics.ResultPanic).Inc()
			p.logger.Error("Task panicked",
				"task", name,
				"panic", fmt.Sprint(r),
				"stack", string(debug.Stack()))
		}
	}()

	if err := task(p.ctx); err != nil {
		metrics.PoolTasksTotal.WithLabelValues(metrics.ResultFailure).Inc()
		p.logger.Error("Task failed",
			"task", name,
			"error", err,
			"duration_ms", time.Since(start).Milliseconds())
		return
	}

	metrics.PoolTasksTotal.WithLabelValues(metrics.ResultSuccess).Inc()
	p.logger.Info("Task completed", "task", name, "duration_ms", time.Since(start).Milliseconds())
}

// Shutdown stops accepting tasks and waits for queued and running ones. When
// ctx expires first the remaining tasks are cancelled and given a short grace
// period to finish. Queued tasks that had not started are skipped.
func (p *Pool) Shutdown(ctx context.Context) error {
	p.mu.Lock()
	p.closed = true
	p.mu.Unlock()

	done := make(chan struct{})
	go func() {
		p.pending.Wait()
		close(done)
	}()

	select {
	case <-done:
		p.cancel()
		return nil
	case <-ctx.Done():
	}

	p.logger.Warn("Shutdown deadline reached, cancelling running tasks")
	p.cancel()

	select {
	case <-done:
	case <-time.After(drainTimeout):
		p.logger.Error("Tasks did not stop after cancellation")
	}
	return ctx.Err()
}
