// Package worker runs background tasks detached from the request that
// submitted them.
package worker

import (
	"context"
	"errors"
	"runtime/debug"
	"sync"

	"golang.org/x/sync/semaphore"

	"github.com/BerylCAtieno/research-paper-api/internal/utils"
)

var ErrPoolClosed = errors.New("worker pool is shut down")

// Task is the unit of background work. ctx is cancelled only when the pool is
// forced to stop.
type Task func(ctx context.Context)

// Runner submits tasks for asynchronous execution.
type Runner interface {
	Submit(name string, task Task) error
}

type Pool struct {
	sem    *semaphore.Weighted
	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
	logger *utils.Logger

	mu     sync.Mutex
	closed bool
}

// NewPool runs at most concurrency tasks at once; the rest wait their turn.
func NewPool(concurrency int, logger *utils.Logger) *Pool {
	if concurrency < 1 {
		concurrency = 1
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Pool{
		sem:    semaphore.NewWeighted(int64(concurrency)),
		ctx:    ctx,
		cancel: cancel,
		logger: logger,
	}
}

// Submit returns immediately; the task runs on its own goroutine once a slot
// is free.
func (p *Pool) Submit(name string, task Task) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return ErrPoolClosed
	}

	p.wg.Add(1)
	go p.run(name, task)
	return nil
}

func (p *Pool) run(name string, task Task) {
	defer p.wg.Done()

	if err := p.sem.Acquire(p.ctx, 1); err != nil {
		p.logger.Warn("Task dropped before start", "task", name, "error", err)
		return
	}
	defer p.sem.Release(1)

	defer func() {
		if r := recover(); r != nil {
			p.logger.Error("Task panicked", "task", name, "panic", r, "stack", string(debug.Stack()))
		}
	}()

	task(p.ctx)
}

// Shutdown stops accepting tasks and waits for running ones. When ctx expires
// first, the remaining tasks are cancelled and ctx's error is returned.
func (p *Pool) Shutdown(ctx context.Context) error {
	p.mu.Lock()
	p.closed = true
	p.mu.Unlock()

	done := make(chan struct{})
	go func() {
		p.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		p.cancel()
		return nil
	case <-ctx.Done():
		p.cancel()
		<-done
		return ctx.Err()
	}
}
