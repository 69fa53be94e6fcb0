// Package worker provides a bounded goroutine pool that runs jobs under a
// hard deadline. A worker stuck past the deadline is retired and replaced so
// one hung job cannot starve the pool.
package worker

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"
)

var (
	// ErrPoolClosed is returned when submitting to or waiting on a closed pool.
	ErrPoolClosed = errors.New("worker pool is closed")
	// ErrJobTimeout is returned when a job misses the pool deadline.
	ErrJobTimeout = errors.New("job timed out")
	// ErrJobPanicked is returned when a job panics.
	ErrJobPanicked = errors.New("job panicked")
)

// Job represents a unit of work to be executed by a worker.
type Job struct {
	// ID is an optional identifier for the job (useful for logging/debugging)
	ID string
	// Execute is the function to run. Its context is cancelled when the
	// caller gives up on the job.
	Execute func(ctx context.Context) (any, error)
}

// PoolConfig configures a Pool.
type PoolConfig struct {
	Workers   int
	QueueSize int
	// Timeout bounds a job from submission to completion. Zero means no
	// deadline beyond the caller's context.
	Timeout time.Duration
}

const (
	taskQueued int32 = iota
	taskRunning
	taskDone
	taskAbandoned
)

type task struct {
	job    Job
	ctx    context.Context
	cancel context.CancelFunc
	state  atomic.Int32
	done   chan result
}

type result struct {
	value any
	err   error
}

// Pool runs jobs on a fixed number of goroutines.
type Pool struct {
	cfg    PoolConfig
	tasks  chan *task
	ctx    context.Context
	cancel context.CancelFunc

	// wg counts live workers only. A retired worker is accounted for by the
	// caller that abandoned its job, so Close never waits on a hung job.
	wg      sync.WaitGroup
	mu      sync.Mutex
	closed  bool
	retired atomic.Int64
}

// NewPool creates a pool and starts its workers.
//
// Example:
//
//	pool := worker.NewPool(ctx, worker.PoolConfig{Workers: 2, Timeout: time.Second})
//	defer pool.Close()
//	v, err := pool.Execute(ctx, worker.Job{ID: "search", Execute: fn})
func NewPool(ctx context.Context, cfg PoolConfig) *Pool {
	if cfg.Workers <= 0 {
		cfg.Workers = 1
	}
	if cfg.QueueSize < 0 {
		cfg.QueueSize = 0
	}

	poolCtx, cancel := context.WithCancel(ctx)

	p := &Pool{
		cfg:    cfg,
		tasks:  make(chan *task, cfg.QueueSize),
		ctx:    poolCtx,
		cancel: cancel,
	}

	p.wg.Add(cfg.Workers)
	for i := 0; i < cfg.Workers; i++ {
		go p.worker()
	}

	return p
}

func (p *Pool) worker() {
	retired := false
	defer func() {
		if !retired {
			p.wg.Done()
		}
	}()

	for {
		select {
		case <-p.ctx.Done():
			return
		case t := <-p.tasks:
			if !t.state.CompareAndSwap(taskQueued, taskRunning) {
				continue // abandoned while queued
			}

			res := run(t)

			if !t.state.CompareAndSwap(taskRunning, taskDone) {
				// The caller gave up and a replacement was started.
				retired = true
				return
			}
			t.done <- res
		}
	}
}

func run(t *task) (res result) {
	defer func() {
		if r := recover(); r != nil {
			res = result{err: fmt.Errorf("%w: %v", ErrJobPanicked, r)}
		}
	}()

	v, err := t.job.Execute(t.ctx)
	return result{value: v, err: err}
}

// Execute runs job on the pool and waits for it. It returns ErrJobTimeout
// when the pool deadline passes, the context error when ctx ends first, and
// ErrJobPanicked when the job panics.
func (p *Pool) Execute(ctx context.Context, job Job) (any, error) {
	if p.ctx.Err() != nil {
		return nil, ErrPoolClosed
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	var deadline <-chan time.Time
	if p.cfg.Timeout > 0 {
		timer := time.NewTimer(p.cfg.Timeout)
		defer timer.Stop()
		deadline = timer.C
	}

	jobCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	t := &task{job: job, ctx: jobCtx, cancel: cancel, done: make(chan result, 1)}

	select {
	case p.tasks <- t:
	case <-deadline:
		return nil, fmt.Errorf("%w: %s waited in queue", ErrJobTimeout, job.ID)
	case <-ctx.Done():
		return nil, ctx.Err()
	case <-p.ctx.Done():
		return nil, ErrPoolClosed
	}

	select {
	case res := <-t.done:
		return res.value, res.err
	case <-deadline:
		return p.abandon(t, fmt.Errorf("%w: %s after %s", ErrJobTimeout, job.ID, p.cfg.Timeout))
	case <-ctx.Done():
		return p.abandon(t, ctx.Err())
	case <-p.ctx.Done():
		return p.abandon(t, ErrPoolClosed)
	}
}

// abandon gives up on t. A running task costs its worker, which is replaced.
func (p *Pool) abandon(t *task, cause error) (any, error) {
	t.cancel()

	if t.state.CompareAndSwap(taskQueued, taskAbandoned) {
		return nil, cause
	}
	if t.state.CompareAndSwap(taskRunning, taskAbandoned) {
		p.replaceWorker()
		return nil, cause
	}

	// finished while we were deciding
	res := <-t.done
	return res.value, res.err
}

func (p *Pool) replaceWorker() {
	p.retired.Add(1)

	p.mu.Lock()
	if !p.closed {
		p.wg.Add(1)
		go p.worker()
	}
	p.mu.Unlock()

	p.wg.Done() // for the retired worker
}

// Close stops the workers and waits for the live ones to exit. Workers stuck
// in an abandoned job are not waited for.
func (p *Pool) Close() {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return
	}
	p.closed = true
	p.mu.Unlock()

	p.cancel()
	p.wg.Wait()
}

// Workers returns the configured number of workers.
func (p *Pool) Workers() int {
	return p.cfg.Workers
}

// Retired returns how many workers were abandoned in a hung job.
func (p *Pool) Retired() int64 {
	return p.retired.Load()
}

// QueueLen returns the current number of jobs waiting in the queue.
func (p *Pool) QueueLen() int {
	return len(p.tasks)
}
