package vectorindex

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/Subhagatoadak/SemanticCaching/internal/platform/worker"
)

// Executor is the execution context engine calls run in.
//
// Run returns fn's own error unchanged. A panic in fn becomes
// ErrIndexOperationFailed; a missed deadline becomes ErrIndexOperationTimeout.
type Executor interface {
	Run(ctx context.Context, op string, fn func(ctx context.Context) error) error
	Close() error
}

type inlineExecutor struct{}

// Inline runs engine calls on the caller's goroutine. Panics are recovered
// but a hang blocks the caller.
func Inline() Executor {
	return inlineExecutor{}
}

func (inlineExecutor) Run(ctx context.Context, op string, fn func(ctx context.Context) error) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("%w: %s panicked: %v", ErrIndexOperationFailed, op, r)
		}
	}()
	return fn(ctx)
}

func (inlineExecutor) Close() error { return nil }

type isolatedExecutor struct {
	pool    *worker.Pool
	timeout time.Duration
}

// Isolated runs engine calls on a dedicated worker pool with a hard
// timeout. A call that overruns is abandoned and its worker replaced; the
// caller gets ErrIndexOperationTimeout and the Index discards the engine
// generation the abandoned call may still be touching.
func Isolated(timeout time.Duration, workers int) Executor {
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	pool := worker.NewPool(context.Background(), worker.PoolConfig{
		Workers: workers,
		Timeout: timeout,
	})
	return &isolatedExecutor{pool: pool, timeout: timeout}
}

func (e *isolatedExecutor) Run(ctx context.Context, op string, fn func(ctx context.Context) error) error {
	_, err := e.pool.Execute(ctx, worker.Job{
		ID: op,
		Execute: func(ctx context.Context) (any, error) {
			return nil, fn(ctx)
		},
	})

	switch {
	case err == nil:
		return nil
	case errors.Is(err, worker.ErrJobTimeout):
		return fmt.Errorf("%w: %s exceeded %s", ErrIndexOperationTimeout, op, e.timeout)
	case errors.Is(err, worker.ErrJobPanicked):
		return fmt.Errorf("%w: %s: %v", ErrIndexOperationFailed, op, err)
	case errors.Is(err, worker.ErrPoolClosed):
		return ErrClosed
	default:
		return err
	}
}

func (e *isolatedExecutor) Close() error {
	e.pool.Close()
	return nil
}
