package executor

import (
	"context"
	"sync"

	"github.com/zeromicro/go-zero/core/threading"
)

// Executor runs handler for committed tasks on a fixed number of workers. A
// panicking handler is recovered and does not take its worker down.
type Executor[P interface{}] struct {
	ctx     context.Context
	cancel  context.CancelFunc
	tasks   chan P
	handler func(ctx context.Context, task P)
	workers int
	wg      sync.WaitGroup
}

func NewExecutor[P interface{}](ctx context.Context, workers int, queueSize int, handler func(ctx context.Context, task P)) *Executor[P] {
	if workers < 1 {
		workers = 1
	}
	ret := &Executor[P]{
		tasks:   make(chan P, queueSize),
		handler: handler,
		workers: workers,
	}
	ret.ctx, ret.cancel = context.WithCancel(ctx)
	return ret
}

func (e *Executor[P]) Start() {
	for i := 0; i < e.workers; i++ {
		e.wg.Add(1)
		go func() {
			defer e.wg.Done()
			for {
				select {
				case <-e.ctx.Done():
					return
				case task := <-e.tasks:
					threading.RunSafe(func() {
						e.handler(e.ctx, task)
					})
				}
			}
		}()
	}
}

// Stop cancels the context handed to running tasks and waits for the workers
// to return. Queued tasks are dropped.
func (e *Executor[P]) Stop() {
	e.cancel()
	e.wg.Wait()
}

func (e *Executor[P]) QueueSize() int {
	return len(e.tasks)
}

// Commit queues task, blocking while the queue is full. It reports false once
// the executor is stopped.
func (e *Executor[P]) Commit(task P) bool {
	select {
	case <-e.ctx.Done():
		return false
	case e.tasks <- task:
		return true
	}
}
