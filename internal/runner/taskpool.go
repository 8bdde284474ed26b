package runner

import (
	"fmt"

	"github.com/panjf2000/ants/v2"
)

type taskPool struct {
	pool *ants.Pool
}

func newTaskPool(size int) (*taskPool, error) {
	pool, err := ants.NewPool(size)
	if err != nil {
		return nil, err
	}
	return &taskPool{pool: pool}, nil
}

type result[T any] struct {
	val T
	err error
}

// future yields the outcome of a submitted task.
type future[T any] struct {
	ch <-chan result[T]
}

func (f *future[T]) Get() (T, error) {
	r := <-f.ch
	return r.val, r.err
}

// submit runs task on the pool. A panicking task resolves its future with an
// error instead of crashing the worker.
func submit[T any](p *taskPool, task func() (T, error)) *future[T] {
	ch := make(chan result[T], 1)
	err := p.pool.Submit(func() {
		defer func() {
			if r := recover(); r != nil {
				ch <- result[T]{err: fmt.Errorf("panic: %v", r)}
			}
		}()
		val, err := task()
		ch <- result[T]{val: val, err: err}
	})
	if err != nil {
		ch <- result[T]{err: err}
	}
	return &future[T]{ch: ch}
}

func (p *taskPool) Release() {
	p.pool.Release()
}
