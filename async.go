package dynamo

import (
	"context"
	"fmt"
	"sync"
)

// Callback receives the outcome of an async call exactly once.
type Callback[T any] func(v T, err error)

// Future is the pending outcome of an async call.
type Future[T any] struct {
	done chan struct{}
	once sync.Once
	val  T
	err  error
}

func newFuture[T any]() *Future[T] {
	return &Future[T]{done: make(chan struct{})}
}

func (f *Future[T]) resolve(v T, err error) {
	f.once.Do(func() {
		f.val, f.err = v, err
		close(f.done)
	})
}

// Done is closed once the outcome is available.
func (f *Future[T]) Done() <-chan struct{} { return f.done }

// Wait blocks until the outcome is available or ctx is done. Giving up on
// ctx does not cancel the underlying call.
func (f *Future[T]) Wait(ctx context.Context) (T, error) {
	select {
	case <-f.done:
		return f.val, f.err
	case <-ctx.Done():
		var zero T
		return zero, ctx.Err()
	}
}

// dispatch runs fn in its own goroutine. With cb set the outcome goes to cb
// and the returned future is nil; otherwise it goes to the returned future.
// A panic in fn is reported as an error on the same channel.
func dispatch[T any](ctx context.Context, cb Callback[T], fn func(context.Context) (T, error)) *Future[T] {
	fut := newFuture[T]()
	go func() {
		var (
			v   T
			err error
		)
		func() {
			defer func() {
				if r := recover(); r != nil {
					err = fmt.Errorf("dynamo: async call panicked: %v", r)
				}
			}()
			v, err = fn(ctx)
		}()
		if cb != nil {
			cb(v, err)
			return
		}
		fut.resolve(v, err)
	}()
	if cb != nil {
		return nil
	}
	return fut
}
