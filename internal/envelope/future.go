package envelope

import (
	"context"
	"sync"
)

// Future is a value that settles at most once, with either a value or an error.
type Future[T any] struct {
	mu       sync.Mutex
	done     chan struct{}
	settled  bool
	value    T
	err      error
	handlers []func(T, error)
}

// Promise is the write side of a Future.
type Promise[T any] struct {
	f *Future[T]
}

// NewPromise returns an unsettled promise.
func NewPromise[T any]() *Promise[T] {
	return &Promise[T]{f: &Future[T]{done: make(chan struct{})}}
}

// Future returns the read side of p.
func (p *Promise[T]) Future() *Future[T] { return p.f }

// Resolve settles the future with v. It returns false if already settled.
func (p *Promise[T]) Resolve(v T) bool { return p.f.settle(v, nil) }

// Reject settles the future with err. It returns false if already settled.
func (p *Promise[T]) Reject(err error) bool {
	if err == nil {
		err = ErrNilRejection
	}
	var zero T
	return p.f.settle(zero, err)
}

// Settle resolves or rejects depending on err.
func (p *Promise[T]) Settle(v T, err error) bool {
	if err != nil {
		return p.Reject(err)
	}
	return p.Resolve(v)
}

func (f *Future[T]) settle(v T, err error) bool {
	f.mu.Lock()
	if f.settled {
		f.mu.Unlock()
		return false
	}
	f.settled = true
	f.value, f.err = v, err
	handlers := f.handlers
	f.handlers = nil
	close(f.done)
	f.mu.Unlock()

	for _, h := range handlers {
		h(v, err)
	}
	return true
}

// Done is closed once the future has settled.
func (f *Future[T]) Done() <-chan struct{} { return f.done }

// Settled reports whether the future has settled.
func (f *Future[T]) Settled() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.settled
}

// OnSettle registers h to run once the future settles.
func (f *Future[T]) OnSettle(h func(T, error)) {
	f.mu.Lock()
	if !f.settled {
		f.handlers = append(f.handlers, h)
		f.mu.Unlock()
		return
	}
	v, err := f.value, f.err
	f.mu.Unlock()
	h(v, err)
}

// Await blocks until the future settles or ctx is done.
func (f *Future[T]) Await(ctx context.Context) (T, error) {
	select {
	case <-f.done:
		f.mu.Lock()
		defer f.mu.Unlock()
		return f.value, f.err
	case <-ctx.Done():
		var zero T
		return zero, ctx.Err()
	}
}

// Go runs fn on a new goroutine and returns a future of its outcome.
func Go[T any](fn func() (T, error)) *Future[T] {
	p := NewPromise[T]()
	go func() {
		p.Settle(fn())
	}()
	return p.Future()
}

// Resolved returns a future already settled with v.
func Resolved[T any](v T) *Future[T] {
	p := NewPromise[T]()
	p.Resolve(v)
	return p.Future()
}

// Rejected returns a future already settled with err.
func Rejected[T any](err error) *Future[T] {
	p := NewPromise[T]()
	p.Reject(err)
	return p.Future()
}

// MapFuture derives a future by applying fn to f's value. An error from f is
// passed through; an error from fn rejects the derived future. fn runs on the
// goroutine that settles f.
func MapFuture[T, U any](f *Future[T], fn func(T) (U, error)) *Future[U] {
	p := NewPromise[U]()
	f.OnSettle(func(v T, err error) {
		if err != nil {
			p.Reject(err)
			return
		}
		p.Settle(fn(v))
	})
	return p.Future()
}
