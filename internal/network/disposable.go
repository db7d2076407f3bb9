package network

import (
	"sync"
	"sync/atomic"
)

// Disposable cancels future delivery of a stream execution.
type Disposable interface {
	Dispose()
}

// NewDisposable returns a Disposable that runs fn on the first Dispose call.
func NewDisposable(fn func()) Disposable {
	h := newHandle()
	if fn != nil {
		h.onDispose(fn)
	}
	return h
}

// handle owns the disposed flag of one execution and the cleanups that run
// when it is disposed.
type handle struct {
	disposed atomic.Bool
	terminal atomic.Bool

	// deliver serializes observer callbacks.
	deliver sync.Mutex

	mu       sync.Mutex
	cleanups []func()
}

func newHandle() *handle { return &handle{} }

func (h *handle) Dispose() {
	if h.disposed.Swap(true) {
		return
	}
	h.mu.Lock()
	fns := h.cleanups
	h.cleanups = nil
	h.mu.Unlock()
	for _, fn := range fns {
		fn()
	}
}

func (h *handle) isDisposed() bool { return h.disposed.Load() }

// onDispose registers fn to run on disposal. If the handle is already
// disposed fn runs immediately.
func (h *handle) onDispose(fn func()) {
	h.mu.Lock()
	if h.disposed.Load() {
		h.mu.Unlock()
		fn()
		return
	}
	h.cleanups = append(h.cleanups, fn)
	h.mu.Unlock()
}

// sink enforces the delivery rules of one handle on top of an observer:
// nothing after disposal, nothing after a terminal event. Undeliverable
// errors go to report.
type sink[T any] struct {
	h      *handle
	obs    Observer[T]
	report func(error)
	// finished runs once after a terminal event has been delivered.
	finished func(err error)
}

func (s *sink[T]) closed() bool {
	return s.h.isDisposed() || s.h.terminal.Load()
}

func (s *sink[T]) next(v T) bool {
	if s.closed() {
		return false
	}
	s.h.deliver.Lock()
	defer s.h.deliver.Unlock()
	if s.closed() {
		return false
	}
	s.obs.next(v)
	return true
}

func (s *sink[T]) error(err error) bool {
	if s.closed() {
		s.report(err)
		return false
	}
	s.h.deliver.Lock()
	if s.closed() {
		s.h.deliver.Unlock()
		s.report(err)
		return false
	}
	s.h.terminal.Store(true)
	func() {
		defer s.h.deliver.Unlock()
		s.obs.error(err)
	}()
	if s.finished != nil {
		s.finished(err)
	}
	return true
}

func (s *sink[T]) complete() bool {
	if s.closed() {
		return false
	}
	s.h.deliver.Lock()
	if s.closed() {
		s.h.deliver.Unlock()
		return false
	}
	s.h.terminal.Store(true)
	func() {
		defer s.h.deliver.Unlock()
		s.obs.completed()
	}()
	if s.finished != nil {
		s.finished(nil)
	}
	return true
}
