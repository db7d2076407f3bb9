package network

import (
	"context"
	"runtime/debug"

	eventbus "github.com/andreassavva/relay/internal/eventbus"
	events "github.com/andreassavva/relay/internal/events"
)

// reportAsync hands err to the error reporter without blocking the caller.
func (l *Layer) reportAsync(err error) {
	go func() {
		eventbus.Publish(context.Background(), events.UnhandledError{Err: err})
		l.report(err)
	}()
}

// guard runs a delivery on an asynchronous path. A panic from the observer
// disposes h and is reported instead of unwinding the transport or timer
// goroutine.
func (l *Layer) guard(h *handle, fn func()) {
	defer func() {
		if r := recover(); r != nil {
			h.Dispose()
			l.reportAsync(&ObserverPanicError{Value: r, Stack: debug.Stack()})
		}
	}()
	fn()
}
