package envelope

import (
	"context"
	"fmt"
)

// Kind identifies the active variant of a Response.
type Kind uint8

const (
	KindInvalid Kind = iota
	KindData
	KindError
	KindDeferred
)

func (k Kind) String() string {
	switch k {
	case KindData:
		return "data"
	case KindError:
		return "error"
	case KindDeferred:
		return "deferred"
	default:
		return fmt.Sprintf("Kind(%d)", uint8(k))
	}
}

// Response is the tagged result of one fetch attempt.
type Response[T any] struct {
	kind   Kind
	value  T
	err    error
	future *Future[T]
}

// Data wraps an already available value.
func Data[T any](v T) Response[T] {
	return Response[T]{kind: KindData, value: v}
}

// Error wraps an already known failure. err must not be nil.
func Error[T any](err error) Response[T] {
	if err == nil {
		panic("envelope: Error called with nil error")
	}
	return Response[T]{kind: KindError, err: err}
}

// Deferred wraps a pending future. f must not be nil.
func Deferred[T any](f *Future[T]) Response[T] {
	if f == nil {
		panic("envelope: Deferred called with nil future")
	}
	return Response[T]{kind: KindDeferred, future: f}
}

// FromResult returns Error(err) when err is non-nil and Data(v) otherwise.
func FromResult[T any](v T, err error) Response[T] {
	if err != nil {
		return Error[T](err)
	}
	return Data(v)
}

func (r Response[T]) Kind() Kind { return r.kind }

// Value returns the value of a Data response.
func (r Response[T]) Value() (T, bool) { return r.value, r.kind == KindData }

// Err returns the error of an Error response, nil otherwise.
func (r Response[T]) Err() error { return r.err }

// Future returns the future of a Deferred response, nil otherwise.
func (r Response[T]) Future() *Future[T] { return r.future }

// Await returns the outcome of r, blocking only for Deferred responses.
func (r Response[T]) Await(ctx context.Context) (T, error) {
	switch r.kind {
	case KindData:
		return r.value, nil
	case KindError:
		var zero T
		return zero, r.err
	case KindDeferred:
		return r.future.Await(ctx)
	default:
		panic(unknownKind(r.kind))
	}
}

// Then calls onValue or onError with the outcome of r. For Data and Error the
// call happens before Then returns; for Deferred it happens on settlement.
// Either callback may be nil.
func (r Response[T]) Then(onValue func(T), onError func(error)) {
	deliver := func(v T, err error) {
		if err != nil {
			if onError != nil {
				onError(err)
			}
			return
		}
		if onValue != nil {
			onValue(v)
		}
	}
	switch r.kind {
	case KindData:
		deliver(r.value, nil)
	case KindError:
		deliver(r.value, r.err)
	case KindDeferred:
		r.future.OnSettle(deliver)
	default:
		panic(unknownKind(r.kind))
	}
}

// Map applies fn to the value of r, preserving the variant: Data stays Data
// unless fn fails, Error passes through, Deferred maps its future.
func Map[T, U any](r Response[T], fn func(T) (U, error)) Response[U] {
	switch r.kind {
	case KindData:
		v, err := fn(r.value)
		return FromResult(v, err)
	case KindError:
		return Error[U](r.err)
	case KindDeferred:
		return Deferred(MapFuture(r.future, fn))
	default:
		panic(unknownKind(r.kind))
	}
}

func unknownKind(k Kind) string {
	return fmt.Sprintf("envelope: unknown response kind %s", k)
}
