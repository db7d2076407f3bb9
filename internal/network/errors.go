package network

import (
	"errors"
	"fmt"
)

var (
	// ErrSubscribeNotConfigured is returned when a subscription is requested
	// from a layer without a subscribe primitive.
	ErrSubscribeNotConfigured = errors.New("network: subscriptions require a subscribe function; this layer supports only requests and polling")
	// ErrInvalidPollInterval is returned for a poll interval that is not
	// strictly positive.
	ErrInvalidPollInterval = errors.New("network: poll interval must be positive")
)

// ConfigError reports a caller or integration defect detected at call time.
type ConfigError struct {
	Operation string
	Err       error
}

func (e *ConfigError) Error() string {
	return fmt.Sprintf("network: invalid configuration for operation %q: %v", e.Operation, e.Err)
}

func (e *ConfigError) Unwrap() error { return e.Err }

// ObserverPanicError wraps a panic raised by an observer callback on an
// asynchronous delivery path.
type ObserverPanicError struct {
	Value any
	Stack []byte
}

func (e *ObserverPanicError) Error() string {
	return fmt.Sprintf("network: observer panicked: %v", e.Value)
}

func (e *ObserverPanicError) Unwrap() error {
	err, _ := e.Value.(error)
	return err
}
