package events

import "time"

// RequestStart is emitted before the fetch primitive is called.
type RequestStart struct {
	OperationID   string
	OperationName string
	OperationKind string
	Force         bool
}

// RequestFinish is emitted once a request's outcome is known. For deferred
// responses this happens when the value settles.
type RequestFinish struct {
	OperationID   string
	OperationName string
	OperationKind string
	// ResponseKind is the envelope kind the fetch primitive answered with.
	ResponseKind string
	Err          error
	Duration     time.Duration
}
