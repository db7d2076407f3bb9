package envelope

import "errors"

var (
	// ErrNilRejection replaces a nil error passed to Promise.Reject.
	ErrNilRejection = errors.New("envelope: rejected with nil error")
)
