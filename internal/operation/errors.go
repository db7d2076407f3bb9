package operation

import "errors"

var (
	ErrOperationNotFound  = errors.New("operation not found")
	ErrAmbiguousOperation = errors.New("document contains multiple operations; an operation name is required")
)
