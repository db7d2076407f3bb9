package events

import (
	"time"

	"google.golang.org/grpc/codes"
)

// GRPCClientStart is emitted before a gRPC client call or stream.
type GRPCClientStart struct {
	Method string
	Target string
}

// GRPCClientFinish is emitted after a gRPC client call completes or a stream
// ends.
type GRPCClientFinish struct {
	Method   string
	Target   string
	Code     codes.Code
	Err      error
	Duration time.Duration
}
