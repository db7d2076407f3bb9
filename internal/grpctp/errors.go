package grpctp

import "errors"

var (
	// ErrNoEndpoints indicates the provider returned no endpoints for a service.
	ErrNoEndpoints = errors.New("grpctp: no endpoints available")
	// ErrNoProvider indicates the transport was built without an EndpointProvider.
	ErrNoProvider = errors.New("grpctp: provider not configured")
	// ErrClosed is returned by calls issued after Close.
	ErrClosed = errors.New("grpctp: closed")
	// ErrUploadsUnsupported is returned when a fetch carries uploadables.
	ErrUploadsUnsupported = errors.New("grpctp: uploadables are not supported over gRPC")
)
