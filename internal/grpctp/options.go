package grpctp

import (
	"time"

	"google.golang.org/grpc"
	"google.golang.org/grpc/backoff"
	"google.golang.org/grpc/credentials/insecure"
)

const (
	// DefaultService names the service that serves Execute and Subscribe.
	DefaultService = "relay.GraphQL"
	// DefaultTimeout bounds an Execute call whose context has no deadline.
	// Subscribe streams are never bounded by it.
	DefaultTimeout = 30 * time.Second
	// DefaultPoolSize is the number of idle connections kept per endpoint.
	DefaultPoolSize = 2
)

// Options configures a Transport. Provider resolves the endpoints that serve
// Service; without one every operation fails with ErrNoProvider. When
// DialOptions is empty, connections use plaintext credentials and gRPC's
// default reconnect backoff.
type Options struct {
	Provider    EndpointProvider
	Service     string
	PoolSize    int
	Timeout     time.Duration
	DialOptions []grpc.DialOption
}

// Option mutates Options.
type Option func(*Options)

func newOptions(opts []Option) *Options {
	o := &Options{
		Service:  DefaultService,
		PoolSize: DefaultPoolSize,
		Timeout:  DefaultTimeout,
	}
	for _, f := range opts {
		f(o)
	}
	if o.Service == "" {
		o.Service = DefaultService
	}
	if o.PoolSize <= 0 {
		o.PoolSize = DefaultPoolSize
	}
	if len(o.DialOptions) == 0 {
		o.DialOptions = []grpc.DialOption{
			grpc.WithTransportCredentials(insecure.NewCredentials()),
			grpc.WithConnectParams(grpc.ConnectParams{Backoff: backoff.DefaultConfig}),
		}
	}
	return o
}

// WithProvider sets the endpoint source.
func WithProvider(p EndpointProvider) Option { return func(o *Options) { o.Provider = p } }

// WithService overrides DefaultService.
func WithService(name string) Option { return func(o *Options) { o.Service = name } }

// WithPoolSize sets how many idle connections are kept per endpoint.
func WithPoolSize(n int) Option { return func(o *Options) { o.PoolSize = n } }

// WithTimeout sets the Execute deadline applied when the context has none.
// Zero disables it.
func WithTimeout(d time.Duration) Option { return func(o *Options) { o.Timeout = d } }

// WithDialOptions replaces the default dial options.
func WithDialOptions(opts ...grpc.DialOption) Option {
	return func(o *Options) { o.DialOptions = opts }
}
