package network

import (
	"context"
	"io"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/andreassavva/relay/internal/envelope"
	"github.com/andreassavva/relay/internal/normalize"
	"github.com/andreassavva/relay/internal/operation"
)

// FetchFunc performs one network operation. It must return a well-formed
// envelope: Data, Error, or Deferred.
type FetchFunc func(ctx context.Context, op operation.Context, uploadables Uploadables) envelope.Response[normalize.Payload]

// SubscribeFunc starts a live subscription and delivers raw payloads to obs
// until the returned Disposable is disposed.
type SubscribeFunc func(ctx context.Context, op operation.Context, obs Observer[normalize.Payload]) Disposable

// Uploadable is one file attached to a request.
type Uploadable struct {
	Filename    string
	ContentType string
	Body        io.Reader
}

// Uploadables maps variable paths (e.g. "variables.file") to files.
type Uploadables map[string]Uploadable

// Layer executes operations through a fetch primitive and, optionally, a
// subscribe primitive.
type Layer struct {
	fetch      FetchFunc
	subscribe  SubscribeFunc
	normalizer normalize.Normalizer
	normOpts   normalize.Options
	report     func(error)
	logger     zerolog.Logger
}

type Option func(*Layer)

// WithSubscribe enables subscription operations.
func WithSubscribe(fn SubscribeFunc) Option { return func(l *Layer) { l.subscribe = fn } }

// WithNormalizer replaces the default RecordNormalizer.
func WithNormalizer(n normalize.Normalizer) Option { return func(l *Layer) { l.normalizer = n } }

func WithNormalizeOptions(o normalize.Options) Option { return func(l *Layer) { l.normOpts = o } }

// WithErrorReporter sets the hook that receives undeliverable errors. It is
// always called on its own goroutine.
func WithErrorReporter(fn func(error)) Option { return func(l *Layer) { l.report = fn } }

func WithLogger(logger zerolog.Logger) Option { return func(l *Layer) { l.logger = logger } }

// New creates a Layer around fetch. It panics if fetch is nil.
func New(fetch FetchFunc, opts ...Option) *Layer {
	if fetch == nil {
		panic("network: New called with nil fetch function")
	}
	l := &Layer{
		fetch:      fetch,
		normalizer: normalize.NewRecordNormalizer(),
		logger:     log.Logger,
	}
	for _, f := range opts {
		f(l)
	}
	if l.report == nil {
		logger := l.logger
		l.report = func(err error) {
			logger.Error().Err(err).Msg("network: unhandled error")
		}
	}
	return l
}

// Fetch calls the raw fetch primitive without normalization.
func (l *Layer) Fetch(ctx context.Context, op operation.Context, uploadables Uploadables) envelope.Response[normalize.Payload] {
	return l.fetch(ctx, op, uploadables)
}

func (l *Layer) normalize(op operation.Context, p normalize.Payload) (*normalize.Result, error) {
	return normalize.Apply(l.normalizer, op, p, l.normOpts)
}
