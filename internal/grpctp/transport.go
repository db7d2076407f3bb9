// Package grpctp carries GraphQL operations over gRPC. Requests and payloads
// are google.protobuf.Struct messages shaped like GraphQL-over-HTTP bodies:
// the unary method <Service>/Execute answers queries and mutations, the
// server-streaming method <Service>/Subscribe answers subscriptions.
package grpctp

import (
	"context"
	"errors"
	"fmt"
	"io"
	"math/rand/v2"
	"sync"
	"sync/atomic"
	"time"

	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/structpb"

	"github.com/andreassavva/relay/internal/envelope"
	eventbus "github.com/andreassavva/relay/internal/eventbus"
	events "github.com/andreassavva/relay/internal/events"
	"github.com/andreassavva/relay/internal/network"
	"github.com/andreassavva/relay/internal/normalize"
	"github.com/andreassavva/relay/internal/operation"
)

const (
	methodExecute   = "Execute"
	methodSubscribe = "Subscribe"
)

// Transport is a gRPC transport with connection pooling and deadline
// propagation. It integrates with an EndpointProvider for service discovery.
type Transport struct {
	opts *Options

	mu     sync.RWMutex
	pools  map[string]*connPool // key: endpoint
	closed atomic.Bool
}

// New returns a Transport configured by opts.
func New(opts ...Option) *Transport {
	return &Transport{
		opts:  newOptions(opts),
		pools: make(map[string]*connPool),
	}
}

var (
	_ network.FetchFunc     = (*Transport)(nil).Fetch
	_ network.SubscribeFunc = (*Transport)(nil).Subscribe
)

// Fetch runs the Execute call on a new goroutine and answers with a deferred
// payload.
func (t *Transport) Fetch(ctx context.Context, op operation.Context, uploadables network.Uploadables) envelope.Response[normalize.Payload] {
	if len(uploadables) > 0 {
		return envelope.Error[normalize.Payload](ErrUploadsUnsupported)
	}
	if err := t.usable(); err != nil {
		return envelope.Error[normalize.Payload](err)
	}
	return envelope.Deferred(envelope.Go(func() (normalize.Payload, error) {
		return t.Call(ctx, op)
	}))
}

// Call performs the unary Execute exchange synchronously.
func (t *Transport) Call(ctx context.Context, op operation.Context) (payload normalize.Payload, err error) {
	if err = t.usable(); err != nil {
		return
	}
	if _, ok := ctx.Deadline(); !ok && t.opts.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, t.opts.Timeout)
		defer cancel()
	}
	req, err := requestMessage(op)
	if err != nil {
		return
	}

	ctx = metadata.AppendToOutgoingContext(ctx, "x-relay-operation", op.Operation.Name)
	endpoint, err := t.pickEndpoint(ctx)
	if err != nil {
		return
	}
	cc, err := t.getConn(endpoint)
	if err != nil {
		return
	}
	defer t.returnConn(endpoint, cc)

	start := time.Now()
	eventbus.Publish(ctx, events.GRPCClientStart{Method: methodExecute, Target: endpoint})
	resp := &structpb.Struct{}
	err = cc.Invoke(ctx, t.fullMethod(methodExecute), req, resp)
	eventbus.Publish(ctx, events.GRPCClientFinish{
		Method:   methodExecute,
		Target:   endpoint,
		Code:     status.Code(err),
		Err:      err,
		Duration: time.Since(start),
	})
	if err != nil {
		return
	}
	return normalize.PayloadFromMap(resp.AsMap())
}

// Subscribe opens a Subscribe stream and forwards every received payload to
// obs. Disposing the returned handle cancels the stream; nothing is delivered
// after that.
func (t *Transport) Subscribe(ctx context.Context, op operation.Context, obs network.Observer[normalize.Payload]) network.Disposable {
	ctx, cancel := context.WithCancel(ctx)
	var disposed atomic.Bool
	d := network.NewDisposable(func() {
		disposed.Store(true)
		cancel()
	})

	fail := func(err error) {
		if !disposed.Load() && obs.Error != nil {
			obs.Error(err)
		}
	}

	go func() {
		defer cancel()
		if err := t.usable(); err != nil {
			fail(err)
			return
		}
		req, err := requestMessage(op)
		if err != nil {
			fail(err)
			return
		}
		ctx := metadata.AppendToOutgoingContext(ctx, "x-relay-operation", op.Operation.Name)
		endpoint, err := t.pickEndpoint(ctx)
		if err != nil {
			fail(err)
			return
		}
		cc, err := t.getConn(endpoint)
		if err != nil {
			fail(err)
			return
		}
		defer t.returnConn(endpoint, cc)

		start := time.Now()
		eventbus.Publish(ctx, events.GRPCClientStart{Method: methodSubscribe, Target: endpoint})
		err = t.stream(ctx, cc, req, func(p normalize.Payload) {
			if !disposed.Load() && obs.Next != nil {
				obs.Next(p)
			}
		})
		if disposed.Load() && status.Code(err) == codes.Canceled {
			err = nil
		}
		eventbus.Publish(ctx, events.GRPCClientFinish{
			Method:   methodSubscribe,
			Target:   endpoint,
			Code:     status.Code(err),
			Err:      err,
			Duration: time.Since(start),
		})
		switch {
		case disposed.Load():
		case err != nil:
			fail(err)
		case obs.Completed != nil:
			obs.Completed()
		}
	}()
	return d
}

// stream runs one server-streaming exchange until the server closes it.
func (t *Transport) stream(ctx context.Context, cc *grpc.ClientConn, req *structpb.Struct, next func(normalize.Payload)) error {
	desc := &grpc.StreamDesc{StreamName: methodSubscribe, ServerStreams: true}
	cs, err := cc.NewStream(ctx, desc, t.fullMethod(methodSubscribe))
	if err != nil {
		return err
	}
	if err := cs.SendMsg(req); err != nil {
		return err
	}
	if err := cs.CloseSend(); err != nil {
		return err
	}
	for {
		msg := &structpb.Struct{}
		if err := cs.RecvMsg(msg); err != nil {
			if errors.Is(err, io.EOF) {
				return nil
			}
			return err
		}
		p, err := normalize.PayloadFromMap(msg.AsMap())
		if err != nil {
			return err
		}
		next(p)
	}
}

func (t *Transport) Close() error {
	if t.closed.Swap(true) {
		return nil
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	for _, p := range t.pools {
		p.close()
	}
	t.pools = map[string]*connPool{}
	return nil
}

func requestMessage(op operation.Context) (*structpb.Struct, error) {
	vars := op.Variables
	if vars == nil {
		vars = map[string]any{}
	}
	fields := map[string]any{
		"query":     op.Operation.Text,
		"variables": vars,
	}
	if op.Operation.Name != "" {
		fields["operationName"] = op.Operation.Name
	}
	msg, err := structpb.NewStruct(fields)
	if err != nil {
		return nil, fmt.Errorf("grpctp: encode request: %w", err)
	}
	return msg, nil
}

func (t *Transport) fullMethod(name string) string {
	return fmt.Sprintf("/%s/%s", t.opts.Service, name)
}

func (t *Transport) usable() error {
	if t.closed.Load() {
		return ErrClosed
	}
	if t.opts.Provider == nil {
		return ErrNoProvider
	}
	return nil
}

func (t *Transport) pickEndpoint(ctx context.Context) (string, error) {
	endpoints, err := t.opts.Provider.Endpoints(ctx, t.opts.Service)
	if err != nil {
		return "", err
	}
	if len(endpoints) == 0 {
		return "", ErrNoEndpoints
	}
	return endpoints[rand.IntN(len(endpoints))], nil
}

// ---------------- internals ----------------

// connPool keeps idle connections for one endpoint. mu serializes returns
// with close so a connection is never sent on a closed channel.
type connPool struct {
	endpoint string
	opts     *Options

	mu     sync.Mutex
	conns  chan *grpc.ClientConn
	closed bool
}

func newConnPool(endpoint string, opts *Options) *connPool {
	return &connPool{
		endpoint: endpoint,
		opts:     opts,
		conns:    make(chan *grpc.ClientConn, opts.PoolSize),
	}
}

func (p *connPool) get() (*grpc.ClientConn, error) {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return nil, fmt.Errorf("grpctp: pool closed")
	}
	select {
	case cc := <-p.conns:
		p.mu.Unlock()
		return cc, nil
	default:
		p.mu.Unlock()
	}
	return grpc.NewClient(p.endpoint, p.opts.DialOptions...)
}

func (p *connPool) put(cc *grpc.ClientConn) {
	if cc == nil {
		return
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		_ = cc.Close()
		return
	}
	select {
	case p.conns <- cc:
	default:
		_ = cc.Close()
	}
}

func (p *connPool) close() {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return
	}
	p.closed = true
	close(p.conns)
	for cc := range p.conns {
		_ = cc.Close()
	}
}

func (t *Transport) getConn(endpoint string) (*grpc.ClientConn, error) {
	t.mu.RLock()
	pool := t.pools[endpoint]
	t.mu.RUnlock()
	if pool == nil {
		t.mu.Lock()
		pool = t.pools[endpoint]
		if pool == nil {
			pool = newConnPool(endpoint, t.opts)
			t.pools[endpoint] = pool
		}
		t.mu.Unlock()
	}
	return pool.get()
}

func (t *Transport) returnConn(endpoint string, cc *grpc.ClientConn) {
	t.mu.RLock()
	pool := t.pools[endpoint]
	t.mu.RUnlock()
	if pool != nil {
		pool.put(cc)
		return
	}
	_ = cc.Close()
}
