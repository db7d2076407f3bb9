package network

import (
	"context"
	"sync"
	"testing"

	"github.com/rs/zerolog"

	"github.com/andreassavva/relay/internal/envelope"
	"github.com/andreassavva/relay/internal/normalize"
	"github.com/andreassavva/relay/internal/operation"
)

const userQuery = `query UserQuery($id: ID!) { user(id: $id) { id name } }`

// fetchCall records one invocation of a mockFetcher.
type fetchCall struct {
	Operation string
	Variables map[string]any
	Force     bool
}

// mockFetcher answers each call with the next queued responder and records
// every call. Once the queue is exhausted the last responder repeats.
type mockFetcher struct {
	mu         sync.Mutex
	responders []func(call int) envelope.Response[normalize.Payload]
	calls      []fetchCall
}

func newMockFetcher(responders ...func(call int) envelope.Response[normalize.Payload]) *mockFetcher {
	return &mockFetcher{responders: responders}
}

func (m *mockFetcher) Fetch(ctx context.Context, op operation.Context, uploadables Uploadables) envelope.Response[normalize.Payload] {
	m.mu.Lock()
	m.calls = append(m.calls, fetchCall{
		Operation: op.Operation.Name,
		Variables: op.Variables,
		Force:     op.CacheConfig.Force,
	})
	n := len(m.calls)
	idx := min(n, len(m.responders)) - 1
	r := m.responders[idx]
	m.mu.Unlock()
	return r(n)
}

func (m *mockFetcher) Calls() []fetchCall {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]fetchCall, len(m.calls))
	copy(out, m.calls)
	return out
}

func (m *mockFetcher) CallCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.calls)
}

func userPayload(name string) normalize.Payload {
	return normalize.Payload{Data: map[string]any{
		"user": map[string]any{"id": "1", "name": name},
	}}
}

func dataOf(p normalize.Payload) func(int) envelope.Response[normalize.Payload] {
	return func(int) envelope.Response[normalize.Payload] { return envelope.Data(p) }
}

func errorOf(err error) func(int) envelope.Response[normalize.Payload] {
	return func(int) envelope.Response[normalize.Payload] { return envelope.Error[normalize.Payload](err) }
}

func userOp(t *testing.T, cfg operation.CacheConfig) operation.Context {
	t.Helper()
	return operation.New(operation.MustParse(userQuery, ""), map[string]any{"id": 1}, cfg)
}

func userName(res *normalize.Result) any {
	return res.Source["1"]["name"]
}

// newTestLayer returns a layer with logging disabled whose unhandled errors
// are collected on the returned channel.
func newTestLayer(fetch FetchFunc, opts ...Option) (*Layer, chan error) {
	reports := make(chan error, 16)
	base := []Option{
		WithLogger(zerolog.Nop()),
		WithErrorReporter(func(err error) { reports <- err }),
	}
	return New(fetch, append(base, opts...)...), reports
}

// recorder is an Observer that logs every callback.
type recorder struct {
	mu     sync.Mutex
	events []string
	values []*normalize.Result
	errs   []error
}

func (r *recorder) observer() Observer[*normalize.Result] {
	return Observer[*normalize.Result]{
		Next: func(res *normalize.Result) {
			r.mu.Lock()
			defer r.mu.Unlock()
			r.events = append(r.events, "next")
			r.values = append(r.values, res)
		},
		Error: func(err error) {
			r.mu.Lock()
			defer r.mu.Unlock()
			r.events = append(r.events, "error")
			r.errs = append(r.errs, err)
		},
		Completed: func() {
			r.mu.Lock()
			defer r.mu.Unlock()
			r.events = append(r.events, "completed")
		},
	}
}

func (r *recorder) Events() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.events...)
}

func (r *recorder) Values() []*normalize.Result {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]*normalize.Result(nil), r.values...)
}

func (r *recorder) Errors() []error {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]error(nil), r.errs...)
}
