// Package httptp is a network.FetchFunc over GraphQL-over-HTTP: a JSON POST
// of {query, operationName, variables}, or a multipart request when the
// fetch carries uploadables.
package httptp

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"sync/atomic"
	"time"

	"github.com/andreassavva/relay/internal/envelope"
	eventbus "github.com/andreassavva/relay/internal/eventbus"
	events "github.com/andreassavva/relay/internal/events"
	"github.com/andreassavva/relay/internal/network"
	"github.com/andreassavva/relay/internal/normalize"
	"github.com/andreassavva/relay/internal/operation"
)

// Transport posts operations to one GraphQL endpoint.
type Transport struct {
	opts   *Options
	client *http.Client
	closed atomic.Bool
}

func New(opts ...Option) *Transport {
	o := defaultOptions()
	for _, f := range opts {
		f(o)
	}
	client := o.Client
	if client == nil {
		client = &http.Client{Transport: http.DefaultTransport.(*http.Transport).Clone()}
	}
	return &Transport{opts: o, client: client}
}

var _ network.FetchFunc = (*Transport)(nil).Fetch

type requestBody struct {
	Query         string         `json:"query"`
	OperationName string         `json:"operationName,omitempty"`
	Variables     map[string]any `json:"variables"`
}

// Fetch sends op on a new goroutine and answers with a deferred payload.
func (t *Transport) Fetch(ctx context.Context, op operation.Context, uploadables network.Uploadables) envelope.Response[normalize.Payload] {
	if t.closed.Load() {
		return envelope.Error[normalize.Payload](ErrClosed)
	}
	if t.opts.Endpoint == "" {
		return envelope.Error[normalize.Payload](ErrNoEndpoint)
	}
	return envelope.Deferred(envelope.Go(func() (normalize.Payload, error) {
		return t.Do(ctx, op, uploadables)
	}))
}

// Do performs the HTTP exchange synchronously.
func (t *Transport) Do(ctx context.Context, op operation.Context, uploadables network.Uploadables) (normalize.Payload, error) {
	if _, ok := ctx.Deadline(); !ok && t.opts.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, t.opts.Timeout)
		defer cancel()
	}

	req, err := t.buildRequest(ctx, op, uploadables)
	if err != nil {
		return normalize.Payload{}, err
	}

	start := time.Now()
	eventbus.Publish(ctx, events.HTTPClientStart{Method: req.Method, URL: t.opts.Endpoint})
	payload, status, err := t.roundTrip(req)
	eventbus.Publish(ctx, events.HTTPClientFinish{
		Method:   req.Method,
		URL:      t.opts.Endpoint,
		Status:   status,
		Err:      err,
		Duration: time.Since(start),
	})
	return payload, err
}

func (t *Transport) buildRequest(ctx context.Context, op operation.Context, uploadables network.Uploadables) (*http.Request, error) {
	body := requestBody{
		Query:         op.Operation.Text,
		OperationName: op.Operation.Name,
		Variables:     op.Variables,
	}

	var (
		reader      io.Reader
		contentType string
	)
	if len(uploadables) > 0 {
		var err error
		reader, contentType, err = encodeMultipart(body, uploadables)
		if err != nil {
			return nil, err
		}
	} else {
		raw, err := json.Marshal(body)
		if err != nil {
			return nil, fmt.Errorf("httptp: encode request: %w", err)
		}
		reader, contentType = bytes.NewReader(raw), "application/json"
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, t.opts.Endpoint, reader)
	if err != nil {
		return nil, fmt.Errorf("httptp: build request: %w", err)
	}
	for k, vs := range t.opts.Headers {
		for _, v := range vs {
			req.Header.Add(k, v)
		}
	}
	req.Header.Set("Content-Type", contentType)
	req.Header.Set("Accept", "application/graphql-response+json, application/json")
	return req, nil
}

func (t *Transport) roundTrip(req *http.Request) (normalize.Payload, int, error) {
	resp, err := t.client.Do(req)
	if err != nil {
		return normalize.Payload{}, 0, fmt.Errorf("httptp: %s %s: %w", req.Method, t.opts.Endpoint, err)
	}
	defer func() { _ = resp.Body.Close() }()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return normalize.Payload{}, resp.StatusCode, fmt.Errorf("httptp: read response body: %w", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return normalize.Payload{}, resp.StatusCode, &StatusError{StatusCode: resp.StatusCode, Body: raw}
	}
	payload, err := normalize.DecodePayload(raw)
	if err != nil {
		return normalize.Payload{}, resp.StatusCode, fmt.Errorf("httptp: decode response: %w", err)
	}
	return payload, resp.StatusCode, nil
}

// Close makes later fetches fail and releases idle connections.
func (t *Transport) Close() error {
	if t.closed.Swap(true) {
		return nil
	}
	t.client.CloseIdleConnections()
	return nil
}
