package network

import (
	"context"
	"fmt"

	"github.com/andreassavva/relay/internal/envelope"
	eventbus "github.com/andreassavva/relay/internal/eventbus"
	events "github.com/andreassavva/relay/internal/events"
	"github.com/andreassavva/relay/internal/normalize"
	"github.com/andreassavva/relay/internal/operation"
	reqid "github.com/andreassavva/relay/internal/reqid"
)

// RequestStream executes op and drives obs with its results. See the package
// documentation for how the driver is chosen. Configuration errors are
// returned before any network interaction.
func (l *Layer) RequestStream(ctx context.Context, op operation.Context, obs Observer[*normalize.Result]) (Disposable, error) {
	if op.Operation.IsSubscription() {
		if l.subscribe == nil {
			return nil, &ConfigError{Operation: op.Operation.Name, Err: ErrSubscribeNotConfigured}
		}
		return l.subscribeStream(ctx, op, obs), nil
	}
	if interval, ok := op.CacheConfig.PollInterval(); ok {
		return l.Poll(ctx, op, obs, interval)
	}
	return l.requestOnce(ctx, op, obs), nil
}

// newSink publishes the stream's start event and returns the sink that
// publishes its finish. ctx carries the stream's execution id.
func (l *Layer) newSink(ctx context.Context, h *handle, op operation.Context, mode string, obs Observer[*normalize.Result]) *sink[*normalize.Result] {
	l.logger.Debug().
		Str("operation", op.Operation.Name).
		Str("mode", mode).
		Msg("network: stream started")
	eventbus.Publish(ctx, events.StreamStart{
		OperationID:   op.Operation.ID,
		OperationName: op.Operation.Name,
		Mode:          mode,
	})
	finish := func(disposed bool, err error) {
		eventbus.Publish(ctx, events.StreamFinish{
			OperationID:   op.Operation.ID,
			OperationName: op.Operation.Name,
			Mode:          mode,
			Disposed:      disposed,
			Err:           err,
		})
	}
	h.onDispose(func() {
		if !h.terminal.Load() {
			finish(true, nil)
		}
	})
	return &sink[*normalize.Result]{
		h:        h,
		obs:      obs,
		report:   l.reportAsync,
		finished: func(err error) { finish(false, err) },
	}
}

func (l *Layer) requestOnce(ctx context.Context, op operation.Context, obs Observer[*normalize.Result]) Disposable {
	ctx, _ = reqid.NewContext(ctx)
	h := newHandle()
	s := l.newSink(ctx, h, op, events.StreamModeRequest, obs)

	resp := l.Request(ctx, op, nil)
	switch resp.Kind() {
	case envelope.KindData:
		res, _ := resp.Value()
		s.next(res)
		s.complete()
	case envelope.KindError:
		s.error(resp.Err())
	case envelope.KindDeferred:
		resp.Future().OnSettle(func(res *normalize.Result, err error) {
			l.guard(h, func() {
				if err != nil {
					s.error(err)
					return
				}
				s.next(res)
				s.complete()
			})
		})
	default:
		panic(fmt.Sprintf("network: unknown response kind %s", resp.Kind()))
	}
	return h
}

func (l *Layer) subscribeStream(ctx context.Context, op operation.Context, obs Observer[*normalize.Result]) Disposable {
	ctx, _ = reqid.NewContext(ctx)
	h := newHandle()
	s := l.newSink(ctx, h, op, events.StreamModeSubscription, obs)

	upstream := l.subscribe(ctx, op, Observer[normalize.Payload]{
		Next: func(p normalize.Payload) {
			if s.closed() {
				return
			}
			res, err := l.normalize(op, p)
			if err != nil {
				l.guard(h, func() { s.error(err) })
				h.Dispose()
				return
			}
			l.guard(h, func() { s.next(res) })
		},
		Error: func(err error) {
			l.guard(h, func() { s.error(err) })
		},
		Completed: func() {
			l.guard(h, func() { s.complete() })
		},
	})
	if upstream != nil {
		h.onDispose(upstream.Dispose)
	}
	return h
}
