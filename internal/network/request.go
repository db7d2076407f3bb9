package network

import (
	"context"
	"fmt"
	"time"

	"github.com/andreassavva/relay/internal/envelope"
	eventbus "github.com/andreassavva/relay/internal/eventbus"
	events "github.com/andreassavva/relay/internal/events"
	"github.com/andreassavva/relay/internal/normalize"
	"github.com/andreassavva/relay/internal/operation"
	reqid "github.com/andreassavva/relay/internal/reqid"
)

// Request performs one fetch and normalizes its payload. The returned
// envelope has the same kind as the fetch primitive's answer: Data stays
// Data unless normalization fails (then Error), Error passes through, and
// Deferred maps the pending value, rejecting it if normalization fails.
func (l *Layer) Request(ctx context.Context, op operation.Context, uploadables Uploadables) envelope.Response[*normalize.Result] {
	ctx, _ = reqid.NewContext(ctx)
	start := time.Now()
	eventbus.Publish(ctx, events.RequestStart{
		OperationID:   op.Operation.ID,
		OperationName: op.Operation.Name,
		OperationKind: string(op.Operation.Kind),
		Force:         op.CacheConfig.Force,
	})
	finish := func(kind envelope.Kind, err error) {
		eventbus.Publish(ctx, events.RequestFinish{
			OperationID:   op.Operation.ID,
			OperationName: op.Operation.Name,
			OperationKind: string(op.Operation.Kind),
			ResponseKind:  kind.String(),
			Err:           err,
			Duration:      time.Since(start),
		})
	}

	raw := l.fetch(ctx, op, uploadables)
	switch raw.Kind() {
	case envelope.KindData:
		payload, _ := raw.Value()
		res, err := l.normalize(op, payload)
		if err != nil {
			finish(envelope.KindError, err)
			return envelope.Error[*normalize.Result](err)
		}
		finish(envelope.KindData, nil)
		return envelope.Data(res)

	case envelope.KindError:
		finish(envelope.KindError, raw.Err())
		return envelope.Error[*normalize.Result](raw.Err())

	case envelope.KindDeferred:
		mapped := envelope.MapFuture(raw.Future(), func(p normalize.Payload) (*normalize.Result, error) {
			return l.normalize(op, p)
		})
		mapped.OnSettle(func(_ *normalize.Result, err error) {
			finish(envelope.KindDeferred, err)
		})
		return envelope.Deferred(mapped)

	default:
		panic(fmt.Sprintf("network: fetch for operation %q returned unknown response kind %s", op.Operation.Name, raw.Kind()))
	}
}
