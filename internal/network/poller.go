package network

import (
	"context"
	"sync"
	"time"

	eventbus "github.com/andreassavva/relay/internal/eventbus"
	events "github.com/andreassavva/relay/internal/events"
	"github.com/andreassavva/relay/internal/normalize"
	"github.com/andreassavva/relay/internal/operation"
	reqid "github.com/andreassavva/relay/internal/reqid"
)

type pollState uint8

const (
	pollScheduled pollState = iota
	pollExecuting
	pollStopped
)

func (s pollState) String() string {
	switch s {
	case pollScheduled:
		return "scheduled"
	case pollExecuting:
		return "executing"
	default:
		return "stopped"
	}
}

type poller struct {
	l        *Layer
	ctx      context.Context
	op       operation.Context
	interval time.Duration
	h        *handle
	s        *sink[*normalize.Result]

	mu    sync.Mutex
	state pollState
	timer *time.Timer
	ticks int
}

// Poll runs op every interval and delivers each normalized result to obs.
// The first tick runs before Poll returns. Every tick bypasses caches; the
// next tick is armed only after the current one has delivered. A failed tick
// delivers the error and stops polling.
func (l *Layer) Poll(ctx context.Context, op operation.Context, obs Observer[*normalize.Result], interval time.Duration) (Disposable, error) {
	if interval <= 0 {
		return nil, &ConfigError{Operation: op.Operation.Name, Err: ErrInvalidPollInterval}
	}
	ctx, _ = reqid.NewContext(ctx)
	h := newHandle()
	p := &poller{
		l:        l,
		ctx:      ctx,
		op:       op.WithForce(),
		interval: interval,
		h:        h,
		s:        l.newSink(ctx, h, op, events.StreamModePoll, obs),
		state:    pollScheduled,
	}
	h.onDispose(p.stop)
	p.run()
	return h, nil
}

// run executes one tick: Scheduled -> Executing.
func (p *poller) run() {
	p.mu.Lock()
	if p.state != pollScheduled || p.h.isDisposed() {
		p.state = pollStopped
		p.mu.Unlock()
		return
	}
	p.state = pollExecuting
	p.ticks++
	tick := p.ticks
	p.mu.Unlock()

	eventbus.Publish(p.ctx, events.PollTick{
		OperationID:   p.op.Operation.ID,
		OperationName: p.op.Operation.Name,
		Tick:          tick,
	})
	p.l.Request(p.ctx, p.op, nil).Then(p.succeeded, p.failed)
}

// succeeded delivers a result and re-arms the timer: Executing -> Scheduled.
func (p *poller) succeeded(res *normalize.Result) {
	p.l.guard(p.h, func() { p.s.next(res) })

	p.mu.Lock()
	defer p.mu.Unlock()
	if p.state != pollExecuting {
		return
	}
	if p.h.isDisposed() {
		p.state = pollStopped
		return
	}
	p.state = pollScheduled
	p.timer = time.AfterFunc(p.interval, p.run)
}

// failed reports err and stops: Executing -> Stopped.
func (p *poller) failed(err error) {
	p.mu.Lock()
	p.state = pollStopped
	p.mu.Unlock()

	p.l.guard(p.h, func() { p.s.error(err) })
	p.h.Dispose()
}

func (p *poller) stop() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.state = pollStopped
	if p.timer != nil {
		p.timer.Stop()
	}
}
