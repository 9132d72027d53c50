// Package dispatch implements the Dispatcher & Stream component (C8): a
// registry of pipeline handlers that turns a request into a channel of
// events, generalizing a ResponseChunk streaming loop
// idiom from one fixed struct to a closed EventKind sum type, and reusing
// the pack's channel/command registry pattern (replace-on-register,
// lookup-by-name) for Register/Dispatch.
package dispatch

import (
	"context"
	"fmt"
	"sync"

	"github.com/agentic-orchestration/runtime/internal/agentcore"
)

// EventKind is the closed set of event kinds a handler may emit.
type EventKind string

const (
	EventLog     EventKind = "log"
	EventToken   EventKind = "token"
	EventAnswer  EventKind = "answer"
	EventSources EventKind = "sources"
	EventReport  EventKind = "report"
	EventDone    EventKind = "done"
)

// Event is one item on a dispatched run's stream. Payload is the kind's
// JSON-encoded body; callers decode according to Kind.
type Event struct {
	Kind    EventKind
	Payload string
}

// Request is what a caller hands the Dispatcher to start a run.
type Request struct {
	PipelineName string
	Task         string
	SessionID    string
	Inputs       map[string]any
}

// Handler starts a run and streams its events. It must emit exactly one
// terminal EventDone before its channel closes, and must never drop an
// event silently: a slow consumer blocks the handler rather than losing
// output.
type Handler func(ctx context.Context, req Request) (<-chan Event, error)

// Dispatcher holds the registry of pipeline handlers and enforces the
// per-session rate limit ahead of every dispatch.
type Dispatcher struct {
	mu       sync.RWMutex
	handlers map[string]Handler
	limiter  *PerKeyLimiter
	metrics  *Metrics
}

// New builds a Dispatcher with the default per-session budget: 5
// tokens, refilled at 5 per 10 seconds.
func New() *Dispatcher {
	return &Dispatcher{
		handlers: make(map[string]Handler),
		limiter: NewPerKeyLimiter(func(string) RateLimiter {
			return NewTokenBucket(0.5, 5)
		}),
	}
}

// NewWithMetrics is New plus OTel instrumentation built against meterName
// (typically the module path). Instrumentation failures (e.g. a
// misconfigured global MeterProvider) are returned rather than silently
// swallowed, since they indicate a caller setup bug, not a runtime
// condition to degrade past.
func NewWithMetrics(meterName string) (*Dispatcher, error) {
	m, err := NewMetrics(meterName)
	if err != nil {
		return nil, err
	}
	return New().WithMetrics(m), nil
}

// WithMetrics attaches OTel instrumentation; a nil *Metrics (the default)
// makes every recording call a no-op, so instrumentation is opt-in.
func (d *Dispatcher) WithMetrics(m *Metrics) *Dispatcher {
	d.metrics = m
	return d
}

// WithRateLimit replaces the per-session token bucket budget, letting a
// caller override New()'s default 5/10s from configuration.
func (d *Dispatcher) WithRateLimit(refillPerSecond float64, burst int) *Dispatcher {
	d.limiter = NewPerKeyLimiter(func(string) RateLimiter {
		return NewTokenBucket(refillPerSecond, burst)
	})
	return d
}

// Register binds name to h, replacing any existing binding for name.
func (d *Dispatcher) Register(name string, h Handler) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.handlers[name] = h
}

// Dispatch looks up the handler for req.PipelineName, applies the
// per-session rate limit, and starts the run. The returned channel is
// guaranteed to carry exactly one terminal EventDone before it closes,
// even if the handler's own channel closes without one or ctx is
// cancelled mid-stream.
func (d *Dispatcher) Dispatch(ctx context.Context, req Request) (<-chan Event, error) {
	d.mu.RLock()
	handler, ok := d.handlers[req.PipelineName]
	d.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("dispatch: no handler registered for pipeline %q", req.PipelineName)
	}

	key := req.SessionID
	if key == "" {
		key = req.PipelineName
	}
	if !d.limiter.Allow(key) {
		d.metrics.recordRateLimited(ctx, req.PipelineName)
		return nil, agentcore.NewRunError(agentcore.KindRateLimited,
			fmt.Sprintf("rate limit exceeded for session %q", key), nil)
	}

	events, err := handler(ctx, req)
	if err != nil {
		return nil, err
	}
	d.metrics.recordDispatched(ctx, req.PipelineName)
	return guardTerminalDone(ctx, events, d.metrics, req.PipelineName), nil
}

// guardTerminalDone relays events from upstream and guarantees the
// consumer sees exactly one terminal done event: the handler's own, or a
// synthesized failed/cancelled one if upstream closes without emitting
// one or ctx is cancelled first. It also records the run's end against
// metrics (a nil metrics is a no-op), exactly once, regardless of which
// of those three paths produced the terminal event.
func guardTerminalDone(ctx context.Context, upstream <-chan Event, metrics *Metrics, pipeline string) <-chan Event {
	out := make(chan Event)
	go func() {
		defer close(out)
		defer metrics.recordRunEnded(context.Background(), pipeline)
		sawDone := false
		for {
			select {
			case <-ctx.Done():
				if !sawDone {
					out <- Event{Kind: EventDone, Payload: `{"status":"cancelled"}`}
				}
				return
			case ev, ok := <-upstream:
				if !ok {
					if !sawDone {
						out <- Event{Kind: EventDone, Payload: `{"status":"failed","error":"handler closed without a terminal done event"}`}
					}
					return
				}
				if ev.Kind == EventDone {
					sawDone = true
				}
				select {
				case out <- ev:
				case <-ctx.Done():
					if !sawDone {
						out <- Event{Kind: EventDone, Payload: `{"status":"cancelled"}`}
					}
					return
				}
				if sawDone {
					return
				}
			}
		}
	}()
	return out
}
