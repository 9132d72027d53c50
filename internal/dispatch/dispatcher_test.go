package dispatch

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/agentic-orchestration/runtime/internal/agentcore"
)

func echoHandler(events ...Event) Handler {
	return func(ctx context.Context, req Request) (<-chan Event, error) {
		ch := make(chan Event, len(events))
		for _, ev := range events {
			ch <- ev
		}
		close(ch)
		return ch, nil
	}
}

func drain(ch <-chan Event) []Event {
	var out []Event
	for ev := range ch {
		out = append(out, ev)
	}
	return out
}

func TestDispatcher_Register_ReplacesExistingBinding(t *testing.T) {
	d := New()
	d.Register("p", echoHandler(Event{Kind: EventDone, Payload: `{"status":"ok"}`}))
	d.Register("p", echoHandler(Event{Kind: EventAnswer, Payload: "second"}, Event{Kind: EventDone, Payload: `{"status":"ok"}`}))

	events, err := d.Dispatch(context.Background(), Request{PipelineName: "p", SessionID: "s1"})
	require.NoError(t, err)

	got := drain(events)
	require.Len(t, got, 2)
	assert.Equal(t, EventAnswer, got[0].Kind)
	assert.Equal(t, "second", got[0].Payload)
}

func TestDispatcher_Dispatch_RelaysEventsEndingInSingleDone(t *testing.T) {
	d := New()
	d.Register("p", echoHandler(
		Event{Kind: EventLog, Payload: "starting"},
		Event{Kind: EventToken, Payload: "hel"},
		Event{Kind: EventToken, Payload: "lo"},
		Event{Kind: EventAnswer, Payload: "hello"},
		Event{Kind: EventDone, Payload: `{"status":"ok"}`},
	))

	events, err := d.Dispatch(context.Background(), Request{PipelineName: "p", SessionID: "s1"})
	require.NoError(t, err)

	got := drain(events)
	require.Len(t, got, 5)
	assert.Equal(t, EventDone, got[len(got)-1].Kind)

	doneCount := 0
	for _, ev := range got {
		if ev.Kind == EventDone {
			doneCount++
		}
	}
	assert.Equal(t, 1, doneCount)
}

func TestDispatcher_Dispatch_UnknownPipelineIsAnError(t *testing.T) {
	d := New()
	_, err := d.Dispatch(context.Background(), Request{PipelineName: "missing"})
	assert.Error(t, err)
}

func TestDispatcher_Dispatch_RateLimitExceededReturnsRateLimitedKind(t *testing.T) {
	d := New()
	d.Register("p", echoHandler(Event{Kind: EventDone, Payload: `{"status":"ok"}`}))

	var lastErr error
	for i := 0; i < 10; i++ {
		_, err := d.Dispatch(context.Background(), Request{PipelineName: "p", SessionID: "budget-test"})
		if err != nil {
			lastErr = err
			break
		}
	}

	require.Error(t, lastErr)
	re, ok := agentcore.AsRunError(lastErr)
	require.True(t, ok)
	assert.Equal(t, agentcore.KindRateLimited, re.Kind)
}

func TestDispatcher_Dispatch_DifferentSessionsHaveIndependentBudgets(t *testing.T) {
	d := New()
	d.Register("p", echoHandler(Event{Kind: EventDone, Payload: `{"status":"ok"}`}))

	for i := 0; i < 5; i++ {
		_, err := d.Dispatch(context.Background(), Request{PipelineName: "p", SessionID: "a"})
		require.NoError(t, err)
	}
	_, err := d.Dispatch(context.Background(), Request{PipelineName: "p", SessionID: "b"})
	assert.NoError(t, err)
}

func TestDispatcher_Dispatch_HandlerClosesWithoutDoneGetsOneSynthesized(t *testing.T) {
	d := New()
	d.Register("p", func(ctx context.Context, req Request) (<-chan Event, error) {
		ch := make(chan Event, 1)
		ch <- Event{Kind: EventLog, Payload: "only a log"}
		close(ch)
		return ch, nil
	})

	events, err := d.Dispatch(context.Background(), Request{PipelineName: "p", SessionID: "s2"})
	require.NoError(t, err)

	got := drain(events)
	require.Len(t, got, 2)
	assert.Equal(t, EventLog, got[0].Kind)
	require.Equal(t, EventDone, got[1].Kind)
	assert.Contains(t, got[1].Payload, "failed")
}

func TestDispatcher_Dispatch_WithMetricsRecordsWithoutError(t *testing.T) {
	d, err := NewWithMetrics("test-meter")
	require.NoError(t, err)
	d.Register("p", echoHandler(Event{Kind: EventDone, Payload: `{"status":"ok"}`}))

	events, err := d.Dispatch(context.Background(), Request{PipelineName: "p", SessionID: "s1"})
	require.NoError(t, err)
	got := drain(events)
	require.Len(t, got, 1)
	assert.Equal(t, EventDone, got[0].Kind)
}

func TestDispatcher_Dispatch_ContextCancellationSynthesizesCancelledDone(t *testing.T) {
	d := New()
	d.Register("p", func(ctx context.Context, req Request) (<-chan Event, error) {
		ch := make(chan Event)
		go func() {
			defer close(ch)
			ch <- Event{Kind: EventLog, Payload: "working"}
			<-ctx.Done()
		}()
		return ch, nil
	})

	ctx, cancel := context.WithCancel(context.Background())
	events, err := d.Dispatch(ctx, Request{PipelineName: "p", SessionID: "s3"})
	require.NoError(t, err)

	first := <-events
	assert.Equal(t, EventLog, first.Kind)

	cancel()

	select {
	case ev, ok := <-events:
		if ok {
			assert.Equal(t, EventDone, ev.Kind)
			assert.Contains(t, ev.Payload, "cancelled")
		}
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for cancellation to propagate")
	}
}
