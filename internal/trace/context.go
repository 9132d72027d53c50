package trace

import (
	"context"
	"time"
)

// Recorder is the narrow seam an engine needs to emit TraceEvents, satisfied
// by both *Journal and *SpanJournal without modification to either.
type Recorder interface {
	Record(event TraceEvent) error
}

// contextKey is unexported so only this package can populate or read the
// run-scoped Recorder carried on a context.
type contextKey struct{}

type runContext struct {
	recorder  Recorder
	sessionID string
	runID     string
}

// WithRun attaches a Recorder plus the session/run identity to ctx. Engines
// downstream call RecordEvent against the returned context instead of
// threading a Recorder through every function signature; a nil recorder is
// valid and makes RecordEvent a no-op, so callers that don't want tracing
// don't have to special-case it.
func WithRun(ctx context.Context, recorder Recorder, sessionID, runID string) context.Context {
	return context.WithValue(ctx, contextKey{}, &runContext{
		recorder:  recorder,
		sessionID: sessionID,
		runID:     runID,
	})
}

// RecordEvent fills in SessionID, RunID, and Timestamp from the context's
// run (if any) and records the event. It is a no-op when ctx carries no run
// or the run's Recorder is nil, so engines can call it unconditionally at
// every node/tool/LLM call site regardless of whether tracing is wired up.
func RecordEvent(ctx context.Context, event TraceEvent) {
	rc, ok := ctx.Value(contextKey{}).(*runContext)
	if !ok || rc == nil || rc.recorder == nil {
		return
	}
	if event.SessionID == "" {
		event.SessionID = rc.sessionID
	}
	if event.RunID == "" {
		event.RunID = rc.runID
	}
	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now()
	}
	_ = rc.recorder.Record(event)
}
