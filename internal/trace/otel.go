// Package trace's otel.go backs the Trace Journal with an OpenTelemetry
// span per node/tool lifecycle, grounded on
// internal/observability/tracing.go's NewTracer (same OTLP-gRPC exporter
// and resource wiring; no sampler is set, so the SDK default applies),
// narrowed to exactly the span lifecycle
// this journal's TraceEvent kinds need instead of that file's general
// HTTP/DB/message span helpers.
package trace

import (
	"context"
	"sync"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracegrpc"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	oteltrace "go.opentelemetry.io/otel/trace"
)

// ProviderConfig configures the OTLP span exporter backing the journal's
// spans. An empty Endpoint yields a provider with no exporter: spans are
// still created (so the instrumentation path is always exercised) but
// nothing is shipped anywhere, matching a "no endpoint, no-op"
// fallback.
type ProviderConfig struct {
	ServiceName string
	Endpoint    string
	Insecure    bool
}

// NewTracerProvider builds an SDK tracer provider per cfg and returns it
// alongside a shutdown function the caller must invoke on exit.
func NewTracerProvider(ctx context.Context, cfg ProviderConfig) (*sdktrace.TracerProvider, func(context.Context) error, error) {
	if cfg.ServiceName == "" {
		cfg.ServiceName = "agentic-orchestration-runtime"
	}

	res, err := resource.New(ctx, resource.WithAttributes(
		attribute.String("service.name", cfg.ServiceName),
	))
	if err != nil {
		res = resource.Default()
	}

	opts := []sdktrace.TracerProviderOption{sdktrace.WithResource(res)}

	if cfg.Endpoint != "" {
		grpcOpts := []otlptracegrpc.Option{otlptracegrpc.WithEndpoint(cfg.Endpoint)}
		if cfg.Insecure {
			grpcOpts = append(grpcOpts, otlptracegrpc.WithInsecure())
		}
		exporter, err := otlptrace.New(ctx, otlptracegrpc.NewClient(grpcOpts...))
		if err != nil {
			return nil, nil, err
		}
		opts = append(opts, sdktrace.WithBatcher(exporter))
	}

	provider := sdktrace.NewTracerProvider(opts...)
	otel.SetTracerProvider(provider)
	return provider, provider.Shutdown, nil
}

// SpanJournal wraps a Journal, opening an OTel span for every node_enter
// (closed on the matching node_exit) and tool_request (closed on the
// matching tool_response), keyed by run id plus node/tool-call id so
// interleaved spans from concurrent runs (the Dispatcher may host
// many runs in parallel) never cross-close each other's spans.
type SpanJournal struct {
	*Journal
	tracer oteltrace.Tracer

	mu    sync.Mutex
	spans map[string]oteltrace.Span
}

// NewSpanJournal wraps journal with OTel spans derived from tracerName.
func NewSpanJournal(journal *Journal, tracerName string) *SpanJournal {
	return &SpanJournal{
		Journal: journal,
		tracer:  otel.Tracer(tracerName),
		spans:   make(map[string]oteltrace.Span),
	}
}

// Record delegates to the underlying Journal and additionally opens/closes
// the OTel span for the event's kind.
func (s *SpanJournal) Record(event TraceEvent) error {
	switch event.Kind {
	case KindNodeEnter:
		s.startSpan(spanKey(event.RunID, "node", event.Node), "node:"+event.Node, event)
	case KindNodeExit:
		s.endSpan(spanKey(event.RunID, "node", event.Node), event, nil)
	case KindToolRequest:
		s.startSpan(spanKey(event.RunID, "tool", event.ToolCallID), "tool:"+event.Tool, event)
	case KindToolResponse:
		var err error
		if v, ok := event.Metadata["is_error"]; ok {
			if b, ok := v.(bool); ok && b {
				err = errToolFailed
			}
		}
		s.endSpan(spanKey(event.RunID, "tool", event.ToolCallID), event, err)
	}
	return s.Journal.Record(event)
}

var errToolFailed = sdkToolError("tool reported is_error")

type sdkToolError string

func (e sdkToolError) Error() string { return string(e) }

func (s *SpanJournal) startSpan(key, name string, event TraceEvent) {
	_, span := s.tracer.Start(context.Background(), name, oteltrace.WithAttributes(
		attribute.String("session_id", event.SessionID),
		attribute.String("run_id", event.RunID),
	))
	s.mu.Lock()
	s.spans[key] = span
	s.mu.Unlock()
}

func (s *SpanJournal) endSpan(key string, event TraceEvent, err error) {
	s.mu.Lock()
	span, ok := s.spans[key]
	if ok {
		delete(s.spans, key)
	}
	s.mu.Unlock()
	if !ok {
		return
	}
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	span.End()
}

func spanKey(runID, kind, id string) string {
	return runID + "/" + kind + "/" + id
}
