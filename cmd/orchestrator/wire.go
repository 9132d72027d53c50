package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/agentic-orchestration/runtime/internal/agentcore"
	"github.com/agentic-orchestration/runtime/internal/config"
	"github.com/agentic-orchestration/runtime/internal/dispatch"
	"github.com/agentic-orchestration/runtime/internal/graph"
	"github.com/agentic-orchestration/runtime/internal/pipeline"
	"github.com/agentic-orchestration/runtime/internal/retrieval"
	"github.com/agentic-orchestration/runtime/internal/state"
	"github.com/agentic-orchestration/runtime/internal/trace"
	"github.com/agentic-orchestration/runtime/internal/vectorstore"
)

// Completer is the opaque LLM seam, mirrored locally the same
// way graph.Completer and retrieval.Completer mirror it: one Dependencies
// value satisfies all three structurally, with no import cycle between
// the engine packages.
type Completer interface {
	Complete(ctx context.Context, system, user string, opts map[string]any) (string, error)
}

// Dependencies holds the external collaborators this runtime deliberately
// leaves unimplemented by this runtime. A nil field disables whichever
// pipeline needs it; Wire never fabricates a stand-in.
type Dependencies struct {
	Completer         Completer
	EmbeddingProvider vectorstore.EmbeddingProvider
	Searcher          retrieval.Searcher
	Fetcher           retrieval.Fetcher
}

// Wire registers every pipeline Dependencies has the collaborators for and
// returns which of "graph", "pipeline", "retrieval" were actually bound.
func Wire(d *dispatch.Dispatcher, cfg *config.Config, deps Dependencies) map[string]bool {
	registered := map[string]bool{"graph": false, "pipeline": false, "retrieval": false}

	if deps.Completer != nil {
		d.Register("graph", journaled(cfg, graphHandler(deps.Completer)))
		registered["graph"] = true

		d.Register("pipeline", journaled(cfg, pipelineHandler(cfg, deps.Completer)))
		registered["pipeline"] = true
	}

	if deps.Completer != nil && deps.EmbeddingProvider != nil {
		index := vectorstore.NewMemoryIndex(deps.EmbeddingProvider, "vector")
		d.Register("retrieval", journaled(cfg, retrievalHandler(deps.Completer, index, deps.Searcher, deps.Fetcher)))
		registered["retrieval"] = true
	}

	return registered
}

// journaled wraps a Handler so every dispatched run gets its own
// run_start/run_end TraceEvent on a fresh per-run SpanJournal file under
// cfg.JournalDir, named by session id and a fresh run id — the
// Dispatcher-level integration point for the Trace Journal. The same
// SpanJournal is attached to ctx via trace.WithRun, so the per-node/
// per-tool/per-LLM-call TraceEvents recorded inside Graph, Pipeline, and
// Retrieval land in the same run's journal alongside run_start/run_end.
func journaled(cfg *config.Config, next dispatch.Handler) dispatch.Handler {
	return func(ctx context.Context, req dispatch.Request) (<-chan dispatch.Event, error) {
		runID := uuid.NewString()
		sessionID := req.SessionID
		if sessionID == "" {
			sessionID = runID
		}

		if err := os.MkdirAll(cfg.JournalDir, 0o755); err != nil {
			return nil, fmt.Errorf("wire: failed to create journal dir: %w", err)
		}
		journal, err := trace.NewJournalFile(filepath.Join(cfg.JournalDir, sessionID+"-"+runID+".jsonl"), sessionID)
		if err != nil {
			return nil, fmt.Errorf("wire: failed to open run journal: %w", err)
		}
		spans := trace.NewSpanJournal(journal, cfg.ServiceName)
		ctx = trace.WithRun(ctx, spans, sessionID, runID)

		_ = spans.Record(trace.TraceEvent{Kind: trace.KindRunStart, SessionID: sessionID, RunID: runID, Timestamp: time.Now()})

		events, err := next(ctx, req)
		if err != nil {
			_ = spans.Record(trace.TraceEvent{Kind: trace.KindRunEnd, SessionID: sessionID, RunID: runID, Timestamp: time.Now(), Metadata: map[string]any{"error": err.Error()}})
			_ = journal.Close()
			return nil, err
		}

		out := make(chan dispatch.Event)
		go func() {
			defer close(out)
			defer journal.Close()
			for ev := range events {
				if ev.Kind == dispatch.EventDone {
					_ = spans.Record(trace.TraceEvent{Kind: trace.KindRunEnd, SessionID: sessionID, RunID: runID, Timestamp: time.Now(), Output: ev.Payload})
				}
				select {
				case out <- ev:
				case <-ctx.Done():
					return
				}
			}
		}()
		return out, nil
	}
}

func graphHandler(completer Completer) dispatch.Handler {
	return func(ctx context.Context, req dispatch.Request) (<-chan dispatch.Event, error) {
		ch := make(chan dispatch.Event)
		go func() {
			defer close(ch)

			registry := agentcore.NewToolRegistry()
			eng := graph.New(completer, registry, graph.DefaultMaxSteps)

			emit := func(kind graph.EventKind, payload string) {
				dk := dispatch.EventLog
				switch {
				case kind == graph.EventToken && strings.HasPrefix(payload, graph.ReflectBriefingPrefix):
					dk = dispatch.EventAnswer
				case kind == graph.EventToken:
					dk = dispatch.EventToken
				case kind == graph.EventDone:
					dk = dispatch.EventDone
				}
				select {
				case ch <- dispatch.Event{Kind: dk, Payload: payload}:
				case <-ctx.Done():
				}
			}

			if _, err := eng.Run(ctx, req.SessionID, req.Task, emit); err != nil {
				select {
				case ch <- dispatch.Event{Kind: dispatch.EventDone, Payload: fmt.Sprintf(`{"status":"failed","error":%q}`, err.Error())}:
				case <-ctx.Done():
				}
			}
		}()
		return ch, nil
	}
}

func pipelineHandler(cfg *config.Config, completer Completer) dispatch.Handler {
	return func(ctx context.Context, req dispatch.Request) (<-chan dispatch.Event, error) {
		ch := make(chan dispatch.Event)
		go func() {
			defer close(ch)

			eng := pipeline.New(buildPipelineConfig(cfg, completer))
			s, err := eng.Run(ctx, req.SessionID, req.Task)
			if err != nil {
				ch <- dispatch.Event{Kind: dispatch.EventDone, Payload: fmt.Sprintf(`{"status":"failed","error":%q}`, err.Error())}
				return
			}

			ch <- dispatch.Event{Kind: dispatch.EventReport, Payload: s.ProposedCode}
			status := "ok"
			if s.Status == state.StatusFailed {
				status = "failed"
			}
			ch <- dispatch.Event{Kind: dispatch.EventDone, Payload: fmt.Sprintf(`{"status":%q}`, status)}
		}()
		return ch, nil
	}
}

func retrievalHandler(completer Completer, index vectorstore.VectorIndex, searcher retrieval.Searcher, fetcher retrieval.Fetcher) dispatch.Handler {
	return func(ctx context.Context, req dispatch.Request) (<-chan dispatch.Event, error) {
		ch := make(chan dispatch.Event)
		go func() {
			defer close(ch)

			orch := retrieval.New(retrieval.Config{
				Completer:   completer,
				VectorIndex: index,
				Searcher:    searcher,
				Fetcher:     fetcher,
			})
			result, err := orch.Run(ctx, req.Task)
			if err != nil {
				ch <- dispatch.Event{Kind: dispatch.EventDone, Payload: fmt.Sprintf(`{"status":"failed","error":%q}`, err.Error())}
				return
			}

			ch <- dispatch.Event{Kind: dispatch.EventAnswer, Payload: result.Draft}
			if b, err := json.Marshal(result.Citations); err == nil {
				ch <- dispatch.Event{Kind: dispatch.EventSources, Payload: string(b)}
			}
			ch <- dispatch.Event{Kind: dispatch.EventDone, Payload: fmt.Sprintf(`{"status":%q}`, result.Status)}
		}()
		return ch, nil
	}
}

// buildPipelineConfig turns the declarative roster loaded from
// pipelines.toml into live agentcore.Agent values, each driving completer
// with a role-specific prompt. Pass/fail for testers and reviewers is
// parsed heuristically from the free-text completion (the Completer seam
// is "prompt in, text out" only, with no structured result
// type), mirroring how the Reasoning Graph already parses its decide/
// reflect completions by convention rather than schema.
func buildPipelineConfig(cfg *config.Config, completer Completer) pipeline.Config {
	build := func(role string) func(config.AgentSpec) agentcore.Agent {
		return func(spec config.AgentSpec) agentcore.Agent {
			return roleAgent(spec, role, completer)
		}
	}
	return pipeline.Config{
		Coders:        mapAgents(cfg.Pipeline.Coders, build("coder")),
		Formatters:    mapAgents(cfg.Pipeline.Formatters, build("formatter")),
		Testers:       mapAgents(cfg.Pipeline.Testers, build("tester")),
		Reviewers:     mapAgents(cfg.Pipeline.Reviewers, build("reviewer")),
		MaxIterations: cfg.Pipeline.MaxIterations,
	}
}

func mapAgents(specs []config.AgentSpec, build func(config.AgentSpec) agentcore.Agent) []agentcore.Agent {
	if len(specs) == 0 {
		return nil
	}
	agents := make([]agentcore.Agent, len(specs))
	for i, spec := range specs {
		agents[i] = build(spec)
	}
	return agents
}

var rolePrompts = map[string]string{
	"coder":     "Produce the code for the task. Respond with code only.",
	"formatter": "Reformat the given code to a consistent style. Respond with code only.",
	"tester":    "Evaluate whether the code satisfies the task. Begin your response with PASS or FAIL, then a brief reason.",
	"reviewer":  "Review the code for correctness and quality. Begin your response with APPROVE or REQUEST_CHANGES, then a brief reason.",
}

func roleAgent(spec config.AgentSpec, role string, completer Completer) agentcore.Agent {
	return agentcore.AgentFunc{
		FuncName: spec.Name,
		Fn: func(ctx context.Context, s *state.State) (*state.State, agentcore.Result) {
			user := s.Task + "\n\nCurrent code:\n" + s.ProposedCode
			trace.RecordEvent(ctx, trace.TraceEvent{Kind: trace.KindLLMPrompt, Node: spec.Name, Prompt: user})
			out, err := completer.Complete(ctx, rolePrompts[role], user, map[string]any{"model": spec.Model})
			if err != nil {
				return s, agentcore.FailedErr(err)
			}
			trace.RecordEvent(ctx, trace.TraceEvent{Kind: trace.KindLLMOutput, Node: spec.Name, Output: out})

			upper := strings.ToUpper(out)
			switch role {
			case "coder", "formatter":
				s.ProposedCode = out
			case "tester":
				s.TestOutput = out
				s.SetTestsPassed(strings.HasPrefix(upper, "PASS"))
			case "reviewer":
				s.QAOutput = out
				s.SetQAPassed(strings.HasPrefix(upper, "APPROVE"))
			}
			return s, agentcore.OK()
		},
	}
}
