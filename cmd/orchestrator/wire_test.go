package main

import (
	"context"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/agentic-orchestration/runtime/internal/config"
	"github.com/agentic-orchestration/runtime/internal/dispatch"
)

// fakeCompleter ends the graph run on the first reflect round: plan ->
// decide "none" (outside the action set, so it routes straight to reflect)
// -> reflect "BRIEFING ..." keeps the Reasoning Graph's fixed node set
// short and deterministic for these tests.
type fakeCompleter struct{}

func (fakeCompleter) Complete(ctx context.Context, system, user string, opts map[string]any) (string, error) {
	switch {
	case strings.Contains(system, "Decompose"):
		return "step one", nil
	case strings.Contains(system, "Choose exactly one"):
		return "none", nil
	case strings.Contains(system, "Reflect"):
		return "BRIEFING done", nil
	case strings.Contains(system, "Produce the code"):
		return "package main", nil
	case strings.Contains(system, "Reformat"):
		return "package main // formatted", nil
	case strings.Contains(system, "Evaluate whether"):
		return "PASS looks good", nil
	case strings.Contains(system, "Review the code"):
		return "APPROVE lgtm", nil
	default:
		return "ok", nil
	}
}

type fakeEmbeddingProvider struct{}

func (fakeEmbeddingProvider) Dimension() int { return 4 }

func (fakeEmbeddingProvider) Embed(ctx context.Context, text string) ([]float32, error) {
	return []float32{1, 0, 0, 0}, nil
}

func (fakeEmbeddingProvider) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	out := make([][]float32, len(texts))
	for i := range texts {
		out[i] = []float32{1, 0, 0, 0}
	}
	return out, nil
}

func testConfig(t *testing.T) *config.Config {
	t.Helper()
	cfg, err := config.Load("")
	require.NoError(t, err)
	cfg.JournalDir = t.TempDir()
	return cfg
}

func TestWire_NoCompleterRegistersNothing(t *testing.T) {
	d := dispatch.New()
	registered := Wire(d, testConfig(t), Dependencies{})
	assert.False(t, registered["graph"])
	assert.False(t, registered["pipeline"])
	assert.False(t, registered["retrieval"])
}

func TestWire_CompleterOnlyRegistersGraphAndPipeline(t *testing.T) {
	d := dispatch.New()
	registered := Wire(d, testConfig(t), Dependencies{Completer: fakeCompleter{}})
	assert.True(t, registered["graph"])
	assert.True(t, registered["pipeline"])
	assert.False(t, registered["retrieval"])
}

func TestWire_CompleterAndEmbeddingRegistersRetrieval(t *testing.T) {
	d := dispatch.New()
	registered := Wire(d, testConfig(t), Dependencies{
		Completer:         fakeCompleter{},
		EmbeddingProvider: fakeEmbeddingProvider{},
	})
	assert.True(t, registered["retrieval"])
}

func TestWire_GraphHandlerRunsToCompletion(t *testing.T) {
	d := dispatch.New()
	cfg := testConfig(t)
	Wire(d, cfg, Dependencies{Completer: fakeCompleter{}})

	events, err := d.Dispatch(context.Background(), dispatch.Request{PipelineName: "graph", Task: "do the thing", SessionID: "s1"})
	require.NoError(t, err)

	var sawAnswer, sawDone bool
	for ev := range events {
		if ev.Kind == dispatch.EventAnswer {
			sawAnswer = true
		}
		if ev.Kind == dispatch.EventDone {
			sawDone = true
		}
	}
	assert.True(t, sawAnswer)
	assert.True(t, sawDone)
}

func TestWire_PipelineHandlerRunsToCompletion(t *testing.T) {
	d := dispatch.New()
	cfg := testConfig(t)
	cfg.Pipeline.Coders = []config.AgentSpec{{Name: "coder"}}
	cfg.Pipeline.Testers = []config.AgentSpec{{Name: "tester"}}
	cfg.Pipeline.Reviewers = []config.AgentSpec{{Name: "reviewer"}}
	Wire(d, cfg, Dependencies{Completer: fakeCompleter{}})

	events, err := d.Dispatch(context.Background(), dispatch.Request{PipelineName: "pipeline", Task: "build a thing", SessionID: "s2"})
	require.NoError(t, err)

	var sawReport, sawDone bool
	for ev := range events {
		if ev.Kind == dispatch.EventReport {
			sawReport = true
		}
		if ev.Kind == dispatch.EventDone {
			sawDone = true
			assert.Contains(t, ev.Payload, "ok")
		}
	}
	assert.True(t, sawReport)
	assert.True(t, sawDone)
}
