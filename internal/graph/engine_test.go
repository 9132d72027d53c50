package graph

import (
	"context"
	"encoding/json"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/agentic-orchestration/runtime/internal/agentcore"
)

// scriptedCompleter returns canned outputs in sequence, keyed by which
// system prompt is being asked (so plan/decide/act/reflect each advance
// independently rather than sharing one cursor).
type scriptedCompleter struct {
	byPrompt map[string][]string
	calls    map[string]int
}

func newScriptedCompleter() *scriptedCompleter {
	return &scriptedCompleter{byPrompt: map[string][]string{}, calls: map[string]int{}}
}

func (c *scriptedCompleter) script(systemPrefix string, outputs ...string) {
	c.byPrompt[systemPrefix] = outputs
}

func (c *scriptedCompleter) Complete(ctx context.Context, system, user string, opts map[string]any) (string, error) {
	for prefix, outputs := range c.byPrompt {
		if strings.HasPrefix(system, prefix) {
			idx := c.calls[prefix]
			c.calls[prefix] = idx + 1
			if idx < len(outputs) {
				return outputs[idx], nil
			}
			return outputs[len(outputs)-1], nil
		}
	}
	return "", nil
}

type calculatorTool struct{}

func (calculatorTool) Name() string            { return "calculate" }
func (calculatorTool) Description() string     { return "evaluates an expression" }
func (calculatorTool) Schema() json.RawMessage { return json.RawMessage(`{}`) }
func (calculatorTool) Execute(ctx context.Context, params json.RawMessage) (*agentcore.ToolResult, error) {
	return &agentcore.ToolResult{Content: "84"}, nil
}

// S4: end-to-end "12x7" — plan, decide on calculate, act, tool, reflect with
// a BRIEFING answer.
func TestEngine_Run_EndToEnd(t *testing.T) {
	completer := newScriptedCompleter()
	completer.script(planSystemPrompt, "Compute 12 times 7.")
	completer.script(decideSystemPrompt, "calculate")
	completer.script("Produce the JSON arguments", `{"expression":"12*7"}`)
	completer.script(reflectSystemPrompt, "BRIEFING the answer is 84")

	registry := agentcore.NewToolRegistry()
	registry.Register(calculatorTool{})

	engine := New(completer, registry, 0)

	var tokens []string
	var done string
	emit := func(kind EventKind, payload string) {
		switch kind {
		case EventToken:
			tokens = append(tokens, payload)
		case EventDone:
			done = payload
		}
	}

	s, err := engine.Run(context.Background(), "sess-1", "what is 12 times 7?", emit)
	require.NoError(t, err)
	assert.True(t, s.Done)
	assert.Contains(t, tokens[len(tokens)-1], "BRIEFING")
	assert.Contains(t, done, "completed")
}

func TestEngine_Run_EmptyTaskIsInputInvalid(t *testing.T) {
	engine := New(newScriptedCompleter(), agentcore.NewToolRegistry(), 0)
	_, err := engine.Run(context.Background(), "sess-2", "", nil)
	require.Error(t, err)
	runErr, ok := agentcore.AsRunError(err)
	require.True(t, ok)
	assert.Equal(t, agentcore.KindInputInvalid, runErr.Kind)
}

func TestEngine_Run_UnknownActionSkipsToReflect(t *testing.T) {
	completer := newScriptedCompleter()
	completer.script(planSystemPrompt, "plan")
	completer.script(decideSystemPrompt, "teleport")
	completer.script(reflectSystemPrompt, "BRIEFING done")

	engine := New(completer, agentcore.NewToolRegistry(), 0)
	s, err := engine.Run(context.Background(), "sess-3", "do something odd", nil)
	require.NoError(t, err)
	assert.True(t, s.Done)
}

func TestEngine_Run_FinalizeDirectlyFromDecide(t *testing.T) {
	completer := newScriptedCompleter()
	completer.script(planSystemPrompt, "plan")
	completer.script(decideSystemPrompt, "finalize")

	engine := New(completer, agentcore.NewToolRegistry(), 0)
	s, err := engine.Run(context.Background(), "sess-4", "trivial task", nil)
	require.NoError(t, err)
	assert.True(t, s.Done)
}

func TestEngine_Run_ConvergenceExhausted(t *testing.T) {
	completer := newScriptedCompleter()
	completer.script(planSystemPrompt, "plan")
	completer.script(decideSystemPrompt, "search")
	completer.script("Produce the JSON arguments", `{}`)
	completer.script(reflectSystemPrompt, "search") // never emits BRIEFING, loops forever

	registry := agentcore.NewToolRegistry()
	registry.Register(&searchStub{})

	engine := New(completer, registry, 4)
	s, err := engine.Run(context.Background(), "sess-5", "loop forever", nil)
	require.Error(t, err)
	runErr, ok := agentcore.AsRunError(err)
	require.True(t, ok)
	assert.Equal(t, agentcore.KindConvergenceExhausted, runErr.Kind)
	assert.Equal(t, "failed", string(s.Status))
}

type searchStub struct{}

func (searchStub) Name() string            { return "search" }
func (searchStub) Description() string     { return "search" }
func (searchStub) Schema() json.RawMessage { return json.RawMessage(`{}`) }
func (searchStub) Execute(ctx context.Context, params json.RawMessage) (*agentcore.ToolResult, error) {
	return &agentcore.ToolResult{Content: "no results"}, nil
}
