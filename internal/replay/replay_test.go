package replay

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/agentic-orchestration/runtime/internal/trace"
)

func sampleEvents() []trace.TraceEvent {
	now := time.Now()
	return []trace.TraceEvent{
		{Timestamp: now, Kind: trace.KindRunStart, SessionID: "s1", RunID: "r1"},
		{Timestamp: now.Add(time.Millisecond), Kind: trace.KindNodeEnter, Node: "plan"},
		{Timestamp: now.Add(2 * time.Millisecond), Kind: trace.KindLLMPrompt, Prompt: "decompose"},
		{Timestamp: now.Add(3 * time.Millisecond), Kind: trace.KindLLMOutput, Output: "plan: compute 12*7"},
		{Timestamp: now.Add(4 * time.Millisecond), Kind: trace.KindNodeEnter, Node: "decide"},
		{Timestamp: now.Add(5 * time.Millisecond), Kind: trace.KindLLMOutput, Output: "calculate"},
		{Timestamp: now.Add(6 * time.Millisecond), Kind: trace.KindNodeEnter, Node: "act"},
		{Timestamp: now.Add(7 * time.Millisecond), Kind: trace.KindToolRequest, Tool: "calculate", ToolCallID: "call-1"},
		{Timestamp: now.Add(8 * time.Millisecond), Kind: trace.KindToolResponse, Tool: "calculate", ToolCallID: "call-1", Output: "84"},
		{Timestamp: now.Add(9 * time.Millisecond), Kind: trace.KindNodeEnter, Node: "reflect"},
		{Timestamp: now.Add(10 * time.Millisecond), Kind: trace.KindLLMOutput, Output: "BRIEFING the answer is 84"},
		{Timestamp: now.Add(11 * time.Millisecond), Kind: trace.KindRunEnd, SessionID: "s1", RunID: "r1"},
	}
}

func TestReplayCompleter_ReturnsRecordedOutputsInOrder(t *testing.T) {
	completer := NewReplayCompleter(sampleEvents(), Strict, nil)

	out1, err := completer.Complete(context.Background(), "plan", "task", nil)
	require.NoError(t, err)
	assert.Equal(t, "plan: compute 12*7", out1)

	out2, err := completer.Complete(context.Background(), "decide", "task", nil)
	require.NoError(t, err)
	assert.Equal(t, "calculate", out2)

	out3, err := completer.Complete(context.Background(), "reflect", "task", nil)
	require.NoError(t, err)
	assert.Contains(t, out3, "BRIEFING")
}

func TestReplayCompleter_StrictModeRaisesOnExhaustion(t *testing.T) {
	completer := NewReplayCompleter(sampleEvents(), Strict, nil)
	for i := 0; i < 3; i++ {
		_, err := completer.Complete(context.Background(), "x", "y", nil)
		require.NoError(t, err)
	}
	_, err := completer.Complete(context.Background(), "x", "y", nil)
	assert.ErrorIs(t, err, ErrReplayExhausted)
}

type stubFallback struct{ called bool }

func (s *stubFallback) Complete(ctx context.Context, system, user string, opts map[string]any) (string, error) {
	s.called = true
	return "live fallback output", nil
}

func TestReplayCompleter_LenientModeFallsBackOnExhaustion(t *testing.T) {
	fallback := &stubFallback{}
	completer := NewReplayCompleter(sampleEvents(), Lenient, fallback)
	for i := 0; i < 3; i++ {
		_, err := completer.Complete(context.Background(), "x", "y", nil)
		require.NoError(t, err)
	}
	out, err := completer.Complete(context.Background(), "x", "y", nil)
	require.NoError(t, err)
	assert.Equal(t, "live fallback output", out)
	assert.True(t, fallback.called)
}

func TestReplayCompleter_LenientModeSentinelWithNoFallback(t *testing.T) {
	completer := NewReplayCompleter(sampleEvents(), Lenient, nil)
	for i := 0; i < 3; i++ {
		_, _ = completer.Complete(context.Background(), "x", "y", nil)
	}
	out, err := completer.Complete(context.Background(), "x", "y", nil)
	require.NoError(t, err)
	assert.Contains(t, out, "no recorded completion")
}

func TestReplayToolRegistry_MatchesByToolCallID(t *testing.T) {
	registry := NewReplayToolRegistry(sampleEvents())
	result, err := registry.Execute(context.Background(), "call-1", "calculate")
	require.NoError(t, err)
	assert.Equal(t, "84", result.Content)
	assert.Empty(t, registry.Warnings())
}

func TestReplayToolRegistry_UnmatchedCallWarnsAndReturnsErrorSentinel(t *testing.T) {
	registry := NewReplayToolRegistry(sampleEvents())
	result, err := registry.Execute(context.Background(), "call-missing", "search")
	require.NoError(t, err)
	assert.True(t, result.IsError)
	warnings := registry.Warnings()
	require.Len(t, warnings, 1)
	assert.Contains(t, warnings[0], "call-missing")
}

func TestComputeRunID_DeterministicForSameInputs(t *testing.T) {
	id1 := ComputeRunID("sess-1", "what is 12*7", 42)
	id2 := ComputeRunID("sess-1", "what is 12*7", 42)
	id3 := ComputeRunID("sess-1", "what is 12*7", 43)

	assert.Equal(t, id1, id2)
	assert.NotEqual(t, id1, id3)
}

func TestNodeEnterSequence_AndToolRequestSequence(t *testing.T) {
	events := sampleEvents()
	assert.Equal(t, []string{"plan", "decide", "act", "reflect"}, NodeEnterSequence(events))
	assert.Equal(t, []string{"calculate"}, ToolRequestSequence(events))
}
