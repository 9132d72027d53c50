package agentcore

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/agentic-orchestration/runtime/pkg/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type mockTool struct {
	name     string
	execFunc func(ctx context.Context, params json.RawMessage) (*ToolResult, error)
}

func (m *mockTool) Name() string            { return m.name }
func (m *mockTool) Description() string     { return "mock tool" }
func (m *mockTool) Schema() json.RawMessage { return json.RawMessage(`{"type":"object"}`) }
func (m *mockTool) Execute(ctx context.Context, params json.RawMessage) (*ToolResult, error) {
	if m.execFunc != nil {
		return m.execFunc(ctx, params)
	}
	return &ToolResult{Content: "success"}, nil
}

func TestExecutor_Execute_Success(t *testing.T) {
	registry := NewToolRegistry()
	registry.Register(&mockTool{name: "calculator"})

	executor := NewExecutor(registry, nil)
	result := executor.Execute(context.Background(), models.ToolCall{
		ID:    "call-1",
		Name:  "calculator",
		Input: json.RawMessage(`{"expression":"12*7"}`),
	})

	require.NoError(t, result.Error)
	assert.Equal(t, "success", result.Result.Content)
	assert.Equal(t, 1, result.Attempts)
	assert.Equal(t, "call-1", result.ToolCallID)
}

func TestExecutor_Execute_RetriesTransientErrors(t *testing.T) {
	attempts := 0
	registry := NewToolRegistry()
	registry.Register(&mockTool{
		name: "flaky",
		execFunc: func(ctx context.Context, params json.RawMessage) (*ToolResult, error) {
			attempts++
			if attempts < 3 {
				return nil, errors.New("connection timeout")
			}
			return &ToolResult{Content: "recovered"}, nil
		},
	})

	config := DefaultExecutorConfig()
	config.DefaultRetries = 3
	config.RetryBackoff = time.Millisecond

	executor := NewExecutor(registry, config)
	result := executor.Execute(context.Background(), models.ToolCall{ID: "c1", Name: "flaky"})

	require.NoError(t, result.Error)
	assert.Equal(t, 3, result.Attempts)
	assert.Equal(t, "recovered", result.Result.Content)
}

func TestExecutor_Execute_NonRetryableFailsFast(t *testing.T) {
	registry := NewToolRegistry()
	registry.Register(&mockTool{
		name: "bad_input",
		execFunc: func(ctx context.Context, params json.RawMessage) (*ToolResult, error) {
			return nil, errors.New("invalid: missing required field")
		},
	})

	executor := NewExecutor(registry, nil)
	result := executor.Execute(context.Background(), models.ToolCall{ID: "c1", Name: "bad_input"})

	require.Error(t, result.Error)
	assert.Equal(t, 1, result.Attempts)
	toolErr, ok := GetToolError(result.Error)
	require.True(t, ok)
	assert.Equal(t, ToolErrorInvalidInput, toolErr.Type)
}

func TestExecutor_ExecuteAll_PreservesCorrelationByID(t *testing.T) {
	registry := NewToolRegistry()
	registry.Register(&mockTool{
		name: "echo",
		execFunc: func(ctx context.Context, params json.RawMessage) (*ToolResult, error) {
			return &ToolResult{Content: string(params)}, nil
		},
	})

	executor := NewExecutor(registry, nil)
	calls := []models.ToolCall{
		{ID: "a", Name: "echo", Input: json.RawMessage(`"first"`)},
		{ID: "b", Name: "echo", Input: json.RawMessage(`"second"`)},
	}

	results := executor.ExecuteAll(context.Background(), calls)
	require.Len(t, results, 2)
	assert.Equal(t, "a", results[0].ToolCallID)
	assert.Equal(t, `"first"`, results[0].Result.Content)
	assert.Equal(t, "b", results[1].ToolCallID)
	assert.Equal(t, `"second"`, results[1].Result.Content)
}

func TestExecutor_ToolNotFound(t *testing.T) {
	registry := NewToolRegistry()
	executor := NewExecutor(registry, nil)

	result := executor.Execute(context.Background(), models.ToolCall{ID: "c1", Name: "missing"})
	require.NoError(t, result.Error)
	assert.True(t, result.Result.IsError)
	assert.Contains(t, result.Result.Content, "tool not found")
}

func TestResultsToMessages(t *testing.T) {
	results := []*ExecutionResult{
		{ToolCallID: "a", Result: &ToolResult{Content: "ok"}},
		{ToolCallID: "b", Error: errors.New("boom")},
	}

	messages := ResultsToMessages(results)
	require.Len(t, messages, 2)
	assert.False(t, messages[0].IsError)
	assert.True(t, messages[1].IsError)
	assert.Equal(t, "boom", messages[1].Content)
}

func TestAnyErrors(t *testing.T) {
	assert.False(t, AnyErrors([]*ExecutionResult{{Result: &ToolResult{}}}))
	assert.True(t, AnyErrors([]*ExecutionResult{{Error: errors.New("x")}}))
}
