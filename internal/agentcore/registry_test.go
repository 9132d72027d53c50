package agentcore

import (
	"context"
	"encoding/json"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestToolRegistry_RegisterAndGet(t *testing.T) {
	registry := NewToolRegistry()
	registry.Register(&mockTool{name: "search"})

	tool, ok := registry.Get("search")
	require.True(t, ok)
	assert.Equal(t, "search", tool.Name())

	_, ok = registry.Get("missing")
	assert.False(t, ok)
}

func TestToolRegistry_RegisterReplacesExisting(t *testing.T) {
	registry := NewToolRegistry()
	registry.Register(&mockTool{name: "search", execFunc: func(ctx context.Context, params json.RawMessage) (*ToolResult, error) {
		return &ToolResult{Content: "v1"}, nil
	}})
	registry.Register(&mockTool{name: "search", execFunc: func(ctx context.Context, params json.RawMessage) (*ToolResult, error) {
		return &ToolResult{Content: "v2"}, nil
	}})

	result, err := registry.Execute(context.Background(), "search", json.RawMessage(`{}`))
	require.NoError(t, err)
	assert.Equal(t, "v2", result.Content)
}

func TestToolRegistry_Unregister(t *testing.T) {
	registry := NewToolRegistry()
	registry.Register(&mockTool{name: "search"})
	registry.Unregister("search")

	_, ok := registry.Get("search")
	assert.False(t, ok)
}

func TestToolRegistry_ExecuteToolNotFound(t *testing.T) {
	registry := NewToolRegistry()
	result, err := registry.Execute(context.Background(), "missing", json.RawMessage(`{}`))
	require.NoError(t, err)
	assert.True(t, result.IsError)
	assert.Contains(t, result.Content, "tool not found")
}

func TestToolRegistry_ExecuteNameTooLong(t *testing.T) {
	registry := NewToolRegistry()
	longName := strings.Repeat("a", MaxToolNameLength+1)
	result, err := registry.Execute(context.Background(), longName, json.RawMessage(`{}`))
	require.NoError(t, err)
	assert.True(t, result.IsError)
	assert.Contains(t, result.Content, "exceeds maximum length")
}

func TestToolRegistry_ExecuteParamsTooLarge(t *testing.T) {
	registry := NewToolRegistry()
	registry.Register(&mockTool{name: "search"})
	oversized := json.RawMessage(strings.Repeat("a", MaxToolParamsSize+1))
	result, err := registry.Execute(context.Background(), "search", oversized)
	require.NoError(t, err)
	assert.True(t, result.IsError)
	assert.Contains(t, result.Content, "exceed maximum size")
}

func TestToolRegistry_All(t *testing.T) {
	registry := NewToolRegistry()
	registry.Register(&mockTool{name: "search"})
	registry.Register(&mockTool{name: "calculator"})

	tools := registry.All()
	assert.Len(t, tools, 2)
}

func TestAsJSON(t *testing.T) {
	assert.Equal(t, json.RawMessage(`{"a":1}`), AsJSON(json.RawMessage(`{"a":1}`)))
	assert.Equal(t, json.RawMessage(`"raw string"`), AsJSON(`"raw string"`))

	type payload struct {
		A int `json:"a"`
	}
	assert.JSONEq(t, `{"a":1}`, string(AsJSON(payload{A: 1})))
}
