package agentcore

import (
	"context"
	"encoding/json"
)

// Tool is a named, side-effecting operation invoked with structured
// arguments (GLOSSARY). Concrete tools (calculator, file writer, search,
// ...) implement this directly; no base class is needed.
type Tool interface {
	Name() string
	Description() string
	Schema() json.RawMessage
	Execute(ctx context.Context, params json.RawMessage) (*ToolResult, error)
}

// ToolResult is the output of a single tool execution.
type ToolResult struct {
	Content string
	IsError bool
}

// AsJSON converts an arbitrary tool input value to a json.RawMessage.
func AsJSON(input any) json.RawMessage {
	switch v := input.(type) {
	case json.RawMessage:
		return v
	case []byte:
		return json.RawMessage(v)
	case string:
		return json.RawMessage(v)
	default:
		data, err := json.Marshal(v)
		if err != nil {
			return json.RawMessage("null")
		}
		return data
	}
}
