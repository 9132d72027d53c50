// Package graph implements the Reasoning Graph (C5): a small fixed node set
// (plan, decide, act, tool, reflect, finalize) routed by next_action, with a
// step budget and a monotonic done flag standing in for a cyclic state
// machine (an "arena/stable-index" design applied to routing
// instead of back-references, since the node set here is closed and small).
package graph

import (
	"context"
	"encoding/json"
	"strings"

	"github.com/google/uuid"

	"github.com/agentic-orchestration/runtime/internal/agentcore"
	"github.com/agentic-orchestration/runtime/internal/state"
	"github.com/agentic-orchestration/runtime/internal/trace"
	"github.com/agentic-orchestration/runtime/pkg/models"
)

// ReflectBriefingPrefix is the literal prefix the reflect node's output must
// begin with to signal a final answer rather than another decide round.
// Preserved verbatim rather than replaced with a
// structured flag, per the documented open-question decision.
const ReflectBriefingPrefix = "BRIEFING"

// DefaultMaxSteps bounds total node visits per run (a recommended
// convergence budget).
const DefaultMaxSteps = 16

// Node names the fixed set of graph nodes.
type Node string

const (
	NodePlan     Node = "plan"
	NodeDecide   Node = "decide"
	NodeAct      Node = "act"
	NodeTool     Node = "tool"
	NodeReflect  Node = "reflect"
	NodeFinalize Node = "finalize"
)

// Completer is the opaque LLM seam. Prompts/outputs are plain
// strings; the engine never inspects provider-specific detail.
type Completer interface {
	Complete(ctx context.Context, system, user string, opts map[string]any) (string, error)
}

// EventKind tags a streamed event emitted while the graph runs.
type EventKind string

const (
	EventToken EventKind = "token"
	EventDone  EventKind = "done"
)

// Emit receives streamed events; nil is a valid no-op sink.
type Emit func(kind EventKind, payload string)

// Engine drives a single Reasoning Graph run over one State.
type Engine struct {
	completer Completer
	registry  *agentcore.ToolRegistry
	maxSteps  int
}

// New constructs an Engine. A maxSteps <= 0 uses DefaultMaxSteps.
func New(completer Completer, registry *agentcore.ToolRegistry, maxSteps int) *Engine {
	if maxSteps <= 0 {
		maxSteps = DefaultMaxSteps
	}
	return &Engine{completer: completer, registry: registry, maxSteps: maxSteps}
}

var knownActions = map[state.NextAction]bool{
	state.ActionSearch:     true,
	state.ActionFetch:      true,
	state.ActionKBSearch:   true,
	state.ActionCalculate:  true,
	state.ActionWriteFile:  true,
	state.ActionDraftEmail: true,
}

// Run seeds a State from task and routes plan -> decide -> {act -> tool ->
// reflect | finalize} -> decide ... until finalize or the step budget is
// exhausted. emit may be nil.
func (e *Engine) Run(ctx context.Context, sessionID, task string, emit Emit) (*state.State, error) {
	if task == "" {
		return nil, agentcore.NewRunError(agentcore.KindInputInvalid, "task must not be empty", nil)
	}
	if emit == nil {
		emit = func(EventKind, string) {}
	}

	s := state.New(sessionID, task)
	s.AppendMessage(models.Message{Role: models.RoleUser, Content: task})

	node := NodePlan
	for steps := 0; steps < e.maxSteps; steps++ {
		if err := ctx.Err(); err != nil {
			s.MarkDone(state.StatusFailed)
			emit(EventDone, `{"status":"cancelled"}`)
			return s, agentcore.NewRunError(agentcore.KindCancelled, "run cancelled", err)
		}
		if s.Done {
			break
		}

		next, err := e.step(ctx, node, s, emit)
		if err != nil {
			s.MarkDone(state.StatusFailed)
			emit(EventDone, `{"status":"failed"}`)
			return s, err
		}
		if node == NodeFinalize {
			break
		}
		node = next
	}

	if !s.Done {
		s.MarkDone(state.StatusFailed)
		s.Feedback = "convergence exhausted"
		emit(EventDone, `{"status":"failed","reason":"convergence_exhausted"}`)
		return s, agentcore.NewRunError(agentcore.KindConvergenceExhausted, s.Feedback, nil)
	}

	emit(EventDone, `{"status":"completed"}`)
	return s, nil
}

func (e *Engine) step(ctx context.Context, node Node, s *state.State, emit Emit) (Node, error) {
	trace.RecordEvent(ctx, trace.TraceEvent{Kind: trace.KindNodeEnter, Node: string(node)})
	next, err := e.dispatch(ctx, node, s, emit)
	trace.RecordEvent(ctx, trace.TraceEvent{Kind: trace.KindNodeExit, Node: string(node)})
	return next, err
}

func (e *Engine) dispatch(ctx context.Context, node Node, s *state.State, emit Emit) (Node, error) {
	switch node {
	case NodePlan:
		return e.runPlan(ctx, s, emit)
	case NodeDecide:
		return e.runDecide(ctx, s)
	case NodeAct:
		return e.runAct(ctx, s)
	case NodeTool:
		return e.runTool(ctx, s)
	case NodeReflect:
		return e.runReflect(ctx, s, emit)
	case NodeFinalize:
		s.MarkDone(state.StatusCompleted)
		return NodeFinalize, nil
	default:
		return NodeFinalize, agentcore.NewRunError(agentcore.KindInternal, "unknown node: "+string(node), nil)
	}
}

// complete wraps a single Completer call with llm_prompt/llm_output trace
// events, tagged with the node making the call.
func (e *Engine) complete(ctx context.Context, node Node, system, user string) (string, error) {
	trace.RecordEvent(ctx, trace.TraceEvent{Kind: trace.KindLLMPrompt, Node: string(node), Prompt: user})
	out, err := e.completer.Complete(ctx, system, user, nil)
	if err != nil {
		return "", err
	}
	trace.RecordEvent(ctx, trace.TraceEvent{Kind: trace.KindLLMOutput, Node: string(node), Output: out})
	return out, nil
}

func (e *Engine) runPlan(ctx context.Context, s *state.State, emit Emit) (Node, error) {
	out, err := e.complete(ctx, NodePlan, planSystemPrompt, s.Task)
	if err != nil {
		return "", agentcore.NewRunError(agentcore.KindTransientExternal, "plan completion failed", err)
	}
	s.Plan = out
	msg := models.Message{Role: models.RoleAssistant, Content: out}
	s.AppendMessage(msg)
	emit(EventToken, out)
	return NodeDecide, nil
}

func (e *Engine) runDecide(ctx context.Context, s *state.State) (Node, error) {
	out, err := e.complete(ctx, NodeDecide, decideSystemPrompt, s.Task+"\n\nPlan:\n"+s.Plan)
	if err != nil {
		return "", agentcore.NewRunError(agentcore.KindTransientExternal, "decide completion failed", err)
	}
	action := state.NextAction(strings.TrimSpace(strings.ToLower(out)))
	s.NextAction = action

	switch {
	case action == state.ActionFinalize:
		return NodeFinalize, nil
	case knownActions[action]:
		return NodeAct, nil
	default:
		// Unknown or empty next_action: skip straight to reflect rather
		// than attempting a tool call with no target.
		return NodeReflect, nil
	}
}

func (e *Engine) runAct(ctx context.Context, s *state.State) (Node, error) {
	out, err := e.complete(ctx, NodeAct, actSystemPrompt(s.NextAction), s.Task)
	if err != nil {
		return "", agentcore.NewRunError(agentcore.KindTransientExternal, "act completion failed", err)
	}

	call := models.ToolCall{
		ID:    uuid.NewString(),
		Name:  string(s.NextAction),
		Input: json.RawMessage(out),
	}
	if !json.Valid(call.Input) {
		call.Input = agentcore.AsJSON(out)
	}

	s.AppendMessage(models.Message{Role: models.RoleAssistant, ToolCalls: []models.ToolCall{call}})
	s.Set("pending_tool_call", call)
	return NodeTool, nil
}

func (e *Engine) runTool(ctx context.Context, s *state.State) (Node, error) {
	raw, ok := s.Get("pending_tool_call")
	if !ok {
		return "", agentcore.NewRunError(agentcore.KindInternal, "tool node entered with no pending call", nil)
	}
	call := raw.(models.ToolCall)

	trace.RecordEvent(ctx, trace.TraceEvent{
		Kind:       trace.KindToolRequest,
		Node:       string(NodeTool),
		Tool:       call.Name,
		ToolCallID: call.ID,
		Prompt:     string(call.Input),
	})
	result, err := e.registry.Execute(ctx, call.Name, call.Input)
	if err != nil {
		return "", agentcore.NewRunError(agentcore.KindTransientExternal, "tool execution failed", err)
	}
	trace.RecordEvent(ctx, trace.TraceEvent{
		Kind:       trace.KindToolResponse,
		Node:       string(NodeTool),
		Tool:       call.Name,
		ToolCallID: call.ID,
		Output:     result.Content,
	})

	s.AppendMessage(models.Message{
		Role: models.RoleTool,
		ToolResults: []models.ToolResult{
			{ToolCallID: call.ID, Content: result.Content, IsError: result.IsError},
		},
	})
	return NodeReflect, nil
}

func (e *Engine) runReflect(ctx context.Context, s *state.State, emit Emit) (Node, error) {
	out, err := e.complete(ctx, NodeReflect, reflectSystemPrompt, s.Task)
	if err != nil {
		return "", agentcore.NewRunError(agentcore.KindTransientExternal, "reflect completion failed", err)
	}

	s.AppendMessage(models.Message{Role: models.RoleAssistant, Content: out})
	emit(EventToken, out)

	if strings.HasPrefix(out, ReflectBriefingPrefix) {
		s.MarkDone(state.StatusCompleted)
		return NodeFinalize, nil
	}

	action := state.NextAction(strings.TrimSpace(strings.ToLower(out)))
	s.NextAction = action
	return NodeDecide, nil
}

const (
	planSystemPrompt    = "Decompose the task into an ordered plan. Respond with the plan only."
	decideSystemPrompt  = "Choose exactly one next action token: search, fetch, kb_search, calculate, write_file, draft_email, or finalize. Respond with the token only."
	reflectSystemPrompt = "Reflect on the tool result. If ready to answer, respond beginning with the literal word BRIEFING followed by the final answer. Otherwise respond with the next action token."
)

func actSystemPrompt(action state.NextAction) string {
	return "Produce the JSON arguments for the " + string(action) + " tool. Respond with JSON only."
}
