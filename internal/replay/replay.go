// Package replay implements the Replay Engine (C2): a ReplayCompleter and
// ReplayToolRegistry driven off a Trace Journal's recorded events, rather
// than a separate tape format. Tool responses are paired to their
// requests by ToolCall.ID rather than by proximity in time.
package replay

import (
	"context"
	"crypto/sha256"
	"encoding/binary"
	"encoding/hex"
	"errors"
	"fmt"
	"sync"

	"github.com/agentic-orchestration/runtime/internal/agentcore"
	"github.com/agentic-orchestration/runtime/internal/trace"
)

// ErrReplayExhausted indicates the journal has no more recorded LLM outputs
// to return.
var ErrReplayExhausted = errors.New("replay exhausted: no more recorded completions")

// Mode controls how the replayer behaves when it runs out of recorded
// data, with strict and loose replay modes.
type Mode int

const (
	// Strict raises ErrReplayExhausted once recorded completions run out.
	Strict Mode = iota
	// Lenient falls back to a live Completer, or a sentinel if none is set.
	Lenient
)

// Mismatch records a divergence observed while replaying, for the
// replay-equivalence report.
type Mismatch struct {
	Index    int
	Field    string
	Expected string
	Actual   string
}

// ReplayCompleter returns recorded llm_output events in the order their
// paired llm_prompt events were originally recorded. It implements the same
// Completer seam the Reasoning Graph consumes live.
type ReplayCompleter struct {
	mu         sync.Mutex
	outputs    []string
	cursor     int
	mode       Mode
	fallback   Completer
	mismatches []Mismatch
}

// Completer mirrors graph.Completer without importing it, to avoid a
// replay->graph dependency cycle; any Completer implementation satisfies
// both.
type Completer interface {
	Complete(ctx context.Context, system, user string, opts map[string]any) (string, error)
}

// NewReplayCompleter builds a ReplayCompleter from a journal's events,
// extracting llm_output events in recorded order. fallback is only
// consulted in Lenient mode and may be nil.
func NewReplayCompleter(events []trace.TraceEvent, mode Mode, fallback Completer) *ReplayCompleter {
	var outputs []string
	for _, e := range events {
		if e.Kind == trace.KindLLMOutput {
			outputs = append(outputs, e.Output)
		}
	}
	return &ReplayCompleter{outputs: outputs, mode: mode, fallback: fallback}
}

// Complete returns the next recorded output. On exhaustion, Strict mode
// returns ErrReplayExhausted; Lenient mode delegates to the fallback
// Completer, or returns a sentinel string if none was configured.
func (r *ReplayCompleter) Complete(ctx context.Context, system, user string, opts map[string]any) (string, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.cursor < len(r.outputs) {
		out := r.outputs[r.cursor]
		r.cursor++
		return out, nil
	}

	if r.mode == Strict {
		return "", ErrReplayExhausted
	}
	if r.fallback != nil {
		return r.fallback.Complete(ctx, system, user, opts)
	}
	return "[no recorded completion available]", nil
}

// Mismatches returns the discrepancies recorded so far. Complete does not
// compare incoming prompts with the recorded ones, so nothing in this
// package appends to the list and it is always empty; divergence between
// two runs shows up by comparing their NodeEnterSequence and
// ToolRequestSequence.
func (r *ReplayCompleter) Mismatches() []Mismatch {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]Mismatch{}, r.mismatches...)
}

// Reset rewinds the completer to the first recorded output.
func (r *ReplayCompleter) Reset() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.cursor = 0
	r.mismatches = nil
}

// ReplayToolRegistry answers tool executions from a journal's recorded
// tool_request/tool_response pairs, correlated strictly by ToolCall.ID.
type ReplayToolRegistry struct {
	mu        sync.Mutex
	responses map[string]trace.TraceEvent // keyed by tool_call_id
	warnings  []string
}

// NewReplayToolRegistry indexes every tool_response event in events by its
// ToolCallID.
func NewReplayToolRegistry(events []trace.TraceEvent) *ReplayToolRegistry {
	responses := make(map[string]trace.TraceEvent)
	for _, e := range events {
		if e.Kind == trace.KindToolResponse && e.ToolCallID != "" {
			responses[e.ToolCallID] = e
		}
	}
	return &ReplayToolRegistry{responses: responses}
}

// Execute returns the recorded response for toolCallID. An unmatched call
// is never silently dropped: it is logged as a warning and returns an
// error-tagged sentinel result so the caller observes a visible failure
// rather than a fabricated success.
func (r *ReplayToolRegistry) Execute(ctx context.Context, toolCallID, toolName string) (*agentcore.ToolResult, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	event, ok := r.responses[toolCallID]
	if !ok {
		r.warnings = append(r.warnings, fmt.Sprintf("no recorded tool_response for call %s (%s)", toolCallID, toolName))
		return &agentcore.ToolResult{Content: "[no recorded tool response]", IsError: true}, nil
	}
	return &agentcore.ToolResult{Content: event.Output}, nil
}

// Warnings returns every unmatched tool call observed during replay.
func (r *ReplayToolRegistry) Warnings() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string{}, r.warnings...)
}

// ComputeRunID derives a reproducible run id from the session id, the
// initial user message, and a seed, for replay determinism
// contract. Same inputs always produce the same id.
func ComputeRunID(sessionID, initialMessage string, seed int64) string {
	h := sha256.New()
	h.Write([]byte(sessionID))
	h.Write([]byte{0})
	h.Write([]byte(initialMessage))
	h.Write([]byte{0})
	var seedBytes [8]byte
	binary.BigEndian.PutUint64(seedBytes[:], uint64(seed))
	h.Write(seedBytes[:])
	return hex.EncodeToString(h.Sum(nil))[:32]
}

// NodeEnterSequence extracts the ordered sequence of node names entered
// during a run, for the replay-equivalence property (node_enter
// sequences must match between an original run and its replay).
func NodeEnterSequence(events []trace.TraceEvent) []string {
	var seq []string
	for _, e := range events {
		if e.Kind == trace.KindNodeEnter {
			seq = append(seq, e.Node)
		}
	}
	return seq
}

// ToolRequestSequence extracts the ordered sequence of tool names
// requested during a run, for the same equivalence property.
func ToolRequestSequence(events []trace.TraceEvent) []string {
	var seq []string
	for _, e := range events {
		if e.Kind == trace.KindToolRequest {
			seq = append(seq, e.Tool)
		}
	}
	return seq
}
