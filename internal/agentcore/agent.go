// Package agentcore defines the capability-record Agent contract (C3), the
// tool registry, and the concurrent tool executor shared by every engine.
package agentcore

import (
	"context"

	"github.com/agentic-orchestration/runtime/internal/state"
)

// Agent is a capability, not a class: a name plus a single run operation
// that takes a State and returns the (possibly mutated) State. Concrete
// agents are records bundling their Completer/tool handles with a Run
// implementation — no inheritance hierarchy.
type Agent interface {
	// Name identifies the agent for tracing and error attribution.
	Name() string

	// Run executes the agent's capability against the given state and
	// returns the resulting state plus a Result describing the outcome.
	// Only a truly fatal condition should be returned as a non-nil error;
	// ordinary failure (a test that didn't pass) is expressed through the
	// Result and the State's own fields, not an error return.
	Run(ctx context.Context, s *state.State) (*state.State, Result)
}

// ResultKind is a tagged-result variant replacing exceptions as control
// flow: engines branch on ResultKind rather than catching
// exceptions thrown by agents.
type ResultKind string

const (
	ResultOK      ResultKind = "ok"
	ResultFailed  ResultKind = "failed"
	ResultSkipped ResultKind = "skipped"
)

// Result is returned by every Agent.Run call. A Result carrying Err is
// still tagged Failed or OK by Kind — Err, when present, is the underlying
// cause attached for logging/tracing, not a signal engines branch on.
type Result struct {
	Kind   ResultKind
	Reason string
	Err    error
}

// OK constructs a successful Result.
func OK() Result { return Result{Kind: ResultOK} }

// Failed constructs a failed Result carrying a human-readable reason.
func Failed(reason string) Result { return Result{Kind: ResultFailed, Reason: reason} }

// FailedErr constructs a failed Result from an underlying error.
func FailedErr(err error) Result {
	if err == nil {
		return OK()
	}
	return Result{Kind: ResultFailed, Reason: err.Error(), Err: err}
}

// Skipped constructs a Result for an agent that declined to act (e.g. an
// unknown next_action routed around it).
func Skipped(reason string) Result { return Result{Kind: ResultSkipped, Reason: reason} }

// AgentFunc adapts a plain function to the Agent interface, for agents that
// don't need any bundled state beyond a closure — the same functional-option
// wrapping used for Completer/tool handles elsewhere in this package.
type AgentFunc struct {
	FuncName string
	Fn       func(ctx context.Context, s *state.State) (*state.State, Result)
}

func (f AgentFunc) Name() string { return f.FuncName }

func (f AgentFunc) Run(ctx context.Context, s *state.State) (*state.State, Result) {
	return f.Fn(ctx, s)
}
