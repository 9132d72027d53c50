// Package pipeline implements the Pipeline Engine (C4): a multi-role
// coder/formatter/tester/reviewer convergence loop over a single State.
package pipeline

import (
	"context"
	"fmt"

	"github.com/agentic-orchestration/runtime/internal/agentcore"
	"github.com/agentic-orchestration/runtime/internal/state"
	"github.com/agentic-orchestration/runtime/internal/trace"
	"github.com/agentic-orchestration/runtime/pkg/models"
)

// Config wires the four agent roles and the convergence budget. Each slice
// runs its agents in order; an empty slice is a no-op phase.
type Config struct {
	Coders        []agentcore.Agent
	Formatters    []agentcore.Agent
	Testers       []agentcore.Agent
	Reviewers     []agentcore.Agent
	MaxIterations int
}

// Engine runs the coder -> formatter -> tester -> reviewer convergence loop
// described by the pipeline contract: repeat until every tester and every
// reviewer pass in the same iteration, or MaxIterations is exhausted.
type Engine struct {
	config Config
}

// New constructs an Engine. MaxIterations <= 0 means "run zero iterations",
// which fails immediately per the boundary behavior below.
func New(config Config) *Engine {
	return &Engine{config: config}
}

// Run seeds a fresh State with task and drives the convergence loop.
func (e *Engine) Run(ctx context.Context, sessionID, task string) (*state.State, error) {
	if task == "" {
		return nil, agentcore.NewRunError(agentcore.KindInputInvalid, "task must not be empty", nil)
	}

	s := state.New(sessionID, task)

	if e.config.MaxIterations <= 0 {
		s.MarkDone(state.StatusFailed)
		s.Feedback = "no iterations"
		return s, nil
	}

	for iteration := 0; iteration < e.config.MaxIterations; iteration++ {
		if err := ctx.Err(); err != nil {
			s.MarkDone(state.StatusFailed)
			s.Feedback = "cancelled"
			return s, agentcore.NewRunError(agentcore.KindCancelled, "run cancelled", err)
		}

		if err := e.runCoders(ctx, s, iteration); err != nil {
			s.MarkDone(state.StatusFailed)
			return s, err
		}
		if s.Done {
			// A coder declared a fatal failure (e.g. returned no code on the
			// first iteration). Nothing further to run this pass.
			return s, nil
		}

		e.runFormatters(ctx, s)

		testsOK, err := e.runTesters(ctx, s)
		if err != nil {
			s.MarkDone(state.StatusFailed)
			return s, err
		}
		if !testsOK {
			continue
		}

		qaOK, err := e.runReviewers(ctx, s)
		if err != nil {
			s.MarkDone(state.StatusFailed)
			return s, err
		}
		if !qaOK {
			continue
		}

		s.MarkDone(state.StatusCompleted)
		return s, nil
	}

	if !s.Done {
		s.MarkDone(state.StatusFailed)
		if s.Feedback == "" {
			s.Feedback = "convergence exhausted"
		}
	}
	return s, agentcore.NewRunError(agentcore.KindConvergenceExhausted, s.Feedback, nil)
}

// runCoders drives the coder phase. A coder re-entering with prior feedback
// must see both the original task and that feedback so it revises rather
// than redrafts; we surface this by appending a user message carrying both
// before the phase runs, whenever feedback is present from a prior pass.
func (e *Engine) runCoders(ctx context.Context, s *state.State, iteration int) error {
	if iteration > 0 && s.Feedback != "" {
		s.AppendMessage(models.Message{
			Role:    models.RoleUser,
			Content: fmt.Sprintf("Revise the prior attempt.\n\nOriginal task: %s\n\nFeedback: %s", s.Task, s.Feedback),
		})
	}

	for _, coder := range e.config.Coders {
		result := e.runAgent(ctx, coder, s)
		if result.Kind == agentcore.ResultFailed && result.Err != nil {
			return agentcore.NewRunError(agentcore.KindInternal, "coder "+coder.Name()+" failed fatally", result.Err)
		}
	}

	if s.ProposedCode == "" {
		s.MarkDone(state.StatusFailed)
		s.Feedback = "coder did not return code"
		return nil
	}
	return nil
}

// runFormatters runs best-effort; failures are non-fatal and swallowed,
// formatter output never blocks test/review progress.
func (e *Engine) runFormatters(ctx context.Context, s *state.State) {
	for _, formatter := range e.config.Formatters {
		e.runAgent(ctx, formatter, s)
	}
}

// runTesters stops at the first tester that reports failure, copying its
// test output into Feedback for the next coder pass. A transient tester
// exception (ResultFailed with Err set) is treated the same as a failing
// test run: the error text becomes Feedback and the outer loop retries,
// rather than aborting the whole run.
func (e *Engine) runTesters(ctx context.Context, s *state.State) (bool, error) {
	for _, tester := range e.config.Testers {
		result := e.runAgent(ctx, tester, s)
		if result.Kind == agentcore.ResultFailed && result.Err != nil {
			s.Feedback = result.Err.Error()
			return false, nil
		}

		passed, ok := s.TestsPassed()
		if ok && !passed {
			s.Feedback = s.TestOutput
			return false, nil
		}
	}
	return true, nil
}

// runReviewers stops at the first reviewer that reports failure, copying its
// QA output into Feedback for the next coder pass. A transient reviewer
// exception (ResultFailed with Err set) is treated the same as a failing
// review: the error text becomes Feedback and the outer loop retries,
// rather than aborting the whole run.
func (e *Engine) runReviewers(ctx context.Context, s *state.State) (bool, error) {
	for _, reviewer := range e.config.Reviewers {
		result := e.runAgent(ctx, reviewer, s)
		if result.Kind == agentcore.ResultFailed && result.Err != nil {
			s.Feedback = result.Err.Error()
			return false, nil
		}

		passed, ok := s.QAPassed()
		if ok && !passed {
			s.Feedback = s.QAOutput
			return false, nil
		}
	}
	return true, nil
}

// runAgent wraps a single role agent's Run call with node_enter/node_exit
// trace events keyed by the agent's name, then copies back whatever state
// the agent returns.
func (e *Engine) runAgent(ctx context.Context, a agentcore.Agent, s *state.State) agentcore.Result {
	trace.RecordEvent(ctx, trace.TraceEvent{Kind: trace.KindNodeEnter, Node: a.Name()})
	updated, result := a.Run(ctx, s)
	if updated != nil {
		*s = *updated
	}
	trace.RecordEvent(ctx, trace.TraceEvent{
		Kind:     trace.KindNodeExit,
		Node:     a.Name(),
		Metadata: map[string]any{"result_kind": string(result.Kind)},
	})
	return result
}
