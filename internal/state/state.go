// Package state defines the shared, typed record threaded through a single
// engine run. The reserved fields mirror the core keys every agent and node
// may read or write; ad-hoc data lives in the extension map instead of
// widening the struct.
package state

import (
	"github.com/agentic-orchestration/runtime/pkg/models"
)

// Status is the terminal classification of a run.
type Status string

const (
	StatusRunning   Status = "running"
	StatusCompleted Status = "completed"
	StatusFailed    Status = "failed"
)

// NextAction is the Reasoning Graph's decide-node output, naming the tool
// family to invoke next (or the terminal directive).
type NextAction string

const (
	ActionSearch     NextAction = "search"
	ActionFetch      NextAction = "fetch"
	ActionKBSearch   NextAction = "kb_search"
	ActionCalculate  NextAction = "calculate"
	ActionWriteFile  NextAction = "write_file"
	ActionDraftEmail NextAction = "draft_email"
	ActionFinalize   NextAction = "finalize"
)

// State is the mapping threaded through every agent and node in a run. Keys
// are open in principle but the core set below is reserved and typed; a
// missing field means "unset", never a typed zero value masquerading as
// absence — callers must check the paired "Has*"/presence semantics where
// that distinction matters (see HasTestOutcome, HasQAOutcome).
type State struct {
	SessionID string
	Task      string

	ProposedCode string

	testsPassed *bool
	TestOutput  string

	qaPassed *bool
	QAOutput string

	Status   Status
	Feedback string

	Messages []models.Message
	Plan     string

	NextAction NextAction

	Citations []models.Evidence

	Done bool

	// Ext holds ad-hoc, non-reserved keys. Agents that need scratch space
	// not covered by a reserved field use this instead of widening State.
	Ext map[string]any
}

// New seeds a State for a fresh run with only the task and session set, per
// the "seed state: {task}" convention.
func New(sessionID, task string) *State {
	return &State{
		SessionID: sessionID,
		Task:      task,
		Status:    StatusRunning,
		Ext:       make(map[string]any),
	}
}

// SetTestsPassed records a tester outcome. A non-nil result is required
// for HasTestOutcome to report presence.
func (s *State) SetTestsPassed(passed bool) {
	v := passed
	s.testsPassed = &v
}

// TestsPassed returns the last recorded tester outcome and whether one has
// been recorded at all.
func (s *State) TestsPassed() (passed bool, ok bool) {
	if s.testsPassed == nil {
		return false, false
	}
	return *s.testsPassed, true
}

// HasTestOutcome reports whether a tester has run in this State.
func (s *State) HasTestOutcome() bool {
	return s.testsPassed != nil
}

// SetQAPassed records a reviewer outcome.
func (s *State) SetQAPassed(passed bool) {
	v := passed
	s.qaPassed = &v
}

// QAPassed returns the last recorded reviewer outcome and whether one has
// been recorded at all.
func (s *State) QAPassed() (passed bool, ok bool) {
	if s.qaPassed == nil {
		return false, false
	}
	return *s.qaPassed, true
}

// HasQAOutcome reports whether a reviewer has run in this State.
func (s *State) HasQAOutcome() bool {
	return s.qaPassed != nil
}

// AppendMessage appends a message, preserving the append-only, monotonic
// |messages| invariant.
func (s *State) AppendMessage(m models.Message) {
	s.Messages = append(s.Messages, m)
}

// LastMessage returns the most recently appended message, if any.
func (s *State) LastMessage() (models.Message, bool) {
	if len(s.Messages) == 0 {
		return models.Message{}, false
	}
	return s.Messages[len(s.Messages)-1], true
}

// Get reads an ad-hoc key from the extension map.
func (s *State) Get(key string) (any, bool) {
	if s.Ext == nil {
		return nil, false
	}
	v, ok := s.Ext[key]
	return v, ok
}

// Set writes an ad-hoc key into the extension map.
func (s *State) Set(key string, value any) {
	if s.Ext == nil {
		s.Ext = make(map[string]any)
	}
	s.Ext[key] = value
}

// MarkDone sets the monotonic done flag and a terminal status. Once Done is
// true it must never be unset — callers (the Reasoning Graph in particular)
// must check Done before routing any further.
func (s *State) MarkDone(status Status) {
	s.Done = true
	s.Status = status
}
