// Package session implements the Session Controller (C9): human-in-the-loop
// stage advancement over a fixed per-session timeline. The store interface
// and in-memory implementation follow the original session store
// and memory.go (RWMutex-guarded maps, clone-on-read/write to prevent
// callers from mutating internal state through returned pointers); the
// sentinel-error style follows the original branch store.
package session

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/agentic-orchestration/runtime/pkg/models"
)

// Timeline stage ids, in fixed order.
const (
	StageCoding     = "coding"
	StageReview     = "review"
	StageFormatting = "formatting"
	StageTesting    = "testing"
	StageQA         = "qa"
)

var stageOrder = []string{StageCoding, StageReview, StageFormatting, StageTesting, StageQA}

var stageTitles = map[string]string{
	StageCoding:     "Coding",
	StageReview:     "Review",
	StageFormatting: "Formatting",
	StageTesting:    "Testing",
	StageQA:         "QA",
}

// FeedbackAction is the action vocabulary for ApplyFeedback.
type FeedbackAction string

const (
	ActionApprove FeedbackAction = "approve"
	ActionRevise  FeedbackAction = "revise"
)

// AdvanceAction is the action vocabulary for Advance.
type AdvanceAction string

const (
	ActionRunTests AdvanceAction = "run_tests"
	ActionSendToQA AdvanceAction = "send_to_qa"
)

// Sentinel errors.
var (
	ErrSessionNotFound = errors.New("session not found")
	ErrStageConflict   = errors.New("action does not apply to the session's current stage")
	ErrInvalidAction   = errors.New("invalid action for this operation")
	ErrSessionComplete = errors.New("session has already reached a terminal stage")
)

// Store persists Session records.
type Store interface {
	Create(ctx context.Context, s *models.Session) error
	Get(ctx context.Context, id string) (*models.Session, error)
	Update(ctx context.Context, s *models.Session) error
}

// MemoryStore is an in-memory Store for testing and local runs.
type MemoryStore struct {
	mu       sync.RWMutex
	sessions map[string]*models.Session
}

// NewMemoryStore builds an empty in-memory session store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{sessions: make(map[string]*models.Session)}
}

func (m *MemoryStore) Create(ctx context.Context, s *models.Session) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.sessions[s.ID] = cloneSession(s)
	return nil
}

func (m *MemoryStore) Get(ctx context.Context, id string) (*models.Session, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	s, ok := m.sessions[id]
	if !ok {
		return nil, ErrSessionNotFound
	}
	return cloneSession(s), nil
}

func (m *MemoryStore) Update(ctx context.Context, s *models.Session) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.sessions[s.ID]; !ok {
		return ErrSessionNotFound
	}
	m.sessions[s.ID] = cloneSession(s)
	return nil
}

func cloneSession(s *models.Session) *models.Session {
	clone := *s
	clone.Stages = append([]models.TimelineStage(nil), s.Stages...)
	return &clone
}

// Controller drives the fixed coding -> review -> formatting -> testing ->
// qa timeline for every session it owns.
type Controller struct {
	store Store
}

// New builds a Controller over the given Store.
func New(store Store) *Controller {
	return &Controller{store: store}
}

func freshTimeline() []models.TimelineStage {
	stages := make([]models.TimelineStage, len(stageOrder))
	for i, id := range stageOrder {
		status := models.StagePending
		if i == 0 {
			status = models.StageActive
		}
		stages[i] = models.TimelineStage{ID: id, Title: stageTitles[id], Status: status}
	}
	return stages
}

// StartSession creates a new session with coding active and every later
// stage pending.
func (c *Controller) StartSession(ctx context.Context, task string) (*models.Session, error) {
	if task == "" {
		return nil, fmt.Errorf("task must not be empty")
	}
	now := time.Now()
	s := &models.Session{
		ID:        uuid.NewString(),
		Task:      task,
		Stages:    freshTimeline(),
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := c.store.Create(ctx, s); err != nil {
		return nil, err
	}
	return s, nil
}

// CompleteCoding records that every coder agent has run and advances the
// timeline from coding to review, following a "coding -> review (auto after
// all coders run)" transition. This is driven by the engine, not a human
// action, so it is not gated by an action enum the way ApplyFeedback and
// Advance are.
func (c *Controller) CompleteCoding(ctx context.Context, sessionID string, artifacts []string) (*models.Session, error) {
	s, err := c.store.Get(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	if s.CurrentStage() == nil || s.CurrentStage().ID != StageCoding {
		return nil, fmt.Errorf("%w: session is not in the coding stage", ErrStageConflict)
	}
	s.Stages[c.indexOf(s, StageCoding)].Status = models.StageCompleted
	s.Stages[c.indexOf(s, StageCoding)].Artifacts = artifacts
	reviewIdx := c.indexOf(s, StageReview)
	s.Stages[reviewIdx].Status = models.StageActive
	s.CurrentIndex = reviewIdx
	s.UpdatedAt = time.Now()
	if err := c.store.Update(ctx, s); err != nil {
		return nil, err
	}
	return s, nil
}

func (c *Controller) indexOf(s *models.Session, id string) int {
	for i, st := range s.Stages {
		if st.ID == id {
			return i
		}
	}
	return -1
}

// ApplyFeedback implements the review gate: approve moves coding's output
// through formatting (run synchronously here, as it has no human gate of
// its own) and leaves testing awaiting a run_tests call; revise sends the
// session back to coding with the reviewer's comment appended to Task for
// the next coding pass to read (and stored as the review stage's Feedback).
func (c *Controller) ApplyFeedback(ctx context.Context, sessionID string, action FeedbackAction, comment string) (*models.Session, error) {
	s, err := c.store.Get(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	if s.Complete {
		return nil, ErrSessionComplete
	}
	cur := s.CurrentStage()
	if cur == nil || cur.ID != StageReview {
		return nil, fmt.Errorf("%w: session is not awaiting review", ErrStageConflict)
	}

	switch action {
	case ActionApprove:
		s.Stages[c.indexOf(s, StageReview)].Status = models.StageCompleted
		formattingIdx := c.indexOf(s, StageFormatting)
		s.Stages[formattingIdx].Status = models.StageCompleted
		testingIdx := c.indexOf(s, StageTesting)
		s.Stages[testingIdx].Status = models.StageAwaiting
		s.CurrentIndex = testingIdx
	case ActionRevise:
		s.Stages[c.indexOf(s, StageReview)].Status = models.StagePending
		s.Stages[c.indexOf(s, StageReview)].Feedback = comment
		codingIdx := c.indexOf(s, StageCoding)
		s.Stages[codingIdx].Status = models.StageActive
		if comment != "" {
			s.Task = s.Task + "\n\nReviewer feedback: " + comment
		}
		s.CurrentIndex = codingIdx
	default:
		return nil, fmt.Errorf("%w: %q", ErrInvalidAction, action)
	}

	s.UpdatedAt = time.Now()
	if err := c.store.Update(ctx, s); err != nil {
		return nil, err
	}
	return s, nil
}

// Advance implements the testing and qa gates. run_tests is only valid
// while testing is the current stage; send_to_qa only while qa is current.
// Any mismatch is a conflict rather than a silent no-op, per the operation
// contract.
func (c *Controller) Advance(ctx context.Context, sessionID string, action AdvanceAction, passed bool, output string) (*models.Session, error) {
	s, err := c.store.Get(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	if s.Complete {
		return nil, ErrSessionComplete
	}
	cur := s.CurrentStage()
	if cur == nil {
		return nil, fmt.Errorf("%w: session has no current stage", ErrStageConflict)
	}

	switch action {
	case ActionRunTests:
		if cur.ID != StageTesting {
			return nil, fmt.Errorf("%w: session is not awaiting tests", ErrStageConflict)
		}
		return c.resolveGate(ctx, s, StageTesting, StageQA, passed, output)
	case ActionSendToQA:
		if cur.ID != StageQA {
			return nil, fmt.Errorf("%w: session is not awaiting qa", ErrStageConflict)
		}
		return c.resolveGate(ctx, s, StageQA, "", passed, output)
	default:
		return nil, fmt.Errorf("%w: %q", ErrInvalidAction, action)
	}
}

// resolveGate applies a pass/fail outcome to the stage named by id. On pass
// it completes the stage and activates nextOnPass (or marks the session
// terminally complete when nextOnPass is empty, i.e. qa passed). On fail it
// sends the session back to review awaiting a fresh decision, carrying the
// failure output forward as feedback.
func (c *Controller) resolveGate(ctx context.Context, s *models.Session, id, nextOnPass string, passed bool, output string) (*models.Session, error) {
	idx := c.indexOf(s, id)
	if passed {
		s.Stages[idx].Status = models.StageCompleted
		s.Stages[idx].Artifacts = append(s.Stages[idx].Artifacts, output)
		if nextOnPass == "" {
			s.Complete = true
			s.CurrentIndex = idx
		} else {
			nextIdx := c.indexOf(s, nextOnPass)
			s.Stages[nextIdx].Status = models.StageAwaiting
			s.CurrentIndex = nextIdx
		}
	} else {
		s.Stages[idx].Status = models.StageFailed
		reviewIdx := c.indexOf(s, StageReview)
		s.Stages[reviewIdx].Status = models.StageAwaiting
		s.Stages[reviewIdx].Feedback = output
		s.CurrentIndex = reviewIdx
	}
	s.UpdatedAt = time.Now()
	if err := c.store.Update(ctx, s); err != nil {
		return nil, err
	}
	return s, nil
}

// Get returns the session's current state.
func (c *Controller) Get(ctx context.Context, sessionID string) (*models.Session, error) {
	return c.store.Get(ctx, sessionID)
}
