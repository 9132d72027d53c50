package state

import (
	"testing"

	"github.com/agentic-orchestration/runtime/pkg/models"
	"github.com/stretchr/testify/assert"
)

func TestNew_SeedsTaskOnly(t *testing.T) {
	s := New("sess-1", "add two numbers")

	assert.Equal(t, "sess-1", s.SessionID)
	assert.Equal(t, "add two numbers", s.Task)
	assert.Equal(t, StatusRunning, s.Status)
	assert.False(t, s.HasTestOutcome())
	assert.False(t, s.HasQAOutcome())
}

func TestState_TestOutcomeAbsentUntilSet(t *testing.T) {
	s := New("sess-1", "task")

	_, ok := s.TestsPassed()
	assert.False(t, ok, "unset test outcome must report absence, not a false zero value")

	s.SetTestsPassed(false)
	passed, ok := s.TestsPassed()
	assert.True(t, ok)
	assert.False(t, passed)

	s.SetTestsPassed(true)
	passed, ok = s.TestsPassed()
	assert.True(t, ok)
	assert.True(t, passed)
}

func TestState_AppendMessageIsMonotonic(t *testing.T) {
	s := New("sess-1", "task")
	s.AppendMessage(models.Message{Role: models.RoleUser, Content: "hi"})
	s.AppendMessage(models.Message{Role: models.RoleAssistant, Content: "hello"})

	assert.Len(t, s.Messages, 2)
	last, ok := s.LastMessage()
	assert.True(t, ok)
	assert.Equal(t, "hello", last.Content)
}

func TestState_MarkDoneIsTerminal(t *testing.T) {
	s := New("sess-1", "task")
	s.MarkDone(StatusCompleted)

	assert.True(t, s.Done)
	assert.Equal(t, StatusCompleted, s.Status)
}

func TestState_ExtensionMap(t *testing.T) {
	s := New("sess-1", "task")

	_, ok := s.Get("scratch")
	assert.False(t, ok)

	s.Set("scratch", 42)
	v, ok := s.Get("scratch")
	assert.True(t, ok)
	assert.Equal(t, 42, v)
}
