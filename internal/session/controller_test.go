package session

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestController_StartSession_BeginsInCodingStage(t *testing.T) {
	c := New(NewMemoryStore())
	s, err := c.StartSession(context.Background(), "build a widget")
	require.NoError(t, err)

	assert.Equal(t, StageCoding, s.CurrentStage().ID)
	assert.Len(t, s.Stages, 5)
	for _, st := range s.Stages[1:] {
		assert.Equal(t, "pending", string(st.Status))
	}
}

func TestController_FullHappyPathReachesComplete(t *testing.T) {
	ctx := context.Background()
	c := New(NewMemoryStore())
	s, err := c.StartSession(ctx, "ship feature")
	require.NoError(t, err)

	s, err = c.CompleteCoding(ctx, s.ID, []string{"diff.patch"})
	require.NoError(t, err)
	assert.Equal(t, StageReview, s.CurrentStage().ID)

	s, err = c.ApplyFeedback(ctx, s.ID, ActionApprove, "")
	require.NoError(t, err)
	assert.Equal(t, StageTesting, s.CurrentStage().ID)
	assert.Equal(t, "awaiting", string(s.CurrentStage().Status))

	s, err = c.Advance(ctx, s.ID, ActionRunTests, true, "all green")
	require.NoError(t, err)
	assert.Equal(t, StageQA, s.CurrentStage().ID)

	s, err = c.Advance(ctx, s.ID, ActionSendToQA, true, "qa signed off")
	require.NoError(t, err)
	assert.True(t, s.Complete)
}

func TestController_ApplyFeedback_ReviseSendsBackToCodingWithFeedback(t *testing.T) {
	ctx := context.Background()
	c := New(NewMemoryStore())
	s, _ := c.StartSession(ctx, "add retries")
	s, _ = c.CompleteCoding(ctx, s.ID, nil)

	s, err := c.ApplyFeedback(ctx, s.ID, ActionRevise, "handle the timeout case")
	require.NoError(t, err)

	assert.Equal(t, StageCoding, s.CurrentStage().ID)
	assert.Contains(t, s.Task, "handle the timeout case")
}

func TestController_Advance_FailedTestsGoesBackToReviewAwaiting(t *testing.T) {
	ctx := context.Background()
	c := New(NewMemoryStore())
	s, _ := c.StartSession(ctx, "fix bug")
	s, _ = c.CompleteCoding(ctx, s.ID, nil)
	s, _ = c.ApplyFeedback(ctx, s.ID, ActionApprove, "")

	s, err := c.Advance(ctx, s.ID, ActionRunTests, false, "2 tests failed")
	require.NoError(t, err)

	assert.Equal(t, StageReview, s.CurrentStage().ID)
	assert.Equal(t, "awaiting", string(s.CurrentStage().Status))
	assert.Equal(t, "2 tests failed", s.CurrentStage().Feedback)
}

func TestController_Advance_FailedQAGoesBackToReviewAwaiting(t *testing.T) {
	ctx := context.Background()
	c := New(NewMemoryStore())
	s, _ := c.StartSession(ctx, "fix bug")
	s, _ = c.CompleteCoding(ctx, s.ID, nil)
	s, _ = c.ApplyFeedback(ctx, s.ID, ActionApprove, "")
	s, _ = c.Advance(ctx, s.ID, ActionRunTests, true, "green")

	s, err := c.Advance(ctx, s.ID, ActionSendToQA, false, "regression found")
	require.NoError(t, err)

	assert.Equal(t, StageReview, s.CurrentStage().ID)
	assert.False(t, s.Complete)
}

func TestController_Advance_WrongActionForCurrentStageIsConflict(t *testing.T) {
	ctx := context.Background()
	c := New(NewMemoryStore())
	s, _ := c.StartSession(ctx, "fix bug")

	_, err := c.Advance(ctx, s.ID, ActionRunTests, true, "")
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrStageConflict))
}

func TestController_ApplyFeedback_BeforeReviewIsConflict(t *testing.T) {
	ctx := context.Background()
	c := New(NewMemoryStore())
	s, _ := c.StartSession(ctx, "fix bug")

	_, err := c.ApplyFeedback(ctx, s.ID, ActionApprove, "")
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrStageConflict))
}

func TestController_Operations_UnknownSessionIsNotFound(t *testing.T) {
	ctx := context.Background()
	c := New(NewMemoryStore())

	_, err := c.ApplyFeedback(ctx, "does-not-exist", ActionApprove, "")
	assert.True(t, errors.Is(err, ErrSessionNotFound))
}

func TestController_Advance_AfterCompleteIsRejected(t *testing.T) {
	ctx := context.Background()
	c := New(NewMemoryStore())
	s, _ := c.StartSession(ctx, "fix bug")
	s, _ = c.CompleteCoding(ctx, s.ID, nil)
	s, _ = c.ApplyFeedback(ctx, s.ID, ActionApprove, "")
	s, _ = c.Advance(ctx, s.ID, ActionRunTests, true, "green")
	s, _ = c.Advance(ctx, s.ID, ActionSendToQA, true, "signed off")

	_, err := c.Advance(ctx, s.ID, ActionRunTests, true, "")
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrSessionComplete))
}
