package session

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/agentic-orchestration/runtime/pkg/models"
)

func TestMemoryHistory_AppendThenLoadReturnsMessagesInOrder(t *testing.T) {
	ctx := context.Background()
	h := NewMemoryHistory()

	require.NoError(t, h.Append(ctx, "s1", models.RoleUser, "hello"))
	require.NoError(t, h.Append(ctx, "s1", models.RoleAssistant, "hi there"))

	msgs, err := h.Load(ctx, "s1", 10)
	require.NoError(t, err)
	require.Len(t, msgs, 2)
	assert.Equal(t, "hello", msgs[0].Content)
	assert.Equal(t, "hi there", msgs[1].Content)
}

func TestMemoryHistory_DifferentSessionsAreIndependent(t *testing.T) {
	ctx := context.Background()
	h := NewMemoryHistory()

	require.NoError(t, h.Append(ctx, "s1", models.RoleUser, "a"))
	require.NoError(t, h.Append(ctx, "s2", models.RoleUser, "b"))

	m1, _ := h.Load(ctx, "s1", 0)
	m2, _ := h.Load(ctx, "s2", 0)
	require.Len(t, m1, 1)
	require.Len(t, m2, 1)
	assert.Equal(t, "a", m1[0].Content)
	assert.Equal(t, "b", m2[0].Content)
}

func TestMemoryHistory_LoadRespectsLimitFromTheEnd(t *testing.T) {
	ctx := context.Background()
	h := NewMemoryHistory()

	for i := 0; i < 5; i++ {
		require.NoError(t, h.Append(ctx, "s1", models.RoleUser, string(rune('a'+i))))
	}

	msgs, err := h.Load(ctx, "s1", 2)
	require.NoError(t, err)
	require.Len(t, msgs, 2)
	assert.Equal(t, "d", msgs[0].Content)
	assert.Equal(t, "e", msgs[1].Content)
}

func TestMemoryHistory_TrimsOldestBeyondCap(t *testing.T) {
	ctx := context.Background()
	h := NewMemoryHistory()

	for i := 0; i < maxMessagesPerSession+10; i++ {
		require.NoError(t, h.Append(ctx, "s1", models.RoleUser, "x"))
	}

	msgs, err := h.Load(ctx, "s1", 0)
	require.NoError(t, err)
	assert.Len(t, msgs, maxMessagesPerSession)
}
