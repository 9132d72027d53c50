package session

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/agentic-orchestration/runtime/pkg/models"
)

// maxMessagesPerSession bounds in-memory history growth per session,
// using a trim-oldest-on-overflow history policy.
const maxMessagesPerSession = 1000

// KVHistory is the external collaborator: an append-only,
// per-session message log.
type KVHistory interface {
	Append(ctx context.Context, sessionID string, role models.Role, content string) error
	Load(ctx context.Context, sessionID string, limit int) ([]models.Message, error)
}

// MemoryHistory is an in-memory KVHistory, adapted from
// an AppendMessage/GetHistory pair: one mutex serializes every read and
// write across all sessions, and each session keeps its own separate
// log, matching a shared-resource ordering guarantee.
type MemoryHistory struct {
	mu       sync.Mutex
	messages map[string][]models.Message
}

// NewMemoryHistory builds an empty in-memory history store.
func NewMemoryHistory() *MemoryHistory {
	return &MemoryHistory{messages: make(map[string][]models.Message)}
}

func (h *MemoryHistory) Append(ctx context.Context, sessionID string, role models.Role, content string) error {
	h.mu.Lock()
	defer h.mu.Unlock()

	msg := models.Message{
		ID:        uuid.NewString(),
		SessionID: sessionID,
		Role:      role,
		Content:   content,
		CreatedAt: time.Now(),
	}
	log := append(h.messages[sessionID], msg)
	if len(log) > maxMessagesPerSession {
		log = log[len(log)-maxMessagesPerSession:]
	}
	h.messages[sessionID] = log
	return nil
}

func (h *MemoryHistory) Load(ctx context.Context, sessionID string, limit int) ([]models.Message, error) {
	h.mu.Lock()
	defer h.mu.Unlock()

	log := h.messages[sessionID]
	start := 0
	if limit > 0 && len(log) > limit {
		start = len(log) - limit
	}
	out := make([]models.Message, len(log)-start)
	copy(out, log[start:])
	return out, nil
}
