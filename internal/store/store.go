// Package store persists per-conversation message history. The orchestrator
// owns all history mutation; stores only get, append, and truncate by
// conversation id.
package store

import (
	"context"
	"sync"

	"github.com/cronus42/homeassistant-ollama-agent/internal/actions"
)

// Message is one history entry. Immutable once appended.
type Message struct {
	Role        string         `json:"role"` // "system", "user", "assistant", "tool"
	Content     string         `json:"content"`
	ActionCalls []actions.Call `json:"action_calls,omitempty"`
}

// ConversationStore is the history backend injected into the orchestrator.
type ConversationStore interface {
	// Get returns the stored history for id, oldest first. A missing id
	// yields an empty history, not an error.
	Get(ctx context.Context, id string) ([]Message, error)
	// Append adds messages to the end of the history for id.
	Append(ctx context.Context, id string, msgs ...Message) error
	// Truncate drops all but the most recent keep messages for id.
	Truncate(ctx context.Context, id string, keep int) error
}

// MemoryStore keeps conversations in process memory. Used by default and in
// tests; history lives only as long as the process.
type MemoryStore struct {
	mu            sync.RWMutex
	conversations map[string][]Message
}

// NewMemoryStore creates an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{conversations: make(map[string][]Message)}
}

func (s *MemoryStore) Get(ctx context.Context, id string) ([]Message, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	msgs := s.conversations[id]
	out := make([]Message, len(msgs))
	copy(out, msgs)
	return out, nil
}

func (s *MemoryStore) Append(ctx context.Context, id string, msgs ...Message) error {
	if len(msgs) == 0 {
		return nil
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	s.conversations[id] = append(s.conversations[id], msgs...)
	return nil
}

func (s *MemoryStore) Truncate(ctx context.Context, id string, keep int) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	msgs := s.conversations[id]
	if keep < 0 || len(msgs) <= keep {
		return nil
	}
	trimmed := make([]Message, keep)
	copy(trimmed, msgs[len(msgs)-keep:])
	s.conversations[id] = trimmed
	return nil
}
