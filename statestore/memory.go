// Package statestore provides persistence backends for conversation state.
//
// Three implementations of workflow.Store are available: MemoryStore for
// tests and single-instance deployments, FileStore for durable single-host
// persistence, and RedisStore for distributed deployments.
package statestore

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/AltairaLabs/DealFlow/workflow"
)

// MemoryStore is an in-memory implementation of workflow.Store. It is
// thread-safe and hands out deep copies so callers cannot mutate stored
// records in place.
type MemoryStore struct {
	mu     sync.RWMutex
	states map[string]*workflow.ConversationState
}

// NewMemoryStore creates a new in-memory state store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		states: make(map[string]*workflow.ConversationState),
	}
}

func storeKey(threadID, channelID string) string {
	return channelID + "_" + threadID
}

// Load retrieves a conversation state, returning workflow.ErrNotFound when
// no record exists for the key.
func (s *MemoryStore) Load(_ context.Context, threadID, channelID string) (*workflow.ConversationState, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	cs, ok := s.states[storeKey(threadID, channelID)]
	if !ok {
		return nil, workflow.ErrNotFound
	}
	return copyState(cs)
}

// Save persists a conversation state, replacing any existing record for the
// same key.
func (s *MemoryStore) Save(_ context.Context, cs *workflow.ConversationState) error {
	if cs == nil {
		return fmt.Errorf("nil conversation state")
	}

	stored, err := copyState(cs)
	if err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.states[storeKey(cs.ThreadID, cs.ChannelID)] = stored
	return nil
}

// Len returns the number of stored records.
func (s *MemoryStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.states)
}

// copyState deep-copies a conversation state via JSON round-tripping.
func copyState(cs *workflow.ConversationState) (*workflow.ConversationState, error) {
	data, err := json.Marshal(cs)
	if err != nil {
		return nil, fmt.Errorf("marshal conversation state: %w", err)
	}
	var out workflow.ConversationState
	if err := json.Unmarshal(data, &out); err != nil {
		return nil, fmt.Errorf("unmarshal conversation state: %w", err)
	}
	return &out, nil
}
