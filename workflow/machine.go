package workflow

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"
)

// ErrNotFound is returned by a Store when no record exists for the key.
var ErrNotFound = errors.New("conversation state not found")

// transitionKey is the composite (current state, event) lookup key.
type transitionKey struct {
	State State
	Event Event
}

// transitions is the closed transition table. Any (state, event) pair absent
// from this map is an invalid transition. There is deliberately no edge into
// StateGeneratingDeck except from StateWaitingForApproval, which is what
// enforces the human-approval gate structurally.
var transitions = map[transitionKey]State{
	{StateIdle, EventAnalyseRequested}:                             StateGeneratingDealAnalysis,
	{StateIdle, EventInputsMissing}:                                StateWaitingForInputs,
	{StateGeneratingDealAnalysis, EventDealAnalysisCreated}:        StateWaitingForApproval,
	{StateGeneratingDealAnalysis, EventFailed}:                     StateError,
	{StateWaitingForApproval, EventApproved}:                       StateGeneratingDeck,
	{StateWaitingForApproval, EventRejected}:                       StateDone,
	{StateWaitingForApproval, EventUpdatedDealAnalysisProvided}:    StateGeneratingDeck,
	{StateWaitingForApproval, EventRegenerateRequested}:            StateGeneratingDealAnalysis,
	{StateGeneratingDeck, EventDeckCreated}:                        StateDone,
	{StateGeneratingDeck, EventFailed}:                             StateError,
	{StateError, EventAnalyseRequested}:                            StateGeneratingDealAnalysis,
	{StateError, EventCloudConsentGiven}:                           StateGeneratingDealAnalysis,
	{StateError, EventRejected}:                                    StateDone, // user declines cloud consent
}

// CanTransition reports whether the event is valid in the given state.
func CanTransition(state State, event Event) bool {
	_, ok := transitions[transitionKey{state, event}]
	return ok
}

// InvalidTransitionError reports an event that is not valid for the
// conversation's current state. It indicates a caller bug or duplicate event
// delivery; the stored state is left unchanged.
type InvalidTransitionError struct {
	State State
	Event Event
}

// Error implements the error interface.
func (e *InvalidTransitionError) Error() string {
	return fmt.Sprintf("invalid transition: cannot apply %s in state %s", e.Event, e.State)
}

// Store persists conversation state. Load returns ErrNotFound when no record
// exists for the key. Implementations need no transactional guarantees beyond
// last-write-wins per key; the Machine serializes access per key.
type Store interface {
	Load(ctx context.Context, threadID, channelID string) (*ConversationState, error)
	Save(ctx context.Context, state *ConversationState) error
}

// TimeFunc returns the current time. Override for deterministic tests.
type TimeFunc func() time.Time

// Machine owns conversation state records and applies validated transitions.
// Events for the same (channel, thread) key are serialized internally;
// different keys proceed independently.
type Machine struct {
	store Store
	now   TimeFunc

	mu    sync.Mutex
	cache map[string]*ConversationState
}

// NewMachine creates a state machine persisting through the given store.
// A nil store keeps state in memory only.
func NewMachine(store Store) *Machine {
	return &Machine{
		store: store,
		now:   time.Now,
		cache: make(map[string]*ConversationState),
	}
}

// WithTimeFunc sets a custom time function for deterministic tests.
func (m *Machine) WithTimeFunc(fn TimeFunc) *Machine {
	m.now = fn
	return m
}

func cacheKey(threadID, channelID string) string {
	return channelID + "_" + threadID
}

// GetState returns the conversation state for the key, creating and
// persisting a fresh idle record on first use.
func (m *Machine) GetState(ctx context.Context, threadID, channelID, userID string) (*ConversationState, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.getStateLocked(ctx, threadID, channelID, userID)
}

func (m *Machine) getStateLocked(ctx context.Context, threadID, channelID, userID string) (*ConversationState, error) {
	key := cacheKey(threadID, channelID)

	if cs, ok := m.cache[key]; ok {
		return cs, nil
	}

	if m.store != nil {
		cs, err := m.store.Load(ctx, threadID, channelID)
		switch {
		case err == nil:
			m.cache[key] = cs
			return cs, nil
		case !errors.Is(err, ErrNotFound):
			return nil, fmt.Errorf("load conversation state: %w", err)
		}
	}

	now := m.now()
	cs := &ConversationState{
		ThreadID:            threadID,
		ChannelID:           channelID,
		UserID:              userID,
		State:               StateIdle,
		DealAnalysisVersion: 1,
		CreatedAt:           now,
		UpdatedAt:           now,
	}
	m.cache[key] = cs
	if m.store != nil {
		if err := m.store.Save(ctx, cs); err != nil {
			return nil, fmt.Errorf("save new conversation state: %w", err)
		}
	}
	return cs, nil
}

// Transition applies the event to the conversation identified by
// (threadID, channelID), lazily creating the record on first use.
//
// An event not valid in the current state is rejected with an
// *InvalidTransitionError and no mutation occurs. Otherwise the previous
// state is recorded, the new state and field updates are applied, UpdatedAt
// is stamped, and the record is persisted before it is returned. A store
// failure also leaves the cached record unchanged.
func (m *Machine) Transition(ctx context.Context, threadID, channelID string, event Event, update Update) (*ConversationState, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	cs, err := m.getStateLocked(ctx, threadID, channelID, "")
	if err != nil {
		return nil, err
	}

	next, ok := transitions[transitionKey{cs.State, event}]
	if !ok {
		return nil, &InvalidTransitionError{State: cs.State, Event: event}
	}

	// Mutate a copy so a persistence failure cannot leave a half-applied
	// record in the cache.
	updated := cloneState(cs)
	updated.PreviousState = updated.State
	updated.State = next
	update.apply(updated)
	updated.UpdatedAt = m.now()

	if m.store != nil {
		if err := m.store.Save(ctx, updated); err != nil {
			return nil, fmt.Errorf("save conversation state: %w", err)
		}
	}

	m.cache[cacheKey(threadID, channelID)] = updated
	return updated, nil
}

// cloneState returns a deep copy of the conversation state via JSON
// round-tripping.
func cloneState(cs *ConversationState) *ConversationState {
	data, err := json.Marshal(cs)
	if err != nil {
		// ConversationState contains only JSON-encodable fields.
		panic(fmt.Sprintf("workflow: marshal conversation state: %v", err))
	}
	var out ConversationState
	if err := json.Unmarshal(data, &out); err != nil {
		panic(fmt.Sprintf("workflow: unmarshal conversation state: %v", err))
	}
	return &out
}

// AllStates returns every workflow state, for exhaustive validation in tests
// and tooling.
func AllStates() []State {
	return []State{
		StateIdle,
		StateWaitingForInputs,
		StateGeneratingDealAnalysis,
		StateWaitingForApproval,
		StateGeneratingDeck,
		StateDone,
		StateError,
	}
}

// AllEvents returns every workflow event.
func AllEvents() []Event {
	return []Event{
		EventAnalyseRequested,
		EventInputsMissing,
		EventDealAnalysisCreated,
		EventApproved,
		EventRejected,
		EventUpdatedDealAnalysisProvided,
		EventDeckCreated,
		EventFailed,
		EventRegenerateRequested,
		EventCloudConsentGiven,
	}
}
