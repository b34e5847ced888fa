package workflow

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeStore is a minimal in-memory Store for machine tests.
type fakeStore struct {
	states  map[string][]byte
	saveErr error
	saves   int
}

func newFakeStore() *fakeStore {
	return &fakeStore{states: make(map[string][]byte)}
}

func (s *fakeStore) Load(_ context.Context, threadID, channelID string) (*ConversationState, error) {
	data, ok := s.states[channelID+"_"+threadID]
	if !ok {
		return nil, ErrNotFound
	}
	var cs ConversationState
	if err := json.Unmarshal(data, &cs); err != nil {
		return nil, err
	}
	return &cs, nil
}

func (s *fakeStore) Save(_ context.Context, cs *ConversationState) error {
	if s.saveErr != nil {
		return s.saveErr
	}
	data, err := json.Marshal(cs)
	if err != nil {
		return err
	}
	s.states[cs.ChannelID+"_"+cs.ThreadID] = data
	s.saves++
	return nil
}

func fixedTime() time.Time {
	return time.Date(2026, 8, 30, 12, 0, 0, 0, time.UTC)
}

func TestGetState_CreatesIdleRecord(t *testing.T) {
	store := newFakeStore()
	m := NewMachine(store).WithTimeFunc(fixedTime)

	cs, err := m.GetState(context.Background(), "1700000000.000100", "C012345", "U067890")
	require.NoError(t, err)

	assert.Equal(t, StateIdle, cs.State)
	assert.Equal(t, 1, cs.DealAnalysisVersion)
	assert.Equal(t, "U067890", cs.UserID)
	assert.Equal(t, fixedTime(), cs.CreatedAt)
	assert.Equal(t, 1, store.saves, "fresh record should be persisted")
}

func TestGetState_LoadsFromStore(t *testing.T) {
	store := newFakeStore()
	m := NewMachine(store).WithTimeFunc(fixedTime)

	_, err := m.Transition(context.Background(), "t1", "c1", EventAnalyseRequested, Update{
		ClientName: Ptr("acme"),
	})
	require.NoError(t, err)

	// A second machine sharing the store sees the persisted record.
	m2 := NewMachine(store)
	cs, err := m2.GetState(context.Background(), "t1", "c1", "")
	require.NoError(t, err)
	assert.Equal(t, StateGeneratingDealAnalysis, cs.State)
	assert.Equal(t, "acme", cs.ClientName)
}

func TestTransition_HappyPath(t *testing.T) {
	m := NewMachine(newFakeStore()).WithTimeFunc(fixedTime)
	ctx := context.Background()

	steps := []struct {
		event Event
		want  State
	}{
		{EventAnalyseRequested, StateGeneratingDealAnalysis},
		{EventDealAnalysisCreated, StateWaitingForApproval},
		{EventApproved, StateGeneratingDeck},
		{EventDeckCreated, StateDone},
	}

	var prev State = StateIdle
	for _, step := range steps {
		cs, err := m.Transition(ctx, "t1", "c1", step.event, Update{})
		require.NoError(t, err, "event %s", step.event)
		assert.Equal(t, step.want, cs.State)
		assert.Equal(t, prev, cs.PreviousState)
		prev = cs.State
	}
}

func TestTransition_Completeness(t *testing.T) {
	// Every (state, event) pair outside the 13-row table must be rejected
	// with an InvalidTransitionError, and the stored record must be
	// byte-for-byte unchanged.
	valid := map[transitionKey]bool{}
	for key := range transitions {
		valid[key] = true
	}
	require.Len(t, valid, 13)

	ctx := context.Background()
	for _, state := range AllStates() {
		for _, event := range AllEvents() {
			if valid[transitionKey{state, event}] {
				continue
			}

			store := newFakeStore()
			m := NewMachine(store).WithTimeFunc(fixedTime)
			cs, err := m.GetState(ctx, "t1", "c1", "u1")
			require.NoError(t, err)
			cs.State = state // force the starting state
			require.NoError(t, store.Save(ctx, cs))
			before := append([]byte(nil), store.states["c1_t1"]...)

			_, err = m.Transition(ctx, "t1", "c1", event, Update{})

			var invalid *InvalidTransitionError
			require.ErrorAs(t, err, &invalid, "(%s, %s) should be invalid", state, event)
			assert.Equal(t, state, invalid.State)
			assert.Equal(t, event, invalid.Event)
			assert.Equal(t, before, store.states["c1_t1"], "store must be untouched on rejection")
		}
	}
}

func TestTransition_ApprovalGate(t *testing.T) {
	// Property: from IDLE, no sequence of valid transitions reaches
	// GENERATING_DECK without passing through WAITING_FOR_APPROVAL first.
	type node struct {
		state        State
		sawApproval  bool
	}
	seen := map[node]bool{}
	queue := []node{{StateIdle, false}}

	for len(queue) > 0 {
		n := queue[0]
		queue = queue[1:]
		if seen[n] {
			continue
		}
		seen[n] = true

		assert.False(t, n.state == StateGeneratingDeck && !n.sawApproval,
			"GENERATING_DECK reachable without passing WAITING_FOR_APPROVAL")

		for key, next := range transitions {
			if key.State != n.state {
				continue
			}
			queue = append(queue, node{
				state:       next,
				sawApproval: n.sawApproval || next == StateWaitingForApproval,
			})
		}
	}

	// Sanity: deck generation is reachable at all.
	assert.True(t, seen[node{StateGeneratingDeck, true}])
}

func TestTransition_VersionMonotonicity(t *testing.T) {
	m := NewMachine(newFakeStore()).WithTimeFunc(fixedTime)
	ctx := context.Background()

	_, err := m.Transition(ctx, "t1", "c1", EventAnalyseRequested, Update{})
	require.NoError(t, err)

	const regenerations = 4
	for i := 0; i < regenerations; i++ {
		cs, err := m.Transition(ctx, "t1", "c1", EventDealAnalysisCreated, Update{})
		require.NoError(t, err)

		cs, err = m.Transition(ctx, "t1", "c1", EventRegenerateRequested, Update{
			DealAnalysisVersion: Ptr(cs.DealAnalysisVersion + 1),
		})
		require.NoError(t, err)
		assert.Equal(t, 1+(i+1), cs.DealAnalysisVersion)
	}

	cs, err := m.GetState(ctx, "t1", "c1", "")
	require.NoError(t, err)
	assert.Equal(t, 1+regenerations, cs.DealAnalysisVersion)
}

func TestTransition_AppliesUpdates(t *testing.T) {
	m := NewMachine(newFakeStore()).WithTimeFunc(fixedTime)
	ctx := context.Background()

	cs, err := m.Transition(ctx, "t1", "c1", EventAnalyseRequested, Update{
		ClientName:           Ptr("acme"),
		ChannelType:          Ptr(ChannelTypeDirect),
		InputTranscriptIDs:   []string{"F001"},
		InputTranscriptTexts: []string{"meeting notes"},
		InputURLs:            []string{"https://acme.example"},
	})
	require.NoError(t, err)

	assert.Equal(t, "acme", cs.ClientName)
	assert.Equal(t, ChannelTypeDirect, cs.ChannelType)
	assert.Equal(t, []string{"meeting notes"}, cs.InputTranscriptTexts)

	// Fields not present in a later update stay put.
	cs, err = m.Transition(ctx, "t1", "c1", EventDealAnalysisCreated, Update{
		DealAnalysisDocID: Ptr("doc-1"),
		DealAnalysisLink:  Ptr("https://docs.example/doc-1"),
		MissingInfoItems:  []string{"budget"},
	})
	require.NoError(t, err)
	assert.Equal(t, "acme", cs.ClientName)
	assert.Equal(t, []string{"meeting notes"}, cs.InputTranscriptTexts)
	assert.Equal(t, []string{"budget"}, cs.MissingInfoItems)
}

func TestTransition_ErrorRecoveryPaths(t *testing.T) {
	ctx := context.Background()

	for _, event := range []Event{EventAnalyseRequested, EventCloudConsentGiven} {
		m := NewMachine(newFakeStore()).WithTimeFunc(fixedTime)
		_, err := m.Transition(ctx, "t1", "c1", EventAnalyseRequested, Update{})
		require.NoError(t, err)
		_, err = m.Transition(ctx, "t1", "c1", EventFailed, Update{
			LastErrorKind:    Ptr("SERVICE_OFFLINE"),
			LastErrorMessage: Ptr("cannot connect"),
		})
		require.NoError(t, err)

		cs, err := m.Transition(ctx, "t1", "c1", event, Update{})
		require.NoError(t, err, "recovery via %s", event)
		assert.Equal(t, StateGeneratingDealAnalysis, cs.State)
		assert.Equal(t, StateError, cs.PreviousState)
	}

	// Declining recovery ends the conversation.
	m := NewMachine(newFakeStore()).WithTimeFunc(fixedTime)
	_, err := m.Transition(ctx, "t1", "c1", EventAnalyseRequested, Update{})
	require.NoError(t, err)
	_, err = m.Transition(ctx, "t1", "c1", EventFailed, Update{})
	require.NoError(t, err)
	cs, err := m.Transition(ctx, "t1", "c1", EventRejected, Update{})
	require.NoError(t, err)
	assert.Equal(t, StateDone, cs.State)
}

func TestTransition_SaveFailureLeavesCacheUnchanged(t *testing.T) {
	store := newFakeStore()
	m := NewMachine(store).WithTimeFunc(fixedTime)
	ctx := context.Background()

	_, err := m.Transition(ctx, "t1", "c1", EventAnalyseRequested, Update{})
	require.NoError(t, err)

	store.saveErr = errors.New("backend down")
	_, err = m.Transition(ctx, "t1", "c1", EventDealAnalysisCreated, Update{})
	require.Error(t, err)

	store.saveErr = nil
	cs, err := m.GetState(ctx, "t1", "c1", "")
	require.NoError(t, err)
	assert.Equal(t, StateGeneratingDealAnalysis, cs.State, "failed save must not advance state")
}

func TestTransition_KeysAreIndependent(t *testing.T) {
	m := NewMachine(newFakeStore()).WithTimeFunc(fixedTime)
	ctx := context.Background()

	_, err := m.Transition(ctx, "t1", "c1", EventAnalyseRequested, Update{})
	require.NoError(t, err)

	cs, err := m.GetState(ctx, "t1", "c2", "")
	require.NoError(t, err)
	assert.Equal(t, StateIdle, cs.State)

	cs, err = m.GetState(ctx, "t2", "c1", "")
	require.NoError(t, err)
	assert.Equal(t, StateIdle, cs.State)
}

func TestCanTransition(t *testing.T) {
	assert.True(t, CanTransition(StateIdle, EventAnalyseRequested))
	assert.True(t, CanTransition(StateWaitingForApproval, EventRegenerateRequested))
	assert.False(t, CanTransition(StateIdle, EventApproved))
	assert.False(t, CanTransition(StateDone, EventAnalyseRequested))
}

func TestConversationState_JSONRoundTrip(t *testing.T) {
	now := time.Date(2026, 8, 30, 9, 15, 42, 123456789, time.UTC)
	cs := &ConversationState{
		ThreadID:            "1700000000.000100",
		ChannelID:           "C012345",
		UserID:              "U067890",
		ChannelType:         ChannelTypeGroup,
		State:               StateWaitingForApproval,
		PreviousState:       StateGeneratingDealAnalysis,
		ClientName:          "acme",
		DealAnalysisContent: map[string]any{"opportunity_snapshot": "expansion deal"},
		DealAnalysisVersion: 3,
		InputTranscriptTexts: []string{"raw transcript"},
		MissingInfoItems:    []string{"budget", "timeline"},
		LastErrorKind:       "SERVICE_ERROR",
		RetryCount:          2,
		CloudConsentGiven:   true,
		CreatedAt:           now,
		UpdatedAt:           now.Add(time.Hour),
	}

	data, err := json.Marshal(cs)
	require.NoError(t, err)

	// Enums round-trip by name.
	assert.Contains(t, string(data), `"state":"WAITING_FOR_APPROVAL"`)
	assert.Contains(t, string(data), `"previous_state":"GENERATING_DEAL_ANALYSIS"`)

	var back ConversationState
	require.NoError(t, json.Unmarshal(data, &back))
	assert.Equal(t, cs.State, back.State)
	assert.Equal(t, cs.PreviousState, back.PreviousState)
	// Timestamps keep full precision.
	assert.True(t, cs.CreatedAt.Equal(back.CreatedAt))
	assert.True(t, cs.UpdatedAt.Equal(back.UpdatedAt))
	assert.Equal(t, cs.DealAnalysisContent, back.DealAnalysisContent)
}
