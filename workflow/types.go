// Package workflow implements the per-conversation workflow state machine for
// the deal analysis pipeline.
//
// A conversation moves through a fixed set of states driven by events: a new
// transcript starts analysis, the generated deal analysis waits for human
// approval, and only an approval (or an explicitly updated analysis) unlocks
// deck generation. The transition table is closed; any (state, event) pair it
// does not list is rejected.
package workflow

import "time"

// State is a conversation's workflow phase.
type State string

// Workflow states. StateIdle is the initial phase; StateDone is terminal for
// a document version. StateError supports recovery transitions.
const (
	StateIdle                   State = "IDLE"
	StateWaitingForInputs       State = "WAITING_FOR_INPUTS"
	StateGeneratingDealAnalysis State = "GENERATING_DEAL_ANALYSIS"
	StateWaitingForApproval     State = "WAITING_FOR_APPROVAL"
	StateGeneratingDeck         State = "GENERATING_DECK"
	StateDone                   State = "DONE"
	StateError                  State = "ERROR"
)

// Event triggers a state transition.
type Event string

// Workflow events.
const (
	EventAnalyseRequested            Event = "ANALYSE_REQUESTED"
	EventInputsMissing               Event = "INPUTS_MISSING"
	EventDealAnalysisCreated         Event = "DEAL_ANALYSIS_CREATED"
	EventApproved                    Event = "APPROVED"
	EventRejected                    Event = "REJECTED"
	EventUpdatedDealAnalysisProvided Event = "UPDATED_DEAL_ANALYSIS_PROVIDED"
	EventDeckCreated                 Event = "DECK_CREATED"
	EventFailed                      Event = "FAILED"
	EventRegenerateRequested         Event = "REGENERATE_REQUESTED"
	EventCloudConsentGiven           Event = "CLOUD_CONSENT_GIVEN"
)

// ChannelType distinguishes direct-message threads from group channels.
type ChannelType string

// Channel types.
const (
	ChannelTypeDirect ChannelType = "im"
	ChannelTypeGroup  ChannelType = "channel"
)

// ConversationState tracks the workflow state and accumulated data for a
// single chat thread, keyed by (channel_id, thread_id). It is mutated only
// through Machine.Transition and persisted through a Store.
type ConversationState struct {
	// Identity.
	ThreadID    string      `json:"thread_id"`
	ChannelID   string      `json:"channel_id"`
	UserID      string      `json:"user_id"`
	ChannelType ChannelType `json:"channel_type,omitempty"`

	// Workflow.
	State         State     `json:"state"`
	PreviousState State     `json:"previous_state,omitempty"`
	CreatedAt     time.Time `json:"created_at"`
	UpdatedAt     time.Time `json:"updated_at"`

	// Client and document linkage.
	ClientName          string         `json:"client_name,omitempty"`
	ClientFolderID      string         `json:"client_folder_id,omitempty"`
	MeetingsFolderID    string         `json:"meetings_folder_id,omitempty"`
	AnalysisFolderID    string         `json:"analysis_folder_id,omitempty"`
	ProposalsFolderID   string         `json:"proposals_folder_id,omitempty"`
	ReferencesFolderID  string         `json:"references_folder_id,omitempty"`
	DealAnalysisDocID   string         `json:"deal_analysis_doc_id,omitempty"`
	DealAnalysisLink    string         `json:"deal_analysis_link,omitempty"`
	DealAnalysisContent map[string]any `json:"deal_analysis_content,omitempty"`
	DealAnalysisVersion int            `json:"deal_analysis_version"`
	SlideDeckID         string         `json:"slide_deck_id,omitempty"`
	SlideDeckLink       string         `json:"slide_deck_link,omitempty"`

	// Inputs retained for regeneration and cloud-fallback replay. The raw
	// transcript texts are kept for the lifetime of the conversation so a
	// retry never has to re-ask the user for the original files.
	InputTranscriptIDs   []string `json:"input_transcript_ids,omitempty"`
	InputTranscriptTexts []string `json:"input_transcript_texts,omitempty"`
	InputReferenceIDs    []string `json:"input_reference_ids,omitempty"`
	InputURLs            []string `json:"input_urls,omitempty"`

	// Output bookkeeping.
	MissingInfoItems []string `json:"missing_info_items,omitempty"`

	// Failure bookkeeping.
	LastErrorKind    string `json:"last_error_kind,omitempty"`
	LastErrorMessage string `json:"last_error_message,omitempty"`
	RetryCount       int    `json:"retry_count"`

	// Consent.
	CloudConsentGiven bool `json:"cloud_consent_given"`
}

// Update is a typed partial update applied during a transition. Nil pointer
// and nil slice/map fields leave the corresponding record field unchanged, so
// a misspelled field is a compile error rather than a silent no-op.
type Update struct {
	ChannelType         *ChannelType
	ClientName          *string
	ClientFolderID      *string
	MeetingsFolderID    *string
	AnalysisFolderID    *string
	ProposalsFolderID   *string
	ReferencesFolderID  *string
	DealAnalysisDocID   *string
	DealAnalysisLink    *string
	DealAnalysisContent map[string]any
	DealAnalysisVersion *int
	SlideDeckID         *string
	SlideDeckLink       *string

	InputTranscriptIDs   []string
	InputTranscriptTexts []string
	InputReferenceIDs    []string
	InputURLs            []string

	MissingInfoItems []string

	LastErrorKind    *string
	LastErrorMessage *string
	RetryCount       *int

	CloudConsentGiven *bool
}

// apply copies the set fields of the update onto the record.
func (u Update) apply(cs *ConversationState) {
	if u.ChannelType != nil {
		cs.ChannelType = *u.ChannelType
	}
	if u.ClientName != nil {
		cs.ClientName = *u.ClientName
	}
	if u.ClientFolderID != nil {
		cs.ClientFolderID = *u.ClientFolderID
	}
	if u.MeetingsFolderID != nil {
		cs.MeetingsFolderID = *u.MeetingsFolderID
	}
	if u.AnalysisFolderID != nil {
		cs.AnalysisFolderID = *u.AnalysisFolderID
	}
	if u.ProposalsFolderID != nil {
		cs.ProposalsFolderID = *u.ProposalsFolderID
	}
	if u.ReferencesFolderID != nil {
		cs.ReferencesFolderID = *u.ReferencesFolderID
	}
	if u.DealAnalysisDocID != nil {
		cs.DealAnalysisDocID = *u.DealAnalysisDocID
	}
	if u.DealAnalysisLink != nil {
		cs.DealAnalysisLink = *u.DealAnalysisLink
	}
	if u.DealAnalysisContent != nil {
		cs.DealAnalysisContent = u.DealAnalysisContent
	}
	if u.DealAnalysisVersion != nil {
		cs.DealAnalysisVersion = *u.DealAnalysisVersion
	}
	if u.SlideDeckID != nil {
		cs.SlideDeckID = *u.SlideDeckID
	}
	if u.SlideDeckLink != nil {
		cs.SlideDeckLink = *u.SlideDeckLink
	}
	if u.InputTranscriptIDs != nil {
		cs.InputTranscriptIDs = u.InputTranscriptIDs
	}
	if u.InputTranscriptTexts != nil {
		cs.InputTranscriptTexts = u.InputTranscriptTexts
	}
	if u.InputReferenceIDs != nil {
		cs.InputReferenceIDs = u.InputReferenceIDs
	}
	if u.InputURLs != nil {
		cs.InputURLs = u.InputURLs
	}
	if u.MissingInfoItems != nil {
		cs.MissingInfoItems = u.MissingInfoItems
	}
	if u.LastErrorKind != nil {
		cs.LastErrorKind = *u.LastErrorKind
	}
	if u.LastErrorMessage != nil {
		cs.LastErrorMessage = *u.LastErrorMessage
	}
	if u.RetryCount != nil {
		cs.RetryCount = *u.RetryCount
	}
	if u.CloudConsentGiven != nil {
		cs.CloudConsentGiven = *u.CloudConsentGiven
	}
}

// Ptr returns a pointer to v, for building Update literals.
func Ptr[T any](v T) *T {
	return &v
}
