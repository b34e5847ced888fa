// Package orchestrator drives the deal analysis workflow end to end: inbound
// events become state machine transitions, certain states trigger context
// assembly and model calls, and every step failure is recorded on the
// conversation before a human-facing message goes out.
package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/AltairaLabs/DealFlow/contextbuilder"
	"github.com/AltairaLabs/DealFlow/fetcher"
	"github.com/AltairaLabs/DealFlow/logger"
	"github.com/AltairaLabs/DealFlow/providers"
	"github.com/AltairaLabs/DealFlow/status"
	"github.com/AltairaLabs/DealFlow/workflow"
)

// Error kinds recorded on the conversation and mapped to human messages.
// Model-call kinds (SERVICE_OFFLINE, INVALID_RESPONSE, SERVICE_ERROR) come
// from the providers package.
const (
	KindInvalidTransition = "INVALID_TRANSITION"
	KindInputInvalid      = "INPUT_INVALID"
	KindStateMissing      = "STATE_MISSING"
)

// ErrInputInvalid marks a malformed or empty transcript.
var ErrInputInvalid = errors.New("transcript input is empty or unreadable")

// ErrStateMissing marks a later step invoked without its prior-step data,
// such as an approval with no analysis on record.
var ErrStateMissing = errors.New("required prior-step data is missing")

// humanMessages maps each error kind to exactly one short, non-technical
// message.
var humanMessages = map[string]string{
	KindInvalidTransition:                  "That action isn't available right now.",
	KindInputInvalid:                       "I couldn't read that transcript. Please upload a plain text file.",
	KindStateMissing:                       "I couldn't find an analysis for this conversation. Please start over with a new transcript.",
	string(providers.KindOffline):          "The language model service is unreachable right now. Please try again later.",
	string(providers.KindInvalidResponse):  "The model returned something I couldn't use. Please try regenerating.",
	string(providers.KindServiceError):     "Something went wrong while processing your request. Please try again.",
}

// consentPrompt replaces the offline message when a cloud fallback is
// configured; the workflow stays recoverable through CLOUD_CONSENT_GIVEN.
const consentPrompt = "The local model is offline. I can retry with the cloud model instead — " +
	"reply to give consent, or reject to stop here."

// DocumentService creates documents from structured content. The orchestrator
// hands it opaque content and only keeps the returned identifier and link.
type DocumentService interface {
	CreateDealAnalysis(ctx context.Context, clientName string, version int, content map[string]any) (id, link string, err error)
	CreateProposalDeck(ctx context.Context, clientName string, deck map[string]any) (id, link string, err error)
}

// Notifier delivers progress and error messages back to the conversation.
// Delivery is best effort; the workflow never depends on it succeeding.
type Notifier interface {
	Notify(ctx context.Context, threadID, channelID, message string)
}

// AnalyseRequest carries everything captured from an inbound
// "analyse this transcript" event.
type AnalyseRequest struct {
	ThreadID    string
	ChannelID   string
	UserID      string
	ChannelType workflow.ChannelType
	ClientName  string

	TranscriptIDs   []string
	TranscriptTexts []string
	ReferenceIDs    []string
	ReferenceTexts  []string
	URLs            []string
}

// Orchestrator wires the state machine, model client, context builder, and
// collaborators into event handlers.
type Orchestrator struct {
	machine  *workflow.Machine
	llm      *providers.Client
	builder  *contextbuilder.Builder
	docs     DocumentService
	notifier Notifier
	fetch    *fetcher.Fetcher
	tracker  *status.Tracker
	tracer   trace.Tracer
}

// Option configures an Orchestrator.
type Option func(*Orchestrator)

// WithFetcher replaces the web content fetcher.
func WithFetcher(f *fetcher.Fetcher) Option {
	return func(o *Orchestrator) {
		o.fetch = f
	}
}

// WithTracker records handled requests on the given tracker.
func WithTracker(t *status.Tracker) Option {
	return func(o *Orchestrator) {
		o.tracker = t
	}
}

// New creates an orchestrator over the given collaborators.
func New(machine *workflow.Machine, llm *providers.Client, docs DocumentService, notifier Notifier, opts ...Option) *Orchestrator {
	o := &Orchestrator{
		machine:  machine,
		llm:      llm,
		builder:  contextbuilder.NewBuilder(),
		docs:     docs,
		notifier: notifier,
		fetch:    fetcher.New(),
		tracer:   otel.Tracer("dealflow/orchestrator"),
	}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

// HandleAnalyseRequest starts analysis for a new transcript. Empty transcript
// input moves the conversation to WAITING_FOR_INPUTS with a prompt rather
// than an error; any later step failure lands in ERROR with the kind
// recorded.
func (o *Orchestrator) HandleAnalyseRequest(ctx context.Context, req AnalyseRequest) (*workflow.ConversationState, error) {
	ctx, span := o.startSpan(ctx, "HandleAnalyseRequest", req.ThreadID, req.ChannelID)
	defer span.End()

	if !hasContent(req.TranscriptTexts) {
		cs, err := o.machine.Transition(ctx, req.ThreadID, req.ChannelID, workflow.EventInputsMissing, workflow.Update{
			ChannelType: &req.ChannelType,
		})
		if err != nil {
			return o.reject(ctx, req.ThreadID, req.ChannelID, err)
		}
		o.notify(ctx, cs, "Please upload a meeting transcript to get started.")
		return cs, nil
	}

	cs, err := o.machine.Transition(ctx, req.ThreadID, req.ChannelID, workflow.EventAnalyseRequested, workflow.Update{
		ChannelType:          &req.ChannelType,
		ClientName:           &req.ClientName,
		InputTranscriptIDs:   req.TranscriptIDs,
		InputTranscriptTexts: req.TranscriptTexts,
		InputReferenceIDs:    req.ReferenceIDs,
		InputURLs:            req.URLs,
	})
	if err != nil {
		return o.reject(ctx, req.ThreadID, req.ChannelID, err)
	}

	o.notify(ctx, cs, "Analyzing the transcript...")
	return o.runAnalysis(ctx, cs, req.ReferenceTexts, cs.CloudConsentGiven)
}

// HandleApproval generates the proposal deck from the approved analysis.
func (o *Orchestrator) HandleApproval(ctx context.Context, threadID, channelID string) (*workflow.ConversationState, error) {
	ctx, span := o.startSpan(ctx, "HandleApproval", threadID, channelID)
	defer span.End()

	cs, err := o.machine.Transition(ctx, threadID, channelID, workflow.EventApproved, workflow.Update{})
	if err != nil {
		return o.reject(ctx, threadID, channelID, err)
	}
	return o.runDeckGeneration(ctx, cs)
}

// HandleUpdatedAnalysis accepts a human-edited analysis and proceeds straight
// to deck generation; the edit itself is the approval.
func (o *Orchestrator) HandleUpdatedAnalysis(ctx context.Context, threadID, channelID string, content map[string]any) (*workflow.ConversationState, error) {
	ctx, span := o.startSpan(ctx, "HandleUpdatedAnalysis", threadID, channelID)
	defer span.End()

	cs, err := o.machine.Transition(ctx, threadID, channelID, workflow.EventUpdatedDealAnalysisProvided, workflow.Update{
		DealAnalysisContent: content,
	})
	if err != nil {
		return o.reject(ctx, threadID, channelID, err)
	}
	return o.runDeckGeneration(ctx, cs)
}

// HandleRejection ends the workflow for this document version. From ERROR it
// doubles as declining the cloud consent prompt.
func (o *Orchestrator) HandleRejection(ctx context.Context, threadID, channelID string) (*workflow.ConversationState, error) {
	ctx, span := o.startSpan(ctx, "HandleRejection", threadID, channelID)
	defer span.End()

	cs, err := o.machine.Transition(ctx, threadID, channelID, workflow.EventRejected, workflow.Update{})
	if err != nil {
		return o.reject(ctx, threadID, channelID, err)
	}
	o.notify(ctx, cs, "Okay, I've closed this one out. Send a new transcript any time.")
	return cs, nil
}

// HandleRegenerate re-runs analysis on the stored transcripts with a bumped
// version.
func (o *Orchestrator) HandleRegenerate(ctx context.Context, threadID, channelID string) (*workflow.ConversationState, error) {
	ctx, span := o.startSpan(ctx, "HandleRegenerate", threadID, channelID)
	defer span.End()

	current, err := o.machine.GetState(ctx, threadID, channelID, "")
	if err != nil {
		return nil, err
	}
	cs, err := o.machine.Transition(ctx, threadID, channelID, workflow.EventRegenerateRequested, workflow.Update{
		DealAnalysisVersion: workflow.Ptr(current.DealAnalysisVersion + 1),
	})
	if err != nil {
		return o.reject(ctx, threadID, channelID, err)
	}

	o.notify(ctx, cs, fmt.Sprintf("Regenerating the deal analysis (version %d)...", cs.DealAnalysisVersion))
	return o.runAnalysis(ctx, cs, nil, cs.CloudConsentGiven)
}

// HandleCloudConsent records consent and replays the stored transcripts
// against the cloud execution path.
func (o *Orchestrator) HandleCloudConsent(ctx context.Context, threadID, channelID string) (*workflow.ConversationState, error) {
	ctx, span := o.startSpan(ctx, "HandleCloudConsent", threadID, channelID)
	defer span.End()

	cs, err := o.machine.Transition(ctx, threadID, channelID, workflow.EventCloudConsentGiven, workflow.Update{
		CloudConsentGiven: workflow.Ptr(true),
	})
	if err != nil {
		return o.reject(ctx, threadID, channelID, err)
	}

	o.notify(ctx, cs, "Thanks — retrying with the cloud model...")
	return o.runAnalysis(ctx, cs, nil, true)
}

// HandleRetry re-runs analysis after a failure, using whatever execution path
// the conversation last consented to.
func (o *Orchestrator) HandleRetry(ctx context.Context, threadID, channelID string) (*workflow.ConversationState, error) {
	ctx, span := o.startSpan(ctx, "HandleRetry", threadID, channelID)
	defer span.End()

	cs, err := o.machine.Transition(ctx, threadID, channelID, workflow.EventAnalyseRequested, workflow.Update{})
	if err != nil {
		return o.reject(ctx, threadID, channelID, err)
	}

	o.notify(ctx, cs, "Retrying the analysis...")
	return o.runAnalysis(ctx, cs, nil, cs.CloudConsentGiven)
}

// runAnalysis performs the GENERATING_DEAL_ANALYSIS phase: fetch web content,
// assemble the context, generate and validate the analysis, create the
// document, and advance to WAITING_FOR_APPROVAL.
func (o *Orchestrator) runAnalysis(ctx context.Context, cs *workflow.ConversationState, referenceTexts []string, useCloud bool) (*workflow.ConversationState, error) {
	threadID, channelID := cs.ThreadID, cs.ChannelID

	var webContent []string
	if len(cs.InputURLs) > 0 {
		for _, res := range o.fetch.FetchAll(ctx, cs.InputURLs) {
			if res.OK {
				webContent = append(webContent, res.Content)
			}
		}
	}

	built := o.builder.Build(ctx, cs.InputTranscriptTexts, referenceTexts, webContent, contextbuilder.Options{
		Summarizer: o.llm.Summarize,
		OnStatus: func(message string) {
			o.notify(ctx, cs, message)
		},
	})
	if !built.TranscriptIncluded {
		return o.fail(ctx, threadID, channelID, ErrInputInvalid)
	}

	analysis, err := o.llm.GenerateDealAnalysis(ctx, built.Context, useCloud)
	if err != nil {
		return o.fail(ctx, threadID, channelID, err)
	}

	docID, link, err := o.docs.CreateDealAnalysis(ctx, cs.ClientName, cs.DealAnalysisVersion, analysis.Content)
	if err != nil {
		return o.fail(ctx, threadID, channelID, err)
	}

	cs, err = o.machine.Transition(ctx, threadID, channelID, workflow.EventDealAnalysisCreated, workflow.Update{
		DealAnalysisDocID:   &docID,
		DealAnalysisLink:    &link,
		DealAnalysisContent: analysis.Content,
		MissingInfoItems:    analysis.MissingInfo,
	})
	if err != nil {
		return o.reject(ctx, threadID, channelID, err)
	}

	msg := "The Deal Analysis is ready for your review: " + link
	if len(analysis.MissingInfo) > 0 {
		msg += fmt.Sprintf("\nI couldn't fill in %d item(s) — please review those sections.", len(analysis.MissingInfo))
	}
	o.notify(ctx, cs, msg)
	return cs, nil
}

// runDeckGeneration performs the GENERATING_DECK phase from an approved or
// updated analysis.
func (o *Orchestrator) runDeckGeneration(ctx context.Context, cs *workflow.ConversationState) (*workflow.ConversationState, error) {
	threadID, channelID := cs.ThreadID, cs.ChannelID

	if len(cs.DealAnalysisContent) == 0 {
		return o.fail(ctx, threadID, channelID, ErrStateMissing)
	}

	o.notify(ctx, cs, "Generating the proposal deck...")

	deck, err := o.llm.GenerateProposalDeck(ctx, cs.DealAnalysisContent, cs.CloudConsentGiven)
	if err != nil {
		return o.fail(ctx, threadID, channelID, err)
	}

	deckID, link, err := o.docs.CreateProposalDeck(ctx, cs.ClientName, deck)
	if err != nil {
		return o.fail(ctx, threadID, channelID, err)
	}

	cs, err = o.machine.Transition(ctx, threadID, channelID, workflow.EventDeckCreated, workflow.Update{
		SlideDeckID:   &deckID,
		SlideDeckLink: &link,
	})
	if err != nil {
		return o.reject(ctx, threadID, channelID, err)
	}

	o.notify(ctx, cs, "The proposal deck is ready: "+link)
	return cs, nil
}

// fail records a step failure on the conversation through a FAILED transition
// and sends the kind's human message. The error kind is persisted before
// anything is reported outward, so a later recovery transition can make sense
// of the retry.
func (o *Orchestrator) fail(ctx context.Context, threadID, channelID string, cause error) (*workflow.ConversationState, error) {
	kind := errorKind(cause)

	current, err := o.machine.GetState(ctx, threadID, channelID, "")
	if err != nil {
		return nil, errors.Join(cause, err)
	}

	cs, err := o.machine.Transition(ctx, threadID, channelID, workflow.EventFailed, workflow.Update{
		LastErrorKind:    &kind,
		LastErrorMessage: workflow.Ptr(cause.Error()),
		RetryCount:       workflow.Ptr(current.RetryCount + 1),
	})
	if err != nil {
		logger.Error("failed to record step failure",
			"thread_id", threadID, "channel_id", channelID, "kind", kind, "error", err)
		return nil, errors.Join(cause, err)
	}

	logger.Warn("workflow step failed",
		"thread_id", threadID, "channel_id", channelID, "kind", kind, "error", cause)

	if kind == string(providers.KindOffline) && o.llm.HasCloud() {
		o.notify(ctx, cs, consentPrompt)
	} else {
		o.notify(ctx, cs, humanMessages[kind])
	}
	return cs, cause
}

// reject handles an event the state machine refused. Nothing was in flight,
// so no FAILED transition is recorded; the human just gets told the action is
// unavailable.
func (o *Orchestrator) reject(ctx context.Context, threadID, channelID string, err error) (*workflow.ConversationState, error) {
	logger.Warn("event rejected", "thread_id", threadID, "channel_id", channelID, "error", err)
	var ite *workflow.InvalidTransitionError
	if errors.As(err, &ite) {
		if o.notifier != nil {
			o.notifier.Notify(ctx, threadID, channelID, humanMessages[KindInvalidTransition])
		}
	}
	return nil, err
}

func (o *Orchestrator) notify(ctx context.Context, cs *workflow.ConversationState, message string) {
	if o.notifier != nil {
		o.notifier.Notify(ctx, cs.ThreadID, cs.ChannelID, message)
	}
}

func (o *Orchestrator) startSpan(ctx context.Context, name, threadID, channelID string) (context.Context, trace.Span) {
	if o.tracker != nil {
		o.tracker.RecordRequest()
	}
	requestID := uuid.NewString()
	logger.Info("handling event",
		"handler", name, "request_id", requestID,
		"thread_id", threadID, "channel_id", channelID)
	return o.tracer.Start(ctx, name, trace.WithAttributes(
		attribute.String("request.id", requestID),
		attribute.String("thread.id", threadID),
		attribute.String("channel.id", channelID),
	))
}

// errorKind classifies an error into the recorded kind string.
func errorKind(err error) string {
	var ite *workflow.InvalidTransitionError
	switch {
	case errors.As(err, &ite):
		return KindInvalidTransition
	case errors.Is(err, ErrInputInvalid):
		return KindInputInvalid
	case errors.Is(err, ErrStateMissing):
		return KindStateMissing
	}
	return string(providers.KindOf(err))
}

func hasContent(texts []string) bool {
	for _, t := range texts {
		if strings.TrimSpace(t) != "" {
			return true
		}
	}
	return false
}
