package providers

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestExtractJSON_Bare(t *testing.T) {
	parsed, err := ExtractJSON(`{"deal_analysis": {"fit": "strong"}}`)
	require.NoError(t, err)
	assert.Equal(t, "strong", parsed["deal_analysis"].(map[string]any)["fit"])
}

func TestExtractJSON_FencedWithTag(t *testing.T) {
	text := "Here is the analysis:\n```json\n{\"deal_analysis\": {\"fit\": \"strong\"}}\n```\nLet me know if you need changes."
	parsed, err := ExtractJSON(text)
	require.NoError(t, err)
	assert.Contains(t, parsed, "deal_analysis")
}

func TestExtractJSON_FencedWithoutTag(t *testing.T) {
	text := "```\n{\"deal_analysis\": {}}\n```"
	parsed, err := ExtractJSON(text)
	require.NoError(t, err)
	assert.Contains(t, parsed, "deal_analysis")
}

func TestExtractJSON_NotJSON(t *testing.T) {
	_, err := ExtractJSON("I'm sorry, I can't produce an analysis from this transcript.")
	require.Error(t, err)
	assert.Equal(t, KindInvalidResponse, KindOf(err))
}

func TestExtractJSON_NotAnObject(t *testing.T) {
	_, err := ExtractJSON(`["just", "an", "array"]`)
	require.Error(t, err)
	assert.Equal(t, KindInvalidResponse, KindOf(err))
}

func TestGenerateDealAnalysis(t *testing.T) {
	raw := "```json\n{\"deal_analysis\": {\"opportunity_snapshot\": \"expansion\", \"fit_assessment\": \"strong\"}, \"missing_info\": [\"budget\", \"timeline\"]}\n```"
	primary := NewMockProvider(MockResult{Content: raw})
	c := NewClient(primary, WithSleepFunc(noSleep))

	analysis, err := c.GenerateDealAnalysis(context.Background(), "## TRANSCRIPT\n\nhello", false)
	require.NoError(t, err)
	assert.Equal(t, "expansion", analysis.Content["opportunity_snapshot"])
	assert.Equal(t, []string{"budget", "timeline"}, analysis.MissingInfo)
	assert.Equal(t, raw, analysis.Raw)

	reqs := primary.Requests()
	require.Len(t, reqs, 1)
	assert.Contains(t, reqs[0].Messages[1].Content, "## TRANSCRIPT")
}

func TestGenerateDealAnalysis_MissingRequiredField(t *testing.T) {
	// Valid JSON, wrong shape. Must fail as invalid response, not get
	// passed downstream.
	primary := NewMockProvider(MockResult{Content: `{"analysis": "freeform text"}`})
	c := NewClient(primary, WithSleepFunc(noSleep))

	_, err := c.GenerateDealAnalysis(context.Background(), "ctx", false)
	require.Error(t, err)
	assert.Equal(t, KindInvalidResponse, KindOf(err))
	assert.Equal(t, 1, primary.Calls(), "shape failures must not be retried")
}

func TestGenerateDealAnalysis_WrongMissingInfoType(t *testing.T) {
	primary := NewMockProvider(MockResult{Content: `{"deal_analysis": {}, "missing_info": "budget"}`})
	c := NewClient(primary, WithSleepFunc(noSleep))

	_, err := c.GenerateDealAnalysis(context.Background(), "ctx", false)
	require.Error(t, err)
	assert.Equal(t, KindInvalidResponse, KindOf(err))
}

func TestGenerateDealAnalysis_PropagatesOffline(t *testing.T) {
	primary := NewMockProvider(connFail, connFail, connFail)
	c := NewClient(primary, WithSleepFunc(noSleep))

	_, err := c.GenerateDealAnalysis(context.Background(), "ctx", false)
	require.Error(t, err)
	assert.Equal(t, KindOffline, KindOf(err))
}

func TestGenerateProposalDeck(t *testing.T) {
	raw := `{"slides": [{"title": "Executive Summary", "body": "..."}, {"title": "Pricing", "body": "..."}]}`
	primary := NewMockProvider(MockResult{Content: raw})
	c := NewClient(primary, WithSleepFunc(noSleep))

	deck, err := c.GenerateProposalDeck(context.Background(), map[string]any{"fit_assessment": "strong"}, false)
	require.NoError(t, err)
	slides := deck["slides"].([]any)
	assert.Len(t, slides, 2)

	reqs := primary.Requests()
	require.Len(t, reqs, 1)
	assert.Contains(t, reqs[0].Messages[1].Content, "fit_assessment")
}

func TestGenerateProposalDeck_EmptySlides(t *testing.T) {
	primary := NewMockProvider(MockResult{Content: `{"slides": []}`})
	c := NewClient(primary, WithSleepFunc(noSleep))

	_, err := c.GenerateProposalDeck(context.Background(), map[string]any{}, false)
	require.Error(t, err)
	assert.Equal(t, KindInvalidResponse, KindOf(err))
}
