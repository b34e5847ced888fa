package providers

import (
	"context"
	"encoding/json"
	"fmt"
	"regexp"
	"strings"

	"github.com/xeipuuv/gojsonschema"

	"github.com/AltairaLabs/DealFlow/logger"
)

// dealAnalysisSchema is the shape the model's deal-analysis response must
// satisfy. Model output is untrusted input, so it is validated explicitly
// rather than probed field by field.
const dealAnalysisSchema = `{
	"type": "object",
	"required": ["deal_analysis"],
	"properties": {
		"deal_analysis": {"type": "object"},
		"missing_info": {"type": "array", "items": {"type": "string"}}
	}
}`

// proposalDeckSchema is the shape of the model's proposal-deck response:
// an ordered list of slide objects, each with at least a title.
const proposalDeckSchema = `{
	"type": "object",
	"required": ["slides"],
	"properties": {
		"slides": {
			"type": "array",
			"minItems": 1,
			"items": {
				"type": "object",
				"required": ["title"],
				"properties": {
					"title": {"type": "string"}
				}
			}
		}
	}
}`

const dealAnalysisSystemPrompt = "You are a sales analyst. From the provided meeting " +
	"transcript and supporting materials, produce a Deal Analysis as a single JSON object " +
	"with a \"deal_analysis\" object (opportunity snapshot, problem and impact, current " +
	"state, desired state, buying dynamics, fit assessment, next actions) and a " +
	"\"missing_info\" array listing any fields you could not fill in. Respond with JSON only."

const proposalDeckSystemPrompt = "You are a sales proposal writer. From the provided " +
	"approved Deal Analysis, produce a 12-section proposal deck as a single JSON object " +
	"with a \"slides\" array; each slide has a \"title\" and a \"body\". Respond with JSON only."

// DealAnalysis is the parsed, validated result of an analysis generation.
type DealAnalysis struct {
	// Content is the structured deal_analysis object.
	Content map[string]any

	// MissingInfo lists the labels the model could not fill in.
	MissingInfo []string

	// Raw is the original model response.
	Raw string
}

// fencePattern matches a markdown code fence (optionally tagged json) and
// captures its body.
var fencePattern = regexp.MustCompile("(?s)```(?:json)?\\s*\\n?(.*?)\\n?\\s*```")

// ExtractJSON extracts a JSON object from model response text, tolerating
// responses wrapped in markdown code fences. Failure to extract an object is
// a KindInvalidResponse error, not retried.
func ExtractJSON(text string) (map[string]any, error) {
	candidate := text
	fenced := fencePattern.FindStringSubmatch(text)
	if fenced != nil {
		candidate = fenced[1]
	}

	var parsed map[string]any
	if err := json.Unmarshal([]byte(candidate), &parsed); err != nil {
		// The fence capture may have grabbed a partial object; fall back to
		// the whole response before giving up.
		if fenced != nil {
			if err2 := json.Unmarshal([]byte(text), &parsed); err2 == nil {
				return parsed, nil
			}
		}
		return nil, &Error{
			Kind:    KindInvalidResponse,
			Message: "model response is not a JSON object",
			Err:     err,
		}
	}
	return parsed, nil
}

// validateSchema checks parsed model output against a JSON schema, returning
// a KindInvalidResponse error naming the first violation.
func validateSchema(parsed map[string]any, schema string) error {
	result, err := gojsonschema.Validate(
		gojsonschema.NewStringLoader(schema),
		gojsonschema.NewGoLoader(parsed),
	)
	if err != nil {
		return &Error{Kind: KindInvalidResponse, Message: "schema validation failed", Err: err}
	}
	if !result.Valid() {
		violations := make([]string, 0, len(result.Errors()))
		for _, e := range result.Errors() {
			violations = append(violations, e.String())
		}
		return &Error{
			Kind:    KindInvalidResponse,
			Message: "model response has wrong shape: " + strings.Join(violations, "; "),
		}
	}
	return nil
}

// GenerateDealAnalysis generates a structured Deal Analysis from an assembled
// context string. The response is extracted from any markdown fences and
// validated against the expected shape before being returned.
func (c *Client) GenerateDealAnalysis(ctx context.Context, contextText string, useCloud bool) (*DealAnalysis, error) {
	messages := []Message{
		{Role: "system", Content: dealAnalysisSystemPrompt},
		{Role: "user", Content: "Analyze the following materials:\n\n" + contextText},
	}

	raw, err := c.Generate(ctx, messages, defaultTemperature, useCloud)
	if err != nil {
		return nil, err
	}

	parsed, err := ExtractJSON(raw)
	if err != nil {
		return nil, err
	}
	if err := validateSchema(parsed, dealAnalysisSchema); err != nil {
		return nil, err
	}

	content, _ := parsed["deal_analysis"].(map[string]any)
	var missing []string
	if items, ok := parsed["missing_info"].([]any); ok {
		for _, item := range items {
			if s, ok := item.(string); ok {
				missing = append(missing, s)
			}
		}
	}

	logger.Info("deal analysis generated", "missing_items", len(missing))

	return &DealAnalysis{
		Content:     content,
		MissingInfo: missing,
		Raw:         raw,
	}, nil
}

// GenerateProposalDeck generates the proposal deck content structure from an
// approved Deal Analysis. The returned object is handed opaquely to the
// document collaborator.
func (c *Client) GenerateProposalDeck(ctx context.Context, analysis map[string]any, useCloud bool) (map[string]any, error) {
	analysisJSON, err := json.Marshal(analysis)
	if err != nil {
		return nil, fmt.Errorf("encode deal analysis: %w", err)
	}

	messages := []Message{
		{Role: "system", Content: proposalDeckSystemPrompt},
		{Role: "user", Content: "Approved Deal Analysis:\n\n" + string(analysisJSON)},
	}

	raw, err := c.Generate(ctx, messages, defaultTemperature, useCloud)
	if err != nil {
		return nil, err
	}

	parsed, err := ExtractJSON(raw)
	if err != nil {
		return nil, err
	}
	if err := validateSchema(parsed, proposalDeckSchema); err != nil {
		return nil, err
	}
	return parsed, nil
}
