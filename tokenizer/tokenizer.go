// Package tokenizer provides token counting for LLM context management.
//
// Token counting is used to decide when transcript and reference material must
// be truncated or summarized to fit a model's context window. This package
// provides:
//   - TokenCounter interface for pluggable implementations
//   - CharRatioCounter using a character-to-token ratio (fast, budget math)
//   - HeuristicTokenCounter with model-aware word-to-token ratios
//
// The character-ratio approach is what the context budgets are defined in
// terms of (1 token ~= 4 characters), so it is the default throughout the
// context builder. The heuristic counter gives a better estimate for English
// prose when a model family is known. For exact counts, use usage data from
// provider responses.
package tokenizer

import (
	"strings"
	"sync"
)

// TokenCounter provides token counting functionality.
// Implementations may use heuristics or actual tokenization.
type TokenCounter interface {
	// CountTokens returns the estimated or actual token count for the given text.
	CountTokens(text string) int

	// CountMultiple returns the total token count for multiple text segments.
	CountMultiple(texts []string) int
}

// CharsPerToken is the character-to-token ratio used for context budget math.
// Budgets expressed in tokens translate to character limits via this ratio.
const CharsPerToken = 4

// CharRatioCounter estimates tokens as len(text)/CharsPerToken. This matches
// the ratio the context budgets were calibrated against and costs nothing to
// compute, at the expense of accuracy on non-prose input.
type CharRatioCounter struct{}

// NewCharRatioCounter creates a character-ratio token counter.
func NewCharRatioCounter() *CharRatioCounter {
	return &CharRatioCounter{}
}

// CountTokens estimates token count as character count / CharsPerToken.
func (c *CharRatioCounter) CountTokens(text string) int {
	return len(text) / CharsPerToken
}

// CountMultiple returns the total token count for multiple text segments.
func (c *CharRatioCounter) CountMultiple(texts []string) int {
	total := 0
	for _, text := range texts {
		total += c.CountTokens(text)
	}
	return total
}

// ModelFamily represents a family of LLM models with similar tokenization.
type ModelFamily string

const (
	// ModelFamilyGPT covers OpenAI-compatible models (including local Ollama
	// models served through the OpenAI API surface).
	// Approximately 1.3 tokens per word for English.
	ModelFamilyGPT ModelFamily = "gpt"

	// ModelFamilyQwen covers Qwen models. SentencePiece-style tokenizer,
	// approximately 1.4 tokens per word.
	ModelFamilyQwen ModelFamily = "qwen"

	// ModelFamilyLlama covers Meta Llama models.
	// Approximately 1.4 tokens per word.
	ModelFamilyLlama ModelFamily = "llama"

	// ModelFamilyDefault is used when the model family is unknown.
	// Uses a conservative estimate of 1.35 tokens per word.
	ModelFamilyDefault ModelFamily = "default"
)

// tokenRatios maps model families to their approximate tokens-per-word ratios.
// Derived from empirical testing on English text; code and non-English text
// may differ.
var tokenRatios = map[ModelFamily]float64{
	ModelFamilyGPT:     1.30,
	ModelFamilyQwen:    1.40,
	ModelFamilyLlama:   1.40,
	ModelFamilyDefault: 1.35,
}

// HeuristicTokenCounter estimates token counts using word-based heuristics.
// This is fast and suitable for context management decisions where exact
// counts are not required.
type HeuristicTokenCounter struct {
	ratio float64
	mu    sync.RWMutex
}

// NewHeuristicTokenCounter creates a token counter for the specified model family.
func NewHeuristicTokenCounter(family ModelFamily) *HeuristicTokenCounter {
	ratio, ok := tokenRatios[family]
	if !ok {
		ratio = tokenRatios[ModelFamilyDefault]
	}
	return &HeuristicTokenCounter{ratio: ratio}
}

// CountTokens estimates token count for the given text.
// Returns 0 for empty text.
func (h *HeuristicTokenCounter) CountTokens(text string) int {
	if text == "" {
		return 0
	}
	h.mu.RLock()
	ratio := h.ratio
	h.mu.RUnlock()

	words := strings.Fields(text)
	return int(float64(len(words)) * ratio)
}

// CountMultiple returns the total token count for multiple text segments.
func (h *HeuristicTokenCounter) CountMultiple(texts []string) int {
	total := 0
	for _, text := range texts {
		total += h.CountTokens(text)
	}
	return total
}

// SetRatio updates the token ratio. Thread-safe.
func (h *HeuristicTokenCounter) SetRatio(ratio float64) {
	if ratio <= 0 {
		return
	}
	h.mu.Lock()
	h.ratio = ratio
	h.mu.Unlock()
}

// GetModelFamily returns the appropriate ModelFamily for a model name.
// This performs prefix matching to categorize models.
func GetModelFamily(modelName string) ModelFamily {
	modelLower := strings.ToLower(modelName)

	switch {
	case strings.HasPrefix(modelLower, "gpt-"):
		return ModelFamilyGPT
	case strings.HasPrefix(modelLower, "qwen"):
		return ModelFamilyQwen
	case strings.HasPrefix(modelLower, "llama") ||
		strings.HasPrefix(modelLower, "meta-llama"):
		return ModelFamilyLlama
	default:
		return ModelFamilyDefault
	}
}

// DefaultTokenCounter is a package-level counter using the character ratio
// that context budgets are defined in.
var DefaultTokenCounter TokenCounter = NewCharRatioCounter()

// CountTokens is a convenience function using the default token counter.
func CountTokens(text string) int {
	return DefaultTokenCounter.CountTokens(text)
}
