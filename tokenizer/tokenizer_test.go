package tokenizer

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestCharRatioCounter_CountTokens(t *testing.T) {
	c := NewCharRatioCounter()

	assert.Equal(t, 0, c.CountTokens(""))
	assert.Equal(t, 1, c.CountTokens("abcd"))
	assert.Equal(t, 1, c.CountTokens("abcdefg")) // integer division
	assert.Equal(t, 1000, c.CountTokens(strings.Repeat("x", 4000)))
}

func TestCharRatioCounter_CountMultiple(t *testing.T) {
	c := NewCharRatioCounter()

	total := c.CountMultiple([]string{"abcd", "efgh", "ijkl"})
	assert.Equal(t, 3, total)
}

func TestHeuristicTokenCounter_CountTokens(t *testing.T) {
	c := NewHeuristicTokenCounter(ModelFamilyGPT)

	assert.Equal(t, 0, c.CountTokens(""))

	// 10 words at 1.3 tokens/word
	text := strings.TrimSpace(strings.Repeat("word ", 10))
	assert.Equal(t, 13, c.CountTokens(text))
}

func TestHeuristicTokenCounter_UnknownFamilyUsesDefault(t *testing.T) {
	c := NewHeuristicTokenCounter(ModelFamily("mystery"))

	text := strings.TrimSpace(strings.Repeat("word ", 100))
	assert.Equal(t, 135, c.CountTokens(text))
}

func TestHeuristicTokenCounter_SetRatio(t *testing.T) {
	c := NewHeuristicTokenCounter(ModelFamilyDefault)
	c.SetRatio(2.0)
	assert.Equal(t, 20, c.CountTokens(strings.TrimSpace(strings.Repeat("w ", 10))))

	// Non-positive ratios are ignored.
	c.SetRatio(-1)
	assert.Equal(t, 20, c.CountTokens(strings.TrimSpace(strings.Repeat("w ", 10))))
}

func TestGetModelFamily(t *testing.T) {
	tests := []struct {
		model string
		want  ModelFamily
	}{
		{"gpt-4o", ModelFamilyGPT},
		{"qwen2.5:14b", ModelFamilyQwen},
		{"Qwen2-72B", ModelFamilyQwen},
		{"llama3.1", ModelFamilyLlama},
		{"meta-llama/Llama-3-8b", ModelFamilyLlama},
		{"mistral-7b", ModelFamilyDefault},
	}

	for _, tt := range tests {
		assert.Equal(t, tt.want, GetModelFamily(tt.model), tt.model)
	}
}

func TestCountTokens_PackageDefault(t *testing.T) {
	// The package default is the character-ratio counter used for budget math.
	assert.Equal(t, 2, CountTokens("12345678"))
}
