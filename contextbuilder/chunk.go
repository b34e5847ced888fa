package contextbuilder

import (
	"regexp"
	"strings"

	"github.com/AltairaLabs/DealFlow/tokenizer"
)

// paragraphBreak matches blank-line paragraph boundaries, tolerating
// whitespace-only lines between paragraphs.
var paragraphBreak = regexp.MustCompile(`\n[ \t]*\n+`)

// ChunkText splits text into ordered chunks, each estimated at or below
// maxTokens. Splitting prefers paragraph boundaries, then sentence
// boundaries, then word boundaries. A single word longer than the whole
// budget is character-truncated rather than carried over, so the bound is
// soft in that last-resort case.
//
// Returns nil for empty input or a non-positive maxTokens. No returned chunk
// is empty or whitespace-only.
func ChunkText(text string, maxTokens int) []string {
	if maxTokens <= 0 {
		return nil
	}
	trimmed := strings.TrimSpace(text)
	if trimmed == "" {
		return nil
	}
	if tokenizer.CountTokens(trimmed) <= maxTokens {
		return []string{trimmed}
	}

	maxChars := maxTokens * tokenizer.CharsPerToken

	var chunks []string
	var current string
	flush := func() {
		if strings.TrimSpace(current) != "" {
			chunks = append(chunks, current)
		}
		current = ""
	}

	for _, para := range paragraphBreak.Split(trimmed, -1) {
		para = strings.TrimSpace(para)
		if para == "" {
			continue
		}

		if len(para) > maxChars {
			flush()
			chunks = append(chunks, splitParagraph(para, maxChars)...)
			continue
		}

		if current == "" {
			current = para
			continue
		}
		candidate := current + "\n\n" + para
		if len(candidate) > maxChars {
			flush()
			current = para
		} else {
			current = candidate
		}
	}
	flush()

	return chunks
}

// splitParagraph splits a single oversize paragraph at sentence boundaries,
// falling back to word boundaries for a sentence that alone exceeds the
// character budget.
func splitParagraph(para string, maxChars int) []string {
	var chunks []string
	var current string
	flush := func() {
		if strings.TrimSpace(current) != "" {
			chunks = append(chunks, current)
		}
		current = ""
	}

	for _, sentence := range splitSentences(para) {
		if len(sentence) > maxChars {
			flush()
			chunks = append(chunks, splitWords(sentence, maxChars)...)
			continue
		}

		if current == "" {
			current = sentence
			continue
		}
		candidate := current + " " + sentence
		if len(candidate) > maxChars {
			flush()
			current = sentence
		} else {
			current = candidate
		}
	}
	flush()

	return chunks
}

// splitWords splits an oversize sentence at word boundaries. A single word
// longer than the budget is truncated to the budget.
func splitWords(sentence string, maxChars int) []string {
	var chunks []string
	var current string

	for _, word := range strings.Fields(sentence) {
		if len(word) > maxChars {
			if current != "" {
				chunks = append(chunks, current)
				current = ""
			}
			chunks = append(chunks, word[:maxChars])
			continue
		}

		if current == "" {
			current = word
			continue
		}
		if len(current)+1+len(word) > maxChars {
			chunks = append(chunks, current)
			current = word
		} else {
			current += " " + word
		}
	}
	if current != "" {
		chunks = append(chunks, current)
	}

	return chunks
}

// splitSentences splits text after ". ", "? ", and "! " boundaries, keeping
// the terminating punctuation with each sentence.
func splitSentences(text string) []string {
	var sentences []string
	start := 0

	for i := 0; i < len(text)-1; i++ {
		c := text[i]
		if (c == '.' || c == '?' || c == '!') && text[i+1] == ' ' {
			sentence := strings.TrimSpace(text[start : i+1])
			if sentence != "" {
				sentences = append(sentences, sentence)
			}
			start = i + 2
		}
	}
	if tail := strings.TrimSpace(text[start:]); tail != "" {
		sentences = append(sentences, tail)
	}

	return sentences
}
