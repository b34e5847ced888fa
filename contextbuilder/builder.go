// Package contextbuilder assembles bounded LLM input from transcripts,
// reference documents, and fetched web content.
//
// Each input category has an independent token budget. Content exceeding its
// budget is truncated at line boundaries; an over-budget transcript can
// instead be summarized chunk-by-chunk through an injected summarizer
// callback. Multiple references and web items share their budget using
// equal-share splitting with greedy carry-forward: allowance an item does not
// use is redistributed across the items that follow it.
//
// The builder never fails on malformed input. Dropped or compressed content
// is an expected, reportable outcome surfaced through the Result flags.
package contextbuilder

import (
	"context"
	"fmt"
	"strings"

	"github.com/AltairaLabs/DealFlow/logger"
	"github.com/AltairaLabs/DealFlow/tokenizer"
)

// Token budgets for each input category. Budgets translate to character
// limits via tokenizer.CharsPerToken.
const (
	// MaxTranscriptTokens is the token budget for transcript content.
	MaxTranscriptTokens = 24_000

	// MaxReferencesTokens is the token budget for reference materials.
	MaxReferencesTokens = 10_000

	// MaxWebTokens is the token budget for web research content.
	MaxWebTokens = 6_000

	// ReservedOutputTokens is the headroom reserved for model output.
	// Informational: the builder does not subtract it from input budgets.
	ReservedOutputTokens = 8_000

	// SummaryChunkTokens is the target chunk size when an over-budget
	// transcript is summarized part by part.
	SummaryChunkTokens = 6_000
)

// SummarizerFunc compresses one transcript chunk into a summary.
type SummarizerFunc func(ctx context.Context, chunk string) (string, error)

// StatusFunc receives human-facing progress updates during long-running
// assembly (chunked summarization).
type StatusFunc func(message string)

// Result describes one context assembly: the bounded text plus what was
// included, truncated, or summarized to get there.
type Result struct {
	// Context is the assembled context string ready for LLM input.
	Context string

	// TranscriptIncluded reports whether any transcript content was included.
	TranscriptIncluded bool

	// TranscriptTruncated reports whether the transcript was cut to budget.
	TranscriptTruncated bool

	// TranscriptSummarized reports whether the transcript was replaced by
	// chunk summaries.
	TranscriptSummarized bool

	// TranscriptOriginalTokens is the token estimate of the merged transcript
	// before any truncation or summarization.
	TranscriptOriginalTokens int

	// ReferencesIncluded and ReferencesTotal count reference items included
	// versus supplied.
	ReferencesIncluded int
	ReferencesTotal    int

	// WebIncluded and WebTotal count web content items included versus supplied.
	WebIncluded int
	WebTotal    int

	// EstimatedTokens is the token estimate of the assembled context.
	EstimatedTokens int
}

// Options carries the optional collaborators for a single Build call.
type Options struct {
	// Summarizer, when set, enables chunked summarization of a transcript
	// that exceeds its budget. Without it the transcript is truncated.
	Summarizer SummarizerFunc

	// OnStatus, when set, receives progress messages during summarization.
	OnStatus StatusFunc
}

// Builder assembles context strings within the fixed token budgets.
// It is stateless and safe for concurrent use.
type Builder struct{}

// NewBuilder creates a context builder.
func NewBuilder() *Builder {
	return &Builder{}
}

// Build assembles a bounded context from transcripts, references, and web
// content. It never returns an error: empty input yields an empty context,
// and over-budget input is summarized or truncated with the corresponding
// Result flags set.
func (b *Builder) Build(ctx context.Context, transcripts, references, webContent []string, opts Options) Result {
	merged := strings.TrimSpace(MergeTranscripts(transcripts))
	originalTokens := tokenizer.CountTokens(merged)
	included := merged != ""

	maxTranscriptChars := MaxTranscriptTokens * tokenizer.CharsPerToken

	var transcriptText string
	truncated := false
	summarized := false

	if !included {
		logger.Warn("empty transcript provided to context builder")
	} else {
		body := merged
		if originalTokens > MaxTranscriptTokens && opts.Summarizer != nil {
			if summary, ok := b.summarizeTranscript(ctx, merged, opts); ok {
				body = summary
				summarized = true
			}
		}
		cut, wasCut := truncateToBudget(body, maxTranscriptChars)
		if wasCut {
			logger.Warn("transcript truncated",
				"original_tokens", originalTokens,
				"truncated_tokens", tokenizer.CountTokens(cut))
		}
		truncated = wasCut
		transcriptText = "## TRANSCRIPT\n\n" + cut
	}

	refsText, refsIncluded := buildSection(
		references, MaxReferencesTokens*tokenizer.CharsPerToken,
		"## REFERENCE MATERIALS", "### Reference")

	webText, webIncluded := buildSection(
		webContent, MaxWebTokens*tokenizer.CharsPerToken,
		"## WEB RESEARCH", "### Source")

	var sections []string
	for _, s := range []string{transcriptText, refsText, webText} {
		if s != "" {
			sections = append(sections, s)
		}
	}
	assembled := strings.Join(sections, "\n\n---\n\n")
	estimated := tokenizer.CountTokens(assembled)

	logger.Info("context built",
		"estimated_tokens", estimated,
		"transcript_truncated", truncated,
		"transcript_summarized", summarized,
		"refs_included", refsIncluded,
		"refs_total", len(references),
		"web_included", webIncluded,
		"web_total", len(webContent))

	return Result{
		Context:                  assembled,
		TranscriptIncluded:       included,
		TranscriptTruncated:      truncated,
		TranscriptSummarized:     summarized,
		TranscriptOriginalTokens: originalTokens,
		ReferencesIncluded:       refsIncluded,
		ReferencesTotal:          len(references),
		WebIncluded:              webIncluded,
		WebTotal:                 len(webContent),
		EstimatedTokens:          estimated,
	}
}

// MergeTranscripts merges multiple transcripts with numbered markers.
// Empty entries are dropped. A single non-empty entry is returned unchanged;
// multiple entries are joined with "--- Transcript N ---" markers numbered
// 1-based over the non-empty entries.
func MergeTranscripts(transcripts []string) string {
	var nonEmpty []string
	for _, t := range transcripts {
		if trimmed := strings.TrimSpace(t); trimmed != "" {
			nonEmpty = append(nonEmpty, trimmed)
		}
	}

	switch len(nonEmpty) {
	case 0:
		return ""
	case 1:
		return nonEmpty[0]
	}

	parts := make([]string, 0, len(nonEmpty))
	for i, content := range nonEmpty {
		parts = append(parts, fmt.Sprintf("--- Transcript %d ---\n\n%s", i+1, content))
	}
	return strings.Join(parts, "\n\n")
}

// summarizeTranscript splits the transcript into chunks and summarizes each
// through the injected callback, joining the summaries under numbered part
// headers. Returns ok=false when summarization cannot proceed (no chunks, or
// a summarizer failure), in which case the caller falls back to truncation.
func (b *Builder) summarizeTranscript(ctx context.Context, text string, opts Options) (string, bool) {
	chunks := ChunkText(text, SummaryChunkTokens)
	if len(chunks) == 0 {
		return "", false
	}

	status(opts, "Transcript exceeded the context limit, summarizing in parts...")

	parts := make([]string, 0, len(chunks))
	for i, chunk := range chunks {
		status(opts, fmt.Sprintf("Summarizing part %d/%d...", i+1, len(chunks)))

		summary, err := opts.Summarizer(ctx, chunk)
		if err != nil {
			logger.Warn("chunk summarization failed, falling back to truncation",
				"part", i+1, "parts", len(chunks), "error", err)
			return "", false
		}
		parts = append(parts, fmt.Sprintf("## Summary of Part %d\n\n%s", i+1, strings.TrimSpace(summary)))
	}

	return strings.Join(parts, "\n\n"), true
}

func status(opts Options, message string) {
	if opts.OnStatus != nil {
		opts.OnStatus(message)
	}
}

// truncateToBudget cuts text to at most maxChars, preferring the last newline
// within the budget, then the last space, then a hard cut.
func truncateToBudget(text string, maxChars int) (string, bool) {
	if len(text) <= maxChars {
		return text, false
	}

	cut := text[:maxChars]

	if pos := strings.LastIndexByte(cut, '\n'); pos > 0 {
		return cut[:pos], true
	}
	if pos := strings.LastIndexByte(cut, ' '); pos > 0 {
		return cut[:pos], true
	}
	return cut, true
}

// buildSection builds one context section from multiple items within a shared
// character budget. The budget is divided equally across non-empty items;
// allowance an item leaves unused is redistributed evenly across the items
// not yet processed. Items that cannot fit even their header are dropped.
func buildSection(items []string, maxChars int, sectionHeader, itemPrefix string) (string, int) {
	var nonEmpty []string
	for _, item := range items {
		if trimmed := strings.TrimSpace(item); trimmed != "" {
			nonEmpty = append(nonEmpty, trimmed)
		}
	}
	if len(nonEmpty) == 0 {
		return "", 0
	}

	headerOverhead := len(sectionHeader) + 2 // header + "\n\n"
	available := maxChars - headerOverhead
	if available <= 0 {
		return "", 0
	}

	perItem := available / len(nonEmpty)
	remaining := available
	var parts []string

	for idx, content := range nonEmpty {
		itemHeader := fmt.Sprintf("%s %d\n", itemPrefix, idx+1)

		contentBudget := min(remaining-len(itemHeader), perItem)
		if contentBudget <= 0 {
			break
		}

		cut, _ := truncateToBudget(content, contentBudget)
		part := itemHeader + cut
		parts = append(parts, part)
		remaining -= len(part)

		// Carry unused budget forward to the items not yet processed.
		if itemsLeft := len(nonEmpty) - (idx + 1); itemsLeft > 0 {
			perItem = remaining / itemsLeft
		}
	}

	if len(parts) == 0 {
		return "", 0
	}
	return sectionHeader + "\n\n" + strings.Join(parts, "\n\n"), len(parts)
}
