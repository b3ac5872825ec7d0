// Package tokenizer implements the best-effort cost estimator collaborator
// for the X-Nexus-Cost-Estimated header (spec §4.6, §9 Open Questions). No
// real tokenizer library is present anywhere in the pack, so this is a
// byte-ratio heuristic rather than a model-accurate BPE count —
// "best effort, absent on failure" per SPEC_FULL.md §9, not a precise
// billing figure.
package tokenizer

import (
	"strings"
)

// bytesPerToken is a rough English-text average (~4 bytes/token) used by
// several OpenAI-ecosystem cost calculators as a fallback when no real
// tokenizer is wired.
const bytesPerToken = 4.0

// EstimateTokens returns an approximate token count for text. It never
// errors — an empty string yields zero tokens, which is accurate.
func EstimateTokens(text string) int {
	if text == "" {
		return 0
	}
	return int(float64(len(text))/bytesPerToken) + 1
}

// EstimateCostUSD estimates the dollar cost of a request given a per-1K-token
// price for input and output. It returns false when both prices are
// non-positive,
// signaling the caller to omit X-Nexus-Cost-Estimated entirely rather than
// publish a misleading $0.00.
func EstimateCostUSD(promptText string, estimatedCompletionTokens int, pricePerThousandInputUSD, pricePerThousandOutputUSD float64) (float64, bool) {
	if pricePerThousandInputUSD <= 0 && pricePerThousandOutputUSD <= 0 {
		return 0, false
	}
	inputTokens := EstimateTokens(promptText)
	cost := float64(inputTokens)/1000*pricePerThousandInputUSD + float64(estimatedCompletionTokens)/1000*pricePerThousandOutputUSD
	return cost, true
}

// EstimateMessagesTokens sums EstimateTokens across a chat message list,
// used when the caller has already split a request into role/content pairs
// rather than a single prompt string.
func EstimateMessagesTokens(messages []string) int {
	total := 0
	for _, m := range messages {
		total += EstimateTokens(strings.TrimSpace(m))
	}
	return total
}
