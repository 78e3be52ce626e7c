// Package query implements the retrieval coordinator's query enhancers
// (§4.6): QueryExpander and HyDE, both LLM-backed, LRU-cached, and
// gracefully degrading to the sanitized original query on any failure.
package query

import (
	"context"
	"regexp"
	"strings"
	"sync/atomic"

	"github.com/brunobiangulo/ragline/llm"
	"github.com/brunobiangulo/ragline/util"
)

const maxQueryLen = 500

// Expander expands short queries with related/synonym terms (§4.6.1).
type Expander struct {
	chat    llm.ChatClient
	cache   *util.TTLCache[string, string]
	enabled atomic.Bool
}

// NewExpander returns an Expander backed by chat, enabled by default. Its
// cache has capacity 1000 and no TTL — entries are only evicted by LRU
// pressure, matching §4.6.1's "LRU cache (capacity 1000)".
func NewExpander(chat llm.ChatClient) *Expander {
	e := &Expander{chat: chat, cache: util.NewTTLCache[string, string](1000, 0)}
	e.enabled.Store(true)
	return e
}

// SetEnabled toggles the expander without discarding its cache.
func (e *Expander) SetEnabled(enabled bool) { e.enabled.Store(enabled) }

// ClearCache discards all cached expansions.
func (e *Expander) ClearCache() { e.cache.Clear() }

// Expand returns q's expansion (from the cache when present), or the
// sanitized original query when disabled, empty, too long to benefit, or on
// any LLM failure.
func (e *Expander) Expand(ctx context.Context, q string) string {
	sanitized := util.SanitizeQueryInput(q, maxQueryLen)
	if !e.enabled.Load() || sanitized == "" {
		return sanitized
	}
	if len(sanitized) > 100 {
		return sanitized
	}
	if cached, ok := e.cache.Get(sanitized); ok {
		return cached
	}

	resp, err := e.chat.Complete(ctx, llm.CompleteRequest{
		SystemPrompt: "You expand short search queries with closely related terms and synonyms. Respond with only the expanded query text, no explanation.",
		Prompt:       sanitized,
		Temperature:  0.2,
		MaxTokens:    100,
	})
	if err != nil {
		return sanitized
	}

	expanded := strings.TrimSpace(resp.Content)
	if len(expanded) <= len(sanitized) || len(expanded) > 500 {
		return sanitized
	}

	e.cache.Set(sanitized, expanded)
	return expanded
}

// simpleLookupPatterns mark a query as a direct factual lookup, for which
// a hypothetical-document embedding adds noise rather than signal.
var simpleLookupPatterns = []*regexp.Regexp{
	regexp.MustCompile(`(?i)^what\s+is\s+(a\s+|the\s+)?\S`),
	regexp.MustCompile(`(?i)^who\s+is\s+\S`),
	regexp.MustCompile(`(?i)^where\s+is\s+\S`),
	regexp.MustCompile(`(?i)^when\s+(was|did|is)\s+\S`),
}

// complexPatterns mark a query as benefiting from HyDE: how-to, causal,
// comparative, or troubleshooting questions whose answer shape diverges
// sharply from the question's own wording.
var complexPatterns = []*regexp.Regexp{
	regexp.MustCompile(`(?i)how\s+(do|to|can|should)`),
	regexp.MustCompile(`(?i)\bwhy\b`),
	regexp.MustCompile(`(?i)\b(explain|describe|compare)\b`),
	regexp.MustCompile(`(?i)\b(troubleshoot|fix|solve|resolve)\b`),
	regexp.MustCompile(`(?i)best\s+(practice|way)`),
	regexp.MustCompile(`(?i)difference\s+between`),
	regexp.MustCompile(`(?i)steps\s+to`),
	regexp.MustCompile(`วิธี|ขั้นตอน|แก้ไข|อธิบาย`),
}

// HyDE generates a short hypothetical answer passage and embeds that
// instead of the raw query (§4.6.2).
type HyDE struct {
	chat    llm.ChatClient
	cache   *util.TTLCache[string, string]
	enabled atomic.Bool
}

// NewHyDE returns a HyDE enhancer backed by chat, enabled by default, with
// a capacity-500 LRU cache per §4.6.2.
func NewHyDE(chat llm.ChatClient) *HyDE {
	h := &HyDE{chat: chat, cache: util.NewTTLCache[string, string](500, 0)}
	h.enabled.Store(true)
	return h
}

// SetEnabled toggles HyDE without discarding its cache.
func (h *HyDE) SetEnabled(enabled bool) { h.enabled.Store(enabled) }

// ClearCache discards all cached hypothetical documents.
func (h *HyDE) ClearCache() { h.cache.Clear() }

// ShouldUse decides whether q benefits from a hypothetical-document
// embedding rather than a direct embedding of the query text.
func (h *HyDE) ShouldUse(q string) bool {
	if !h.enabled.Load() {
		return false
	}
	trimmed := strings.TrimSpace(q)
	if len(trimmed) < 15 {
		return false
	}
	for _, p := range simpleLookupPatterns {
		if p.MatchString(trimmed) {
			return false
		}
	}
	for _, p := range complexPatterns {
		if p.MatchString(trimmed) {
			return true
		}
	}
	return len(strings.Fields(trimmed)) > 5
}

// Generate produces a short passage that would plausibly answer q, or the
// sanitized query itself on any failure or implausible output.
func (h *HyDE) Generate(ctx context.Context, q string) string {
	sanitized := util.SanitizeQueryInput(q, maxQueryLen)
	if sanitized == "" {
		return sanitized
	}
	if cached, ok := h.cache.Get(sanitized); ok {
		return cached
	}

	resp, err := h.chat.Complete(ctx, llm.CompleteRequest{
		SystemPrompt: "Write a short passage (2-4 sentences) that would plausibly appear in a document answering the user's question. Do not mention the question itself.",
		Prompt:       sanitized,
		Temperature:  0.5,
		MaxTokens:    400,
	})
	if err != nil {
		return sanitized
	}

	doc := strings.TrimSpace(resp.Content)
	if len(doc) <= 50 {
		return sanitized
	}

	h.cache.Set(sanitized, doc)
	return doc
}
