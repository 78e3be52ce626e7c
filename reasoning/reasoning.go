// Package reasoning implements the verification coordinator (§4.11):
// RelevanceFilter scores each retrieved chunk's relevance to the question,
// and GroundingVerifier checks a generated answer against the chunks kept
// after filtering, both via structured JSON completions from an LLM.
package reasoning

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"log/slog"
	"regexp"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/brunobiangulo/ragline/llm"
	"github.com/brunobiangulo/ragline/util"
	"github.com/brunobiangulo/ragline/vectorstore"
)

// Config bounds the verification coordinator's behavior (§4.11).
type Config struct {
	Enabled            bool
	MaxParallelCalls   int
	RelevanceThreshold float64
	GroundingThreshold float64
	CacheTTL           time.Duration
	CacheCapacity      int
	GroundingTimeout   time.Duration
}

func (c Config) withDefaults() Config {
	if c.MaxParallelCalls <= 0 {
		c.MaxParallelCalls = 3
	}
	if c.RelevanceThreshold <= 0 {
		c.RelevanceThreshold = 0.6
	}
	if c.GroundingThreshold <= 0 {
		c.GroundingThreshold = 0.7
	}
	if c.CacheTTL <= 0 {
		c.CacheTTL = 5 * time.Minute
	}
	if c.CacheCapacity <= 0 {
		c.CacheCapacity = 1000
	}
	if c.GroundingTimeout <= 0 {
		c.GroundingTimeout = 20 * time.Second
	}
	return c
}

type relevanceScore struct {
	Score       float64
	Explanation string
}

// RelevanceFilter scores retrieved chunks against a question in parallel
// and drops those below the configured threshold (§4.11).
type RelevanceFilter struct {
	chat  llm.ChatClient
	cache *util.TTLCache[string, relevanceScore]
	cfg   Config
}

// NewRelevanceFilter returns a filter backed by chat with a TTL-bounded
// cache keyed by hash(prefix(question,100)+chunkId).
func NewRelevanceFilter(chat llm.ChatClient, cfg Config) *RelevanceFilter {
	cfg = cfg.withDefaults()
	return &RelevanceFilter{
		chat:  chat,
		cache: util.NewTTLCache[string, relevanceScore](cfg.CacheCapacity, cfg.CacheTTL),
		cfg:   cfg,
	}
}

func relevanceCacheKey(question, chunkID string) string {
	prefix := question
	if len(prefix) > 100 {
		prefix = prefix[:100]
	}
	sum := sha256.Sum256([]byte(prefix + chunkID))
	return hex.EncodeToString(sum[:])
}

// Filter scores each result's relevance to question with concurrency
// cfg.MaxParallelCalls, drops results scoring below RelevanceThreshold, and
// returns the survivors sorted descending by score.
func (f *RelevanceFilter) Filter(ctx context.Context, question string, results []vectorstore.SearchResult) []vectorstore.SearchResult {
	if len(results) == 0 {
		return nil
	}

	scores := make([]relevanceScore, len(results))
	sem := make(chan struct{}, f.cfg.MaxParallelCalls)
	var wg sync.WaitGroup
	for i, r := range results {
		wg.Add(1)
		go func(i int, r vectorstore.SearchResult) {
			defer wg.Done()
			sem <- struct{}{}
			defer func() { <-sem }()
			scores[i] = f.score(ctx, question, r)
		}(i, r)
	}
	wg.Wait()

	kept := make([]vectorstore.SearchResult, 0, len(results))
	for i, r := range results {
		if scores[i].Score < f.cfg.RelevanceThreshold {
			continue
		}
		r.Score = scores[i].Score
		kept = append(kept, r)
	}

	sort.SliceStable(kept, func(i, j int) bool { return kept[i].Score > kept[j].Score })

	return kept
}

func (f *RelevanceFilter) score(ctx context.Context, question string, r vectorstore.SearchResult) relevanceScore {
	key := relevanceCacheKey(question, r.ChunkID)
	if cached, ok := f.cache.Get(key); ok {
		return cached
	}

	prompt := fmt.Sprintf("Question: %s\n\nChunk:\n%s\n\nRate how relevant this chunk is to answering the question on a scale of 0 to 1. Respond with JSON: {\"score\": <number>, \"explanation\": \"<short reason>\"}", question, r.Content)
	resp, err := f.chat.Complete(ctx, llm.CompleteRequest{
		SystemPrompt: "You score document chunk relevance. Respond with JSON only.",
		Prompt:       prompt,
		Temperature:  0.1,
		MaxTokens:    200,
		JSONMode:     true,
	})
	if err != nil {
		slog.Warn("reasoning: relevance scoring failed, falling back to vector score", "chunk_id", r.ChunkID, "error", err)
		s := relevanceScore{Score: r.Score}
		f.cache.Set(key, s)
		return s
	}

	s, ok := parseRelevanceResponse(resp.Content)
	if !ok {
		slog.Warn("reasoning: relevance response unparseable, falling back to vector score", "chunk_id", r.ChunkID)
		s = relevanceScore{Score: r.Score}
	}
	f.cache.Set(key, s)
	return s
}

var numericTokenPattern = regexp.MustCompile(`[01](?:\.\d+)?`)

func parseRelevanceResponse(content string) (relevanceScore, bool) {
	var parsed struct {
		Score       float64 `json:"score"`
		Explanation string  `json:"explanation"`
	}
	if err := json.Unmarshal([]byte(content), &parsed); err == nil {
		return relevanceScore{Score: clamp01(parsed.Score), Explanation: parsed.Explanation}, true
	}

	if m := numericTokenPattern.FindString(content); m != "" {
		if v, err := strconv.ParseFloat(m, 64); err == nil {
			return relevanceScore{Score: clamp01(v)}, true
		}
	}
	return relevanceScore{}, false
}

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}

// Citation is one grounded quote pulled from the answer back to a specific
// retrieved chunk (§4.11).
type Citation struct {
	ChunkIndex     int     `json:"chunkIndex"`
	Quote          string  `json:"quote"`
	RelevanceScore float64 `json:"relevanceScore"`
	ChunkID        string  `json:"chunkId,omitempty"`
	Filename       string  `json:"filename,omitempty"`
}

// Verification is the result of checking an answer's grounding against the
// chunks it was generated from (§4.11).
type Verification struct {
	GroundingScore    float64    `json:"groundingScore"`
	IsGrounded        bool       `json:"isGrounded"`
	SupportedClaims   []string   `json:"supportedClaims"`
	UnsupportedClaims []string   `json:"unsupportedClaims"`
	Citations         []Citation `json:"citations"`
}

// neutralVerification is returned instantly when verification is disabled.
func neutralVerification() *Verification {
	return &Verification{
		GroundingScore:    1.0,
		IsGrounded:        true,
		SupportedClaims:   []string{},
		UnsupportedClaims: []string{},
		Citations:         []Citation{},
	}
}

// degradedVerification is returned when the LLM call or its response parse
// fails, per §7's conservative-default propagation policy.
func degradedVerification() *Verification {
	return &Verification{
		GroundingScore:    0.5,
		IsGrounded:        false,
		UnsupportedClaims: []string{"Verification failed"},
	}
}

// GroundingVerifier checks whether an answer's claims are supported by the
// chunks it cites (§4.11).
type GroundingVerifier struct {
	chat llm.ChatClient
	cfg  Config
}

// NewGroundingVerifier returns a verifier backed by chat.
func NewGroundingVerifier(chat llm.ChatClient, cfg Config) *GroundingVerifier {
	return &GroundingVerifier{chat: chat, cfg: cfg.withDefaults()}
}

// Verify asks the LLM whether answer's claims are grounded in chunks, with
// a timeout double the standard LLM call timeout (§4.11).
func (v *GroundingVerifier) Verify(ctx context.Context, question, answer string, chunks []vectorstore.SearchResult) (*Verification, error) {
	if !v.cfg.Enabled {
		return neutralVerification(), nil
	}
	if len(chunks) == 0 {
		return degradedVerification(), nil
	}

	timeoutCtx, cancel := context.WithTimeout(ctx, v.cfg.GroundingTimeout*2)
	defer cancel()

	prompt := buildGroundingPrompt(question, answer, chunks)
	resp, err := v.chat.Complete(timeoutCtx, llm.CompleteRequest{
		SystemPrompt: "You verify whether an answer's claims are supported by the provided source chunks. Respond with JSON only.",
		Prompt:       prompt,
		Temperature:  0.1,
		MaxTokens:    500,
		JSONMode:     true,
	})
	if err != nil {
		slog.Warn("reasoning: grounding verification call failed", "error", err)
		return degradedVerification(), nil
	}

	result, ok := parseGroundingResponse(resp.Content, chunks)
	if !ok {
		slog.Warn("reasoning: grounding response unparseable")
		return degradedVerification(), nil
	}

	if result.GroundingScore < v.cfg.GroundingThreshold {
		result.IsGrounded = false
	}
	return result, nil
}

func buildGroundingPrompt(question, answer string, chunks []vectorstore.SearchResult) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Question: %s\n\nAnswer: %s\n\nSource chunks:\n", question, answer)
	for i, c := range chunks {
		fmt.Fprintf(&b, "[%d] (%s) %s\n\n", i, c.Filename, c.Content)
	}
	b.WriteString(`Evaluate whether the answer's claims are supported by the source chunks. Respond with JSON: {"groundingScore": <0-1>, "isGrounded": <bool>, "supportedClaims": [...], "unsupportedClaims": [...], "citations": [{"chunkIndex": <int>, "quote": "<text>", "relevanceScore": <0-1>}]}`)
	return b.String()
}

func parseGroundingResponse(content string, chunks []vectorstore.SearchResult) (*Verification, bool) {
	var parsed struct {
		GroundingScore    float64    `json:"groundingScore"`
		IsGrounded        bool       `json:"isGrounded"`
		SupportedClaims   []string   `json:"supportedClaims"`
		UnsupportedClaims []string   `json:"unsupportedClaims"`
		Citations         []Citation `json:"citations"`
	}
	if err := json.Unmarshal([]byte(content), &parsed); err != nil {
		return nil, false
	}

	citations := make([]Citation, 0, len(parsed.Citations))
	for _, c := range parsed.Citations {
		if c.ChunkIndex < 0 || c.ChunkIndex >= len(chunks) {
			continue
		}
		chunk := chunks[c.ChunkIndex]
		c.ChunkID = chunk.ChunkID
		c.Filename = chunk.Filename
		citations = append(citations, c)
	}

	return &Verification{
		GroundingScore:    clamp01(parsed.GroundingScore),
		IsGrounded:        parsed.IsGrounded,
		SupportedClaims:   orEmpty(parsed.SupportedClaims),
		UnsupportedClaims: orEmpty(parsed.UnsupportedClaims),
		Citations:         citations,
	}, true
}

func orEmpty(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}

// PipelineResult bundles the relevance-filtered chunks with the grounding
// verification run against the answer that used them (§4.11).
type PipelineResult struct {
	FilteredChunks []vectorstore.SearchResult
	Verification   *Verification
}

// Pipeline composes RelevanceFilter and GroundingVerifier into the
// runPipeline/quickVerify contract (§4.11).
type Pipeline struct {
	filter   *RelevanceFilter
	verifier *GroundingVerifier
	cfg      Config
}

// NewPipeline constructs a Pipeline backed by chat.
func NewPipeline(chat llm.ChatClient, cfg Config) *Pipeline {
	cfg = cfg.withDefaults()
	return &Pipeline{
		filter:   NewRelevanceFilter(chat, cfg),
		verifier: NewGroundingVerifier(chat, cfg),
		cfg:      cfg,
	}
}

// RunPipeline filters searchResults by relevance to question, then verifies
// answer's grounding against the kept chunks.
func (p *Pipeline) RunPipeline(ctx context.Context, question string, searchResults []vectorstore.SearchResult, answer string) (*PipelineResult, error) {
	if !p.cfg.Enabled {
		return &PipelineResult{FilteredChunks: searchResults, Verification: neutralVerification()}, nil
	}

	filtered := p.filter.Filter(ctx, question, searchResults)
	verification, err := p.verifier.Verify(ctx, question, answer, filtered)
	if err != nil {
		return nil, err
	}
	return &PipelineResult{FilteredChunks: filtered, Verification: verification}, nil
}

// QuickVerify verifies answer's grounding against searchResults directly,
// skipping the relevance-filtering stage.
func (p *Pipeline) QuickVerify(ctx context.Context, question, answer string, searchResults []vectorstore.SearchResult) (*Verification, error) {
	if !p.cfg.Enabled {
		return neutralVerification(), nil
	}
	return p.verifier.Verify(ctx, question, answer, searchResults)
}
