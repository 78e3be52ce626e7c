// Package retrieval implements the retrieval coordinator (§4.10): vector
// search with optional query expansion, HyDE, and cross-encoder reranking.
// It deliberately does not fuse with full-text or graph search — the
// teacher's RRF-based hybrid fusion across vector/FTS/graph result sets has
// no counterpart here, since the vector store is the only index (see
// DESIGN.md).
package retrieval

import (
	"context"
	"fmt"
	"strings"

	"github.com/brunobiangulo/ragline/llm"
	"github.com/brunobiangulo/ragline/query"
	"github.com/brunobiangulo/ragline/vectorstore"
)

// RerankerConfig mirrors the reranker-relevant slice of the top-level
// configuration, kept local to avoid an import cycle with the package that
// constructs a Coordinator.
type RerankerConfig struct {
	Enabled             bool
	CandidateMultiplier int
}

// Config bounds a Coordinator's default search behavior (§4.10).
type Config struct {
	Limit     int
	Threshold float64
	Reranker  RerankerConfig
}

func (c Config) withDefaults() Config {
	if c.Limit <= 0 {
		c.Limit = 10
	}
	if c.Threshold <= 0 {
		c.Threshold = 0.5
	}
	if c.Reranker.CandidateMultiplier <= 0 {
		c.Reranker.CandidateMultiplier = 4
	}
	return c
}

// vectorSearcher is the slice of *vectorstore.Store a Coordinator depends
// on, narrowed to an interface so it can be exercised with a fake in tests.
type vectorSearcher interface {
	SearchVectors(ctx context.Context, query []float32, limit int, scoreThreshold float32, filters *vectorstore.SearchFilters) ([]vectorstore.SearchResult, error)
}

// Coordinator runs the search pipeline against a vector store, optionally
// enriching the embedded query via expansion or HyDE and reordering
// candidates via a cross-encoder reranker.
type Coordinator struct {
	vs       vectorSearcher
	embedder llm.Embedder
	reranker llm.Reranker
	expander *query.Expander
	hyde     *query.HyDE
	cfg      Config
}

// New constructs a Coordinator. reranker, expander, and hyde may be nil —
// a nil reranker disables reranking regardless of cfg; a nil expander or
// hyde disables that enhancer regardless of the request flags.
func New(vs *vectorstore.Store, embedder llm.Embedder, reranker llm.Reranker, expander *query.Expander, hyde *query.HyDE, cfg Config) *Coordinator {
	return &Coordinator{
		vs:       vs,
		embedder: embedder,
		reranker: reranker,
		expander: expander,
		hyde:     hyde,
		cfg:      cfg.withDefaults(),
	}
}

// SearchRequest parameterizes a single search call (§4.10). A nil Rerank
// defers to the coordinator's configured default.
type SearchRequest struct {
	Query     string
	Limit     int
	Threshold float64
	Rerank    *bool
	Expand    bool
	HyDE      bool
	Filters   *vectorstore.SearchFilters
}

// SearchResponse carries the ranked results plus the enhancement metadata
// the ask coordinator surfaces to callers (§4.12).
type SearchResponse struct {
	Results        []vectorstore.SearchResult
	RerankUsed     bool
	HydeUsed       bool
	QueryExpanded  bool
	EffectiveQuery string
}

// Search runs the §4.10 pipeline: trim, optionally enhance the embedding
// input via HyDE or expansion, embed, search, and optionally rerank.
func (c *Coordinator) Search(ctx context.Context, req SearchRequest) (*SearchResponse, error) {
	trimmed := strings.TrimSpace(req.Query)
	if trimmed == "" {
		return &SearchResponse{}, nil
	}

	limit := req.Limit
	if limit <= 0 {
		limit = c.cfg.Limit
	}
	threshold := req.Threshold
	if threshold <= 0 {
		threshold = c.cfg.Threshold
	}
	useRerank := c.cfg.Reranker.Enabled && c.reranker != nil
	if req.Rerank != nil {
		useRerank = *req.Rerank && c.reranker != nil
	}

	// HyDE wins over expansion when both are enabled for a request: a
	// hypothetical answer passage is a strictly richer embedding target
	// than a synonym-expanded query.
	embedInput := trimmed
	hydeUsed := false
	expanded := false
	if req.HyDE && c.hyde != nil && c.hyde.ShouldUse(trimmed) {
		embedInput = c.hyde.Generate(ctx, trimmed)
		hydeUsed = true
	} else if req.Expand && c.expander != nil {
		candidate := c.expander.Expand(ctx, trimmed)
		if candidate != trimmed {
			expanded = true
		}
		embedInput = candidate
	}

	candidateLimit := limit
	if useRerank {
		candidateLimit = limit * c.cfg.Reranker.CandidateMultiplier
	}

	vec, err := c.embedder.EmbedSingle(ctx, embedInput)
	if err != nil {
		return nil, fmt.Errorf("retrieval: embedding query: %w", err)
	}

	candidates, err := c.vs.SearchVectors(ctx, vec, candidateLimit, float32(threshold), req.Filters)
	if err != nil {
		return nil, fmt.Errorf("retrieval: searching vectors: %w", err)
	}

	rerankUsed := false
	if useRerank && len(candidates) > limit {
		reranked, used, rerankErr := c.rerank(ctx, trimmed, candidates, limit)
		if rerankErr == nil {
			candidates = reranked
			rerankUsed = used
		}
	}

	if len(candidates) > limit {
		candidates = candidates[:limit]
	}

	return &SearchResponse{
		Results:        candidates,
		RerankUsed:     rerankUsed,
		HydeUsed:       hydeUsed,
		QueryExpanded:  expanded,
		EffectiveQuery: embedInput,
	}, nil
}

// rerank reorders candidates by the cross-encoder's relevance scores,
// replacing each kept candidate's vector score with the reranker's score
// whenever it is non-negative (the reranker's sentinel for "not actually
// reranked").
func (c *Coordinator) rerank(ctx context.Context, queryText string, candidates []vectorstore.SearchResult, limit int) ([]vectorstore.SearchResult, bool, error) {
	docs := make([]string, len(candidates))
	for i, cand := range candidates {
		docs[i] = cand.Content
	}

	resp, err := c.reranker.Rerank(ctx, queryText, docs, limit)
	if err != nil {
		return candidates, false, err
	}

	reordered := make([]vectorstore.SearchResult, 0, len(resp.Results))
	for _, r := range resp.Results {
		if r.Index < 0 || r.Index >= len(candidates) {
			continue
		}
		cand := candidates[r.Index]
		if r.RelevanceScore >= 0 {
			cand.Score = r.RelevanceScore
		}
		reordered = append(reordered, cand)
	}
	return reordered, resp.RerankUsed, nil
}

// FindSimilar embeds content directly and returns its nearest neighbors,
// optionally excluding results belonging to excludeDocumentID (§4.10).
func (c *Coordinator) FindSimilar(ctx context.Context, content string, limit int, excludeDocumentID string) ([]vectorstore.SearchResult, error) {
	if limit <= 0 {
		limit = c.cfg.Limit
	}
	fetchLimit := limit
	if excludeDocumentID != "" {
		fetchLimit = limit + 10
	}

	vec, err := c.embedder.EmbedSingle(ctx, content)
	if err != nil {
		return nil, fmt.Errorf("retrieval: embedding content: %w", err)
	}

	results, err := c.vs.SearchVectors(ctx, vec, fetchLimit, float32(c.cfg.Threshold), nil)
	if err != nil {
		return nil, fmt.Errorf("retrieval: searching vectors: %w", err)
	}

	if excludeDocumentID != "" {
		filtered := results[:0]
		for _, r := range results {
			if r.DocumentID != excludeDocumentID {
				filtered = append(filtered, r)
			}
		}
		results = filtered
	}

	if len(results) > limit {
		results = results[:limit]
	}
	return results, nil
}
