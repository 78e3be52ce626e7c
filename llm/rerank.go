package llm

import (
	"context"
	"log/slog"
	"time"
)

const (
	rerankMaxRetries   = 1
	rerankInitialDelay = 500 * time.Millisecond
	rerankMaxDelay     = 5 * time.Second
)

// RerankGatewayClient implements Reranker against `POST {baseUrl}/rerank`
// (§4.4, §6).
type RerankGatewayClient struct {
	gw      *gatewayClient
	model   string
	timeout time.Duration
	logger  *slog.Logger
}

// NewRerankGatewayClient constructs a client for the rerank gateway.
func NewRerankGatewayClient(baseURL, apiKey, model string, timeout time.Duration, logger *slog.Logger) *RerankGatewayClient {
	if logger == nil {
		logger = slog.Default()
	}
	return &RerankGatewayClient{
		gw:      newGatewayClient(baseURL, apiKey, timeout, logger),
		model:   model,
		timeout: timeout,
		logger:  logger,
	}
}

type rerankRequest struct {
	Model     string   `json:"model"`
	Query     string   `json:"query"`
	Documents []string `json:"documents"`
	TopN      int      `json:"top_n"`
}

type rerankResponse struct {
	Results []struct {
		Index          int     `json:"index"`
		RelevanceScore float64 `json:"relevance_score"`
	} `json:"results"`
	Model string `json:"model"`
}

// Rerank implements §4.4: short-circuits with the identity order and sentinel
// score -1 when len(documents) <= topN; otherwise calls the cross-encoder
// with retry (2 attempts, 0.5s initial, 5s cap) and falls back to the
// original order (score -1) on repeated failure or cancellation.
func (c *RerankGatewayClient) Rerank(ctx context.Context, query string, documents []string, topN int) (*RerankResponse, error) {
	if len(documents) <= topN {
		return identityRerank(topN, len(documents)), nil
	}

	reqCtx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	body := rerankRequest{Model: c.model, Query: query, Documents: documents, TopN: topN}
	respBody, err := c.gw.doPost(reqCtx, "/rerank", body, rerankMaxRetries, rerankInitialDelay, rerankMaxDelay)
	if err != nil {
		c.logger.Warn("reranker: falling back to original order", "error", err)
		return identityRerank(topN, len(documents)), nil
	}

	var resp rerankResponse
	if err := unmarshalJSON(respBody, &resp); err != nil {
		c.logger.Warn("reranker: decoding response failed, falling back", "error", err)
		return identityRerank(topN, len(documents)), nil
	}
	if len(resp.Results) == 0 {
		return identityRerank(topN, len(documents)), nil
	}

	results := make([]RerankResult, 0, len(resp.Results))
	for _, r := range resp.Results {
		results = append(results, RerankResult{Index: r.Index, RelevanceScore: r.RelevanceScore})
	}
	return &RerankResponse{Results: results, RerankUsed: true}, nil
}

// identityRerank returns the first min(topN, n) indices in original order
// with the sentinel score -1 and rerankUsed=false, used both for the
// short-circuit path and the failure-fallback path (§4.4, §9).
func identityRerank(topN, n int) *RerankResponse {
	limit := topN
	if limit > n {
		limit = n
	}
	if limit < 0 {
		limit = 0
	}
	results := make([]RerankResult, limit)
	for i := 0; i < limit; i++ {
		results[i] = RerankResult{Index: i, RelevanceScore: -1}
	}
	return &RerankResponse{Results: results, RerankUsed: false}
}
