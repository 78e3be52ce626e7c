package llm

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"
)

const (
	embedBatchSize    = 32
	embedMaxRetries   = 3
	embedInitialDelay = 1 * time.Second
	embedMaxDelay     = 10 * time.Second
)

// EmbeddingClient implements Embedder against the OpenAI-compatible
// `POST {baseUrl}/embeddings` contract of §6, batching at B=32 and running
// batches in parallel per §4.3/§5.
type EmbeddingClient struct {
	gw        *gatewayClient
	model     string
	dimension int
	timeout   time.Duration
}

// NewEmbeddingClient constructs a client for the embedding gateway.
func NewEmbeddingClient(baseURL, apiKey, model string, dimension int, timeout time.Duration, logger *slog.Logger) *EmbeddingClient {
	return &EmbeddingClient{
		gw:        newGatewayClient(baseURL, apiKey, timeout, logger),
		model:     model,
		dimension: dimension,
		timeout:   timeout,
	}
}

func (c *EmbeddingClient) Dimension() int { return c.dimension }

type embeddingRequest struct {
	Model          string   `json:"model"`
	Input          []string `json:"input"`
	EncodingFormat string   `json:"encoding_format"`
}

type embeddingResponseItem struct {
	Embedding []float32 `json:"embedding"`
	Index     int       `json:"index"`
}

type embeddingResponse struct {
	Data  []embeddingResponseItem `json:"data"`
	Model string                  `json:"model"`
	Usage struct {
		PromptTokens int `json:"prompt_tokens"`
		TotalTokens  int `json:"total_tokens"`
	} `json:"usage"`
}

// Embed embeds texts, splitting into ceil(n/B) batches of at most 32 run in
// parallel, each retried independently, then reassembled in input order.
func (c *EmbeddingClient) Embed(ctx context.Context, texts []string) (*EmbedResponse, error) {
	if len(texts) == 0 {
		return &EmbedResponse{Vectors: nil}, nil
	}

	type batchResult struct {
		offset int
		resp   *embeddingResponse
		err    error
	}

	var batches [][]string
	var offsets []int
	for i := 0; i < len(texts); i += embedBatchSize {
		end := i + embedBatchSize
		if end > len(texts) {
			end = len(texts)
		}
		batches = append(batches, texts[i:end])
		offsets = append(offsets, i)
	}

	results := make(chan batchResult, len(batches))
	var wg sync.WaitGroup
	for i, batch := range batches {
		wg.Add(1)
		go func(offset int, batch []string) {
			defer wg.Done()
			batchCtx, cancel := context.WithTimeout(ctx, c.timeout)
			defer cancel()

			resp, err := c.embedBatch(batchCtx, batch)
			results <- batchResult{offset: offset, resp: resp, err: err}
		}(offsets[i], batch)
	}

	go func() {
		wg.Wait()
		close(results)
	}()

	vectors := make([][]float32, len(texts))
	var model string
	var usage Usage
	for r := range results {
		if r.err != nil {
			return nil, r.err
		}
		for _, item := range r.resp.Data {
			idx := r.offset + item.Index
			if idx >= 0 && idx < len(vectors) {
				vectors[idx] = item.Embedding
			}
		}
		if r.resp.Model != "" {
			model = r.resp.Model
		}
		usage.PromptTokens += r.resp.Usage.PromptTokens
		usage.TotalTokens += r.resp.Usage.TotalTokens
	}

	for i, v := range vectors {
		if v == nil {
			return nil, fmt.Errorf("%w: no embedding returned for input %d", errEmbeddingFailed, i)
		}
	}

	return &EmbedResponse{Vectors: vectors, Model: model, Usage: usage}, nil
}

func (c *EmbeddingClient) embedBatch(ctx context.Context, texts []string) (*embeddingResponse, error) {
	req := embeddingRequest{Model: c.model, Input: texts, EncodingFormat: "float"}

	body, err := c.gw.doPost(ctx, "/embeddings", req, embedMaxRetries, embedInitialDelay, embedMaxDelay)
	if err != nil {
		return nil, err
	}

	var resp embeddingResponse
	if err := unmarshalJSON(body, &resp); err != nil {
		return nil, fmt.Errorf("decoding embedding response: %w", err)
	}
	return &resp, nil
}

// EmbedSingle returns vectors[0], failing with errEmbeddingFailed if empty.
func (c *EmbeddingClient) EmbedSingle(ctx context.Context, text string) ([]float32, error) {
	resp, err := c.Embed(ctx, []string{text})
	if err != nil {
		return nil, err
	}
	if len(resp.Vectors) == 0 || resp.Vectors[0] == nil {
		return nil, errEmbeddingFailed
	}
	return resp.Vectors[0], nil
}
