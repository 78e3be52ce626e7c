// Package llm implements the embedding, chat, and reranker gateway clients
// against an OpenAI-compatible inference gateway (§4.3-§4.5, §6).
package llm

import (
	"context"
)

// Message is a single chat turn.
type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// CompleteRequest is a chat-completion request (§4.5).
type CompleteRequest struct {
	Prompt       string
	SystemPrompt string
	Model        string
	Temperature  float64
	MaxTokens    int
	// JSONMode requests structured JSON output when the gateway supports it.
	JSONMode bool
}

// Usage reports token accounting from a gateway response.
type Usage struct {
	PromptTokens     int `json:"prompt_tokens"`
	CompletionTokens int `json:"completion_tokens"`
	TotalTokens      int `json:"total_tokens"`
}

// CompleteResponse is the result of a chat completion.
type CompleteResponse struct {
	Content string
	Model   string
	Usage   Usage
}

// ChatClient sends prompts to an LLM and returns completions, per §4.5.
type ChatClient interface {
	Complete(ctx context.Context, req CompleteRequest) (*CompleteResponse, error)
}

// EmbedResponse is the result of an embedding call (§4.3).
type EmbedResponse struct {
	Vectors [][]float32
	Model   string
	Usage   Usage
}

// Embedder batches text into fixed-dimension vectors, per §4.3.
type Embedder interface {
	Embed(ctx context.Context, texts []string) (*EmbedResponse, error)
	// EmbedSingle returns vectors[0] or errEmbeddingFailed if the result is empty.
	EmbedSingle(ctx context.Context, text string) ([]float32, error)
	Dimension() int
}

// RerankResult is one reordered candidate, per §4.4.
type RerankResult struct {
	Index          int
	RelevanceScore float64
}

// RerankResponse reports whether an actual cross-encoder call happened, so
// callers can distinguish "not reranked" (short-circuit) from "reranked"
// regardless of score sign (§4.4, §9 open-question resolution).
type RerankResponse struct {
	Results    []RerankResult
	RerankUsed bool
}

// Reranker scores (query, candidate) pairs with a cross-encoder, per §4.4.
type Reranker interface {
	Rerank(ctx context.Context, query string, documents []string, topN int) (*RerankResponse, error)
}
