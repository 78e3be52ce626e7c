package ragline

import (
	"context"
	"fmt"
	"strings"

	"github.com/brunobiangulo/ragline/llm"
	"github.com/brunobiangulo/ragline/reasoning"
	"github.com/brunobiangulo/ragline/retrieval"
	"github.com/brunobiangulo/ragline/vectorstore"
)

// AskRequest parameterizes a single ask call (§4.12).
type AskRequest struct {
	Question  string
	Limit     int
	Threshold float64
	Model     string
	Rerank    bool
	Verify    bool
	Expand    bool
	HyDE      bool
}

// AskMetadata surfaces which retrieval enhancements fired, for callers that
// want to explain an answer's provenance (§4.12).
type AskMetadata struct {
	RerankUsed     bool   `json:"rerankUsed"`
	HydeUsed       bool   `json:"hydeUsed"`
	QueryExpanded  bool   `json:"queryExpanded"`
	OriginalQuery  string `json:"originalQuery"`
	EffectiveQuery string `json:"effectiveQuery,omitempty"`
}

// AskResult is the answer to a question plus its sources and, optionally,
// its grounding verification (§4.12).
type AskResult struct {
	Answer       string                    `json:"answer"`
	Sources      []vectorstore.SearchResult `json:"sources"`
	Model        string                    `json:"model"`
	Usage        llm.Usage                 `json:"usage"`
	Metadata     AskMetadata               `json:"metadata"`
	Verification *reasoning.Verification   `json:"verification,omitempty"`
	Confidence   float64                   `json:"confidence,omitempty"`
}

// Asker composes retrieval with prompt assembly, an LLM call, and an
// optional verification pass (§4.12). It is the ask coordinator named in §2.
type Asker struct {
	retriever *retrieval.Coordinator
	chat      llm.ChatClient
	verifier  *reasoning.Pipeline
	model     string
}

// NewAsker constructs an Asker. verifier may be nil, which disables
// verification regardless of req.Verify.
func NewAsker(retriever *retrieval.Coordinator, chat llm.ChatClient, verifier *reasoning.Pipeline, defaultModel string) *Asker {
	return &Asker{retriever: retriever, chat: chat, verifier: verifier, model: defaultModel}
}

// Ask runs the §4.12 pipeline: retrieve, assemble a context prompt, call the
// LLM, and optionally verify the answer's grounding.
func (a *Asker) Ask(ctx context.Context, req AskRequest) (*AskResult, error) {
	question := strings.TrimSpace(req.Question)
	if question == "" {
		return nil, fmt.Errorf("ragline: ask: question is empty")
	}

	limit := req.Limit
	if limit <= 0 {
		limit = 5
	}
	threshold := req.Threshold
	if threshold <= 0 {
		threshold = 0.5
	}
	rerank := req.Rerank

	resp, err := a.retriever.Search(ctx, retrieval.SearchRequest{
		Query:     question,
		Limit:     limit,
		Threshold: threshold,
		Rerank:    &rerank,
		Expand:    req.Expand,
		HyDE:      req.HyDE,
	})
	if err != nil {
		return nil, fmt.Errorf("ragline: ask: retrieval: %w", err)
	}

	model := req.Model
	if model == "" {
		model = a.model
	}

	prompt := buildAskPrompt(question, resp.Results)
	completion, err := a.chat.Complete(ctx, llm.CompleteRequest{
		SystemPrompt: "Answer the question using only the provided context. Cite filenames when relevant. If the context does not contain the answer, say so.",
		Prompt:       prompt,
		Model:        model,
		Temperature:  0.3,
		MaxTokens:    1000,
	})
	if err != nil {
		return nil, fmt.Errorf("ragline: ask: completion: %w", err)
	}

	result := &AskResult{
		Answer:  completion.Content,
		Sources: resp.Results,
		Model:   completion.Model,
		Usage:   completion.Usage,
		Metadata: AskMetadata{
			RerankUsed:     resp.RerankUsed,
			HydeUsed:       resp.HydeUsed,
			QueryExpanded:  resp.QueryExpanded,
			OriginalQuery:  question,
			EffectiveQuery: resp.EffectiveQuery,
		},
	}

	if req.Verify && a.verifier != nil {
		pipelineResult, err := a.verifier.RunPipeline(ctx, question, resp.Results, completion.Content)
		if err != nil {
			return nil, fmt.Errorf("ragline: ask: verification: %w", err)
		}
		result.Verification = pipelineResult.Verification
		result.Confidence = pipelineResult.Verification.GroundingScore
	}

	return result, nil
}

// buildAskPrompt assembles the context window the LLM answers from: each
// source's content prefixed by its filename, in retrieval order.
func buildAskPrompt(question string, sources []vectorstore.SearchResult) string {
	var b strings.Builder
	b.WriteString("Context:\n\n")
	for i, s := range sources {
		fmt.Fprintf(&b, "[%d] Source: %s\n%s\n\n", i+1, s.Filename, s.Content)
	}
	fmt.Fprintf(&b, "Question: %s", question)
	return b.String()
}
