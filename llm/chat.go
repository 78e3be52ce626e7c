package llm

import (
	"context"
	"fmt"
	"log/slog"
	"time"
)

// ChatGatewayClient implements ChatClient against `POST {baseUrl}/chat/completions`
// (§4.5, §6). No retry is applied here: LLM completion failures are
// considered Upstream/Timeout, not Transient, per §7's propagation policy —
// the caller (ingestion/ask coordinators) decides whether to degrade.
type ChatGatewayClient struct {
	gw      *gatewayClient
	model   string
	timeout time.Duration
}

// NewChatGatewayClient constructs a client for the chat completion gateway.
func NewChatGatewayClient(baseURL, apiKey, model string, timeout time.Duration, logger *slog.Logger) *ChatGatewayClient {
	return &ChatGatewayClient{
		gw:      newGatewayClient(baseURL, apiKey, timeout, logger),
		model:   model,
		timeout: timeout,
	}
}

type chatCompletionRequest struct {
	Model          string    `json:"model"`
	Messages       []Message `json:"messages"`
	Temperature    float64   `json:"temperature,omitempty"`
	MaxTokens      int       `json:"max_tokens,omitempty"`
	ResponseFormat *struct {
		Type string `json:"type"`
	} `json:"response_format,omitempty"`
}

type chatCompletionResponse struct {
	Choices []struct {
		Message struct {
			Content string `json:"content"`
		} `json:"message"`
		FinishReason string `json:"finish_reason"`
	} `json:"choices"`
	Model string `json:"model"`
	Usage struct {
		PromptTokens     int `json:"prompt_tokens"`
		CompletionTokens int `json:"completion_tokens"`
		TotalTokens      int `json:"total_tokens"`
	} `json:"usage"`
}

// Complete sends a single chat-completion request. Defaults: temperature=0.3,
// maxTokens=1000 (§4.5). Non-2xx raises an *LLMError; a canceled/expired
// context surfaces as *LLMTimeoutError.
func (c *ChatGatewayClient) Complete(ctx context.Context, req CompleteRequest) (*CompleteResponse, error) {
	model := req.Model
	if model == "" {
		model = c.model
	}
	temperature := req.Temperature
	if temperature == 0 {
		temperature = 0.3
	}
	maxTokens := req.MaxTokens
	if maxTokens == 0 {
		maxTokens = 1000
	}

	var messages []Message
	if req.SystemPrompt != "" {
		messages = append(messages, Message{Role: "system", Content: req.SystemPrompt})
	}
	messages = append(messages, Message{Role: "user", Content: req.Prompt})

	body := chatCompletionRequest{
		Model:       model,
		Messages:    messages,
		Temperature: temperature,
		MaxTokens:   maxTokens,
	}
	if req.JSONMode {
		body.ResponseFormat = &struct {
			Type string `json:"type"`
		}{Type: "json_object"}
	}

	reqCtx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	respBody, err := c.gw.doPost(reqCtx, "/chat/completions", body, 0, 0, 0)
	if err != nil {
		if reqCtx.Err() != nil {
			return nil, &LLMTimeoutError{Op: "chat.completions"}
		}
		return nil, err
	}

	var resp chatCompletionResponse
	if err := unmarshalJSON(respBody, &resp); err != nil {
		return nil, fmt.Errorf("decoding chat response: %w", err)
	}
	if len(resp.Choices) == 0 {
		return nil, fmt.Errorf("llm: no choices in chat response")
	}

	return &CompleteResponse{
		Content: resp.Choices[0].Message.Content,
		Model:   resp.Model,
		Usage: Usage{
			PromptTokens:     resp.Usage.PromptTokens,
			CompletionTokens: resp.Usage.CompletionTokens,
			TotalTokens:      resp.Usage.TotalTokens,
		},
	}, nil
}
