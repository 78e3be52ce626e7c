package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/brunobiangulo/ragline/util"
)

// gatewayClient is the shared HTTP plumbing for the embedding, chat, and
// rerank gateway clients: request signing and retry with backoff, mirroring
// the teacher's openAICompatClient.
type gatewayClient struct {
	baseURL string
	apiKey  string
	http    *http.Client
	logger  *slog.Logger
}

func newGatewayClient(baseURL, apiKey string, timeout time.Duration, logger *slog.Logger) *gatewayClient {
	if logger == nil {
		logger = slog.Default()
	}
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &gatewayClient{
		baseURL: baseURL,
		apiKey:  apiKey,
		http:    &http.Client{Timeout: timeout},
		logger:  logger,
	}
}

// retryableStatusCode mirrors §7's Transient error kind: 429 and 5xx.
func retryableStatusCode(code int) bool {
	return code == http.StatusTooManyRequests || code >= 500
}

// doPost issues a JSON POST, retrying transient failures through
// util.WithRetry. maxRetries/initialDelay/maxDelay are caller-supplied so the
// embedding (§4.3: 3 retries, 1s/10s) and reranker (§4.4: 1 retry, i.e. 2 attempts, 0.5s/5s)
// clients can share this plumbing with their own retry budgets.
func (c *gatewayClient) doPost(ctx context.Context, path string, body interface{}, maxRetries int, initialDelay, maxDelay time.Duration) ([]byte, error) {
	data, err := json.Marshal(body)
	if err != nil {
		return nil, err
	}
	url := c.baseURL + path

	var respBody []byte
	retryErr := util.WithRetry(ctx, func(ctx context.Context) error {
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(data))
		if err != nil {
			return err
		}
		req.Header.Set("Content-Type", "application/json")
		if c.apiKey != "" {
			req.Header.Set("Authorization", "Bearer "+c.apiKey)
		}

		resp, err := c.http.Do(req)
		if err != nil {
			if ctx.Err() != nil {
				return &LLMTimeoutError{Op: path}
			}
			return fmt.Errorf("request to %s failed: %w", url, err)
		}
		defer resp.Body.Close()

		data, err := io.ReadAll(resp.Body)
		if err != nil {
			return fmt.Errorf("reading response body: %w", err)
		}

		if resp.StatusCode == http.StatusOK {
			respBody = data
			return nil
		}

		return &LLMError{Status: resp.StatusCode, Message: util.SanitizeError(string(data))}
	}, util.RetryOptions{
		MaxRetries:   maxRetries,
		InitialDelay: initialDelay,
		MaxDelay:     maxDelay,
		IsRetryable: func(err error) bool {
			var gwErr *LLMError
			if errors.As(err, &gwErr) {
				return retryableStatusCode(gwErr.Status)
			}
			return true // network/transport errors are always worth a retry
		},
		OnRetry: func(attempt int, err error, delay time.Duration) {
			c.logger.Warn("llm gateway: retrying request", "url", url, "attempt", attempt, "delay", delay, "error", err)
		},
	})
	if retryErr != nil {
		return nil, retryErr
	}

	return respBody, nil
}

// LLMError wraps a non-2xx, non-retryable gateway response (§7 Upstream).
type LLMError struct {
	Status  int
	Message string
}

func (e *LLMError) Error() string {
	return fmt.Sprintf("llm gateway error (status %d): %s", e.Status, e.Message)
}

// LLMTimeoutError signals a cancelled/deadline-exceeded gateway call (§7 Timeout).
type LLMTimeoutError struct {
	Op string
}

func (e *LLMTimeoutError) Error() string { return fmt.Sprintf("llm gateway request timed out: %s", e.Op) }
func (e *LLMTimeoutError) Timeout() bool { return true }
