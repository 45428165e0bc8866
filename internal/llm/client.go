// internal/llm/client.go
package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"research-agent/internal/common/config"
	"research-agent/internal/common/errors"
	"research-agent/internal/common/logger"
	"research-agent/internal/common/metrics"
)

// Completer is the chat completion surface used by the analysis stages.
type Completer interface {
	Complete(ctx context.Context, stage string, messages []Message) (string, error)
	Usage() Usage
}

// Client calls a hosted chat completion API over HTTP.
type Client struct {
	config *config.LLMConfig
	client *http.Client
	logger logger.Logger

	mu          sync.Mutex
	usage       Usage
	lastRequest time.Time
}

// NewClient creates a chat completion client.
func NewClient(cfg *config.LLMConfig, log logger.Logger) *Client {
	return &Client{
		config: cfg,
		client: &http.Client{
			// Rely on the per-request context for timeouts
		},
		logger: log.With(map[string]interface{}{
			"component": "llm-client",
		}),
	}
}

// Complete sends the messages to the chat completion endpoint and returns
// the assistant's reply. The stage label is used for logging and metrics.
func (c *Client) Complete(ctx context.Context, stage string, messages []Message) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, config.GetDuration(c.config.Timeout))
	defer cancel()

	c.applyRequestDelay(ctx)

	body, err := json.Marshal(chatRequest{
		Model:       c.config.Model,
		Messages:    messages,
		Temperature: c.config.Temperature,
		MaxTokens:   c.config.MaxTokens,
	})
	if err != nil {
		return "", errors.NewLLMRequestFailedError(err)
	}

	start := time.Now()
	reply, usage, err := c.doWithRetry(ctx, stage, body)
	metrics.LLMRequestDuration.WithLabelValues(stage).Observe(time.Since(start).Seconds())

	if err != nil {
		metrics.LLMRequestsTotal.WithLabelValues(stage, "error").Inc()
		return "", err
	}

	metrics.LLMRequestsTotal.WithLabelValues(stage, "success").Inc()
	metrics.LLMTokensTotal.WithLabelValues(stage, "prompt").Add(float64(usage.PromptTokens))
	metrics.LLMTokensTotal.WithLabelValues(stage, "completion").Add(float64(usage.CompletionTokens))

	c.mu.Lock()
	c.usage.Add(usage)
	c.mu.Unlock()

	return reply, nil
}

// Usage returns the accumulated token usage across all requests.
func (c *Client) Usage() Usage {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.usage
}

func (c *Client) doWithRetry(ctx context.Context, stage string, body []byte) (string, Usage, error) {
	var lastErr error
	rateLimited := false

	for attempt := 0; attempt <= c.config.MaxRetries; attempt++ {
		if attempt > 0 {
			backoff := time.Duration(100*(1<<(attempt-1))) * time.Millisecond
			select {
			case <-time.After(backoff):
			case <-ctx.Done():
				return "", Usage{}, errors.NewLLMTimeoutError(stage)
			}
		}

		req, err := http.NewRequestWithContext(ctx, "POST", c.config.BaseURL+"/chat/completions", bytes.NewReader(body))
		if err != nil {
			return "", Usage{}, errors.NewLLMRequestFailedError(err)
		}
		req.Header.Set("Content-Type", "application/json")
		req.Header.Set("Authorization", "Bearer "+c.config.APIKey)

		resp, err := c.client.Do(req)
		if err != nil {
			if ctx.Err() != nil {
				return "", Usage{}, errors.NewLLMTimeoutError(stage)
			}
			lastErr = err
			continue
		}

		if resp.StatusCode == http.StatusOK {
			return c.decodeResponse(resp, stage)
		}

		respBody, _ := io.ReadAll(resp.Body)
		resp.Body.Close()

		if resp.StatusCode == http.StatusTooManyRequests {
			rateLimited = true
			lastErr = fmt.Errorf("status 429: %s", strings.TrimSpace(string(respBody)))

			c.logger.Warn("rate limited, backing off", map[string]interface{}{
				"stage":   stage,
				"attempt": attempt,
			})

			if wait := parseRetryAfter(resp.Header.Get("Retry-After")); wait > 0 {
				select {
				case <-time.After(wait):
				case <-ctx.Done():
					return "", Usage{}, errors.NewLLMTimeoutError(stage)
				}
			}
			continue
		}

		lastErr = decodeAPIError(resp.StatusCode, respBody)

		// Client errors other than 429 will not succeed on retry
		if resp.StatusCode >= 400 && resp.StatusCode < 500 {
			return "", Usage{}, errors.NewLLMRequestFailedError(lastErr)
		}

		if ctx.Err() != nil {
			return "", Usage{}, errors.NewLLMTimeoutError(stage)
		}
	}

	if ctx.Err() == context.DeadlineExceeded {
		return "", Usage{}, errors.NewLLMTimeoutError(stage)
	}
	if rateLimited {
		return "", Usage{}, errors.NewRateLimitedError(fmt.Sprintf("stage %s: %v", stage, lastErr))
	}
	return "", Usage{}, errors.NewLLMRequestFailedError(lastErr)
}

func (c *Client) decodeResponse(resp *http.Response, stage string) (string, Usage, error) {
	defer resp.Body.Close()

	var parsed chatResponse
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		return "", Usage{}, errors.NewLLMRequestFailedError(fmt.Errorf("decode response: %w", err))
	}

	if len(parsed.Choices) == 0 {
		return "", Usage{}, errors.NewLLMRequestFailedError(fmt.Errorf("response contained no choices"))
	}

	content := strings.TrimSpace(parsed.Choices[0].Message.Content)

	c.logger.Debug("completion received", map[string]interface{}{
		"stage":        stage,
		"model":        parsed.Model,
		"totalTokens":  parsed.Usage.TotalTokens,
		"finishReason": parsed.Choices[0].FinishReason,
	})

	return content, parsed.Usage, nil
}

// applyRequestDelay enforces a minimum gap between requests to stay under
// provider rate limits.
func (c *Client) applyRequestDelay(ctx context.Context) {
	if c.config.RequestDelay <= 0 {
		return
	}

	c.mu.Lock()
	last := c.lastRequest
	c.mu.Unlock()

	if !last.IsZero() {
		wait := config.GetDuration(c.config.RequestDelay) - time.Since(last)
		if wait > 0 {
			select {
			case <-time.After(wait):
			case <-ctx.Done():
			}
		}
	}

	// Stamp after the wait so the gap is measured from the actual send,
	// not from when the caller entered the delay.
	c.mu.Lock()
	c.lastRequest = time.Now()
	c.mu.Unlock()
}

func parseRetryAfter(header string) time.Duration {
	if header == "" {
		return 0
	}
	if secs, err := strconv.Atoi(header); err == nil && secs > 0 {
		return time.Duration(secs) * time.Second
	}
	return 0
}

func decodeAPIError(status int, body []byte) error {
	var parsed apiError
	if err := json.Unmarshal(body, &parsed); err == nil && parsed.Error.Message != "" {
		return fmt.Errorf("status %d: %s", status, parsed.Error.Message)
	}
	return fmt.Errorf("status %d", status)
}
