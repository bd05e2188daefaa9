// Package genai wraps every call to the external text-generation service
// with per-attempt timeouts, exponential backoff with jitter, and a single
// model-fallback hop when a model produces no usable text.
package genai

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"math/rand"
	"net/http"
	"strings"
	"time"

	"ai-pipeline/internal/common/logger"
	"ai-pipeline/internal/common/metrics"
)

var (
	ErrTimeout      = errors.New("LLM_TIMEOUT")
	ErrOverloaded   = errors.New("LLM_OVERLOADED")
	ErrInvalidReply = errors.New("LLM_INVALID_RESPONSE")
	ErrEmptyOutput  = errors.New("LLM_EMPTY_OUTPUT")
	ErrExhausted    = errors.New("LLM_RETRIES_EXHAUSTED")
)

// retryableMarkers are the failure signatures observed from the inference
// service that warrant a delayed retry against the same model.
var retryableMarkers = []string{
	"503",
	"Service Unavailable",
	"overloaded",
	"timeout",
	"ECONNRESET",
	"ETIMEDOUT",
}

type Config struct {
	BaseURL      string
	APIKey       string
	Models       []string // primary first, then fallbacks
	Timeout      time.Duration
	MaxRetries   int
	InitialDelay time.Duration
	Temperature  float64
	MaxTokens    int
}

// Result carries generated text plus the attempt bookkeeping that the
// structured logs and tests assert on.
type Result struct {
	Text    string
	Model   string
	Retries int
}

type Client struct {
	config *Config
	client *http.Client
	logger logger.Logger
	jitter func() time.Duration
}

func NewClient(config *Config, log logger.Logger) *Client {
	return &Client{
		config: config,
		client: &http.Client{
			Timeout: config.Timeout,
		},
		logger: log.With(map[string]interface{}{
			"component": "genai",
		}),
		jitter: func() time.Duration {
			return time.Duration(rand.Int63n(int64(time.Second)))
		},
	}
}

// Generate returns generated text for the prompt, retrying transient
// failures per model and falling back to the next model only when the
// current one produced no usable text.
func (c *Client) Generate(ctx context.Context, prompt string) (*Result, error) {
	return c.generate(ctx, prompt, false)
}

// GenerateJSON is Generate with an extra usability bar: output with no JSON
// object in it counts as unusable and triggers the model fallback.
func (c *Client) GenerateJSON(ctx context.Context, prompt string) (*Result, error) {
	return c.generate(ctx, prompt, true)
}

func (c *Client) generate(ctx context.Context, prompt string, requireJSON bool) (*Result, error) {
	var lastErr error

	for i, model := range c.config.Models {
		if i > 0 {
			metrics.InferenceModelFallbacks.Inc()
			c.logger.Warn("falling back to secondary model", map[string]interface{}{
				"model":  model,
				"reason": fmt.Sprint(lastErr),
			})
		}

		text, retries, err := c.generateWithRetry(ctx, model, prompt)
		if err != nil {
			// Only unusable output moves on to the next model. Transient
			// exhaustion and hard failures surface to the caller.
			if errors.Is(err, ErrEmptyOutput) {
				lastErr = err
				continue
			}
			return nil, err
		}

		if !usable(text, requireJSON) {
			lastErr = fmt.Errorf("%w: model %s", ErrEmptyOutput, model)
			continue
		}

		return &Result{Text: text, Model: model, Retries: retries}, nil
	}

	if lastErr == nil {
		lastErr = ErrEmptyOutput
	}
	return nil, lastErr
}

func usable(text string, requireJSON bool) bool {
	trimmed := strings.TrimSpace(text)
	if trimmed == "" {
		return false
	}
	if requireJSON && !strings.Contains(trimmed, "{") {
		return false
	}
	return true
}

func (c *Client) generateWithRetry(ctx context.Context, model, prompt string) (string, int, error) {
	retries := 0
	var lastErr error

	for attempt := 0; attempt <= c.config.MaxRetries; attempt++ {
		if attempt > 0 {
			backoff := c.config.InitialDelay*time.Duration(1<<(attempt-1)) + c.jitter()
			c.logger.Info("retrying inference call", map[string]interface{}{
				"model":   model,
				"attempt": attempt + 1,
				"delayMs": backoff.Milliseconds(),
			})
			select {
			case <-time.After(backoff):
				retries++
			case <-ctx.Done():
				return "", retries, fmt.Errorf("%w: %v", ErrTimeout, ctx.Err())
			}
		}

		metrics.InferenceAttempts.WithLabelValues(model).Inc()

		text, err := c.callOnce(ctx, model, prompt)
		if err == nil {
			return text, retries, nil
		}

		if ctx.Err() != nil {
			return "", retries, fmt.Errorf("%w: %v", ErrTimeout, ctx.Err())
		}

		if errors.Is(err, ErrEmptyOutput) {
			return "", retries, err
		}

		if !isRetryable(err) {
			return "", retries, err
		}

		lastErr = err
		metrics.InferenceRetries.WithLabelValues(model).Inc()
	}

	return "", retries, fmt.Errorf("%w: %v", ErrExhausted, lastErr)
}

func (c *Client) callOnce(ctx context.Context, model, prompt string) (string, error) {
	attemptCtx, cancel := context.WithTimeout(ctx, c.config.Timeout)
	defer cancel()

	requestBody := map[string]interface{}{
		"model":           model,
		"prompt":          prompt,
		"temperature":     c.config.Temperature,
		"maxOutputTokens": c.config.MaxTokens,
		"topP":            0.8,
	}

	body, _ := json.Marshal(requestBody)
	req, err := http.NewRequestWithContext(attemptCtx, "POST", c.config.BaseURL+"/api/ai/generate", bytes.NewBuffer(body))
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrInvalidReply, err)
	}
	req.Header.Set("Content-Type", "application/json")
	if c.config.APIKey != "" {
		req.Header.Set("x-api-key", c.config.APIKey)
	}

	resp, err := c.client.Do(req)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
			return "", fmt.Errorf("%w: %v", ErrTimeout, err)
		}
		return "", fmt.Errorf("%w: %v", ErrOverloaded, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		payload, _ := io.ReadAll(io.LimitReader(resp.Body, 2048))
		if resp.StatusCode == http.StatusServiceUnavailable || resp.StatusCode == http.StatusTooManyRequests {
			return "", fmt.Errorf("%w: status %d: %s", ErrOverloaded, resp.StatusCode, payload)
		}
		return "", fmt.Errorf("%w: status %d: %s", ErrInvalidReply, resp.StatusCode, payload)
	}

	var apiResponse struct {
		Text string `json:"text"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&apiResponse); err != nil {
		return "", fmt.Errorf("%w: decode error: %v", ErrInvalidReply, err)
	}

	if strings.TrimSpace(apiResponse.Text) == "" {
		return "", fmt.Errorf("%w: model %s", ErrEmptyOutput, model)
	}

	return apiResponse.Text, nil
}

func isRetryable(err error) bool {
	if errors.Is(err, ErrOverloaded) || errors.Is(err, ErrTimeout) {
		return true
	}
	msg := err.Error()
	for _, marker := range retryableMarkers {
		if strings.Contains(msg, marker) {
			return true
		}
	}
	return false
}
