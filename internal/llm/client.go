package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"go.uber.org/zap"

	"rxaudit/internal/config"
	"rxaudit/internal/metrics"
)

// Engine is the external reasoning engine. Implementations return free text
// that the caller leniently parses into JSON; a transport failure surfaces as
// an error and the pipeline stage degrades on its own terms.
type Engine interface {
	Generate(ctx context.Context, prompt string) (string, error)
}

// chat-completions wire types for an OpenAI-compatible endpoint
type chatRequest struct {
	Model          string        `json:"model"`
	Messages       []chatMessage `json:"messages"`
	ResponseFormat *respFormat   `json:"response_format,omitempty"`
	Temperature    float64       `json:"temperature"`
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type respFormat struct {
	Type string `json:"type"`
}

type chatResponse struct {
	Choices []struct {
		Message struct {
			Content string `json:"content"`
		} `json:"message"`
	} `json:"choices"`
	Error *struct {
		Message string `json:"message"`
	} `json:"error"`
}

// Client talks to an OpenAI-compatible chat-completions endpoint. An optional
// response cache short-circuits repeated prompts.
type Client struct {
	baseURL string
	apiKey  string
	model   string
	http    *http.Client
	cache   *Cache
	logger  *zap.Logger
}

func NewClient(cfg config.EngineConfig, cache *Cache, logger *zap.Logger) *Client {
	return &Client{
		baseURL: cfg.BaseURL,
		apiKey:  cfg.APIKey,
		model:   cfg.Model,
		http:    &http.Client{Timeout: cfg.Timeout.Std()},
		cache:   cache,
		logger:  logger,
	}
}

// Generate sends one user prompt and returns the engine's text content.
func (c *Client) Generate(ctx context.Context, prompt string) (string, error) {
	if c.cache != nil {
		if cached, ok := c.cache.Get(ctx, c.model, prompt); ok {
			metrics.EngineCalls.WithLabelValues("cache_hit").Inc()
			return cached, nil
		}
	}

	start := time.Now()
	reqBody, err := json.Marshal(chatRequest{
		Model:          c.model,
		Messages:       []chatMessage{{Role: "user", Content: prompt}},
		ResponseFormat: &respFormat{Type: "json_object"},
		Temperature:    0.0,
	})
	if err != nil {
		return "", fmt.Errorf("marshaling engine request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/chat/completions", bytes.NewReader(reqBody))
	if err != nil {
		return "", fmt.Errorf("creating engine request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if c.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		metrics.EngineCalls.WithLabelValues("error").Inc()
		return "", fmt.Errorf("calling engine: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		metrics.EngineCalls.WithLabelValues("error").Inc()
		return "", fmt.Errorf("reading engine response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		metrics.EngineCalls.WithLabelValues("error").Inc()
		return "", fmt.Errorf("engine returned status %d: %s", resp.StatusCode, string(body))
	}

	var parsed chatResponse
	if err := json.Unmarshal(body, &parsed); err != nil {
		metrics.EngineCalls.WithLabelValues("error").Inc()
		return "", fmt.Errorf("decoding engine response: %w", err)
	}
	if parsed.Error != nil {
		metrics.EngineCalls.WithLabelValues("error").Inc()
		return "", fmt.Errorf("engine error: %s", parsed.Error.Message)
	}
	if len(parsed.Choices) == 0 {
		metrics.EngineCalls.WithLabelValues("error").Inc()
		return "", fmt.Errorf("engine returned no choices")
	}

	content := parsed.Choices[0].Message.Content
	metrics.EngineCalls.WithLabelValues("success").Inc()
	metrics.EngineCallDuration.Observe(time.Since(start).Seconds())
	c.logger.Debug("engine call finished",
		zap.Duration("duration", time.Since(start)),
		zap.Int("response_bytes", len(content)))

	if c.cache != nil {
		c.cache.Set(ctx, c.model, prompt, content)
	}
	return content, nil
}
