package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"paperslides/internal/config"
	"paperslides/internal/logging"
)

// DefaultOllamaEndpoint is the local Ollama server.
const DefaultOllamaEndpoint = "http://localhost:11434"

// OllamaClient generates text with a model served by Ollama, such as a
// finetuned adapter merged into its base model.
type OllamaClient struct {
	endpoint string
	model    string
	options  ollamaOptions
	client   *http.Client
	pacer    *pacer
}

type ollamaOptions struct {
	Temperature float64 `json:"temperature"`
	TopP        float64 `json:"top_p"`
	TopK        int     `json:"top_k"`
	NumPredict  int     `json:"num_predict,omitempty"`
}

type ollamaGenerateRequest struct {
	Model   string        `json:"model"`
	Prompt  string        `json:"prompt"`
	System  string        `json:"system,omitempty"`
	Stream  bool          `json:"stream"`
	Options ollamaOptions `json:"options"`
}

type ollamaGenerateResponse struct {
	Model    string `json:"model"`
	Response string `json:"response"`
	Done     bool   `json:"done"`
	Error    string `json:"error,omitempty"`
}

// NewOllamaClient creates an Ollama client from cfg.
func NewOllamaClient(cfg config.LLMConfig) *OllamaClient {
	endpoint := strings.TrimRight(cfg.BaseURL, "/")
	if endpoint == "" {
		endpoint = DefaultOllamaEndpoint
	}
	if !strings.Contains(endpoint, "://") {
		endpoint = "http://" + endpoint
	}
	return &OllamaClient{
		endpoint: endpoint,
		model:    cfg.Model,
		options: ollamaOptions{
			Temperature: cfg.Temperature,
			TopP:        cfg.TopP,
			TopK:        cfg.TopK,
			NumPredict:  cfg.MaxOutputTokens,
		},
		client: &http.Client{Timeout: cfg.GetTimeout()},
		pacer:  newPacer(cfg),
	}
}

// Model returns the model name.
func (c *OllamaClient) Model() string { return c.model }

// Complete sends a single prompt.
func (c *OllamaClient) Complete(ctx context.Context, prompt string) (string, error) {
	return c.CompleteWithSystem(ctx, "", prompt)
}

// CompleteWithSystem calls /api/generate without streaming.
func (c *OllamaClient) CompleteWithSystem(ctx context.Context, systemPrompt, userPrompt string) (string, error) {
	start := time.Now()
	body, err := json.Marshal(ollamaGenerateRequest{
		Model:   c.model,
		Prompt:  userPrompt,
		System:  systemPrompt,
		Options: c.options,
	})
	if err != nil {
		return "", fmt.Errorf("failed to marshal request: %w", err)
	}

	out, err := c.pacer.do(ctx, "Ollama", func(ctx context.Context) (string, error) {
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint+"/api/generate", bytes.NewReader(body))
		if err != nil {
			return "", fmt.Errorf("failed to create request: %w", err)
		}
		req.Header.Set("Content-Type", "application/json")

		resp, err := c.client.Do(req)
		if err != nil {
			return "", fmt.Errorf("ollama request failed: %w", err)
		}
		defer resp.Body.Close()

		data, err := io.ReadAll(resp.Body)
		if err != nil {
			return "", fmt.Errorf("failed to read response: %w", err)
		}
		switch {
		case resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode == http.StatusServiceUnavailable:
			return "", errRetryable{fmt.Errorf("ollama returned status %d", resp.StatusCode)}
		case resp.StatusCode != http.StatusOK:
			return "", fmt.Errorf("ollama returned status %d: %s", resp.StatusCode, strings.TrimSpace(string(data)))
		}

		var result ollamaGenerateResponse
		if err := json.Unmarshal(data, &result); err != nil {
			return "", fmt.Errorf("failed to decode response: %w", err)
		}
		if result.Error != "" {
			return "", fmt.Errorf("ollama error: %s", result.Error)
		}
		text := strings.TrimSpace(result.Response)
		if text == "" {
			return "", ErrEmptyCompletion
		}
		return text, nil
	})
	if err != nil {
		return "", err
	}

	logging.API("[Ollama] completed in %v model=%s response_len=%d", time.Since(start), c.model, len(out))
	return out, nil
}
