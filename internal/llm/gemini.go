package llm

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"google.golang.org/genai"

	"paperslides/internal/config"
	"paperslides/internal/logging"
)

// GeminiClient generates text with the Gemini API.
type GeminiClient struct {
	client  *genai.Client
	model   string
	timeout time.Duration
	gen     genai.GenerateContentConfig
	pacer   *pacer
}

// NewGeminiClient creates a Gemini client from cfg. A missing or
// placeholder key returns ErrAPIKeyMissing.
func NewGeminiClient(ctx context.Context, cfg config.LLMConfig) (*GeminiClient, error) {
	if !cfg.HasAPIKey() {
		return nil, ErrAPIKeyMissing
	}
	model := cfg.Model
	if model == "" {
		model = config.DefaultLLMConfig().Model
	}

	cc := &genai.ClientConfig{
		APIKey:     cfg.APIKey,
		Backend:    genai.BackendGeminiAPI,
		HTTPClient: &http.Client{},
	}
	if cfg.BaseURL != "" {
		cc.HTTPOptions = genai.HTTPOptions{BaseURL: cfg.BaseURL}
	}
	client, err := genai.NewClient(ctx, cc)
	if err != nil {
		return nil, fmt.Errorf("failed to create genai client: %w", err)
	}

	return &GeminiClient{
		client:  client,
		model:   model,
		timeout: cfg.GetTimeout(),
		gen: genai.GenerateContentConfig{
			Temperature:     genai.Ptr(float32(cfg.Temperature)),
			TopP:            genai.Ptr(float32(cfg.TopP)),
			TopK:            genai.Ptr(float32(cfg.TopK)),
			MaxOutputTokens: int32(cfg.MaxOutputTokens),
		},
		pacer: newPacer(cfg),
	}, nil
}

// Model returns the model name.
func (c *GeminiClient) Model() string { return c.model }

// Complete sends a single user prompt.
func (c *GeminiClient) Complete(ctx context.Context, prompt string) (string, error) {
	return c.CompleteWithSystem(ctx, "", prompt)
}

// CompleteWithSystem sends a prompt with an optional system instruction,
// retrying on 429 and 503.
func (c *GeminiClient) CompleteWithSystem(ctx context.Context, systemPrompt, userPrompt string) (string, error) {
	if _, ok := ctx.Deadline(); !ok && c.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.timeout)
		defer cancel()
	}

	start := time.Now()
	logging.APIDebug("[Gemini] request: model=%s system_len=%d user_len=%d", c.model, len(systemPrompt), len(userPrompt))

	gen := c.gen
	if strings.TrimSpace(systemPrompt) != "" {
		gen.SystemInstruction = genai.NewContentFromText(systemPrompt, genai.RoleUser)
	}

	out, err := c.pacer.do(ctx, "Gemini", func(ctx context.Context) (string, error) {
		resp, err := c.client.Models.GenerateContent(ctx, c.model, genai.Text(userPrompt), &gen)
		if err != nil {
			var apiErr genai.APIError
			if errors.As(err, &apiErr) && (apiErr.Code == http.StatusTooManyRequests || apiErr.Code == http.StatusServiceUnavailable) {
				return "", errRetryable{fmt.Errorf("gemini returned %d: %s", apiErr.Code, apiErr.Message)}
			}
			return "", fmt.Errorf("gemini request failed: %w", err)
		}
		text := strings.TrimSpace(resp.Text())
		if text == "" {
			return "", ErrEmptyCompletion
		}
		return text, nil
	})
	if err != nil {
		return "", err
	}

	logging.API("[Gemini] completed in %v response_len=%d", time.Since(start), len(out))
	return out, nil
}
