// Package llm provides the text-completion clients used for slide
// generation: Google Gemini through the genai SDK and locally served models
// through Ollama.
package llm

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"paperslides/internal/config"
	"paperslides/internal/logging"
)

// ErrAPIKeyMissing is returned before any network call when a provider
// needs a key and none is configured.
var ErrAPIKeyMissing = errors.New("llm api key not configured")

// ErrEmptyCompletion is returned when the model answers with no text.
var ErrEmptyCompletion = errors.New("llm returned an empty completion")

// Client is a text completion backend.
type Client interface {
	Complete(ctx context.Context, prompt string) (string, error)
	CompleteWithSystem(ctx context.Context, systemPrompt, userPrompt string) (string, error)
	Model() string
}

// NewClient builds the client for cfg.Provider.
func NewClient(ctx context.Context, cfg config.LLMConfig) (Client, error) {
	switch cfg.Provider {
	case config.ProviderGemini, "":
		return NewGeminiClient(ctx, cfg)
	case config.ProviderOllama:
		return NewOllamaClient(cfg), nil
	default:
		return nil, fmt.Errorf("unsupported llm provider %q", cfg.Provider)
	}
}

// pacer spaces requests and retries rate-limited ones with exponential
// backoff (1s, 2s, 4s, ... from retryBase).
type pacer struct {
	mu          sync.Mutex
	lastRequest time.Time
	minInterval time.Duration
	maxRetries  int
	retryBase   time.Duration
}

func newPacer(cfg config.LLMConfig) *pacer {
	retries := cfg.MaxRetries
	if retries < 0 {
		retries = 0
	}
	return &pacer{
		minInterval: cfg.GetMinInterval(),
		maxRetries:  retries,
		retryBase:   time.Second,
	}
}

func (p *pacer) wait(ctx context.Context) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if d := p.minInterval - time.Since(p.lastRequest); d > 0 {
		t := time.NewTimer(d)
		defer t.Stop()
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-t.C:
		}
	}
	p.lastRequest = time.Now()
	return nil
}

// errRetryable marks an attempt failure worth retrying.
type errRetryable struct{ err error }

func (e errRetryable) Error() string { return e.err.Error() }
func (e errRetryable) Unwrap() error { return e.err }

// do runs attempt until it succeeds, fails permanently or retries run out.
func (p *pacer) do(ctx context.Context, name string, attempt func(ctx context.Context) (string, error)) (string, error) {
	var lastErr error
	for i := 0; i <= p.maxRetries; i++ {
		if i > 0 {
			backoff := p.retryBase * time.Duration(1<<(i-1))
			logging.APIDebug("[%s] retry %d/%d in %v: %v", name, i, p.maxRetries, backoff, lastErr)
			select {
			case <-ctx.Done():
				return "", ctx.Err()
			case <-time.After(backoff):
			}
		}
		if err := p.wait(ctx); err != nil {
			return "", err
		}

		out, err := attempt(ctx)
		if err == nil {
			return out, nil
		}
		var retry errRetryable
		if !errors.As(err, &retry) {
			return "", err
		}
		lastErr = retry.err
	}
	logging.Get(logging.CategoryAPI).Error("[%s] max retries exceeded: %v", name, lastErr)
	return "", fmt.Errorf("max retries exceeded: %w", lastErr)
}
