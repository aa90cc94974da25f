package llm

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"paperslides/internal/config"
)

func testLLMConfig(baseURL string) config.LLMConfig {
	cfg := config.DefaultLLMConfig()
	cfg.APIKey = "test-key"
	cfg.BaseURL = baseURL
	cfg.MinInterval = "0s"
	cfg.MaxRetries = 2
	return cfg
}

func fastRetries(p *pacer) { p.retryBase = time.Millisecond }

func TestGeminiRequiresKey(t *testing.T) {
	for _, key := range []string{"", config.PlaceholderAPIKey} {
		cfg := config.DefaultLLMConfig()
		cfg.APIKey = key
		_, err := NewGeminiClient(context.Background(), cfg)
		assert.ErrorIs(t, err, ErrAPIKeyMissing)
	}
}

func TestGeminiComplete(t *testing.T) {
	var body map[string]any
	var path string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		path = r.URL.Path
		data, _ := io.ReadAll(r.Body)
		_ = json.Unmarshal(data, &body)
		w.Header().Set("Content-Type", "application/json")
		_, _ = io.WriteString(w, `{"candidates":[{"content":{"parts":[{"text":"  ## Slide 1: Title  "}],"role":"model"}}]}`)
	}))
	defer srv.Close()

	c, err := NewGeminiClient(context.Background(), testLLMConfig(srv.URL))
	require.NoError(t, err)
	assert.Equal(t, "gemini-1.5-flash-latest", c.Model())

	out, err := c.CompleteWithSystem(context.Background(), "be brief", "make slides")
	require.NoError(t, err)
	assert.Equal(t, "## Slide 1: Title", out)

	assert.True(t, strings.HasSuffix(path, "models/gemini-1.5-flash-latest:generateContent"), path)
	gen, ok := body["generationConfig"].(map[string]any)
	require.True(t, ok, "generationConfig present")
	assert.InDelta(t, 0.7, gen["temperature"], 1e-6)
	assert.InDelta(t, 32, gen["topK"], 1e-6)
	assert.InDelta(t, 4096, gen["maxOutputTokens"], 1e-6)
	assert.Contains(t, body, "systemInstruction")
}

func TestGeminiRetriesRateLimit(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) == 1 {
			w.WriteHeader(http.StatusTooManyRequests)
			_, _ = io.WriteString(w, `{"error":{"code":429,"message":"slow down","status":"RESOURCE_EXHAUSTED"}}`)
			return
		}
		_, _ = io.WriteString(w, `{"candidates":[{"content":{"parts":[{"text":"ok"}],"role":"model"}}]}`)
	}))
	defer srv.Close()

	c, err := NewGeminiClient(context.Background(), testLLMConfig(srv.URL))
	require.NoError(t, err)
	fastRetries(c.pacer)

	out, err := c.Complete(context.Background(), "hi")
	require.NoError(t, err)
	assert.Equal(t, "ok", out)
	assert.Equal(t, int32(2), calls.Load())
}

func TestGeminiPermanentError(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusBadRequest)
		_, _ = io.WriteString(w, `{"error":{"code":400,"message":"bad prompt","status":"INVALID_ARGUMENT"}}`)
	}))
	defer srv.Close()

	c, err := NewGeminiClient(context.Background(), testLLMConfig(srv.URL))
	require.NoError(t, err)
	fastRetries(c.pacer)

	_, err = c.Complete(context.Background(), "hi")
	require.Error(t, err)
	assert.Equal(t, int32(1), calls.Load(), "client errors are not retried")
}

func TestGeminiEmptyCompletion(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = io.WriteString(w, `{"candidates":[]}`)
	}))
	defer srv.Close()

	c, err := NewGeminiClient(context.Background(), testLLMConfig(srv.URL))
	require.NoError(t, err)
	_, err = c.Complete(context.Background(), "hi")
	assert.ErrorIs(t, err, ErrEmptyCompletion)
}

func TestOllamaComplete(t *testing.T) {
	var req ollamaGenerateRequest
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/generate", r.URL.Path)
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		_ = json.NewEncoder(w).Encode(ollamaGenerateResponse{Model: req.Model, Response: "deck\n", Done: true})
	}))
	defer srv.Close()

	cfg := testLLMConfig(srv.URL)
	cfg.Provider = config.ProviderOllama
	cfg.Model = "gemma-slides"
	client, err := NewClient(context.Background(), cfg)
	require.NoError(t, err)

	out, err := client.CompleteWithSystem(context.Background(), "sys", "make slides")
	require.NoError(t, err)
	assert.Equal(t, "deck", out)
	assert.Equal(t, "gemma-slides", client.Model())
	assert.Equal(t, "make slides", req.Prompt)
	assert.Equal(t, "sys", req.System)
	assert.False(t, req.Stream)
	assert.Equal(t, 32, req.Options.TopK)
}

func TestOllamaRetriesUnavailable(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) <= 2 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		_ = json.NewEncoder(w).Encode(ollamaGenerateResponse{Response: "ok", Done: true})
	}))
	defer srv.Close()

	cfg := testLLMConfig(srv.URL)
	c := NewOllamaClient(cfg)
	fastRetries(c.pacer)

	out, err := c.Complete(context.Background(), "x")
	require.NoError(t, err)
	assert.Equal(t, "ok", out)

	calls.Store(-10)
	_, err = c.Complete(context.Background(), "x")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "max retries exceeded")
}

func TestOllamaEndpointNormalisation(t *testing.T) {
	cfg := config.DefaultLLMConfig()
	cfg.BaseURL = "gpu-box:11434/"
	assert.Equal(t, "http://gpu-box:11434", NewOllamaClient(cfg).endpoint)

	cfg.BaseURL = ""
	assert.Equal(t, DefaultOllamaEndpoint, NewOllamaClient(cfg).endpoint)
}

func TestNewClientUnknownProvider(t *testing.T) {
	cfg := config.DefaultLLMConfig()
	cfg.Provider = "openai"
	_, err := NewClient(context.Background(), cfg)
	assert.Error(t, err)
}

func TestPacerHonoursContext(t *testing.T) {
	p := &pacer{minInterval: time.Hour, lastRequest: time.Now()}
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	assert.ErrorIs(t, p.wait(ctx), context.Canceled)
}
