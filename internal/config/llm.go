package config

import (
	"fmt"
	"strings"
	"time"
)

// Supported LLM providers.
const (
	ProviderGemini = "gemini"
	ProviderOllama = "ollama"
)

// PlaceholderAPIKey is the value shipped in example configs; it counts as unset.
const PlaceholderAPIKey = "YOUR_NEW_API_KEY_HERE"

// LLMConfig configures slide generation.
type LLMConfig struct {
	Provider        string  `yaml:"provider"` // gemini, ollama
	APIKey          string  `yaml:"api_key"`
	Model           string  `yaml:"model"`
	BaseURL         string  `yaml:"base_url"` // empty = provider default
	Temperature     float64 `yaml:"temperature"`
	TopP            float64 `yaml:"top_p"`
	TopK            int     `yaml:"top_k"`
	MaxOutputTokens int     `yaml:"max_output_tokens"`
	Timeout         string  `yaml:"timeout"`
	MinInterval     string  `yaml:"min_interval"` // spacing between requests
	MaxRetries      int     `yaml:"max_retries"`
}

// DefaultLLMConfig mirrors the generation settings of the slide prompt.
func DefaultLLMConfig() LLMConfig {
	return LLMConfig{
		Provider:        ProviderGemini,
		Model:           "gemini-1.5-flash-latest",
		Temperature:     0.7,
		TopP:            1.0,
		TopK:            32,
		MaxOutputTokens: 4096,
		Timeout:         "5m",
		MinInterval:     "500ms",
		MaxRetries:      3,
	}
}

// HasAPIKey reports whether a usable key is configured.
func (c LLMConfig) HasAPIKey() bool {
	key := strings.TrimSpace(c.APIKey)
	return key != "" && key != PlaceholderAPIKey
}

// GetTimeout returns the per-request timeout.
func (c LLMConfig) GetTimeout() time.Duration {
	return parseDurationOr(c.Timeout, 5*time.Minute)
}

// GetMinInterval returns the minimum spacing between requests.
func (c LLMConfig) GetMinInterval() time.Duration {
	return parseDurationOr(c.MinInterval, 500*time.Millisecond)
}

// Validate checks provider and sampling parameters.
func (c LLMConfig) Validate() error {
	switch c.Provider {
	case ProviderGemini, ProviderOllama:
	default:
		return fmt.Errorf("llm.provider %q is not supported (use %s or %s)", c.Provider, ProviderGemini, ProviderOllama)
	}
	if c.Temperature < 0 || c.Temperature > 2 {
		return fmt.Errorf("llm.temperature must be within [0, 2], got %v", c.Temperature)
	}
	if c.TopP < 0 || c.TopP > 1 {
		return fmt.Errorf("llm.top_p must be within [0, 1], got %v", c.TopP)
	}
	if c.TopK < 0 {
		return fmt.Errorf("llm.top_k must not be negative")
	}
	if c.MaxOutputTokens <= 0 {
		return fmt.Errorf("llm.max_output_tokens must be positive")
	}
	return nil
}

// legacyModelConfig is the flat model_config.yaml layout:
//
//	gemini_api_key: ...
//	model_name: gemini-1.5-flash-latest
//	temperature: 0.7
type legacyModelConfig struct {
	GeminiAPIKey    string   `yaml:"gemini_api_key"`
	ModelName       string   `yaml:"model_name"`
	Temperature     *float64 `yaml:"temperature"`
	TopP            *float64 `yaml:"top_p"`
	TopK            *int     `yaml:"top_k"`
	MaxOutputTokens *int     `yaml:"max_output_tokens"`
}

func (l legacyModelConfig) applyTo(c *LLMConfig) {
	if l.GeminiAPIKey != "" {
		c.APIKey = l.GeminiAPIKey
		c.Provider = ProviderGemini
	}
	if l.ModelName != "" {
		c.Model = l.ModelName
	}
	if l.Temperature != nil {
		c.Temperature = *l.Temperature
	}
	if l.TopP != nil {
		c.TopP = *l.TopP
	}
	if l.TopK != nil {
		c.TopK = *l.TopK
	}
	if l.MaxOutputTokens != nil {
		c.MaxOutputTokens = *l.MaxOutputTokens
	}
}
