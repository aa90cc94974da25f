package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeFile(t *testing.T, dir, name, content string) {
	t.Helper()
	require.NoError(t, os.WriteFile(filepath.Join(dir, name), []byte(content), 0644))
}

func clearEnv(t *testing.T) {
	t.Helper()
	for _, k := range []string{
		"GEMINI_API_KEY", "GOOGLE_API_KEY", "OLLAMA_HOST",
		"PAPERSLIDES_MODEL", "PAPERSLIDES_DATA_DIR", "PAPERSLIDES_LOG_LEVEL",
	} {
		t.Setenv(k, "")
	}
}

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()
	require.NoError(t, cfg.Validate())

	assert.Equal(t, ProviderGemini, cfg.LLM.Provider)
	assert.Equal(t, "gemini-1.5-flash-latest", cfg.LLM.Model)
	assert.InDelta(t, 0.7, cfg.LLM.Temperature, 1e-9)
	assert.Equal(t, 32, cfg.LLM.TopK)
	assert.Equal(t, 4096, cfg.LLM.MaxOutputTokens)
	assert.Equal(t, 50, cfg.Processing.MinParagraphLength)
	assert.Equal(t, 64, cfg.Training.LoRA.R)
	assert.Equal(t, filepath.Join("data", "raw"), cfg.Paths.RawDir())
	assert.Equal(t, filepath.Join("data", "catalog.db"), cfg.Paths.CatalogPath())
}

func TestPathsAbsoluteSubdir(t *testing.T) {
	abs := filepath.Join(t.TempDir(), "pdfs")
	p := PathsConfig{DataDir: "data", Raw: abs}
	assert.Equal(t, abs, p.RawDir())
}

func TestLoadMissingDirReturnsDefaults(t *testing.T) {
	clearEnv(t)
	cfg, err := Load(filepath.Join(t.TempDir(), "nope"))
	require.NoError(t, err)
	assert.Equal(t, DefaultConfig(), cfg)
}

func TestLoadMapsConfigFiles(t *testing.T) {
	clearEnv(t)
	dir := t.TempDir()
	writeFile(t, dir, "model_config.yaml", `
gemini_api_key: abc123
model_name: gemini-pro
temperature: 0.2
top_k: 8
`)
	writeFile(t, dir, "processing_config.yml", `
processing:
  min_paragraph_length: 80
fetch:
  max_results: 5
paths:
  data_dir: /srv/papers
`)
	writeFile(t, dir, "training_config.yaml", `
training:
  batch_size: 2
  lora:
    r: 16
paths:
  output_dir: out/adapter
`)
	writeFile(t, dir, "notes.txt", "ignored")

	cfg, err := Load(dir)
	require.NoError(t, err)

	assert.Equal(t, "abc123", cfg.LLM.APIKey)
	assert.Equal(t, "gemini-pro", cfg.LLM.Model)
	assert.InDelta(t, 0.2, cfg.LLM.Temperature, 1e-9)
	assert.Equal(t, 8, cfg.LLM.TopK)
	assert.Equal(t, 4096, cfg.LLM.MaxOutputTokens, "unset keys keep defaults")

	assert.Equal(t, 80, cfg.Processing.MinParagraphLength)
	assert.Equal(t, 100, cfg.Processing.MinSectionLength)
	assert.Equal(t, 5, cfg.Fetch.MaxResults)
	assert.Equal(t, DefaultQuery, cfg.Fetch.Query)
	assert.Equal(t, "/srv/papers", cfg.Paths.DataDir)
	assert.Equal(t, "raw", cfg.Paths.Raw)

	assert.Equal(t, 2, cfg.Training.BatchSize)
	assert.Equal(t, 16, cfg.Training.LoRA.R)
	assert.Equal(t, 16, cfg.Training.LoRA.Alpha)
	assert.Equal(t, "out/adapter", cfg.Training.OutputDir)
}

func TestLoadNestedLLMSection(t *testing.T) {
	clearEnv(t)
	dir := t.TempDir()
	writeFile(t, dir, "model_config.yaml", `
llm:
  provider: ollama
  model: llama3
  base_url: http://gpu:11434
`)
	cfg, err := Load(dir)
	require.NoError(t, err)
	assert.Equal(t, ProviderOllama, cfg.LLM.Provider)
	assert.Equal(t, "llama3", cfg.LLM.Model)
	assert.Equal(t, "http://gpu:11434", cfg.LLM.BaseURL)
}

func TestSaveAndLoadFile(t *testing.T) {
	clearEnv(t)
	path := filepath.Join(t.TempDir(), "conf", "paperslides.yaml")

	cfg := DefaultConfig()
	cfg.LLM.Model = "gemini-2.0-flash"
	cfg.Fetch.Keywords = []string{"rag"}
	require.NoError(t, cfg.Save(path))

	loaded, err := LoadFile(path)
	require.NoError(t, err)
	assert.Equal(t, cfg, loaded)
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr string
	}{
		{"defaults", func(*Config) {}, ""},
		{"provider", func(c *Config) { c.LLM.Provider = "openai" }, "llm.provider"},
		{"temperature", func(c *Config) { c.LLM.Temperature = 3 }, "llm.temperature"},
		{"max results", func(c *Config) { c.Fetch.MaxResults = 0 }, "fetch.max_results"},
		{"sort", func(c *Config) { c.Fetch.SortBy = "random" }, "fetch.sort_by"},
		{"interval", func(c *Config) { c.Fetch.RequestInterval = "soon" }, "fetch.request_interval"},
		{"level", func(c *Config) { c.Logging.Level = "loud" }, "logging.level"},
		{"precision", func(c *Config) { c.Training.FP16 = true }, "mutually exclusive"},
		{"lora", func(c *Config) { c.Training.LoRA.Dropout = 1 }, "training.lora.dropout"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tt.mutate(cfg)
			err := cfg.Validate()
			if tt.wantErr == "" {
				assert.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestDurations(t *testing.T) {
	cfg := DefaultConfig()
	assert.Equal(t, "3s", cfg.GetRequestInterval().String())
	cfg.Fetch.RequestInterval = "garbage"
	assert.Equal(t, "3s", cfg.GetRequestInterval().String())
	assert.Equal(t, "5m0s", cfg.LLM.GetTimeout().String())
}
