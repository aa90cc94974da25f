package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config holds all paperslides configuration.
type Config struct {
	Paths      PathsConfig      `yaml:"paths"`
	LLM        LLMConfig        `yaml:"llm"`
	Fetch      FetchConfig      `yaml:"fetch"`
	Processing ProcessingConfig `yaml:"processing"`
	Training   TrainingConfig   `yaml:"training"`
	Logging    LoggingConfig    `yaml:"logging"`
	Export     ExportConfig     `yaml:"export"`
}

// PathsConfig locates the data directories. Relative sub-paths are
// resolved against DataDir; absolute ones are used as is.
type PathsConfig struct {
	DataDir      string `yaml:"data_dir"`
	Raw          string `yaml:"raw"`
	Processed    string `yaml:"processed"`
	Slides       string `yaml:"slides"`
	Training     string `yaml:"training"`
	Logs         string `yaml:"logs"`
	Catalog      string `yaml:"catalog"`
	Requirements string `yaml:"requirements"` // relative to the working directory
}

func (p PathsConfig) resolve(sub string) string {
	if filepath.IsAbs(sub) {
		return sub
	}
	return filepath.Join(p.DataDir, sub)
}

// RawDir holds downloaded PDFs.
func (p PathsConfig) RawDir() string { return p.resolve(p.Raw) }

// ProcessedDir holds processed paper JSON/TXT files.
func (p PathsConfig) ProcessedDir() string { return p.resolve(p.Processed) }

// SlidesDir holds generated Markdown decks.
func (p PathsConfig) SlidesDir() string { return p.resolve(p.Slides) }

// TrainingDir holds finetuning datasets and plans.
func (p PathsConfig) TrainingDir() string { return p.resolve(p.Training) }

// LogsDir holds debug-mode log files.
func (p PathsConfig) LogsDir() string { return p.resolve(p.Logs) }

// CatalogPath is the SQLite catalog file.
func (p PathsConfig) CatalogPath() string { return p.resolve(p.Catalog) }

// FetchConfig configures arXiv retrieval.
type FetchConfig struct {
	BaseURL            string   `yaml:"base_url"`
	Query              string   `yaml:"query"`
	MaxResults         int      `yaml:"max_results"`
	AdvancedMaxResults int      `yaml:"advanced_max_results"`
	PageSize           int      `yaml:"page_size"`
	SortBy             string   `yaml:"sort_by"`    // relevance, lastUpdatedDate, submittedDate
	SortOrder          string   `yaml:"sort_order"` // ascending, descending
	Keywords           []string `yaml:"keywords"`
	RequestInterval    string   `yaml:"request_interval"`
	Timeout            string   `yaml:"timeout"`
	Concurrency        int      `yaml:"concurrency"`
}

// ProcessingConfig tunes PDF structuring.
type ProcessingConfig struct {
	MinParagraphLength int `yaml:"min_paragraph_length"`
	MinSectionLength   int `yaml:"min_section_length"`
	MaxHeadingLength   int `yaml:"max_heading_length"`
	ProgressEvery      int `yaml:"progress_every"`
	Workers            int `yaml:"workers"`
}

// LoggingConfig configures internal/logging.
type LoggingConfig struct {
	Level      string          `yaml:"level"`
	DebugMode  bool            `yaml:"debug_mode"`
	JSONFormat bool            `yaml:"json_format"`
	Categories map[string]bool `yaml:"categories,omitempty"`
}

// ExportConfig configures deck export.
type ExportConfig struct {
	BrowserBin string `yaml:"browser_bin"` // empty = let rod download/find Chromium
	Landscape  bool   `yaml:"landscape"`
	Timeout    string `yaml:"timeout"`
}

// DefaultQuery is the retrieval-augmented-generation search used when no
// query is configured.
const DefaultQuery = `(ti:"Retrieval-Augmented Generation" OR ti:"Retrieval Augmented Generation" OR ti:RAG) OR (abs:"Retrieval-Augmented Generation" OR abs:"Retrieval Augmented Generation")`

// DefaultKeywords decide whether a search hit is kept.
var DefaultKeywords = []string{"retrieval-augmented", "retrieval augmented", "rag", "retrieve", "generation"}

// DefaultConfig returns sensible defaults.
func DefaultConfig() *Config {
	return &Config{
		Paths: PathsConfig{
			DataDir:      "data",
			Raw:          "raw",
			Processed:    "processed",
			Slides:       "slides",
			Training:     "training",
			Logs:         "logs",
			Catalog:      "catalog.db",
			Requirements: "requirements.txt",
		},
		LLM: DefaultLLMConfig(),
		Fetch: FetchConfig{
			BaseURL:            "http://export.arxiv.org/api/query",
			Query:              DefaultQuery,
			MaxResults:         90,
			AdvancedMaxResults: 20,
			PageSize:           100,
			SortBy:             "relevance",
			SortOrder:          "descending",
			Keywords:           append([]string(nil), DefaultKeywords...),
			RequestInterval:    "3s",
			Timeout:            "60s",
			Concurrency:        4,
		},
		Processing: ProcessingConfig{
			MinParagraphLength: 50,
			MinSectionLength:   100,
			MaxHeadingLength:   100,
			ProgressEvery:      10,
			Workers:            2,
		},
		Training: DefaultTrainingConfig(),
		Logging: LoggingConfig{
			Level: "info",
		},
		Export: ExportConfig{
			Landscape: true,
			Timeout:   "60s",
		},
	}
}

// DefaultDir is the config directory used when CONFIG_DIR is unset.
const DefaultDir = "configs"

// Dir returns $CONFIG_DIR or DefaultDir.
func Dir() string {
	if dir := os.Getenv("CONFIG_DIR"); dir != "" {
		return dir
	}
	return DefaultDir
}

// Load builds a Config from the YAML files of dir (see Manager). A missing
// directory yields defaults; environment overrides are applied last.
func Load(dir string) (*Config, error) {
	cfg := DefaultConfig()

	mgr, err := NewManager(dir)
	switch {
	case errors.Is(err, ErrConfigDirNotFound):
		cfg.applyEnvOverrides()
		return cfg, nil
	case err != nil:
		return nil, err
	}

	if err := cfg.apply(mgr); err != nil {
		return nil, err
	}
	cfg.applyEnvOverrides()
	return cfg, nil
}

// LoadFile reads a single full config document.
func LoadFile(path string) (*Config, error) {
	cfg := DefaultConfig()

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			cfg.applyEnvOverrides()
			return cfg, nil
		}
		return nil, fmt.Errorf("failed to read config: %w", err)
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}
	cfg.applyEnvOverrides()
	return cfg, nil
}

// Save writes the config as a single YAML document.
func (c *Config) Save(path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}
	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}
	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("failed to write config: %w", err)
	}
	return nil
}

// apply maps the per-concern config files onto the typed sections.
//
//	paperslides.yaml        full document
//	model_config.yaml       llm (nested or legacy flat keys)
//	processing_config.yaml  processing, fetch, paths
//	training_config.yaml    training, paths.output_dir
func (c *Config) apply(m *Manager) error {
	all := m.All()

	if doc, ok := all["paperslides"]; ok {
		if err := decodeInto(doc, c); err != nil {
			return fmt.Errorf("paperslides config: %w", err)
		}
	}

	if doc, ok := all["model_config"]; ok {
		if llm, ok := doc["llm"]; ok {
			if err := decodeInto(llm, &c.LLM); err != nil {
				return fmt.Errorf("model_config.llm: %w", err)
			}
		}
		var legacy legacyModelConfig
		if err := decodeInto(doc, &legacy); err != nil {
			return fmt.Errorf("model_config: %w", err)
		}
		legacy.applyTo(&c.LLM)
	}

	if doc, ok := all["processing_config"]; ok {
		sections := []struct {
			key    string
			target any
		}{
			{"processing", &c.Processing},
			{"fetch", &c.Fetch},
			{"paths", &c.Paths},
		}
		for _, s := range sections {
			if v, ok := doc[s.key]; ok {
				if err := decodeInto(v, s.target); err != nil {
					return fmt.Errorf("processing_config.%s: %w", s.key, err)
				}
			}
		}
	}

	if doc, ok := all["training_config"]; ok {
		if v, ok := doc["training"]; ok {
			if err := decodeInto(v, &c.Training); err != nil {
				return fmt.Errorf("training_config.training: %w", err)
			}
		}
		if paths, ok := doc["paths"].(map[string]any); ok {
			if out, ok := paths["output_dir"].(string); ok && out != "" {
				c.Training.OutputDir = out
			}
		}
	}

	return nil
}

// decodeInto re-encodes a generic YAML value into a typed target, keeping
// fields the value does not mention.
func decodeInto(v any, target any) error {
	data, err := yaml.Marshal(v)
	if err != nil {
		return err
	}
	return yaml.Unmarshal(data, target)
}

func (c *Config) applyEnvOverrides() {
	for _, env := range []string{"GOOGLE_API_KEY", "GEMINI_API_KEY"} {
		if key := os.Getenv(env); key != "" {
			c.LLM.APIKey = key
			if c.LLM.Provider == "" {
				c.LLM.Provider = ProviderGemini
			}
		}
	}
	if host := os.Getenv("OLLAMA_HOST"); host != "" && !c.LLM.HasAPIKey() {
		c.LLM.Provider = ProviderOllama
		c.LLM.BaseURL = host
	}
	if model := os.Getenv("PAPERSLIDES_MODEL"); model != "" {
		c.LLM.Model = model
	}
	if dir := os.Getenv("PAPERSLIDES_DATA_DIR"); dir != "" {
		c.Paths.DataDir = dir
	}
	if level := os.Getenv("PAPERSLIDES_LOG_LEVEL"); level != "" {
		c.Logging.Level = level
	}
}

// Validate checks the configuration for errors.
func (c *Config) Validate() error {
	var errs []error

	if err := c.LLM.Validate(); err != nil {
		errs = append(errs, err)
	}
	if err := c.Training.Validate(); err != nil {
		errs = append(errs, err)
	}
	if c.Fetch.MaxResults <= 0 {
		errs = append(errs, fmt.Errorf("fetch.max_results must be positive"))
	}
	if c.Fetch.PageSize <= 0 || c.Fetch.PageSize > 2000 {
		errs = append(errs, fmt.Errorf("fetch.page_size must be between 1 and 2000"))
	}
	switch c.Fetch.SortBy {
	case "relevance", "lastUpdatedDate", "submittedDate":
	default:
		errs = append(errs, fmt.Errorf("fetch.sort_by %q is not supported", c.Fetch.SortBy))
	}
	switch c.Fetch.SortOrder {
	case "ascending", "descending":
	default:
		errs = append(errs, fmt.Errorf("fetch.sort_order %q is not supported", c.Fetch.SortOrder))
	}
	for name, value := range map[string]string{
		"fetch.request_interval": c.Fetch.RequestInterval,
		"fetch.timeout":          c.Fetch.Timeout,
		"export.timeout":         c.Export.Timeout,
	} {
		if _, err := time.ParseDuration(value); err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", name, err))
		}
	}
	switch strings.ToLower(c.Logging.Level) {
	case "debug", "info", "warn", "warning", "error":
	default:
		errs = append(errs, fmt.Errorf("logging.level %q is not supported", c.Logging.Level))
	}

	return errors.Join(errs...)
}

// GetFetchTimeout returns the arXiv HTTP timeout.
func (c *Config) GetFetchTimeout() time.Duration {
	return parseDurationOr(c.Fetch.Timeout, 60*time.Second)
}

// GetRequestInterval returns the minimum spacing between arXiv requests.
func (c *Config) GetRequestInterval() time.Duration {
	return parseDurationOr(c.Fetch.RequestInterval, 3*time.Second)
}

// GetExportTimeout returns the PDF export timeout.
func (c *Config) GetExportTimeout() time.Duration {
	return parseDurationOr(c.Export.Timeout, 60*time.Second)
}

func parseDurationOr(s string, fallback time.Duration) time.Duration {
	if d, err := time.ParseDuration(s); err == nil && d >= 0 {
		return d
	}
	return fallback
}
