// Command paperslides fetches arXiv papers, turns them into Markdown slide
// decks with an LLM, and prepares finetuning datasets from the results.
package main

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/charmbracelet/fang"
	"github.com/spf13/cobra"

	"paperslides/internal/catalog"
	"paperslides/internal/config"
	"paperslides/internal/llm"
	"paperslides/internal/logging"
	"paperslides/internal/paper"
	"paperslides/internal/pdftext"
	"paperslides/internal/pipeline"
	"paperslides/internal/slides"
)

// Version is set at build time.
var Version = "dev"

var (
	// Global flags
	configDir string
	dataDir   string
	verbose   bool
	timeout   time.Duration

	cfg *config.Config
)

var rootCmd = &cobra.Command{
	Use:   "paperslides",
	Short: "Turn arXiv papers into slide decks and finetuning data",
	Long: `paperslides fetches retrieval-augmented-generation papers from arXiv,
extracts and structures their text, asks an LLM for a Markdown slide deck
per paper, and pairs papers with decks into a JSONL finetuning dataset.

Typical flow:
  paperslides fetch
  paperslides all
  paperslides dataset
  paperslides finetune plan`,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		var err error
		cfg, err = config.Load(configDir)
		if err != nil {
			return fmt.Errorf("failed to load config: %w", err)
		}
		if dataDir != "" {
			cfg.Paths.DataDir = dataDir
		}
		if verbose {
			cfg.Logging.Level = "debug"
		}
		if err := cfg.Validate(); err != nil {
			return err
		}
		return logging.Initialize(logging.Options{
			Level:      cfg.Logging.Level,
			DebugMode:  cfg.Logging.DebugMode,
			JSONFormat: cfg.Logging.JSONFormat,
			Categories: cfg.Logging.Categories,
			LogsDir:    cfg.Paths.LogsDir(),
		})
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		logging.CloseAll()
	},
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configDir, "config-dir", config.Dir(), "Directory of YAML config files (env CONFIG_DIR)")
	rootCmd.PersistentFlags().StringVar(&dataDir, "data-dir", "", "Data directory (overrides paths.data_dir)")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Enable debug logging")
	rootCmd.PersistentFlags().DurationVar(&timeout, "timeout", 30*time.Minute, "Overall operation timeout (0 disables)")

	rootCmd.AddCommand(fetchCmd)
	rootCmd.AddCommand(singleCmd)
	rootCmd.AddCommand(allCmd)
	rootCmd.AddCommand(extractCmd)
	rootCmd.AddCommand(slidesCmd)
	rootCmd.AddCommand(datasetCmd)
	rootCmd.AddCommand(finetuneCmd)
	rootCmd.AddCommand(depsCmd)
	rootCmd.AddCommand(configCmd)
	rootCmd.AddCommand(catalogCmd)
	rootCmd.AddCommand(previewCmd)
	rootCmd.AddCommand(exportCmd)
	rootCmd.AddCommand(watchCmd)
	rootCmd.AddCommand(mcpCmd)
}

func main() {
	if err := fang.Execute(
		context.Background(),
		rootCmd,
		fang.WithVersion(Version),
		fang.WithNotifySignal(os.Interrupt),
	); err != nil {
		os.Exit(1)
	}
}

// commandContext applies --timeout to the command's context.
func commandContext(cmd *cobra.Command) (context.Context, context.CancelFunc) {
	if timeout <= 0 {
		return context.WithCancel(cmd.Context())
	}
	return context.WithTimeout(cmd.Context(), timeout)
}

// openCatalog opens the SQLite catalog, creating its directory.
func openCatalog() (*catalog.Store, error) {
	path := cfg.Paths.CatalogPath()
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return nil, fmt.Errorf("failed to create catalog directory: %w", err)
	}
	return catalog.Open(path)
}

func newProcessor() *paper.Processor {
	opts := paper.DefaultOptions()
	if cfg.Processing.MinParagraphLength > 0 {
		opts.MinParagraphLength = cfg.Processing.MinParagraphLength
	}
	if cfg.Processing.MinSectionLength > 0 {
		opts.Sections.MinContentLength = cfg.Processing.MinSectionLength
	}
	if cfg.Processing.MaxHeadingLength > 0 {
		opts.Sections.MaxHeadingLength = cfg.Processing.MaxHeadingLength
	}
	if cfg.Processing.Workers > 0 {
		opts.Workers = cfg.Processing.Workers
	}
	return paper.NewProcessor(pdftext.New(), opts)
}

func newGenerator(ctx context.Context, store *catalog.Store) (*slides.Generator, error) {
	client, err := llm.NewClient(ctx, cfg.LLM)
	if err != nil {
		return nil, err
	}
	var rec slides.Recorder
	if store != nil {
		rec = store
	}
	return slides.NewGenerator(client, cfg.Paths.SlidesDir(), rec), nil
}

func newPipeline(ctx context.Context, store *catalog.Store) (*pipeline.Pipeline, error) {
	gen, err := newGenerator(ctx, store)
	if err != nil {
		return nil, err
	}
	var cat pipeline.Catalog
	if store != nil {
		cat = store
	}
	return pipeline.New(cfg.Paths.RawDir(), cfg.Paths.ProcessedDir(), newProcessor(), gen, cat, cfg.Processing.Workers), nil
}

// withCatalog opens the catalog for fn. A catalog that cannot be opened is
// logged and fn runs without it.
func withCatalog(fn func(store *catalog.Store) error) error {
	store, err := openCatalog()
	if err != nil {
		logging.Get(logging.CategoryStore).Warn("Catalog unavailable: %v", err)
		return fn(nil)
	}
	defer store.Close()
	return fn(store)
}
