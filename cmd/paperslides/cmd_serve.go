package main

import (
	"context"
	"time"

	"github.com/spf13/cobra"

	"paperslides/internal/arxiv"
	"paperslides/internal/catalog"
	"paperslides/internal/logging"
	"paperslides/internal/mcpserver"
	"paperslides/internal/watch"
)

var (
	watchDebounce time.Duration
	watchNoScan   bool
)

var watchCmd = &cobra.Command{
	Use:   "watch",
	Short: "Process PDFs as they appear in the raw directory",
	Long: `Watches the raw directory and runs every new PDF through extraction and
slide generation once it has stopped changing. PDFs already present are
processed first unless --no-scan is given. Runs until interrupted.`,
	Args: cobra.NoArgs,
	RunE: runWatch,
}

var mcpCmd = &cobra.Command{
	Use:   "mcp",
	Short: "Serve the pipeline as MCP tools over stdio",
	Args:  cobra.NoArgs,
	RunE:  runMCP,
}

func init() {
	watchCmd.Flags().DurationVar(&watchDebounce, "debounce", watch.DefaultDebounce, "Quiet period before a PDF is processed")
	watchCmd.Flags().BoolVar(&watchNoScan, "no-scan", false, "Skip PDFs already in the directory")
}

func runWatch(cmd *cobra.Command, args []string) error {
	// watch runs until interrupted; --timeout does not apply
	ctx := cmd.Context()
	out := cmd.OutOrStdout()

	return withCatalog(func(store *catalog.Store) error {
		p, err := newPipeline(ctx, store)
		if err != nil {
			return err
		}
		w, err := watch.New(cfg.Paths.RawDir(), func(ctx context.Context, path string) error {
			res, err := p.ProcessOne(ctx, path)
			if err != nil {
				failure(out, "%s: %v", path, err)
				return err
			}
			printResult(cmd, res)
			return nil
		})
		if err != nil {
			return err
		}
		w.SetDebounce(watchDebounce)

		defer w.Stop()
		if err := w.Start(ctx); err != nil {
			return err
		}
		if !watchNoScan {
			if err := w.Scan(ctx); err != nil {
				logging.Get(logging.CategoryWatch).Warn("Initial scan failed: %v", err)
			}
		}
		success(out, "Watching %s (Ctrl+C to stop)", cfg.Paths.RawDir())

		select {
		case <-ctx.Done():
		case <-w.Done():
		}
		st := w.Stats()
		field(out, "Handled", st.Handled)
		field(out, "Failed", st.Failed)
		return nil
	})
}

func runMCP(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	store, err := openCatalog()
	if err != nil {
		return err
	}
	defer store.Close()

	p, err := newPipeline(ctx, store)
	if err != nil {
		return err
	}
	gen, err := newGenerator(ctx, store)
	if err != nil {
		return err
	}
	_, manifestPath, err := loadManifest()
	if err != nil {
		return err
	}
	srv := mcpserver.New(mcpserver.Deps{
		Searcher:     newArxivClient(),
		Processor:    p,
		Generator:    gen,
		Catalog:      store,
		ProcessedDir: cfg.Paths.ProcessedDir(),
		Manifest:     manifestPath,
	})
	return srv.ServeStdio()
}

func newArxivClient() *arxiv.Client {
	return arxiv.NewClient(arxiv.ClientConfig{
		BaseURL:     cfg.Fetch.BaseURL,
		Timeout:     cfg.GetFetchTimeout(),
		MinInterval: cfg.GetRequestInterval(),
		MaxRetries:  3,
		PageSize:    cfg.Fetch.PageSize,
	})
}
