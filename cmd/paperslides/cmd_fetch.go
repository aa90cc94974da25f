package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"paperslides/internal/arxiv"
	"paperslides/internal/catalog"
)

var (
	fetchQuery       string
	fetchMax         int
	fetchAdvanced    bool
	fetchInteractive bool
)

var fetchCmd = &cobra.Command{
	Use:   "fetch",
	Short: "Search arXiv and download relevant paper PDFs",
	Long: `Searches arXiv, keeps papers whose title or abstract mentions a configured
keyword, and downloads their PDFs into the raw directory. PDFs already on
disk are not downloaded again.

  --advanced     run every built-in search strategy with a share of --max
  --interactive  choose the strategies to run from a checklist`,
	RunE: runFetch,
}

func init() {
	fetchCmd.Flags().StringVar(&fetchQuery, "query", "", "arXiv search query (default: fetch.query)")
	fetchCmd.Flags().IntVar(&fetchMax, "max", 0, "Maximum results (default: fetch.max_results)")
	fetchCmd.Flags().BoolVar(&fetchAdvanced, "advanced", false, "Run all built-in search strategies")
	fetchCmd.Flags().BoolVarP(&fetchInteractive, "interactive", "i", false, "Pick search strategies interactively")
	fetchCmd.MarkFlagsMutuallyExclusive("query", "advanced")
	fetchCmd.MarkFlagsMutuallyExclusive("query", "interactive")
}

func newFetcher(store *catalog.Store) *arxiv.Fetcher {
	var rec arxiv.Recorder
	if store != nil {
		rec = store
	}
	return arxiv.NewFetcher(newArxivClient(), arxiv.NewFilter(cfg.Fetch.Keywords), rec, cfg.Fetch.Concurrency)
}

func runFetch(cmd *cobra.Command, args []string) error {
	ctx, cancel := commandContext(cmd)
	defer cancel()
	out := cmd.OutOrStdout()
	dir := cfg.Paths.RawDir()

	return withCatalog(func(store *catalog.Store) error {
		f := newFetcher(store)

		var (
			report *arxiv.FetchReport
			err    error
		)
		switch {
		case fetchInteractive:
			queries, ok, perr := pickStrategies(arxiv.AdvancedStrategies)
			if perr != nil {
				return perr
			}
			if !ok || len(queries) == 0 {
				warn(out, "No strategies selected")
				return nil
			}
			report, err = f.FetchStrategies(ctx, queries, orDefault(fetchMax, cfg.Fetch.AdvancedMaxResults*len(queries)), dir)
		case fetchAdvanced:
			n := orDefault(fetchMax, cfg.Fetch.AdvancedMaxResults*len(arxiv.AdvancedStrategies))
			report, err = f.FetchAdvanced(ctx, n, dir)
		default:
			report, err = f.Fetch(ctx, arxiv.FetchOptions{
				Query:      orDefault(fetchQuery, cfg.Fetch.Query),
				MaxResults: orDefault(fetchMax, cfg.Fetch.MaxResults),
				SortBy:     cfg.Fetch.SortBy,
				SortOrder:  cfg.Fetch.SortOrder,
				Dir:        dir,
			})
		}
		if report != nil {
			printFetchReport(cmd, report, dir)
		}
		return err
	})
}

func printFetchReport(cmd *cobra.Command, r *arxiv.FetchReport, dir string) {
	out := cmd.OutOrStdout()
	heading(out, "arXiv fetch")
	field(out, "Queries", len(r.Queries))
	field(out, "Found", r.Found)
	field(out, "Relevant", r.Relevant)
	field(out, "Downloaded", fmt.Sprintf("%d (%d already present)", r.Downloaded, r.Skipped))
	field(out, "Irrelevant", r.Irrelevant)
	field(out, "Directory", dir)
	if r.Failed > 0 {
		warn(out, "%d downloads failed", r.Failed)
	}
	if r.FailedStrategies > 0 {
		warn(out, "%d search strategies failed", r.FailedStrategies)
	}
}

func orDefault[T comparable](v, def T) T {
	var zero T
	if v == zero {
		return def
	}
	return v
}
