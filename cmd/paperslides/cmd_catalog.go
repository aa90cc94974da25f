package main

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"paperslides/internal/catalog"
)

var (
	catalogSource string
	catalogLimit  int
)

var catalogCmd = &cobra.Command{
	Use:   "catalog",
	Short: "Query the local paper and deck catalog",
}

var catalogPapersCmd = &cobra.Command{
	Use:   "papers",
	Short: "List fetched papers",
	Args:  cobra.NoArgs,
	RunE:  runCatalogPapers,
}

var catalogDecksCmd = &cobra.Command{
	Use:   "decks",
	Short: "List generated decks",
	Args:  cobra.NoArgs,
	RunE:  runCatalogDecks,
}

var catalogRunsCmd = &cobra.Command{
	Use:   "runs",
	Short: "List pipeline and finetuning runs",
	Args:  cobra.NoArgs,
	RunE:  runCatalogRuns,
}

var catalogStatsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Show catalog row counts",
	Args:  cobra.NoArgs,
	RunE:  runCatalogStats,
}

func init() {
	catalogDecksCmd.Flags().StringVar(&catalogSource, "source", "", "Only decks generated from this PDF")
	catalogRunsCmd.Flags().IntVar(&catalogLimit, "limit", 20, "Maximum runs to list")

	catalogCmd.AddCommand(catalogPapersCmd)
	catalogCmd.AddCommand(catalogDecksCmd)
	catalogCmd.AddCommand(catalogRunsCmd)
	catalogCmd.AddCommand(catalogStatsCmd)
}

// requireCatalog opens the catalog; unlike withCatalog a failure is fatal.
func requireCatalog(fn func(store *catalog.Store) error) error {
	store, err := openCatalog()
	if err != nil {
		return err
	}
	defer store.Close()
	return fn(store)
}

func runCatalogPapers(cmd *cobra.Command, args []string) error {
	return requireCatalog(func(store *catalog.Store) error {
		papers, err := store.Papers(cmd.Context())
		if err != nil {
			return err
		}
		out := cmd.OutOrStdout()
		heading(out, fmt.Sprintf("%d papers", len(papers)))
		for _, p := range papers {
			local := mutedStyle.Render("not downloaded")
			if p.LocalPath != "" {
				local = p.LocalPath
			}
			fmt.Fprintf(out, "%-16s %s\n", p.ShortID, p.Title)
			fmt.Fprintf(out, "%-16s %s\n", "", mutedStyle.Render(strings.Join(p.Authors, ", ")))
			fmt.Fprintf(out, "%-16s %s\n", "", local)
		}
		return nil
	})
}

func runCatalogDecks(cmd *cobra.Command, args []string) error {
	return requireCatalog(func(store *catalog.Store) error {
		decks, err := store.Decks(cmd.Context(), catalogSource)
		if err != nil {
			return err
		}
		out := cmd.OutOrStdout()
		heading(out, fmt.Sprintf("%d decks", len(decks)))
		for _, d := range decks {
			fmt.Fprintf(out, "%s  %-24s %2d slides  %s  %s\n",
				mutedStyle.Render(d.CreatedAt), d.SourceFile, d.Slides, d.Model, d.Path)
		}
		return nil
	})
}

func runCatalogRuns(cmd *cobra.Command, args []string) error {
	return requireCatalog(func(store *catalog.Store) error {
		runs, err := store.Runs(cmd.Context(), catalogLimit)
		if err != nil {
			return err
		}
		out := cmd.OutOrStdout()
		for _, r := range runs {
			status := r.Status
			switch status {
			case catalog.RunSucceeded:
				status = okStyle.Render(status)
			case catalog.RunFailed:
				status = errStyle.Render(status)
			default:
				status = warnStyle.Render(status)
			}
			fmt.Fprintf(out, "%s  %-9s %-10s %s\n", mutedStyle.Render(r.StartedAt), r.Kind, status, r.Detail)
		}
		return nil
	})
}

func runCatalogStats(cmd *cobra.Command, args []string) error {
	return requireCatalog(func(store *catalog.Store) error {
		st, err := store.Stats(cmd.Context())
		if err != nil {
			return err
		}
		out := cmd.OutOrStdout()
		heading(out, "Catalog")
		field(out, "Path", store.Path())
		field(out, "Schema version", store.SchemaVersion())
		field(out, "Papers", st.Papers)
		field(out, "Processed", st.Processed)
		field(out, "Decks", st.Decks)
		field(out, "Runs", fmt.Sprintf("%d (%d failed)", st.Runs, st.FailedRuns))
		return nil
	})
}
