package main

import (
	"errors"
	"fmt"
	"path/filepath"
	"sort"

	"github.com/spf13/cobra"

	"paperslides/internal/catalog"
	"paperslides/internal/logging"
	"paperslides/internal/paper"
	"paperslides/internal/pipeline"
)

var extractAll bool

var singleCmd = &cobra.Command{
	Use:   "single <file.pdf>",
	Short: "Process one PDF and generate its slide deck",
	Long: `Extracts and structures one PDF from the raw directory (or a path), saves
the processed JSON and text dump, then generates a slide deck from it.`,
	Args: cobra.ExactArgs(1),
	RunE: runSingle,
}

var allCmd = &cobra.Command{
	Use:   "all",
	Short: "Process every raw PDF and generate slide decks",
	Args:  cobra.NoArgs,
	RunE:  runAll,
}

var extractCmd = &cobra.Command{
	Use:   "extract [file.pdf]",
	Short: "Extract and structure PDFs without generating slides",
	Args:  cobra.MaximumNArgs(1),
	RunE:  runExtract,
}

var slidesCmd = &cobra.Command{
	Use:   "slides <processed.json>",
	Short: "Generate a slide deck from a processed paper",
	Args:  cobra.ExactArgs(1),
	RunE:  runSlides,
}

func init() {
	extractCmd.Flags().BoolVar(&extractAll, "all", false, "Extract every PDF in the raw directory")
}

func runSingle(cmd *cobra.Command, args []string) error {
	ctx, cancel := commandContext(cmd)
	defer cancel()
	out := cmd.OutOrStdout()

	return withCatalog(func(store *catalog.Store) error {
		p, err := newPipeline(ctx, store)
		if err != nil {
			return err
		}
		res, err := p.ProcessOne(ctx, p.Resolve(args[0]))
		if err != nil {
			var missing *pipeline.MissingPDFError
			if errors.As(err, &missing) && len(missing.Available) > 0 {
				failure(out, "%s not found", missing.Path)
				fmt.Fprintln(out, mutedStyle.Render("available PDFs:"))
				for _, f := range missing.Available {
					fmt.Fprintln(out, "  "+f)
				}
			}
			return err
		}
		printResult(cmd, res)
		return nil
	})
}

func printResult(cmd *cobra.Command, res *pipeline.Result) {
	out := cmd.OutOrStdout()
	success(out, "%s", filepath.Base(res.PDF))
	field(out, "  Processed", res.Processed)
	field(out, "  Deck", fmt.Sprintf("%s (%d slides)", res.Deck, res.Slides))
}

func runAll(cmd *cobra.Command, args []string) error {
	ctx, cancel := commandContext(cmd)
	defer cancel()
	out := cmd.OutOrStdout()

	return withCatalog(func(store *catalog.Store) error {
		p, err := newPipeline(ctx, store)
		if err != nil {
			return err
		}
		results, err := p.ProcessAll(ctx)
		if errors.Is(err, pipeline.ErrNoPDFs) {
			warn(out, "No PDFs in %s; run `paperslides fetch` first", cfg.Paths.RawDir())
			return nil
		}
		heading(out, fmt.Sprintf("Generated %d decks", len(results)))
		for _, r := range results {
			printResult(cmd, r)
		}
		return err
	})
}

func runExtract(cmd *cobra.Command, args []string) error {
	ctx, cancel := commandContext(cmd)
	defer cancel()
	out := cmd.OutOrStdout()
	proc := newProcessor()
	processedDir := cfg.Paths.ProcessedDir()

	return withCatalog(func(store *catalog.Store) error {
		if extractAll || len(args) == 0 {
			summary, err := proc.ProcessAll(ctx, cfg.Paths.RawDir(), processedDir)
			if errors.Is(err, paper.ErrNoPDFs) {
				warn(out, "No PDFs in %s", cfg.Paths.RawDir())
				return nil
			}
			if summary == nil {
				return err
			}
			heading(out, fmt.Sprintf("Processed %d/%d files", summary.SuccessfulFiles, summary.TotalFiles))
			names := make([]string, 0, len(summary.Outputs))
			for name := range summary.Outputs {
				names = append(names, name)
			}
			sort.Strings(names)
			for _, name := range names {
				success(out, "%s -> %s", name, summary.Outputs[name])
				if store != nil {
					recordProcessed(cmd, store, summary.Outputs[name])
				}
			}
			for name, ferr := range summary.Failures {
				failure(out, "%s: %v", name, ferr)
			}
			return err
		}

		path := args[0]
		if filepath.Base(path) == path {
			path = filepath.Join(cfg.Paths.RawDir(), path)
		}
		pp, err := proc.Process(ctx, path)
		if err != nil {
			return err
		}
		jsonPath, err := paper.Save(pp, processedDir)
		if err != nil {
			return err
		}
		if store != nil {
			if err := store.RecordProcessed(ctx, pp, jsonPath); err != nil {
				logging.Get(logging.CategoryStore).Warn("Failed to record %s: %v", pp.SourceFile, err)
			}
		}
		success(out, "%s -> %s", pp.SourceFile, jsonPath)
		field(out, "  Title", pp.Metadata.Title)
		field(out, "  Sections", pp.Statistics.SectionCount)
		field(out, "  Paragraphs", pp.Statistics.ParagraphCount)
		return nil
	})
}

func recordProcessed(cmd *cobra.Command, store *catalog.Store, jsonPath string) {
	pp, err := paper.Load(jsonPath)
	if err == nil {
		err = store.RecordProcessed(cmd.Context(), pp, jsonPath)
	}
	if err != nil {
		logging.Get(logging.CategoryStore).Warn("Failed to record %s: %v", jsonPath, err)
	}
}

func runSlides(cmd *cobra.Command, args []string) error {
	ctx, cancel := commandContext(cmd)
	defer cancel()

	path := args[0]
	if filepath.Base(path) == path {
		path = filepath.Join(cfg.Paths.ProcessedDir(), path)
	}
	return withCatalog(func(store *catalog.Store) error {
		gen, err := newGenerator(ctx, store)
		if err != nil {
			return err
		}
		deck, err := gen.GenerateFromFile(ctx, path)
		if err != nil {
			return err
		}
		success(cmd.OutOrStdout(), "Slides saved to %s", deck)
		return nil
	})
}
