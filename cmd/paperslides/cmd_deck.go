package main

import (
	"fmt"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"

	"paperslides/internal/export"
	"paperslides/internal/slides"
)

var (
	previewWidth int
	exportHTML   bool
	exportPDF    bool
)

var previewCmd = &cobra.Command{
	Use:   "preview <deck.md | paper>",
	Short: "Render a slide deck in the terminal",
	Long: `Renders a deck with glamour. Given a paper name instead of a deck file,
the most recent deck generated for that paper is shown.`,
	Args: cobra.ExactArgs(1),
	RunE: runPreview,
}

var exportCmd = &cobra.Command{
	Use:   "export <deck.md | paper>",
	Short: "Export a slide deck to HTML and/or PDF",
	Long: `Writes <deck>.html with one section per slide. With --pdf the HTML is
printed to <deck>.pdf through headless Chromium (export.browser_bin, or a
browser located or downloaded by rod).`,
	Args: cobra.ExactArgs(1),
	RunE: runExport,
}

func init() {
	previewCmd.Flags().IntVar(&previewWidth, "width", 100, "Word wrap width")
	exportCmd.Flags().BoolVar(&exportHTML, "html", false, "Write HTML")
	exportCmd.Flags().BoolVar(&exportPDF, "pdf", false, "Write PDF")
}

// resolveDeck accepts a deck path, a deck file name in the slides
// directory, or a paper name whose latest deck is used.
func resolveDeck(arg string) (string, error) {
	if strings.EqualFold(filepath.Ext(arg), ".md") {
		if filepath.Base(arg) == arg {
			return filepath.Join(cfg.Paths.SlidesDir(), arg), nil
		}
		return arg, nil
	}
	stem := strings.TrimSuffix(filepath.Base(arg), filepath.Ext(arg))
	path, err := slides.LatestDeck(cfg.Paths.SlidesDir(), stem)
	if err != nil {
		return "", err
	}
	if path == "" {
		return "", fmt.Errorf("no deck found for %s in %s", stem, cfg.Paths.SlidesDir())
	}
	return path, nil
}

func runPreview(cmd *cobra.Command, args []string) error {
	path, err := resolveDeck(args[0])
	if err != nil {
		return err
	}
	deck, err := slides.LoadDeck(path)
	if err != nil {
		return err
	}
	out := cmd.OutOrStdout()
	rendered, err := slides.Render(deck.Markdown, previewWidth)
	if err != nil {
		return err
	}
	fmt.Fprint(out, rendered)
	fmt.Fprintln(out, mutedStyle.Render(fmt.Sprintf("%s · %d slides", path, len(deck.Slides))))
	for _, p := range deck.Check() {
		warn(out, "%s", p)
	}
	return nil
}

func runExport(cmd *cobra.Command, args []string) error {
	ctx, cancel := commandContext(cmd)
	defer cancel()
	out := cmd.OutOrStdout()

	path, err := resolveDeck(args[0])
	if err != nil {
		return err
	}
	deck, err := slides.LoadDeck(path)
	if err != nil {
		return err
	}
	if !exportHTML && !exportPDF {
		exportHTML = true
	}

	if exportHTML {
		target := export.OutputPath(path, ".html")
		if err := export.WriteHTML(deck, target); err != nil {
			return err
		}
		success(out, "HTML written to %s", target)
	}
	if exportPDF {
		printer := export.NewPrinter(export.PrinterConfig{
			BrowserBin: cfg.Export.BrowserBin,
			Landscape:  cfg.Export.Landscape,
			Timeout:    cfg.GetExportTimeout(),
		})
		defer printer.Shutdown()

		target := export.OutputPath(path, ".pdf")
		if err := printer.WritePDF(ctx, deck, target); err != nil {
			return err
		}
		success(out, "PDF written to %s", target)
	}
	return nil
}
