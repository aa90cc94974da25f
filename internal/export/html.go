// Package export renders slide decks as standalone HTML and prints them to
// PDF through headless Chromium.
package export

import (
	"bytes"
	"fmt"
	"html/template"
	"os"
	"path/filepath"
	"strings"

	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/extension"

	"paperslides/internal/logging"
	"paperslides/internal/slides"
)

var markdown = goldmark.New(goldmark.WithExtensions(extension.GFM))

type htmlSlide struct {
	Number int
	Title  string
	Body   template.HTML
}

var page = template.Must(template.New("deck").Parse(`<!DOCTYPE html>
<html lang="en">
<head>
<meta charset="utf-8">
<title>{{.Title}}</title>
<style>
@page { size: 11in 8.5in; margin: 0; }
body { margin: 0; font-family: "Helvetica Neue", Arial, sans-serif; background: #fff; color: #222; }
section.slide { box-sizing: border-box; width: 11in; height: 8.5in; padding: 0.7in 0.9in; page-break-after: always; overflow: hidden; }
section.slide:last-child { page-break-after: auto; }
section.slide h2 { font-size: 30pt; margin: 0 0 0.35in; color: #1a3d6d; }
section.slide .number { float: right; font-size: 11pt; color: #888; }
section.slide li { font-size: 17pt; margin: 0.08in 0; }
section.slide p { font-size: 17pt; }
section.slide code { font-size: 14pt; }
</style>
</head>
<body>
{{range .Slides}}<section class="slide" id="slide-{{.Number}}">
<span class="number">{{.Number}}</span>
<h2>{{.Title}}</h2>
{{.Body}}
</section>
{{end}}</body>
</html>
`))

// HTML renders d as a standalone HTML document with one <section> per
// slide. A deck without slide headings becomes a single section.
func HTML(d *slides.Deck) ([]byte, error) {
	var data struct {
		Title  string
		Slides []htmlSlide
	}

	parsed := d.Slides
	if len(parsed) == 0 {
		parsed = []slides.Slide{{Number: 1, Title: deckTitle(d), Body: d.Markdown}}
	}
	for _, s := range parsed {
		var body bytes.Buffer
		if err := markdown.Convert([]byte(s.Body), &body); err != nil {
			return nil, fmt.Errorf("failed to render slide %d: %w", s.Number, err)
		}
		data.Slides = append(data.Slides, htmlSlide{
			Number: s.Number,
			Title:  s.Title,
			// goldmark drops raw HTML unless WithUnsafe is set
			Body: template.HTML(body.String()),
		})
	}
	data.Title = deckTitle(d)
	if len(d.Slides) > 0 && d.Slides[0].Title != "" {
		data.Title = d.Slides[0].Title
	}

	var out bytes.Buffer
	if err := page.Execute(&out, data); err != nil {
		return nil, fmt.Errorf("failed to render deck: %w", err)
	}
	return out.Bytes(), nil
}

func deckTitle(d *slides.Deck) string {
	if d.Path != "" {
		return strings.TrimSuffix(filepath.Base(d.Path), filepath.Ext(d.Path))
	}
	return "Slides"
}

// WriteHTML renders d to path.
func WriteHTML(d *slides.Deck, path string) error {
	data, err := HTML(d)
	if err != nil {
		return err
	}
	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("failed to write %s: %w", path, err)
	}
	logging.Get(logging.CategoryExport).Info("Wrote %s (%d slides)", path, len(d.Slides))
	return nil
}

// OutputPath swaps the deck extension for ext (".html", ".pdf").
func OutputPath(deckPath, ext string) string {
	return strings.TrimSuffix(deckPath, filepath.Ext(deckPath)) + ext
}
