// Package prompt builds the slide-generation prompt and the finetuning
// example format.
package prompt

import (
	"bytes"
	"embed"
	"fmt"
	"strings"
	"text/template"

	"paperslides/internal/logging"
	"paperslides/internal/paper"
)

//go:embed templates/*.tmpl
var templates embed.FS

var slidesTemplate = template.Must(template.ParseFS(templates, "templates/slides.md.tmpl"))

// Slide count bounds given to the model and checked on generated decks.
const (
	MinSlides = 8
	MaxSlides = 12
)

// Missing stands in for absent metadata.
const Missing = "N/A"

type slidesData struct {
	MinSlides, MaxSlides int
	Title, Abstract      string
	Sections             []paper.Section
}

// BuildSlidesPrompt renders the instruction prompt for pp: role, task and
// format rules followed by title, abstract and every section.
func BuildSlidesPrompt(pp *paper.ProcessedPaper) string {
	data := slidesData{
		MinSlides: MinSlides,
		MaxSlides: MaxSlides,
		Title:     orMissing(pp.Metadata.Title),
		Abstract:  orMissing(pp.Metadata.Abstract),
	}
	for _, s := range pp.Sections {
		title := strings.Join(strings.Fields(s.Title), " ")
		if title == "" {
			title = "Unnamed Section"
		}
		data.Sections = append(data.Sections, paper.Section{Title: title, Content: s.Content})
	}

	var buf bytes.Buffer
	if err := slidesTemplate.Execute(&buf, data); err != nil {
		// The template is static; a failure here is a programming error.
		panic(fmt.Sprintf("slides prompt template: %v", err))
	}
	out := strings.TrimSpace(buf.String())
	logging.Get(logging.CategoryPrompt).Debug("Built slides prompt for %s (%d chars, %d sections)", pp.SourceFile, len(out), len(data.Sections))
	return out
}

// FormatTrainingExample wraps a prompt/completion pair in the instruction
// format used for supervised finetuning.
func FormatTrainingExample(prompt, completion string) string {
	return fmt.Sprintf("<s>[INST] %s [/INST] %s </s>", prompt, completion)
}

func orMissing(s string) string {
	if strings.TrimSpace(s) == "" {
		return Missing
	}
	return s
}
