package prompt

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"

	"paperslides/internal/paper"
)

func TestBuildSlidesPrompt(t *testing.T) {
	pp := &paper.ProcessedPaper{
		SourceFile: "2104.05740v1.pdf",
		Metadata:   paper.Metadata{Title: "Dense Passage Retrieval", Abstract: "We retrieve."},
		Sections: []paper.Section{
			{Title: "1.  Introduction\n", Content: "Intro text."},
			{Title: "RELATED WORK", Content: "Related text."},
		},
	}
	got := BuildSlidesPrompt(pp)

	assert.True(t, strings.HasPrefix(got, "# Instruction: turn an academic paper into a slide deck"))
	assert.True(t, strings.HasSuffix(got, "Start the Markdown slide deck here:"))
	assert.Contains(t, got, "between 8 and 12 slides")
	assert.Contains(t, got, "`## Slide X: [Slide title]`")
	assert.Contains(t, got, "Title: Dense Passage Retrieval\n\nAbstract: We retrieve.\n\n--- Main Content ---\n\n## 1. Introduction\n\nIntro text.\n\n## RELATED WORK\n\nRelated text.\n")

	intro := strings.Index(got, "## 1. Introduction")
	related := strings.Index(got, "## RELATED WORK")
	assert.Less(t, intro, related, "sections keep their order")
}

func TestBuildSlidesPromptMissingMetadata(t *testing.T) {
	got := BuildSlidesPrompt(&paper.ProcessedPaper{})
	assert.Contains(t, got, "Title: N/A\n\nAbstract: N/A")
	assert.NotContains(t, got, "--- Main Content ---")
}

func TestFormatTrainingExample(t *testing.T) {
	assert.Equal(t, "<s>[INST] make slides [/INST] ## Slide 1: Title </s>",
		FormatTrainingExample("make slides", "## Slide 1: Title"))
}
