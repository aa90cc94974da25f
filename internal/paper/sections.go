package paper

import (
	"regexp"
	"sort"
	"strings"
	"unicode/utf8"
)

// PreambleTitle names the text before the first recognised heading.
const PreambleTitle = "Preamble"

// Section is a titled span of the paper. Content includes the heading line.
type Section struct {
	Title   string `json:"title"`
	Content string `json:"content"`
}

// SectionOptions tunes SplitSections.
type SectionOptions struct {
	// MaxHeadingLength rejects heading candidates this long or longer.
	MaxHeadingLength int
	// MinContentLength drops sections whose content is not longer than this.
	MinContentLength int
}

// DefaultSectionOptions returns the 100/100 character limits.
func DefaultSectionOptions() SectionOptions {
	return SectionOptions{MaxHeadingLength: 100, MinContentLength: 100}
}

// Heading patterns in priority order. When several match the same line the
// first one names the section.
var headingPatterns = []*regexp.Regexp{
	regexp.MustCompile(`^\d+\.?\s+[A-Z][^.\n]*$`), // 1. Introduction
	regexp.MustCompile(`^[A-Z][A-Z\s]{2,}$`),      // RELATED WORK
	regexp.MustCompile(`(?i)^(Abstract|Introduction|Related Work|Methodology|Experiments|Results|Conclusion|References)$`),
}

type sectionBreak struct {
	offset int
	title  string
}

// SplitSections splits cleaned text at heading lines using
// DefaultSectionOptions.
func SplitSections(text string) []Section {
	return SplitSectionsWith(text, DefaultSectionOptions())
}

// SplitSectionsWith splits cleaned text at heading lines: numbered headings,
// all-caps lines and well-known section names. Text before the first
// heading forms a Preamble section.
func SplitSectionsWith(text string, opts SectionOptions) []Section {
	breaks := []sectionBreak{{offset: 0, title: PreambleTitle}}

	offset := 0
	for _, line := range strings.SplitAfter(text, "\n") {
		start := offset
		offset += len(line)

		heading := strings.TrimSpace(line)
		if heading == "" || utf8.RuneCountInString(heading) >= opts.MaxHeadingLength {
			continue
		}
		for _, re := range headingPatterns {
			if !re.MatchString(heading) {
				continue
			}
			if start == 0 {
				breaks[0].title = heading
			} else {
				breaks = append(breaks, sectionBreak{offset: start, title: heading})
			}
			break
		}
	}
	sort.SliceStable(breaks, func(i, j int) bool { return breaks[i].offset < breaks[j].offset })

	var sections []Section
	for i, b := range breaks {
		end := len(text)
		if i+1 < len(breaks) {
			end = breaks[i+1].offset
		}
		content := strings.TrimSpace(text[b.offset:end])
		if utf8.RuneCountInString(content) <= opts.MinContentLength {
			continue
		}
		sections = append(sections, Section{Title: b.title, Content: content})
	}
	return sections
}
