package arxiv

import "strings"

// DefaultKeywords mark a paper as related to retrieval-augmented generation.
var DefaultKeywords = []string{"retrieval-augmented", "retrieval augmented", "rag", "retrieve", "generation"}

// Filter keeps papers whose title or summary mentions any keyword.
// Matching is case-insensitive substring matching.
type Filter struct {
	keywords []string
}

// NewFilter builds a filter; no keywords means DefaultKeywords.
func NewFilter(keywords []string) *Filter {
	if len(keywords) == 0 {
		keywords = DefaultKeywords
	}
	lower := make([]string, 0, len(keywords))
	for _, k := range keywords {
		if k = strings.ToLower(strings.TrimSpace(k)); k != "" {
			lower = append(lower, k)
		}
	}
	return &Filter{keywords: lower}
}

// Relevant reports whether p matches.
func (f *Filter) Relevant(p Paper) bool {
	title := strings.ToLower(p.Title)
	summary := strings.ToLower(p.Summary)
	for _, k := range f.keywords {
		if strings.Contains(title, k) || strings.Contains(summary, k) {
			return true
		}
	}
	return false
}
