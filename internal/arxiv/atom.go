package arxiv

import (
	"encoding/xml"
	"fmt"
	"strings"
	"time"
)

// feed mirrors the subset of the arXiv Atom response we use. Elements are
// matched by local name; the opensearch and arxiv namespaces do not collide.
type feed struct {
	XMLName      xml.Name `xml:"feed"`
	TotalResults int      `xml:"totalResults"`
	StartIndex   int      `xml:"startIndex"`
	Entries      []entry  `xml:"entry"`
}

type entry struct {
	ID              string     `xml:"id"`
	Updated         string     `xml:"updated"`
	Published       string     `xml:"published"`
	Title           string     `xml:"title"`
	Summary         string     `xml:"summary"`
	Authors         []author   `xml:"author"`
	DOI             string     `xml:"doi"`
	Comment         string     `xml:"comment"`
	JournalRef      string     `xml:"journal_ref"`
	Links           []link     `xml:"link"`
	PrimaryCategory category   `xml:"primary_category"`
	Categories      []category `xml:"category"`
}

type author struct {
	Name string `xml:"name"`
}

type link struct {
	Href  string `xml:"href,attr"`
	Rel   string `xml:"rel,attr"`
	Type  string `xml:"type,attr"`
	Title string `xml:"title,attr"`
}

type category struct {
	Term string `xml:"term,attr"`
}

// APIError is an error entry returned by the arXiv API in place of results.
type APIError struct {
	ID      string
	Message string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("arxiv api error: %s", e.Message)
}

func parseFeed(data []byte) (*feed, error) {
	var f feed
	if err := xml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("failed to parse atom feed: %w", err)
	}
	if len(f.Entries) == 1 && strings.Contains(f.Entries[0].ID, "/api/errors") {
		return nil, &APIError{ID: f.Entries[0].ID, Message: collapse(f.Entries[0].Summary)}
	}
	return &f, nil
}

func (e entry) toPaper() Paper {
	p := Paper{
		EntryID:         strings.TrimSpace(e.ID),
		Title:           collapse(e.Title),
		Summary:         strings.TrimSpace(e.Summary),
		DOI:             strings.TrimSpace(e.DOI),
		Comment:         collapse(e.Comment),
		JournalRef:      collapse(e.JournalRef),
		PrimaryCategory: e.PrimaryCategory.Term,
	}
	p.ShortID = shortID(p.EntryID)
	p.Published = parseTime(e.Published)
	p.Updated = parseTime(e.Updated)

	for _, a := range e.Authors {
		if name := collapse(a.Name); name != "" {
			p.Authors = append(p.Authors, name)
		}
	}
	for _, c := range e.Categories {
		if c.Term != "" {
			p.Categories = append(p.Categories, c.Term)
		}
	}
	for _, l := range e.Links {
		if l.Title == "pdf" || l.Type == "application/pdf" {
			p.PDFURL = l.Href
			break
		}
	}
	if p.PDFURL == "" && strings.Contains(p.EntryID, "/abs/") {
		p.PDFURL = strings.Replace(p.EntryID, "/abs/", "/pdf/", 1)
	}
	return p
}

func shortID(entryID string) string {
	if _, after, ok := strings.Cut(entryID, "arxiv.org/abs/"); ok {
		return after
	}
	return entryID
}

func parseTime(s string) time.Time {
	t, err := time.Parse(time.RFC3339, strings.TrimSpace(s))
	if err != nil {
		return time.Time{}
	}
	return t
}

func collapse(s string) string {
	return strings.Join(strings.Fields(s), " ")
}
