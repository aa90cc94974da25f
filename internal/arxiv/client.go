// Package arxiv searches the arXiv Atom API and downloads paper PDFs.
package arxiv

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
	"time"

	"paperslides/internal/logging"
)

// DefaultBaseURL is the arXiv query endpoint.
const DefaultBaseURL = "http://export.arxiv.org/api/query"

// maxPageSize is the largest page arXiv serves reliably.
const maxPageSize = 100

// Sort criteria and orders accepted by the API.
const (
	SortByRelevance       = "relevance"
	SortByLastUpdatedDate = "lastUpdatedDate"
	SortBySubmittedDate   = "submittedDate"

	SortAscending  = "ascending"
	SortDescending = "descending"
)

// Paper is one arXiv entry.
type Paper struct {
	EntryID         string    `json:"entry_id"`
	ShortID         string    `json:"short_id"`
	Title           string    `json:"title"`
	Summary         string    `json:"summary"`
	Authors         []string  `json:"authors"`
	Categories      []string  `json:"categories"`
	PrimaryCategory string    `json:"primary_category"`
	Published       time.Time `json:"published"`
	Updated         time.Time `json:"updated"`
	PDFURL          string    `json:"pdf_url"`
	DOI             string    `json:"doi,omitempty"`
	Comment         string    `json:"comment,omitempty"`
	JournalRef      string    `json:"journal_ref,omitempty"`
}

// Filename is the local PDF name for the paper. Old-style identifiers
// (hep-th/9901001v1) contain a slash, which is replaced.
func (p Paper) Filename() string {
	return strings.ReplaceAll(p.ShortID, "/", "_") + ".pdf"
}

// Query describes an arXiv search.
type Query struct {
	SearchQuery string
	IDList      []string
	MaxResults  int
	SortBy      string
	SortOrder   string
}

// ClientConfig configures a Client.
type ClientConfig struct {
	BaseURL      string
	Timeout      time.Duration
	MinInterval  time.Duration // spacing between requests
	MaxRetries   int
	RetryBackoff time.Duration // first backoff; doubles per attempt
	PageSize     int
	UserAgent    string
}

// DefaultClientConfig follows the arXiv API etiquette of one request every
// three seconds.
func DefaultClientConfig() ClientConfig {
	return ClientConfig{
		BaseURL:      DefaultBaseURL,
		Timeout:      60 * time.Second,
		MinInterval:  3 * time.Second,
		MaxRetries:   3,
		RetryBackoff: time.Second,
		PageSize:     maxPageSize,
		UserAgent:    "paperslides/1.0",
	}
}

// Client talks to the arXiv API.
type Client struct {
	cfg        ClientConfig
	httpClient *http.Client

	mu          sync.Mutex
	lastRequest time.Time
}

// NewClient creates a client. Zero fields fall back to defaults.
func NewClient(cfg ClientConfig) *Client {
	def := DefaultClientConfig()
	if cfg.BaseURL == "" {
		cfg.BaseURL = def.BaseURL
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = def.Timeout
	}
	if cfg.MinInterval < 0 {
		cfg.MinInterval = 0
	}
	if cfg.MaxRetries < 0 {
		cfg.MaxRetries = 0
	}
	if cfg.RetryBackoff <= 0 {
		cfg.RetryBackoff = def.RetryBackoff
	}
	if cfg.PageSize <= 0 || cfg.PageSize > maxPageSize {
		cfg.PageSize = maxPageSize
	}
	if cfg.UserAgent == "" {
		cfg.UserAgent = def.UserAgent
	}
	return &Client{
		cfg:        cfg,
		httpClient: &http.Client{Timeout: cfg.Timeout},
	}
}

// rateLimit waits until MinInterval has passed since the previous request.
func (c *Client) rateLimit(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if wait := c.cfg.MinInterval - time.Since(c.lastRequest); wait > 0 {
		timer := time.NewTimer(wait)
		defer timer.Stop()
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-timer.C:
		}
	}
	c.lastRequest = time.Now()
	return nil
}

// do performs a rate-limited GET, retrying on 429 and 503. The caller
// closes the body of the returned response.
func (c *Client) do(ctx context.Context, rawURL string) (*http.Response, error) {
	var lastErr error
	for attempt := 0; attempt <= c.cfg.MaxRetries; attempt++ {
		if attempt > 0 {
			backoff := c.cfg.RetryBackoff * time.Duration(1<<(attempt-1))
			logging.FetchDebug("Retrying %s in %v (attempt %d/%d)", rawURL, backoff, attempt, c.cfg.MaxRetries)
			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-time.After(backoff):
			}
		}

		if err := c.rateLimit(ctx); err != nil {
			return nil, err
		}

		req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
		if err != nil {
			return nil, fmt.Errorf("failed to create request: %w", err)
		}
		req.Header.Set("User-Agent", c.cfg.UserAgent)

		resp, err := c.httpClient.Do(req)
		if err != nil {
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			lastErr = fmt.Errorf("request failed: %w", err)
			continue
		}

		switch resp.StatusCode {
		case http.StatusOK:
			return resp, nil
		case http.StatusTooManyRequests, http.StatusServiceUnavailable:
			resp.Body.Close()
			lastErr = fmt.Errorf("arxiv returned %s", resp.Status)
			continue
		default:
			body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
			resp.Body.Close()
			return nil, fmt.Errorf("arxiv returned %s: %s", resp.Status, strings.TrimSpace(string(body)))
		}
	}
	return nil, fmt.Errorf("max retries exceeded: %w", lastErr)
}

func (c *Client) queryURL(q Query, start, size int) string {
	v := url.Values{}
	if q.SearchQuery != "" {
		v.Set("search_query", q.SearchQuery)
	}
	if len(q.IDList) > 0 {
		v.Set("id_list", strings.Join(q.IDList, ","))
	}
	v.Set("start", strconv.Itoa(start))
	v.Set("max_results", strconv.Itoa(size))
	if q.SortBy != "" {
		v.Set("sortBy", q.SortBy)
	}
	if q.SortOrder != "" {
		v.Set("sortOrder", q.SortOrder)
	}
	return c.cfg.BaseURL + "?" + v.Encode()
}

// Search pages through results until MaxResults entries are collected or
// the feed is exhausted.
func (c *Client) Search(ctx context.Context, q Query) ([]Paper, error) {
	if q.SearchQuery == "" && len(q.IDList) == 0 {
		return nil, errors.New("query needs a search string or an id list")
	}
	if q.MaxResults <= 0 {
		q.MaxResults = 10
	}

	timer := logging.StartTimer(logging.CategoryFetch, "arxiv search")
	defer timer.Stop()

	var papers []Paper
	for start := 0; len(papers) < q.MaxResults; {
		size := min(c.cfg.PageSize, q.MaxResults-len(papers))
		page, err := c.fetchPage(ctx, c.queryURL(q, start, size))
		if err != nil {
			return papers, err
		}
		logging.FetchDebug("Page start=%d returned %d entries (total %d)", start, len(page.Entries), page.TotalResults)
		if len(page.Entries) == 0 {
			break
		}
		for _, e := range page.Entries {
			papers = append(papers, e.toPaper())
		}
		start += len(page.Entries)
		if page.TotalResults > 0 && start >= page.TotalResults {
			break
		}
	}

	if len(papers) > q.MaxResults {
		papers = papers[:q.MaxResults]
	}
	return papers, nil
}

func (c *Client) fetchPage(ctx context.Context, rawURL string) (*feed, error) {
	resp, err := c.do(ctx, rawURL)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response: %w", err)
	}
	return parseFeed(data)
}

// Download stores the paper PDF in dir and returns its path. The file is
// written under a temporary name and renamed when complete.
func (c *Client) Download(ctx context.Context, p Paper, dir string) (string, error) {
	if p.PDFURL == "" {
		return "", fmt.Errorf("paper %s has no pdf url", p.ShortID)
	}
	if err := os.MkdirAll(dir, 0755); err != nil {
		return "", fmt.Errorf("failed to create download directory: %w", err)
	}

	resp, err := c.do(ctx, p.PDFURL)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	tmp, err := os.CreateTemp(dir, ".download-*.pdf")
	if err != nil {
		return "", fmt.Errorf("failed to create temp file: %w", err)
	}
	tmpName := tmp.Name()
	cleanup := func() { os.Remove(tmpName) }

	if _, err := io.Copy(tmp, resp.Body); err != nil {
		tmp.Close()
		cleanup()
		return "", fmt.Errorf("failed to download %s: %w", p.PDFURL, err)
	}
	if err := tmp.Close(); err != nil {
		cleanup()
		return "", fmt.Errorf("failed to close temp file: %w", err)
	}

	dest := filepath.Join(dir, p.Filename())
	if err := os.Rename(tmpName, dest); err != nil {
		cleanup()
		return "", fmt.Errorf("failed to move download into place: %w", err)
	}
	return dest, nil
}
