package arxiv

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"golang.org/x/sync/errgroup"

	"paperslides/internal/logging"
)

// DefaultQuery finds retrieval-augmented generation papers by title or
// abstract.
const DefaultQuery = `(ti:"Retrieval-Augmented Generation" OR ti:"Retrieval Augmented Generation" OR ti:RAG) OR (abs:"Retrieval-Augmented Generation" OR abs:"Retrieval Augmented Generation")`

// AdvancedStrategies are the queries run by FetchAdvanced.
var AdvancedStrategies = []string{
	`ti:"Retrieval-Augmented Generation"`,
	`ti:"Retrieval Augmented Generation"`,
	`ti:"RAG"`,
	`abs:"retrieval-augmented generation"`,
	`abs:"retrieval augmented generation"`,
	`ti:"dense passage retrieval" OR ti:"DPR"`,
	`ti:"retrieval-based" AND ti:"generation"`,
	`abs:"retrieval-based question answering"`,
	`ti:"FiD" OR ti:"Fusion-in-Decoder"`,
	`ti:"REALM" OR ti:"Retrieval-Enhanced"`,
	`ti:"T5" AND abs:"retrieval"`,
}

// Recorder persists fetched papers; the catalog implements it.
type Recorder interface {
	RecordPaper(ctx context.Context, p Paper, localPath string) error
}

// FetchOptions configures one fetch run.
type FetchOptions struct {
	Query      string
	MaxResults int
	SortBy     string
	SortOrder  string
	Dir        string
}

// FetchReport summarises a fetch run. Downloaded includes papers whose PDF
// was already on disk; Skipped counts those separately.
type FetchReport struct {
	Queries    []string
	Found      int
	Relevant   int
	Downloaded int
	Skipped    int
	Irrelevant int
	Failed     int
	// FailedStrategies counts FetchAdvanced queries that errored.
	FailedStrategies int
	Papers           []Paper
	Files            []string
}

func (r *FetchReport) merge(o *FetchReport) {
	r.Queries = append(r.Queries, o.Queries...)
	r.Found += o.Found
	r.Relevant += o.Relevant
	r.Downloaded += o.Downloaded
	r.Skipped += o.Skipped
	r.Irrelevant += o.Irrelevant
	r.Failed += o.Failed
	r.Papers = append(r.Papers, o.Papers...)
	r.Files = append(r.Files, o.Files...)
}

// Fetcher combines search, relevance filtering and downloads.
type Fetcher struct {
	client      *Client
	filter      *Filter
	recorder    Recorder
	concurrency int
}

// NewFetcher creates a fetcher. recorder may be nil.
func NewFetcher(client *Client, filter *Filter, recorder Recorder, concurrency int) *Fetcher {
	if filter == nil {
		filter = NewFilter(nil)
	}
	if concurrency <= 0 {
		concurrency = 1
	}
	return &Fetcher{client: client, filter: filter, recorder: recorder, concurrency: concurrency}
}

// Fetch searches, keeps relevant papers and downloads the missing PDFs.
// Individual download failures are counted, not returned.
func (f *Fetcher) Fetch(ctx context.Context, opts FetchOptions) (*FetchReport, error) {
	if opts.Query == "" {
		opts.Query = DefaultQuery
	}
	if opts.SortBy == "" {
		opts.SortBy = SortByRelevance
	}
	if opts.SortOrder == "" {
		opts.SortOrder = SortDescending
	}
	if opts.Dir == "" {
		return nil, errors.New("fetch needs an output directory")
	}
	if err := os.MkdirAll(opts.Dir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create output directory: %w", err)
	}

	logging.Fetch("Searching arXiv: %s (max %d)", opts.Query, opts.MaxResults)
	papers, err := f.client.Search(ctx, Query{
		SearchQuery: opts.Query,
		MaxResults:  opts.MaxResults,
		SortBy:      opts.SortBy,
		SortOrder:   opts.SortOrder,
	})
	if err != nil {
		return nil, fmt.Errorf("search failed: %w", err)
	}

	report := &FetchReport{Queries: []string{opts.Query}, Found: len(papers)}
	var relevant []Paper
	for _, p := range papers {
		if f.filter.Relevant(p) {
			relevant = append(relevant, p)
		} else {
			logging.FetchDebug("Skipping unrelated paper %s: %s", p.ShortID, p.Title)
			report.Irrelevant++
		}
	}
	report.Relevant = len(relevant)
	report.Papers = relevant

	var mu sync.Mutex
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(f.concurrency)
	for _, p := range relevant {
		g.Go(func() error {
			path, existed, err := f.ensure(gctx, p, opts.Dir)

			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				if ctx.Err() != nil {
					return ctx.Err()
				}
				logging.Get(logging.CategoryFetch).Warn("Download failed for %s: %v", p.ShortID, err)
				report.Failed++
				return nil
			}
			report.Downloaded++
			if existed {
				report.Skipped++
			}
			report.Files = append(report.Files, path)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return report, err
	}

	logging.Fetch("Fetch complete: found=%d relevant=%d downloaded=%d skipped=%d failed=%d",
		report.Found, report.Relevant, report.Downloaded, report.Skipped, report.Failed)
	return report, nil
}

// ensure downloads p unless the file exists, then records it.
func (f *Fetcher) ensure(ctx context.Context, p Paper, dir string) (string, bool, error) {
	path := filepath.Join(dir, p.Filename())
	existed := false
	if _, err := os.Stat(path); err == nil {
		logging.FetchDebug("Already downloaded: %s", path)
		existed = true
	} else {
		var err error
		if path, err = f.client.Download(ctx, p, dir); err != nil {
			return "", false, err
		}
		logging.Fetch("Downloaded %s to %s", p.ShortID, path)
	}

	if f.recorder != nil {
		if err := f.recorder.RecordPaper(ctx, p, path); err != nil {
			logging.Get(logging.CategoryFetch).Warn("Failed to record %s in catalog: %v", p.ShortID, err)
		}
	}
	return path, existed, nil
}

// FetchAdvanced runs every AdvancedStrategies query with an equal share of
// maxResults (at least one each). A failing strategy is logged and skipped.
func (f *Fetcher) FetchAdvanced(ctx context.Context, maxResults int, dir string) (*FetchReport, error) {
	return f.FetchStrategies(ctx, AdvancedStrategies, maxResults, dir)
}

// FetchStrategies is FetchAdvanced over a caller-chosen query list.
func (f *Fetcher) FetchStrategies(ctx context.Context, queries []string, maxResults int, dir string) (*FetchReport, error) {
	if len(queries) == 0 {
		return nil, errors.New("no search strategies given")
	}
	per := max(maxResults/len(queries), 1)

	total := &FetchReport{}
	for i, q := range queries {
		if err := ctx.Err(); err != nil {
			return total, err
		}
		logging.Fetch("Strategy %d/%d: %s", i+1, len(queries), q)
		report, err := f.Fetch(ctx, FetchOptions{Query: q, MaxResults: per, Dir: dir})
		if report != nil {
			total.merge(report)
		}
		if err != nil {
			if ctx.Err() != nil {
				return total, ctx.Err()
			}
			logging.Get(logging.CategoryFetch).Error("Strategy %d failed: %v", i+1, err)
			total.FailedStrategies++
		}
	}
	return total, nil
}
