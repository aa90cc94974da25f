package catalog

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"path/filepath"

	"github.com/google/uuid"

	"paperslides/internal/arxiv"
	"paperslides/internal/logging"
	"paperslides/internal/paper"
	"paperslides/internal/slides"
)

// Run statuses.
const (
	RunRunning   = "running"
	RunSucceeded = "succeeded"
	RunFailed    = "failed"
)

// ErrRunNotFound is returned by FinishRun for an unknown id.
var ErrRunNotFound = errors.New("run not found")

// PaperRecord is a catalogued arXiv paper.
type PaperRecord struct {
	ShortID   string   `json:"short_id"`
	Title     string   `json:"title"`
	Authors   []string `json:"authors"`
	Published string   `json:"published"`
	PDFURL    string   `json:"pdf_url"`
	LocalPath string   `json:"local_path"`
	FetchedAt string   `json:"fetched_at"`
}

// DeckRecord is a catalogued slide deck.
type DeckRecord struct {
	ID         string `json:"id"`
	SourceFile string `json:"source_file"`
	Path       string `json:"path"`
	Model      string `json:"model"`
	Slides     int    `json:"slides"`
	CreatedAt  string `json:"created_at"`
}

// RunRecord is a catalogued pipeline or finetuning run.
type RunRecord struct {
	ID         string `json:"id"`
	Kind       string `json:"kind"`
	Detail     string `json:"detail"`
	Status     string `json:"status"`
	StartedAt  string `json:"started_at"`
	FinishedAt string `json:"finished_at,omitempty"`
}

// UpsertPaper inserts or refreshes a paper keyed by its short id.
func (s *Store) UpsertPaper(ctx context.Context, p arxiv.Paper, localPath string) error {
	if p.ShortID == "" {
		return errors.New("paper has no short id")
	}
	authors, _ := json.Marshal(p.Authors)
	categories, _ := json.Marshal(p.Categories)
	published := ""
	if !p.Published.IsZero() {
		published = formatTime(p.Published)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO papers (short_id, entry_id, title, summary, authors, categories, primary_category, published, pdf_url, local_path, fetched_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(short_id) DO UPDATE SET
			entry_id = excluded.entry_id,
			title = excluded.title,
			summary = excluded.summary,
			authors = excluded.authors,
			categories = excluded.categories,
			primary_category = excluded.primary_category,
			published = excluded.published,
			pdf_url = excluded.pdf_url,
			local_path = CASE WHEN excluded.local_path != '' THEN excluded.local_path ELSE papers.local_path END,
			fetched_at = excluded.fetched_at`,
		p.ShortID, p.EntryID, p.Title, p.Summary, string(authors), string(categories),
		p.PrimaryCategory, published, p.PDFURL, localPath, formatTime(s.now()))
	if err != nil {
		return fmt.Errorf("failed to upsert paper %s: %w", p.ShortID, err)
	}
	logging.StoreDebug("Upserted paper %s", p.ShortID)
	return nil
}

// RecordPaper records a fetched paper; it lets the arXiv fetcher write to
// the catalog.
func (s *Store) RecordPaper(ctx context.Context, p arxiv.Paper, localPath string) error {
	return s.UpsertPaper(ctx, p, localPath)
}

// Papers lists papers, most recently fetched first.
func (s *Store) Papers(ctx context.Context) ([]PaperRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	rows, err := s.db.QueryContext(ctx, `
		SELECT short_id, title, authors, published, pdf_url, local_path, fetched_at
		FROM papers ORDER BY fetched_at DESC, short_id`)
	if err != nil {
		return nil, fmt.Errorf("failed to query papers: %w", err)
	}
	defer rows.Close()

	var out []PaperRecord
	for rows.Next() {
		var r PaperRecord
		var authors string
		var published, pdfURL, local sql.NullString
		if err := rows.Scan(&r.ShortID, &r.Title, &authors, &published, &pdfURL, &local, &r.FetchedAt); err != nil {
			return nil, fmt.Errorf("failed to scan paper: %w", err)
		}
		_ = json.Unmarshal([]byte(authors), &r.Authors)
		r.Published, r.PDFURL, r.LocalPath = published.String, pdfURL.String, local.String
		out = append(out, r)
	}
	return out, rows.Err()
}

// RecordProcessed records the processed output of a paper, keyed by its
// source file.
func (s *Store) RecordProcessed(ctx context.Context, pp *paper.ProcessedPaper, jsonPath string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO processed (source_file, json_path, title, sections, paragraphs, text_length, processed_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(source_file) DO UPDATE SET
			json_path = excluded.json_path,
			title = excluded.title,
			sections = excluded.sections,
			paragraphs = excluded.paragraphs,
			text_length = excluded.text_length,
			processed_at = excluded.processed_at`,
		pp.SourceFile, jsonPath, pp.Metadata.Title, pp.Statistics.SectionCount,
		pp.Statistics.ParagraphCount, pp.Statistics.TotalTextLength, formatTime(s.now()))
	if err != nil {
		return fmt.Errorf("failed to record processed %s: %w", pp.SourceFile, err)
	}
	return nil
}

// RecordDeck records a deck file and returns its id. Recording the same
// path again keeps the original id.
func (s *Store) RecordDeck(ctx context.Context, source, path, model string) (string, error) {
	count := 0
	if d, err := slides.LoadDeck(path); err == nil {
		count = len(d.Slides)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	id := uuid.NewString()
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO decks (id, source_file, path, model, slides, created_at)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT(path) DO UPDATE SET
			source_file = excluded.source_file,
			model = excluded.model,
			slides = excluded.slides`,
		id, source, path, model, count, formatTime(s.now()))
	if err != nil {
		return "", fmt.Errorf("failed to record deck %s: %w", filepath.Base(path), err)
	}
	if err := s.db.QueryRowContext(ctx, "SELECT id FROM decks WHERE path = ?", path).Scan(&id); err != nil {
		return "", fmt.Errorf("failed to read deck id: %w", err)
	}
	logging.StoreDebug("Recorded deck %s (%s)", filepath.Base(path), id)
	return id, nil
}

// Decks lists decks for source, or all decks when source is empty, newest
// first.
func (s *Store) Decks(ctx context.Context, source string) ([]DeckRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	query := "SELECT id, source_file, path, model, slides, created_at FROM decks"
	var args []any
	if source != "" {
		query += " WHERE source_file = ?"
		args = append(args, source)
	}
	query += " ORDER BY created_at DESC, path DESC"

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query decks: %w", err)
	}
	defer rows.Close()

	var out []DeckRecord
	for rows.Next() {
		var r DeckRecord
		var model sql.NullString
		if err := rows.Scan(&r.ID, &r.SourceFile, &r.Path, &model, &r.Slides, &r.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan deck: %w", err)
		}
		r.Model = model.String
		out = append(out, r)
	}
	return out, rows.Err()
}

// StartRun records a running job and returns its id.
func (s *Store) StartRun(ctx context.Context, kind, detail string) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	id := uuid.NewString()
	if _, err := s.db.ExecContext(ctx,
		"INSERT INTO runs (id, kind, detail, status, started_at) VALUES (?, ?, ?, ?, ?)",
		id, kind, detail, RunRunning, formatTime(s.now())); err != nil {
		return "", fmt.Errorf("failed to start run: %w", err)
	}
	return id, nil
}

// FinishRun sets the final status of a run. Finishing twice overwrites the
// status.
func (s *Store) FinishRun(ctx context.Context, id, status, detail string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	res, err := s.db.ExecContext(ctx,
		"UPDATE runs SET status = ?, detail = COALESCE(NULLIF(?, ''), detail), finished_at = ? WHERE id = ?",
		status, detail, formatTime(s.now()), id)
	if err != nil {
		return fmt.Errorf("failed to finish run: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("%w: %s", ErrRunNotFound, id)
	}
	return nil
}

// Runs lists the most recent runs, at most limit (all when limit <= 0).
func (s *Store) Runs(ctx context.Context, limit int) ([]RunRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if limit <= 0 {
		limit = -1
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, kind, detail, status, started_at, finished_at
		FROM runs ORDER BY started_at DESC LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query runs: %w", err)
	}
	defer rows.Close()

	var out []RunRecord
	for rows.Next() {
		var r RunRecord
		var detail, finished sql.NullString
		if err := rows.Scan(&r.ID, &r.Kind, &detail, &r.Status, &r.StartedAt, &finished); err != nil {
			return nil, fmt.Errorf("failed to scan run: %w", err)
		}
		r.Detail, r.FinishedAt = detail.String, finished.String
		out = append(out, r)
	}
	return out, rows.Err()
}
