package catalog

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"paperslides/internal/arxiv"
	"paperslides/internal/paper"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := Open(filepath.Join(t.TempDir(), "nested", "catalog.db"))
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })

	clock := time.Date(2024, 7, 17, 12, 0, 0, 0, time.UTC)
	s.now = func() time.Time {
		clock = clock.Add(time.Second)
		return clock
	}
	return s
}

func TestOpenInitializesSchema(t *testing.T) {
	path := filepath.Join(t.TempDir(), "catalog.db")
	s, err := Open(path)
	require.NoError(t, err)
	assert.Equal(t, SchemaVersion, s.SchemaVersion())
	assert.True(t, s.columnExists("papers", "local_path"))
	require.NoError(t, s.Close())

	// reopening is a no-op migration
	s, err = Open(path)
	require.NoError(t, err)
	defer s.Close()
	assert.Equal(t, SchemaVersion, s.SchemaVersion())
}

func TestPapers(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	p := arxiv.Paper{
		EntryID:   "http://arxiv.org/abs/2005.11401v4",
		ShortID:   "2005.11401v4",
		Title:     "Retrieval-Augmented Generation",
		Authors:   []string{"Patrick Lewis", "Ethan Perez"},
		Published: time.Date(2020, 5, 22, 0, 0, 0, 0, time.UTC),
	}
	require.NoError(t, s.RecordPaper(ctx, p, "/data/raw/2005.11401v4.pdf"))

	p.Title = "Retrieval-Augmented Generation for Knowledge-Intensive NLP Tasks"
	require.NoError(t, s.UpsertPaper(ctx, p, ""))
	require.NoError(t, s.UpsertPaper(ctx, arxiv.Paper{ShortID: "2312.10997", Title: "Survey"}, ""))
	assert.Error(t, s.UpsertPaper(ctx, arxiv.Paper{Title: "no id"}, ""))

	papers, err := s.Papers(ctx)
	require.NoError(t, err)
	require.Len(t, papers, 2)
	assert.Equal(t, "2312.10997", papers[0].ShortID, "newest first")

	rag := papers[1]
	assert.Equal(t, "Retrieval-Augmented Generation for Knowledge-Intensive NLP Tasks", rag.Title)
	assert.Equal(t, []string{"Patrick Lewis", "Ethan Perez"}, rag.Authors)
	assert.Equal(t, "/data/raw/2005.11401v4.pdf", rag.LocalPath, "empty path keeps the recorded one")
	assert.Equal(t, "2020-05-22T00:00:00Z", rag.Published)
}

func TestDecksAndProcessed(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()
	dir := t.TempDir()

	pp := &paper.ProcessedPaper{SourceFile: "2104.05740v1.pdf", Statistics: paper.Statistics{SectionCount: 3}}
	require.NoError(t, s.RecordProcessed(ctx, pp, "/p/2104.05740v1.json"))
	require.NoError(t, s.RecordProcessed(ctx, pp, "/p/2104.05740v1.json"))

	deckPath := filepath.Join(dir, "2104.05740v1_slides_20240717_120000.md")
	require.NoError(t, os.WriteFile(deckPath, []byte("## Slide 1: A\n## Slide 2: Q&A\n"), 0644))

	id, err := s.RecordDeck(ctx, "2104.05740v1.pdf", deckPath, "gemini-1.5-flash-latest")
	require.NoError(t, err)
	again, err := s.RecordDeck(ctx, "2104.05740v1.pdf", deckPath, "gemini-1.5-pro")
	require.NoError(t, err)
	assert.Equal(t, id, again, "same path keeps its id")

	_, err = s.RecordDeck(ctx, "other.pdf", filepath.Join(dir, "missing.md"), "m")
	require.NoError(t, err)

	decks, err := s.Decks(ctx, "2104.05740v1.pdf")
	require.NoError(t, err)
	require.Len(t, decks, 1)
	assert.Equal(t, 2, decks[0].Slides)
	assert.Equal(t, "gemini-1.5-pro", decks[0].Model)

	all, err := s.Decks(ctx, "")
	require.NoError(t, err)
	assert.Len(t, all, 2)

	st, err := s.Stats(ctx)
	require.NoError(t, err)
	assert.Equal(t, Stats{Processed: 1, Decks: 2}, st)
}

func TestRuns(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	first, err := s.StartRun(ctx, "finetune", "python finetune.py")
	require.NoError(t, err)
	second, err := s.StartRun(ctx, "pipeline", "all")
	require.NoError(t, err)

	require.NoError(t, s.FinishRun(ctx, first, RunFailed, "exit 1"))
	require.NoError(t, s.FinishRun(ctx, second, RunSucceeded, ""))
	assert.ErrorIs(t, s.FinishRun(ctx, "nope", RunFailed, ""), ErrRunNotFound)

	runs, err := s.Runs(ctx, 0)
	require.NoError(t, err)
	require.Len(t, runs, 2)
	assert.Equal(t, second, runs[0].ID)
	assert.Equal(t, "all", runs[0].Detail, "empty detail keeps the original")
	assert.Equal(t, "exit 1", runs[1].Detail)
	assert.NotEmpty(t, runs[1].FinishedAt)

	limited, err := s.Runs(ctx, 1)
	require.NoError(t, err)
	assert.Len(t, limited, 1)

	st, err := s.Stats(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, st.Runs)
	assert.Equal(t, 1, st.FailedRuns)
}
