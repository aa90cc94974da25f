package slides

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"paperslides/internal/paper"
)

type fakeClient struct {
	answer  string
	err     error
	prompts []string
}

func (f *fakeClient) Complete(_ context.Context, p string) (string, error) {
	f.prompts = append(f.prompts, p)
	return f.answer, f.err
}

func (f *fakeClient) CompleteWithSystem(ctx context.Context, _, p string) (string, error) {
	return f.Complete(ctx, p)
}

func (f *fakeClient) Model() string { return "fake-model" }

type fakeRecorder struct{ sources, paths []string }

func (r *fakeRecorder) RecordDeck(_ context.Context, source, path, _ string) (string, error) {
	r.sources = append(r.sources, source)
	r.paths = append(r.paths, path)
	return "id", nil
}

func deckMarkdown(n int) string {
	var b strings.Builder
	b.WriteString("Here is your deck.\n\n")
	for i := 1; i <= n; i++ {
		title := fmt.Sprintf("Topic %d", i)
		switch i {
		case 1:
			title = "Dense Passage Retrieval"
		case n:
			title = "Q&A"
		}
		fmt.Fprintf(&b, "## Slide %d: %s\n\n* point a\n* point b\n\n", i, title)
	}
	return b.String()
}

func TestParseDeck(t *testing.T) {
	d := ParseDeck("intro\n## Slide 1: [Title]\n- a\n\n### slide 2 - Method\r\n- b\n")
	want := []Slide{
		{Number: 1, Title: "Title", Body: "- a"},
		{Number: 2, Title: "Method", Body: "- b"},
	}
	if diff := cmp.Diff(want, d.Slides); diff != "" {
		t.Errorf("ParseDeck() mismatch (-want +got):\n%s", diff)
	}
}

func TestDeckCheck(t *testing.T) {
	tests := []struct {
		name     string
		markdown string
		want     []string
	}{
		{"well formed", deckMarkdown(10), nil},
		{"too short", deckMarkdown(3), []string{"deck has 3 slides, expected 8-12"}},
		{"empty", "no headings here", []string{"no slides found"}},
		{
			name:     "gap and no closing",
			markdown: strings.Replace(strings.Replace(deckMarkdown(8), "Slide 4:", "Slide 5:", 1), "Q&A", "Summary", 1),
			want:     []string{`last slide "Summary" is not a Q&A slide`, "slide 4 is numbered 5"},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := ParseDeck(tt.markdown).Check()
			if diff := cmp.Diff(tt.want, got); diff != "" {
				t.Errorf("Check() mismatch (-want +got):\n%s", diff)
			}
		})
	}
}

func TestDeckName(t *testing.T) {
	at := time.Date(2024, 7, 17, 12, 34, 56, 0, time.UTC)
	assert.Equal(t, "2104.05740v1_slides_20240717_123456.md", DeckName("2104.05740v1", at))
}

func TestGenerateSavesDeck(t *testing.T) {
	dir := t.TempDir()
	client := &fakeClient{answer: deckMarkdown(9)}
	rec := &fakeRecorder{}
	g := NewGenerator(client, dir, rec)
	g.now = func() time.Time { return time.Date(2024, 7, 17, 12, 34, 56, 0, time.UTC) }

	pp := &paper.ProcessedPaper{SourceFile: "2104.05740v1.pdf", Metadata: paper.Metadata{Title: "DPR"}}
	deck, err := g.Generate(context.Background(), pp)
	require.NoError(t, err)

	assert.Equal(t, filepath.Join(dir, "2104.05740v1_slides_20240717_123456.md"), deck.Path)
	assert.Len(t, deck.Slides, 9)
	assert.Equal(t, "fake-model", deck.Model)
	data, err := os.ReadFile(deck.Path)
	require.NoError(t, err)
	assert.Equal(t, deckMarkdown(9), string(data))

	require.Len(t, client.prompts, 1)
	assert.Contains(t, client.prompts[0], "Title: DPR")
	assert.Equal(t, []string{"2104.05740v1.pdf"}, rec.sources)
}

func TestGenerateFailureWritesNothing(t *testing.T) {
	dir := t.TempDir()
	boom := errors.New("quota exhausted")
	g := NewGenerator(&fakeClient{err: boom}, dir, nil)

	_, err := g.Generate(context.Background(), &paper.ProcessedPaper{SourceFile: "x.pdf"})
	require.ErrorIs(t, err, boom)

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	assert.Empty(t, entries)
}

func TestGenerateFromFile(t *testing.T) {
	processed := t.TempDir()
	out := t.TempDir()
	jsonPath, err := paper.Save(&paper.ProcessedPaper{SourceFile: "2310.1.pdf"}, processed)
	require.NoError(t, err)

	g := NewGenerator(&fakeClient{answer: deckMarkdown(8)}, out, nil)
	path, err := g.GenerateFromFile(context.Background(), jsonPath)
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(filepath.Base(path), "2310.1_slides_"))
}

func TestLatestDeck(t *testing.T) {
	dir := t.TempDir()
	old := filepath.Join(dir, "2104.1_slides_20240101_000000.md")
	edited := filepath.Join(dir, "2104.1_edited.md")
	other := filepath.Join(dir, "9999_slides_20250101_000000.md")
	laterVersion := filepath.Join(dir, "2104.12_slides_20250101_000000.md")
	for _, p := range []string{old, edited, other, laterVersion} {
		require.NoError(t, os.WriteFile(p, []byte("## Slide 1: x"), 0644))
	}
	base := time.Now().Add(-time.Hour)
	require.NoError(t, os.Chtimes(old, base, base))
	require.NoError(t, os.Chtimes(edited, base.Add(time.Minute), base.Add(time.Minute)))

	got, err := LatestDeck(dir, "2104.1")
	require.NoError(t, err)
	assert.Equal(t, edited, got)

	none, err := LatestDeck(dir, "3000")
	require.NoError(t, err)
	assert.Empty(t, none)

	none, err = LatestDeck(filepath.Join(dir, "missing"), "2104.1")
	require.NoError(t, err)
	assert.Empty(t, none)
}

func TestRender(t *testing.T) {
	out, err := Render("## Slide 1: Hello\n\n* world\n", 60)
	require.NoError(t, err)
	assert.Contains(t, out, "Hello")
	assert.Contains(t, out, "world")
}
