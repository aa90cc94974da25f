package pdftext

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type textLine struct {
	y    int
	text string
}

// buildPDF writes a minimal uncompressed PDF with one Helvetica text run
// per line.
func buildPDF(t *testing.T, pages [][]textLine) string {
	t.Helper()

	var objects []string
	objects = append(objects, "<< /Type /Catalog /Pages 2 0 R >>")
	kids := make([]string, len(pages))
	for i := range pages {
		kids[i] = fmt.Sprintf("%d 0 R", 4+2*i)
	}
	objects = append(objects, fmt.Sprintf("<< /Type /Pages /Kids [%s] /Count %d >>", strings.Join(kids, " "), len(pages)))
	objects = append(objects, "<< /Type /Font /Subtype /Type1 /BaseFont /Helvetica /Encoding /WinAnsiEncoding >>")

	for i, lines := range pages {
		var content strings.Builder
		for _, l := range lines {
			fmt.Fprintf(&content, "BT /F1 12 Tf 1 0 0 1 72 %d Tm (%s) Tj ET\n", l.y, l.text)
		}
		objects = append(objects, fmt.Sprintf(
			"<< /Type /Page /Parent 2 0 R /MediaBox [0 0 612 792] /Resources << /Font << /F1 3 0 R >> >> /Contents %d 0 R >>", 5+2*i))
		objects = append(objects, fmt.Sprintf("<< /Length %d >>\nstream\n%sendstream", content.Len(), content.String()))
	}

	var buf bytes.Buffer
	buf.WriteString("%PDF-1.4\n")
	offsets := make([]int, len(objects))
	for i, obj := range objects {
		offsets[i] = buf.Len()
		fmt.Fprintf(&buf, "%d 0 obj\n%s\nendobj\n", i+1, obj)
	}
	xref := buf.Len()
	fmt.Fprintf(&buf, "xref\n0 %d\n", len(objects)+1)
	buf.WriteString("0000000000 65535 f \n")
	for _, off := range offsets {
		fmt.Fprintf(&buf, "%010d 00000 n \n", off)
	}
	fmt.Fprintf(&buf, "trailer\n<< /Size %d /Root 1 0 R >>\nstartxref\n%d\n%%%%EOF\n", len(objects)+1, xref)

	path := filepath.Join(t.TempDir(), "paper.pdf")
	require.NoError(t, os.WriteFile(path, buf.Bytes(), 0644))
	return path
}

func TestExtractPages(t *testing.T) {
	path := buildPDF(t, [][]textLine{
		{
			{720, "Dense Retrieval for Everyone"},
			{706, "Abstract"},
			{692, "We study retrieval."},
			{660, "1. Introduction"},
		},
		{
			{720, "Second page text."},
		},
	})

	doc, err := New().Extract(context.Background(), path)
	require.NoError(t, err)
	require.Len(t, doc.Pages, 2)

	assert.Equal(t, "Dense Retrieval for Everyone\nAbstract\nWe study retrieval.\n\n1. Introduction", doc.Pages[0])
	assert.Equal(t, "Second page text.", doc.Pages[1])
	assert.Equal(t, doc.Pages[0]+"\n"+doc.Pages[1], doc.Text)
}

func TestExtractNoText(t *testing.T) {
	path := buildPDF(t, [][]textLine{{}})
	_, err := Extract(path)
	assert.ErrorIs(t, err, ErrNoText)
}

func TestExtractRejectsNonPDF(t *testing.T) {
	path := filepath.Join(t.TempDir(), "notes.pdf")
	require.NoError(t, os.WriteFile(path, []byte("just text"), 0644))
	_, err := Extract(path)
	assert.Error(t, err)

	_, err = Extract(filepath.Join(t.TempDir(), "missing.pdf"))
	assert.Error(t, err)
}

func TestExtractHonoursContext(t *testing.T) {
	path := buildPDF(t, [][]textLine{{{720, "text"}}})
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := New().Extract(ctx, path)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestJoinFragments(t *testing.T) {
	tests := []struct {
		name  string
		frags []fragment
		want  string
	}{
		{"single", []fragment{{72, "word"}}, "word"},
		{"kerned pieces glue", []fragment{{72, "Retr"}, {72, "ieval"}}, "Retrieval"},
		{"separate runs", []fragment{{72, "Dense"}, {110, "Retrieval"}}, "Dense Retrieval"},
		{"existing space", []fragment{{72, "Dense "}, {110, "Retrieval"}}, "Dense Retrieval"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, joinFragments(tt.frags))
		})
	}
}

func TestLayoutParagraphGaps(t *testing.T) {
	rows := []row{
		{y: 600, frags: []fragment{{72, "after gap"}}},
		{y: 700, frags: []fragment{{72, "one"}}},
		{y: 688, frags: []fragment{{72, "two"}}},
		{y: 676, frags: []fragment{{72, "three"}}},
	}
	assert.Equal(t, "one\ntwo\nthree\n\nafter gap", layout(rows))
	assert.Equal(t, "", layout(nil))
}
