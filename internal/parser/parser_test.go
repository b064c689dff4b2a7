package parser

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/tealeg/xlsx"

	"studybuddy/internal/config"
)

func writeFile(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write %s: %v", name, err)
	}
	return path
}

func TestParseText(t *testing.T) {
	content := strings.Repeat("Photosynthesis converts light into chemical energy. ", 30)
	path := writeFile(t, "notes.txt", content)

	cfg := config.Default()
	cfg.RAG.ChunkSize = 200
	cfg.RAG.ChunkOverlap = 50

	parsed, err := Parse(path, cfg)
	if err != nil {
		t.Fatalf("Parse() error = %v", err)
	}
	if parsed.FileType != ".txt" {
		t.Errorf("FileType = %q, want .txt", parsed.FileType)
	}
	if len(parsed.Chunks) == 0 {
		t.Fatal("Parse() produced no chunks")
	}
	for i, c := range parsed.Chunks {
		if len(c.Content) > 200 {
			t.Errorf("chunk %d length = %d, want <= 200", i, len(c.Content))
		}
	}
	if got := Reassemble(parsed.Chunks); got != parsed.Content {
		t.Error("reassembled chunks do not reconstruct the cleaned text")
	}
	if parsed.WordCount == 0 {
		t.Error("WordCount = 0, want > 0")
	}
}

func TestParseIdempotent(t *testing.T) {
	path := writeFile(t, "notes.txt", strings.Repeat("mitochondria are the powerhouse of the cell ", 50))
	cfg := config.Default()
	first, err := Parse(path, cfg)
	if err != nil {
		t.Fatalf("Parse() error = %v", err)
	}
	second, err := Parse(path, cfg)
	if err != nil {
		t.Fatalf("Parse() error = %v", err)
	}
	if len(first.Chunks) != len(second.Chunks) {
		t.Errorf("chunk counts differ across runs: %d vs %d", len(first.Chunks), len(second.Chunks))
	}
}

func TestParseMarkdown(t *testing.T) {
	path := writeFile(t, "notes.md", "# Cell Biology\n\nThe *mitochondria* produce **ATP**.\n")
	parsed, err := Parse(path, config.Default())
	if err != nil {
		t.Fatalf("Parse() error = %v", err)
	}
	if len(parsed.Chunks) != 1 {
		t.Fatalf("chunks = %d, want 1", len(parsed.Chunks))
	}
	content := parsed.Chunks[0].Content
	if strings.Contains(content, "<") || strings.Contains(content, "#") || strings.Contains(content, "*") {
		t.Errorf("markdown markup leaked into chunk: %q", content)
	}
	for _, want := range []string{"Cell Biology", "mitochondria", "ATP"} {
		if !strings.Contains(content, want) {
			t.Errorf("chunk missing %q: %q", want, content)
		}
	}
}

func TestParseMultiSheetReassemble(t *testing.T) {
	path := filepath.Join(t.TempDir(), "notes.xlsx")
	file := xlsx.NewFile()
	sheets := []struct {
		name  string
		cells []string
	}{
		{"One", []string{"alpha", "beta", "gamma"}},
		{"Two", []string{"delta", "epsilon", "zeta"}},
	}
	for _, s := range sheets {
		sheet, err := file.AddSheet(s.name)
		if err != nil {
			t.Fatalf("AddSheet(%s): %v", s.name, err)
		}
		row := sheet.AddRow()
		for _, c := range s.cells {
			row.AddCell().Value = c
		}
	}
	if err := file.Save(path); err != nil {
		t.Fatalf("save xlsx: %v", err)
	}

	cfg := config.Default()
	cfg.RAG.ChunkSize = 30
	cfg.RAG.ChunkOverlap = 10

	parsed, err := Parse(path, cfg)
	if err != nil {
		t.Fatalf("Parse() error = %v", err)
	}
	for _, want := range []string{"Sheet: One", "alpha", "Sheet: Two", "zeta"} {
		if !strings.Contains(parsed.Content, want) {
			t.Errorf("Content missing %q: %q", want, parsed.Content)
		}
	}
	if len(parsed.Chunks) < 2 {
		t.Fatalf("chunks = %d, want several", len(parsed.Chunks))
	}
	// chunks straddle the sheet boundary, so the overlap contract must hold
	// across it and reassembly must yield the whole document
	for i := 1; i < len(parsed.Chunks); i++ {
		if parsed.Chunks[i].Overlap != 10 {
			t.Errorf("chunk %d Overlap = %d, want 10", i, parsed.Chunks[i].Overlap)
		}
	}
	if got := Reassemble(parsed.Chunks); got != parsed.Content {
		t.Errorf("Reassemble() = %q, want %q", got, parsed.Content)
	}
	if parsed.Chunks[0].PageNumber != 1 {
		t.Errorf("first chunk PageNumber = %d, want 1", parsed.Chunks[0].PageNumber)
	}
	if last := parsed.Chunks[len(parsed.Chunks)-1]; last.PageNumber != 2 {
		t.Errorf("last chunk PageNumber = %d, want 2", last.PageNumber)
	}
}

func TestParseUnsupportedType(t *testing.T) {
	path := writeFile(t, "image.png", "not really an image")
	_, err := Parse(path, config.Default())
	if !errors.Is(err, ErrUnsupportedType) {
		t.Errorf("Parse() error = %v, want ErrUnsupportedType", err)
	}
}

func TestParseMissingFile(t *testing.T) {
	if _, err := Parse(filepath.Join(t.TempDir(), "absent.txt"), config.Default()); err == nil {
		t.Error("Parse() expected error for missing file")
	}
}

func TestExtractDocxText(t *testing.T) {
	xml := `<w:body><w:p><w:r><w:t>First paragraph.</w:t></w:r></w:p>` +
		`<w:p><w:r><w:t xml:space="preserve">Second </w:t></w:r><w:r><w:t>half.</w:t></w:r></w:p></w:body>`
	got := extractDocxText(xml)
	for _, want := range []string{"First paragraph.", "Second", "half."} {
		if !strings.Contains(got, want) {
			t.Errorf("extractDocxText() missing %q in %q", want, got)
		}
	}
	if strings.Contains(got, "<w:") {
		t.Errorf("extractDocxText() leaked markup: %q", got)
	}
}

func TestStripHTMLTags(t *testing.T) {
	got := stripHTMLTags("<h1>Title</h1><p>Body &amp; more</p>")
	for _, want := range []string{"Title", "Body & more"} {
		if !strings.Contains(got, want) {
			t.Errorf("stripHTMLTags() missing %q in %q", want, got)
		}
	}
	if strings.ContainsAny(got, "<>") {
		t.Errorf("stripHTMLTags() left tags: %q", got)
	}
}
