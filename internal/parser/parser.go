package parser

import (
	"bytes"
	"errors"
	"fmt"
	"html"
	"os"
	"path/filepath"
	"strings"

	"studybuddy/internal/config"
	"studybuddy/internal/models"

	"github.com/ledongthuc/pdf"
	"github.com/nguyenthenguyen/docx"
	"github.com/tealeg/xlsx"
	"github.com/xuri/excelize/v2"
	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/extension"
)

// ErrUnsupportedType is returned for file extensions the processor cannot read.
var ErrUnsupportedType = errors.New("unsupported file type")

var supportedExtensions = map[string]struct{}{
	".pdf": {}, ".docx": {}, ".txt": {}, ".md": {}, ".markdown": {}, ".xlsx": {}, ".ods": {},
}

// IsSupported reports whether the filename has an ingestible extension.
func IsSupported(filename string) bool {
	_, ok := supportedExtensions[strings.ToLower(filepath.Ext(filename))]
	return ok
}

// Parsed is the output of processing one document.
type Parsed struct {
	Filename  string
	FileType  string
	Content   string
	Chunks    []models.Chunk
	WordCount int
}

// page is one extraction unit: a PDF page, a spreadsheet sheet, or the whole
// file for flat formats.
type page struct {
	number int
	text   string
}

// Parse extracts text from the file, cleans it, and splits it into
// overlapping chunks sized by the RAG config.
func Parse(filePath string, cfg *config.Config) (*Parsed, error) {
	if cfg == nil {
		cfg = config.Default()
	}

	ext := strings.ToLower(filepath.Ext(filePath))
	var (
		pages []page
		err   error
	)
	switch ext {
	case ".pdf":
		pages, err = parsePDF(filePath)
	case ".docx":
		pages, err = parseDOCX(filePath)
	case ".txt":
		pages, err = parseText(filePath)
	case ".md", ".markdown":
		pages, err = parseMarkdown(filePath)
	case ".xlsx":
		pages, err = parseXLSX(filePath)
	case ".ods":
		pages, err = parseODS(filePath)
	default:
		return nil, fmt.Errorf("%w: %s", ErrUnsupportedType, ext)
	}
	if err != nil {
		return nil, err
	}

	parsed := &Parsed{
		Filename: filepath.Base(filePath),
		FileType: ext,
	}
	// Clean pages individually but chunk the joined text once, so chunks can
	// straddle page boundaries and reassembly yields the full document.
	var (
		full       strings.Builder
		pageStarts []int
		pageNums   []int
	)
	for _, p := range pages {
		cleaned := CleanText(p.text)
		if cleaned == "" {
			continue
		}
		if full.Len() > 0 {
			full.WriteString(" ")
		}
		pageStarts = append(pageStarts, full.Len())
		pageNums = append(pageNums, p.number)
		full.WriteString(cleaned)
	}
	parsed.Content = full.String()
	parsed.Chunks = ChunkText(parsed.Content, cfg.RAG.ChunkSize, cfg.RAG.ChunkOverlap)
	for i := range parsed.Chunks {
		parsed.Chunks[i].PageNumber = pageAt(pageStarts, pageNums, parsed.Chunks[i].StartOffset)
	}
	parsed.WordCount = len(strings.Fields(parsed.Content))
	return parsed, nil
}

// pageAt returns the number of the page a byte offset falls on: the last page
// starting at or before the offset.
func pageAt(starts, nums []int, offset int) int {
	page := 0
	for i, start := range starts {
		if start > offset {
			break
		}
		page = nums[i]
	}
	return page
}

func parsePDF(filePath string) ([]page, error) {
	f, err := os.Open(filePath)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	stat, err := f.Stat()
	if err != nil {
		return nil, err
	}

	reader, err := pdf.NewReader(f, stat.Size())
	if err != nil {
		return nil, err
	}

	var pages []page
	numPages := reader.NumPage()
	for i := 1; i <= numPages; i++ {
		p := reader.Page(i)
		if p.V.IsNull() {
			continue
		}
		pageText, err := p.GetPlainText(nil)
		if err != nil {
			return nil, err
		}
		pages = append(pages, page{number: i, text: pageText})
	}
	return pages, nil
}

func parseDOCX(filePath string) ([]page, error) {
	r, err := docx.ReadDocxFile(filePath)
	if err != nil {
		return nil, err
	}
	defer r.Close()

	doc := r.Editable()
	text := extractDocxText(doc.GetContent())
	return []page{{number: 1, text: text}}, nil
}

func parseText(filePath string) ([]page, error) {
	data, err := os.ReadFile(filePath)
	if err != nil {
		return nil, err
	}
	return []page{{number: 1, text: string(data)}}, nil
}

func parseMarkdown(filePath string) ([]page, error) {
	data, err := os.ReadFile(filePath)
	if err != nil {
		return nil, err
	}
	md := goldmark.New(goldmark.WithExtensions(extension.GFM))
	var buf bytes.Buffer
	if err := md.Convert(data, &buf); err != nil {
		return nil, err
	}
	return []page{{number: 1, text: stripHTMLTags(buf.String())}}, nil
}

func parseXLSX(filePath string) ([]page, error) {
	f, err := xlsx.OpenFile(filePath)
	if err != nil {
		return nil, err
	}

	var pages []page
	for sheetNum, sheet := range f.Sheets {
		var text strings.Builder
		text.WriteString("Sheet: " + sheet.Name + "\n")
		for _, row := range sheet.Rows {
			for _, cell := range row.Cells {
				text.WriteString(cell.String() + "\t")
			}
			text.WriteString("\n")
		}
		pages = append(pages, page{number: sheetNum + 1, text: text.String()})
	}
	return pages, nil
}

func parseODS(filePath string) ([]page, error) {
	f, err := excelize.OpenFile(filePath)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	var pages []page
	for sheetNum, sheetName := range f.GetSheetList() {
		rows, err := f.GetRows(sheetName)
		if err != nil {
			continue
		}
		var text strings.Builder
		text.WriteString("Sheet: " + sheetName + "\n")
		for _, row := range rows {
			for _, cell := range row {
				text.WriteString(cell + "\t")
			}
			text.WriteString("\n")
		}
		pages = append(pages, page{number: sheetNum + 1, text: text.String()})
	}
	return pages, nil
}

// extractDocxText pulls the text runs out of a document.xml body, treating
// paragraph ends as line breaks.
func extractDocxText(xmlContent string) string {
	var text strings.Builder
	content := strings.ReplaceAll(xmlContent, "</w:p>", "</w:p>\n")
	parts := strings.Split(content, "<w:t")
	for i, part := range parts {
		if i == 0 {
			continue
		}
		// skip the rest of the opening tag
		closeIdx := strings.Index(part, ">")
		if closeIdx < 0 {
			continue
		}
		part = part[closeIdx+1:]
		endIdx := strings.Index(part, "</w:t>")
		if endIdx < 0 {
			continue
		}
		text.WriteString(part[:endIdx])
		if strings.Contains(part[endIdx:], "\n") {
			text.WriteString("\n")
		} else {
			text.WriteString(" ")
		}
	}
	return html.UnescapeString(text.String())
}

func stripHTMLTags(s string) string {
	var text strings.Builder
	inTag := false
	for _, r := range s {
		switch {
		case r == '<':
			inTag = true
			text.WriteRune(' ')
		case r == '>':
			inTag = false
		case !inTag:
			text.WriteRune(r)
		}
	}
	return html.UnescapeString(text.String())
}
