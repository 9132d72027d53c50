// Package pdf is an ingest.Registry plugin for the ingestion Manager,
// extracting plain text from PDF documents with ledongthuc/pdf
// (pure Go, no CGO).
package pdf

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"strings"

	"github.com/ledongthuc/pdf"

	"github.com/agentic-orchestration/runtime/internal/retrieval/ingest"
	"github.com/agentic-orchestration/runtime/pkg/models"
)

// Parser implements ingest.Parser for application/pdf documents.
type Parser struct{}

// New constructs a PDF Parser.
func New() *Parser { return &Parser{} }

func (p *Parser) Name() string { return "pdf" }

func (p *Parser) SupportedTypes() []string { return []string{"application/pdf"} }

func (p *Parser) SupportedExtensions() []string { return []string{".pdf"} }

// Parse reads the whole PDF into memory (ledongthuc/pdf requires a
// ReaderAt plus the content length) and extracts its plain text.
func (p *Parser) Parse(ctx context.Context, reader io.Reader, docMeta *models.DocumentMetadata) (*ingest.ParseResult, error) {
	data, err := io.ReadAll(reader)
	if err != nil {
		return nil, fmt.Errorf("read pdf content: %w", err)
	}
	if len(data) == 0 {
		return nil, fmt.Errorf("empty pdf content")
	}

	r, err := pdf.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return nil, fmt.Errorf("open pdf: %w", err)
	}

	plain, err := r.GetPlainText()
	if err != nil {
		return nil, fmt.Errorf("extract pdf text: %w", err)
	}

	text, err := io.ReadAll(plain)
	if err != nil {
		return nil, fmt.Errorf("read pdf text: %w", err)
	}

	content := strings.TrimSpace(string(text))
	extracted := &models.DocumentMetadata{Title: firstLine(content)}

	return &ingest.ParseResult{
		Content:  content,
		Metadata: ingest.MergeMeta(docMeta, extracted),
		Sections: pageSections(content),
	}, nil
}

func firstLine(content string) string {
	if idx := strings.IndexByte(content, '\n'); idx > 0 {
		line := strings.TrimSpace(content[:idx])
		if len(line) > 100 {
			return line[:100] + "..."
		}
		return line
	}
	return content
}

// pageSections splits extracted text on the form-feed byte ledongthuc/pdf
// emits between pages, labeling each as its own section.
func pageSections(content string) []ingest.Section {
	pages := strings.Split(content, "\f")
	var sections []ingest.Section
	offset := 0
	for i, page := range pages {
		page = strings.TrimSpace(page)
		if page == "" {
			continue
		}
		start := offset
		end := start + len(page)
		sections = append(sections, ingest.Section{
			Title:       fmt.Sprintf("Page %d", i+1),
			Level:       1,
			Content:     page,
			StartOffset: start,
			EndOffset:   end,
		})
		offset = end
	}
	return sections
}
