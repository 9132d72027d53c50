package ingest

import (
	"bufio"
	"context"
	"io"
	"strings"

	"github.com/agentic-orchestration/runtime/pkg/models"
)

// TextParser parses plain text, CSV/TSV, JSON, XML, and log files — any
// format with no structural markup worth extracting.
type TextParser struct{}

// NewTextParser constructs a TextParser.
func NewTextParser() *TextParser { return &TextParser{} }

func (p *TextParser) Name() string { return "text" }

func (p *TextParser) SupportedTypes() []string {
	return []string{"text/plain", "text/csv", "text/tab-separated-values", "application/json", "application/xml", "text/xml"}
}

func (p *TextParser) SupportedExtensions() []string {
	return []string{".txt", ".text", ".csv", ".tsv", ".json", ".xml", ".log"}
}

// Parse extracts content as-is, deriving a title from the first
// non-empty line and sections from paragraph breaks.
func (p *TextParser) Parse(ctx context.Context, reader io.Reader, docMeta *models.DocumentMetadata) (*ParseResult, error) {
	data, err := io.ReadAll(reader)
	if err != nil {
		return nil, err
	}
	content := string(data)

	extracted := &models.DocumentMetadata{Title: firstLine(content)}
	sections := paragraphSections(content)

	return &ParseResult{
		Content:  strings.TrimSpace(content),
		Metadata: MergeMeta(docMeta, extracted),
		Sections: sections,
	}, nil
}

func firstLine(content string) string {
	scanner := bufio.NewScanner(strings.NewReader(content))
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		if len(line) > 100 {
			return line[:100] + "..."
		}
		return line
	}
	return ""
}

func paragraphSections(content string) []Section {
	normalized := strings.ReplaceAll(content, "\r\n", "\n")
	paragraphs := strings.Split(normalized, "\n\n")

	var sections []Section
	offset := 0
	for i, para := range paragraphs {
		para = strings.TrimSpace(para)
		if para == "" {
			continue
		}
		idx := strings.Index(normalized[offset:], para)
		if idx < 0 {
			continue
		}
		start := offset + idx
		end := start + len(para)
		sections = append(sections, Section{
			Title:       paragraphTitle(para, i+1),
			Level:       1,
			Content:     para,
			StartOffset: start,
			EndOffset:   end,
		})
		offset = end
	}
	return sections
}

func paragraphTitle(content string, index int) string {
	line := content
	if idx := strings.IndexByte(content, '\n'); idx > 0 {
		line = strings.TrimSpace(content[:idx])
	}
	if len(line) > 50 {
		line = line[:50] + "..."
	}
	return line
}
