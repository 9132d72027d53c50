package ingest

import (
	"bytes"
	"context"
	"io"
	"strings"

	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/ast"
	gmtext "github.com/yuin/goldmark/text"
	"gopkg.in/yaml.v3"

	"github.com/agentic-orchestration/runtime/pkg/models"
)

// MarkdownParser parses Markdown documents, extracting YAML frontmatter
// and heading-delimited sections via a goldmark AST walk rather than
// hand-rolled heading regexes.
type MarkdownParser struct {
	md goldmark.Markdown
}

// NewMarkdownParser constructs a MarkdownParser.
func NewMarkdownParser() *MarkdownParser {
	return &MarkdownParser{md: goldmark.New()}
}

func (p *MarkdownParser) Name() string { return "markdown" }

func (p *MarkdownParser) SupportedTypes() []string {
	return []string{"text/markdown", "text/x-markdown"}
}

func (p *MarkdownParser) SupportedExtensions() []string {
	return []string{".md", ".markdown", ".mdown", ".mkd"}
}

// Parse strips any leading frontmatter block, then walks the remaining
// body's goldmark AST to recover sections for structure-aware chunking.
func (p *MarkdownParser) Parse(ctx context.Context, reader io.Reader, docMeta *models.DocumentMetadata) (*ParseResult, error) {
	data, err := io.ReadAll(reader)
	if err != nil {
		return nil, err
	}

	frontmatter, body := splitFrontmatter(string(data))

	extracted := &models.DocumentMetadata{}
	if frontmatter != "" {
		if meta, err := parseFrontmatter(frontmatter); err == nil {
			extracted = meta
		}
	}

	source := []byte(body)
	sections := p.headingSections(source)

	if extracted.Title == "" && len(sections) > 0 {
		extracted.Title = sections[0].Title
	}

	return &ParseResult{
		Content:  strings.TrimSpace(body),
		Metadata: MergeMeta(docMeta, extracted),
		Sections: sections,
	}, nil
}

// headingSections walks the goldmark AST for a document and emits one
// Section per heading, spanning from that heading to the next one (or
// document end) at the same level or shallower.
func (p *MarkdownParser) headingSections(source []byte) []Section {
	doc := p.md.Parser().Parse(gmtext.NewReader(source))

	type marker struct {
		title  string
		level  int
		offset int
	}
	var markers []marker

	_ = ast.Walk(doc, func(n ast.Node, entering bool) (ast.WalkStatus, error) {
		if !entering {
			return ast.WalkContinue, nil
		}
		heading, ok := n.(*ast.Heading)
		if !ok {
			return ast.WalkContinue, nil
		}
		title := headingText(heading, source)
		offset := len(source)
		if lines := heading.Lines(); lines.Len() > 0 {
			offset = lines.At(0).Start
		}
		markers = append(markers, marker{title: title, level: heading.Level, offset: offset})
		return ast.WalkSkipChildren, nil
	})

	sections := make([]Section, 0, len(markers))
	for i, m := range markers {
		end := len(source)
		if i+1 < len(markers) {
			end = markers[i+1].offset
		}
		content := ""
		if m.offset < end && end <= len(source) {
			content = strings.TrimSpace(string(source[m.offset:end]))
		}
		sections = append(sections, Section{
			Title:       m.title,
			Level:       m.level,
			Content:     content,
			StartOffset: m.offset,
			EndOffset:   end,
		})
	}
	return sections
}

func headingText(h *ast.Heading, source []byte) string {
	var buf bytes.Buffer
	for c := h.FirstChild(); c != nil; c = c.NextSibling() {
		if t, ok := c.(*ast.Text); ok {
			buf.Write(t.Segment.Value(source))
		}
	}
	return strings.TrimSpace(buf.String())
}

// splitFrontmatter separates a leading "---"-delimited YAML block from
// the document body.
func splitFrontmatter(content string) (frontmatter, body string) {
	content = strings.TrimSpace(content)
	if !strings.HasPrefix(content, "---") {
		return "", content
	}

	lines := strings.Split(content, "\n")
	if len(lines) < 3 {
		return "", content
	}

	end := -1
	for i := 1; i < len(lines); i++ {
		trimmed := strings.TrimSpace(lines[i])
		if trimmed == "---" || trimmed == "..." {
			end = i
			break
		}
	}
	if end == -1 {
		return "", content
	}

	return strings.Join(lines[1:end], "\n"), strings.Join(lines[end+1:], "\n")
}

type frontmatterFields struct {
	Title       string   `yaml:"title"`
	Description string   `yaml:"description"`
	Summary     string   `yaml:"summary"`
	Tags        []string `yaml:"tags"`
	Keywords    []string `yaml:"keywords"`
	Language    string   `yaml:"language"`
	Lang        string   `yaml:"lang"`
}

func parseFrontmatter(raw string) (*models.DocumentMetadata, error) {
	var fields frontmatterFields
	if err := yaml.Unmarshal([]byte(raw), &fields); err != nil {
		return nil, err
	}

	meta := &models.DocumentMetadata{
		Title:       fields.Title,
		Description: fields.Description,
	}
	if meta.Description == "" {
		meta.Description = fields.Summary
	}
	if fields.Language != "" {
		meta.Language = fields.Language
	} else {
		meta.Language = fields.Lang
	}

	tags := make([]string, 0, len(fields.Tags)+len(fields.Keywords))
	tags = append(tags, fields.Tags...)
	tags = append(tags, fields.Keywords...)
	if len(tags) > 0 {
		meta.Tags = tags
	}

	return meta, nil
}
