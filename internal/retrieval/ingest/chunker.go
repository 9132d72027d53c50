package ingest

import (
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/agentic-orchestration/runtime/pkg/models"
)

// Chunker splits a parsed document into chunks suitable for embedding.
type Chunker interface {
	Chunk(doc *models.Document, parsed *ParseResult) ([]*models.DocumentChunk, error)
	Name() string
}

// ChunkerConfig controls chunk sizing.
type ChunkerConfig struct {
	ChunkSize          int
	ChunkOverlap       int
	MinChunkSize       int
	PreserveWhitespace bool
	KeepSeparators     bool
}

// DefaultChunkerConfig returns the chunk sizing used when a caller
// supplies none, tuned to the evidence-chunk shape the writer stage
// expects: dense enough to carry a full citation's worth of context,
// small enough that several fit in one evidence block.
func DefaultChunkerConfig() ChunkerConfig {
	return ChunkerConfig{
		ChunkSize:          800,
		ChunkOverlap:       120,
		MinChunkSize:       80,
		PreserveWhitespace: false,
		KeepSeparators:     true,
	}
}

type textSpan struct {
	Content     string
	StartOffset int
	EndOffset   int
}

// RecursiveSplitter splits text on a separator hierarchy, largest
// semantic unit first, falling back to smaller separators only where a
// piece still exceeds the target chunk size.
type RecursiveSplitter struct {
	config     ChunkerConfig
	separators []string
}

// DefaultSeparators splits on paragraph, then line, then sentence
// boundaries before falling back to characters.
var DefaultSeparators = []string{"\n\n", "\n", ". ", "? ", "! ", "; ", ", ", " ", ""}

// MarkdownSeparators additionally prefers splitting at heading
// boundaries before falling back to DefaultSeparators' hierarchy.
var MarkdownSeparators = []string{"\n## ", "\n### ", "\n#### ", "\n\n", "\n", ". ", " ", ""}

// NewRecursiveSplitter constructs a splitter over DefaultSeparators.
func NewRecursiveSplitter(cfg ChunkerConfig) *RecursiveSplitter {
	def := DefaultChunkerConfig()
	if cfg.ChunkSize <= 0 {
		cfg.ChunkSize = def.ChunkSize
	}
	if cfg.ChunkOverlap < 0 {
		cfg.ChunkOverlap = def.ChunkOverlap
	}
	if cfg.ChunkOverlap >= cfg.ChunkSize {
		cfg.ChunkOverlap = cfg.ChunkSize / 5
	}
	if cfg.MinChunkSize <= 0 {
		cfg.MinChunkSize = def.MinChunkSize
	}
	return &RecursiveSplitter{config: cfg, separators: DefaultSeparators}
}

// NewMarkdownSplitter constructs a splitter that prefers heading
// boundaries before the default separator hierarchy.
func NewMarkdownSplitter(cfg ChunkerConfig) *RecursiveSplitter {
	s := NewRecursiveSplitter(cfg)
	s.separators = MarkdownSeparators
	return s
}

// Name identifies this chunker for logging.
func (s *RecursiveSplitter) Name() string { return "recursive_character" }

// Chunk splits parsed.Content into overlapping, section-labeled chunks.
func (s *RecursiveSplitter) Chunk(doc *models.Document, parsed *ParseResult) ([]*models.DocumentChunk, error) {
	content := parsed.Content
	if strings.TrimSpace(content) == "" {
		return nil, nil
	}

	raw := s.split(content, s.separators)
	merged := s.overlap(raw)

	now := time.Now()
	chunks := make([]*models.DocumentChunk, 0, len(merged))
	for i, span := range merged {
		section := sectionAt(parsed.Sections, span.StartOffset)
		chunks = append(chunks, &models.DocumentChunk{
			ID:          uuid.NewString(),
			DocumentID:  doc.ID,
			Index:       i,
			Content:     span.Content,
			StartOffset: span.StartOffset,
			EndOffset:   span.EndOffset,
			Metadata:    chunkMetadata(doc, section),
			TokenCount:  estimateTokens(span.Content),
			CreatedAt:   now,
		})
	}
	return chunks, nil
}

func (s *RecursiveSplitter) split(text string, separators []string) []textSpan {
	if len(text) == 0 {
		return nil
	}

	separator := ""
	for _, sep := range separators {
		if sep == "" || strings.Contains(text, sep) {
			separator = sep
			break
		}
	}

	var pieces []string
	if separator == "" {
		pieces = make([]string, 0, len(text))
		for _, r := range text {
			pieces = append(pieces, string(r))
		}
	} else {
		pieces = strings.Split(text, separator)
	}

	var result []textSpan
	var current strings.Builder
	offset := 0

	flush := func() {
		if current.Len() == 0 {
			return
		}
		content := current.String()
		if !s.config.PreserveWhitespace {
			content = strings.TrimSpace(content)
		}
		if len(content) >= s.config.MinChunkSize {
			result = append(result, textSpan{Content: content, StartOffset: offset, EndOffset: offset + len(content)})
		}
		offset += current.Len()
		current.Reset()
	}

	for i, piece := range pieces {
		segment := piece
		if s.config.KeepSeparators && separator != "" && i < len(pieces)-1 {
			segment = piece + separator
		}

		if current.Len() > 0 && current.Len()+len(segment) > s.config.ChunkSize {
			flush()
		}

		if len(segment) > s.config.ChunkSize && len(separators) > 1 {
			flush()
			for _, sub := range s.split(segment, separators[1:]) {
				sub.StartOffset += offset
				sub.EndOffset += offset
				result = append(result, sub)
			}
			offset += len(segment)
			continue
		}

		current.WriteString(segment)
	}
	flush()

	return result
}

func (s *RecursiveSplitter) overlap(spans []textSpan) []textSpan {
	if len(spans) <= 1 || s.config.ChunkOverlap <= 0 {
		return spans
	}

	result := make([]textSpan, len(spans))
	result[0] = spans[0]

	for i := 1; i < len(spans); i++ {
		prev := spans[i-1]
		overlap := s.config.ChunkOverlap
		if overlap > len(prev.Content) {
			overlap = len(prev.Content)
		}
		prefix := prev.Content[len(prev.Content)-overlap:]
		result[i] = textSpan{
			Content:     prefix + spans[i].Content,
			StartOffset: spans[i].StartOffset - overlap,
			EndOffset:   spans[i].EndOffset,
		}
	}
	return result
}

func sectionAt(sections []Section, offset int) string {
	for i := len(sections) - 1; i >= 0; i-- {
		if offset >= sections[i].StartOffset {
			return sections[i].Title
		}
	}
	return ""
}

func chunkMetadata(doc *models.Document, section string) models.ChunkMetadata {
	meta := models.ChunkMetadata{
		DocumentName:   doc.Name,
		DocumentSource: doc.Source,
		Section:        section,
		SessionID:      doc.Metadata.SessionID,
		Tags:           doc.Metadata.Tags,
	}
	if doc.Metadata.Custom != nil {
		meta.Extra = make(map[string]any, len(doc.Metadata.Custom))
		for k, v := range doc.Metadata.Custom {
			meta.Extra[k] = v
		}
	}
	return meta
}

// estimateTokens approximates token count at four characters per token,
// the same rough heuristic the writer stage's evidence budget assumes.
func estimateTokens(text string) int {
	const charsPerToken = 4
	return (len(text) + charsPerToken - 1) / charsPerToken
}
