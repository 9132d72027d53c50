// Package ingest implements document ingestion for the Retrieval
// Orchestrator: parsing raw documents, splitting them into chunks, and
// handing the chunks to a vectorstore.VectorIndex for embedding and
// storage.
package ingest

import (
	"context"
	"fmt"
	"io"
	"strings"
	"sync"

	"github.com/agentic-orchestration/runtime/pkg/models"
)

// Parser extracts text content and structure from a document format.
type Parser interface {
	Parse(ctx context.Context, reader io.Reader, docMeta *models.DocumentMetadata) (*ParseResult, error)
	Name() string
	SupportedTypes() []string
	SupportedExtensions() []string
}

// ParseResult is the output of parsing one document.
type ParseResult struct {
	Content  string
	Metadata *models.DocumentMetadata
	Sections []Section
}

// Section is a logical, headed region of a document used to label chunks
// with the heading they fall under.
type Section struct {
	Title       string
	Level       int
	Content     string
	StartOffset int
	EndOffset   int
}

// Registry resolves a Parser by content type or file extension, falling
// back to a default parser for unrecognized formats.
type Registry struct {
	mu            sync.RWMutex
	parsersByType map[string]Parser
	parsersByExt  map[string]Parser
	defaultParser Parser
}

// NewRegistry constructs an empty Registry.
func NewRegistry() *Registry {
	return &Registry{
		parsersByType: make(map[string]Parser),
		parsersByExt:  make(map[string]Parser),
	}
}

// Register adds a parser under every MIME type and extension it claims.
func (r *Registry) Register(p Parser) {
	r.mu.Lock()
	defer r.mu.Unlock()

	for _, mimeType := range p.SupportedTypes() {
		r.parsersByType[strings.ToLower(mimeType)] = p
	}
	for _, ext := range p.SupportedExtensions() {
		r.parsersByExt[strings.ToLower(strings.TrimPrefix(ext, "."))] = p
	}
}

// SetDefault sets the fallback parser used when no specific match exists.
func (r *Registry) SetDefault(p Parser) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.defaultParser = p
}

// Get resolves the best parser for a content type and/or extension.
func (r *Registry) Get(contentType, ext string) (Parser, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	if contentType != "" {
		normalized := contentType
		if idx := strings.IndexByte(normalized, ';'); idx != -1 {
			normalized = normalized[:idx]
		}
		if p, ok := r.parsersByType[strings.ToLower(strings.TrimSpace(normalized))]; ok {
			return p, nil
		}
	}
	if ext != "" {
		if p, ok := r.parsersByExt[strings.ToLower(strings.TrimPrefix(ext, "."))]; ok {
			return p, nil
		}
	}
	if r.defaultParser != nil {
		return r.defaultParser, nil
	}
	return nil, fmt.Errorf("no parser for content type %q, extension %q", contentType, ext)
}

// MergeMeta fills empty fields of base from extracted, preferring
// whatever the caller already supplied.
func MergeMeta(base, extracted *models.DocumentMetadata) *models.DocumentMetadata {
	if base == nil {
		base = &models.DocumentMetadata{}
	}
	if extracted == nil {
		return base
	}

	merged := *base
	if merged.Title == "" {
		merged.Title = extracted.Title
	}
	if merged.Description == "" {
		merged.Description = extracted.Description
	}
	if merged.Language == "" {
		merged.Language = extracted.Language
	}
	if len(merged.Tags) == 0 {
		merged.Tags = extracted.Tags
	}
	if len(extracted.Custom) > 0 {
		if merged.Custom == nil {
			merged.Custom = make(map[string]any)
		}
		for k, v := range extracted.Custom {
			if _, exists := merged.Custom[k]; !exists {
				merged.Custom[k] = v
			}
		}
	}
	return &merged
}
