package ingest

import (
	"context"
	"fmt"
	"io"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/agentic-orchestration/runtime/internal/vectorstore"
	"github.com/agentic-orchestration/runtime/pkg/models"
)

// Manager runs the parse -> chunk -> store pipeline that populates a
// VectorIndex. Embedding is the index's own concern (a
// VectorIndex embeds chunks lacking a precomputed vector), so this
// manager's surface is narrower than a full index manager — it
// never talks to an embedding provider directly.
type Manager struct {
	index    vectorstore.VectorIndex
	chunker  Chunker
	registry *Registry
	config   ManagerConfig
}

// ManagerConfig controls ingestion defaults.
type ManagerConfig struct {
	Chunker       ChunkerConfig
	DefaultSource string
}

// DefaultManagerConfig returns sensible ingestion defaults.
func DefaultManagerConfig() ManagerConfig {
	return ManagerConfig{
		Chunker:       DefaultChunkerConfig(),
		DefaultSource: "upload",
	}
}

// NewManager constructs a Manager backed by index, with markdown and
// text parsers registered.
func NewManager(index vectorstore.VectorIndex, cfg ManagerConfig) *Manager {
	if cfg.Chunker.ChunkSize == 0 {
		cfg.Chunker = DefaultChunkerConfig()
	}
	if cfg.DefaultSource == "" {
		cfg.DefaultSource = "upload"
	}

	registry := NewRegistry()
	registry.Register(NewMarkdownParser())
	textParser := NewTextParser()
	registry.Register(textParser)
	registry.SetDefault(textParser)

	return &Manager{
		index:    index,
		chunker:  NewRecursiveSplitter(cfg.Chunker),
		registry: registry,
		config:   cfg,
	}
}

// WithChunker overrides the default recursive splitter.
func (m *Manager) WithChunker(c Chunker) *Manager {
	m.chunker = c
	return m
}

// WithParser registers an additional Parser into the manager's registry, for
// formats (like PDF) whose dependency should only be pulled in by callers
// that actually need it rather than by this package itself.
func (m *Manager) WithParser(p Parser) *Manager {
	m.registry.Register(p)
	return m
}

// IngestRequest describes one document to ingest.
type IngestRequest struct {
	DocumentID  string
	Name        string
	Source      string
	SourceURI   string
	ContentType string
	Content     io.Reader
	Metadata    *models.DocumentMetadata
}

// IngestResult reports what was produced for one document.
type IngestResult struct {
	Document    *models.Document
	ChunkCount  int
	TotalTokens int
	Duration    time.Duration
}

// Ingest parses, chunks, and stores one document.
func (m *Manager) Ingest(ctx context.Context, req *IngestRequest) (*IngestResult, error) {
	start := time.Now()

	if req.Content == nil {
		return nil, fmt.Errorf("content is required")
	}
	if req.Name == "" {
		req.Name = "Untitled document"
	}
	if req.Source == "" {
		req.Source = m.config.DefaultSource
	}

	ext := filepath.Ext(req.SourceURI)
	if ext == "" {
		ext = filepath.Ext(req.Name)
	}

	parser, err := m.registry.Get(req.ContentType, ext)
	if err != nil {
		return nil, fmt.Errorf("no parser available: %w", err)
	}

	parsed, err := parser.Parse(ctx, req.Content, req.Metadata)
	if err != nil {
		return nil, fmt.Errorf("parse failed: %w", err)
	}

	metadata := models.DocumentMetadata{}
	if parsed.Metadata != nil {
		metadata = *parsed.Metadata
	}

	docID := strings.TrimSpace(req.DocumentID)
	if docID == "" {
		docID = uuid.NewString()
	}

	doc := &models.Document{
		ID:          docID,
		Name:        req.Name,
		Source:      req.Source,
		SourceURI:   req.SourceURI,
		ContentType: req.ContentType,
		Content:     parsed.Content,
		Metadata:    metadata,
		CreatedAt:   time.Now(),
		UpdatedAt:   time.Now(),
	}

	chunks, err := m.chunker.Chunk(doc, parsed)
	if err != nil {
		return nil, fmt.Errorf("chunking failed: %w", err)
	}

	totalTokens := 0
	for _, c := range chunks {
		totalTokens += c.TokenCount
	}
	doc.ChunkCount = len(chunks)
	doc.TotalTokens = totalTokens

	if err := m.index.Add(ctx, chunks); err != nil {
		return nil, fmt.Errorf("index failed: %w", err)
	}

	return &IngestResult{
		Document:    doc,
		ChunkCount:  len(chunks),
		TotalTokens: totalTokens,
		Duration:    time.Since(start),
	}, nil
}

// IngestText ingests raw text directly, skipping file-extension
// detection.
func (m *Manager) IngestText(ctx context.Context, name, content string, metadata *models.DocumentMetadata) (*IngestResult, error) {
	return m.Ingest(ctx, &IngestRequest{
		Name:        name,
		Source:      m.config.DefaultSource,
		ContentType: "text/plain",
		Content:     strings.NewReader(content),
		Metadata:    metadata,
	})
}
