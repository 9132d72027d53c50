package ingest

import (
	"context"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/agentic-orchestration/runtime/internal/vectorstore"
)

// constantProvider always returns the same fixed-dimension embedding,
// enough to exercise the ingest -> index path without a real model.
type constantProvider struct{ dim int }

func (p *constantProvider) Dimension() int { return p.dim }

func (p *constantProvider) Embed(ctx context.Context, text string) ([]float32, error) {
	vec := make([]float32, p.dim)
	vec[0] = 1
	return vec, nil
}

func (p *constantProvider) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	out := make([][]float32, len(texts))
	for i := range texts {
		out[i], _ = p.Embed(ctx, texts[i])
	}
	return out, nil
}

func TestManager_Ingest_MarkdownDocumentProducesChunksInIndex(t *testing.T) {
	index := vectorstore.NewMemoryIndex(&constantProvider{dim: 4}, "vector")
	mgr := NewManager(index, ManagerConfig{Chunker: ChunkerConfig{ChunkSize: 100, ChunkOverlap: 10, MinChunkSize: 5}})

	content := "# Title\n\n" + strings.Repeat("retry logic details. ", 20)
	result, err := mgr.Ingest(context.Background(), &IngestRequest{
		Name:        "retries.md",
		ContentType: "text/markdown",
		SourceURI:   "docs/retries.md",
		Content:     strings.NewReader(content),
	})
	require.NoError(t, err)
	assert.Greater(t, result.ChunkCount, 0)
	assert.Equal(t, result.ChunkCount, result.Document.ChunkCount)

	evidence, err := index.Search(context.Background(), "retry logic", 5)
	require.NoError(t, err)
	assert.NotEmpty(t, evidence)
}

func TestManager_Ingest_NilContentIsAnError(t *testing.T) {
	index := vectorstore.NewMemoryIndex(&constantProvider{dim: 4}, "vector")
	mgr := NewManager(index, ManagerConfig{})

	_, err := mgr.Ingest(context.Background(), &IngestRequest{Name: "empty"})
	assert.Error(t, err)
}

func TestManager_IngestText_DefaultsSourceAndContentType(t *testing.T) {
	index := vectorstore.NewMemoryIndex(&constantProvider{dim: 4}, "vector")
	mgr := NewManager(index, ManagerConfig{})

	result, err := mgr.IngestText(context.Background(), "note", "a short plain note", nil)
	require.NoError(t, err)
	assert.Equal(t, "upload", result.Document.Source)
	assert.Equal(t, "text/plain", result.Document.ContentType)
}
