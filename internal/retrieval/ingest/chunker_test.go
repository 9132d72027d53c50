package ingest

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/agentic-orchestration/runtime/pkg/models"
)

func TestRecursiveSplitter_Chunk_SplitsLongContentWithOverlap(t *testing.T) {
	cfg := ChunkerConfig{ChunkSize: 50, ChunkOverlap: 10, MinChunkSize: 5, KeepSeparators: true}
	splitter := NewRecursiveSplitter(cfg)

	content := strings.Repeat("the quick brown fox jumps over the lazy dog. ", 6)
	doc := &models.Document{ID: "doc-1", Name: "test"}
	parsed := &ParseResult{Content: content}

	chunks, err := splitter.Chunk(doc, parsed)
	require.NoError(t, err)
	require.NotEmpty(t, chunks)

	for _, c := range chunks {
		assert.Equal(t, "doc-1", c.DocumentID)
		assert.NotEmpty(t, c.Content)
		assert.Greater(t, c.TokenCount, 0)
	}
}

func TestRecursiveSplitter_Chunk_EmptyContentReturnsNoChunks(t *testing.T) {
	splitter := NewRecursiveSplitter(DefaultChunkerConfig())
	chunks, err := splitter.Chunk(&models.Document{}, &ParseResult{Content: "   "})
	require.NoError(t, err)
	assert.Empty(t, chunks)
}

func TestRecursiveSplitter_Chunk_LabelsChunksWithSection(t *testing.T) {
	splitter := NewRecursiveSplitter(ChunkerConfig{ChunkSize: 200, ChunkOverlap: 0, MinChunkSize: 1})
	content := "Intro text.\n\nBody content under the heading."
	doc := &models.Document{ID: "doc-1"}
	parsed := &ParseResult{
		Content: content,
		Sections: []Section{
			{Title: "Introduction", StartOffset: 0, EndOffset: 12},
			{Title: "Body", StartOffset: 12, EndOffset: len(content)},
		},
	}

	chunks, err := splitter.Chunk(doc, parsed)
	require.NoError(t, err)
	require.NotEmpty(t, chunks)
	assert.Equal(t, "Introduction", chunks[0].Metadata.Section)
}

func TestEstimateTokens_ApproximatesFourCharsPerToken(t *testing.T) {
	assert.Equal(t, 3, estimateTokens("abcdefghij"))
	assert.Equal(t, 0, estimateTokens(""))
}
