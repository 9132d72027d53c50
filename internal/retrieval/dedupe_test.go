package retrieval

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/agentic-orchestration/runtime/pkg/models"
)

func TestDedupe_KeepsDistinctChunksFromSameDocument(t *testing.T) {
	evidence := []models.Evidence{
		{ID: "chunk-1", SourceURI: "docs/a.md", Content: "first chunk"},
		{ID: "chunk-2", SourceURI: "docs/a.md", Content: "second chunk"},
	}

	out := Dedupe(evidence, 0)
	assert.Len(t, out, 2)
}

func TestDedupe_DropsExactRepeat(t *testing.T) {
	evidence := []models.Evidence{
		{ID: "chunk-1", SourceURI: "docs/a.md", Content: "first"},
		{ID: "chunk-1", SourceURI: "docs/a.md", Content: "first, again"},
	}

	out := Dedupe(evidence, 0)
	assert.Len(t, out, 1)
	assert.Equal(t, "first", out[0].Content)
}

func TestDedupe_FallsBackToIDWhenSourceURIEmpty(t *testing.T) {
	evidence := []models.Evidence{
		{ID: "doc-1", Content: "a"},
		{ID: "doc-2", Content: "b"},
		{ID: "doc-1", Content: "a again"},
	}

	out := Dedupe(evidence, 0)
	assert.Len(t, out, 2)
}

func TestDedupe_CapsAtMax(t *testing.T) {
	evidence := []models.Evidence{
		{ID: "1", SourceURI: "a"},
		{ID: "2", SourceURI: "b"},
		{ID: "3", SourceURI: "c"},
	}

	out := Dedupe(evidence, 2)
	assert.Len(t, out, 2)
}
