package retrieval

import (
	"fmt"
	"strings"

	"github.com/agentic-orchestration/runtime/pkg/models"
)

// FormatEvidenceBlock renders deduped evidence as a numbered context block
// for the writer prompt, each entry tagged with the "[#N]" marker the
// writer is expected to cite back — the same header/chunk/footer shape as
// a context-injection step, adapted from per-chunk Markdown sections
// to ordinal-tagged citations.
func FormatEvidenceBlock(evidence []models.Evidence) string {
	if len(evidence) == 0 {
		return ""
	}

	var sb strings.Builder
	sb.WriteString("## Retrieved evidence\n\n")
	for i, e := range evidence {
		title := e.Title
		if title == "" {
			title = e.SourceURI
		}
		if title == "" {
			title = "Untitled source"
		}
		sb.WriteString(fmt.Sprintf("[#%d] %s\n%s\n\n", i+1, title, e.Content))
	}
	return sb.String()
}

// ExtractCitations finds every "[#N]" marker in text and returns the
// ordinals actually cited, deduped but preserving first-seen order.
func ExtractCitations(text string) []int {
	var ordinals []int
	seen := map[int]bool{}

	for i := 0; i < len(text); i++ {
		if text[i] != '[' || i+1 >= len(text) || text[i+1] != '#' {
			continue
		}
		j := i + 2
		start := j
		for j < len(text) && text[j] >= '0' && text[j] <= '9' {
			j++
		}
		if j == start || j >= len(text) || text[j] != ']' {
			continue
		}
		n := 0
		for _, c := range text[start:j] {
			n = n*10 + int(c-'0')
		}
		if !seen[n] {
			seen[n] = true
			ordinals = append(ordinals, n)
		}
	}
	return ordinals
}
