package eval

import (
	"fmt"
	"strings"

	"github.com/agentic-orchestration/runtime/pkg/models"
)

// BuildContext formats retrieved evidence into a plain-text block for the
// judge prompts, the evaluation-time counterpart of
// internal/retrieval/writer.go's citation-tagged block.
func BuildContext(evidence []models.Evidence) string {
	if len(evidence) == 0 {
		return ""
	}
	var sb strings.Builder
	sb.WriteString("Retrieved context:\n\n")
	for i, e := range evidence {
		source := e.Title
		if source == "" {
			source = e.SourceURI
		}
		if source == "" {
			source = "evidence"
		}
		sb.WriteString(fmt.Sprintf("[%d] %s", i+1, source))
		if e.Score > 0 {
			sb.WriteString(fmt.Sprintf(" (score: %.2f)", e.Score))
		}
		sb.WriteString("\n")
		sb.WriteString(e.Content)
		sb.WriteString("\n\n")
	}
	return strings.TrimSpace(sb.String())
}
