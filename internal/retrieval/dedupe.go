package retrieval

import "github.com/agentic-orchestration/runtime/pkg/models"

// identity returns the dedup key for a piece of Evidence: the pair
// (SourceURI, ID). SourceURI identifies the parent document and is shared
// across every chunk retrieved from it; ID identifies the individual chunk
// within that document. Keying on SourceURI alone would collapse distinct
// chunks of the same document into a single "duplicate".
func identity(e models.Evidence) string {
	return e.SourceURI + "\x00" + e.ID
}

// Dedupe removes Evidence with a duplicate identity, keeping the first
// occurrence (stable, deterministic dedup), and caps
// the result at max entries.
func Dedupe(evidence []models.Evidence, max int) []models.Evidence {
	seen := make(map[string]bool, len(evidence))
	out := make([]models.Evidence, 0, len(evidence))

	for _, e := range evidence {
		key := identity(e)
		if seen[key] {
			continue
		}
		seen[key] = true
		out = append(out, e)
		if max > 0 && len(out) >= max {
			break
		}
	}
	return out
}
