package retrieval

import "regexp"

// Hand-rolled regex redaction, standard-library only: no PII-redaction
// library appears anywhere in the retrieval pack, and Trace Journal
// metadata redaction elsewhere in this runtime is likewise a plain
// substring/field matcher rather than a dedicated library. Following
// that precedent rather than introducing an unexercised new dependency.
var (
	emailPattern = regexp.MustCompile(`[a-zA-Z0-9._%+\-]+@[a-zA-Z0-9.\-]+\.[a-zA-Z]{2,}`)
	phonePattern = regexp.MustCompile(`\b(?:\+?\d{1,2}[\s.\-]?)?\(?\d{3}\)?[\s.\-]?\d{3}[\s.\-]?\d{4}\b`)
)

const piiSentinel = "[REDACTED]"

// RedactPII replaces emails and phone numbers in text with a sentinel,
// applied to the final synthesized answer before it leaves the
// orchestrator's guardrails stage.
func RedactPII(text string) string {
	text = emailPattern.ReplaceAllString(text, piiSentinel)
	text = phonePattern.ReplaceAllString(text, piiSentinel)
	return text
}
