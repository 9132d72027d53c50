package eval

import (
	"math"
	"strings"
)

// PrecisionRecall computes precision and recall of retrieved evidence
// against the expected set.
func PrecisionRecall(retrieved []ResultKey, expected []ExpectedChunk) (precision, recall float64) {
	if len(retrieved) == 0 {
		return 0, 0
	}
	set := expectedSet(expected)
	relevant := 0
	for _, r := range retrieved {
		if set[r.SourceURI] {
			relevant++
		}
	}
	precision = float64(relevant) / float64(len(retrieved))
	if len(set) == 0 {
		return precision, 0
	}
	recall = float64(relevant) / float64(len(set))
	return precision, recall
}

// MRR computes the mean reciprocal rank of the first relevant result.
func MRR(retrieved []ResultKey, expected []ExpectedChunk) float64 {
	set := expectedSet(expected)
	for idx, r := range retrieved {
		if set[r.SourceURI] {
			return 1.0 / float64(idx+1)
		}
	}
	return 0
}

// NDCG computes normalized discounted cumulative gain for binary
// relevance.
func NDCG(retrieved []ResultKey, expected []ExpectedChunk) float64 {
	set := expectedSet(expected)
	if len(set) == 0 || len(retrieved) == 0 {
		return 0
	}
	dcg := 0.0
	for idx, r := range retrieved {
		if set[r.SourceURI] {
			dcg += 1.0 / math.Log2(float64(idx+2))
		}
	}
	idcg := idealDCG(len(set), len(retrieved))
	if idcg == 0 {
		return 0
	}
	return dcg / idcg
}

func idealDCG(expectedCount, retrievedCount int) float64 {
	n := expectedCount
	if retrievedCount < n {
		n = retrievedCount
	}
	idcg := 0.0
	for i := 0; i < n; i++ {
		idcg += 1.0 / math.Log2(float64(i+2))
	}
	return idcg
}

func expectedSet(expected []ExpectedChunk) map[string]bool {
	set := make(map[string]bool, len(expected))
	for _, e := range expected {
		if e.SourceURI != "" {
			set[e.SourceURI] = true
		}
	}
	return set
}

// MatchExpectedAnswer reports how many non-empty expected substrings
// (case-insensitive) appear in answer, and which are missing.
func MatchExpectedAnswer(answer string, expected []string) (expectedCount, matchedCount int, missing []string) {
	lower := strings.ToLower(answer)
	for _, e := range expected {
		e = strings.TrimSpace(e)
		if e == "" {
			continue
		}
		expectedCount++
		if strings.Contains(lower, strings.ToLower(e)) {
			matchedCount++
		} else {
			missing = append(missing, e)
		}
	}
	return expectedCount, matchedCount, missing
}
