package eval

import (
	"context"
	"fmt"
	"time"

	"github.com/agentic-orchestration/runtime/internal/vectorstore"
)

// Options controls evaluation behavior.
type Options struct {
	Limit int
	Judge bool
}

// Evaluator runs retrieval evaluation against a test set, scoring the
// VectorIndex directly (bypassing the full orchestrator pipeline) so
// retrieval quality can be measured independent of writer/critic
// behavior.
type Evaluator struct {
	index   vectorstore.VectorIndex
	options Options
	judge   *Judge
}

// NewEvaluator constructs an Evaluator over index.
func NewEvaluator(index vectorstore.VectorIndex, opts *Options) *Evaluator {
	resolved := Options{Limit: 10}
	if opts != nil {
		if opts.Limit > 0 {
			resolved.Limit = opts.Limit
		}
		resolved.Judge = opts.Judge
	}
	return &Evaluator{index: index, options: resolved}
}

// WithJudge attaches a Judge for answer-quality scoring.
func (e *Evaluator) WithJudge(judge *Judge) *Evaluator {
	e.judge = judge
	return e
}

// Evaluate runs every case in set and returns an aggregated Report.
func (e *Evaluator) Evaluate(ctx context.Context, set *TestSet) (*Report, error) {
	if set == nil {
		return nil, fmt.Errorf("test set is nil")
	}
	if e.index == nil {
		return nil, fmt.Errorf("vector index is nil")
	}

	results := make([]CaseResult, 0, len(set.Cases))
	for _, tc := range set.Cases {
		result, err := e.evaluateCase(ctx, tc)
		if err != nil {
			return nil, fmt.Errorf("case %s: %w", tc.ID, err)
		}
		results = append(results, result)
	}

	return &Report{
		GeneratedAt: time.Now(),
		TestSetName: set.Name,
		Cases:       results,
		Summary:     summarize(results),
	}, nil
}

func (e *Evaluator) evaluateCase(ctx context.Context, tc TestCase) (CaseResult, error) {
	start := time.Now()
	evidence, err := e.index.Search(ctx, tc.Query, e.options.Limit)
	if err != nil {
		return CaseResult{}, fmt.Errorf("search failed: %w", err)
	}
	queryTime := time.Since(start)

	retrieved := make([]ResultKey, 0, len(evidence))
	for _, ev := range evidence {
		retrieved = append(retrieved, ResultKey{SourceURI: ev.SourceURI})
	}

	precision, recall := PrecisionRecall(retrieved, tc.ExpectedEvidence)
	mrr := MRR(retrieved, tc.ExpectedEvidence)
	ndcg := NDCG(retrieved, tc.ExpectedEvidence)

	result := CaseResult{
		CaseID:        tc.ID,
		Query:         tc.Query,
		Retrieved:     len(retrieved),
		Expected:      len(tc.ExpectedEvidence),
		Precision:     precision,
		Recall:        recall,
		MRR:           mrr,
		NDCG:          ndcg,
		QueryTime:     queryTime,
		ExpectedHints: tc.ExpectedEvidence,
	}

	if e.judge == nil {
		return result, nil
	}

	answer, err := e.judge.GenerateAnswer(ctx, tc.Query, BuildContext(evidence))
	if err != nil {
		return CaseResult{}, err
	}
	result.Answer = answer
	result.Judged = true

	if result.Relevance, err = e.judge.JudgeRelevance(ctx, tc.Query, answer); err != nil {
		return CaseResult{}, err
	}
	if result.Faithfulness, err = e.judge.JudgeFaithfulness(ctx, answer, evidence); err != nil {
		return CaseResult{}, err
	}
	if result.ContextRecall, err = e.judge.JudgeContextRecall(ctx, answer, evidence); err != nil {
		return CaseResult{}, err
	}

	if len(tc.ExpectedAnswerContains) > 0 {
		result.AnswerExpected, result.AnswerMatched, result.AnswerMissing = MatchExpectedAnswer(answer, tc.ExpectedAnswerContains)
		if result.AnswerExpected > 0 {
			result.AnswerCoverage = float64(result.AnswerMatched) / float64(result.AnswerExpected)
		}
	}

	return result, nil
}
