package eval

import (
	"context"
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"github.com/agentic-orchestration/runtime/pkg/models"
)

const (
	defaultScoreMaxTokens  = 256
	defaultAnswerMaxTokens = 1024
)

var scorePattern = regexp.MustCompile(`[-+]?[0-9]*\.?[0-9]+`)

// Completer is the opaque LLM seam the judge scores through, mirrored
// locally (same shape as graph.Completer/retrieval.Completer) to avoid
// coupling this package to the orchestrator.
type Completer interface {
	Complete(ctx context.Context, system, user string, opts map[string]any) (string, error)
}

// Judge scores synthesized-answer quality with an LLM acting as a
// strict grader, returning a 0-1 score for each dimension.
type Judge struct {
	completer       Completer
	scoreMaxTokens  int
	answerMaxTokens int
}

// NewJudge constructs a Judge over completer.
func NewJudge(completer Completer) *Judge {
	return &Judge{completer: completer, scoreMaxTokens: defaultScoreMaxTokens, answerMaxTokens: defaultAnswerMaxTokens}
}

// GenerateAnswer produces an answer grounded only in context, for
// evaluating retrieval end to end without the full orchestrator.
func (j *Judge) GenerateAnswer(ctx context.Context, query, evidenceContext string) (string, error) {
	if j == nil || j.completer == nil {
		return "", fmt.Errorf("judge completer is nil")
	}
	system := "You are a concise assistant. Answer only using the provided context. " +
		"If the context does not contain the answer, say you don't know."
	user := fmt.Sprintf("Question:\n%s\n\nContext:\n%s\n\nAnswer:", query, evidenceContext)
	return j.complete(ctx, system, user, j.answerMaxTokens)
}

// JudgeRelevance scores how well the answer addresses the query.
func (j *Judge) JudgeRelevance(ctx context.Context, query, answer string) (float64, error) {
	if strings.TrimSpace(answer) == "" {
		return 0, nil
	}
	system := "You are a strict evaluator. Return only a single number between 0 and 1. " +
		"0 means the answer is unrelated. 1 means it fully answers the question."
	user := fmt.Sprintf("Question:\n%s\n\nAnswer:\n%s\n\nScore (0-1):", query, answer)
	text, err := j.complete(ctx, system, user, j.scoreMaxTokens)
	if err != nil {
		return 0, err
	}
	return parseScore(text)
}

// JudgeFaithfulness scores how well the answer is supported by evidence.
func (j *Judge) JudgeFaithfulness(ctx context.Context, answer string, evidence []models.Evidence) (float64, error) {
	if strings.TrimSpace(answer) == "" {
		return 0, nil
	}
	system := "You are a strict evaluator. Return only a single number between 0 and 1. " +
		"0 means the answer is not supported by the context. 1 means all claims are fully supported."
	user := fmt.Sprintf("Context:\n%s\n\nAnswer:\n%s\n\nScore (0-1):", BuildContext(evidence), answer)
	text, err := j.complete(ctx, system, user, j.scoreMaxTokens)
	if err != nil {
		return 0, err
	}
	return parseScore(text)
}

// JudgeContextRecall scores how much of the retrieved context the
// answer reflects.
func (j *Judge) JudgeContextRecall(ctx context.Context, answer string, evidence []models.Evidence) (float64, error) {
	if strings.TrimSpace(answer) == "" {
		return 0, nil
	}
	system := "You are a strict evaluator. Return only a single number between 0 and 1. " +
		"0 means the answer ignores the context. 1 means it captures all key facts from the context."
	user := fmt.Sprintf("Context:\n%s\n\nAnswer:\n%s\n\nScore (0-1):", BuildContext(evidence), answer)
	text, err := j.complete(ctx, system, user, j.scoreMaxTokens)
	if err != nil {
		return 0, err
	}
	return parseScore(text)
}

func (j *Judge) complete(ctx context.Context, system, user string, maxTokens int) (string, error) {
	if j.completer == nil {
		return "", fmt.Errorf("judge completer is nil")
	}
	out, err := j.completer.Complete(ctx, system, user, map[string]any{"max_tokens": maxTokens})
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(out), nil
}

func parseScore(text string) (float64, error) {
	trimmed := strings.TrimSpace(text)
	if trimmed == "" {
		return 0, fmt.Errorf("empty judge response")
	}
	match := scorePattern.FindString(trimmed)
	if match == "" {
		return 0, fmt.Errorf("no numeric score in response: %q", trimmed)
	}
	val, err := strconv.ParseFloat(match, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid score %q: %w", match, err)
	}
	if val < 0 {
		return 0, fmt.Errorf("score out of range: %v", val)
	}
	if val > 1 {
		if val <= 100 && strings.Contains(trimmed, "%") {
			val = val / 100
		} else {
			return 0, fmt.Errorf("score out of range: %v", val)
		}
	}
	return val, nil
}
