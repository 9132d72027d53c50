// Package retrieval implements the Retrieval Orchestrator (C7): a serial
// intent -> plan -> per-sub-goal retrieval-plan -> retrieve -> dedup ->
// write -> critic -> guardrails pipeline over a VectorIndex and an
// optional web Searcher/Fetcher.
package retrieval

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/agentic-orchestration/runtime/internal/trace"
	"github.com/agentic-orchestration/runtime/internal/vectorstore"
	"github.com/agentic-orchestration/runtime/pkg/models"
)

// Completer is the opaque LLM seam, mirrored locally to avoid a dependency
// on the graph package for what is structurally the same interface.
type Completer interface {
	Complete(ctx context.Context, system, user string, opts map[string]any) (string, error)
}

// SearchHit is one result from a web Searcher.
type SearchHit struct {
	Title   string
	URL     string
	Snippet string
}

// Searcher is the external web search seam.
type Searcher interface {
	Search(ctx context.Context, query string, k int) ([]SearchHit, error)
}

// Fetcher retrieves and extracts page text for a URL. The Fetcher itself
// does not bound the length; Run keeps the first 2000 bytes of each page.
type Fetcher interface {
	Fetch(ctx context.Context, url string) (string, error)
}

// Config wires the orchestrator's collaborators. Searcher and Fetcher are
// optional; when nil, sub-goals are answered from VectorIndex alone.
type Config struct {
	Completer   Completer
	VectorIndex vectorstore.VectorIndex
	Searcher    Searcher
	Fetcher     Fetcher
}

// Orchestrator runs the full retrieval pipeline for one task.
type Orchestrator struct {
	cfg Config
}

// New constructs an Orchestrator.
func New(cfg Config) *Orchestrator {
	return &Orchestrator{cfg: cfg}
}

// Result is the orchestrator's output: a synthesized, cited answer plus
// the evidence it drew on.
type Result struct {
	Status    string // "ok" | "needs_more"
	Draft     string
	Evidence  []models.Evidence
	Citations []models.Citation
	Missing   []string
}

type intentResult struct {
	Intents []string `json:"intents"`
	Urgency string   `json:"urgency"`
	Safety  string   `json:"safety"`
}

type writerResult struct {
	Status  string   `json:"status"`
	Draft   string   `json:"draft"`
	Missing []string `json:"missing"`
}

type criticResult struct {
	OK              bool     `json:"ok"`
	Issues          []string `json:"issues"`
	FollowupQueries []string `json:"followup_queries"`
}

// retrievalPlanResult is the output of the per-sub-goal retrieval-planning
// stage: a handful of diversified queries plus a target k, proposed before
// any search runs.
type retrievalPlanResult struct {
	Queries []string `json:"queries"`
	K       int      `json:"k"`
}

// stage names tag the node_enter/node_exit and llm_prompt/llm_output
// TraceEvents recorded for each call into this pipeline.
const (
	stageIntent        = "retrieval_intent"
	stagePlan          = "retrieval_plan"
	stageRetrievalPlan = "retrieval_plan_step"
	stageWriter        = "retrieval_writer"
	stageCritic        = "retrieval_critic"
	stageVectorSearch  = "retrieval_vector_search"
	stageWebSearch     = "retrieval_web_search"
)

// complete wraps a single Completer call with llm_prompt/llm_output trace
// events tagged with the calling stage.
func (o *Orchestrator) complete(ctx context.Context, stage, system, user string) (string, error) {
	trace.RecordEvent(ctx, trace.TraceEvent{Kind: trace.KindLLMPrompt, Node: stage, Prompt: user})
	out, err := o.cfg.Completer.Complete(ctx, system, user, nil)
	if err != nil {
		return "", err
	}
	trace.RecordEvent(ctx, trace.TraceEvent{Kind: trace.KindLLMOutput, Node: stage, Output: out})
	return out, nil
}

// Run executes the full pipeline serially (a determinism
// requirement: strict sequential stages, stable dedup).
func (o *Orchestrator) Run(ctx context.Context, task string) (*Result, error) {
	intent := o.classifyIntent(ctx, task)
	plan := o.decomposePlan(ctx, task, intent)

	var evidence []models.Evidence
	for _, step := range plan.Steps {
		rplan := o.planRetrieval(ctx, step)
		hits := o.retrieveForStep(ctx, step, rplan)
		evidence = append(evidence, Dedupe(hits, 20)...)
	}
	evidence = Dedupe(evidence, 50)

	draft := o.write(ctx, task, evidence)

	if draft.Status == "ok" {
		critic := o.critique(ctx, task, draft.Draft)
		if !critic.OK && len(critic.FollowupQueries) > 0 {
			followups := critic.FollowupQueries
			if len(followups) > 4 {
				followups = followups[:4]
			}

			var more []models.Evidence
			for _, q := range followups {
				step := models.PlanStep{Query: q, Channels: []string{"vector", "web"}}
				rplan := o.planRetrieval(ctx, step)
				more = append(more, o.retrieveForStep(ctx, step, rplan)...)
			}
			evidence = Dedupe(append(evidence, more...), 60)
			draft = o.write(ctx, task, evidence)
		}
	}

	final := RedactPII(draft.Draft)
	citations := buildCitations(final, evidence)

	return &Result{
		Status:    draft.Status,
		Draft:     final,
		Evidence:  evidence,
		Citations: citations,
		Missing:   draft.Missing,
	}, nil
}

func (o *Orchestrator) classifyIntent(ctx context.Context, task string) intentResult {
	trace.RecordEvent(ctx, trace.TraceEvent{Kind: trace.KindNodeEnter, Node: stageIntent})
	defer trace.RecordEvent(ctx, trace.TraceEvent{Kind: trace.KindNodeExit, Node: stageIntent})

	fallback := intentResult{Intents: []string{"answer"}, Urgency: "low"}
	if o.cfg.Completer == nil {
		return fallback
	}

	out, err := o.complete(ctx, stageIntent, intentSystemPrompt, task)
	if err != nil {
		return fallback
	}

	var result intentResult
	if !decodeJSON(out, &result) || len(result.Intents) == 0 {
		return fallback
	}
	return result
}

func (o *Orchestrator) decomposePlan(ctx context.Context, task string, intent intentResult) models.Plan {
	trace.RecordEvent(ctx, trace.TraceEvent{Kind: trace.KindNodeEnter, Node: stagePlan})
	defer trace.RecordEvent(ctx, trace.TraceEvent{Kind: trace.KindNodeExit, Node: stagePlan})

	fallback := models.Plan{
		Goal:  task,
		Steps: []models.PlanStep{{Query: task, Channels: []string{"vector"}}},
	}
	if o.cfg.Completer == nil {
		return fallback
	}

	prompt := fmt.Sprintf("Task: %s\nIntents: %s", task, strings.Join(intent.Intents, ","))
	out, err := o.complete(ctx, stagePlan, planSystemPrompt, prompt)
	if err != nil {
		return fallback
	}

	var plan models.Plan
	if !decodeJSON(out, &plan) || len(plan.Steps) == 0 {
		return fallback
	}
	for i := range plan.Steps {
		if len(plan.Steps[i].Channels) == 0 {
			plan.Steps[i].Channels = []string{"vector"}
		}
	}
	return plan
}

// planRetrieval produces the diversified queries and target k for one
// sub-goal ahead of any search. The completer is free to propose 1-8
// queries and any k; k is clamped into [4, 12] by the caller before use,
// and the call falls back to the sub-goal's own query and k=8 when no
// completer is configured or it fails to produce usable output.
func (o *Orchestrator) planRetrieval(ctx context.Context, step models.PlanStep) retrievalPlanResult {
	trace.RecordEvent(ctx, trace.TraceEvent{Kind: trace.KindNodeEnter, Node: stageRetrievalPlan})
	defer trace.RecordEvent(ctx, trace.TraceEvent{Kind: trace.KindNodeExit, Node: stageRetrievalPlan})

	fallback := retrievalPlanResult{Queries: []string{step.Query}, K: 8}
	if o.cfg.Completer == nil {
		return fallback
	}

	prompt := fmt.Sprintf("Sub-goal query: %s", step.Query)
	out, err := o.complete(ctx, stageRetrievalPlan, retrievalPlanSystemPrompt, prompt)
	if err != nil {
		return fallback
	}

	var result retrievalPlanResult
	if !decodeJSON(out, &result) || len(result.Queries) == 0 {
		return fallback
	}
	if len(result.Queries) > 8 {
		result.Queries = result.Queries[:8]
	}
	if result.K == 0 {
		result.K = fallback.K
	}
	return result
}

// retrieveForStep runs a sub-goal's diversified queries against whichever
// channels it names, clamping k into [4, 12] and splitting it across
// vector/web per query.
func (o *Orchestrator) retrieveForStep(ctx context.Context, step models.PlanStep, rplan retrievalPlanResult) []models.Evidence {
	k := clamp(rplan.K, 4, 12)

	wantsVector := containsChannel(step.Channels, "vector")
	wantsWeb := containsChannel(step.Channels, "web") && o.cfg.Searcher != nil

	vectorK, webK := 0, 0
	switch {
	case wantsVector && wantsWeb:
		vectorK = max(2, k/2)
		webK = max(2, k-vectorK)
	case wantsVector:
		vectorK = k
	case wantsWeb:
		webK = k
	}

	var evidence []models.Evidence

	for _, query := range rplan.Queries {
		if vectorK > 0 && o.cfg.VectorIndex != nil {
			trace.RecordEvent(ctx, trace.TraceEvent{Kind: trace.KindToolRequest, Node: stageVectorSearch, Tool: "vector_search", Prompt: query})
			hits, err := o.cfg.VectorIndex.Search(ctx, query, vectorK)
			if err == nil {
				trace.RecordEvent(ctx, trace.TraceEvent{Kind: trace.KindToolResponse, Node: stageVectorSearch, Tool: "vector_search", Output: fmt.Sprintf("%d hits", len(hits))})
				evidence = append(evidence, hits...)
			}
		}

		if webK > 0 && o.cfg.Searcher != nil {
			trace.RecordEvent(ctx, trace.TraceEvent{Kind: trace.KindToolRequest, Node: stageWebSearch, Tool: "web_search", Prompt: query})
			hits, err := o.cfg.Searcher.Search(ctx, query, webK)
			if err == nil {
				trace.RecordEvent(ctx, trace.TraceEvent{Kind: trace.KindToolResponse, Node: stageWebSearch, Tool: "web_search", Output: fmt.Sprintf("%d hits", len(hits))})
				for _, hit := range hits {
					content := hit.Snippet
					if o.cfg.Fetcher != nil {
						if fetched, err := o.cfg.Fetcher.Fetch(ctx, hit.URL); err == nil {
							content = truncate(fetched, 2000)
						}
					}
					evidence = append(evidence, models.Evidence{
						ID:        hit.URL,
						Channel:   "web",
						SourceURI: hit.URL,
						Title:     hit.Title,
						Content:   content,
					})
				}
			}
		}
	}

	return evidence
}

func (o *Orchestrator) write(ctx context.Context, task string, evidence []models.Evidence) writerResult {
	trace.RecordEvent(ctx, trace.TraceEvent{Kind: trace.KindNodeEnter, Node: stageWriter})
	defer trace.RecordEvent(ctx, trace.TraceEvent{Kind: trace.KindNodeExit, Node: stageWriter})

	fallback := writerResult{Status: "needs_more", Missing: []string{"no evidence retrieved"}}
	if o.cfg.Completer == nil {
		return fallback
	}

	prompt := fmt.Sprintf("Task: %s\n\n%s", task, FormatEvidenceBlock(evidence))
	out, err := o.complete(ctx, stageWriter, writerSystemPrompt, prompt)
	if err != nil {
		return fallback
	}

	var result writerResult
	if !decodeJSON(out, &result) {
		// structured_output_malformed: recovered locally by treating the
		// raw completion as the draft rather than surfacing a failure.
		return writerResult{Status: "ok", Draft: out}
	}
	return result
}

func (o *Orchestrator) critique(ctx context.Context, task, draft string) criticResult {
	trace.RecordEvent(ctx, trace.TraceEvent{Kind: trace.KindNodeEnter, Node: stageCritic})
	defer trace.RecordEvent(ctx, trace.TraceEvent{Kind: trace.KindNodeExit, Node: stageCritic})

	fallback := criticResult{OK: true}
	if o.cfg.Completer == nil {
		return fallback
	}

	prompt := fmt.Sprintf("Task: %s\n\nDraft answer:\n%s", task, draft)
	out, err := o.complete(ctx, stageCritic, criticSystemPrompt, prompt)
	if err != nil {
		return fallback
	}

	var result criticResult
	if !decodeJSON(out, &result) {
		return fallback
	}
	return result
}

// buildCitations maps every "[#N]" marker found in text to the evidence at
// that 1-based ordinal, dropping references past the end of the list.
func buildCitations(text string, evidence []models.Evidence) []models.Citation {
	var citations []models.Citation
	for _, ordinal := range ExtractCitations(text) {
		if ordinal < 1 || ordinal > len(evidence) {
			continue
		}
		citations = append(citations, models.Citation{
			Ordinal:    ordinal,
			EvidenceID: evidence[ordinal-1].ID,
		})
	}
	return citations
}

func decodeJSON(s string, v any) bool {
	s = strings.TrimSpace(s)
	start := strings.IndexByte(s, '{')
	end := strings.LastIndexByte(s, '}')
	if start < 0 || end < start {
		return false
	}
	return json.Unmarshal([]byte(s[start:end+1]), v) == nil
}

func containsChannel(channels []string, name string) bool {
	if len(channels) == 0 {
		return name == "vector"
	}
	for _, c := range channels {
		if c == name {
			return true
		}
	}
	return false
}

func clamp(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

func max(a, b int) int {
	if a > b {
		return a
	}
	return b
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n]
}

const (
	intentSystemPrompt = "Classify the user's task. Respond with JSON: " +
		`{"intents":["answer"|"summarize"|"troubleshoot"|"plan"|"code"|"search_only"|"tool_only"],"urgency":"low"|"medium"|"high","safety":"ok"|"flagged"}`
	planSystemPrompt = "Decompose the task into 1-5 sub-goals. Respond with JSON: " +
		`{"goal":"...","steps":[{"query":"...","channels":["vector","web"]}]}`
	retrievalPlanSystemPrompt = "Propose 1-8 diverse search queries and a target k (4-12) for this sub-goal. " +
		`Respond with JSON: {"queries":["..."],"k":8}`
	writerSystemPrompt = "Write an answer using only the retrieved evidence, citing sources inline as [#N]. " +
		`Never invent a URL or fact absent from the evidence. Respond with JSON: {"status":"ok"|"needs_more","draft":"...","missing":["..."]}`
	criticSystemPrompt = "Check the draft for unsupported claims and gaps. Respond with JSON: " +
		`{"ok":true|false,"issues":["..."],"followup_queries":["..."]}`
)
