package agentcore

import (
	"context"
	"fmt"
	"runtime/debug"
	"sync"
	"time"

	"github.com/agentic-orchestration/runtime/pkg/models"
)

// ExecutorConfig configures the parallel tool executor: concurrency limits,
// timeouts, and retry strategy.
type ExecutorConfig struct {
	MaxConcurrency  int
	DefaultTimeout  time.Duration
	DefaultRetries  int
	RetryBackoff    time.Duration
	MaxRetryBackoff time.Duration
}

// DefaultExecutorConfig returns the default executor configuration.
func DefaultExecutorConfig() *ExecutorConfig {
	return &ExecutorConfig{
		MaxConcurrency:  5,
		DefaultTimeout:  60 * time.Second, // recommended model/tool default
		DefaultRetries:  2,
		RetryBackoff:    100 * time.Millisecond,
		MaxRetryBackoff: 5 * time.Second,
	}
}

// ToolConfig holds per-tool overrides for timeout, retry, and priority.
type ToolConfig struct {
	Timeout      time.Duration
	Retries      int
	RetryBackoff time.Duration
	Priority     int
}

// Executor runs tool calls concurrently with retry and backpressure,
// bounded by a semaphore (a suspension-point/concurrency model).
type Executor struct {
	registry   *ToolRegistry
	config     *ExecutorConfig
	toolConfig map[string]*ToolConfig
	mu         sync.RWMutex

	sem chan struct{}

	metrics *ExecutorMetrics
}

// ExecutorMetrics tracks executor performance counters.
type ExecutorMetrics struct {
	mu              sync.Mutex
	TotalExecutions int64
	TotalRetries    int64
	TotalFailures   int64
	TotalTimeouts   int64
	TotalPanics     int64
}

// NewExecutor creates an Executor bound to registry. A nil config uses
// DefaultExecutorConfig.
func NewExecutor(registry *ToolRegistry, config *ExecutorConfig) *Executor {
	if config == nil {
		config = DefaultExecutorConfig()
	}
	return &Executor{
		registry:   registry,
		config:     config,
		toolConfig: make(map[string]*ToolConfig),
		sem:        make(chan struct{}, config.MaxConcurrency),
		metrics:    &ExecutorMetrics{},
	}
}

// ConfigureTool sets a per-tool configuration override.
func (e *Executor) ConfigureTool(name string, config *ToolConfig) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.toolConfig[name] = config
}

func (e *Executor) getToolConfig(name string) *ToolConfig {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.toolConfig[name]
}

// ExecutionResult holds the result of a single tool execution.
type ExecutionResult struct {
	ToolCallID string
	ToolName   string
	Result     *ToolResult
	Error      error
	Duration   time.Duration
	Attempts   int
}

// ExecuteAll executes every call concurrently (bounded by the semaphore)
// and returns results in the same order as the input, preserving the
// per-call correlation by ToolCallID even though execution order may vary
// (explicit ID-based request/response pairing, not proximity).
func (e *Executor) ExecuteAll(ctx context.Context, calls []models.ToolCall) []*ExecutionResult {
	if len(calls) == 0 {
		return nil
	}

	results := make([]*ExecutionResult, len(calls))
	var wg sync.WaitGroup

	for i, call := range calls {
		wg.Add(1)
		go func(idx int, tc models.ToolCall) {
			defer wg.Done()
			results[idx] = e.Execute(ctx, tc)
		}(i, call)
	}

	wg.Wait()
	return results
}

// Execute runs a single tool call with retry logic and timeout handling,
// acquiring a semaphore slot for backpressure control first.
func (e *Executor) Execute(ctx context.Context, call models.ToolCall) *ExecutionResult {
	start := time.Now()
	result := &ExecutionResult{ToolCallID: call.ID, ToolName: call.Name}

	select {
	case e.sem <- struct{}{}:
		defer func() { <-e.sem }()
	case <-ctx.Done():
		result.Error = NewToolError(call.Name, ctx.Err()).WithType(ToolErrorTimeout).WithToolCallID(call.ID)
		result.Duration = time.Since(start)
		return result
	}

	tc := e.getToolConfig(call.Name)
	timeout := e.config.DefaultTimeout
	maxRetries := e.config.DefaultRetries
	backoff := e.config.RetryBackoff

	if tc != nil {
		if tc.Timeout > 0 {
			timeout = tc.Timeout
		}
		if tc.Retries >= 0 {
			maxRetries = tc.Retries
		}
		if tc.RetryBackoff > 0 {
			backoff = tc.RetryBackoff
		}
	}

	var lastErr error
	for attempt := 0; attempt <= maxRetries; attempt++ {
		result.Attempts = attempt + 1

		execResult, execErr := e.executeWithTimeout(ctx, call, timeout)
		if execErr == nil {
			result.Result = execResult
			result.Duration = time.Since(start)

			e.metrics.mu.Lock()
			e.metrics.TotalExecutions++
			if attempt > 0 {
				e.metrics.TotalRetries += int64(attempt)
			}
			e.metrics.mu.Unlock()

			return result
		}

		lastErr = execErr

		if !IsToolRetryable(execErr) || ctx.Err() != nil || attempt >= maxRetries {
			break
		}

		sleepDuration := backoff * time.Duration(1<<uint(attempt))
		if sleepDuration > e.config.MaxRetryBackoff {
			sleepDuration = e.config.MaxRetryBackoff
		}

		select {
		case <-time.After(sleepDuration):
		case <-ctx.Done():
			lastErr = NewToolError(call.Name, ctx.Err()).WithType(ToolErrorTimeout).WithToolCallID(call.ID)
		}
	}

	result.Error = lastErr
	result.Duration = time.Since(start)

	e.metrics.mu.Lock()
	e.metrics.TotalExecutions++
	e.metrics.TotalFailures++
	if toolErr, ok := GetToolError(lastErr); ok {
		switch toolErr.Type {
		case ToolErrorTimeout:
			e.metrics.TotalTimeouts++
		case ToolErrorPanic:
			e.metrics.TotalPanics++
		}
	}
	e.metrics.mu.Unlock()

	return result
}

func (e *Executor) executeWithTimeout(ctx context.Context, call models.ToolCall, timeout time.Duration) (*ToolResult, error) {
	execCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	type execResult struct {
		result *ToolResult
		err    error
	}
	resultCh := make(chan execResult, 1)

	go func() {
		defer func() {
			if r := recover(); r != nil {
				stack := debug.Stack()
				err := NewToolError(call.Name, fmt.Errorf("panic: %v\n%s", r, stack)).
					WithType(ToolErrorPanic).WithToolCallID(call.ID)
				resultCh <- execResult{err: err}
			}
		}()

		result, err := e.registry.Execute(execCtx, call.Name, AsJSON(call.Input))
		if err != nil {
			resultCh <- execResult{err: NewToolError(call.Name, err).WithToolCallID(call.ID)}
			return
		}
		resultCh <- execResult{result: result}
	}()

	select {
	case res := <-resultCh:
		return res.result, res.err
	case <-execCtx.Done():
		if ctx.Err() != nil {
			return nil, NewToolError(call.Name, ctx.Err()).
				WithType(ToolErrorTimeout).WithToolCallID(call.ID).WithMessage("context cancelled")
		}
		return nil, NewToolError(call.Name, ErrToolTimeout).
			WithType(ToolErrorTimeout).WithToolCallID(call.ID).
			WithMessage(fmt.Sprintf("execution timed out after %s", timeout))
	}
}

// Metrics returns a copy-safe snapshot of the executor's counters.
func (e *Executor) Metrics() ExecutorMetricsSnapshot {
	e.metrics.mu.Lock()
	defer e.metrics.mu.Unlock()
	return ExecutorMetricsSnapshot{
		TotalExecutions: e.metrics.TotalExecutions,
		TotalRetries:    e.metrics.TotalRetries,
		TotalFailures:   e.metrics.TotalFailures,
		TotalTimeouts:   e.metrics.TotalTimeouts,
		TotalPanics:     e.metrics.TotalPanics,
	}
}

// ExecutorMetricsSnapshot is a point-in-time copy of executor metrics.
type ExecutorMetricsSnapshot struct {
	TotalExecutions int64
	TotalRetries    int64
	TotalFailures   int64
	TotalTimeouts   int64
	TotalPanics     int64
}

// ResultsToMessages converts execution results to tool-result messages
// keyed by ToolCallID, ready to append to the conversation.
func ResultsToMessages(results []*ExecutionResult) []models.ToolResult {
	toolResults := make([]models.ToolResult, len(results))
	for i, r := range results {
		switch {
		case r.Error != nil:
			toolResults[i] = models.ToolResult{ToolCallID: r.ToolCallID, Content: r.Error.Error(), IsError: true}
		case r.Result != nil:
			toolResults[i] = models.ToolResult{ToolCallID: r.ToolCallID, Content: r.Result.Content, IsError: r.Result.IsError}
		}
	}
	return toolResults
}

// AnyErrors reports whether any execution result carries an error.
func AnyErrors(results []*ExecutionResult) bool {
	for _, r := range results {
		if r.Error != nil {
			return true
		}
	}
	return false
}
