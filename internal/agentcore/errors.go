package agentcore

import (
	"errors"
	"fmt"
	"strings"
)

// Common sentinel errors shared by the engines and tool machinery.
var (
	ErrMaxIterations    = errors.New("max iterations exceeded")
	ErrContextCancelled = errors.New("context cancelled")
	ErrToolNotFound     = errors.New("tool not found")
	ErrToolTimeout      = errors.New("tool execution timed out")
	ErrToolPanic        = errors.New("tool panicked")
)

// Kind is the error taxonomy — a closed set of kinds, not type
// names, used to decide retry/surface policy at the engine boundary.
type Kind string

const (
	// KindInputInvalid is a malformed request: empty task, missing field.
	// Surfaced; never retried.
	KindInputInvalid Kind = "input_invalid"

	// KindRateLimited is a per-session budget overrun. Surfaced; never
	// retried.
	KindRateLimited Kind = "rate_limited"

	// KindDependencyUnavailable is an external collaborator that failed to
	// initialize (e.g. missing credential). Surfaced with guidance; never
	// retried.
	KindDependencyUnavailable Kind = "dependency_unavailable"

	// KindTransientExternal is a model, search, or fetch failure. It is the
	// only kind for which Retryable reports true; no engine in this module
	// retries it, so the RunError reaches the caller on the first failure.
	KindTransientExternal Kind = "transient_external"

	// KindStructuredOutputMalformed is a model response that failed to
	// parse as the expected structured shape. Recovered locally by
	// substituting a documented default; never surfaced.
	KindStructuredOutputMalformed Kind = "structured_output_malformed"

	// KindConvergenceExhausted is a pipeline that hit max_iterations.
	// Surfaced as failed with the last feedback attached.
	KindConvergenceExhausted Kind = "convergence_exhausted"

	// KindCancelled is cooperative cancellation observed at a suspension
	// point. Surfaced as terminal cancelled.
	KindCancelled Kind = "cancelled"

	// KindInternal is an invariant violation. Fatal; surfaced as failed.
	KindInternal Kind = "internal"
)

// Retryable reports whether an error of this kind should be retried by the
// engine boundary.
func (k Kind) Retryable() bool {
	return k == KindTransientExternal
}

// RunError is a classified error crossing an engine boundary. Every error
// that an agent/node raises (as opposed to expressing through State) is
// trapped at the boundary and wrapped as a RunError before being recorded
// to the trace and surfaced to the caller.
type RunError struct {
	Kind    Kind
	Message string
	Cause   error
}

func (e *RunError) Error() string {
	if e.Message != "" {
		return fmt.Sprintf("[%s] %s", e.Kind, e.Message)
	}
	if e.Cause != nil {
		return fmt.Sprintf("[%s] %v", e.Kind, e.Cause)
	}
	return string(e.Kind)
}

func (e *RunError) Unwrap() error { return e.Cause }

// NewRunError wraps cause with the given kind and message.
func NewRunError(kind Kind, message string, cause error) *RunError {
	return &RunError{Kind: kind, Message: message, Cause: cause}
}

// AsRunError extracts a *RunError from err's chain.
func AsRunError(err error) (*RunError, bool) {
	var re *RunError
	if errors.As(err, &re) {
		return re, true
	}
	return nil, false
}

// ToolErrorType categorizes tool execution errors for retry logic.
type ToolErrorType string

const (
	ToolErrorNotFound     ToolErrorType = "not_found"
	ToolErrorInvalidInput ToolErrorType = "invalid_input"
	ToolErrorTimeout      ToolErrorType = "timeout"
	ToolErrorNetwork      ToolErrorType = "network"
	ToolErrorPermission   ToolErrorType = "permission"
	ToolErrorRateLimit    ToolErrorType = "rate_limit"
	ToolErrorExecution    ToolErrorType = "execution"
	ToolErrorPanic        ToolErrorType = "panic"
	ToolErrorUnknown      ToolErrorType = "unknown"
)

// IsRetryable reports whether this tool error type suggests a retry may
// succeed. Timeout, network, and rate limit errors are retryable.
func (t ToolErrorType) IsRetryable() bool {
	switch t {
	case ToolErrorTimeout, ToolErrorNetwork, ToolErrorRateLimit:
		return true
	default:
		return false
	}
}

// ToolError is a structured error from tool execution, classified for
// retry logic and carrying the correlation id of the originating call.
type ToolError struct {
	Type       ToolErrorType
	ToolName   string
	ToolCallID string
	Message    string
	Cause      error
	Retryable  bool
	Attempts   int
}

func (e *ToolError) Error() string {
	var parts []string
	parts = append(parts, fmt.Sprintf("[tool:%s]", e.Type))
	if e.ToolName != "" {
		parts = append(parts, e.ToolName)
	}
	if e.Message != "" {
		parts = append(parts, e.Message)
	} else if e.Cause != nil {
		parts = append(parts, e.Cause.Error())
	}
	if e.Attempts > 1 {
		parts = append(parts, fmt.Sprintf("(attempts=%d)", e.Attempts))
	}
	return strings.Join(parts, " ")
}

func (e *ToolError) Unwrap() error { return e.Cause }

// NewToolError creates a ToolError with automatic classification from the
// cause's error message.
func NewToolError(toolName string, cause error) *ToolError {
	err := &ToolError{ToolName: toolName, Cause: cause, Type: ToolErrorUnknown, Attempts: 1}
	if cause != nil {
		err.Message = cause.Error()
		err.Type = classifyToolError(cause)
		err.Retryable = err.Type.IsRetryable()
	}
	return err
}

func (e *ToolError) WithType(t ToolErrorType) *ToolError {
	e.Type = t
	e.Retryable = t.IsRetryable()
	return e
}

func (e *ToolError) WithToolCallID(id string) *ToolError {
	e.ToolCallID = id
	return e
}

func (e *ToolError) WithMessage(msg string) *ToolError {
	e.Message = msg
	return e
}

func (e *ToolError) WithAttempts(n int) *ToolError {
	e.Attempts = n
	return e
}

func classifyToolError(err error) ToolErrorType {
	if err == nil {
		return ToolErrorUnknown
	}
	if errors.Is(err, ErrToolNotFound) {
		return ToolErrorNotFound
	}
	if errors.Is(err, ErrToolTimeout) {
		return ToolErrorTimeout
	}
	if errors.Is(err, ErrToolPanic) {
		return ToolErrorPanic
	}

	errStr := strings.ToLower(err.Error())

	switch {
	case strings.Contains(errStr, "timeout"),
		strings.Contains(errStr, "deadline exceeded"),
		strings.Contains(errStr, "context deadline"):
		return ToolErrorTimeout
	case strings.Contains(errStr, "connection"),
		strings.Contains(errStr, "network"),
		strings.Contains(errStr, "dns"),
		strings.Contains(errStr, "refused"),
		strings.Contains(errStr, "unreachable"):
		return ToolErrorNetwork
	case strings.Contains(errStr, "rate limit"),
		strings.Contains(errStr, "rate_limit"),
		strings.Contains(errStr, "too many requests"),
		strings.Contains(errStr, "429"):
		return ToolErrorRateLimit
	case strings.Contains(errStr, "permission"),
		strings.Contains(errStr, "forbidden"),
		strings.Contains(errStr, "unauthorized"),
		strings.Contains(errStr, "access denied"):
		return ToolErrorPermission
	case strings.Contains(errStr, "invalid"),
		strings.Contains(errStr, "validation"),
		strings.Contains(errStr, "required"),
		strings.Contains(errStr, "missing"):
		return ToolErrorInvalidInput
	default:
		return ToolErrorExecution
	}
}

// IsToolError reports whether err is or wraps a ToolError.
func IsToolError(err error) bool {
	var toolErr *ToolError
	return errors.As(err, &toolErr)
}

// GetToolError extracts a *ToolError from err's chain.
func GetToolError(err error) (*ToolError, bool) {
	var toolErr *ToolError
	if errors.As(err, &toolErr) {
		return toolErr, true
	}
	return nil, false
}

// IsToolRetryable reports whether err should be retried.
func IsToolRetryable(err error) bool {
	if toolErr, ok := GetToolError(err); ok {
		return toolErr.Retryable
	}
	return classifyToolError(err).IsRetryable()
}
