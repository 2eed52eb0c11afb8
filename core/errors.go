package core

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

// ErrCancelled is the terminal error of a cooperatively cancelled run. The
// runner wraps the triggering context error, so errors.Is(err, ErrCancelled)
// holds on the surfaced error.
var ErrCancelled = errors.New("run cancelled")

// ErrAuthenticationFailed is surfaced by provider adapters on credential
// rejection.
var ErrAuthenticationFailed = errors.New("authentication failed")

// InputBlockedError is returned when an input guardrail blocks the run before
// any model call is made.
type InputBlockedError struct {
	Guardrail string
	Reason    string
}

func (e *InputBlockedError) Error() string {
	return fmt.Sprintf("input blocked by guardrail %q: %s", e.Guardrail, e.Reason)
}

// OutputBlockedError is returned when an output guardrail blocks the final
// answer. The final turn's cost was incurred; the output is suppressed at the
// boundary.
type OutputBlockedError struct {
	Guardrail string
	Reason    string
}

func (e *OutputBlockedError) Error() string {
	return fmt.Sprintf("output blocked by guardrail %q: %s", e.Guardrail, e.Reason)
}

// MaxTurnsExceededError is returned when a run reaches its turn bound without
// producing a final answer.
type MaxTurnsExceededError struct {
	Limit int
}

func (e *MaxTurnsExceededError) Error() string {
	return fmt.Sprintf("run exceeded maximum of %d turns", e.Limit)
}

// HandoffCycleError is returned when a handoff targets an agent already
// visited in this run. Path carries the full attempted history, revisited
// agent included, for diagnosability.
type HandoffCycleError struct {
	Path []string
}

func (e *HandoffCycleError) Error() string {
	return fmt.Sprintf("cyclic handoff detected: %s", strings.Join(e.Path, " -> "))
}

// ToolNotFoundError describes a tool call naming no registered tool. It is
// recovered locally into an error ToolResult and never aborts the run; the
// type exists so tool results and logs can carry a structured cause.
type ToolNotFoundError struct {
	Name string
}

func (e *ToolNotFoundError) Error() string {
	return fmt.Sprintf("Tool not found: %s", e.Name)
}

// ToolExecutionError wraps a tool implementation failure. Like
// ToolNotFoundError it is recovered into an error ToolResult, letting the
// model see and react to the failure.
type ToolExecutionError struct {
	Tool string
	Err  error
}

func (e *ToolExecutionError) Error() string {
	return fmt.Sprintf("tool %q failed: %v", e.Tool, e.Err)
}

func (e *ToolExecutionError) Unwrap() error { return e.Err }

// ProviderError wraps a model backend failure. Run-fatal.
type ProviderError struct {
	Message string
	Err     error
}

func (e *ProviderError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("provider error: %s: %v", e.Message, e.Err)
	}
	return fmt.Sprintf("provider error: %s", e.Message)
}

func (e *ProviderError) Unwrap() error { return e.Err }

// RateLimitedError is surfaced by provider adapters on rate limiting.
// RetryAfter is zero when the vendor gave no hint; retry policy is the
// caller's choice.
type RateLimitedError struct {
	RetryAfter time.Duration
}

func (e *RateLimitedError) Error() string {
	if e.RetryAfter > 0 {
		return fmt.Sprintf("rate limited, retry after %s", e.RetryAfter)
	}
	return "rate limited"
}

// InvalidResponseError marks a malformed or contract-violating backend
// response, such as a stream that ends without a terminal event.
type InvalidResponseError struct {
	Message string
}

func (e *InvalidResponseError) Error() string {
	return fmt.Sprintf("invalid provider response: %s", e.Message)
}

// InvalidConfigurationError marks unusable caller-supplied configuration
// detected before a run starts.
type InvalidConfigurationError struct {
	Message string
}

func (e *InvalidConfigurationError) Error() string {
	return fmt.Sprintf("invalid configuration: %s", e.Message)
}
