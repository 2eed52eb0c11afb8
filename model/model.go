package model

import (
	"context"

	"github.com/agentloop-ai/agentloop/core"
)

// ToolDefinition declaratively exposes a callable function to the model.
// InputSchema is a JSON Schema object (minimal subset expected: type,
// properties, required, items, enum, default).
type ToolDefinition struct {
	Name        string         `json:"name"`
	Description string         `json:"description"`
	InputSchema map[string]any `json:"input_schema"`
}

// Request captures the normalized model input built by the runner for one
// turn.
type Request struct {
	Model         string           `json:"model"`
	Messages      []core.Message   `json:"messages"`
	Tools         []ToolDefinition `json:"tools,omitempty"`
	MaxTokens     int64            `json:"max_tokens,omitempty"`
	Temperature   *float64         `json:"temperature,omitempty"`
	TopP          *float64         `json:"top_p,omitempty"`
	StopSequences []string         `json:"stop_sequences,omitempty"`
}

// FinishReason explains why the model stopped generating.
type FinishReason string

const (
	// FinishStop marks a natural end of turn.
	FinishStop FinishReason = "stop"
	// FinishToolUse marks a turn that requests tool execution.
	FinishToolUse FinishReason = "tool_use"
	// FinishMaxTokens marks truncation at the token limit.
	FinishMaxTokens FinishReason = "max_tokens"
	// FinishStopSequence marks a configured stop sequence hit.
	FinishStopSequence FinishReason = "stop_sequence"
	// FinishError marks a vendor-reported generation failure; ErrorMessage
	// carries the detail.
	FinishError FinishReason = "error"
)

// Response is the finalized outcome of one model turn. For streaming, it
// arrives inside the terminal done event.
type Response struct {
	// Content is the final assistant text. Empty means the turn produced no
	// text (tool-only turns).
	Content string `json:"content,omitempty"`
	// ToolCalls, when non-nil, is the vendor's authoritative complete
	// snapshot of the turn's tool calls; it overrides incrementally
	// assembled buffers.
	ToolCalls []core.ToolCall `json:"tool_calls,omitempty"`
	// FinishReason explains why generation stopped.
	FinishReason FinishReason `json:"finish_reason"`
	// Usage carries the vendor-reported token counts when available.
	Usage *core.TokenUsage `json:"usage,omitempty"`
	// ErrorMessage is set when FinishReason is FinishError.
	ErrorMessage string `json:"error_message,omitempty"`
}

// StreamEventType discriminates normalized streaming events.
type StreamEventType string

const (
	// StreamTextDelta carries a fragment of assistant text.
	StreamTextDelta StreamEventType = "text_delta"
	// StreamToolCallStart opens an argument buffer for a call id.
	StreamToolCallStart StreamEventType = "tool_call_start"
	// StreamToolCallDelta appends an argument fragment to a call id.
	StreamToolCallDelta StreamEventType = "tool_call_delta"
	// StreamToolCallStop closes a call id's argument buffer.
	StreamToolCallStop StreamEventType = "tool_call_stop"
	// StreamUsage carries an incremental token usage update.
	StreamUsage StreamEventType = "usage"
	// StreamDone terminates the stream with the finalized Response.
	StreamDone StreamEventType = "done"
)

// StreamEvent is one normalized event of a model stream. Adapters must emit
// tool_call_start before any tool_call_delta for the same id, and exactly one
// done event last.
type StreamEvent struct {
	Type StreamEventType `json:"type"`

	// Text is set for text_delta.
	Text string `json:"text,omitempty"`
	// CallID correlates tool_call_start/delta/stop events.
	CallID string `json:"call_id,omitempty"`
	// ToolName is set for tool_call_start.
	ToolName string `json:"tool_name,omitempty"`
	// Fragment is set for tool_call_delta.
	Fragment string `json:"fragment,omitempty"`
	// Usage is set for usage events.
	Usage *core.TokenUsage `json:"usage,omitempty"`
	// Response is set for done.
	Response *Response `json:"response,omitempty"`
}

// TextDelta builds a text_delta stream event.
func TextDelta(text string) StreamEvent {
	return StreamEvent{Type: StreamTextDelta, Text: text}
}

// ToolCallStart builds a tool_call_start stream event.
func ToolCallStart(callID, toolName string) StreamEvent {
	return StreamEvent{Type: StreamToolCallStart, CallID: callID, ToolName: toolName}
}

// ToolCallDelta builds a tool_call_delta stream event.
func ToolCallDelta(callID, fragment string) StreamEvent {
	return StreamEvent{Type: StreamToolCallDelta, CallID: callID, Fragment: fragment}
}

// ToolCallStop builds a tool_call_stop stream event.
func ToolCallStop(callID string) StreamEvent {
	return StreamEvent{Type: StreamToolCallStop, CallID: callID}
}

// Usage builds a usage stream event.
func Usage(inputTokens, outputTokens int64) StreamEvent {
	return StreamEvent{Type: StreamUsage, Usage: &core.TokenUsage{InputTokens: inputTokens, OutputTokens: outputTokens}}
}

// Done builds the terminal done stream event.
func Done(resp Response) StreamEvent {
	return StreamEvent{Type: StreamDone, Response: &resp}
}

// Provider is the model backend contract consumed by the runner. Adapters
// convert the normalized request into vendor wire calls and produce the
// normalized event stream.
type Provider interface {
	// DefaultModel returns the model id used when an agent declares none.
	DefaultModel() string

	// Complete performs a non-streaming generation.
	Complete(ctx context.Context, req Request) (*Response, error)

	// Stream performs a streaming generation. The events channel is closed
	// after the done event (or on failure); the error channel carries at most
	// one terminal error and is closed afterwards.
	Stream(ctx context.Context, req Request) (<-chan StreamEvent, <-chan error)
}
