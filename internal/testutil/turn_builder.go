package testutil

import (
	"github.com/agentloop-ai/agentloop/core"
	"github.com/agentloop-ai/agentloop/model"
)

// TurnBuilder provides a fluent helper for scripting model turns in tests.
// Example:
//
//	events := NewTurnBuilder().
//		Text("thinking ").
//		ToolCall("call_1", "add", `{"a":1`, `,"b":2}`).
//		DoneToolUse()
//
// Chain only the parts you need; Done variants finalize the script. Primitive
// methods (StartCall, ArgsFragment, StopCall) allow interleaved or malformed
// streams for assembler edge cases.
type TurnBuilder struct {
	events    []model.StreamEvent
	toolCalls []core.ToolCall
	text      string
}

// NewTurnBuilder creates an empty turn script.
func NewTurnBuilder() *TurnBuilder { return &TurnBuilder{} }

// Text appends one text delta per chunk (chainable).
func (b *TurnBuilder) Text(chunks ...string) *TurnBuilder {
	for _, c := range chunks {
		b.events = append(b.events, model.TextDelta(c))
		b.text += c
	}
	return b
}

// ToolCall scripts a complete call: start, one delta per fragment, stop. The
// assembled call is included in the done snapshot (chainable).
func (b *TurnBuilder) ToolCall(callID, name string, fragments ...string) *TurnBuilder {
	b.events = append(b.events, model.ToolCallStart(callID, name))
	args := ""
	for _, f := range fragments {
		b.events = append(b.events, model.ToolCallDelta(callID, f))
		args += f
	}
	b.events = append(b.events, model.ToolCallStop(callID))
	b.toolCalls = append(b.toolCalls, core.ToolCall{ID: callID, Name: name, Arguments: args})
	return b
}

// StartCall emits a bare tool_call_start (chainable).
func (b *TurnBuilder) StartCall(callID, name string) *TurnBuilder {
	b.events = append(b.events, model.ToolCallStart(callID, name))
	return b
}

// ArgsFragment emits a bare tool_call_delta (chainable).
func (b *TurnBuilder) ArgsFragment(callID, fragment string) *TurnBuilder {
	b.events = append(b.events, model.ToolCallDelta(callID, fragment))
	return b
}

// StopCall emits a bare tool_call_stop (chainable).
func (b *TurnBuilder) StopCall(callID string) *TurnBuilder {
	b.events = append(b.events, model.ToolCallStop(callID))
	return b
}

// Usage emits an incremental usage update (chainable).
func (b *TurnBuilder) Usage(inputTokens, outputTokens int64) *TurnBuilder {
	b.events = append(b.events, model.Usage(inputTokens, outputTokens))
	return b
}

// DoneStop finalizes with a stop finish reason. Text scripted via Text is
// carried in the response content; the tool-call snapshot is omitted so
// assembly relies on the streamed events.
func (b *TurnBuilder) DoneStop() []model.StreamEvent {
	return append(b.events, model.Done(model.Response{
		Content:      b.text,
		FinishReason: model.FinishStop,
	}))
}

// DoneToolUse finalizes with a tool_use finish reason and no snapshot,
// exercising incremental assembly.
func (b *TurnBuilder) DoneToolUse() []model.StreamEvent {
	return append(b.events, model.Done(model.Response{
		Content:      b.text,
		FinishReason: model.FinishToolUse,
	}))
}

// DoneSnapshot finalizes with an authoritative tool-call snapshot built from
// the scripted ToolCall entries (or the explicit override when provided).
func (b *TurnBuilder) DoneSnapshot(override ...core.ToolCall) []model.StreamEvent {
	calls := b.toolCalls
	if len(override) > 0 {
		calls = override
	}
	return append(b.events, model.Done(model.Response{
		Content:      b.text,
		ToolCalls:    calls,
		FinishReason: model.FinishToolUse,
	}))
}

// DoneResponse finalizes with a fully caller-controlled response.
func (b *TurnBuilder) DoneResponse(resp model.Response) []model.StreamEvent {
	return append(b.events, model.Done(resp))
}

// Events returns the scripted events without a terminal done, for tests that
// exercise truncated streams.
func (b *TurnBuilder) Events() []model.StreamEvent {
	return append([]model.StreamEvent(nil), b.events...)
}
