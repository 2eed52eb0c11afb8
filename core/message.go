package core

import (
	"time"

	"github.com/google/uuid"
)

// Role identifies the author of a transcript message.
type Role string

const (
	// RoleSystem marks the instruction message seeded at transcript index 0.
	RoleSystem Role = "system"
	// RoleUser marks caller-provided input.
	RoleUser Role = "user"
	// RoleAssistant marks model output (text and/or tool calls).
	RoleAssistant Role = "assistant"
	// RoleTool marks a tool result linked to a prior tool call.
	RoleTool Role = "tool"
)

// ToolCall is a model-requested invocation of a named tool. Arguments is the
// raw JSON-encoded argument string; during streaming it is built incrementally
// and may be syntactically incomplete until the call's stop event arrives, so
// consumers must tolerate a failed parse.
type ToolCall struct {
	ID        string `json:"id"`
	Name      string `json:"name"`
	Arguments string `json:"arguments"`
}

// ToolResult is the outcome of dispatching a single ToolCall. Exactly one
// ToolResult is produced per dispatched call per turn. IsError marks failures
// that were recovered locally (the run continues and the model sees Content).
type ToolResult struct {
	CallID  string `json:"call_id"`
	Name    string `json:"name"`
	Content string `json:"content"`
	IsError bool   `json:"is_error"`
}

// TokenUsage tracks cumulative token consumption for a run or turn.
type TokenUsage struct {
	InputTokens  int64 `json:"input_tokens"`
	OutputTokens int64 `json:"output_tokens"`
}

// Add accumulates another usage sample into u.
func (u *TokenUsage) Add(other TokenUsage) {
	u.InputTokens += other.InputTokens
	u.OutputTokens += other.OutputTokens
}

// TotalTokens returns the combined input and output token count.
func (u TokenUsage) TotalTokens() int64 { return u.InputTokens + u.OutputTokens }

// Message is one entry of the run transcript. The transcript invariant is
// maintained by the runner: exactly one system message exists at index 0, and
// it is replaced (not appended) when a handoff switches the active agent.
type Message struct {
	ID         string     `json:"id"`
	Role       Role       `json:"role"`
	Content    string     `json:"content"`
	ToolCalls  []ToolCall `json:"tool_calls,omitempty"`   // assistant only
	ToolCallID string     `json:"tool_call_id,omitempty"` // tool only, links result to invocation
	IsError    bool       `json:"is_error,omitempty"`     // tool only, marks a recovered failure
	Timestamp  time.Time  `json:"timestamp"`
}

// NewID generates a new unique identifier for messages, events and tool calls.
func NewID() string { return uuid.NewString() }

func newMessage(role Role, content string) Message {
	return Message{
		ID:        NewID(),
		Role:      role,
		Content:   content,
		Timestamp: time.Now().UTC(),
	}
}

// NewSystemMessage creates the instruction message for an agent.
func NewSystemMessage(instructions string) Message {
	return newMessage(RoleSystem, instructions)
}

// NewUserMessage creates a user-authored input message.
func NewUserMessage(content string) Message {
	return newMessage(RoleUser, content)
}

// NewAssistantMessage creates an assistant message carrying reconstructed text
// and tool calls from one model turn.
func NewAssistantMessage(content string, toolCalls []ToolCall) Message {
	m := newMessage(RoleAssistant, content)
	m.ToolCalls = toolCalls
	return m
}

// NewToolMessage records a tool result in the transcript, linked back to the
// originating call id.
func NewToolMessage(result ToolResult) Message {
	m := newMessage(RoleTool, result.Content)
	m.ToolCallID = result.CallID
	m.IsError = result.IsError
	return m
}

// RunResult is created once, at successful completion of a run.
type RunResult struct {
	// Output is the final assistant text (after output guardrails). Empty for
	// a tool-only final turn.
	Output string `json:"output"`
	// Messages is the full transcript, system message included.
	Messages []Message `json:"messages"`
	// FinalAgent names the agent that produced the final output.
	FinalAgent string `json:"final_agent"`
	// ToolCallCount counts the tool calls dispatched over all turns, handoffs
	// included.
	ToolCallCount int `json:"tool_call_count"`
	// TurnCount counts completed model round-trips.
	TurnCount int `json:"turn_count"`
	// Usage is the cumulative token usage across all turns.
	Usage TokenUsage `json:"usage"`
}
