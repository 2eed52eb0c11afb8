package core

import "time"

// EventType discriminates the Event union.
type EventType string

const (
	// EventAgentStarted is emitted when an agent becomes active, at run start
	// and after each handoff. It precedes any text delta for that agent.
	EventAgentStarted EventType = "agent_started"
	// EventTextDelta carries a streamed fragment of assistant text.
	EventTextDelta EventType = "text_delta"
	// EventToolCallStarted is emitted before a tool call is dispatched.
	EventToolCallStarted EventType = "tool_call_started"
	// EventToolCallCompleted is emitted after dispatch, success or error.
	EventToolCallCompleted EventType = "tool_call_completed"
	// EventHandoff records a control-flow switch to another agent.
	EventHandoff EventType = "handoff"
	// EventGuardrailTriggered records one guardrail evaluation.
	EventGuardrailTriggered EventType = "guardrail_triggered"
	// EventTurnCompleted marks the end of one model round-trip.
	EventTurnCompleted EventType = "turn_completed"
	// EventCompleted carries the RunResult. It is the last event of a
	// successful run.
	EventCompleted EventType = "completed"
	// EventError carries the run-fatal error. It is the last event of a
	// failed run.
	EventError EventType = "error"
)

// Event is the progress notification emitted during a run. It is a tagged
// union: Type selects which payload fields are set. The event stream is
// append-only and terminal after a completed or error event; emission order
// matches the runner's state-machine transition order.
type Event struct {
	ID        string    `json:"id"`
	Type      EventType `json:"type"`
	Timestamp time.Time `json:"timestamp"`

	// AgentName is set for agent_started and text_delta.
	AgentName string `json:"agent_name,omitempty"`
	// Delta is set for text_delta.
	Delta string `json:"delta,omitempty"`
	// ToolCall is set for tool_call_started.
	ToolCall *ToolCall `json:"tool_call,omitempty"`
	// ToolResult is set for tool_call_completed.
	ToolResult *ToolResult `json:"tool_result,omitempty"`
	// HandoffFrom, HandoffTo and HandoffReason are set for handoff.
	HandoffFrom   string `json:"handoff_from,omitempty"`
	HandoffTo     string `json:"handoff_to,omitempty"`
	HandoffReason string `json:"handoff_reason,omitempty"`
	// GuardrailName and GuardrailResult are set for guardrail_triggered.
	GuardrailName   string           `json:"guardrail_name,omitempty"`
	GuardrailResult *GuardrailResult `json:"guardrail_result,omitempty"`
	// Turn is set for turn_completed.
	Turn int `json:"turn,omitempty"`
	// Result is set for completed.
	Result *RunResult `json:"result,omitempty"`
	// Err is set for error.
	Err error `json:"-"`
}

func newEvent(t EventType) Event {
	return Event{ID: NewID(), Type: t, Timestamp: time.Now().UTC()}
}

// IsTerminal reports whether no further events follow this one.
func (e Event) IsTerminal() bool {
	return e.Type == EventCompleted || e.Type == EventError
}

// NewAgentStartedEvent creates an agent_started event.
func NewAgentStartedEvent(agentName string) Event {
	e := newEvent(EventAgentStarted)
	e.AgentName = agentName
	return e
}

// NewTextDeltaEvent creates a text_delta event attributed to the currently
// active agent.
func NewTextDeltaEvent(agentName, delta string) Event {
	e := newEvent(EventTextDelta)
	e.AgentName = agentName
	e.Delta = delta
	return e
}

// NewToolCallStartedEvent creates a tool_call_started event.
func NewToolCallStartedEvent(call ToolCall) Event {
	e := newEvent(EventToolCallStarted)
	e.ToolCall = &call
	return e
}

// NewToolCallCompletedEvent creates a tool_call_completed event.
func NewToolCallCompletedEvent(result ToolResult) Event {
	e := newEvent(EventToolCallCompleted)
	e.ToolResult = &result
	return e
}

// NewHandoffEvent creates a handoff event.
func NewHandoffEvent(from, to, reason string) Event {
	e := newEvent(EventHandoff)
	e.HandoffFrom = from
	e.HandoffTo = to
	e.HandoffReason = reason
	return e
}

// NewGuardrailEvent creates a guardrail_triggered event.
func NewGuardrailEvent(guardrailName string, result GuardrailResult) Event {
	e := newEvent(EventGuardrailTriggered)
	e.GuardrailName = guardrailName
	e.GuardrailResult = &result
	return e
}

// NewTurnCompletedEvent creates a turn_completed event.
func NewTurnCompletedEvent(turn int) Event {
	e := newEvent(EventTurnCompleted)
	e.Turn = turn
	return e
}

// NewCompletedEvent creates the terminal completed event.
func NewCompletedEvent(result RunResult) Event {
	e := newEvent(EventCompleted)
	e.Result = &result
	return e
}

// NewErrorEvent creates the terminal error event.
func NewErrorEvent(err error) Event {
	e := newEvent(EventError)
	e.Err = err
	return e
}
