// Package runner implements the conversation-turn state machine at the core
// of agentloop.
//
// A run proceeds through: input guardrails -> transcript seeding -> repeated
// turns (request, stream-assemble, tool-or-handoff dispatch, message append)
// -> output guardrails -> completion, bounded by a maximum turn count and
// cooperative cancellation.
//
// # Responsibilities
//   - Streaming turn assembly: reconstructing a complete assistant message
//     from fragmented text and tool-call argument deltas
//   - Tool dispatch with local failure recovery (a tool failure becomes an
//     error-flagged result the model can react to, never a run failure)
//   - Handoff detection with cycle guarding across agent switches
//   - Run handle registry for operator-initiated cancellation
//
// Turns execute strictly sequentially; within one turn, tool calls are
// processed in the order the model emitted them. The event stream emitted by
// a run mirrors the state-machine transition order and is terminal after a
// completed or error event.
package runner
