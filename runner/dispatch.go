package runner

import (
	"context"
	"fmt"

	"github.com/tidwall/gjson"

	"github.com/agentloop-ai/agentloop/agent"
	"github.com/agentloop-ai/agentloop/core"
)

// dispatchTool executes one ordinary tool call against the emitting agent.
// Failures never abort the run: an unknown tool or a tool error is converted
// into an error-flagged result appended to the transcript so the model can
// react on the next turn. The returned error is non-nil only when the run
// context was cancelled.
func (r *run) dispatchTool(ctx context.Context, emitter *agent.Agent, call core.ToolCall) error {
	r.toolCallCount++
	if !r.emit(ctx, core.NewToolCallStartedEvent(call)) {
		return r.cancelled(ctx)
	}

	var result core.ToolResult
	t, found := emitter.ToolByName(call.Name)
	switch {
	case !found:
		notFound := &core.ToolNotFoundError{Name: call.Name}
		r.logger.Warn("tool not found", "run_id", r.runID, "tool", call.Name)
		result = core.ToolResult{
			CallID:  call.ID,
			Name:    call.Name,
			Content: notFound.Error(),
			IsError: true,
		}

	default:
		output, err := t.Execute(ctx, call.Arguments, r.rc)
		if err != nil {
			if ctx.Err() != nil {
				return r.cancelled(ctx)
			}
			execErr := &core.ToolExecutionError{Tool: call.Name, Err: err}
			r.logger.Warn("tool execution failed", "run_id", r.runID, "tool", call.Name, "error", err)
			result = core.ToolResult{
				CallID:  call.ID,
				Name:    call.Name,
				Content: execErr.Error(),
				IsError: true,
			}
		} else {
			r.logger.Debug("tool executed", "run_id", r.runID, "tool", call.Name)
			result = core.ToolResult{
				CallID:  call.ID,
				Name:    call.Name,
				Content: output,
			}
		}
	}

	r.transcript = append(r.transcript, core.NewToolMessage(result))
	if !r.emit(ctx, core.NewToolCallCompletedEvent(result)) {
		return r.cancelled(ctx)
	}
	return nil
}

// performHandoff switches the active agent. Unlike tool dispatch, a handoff
// runs no user code: it appends an acknowledging tool result, rewrites the
// system message for the new agent and records the target in the visited
// history. Returning to an agent already in the history is fatal.
func (r *run) performHandoff(ctx context.Context, emitter *agent.Agent, call core.ToolCall, h *agent.Handoff) error {
	r.toolCallCount++

	target := h.Target()
	for _, visited := range r.agentHistory {
		if visited == target.Name() {
			path := append(append([]string(nil), r.agentHistory...), target.Name())
			return &core.HandoffCycleError{Path: path}
		}
	}

	reason := gjson.Get(call.Arguments, "reason").String()
	if reason == "" {
		reason = "Handoff requested"
	}

	from := emitter.Name()
	r.logger.Info("handoff", "run_id", r.runID, "from", from, "to", target.Name(), "reason", reason)

	result := core.ToolResult{
		CallID:  call.ID,
		Name:    call.Name,
		Content: fmt.Sprintf("Transferring to agent %q: %s", target.Name(), reason),
	}
	r.transcript = append(r.transcript, core.NewToolMessage(result))

	r.agentHistory = append(r.agentHistory, target.Name())
	r.active = target
	// The system slot always reflects the active agent's instructions.
	r.transcript[0] = core.NewSystemMessage(target.Instructions())

	if !r.emit(ctx, core.NewHandoffEvent(from, target.Name(), reason)) {
		return r.cancelled(ctx)
	}
	if !r.emit(ctx, core.NewAgentStartedEvent(target.Name())) {
		return r.cancelled(ctx)
	}
	return nil
}
