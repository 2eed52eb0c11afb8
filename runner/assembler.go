package runner

import (
	"context"
	"strings"

	"github.com/agentloop-ai/agentloop/core"
	"github.com/agentloop-ai/agentloop/model"
)

// assembledTurn is one complete assistant response reconstructed from a
// provider event stream.
type assembledTurn struct {
	Text         string
	ToolCalls    []core.ToolCall
	Usage        core.TokenUsage
	FinishReason model.FinishReason
}

// callBuffer accumulates argument fragments for one in-flight tool call,
// keyed by the provider-assigned call id.
type callBuffer struct {
	name    string
	args    strings.Builder
	stopped bool
}

// streamTurn issues one model request and folds the resulting event stream
// into a complete turn. Text deltas are re-emitted to run subscribers as they
// arrive; tool-call argument fragments are buffered per call id and surfaced
// only once assembled. The final done snapshot is authoritative: when it
// carries tool calls they replace whatever the buffers hold.
func (r *run) streamTurn(ctx context.Context) (*assembledTurn, error) {
	mdl := r.active.Model()
	if mdl == "" {
		mdl = r.provider.DefaultModel()
	}
	req := model.Request{
		Model:    mdl,
		Messages: append([]core.Message(nil), r.transcript...),
		Tools:    r.active.ToolDefinitions(),
	}

	r.logger.Debug("turn started",
		"run_id", r.runID,
		"agent", r.active.Name(),
		"turn", r.turnCount,
		"messages", len(req.Messages),
	)

	events, errCh := r.provider.Stream(ctx, req)

	buffers := make(map[string]*callBuffer)
	var order []string
	var text strings.Builder
	var usage core.TokenUsage
	var final *model.Response

	for events != nil || errCh != nil {
		select {
		case <-ctx.Done():
			return nil, r.cancelled(ctx)

		case ev, ok := <-events:
			if !ok {
				events = nil
				continue
			}
			switch ev.Type {
			case model.StreamTextDelta:
				text.WriteString(ev.Text)
				if !r.emit(ctx, core.NewTextDeltaEvent(r.active.Name(), ev.Text)) {
					return nil, r.cancelled(ctx)
				}

			case model.StreamToolCallStart:
				buf, exists := buffers[ev.CallID]
				if !exists {
					buf = &callBuffer{name: ev.ToolName}
					buffers[ev.CallID] = buf
					order = append(order, ev.CallID)
				} else if buf.name == "" {
					buf.name = ev.ToolName
				}

			case model.StreamToolCallDelta:
				buf, exists := buffers[ev.CallID]
				if !exists {
					// Tolerate a delta for an unseen id: buffer it anyway and
					// let the done snapshot supply the name.
					r.logger.Debug("tool call delta for unknown id", "run_id", r.runID, "call_id", ev.CallID)
					buf = &callBuffer{}
					buffers[ev.CallID] = buf
					order = append(order, ev.CallID)
				}
				if !buf.stopped {
					buf.args.WriteString(ev.Fragment)
				}

			case model.StreamToolCallStop:
				if buf, exists := buffers[ev.CallID]; exists {
					buf.stopped = true
				}

			case model.StreamUsage:
				if ev.Usage != nil {
					if usage.InputTokens == 0 {
						usage.InputTokens = ev.Usage.InputTokens
					}
					usage.OutputTokens += ev.Usage.OutputTokens
				}

			case model.StreamDone:
				final = ev.Response
			}

		case err, ok := <-errCh:
			if !ok {
				errCh = nil
				continue
			}
			if err != nil {
				return nil, r.classifyStreamError(ctx, err)
			}
		}
	}

	if final == nil {
		return nil, &core.InvalidResponseError{Message: "model stream ended without a final response"}
	}
	if final.FinishReason == model.FinishError {
		return nil, &core.ProviderError{Message: final.ErrorMessage}
	}

	turn := &assembledTurn{FinishReason: final.FinishReason}

	turn.Text = text.String()
	if turn.Text == "" && final.Content != "" {
		turn.Text = final.Content
	}

	if final.ToolCalls != nil {
		turn.ToolCalls = append([]core.ToolCall(nil), final.ToolCalls...)
	} else {
		for _, id := range order {
			buf := buffers[id]
			turn.ToolCalls = append(turn.ToolCalls, core.ToolCall{
				ID:        id,
				Name:      buf.name,
				Arguments: buf.args.String(),
			})
		}
	}

	// A usage total in the final response overrides incremental updates so
	// the two reporting styles never double count.
	if final.Usage != nil {
		usage = *final.Usage
	}
	turn.Usage = usage

	r.logger.Debug("turn assembled",
		"run_id", r.runID,
		"turn", r.turnCount,
		"tool_calls", len(turn.ToolCalls),
		"finish_reason", string(turn.FinishReason),
	)
	return turn, nil
}
