package runner

import (
	"context"
	"errors"
	"fmt"

	"github.com/agentloop-ai/agentloop/agent"
	"github.com/agentloop-ai/agentloop/core"
	"github.com/agentloop-ai/agentloop/guardrail"
	"github.com/agentloop-ai/agentloop/logging"
	"github.com/agentloop-ai/agentloop/model"
)

// run owns all mutable state of a single run: the transcript, the visited
// agent history, counters and token usage. It lives entirely inside the
// goroutine started by Runner.Stream, so no field needs locking.
type run struct {
	runID    string
	provider model.Provider
	logger   logging.Logger
	maxTurns int
	events   chan<- core.Event
	rc       *core.RunContext

	active        *agent.Agent
	transcript    []core.Message
	agentHistory  []string
	turnCount     int
	toolCallCount int
	usage         core.TokenUsage
}

// execute drives the run to a terminal event. Exactly one completed or error
// event is sent before the events channel closes.
func (r *run) execute(ctx context.Context, input string) {
	result, err := r.loop(ctx, input)
	if err != nil {
		r.logger.Error("run failed", "run_id", r.runID, "error", err)
		r.events <- core.NewErrorEvent(err)
		return
	}

	r.logger.Info("run completed",
		"run_id", r.runID,
		"agent", result.FinalAgent,
		"turns", result.TurnCount,
		"tool_calls", result.ToolCallCount,
		"tokens", result.Usage.TotalTokens(),
	)
	r.events <- core.NewCompletedEvent(*result)
}

// loop is the state machine proper: input guardrails, transcript seeding,
// the bounded turn loop, then output guardrails.
func (r *run) loop(ctx context.Context, input string) (*core.RunResult, error) {
	seed, err := r.applyInputGuardrails(ctx, input)
	if err != nil {
		return nil, err
	}

	r.transcript = []core.Message{
		core.NewSystemMessage(r.active.Instructions()),
		core.NewUserMessage(seed),
	}
	r.agentHistory = []string{r.active.Name()}

	r.logger.Info("run started", "run_id", r.runID, "agent", r.active.Name())
	if !r.emit(ctx, core.NewAgentStartedEvent(r.active.Name())) {
		return nil, r.cancelled(ctx)
	}

	for {
		if r.turnCount >= r.maxTurns {
			return nil, &core.MaxTurnsExceededError{Limit: r.maxTurns}
		}
		if ctx.Err() != nil {
			return nil, r.cancelled(ctx)
		}

		r.turnCount++
		turn, err := r.streamTurn(ctx)
		if err != nil {
			return nil, err
		}

		r.transcript = append(r.transcript, core.NewAssistantMessage(turn.Text, turn.ToolCalls))
		r.usage.Add(turn.Usage)
		if !r.emit(ctx, core.NewTurnCompletedEvent(r.turnCount)) {
			return nil, r.cancelled(ctx)
		}

		if len(turn.ToolCalls) == 0 {
			return r.finish(ctx, turn.Text)
		}

		// Calls resolve against the agent that emitted them: a handoff mid-turn
		// switches the active agent but later calls of the same turn still
		// belong to the emitting agent. Each handoff is cycle-checked in
		// emission order; a later one overrides the earlier activation.
		turnAgent := r.active
		for _, call := range turn.ToolCalls {
			if h, ok := turnAgent.HandoffByName(call.Name); ok {
				if err := r.performHandoff(ctx, turnAgent, call, h); err != nil {
					return nil, err
				}
				continue
			}
			if err := r.dispatchTool(ctx, turnAgent, call); err != nil {
				return nil, err
			}
		}
	}
}

// applyInputGuardrails runs the active agent's input chain over the raw user
// input. A block is terminal; a modification replaces the text seeded into
// the transcript.
func (r *run) applyInputGuardrails(ctx context.Context, input string) (string, error) {
	outcome, err := guardrail.ApplyChain(ctx, input, r.active.InputGuardrails(), r.rc)
	r.emitEvaluations(ctx, outcome.Evaluations)
	if err != nil {
		return "", err
	}
	if outcome.Blocked != nil {
		return "", &core.InputBlockedError{
			Guardrail: outcome.Blocked.Guardrail,
			Reason:    outcome.Blocked.Result.Reason,
		}
	}
	return outcome.Text, nil
}

// finish applies the output guardrail chain and builds the final result. The
// transcript keeps the assistant's original text; only RunResult.Output
// reflects guardrail modifications.
func (r *run) finish(ctx context.Context, output string) (*core.RunResult, error) {
	outcome, err := guardrail.ApplyChain(ctx, output, r.active.OutputGuardrails(), r.rc)
	r.emitEvaluations(ctx, outcome.Evaluations)
	if err != nil {
		return nil, err
	}
	if outcome.Blocked != nil {
		return nil, &core.OutputBlockedError{
			Guardrail: outcome.Blocked.Guardrail,
			Reason:    outcome.Blocked.Result.Reason,
		}
	}

	return &core.RunResult{
		Output:        outcome.Text,
		Messages:      r.transcript,
		FinalAgent:    r.active.Name(),
		ToolCallCount: r.toolCallCount,
		TurnCount:     r.turnCount,
		Usage:         r.usage,
	}, nil
}

// emitEvaluations emits one guardrail_triggered event per guardrail that ran,
// passes included. A block stops the chain, so unevaluated guardrails emit
// nothing.
func (r *run) emitEvaluations(ctx context.Context, evals []guardrail.Evaluation) {
	for _, eval := range evals {
		if eval.Result.Outcome != core.GuardrailPass {
			r.logger.Warn("guardrail triggered",
				"run_id", r.runID,
				"guardrail", eval.Guardrail,
				"outcome", string(eval.Result.Outcome),
				"reason", eval.Result.Reason,
			)
		}
		if !r.emit(ctx, core.NewGuardrailEvent(eval.Guardrail, eval.Result)) {
			return
		}
	}
}

// emit delivers ev unless the run context is cancelled. It reports whether
// the event was sent.
func (r *run) emit(ctx context.Context, ev core.Event) bool {
	select {
	case r.events <- ev:
		return true
	case <-ctx.Done():
		return false
	}
}

// cancelled wraps the context's cause under core.ErrCancelled so callers can
// match it with errors.Is.
func (r *run) cancelled(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return fmt.Errorf("%w: %v", core.ErrCancelled, err)
	}
	return core.ErrCancelled
}

// classifyStreamError normalizes provider stream failures. Typed errors pass
// through untouched so callers can match them; anything else is wrapped in a
// ProviderError.
func (r *run) classifyStreamError(ctx context.Context, err error) error {
	if ctx.Err() != nil || errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return fmt.Errorf("%w: %v", core.ErrCancelled, err)
	}

	var (
		providerErr *core.ProviderError
		rateErr     *core.RateLimitedError
		respErr     *core.InvalidResponseError
	)
	if errors.As(err, &providerErr) || errors.As(err, &rateErr) || errors.As(err, &respErr) ||
		errors.Is(err, core.ErrAuthenticationFailed) {
		return err
	}
	return &core.ProviderError{Message: "model stream failed", Err: err}
}
