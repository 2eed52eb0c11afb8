package runner

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/agentloop-ai/agentloop/agent"
	"github.com/agentloop-ai/agentloop/core"
	"github.com/agentloop-ai/agentloop/guardrail"
	"github.com/agentloop-ai/agentloop/internal/testutil"
	"github.com/agentloop-ai/agentloop/model"
	"github.com/agentloop-ai/agentloop/tool"
)

type addArgs struct {
	A float64 `json:"a"`
	B float64 `json:"b"`
}

func newAddTool() *tool.FunctionTool {
	return tool.NewFromStruct("add", "Add two numbers",
		func(_ context.Context, args addArgs, _ *core.RunContext) (string, error) {
			return strconv.FormatFloat(args.A+args.B, 'f', -1, 64), nil
		})
}

func newFailingTool(name string) *tool.FunctionTool {
	return tool.New(name, "Always fails", nil,
		func(_ context.Context, _ json.RawMessage, _ *core.RunContext) (string, error) {
			return "", errors.New("backend unavailable")
		})
}

func TestRun_TextOnlyTurn(t *testing.T) {
	provider := model.NewMockProvider()
	provider.QueueTurn(testutil.NewTurnBuilder().Text("Hel", "lo!").DoneStop()...)

	r := New(provider)
	assistant := agent.New("Assistant", "be helpful")

	result, err := r.Run(context.Background(), assistant, "hi", nil)
	require.NoError(t, err)

	assert.Equal(t, "Hello!", result.Output)
	assert.Equal(t, 1, result.TurnCount)
	assert.Equal(t, 0, result.ToolCallCount)
	assert.Equal(t, "Assistant", result.FinalAgent)
	assert.Equal(t, 1, provider.CallCount())

	// Transcript: system, user, assistant.
	require.Len(t, result.Messages, 3)
	assert.Equal(t, core.RoleSystem, result.Messages[0].Role)
	assert.Equal(t, "be helpful", result.Messages[0].Content)
	assert.Equal(t, core.RoleUser, result.Messages[1].Role)
	assert.Equal(t, "hi", result.Messages[1].Content)
	assert.Equal(t, core.RoleAssistant, result.Messages[2].Role)
	assert.Equal(t, "Hello!", result.Messages[2].Content)
}

func TestStream_EventOrder(t *testing.T) {
	provider := model.NewMockProvider()
	provider.QueueTurn(testutil.NewTurnBuilder().Text("Hi").DoneStop()...)

	r := New(provider)
	_, events, err := r.Stream(context.Background(), agent.New("A", "i"), "hello", nil)
	require.NoError(t, err)

	collected := testutil.CollectEvents(events)
	require.NotEmpty(t, collected)

	var types []core.EventType
	for _, ev := range collected {
		types = append(types, ev.Type)
	}
	assert.Equal(t, []core.EventType{
		core.EventAgentStarted,
		core.EventTextDelta,
		core.EventTurnCompleted,
		core.EventCompleted,
	}, types)
	assert.True(t, collected[len(collected)-1].IsTerminal())
	assert.Equal(t, "Hi", testutil.JoinTextDeltas(collected))
}

func TestRun_ToolCallThenFinalAnswer(t *testing.T) {
	provider := model.NewMockProvider()
	provider.QueueTurn(testutil.NewTurnBuilder().
		ToolCall("call_1", "add", `{"a":2`, `,"b":3}`).
		DoneToolUse()...)
	provider.QueueTurn(testutil.NewTurnBuilder().Text("The sum is 5.").DoneStop()...)

	r := New(provider)
	mathAgent := agent.New("Math", "use the add tool", agent.WithTools(newAddTool()))

	result, err := r.Run(context.Background(), mathAgent, "what is 2+3?", nil)
	require.NoError(t, err)

	assert.Equal(t, "The sum is 5.", result.Output)
	assert.Equal(t, 2, result.TurnCount)
	assert.Equal(t, 1, result.ToolCallCount)
	assert.Equal(t, 2, provider.CallCount())

	// Transcript: system, user, assistant(tool call), tool, assistant.
	require.Len(t, result.Messages, 5)
	assert.Equal(t, core.RoleAssistant, result.Messages[2].Role)
	require.Len(t, result.Messages[2].ToolCalls, 1)
	assert.Equal(t, `{"a":2,"b":3}`, result.Messages[2].ToolCalls[0].Arguments)
	assert.Equal(t, core.RoleTool, result.Messages[3].Role)
	assert.Equal(t, "5", result.Messages[3].Content)
	assert.Equal(t, "call_1", result.Messages[3].ToolCallID)

	// The second request carried the tool result back to the model.
	second := provider.Requests()[1]
	require.Len(t, second.Messages, 4)
	assert.Equal(t, core.RoleTool, second.Messages[3].Role)
}

func TestRun_ToolFailureIsRecovered(t *testing.T) {
	provider := model.NewMockProvider()
	provider.QueueTurn(testutil.NewTurnBuilder().
		ToolCall("call_1", "flaky", `{}`).
		DoneToolUse()...)
	provider.QueueTurn(testutil.NewTurnBuilder().Text("Sorry, the tool is down.").DoneStop()...)

	r := New(provider)
	ag := agent.New("A", "i", agent.WithTools(newFailingTool("flaky")))

	_, events, err := r.Stream(context.Background(), ag, "go", nil)
	require.NoError(t, err)
	collected := testutil.CollectEvents(events)

	completions := testutil.EventsOfType(collected, core.EventToolCallCompleted)
	require.Len(t, completions, 1)
	assert.True(t, completions[0].ToolResult.IsError)
	assert.Contains(t, completions[0].ToolResult.Content, "backend unavailable")

	// The failure never aborted the run.
	final := collected[len(collected)-1]
	require.Equal(t, core.EventCompleted, final.Type)
	assert.Equal(t, "Sorry, the tool is down.", final.Result.Output)
}

func TestRun_UnknownToolIsRecovered(t *testing.T) {
	provider := model.NewMockProvider()
	provider.QueueTurn(testutil.NewTurnBuilder().
		ToolCall("call_1", "does_not_exist", `{}`).
		DoneToolUse()...)
	provider.QueueTurn(testutil.NewTurnBuilder().Text("done").DoneStop()...)

	r := New(provider)
	result, err := r.Run(context.Background(), agent.New("A", "i"), "go", nil)
	require.NoError(t, err)

	assert.Equal(t, "Tool not found: does_not_exist", result.Messages[3].Content)
	assert.Equal(t, 1, result.ToolCallCount)
}

func TestRun_MaxTurnsEnforced(t *testing.T) {
	provider := model.NewMockProvider()
	// Every turn requests another tool call, so the run can never finish.
	for i := 0; i < 5; i++ {
		provider.QueueTurn(testutil.NewTurnBuilder().
			ToolCall(fmt.Sprintf("call_%d", i), "add", `{"a":1,"b":1}`).
			DoneToolUse()...)
	}

	r := New(provider, WithMaxTurns(3))
	ag := agent.New("A", "i", agent.WithTools(newAddTool()))

	_, err := r.Run(context.Background(), ag, "loop forever", nil)
	var maxErr *core.MaxTurnsExceededError
	require.ErrorAs(t, err, &maxErr)
	assert.Equal(t, 3, maxErr.Limit)
	// The bound is checked before the request, so exactly three were made.
	assert.Equal(t, 3, provider.CallCount())
}

func TestRun_Handoff(t *testing.T) {
	provider := model.NewMockProvider()
	provider.QueueTurn(testutil.NewTurnBuilder().
		ToolCall("call_1", "handoff_to_billing", `{"reason":"refund question"}`).
		DoneToolUse()...)
	provider.QueueTurn(testutil.NewTurnBuilder().Text("Your refund is on its way.").DoneStop()...)

	billing := agent.New("Billing", "you handle billing")
	triage := agent.New("Triage", "route the question",
		agent.WithHandoffs(agent.NewHandoff(billing)))

	r := New(provider)
	_, events, err := r.Stream(context.Background(), triage, "where is my refund?", nil)
	require.NoError(t, err)
	collected := testutil.CollectEvents(events)

	handoffs := testutil.EventsOfType(collected, core.EventHandoff)
	require.Len(t, handoffs, 1)
	assert.Equal(t, "Triage", handoffs[0].HandoffFrom)
	assert.Equal(t, "Billing", handoffs[0].HandoffTo)
	assert.Equal(t, "refund question", handoffs[0].HandoffReason)

	// agent_started fires for the initial agent and again after the switch.
	starts := testutil.EventsOfType(collected, core.EventAgentStarted)
	require.Len(t, starts, 2)
	assert.Equal(t, "Triage", starts[0].AgentName)
	assert.Equal(t, "Billing", starts[1].AgentName)

	final := collected[len(collected)-1]
	require.Equal(t, core.EventCompleted, final.Type)
	result := final.Result
	assert.Equal(t, "Billing", result.FinalAgent)
	assert.Equal(t, 1, result.ToolCallCount)

	// The system slot was replaced, not appended.
	assert.Equal(t, core.RoleSystem, result.Messages[0].Role)
	assert.Equal(t, "you handle billing", result.Messages[0].Content)
	systemCount := 0
	for _, m := range result.Messages {
		if m.Role == core.RoleSystem {
			systemCount++
		}
	}
	assert.Equal(t, 1, systemCount)

	// The second request already ran under the new instructions.
	second := provider.Requests()[1]
	assert.Equal(t, "you handle billing", second.Messages[0].Content)
}

func TestRun_HandoffDefaultReason(t *testing.T) {
	provider := model.NewMockProvider()
	provider.QueueTurn(testutil.NewTurnBuilder().
		ToolCall("call_1", "handoff_to_billing", `{}`).
		DoneToolUse()...)
	provider.QueueTurn(testutil.NewTurnBuilder().Text("ok").DoneStop()...)

	billing := agent.New("Billing", "billing")
	triage := agent.New("Triage", "route", agent.WithHandoffs(agent.NewHandoff(billing)))

	r := New(provider)
	_, events, err := r.Stream(context.Background(), triage, "help", nil)
	require.NoError(t, err)
	collected := testutil.CollectEvents(events)

	handoffs := testutil.EventsOfType(collected, core.EventHandoff)
	require.Len(t, handoffs, 1)
	assert.Equal(t, "Handoff requested", handoffs[0].HandoffReason)
}

func TestRun_MultipleHandoffsInOneTurn(t *testing.T) {
	provider := model.NewMockProvider()
	// Two handoff calls in one turn: each is cycle-checked in emission order
	// and the later one overrides the earlier activation.
	provider.QueueTurn(testutil.NewTurnBuilder().
		ToolCall("call_1", "handoff_to_billing", `{"reason":"first"}`).
		ToolCall("call_2", "handoff_to_tech", `{"reason":"second"}`).
		DoneToolUse()...)
	provider.QueueTurn(testutil.NewTurnBuilder().Text("tech here").DoneStop()...)

	billing := agent.New("Billing", "billing")
	tech := agent.New("Tech", "tech support")
	triage := agent.New("Triage", "route",
		agent.WithHandoffs(agent.NewHandoff(billing), agent.NewHandoff(tech)))

	r := New(provider)
	_, events, err := r.Stream(context.Background(), triage, "help", nil)
	require.NoError(t, err)
	collected := testutil.CollectEvents(events)

	handoffs := testutil.EventsOfType(collected, core.EventHandoff)
	require.Len(t, handoffs, 2)
	assert.Equal(t, "Billing", handoffs[0].HandoffTo)
	assert.Equal(t, "Tech", handoffs[1].HandoffTo)
	// Both transfers originate from the emitting agent.
	assert.Equal(t, "Triage", handoffs[0].HandoffFrom)
	assert.Equal(t, "Triage", handoffs[1].HandoffFrom)

	final := collected[len(collected)-1]
	require.Equal(t, core.EventCompleted, final.Type)
	assert.Equal(t, "Tech", final.Result.FinalAgent)
	assert.Equal(t, 2, final.Result.ToolCallCount)
	// The system slot reflects the last activation.
	assert.Equal(t, "tech support", final.Result.Messages[0].Content)
}

func TestRun_HandoffCycleDetected(t *testing.T) {
	provider := model.NewMockProvider()
	provider.QueueTurn(testutil.NewTurnBuilder().
		ToolCall("call_1", "handoff_to_y", `{"reason":"try Y"}`).
		DoneToolUse()...)
	provider.QueueTurn(testutil.NewTurnBuilder().
		ToolCall("call_2", "handoff_to_x", `{"reason":"back to X"}`).
		DoneToolUse()...)

	x := agent.New("X", "agent x")
	y := agent.New("Y", "agent y", agent.WithHandoffs(agent.NewHandoff(x)))
	// Wire X -> Y after Y exists.
	x = agent.New("X", "agent x", agent.WithHandoffs(agent.NewHandoff(y)))

	r := New(provider)
	_, err := r.Run(context.Background(), x, "start", nil)

	var cycleErr *core.HandoffCycleError
	require.ErrorAs(t, err, &cycleErr)
	assert.Equal(t, []string{"X", "Y", "X"}, cycleErr.Path)
	// The cycle is caught before any model call for X's second activation.
	assert.Equal(t, 2, provider.CallCount())
}

func TestRun_InputGuardrailBlocks(t *testing.T) {
	provider := model.NewMockProvider()

	blocked, err := guardrail.NewBlockPattern("forbidden")
	require.NoError(t, err)
	ag := agent.New("A", "i", agent.WithInputGuardrails(blocked))

	r := New(provider)
	_, events, err := r.Stream(context.Background(), ag, "this is FORBIDDEN input", nil)
	require.NoError(t, err)
	collected := testutil.CollectEvents(events)

	triggered := testutil.EventsOfType(collected, core.EventGuardrailTriggered)
	require.Len(t, triggered, 1)
	assert.Equal(t, "block_pattern", triggered[0].GuardrailName)

	final := collected[len(collected)-1]
	require.Equal(t, core.EventError, final.Type)
	var blockErr *core.InputBlockedError
	require.ErrorAs(t, final.Err, &blockErr)
	assert.Equal(t, "block_pattern", blockErr.Guardrail)

	// No backend call was made.
	assert.Equal(t, 0, provider.CallCount())
}

func TestRun_PassedGuardrailEmitsEvent(t *testing.T) {
	provider := model.NewMockProvider()
	provider.QueueTurn(testutil.NewTurnBuilder().Text("ok").DoneStop()...)

	ag := agent.New("A", "i", agent.WithInputGuardrails(guardrail.NewMaxLength(100, false)))
	r := New(provider)

	_, events, err := r.Stream(context.Background(), ag, "hi", nil)
	require.NoError(t, err)
	collected := testutil.CollectEvents(events)

	// One event per guardrail evaluated, a clean pass included.
	triggered := testutil.EventsOfType(collected, core.EventGuardrailTriggered)
	require.Len(t, triggered, 1)
	assert.Equal(t, "max_length", triggered[0].GuardrailName)
	assert.Equal(t, core.GuardrailPass, triggered[0].GuardrailResult.Outcome)
}

func TestRun_InputGuardrailModifiesSeed(t *testing.T) {
	provider := model.NewMockProvider()
	provider.QueueTurn(testutil.NewTurnBuilder().Text("ok").DoneStop()...)

	ag := agent.New("A", "i", agent.WithInputGuardrails(guardrail.NewMaxLength(5, true)))
	r := New(provider)

	result, err := r.Run(context.Background(), ag, "0123456789", nil)
	require.NoError(t, err)

	// The model saw the truncated input; so does the transcript.
	assert.Equal(t, "01234", provider.Requests()[0].Messages[1].Content)
	assert.Equal(t, "01234", result.Messages[1].Content)
}

func TestRun_OutputGuardrailBlocks(t *testing.T) {
	provider := model.NewMockProvider()
	provider.QueueTurn(testutil.NewTurnBuilder().Text("the secret answer").DoneStop()...)

	blocked, err := guardrail.NewBlockPattern("secret")
	require.NoError(t, err)
	ag := agent.New("A", "i", agent.WithOutputGuardrails(blocked))

	r := New(provider)
	_, err = r.Run(context.Background(), ag, "tell me", nil)

	var blockErr *core.OutputBlockedError
	require.ErrorAs(t, err, &blockErr)
	assert.Equal(t, "block_pattern", blockErr.Guardrail)
}

func TestRun_OutputGuardrailModifies(t *testing.T) {
	provider := model.NewMockProvider()
	provider.QueueTurn(testutil.NewTurnBuilder().Text("a very long answer").DoneStop()...)

	ag := agent.New("A", "i", agent.WithOutputGuardrails(guardrail.NewMaxLength(6, true)))
	r := New(provider)

	result, err := r.Run(context.Background(), ag, "go", nil)
	require.NoError(t, err)

	assert.Equal(t, "a very", result.Output)
	// The transcript keeps the assistant's original text.
	assert.Equal(t, "a very long answer", result.Messages[2].Content)
}

func TestRun_RunContextValuesReachTools(t *testing.T) {
	provider := model.NewMockProvider()
	provider.QueueTurn(testutil.NewTurnBuilder().
		ToolCall("call_1", "whoami", `{}`).
		DoneToolUse()...)
	provider.QueueTurn(testutil.NewTurnBuilder().Text("done").DoneStop()...)

	whoami := tool.New("whoami", "Report the user", nil,
		func(_ context.Context, _ json.RawMessage, rc *core.RunContext) (string, error) {
			v, _ := rc.Value("user_id")
			return fmt.Sprintf("%v", v), nil
		})
	ag := agent.New("A", "i", agent.WithTools(whoami))

	r := New(provider)
	result, err := r.Run(context.Background(), ag, "who am I?", map[string]any{"user_id": "u-42"})
	require.NoError(t, err)
	assert.Equal(t, "u-42", result.Messages[3].Content)
}

func TestRun_StreamWithoutDoneFails(t *testing.T) {
	provider := model.NewMockProvider()
	provider.QueueTurn(testutil.NewTurnBuilder().Text("truncated").Events()...)

	r := New(provider)
	_, err := r.Run(context.Background(), agent.New("A", "i"), "go", nil)

	var respErr *core.InvalidResponseError
	require.ErrorAs(t, err, &respErr)
}

func TestRun_ConfigurationValidation(t *testing.T) {
	var cfgErr *core.InvalidConfigurationError

	r := New(nil)
	_, err := r.Run(context.Background(), agent.New("A", "i"), "go", nil)
	assert.ErrorAs(t, err, &cfgErr)

	r = New(model.NewMockProvider())
	_, err = r.Run(context.Background(), nil, "go", nil)
	assert.ErrorAs(t, err, &cfgErr)

	r = New(model.NewMockProvider(), WithMaxTurns(0))
	_, err = r.Run(context.Background(), agent.New("A", "i"), "go", nil)
	assert.ErrorAs(t, err, &cfgErr)
}

func TestRun_UsageAccumulatesAcrossTurns(t *testing.T) {
	provider := model.NewMockProvider()
	provider.QueueTurn(testutil.NewTurnBuilder().
		ToolCall("call_1", "add", `{"a":1,"b":1}`).
		DoneResponse(model.Response{
			FinishReason: model.FinishToolUse,
			ToolCalls:    []core.ToolCall{{ID: "call_1", Name: "add", Arguments: `{"a":1,"b":1}`}},
			Usage:        &core.TokenUsage{InputTokens: 100, OutputTokens: 20},
		})...)
	provider.QueueTurn(testutil.NewTurnBuilder().
		Text("2").
		DoneResponse(model.Response{
			Content:      "2",
			FinishReason: model.FinishStop,
			Usage:        &core.TokenUsage{InputTokens: 130, OutputTokens: 10},
		})...)

	ag := agent.New("A", "i", agent.WithTools(newAddTool()))
	r := New(provider)

	result, err := r.Run(context.Background(), ag, "1+1?", nil)
	require.NoError(t, err)
	assert.Equal(t, int64(230), result.Usage.InputTokens)
	assert.Equal(t, int64(30), result.Usage.OutputTokens)
	assert.Equal(t, int64(260), result.Usage.TotalTokens())
}

// blockingProvider parks its stream until the context is cancelled.
type blockingProvider struct {
	started chan struct{}
}

func (p *blockingProvider) DefaultModel() string { return "blocking" }

func (p *blockingProvider) Complete(context.Context, model.Request) (*model.Response, error) {
	return nil, errors.New("not supported")
}

func (p *blockingProvider) Stream(ctx context.Context, _ model.Request) (<-chan model.StreamEvent, <-chan error) {
	out := make(chan model.StreamEvent)
	errCh := make(chan error, 1)
	go func() {
		defer close(out)
		defer close(errCh)
		close(p.started)
		<-ctx.Done()
		errCh <- ctx.Err()
	}()
	return out, errCh
}

func TestRunner_Cancel(t *testing.T) {
	provider := &blockingProvider{started: make(chan struct{})}
	r := New(provider)

	runID, events, err := r.Stream(context.Background(), agent.New("A", "i"), "go", nil)
	require.NoError(t, err)

	select {
	case <-provider.started:
	case <-time.After(5 * time.Second):
		t.Fatal("stream never started")
	}
	assert.Contains(t, r.ActiveRuns(), runID)

	require.NoError(t, r.Cancel(runID))

	collected := testutil.CollectEvents(events)
	final := collected[len(collected)-1]
	require.Equal(t, core.EventError, final.Type)
	assert.ErrorIs(t, final.Err, core.ErrCancelled)

	assert.Eventually(t, func() bool {
		return len(r.ActiveRuns()) == 0
	}, 5*time.Second, 10*time.Millisecond)

	// A finished run is no longer cancellable.
	assert.Error(t, r.Cancel(runID))
}

func TestRunner_CancelUnknownRun(t *testing.T) {
	r := New(model.NewMockProvider())
	assert.Error(t, r.Cancel("no-such-run"))
}

func TestRunner_CancelAll(t *testing.T) {
	p1 := &blockingProvider{started: make(chan struct{})}
	r := New(p1)

	_, events, err := r.Stream(context.Background(), agent.New("A", "i"), "go", nil)
	require.NoError(t, err)
	<-p1.started

	r.CancelAll()
	collected := testutil.CollectEvents(events)
	assert.ErrorIs(t, collected[len(collected)-1].Err, core.ErrCancelled)
}
