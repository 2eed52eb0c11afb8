package runner

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/agentloop-ai/agentloop/agent"
	"github.com/agentloop-ai/agentloop/core"
	"github.com/agentloop-ai/agentloop/internal/testutil"
	"github.com/agentloop-ai/agentloop/model"
	"github.com/agentloop-ai/agentloop/tool"
)

func newRecordingTool(name string, seen *[]string) *tool.FunctionTool {
	return tool.New(name, "Record arguments", nil,
		func(_ context.Context, raw json.RawMessage, _ *core.RunContext) (string, error) {
			*seen = append(*seen, string(raw))
			return "ok", nil
		})
}

func TestAssembler_InterleavedToolCalls(t *testing.T) {
	provider := model.NewMockProvider()
	// Fragments of two calls arrive interleaved; buffers are keyed by call id
	// so each reassembles independently, in start order.
	provider.QueueTurn(testutil.NewTurnBuilder().
		StartCall("call_a", "alpha").
		StartCall("call_b", "beta").
		ArgsFragment("call_a", `{"x":`).
		ArgsFragment("call_b", `{"y":"in`).
		ArgsFragment("call_a", `1}`).
		ArgsFragment("call_b", `terleaved"}`).
		StopCall("call_a").
		StopCall("call_b").
		DoneToolUse()...)
	provider.QueueTurn(testutil.NewTurnBuilder().Text("done").DoneStop()...)

	var alphaSeen, betaSeen []string
	ag := agent.New("A", "i", agent.WithTools(
		newRecordingTool("alpha", &alphaSeen),
		newRecordingTool("beta", &betaSeen),
	))

	r := New(provider)
	result, err := r.Run(context.Background(), ag, "go", nil)
	require.NoError(t, err)

	assert.Equal(t, []string{`{"x":1}`}, alphaSeen)
	assert.Equal(t, []string{`{"y":"interleaved"}`}, betaSeen)

	calls := result.Messages[2].ToolCalls
	require.Len(t, calls, 2)
	assert.Equal(t, "call_a", calls[0].ID)
	assert.Equal(t, "call_b", calls[1].ID)
	assert.Equal(t, 2, result.ToolCallCount)
}

func TestAssembler_DoneSnapshotOverridesBuffers(t *testing.T) {
	provider := model.NewMockProvider()
	// The streamed fragments are incomplete; the done snapshot carries the
	// authoritative arguments and wins.
	provider.QueueTurn(testutil.NewTurnBuilder().
		StartCall("call_1", "alpha").
		ArgsFragment("call_1", `{"x":`).
		DoneSnapshot(core.ToolCall{ID: "call_1", Name: "alpha", Arguments: `{"x":99}`})...)
	provider.QueueTurn(testutil.NewTurnBuilder().Text("done").DoneStop()...)

	var seen []string
	ag := agent.New("A", "i", agent.WithTools(newRecordingTool("alpha", &seen)))

	r := New(provider)
	_, err := r.Run(context.Background(), ag, "go", nil)
	require.NoError(t, err)
	assert.Equal(t, []string{`{"x":99}`}, seen)
}

func TestAssembler_UnknownCallIDDeltaTolerated(t *testing.T) {
	provider := model.NewMockProvider()
	// A delta for a call id that never had a start event: buffered leniently,
	// then named by the done snapshot.
	provider.QueueTurn(testutil.NewTurnBuilder().
		ArgsFragment("call_ghost", `{"x":1}`).
		StopCall("call_ghost").
		DoneSnapshot(core.ToolCall{ID: "call_ghost", Name: "alpha", Arguments: `{"x":1}`})...)
	provider.QueueTurn(testutil.NewTurnBuilder().Text("done").DoneStop()...)

	var seen []string
	ag := agent.New("A", "i", agent.WithTools(newRecordingTool("alpha", &seen)))

	r := New(provider)
	result, err := r.Run(context.Background(), ag, "go", nil)
	require.NoError(t, err)
	assert.Equal(t, []string{`{"x":1}`}, seen)
	assert.Equal(t, "done", result.Output)
}

func TestAssembler_FragmentsAfterStopIgnored(t *testing.T) {
	provider := model.NewMockProvider()
	provider.QueueTurn(testutil.NewTurnBuilder().
		StartCall("call_1", "alpha").
		ArgsFragment("call_1", `{"x":1}`).
		StopCall("call_1").
		ArgsFragment("call_1", `GARBAGE`).
		DoneToolUse()...)
	provider.QueueTurn(testutil.NewTurnBuilder().Text("done").DoneStop()...)

	var seen []string
	ag := agent.New("A", "i", agent.WithTools(newRecordingTool("alpha", &seen)))

	r := New(provider)
	_, err := r.Run(context.Background(), ag, "go", nil)
	require.NoError(t, err)
	assert.Equal(t, []string{`{"x":1}`}, seen)
}

func TestAssembler_TextDeltasForwardedLive(t *testing.T) {
	provider := model.NewMockProvider()
	provider.QueueTurn(testutil.NewTurnBuilder().Text("str", "eam", "ed").DoneStop()...)

	r := New(provider)
	_, events, err := r.Stream(context.Background(), agent.New("Narrator", "i"), "go", nil)
	require.NoError(t, err)
	collected := testutil.CollectEvents(events)

	deltas := testutil.EventsOfType(collected, core.EventTextDelta)
	require.Len(t, deltas, 3)
	assert.Equal(t, "streamed", testutil.JoinTextDeltas(collected))
	assert.Equal(t, "Narrator", deltas[0].AgentName)
}

func TestAssembler_TextFallsBackToDoneContent(t *testing.T) {
	provider := model.NewMockProvider()
	// Non-streaming style: no deltas, content only in the final response.
	provider.QueueTurn(model.Done(model.Response{
		Content:      "all at once",
		FinishReason: model.FinishStop,
	}))

	r := New(provider)
	result, err := r.Run(context.Background(), agent.New("A", "i"), "go", nil)
	require.NoError(t, err)
	assert.Equal(t, "all at once", result.Output)
}

func TestAssembler_VendorReportedError(t *testing.T) {
	provider := model.NewMockProvider()
	provider.QueueTurn(model.Done(model.Response{
		FinishReason: model.FinishError,
		ErrorMessage: "overloaded",
	}))

	r := New(provider)
	_, err := r.Run(context.Background(), agent.New("A", "i"), "go", nil)

	var provErr *core.ProviderError
	require.ErrorAs(t, err, &provErr)
	assert.Contains(t, provErr.Error(), "overloaded")
}
