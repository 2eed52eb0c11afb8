package model

import (
	"context"
	"fmt"
	"sync"

	"github.com/agentloop-ai/agentloop/core"
)

// MockProvider is a scripted in-memory Provider for tests and examples. Each
// queued turn is a sequence of normalized stream events replayed verbatim;
// requests are recorded for assertions.
type MockProvider struct {
	mu           sync.Mutex
	defaultModel string
	turns        [][]StreamEvent
	requests     []Request
}

// NewMockProvider constructs an empty MockProvider.
func NewMockProvider() *MockProvider {
	return &MockProvider{defaultModel: "mock-model"}
}

// SetDefaultModel overrides the reported default model id.
func (m *MockProvider) SetDefaultModel(id string) { m.defaultModel = id }

// QueueTurn appends one scripted turn replayed on the next Stream call.
func (m *MockProvider) QueueTurn(events ...StreamEvent) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.turns = append(m.turns, events)
}

// QueueTextTurn is shorthand for a turn that streams text and finishes with
// stop.
func (m *MockProvider) QueueTextTurn(text string) {
	m.QueueTurn(
		TextDelta(text),
		Done(Response{Content: text, FinishReason: FinishStop}),
	)
}

// QueueToolCallTurn is shorthand for a turn that requests a single tool call.
func (m *MockProvider) QueueToolCallTurn(callID, name, arguments string) {
	m.QueueTurn(
		ToolCallStart(callID, name),
		ToolCallDelta(callID, arguments),
		ToolCallStop(callID),
		Done(Response{
			ToolCalls:    []core.ToolCall{{ID: callID, Name: name, Arguments: arguments}},
			FinishReason: FinishToolUse,
		}),
	)
}

// Requests returns a copy of the requests received so far.
func (m *MockProvider) Requests() []Request {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]Request, len(m.requests))
	copy(out, m.requests)
	return out
}

// CallCount returns the number of generation calls received.
func (m *MockProvider) CallCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.requests)
}

// DefaultModel implements Provider.
func (m *MockProvider) DefaultModel() string { return m.defaultModel }

func (m *MockProvider) nextTurn(req Request) ([]StreamEvent, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.requests = append(m.requests, req)
	if len(m.turns) == 0 {
		return nil, fmt.Errorf("mock provider: no scripted turn for request %d", len(m.requests))
	}
	turn := m.turns[0]
	m.turns = m.turns[1:]
	return turn, nil
}

// Complete implements Provider by draining the scripted turn's events.
func (m *MockProvider) Complete(ctx context.Context, req Request) (*Response, error) {
	events, err := m.nextTurn(req)
	if err != nil {
		return nil, &core.ProviderError{Message: err.Error()}
	}
	for _, ev := range events {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		if ev.Type == StreamDone && ev.Response != nil {
			resp := *ev.Response
			return &resp, nil
		}
	}
	return nil, &core.InvalidResponseError{Message: "scripted turn has no done event"}
}

// Stream implements Provider by replaying the scripted turn's events.
func (m *MockProvider) Stream(ctx context.Context, req Request) (<-chan StreamEvent, <-chan error) {
	out := make(chan StreamEvent, 16)
	errCh := make(chan error, 1)

	events, err := m.nextTurn(req)

	go func() {
		defer close(out)
		defer close(errCh)
		if err != nil {
			errCh <- &core.ProviderError{Message: err.Error()}
			return
		}
		for _, ev := range events {
			select {
			case <-ctx.Done():
				errCh <- ctx.Err()
				return
			case out <- ev:
			}
		}
	}()

	return out, errCh
}
