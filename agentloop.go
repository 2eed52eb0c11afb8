// Package agentloop provides a high-level façade over the runner enabling
// rapid construction of tool-using, handoff-capable agents. Most applications
// interact with this package by:
//  1. Creating a Loop via New() with a model provider
//  2. Declaring agents (instructions, tools, handoffs, guardrails)
//  3. Executing them synchronously (Run) or as a live event stream (Stream)
//
// The façade delegates execution to runner.Runner while keeping setup and
// usage ergonomics concise. Defaults are safe for local development; supply a
// structured logger and tuned limits for production use.
package agentloop

import (
	"context"

	"github.com/agentloop-ai/agentloop/agent"
	"github.com/agentloop-ai/agentloop/core"
	"github.com/agentloop-ai/agentloop/logging"
	"github.com/agentloop-ai/agentloop/model"
	"github.com/agentloop-ai/agentloop/runner"
)

// Options configures the Loop instance.
type Options struct {
	// MaxTurns limits model round-trips per run. Defaults to
	// runner.DefaultMaxTurns.
	MaxTurns int

	// EventBufferSize sets the channel buffer size for event streaming.
	// Larger buffers reduce blocking but increase memory usage.
	EventBufferSize int

	// Logger (defaults to NoOp logger if nil).
	Logger logging.Logger
}

// Loop is the high-level façade aggregating the runner and its configuration.
type Loop struct {
	runner *runner.Runner
}

// New creates a Loop backed by the given model provider with optional
// overrides.
func New(provider model.Provider, optFns ...func(o *Options)) *Loop {
	opts := Options{
		MaxTurns:        runner.DefaultMaxTurns,
		EventBufferSize: 64,
		Logger:          logging.NoOpLogger{},
	}
	for _, fn := range optFns {
		fn(&opts)
	}

	r := runner.New(provider,
		runner.WithMaxTurns(opts.MaxTurns),
		runner.WithEventBufferSize(opts.EventBufferSize),
		runner.WithLogger(opts.Logger),
	)
	return &Loop{runner: r}
}

// Run executes an agent synchronously and returns its final result.
func (l *Loop) Run(ctx context.Context, ag *agent.Agent, input string) (*core.RunResult, error) {
	return l.runner.Run(ctx, ag, input, nil)
}

// RunWithValues executes an agent synchronously with caller-scoped values
// made available to tools and guardrails via the run context.
func (l *Loop) RunWithValues(
	ctx context.Context,
	ag *agent.Agent,
	input string,
	values map[string]any,
) (*core.RunResult, error) {
	return l.runner.Run(ctx, ag, input, values)
}

// Stream starts an asynchronous run returning its id and live event stream.
func (l *Loop) Stream(
	ctx context.Context,
	ag *agent.Agent,
	input string,
) (string, <-chan core.Event, error) {
	return l.runner.Stream(ctx, ag, input, nil)
}

// Cancel requests cooperative termination of an in-flight run.
func (l *Loop) Cancel(runID string) error { return l.runner.Cancel(runID) }

// CancelAll cancels every in-flight run.
func (l *Loop) CancelAll() { l.runner.CancelAll() }
