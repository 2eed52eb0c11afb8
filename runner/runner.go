package runner

import (
	"context"
	"fmt"
	"sync"

	"github.com/oklog/ulid/v2"

	"github.com/agentloop-ai/agentloop/agent"
	"github.com/agentloop-ai/agentloop/core"
	"github.com/agentloop-ai/agentloop/logging"
	"github.com/agentloop-ai/agentloop/model"
)

// DefaultMaxTurns bounds a run when no override is configured.
const DefaultMaxTurns = 10

// Options holds dependency and configuration overrides passed to New.
type Options struct {
	// MaxTurns limits model round-trips per run.
	MaxTurns int
	// EventBufferSize sets channel buffering for emitted events.
	EventBufferSize int
	// Logger receives structured diagnostics; defaults to NoOpLogger.
	Logger logging.Logger
}

// Runner drives agent runs against a model provider. It holds no per-run
// mutable state outside the goroutine executing each run, so a single Runner
// may serve many concurrent runs. Public methods are safe for concurrent use.
type Runner struct {
	provider model.Provider

	maxTurns        int
	eventBufferSize int
	logger          logging.Logger

	activeRuns map[string]context.CancelFunc
	mu         sync.RWMutex
}

// New constructs a Runner with optional overrides.
func New(provider model.Provider, optFns ...func(o *Options)) *Runner {
	opts := Options{
		MaxTurns:        DefaultMaxTurns,
		EventBufferSize: 64,
		Logger:          logging.NoOpLogger{},
	}
	for _, fn := range optFns {
		fn(&opts)
	}
	if opts.Logger == nil {
		opts.Logger = logging.NoOpLogger{}
	}

	return &Runner{
		provider:        provider,
		maxTurns:        opts.MaxTurns,
		eventBufferSize: opts.EventBufferSize,
		logger:          opts.Logger,
		activeRuns:      make(map[string]context.CancelFunc),
	}
}

// WithMaxTurns overrides the per-run turn bound.
func WithMaxTurns(n int) func(o *Options) {
	return func(o *Options) { o.MaxTurns = n }
}

// WithEventBufferSize overrides event channel buffering.
func WithEventBufferSize(n int) func(o *Options) {
	return func(o *Options) { o.EventBufferSize = n }
}

// WithLogger sets the runner's logger.
func WithLogger(l logging.Logger) func(o *Options) {
	return func(o *Options) { o.Logger = l }
}

// Stream starts an asynchronous run and returns its id plus a live event
// stream. The channel delivers events in state-machine order and is closed
// after the terminal completed or error event; callers must drain it. The
// immediate error return covers startup validation only.
func (r *Runner) Stream(
	ctx context.Context,
	ag *agent.Agent,
	input string,
	values map[string]any,
) (string, <-chan core.Event, error) {
	if r.provider == nil {
		return "", nil, &core.InvalidConfigurationError{Message: "runner has no model provider"}
	}
	if ag == nil || ag.Name() == "" {
		return "", nil, &core.InvalidConfigurationError{Message: "agent must have a name"}
	}
	if r.maxTurns <= 0 {
		return "", nil, &core.InvalidConfigurationError{Message: fmt.Sprintf("max turns must be positive, got %d", r.maxTurns)}
	}

	runID := ulid.Make().String()
	events := make(chan core.Event, r.eventBufferSize)

	runCtx, cancel := context.WithCancel(ctx)
	r.mu.Lock()
	r.activeRuns[runID] = cancel
	r.mu.Unlock()

	rn := &run{
		runID:    runID,
		provider: r.provider,
		logger:   r.logger,
		maxTurns: r.maxTurns,
		events:   events,
		rc:       core.NewRunContext(runID, r.logger, values),
		active:   ag,
	}

	go func() {
		defer func() {
			close(events)
			cancel()
			r.mu.Lock()
			delete(r.activeRuns, runID)
			r.mu.Unlock()
		}()

		rn.execute(runCtx, input)
	}()

	return runID, events, nil
}

// Run executes an agent synchronously. It is defined purely in terms of
// Stream: it drains the event stream and returns the completed event's
// payload, or the error event's cause.
func (r *Runner) Run(
	ctx context.Context,
	ag *agent.Agent,
	input string,
	values map[string]any,
) (*core.RunResult, error) {
	_, events, err := r.Stream(ctx, ag, input, values)
	if err != nil {
		return nil, err
	}

	var result *core.RunResult
	var runErr error
	for ev := range events {
		switch ev.Type {
		case core.EventCompleted:
			result = ev.Result
		case core.EventError:
			runErr = ev.Err
		}
	}

	if runErr != nil {
		return nil, runErr
	}
	if result == nil {
		return nil, &core.InvalidResponseError{Message: "run ended without a terminal event"}
	}
	return result, nil
}

// Cancel requests cooperative termination of an in-flight run. Cancelling an
// unknown or already finished run returns an error describing the condition.
func (r *Runner) Cancel(runID string) error {
	r.mu.Lock()
	cancel, exists := r.activeRuns[runID]
	r.mu.Unlock()

	if !exists {
		return fmt.Errorf("run %s not found", runID)
	}
	cancel()
	return nil
}

// CancelAll cancels every in-flight run, e.g. on process shutdown.
func (r *Runner) CancelAll() {
	r.mu.Lock()
	cancels := make([]context.CancelFunc, 0, len(r.activeRuns))
	for _, cancel := range r.activeRuns {
		cancels = append(cancels, cancel)
	}
	r.mu.Unlock()

	for _, cancel := range cancels {
		cancel()
	}
}

// ActiveRuns returns the ids of runs currently in flight.
func (r *Runner) ActiveRuns() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	ids := make([]string, 0, len(r.activeRuns))
	for id := range r.activeRuns {
		ids = append(ids, id)
	}
	return ids
}
