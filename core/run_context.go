package core

import (
	"sort"

	"github.com/agentloop-ai/agentloop/logging"
)

// RunContext is the read-only value bag handed to tools and guardrails during
// a run. It carries the run id, the runner's logger and caller-supplied
// values. The runner constructs one RunContext per run; callbacks must not
// assume it is safe to share across concurrent runs unless their own values
// are.
type RunContext struct {
	runID  string
	logger logging.Logger
	values map[string]any
}

// NewRunContext builds a RunContext for one run. The values map is copied so
// later caller mutations do not leak into the run. A nil logger is replaced
// with NoOpLogger.
func NewRunContext(runID string, logger logging.Logger, values map[string]any) *RunContext {
	if logger == nil {
		logger = logging.NoOpLogger{}
	}
	copied := make(map[string]any, len(values))
	for k, v := range values {
		copied[k] = v
	}
	return &RunContext{runID: runID, logger: logger, values: copied}
}

// RunID returns the opaque identifier of the run.
func (c *RunContext) RunID() string { return c.runID }

// Logger returns the run's logger, never nil.
func (c *RunContext) Logger() logging.Logger { return c.logger }

// Value looks up a caller-supplied value by key.
func (c *RunContext) Value(key string) (any, bool) {
	v, ok := c.values[key]
	return v, ok
}

// Keys returns the sorted keys of the caller-supplied values.
func (c *RunContext) Keys() []string {
	keys := make([]string, 0, len(c.values))
	for k := range c.values {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
