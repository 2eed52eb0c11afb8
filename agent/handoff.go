package agent

import (
	"fmt"
	"strings"

	"github.com/agentloop-ai/agentloop/model"
)

// Handoff describes a control-flow transfer target. It is surfaced to the
// model as an ordinary tool definition; when the model selects it, no user
// code runs and the runner switches the active agent instead. The target is
// captured by reference at construction time.
type Handoff struct {
	name        string
	description string
	target      *Agent
}

// HandoffOptions configures a Handoff descriptor.
type HandoffOptions struct {
	// Name overrides the generated tool-facing name.
	Name string
	// Description overrides the generated tool description.
	Description string
}

// NewHandoff creates a handoff to target. By default the tool-facing name is
// "handoff_to_<target>" and the description incorporates the target's own
// description.
func NewHandoff(target *Agent, optFns ...func(o *HandoffOptions)) Handoff {
	opts := HandoffOptions{}
	for _, fn := range optFns {
		fn(&opts)
	}

	name := opts.Name
	if name == "" {
		name = "handoff_to_" + toolNameFragment(target.Name())
	}
	description := opts.Description
	if description == "" {
		description = fmt.Sprintf("Hand off the conversation to agent %q.", target.Name())
		if target.Description() != "" {
			description += " " + target.Description()
		}
	}

	return Handoff{name: name, description: description, target: target}
}

// WithHandoffName overrides the tool-facing handoff name.
func WithHandoffName(name string) func(o *HandoffOptions) {
	return func(o *HandoffOptions) { o.Name = name }
}

// WithHandoffDescription overrides the generated description.
func WithHandoffDescription(desc string) func(o *HandoffOptions) {
	return func(o *HandoffOptions) { o.Description = desc }
}

// Name returns the tool-facing handoff identifier.
func (h Handoff) Name() string { return h.name }

// Description returns the human-readable description shown to the model.
func (h Handoff) Description() string { return h.description }

// Target returns the agent receiving control.
func (h Handoff) Target() *Agent { return h.target }

// ToolDefinition exposes the handoff as a callable tool.
func (h Handoff) ToolDefinition() model.ToolDefinition {
	return model.ToolDefinition{
		Name:        h.name,
		Description: h.description,
		InputSchema: map[string]any{
			"type": "object",
			"properties": map[string]any{
				"reason": map[string]any{
					"type":        "string",
					"description": "Why control is being transferred",
				},
			},
		},
	}
}

// toolNameFragment lowercases a name and replaces characters outside
// [a-z0-9_] so generated handoff names stay tool-name-shaped.
func toolNameFragment(s string) string {
	s = strings.ToLower(s)
	var sb strings.Builder
	for _, r := range s {
		switch {
		case r >= 'a' && r <= 'z', r >= '0' && r <= '9', r == '_':
			sb.WriteRune(r)
		default:
			sb.WriteRune('_')
		}
	}
	return sb.String()
}
