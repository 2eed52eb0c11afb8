package agent

import (
	"github.com/agentloop-ai/agentloop/guardrail"
	"github.com/agentloop-ai/agentloop/model"
	"github.com/agentloop-ai/agentloop/tool"
)

// Options configures an Agent instance. Use functional options with New to
// override defaults.
type Options struct {
	// Description is a short summary surfaced in handoff tool descriptions.
	Description string
	// Model overrides the provider's default model id for this agent.
	Model string
	// Tools lists the callable capabilities, in declaration order.
	Tools []tool.Tool
	// Handoffs lists the agents this agent may transfer control to.
	Handoffs []Handoff
	// InputGuardrails validate raw input before the first model call.
	InputGuardrails []guardrail.Guardrail
	// OutputGuardrails validate the final answer before completion.
	OutputGuardrails []guardrail.Guardrail
}

// Agent is an immutable declarative agent description. The name is unique
// within a run and serves as the visited-history key for handoff cycle
// detection.
type Agent struct {
	name             string
	instructions     string
	description      string
	mdl              string
	tools            []tool.Tool
	handoffs         []Handoff
	inputGuardrails  []guardrail.Guardrail
	outputGuardrails []guardrail.Guardrail
}

// New constructs an Agent with the given name and system instructions.
func New(name, instructions string, optFns ...func(o *Options)) *Agent {
	opts := Options{}
	for _, fn := range optFns {
		fn(&opts)
	}

	a := &Agent{
		name:             name,
		instructions:     instructions,
		description:      opts.Description,
		mdl:              opts.Model,
		tools:            append([]tool.Tool(nil), opts.Tools...),
		handoffs:         append([]Handoff(nil), opts.Handoffs...),
		inputGuardrails:  append([]guardrail.Guardrail(nil), opts.InputGuardrails...),
		outputGuardrails: append([]guardrail.Guardrail(nil), opts.OutputGuardrails...),
	}
	return a
}

// WithDescription sets the agent description.
func WithDescription(desc string) func(o *Options) {
	return func(o *Options) { o.Description = desc }
}

// WithModel sets the per-agent model override.
func WithModel(id string) func(o *Options) {
	return func(o *Options) { o.Model = id }
}

// WithTools registers tools in declaration order.
func WithTools(tools ...tool.Tool) func(o *Options) {
	return func(o *Options) { o.Tools = append(o.Tools, tools...) }
}

// WithHandoffs registers handoff targets in declaration order.
func WithHandoffs(handoffs ...Handoff) func(o *Options) {
	return func(o *Options) { o.Handoffs = append(o.Handoffs, handoffs...) }
}

// WithInputGuardrails registers input guardrails in declaration order.
func WithInputGuardrails(guardrails ...guardrail.Guardrail) func(o *Options) {
	return func(o *Options) { o.InputGuardrails = append(o.InputGuardrails, guardrails...) }
}

// WithOutputGuardrails registers output guardrails in declaration order.
func WithOutputGuardrails(guardrails ...guardrail.Guardrail) func(o *Options) {
	return func(o *Options) { o.OutputGuardrails = append(o.OutputGuardrails, guardrails...) }
}

// Name returns the unique agent name.
func (a *Agent) Name() string { return a.name }

// Instructions returns the system prompt text.
func (a *Agent) Instructions() string { return a.instructions }

// Description returns the short agent summary.
func (a *Agent) Description() string { return a.description }

// Model returns the per-agent model override, empty when the provider
// default applies.
func (a *Agent) Model() string { return a.mdl }

// Tools returns the agent's tools in declaration order.
func (a *Agent) Tools() []tool.Tool {
	return append([]tool.Tool(nil), a.tools...)
}

// Handoffs returns the agent's handoff descriptors in declaration order.
func (a *Agent) Handoffs() []Handoff {
	return append([]Handoff(nil), a.handoffs...)
}

// InputGuardrails returns the input guardrail chain.
func (a *Agent) InputGuardrails() []guardrail.Guardrail {
	return append([]guardrail.Guardrail(nil), a.inputGuardrails...)
}

// OutputGuardrails returns the output guardrail chain.
func (a *Agent) OutputGuardrails() []guardrail.Guardrail {
	return append([]guardrail.Guardrail(nil), a.outputGuardrails...)
}

// ToolByName resolves a registered tool by name.
func (a *Agent) ToolByName(name string) (tool.Tool, bool) {
	for _, t := range a.tools {
		if t.Name() == name {
			return t, true
		}
	}
	return nil, false
}

// HandoffByName resolves a handoff descriptor by its tool-facing name.
// Handoffs take priority over same-named tools at dispatch time.
func (a *Agent) HandoffByName(name string) (*Handoff, bool) {
	for i := range a.handoffs {
		if a.handoffs[i].Name() == name {
			return &a.handoffs[i], true
		}
	}
	return nil, false
}

// ToolDefinitions returns the model-facing definitions for this agent's tools
// followed by its handoffs.
func (a *Agent) ToolDefinitions() []model.ToolDefinition {
	defs := make([]model.ToolDefinition, 0, len(a.tools)+len(a.handoffs))
	for _, t := range a.tools {
		defs = append(defs, model.ToolDefinition{
			Name:        t.Name(),
			Description: t.Description(),
			InputSchema: t.InputSchema(),
		})
	}
	for _, h := range a.handoffs {
		defs = append(defs, h.ToolDefinition())
	}
	return defs
}
