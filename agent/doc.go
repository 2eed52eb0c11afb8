// Package agent defines the declarative agent description consumed by the
// runner: instructions, an optional model override, tools, handoff targets
// and guardrails.
//
// An Agent is an immutable value constructed before a run and never mutated
// during one; a handoff switches the active agent reference, it does not
// mutate the original. Handoffs are surfaced to the model as ordinary tool
// definitions and perform a control-flow switch when selected.
package agent
