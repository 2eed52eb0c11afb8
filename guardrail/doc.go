// Package guardrail implements input/output validation for agent runs.
//
// A Guardrail inspects a piece of text and returns a three-way verdict:
// passed, modified (with replacement content) or blocked (with a reason).
// Guardrails are applied as an ordered chain: each sees the output of the
// previous one, and a block stops evaluation immediately.
//
// Guardrails may themselves be asynchronous (for example, calling a
// moderation service); Validate receives a context.Context and is a
// cancellation point for the run.
package guardrail
