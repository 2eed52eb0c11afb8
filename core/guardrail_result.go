package core

// GuardrailOutcome is the three-way verdict a guardrail can return.
type GuardrailOutcome string

const (
	// GuardrailPass leaves the text unchanged.
	GuardrailPass GuardrailOutcome = "passed"
	// GuardrailModify replaces the text with Result.Content.
	GuardrailModify GuardrailOutcome = "modified"
	// GuardrailBlock terminates chain evaluation and fails the run boundary.
	GuardrailBlock GuardrailOutcome = "blocked"
)

// GuardrailResult is the verdict of a single guardrail evaluation. Guardrails
// in a chain apply sequentially, each seeing the output of the previous;
// blocked is terminal for the chain.
type GuardrailResult struct {
	Outcome GuardrailOutcome `json:"outcome"`
	// Content carries the replacement text for a modified outcome.
	Content string `json:"content,omitempty"`
	// Reason is a human-readable explanation for modified and blocked outcomes.
	Reason string `json:"reason,omitempty"`
}

// Passed returns a pass-through result.
func Passed() GuardrailResult { return GuardrailResult{Outcome: GuardrailPass} }

// Modified returns a result replacing the text under validation.
func Modified(content, reason string) GuardrailResult {
	return GuardrailResult{Outcome: GuardrailModify, Content: content, Reason: reason}
}

// Blocked returns a terminal blocking result.
func Blocked(reason string) GuardrailResult {
	return GuardrailResult{Outcome: GuardrailBlock, Reason: reason}
}
