package guardrail

import (
	"context"

	"github.com/agentloop-ai/agentloop/core"
)

// Guardrail validates text flowing across a run boundary (input or output).
//
// Implementations should:
//   - Return core.Blocked to reject the text outright
//   - Return core.Modified to rewrite it and let the chain continue
//   - Return a non-nil error only for infrastructure failures; such an error
//     is run-fatal and distinct from a guardrail-issued block
type Guardrail interface {
	// Name returns the guardrail identifier used in events and errors.
	Name() string

	// Validate inspects text and returns a verdict. The RunContext gives
	// read-only access to run id and caller-supplied values.
	Validate(ctx context.Context, text string, rc *core.RunContext) (core.GuardrailResult, error)
}

// Evaluation pairs a guardrail name with the result it returned. One
// Evaluation is recorded per guardrail actually run, the blocking one
// included.
type Evaluation struct {
	Guardrail string
	Result    core.GuardrailResult
}

// ChainOutcome is the aggregate verdict of an ordered guardrail chain.
type ChainOutcome struct {
	// Text is the (possibly modified) text after the last guardrail that ran.
	Text string
	// Evaluations lists every guardrail evaluated, in order.
	Evaluations []Evaluation
	// Blocked points at the blocking evaluation, nil on full pass.
	Blocked *Evaluation
}

// ApplyChain evaluates guardrails in declaration order. Each guardrail sees
// the output of the previous one. A blocked result stops evaluation; the
// remaining guardrails do not run. The returned error reports a guardrail
// implementation failure (run-fatal), not a block.
func ApplyChain(ctx context.Context, text string, guardrails []Guardrail, rc *core.RunContext) (ChainOutcome, error) {
	outcome := ChainOutcome{Text: text}

	for _, g := range guardrails {
		if err := ctx.Err(); err != nil {
			return outcome, err
		}

		result, err := g.Validate(ctx, outcome.Text, rc)
		if err != nil {
			return outcome, err
		}

		eval := Evaluation{Guardrail: g.Name(), Result: result}
		outcome.Evaluations = append(outcome.Evaluations, eval)

		switch result.Outcome {
		case core.GuardrailModify:
			outcome.Text = result.Content
		case core.GuardrailBlock:
			blocked := eval
			outcome.Blocked = &blocked
			return outcome, nil
		}
	}

	return outcome, nil
}
