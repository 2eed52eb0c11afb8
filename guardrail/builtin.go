package guardrail

import (
	"context"
	"fmt"
	"regexp"

	"github.com/agentloop-ai/agentloop/core"
)

// MaxLength bounds the character length of the validated text. With Truncate
// enabled it rewrites overlong text to the first Limit characters; otherwise
// it blocks.
type MaxLength struct {
	limit    int
	truncate bool
}

// NewMaxLength creates a MaxLength guardrail. Limit is measured in Unicode
// characters, not bytes.
func NewMaxLength(limit int, truncate bool) *MaxLength {
	return &MaxLength{limit: limit, truncate: truncate}
}

// Name implements Guardrail.
func (g *MaxLength) Name() string { return "max_length" }

// Validate implements Guardrail.
func (g *MaxLength) Validate(_ context.Context, text string, _ *core.RunContext) (core.GuardrailResult, error) {
	runes := []rune(text)
	if len(runes) <= g.limit {
		return core.Passed(), nil
	}
	if g.truncate {
		return core.Modified(
			string(runes[:g.limit]),
			fmt.Sprintf("content truncated to %d characters", g.limit),
		), nil
	}
	return core.Blocked(fmt.Sprintf("content exceeds maximum length of %d characters", g.limit)), nil
}

// BlockPattern blocks text matching any of a set of regular expressions.
// Patterns are matched case-insensitively; a plain word acts as a substring
// match.
type BlockPattern struct {
	patterns []*regexp.Regexp
	raw      []string
}

// NewBlockPattern compiles the given patterns. An invalid pattern yields a
// *core.InvalidConfigurationError.
func NewBlockPattern(patterns ...string) (*BlockPattern, error) {
	g := &BlockPattern{raw: patterns}
	for _, p := range patterns {
		re, err := regexp.Compile("(?i)" + p)
		if err != nil {
			return nil, &core.InvalidConfigurationError{
				Message: fmt.Sprintf("block pattern %q: %v", p, err),
			}
		}
		g.patterns = append(g.patterns, re)
	}
	return g, nil
}

// Name implements Guardrail.
func (g *BlockPattern) Name() string { return "block_pattern" }

// Validate implements Guardrail.
func (g *BlockPattern) Validate(_ context.Context, text string, _ *core.RunContext) (core.GuardrailResult, error) {
	for i, re := range g.patterns {
		if re.MatchString(text) {
			return core.Blocked(fmt.Sprintf("content matches blocked pattern %q", g.raw[i])), nil
		}
	}
	return core.Passed(), nil
}
