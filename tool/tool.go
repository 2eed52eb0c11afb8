package tool

import (
	"context"
	"fmt"

	"github.com/agentloop-ai/agentloop/core"
)

// Tool defines the contract for extending agent capabilities with external
// functions.
//
// Tool implementations should:
//   - Provide clear, descriptive names and descriptions (snake_case names)
//   - Describe their input with a JSON Schema object
//   - Be thread-safe if shared across concurrent runs
type Tool interface {
	// Name returns the unique identifier for this tool.
	Name() string

	// Description returns a human-readable description provided to the model
	// to help it decide when and how to use the tool.
	Description() string

	// InputSchema returns a JSON-Schema-shaped object description of the
	// expected arguments (type/properties/required/items/enum/default).
	InputSchema() map[string]any

	// Execute runs the tool with the raw JSON argument string. A returned
	// error is recovered by the runner into an error-flagged ToolResult; it
	// never aborts the run.
	Execute(ctx context.Context, arguments string, rc *core.RunContext) (string, error)
}

// Error codes attached to ToolError for uniform downstream handling.
const (
	// CodeValidation marks a schema / argument mismatch.
	CodeValidation = "VALIDATION_ERROR"
	// CodeExecution marks a failure inside the wrapped implementation.
	CodeExecution = "EXECUTION_ERROR"
)

// ToolError represents errors that occur during tool execution.
type ToolError struct {
	Tool    string `json:"tool"`              // Name of the tool that failed
	Message string `json:"message"`           // Error message
	Code    string `json:"code"`              // Error code for categorization
	Details any    `json:"details,omitempty"` // Additional error details
}

func (e *ToolError) Error() string {
	if e.Code != "" {
		return fmt.Sprintf("tool error [%s] in %s: %s", e.Code, e.Tool, e.Message)
	}
	return fmt.Sprintf("tool error in %s: %s", e.Tool, e.Message)
}

// NewToolError creates a new ToolError with the specified details.
func NewToolError(tool, message, code string) *ToolError {
	return &ToolError{Tool: tool, Message: message, Code: code}
}
