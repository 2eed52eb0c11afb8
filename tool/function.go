package tool

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/kaptinlin/jsonschema"

	"github.com/agentloop-ai/agentloop/core"
)

// Func is the implementation signature wrapped by FunctionTool. Arguments
// arrive as the validated raw JSON payload.
type Func func(ctx context.Context, args json.RawMessage, rc *core.RunContext) (string, error)

// FunctionTool is a generic adapter that exposes a plain Go function as an
// agentloop tool.
//
// Responsibilities:
//   - Holds a JSON Schema describing the accepted arguments
//   - Validates model-supplied arguments against that schema before execution
//   - Normalizes error handling so callers receive *ToolError with consistent
//     codes (CodeValidation for argument mismatches, CodeExecution for
//     implementation failures; custom codes are preserved when the function
//     returns *ToolError directly)
//
// A FunctionTool has no internal mutable state after construction and is safe
// for concurrent use by multiple goroutines.
type FunctionTool struct {
	name        string
	description string
	schema      map[string]any
	compiled    *jsonschema.Schema
	compileErr  error
	fn          Func
}

// New constructs a FunctionTool from an explicit schema and function. A nil
// schema disables argument validation.
func New(name, description string, schema map[string]any, fn Func) *FunctionTool {
	t := &FunctionTool{
		name:        name,
		description: description,
		schema:      schema,
		fn:          fn,
	}
	if schema != nil {
		raw, err := json.Marshal(schema)
		if err == nil {
			t.compiled, err = jsonschema.NewCompiler().Compile(raw)
		}
		t.compileErr = err
	}
	return t
}

// NewFromStruct derives the parameter schema from the args struct type and
// decodes validated arguments into it before invoking fn.
//
// Example:
//
//	add := tool.NewFromStruct("add", "Add two numbers",
//		func(_ context.Context, args AddArgs, _ *core.RunContext) (string, error) {
//			return strconv.FormatFloat(args.A+args.B, 'f', -1, 64), nil
//		})
func NewFromStruct[T any](name, description string, fn func(ctx context.Context, args T, rc *core.RunContext) (string, error)) *FunctionTool {
	return New(name, description, ReflectSchema[T](), func(ctx context.Context, raw json.RawMessage, rc *core.RunContext) (string, error) {
		var args T
		if err := json.Unmarshal(raw, &args); err != nil {
			return "", &ToolError{
				Tool:    name,
				Message: fmt.Sprintf("cannot decode arguments: %v", err),
				Code:    CodeValidation,
			}
		}
		return fn(ctx, args, rc)
	})
}

// Name returns the unique tool name used in tool definitions and routing.
func (t *FunctionTool) Name() string { return t.name }

// Description returns the natural language description exposed to models.
func (t *FunctionTool) Description() string { return t.description }

// InputSchema returns the JSON Schema describing expected arguments.
func (t *FunctionTool) InputSchema() map[string]any { return t.schema }

// Execute validates the raw argument string against the declared schema, then
// invokes the underlying function. Validation or execution failures are
// wrapped (or passed through) as *ToolError.
func (t *FunctionTool) Execute(ctx context.Context, arguments string, rc *core.RunContext) (string, error) {
	logger := rc.Logger()
	start := time.Now()

	logger.Debug("tool.call.start", "tool", t.name, "run_id", rc.RunID())

	raw := strings.TrimSpace(arguments)
	if raw == "" {
		raw = "{}"
	}

	if err := t.validate(raw); err != nil {
		logger.Warn("tool.call.validation_failed", "tool", t.name, "error", err.Error())
		return "", err
	}

	result, err := t.fn(ctx, json.RawMessage(raw), rc)
	if err != nil {
		if toolErr, ok := err.(*ToolError); ok {
			logger.Error("tool.call.error", "tool", t.name, "error", toolErr.Message)
			return "", toolErr
		}
		logger.Error("tool.call.error", "tool", t.name, "error", err.Error())
		return "", &ToolError{Tool: t.name, Message: err.Error(), Code: CodeExecution}
	}

	logger.Info("tool.call.success", "tool", t.name, "duration_ms", time.Since(start).Milliseconds())
	return result, nil
}

func (t *FunctionTool) validate(raw string) error {
	if t.compileErr != nil {
		return &ToolError{
			Tool:    t.name,
			Message: fmt.Sprintf("input schema does not compile: %v", t.compileErr),
			Code:    CodeValidation,
		}
	}
	if t.compiled == nil {
		return nil
	}

	var data any
	if err := json.Unmarshal([]byte(raw), &data); err != nil {
		return &ToolError{
			Tool:    t.name,
			Message: fmt.Sprintf("arguments are not valid JSON: %v", err),
			Code:    CodeValidation,
		}
	}

	result := t.compiled.Validate(data)
	if !result.IsValid() {
		return &ToolError{
			Tool:    t.name,
			Message: fmt.Sprintf("parameter validation failed: %s", result.Error()),
			Code:    CodeValidation,
		}
	}
	return nil
}
