// Package tool implements the function / tool calling subsystem that lets
// agents invoke structured capabilities (APIs, computations, side effects)
// with schema-described arguments and consistent error handling.
//
// Tools receive the raw JSON argument string exactly as assembled from the
// model stream, plus a read-only core.RunContext. FunctionTool adapts a plain
// Go function into the Tool contract, optionally deriving the input schema
// from a struct type and validating arguments before execution.
package tool
