// Package core provides the foundational domain types used by agentloop. It
// defines:
//
//   - Messages (conversation transcript entries with roles and tool linkage)
//   - Tool calls and tool results (model-requested invocations + outcomes)
//   - The AgentEvent vocabulary emitted during a run
//   - Guardrail results (pass / modify / block)
//   - The run error taxonomy
//   - RunContext, the read-only value bag handed to tools and guardrails
//
// The package intentionally keeps implementation concerns (orchestration,
// model adapters, concrete tools) out of scope. All types here are plain data
// with construction and accessor behavior only.
package core
