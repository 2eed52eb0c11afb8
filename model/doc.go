// Package model defines the provider-agnostic abstractions for interacting
// with language models inside agentloop.
//
// Core goals:
//   - Unify streaming + non-streaming generation behind a single Provider
//     interface
//   - Normalize the streaming event vocabulary (text deltas, tool call
//     start/delta/stop, terminal done) so the runner never branches on
//     vendor wire formats
//   - Keep request/response shapes minimal and transport independent
//   - Facilitate lightweight mocking for tests (MockProvider)
//
// Providers (e.g. OpenAI, Anthropic) implement the Provider interface from
// this package in their own subpackages.
package model
