// Package testutil provides shared helpers for constructing scripted model
// turns and inspecting event streams in tests. Not part of the public API.
package testutil
