package testutil

import "github.com/agentloop-ai/agentloop/core"

// CollectEvents drains an event stream into a slice.
func CollectEvents(events <-chan core.Event) []core.Event {
	var out []core.Event
	for ev := range events {
		out = append(out, ev)
	}
	return out
}

// EventsOfType filters collected events by type, preserving order.
func EventsOfType(events []core.Event, t core.EventType) []core.Event {
	var out []core.Event
	for _, ev := range events {
		if ev.Type == t {
			out = append(out, ev)
		}
	}
	return out
}

// JoinTextDeltas concatenates the payloads of all text delta events.
func JoinTextDeltas(events []core.Event) string {
	var s string
	for _, ev := range events {
		if ev.Type == core.EventTextDelta {
			s += ev.Delta
		}
	}
	return s
}
