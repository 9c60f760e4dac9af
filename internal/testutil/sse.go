// Package testutil provides shared helpers for handler tests.
package testutil

import (
	"strings"
	"testing"
)

// SSEEvent represents a parsed Server-Sent Event.
type SSEEvent struct {
	Type string // event: value
	Data string // data: value (multi-line joined with \n)
}

// ParseSSEEvents parses an SSE stream into structured events.
//
// Events are the blank-line separated blocks of the stream. Within a block,
// multiple "data:" lines are joined with newline, a missing "event:" line
// defaults the type to "message" per the W3C spec, and ":" comment lines are
// skipped. A stream whose last block is not terminated by a blank line fails
// the test.
func ParseSSEEvents(t *testing.T, body string) []SSEEvent {
	t.Helper()

	trimmed, terminated := strings.CutSuffix(body, "\n\n")
	if body != "" && !terminated {
		t.Fatalf("SSE stream ended without a terminating blank line: %q", tail(body))
	}

	var events []SSEEvent
	for _, block := range strings.Split(trimmed, "\n\n") {
		if ev, ok := parseSSEBlock(t, block); ok {
			events = append(events, ev)
		}
	}
	return events
}

// parseSSEBlock parses one blank-line delimited block. ok is false when the
// block holds only comments.
func parseSSEBlock(t *testing.T, block string) (SSEEvent, bool) {
	t.Helper()

	var ev SSEEvent
	var data []string
	for _, line := range strings.Split(block, "\n") {
		switch {
		case strings.HasPrefix(line, "event: "):
			if ev.Type != "" {
				t.Fatalf("SSE block has two event lines: %q", block)
			}
			ev.Type = strings.TrimPrefix(line, "event: ")
		case strings.HasPrefix(line, "data: "):
			data = append(data, strings.TrimPrefix(line, "data: "))
		case line == "" || strings.HasPrefix(line, ":"):
			// comment or stray blank, skip
		default:
			t.Fatalf("unexpected SSE line: %q", line)
		}
	}

	if ev.Type == "" && data == nil {
		return SSEEvent{}, false
	}
	if ev.Type == "" {
		ev.Type = "message"
	}
	ev.Data = strings.Join(data, "\n")
	return ev, true
}

// tail shortens a stream for failure messages.
func tail(s string) string {
	const n = 80
	if len(s) <= n {
		return s
	}
	return "..." + s[len(s)-n:]
}

// FindEvent finds the first event of the given type.
// Returns nil if not found.
func FindEvent(events []SSEEvent, eventType string) *SSEEvent {
	for i := range events {
		if events[i].Type == eventType {
			return &events[i]
		}
	}
	return nil
}

// FindAllEvents finds all events of the given type.
func FindAllEvents(events []SSEEvent, eventType string) []SSEEvent {
	var found []SSEEvent
	for _, e := range events {
		if e.Type == eventType {
			found = append(found, e)
		}
	}
	return found
}
