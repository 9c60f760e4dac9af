package testutil

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseSSEEvents(t *testing.T) {
	body := "event: chunk\ndata: {\"text\":\"hi\"}\n\n" +
		": keep-alive\n\n" +
		"data: first\ndata: second\n\n" +
		"event: done\ndata: {}\n\n"

	events := ParseSSEEvents(t, body)
	require.Len(t, events, 3)

	assert.Equal(t, "chunk", events[0].Type)
	assert.Equal(t, `{"text":"hi"}`, events[0].Data)

	// data without an event line defaults to "message", multi-line data joins
	assert.Equal(t, "message", events[1].Type)
	assert.Equal(t, "first\nsecond", events[1].Data)

	assert.Equal(t, "done", events[2].Type)
}

func TestParseSSEEventsEmpty(t *testing.T) {
	assert.Empty(t, ParseSSEEvents(t, ""))
}

func TestFindEvent(t *testing.T) {
	events := []SSEEvent{
		{Type: "chunk", Data: "a"},
		{Type: "chunk", Data: "b"},
		{Type: "done", Data: "{}"},
	}

	first := FindEvent(events, "chunk")
	require.NotNil(t, first)
	assert.Equal(t, "a", first.Data)

	assert.Nil(t, FindEvent(events, "error"))
	assert.Len(t, FindAllEvents(events, "chunk"), 2)
}
