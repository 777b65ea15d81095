package types

import "time"

// EventType identifies one kind of agent event. The set is closed: the
// transport layer relays events verbatim and must never need to handle
// a kind not listed here.
type EventType string

const (
	EventText         EventType = "text"
	EventToolCall     EventType = "tool_call"
	EventToolResult   EventType = "tool_result"
	EventChart        EventType = "chart"
	EventData         EventType = "data"
	EventArtifact     EventType = "artifact"
	EventReasoning    EventType = "reasoning"
	EventError        EventType = "error"
	EventDone         EventType = "done"
	EventSessionStart EventType = "session_start"
	EventSessionEnd   EventType = "session_end"
)

// AgentEvent is the tagged-union event produced by live skill execution
// and workflow replay alike. Within one session, events are ordered by
// Seq; across sessions no ordering is guaranteed.
type AgentEvent struct {
	Type       EventType `json:"type"`
	SessionID  string    `json:"session_id"`
	TurnID     string    `json:"turn_id,omitempty"`
	ToolCallID string    `json:"tool_call_id,omitempty"`
	ToolName   string    `json:"tool_name,omitempty"`
	Seq        int64     `json:"seq"`
	Timestamp  time.Time `json:"timestamp"`
	Payload    any       `json:"payload,omitempty"`
}

// EventSink consumes agent events. The transport layer implements this
// at the process boundary; tests implement it with a slice collector.
type EventSink interface {
	Emit(event AgentEvent)
}

// EventSinkFunc adapts a function to an EventSink.
type EventSinkFunc func(event AgentEvent)

// Emit implements EventSink.
func (f EventSinkFunc) Emit(event AgentEvent) { f(event) }

// DiscardEvents is a sink that drops everything, for callers that only
// want the final result.
var DiscardEvents EventSink = EventSinkFunc(func(AgentEvent) {})
