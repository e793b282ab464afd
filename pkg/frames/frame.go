package frames

import (
	"encoding/json"
	"strings"
	"time"
)

type Kind string

const (
	KindToolOutput     Kind = "tool_output"
	KindAgentStart     Kind = "agent_start"
	KindAgentEnd       Kind = "agent_end"
	KindConnected      Kind = "connected"
	KindDisconnected   Kind = "disconnected"
	KindTransportError Kind = "transport_error"
)

const StatusSuccess = "success"

// Frame is one event observed on the agent execution side-channel.
// Only tool_output frames carry a payload; the rest are lifecycle signals.
type Frame struct {
	Kind          Kind
	Status        string
	ToolName      string
	AgentName     string
	ToolOutput    string
	ExecutionTime float64
	Timestamp     time.Time
	Meta          map[string]string
}

const (
	MetaSessionID = "session_id"
	MetaTraceID   = "trace_id"
	MetaSource    = "source"
	MetaReason    = "reason"
)

// wireEvent matches the inbound streaming frame shape.
type wireEvent struct {
	EventType     string  `json:"event_type"`
	Status        string  `json:"status"`
	ToolName      string  `json:"tool_name,omitempty"`
	AgentName     string  `json:"agent_name,omitempty"`
	ToolOutput    string  `json:"tool_output,omitempty"`
	ExecutionTime float64 `json:"execution_time,omitempty"`
	Timestamp     string  `json:"timestamp"`
}

// ParseWire decodes a raw streaming message into a Frame.
// Unrecognized event types are rejected so the read loop can drop them.
func ParseWire(sessionID string, raw []byte) (Frame, bool) {
	var evt wireEvent
	if err := json.Unmarshal(raw, &evt); err != nil {
		return Frame{}, false
	}
	var kind Kind
	switch strings.TrimSpace(evt.EventType) {
	case "tool_output":
		kind = KindToolOutput
	case "agent_start":
		kind = KindAgentStart
	case "agent_end":
		kind = KindAgentEnd
	default:
		return Frame{}, false
	}
	ts, err := time.Parse(time.RFC3339, evt.Timestamp)
	if err != nil {
		ts = time.Now()
	}
	return Frame{
		Kind:          kind,
		Status:        evt.Status,
		ToolName:      evt.ToolName,
		AgentName:     evt.AgentName,
		ToolOutput:    evt.ToolOutput,
		ExecutionTime: evt.ExecutionTime,
		Timestamp:     ts,
		Meta:          map[string]string{MetaSessionID: sessionID},
	}, true
}

// NewLifecycleFrame builds a transport lifecycle frame (connected,
// disconnected, transport_error).
func NewLifecycleFrame(sessionID string, kind Kind, reason string) Frame {
	meta := map[string]string{MetaSessionID: sessionID, MetaSource: "transport"}
	if reason != "" {
		meta[MetaReason] = reason
	}
	return Frame{
		Kind:      kind,
		Timestamp: time.Now(),
		Meta:      meta,
	}
}

// SessionID returns the owning session identifier, if any.
func (f Frame) SessionID() string {
	if f.Meta == nil {
		return ""
	}
	return f.Meta[MetaSessionID]
}
