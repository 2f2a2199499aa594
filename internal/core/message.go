package core

import (
	"time"

	"github.com/google/uuid"
)

// AgentID identifies an agent on the message bus.
type AgentID string

// Well-known agent identifiers.
const (
	AgentOrchestrator    AgentID = "orchestrator"
	AgentDataAcquisition AgentID = "data_acquisition"
	AgentContent         AgentID = "content_generation"
	AgentVideo           AgentID = "video_production"
	AgentPublishing      AgentID = "publishing"
	AgentMonitoring      AgentID = "monitoring"

	// BroadcastReceiver addresses a message to every subscriber of its type.
	BroadcastReceiver AgentID = "*"
)

// MessageType classifies bus messages.
type MessageType string

const (
	MessageTaskRequest   MessageType = "task_request"
	MessageTaskResponse  MessageType = "task_response"
	MessageStatusUpdate  MessageType = "status_update"
	MessageErrorReport   MessageType = "error_report"
	MessageCompletion    MessageType = "completion"
	MessageHeartbeat     MessageType = "heartbeat"
	MessageCancelRequest MessageType = "cancel_request"
)

// Message is the unit of communication between agents. Messages are
// immutable once sent; CorrelationID links a request to its eventual
// completion or error report.
type Message struct {
	Sender        AgentID        `json:"sender"`
	Receiver      AgentID        `json:"receiver"`
	Type          MessageType    `json:"type"`
	Payload       map[string]any `json:"payload,omitempty"`
	CorrelationID string         `json:"correlation_id"`
	Timestamp     time.Time      `json:"timestamp"`
	Priority      int            `json:"priority"`
}

// NewMessage creates a message with a fresh correlation ID and
// default priority.
func NewMessage(sender, receiver AgentID, mt MessageType, payload map[string]any) Message {
	return Message{
		Sender:        sender,
		Receiver:      receiver,
		Type:          mt,
		Payload:       payload,
		CorrelationID: uuid.NewString(),
		Timestamp:     time.Now(),
		Priority:      5,
	}
}

// WithCorrelation returns a copy carrying an existing correlation ID,
// used when responding to a request.
func (m Message) WithCorrelation(id string) Message {
	m.CorrelationID = id
	return m
}

// WithPriority returns a copy with the given priority, clamped to 1..10.
func (m Message) WithPriority(p int) Message {
	if p < 1 {
		p = 1
	}
	if p > 10 {
		p = 10
	}
	m.Priority = p
	return m
}

// IsBroadcast reports whether the message targets all subscribers.
func (m Message) IsBroadcast() bool {
	return m.Receiver == BroadcastReceiver
}
