package notifications

import (
	"time"
)

// Workflow event types published to live subscribers.
const (
	EventVerificationStarted   = "verification.started"
	EventVerificationPublished = "verification.published"
	EventVerificationAccepted  = "verification.accepted"
	EventVerificationRejected  = "verification.rejected"
	EventVerificationCancelled = "verification.cancelled"
	EventQueueFlushed          = "queue.flushed"
	EventQueueFlushFailed      = "queue.flush_failed"
)

// WebSocket message types
const (
	WSMessageTypeEvent  = "event"
	WSMessageTypeStatus = "status"
	WSMessageTypePing   = "ping"
)

// Event describes something that happened in the verification workflow.
type Event struct {
	Type      string            `json:"type"`
	MemberID  string            `json:"member_id,omitempty"`
	ActorID   string            `json:"actor_id,omitempty"`
	ChannelID string            `json:"channel_id,omitempty"`
	Detail    map[string]string `json:"detail,omitempty"`
	Timestamp time.Time         `json:"timestamp"`
}

// WebSocketMessage is the envelope written to websocket clients.
type WebSocketMessage struct {
	Type      string         `json:"type"`
	Data      map[string]any `json:"data,omitempty"`
	Timestamp time.Time      `json:"timestamp"`
	Source    string         `json:"source,omitempty"`
}

// Publisher receives workflow events. Publish must not block.
type Publisher interface {
	Publish(event Event)
}

// NopPublisher discards events.
type NopPublisher struct{}

func (NopPublisher) Publish(Event) {}

// QueueStatus is the JSON view of the outbound queue.
type QueueStatus struct {
	Enabled  bool     `json:"enabled"`
	Pending  int      `json:"pending"`
	Messages []string `json:"messages"`
}
