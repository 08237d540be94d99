package domain

import "time"

type NotificationID string

type NotificationMetadata struct {
	TaskID string `json:"taskId,omitempty"`
}

// Notification is immutable once received. Identity is ID across both the
// live stream and history replays.
type Notification struct {
	ID        NotificationID       `json:"id"`
	Type      string               `json:"type"`
	Title     string               `json:"title"`
	Message   string               `json:"message"`
	Metadata  NotificationMetadata `json:"metadata"`
	CreatedAt time.Time            `json:"createdAt"`
}

// HistoryReplay is delivered once per successful connection with the events
// the identity missed while disconnected.
type HistoryReplay struct {
	Notifications []Notification `json:"notifications"`
	Count         int            `json:"count"`
}

type EventKind string

const (
	EventTaskCreated    EventKind = "task-created"
	EventTaskUpdated    EventKind = "task-updated"
	EventCommentCreated EventKind = "comment-created"
	EventHistoryReplay  EventKind = "history-replay"
)

func (k EventKind) Valid() bool {
	switch k {
	case EventTaskCreated, EventTaskUpdated, EventCommentCreated, EventHistoryReplay:
		return true
	default:
		return false
	}
}

// Event is a typed payload forwarded by the realtime channel. Exactly one of
// Notification or Replay is set, depending on Kind.
type Event struct {
	Kind         EventKind
	Notification *Notification
	Replay       *HistoryReplay
}
