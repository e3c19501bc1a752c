package event

import "time"

// Event represents a typed event with an occurrence timestamp.
type Event interface {
	Type() string
	Timestamp() time.Time
}

const (
	TypeRootWatched = "root_watched"
	TypeRootReaped  = "root_reaped"
	TypeRootRemoved = "root_removed"
	TypeWatchError  = "watch_error"
)

// RootEvent captures a watch root lifecycle change.
type RootEvent struct {
	EventType  string    `json:"type"`
	Path       string    `json:"path"`
	Detail     string    `json:"detail,omitempty"`
	OccurredAt time.Time `json:"timestamp"`
}

func NewRootEvent(eventType, path string) RootEvent {
	return RootEvent{
		EventType:  eventType,
		Path:       path,
		OccurredAt: time.Now().UTC(),
	}
}

func NewRootError(path, detail string) RootEvent {
	return RootEvent{
		EventType:  TypeWatchError,
		Path:       path,
		Detail:     detail,
		OccurredAt: time.Now().UTC(),
	}
}

func (e RootEvent) Type() string {
	return e.EventType
}

func (e RootEvent) Timestamp() time.Time {
	return e.OccurredAt
}
