package root

import "time"

// State tracks where a root is in its lifecycle.
type State int

const (
	StateActive State = iota
	StateReapPending
	StateTornDown
)

func (s State) String() string {
	switch s {
	case StateActive:
		return "active"
	case StateReapPending:
		return "reap_pending"
	case StateTornDown:
		return "torn_down"
	default:
		return "unknown"
	}
}

// Status is a point-in-time snapshot of one root's liveness state, the
// shape served by the observability API.
type Status struct {
	Path               string    `json:"path"`
	State              string    `json:"state"`
	CreatedAt          time.Time `json:"created_at"`
	LastActivityAt     time.Time `json:"last_activity_at"`
	IdleForSeconds     float64   `json:"idle_for_seconds"`
	Triggers           int       `json:"triggers"`
	Subscriptions      int       `json:"subscriptions"`
	InFlight           int       `json:"in_flight"`
	IdleReapAgeSeconds float64   `json:"idle_reap_age_seconds"`
}
