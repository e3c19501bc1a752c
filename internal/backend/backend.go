// Package backend abstracts the filesystem-notification layer a watch
// root sits on. The root lifecycle code never interprets filesystem
// events; it only learns that a root saw activity or that its watch
// failed.
package backend

import "errors"

var (
	// ErrBackendClosed is returned when a watch is requested after Close.
	ErrBackendClosed = errors.New("notification backend is closed")
	// ErrMaxWatchesExceeded is returned when the backend watch budget is spent.
	ErrMaxWatchesExceeded = errors.New("max watches exceeded")
)

// Backend starts low-level watches for root paths. The activity
// callback fires on any filesystem event observed under the path.
type Backend interface {
	Start(path string, onActivity func()) (Handle, error)
}

// Handle releases the underlying watch for one root.
type Handle interface {
	Stop() error
}

// Metrics reports backend counters.
type Metrics struct {
	ActiveWatches   int
	EventsDelivered uint64
	EventsDropped   uint64
	Errors          uint64
	RestartAttempts int
}
