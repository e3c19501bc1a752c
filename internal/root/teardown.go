package root

import (
	"fmt"
	"time"

	"vigil/internal/event"
)

// teardown destroys one root: a final re-validation (for reaps), the
// backend stop, then removal from the registry. It runs without any
// lock shared across roots, so concurrent teardowns never serialize.
func (registry *Registry) teardown(claimed *Root, reason string, revalidate bool) error {
	start := time.Now()
	if !claimed.commitTeardown(start, revalidate) {
		// the root became live again between the eligibility check and
		// the commit; leave it alone
		return nil
	}

	claimed.mutex.Lock()
	handle := claimed.handle
	claimed.handle = nil
	claimed.mutex.Unlock()

	var stopErr error
	if handle != nil {
		if err := handle.Stop(); err != nil {
			stopErr = fmt.Errorf("%w: %v", ErrTeardownPartial, err)
		}
	}

	// the root leaves the registry even when the backend failed to stop
	// cleanly; a stuck entry would block the path forever
	registry.removeEntry(claimed)
	claimed.resolveClaim()

	duration := time.Since(start)
	registry.metrics.RecordTeardown(reason, duration, stopErr)
	registry.metrics.IncRootsRemoved()
	if reason == "reap" {
		registry.metrics.IncRootsReaped()
		registry.publish(event.NewRootEvent(event.TypeRootReaped, claimed.path))
	}
	registry.publish(event.NewRootEvent(event.TypeRootRemoved, claimed.path))

	fields := map[string]string{
		"path":   claimed.path,
		"reason": reason,
	}
	if stopErr != nil {
		fields["error"] = stopErr.Error()
		registry.logWarn("root removed with backend stop failure", fields)
	} else {
		registry.logInfo("root removed", fields)
	}
	return stopErr
}
