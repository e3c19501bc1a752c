package root

import (
	"context"
	"strconv"
	"sync"
	"time"

	"vigil/internal/logging"
)

// DefaultSweepInterval is how often the reaper evaluates roots. It must
// stay small relative to the smallest configured reap age so eviction
// is timely.
const DefaultSweepInterval = time.Second

// Reaper periodically tears down idle roots. Eligibility is evaluated
// per root with fresh counter reads; teardown of each eligible root
// runs in its own goroutine.
type Reaper struct {
	registry *Registry
	interval time.Duration
	logger   *logging.Logger

	inFlight sync.WaitGroup
}

// NewReaper creates a Reaper over the registry.
func NewReaper(registry *Registry, interval time.Duration, logger *logging.Logger) *Reaper {
	if interval <= 0 {
		interval = DefaultSweepInterval
	}
	return &Reaper{
		registry: registry,
		interval: interval,
		logger:   logger,
	}
}

// Run sweeps until the context is cancelled, then waits for any
// in-flight teardowns to finish. A teardown that has committed always
// runs to completion.
func (reaper *Reaper) Run(ctx context.Context) {
	if reaper == nil || reaper.registry == nil {
		return
	}
	ticker := time.NewTicker(reaper.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			reaper.Sweep()
		case <-ctx.Done():
			reaper.inFlight.Wait()
			return
		}
	}
}

// Sweep evaluates every root once. Roots left Active are simply
// revisited next sweep; there is no state carried between sweeps beyond
// the ReapPending transition guard.
func (reaper *Reaper) Sweep() {
	if reaper == nil || reaper.registry == nil {
		return
	}
	reaper.registry.metrics.IncReapSweeps()

	now := time.Now()
	snapshot := reaper.registry.List()
	claimed := 0
	for _, candidate := range snapshot {
		// fresh eligibility read under the root's own lock, not the
		// snapshot's stale view
		if !candidate.markReapPending(now) {
			continue
		}
		claimed++
		reaper.inFlight.Add(1)
		go func(idle *Root) {
			defer reaper.inFlight.Done()
			if err := reaper.registry.teardown(idle, "reap", true); err != nil {
				// isolated: one root's teardown failure never aborts
				// the sweep for others
				reaper.logWarn("reap teardown failed", map[string]string{
					"path":  idle.Path(),
					"error": err.Error(),
				})
			}
		}(candidate)
	}

	if claimed > 0 {
		reaper.logDebug("sweep claimed roots", map[string]string{
			"claimed": strconv.Itoa(claimed),
			"roots":   strconv.Itoa(len(snapshot)),
		})
	}
}

func (reaper *Reaper) logWarn(message string, fields map[string]string) {
	if reaper == nil || reaper.logger == nil {
		return
	}
	reaper.logger.Warn(message, withReaperFields(fields))
}

func (reaper *Reaper) logDebug(message string, fields map[string]string) {
	if reaper == nil || reaper.logger == nil {
		return
	}
	reaper.logger.Debug(message, withReaperFields(fields))
}

func withReaperFields(fields map[string]string) map[string]string {
	merged := make(map[string]string, len(fields)+1)
	merged["vigil.category"] = "reaper"
	for key, value := range fields {
		merged[key] = value
	}
	return merged
}
