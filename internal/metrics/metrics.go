package metrics

import (
	"fmt"
	"io"
	"sort"
	"sync"
	"sync/atomic"
	"time"
)

// Registry collects daemon-wide counters. All methods are safe for
// concurrent use and tolerate a nil receiver.
type Registry struct {
	rootsWatched        atomic.Int64
	rootsReaped         atomic.Int64
	rootsRemoved        atomic.Int64
	reapSweeps          atomic.Int64
	watchFailures       atomic.Int64
	teardownFailures    atomic.Int64
	invariantViolations atomic.Int64
	activeRoots         atomic.Int64
	teardowns           sync.Map
}

type teardownStats struct {
	count         atomic.Int64
	failures      atomic.Int64
	durationNanos atomic.Int64
}

var Default = &Registry{}

func (r *Registry) IncRootsWatched() {
	if r == nil {
		return
	}
	r.rootsWatched.Add(1)
	r.activeRoots.Add(1)
}

func (r *Registry) IncRootsReaped() {
	if r == nil {
		return
	}
	r.rootsReaped.Add(1)
}

func (r *Registry) IncRootsRemoved() {
	if r == nil {
		return
	}
	r.rootsRemoved.Add(1)
	r.activeRoots.Add(-1)
}

func (r *Registry) IncReapSweeps() {
	if r == nil {
		return
	}
	r.reapSweeps.Add(1)
}

func (r *Registry) IncWatchFailures() {
	if r == nil {
		return
	}
	r.watchFailures.Add(1)
}

func (r *Registry) IncInvariantViolations() {
	if r == nil {
		return
	}
	r.invariantViolations.Add(1)
}

// RecordTeardown tracks a teardown attempt keyed by the reason it ran
// ("reap", "unwatch", "shutdown").
func (r *Registry) RecordTeardown(reason string, duration time.Duration, err error) {
	if r == nil {
		return
	}
	if reason == "" {
		reason = "unknown"
	}
	stats := r.teardownStats(reason)
	stats.count.Add(1)
	stats.durationNanos.Add(duration.Nanoseconds())
	if err != nil {
		stats.failures.Add(1)
		r.teardownFailures.Add(1)
	}
}

func (r *Registry) ActiveRoots() int64 {
	if r == nil {
		return 0
	}
	return r.activeRoots.Load()
}

func (r *Registry) WritePrometheus(writer io.Writer) error {
	if r == nil {
		return nil
	}

	writeCounter(writer, "vigil_roots_watched_total", "Total roots watched", r.rootsWatched.Load())
	writeCounter(writer, "vigil_roots_reaped_total", "Total roots reaped for idleness", r.rootsReaped.Load())
	writeCounter(writer, "vigil_roots_removed_total", "Total roots removed", r.rootsRemoved.Load())
	writeCounter(writer, "vigil_reap_sweeps_total", "Total reaper sweeps", r.reapSweeps.Load())
	writeCounter(writer, "vigil_watch_failures_total", "Total failed watch attempts", r.watchFailures.Load())
	writeCounter(writer, "vigil_teardown_failures_total", "Total teardown failures", r.teardownFailures.Load())
	writeCounter(writer, "vigil_invariant_violations_total", "Total liveness bookkeeping violations", r.invariantViolations.Load())
	writeGauge(writer, "vigil_active_roots", "Currently watched roots", r.activeRoots.Load())

	reasons := r.teardownReasons()
	sort.Strings(reasons)

	writeHelp(writer, "vigil_teardown_duration_seconds", "Teardown duration in seconds")
	fmt.Fprintln(writer, "# TYPE vigil_teardown_duration_seconds summary")
	for _, reason := range reasons {
		stats := r.teardownStats(reason)
		label := formatLabel(reason)
		durationSeconds := float64(stats.durationNanos.Load()) / float64(time.Second)
		fmt.Fprintf(writer, "vigil_teardown_duration_seconds_sum{reason=%s} %.6f\n", label, durationSeconds)
		fmt.Fprintf(writer, "vigil_teardown_duration_seconds_count{reason=%s} %d\n", label, stats.count.Load())
	}

	return nil
}

func (r *Registry) teardownStats(reason string) *teardownStats {
	value, _ := r.teardowns.LoadOrStore(reason, &teardownStats{})
	return value.(*teardownStats)
}

func (r *Registry) teardownReasons() []string {
	if r == nil {
		return nil
	}
	var reasons []string
	r.teardowns.Range(func(key, value interface{}) bool {
		if reason, ok := key.(string); ok {
			reasons = append(reasons, reason)
		}
		return true
	})
	return reasons
}

func writeHelp(writer io.Writer, metric, help string) {
	fmt.Fprintf(writer, "# HELP %s %s\n", metric, help)
}

func writeCounter(writer io.Writer, metric, help string, value int64) {
	writeHelp(writer, metric, help)
	fmt.Fprintf(writer, "# TYPE %s counter\n", metric)
	fmt.Fprintf(writer, "%s %d\n", metric, value)
}

func writeGauge(writer io.Writer, metric, help string, value int64) {
	writeHelp(writer, metric, help)
	fmt.Fprintf(writer, "# TYPE %s gauge\n", metric)
	fmt.Fprintf(writer, "%s %d\n", metric, value)
}

func formatLabel(value string) string {
	escaped := ""
	for _, r := range value {
		switch r {
		case '\\':
			escaped += "\\\\"
		case '"':
			escaped += "\\\""
		default:
			escaped += string(r)
		}
	}
	return fmt.Sprintf("\"%s\"", escaped)
}
