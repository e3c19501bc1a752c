package root

import (
	"testing"
	"time"

	"vigil/internal/backend"
	"vigil/internal/config"
	"vigil/internal/logging"
	"vigil/internal/metrics"
)

// testRegistry wires a registry to a stub backend with a fixed idle
// reap age for every root.
func testRegistry(t *testing.T, stub *backend.Stub, reapAge time.Duration) *Registry {
	t.Helper()
	logger := logging.NewLoggerWithOutput(logging.NewLogBuffer(64), logging.LevelDebug, nil)
	return NewRegistry(Options{
		Backend: stub,
		Logger:  logger,
		Metrics: &metrics.Registry{},
		LoadConfig: func(string) (config.RootConfig, error) {
			return config.RootConfig{IdleReapAgeOverride: reapAge}, nil
		},
	})
}

func waitFor(t *testing.T, timeout time.Duration, message string, condition func() bool) {
	t.Helper()
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if condition() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("timed out waiting for %s", message)
}
