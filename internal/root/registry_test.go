package root

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"vigil/internal/backend"
	"vigil/internal/config"
	"vigil/internal/event"
	"vigil/internal/logging"
	"vigil/internal/metrics"
)

func TestWatchCreatesAndLooksUp(t *testing.T) {
	stub := backend.NewStub()
	registry := testRegistry(t, stub, 0)
	dir := t.TempDir()

	watched, err := registry.Watch(dir)
	if err != nil {
		t.Fatalf("watch: %v", err)
	}
	if !registry.IsWatched(dir) {
		t.Fatal("expected root to be watched")
	}
	if !stub.Active(watched.Path()) {
		t.Fatal("expected backend watch to be running")
	}

	found, ok := registry.Lookup(dir)
	if !ok || found != watched {
		t.Fatal("lookup did not return the watched root")
	}
}

func TestWatchIsIdempotent(t *testing.T) {
	stub := backend.NewStub()
	registry := testRegistry(t, stub, 0)
	dir := t.TempDir()

	first, err := registry.Watch(dir)
	if err != nil {
		t.Fatalf("first watch: %v", err)
	}
	second, err := registry.Watch(dir)
	if err != nil {
		t.Fatalf("second watch: %v", err)
	}
	if first != second {
		t.Fatal("expected both watches to share one entity")
	}
	if count := len(stub.Started()); count != 1 {
		t.Fatalf("expected 1 backend start, got %d", count)
	}
}

func TestWatchConcurrentDuplicatesCollapse(t *testing.T) {
	stub := backend.NewStub()
	registry := testRegistry(t, stub, 0)
	dir := t.TempDir()

	const callers = 16
	roots := make([]*Root, callers)
	var wg sync.WaitGroup
	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func(slot int) {
			defer wg.Done()
			watched, err := registry.Watch(dir)
			if err != nil {
				t.Errorf("watch %d: %v", slot, err)
				return
			}
			roots[slot] = watched
		}(i)
	}
	wg.Wait()

	for _, watched := range roots {
		if watched != roots[0] {
			t.Fatal("concurrent watches produced distinct entities")
		}
	}
	if count := len(stub.Started()); count != 1 {
		t.Fatalf("expected exactly 1 backend start, got %d", count)
	}
}

func TestWatchBackendFailureLeavesNothingRegistered(t *testing.T) {
	stub := backend.NewStub()
	stub.StartErr = errors.New("inotify limit reached")
	registry := testRegistry(t, stub, 0)
	dir := t.TempDir()

	if _, err := registry.Watch(dir); !errors.Is(err, ErrBackendStart) {
		t.Fatalf("expected ErrBackendStart, got %v", err)
	}
	if registry.IsWatched(dir) {
		t.Fatal("expected no partial root after backend failure")
	}

	// the path is retryable once the backend recovers
	stub.StartErr = nil
	if _, err := registry.Watch(dir); err != nil {
		t.Fatalf("watch after recovery: %v", err)
	}
}

func TestWatchFailurePublishesErrorEvent(t *testing.T) {
	bus := event.NewBus[event.RootEvent](context.Background(), event.BusOptions{})
	defer bus.Close()
	events, cancel := bus.Subscribe()
	defer cancel()

	stub := backend.NewStub()
	stub.StartErr = errors.New("inotify limit reached")
	registry := NewRegistry(Options{
		Backend: stub,
		Bus:     bus,
		Logger:  logging.NewLoggerWithOutput(logging.NewLogBuffer(64), logging.LevelDebug, nil),
		Metrics: &metrics.Registry{},
		LoadConfig: func(string) (config.RootConfig, error) {
			return config.RootConfig{}, nil
		},
	})
	dir := t.TempDir()
	canonical, err := canonicalPath(dir)
	if err != nil {
		t.Fatalf("canonical path: %v", err)
	}

	if _, err := registry.Watch(dir); !errors.Is(err, ErrBackendStart) {
		t.Fatalf("expected ErrBackendStart, got %v", err)
	}

	select {
	case received := <-events:
		if received.EventType != event.TypeWatchError {
			t.Fatalf("expected %s event, got %s", event.TypeWatchError, received.EventType)
		}
		if received.Path != canonical {
			t.Fatalf("expected event for %s, got %s", canonical, received.Path)
		}
		if received.Detail == "" {
			t.Fatal("expected the failure detail to be carried on the event")
		}
	case <-time.After(2 * time.Second):
		t.Fatal("no error event published for the failed watch")
	}
}

func TestUnwatchRemovesRoot(t *testing.T) {
	stub := backend.NewStub()
	registry := testRegistry(t, stub, 0)
	dir := t.TempDir()

	watched, err := registry.Watch(dir)
	if err != nil {
		t.Fatalf("watch: %v", err)
	}
	if err := registry.Unwatch(dir); err != nil {
		t.Fatalf("unwatch: %v", err)
	}
	if registry.IsWatched(dir) {
		t.Fatal("expected root to be unwatched")
	}
	if stub.Active(watched.Path()) {
		t.Fatal("expected backend watch to be stopped")
	}

	if err := registry.Unwatch(dir); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound on second unwatch, got %v", err)
	}
}

func TestUnwatchStopFailureStillRemoves(t *testing.T) {
	stub := backend.NewStub()
	stub.StopErr = errors.New("backend wedged")
	registry := testRegistry(t, stub, 0)
	dir := t.TempDir()

	if _, err := registry.Watch(dir); err != nil {
		t.Fatalf("watch: %v", err)
	}
	if err := registry.Unwatch(dir); !errors.Is(err, ErrTeardownPartial) {
		t.Fatalf("expected ErrTeardownPartial, got %v", err)
	}
	if registry.IsWatched(dir) {
		t.Fatal("expected root removed despite stop failure")
	}
}

func TestWatchAfterUnwatchCreatesFreshRoot(t *testing.T) {
	stub := backend.NewStub()
	registry := testRegistry(t, stub, 0)
	dir := t.TempDir()

	first, err := registry.Watch(dir)
	if err != nil {
		t.Fatalf("watch: %v", err)
	}
	if err := registry.Unwatch(dir); err != nil {
		t.Fatalf("unwatch: %v", err)
	}

	second, err := registry.Watch(dir)
	if err != nil {
		t.Fatalf("rewatch: %v", err)
	}
	if first == second {
		t.Fatal("expected a fresh entity after unwatch")
	}
	if second.State() != StateActive {
		t.Fatalf("expected fresh root active, got %s", second.State())
	}
}

func TestWatchDuringTeardownBlocksThenRecreates(t *testing.T) {
	stub := backend.NewStub()
	stub.StopDelay = 100 * time.Millisecond
	registry := testRegistry(t, stub, 0)
	dir := t.TempDir()

	first, err := registry.Watch(dir)
	if err != nil {
		t.Fatalf("watch: %v", err)
	}

	unwatchDone := make(chan struct{})
	go func() {
		defer close(unwatchDone)
		_ = registry.Unwatch(dir)
	}()

	// give the teardown time to claim the root before racing in
	waitFor(t, time.Second, "teardown to claim the root", func() bool {
		return first.State() != StateActive
	})

	second, err := registry.Watch(dir)
	if err != nil {
		t.Fatalf("watch during teardown: %v", err)
	}
	if second == first {
		t.Fatal("watch returned the torn-down entity")
	}
	if second.State() != StateActive {
		t.Fatalf("expected recreated root active, got %s", second.State())
	}
	<-unwatchDone
	if !registry.IsWatched(dir) {
		t.Fatal("expected recreated root to remain watched")
	}
}

func TestWatchReturnsAfterReapRollback(t *testing.T) {
	stub := backend.NewStub()
	registry := testRegistry(t, stub, 50*time.Millisecond)
	dir := t.TempDir()

	first, err := registry.Watch(dir)
	if err != nil {
		t.Fatalf("watch: %v", err)
	}

	waitFor(t, time.Second, "root to become reap eligible", func() bool {
		return first.markReapPending(time.Now())
	})

	watched := make(chan *Root, 1)
	go func() {
		again, err := registry.Watch(dir)
		if err != nil {
			t.Errorf("watch during claimed reap: %v", err)
		}
		watched <- again
	}()

	// let the concurrent watcher block on the claimed root, then make
	// the root live again so the teardown re-validation rolls back
	time.Sleep(20 * time.Millisecond)
	first.Touch()
	if err := registry.teardown(first, "reap", true); err != nil {
		t.Fatalf("teardown: %v", err)
	}
	if first.State() != StateActive {
		t.Fatalf("expected rollback to Active, got %s", first.State())
	}

	select {
	case again := <-watched:
		if again != first {
			t.Fatal("expected the rolled-back root to be reused")
		}
	case <-time.After(2 * time.Second):
		t.Fatal("watch still blocked after the reap rolled back")
	}
	if !registry.IsWatched(dir) {
		t.Fatal("expected root to remain watched after rollback")
	}
}

func TestMutatingOpsRunInsideInFlightBracket(t *testing.T) {
	stub := backend.NewStub()
	registry := testRegistry(t, stub, 50*time.Millisecond)
	sessions := NewSessions(registry)
	dir := t.TempDir()

	watched, err := registry.Watch(dir)
	if err != nil {
		t.Fatalf("watch: %v", err)
	}

	waitFor(t, time.Second, "root to become reap eligible", func() bool {
		return watched.markReapPending(time.Now())
	})

	// the registry-level mutation lands on the claimed root; its
	// in-flight bracket plus the new holder must abort the commit
	if err := registry.AddTrigger(dir, "build"); err != nil {
		t.Fatalf("add trigger during claimed reap: %v", err)
	}
	if err := registry.teardown(watched, "reap", true); err != nil {
		t.Fatalf("teardown: %v", err)
	}
	if watched.State() != StateActive {
		t.Fatalf("reap destroyed a root that took a mutation mid-claim, state %s", watched.State())
	}
	if !registry.IsWatched(dir) {
		t.Fatal("expected root to remain watched")
	}

	// every bracket releases on the way out
	sub, err := sessions.Subscribe("client-1", dir, "changes")
	if err != nil {
		t.Fatalf("subscribe: %v", err)
	}
	if err := sessions.Unsubscribe(sub.ID); err != nil {
		t.Fatalf("unsubscribe: %v", err)
	}
	if err := registry.RemoveTrigger(dir, "build"); err != nil {
		t.Fatalf("remove trigger: %v", err)
	}
	triggers, subscriptions, inFlight := watched.Counts()
	if triggers != 0 || subscriptions != 0 || inFlight != 0 {
		t.Fatalf("holders leaked: triggers=%d subscriptions=%d inFlight=%d", triggers, subscriptions, inFlight)
	}
}

func TestMaxRootsEnforced(t *testing.T) {
	stub := backend.NewStub()
	registry := testRegistry(t, stub, 0)
	registry.maxRoots = 1

	if _, err := registry.Watch(t.TempDir()); err != nil {
		t.Fatalf("first watch: %v", err)
	}
	if _, err := registry.Watch(t.TempDir()); !errors.Is(err, ErrTooManyRoots) {
		t.Fatalf("expected ErrTooManyRoots, got %v", err)
	}
}

func TestRemoveAbsentPathIsNoOp(t *testing.T) {
	registry := testRegistry(t, backend.NewStub(), 0)
	registry.Remove(t.TempDir())

	dir := t.TempDir()
	if _, err := registry.Watch(dir); err != nil {
		t.Fatalf("watch after stray remove: %v", err)
	}
	if !registry.IsWatched(dir) {
		t.Fatal("registry state corrupted by removing an absent path")
	}
}

func TestCloseTearsDownAllRoots(t *testing.T) {
	stub := backend.NewStub()
	registry := testRegistry(t, stub, 0)

	dirA := t.TempDir()
	dirB := t.TempDir()
	if _, err := registry.Watch(dirA); err != nil {
		t.Fatalf("watch a: %v", err)
	}
	if _, err := registry.Watch(dirB); err != nil {
		t.Fatalf("watch b: %v", err)
	}

	registry.Close()

	if registry.IsWatched(dirA) || registry.IsWatched(dirB) {
		t.Fatal("expected all roots removed on close")
	}
	if count := len(stub.Stopped()); count != 2 {
		t.Fatalf("expected 2 backend stops, got %d", count)
	}
}
