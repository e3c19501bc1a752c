package root

import (
	"errors"
	"testing"

	"vigil/internal/backend"
)

func TestSessionsSubscribeUnknownRoot(t *testing.T) {
	registry := testRegistry(t, backend.NewStub(), 0)
	sessions := NewSessions(registry)

	if _, err := sessions.Subscribe("client", t.TempDir(), "s"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestSessionsUnsubscribeUnknownID(t *testing.T) {
	registry := testRegistry(t, backend.NewStub(), 0)
	sessions := NewSessions(registry)

	if err := sessions.Unsubscribe("no-such-id"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestDisconnectReleasesAllSubscriptions(t *testing.T) {
	registry := testRegistry(t, backend.NewStub(), 0)
	sessions := NewSessions(registry)

	dirA := t.TempDir()
	dirB := t.TempDir()
	watchedA, err := registry.Watch(dirA)
	if err != nil {
		t.Fatalf("watch a: %v", err)
	}
	watchedB, err := registry.Watch(dirB)
	if err != nil {
		t.Fatalf("watch b: %v", err)
	}

	if _, err := sessions.Subscribe("client-1", dirA, "one"); err != nil {
		t.Fatalf("subscribe a: %v", err)
	}
	if _, err := sessions.Subscribe("client-1", dirB, "two"); err != nil {
		t.Fatalf("subscribe b: %v", err)
	}
	if _, err := sessions.Subscribe("client-2", dirA, "other"); err != nil {
		t.Fatalf("subscribe other client: %v", err)
	}

	sessions.Disconnect("client-1")

	if held := sessions.Held("client-1"); held != 0 {
		t.Fatalf("expected no held subscriptions, got %d", held)
	}
	if _, subs, _ := watchedA.Counts(); subs != 1 {
		t.Fatalf("expected only the other client's subscription on a, got %d", subs)
	}
	if _, subs, _ := watchedB.Counts(); subs != 0 {
		t.Fatalf("expected no subscriptions on b, got %d", subs)
	}
}

func TestDisconnectAfterExplicitUnsubscribe(t *testing.T) {
	registry := testRegistry(t, backend.NewStub(), 0)
	sessions := NewSessions(registry)
	dir := t.TempDir()

	watched, err := registry.Watch(dir)
	if err != nil {
		t.Fatalf("watch: %v", err)
	}
	sub, err := sessions.Subscribe("client-1", dir, "s")
	if err != nil {
		t.Fatalf("subscribe: %v", err)
	}

	if err := sessions.Unsubscribe(sub.ID); err != nil {
		t.Fatalf("unsubscribe: %v", err)
	}
	// the disconnect must not release the subscription a second time
	sessions.Disconnect("client-1")

	if _, subs, _ := watched.Counts(); subs != 0 {
		t.Fatalf("expected 0 subscriptions, got %d", subs)
	}
	if err := sessions.Unsubscribe(sub.ID); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound after release, got %v", err)
	}
}

func TestDisconnectOfUnknownClientIsNoOp(t *testing.T) {
	registry := testRegistry(t, backend.NewStub(), 0)
	sessions := NewSessions(registry)
	sessions.Disconnect("ghost")
}

func TestDisconnectToleratesTornDownRoot(t *testing.T) {
	registry := testRegistry(t, backend.NewStub(), 0)
	sessions := NewSessions(registry)
	dir := t.TempDir()

	if _, err := registry.Watch(dir); err != nil {
		t.Fatalf("watch: %v", err)
	}
	if _, err := sessions.Subscribe("client-1", dir, "s"); err != nil {
		t.Fatalf("subscribe: %v", err)
	}
	if err := registry.Unwatch(dir); err != nil {
		t.Fatalf("unwatch: %v", err)
	}

	sessions.Disconnect("client-1")
	if held := sessions.Held("client-1"); held != 0 {
		t.Fatalf("expected session records cleared, got %d", held)
	}
}
