package root

import (
	"fmt"
	"path/filepath"
	"sync"
	"time"

	"vigil/internal/backend"
	"vigil/internal/config"
	"vigil/internal/event"
	"vigil/internal/fsutil"
	"vigil/internal/logging"
	"vigil/internal/metrics"
)

// Options configures a Registry.
type Options struct {
	Backend  backend.Backend
	Bus      *event.Bus[event.RootEvent]
	Logger   *logging.Logger
	Metrics  *metrics.Registry
	MaxRoots int

	// LoadConfig reads the per-root configuration at watch time.
	// Defaults to config.LoadRootConfig.
	LoadConfig func(path string) (config.RootConfig, error)
}

// Registry is the single source of truth for which roots are watched.
type Registry struct {
	mutex sync.Mutex
	roots map[string]*Root

	backend    backend.Backend
	bus        *event.Bus[event.RootEvent]
	logger     *logging.Logger
	metrics    *metrics.Registry
	maxRoots   int
	loadConfig func(path string) (config.RootConfig, error)
}

// NewRegistry creates a Registry backed by the given notification
// backend.
func NewRegistry(options Options) *Registry {
	loadConfig := options.LoadConfig
	if loadConfig == nil {
		loadConfig = config.LoadRootConfig
	}
	registryMetrics := options.Metrics
	if registryMetrics == nil {
		registryMetrics = metrics.Default
	}
	return &Registry{
		roots:      make(map[string]*Root),
		backend:    options.Backend,
		bus:        options.Bus,
		logger:     options.Logger,
		metrics:    registryMetrics,
		maxRoots:   options.MaxRoots,
		loadConfig: loadConfig,
	}
}

// Watch returns the live root for path, creating one when none exists.
// Concurrent duplicate calls collapse onto a single entity. A call that
// races a teardown on the same path blocks only until that teardown
// resolves: a committed teardown clears the slot and a fresh root is
// created, a rolled-back reap leaves the root Active and it is reused.
// Callers never receive a torn-down entity.
func (registry *Registry) Watch(path string) (*Root, error) {
	if registry == nil {
		return nil, fmt.Errorf("registry is nil")
	}
	canonical, err := canonicalPath(path)
	if err != nil {
		return nil, err
	}

	for {
		registry.mutex.Lock()
		existing, ok := registry.roots[canonical]
		if !ok {
			if registry.maxRoots > 0 && len(registry.roots) >= registry.maxRoots {
				registry.mutex.Unlock()
				return nil, ErrTooManyRoots
			}
			created := newRoot(canonical, time.Now())
			created.onInvariant = registry.metrics.IncInvariantViolations
			registry.roots[canonical] = created
			registry.mutex.Unlock()
			return registry.establish(created)
		}
		registry.mutex.Unlock()

		<-existing.ready
		if existing.startErr != nil {
			<-existing.removed
			continue
		}
		switch existing.State() {
		case StateActive:
			existing.Touch()
			return existing, nil
		case StateReapPending:
			// a teardown owns the root; it either commits (slot clears)
			// or rolls back (root is Active again), and the claim latch
			// resolves on both outcomes
			existing.awaitClaim()
		default:
			<-existing.removed
		}
	}
}

// establish finishes creation of a freshly registered root: config
// load, backend start, then the ready latch. On failure the slot is
// cleared and no entity remains registered.
func (registry *Registry) establish(created *Root) (*Root, error) {
	fail := func(err error) (*Root, error) {
		created.startErr = err
		registry.removeEntry(created)
		close(created.ready)
		registry.metrics.IncWatchFailures()
		registry.publish(event.NewRootError(created.path, err.Error()))
		registry.logWarn("watch failed", map[string]string{
			"path":  created.path,
			"error": err.Error(),
		})
		return nil, err
	}

	cfg, err := registry.loadConfig(created.path)
	if err != nil {
		return fail(err)
	}
	created.mutex.Lock()
	created.cfg = cfg
	created.mutex.Unlock()

	if registry.backend == nil {
		return fail(fmt.Errorf("%w: no backend configured", ErrBackendStart))
	}
	handle, err := registry.backend.Start(created.path, created.Touch)
	if err != nil {
		return fail(fmt.Errorf("%w: %v", ErrBackendStart, err))
	}
	created.mutex.Lock()
	created.handle = handle
	created.mutex.Unlock()
	close(created.ready)

	registry.metrics.IncRootsWatched()
	registry.publish(event.NewRootEvent(event.TypeRootWatched, created.path))
	registry.logInfo("root watched", map[string]string{
		"path":          created.path,
		"idle_reap_age": cfg.IdleReapAge().String(),
	})
	return created, nil
}

// Lookup returns the registered root for path, if any.
func (registry *Registry) Lookup(path string) (*Root, bool) {
	if registry == nil {
		return nil, false
	}
	canonical, err := canonicalPath(path)
	if err != nil {
		canonical = filepath.Clean(path)
	}
	registry.mutex.Lock()
	defer registry.mutex.Unlock()
	found, ok := registry.roots[canonical]
	return found, ok
}

// IsWatched reports whether a live root exists for path.
func (registry *Registry) IsWatched(path string) bool {
	found, ok := registry.Lookup(path)
	return ok && found.State() != StateTornDown
}

// Unwatch explicitly tears down the root for path, regardless of
// holders. Unwatching a path that is not registered, or whose teardown
// is already in progress, does not disturb registry state.
func (registry *Registry) Unwatch(path string) error {
	if registry == nil {
		return ErrNotFound
	}
	found, ok := registry.Lookup(path)
	if !ok {
		return ErrNotFound
	}
	if !found.claimForRemoval() {
		// another teardown owns the root; treat as already unwatched
		return nil
	}
	return registry.teardown(found, "unwatch", false)
}

// Remove drops the registry entry for path. Removing an absent entry is
// a no-op; teardown races are expected and harmless.
func (registry *Registry) Remove(path string) {
	if registry == nil {
		return
	}
	canonical, err := canonicalPath(path)
	if err != nil {
		canonical = filepath.Clean(path)
	}
	registry.mutex.Lock()
	found, ok := registry.roots[canonical]
	if ok {
		delete(registry.roots, canonical)
	}
	registry.mutex.Unlock()
	if ok {
		found.markRemoved()
	}
}

// removeEntry clears the slot held by exactly this root.
func (registry *Registry) removeEntry(occupant *Root) {
	registry.mutex.Lock()
	if current, ok := registry.roots[occupant.path]; ok && current == occupant {
		delete(registry.roots, occupant.path)
	}
	registry.mutex.Unlock()
	occupant.markRemoved()
}

// List snapshots the current roots. The registry lock is held only for
// the copy, never across any per-root work.
func (registry *Registry) List() []*Root {
	if registry == nil {
		return nil
	}
	registry.mutex.Lock()
	defer registry.mutex.Unlock()
	out := make([]*Root, 0, len(registry.roots))
	for _, entry := range registry.roots {
		out = append(out, entry)
	}
	return out
}

// Snapshot reports the status of every registered root.
func (registry *Registry) Snapshot() []Status {
	roots := registry.List()
	statuses := make([]Status, 0, len(roots))
	for _, entry := range roots {
		statuses = append(statuses, entry.Status())
	}
	return statuses
}

// Close tears down every root, for daemon shutdown.
func (registry *Registry) Close() {
	if registry == nil {
		return
	}
	var wg sync.WaitGroup
	for _, entry := range registry.List() {
		if !entry.claimForRemoval() {
			continue
		}
		wg.Add(1)
		go func(claimed *Root) {
			defer wg.Done()
			_ = registry.teardown(claimed, "shutdown", false)
		}(entry)
	}
	wg.Wait()
}

// AddTrigger registers a named trigger on the root for path. The call
// runs inside an in-flight bracket so a reap cannot commit mid-change.
func (registry *Registry) AddTrigger(path, name string) error {
	found, ok := registry.Lookup(path)
	if !ok {
		return ErrNotFound
	}
	release, err := found.BeginRequest()
	if err != nil {
		return err
	}
	defer release()
	return found.AddTrigger(name)
}

// RemoveTrigger drops a named trigger from the root for path.
func (registry *Registry) RemoveTrigger(path, name string) error {
	found, ok := registry.Lookup(path)
	if !ok {
		return ErrNotFound
	}
	release, err := found.BeginRequest()
	if err != nil {
		return err
	}
	defer release()
	return found.RemoveTrigger(name)
}

// BeginRequest marks a request as executing against the root for path
// and returns the matching release.
func (registry *Registry) BeginRequest(path string) (func(), error) {
	found, ok := registry.Lookup(path)
	if !ok {
		return nil, ErrNotFound
	}
	return found.BeginRequest()
}

func (registry *Registry) publish(rootEvent event.RootEvent) {
	if registry == nil || registry.bus == nil {
		return
	}
	registry.bus.Publish(rootEvent)
}

func (registry *Registry) logInfo(message string, fields map[string]string) {
	if registry == nil || registry.logger == nil {
		return
	}
	registry.logger.Info(message, withRegistryFields(fields))
}

func (registry *Registry) logWarn(message string, fields map[string]string) {
	if registry == nil || registry.logger == nil {
		return
	}
	registry.logger.Warn(message, withRegistryFields(fields))
}

func withRegistryFields(fields map[string]string) map[string]string {
	merged := make(map[string]string, len(fields)+1)
	merged["vigil.category"] = "root"
	for key, value := range fields {
		merged[key] = value
	}
	return merged
}

func canonicalPath(path string) (string, error) {
	return fsutil.CanonicalPath(path)
}
