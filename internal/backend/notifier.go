package backend

import (
	"errors"
	"os"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"vigil/internal/fsutil"
	"vigil/internal/logging"

	"github.com/fsnotify/fsnotify"
)

const (
	defaultMaxWatches  = 1024
	maxRestartAttempts = 3
	restartBaseDelay   = 200 * time.Millisecond
)

// Options controls notifier behavior.
type Options struct {
	Logger       *logging.Logger
	MaxWatches   int
	ErrorHandler func(error)
}

// Notifier is the fsnotify-backed Backend. One shared fsnotify watcher
// serves all roots; per-root state is limited to the activity callback.
type Notifier struct {
	mutex           sync.Mutex
	watcher         *fsnotify.Watcher
	watches         map[string]watchEntry
	nextID          uint64
	closed          bool
	maxWatches      int
	logger          *logging.Logger
	errorHandler    func(error)
	events          chan fsnotify.Event
	errors          chan error
	done            chan struct{}
	restartMutex    sync.Mutex
	restartTimer    *time.Timer
	restartAttempts int

	eventsDelivered atomic.Uint64
	errorCount      atomic.Uint64
}

type watchEntry struct {
	id         uint64
	onActivity func()
}

// NewNotifier creates a Notifier with the given options.
func NewNotifier(options Options) (*Notifier, error) {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}

	logger := options.Logger
	if logger == nil {
		logger = logging.NewLoggerWithOutput(logging.NewLogBuffer(logging.DefaultBufferSize), logging.LevelInfo, nil)
	}
	maxWatches := options.MaxWatches
	if maxWatches <= 0 {
		maxWatches = defaultMaxWatches
	}

	notifier := &Notifier{
		watcher:      watcher,
		watches:      make(map[string]watchEntry),
		maxWatches:   maxWatches,
		logger:       logger,
		errorHandler: options.ErrorHandler,
		events:       make(chan fsnotify.Event, 16),
		errors:       make(chan error, 4),
		done:         make(chan struct{}),
	}
	notifier.startForwarder(watcher)
	go notifier.run()
	return notifier, nil
}

// Start registers a watch on a root path. The returned handle must be
// stopped exactly once; extra stops are no-ops.
func (notifier *Notifier) Start(path string, onActivity func()) (Handle, error) {
	if notifier == nil {
		return nil, errors.New("notifier is nil")
	}
	if path == "" {
		return nil, errors.New("path is required")
	}

	info, err := os.Stat(path)
	if err != nil {
		return nil, err
	}
	if !info.IsDir() {
		return nil, errors.New("watch path is not a directory")
	}

	notifier.mutex.Lock()
	if notifier.closed {
		notifier.mutex.Unlock()
		return nil, ErrBackendClosed
	}
	if _, exists := notifier.watches[path]; exists {
		notifier.mutex.Unlock()
		return nil, errors.New("path is already watched")
	}
	if len(notifier.watches) >= notifier.maxWatches {
		notifier.mutex.Unlock()
		return nil, ErrMaxWatchesExceeded
	}
	notifier.nextID++
	entry := watchEntry{id: notifier.nextID, onActivity: onActivity}
	notifier.watches[path] = entry
	activeCount := len(notifier.watches)
	notifier.mutex.Unlock()

	if err := notifier.watcher.Add(path); err != nil {
		notifier.mutex.Lock()
		if current, ok := notifier.watches[path]; ok && current.id == entry.id {
			delete(notifier.watches, path)
		}
		notifier.mutex.Unlock()
		notifier.logWarn("watch add failed", map[string]string{
			"path":  path,
			"error": err.Error(),
		})
		return nil, err
	}
	notifier.logDebug("watch added", path, activeCount)

	return &notifierHandle{notifier: notifier, path: path, id: entry.id}, nil
}

type notifierHandle struct {
	notifier *Notifier
	path     string
	id       uint64
	once     sync.Once
}

func (handle *notifierHandle) Stop() error {
	if handle == nil || handle.notifier == nil {
		return nil
	}
	var err error
	handle.once.Do(func() {
		err = handle.notifier.stopWatch(handle.path, handle.id)
	})
	return err
}

func (notifier *Notifier) stopWatch(path string, id uint64) error {
	notifier.mutex.Lock()
	entry, ok := notifier.watches[path]
	if !ok || entry.id != id {
		notifier.mutex.Unlock()
		return nil
	}
	delete(notifier.watches, path)
	closed := notifier.closed
	activeCount := len(notifier.watches)
	notifier.mutex.Unlock()

	if closed || notifier.watcher == nil {
		return nil
	}
	if err := notifier.watcher.Remove(path); err != nil {
		notifier.logWarn("watch remove failed", map[string]string{
			"path":  path,
			"error": err.Error(),
		})
		return err
	}
	notifier.logDebug("watch removed", path, activeCount)
	return nil
}

// Close shuts down the notifier and stops event processing.
func (notifier *Notifier) Close() error {
	if notifier == nil {
		return nil
	}

	notifier.mutex.Lock()
	if notifier.closed {
		notifier.mutex.Unlock()
		return nil
	}
	notifier.closed = true
	notifier.mutex.Unlock()

	notifier.restartMutex.Lock()
	if notifier.restartTimer != nil {
		notifier.restartTimer.Stop()
		notifier.restartTimer = nil
	}
	notifier.restartMutex.Unlock()

	close(notifier.done)
	if notifier.watcher == nil {
		return nil
	}
	return notifier.watcher.Close()
}

func (notifier *Notifier) run() {
	for {
		select {
		case event := <-notifier.events:
			notifier.handleEvent(event)
		case err := <-notifier.errors:
			notifier.handleError(err)
		case <-notifier.done:
			return
		}
	}
}

func (notifier *Notifier) startForwarder(source *fsnotify.Watcher) {
	if source == nil {
		return
	}

	go func() {
		for {
			select {
			case event, ok := <-source.Events:
				if !ok {
					return
				}
				select {
				case notifier.events <- event:
				case <-notifier.done:
					return
				}
			case err, ok := <-source.Errors:
				if !ok {
					return
				}
				select {
				case notifier.errors <- err:
				case <-notifier.done:
					return
				}
			case <-notifier.done:
				return
			}
		}
	}()
}

func (notifier *Notifier) handleEvent(event fsnotify.Event) {
	if event.Name == "" {
		return
	}

	var callbacks []func()
	notifier.mutex.Lock()
	for path, entry := range notifier.watches {
		if entry.onActivity == nil {
			continue
		}
		if fsutil.Within(path, event.Name) {
			callbacks = append(callbacks, entry.onActivity)
		}
	}
	notifier.mutex.Unlock()

	if len(callbacks) == 0 {
		return
	}
	notifier.eventsDelivered.Add(1)
	for _, callback := range callbacks {
		callback()
	}
}

// Metrics reports current notifier stats.
func (notifier *Notifier) Metrics() Metrics {
	if notifier == nil {
		return Metrics{}
	}
	notifier.mutex.Lock()
	active := len(notifier.watches)
	notifier.mutex.Unlock()
	notifier.restartMutex.Lock()
	restartAttempts := notifier.restartAttempts
	notifier.restartMutex.Unlock()
	return Metrics{
		ActiveWatches:   active,
		EventsDelivered: notifier.eventsDelivered.Load(),
		Errors:          notifier.errorCount.Load(),
		RestartAttempts: restartAttempts,
	}
}

func (notifier *Notifier) logWarn(message string, fields map[string]string) {
	if notifier == nil || notifier.logger == nil {
		return
	}
	notifier.logger.Warn(message, withBackendFields(fields))
}

func (notifier *Notifier) logDebug(message, path string, activeCount int) {
	if notifier == nil || notifier.logger == nil {
		return
	}
	notifier.logger.Debug(message, withBackendFields(map[string]string{
		"path":           path,
		"active_watches": strconv.Itoa(activeCount),
	}))
}

func withBackendFields(fields map[string]string) map[string]string {
	merged := make(map[string]string, len(fields)+1)
	merged["vigil.category"] = "backend"
	for key, value := range fields {
		merged[key] = value
	}
	return merged
}
