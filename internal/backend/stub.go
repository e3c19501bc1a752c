package backend

import (
	"sync"
	"time"
)

// Stub is an in-memory Backend for tests. It records start and stop
// calls and can be told to fail or stall either.
type Stub struct {
	mutex     sync.Mutex
	active    map[string]*StubHandle
	started   []string
	stopped   []string
	StartErr  error
	StopErr   error
	StopDelay time.Duration
}

// NewStub creates an empty stub backend.
func NewStub() *Stub {
	return &Stub{active: make(map[string]*StubHandle)}
}

func (stub *Stub) Start(path string, onActivity func()) (Handle, error) {
	stub.mutex.Lock()
	defer stub.mutex.Unlock()

	if stub.StartErr != nil {
		return nil, stub.StartErr
	}
	handle := &StubHandle{stub: stub, path: path, onActivity: onActivity}
	stub.active[path] = handle
	stub.started = append(stub.started, path)
	return handle, nil
}

// Active reports whether a stub watch is currently running for path.
func (stub *Stub) Active(path string) bool {
	stub.mutex.Lock()
	defer stub.mutex.Unlock()
	_, ok := stub.active[path]
	return ok
}

// Started returns every path a watch was started for, in order.
func (stub *Stub) Started() []string {
	stub.mutex.Lock()
	defer stub.mutex.Unlock()
	return append([]string(nil), stub.started...)
}

// Stopped returns every path whose watch was stopped, in order.
func (stub *Stub) Stopped() []string {
	stub.mutex.Lock()
	defer stub.mutex.Unlock()
	return append([]string(nil), stub.stopped...)
}

// Emit simulates filesystem activity under path.
func (stub *Stub) Emit(path string) {
	stub.mutex.Lock()
	handle := stub.active[path]
	stub.mutex.Unlock()

	if handle != nil && handle.onActivity != nil {
		handle.onActivity()
	}
}

// StubHandle is the Handle produced by Stub.
type StubHandle struct {
	stub       *Stub
	path       string
	onActivity func()
	once       sync.Once
}

func (handle *StubHandle) Stop() error {
	if handle == nil || handle.stub == nil {
		return nil
	}
	var err error
	handle.once.Do(func() {
		handle.stub.mutex.Lock()
		delay := handle.stub.StopDelay
		handle.stub.mutex.Unlock()
		if delay > 0 {
			time.Sleep(delay)
		}

		handle.stub.mutex.Lock()
		if current, ok := handle.stub.active[handle.path]; ok && current == handle {
			delete(handle.stub.active, handle.path)
		}
		handle.stub.stopped = append(handle.stub.stopped, handle.path)
		err = handle.stub.StopErr
		handle.stub.mutex.Unlock()
	})
	return err
}
