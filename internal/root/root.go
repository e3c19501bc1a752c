package root

import (
	"sync"
	"time"

	"vigil/internal/backend"
	"vigil/internal/config"

	"github.com/google/uuid"
)

// Root is one watched filesystem root. All liveness state is guarded by
// the root's own mutex; nothing here is shared across roots.
type Root struct {
	path      string
	cfg       config.RootConfig
	createdAt time.Time

	mutex         sync.Mutex
	state         State
	lastActivity  time.Time
	triggers      map[string]struct{}
	subscriptions map[string]*Subscription
	inFlight      int

	handle backend.Handle

	// onInvariant fires when a detach is observed without its matching
	// attach; installed by the registry to count violations.
	onInvariant func()

	// ready is closed once creation finished, successfully or not;
	// concurrent Watch callers for the same path wait on it.
	ready    chan struct{}
	startErr error

	// removed is closed when the registry entry is gone, releasing
	// watchers blocked on a teardown race.
	removed     chan struct{}
	removedOnce sync.Once

	// claimDone is armed on every Active -> ReapPending transition and
	// closed when that claim resolves, whether the teardown committed
	// or rolled back. Watchers that saw ReapPending wait on it instead
	// of the one-shot removed latch, since a rollback never closes
	// removed.
	claimDone chan struct{}
}

// Subscription is one live client registration on a root.
type Subscription struct {
	ID       string `json:"id"`
	Name     string `json:"name"`
	ClientID string `json:"client_id"`
}

func newRoot(path string, now time.Time) *Root {
	return &Root{
		path:          path,
		createdAt:     now,
		lastActivity:  now,
		triggers:      make(map[string]struct{}),
		subscriptions: make(map[string]*Subscription),
		ready:         make(chan struct{}),
		removed:       make(chan struct{}),
	}
}

func (root *Root) markRemoved() {
	root.removedOnce.Do(func() {
		close(root.removed)
	})
}

func (root *Root) resolveClaimLocked() {
	if root.claimDone != nil {
		close(root.claimDone)
		root.claimDone = nil
	}
}

func (root *Root) resolveClaim() {
	root.mutex.Lock()
	defer root.mutex.Unlock()
	root.resolveClaimLocked()
}

// awaitClaim blocks until the claim in progress resolves. Returns
// immediately when no claim is pending.
func (root *Root) awaitClaim() {
	root.mutex.Lock()
	pending := root.claimDone
	root.mutex.Unlock()
	if pending != nil {
		<-pending
	}
}

// Path returns the canonical root path.
func (root *Root) Path() string {
	if root == nil {
		return ""
	}
	return root.path
}

// CreatedAt returns when this root entity was established.
func (root *Root) CreatedAt() time.Time {
	if root == nil {
		return time.Time{}
	}
	return root.createdAt
}

// Config returns the root-local configuration read at watch time.
func (root *Root) Config() config.RootConfig {
	if root == nil {
		return config.RootConfig{}
	}
	return root.cfg
}

// State returns the current lifecycle state.
func (root *Root) State() State {
	if root == nil {
		return StateTornDown
	}
	root.mutex.Lock()
	defer root.mutex.Unlock()
	return root.state
}

// Touch records client activity on the root.
func (root *Root) Touch() {
	if root == nil {
		return
	}
	root.mutex.Lock()
	defer root.mutex.Unlock()
	if root.state == StateTornDown {
		return
	}
	root.lastActivity = time.Now()
}

// AddTrigger registers a named trigger. Re-registering a name replaces
// the previous trigger, so the holder count never double-counts a name.
func (root *Root) AddTrigger(name string) error {
	if root == nil {
		return ErrNotFound
	}
	root.mutex.Lock()
	defer root.mutex.Unlock()
	if root.state == StateTornDown {
		return ErrNotFound
	}
	root.triggers[name] = struct{}{}
	root.lastActivity = time.Now()
	return nil
}

// RemoveTrigger drops a named trigger. An unknown name is a normal
// negative result.
func (root *Root) RemoveTrigger(name string) error {
	if root == nil {
		return ErrNotFound
	}
	root.mutex.Lock()
	defer root.mutex.Unlock()
	if root.state == StateTornDown {
		return ErrNotFound
	}
	if _, ok := root.triggers[name]; !ok {
		return ErrNotFound
	}
	delete(root.triggers, name)
	root.lastActivity = time.Now()
	return nil
}

// Subscribe registers a live subscription for a client and returns it.
func (root *Root) Subscribe(clientID, name string) (*Subscription, error) {
	if root == nil {
		return nil, ErrNotFound
	}
	root.mutex.Lock()
	defer root.mutex.Unlock()
	if root.state == StateTornDown {
		return nil, ErrNotFound
	}
	sub := &Subscription{
		ID:       uuid.NewString(),
		Name:     name,
		ClientID: clientID,
	}
	root.subscriptions[sub.ID] = sub
	root.lastActivity = time.Now()
	return sub, nil
}

// Unsubscribe drops a subscription by ID.
func (root *Root) Unsubscribe(id string) error {
	if root == nil {
		return ErrNotFound
	}
	root.mutex.Lock()
	defer root.mutex.Unlock()
	if root.state == StateTornDown {
		return ErrNotFound
	}
	if _, ok := root.subscriptions[id]; !ok {
		return ErrNotFound
	}
	delete(root.subscriptions, id)
	root.lastActivity = time.Now()
	return nil
}

// BeginRequest marks a request as executing against the root and
// returns the matching release. The release is safe to call on every
// exit path; extra calls beyond the first are no-ops.
func (root *Root) BeginRequest() (func(), error) {
	if root == nil {
		return nil, ErrNotFound
	}
	root.mutex.Lock()
	defer root.mutex.Unlock()
	if root.state == StateTornDown {
		return nil, ErrNotFound
	}
	root.inFlight++
	root.lastActivity = time.Now()

	var once sync.Once
	return func() {
		once.Do(func() {
			_ = root.EndRequest()
		})
	}, nil
}

// EndRequest decrements the in-flight count. A release without a
// matching begin is a caller bookkeeping defect: the counter clamps at
// zero and ErrInvariantViolation is returned.
func (root *Root) EndRequest() error {
	if root == nil {
		return ErrNotFound
	}
	root.mutex.Lock()
	if root.inFlight <= 0 {
		root.inFlight = 0
		violation := root.onInvariant
		root.mutex.Unlock()
		if violation != nil {
			violation()
		}
		return ErrInvariantViolation
	}
	root.inFlight--
	root.lastActivity = time.Now()
	root.mutex.Unlock()
	return nil
}

// eligibleLocked evaluates the reap invariant. Callers hold root.mutex.
func (root *Root) eligibleLocked(now time.Time) bool {
	if root.state != StateActive {
		return false
	}
	if !root.cfg.ReapEnabled() {
		return false
	}
	if len(root.triggers) > 0 || len(root.subscriptions) > 0 || root.inFlight > 0 {
		return false
	}
	return now.Sub(root.lastActivity) >= root.cfg.IdleReapAge()
}

// markReapPending transitions Active to ReapPending when the root is
// eligible right now. The eligibility read and the transition share one
// critical section, so a holder attached after the reaper's snapshot is
// always observed.
func (root *Root) markReapPending(now time.Time) bool {
	if root == nil {
		return false
	}
	root.mutex.Lock()
	defer root.mutex.Unlock()
	if !root.eligibleLocked(now) {
		return false
	}
	root.state = StateReapPending
	root.claimDone = make(chan struct{})
	return true
}

// claimForRemoval forces the root out of Active for an explicit
// unwatch, ignoring holders. It fails when another teardown already
// owns the root.
func (root *Root) claimForRemoval() bool {
	if root == nil {
		return false
	}
	root.mutex.Lock()
	defer root.mutex.Unlock()
	if root.state != StateActive {
		return false
	}
	root.state = StateReapPending
	root.claimDone = make(chan struct{})
	return true
}

// commitTeardown performs the final re-validation before a reap
// destroys the root. If the root became live between the eligibility
// check and now, the transition is rolled back.
func (root *Root) commitTeardown(now time.Time, revalidate bool) bool {
	if root == nil {
		return false
	}
	root.mutex.Lock()
	defer root.mutex.Unlock()
	if root.state != StateReapPending {
		return false
	}
	if revalidate {
		live := len(root.triggers) > 0 || len(root.subscriptions) > 0 || root.inFlight > 0
		if live || now.Sub(root.lastActivity) < root.cfg.IdleReapAge() {
			root.state = StateActive
			root.resolveClaimLocked()
			return false
		}
	}
	root.state = StateTornDown
	return true
}

// Status reports a snapshot of the root's liveness state.
func (root *Root) Status() Status {
	if root == nil {
		return Status{}
	}
	root.mutex.Lock()
	defer root.mutex.Unlock()
	now := time.Now()
	return Status{
		Path:               root.path,
		State:              root.state.String(),
		CreatedAt:          root.createdAt,
		LastActivityAt:     root.lastActivity,
		IdleForSeconds:     now.Sub(root.lastActivity).Seconds(),
		Triggers:           len(root.triggers),
		Subscriptions:      len(root.subscriptions),
		InFlight:           root.inFlight,
		IdleReapAgeSeconds: root.cfg.IdleReapAge().Seconds(),
	}
}

// Counts returns the current holder counts.
func (root *Root) Counts() (triggers, subscriptions, inFlight int) {
	if root == nil {
		return 0, 0, 0
	}
	root.mutex.Lock()
	defer root.mutex.Unlock()
	return len(root.triggers), len(root.subscriptions), root.inFlight
}
