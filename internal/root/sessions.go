package root

import "sync"

// Sessions tracks which client holds which subscriptions so that a
// disconnect, orderly or abrupt, releases every subscription that
// client held exactly once.
type Sessions struct {
	mutex    sync.Mutex
	registry *Registry
	owners   map[string]subscriptionRef            // subscription ID -> owner
	byClient map[string]map[string]subscriptionRef // client ID -> subscription ID -> ref
}

type subscriptionRef struct {
	clientID string
	path     string
}

// NewSessions creates a session table over the registry.
func NewSessions(registry *Registry) *Sessions {
	return &Sessions{
		registry: registry,
		owners:   make(map[string]subscriptionRef),
		byClient: make(map[string]map[string]subscriptionRef),
	}
}

// Subscribe registers a subscription on the root for path and records
// the owning client.
func (sessions *Sessions) Subscribe(clientID, path, name string) (*Subscription, error) {
	if sessions == nil || sessions.registry == nil {
		return nil, ErrNotFound
	}
	found, ok := sessions.registry.Lookup(path)
	if !ok {
		return nil, ErrNotFound
	}
	release, err := found.BeginRequest()
	if err != nil {
		return nil, err
	}
	defer release()
	sub, err := found.Subscribe(clientID, name)
	if err != nil {
		return nil, err
	}

	ref := subscriptionRef{clientID: clientID, path: found.Path()}
	sessions.mutex.Lock()
	sessions.owners[sub.ID] = ref
	held := sessions.byClient[clientID]
	if held == nil {
		held = make(map[string]subscriptionRef)
		sessions.byClient[clientID] = held
	}
	held[sub.ID] = ref
	sessions.mutex.Unlock()

	return sub, nil
}

// Unsubscribe releases a subscription by ID. Whoever removes the
// session record performs the root-side release, so an explicit
// unsubscribe racing a disconnect releases the subscription once.
func (sessions *Sessions) Unsubscribe(subscriptionID string) error {
	if sessions == nil {
		return ErrNotFound
	}
	sessions.mutex.Lock()
	ref, ok := sessions.owners[subscriptionID]
	if ok {
		sessions.forgetLocked(subscriptionID, ref)
	}
	sessions.mutex.Unlock()

	if !ok {
		return ErrNotFound
	}
	return sessions.release(ref.path, subscriptionID)
}

// Disconnect releases every subscription held by a client, treated as
// an implicit unsubscribe on abrupt disconnect.
func (sessions *Sessions) Disconnect(clientID string) {
	if sessions == nil {
		return
	}
	sessions.mutex.Lock()
	held := sessions.byClient[clientID]
	delete(sessions.byClient, clientID)
	refs := make(map[string]subscriptionRef, len(held))
	for subscriptionID, ref := range held {
		delete(sessions.owners, subscriptionID)
		refs[subscriptionID] = ref
	}
	sessions.mutex.Unlock()

	for subscriptionID, ref := range refs {
		// the root may already be torn down; that is a normal negative
		_ = sessions.release(ref.path, subscriptionID)
	}
}

// Held reports how many subscriptions a client currently holds.
func (sessions *Sessions) Held(clientID string) int {
	if sessions == nil {
		return 0
	}
	sessions.mutex.Lock()
	defer sessions.mutex.Unlock()
	return len(sessions.byClient[clientID])
}

func (sessions *Sessions) forgetLocked(subscriptionID string, ref subscriptionRef) {
	delete(sessions.owners, subscriptionID)
	if held := sessions.byClient[ref.clientID]; held != nil {
		delete(held, subscriptionID)
		if len(held) == 0 {
			delete(sessions.byClient, ref.clientID)
		}
	}
}

func (sessions *Sessions) release(path, subscriptionID string) error {
	found, ok := sessions.registry.Lookup(path)
	if !ok {
		return ErrNotFound
	}
	release, err := found.BeginRequest()
	if err != nil {
		return err
	}
	defer release()
	return found.Unsubscribe(subscriptionID)
}
