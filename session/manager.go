package session

import (
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/pkg/errors"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/orbitlabs/go-session-client/credstore"
	"github.com/orbitlabs/go-session-client/provider"
)

const (
	defaultOperationTimeout = 30 * time.Second
	defaultRenewalInterval  = time.Minute
	defaultRenewalThreshold = 5 * time.Minute

	// Lifetime cap applied to stored tokens when a login did not ask to be
	// remembered.
	defaultSessionTokenTTL = 12 * time.Hour
)

// Manager is the single owner of session state. Many goroutines may invoke
// its operations concurrently; every state-and-store mutating section runs
// under one mutex, and provider calls happen outside it. A result arriving
// after the session it belonged to ended is discarded (epoch guard).
//
// One Manager exists per process, constructed at the composition root and
// injected wherever session state is needed.
type Manager struct {
	provider provider.CredentialProvider
	store    *credstore.Store
	logger   zerolog.Logger

	mu          sync.Mutex
	state       Session
	epoch       uint64 // bumped whenever the current session ends or is replaced
	subscribers map[uuid.UUID]Subscriber
	renewStop   chan struct{} // non-nil while the renewal loop runs

	nowFunc          func() time.Time
	operationTimeout time.Duration
	renewalInterval  time.Duration
	renewalThreshold time.Duration
	sessionTokenTTL  time.Duration
}

// Option modifies a Manager.
type Option func(*Manager)

// WithNowTime sets the now time function (primarily for testing)
func WithNowTime(nowFunc func() time.Time) Option {
	return func(m *Manager) {
		m.nowFunc = nowFunc
	}
}

// WithLogger replaces the manager's logger.
func WithLogger(logger zerolog.Logger) Option {
	return func(m *Manager) {
		m.logger = logger
	}
}

// WithOperationTimeout bounds every provider call issued by the manager.
func WithOperationTimeout(d time.Duration) Option {
	return func(m *Manager) {
		m.operationTimeout = d
	}
}

// WithRenewal tunes the background renewal loop: how often it wakes and how
// close to expiry a token pair must be before it is refreshed.
func WithRenewal(interval, threshold time.Duration) Option {
	return func(m *Manager) {
		m.renewalInterval = interval
		m.renewalThreshold = threshold
	}
}

// WithSessionTokenTTL sets the lifetime cap for logins without rememberMe.
func WithSessionTokenTTL(d time.Duration) Option {
	return func(m *Manager) {
		m.sessionTokenTTL = d
	}
}

// New creates a session manager over the given provider and store.
func New(p provider.CredentialProvider, store *credstore.Store, options ...Option) (*Manager, error) {
	if p == nil {
		return nil, errors.New("[session.New] credential provider is required")
	}
	if store == nil {
		return nil, errors.New("[session.New] credential store is required")
	}

	m := &Manager{
		provider:         p,
		store:            store,
		logger:           log.Logger,
		subscribers:      make(map[uuid.UUID]Subscriber),
		nowFunc:          time.Now,
		operationTimeout: defaultOperationTimeout,
		renewalInterval:  defaultRenewalInterval,
		renewalThreshold: defaultRenewalThreshold,
		sessionTokenTTL:  defaultSessionTokenTTL,
	}
	for _, opt := range options {
		opt(m)
	}
	return m, nil
}

// State returns a snapshot of the current session.
func (m *Manager) State() Session {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state.clone()
}

// Subscribe registers a callback invoked with a snapshot after every state
// change. The returned function unsubscribes it. Callbacks run outside the
// manager's lock and may call back into the manager.
func (m *Manager) Subscribe(fn Subscriber) (uuid.UUID, func()) {
	id := uuid.New()

	m.mu.Lock()
	m.subscribers[id] = fn
	m.mu.Unlock()

	return id, func() {
		m.mu.Lock()
		delete(m.subscribers, id)
		m.mu.Unlock()
	}
}

// ClearError resets LastError with no other side effect, so a stale error
// does not linger into a retried operation.
func (m *Manager) ClearError() {
	m.mu.Lock()
	m.state.LastError = ""
	snapshot, subs := m.snapshotLocked()
	m.mu.Unlock()
	publish(snapshot, subs)
}

// Close stops the background renewal loop. The manager is not usable
// afterwards.
func (m *Manager) Close() {
	m.mu.Lock()
	m.stopRenewalLocked()
	m.mu.Unlock()
}

// snapshotLocked captures the state and subscriber list for publication.
// Must be called with mu held; the callbacks themselves are invoked after
// the lock is released so they can re-enter the manager.
func (m *Manager) snapshotLocked() (Session, []Subscriber) {
	subs := make([]Subscriber, 0, len(m.subscribers))
	for _, fn := range m.subscribers {
		subs = append(subs, fn)
	}
	return m.state.clone(), subs
}

func publish(snapshot Session, subs []Subscriber) {
	for _, fn := range subs {
		fn(snapshot)
	}
}
