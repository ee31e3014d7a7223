package race

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/slotrace/rms/internal/monitoring"
	"github.com/slotrace/rms/internal/timeutil"
)

// ManagerConfig configures the sessions a Manager creates.
type ManagerConfig struct {
	Clock timeutil.Clock
	Tick  time.Duration
	Masks ModeMasks
	// EventBuffer is the per-subscriber event queue length.
	EventBuffer int
}

// Manager owns the single active session. Replacing the session stops and
// waits for the previous one, so two sessions never drive the same control
// unit. Event subscriptions outlive individual sessions.
type Manager struct {
	cfg        ManagerConfig
	identities *IdentityCache
	order      atomic.Value

	mu      sync.Mutex
	unit    ControlUnit
	opts    RaceOptions
	current *Session

	subsMu sync.Mutex
	subs   map[string]chan Event
}

// NewManager returns a Manager with no active session.
func NewManager(cfg ManagerConfig) *Manager {
	if cfg.Clock == nil {
		cfg.Clock = timeutil.RealClock{}
	}
	if cfg.EventBuffer <= 0 {
		cfg.EventBuffer = 64
	}
	m := &Manager{
		cfg:        cfg,
		identities: &IdentityCache{},
		subs:       make(map[string]chan Event),
	}
	m.order.Store(OrderPosition)
	return m
}

// Identities returns the identity cache shared by all sessions.
func (m *Manager) Identities() *IdentityCache {
	return m.identities
}

// RefreshIdentities resolves drivers in the background.
func (m *Manager) RefreshIdentities(ctx context.Context, drivers []Driver, tr Translator) <-chan struct{} {
	return m.identities.Refresh(ctx, drivers, MaxLanes, tr)
}

// SetOrder selects how leaderboards are arranged.
func (m *Manager) SetOrder(o Order) {
	m.order.Store(o)
}

// Order returns the current leaderboard order.
func (m *Manager) Order() Order {
	return m.order.Load().(Order)
}

// Attach starts a new session on unit, replacing any active session.
func (m *Manager) Attach(unit ControlUnit, opts RaceOptions) (*Session, error) {
	if unit == nil {
		return nil, errors.New("race: nil control unit")
	}
	if err := opts.Validate(); err != nil {
		return nil, err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if m.current != nil {
		m.current.Close()
		m.current = nil
	}

	s, err := NewSession(unit, opts, SessionConfig{
		Clock:      m.cfg.Clock,
		Tick:       m.cfg.Tick,
		Masks:      m.cfg.Masks,
		Identities: m.identities,
		Publish:    m.publish,
		Order:      m.Order,
	})
	if err != nil {
		return nil, err
	}
	m.unit, m.opts, m.current = unit, opts, s
	monitoring.Logf("race: %s session attached", opts.Mode)
	return s, nil
}

// Restart replaces the active session with a fresh one using the same
// control unit and options.
func (m *Manager) Restart() (*Session, error) {
	m.mu.Lock()
	unit, opts := m.unit, m.opts
	m.mu.Unlock()
	if unit == nil {
		return nil, ErrSessionStopped
	}
	return m.Attach(unit, opts)
}

// Detach stops the active session, if any.
func (m *Manager) Detach() {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.current != nil {
		m.current.Close()
		m.current = nil
	}
	m.unit = nil
}

// Current returns the active session or nil.
func (m *Manager) Current() *Session {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.current
}

// Subscribe returns a channel receiving events from every session until
// Unsubscribe is called. Events are dropped for subscribers that fall
// behind.
func (m *Manager) Subscribe() (string, <-chan Event) {
	id := uuid.NewString()
	ch := make(chan Event, m.cfg.EventBuffer)
	m.subsMu.Lock()
	m.subs[id] = ch
	m.subsMu.Unlock()
	return id, ch
}

// Unsubscribe closes and removes a subscription.
func (m *Manager) Unsubscribe(id string) {
	m.subsMu.Lock()
	defer m.subsMu.Unlock()
	if ch, ok := m.subs[id]; ok {
		close(ch)
		delete(m.subs, id)
	}
}

func (m *Manager) publish(ev Event) {
	m.subsMu.Lock()
	defer m.subsMu.Unlock()
	for id, ch := range m.subs {
		select {
		case ch <- ev:
		default:
			monitoring.Logf("race: subscriber %s is behind, dropping %s event", id, ev.Kind)
		}
	}
}
