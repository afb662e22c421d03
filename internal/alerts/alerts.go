// Package alerts watches usage for burst abuse and notifies registered
// sinks. At most one alert is emitted per user per cooldown window,
// however many times the threshold is crossed inside it.
package alerts

import (
	"context"
	"log"
	"sync"
	"time"

	"github.com/jimsug/mtg-signal-bot/internal/storage"
)

// Default policy: more than 20 lookups in 5 minutes raises an alert,
// re-armed after 30 minutes of quiet.
const (
	DefaultThreshold = storage.DefaultSuspiciousThreshold
	DefaultWindow    = storage.DefaultSuspiciousWindow
	DefaultCooldown  = 30 * time.Minute
)

// Alert describes one threshold crossing.
type Alert struct {
	UserID      string
	RecentCount int
	Window      time.Duration
	At          time.Time
}

// Sink receives alerts. Implementations must be safe for concurrent use.
type Sink interface {
	// Notify delivers one alert. Errors are logged by the manager and
	// never suppress delivery to other sinks.
	Notify(ctx context.Context, alert Alert) error

	// Name identifies the sink in logs.
	Name() string
}

// Manager evaluates the abuse threshold after each recorded lookup and
// fans alerts out to its sinks.
type Manager struct {
	usage     *storage.UsageStore
	threshold int
	window    time.Duration
	cooldown  time.Duration

	sinksMu sync.RWMutex
	sinks   []Sink

	// mu guards lastAlert and userLocks.
	mu        sync.Mutex
	lastAlert map[string]time.Time
	userLocks map[string]*sync.Mutex

	now func() time.Time
}

// NewManager creates an alert manager with the default policy.
func NewManager(usage *storage.UsageStore) *Manager {
	return &Manager{
		usage:     usage,
		threshold: DefaultThreshold,
		window:    DefaultWindow,
		cooldown:  DefaultCooldown,
		lastAlert: make(map[string]time.Time),
		userLocks: make(map[string]*sync.Mutex),
		now:       time.Now,
	}
}

// SetPolicy overrides the threshold, window and cooldown. Zero values
// keep the current setting.
func (m *Manager) SetPolicy(threshold int, window, cooldown time.Duration) {
	if threshold > 0 {
		m.threshold = threshold
	}
	if window > 0 {
		m.window = window
	}
	if cooldown > 0 {
		m.cooldown = cooldown
	}
}

// Register adds a sink. Safe to call while checks are in flight.
func (m *Manager) Register(sink Sink) {
	m.sinksMu.Lock()
	defer m.sinksMu.Unlock()
	m.sinks = append(m.sinks, sink)
}

// Check evaluates the threshold for a user after a lookup was recorded.
// The check-then-set on the user's alarm state is atomic per user, so
// concurrent messages from one user cannot double-alert.
func (m *Manager) Check(ctx context.Context, userID string) error {
	lock := m.userLock(userID)
	lock.Lock()
	defer lock.Unlock()

	now := m.now()

	m.mu.Lock()
	last, alerted := m.lastAlert[userID]
	m.mu.Unlock()
	if alerted && now.Sub(last) < m.cooldown {
		return nil
	}

	count, err := m.usage.RecentCount(ctx, userID, m.window, now)
	if err != nil {
		return err
	}
	if count <= m.threshold {
		return nil
	}

	m.mu.Lock()
	m.lastAlert[userID] = now
	m.mu.Unlock()

	m.dispatch(ctx, Alert{
		UserID:      userID,
		RecentCount: count,
		Window:      m.window,
		At:          now,
	})
	return nil
}

// dispatch notifies every sink; a failing sink is logged and skipped.
func (m *Manager) dispatch(ctx context.Context, alert Alert) {
	m.sinksMu.RLock()
	sinks := make([]Sink, len(m.sinks))
	copy(sinks, m.sinks)
	m.sinksMu.RUnlock()

	log.Printf("[Alerts] user %s made %d lookups in the last %s",
		alert.UserID, alert.RecentCount, alert.Window)

	for _, sink := range sinks {
		if err := sink.Notify(ctx, alert); err != nil {
			log.Printf("[Alerts] sink %s failed: %v", sink.Name(), err)
		}
	}
}

// userLock returns the per-user serialization lock.
func (m *Manager) userLock(userID string) *sync.Mutex {
	m.mu.Lock()
	defer m.mu.Unlock()
	lock, ok := m.userLocks[userID]
	if !ok {
		lock = &sync.Mutex{}
		m.userLocks[userID] = lock
	}
	return lock
}
