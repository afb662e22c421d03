package storage

import (
	"context"
	"fmt"
	"sync"
	"time"
)

// PurgeScheduler runs CacheStore.PurgeExpired on a fixed interval so
// expired rows don't accumulate between lazy evictions.
type PurgeScheduler struct {
	cache        *CacheStore
	config       *PurgeSchedulerConfig
	ticker       *time.Ticker
	stopChan     chan struct{}
	mu           sync.RWMutex
	running      bool
	lastPurge    time.Time
	lastError    error
	purgeCount   int
	failureCount int
	purgeHandler func(removed int64, err error)
}

// PurgeSchedulerConfig holds configuration for the purge scheduler.
type PurgeSchedulerConfig struct {
	// Interval is how often to sweep the cache.
	Interval time.Duration

	// Timeout bounds a single sweep; the sweep must never block live
	// lookups for long.
	Timeout time.Duration

	// StartImmediately runs a sweep as soon as the scheduler starts.
	StartImmediately bool

	// OnPurgeComplete is called after each sweep (success or failure).
	// Optional callback for logging or notifications.
	OnPurgeComplete func(removed int64, err error)
}

// DefaultPurgeSchedulerConfig returns a scheduler config with hourly sweeps.
func DefaultPurgeSchedulerConfig() *PurgeSchedulerConfig {
	return &PurgeSchedulerConfig{
		Interval: time.Hour,
		Timeout:  time.Minute,
	}
}

// NewPurgeScheduler creates a purge scheduler for the given cache store.
func NewPurgeScheduler(cache *CacheStore, config *PurgeSchedulerConfig) *PurgeScheduler {
	if config == nil {
		config = DefaultPurgeSchedulerConfig()
	}

	return &PurgeScheduler{
		cache:        cache,
		config:       config,
		stopChan:     make(chan struct{}),
		purgeHandler: config.OnPurgeComplete,
	}
}

// Start starts the scheduler. Returns an error if already running.
func (s *PurgeScheduler) Start() error {
	s.mu.Lock()
	if s.running {
		s.mu.Unlock()
		return fmt.Errorf("scheduler is already running")
	}

	s.ticker = time.NewTicker(s.config.Interval)
	s.running = true
	ticker := s.ticker // Store reference before unlocking
	s.mu.Unlock()

	if s.config.StartImmediately {
		go s.runPurge()
	}

	go s.run(ticker)

	return nil
}

// Stop stops the scheduler.
func (s *PurgeScheduler) Stop() error {
	s.mu.Lock()
	if !s.running {
		s.mu.Unlock()
		return fmt.Errorf("scheduler is not running")
	}
	s.mu.Unlock()

	close(s.stopChan)

	s.mu.Lock()
	if s.ticker != nil {
		s.ticker.Stop()
		s.ticker = nil
	}
	s.running = false
	s.mu.Unlock()

	// New stop channel for potential restart
	s.stopChan = make(chan struct{})

	return nil
}

// run is the main scheduler loop.
func (s *PurgeScheduler) run(ticker *time.Ticker) {
	for {
		select {
		case <-ticker.C:
			s.runPurge()
		case <-s.stopChan:
			return
		}
	}
}

// runPurge executes one sweep and updates statistics.
func (s *PurgeScheduler) runPurge() {
	ctx, cancel := context.WithTimeout(context.Background(), s.config.Timeout)
	defer cancel()

	removed, err := s.cache.PurgeExpired(ctx, time.Now())

	s.mu.Lock()
	s.lastPurge = time.Now()
	s.lastError = err
	if err != nil {
		s.failureCount++
	} else {
		s.purgeCount++
	}
	s.mu.Unlock()

	if s.purgeHandler != nil {
		s.purgeHandler(removed, err)
	}
}

// TriggerPurge runs an immediate sweep without affecting the schedule.
func (s *PurgeScheduler) TriggerPurge() error {
	s.mu.RLock()
	running := s.running
	s.mu.RUnlock()

	if !running {
		return fmt.Errorf("scheduler is not running")
	}

	go s.runPurge()
	return nil
}

// IsRunning returns whether the scheduler is currently running.
func (s *PurgeScheduler) IsRunning() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.running
}

// Status returns the current scheduler status.
func (s *PurgeScheduler) Status() *PurgeSchedulerStatus {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var nextPurge time.Time
	if s.running && !s.lastPurge.IsZero() {
		nextPurge = s.lastPurge.Add(s.config.Interval)
	}

	return &PurgeSchedulerStatus{
		Running:      s.running,
		Interval:     s.config.Interval,
		LastPurge:    s.lastPurge,
		NextPurge:    nextPurge,
		PurgeCount:   s.purgeCount,
		FailureCount: s.failureCount,
		LastError:    s.lastError,
	}
}

// PurgeSchedulerStatus contains information about the scheduler state.
type PurgeSchedulerStatus struct {
	Running      bool
	Interval     time.Duration
	LastPurge    time.Time
	NextPurge    time.Time
	PurgeCount   int
	FailureCount int
	LastError    error
}
