// Package sessionguard ends the dashboard session after a fixed window of
// user inactivity, without any server round trip.
package sessionguard

import (
	"errors"
	"sync"
	"time"

	"github.com/avasiliev/pharmadesk/internal/logger"
)

const (
	defaultTimeout       = 4 * time.Hour
	defaultCheckInterval = time.Minute
)

// activityStore persists the last-activity timestamp between restarts
type activityStore interface {
	SetLastActivity(unixMilli int64) error
	LastActivity() (int64, error)
	ClearLastActivity() error
}

type Config struct {
	// Inactivity window, defaults to 4 hours
	Timeout time.Duration

	// How often the window is checked, defaults to 1 minute
	CheckInterval time.Duration

	Store  activityStore
	Logger logger.Logger

	// Clock override for tests
	Now func() time.Time
}

// Guard watches the activity timestamp and fires the inactivity callback
// exactly once when the window is breached
type Guard struct {
	timeout       time.Duration
	checkInterval time.Duration
	store         activityStore
	logger        logger.Logger
	now           func() time.Time

	mu           sync.Mutex
	initialized  bool
	onInactivity func()
	stop         chan struct{}
}

func New(cfg Config) (*Guard, error) {
	if cfg.Store == nil {
		return nil, errors.New("activity store must not be nil")
	}
	if cfg.Timeout == 0 {
		cfg.Timeout = defaultTimeout
	}
	if cfg.CheckInterval == 0 {
		cfg.CheckInterval = defaultCheckInterval
	}
	if cfg.Logger == nil {
		cfg.Logger = logger.NewNoOpLogger()
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}

	return &Guard{
		timeout:       cfg.Timeout,
		checkInterval: cfg.CheckInterval,
		store:         cfg.Store,
		logger:        cfg.Logger,
		now:           cfg.Now,
	}, nil
}

// Initialize records the current moment as activity and starts the periodic
// check. Calling it again while running is a no-op
func (g *Guard) Initialize(onInactivity func()) {
	g.mu.Lock()
	if g.initialized {
		g.mu.Unlock()
		g.logger.Warn("session guard already initialized, ignoring")
		return
	}

	g.initialized = true
	g.onInactivity = onInactivity
	g.stop = make(chan struct{})
	stop := g.stop
	g.mu.Unlock()

	g.RecordEvent()

	go g.loop(stop)
}

func (g *Guard) loop(stop chan struct{}) {
	ticker := time.NewTicker(g.checkInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			g.check()
		case <-stop:
			return
		}
	}
}

// Cleanup stops the periodic check and forgets the callback. Safe to call twice
func (g *Guard) Cleanup() {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.cleanupLocked()
}

func (g *Guard) cleanupLocked() {
	if !g.initialized {
		return
	}

	g.initialized = false
	g.onInactivity = nil
	close(g.stop)
	g.stop = nil
}

// RecordEvent moves the activity timestamp forward to now.
// The platform layer calls it from whatever input events it sees:
// pointer, keyboard, touch, scroll, focus, visibility
func (g *Guard) RecordEvent() {
	now := g.now().UnixMilli()

	// Timestamp may only move forward
	if last, err := g.store.LastActivity(); err == nil && last >= now {
		return
	}

	if err := g.store.SetLastActivity(now); err != nil {
		g.logger.Warn("failed to record activity", "error", err.Error())
	}
}

// Wake re-checks immediately. Call it when the tab regains visibility so a
// backgrounded session does not linger until the next tick
func (g *Guard) Wake() {
	g.check()
}

// GetRemainingTime returns how much of the inactivity window is left
func (g *Guard) GetRemainingTime() time.Duration {
	last, err := g.store.LastActivity()
	if err != nil {
		// Unreadable storage degrades to "active right now", never to a logout
		return g.timeout
	}

	elapsed := g.now().Sub(time.UnixMilli(last))
	if remaining := g.timeout - elapsed; remaining > 0 {
		return remaining
	}
	return 0
}

// IsInactive reports whether the window is fully elapsed
func (g *Guard) IsInactive() bool {
	return g.GetRemainingTime() == 0
}

// ClearActivity removes the timestamp from storage
func (g *Guard) ClearActivity() {
	if err := g.store.ClearLastActivity(); err != nil {
		g.logger.Warn("failed to clear activity", "error", err.Error())
	}
}

// check fires the callback and shuts the guard down on breach
func (g *Guard) check() {
	g.mu.Lock()
	if !g.initialized {
		g.mu.Unlock()
		return
	}

	if !g.IsInactive() {
		g.mu.Unlock()
		return
	}

	// Grab the callback and clean up first so it can fire at most once
	callback := g.onInactivity
	g.cleanupLocked()
	g.mu.Unlock()

	g.logger.Info("session idle timeout reached, logging out")
	if callback != nil {
		callback()
	}
}
