// Package session owns the one exit path of an authenticated session. Every
// irrecoverable auth failure and the inactivity timeout funnel through the
// same Terminate routine so cleanup can not diverge between triggers.
package session

import (
	"github.com/avasiliev/pharmadesk/internal/logger"
)

// LoginPath is where a terminated session lands
const LoginPath = "/login"

type guard interface {
	Cleanup()
	ClearActivity()
}

type credentialStore interface {
	ClearCredentials() error
}

// Navigator abstracts the routing surface of the shell hosting the client
type Navigator interface {
	// Current returns the path currently shown
	Current() string
	// Navigate replaces the current path
	Navigate(path string)
}

type Terminator struct {
	guard     guard
	store     credentialStore
	navigator Navigator
	logger    logger.Logger
}

func NewTerminator(guard guard, store credentialStore, navigator Navigator, log logger.Logger) *Terminator {
	if log == nil {
		log = logger.NewNoOpLogger()
	}
	return &Terminator{
		guard:     guard,
		store:     store,
		navigator: navigator,
		logger:    log,
	}
}

// Terminate ends the session: stops inactivity tracking, wipes stored
// credentials and activity, and sends the user to the login screen. Safe to
// call when the session is already gone, repeated calls are no-ops in effect.
func (t *Terminator) Terminate() {
	if t.guard != nil {
		t.guard.Cleanup()
		t.guard.ClearActivity()
	}

	if t.store != nil {
		if err := t.store.ClearCredentials(); err != nil {
			t.logger.Warn("failed to clear credentials", "error", err.Error())
		}
	}

	if t.navigator != nil && t.navigator.Current() != LoginPath {
		t.navigator.Navigate(LoginPath)
	}

	t.logger.Info("session terminated")
}
