// Package credstore keeps the dashboard session credentials the way the
// browser app keeps them: a flat key-value record in either a persistent
// or a session scoped store, selected by the remember-me flag.
package credstore

import (
	"errors"
)

// Keys used inside a store. One credential record per store at most.
const (
	KeyToken        = "token"
	KeyRefreshToken = "refresh_token"
	KeyExpiresAt    = "expires_at"
	KeyUser         = "user"
	KeyRememberMe   = "remember_me"
	KeyLastActivity = "last_activity"
)

var ErrKeyNotFound = errors.New("key not found")

// Store is flat string key-value persistence
type Store interface {
	// Get returns the value or ErrKeyNotFound
	Get(key string) (string, error)

	// Set overwrites the value atomically, last writer wins
	Set(key string, value string) error

	// Delete removes the key, missing key is not an error
	Delete(key string) error

	// Clear removes every key
	Clear() error
}
