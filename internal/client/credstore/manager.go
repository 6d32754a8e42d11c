package credstore

import (
	"errors"
	"strconv"

	"github.com/avasiliev/pharmadesk/internal/apperrors"
)

// Credentials is the stored session record
type Credentials struct {
	AccessToken  string
	RefreshToken string

	// Access token expiry, epoch seconds. Zero when the server never told us
	ExpiresAt int64

	// Serialized user payload, opaque to the store
	User string
}

// Manager picks the active store from the persisted remember-me flag.
//
// The flag itself always lives in the persistent store so the selection
// survives restarts, even for session-mode users. That coupling is how the
// dashboard always behaved and is kept on purpose.
type Manager struct {
	persistent Store
	session    Store
}

func NewManager(persistent Store, session Store) *Manager {
	return &Manager{persistent: persistent, session: session}
}

// RememberMe reports the persisted flag. Missing or unreadable means false
func (m *Manager) RememberMe() bool {
	value, err := m.persistent.Get(KeyRememberMe)
	if err != nil {
		return false
	}
	remember, err := strconv.ParseBool(value)
	if err != nil {
		return false
	}
	return remember
}

// active resolves which store currently holds the credential record
func (m *Manager) active() Store {
	if m.RememberMe() {
		return m.persistent
	}
	return m.session
}

// SaveCredentials overwrites the record in the store selected by rememberMe
// and removes any stale copy from the other store
func (m *Manager) SaveCredentials(c Credentials, rememberMe bool) error {
	if err := m.persistent.Set(KeyRememberMe, strconv.FormatBool(rememberMe)); err != nil {
		return err
	}

	target, other := m.session, m.persistent
	if rememberMe {
		target, other = m.persistent, m.session
	}

	for _, key := range []string{KeyToken, KeyRefreshToken, KeyExpiresAt, KeyUser} {
		if err := other.Delete(key); err != nil {
			return err
		}
	}

	if err := target.Set(KeyToken, c.AccessToken); err != nil {
		return err
	}
	if err := target.Set(KeyRefreshToken, c.RefreshToken); err != nil {
		return err
	}
	if err := target.Set(KeyExpiresAt, strconv.FormatInt(c.ExpiresAt, 10)); err != nil {
		return err
	}
	return target.Set(KeyUser, c.User)
}

// UpdateTokens rewrites only the token part of the record after a refresh,
// keeping the user payload and the store selection as they are
func (m *Manager) UpdateTokens(accessToken string, refreshToken string, expiresAt int64) error {
	store := m.active()

	if err := store.Set(KeyToken, accessToken); err != nil {
		return err
	}
	if err := store.Set(KeyRefreshToken, refreshToken); err != nil {
		return err
	}
	return store.Set(KeyExpiresAt, strconv.FormatInt(expiresAt, 10))
}

// Credentials loads the active record
// Returns apperrors.ErrCredentialsNotFound when no token is stored
func (m *Manager) Credentials() (Credentials, error) {
	store := m.active()

	token, err := store.Get(KeyToken)
	if err != nil {
		if errors.Is(err, ErrKeyNotFound) {
			return Credentials{}, apperrors.ErrCredentialsNotFound
		}
		return Credentials{}, err
	}

	c := Credentials{AccessToken: token}
	if refresh, err := store.Get(KeyRefreshToken); err == nil {
		c.RefreshToken = refresh
	}
	if raw, err := store.Get(KeyExpiresAt); err == nil {
		if parsed, err := strconv.ParseInt(raw, 10, 64); err == nil {
			c.ExpiresAt = parsed
		}
	}
	if user, err := store.Get(KeyUser); err == nil {
		c.User = user
	}

	return c, nil
}

// AccessToken is a shortcut for the common request path
func (m *Manager) AccessToken() (string, error) {
	token, err := m.active().Get(KeyToken)
	if err != nil {
		if errors.Is(err, ErrKeyNotFound) {
			return "", apperrors.ErrCredentialsNotFound
		}
		return "", err
	}
	return token, nil
}

// RefreshToken returns the stored refresh token
func (m *Manager) RefreshToken() (string, error) {
	token, err := m.active().Get(KeyRefreshToken)
	if err != nil {
		if errors.Is(err, ErrKeyNotFound) {
			return "", apperrors.ErrCredentialsNotFound
		}
		return "", err
	}
	return token, nil
}

// ClearCredentials wipes the record from both stores, defensively:
// a stale copy may survive a remember-me switch. The flag itself stays
func (m *Manager) ClearCredentials() error {
	var firstErr error
	for _, store := range []Store{m.persistent, m.session} {
		for _, key := range []string{KeyToken, KeyRefreshToken, KeyExpiresAt, KeyUser} {
			if err := store.Delete(key); err != nil && firstErr == nil {
				firstErr = err
			}
		}
	}
	return firstErr
}

// SetLastActivity writes the activity timestamp (epoch milliseconds) to the active store
func (m *Manager) SetLastActivity(unixMilli int64) error {
	return m.active().Set(KeyLastActivity, strconv.FormatInt(unixMilli, 10))
}

// LastActivity reads the activity timestamp from the active store
func (m *Manager) LastActivity() (int64, error) {
	raw, err := m.active().Get(KeyLastActivity)
	if err != nil {
		return 0, err
	}
	return strconv.ParseInt(raw, 10, 64)
}

// ClearLastActivity removes the timestamp from both stores
func (m *Manager) ClearLastActivity() error {
	var firstErr error
	for _, store := range []Store{m.persistent, m.session} {
		if err := store.Delete(KeyLastActivity); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}
