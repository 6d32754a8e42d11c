package models

import (
	"time"

	"github.com/google/uuid"
)

// RefreshToken is the server side record of one issued refresh token.
// Tokens are single use: UsedAt is set the moment the token is exchanged
type RefreshToken struct {
	ID        uuid.UUID
	UserID    uuid.UUID
	Token     string
	CreatedAt time.Time
	ExpiresAt time.Time

	// nil while the token is still exchangeable
	UsedAt *time.Time
}

// IssuedToken is a token value together with its expiry moment
type IssuedToken struct {
	Value     string
	ExpiresAt time.Time
}

// TokenPair is what login, register and refresh hand to the client
type TokenPair struct {
	Access  IssuedToken
	Refresh IssuedToken
}
