package repository

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/avasiliev/pharmadesk/internal/models"
)

// User repository interface
type UserRepo interface {
	// Create user
	// If user with username exists already has to return error apperrors.ErrUserAlreadyExists
	CreateUser(ctx context.Context, username string, role string, hashedPassword string) (models.User, error)

	// Get user by it's id or username
	// If user not found must return apperrors.ErrUserNotFound
	GetUserByID(ctx context.Context, userID uuid.UUID) (models.User, error)
	GetUserByUsername(ctx context.Context, username string) (models.User, error)
}

// RefreshToken repository interface
type RefreshTokenRepo interface {
	// Save token in repository
	Save(ctx context.Context, token models.RefreshToken) error

	// Return the token if it exists in the database
	// It should return result even if the token expired or used already
	Get(ctx context.Context, tokenString string) (models.RefreshToken, error)

	// Mark token as used and return it
	// If the token is already used, must not overwrite the existing 'usedAt'
	// and must return apperrors.ErrRefreshTokenIsUsed
	GetAndMarkUsed(ctx context.Context, tokenString string) (models.RefreshToken, error)

	// Mark every active token of the user as used (logout everywhere)
	RevokeUserTokens(ctx context.Context, userID uuid.UUID, at time.Time) error
}

// Storage combines repositories over one connection or transaction
type Storage interface {
	User() UserRepo
	Refresh() RefreshTokenRepo

	InTx(ctx context.Context, fn func(Storage) error) error
}
