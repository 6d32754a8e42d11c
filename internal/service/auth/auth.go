package auth

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/avasiliev/pharmadesk/internal/apperrors"
	"github.com/avasiliev/pharmadesk/internal/models"
	"github.com/avasiliev/pharmadesk/internal/repository"
	"github.com/avasiliev/pharmadesk/internal/service/auth/tokenmanager"
)

// Interface to create or compare user password hashes
type PasswordHasher interface {
	// Generate Hash from password
	Hash(password string) (string, error)

	// Compare known hashedPassword and user provided password
	// Must be protected against timing attacks
	Compare(hashedPassword string, password string) error
}

type Config struct {
	// Hasher to use during user registration or login
	// DefaultHasher is used when nil
	Hasher PasswordHasher
}

// Auth service: the server side of the dashboard session lifecycle
type AuthService struct {
	// Manager to issue token pairs (access and refresh)
	tokens *tokenmanager.TokenManager

	// hasher to hash or compare user passwords
	hasher PasswordHasher

	// Repositories for long term data
	userRepo    repository.UserRepo
	refreshRepo repository.RefreshTokenRepo
}

func NewService(cfg Config, tokens *tokenmanager.TokenManager, userRepo repository.UserRepo, refreshRepo repository.RefreshTokenRepo) (*AuthService, error) {
	hasher := cfg.Hasher
	if hasher == nil {
		hasher = DefaultHasher
	}

	if tokens == nil || userRepo == nil || refreshRepo == nil {
		return nil, errors.New("token manager and repos must not be nil")
	}

	return &AuthService{
		tokens:      tokens,
		hasher:      hasher,
		userRepo:    userRepo,
		refreshRepo: refreshRepo,
	}, nil
}

// AccessTTL reports the access token lifetime of the underlying manager
func (s *AuthService) AccessTTL() time.Duration {
	return s.tokens.AccessTTL()
}

func (s *AuthService) Register(ctx context.Context, username string, role string, password string) (models.User, models.TokenPair, error) {
	hash, err := s.hasher.Hash(password)
	if err != nil {
		return models.User{}, models.TokenPair{}, fmt.Errorf("can't use this as password, error=%w", err)
	}

	if role == "" {
		role = models.RoleCashier
	}

	user, err := s.userRepo.CreateUser(ctx, username, role, hash)
	if err != nil {
		return models.User{}, models.TokenPair{}, err
	}

	pair, err := s.tokens.GeneratePair(ctx, user)
	if err != nil {
		return models.User{}, models.TokenPair{}, fmt.Errorf("token could not generated, sorry. %w", err)
	}

	return user, pair, nil
}

func (s *AuthService) Login(ctx context.Context, username string, password string) (models.User, models.TokenPair, error) {
	user, err := s.userRepo.GetUserByUsername(ctx, username)
	if err != nil {
		// Hash anyway so response time does not leak whether the user exists
		_, _ = s.hasher.Hash(password)
		return models.User{}, models.TokenPair{}, apperrors.ErrUserNotFound
	}

	if err := s.hasher.Compare(user.HashedPassword, password); err != nil {
		return models.User{}, models.TokenPair{}, apperrors.ErrUserNotFound
	}

	pair, err := s.tokens.GeneratePair(ctx, user)
	if err != nil {
		return models.User{}, models.TokenPair{}, fmt.Errorf("token could not generated, sorry. %w", err)
	}

	return user, pair, nil
}

// Refresh rotates the pair: marks the presented refresh token used
// and issues a fresh one for the same user
func (s *AuthService) Refresh(ctx context.Context, refresh string) (models.TokenPair, error) {
	token, err := s.tokens.UseRefresh(ctx, refresh)
	if err != nil {
		return models.TokenPair{}, err
	}

	user, err := s.userRepo.GetUserByID(ctx, token.UserID)
	if err != nil {
		return models.TokenPair{}, fmt.Errorf("refresh token owner not found. Err: %w", err)
	}

	pair, err := s.tokens.GeneratePair(ctx, user)
	if err != nil {
		return models.TokenPair{}, fmt.Errorf("token could not generated, sorry. %w", err)
	}

	return pair, nil
}

// Logout revokes every active refresh token of the token's owner
// Unknown tokens are not an error: logout must be idempotent
func (s *AuthService) Logout(ctx context.Context, refresh string) error {
	token, err := s.refreshRepo.Get(ctx, refresh)
	if err != nil {
		if errors.Is(err, apperrors.ErrRefreshTokenNotFound) {
			return nil
		}
		return err
	}

	return s.refreshRepo.RevokeUserTokens(ctx, token.UserID, time.Now())
}

// GetUserByAccess validates the access token and loads its owner
func (s *AuthService) GetUserByAccess(ctx context.Context, access string) (models.User, error) {
	claims, err := s.tokens.ParseAccess(ctx, access)
	if err != nil {
		return models.User{}, err
	}

	return s.userRepo.GetUserByID(ctx, claims.UserID)
}
