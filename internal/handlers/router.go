package handlers

import (
	"context"
	"net/http"

	"github.com/avasiliev/pharmadesk/internal/handlers/middleware"
	"github.com/avasiliev/pharmadesk/internal/logger"
	"github.com/avasiliev/pharmadesk/internal/models"
)

// chain applies middlewares in the given order: m1(m2(...(h)))
func chain(h http.Handler, mds ...func(next http.Handler) http.Handler) http.Handler {
	for i := len(mds) - 1; i >= 0; i-- {
		h = mds[i](h)
	}
	return h
}

type authService interface {
	// Register user, respond with fresh session
	// Has to return apperrors.ErrUserAlreadyExists if user already exists
	Register(ctx context.Context, username string, role string, password string) (models.User, models.TokenPair, error)

	// Login user with username and password
	// Has to return apperrors.ErrUserNotFound if user not found or password wrong
	Login(ctx context.Context, username string, password string) (models.User, models.TokenPair, error)

	// Refresh tokens using refresh token
	// If token expired: has to return apperrors.ErrRefreshTokenExpired
	// If token not found: has to return apperrors.ErrRefreshTokenNotFound
	Refresh(ctx context.Context, refresh string) (models.TokenPair, error)

	// Revoke all refresh tokens of the token owner
	Logout(ctx context.Context, refresh string) error

	// Validate access token and return its owner
	GetUserByAccess(ctx context.Context, access string) (models.User, error)
}

type RouterConfig struct {
	AuthService authService
	Logger      logger.Logger

	// Directory with the pre-built SPA bundle
	StaticDir string

	// Port reported by the health probe
	Port int
}

func NewRouter(c RouterConfig) http.Handler {
	authHandler := NewAuth(c.AuthService, c.Logger)
	withAuth := middleware.Auth(c.AuthService)

	root := http.NewServeMux()

	root.Handle("POST /auth/register", http.HandlerFunc(authHandler.register))
	root.Handle("POST /auth/login", http.HandlerFunc(authHandler.login))
	root.Handle("POST /auth/refresh", http.HandlerFunc(authHandler.refresh))
	root.Handle("POST /auth/logout", http.HandlerFunc(authHandler.logout))
	root.Handle("GET /auth/me", withAuth(http.HandlerFunc(authHandler.me)))

	root.Handle("GET /health", Health(c.Port))

	// Everything else is the dashboard bundle with client side routing
	root.Handle("/", SPA(c.StaticDir))

	return chain(root,
		middleware.Logger(c.Logger),
	)
}
