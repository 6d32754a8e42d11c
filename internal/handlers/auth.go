package handlers

import (
	"errors"
	"net/http"
	"time"

	"github.com/avasiliev/pharmadesk/internal/apperrors"
	"github.com/avasiliev/pharmadesk/internal/handlers/render"
	"github.com/avasiliev/pharmadesk/internal/handlers/userctx"
	"github.com/avasiliev/pharmadesk/internal/logger"
	"github.com/avasiliev/pharmadesk/internal/models"
)

type AuthHandler struct {
	authService authService
	logger      logger.Logger
}

func NewAuth(auth authService, l logger.Logger) *AuthHandler {
	return &AuthHandler{authService: auth, logger: l}
}

// SessionPayload is the session object the SPA stores after login or refresh
type SessionPayload struct {
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token"`
	ExpiresIn    int64  `json:"expires_in"`
	ExpiresAt    int64  `json:"expires_at"`
}

type UserPayload struct {
	ID       string `json:"id"`
	Username string `json:"username"`
	Role     string `json:"role"`
}

func sessionFromPair(pair models.TokenPair) SessionPayload {
	return SessionPayload{
		AccessToken:  pair.Access.Value,
		RefreshToken: pair.Refresh.Value,
		ExpiresIn:    int64(time.Until(pair.Access.ExpiresAt).Round(time.Second).Seconds()),
		ExpiresAt:    pair.Access.ExpiresAt.Unix(),
	}
}

func userPayload(u models.User) UserPayload {
	return UserPayload{ID: u.ID.String(), Username: u.Username, Role: u.Role}
}

func (h *AuthHandler) register(w http.ResponseWriter, r *http.Request) {
	type RegisterRequest struct {
		Username string `json:"username" validate:"required,min=2,max=50"`
		Password string `json:"password" validate:"required,min=8"`
		Role     string `json:"role" validate:"omitempty,oneof=admin pharmacist cashier"`
	}

	data, err := render.BindAndValidate[RegisterRequest](w, r)
	if err != nil {
		return
	}

	user, pair, err := h.authService.Register(r.Context(), data.Username, data.Role, data.Password)
	if err != nil {
		switch {
		case errors.Is(err, apperrors.ErrUserAlreadyExists):
			render.Error(w, "User already exists", http.StatusConflict)
		default:
			h.logger.Error("register failed", "error", err.Error())
			render.Error(w, "Internal server error", http.StatusInternalServerError)
		}
		return
	}

	render.JSONWithStatus(w, map[string]any{
		"session": sessionFromPair(pair),
		"user":    userPayload(user),
	}, http.StatusCreated)
}

func (h *AuthHandler) login(w http.ResponseWriter, r *http.Request) {
	type LoginRequest struct {
		Username   string `json:"username" validate:"required"`
		Password   string `json:"password" validate:"required"`
		RememberMe bool   `json:"remember_me"`
	}

	data, err := render.BindAndValidate[LoginRequest](w, r)
	if err != nil {
		return
	}

	user, pair, err := h.authService.Login(r.Context(), data.Username, data.Password)
	if err != nil {
		switch {
		case errors.Is(err, apperrors.ErrUserNotFound):
			render.Error(w, "Invalid username or password", http.StatusUnauthorized)
		default:
			h.logger.Error("login failed", "error", err.Error())
			render.Error(w, "Internal server error", http.StatusInternalServerError)
		}
		return
	}

	render.JSON(w, map[string]any{
		"session": sessionFromPair(pair),
		"user":    userPayload(user),
	})
}

func (h *AuthHandler) refresh(w http.ResponseWriter, r *http.Request) {
	type RefreshRequest struct {
		RefreshToken string `json:"refresh_token" validate:"required"`
	}

	data, err := render.BindAndValidate[RefreshRequest](w, r)
	if err != nil {
		return
	}

	pair, err := h.authService.Refresh(r.Context(), data.RefreshToken)
	if err != nil {
		switch {
		case errors.Is(err, apperrors.ErrRefreshTokenExpired):
			render.Error(w, "Refresh token expired", http.StatusUnauthorized)
		case errors.Is(err, apperrors.ErrRefreshTokenIsUsed),
			errors.Is(err, apperrors.ErrRefreshTokenNotFound):
			render.Error(w, "Refresh token not found", http.StatusUnauthorized)
		default:
			h.logger.Error("refresh failed", "error", err.Error())
			render.Error(w, "Internal server error", http.StatusInternalServerError)
		}
		return
	}

	render.JSON(w, map[string]any{
		"session": sessionFromPair(pair),
	})
}

func (h *AuthHandler) logout(w http.ResponseWriter, r *http.Request) {
	type LogoutRequest struct {
		RefreshToken string `json:"refresh_token" validate:"required"`
	}

	data, err := render.BindAndValidate[LogoutRequest](w, r)
	if err != nil {
		return
	}

	if err := h.authService.Logout(r.Context(), data.RefreshToken); err != nil {
		h.logger.Error("logout failed", "error", err.Error())
		render.Error(w, "Internal server error", http.StatusInternalServerError)
		return
	}

	render.JSON(w, map[string]any{"message": "Logged out"})
}

func (h *AuthHandler) me(w http.ResponseWriter, r *http.Request) {
	user, ok := userctx.FromContext(r.Context())
	if !ok {
		render.Error(w, "Unauthorized", http.StatusUnauthorized)
		return
	}

	render.JSON(w, map[string]any{"user": userPayload(user)})
}
