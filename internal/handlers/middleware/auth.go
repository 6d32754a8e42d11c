package middleware

import (
	"context"
	"net/http"
	"strings"

	"github.com/avasiliev/pharmadesk/internal/handlers/render"
	"github.com/avasiliev/pharmadesk/internal/handlers/userctx"
	"github.com/avasiliev/pharmadesk/internal/models"
)

// Messages the SPA client keys on to decide whether a 401 is worth a token refresh.
// Change them and every deployed bundle stops refreshing, so don't.
const (
	MsgNoToken          = "No token provided"
	MsgInvalidOrExpired = "Invalid or expired token"
)

type authService interface {
	GetUserByAccess(ctx context.Context, access string) (models.User, error)
}

// Auth validates the bearer access token and puts its owner into the request context
func Auth(as authService) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			header := r.Header.Get("Authorization")
			token, found := strings.CutPrefix(header, "Bearer ")
			if !found || token == "" {
				render.Error(w, MsgNoToken, http.StatusUnauthorized)
				return
			}

			user, err := as.GetUserByAccess(r.Context(), token)
			if err != nil {
				render.Error(w, MsgInvalidOrExpired, http.StatusUnauthorized)
				return
			}

			ctx := userctx.New(r.Context(), user)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}
