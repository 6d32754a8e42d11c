package middleware

import (
	"context"
	"errors"
	"testing"

	"io"
	"net/http"
	"net/http/httptest"

	"github.com/stretchr/testify/require"

	"github.com/avasiliev/pharmadesk/internal/handlers/userctx"
	"github.com/avasiliev/pharmadesk/internal/models"
)

// Allow to use a function as auth service
type authFunc func(ctx context.Context, access string) (models.User, error)

func (f authFunc) GetUserByAccess(ctx context.Context, access string) (models.User, error) {
	return f(ctx, access)
}

func TestAuthMiddleware(t *testing.T) {
	// Simple handler that try to get user from context
	// If ok write it username to response
	handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		// Must always be true cause middleware has to set user or write error itself
		user, ok := userctx.FromContext(r.Context())
		require.True(t, ok)

		w.WriteHeader(http.StatusOK)
		_, err := w.Write([]byte(user.Username))
		require.NoError(t, err, "should write username to response")
	})

	get := func(t *testing.T, url string, token string) (*http.Response, string) {
		req, err := http.NewRequest(http.MethodGet, url+"/test", nil)
		require.NoError(t, err)
		if token != "" {
			req.Header.Set("Authorization", "Bearer "+token)
		}

		resp, err := http.DefaultClient.Do(req)
		require.NoError(t, err, "should make request to test server")
		body, err := io.ReadAll(resp.Body)
		require.NoError(t, err, "should read response body")
		defer resp.Body.Close() // nolint:errcheck

		return resp, string(body)
	}

	t.Run("auth ok", func(t *testing.T) {
		middleware := Auth(authFunc(func(ctx context.Context, access string) (models.User, error) {
			require.Equal(t, "valid-access-token", access, "middleware should pass the bearer token value")
			return models.User{Username: "test-user"}, nil
		}))

		srv := httptest.NewServer(middleware(handler))
		defer srv.Close()

		resp, body := get(t, srv.URL, "valid-access-token")

		require.Equal(t, http.StatusOK, resp.StatusCode)
		require.Equal(t, "test-user", body)
	})

	t.Run("no token", func(t *testing.T) {
		middleware := Auth(authFunc(func(ctx context.Context, access string) (models.User, error) {
			t.Fatal("auth service must not be called when no token provided")
			return models.User{}, nil
		}))

		srv := httptest.NewServer(middleware(handler))
		defer srv.Close()

		resp, body := get(t, srv.URL, "")

		require.Equal(t, http.StatusUnauthorized, resp.StatusCode)
		require.JSONEq(t, `{"success": false, "message": "No token provided"}`, body)
	})

	t.Run("invalid token", func(t *testing.T) {
		middleware := Auth(authFunc(func(ctx context.Context, access string) (models.User, error) {
			return models.User{}, errors.New("token validation failed")
		}))

		srv := httptest.NewServer(middleware(handler))
		defer srv.Close()

		resp, body := get(t, srv.URL, "expired-access-token")

		require.Equal(t, http.StatusUnauthorized, resp.StatusCode)
		require.JSONEq(t, `{"success": false, "message": "Invalid or expired token"}`, body)
	})
}
