package api

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/avasiliev/pharmadesk/internal/apperrors"
)

type fakeStore struct {
	mu           sync.Mutex
	accessToken  string
	refreshToken string
	expiresAt    int64
	updates      int
	readErr      error
}

func (s *fakeStore) AccessToken() (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.readErr != nil {
		return "", s.readErr
	}
	if s.accessToken == "" {
		return "", apperrors.ErrCredentialsNotFound
	}
	return s.accessToken, nil
}

func (s *fakeStore) RefreshToken() (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.readErr != nil {
		return "", s.readErr
	}
	if s.refreshToken == "" {
		return "", apperrors.ErrCredentialsNotFound
	}
	return s.refreshToken, nil
}

func (s *fakeStore) UpdateTokens(accessToken string, refreshToken string, expiresAt int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.accessToken = accessToken
	s.refreshToken = refreshToken
	s.expiresAt = expiresAt
	s.updates++
	return nil
}

func writeJSON(t *testing.T, w http.ResponseWriter, status int, body any) {
	t.Helper()
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	require.NoError(t, json.NewEncoder(w).Encode(body))
}

func unauthorized(t *testing.T, w http.ResponseWriter, message string) {
	t.Helper()
	writeJSON(t, w, http.StatusUnauthorized, map[string]any{"success": false, "message": message})
}

func refreshAnswer(t *testing.T, w http.ResponseWriter, accessToken string) {
	t.Helper()
	writeJSON(t, w, http.StatusOK, map[string]any{
		"success": true,
		"data": map[string]any{
			"session": map[string]any{
				"access_token":  accessToken,
				"refresh_token": "rotated-refresh",
				"expires_in":    900,
			},
		},
	})
}

func newTestClient(t *testing.T, baseURL string, store *fakeStore, onAuthFailure func()) *Client {
	t.Helper()
	client, err := New(Config{
		BaseURL:       baseURL,
		Store:         store,
		OnAuthFailure: onAuthFailure,
	})
	require.NoError(t, err)
	return client
}

func TestDo_ConcurrentExpiredTokensRefreshOnce(t *testing.T) {
	var refreshCalls atomic.Int64

	mux := http.NewServeMux()
	mux.HandleFunc("GET /inventory", func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Authorization") != "Bearer fresh-access" {
			unauthorized(t, w, "Invalid or expired token")
			return
		}
		writeJSON(t, w, http.StatusOK, map[string]any{"success": true, "data": map[string]any{"count": 3}})
	})
	mux.HandleFunc("POST /auth/refresh", func(w http.ResponseWriter, r *http.Request) {
		refreshCalls.Add(1)
		time.Sleep(50 * time.Millisecond)
		refreshAnswer(t, w, "fresh-access")
	})
	server := httptest.NewServer(mux)
	defer server.Close()

	store := &fakeStore{accessToken: "stale-access", refreshToken: "valid-refresh"}
	client := newTestClient(t, server.URL, store, func() {
		t.Error("forced logout must not fire when refresh succeeds")
	})

	var wg sync.WaitGroup
	errs := make([]error, 2)
	for i := range errs {
		wg.Add(1)
		go func() {
			defer wg.Done()
			var out struct {
				Count int `json:"count"`
			}
			errs[i] = client.Get(context.Background(), "/inventory", &out)
			if errs[i] == nil {
				assert.Equal(t, 3, out.Count)
			}
		}()
	}
	wg.Wait()

	require.NoError(t, errs[0])
	require.NoError(t, errs[1])
	assert.Equal(t, int64(1), refreshCalls.Load())
	assert.Equal(t, "fresh-access", store.accessToken)
	assert.Equal(t, "rotated-refresh", store.refreshToken)
	assert.Equal(t, 1, store.updates)
}

func TestDo_RefreshRejectedTerminatesSession(t *testing.T) {
	var refreshCalls atomic.Int64

	mux := http.NewServeMux()
	mux.HandleFunc("GET /inventory", func(w http.ResponseWriter, r *http.Request) {
		unauthorized(t, w, "Token expired")
	})
	mux.HandleFunc("POST /auth/refresh", func(w http.ResponseWriter, r *http.Request) {
		refreshCalls.Add(1)
		time.Sleep(50 * time.Millisecond)
		writeJSON(t, w, http.StatusUnauthorized, map[string]any{"success": false, "message": "Refresh token not found"})
	})
	server := httptest.NewServer(mux)
	defer server.Close()

	var logouts atomic.Int64
	store := &fakeStore{accessToken: "stale-access", refreshToken: "revoked-refresh"}
	client := newTestClient(t, server.URL, store, func() { logouts.Add(1) })

	var wg sync.WaitGroup
	errs := make([]error, 2)
	for i := range errs {
		wg.Add(1)
		go func() {
			defer wg.Done()
			errs[i] = client.Get(context.Background(), "/inventory", nil)
		}()
	}
	wg.Wait()

	for _, err := range errs {
		require.Error(t, err)
		assert.Equal(t, KindAuthExpired, ErrorKind(err))
	}
	assert.Equal(t, int64(1), refreshCalls.Load())
	assert.Equal(t, int64(1), logouts.Load())
	assert.Equal(t, 0, store.updates)
}

func TestDo_ForbiddenKeepsSession(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("DELETE /users/42", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(t, w, http.StatusForbidden, map[string]any{"success": false, "message": "Insufficient permissions for this operation"})
	})
	server := httptest.NewServer(mux)
	defer server.Close()

	store := &fakeStore{accessToken: "cashier-access", refreshToken: "cashier-refresh"}
	client := newTestClient(t, server.URL, store, func() {
		t.Error("permission denial must not end the session")
	})

	err := client.Delete(context.Background(), "/users/42", nil)
	require.Error(t, err)

	assert.True(t, IsForbidden(err))
	var apiErr *APIError
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, "Insufficient permissions for this operation", apiErr.Message)
	assert.Equal(t, "cashier-access", store.accessToken)
}

func TestDo_ReplayedRequestNeverRefreshesTwice(t *testing.T) {
	var refreshCalls atomic.Int64

	mux := http.NewServeMux()
	mux.HandleFunc("GET /inventory", func(w http.ResponseWriter, r *http.Request) {
		// Rejects even the fresh token, simulating a server-side revocation
		unauthorized(t, w, "Invalid or expired token")
	})
	mux.HandleFunc("POST /auth/refresh", func(w http.ResponseWriter, r *http.Request) {
		refreshCalls.Add(1)
		refreshAnswer(t, w, "fresh-access")
	})
	server := httptest.NewServer(mux)
	defer server.Close()

	var logouts atomic.Int64
	store := &fakeStore{accessToken: "stale-access", refreshToken: "valid-refresh"}
	client := newTestClient(t, server.URL, store, func() { logouts.Add(1) })

	err := client.Get(context.Background(), "/inventory", nil)
	require.Error(t, err)

	assert.Equal(t, KindAuthInvalid, ErrorKind(err))
	assert.Equal(t, int64(1), refreshCalls.Load())
	assert.Equal(t, int64(1), logouts.Load())
}

func TestDo_UnrecognizedUnauthorizedMessageSkipsRefresh(t *testing.T) {
	var refreshCalls atomic.Int64

	mux := http.NewServeMux()
	mux.HandleFunc("POST /auth/login", func(w http.ResponseWriter, r *http.Request) {
		unauthorized(t, w, "Invalid username or password")
	})
	mux.HandleFunc("POST /auth/refresh", func(w http.ResponseWriter, r *http.Request) {
		refreshCalls.Add(1)
		refreshAnswer(t, w, "fresh-access")
	})
	server := httptest.NewServer(mux)
	defer server.Close()

	var logouts atomic.Int64
	store := &fakeStore{accessToken: "stale-access", refreshToken: "valid-refresh"}
	client := newTestClient(t, server.URL, store, func() { logouts.Add(1) })

	err := client.Post(context.Background(), "/auth/login", map[string]string{"username": "x", "password": "y"}, nil)
	require.Error(t, err)

	assert.Equal(t, KindAuthInvalid, ErrorKind(err))
	assert.Equal(t, int64(0), refreshCalls.Load())
	assert.Equal(t, int64(1), logouts.Load())
}

func TestDo_MissingRefreshTokenTerminatesSession(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /inventory", func(w http.ResponseWriter, r *http.Request) {
		unauthorized(t, w, "No token provided")
	})
	server := httptest.NewServer(mux)
	defer server.Close()

	var logouts atomic.Int64
	store := &fakeStore{}
	client := newTestClient(t, server.URL, store, func() { logouts.Add(1) })

	err := client.Get(context.Background(), "/inventory", nil)
	require.Error(t, err)

	assert.Equal(t, KindAuthExpired, ErrorKind(err))
	assert.Equal(t, int64(1), logouts.Load())
}

func TestDo_ServerErrorPassesMessageThrough(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /inventory", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(t, w, http.StatusInternalServerError, map[string]any{"success": false, "message": "database unavailable"})
	})
	server := httptest.NewServer(mux)
	defer server.Close()

	store := &fakeStore{accessToken: "access", refreshToken: "refresh"}
	client := newTestClient(t, server.URL, store, nil)

	err := client.Get(context.Background(), "/inventory", nil)
	require.Error(t, err)

	var apiErr *APIError
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, KindHTTP, apiErr.Kind)
	assert.Equal(t, http.StatusInternalServerError, apiErr.Status)
	assert.Equal(t, "database unavailable", apiErr.Message)
}

func TestExpiryFromToken(t *testing.T) {
	expiresAt := time.Now().Add(15 * time.Minute).Truncate(time.Second)
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.RegisteredClaims{
		ExpiresAt: jwt.NewNumericDate(expiresAt),
	})
	signed, err := token.SignedString([]byte("secret"))
	require.NoError(t, err)

	assert.Equal(t, expiresAt.Unix(), expiryFromToken(signed))
	assert.Zero(t, expiryFromToken("not-a-token"))
}

func TestNew_BaseURLFromEnvironment(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /ping", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(t, w, http.StatusOK, map[string]any{"success": true})
	})
	server := httptest.NewServer(mux)
	defer server.Close()

	t.Setenv("API_BASE_URL", server.URL)

	store := &fakeStore{accessToken: "access", refreshToken: "refresh"}
	client, err := New(Config{Store: store})
	require.NoError(t, err)

	require.NoError(t, client.Get(context.Background(), "/ping", nil))

	t.Run("explicit config wins over environment", func(t *testing.T) {
		client, err := New(Config{Store: store, BaseURL: "http://example.invalid"})
		require.NoError(t, err)
		assert.Equal(t, "http://example.invalid", client.baseURL)
	})

	t.Run("default without environment", func(t *testing.T) {
		t.Setenv("API_BASE_URL", "")

		client, err := New(Config{Store: store})
		require.NoError(t, err)
		assert.Equal(t, DefaultBaseURL, client.baseURL)
	})
}

func TestDo_UnreadableStoreSendsUnauthenticated(t *testing.T) {
	var sawAuth atomic.Bool

	mux := http.NewServeMux()
	mux.HandleFunc("GET /public", func(w http.ResponseWriter, r *http.Request) {
		sawAuth.Store(r.Header.Get("Authorization") != "")
		writeJSON(t, w, http.StatusOK, map[string]any{"success": true, "data": map[string]any{"ok": true}})
	})
	server := httptest.NewServer(mux)
	defer server.Close()

	store := &fakeStore{readErr: fmt.Errorf("%w: disk gone", apperrors.ErrStoreUnavailable)}
	client := newTestClient(t, server.URL, store, nil)

	var out struct {
		OK bool `json:"ok"`
	}
	require.NoError(t, client.Get(context.Background(), "/public", &out))

	assert.True(t, out.OK)
	assert.False(t, sawAuth.Load(), "broken storage must not produce a bearer header")
}
