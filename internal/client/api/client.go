// Package api is the resilient HTTP client of the dashboard: it attaches the
// bearer token to every request and makes expired-token 401 answers invisible
// to callers by refreshing the session once and replaying the request.
package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/avasiliev/pharmadesk/internal/apperrors"
	"github.com/avasiliev/pharmadesk/internal/logger"
)

// DefaultBaseURL points at a locally running pharmadesk server
const DefaultBaseURL = "http://localhost:8000"

// EnvBaseURL overrides DefaultBaseURL when Config.BaseURL is empty.
// Read once, when the client is constructed
const EnvBaseURL = "API_BASE_URL"

const defaultRefreshTimeout = 10 * time.Second

// Messages a 401 body may carry that mean "the access token is stale,
// a refresh is worth trying". Any other 401 terminates the session
var defaultRetriableMessages = []string{
	"Invalid or expired token",
	"Token expired",
	"No token provided",
}

type credentialStore interface {
	AccessToken() (string, error)
	RefreshToken() (string, error)
	UpdateTokens(accessToken string, refreshToken string, expiresAt int64) error
}

type Config struct {
	// Server address, DefaultBaseURL when empty
	BaseURL string

	HTTPClient *http.Client
	Logger     logger.Logger

	Store credentialStore

	// Invoked on irrecoverable auth failure, before the error returns to the
	// caller. Wire the shared forced-logout routine here
	OnAuthFailure func()

	// Overrides for the retriable 401 message set and the refresh call timeout
	RetriableMessages []string
	RefreshTimeout    time.Duration
}

// refreshResult is what queued requests receive when the single refresh settles
type refreshResult struct {
	token string
	err   error
}

type Client struct {
	baseURL       string
	http          *http.Client
	store         credentialStore
	logger        logger.Logger
	onAuthFailure func()
	retriable     map[string]struct{}

	refreshTimeout time.Duration

	// Refresh coordination: while inFlight, newly rejected requests queue as
	// waiters instead of starting a second refresh
	mu       sync.Mutex
	inFlight bool
	waiters  []chan refreshResult
}

func New(cfg Config) (*Client, error) {
	if cfg.Store == nil {
		return nil, errors.New("credential store must not be nil")
	}
	if cfg.BaseURL == "" {
		cfg.BaseURL = os.Getenv(EnvBaseURL)
	}
	if cfg.BaseURL == "" {
		cfg.BaseURL = DefaultBaseURL
	}
	if cfg.HTTPClient == nil {
		cfg.HTTPClient = &http.Client{}
	}
	if cfg.Logger == nil {
		cfg.Logger = logger.NewNoOpLogger()
	}
	if cfg.RefreshTimeout == 0 {
		cfg.RefreshTimeout = defaultRefreshTimeout
	}
	if len(cfg.RetriableMessages) == 0 {
		cfg.RetriableMessages = defaultRetriableMessages
	}

	retriable := make(map[string]struct{}, len(cfg.RetriableMessages))
	for _, message := range cfg.RetriableMessages {
		retriable[strings.ToLower(message)] = struct{}{}
	}

	return &Client{
		baseURL:        strings.TrimRight(cfg.BaseURL, "/"),
		http:           cfg.HTTPClient,
		store:          cfg.Store,
		logger:         cfg.Logger,
		onAuthFailure:  cfg.OnAuthFailure,
		retriable:      retriable,
		refreshTimeout: cfg.RefreshTimeout,
	}, nil
}

// Envelope mirrors the server response shape
type Envelope struct {
	Success bool            `json:"success"`
	Data    json.RawMessage `json:"data,omitempty"`
	Message string          `json:"message,omitempty"`
}

// Get performs GET and decodes the envelope data into out (may be nil)
func (c *Client) Get(ctx context.Context, path string, out any) error {
	return c.Do(ctx, http.MethodGet, path, nil, out)
}

// Post marshals body as JSON, performs POST and decodes the envelope data into out
func (c *Client) Post(ctx context.Context, path string, body any, out any) error {
	return c.Do(ctx, http.MethodPost, path, body, out)
}

func (c *Client) Put(ctx context.Context, path string, body any, out any) error {
	return c.Do(ctx, http.MethodPut, path, body, out)
}

func (c *Client) Delete(ctx context.Context, path string, out any) error {
	return c.Do(ctx, http.MethodDelete, path, nil, out)
}

// Do sends the request with the stored bearer token. On a 401 that looks like
// a stale access token it refreshes the session once (coordinated across
// concurrent requests) and replays the request with the new token.
func (c *Client) Do(ctx context.Context, method string, path string, body any, out any) error {
	var payload []byte
	if body != nil {
		var err error
		payload, err = json.Marshal(body)
		if err != nil {
			return &APIError{Kind: KindNetwork, Message: "failed to encode request body", Err: err}
		}
	}

	token, err := c.store.AccessToken()
	if err != nil {
		// No token or unreadable storage both degrade to an
		// unauthenticated request, the server decides what it allows
		if !errors.Is(err, apperrors.ErrCredentialsNotFound) {
			c.logger.Warn("credential store unreadable, sending request unauthenticated", "error", err.Error())
		}
		token = ""
	}

	return c.send(ctx, method, path, payload, token, out, false)
}

// send performs one attempt. retried guards the replay: a request that
// already used a fresh token never starts a second refresh cycle
func (c *Client) send(ctx context.Context, method string, path string, payload []byte, token string, out any, retried bool) error {
	var reader io.Reader
	if payload != nil {
		reader = bytes.NewReader(payload)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return &APIError{Kind: KindNetwork, Message: "failed to create request", Err: err}
	}
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return &APIError{Kind: KindNetwork, Message: "request failed", Err: err}
	}
	defer resp.Body.Close() // nolint:errcheck

	envelope, decodeErr := decodeEnvelope(resp.Body)

	switch {
	case resp.StatusCode >= 200 && resp.StatusCode < 300:
		if decodeErr != nil {
			return &APIError{Kind: KindNetwork, Status: resp.StatusCode, Message: "failed to decode response", Err: decodeErr}
		}
		if out != nil && envelope.Data != nil {
			if err := json.Unmarshal(envelope.Data, out); err != nil {
				return &APIError{Kind: KindNetwork, Status: resp.StatusCode, Message: "failed to decode response data", Err: err}
			}
		}
		return nil

	case resp.StatusCode == http.StatusUnauthorized:
		return c.handleUnauthorized(ctx, method, path, payload, envelope.Message, out, retried)

	case resp.StatusCode == http.StatusForbidden:
		// Permission denied never ends the session, the caller decides what to show
		return &APIError{Kind: KindForbidden, Status: resp.StatusCode, Message: envelope.Message}

	default:
		return &APIError{Kind: KindHTTP, Status: resp.StatusCode, Message: envelope.Message}
	}
}

// handleUnauthorized decides between refresh-and-replay and forced logout
func (c *Client) handleUnauthorized(ctx context.Context, method string, path string, payload []byte, message string, out any, retried bool) error {
	if retried || !c.isRetriable(message) {
		c.logger.Warn("irrecoverable 401, terminating session", "message", message)
		c.forceLogout()
		return &APIError{Kind: KindAuthInvalid, Status: http.StatusUnauthorized, Message: message}
	}

	token, err := c.refreshedToken(ctx)
	if err != nil {
		return &APIError{Kind: KindAuthExpired, Status: http.StatusUnauthorized, Message: message, Err: err}
	}

	return c.send(ctx, method, path, payload, token, out, true)
}

func (c *Client) isRetriable(message string) bool {
	_, ok := c.retriable[strings.ToLower(message)]
	return ok
}

// refreshedToken returns a fresh access token, performing at most one refresh
// call no matter how many requests hit a 401 at the same time. Latecomers
// queue and receive the same outcome as the request that started the refresh
func (c *Client) refreshedToken(ctx context.Context) (string, error) {
	c.mu.Lock()
	if c.inFlight {
		waiter := make(chan refreshResult, 1)
		c.waiters = append(c.waiters, waiter)
		c.mu.Unlock()

		select {
		case result := <-waiter:
			return result.token, result.err
		case <-ctx.Done():
			return "", ctx.Err()
		}
	}
	c.inFlight = true
	c.mu.Unlock()

	token, err := c.refresh(ctx)

	// Always drop the flag so a future 401 can start a new cycle
	c.mu.Lock()
	c.inFlight = false
	waiters := c.waiters
	c.waiters = nil
	c.mu.Unlock()

	for _, waiter := range waiters {
		waiter <- refreshResult{token: token, err: err}
	}

	return token, err
}

// refresh exchanges the stored refresh token for a new pair. It deliberately
// bypasses Do so a 401 from the refresh endpoint can not recurse into another
// refresh. A bounded timeout keeps queued requests from hanging forever
func (c *Client) refresh(ctx context.Context) (string, error) {
	refreshToken, err := c.store.RefreshToken()
	if err != nil {
		c.logger.Warn("no refresh token stored, terminating session")
		c.forceLogout()
		return "", fmt.Errorf("refresh impossible: %w", err)
	}

	ctx, cancel := context.WithTimeout(ctx, c.refreshTimeout)
	defer cancel()

	payload, err := json.Marshal(map[string]string{"refresh_token": refreshToken})
	if err != nil {
		return "", err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/auth/refresh", bytes.NewReader(payload))
	if err != nil {
		return "", err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		c.forceLogout()
		return "", fmt.Errorf("refresh call failed: %w", err)
	}
	defer resp.Body.Close() // nolint:errcheck

	envelope, decodeErr := decodeEnvelope(resp.Body)
	if resp.StatusCode != http.StatusOK || decodeErr != nil || !envelope.Success {
		c.forceLogout()
		return "", fmt.Errorf("refresh rejected with status %d: %s", resp.StatusCode, envelope.Message)
	}

	var data struct {
		Session struct {
			AccessToken  string `json:"access_token"`
			RefreshToken string `json:"refresh_token"`
			ExpiresIn    int64  `json:"expires_in"`
			ExpiresAt    int64  `json:"expires_at"`
		} `json:"session"`
	}
	if err := json.Unmarshal(envelope.Data, &data); err != nil {
		c.forceLogout()
		return "", fmt.Errorf("refresh answer malformed: %w", err)
	}

	session := data.Session
	expiresAt := session.ExpiresAt
	if expiresAt == 0 && session.ExpiresIn > 0 {
		expiresAt = time.Now().Unix() + session.ExpiresIn
	}
	if expiresAt == 0 {
		expiresAt = expiryFromToken(session.AccessToken)
	}

	if err := c.store.UpdateTokens(session.AccessToken, session.RefreshToken, expiresAt); err != nil {
		c.logger.Warn("failed to persist refreshed tokens", "error", err.Error())
	}

	c.logger.Debug("session refreshed")
	return session.AccessToken, nil
}

// expiryFromToken reads the exp claim without verifying the signature.
// Verification is the server's job, here the claim is only a hint
func expiryFromToken(token string) int64 {
	claims := jwt.RegisteredClaims{}
	if _, _, err := jwt.NewParser().ParseUnverified(token, &claims); err != nil {
		return 0
	}
	if claims.ExpiresAt == nil {
		return 0
	}
	return claims.ExpiresAt.Unix()
}

func (c *Client) forceLogout() {
	if c.onAuthFailure != nil {
		c.onAuthFailure()
	}
}

func decodeEnvelope(r io.Reader) (Envelope, error) {
	var e Envelope
	err := json.NewDecoder(r).Decode(&e)
	return e, err
}
