// Package sessionlock locks and unlocks a user's active sessions through the
// external session management API, so the user cannot log in while deletion
// is in progress.
package sessionlock

import (
	"context"
	"fmt"
	"io"
	"net/http"

	"github.com/rs/zerolog"

	"github.com/oblivio/oblivio/internal/auth"
	"github.com/oblivio/oblivio/internal/erasure"
	"github.com/oblivio/oblivio/internal/resilience"
)

// Action is a session lock operation.
type Action string

// Actions.
const (
	ActionLock   Action = "LOCK"
	ActionUnlock Action = "UNLOCK"
)

// ManagerConfig holds configuration for the session lock manager.
type ManagerConfig struct {
	// BaseURL is the session API base URL (required).
	BaseURL string

	// Tokens mints the bearer tokens for the session API (required).
	Tokens *auth.ServiceTokenIssuer

	// HTTPClient is the HTTP client to use (optional).
	// If nil, uses a resilient client with defaults.
	HTTPClient *resilience.Client

	// Logger for manager operations.
	Logger zerolog.Logger
}

// Manager performs the lock and unlock calls. Both are idempotent on the
// session API side: locking a locked user and unlocking an unlocked one
// succeed.
type Manager struct {
	baseURL    string
	tokens     *auth.ServiceTokenIssuer
	httpClient *resilience.Client
	logger     zerolog.Logger
}

// NewManager creates a new session lock manager.
func NewManager(cfg ManagerConfig) *Manager {
	httpClient := cfg.HTTPClient
	if httpClient == nil {
		httpClient = resilience.NewClient(resilience.DefaultClientConfig("session-api"))
	}

	return &Manager{
		baseURL:    cfg.BaseURL,
		tokens:     cfg.Tokens,
		httpClient: httpClient,
		logger:     cfg.Logger,
	}
}

// Lock locks every active session of the user.
func (m *Manager) Lock(ctx context.Context, fiscalCode string) *erasure.Failure {
	return m.set(ctx, ActionLock, fiscalCode)
}

// Unlock releases the user's sessions.
func (m *Manager) Unlock(ctx context.Context, fiscalCode string) *erasure.Failure {
	return m.set(ctx, ActionUnlock, fiscalCode)
}

func (m *Manager) set(ctx context.Context, action Action, fiscalCode string) *erasure.Failure {
	if fiscalCode == "" {
		return erasure.InvalidInputf("fiscal code is required")
	}

	method := http.MethodPost
	if action == ActionUnlock {
		method = http.MethodDelete
	}
	url := fmt.Sprintf("%s/api/v1/sessions/%s/lock", m.baseURL, fiscalCode)

	req, err := http.NewRequestWithContext(ctx, method, url, http.NoBody)
	if err != nil {
		return erasure.Unhandledf("creating session %s request: %v", action, err)
	}

	token, err := m.tokens.Mint("oblivio-worker")
	if err != nil {
		return erasure.Unhandledf("minting service token: %v", err)
	}
	req.Header.Set("Authorization", "Bearer "+token)

	resp, err := m.httpClient.DoWithContext(ctx, req)
	if err != nil {
		// Network faults and exhausted retries are transient: the host
		// retry policy may re-invoke the whole activity.
		return erasure.Transientf("session %s call: %v", action, err)
	}
	defer func() {
		_, _ = io.Copy(io.Discard, resp.Body)
		_ = resp.Body.Close()
	}()

	switch {
	case resp.StatusCode >= 200 && resp.StatusCode < 300:
		m.logger.Info().
			Str("action", string(action)).
			Int("status", resp.StatusCode).
			Msg("session lock state changed")
		return nil
	case resp.StatusCode >= 500:
		return erasure.Transientf("session API returned %d for %s", resp.StatusCode, action)
	case resp.StatusCode >= 400:
		return &erasure.Failure{
			Kind:   erasure.KindBadAPIRequest,
			Reason: fmt.Sprintf("session API rejected %s with %d", action, resp.StatusCode),
		}
	default:
		return &erasure.Failure{
			Kind:   erasure.KindAPICallFailure,
			Reason: fmt.Sprintf("unexpected session API response %d for %s", resp.StatusCode, action),
		}
	}
}
