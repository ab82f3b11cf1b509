package ops_test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/oblivio/oblivio/internal/ops"
	"github.com/oblivio/oblivio/internal/request"
)

const fiscalCode = "RSSMRA80A01H501U"

func newRouter(t *testing.T, repo request.Repository) http.Handler {
	t.Helper()
	return ops.NewRouter(ops.RouterConfig{
		Version:   "test",
		BuildTime: "now",
		Logger:    zerolog.Nop(),
		Handler:   ops.NewHandler("test", "now", repo),
	})
}

func TestRouter_Health(t *testing.T) {
	router := newRouter(t, request.NewMemoryRepository())

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health", nil))

	require.Equal(t, http.StatusOK, rec.Code)

	var body ops.HealthResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, "ok", body.Status)
	assert.Equal(t, "test", body.Version)
}

func TestRouter_RequestStatus(t *testing.T) {
	repo := request.NewMemoryRepository()
	now := time.Date(2024, 3, 1, 10, 0, 0, 0, time.UTC)
	require.NoError(t, repo.Insert(context.Background(), &request.Request{
		FiscalCode: fiscalCode,
		Choice:     request.ChoiceDelete,
		Status:     request.StatusFailed,
		RequestID:  "req-1",
		Version:    3,
		Reason:     "DeleteUserData: timeout",
		CreatedAt:  now,
		UpdatedAt:  now,
	}))
	router := newRouter(t, repo)

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet,
		"/v1/requests/DELETE/"+fiscalCode+"/status", nil))

	require.Equal(t, http.StatusOK, rec.Code)

	var body ops.StatusResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, "req-1", body.RequestID)
	assert.Equal(t, "FAILED", body.Status)
	assert.Equal(t, 3, body.Version)
	assert.Equal(t, "DeleteUserData: timeout", body.Reason)
}

func TestRouter_RequestStatus_Errors(t *testing.T) {
	router := newRouter(t, request.NewMemoryRepository())

	tests := []struct {
		name     string
		path     string
		wantCode int
	}{
		{"unknown user", "/v1/requests/DELETE/" + fiscalCode + "/status", http.StatusNotFound},
		{"bad choice", "/v1/requests/PURGE/" + fiscalCode + "/status", http.StatusBadRequest},
		{"bad fiscal code", "/v1/requests/DELETE/nope/status", http.StatusBadRequest},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := httptest.NewRecorder()
			router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, tt.path, nil))

			assert.Equal(t, tt.wantCode, rec.Code)
			assert.Equal(t, "application/problem+json", rec.Header().Get("Content-Type"))
		})
	}
}

func TestRouter_SetsRequestID(t *testing.T) {
	router := newRouter(t, request.NewMemoryRepository())

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health", nil))
	assert.NotEmpty(t, rec.Header().Get("X-Request-Id"))

	// A caller-supplied ID is propagated, not replaced.
	rec = httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	req.Header.Set("X-Request-Id", "req_caller")
	router.ServeHTTP(rec, req)
	assert.Equal(t, "req_caller", rec.Header().Get("X-Request-Id"))
}
