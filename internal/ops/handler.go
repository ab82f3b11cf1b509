package ops

import (
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/oblivio/oblivio/internal/request"
)

// Handler serves the worker's operational endpoints.
type Handler struct {
	version   string
	buildTime string
	startedAt time.Time
	requests  request.Repository
}

// NewHandler creates a new ops handler.
func NewHandler(version, buildTime string, requests request.Repository) *Handler {
	return &Handler{
		version:   version,
		buildTime: buildTime,
		startedAt: time.Now(),
		requests:  requests,
	}
}

// HealthResponse is the health check payload.
type HealthResponse struct {
	Status    string `json:"status"`
	Version   string `json:"version"`
	BuildTime string `json:"build_time,omitempty"`
	Uptime    string `json:"uptime"`
}

// StatusResponse is the processing request status payload.
type StatusResponse struct {
	RequestID string `json:"request_id"`
	Choice    string `json:"choice"`
	Status    string `json:"status"`
	Version   int    `json:"version"`
	Reason    string `json:"reason,omitempty"`
	UpdatedAt string `json:"updated_at"`
}

// HealthCheck reports liveness.
func (h *Handler) HealthCheck(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, r, http.StatusOK, HealthResponse{
		Status:    "ok",
		Version:   h.version,
		BuildTime: h.buildTime,
		Uptime:    time.Since(h.startedAt).Round(time.Second).String(),
	})
}

// RequestStatus reports the latest status of a processing request.
func (h *Handler) RequestStatus(w http.ResponseWriter, r *http.Request) {
	choice := request.Choice(chi.URLParam(r, "choice"))
	fiscalCode := chi.URLParam(r, "fiscalCode")

	if !request.ValidChoice(choice) {
		p := newProblem(http.StatusBadRequest, "Bad Request",
			"choice must be DELETE or DOWNLOAD", GetRequestID(r.Context()))
		p.Instance = r.URL.Path
		p.Write(w)
		return
	}
	if !request.ValidFiscalCode(fiscalCode) {
		p := newProblem(http.StatusBadRequest, "Bad Request",
			"malformed fiscal code", GetRequestID(r.Context()))
		p.Instance = r.URL.Path
		p.Write(w)
		return
	}

	latest, err := h.requests.Latest(r.Context(), choice, fiscalCode)
	if err != nil {
		if errors.Is(err, request.ErrRequestNotFound) {
			p := newProblem(http.StatusNotFound, "Not Found",
				"no processing request for this user", GetRequestID(r.Context()))
			p.Instance = r.URL.Path
			p.Write(w)
			return
		}
		p := newProblem(http.StatusInternalServerError, "Internal Server Error",
			"could not load the processing request", GetRequestID(r.Context()))
		p.Instance = r.URL.Path
		p.Write(w)
		return
	}

	writeJSON(w, r, http.StatusOK, StatusResponse{
		RequestID: latest.RequestID,
		Choice:    string(latest.Choice),
		Status:    string(latest.Status),
		Version:   latest.Version,
		Reason:    latest.Reason,
		UpdatedAt: latest.UpdatedAt.Format(time.RFC3339),
	})
}
