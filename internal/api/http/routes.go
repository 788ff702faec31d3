package httpapi

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"tilt-relay/internal/application/status"
	"tilt-relay/internal/domain"
	"tilt-relay/internal/infrastructure/metrics"
)

// StatusSource provides the relay status snapshot.
type StatusSource interface {
	Snapshot() status.Snapshot
}

// handler contains the HTTP handlers and shared dependencies for the status API.
type handler struct {
	status StatusSource
	logger Logger
}

func registerRoutes(router chi.Router, h *handler) {
	router.Get("/healthz", h.handleHealth)
	router.Get("/status", h.handleStatus)
	router.Method(http.MethodGet, "/metrics", metrics.Handler())
}

type healthResponse struct {
	Status string `json:"status"`
}

type connectionResponse struct {
	State   string `json:"state"`
	Backoff string `json:"backoff,omitempty"`
}

type readingResponse struct {
	Name        string  `json:"name"`
	Color       string  `json:"color"`
	Gravity     float64 `json:"gravity"`
	Temperature int     `json:"temperature"`
	Battery     *uint8  `json:"battery,omitempty"`
	RSSI        int8    `json:"rssi"`
	CapturedAt  string  `json:"captured_at"`
}

type uploadResponse struct {
	Outcome    string          `json:"outcome"`
	Reason     string          `json:"reason,omitempty"`
	FinishedAt string          `json:"finished_at"`
	Reading    readingResponse `json:"reading"`
}

type countersResponse struct {
	Delivered uint64 `json:"delivered"`
	Rejected  uint64 `json:"rejected"`
	Failed    uint64 `json:"failed"`
}

type readingsResponse struct {
	Overwritten uint64 `json:"overwritten"`
}

type statusResponse struct {
	Relay       string             `json:"relay"`
	StartedAt   string             `json:"started_at"`
	Connection  connectionResponse `json:"connection"`
	LastReading *readingResponse   `json:"last_reading"`
	LastUpload  *uploadResponse    `json:"last_upload"`
	Readings    readingsResponse   `json:"readings"`
	Uploads     countersResponse   `json:"uploads"`
}

type errorResponse struct {
	Error string `json:"error"`
	Code  int    `json:"code"`
}

func (h *handler) handleHealth(w http.ResponseWriter, r *http.Request) {
	h.writeJSON(w, http.StatusOK, healthResponse{Status: "ok"})
}

func (h *handler) handleStatus(w http.ResponseWriter, r *http.Request) {
	if h.status == nil {
		h.writeError(w, http.StatusServiceUnavailable, "status unavailable")
		return
	}

	snap := h.status.Snapshot()
	resp := statusResponse{
		Relay:     snap.Relay,
		StartedAt: snap.StartedAt.UTC().Format(time.RFC3339),
		Connection: connectionResponse{
			State: snap.Connection.Kind.String(),
		},
		Readings: readingsResponse{Overwritten: snap.Overwritten},
		Uploads: countersResponse{
			Delivered: snap.Delivered,
			Rejected:  snap.Rejected,
			Failed:    snap.Failed,
		},
	}
	if snap.Connection.Kind == domain.Backoff {
		resp.Connection.Backoff = snap.Connection.Backoff.String()
	}
	if snap.LastReading != nil {
		reading := toReadingResponse(*snap.LastReading)
		resp.LastReading = &reading
	}
	if snap.LastUpload != nil {
		resp.LastUpload = &uploadResponse{
			Outcome:    snap.LastUpload.Outcome.Kind.String(),
			Reason:     snap.LastUpload.Outcome.Reason,
			FinishedAt: snap.LastUpload.Finished.UTC().Format(time.RFC3339),
			Reading:    toReadingResponse(snap.LastUpload.Reading),
		}
	}

	h.writeJSON(w, http.StatusOK, resp)
}

func toReadingResponse(r domain.Reading) readingResponse {
	resp := readingResponse{
		Name:        r.Name,
		Color:       r.Color.String(),
		Gravity:     float64(r.Gravity) / 1000,
		Temperature: r.Temperature,
		RSSI:        r.RSSI,
		CapturedAt:  r.CapturedAt.UTC().Format(time.RFC3339),
	}
	if r.HasBattery {
		battery := r.Battery
		resp.Battery = &battery
	}
	return resp
}

func (h *handler) writeError(w http.ResponseWriter, status int, message string) {
	h.writeJSON(w, status, errorResponse{Error: message, Code: status})
}

func (h *handler) writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(payload); err != nil && h.logger != nil {
		h.logger.Warn("encode response", "error", err.Error())
	}
}
