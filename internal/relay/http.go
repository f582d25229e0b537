package relay

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"sort"

	"github.com/gorilla/schema"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/sanity-io/litter"
	"github.com/syntrixbase/devbridge/internal/actionlog"
	"github.com/syntrixbase/devbridge/internal/server"
)

// MaxBodySize bounds command request bodies. Imports carry whole histories.
const MaxBodySize = 4 << 20

// APIError represents a structured error response
type APIError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// Error codes
const (
	ErrCodeBadRequest      = "BAD_REQUEST"
	ErrCodeUnauthorized    = "UNAUTHORIZED"
	ErrCodeNotFound        = "NOT_FOUND"
	ErrCodeRequestTooLarge = "REQUEST_TOO_LARGE"
	ErrCodeInternalError   = "INTERNAL_ERROR"
)

// InstancesResponse lists instance histories.
type InstancesResponse struct {
	Instances []actionlog.Summary `json:"instances"`
	Connected []string            `json:"connected"`
	Selected  string              `json:"selected,omitempty"`
	Sync      bool                `json:"sync"`
}

// StateQuery selects a history entry. Index is required for mode=index.
type StateQuery struct {
	Mode  string `schema:"mode"`
	Index *int   `schema:"index"`
}

// StateResponse is one resolved state.
type StateResponse struct {
	InstanceID string `json:"instanceId"`
	Mode       string `json:"mode"`
	Index      *int   `json:"index,omitempty"`
	State      any    `json:"state"`
}

// Handler serves the relay HTTP API.
type Handler struct {
	relay    *Relay
	hub      *Hub
	auth     *TokenService
	gatherer prometheus.Gatherer
	decoder  *schema.Decoder
	logger   *slog.Logger
}

// NewHandler creates a Handler. auth may be nil to disable authentication;
// gatherer nil means prometheus.DefaultGatherer.
func NewHandler(relay *Relay, hub *Hub, auth *TokenService, gatherer prometheus.Gatherer, logger *slog.Logger) *Handler {
	if gatherer == nil {
		gatherer = prometheus.DefaultGatherer
	}
	if logger == nil {
		logger = slog.Default()
	}
	decoder := schema.NewDecoder()
	decoder.IgnoreUnknownKeys(true)
	return &Handler{
		relay:    relay,
		hub:      hub,
		auth:     auth,
		gatherer: gatherer,
		decoder:  decoder,
		logger:   logger.With("component", "relay-http"),
	}
}

// RegisterRoutes mounts the API on mux.
func (h *Handler) RegisterRoutes(mux *http.ServeMux) {
	protect := h.auth.Middleware

	mux.Handle("GET /v1/instances", protect(http.HandlerFunc(h.handleListInstances)))
	mux.Handle("GET /v1/instances/{id}/state", protect(http.HandlerFunc(h.handleGetState)))
	mux.Handle("GET /v1/instances/{id}/history", protect(http.HandlerFunc(h.handleGetHistory)))
	mux.Handle("POST /v1/instances/{id}/commands", protect(server.TimeoutMiddleware(commandTimeout)(http.HandlerFunc(h.handleCommand))))
	mux.Handle("DELETE /v1/instances/{id}", protect(http.HandlerFunc(h.handleRemoveInstance)))
	mux.Handle("GET /v1/debug/instances/{id}", protect(http.HandlerFunc(h.handleDebugInstance)))

	// The UI socket authenticates in-band when no header token is sent.
	if h.hub != nil {
		mux.HandleFunc("GET /v1/observe", func(w http.ResponseWriter, r *http.Request) {
			ServeWs(h.hub, w, r)
		})
	}

	mux.Handle("GET /metrics", promhttp.HandlerFor(h.gatherer, promhttp.HandlerOpts{}))
	mux.HandleFunc("GET /healthz", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})
}

func (h *Handler) handleListInstances(w http.ResponseWriter, r *http.Request) {
	connected := h.relay.Connected()
	sort.Strings(connected)
	writeJSON(w, http.StatusOK, InstancesResponse{
		Instances: h.relay.Log().Instances(),
		Connected: connected,
		Selected:  h.relay.Selected(),
		Sync:      h.relay.SyncEnabled(),
	})
}

func (h *Handler) handleGetState(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")

	var q StateQuery
	if err := h.decoder.Decode(&q, r.URL.Query()); err != nil {
		h.logger.Warn("Invalid state query", "instance", id, "error", err)
		writeError(w, http.StatusBadRequest, ErrCodeBadRequest, "Invalid query parameters")
		return
	}
	if q.Mode == "" {
		q.Mode = actionlog.ModeCurrent.String()
		if q.Index != nil {
			q.Mode = actionlog.ModeIndex.String()
		}
	}
	mode, err := actionlog.ParseMode(q.Mode)
	if err != nil {
		writeError(w, http.StatusBadRequest, ErrCodeBadRequest, err.Error())
		return
	}

	query := actionlog.Query{Mode: mode}
	if mode == actionlog.ModeIndex {
		if q.Index == nil {
			writeError(w, http.StatusBadRequest, ErrCodeBadRequest, "index is required for mode=index")
			return
		}
		query.Index = *q.Index
	}

	state, err := h.relay.Log().StateAt(id, query)
	if err != nil {
		writeLogError(w, err)
		return
	}
	resp := StateResponse{InstanceID: id, Mode: mode.String(), State: state}
	if mode == actionlog.ModeIndex {
		resp.Index = q.Index
	}
	writeJSON(w, http.StatusOK, resp)
}

func (h *Handler) handleGetHistory(w http.ResponseWriter, r *http.Request) {
	lifted, err := h.relay.Log().Export(r.PathValue("id"))
	if err != nil {
		writeLogError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, lifted)
}

func (h *Handler) handleCommand(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, MaxBodySize)

	var cmd Command
	if err := json.NewDecoder(r.Body).Decode(&cmd); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			writeError(w, http.StatusRequestEntityTooLarge, ErrCodeRequestTooLarge, "Request body too large")
			return
		}
		writeError(w, http.StatusBadRequest, ErrCodeBadRequest, "Invalid request body")
		return
	}
	cmd.InstanceID = r.PathValue("id")

	lifted, err := h.relay.Lift(r.Context(), cmd)
	if err != nil {
		h.logger.Warn("Command failed", "command", cmd.Type, "instance", cmd.InstanceID, "error", err)
		writeLogError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, AckPayload{Lifted: lifted})
}

func (h *Handler) handleRemoveInstance(w http.ResponseWriter, r *http.Request) {
	if _, err := h.relay.Lift(r.Context(), Command{Type: CommandRemove, InstanceID: r.PathValue("id")}); err != nil {
		writeLogError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) handleDebugInstance(w http.ResponseWriter, r *http.Request) {
	lifted, err := h.relay.Log().Export(r.PathValue("id"))
	if err != nil {
		writeLogError(w, err)
		return
	}
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	if _, err := w.Write([]byte(litter.Sdump(lifted))); err != nil {
		h.logger.Warn("Failed to write debug dump", "error", err)
	}
}

// writeError writes a structured JSON error response
func writeError(w http.ResponseWriter, status int, code string, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(APIError{Code: code, Message: message}); err != nil {
		slog.Warn("Failed to encode error response", "error", err)
	}
}

// writeLogError maps action log and command errors to responses
func writeLogError(w http.ResponseWriter, err error) {
	code := commandErrorCode(err)
	switch code {
	case ErrCodeNotFound:
		writeError(w, http.StatusNotFound, code, err.Error())
	case ErrCodeBadRequest:
		writeError(w, http.StatusBadRequest, code, err.Error())
	default:
		slog.Error("Relay request failed", "error", err)
		writeError(w, http.StatusInternalServerError, code, "Internal server error")
	}
}

func writeJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		slog.Warn("Failed to encode JSON response", "error", err)
	}
}
