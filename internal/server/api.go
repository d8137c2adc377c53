package server

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"

	"github.com/livetemplate/pagebuilder"
	"go.uber.org/zap"
)

// maxRequestBodySize limits the size of incoming request bodies (1MB)
const maxRequestBodySize = 1 << 20

// APIHandler serves the JSON API:
//
//	GET  /api/state    current snapshot, panel and rendered view
//	POST /api/actions  apply one action envelope
type APIHandler struct {
	server *Server
}

// NewAPIHandler creates a new API handler.
func NewAPIHandler(s *Server) *APIHandler {
	return &APIHandler{server: s}
}

// ServeHTTP handles API requests.
func (h *APIHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	switch r.URL.Path {
	case "/api/state":
		if r.Method != http.MethodGet {
			// Note: OPTIONS (preflight) is handled by CORS middleware before reaching here
			writeJSONError(w, http.StatusMethodNotAllowed, "method not allowed")
			return
		}
		h.handleState(w, r)
	case "/api/actions":
		if r.Method != http.MethodPost {
			writeJSONError(w, http.StatusMethodNotAllowed, "method not allowed")
			return
		}
		h.handleAction(w, r)
	default:
		writeJSONError(w, http.StatusNotFound, "unknown endpoint: "+r.URL.Path)
	}
}

func (h *APIHandler) handleState(w http.ResponseWriter, r *http.Request) {
	resp, err := h.server.router.View("state", pagebuilder.FocusNone)
	if err != nil {
		h.server.logger.Error("render state", zap.Error(err))
		writeJSONError(w, http.StatusInternalServerError, "failed to render state")
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

func (h *APIHandler) handleAction(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, maxRequestBodySize)
	body, err := io.ReadAll(r.Body)
	if err != nil {
		var maxErr *http.MaxBytesError
		if errors.As(err, &maxErr) {
			writeJSONError(w, http.StatusRequestEntityTooLarge, "request body too large")
			return
		}
		writeJSONError(w, http.StatusBadRequest, "failed to read request body")
		return
	}

	var env pagebuilder.MessageEnvelope
	if err := json.Unmarshal(body, &env); err != nil {
		writeJSONError(w, http.StatusBadRequest, "invalid JSON: "+err.Error())
		return
	}
	if env.Action == "" {
		writeJSONError(w, http.StatusBadRequest, "action required")
		return
	}

	resp, err := h.server.apply(&env, nil)
	if err != nil {
		if resp == nil {
			writeJSONError(w, http.StatusInternalServerError, err.Error())
			return
		}
		writeJSON(w, statusFor(err), resp)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

// statusFor maps editor errors onto HTTP status codes.
func statusFor(err error) int {
	switch {
	case errors.Is(err, pagebuilder.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, pagebuilder.ErrInvalidSelection):
		return http.StatusConflict
	case errors.Is(err, pagebuilder.ErrMalformedAction),
		errors.Is(err, pagebuilder.ErrInvalidAlignment):
		return http.StatusBadRequest
	default:
		return http.StatusInternalServerError
	}
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeJSONError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]string{"error": message})
}
