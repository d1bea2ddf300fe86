package handler

import (
	"log/slog"
	"net/http"
	"strings"

	"github.com/gorilla/mux"

	"leadflow/internal/model"
	"leadflow/internal/service"
	"leadflow/internal/transport/rest/middleware"
)

// SessionHandler handles the visitor-facing session endpoints
type SessionHandler struct {
	sessionSvc *service.SessionService
	logger     *slog.Logger
}

// NewSessionHandler creates a new session handler
func NewSessionHandler(sessionSvc *service.SessionService, logger *slog.Logger) *SessionHandler {
	if logger == nil {
		logger = slog.Default()
	}
	return &SessionHandler{sessionSvc: sessionSvc, logger: logger}
}

// Start handles POST /v1/sessions/start
func (h *SessionHandler) Start(w http.ResponseWriter, r *http.Request) {
	var req model.StartRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	req.FormID = strings.TrimSpace(req.FormID)
	if req.FormID == "" {
		writeError(w, http.StatusBadRequest, "form_id is required")
		return
	}

	result, err := h.sessionSvc.Start(r.Context(), &req)
	if err != nil {
		writeServiceError(w, h.logger, err)
		return
	}

	writeJSON(w, http.StatusCreated, result)
}

// Step handles POST /v1/sessions/step
func (h *SessionHandler) Step(w http.ResponseWriter, r *http.Request) {
	var req model.StepRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	tokenSession := middleware.GetSessionID(r.Context())
	if req.SessionID == "" {
		req.SessionID = tokenSession
	}
	if req.SessionID != tokenSession {
		writeError(w, http.StatusForbidden, "token not valid for this session")
		return
	}

	result, err := h.sessionSvc.Step(r.Context(), &req)
	if err != nil {
		writeServiceError(w, h.logger, err)
		return
	}

	writeJSON(w, http.StatusOK, result)
}

// Get handles GET /v1/sessions/{id}
func (h *SessionHandler) Get(w http.ResponseWriter, r *http.Request) {
	snapshot, err := h.sessionSvc.Snapshot(r.Context(), mux.Vars(r)["id"])
	if err != nil {
		writeServiceError(w, h.logger, err)
		return
	}

	writeJSON(w, http.StatusOK, snapshot)
}

// Complete handles POST /v1/sessions/{id}/complete
func (h *SessionHandler) Complete(w http.ResponseWriter, r *http.Request) {
	completion, err := h.sessionSvc.Complete(r.Context(), mux.Vars(r)["id"])
	if err != nil {
		writeServiceError(w, h.logger, err)
		return
	}

	writeJSON(w, http.StatusOK, completion)
}

// Abandon handles DELETE /v1/sessions/{id}
func (h *SessionHandler) Abandon(w http.ResponseWriter, r *http.Request) {
	completion, err := h.sessionSvc.Abandon(r.Context(), mux.Vars(r)["id"])
	if err != nil {
		writeServiceError(w, h.logger, err)
		return
	}

	writeJSON(w, http.StatusOK, completion)
}
