package handler

import (
	"log/slog"
	"net/http"
	"strconv"

	"github.com/gorilla/mux"

	"leadflow/internal/service"
	"leadflow/internal/transport/rest/middleware"
)

const defaultLeadLimit = 10

// InsightHandler handles the host-facing lead and funnel endpoints
type InsightHandler struct {
	insightSvc *service.InsightService
	formSvc    *service.FormService
	logger     *slog.Logger
}

// NewInsightHandler creates a new insight handler
func NewInsightHandler(insightSvc *service.InsightService, formSvc *service.FormService, logger *slog.Logger) *InsightHandler {
	if logger == nil {
		logger = slog.Default()
	}
	return &InsightHandler{insightSvc: insightSvc, formSvc: formSvc, logger: logger}
}

// TopLeads handles GET /v1/clients/{clientId}/leads
func (h *InsightHandler) TopLeads(w http.ResponseWriter, r *http.Request) {
	clientID := mux.Vars(r)["clientId"]
	if !canSeeClient(r, clientID) {
		writeError(w, http.StatusForbidden, "token not valid for this client")
		return
	}

	limit := defaultLeadLimit
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n <= 0 || n > 100 {
			writeError(w, http.StatusBadRequest, "limit must be between 1 and 100")
			return
		}
		limit = n
	}

	leads, err := h.insightSvc.TopLeads(r.Context(), clientID, limit)
	if err != nil {
		writeServiceError(w, h.logger, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{"client_id": clientID, "leads": leads})
}

// Funnel handles GET /v1/forms/{formId}/funnel
func (h *InsightHandler) Funnel(w http.ResponseWriter, r *http.Request) {
	formID := mux.Vars(r)["formId"]

	form, err := h.formSvc.GetByID(r.Context(), formID)
	if err != nil {
		writeServiceError(w, h.logger, err)
		return
	}
	if !canSeeClient(r, form.ClientID) {
		writeError(w, http.StatusForbidden, "token not valid for this client")
		return
	}

	funnel, err := h.insightSvc.Funnel(r.Context(), formID)
	if err != nil {
		writeServiceError(w, h.logger, err)
		return
	}

	writeJSON(w, http.StatusOK, funnel)
}

// Outcome handles GET /v1/sessions/{id}/outcome
func (h *InsightHandler) Outcome(w http.ResponseWriter, r *http.Request) {
	outcome, err := h.insightSvc.Outcome(r.Context(), mux.Vars(r)["id"])
	if err != nil {
		writeServiceError(w, h.logger, err)
		return
	}
	if !canSeeClient(r, outcome.ClientID) {
		writeError(w, http.StatusForbidden, "token not valid for this client")
		return
	}

	writeJSON(w, http.StatusOK, outcome)
}

// canSeeClient reports whether the host token is scoped to the client
func canSeeClient(r *http.Request, clientID string) bool {
	scope := middleware.GetClientID(r.Context())
	return scope == "" || scope == clientID
}
