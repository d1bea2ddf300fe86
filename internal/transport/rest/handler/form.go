package handler

import (
	"io"
	"log/slog"
	"net/http"

	"github.com/gorilla/mux"

	"leadflow/internal/model"
	"leadflow/internal/service"
)

// FormHandler handles question catalog endpoints
type FormHandler struct {
	formSvc *service.FormService
	logger  *slog.Logger
}

// NewFormHandler creates a new form handler
func NewFormHandler(formSvc *service.FormService, logger *slog.Logger) *FormHandler {
	if logger == nil {
		logger = slog.Default()
	}
	return &FormHandler{formSvc: formSvc, logger: logger}
}

// List handles GET /v1/forms
func (h *FormHandler) List(w http.ResponseWriter, r *http.Request) {
	forms, err := h.formSvc.List(r.Context())
	if err != nil {
		writeServiceError(w, h.logger, err)
		return
	}

	visible := make([]*model.Form, 0, len(forms))
	for _, f := range forms {
		if canSeeClient(r, f.ClientID) {
			visible = append(visible, f)
		}
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{"forms": visible})
}

// Get handles GET /v1/forms/{formId}
func (h *FormHandler) Get(w http.ResponseWriter, r *http.Request) {
	form, err := h.formSvc.GetByID(r.Context(), mux.Vars(r)["formId"])
	if err != nil {
		writeServiceError(w, h.logger, err)
		return
	}
	if !canSeeClient(r, form.ClientID) {
		writeError(w, http.StatusForbidden, "token not valid for this client")
		return
	}

	writeJSON(w, http.StatusOK, form)
}

// Import handles POST /v1/forms/import with a YAML catalog body
func (h *FormHandler) Import(w http.ResponseWriter, r *http.Request) {
	data, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	forms, err := service.ParseCatalog(data)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	for _, f := range forms {
		if !canSeeClient(r, f.ClientID) {
			writeError(w, http.StatusForbidden, "token not valid for client "+f.ClientID)
			return
		}
	}

	imported, err := h.formSvc.Import(r.Context(), data)
	if err != nil {
		writeServiceError(w, h.logger, err)
		return
	}

	ids := make([]string, 0, len(imported))
	for _, f := range imported {
		ids = append(ids, f.ID)
	}
	writeJSON(w, http.StatusCreated, map[string]interface{}{"imported": ids})
}
