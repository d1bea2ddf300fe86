package handler

import (
	"log/slog"
	"net/http"
	"strings"

	"leadflow/internal/model"
	"leadflow/internal/service"
)

// HostAuthHandler issues tokens for business users watching their lead feed
type HostAuthHandler struct {
	authSvc *service.AuthService
	logger  *slog.Logger
}

// NewHostAuthHandler creates a new host auth handler
func NewHostAuthHandler(authSvc *service.AuthService, logger *slog.Logger) *HostAuthHandler {
	if logger == nil {
		logger = slog.Default()
	}
	return &HostAuthHandler{authSvc: authSvc, logger: logger}
}

// Login handles POST /v1/auth/login
func (h *HostAuthHandler) Login(w http.ResponseWriter, r *http.Request) {
	var creds model.LoginRequest
	if !decodeJSON(w, r, &creds) {
		return
	}
	creds.Username = strings.TrimSpace(creds.Username)
	if creds.Username == "" || creds.Password == "" {
		writeError(w, http.StatusBadRequest, "username and password are required")
		return
	}

	login, err := h.authSvc.Login(creds.Username, creds.Password)
	if err != nil {
		h.logger.Warn("host login rejected", "username", creds.Username, "remote", r.RemoteAddr)
		writeServiceError(w, h.logger, err)
		return
	}

	h.logger.Info("host logged in", "host_id", login.HostID, "client_id", login.ClientID)
	writeJSON(w, http.StatusOK, login)
}
