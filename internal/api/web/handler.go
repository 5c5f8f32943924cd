// Package web serves the registration and login forms, the JSON users API
// and the liveness and readiness probes.
package web

import (
	"encoding/json"
	"net/http"
	"net/url"

	"github.com/gorilla/mux"

	"github.com/dtroode/sheetkeeper/internal/logger"
	"github.com/dtroode/sheetkeeper/internal/model"
)

// Handler serves every HTTP endpoint of the service.
type Handler struct {
	users  model.UserService
	health model.HealthChecker
	logger *logger.Logger
}

func NewHandler(users model.UserService, health model.HealthChecker, logger *logger.Logger) *Handler {
	return &Handler{
		users:  users,
		health: health,
		logger: logger,
	}
}

// UserRequest is the body of POST /api/v1/users.
type UserRequest struct {
	Username    string `json:"username"`
	Password    string `json:"password"`
	PageID      string `json:"page_id"`
	AccessToken string `json:"access_token"`
}

// UserResponse describes a stored user.
type UserResponse struct {
	Username    string `json:"username"`
	Password    string `json:"password,omitempty"`
	PageID      string `json:"page_id"`
	AccessToken string `json:"access_token,omitempty"`
}

type errorResponse struct {
	Error string `json:"error"`
}

// CreateUser handles POST /api/v1/users.
func (h *Handler) CreateUser(w http.ResponseWriter, r *http.Request) {
	var req UserRequest
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, 64<<10))
	dec.DisallowUnknownFields()
	if err := dec.Decode(&req); err != nil {
		h.writeError(w, r, http.StatusBadRequest, "invalid request body")
		return
	}

	err := h.users.Register(r.Context(), model.UserRecord{
		Username:    req.Username,
		Password:    req.Password,
		PageID:      req.PageID,
		AccessToken: req.AccessToken,
	})
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}

	h.writeJSON(w, r, http.StatusCreated, UserResponse{Username: req.Username, PageID: req.PageID})
}

// GetUser handles GET /api/v1/users/{username}. It returns the stored
// credentials, the same data the login form shows. The router matches on the
// escaped path, so a username holding "/" may be sent as %2F.
func (h *Handler) GetUser(w http.ResponseWriter, r *http.Request) {
	username, err := url.PathUnescape(mux.Vars(r)["username"])
	if err != nil {
		h.writeError(w, r, http.StatusBadRequest, "invalid username in path")
		return
	}

	record, err := h.users.Authenticate(r.Context(), username)
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}

	h.writeJSON(w, r, http.StatusOK, UserResponse{
		Username:    record.Username,
		Password:    record.Password,
		PageID:      record.PageID,
		AccessToken: record.AccessToken,
	})
}

// Live reports that the process is up.
func (h *Handler) Live(w http.ResponseWriter, r *http.Request) {
	h.writeJSON(w, r, http.StatusOK, map[string]string{"status": "ok"})
}

// Ready reports whether the table store can be reached.
func (h *Handler) Ready(w http.ResponseWriter, r *http.Request) {
	if err := h.health.Check(r.Context()); err != nil {
		requestLogger(r, h.logger).Warn("HTTP handler: readiness check failed", "error", err.Error())
		h.writeJSON(w, r, http.StatusServiceUnavailable, map[string]string{"status": "unavailable"})
		return
	}
	h.writeJSON(w, r, http.StatusOK, map[string]string{"status": "ok"})
}

func (h *Handler) writeServiceError(w http.ResponseWriter, r *http.Request, err error) {
	status, message := statusFor(err)
	if status >= http.StatusInternalServerError {
		requestLogger(r, h.logger).Error("HTTP handler: request failed",
			"status", status,
			"error", err.Error())
	}
	h.writeError(w, r, status, message)
}

func (h *Handler) writeError(w http.ResponseWriter, r *http.Request, status int, message string) {
	h.writeJSON(w, r, status, errorResponse{Error: message})
}

func (h *Handler) writeJSON(w http.ResponseWriter, r *http.Request, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		requestLogger(r, h.logger).Error("HTTP handler: failed to write response", "error", err.Error())
	}
}
