package handlers

import (
	"errors"
	"log/slog"
	"net/http"

	"timesheet/middleware"
	"timesheet/models"
	"timesheet/tracker"
)

type AuthHandler struct {
	svc  *tracker.Service
	auth *middleware.Auth
	log  *slog.Logger
}

func NewAuthHandler(svc *tracker.Service, auth *middleware.Auth, log *slog.Logger) *AuthHandler {
	return &AuthHandler{svc: svc, auth: auth, log: log}
}

type loginRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

type sessionResponse struct {
	User               *models.User `json:"user"`
	MustChangePassword bool         `json:"must_change_password"`
}

func (h *AuthHandler) Login(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, h.log, err)
		return
	}
	if req.Username == "" || req.Password == "" {
		writeMessage(w, http.StatusBadRequest, "Username and password are required")
		return
	}

	user, err := h.svc.Authenticate(r.Context(), req.Username, req.Password)
	if err != nil {
		writeError(w, r, h.log, err)
		return
	}

	if err := h.auth.SetSessionCookie(w, user); err != nil {
		writeError(w, r, h.log, err)
		return
	}

	// Members always find a resource for the month they log in.
	if user.IsMember() {
		if _, err := h.svc.ProvisionPeriod(r.Context(), user, h.svc.CurrentPeriod()); err != nil {
			h.log.WarnContext(r.Context(), "provisioning on login failed", "user_id", user.ID, "error", err)
		}
	}

	writeJSON(w, http.StatusOK, sessionResponse{User: user, MustChangePassword: user.MustChangePassword})
}

func (h *AuthHandler) Logout(w http.ResponseWriter, r *http.Request) {
	middleware.ClearSessionCookie(w)
	writeJSON(w, http.StatusOK, map[string]string{"message": "Logged out"})
}

// AuthStatus never fails: a missing or stale session just reports
// authenticated=false.
func (h *AuthHandler) AuthStatus(w http.ResponseWriter, r *http.Request) {
	user, err := h.auth.Resolve(r)
	if err != nil {
		middleware.ClearSessionCookie(w)
	}
	if user == nil {
		writeJSON(w, http.StatusOK, map[string]any{"authenticated": false})
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"authenticated":        true,
		"user":                 user,
		"must_change_password": user.MustChangePassword,
	})
}

// Register is closed: accounts are created by the admin.
func (h *AuthHandler) Register(w http.ResponseWriter, r *http.Request) {
	writeMessage(w, http.StatusForbidden, "Registration is disabled")
}

type changePasswordRequest struct {
	CurrentPassword string `json:"current_password"`
	NewPassword     string `json:"new_password"`
	ConfirmPassword string `json:"confirm_password"`
}

func (h *AuthHandler) ChangePassword(w http.ResponseWriter, r *http.Request) {
	user := middleware.GetUserFromContext(r.Context())

	var req changePasswordRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, h.log, err)
		return
	}
	if req.ConfirmPassword != "" && req.ConfirmPassword != req.NewPassword {
		writeError(w, r, h.log, &models.ValidationError{Field: "confirm_password", Reason: "does not match"})
		return
	}

	if err := h.svc.ChangePassword(r.Context(), user, req.CurrentPassword, req.NewPassword); err != nil {
		if errors.Is(err, models.ErrInvalidCredentials) {
			writeMessage(w, http.StatusUnauthorized, "Current password is incorrect")
			return
		}
		writeError(w, r, h.log, err)
		return
	}

	if err := h.auth.SetSessionCookie(w, user); err != nil {
		writeError(w, r, h.log, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"message": "Password changed"})
}

func (h *AuthHandler) SecurityStatus(w http.ResponseWriter, r *http.Request) {
	user := middleware.GetUserFromContext(r.Context())
	writeJSON(w, http.StatusOK, h.svc.SecurityStatus(user))
}
