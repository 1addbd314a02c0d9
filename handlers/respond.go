package handlers

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"strings"

	"timesheet/middleware"
	"timesheet/models"
)

const maxBodyBytes = 1 << 20

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeMessage(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

// writeError maps domain errors to status codes. Anything unrecognised is
// logged and reported as a bare 500.
func writeError(w http.ResponseWriter, r *http.Request, log *slog.Logger, err error) {
	switch {
	case errors.Is(err, models.ErrValidation):
		writeMessage(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, models.ErrInvalidCredentials):
		writeMessage(w, http.StatusUnauthorized, "Invalid credentials")
	case errors.Is(err, models.ErrAccessDenied):
		writeMessage(w, http.StatusForbidden, "Access denied")
	case errors.Is(err, models.ErrNotFound):
		writeMessage(w, http.StatusNotFound, "Not found")
	case errors.Is(err, models.ErrConflict):
		writeMessage(w, http.StatusConflict, err.Error())
	default:
		log.ErrorContext(r.Context(), "request failed",
			"method", r.Method,
			"path", r.URL.Path,
			"request_id", middleware.RequestIDFromContext(r.Context()),
			"error", err,
		)
		writeMessage(w, http.StatusInternalServerError, "internal error")
	}
}

func decodeJSON(w http.ResponseWriter, r *http.Request, v any) error {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		return &models.ValidationError{Field: "body", Reason: "must be valid JSON"}
	}
	return nil
}

// flexInt accepts a JSON number or a numeric string. Browser forms send
// month and year either way.
type flexInt struct {
	Value int
	Set   bool
}

func (f *flexInt) UnmarshalJSON(b []byte) error {
	s := strings.TrimSpace(string(b))
	if s == "null" {
		return nil
	}
	if unq, err := strconv.Unquote(s); err == nil {
		s = strings.TrimSpace(unq)
		if s == "" {
			return nil
		}
	}
	n, err := strconv.Atoi(s)
	if err != nil {
		return err
	}
	f.Value, f.Set = n, true
	return nil
}

func (f flexInt) period(year flexInt) (models.Period, error) {
	if !f.Set {
		return models.Period{}, &models.ValidationError{Field: "month", Reason: "is required"}
	}
	if !year.Set {
		return models.Period{}, &models.ValidationError{Field: "year", Reason: "is required"}
	}
	p := models.Period{Month: f.Value, Year: year.Value}
	return p, p.Validate()
}

func queryPeriod(r *http.Request) (models.Period, error) {
	q := r.URL.Query()
	return models.ParsePeriod(q.Get("month"), q.Get("year"))
}

func parseID(raw, field string) (uint, error) {
	id, err := strconv.ParseUint(raw, 10, 32)
	if err != nil || id == 0 {
		return 0, &models.ValidationError{Field: field, Reason: "must be a positive integer"}
	}
	return uint(id), nil
}
