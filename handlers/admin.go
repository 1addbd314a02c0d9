package handlers

import (
	"encoding/csv"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"

	"timesheet/middleware"
	"timesheet/models"
	"timesheet/tracker"

	"github.com/go-chi/chi/v5"
)

type AdminHandler struct {
	svc *tracker.Service
	log *slog.Logger
}

func NewAdminHandler(svc *tracker.Service, log *slog.Logger) *AdminHandler {
	return &AdminHandler{svc: svc, log: log}
}

func (h *AdminHandler) Users(w http.ResponseWriter, r *http.Request) {
	users, err := h.svc.ListMembers(r.Context())
	if err != nil {
		writeError(w, r, h.log, err)
		return
	}
	writeJSON(w, http.StatusOK, users)
}

type createUserRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

func (h *AdminHandler) CreateUser(w http.ResponseWriter, r *http.Request) {
	var req createUserRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, h.log, err)
		return
	}

	user, err := h.svc.CreateUser(r.Context(), req.Username, req.Password)
	if err != nil {
		writeError(w, r, h.log, err)
		return
	}
	writeJSON(w, http.StatusCreated, user)
}

func (h *AdminHandler) DeleteUser(w http.ResponseWriter, r *http.Request) {
	id, err := parseID(chi.URLParam(r, "userID"), "user_id")
	if err != nil {
		writeError(w, r, h.log, err)
		return
	}
	if err := h.svc.DeleteUser(r.Context(), id); err != nil {
		writeError(w, r, h.log, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"message": "User deleted"})
}

// AllResources lists every member's resources, optionally for one period.
func (h *AdminHandler) AllResources(w http.ResponseWriter, r *http.Request) {
	var period *models.Period
	q := r.URL.Query()
	if q.Get("month") != "" || q.Get("year") != "" {
		p, err := queryPeriod(r)
		if err != nil {
			writeError(w, r, h.log, err)
			return
		}
		period = &p
	}

	resources, err := h.svc.AllResources(r.Context(), period)
	if err != nil {
		writeError(w, r, h.log, err)
		return
	}
	writeJSON(w, http.StatusOK, resources)
}

type consolidatedResponse struct {
	Period models.Period         `json:"period"`
	Rows   []tracker.UserSummary `json:"rows"`
	Totals tracker.ReportTotals  `json:"totals"`
}

func (h *AdminHandler) MonthlyData(w http.ResponseWriter, r *http.Request) {
	p, err := queryPeriod(r)
	if err != nil {
		writeError(w, r, h.log, err)
		return
	}
	rows, err := h.svc.ConsolidatedReport(r.Context(), p)
	if err != nil {
		writeError(w, r, h.log, err)
		return
	}
	writeJSON(w, http.StatusOK, consolidatedResponse{
		Period: p,
		Rows:   rows,
		Totals: tracker.Summarize(rows),
	})
}

// ExportCSV writes the consolidated report as a CSV attachment with a
// trailing totals line.
func (h *AdminHandler) ExportCSV(w http.ResponseWriter, r *http.Request) {
	p, err := queryPeriod(r)
	if err != nil {
		writeError(w, r, h.log, err)
		return
	}
	rows, err := h.svc.ConsolidatedReport(r.Context(), p)
	if err != nil {
		writeError(w, r, h.log, err)
		return
	}

	filename := fmt.Sprintf("billable_%d_%02d.csv", p.Year, p.Month)
	w.Header().Set("Content-Type", "text/csv")
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%s", filename))

	writer := csv.NewWriter(w)

	writer.Write([]string{"Username", "Working Days", "Resources", "Leave Days", "Billable Days"})
	for _, row := range rows {
		writer.Write([]string{
			row.Username,
			strconv.Itoa(row.WorkingDays),
			strconv.Itoa(row.TotalResources),
			strconv.Itoa(row.TotalLeaves),
			strconv.Itoa(row.BillableDays),
		})
	}

	totals := tracker.Summarize(rows)
	writer.Write([]string{
		"TOTAL",
		"",
		strconv.Itoa(totals.Resources),
		strconv.Itoa(totals.LeaveDays),
		strconv.Itoa(totals.BillableDays),
	})

	// Headers are already sent, so a failed write can only be logged.
	writer.Flush()
	if err := writer.Error(); err != nil {
		h.log.ErrorContext(r.Context(), "csv export failed",
			"period", p.String(),
			"request_id", middleware.RequestIDFromContext(r.Context()),
			"error", err,
		)
	}
}

func (h *AdminHandler) UserDetails(w http.ResponseWriter, r *http.Request) {
	id, err := parseID(chi.URLParam(r, "userID"), "user_id")
	if err != nil {
		writeError(w, r, h.log, err)
		return
	}
	p, err := queryPeriod(r)
	if err != nil {
		writeError(w, r, h.log, err)
		return
	}

	detail, err := h.svc.UserDetail(r.Context(), id, p)
	if err != nil {
		writeError(w, r, h.log, err)
		return
	}
	writeJSON(w, http.StatusOK, detail)
}
