package handlers

import (
	"fmt"
	"log/slog"
	"net/http"

	"timesheet/middleware"
	"timesheet/models"
	"timesheet/tracker"

	"github.com/go-chi/chi/v5"
)

// LedgerHandler serves the caller's own resources and monthly data.
type LedgerHandler struct {
	svc *tracker.Service
	log *slog.Logger
}

func NewLedgerHandler(svc *tracker.Service, log *slog.Logger) *LedgerHandler {
	return &LedgerHandler{svc: svc, log: log}
}

// Resources lists the caller's resources. With month and year it lists the
// period's resources, provisioning the default one first.
func (h *LedgerHandler) Resources(w http.ResponseWriter, r *http.Request) {
	user := middleware.GetUserFromContext(r.Context())
	q := r.URL.Query()

	if q.Get("month") == "" && q.Get("year") == "" {
		resources, err := h.svc.ListResources(r.Context(), user)
		if err != nil {
			writeError(w, r, h.log, err)
			return
		}
		writeJSON(w, http.StatusOK, resources)
		return
	}

	p, err := queryPeriod(r)
	if err != nil {
		writeError(w, r, h.log, err)
		return
	}
	view, err := h.svc.GetPeriodView(r.Context(), user, p)
	if err != nil {
		writeError(w, r, h.log, err)
		return
	}
	writeJSON(w, http.StatusOK, view.Resources)
}

type addResourceRequest struct {
	Name  string  `json:"name"`
	Month flexInt `json:"month"`
	Year  flexInt `json:"year"`
}

func (h *LedgerHandler) AddResource(w http.ResponseWriter, r *http.Request) {
	user := middleware.GetUserFromContext(r.Context())

	var req addResourceRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, h.log, err)
		return
	}
	p, err := req.Month.period(req.Year)
	if err != nil {
		writeError(w, r, h.log, err)
		return
	}

	resource, err := h.svc.AddResource(r.Context(), user, p, req.Name)
	if err != nil {
		writeError(w, r, h.log, err)
		return
	}
	writeJSON(w, http.StatusCreated, resource)
}

func (h *LedgerHandler) DeleteResource(w http.ResponseWriter, r *http.Request) {
	user := middleware.GetUserFromContext(r.Context())

	id, err := parseID(chi.URLParam(r, "id"), "id")
	if err != nil {
		writeError(w, r, h.log, err)
		return
	}
	if err := h.svc.DeleteResource(r.Context(), user, id); err != nil {
		writeError(w, r, h.log, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *LedgerHandler) MonthlyData(w http.ResponseWriter, r *http.Request) {
	user := middleware.GetUserFromContext(r.Context())

	p, err := queryPeriod(r)
	if err != nil {
		writeError(w, r, h.log, err)
		return
	}
	view, err := h.svc.GetPeriodView(r.Context(), user, p)
	if err != nil {
		writeError(w, r, h.log, err)
		return
	}
	writeJSON(w, http.StatusOK, view)
}

type leaveItem struct {
	ResourceID flexInt `json:"resource_id"`
	LeaveDays  flexInt `json:"leave_days"`
}

// monthlyDataRequest requires every field. leaves may be an empty array
// but not absent or null.
type monthlyDataRequest struct {
	Month       flexInt      `json:"month"`
	Year        flexInt      `json:"year"`
	WorkingDays flexInt      `json:"working_days"`
	Leaves      *[]leaveItem `json:"leaves"`
}

func (req *monthlyDataRequest) parse() (models.Period, int, []models.LeaveInput, error) {
	p, err := req.Month.period(req.Year)
	if err != nil {
		return p, 0, nil, err
	}
	if !req.WorkingDays.Set {
		return p, 0, nil, &models.ValidationError{Field: "working_days", Reason: "is required"}
	}
	if req.Leaves == nil {
		return p, 0, nil, &models.ValidationError{Field: "leaves", Reason: "is required"}
	}

	leaves := make([]models.LeaveInput, 0, len(*req.Leaves))
	for i, item := range *req.Leaves {
		field := fmt.Sprintf("leaves[%d]", i)
		if !item.ResourceID.Set {
			return p, 0, nil, &models.ValidationError{Field: field + ".resource_id", Reason: "is required"}
		}
		if item.ResourceID.Value <= 0 {
			return p, 0, nil, &models.ValidationError{Field: field + ".resource_id", Reason: "must be a positive integer"}
		}
		if !item.LeaveDays.Set {
			return p, 0, nil, &models.ValidationError{Field: field + ".leave_days", Reason: "is required"}
		}
		leaves = append(leaves, models.LeaveInput{
			ResourceID: uint(item.ResourceID.Value),
			LeaveDays:  item.LeaveDays.Value,
		})
	}
	return p, req.WorkingDays.Value, leaves, nil
}

// SaveMonthlyData replaces the caller's working days and leaves for the
// period. Resources missing from leaves have their leave cleared.
func (h *LedgerHandler) SaveMonthlyData(w http.ResponseWriter, r *http.Request) {
	user := middleware.GetUserFromContext(r.Context())

	var req monthlyDataRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, h.log, err)
		return
	}
	p, workingDays, leaves, err := req.parse()
	if err != nil {
		writeError(w, r, h.log, err)
		return
	}

	if err := h.svc.SetPeriodData(r.Context(), user, p, workingDays, leaves); err != nil {
		writeError(w, r, h.log, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"message": "Monthly data saved"})
}
