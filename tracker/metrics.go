package tracker

import (
	"errors"

	"timesheet/models"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	operationsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "timesheet_operations_total",
			Help: "Ledger, report and account operations by outcome.",
		},
		[]string{"operation", "result"},
	)

	resourcesProvisionedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "timesheet_resources_provisioned_total",
		Help: "Resources created automatically for a user's first view of a period.",
	})

	leavesSkippedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "timesheet_leaves_skipped_total",
		Help: "Submitted leave entries dropped because the caller does not own the resource.",
	})
)

func observe(operation string, err error) {
	operationsTotal.WithLabelValues(operation, resultLabel(err)).Inc()
}

func resultLabel(err error) string {
	switch {
	case err == nil:
		return "ok"
	case errors.Is(err, models.ErrValidation):
		return "invalid"
	case errors.Is(err, models.ErrAccessDenied):
		return "denied"
	case errors.Is(err, models.ErrNotFound):
		return "not_found"
	case errors.Is(err, models.ErrConflict):
		return "conflict"
	case errors.Is(err, models.ErrInvalidCredentials):
		return "unauthorized"
	default:
		return "error"
	}
}
