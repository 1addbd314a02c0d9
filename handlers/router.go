package handlers

import (
	"log/slog"
	"net/http"

	"timesheet/middleware"
	"timesheet/models"
	"timesheet/tracker"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
)

type RouterDeps struct {
	Service *tracker.Service
	Auth    *middleware.Auth
	DB      Pinger
	Logger  *slog.Logger
}

func NewRouter(deps RouterDeps) http.Handler {
	authHandler := NewAuthHandler(deps.Service, deps.Auth, deps.Logger)
	ledgerHandler := NewLedgerHandler(deps.Service, deps.Logger)
	adminHandler := NewAdminHandler(deps.Service, deps.Logger)
	healthHandler := NewHealthHandler(deps.DB)

	router := chi.NewRouter()
	router.Use(chimiddleware.Recoverer)
	router.Use(chimiddleware.RealIP)
	router.Use(middleware.RequestID)
	router.Use(middleware.Metrics)
	router.Use(middleware.RequestLogger(deps.Logger))

	router.Get("/health/live", healthHandler.Live)
	router.Get("/health/ready", healthHandler.Ready)
	router.Get("/metrics", healthHandler.Metrics)

	router.Route("/api", func(r chi.Router) {
		// Public routes
		r.Post("/login", authHandler.Login)
		r.Post("/logout", authHandler.Logout)
		r.Get("/auth-status", authHandler.AuthStatus)
		r.Post("/register", authHandler.Register)

		// Protected routes
		r.Group(func(r chi.Router) {
			r.Use(deps.Auth.Middleware)

			// Reachable while a password change is pending
			r.Post("/user/change-password", authHandler.ChangePassword)
			r.Get("/user/security-status", authHandler.SecurityStatus)
			r.Group(func(r chi.Router) {
				r.Use(middleware.RequireRole(models.RoleAdmin))
				r.Post("/admin/change-password", authHandler.ChangePassword)
				r.Get("/admin/security-status", authHandler.SecurityStatus)
			})

			r.Group(func(r chi.Router) {
				r.Use(middleware.RequirePasswordChange)

				r.Get("/resources", ledgerHandler.Resources)
				r.Post("/resources", ledgerHandler.AddResource)
				r.Delete("/resources/{id}", ledgerHandler.DeleteResource)
				r.Get("/monthly-data", ledgerHandler.MonthlyData)
				r.Post("/monthly-data", ledgerHandler.SaveMonthlyData)

				// Admin only routes
				r.Group(func(r chi.Router) {
					r.Use(middleware.RequireRole(models.RoleAdmin))
					r.Get("/admin/users", adminHandler.Users)
					r.Post("/admin/create-user", adminHandler.CreateUser)
					r.Delete("/admin/delete-user/{userID}", adminHandler.DeleteUser)
					r.Get("/admin/all-resources", adminHandler.AllResources)
					r.Get("/admin/monthly-data", adminHandler.MonthlyData)
					r.Get("/admin/monthly-data/csv", adminHandler.ExportCSV)
					r.Get("/admin/user-details/{userID}", adminHandler.UserDetails)
				})
			})
		})
	})

	return router
}
