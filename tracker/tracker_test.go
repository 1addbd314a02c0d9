package tracker

import (
	"context"
	"testing"

	"timesheet/database"
	"timesheet/logging"
	"timesheet/models"

	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

// --- helpers ---

var march2025 = models.Period{Month: 3, Year: 2025}

func newTestService(t *testing.T) (*Service, *gorm.DB) {
	t.Helper()
	db, err := database.Open("sqlite", ":memory:", logging.Discard(), false)
	require.NoError(t, err)
	require.NoError(t, database.Migrate(db))
	t.Cleanup(func() {
		if sqlDB, err := db.DB(); err == nil {
			_ = sqlDB.Close()
		}
	})
	return New(db, logging.Discard()), db
}

func newMember(t *testing.T, s *Service, username string) *models.User {
	t.Helper()
	u, err := s.CreateUser(context.Background(), username, "secret-pw")
	require.NoError(t, err)
	return u
}

func newAdmin(t *testing.T, db *gorm.DB) *models.User {
	t.Helper()
	_, err := database.SeedAdmin(db, "admin", "admin-password")
	require.NoError(t, err)
	var admin models.User
	require.NoError(t, db.Where("role = ?", models.RoleAdmin).First(&admin).Error)
	return &admin
}

func countRows(t *testing.T, db *gorm.DB, model any, where string, args ...any) int64 {
	t.Helper()
	var n int64
	require.NoError(t, db.Model(model).Where(where, args...).Count(&n).Error)
	return n
}
