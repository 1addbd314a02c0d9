package models

import "time"

// WorkingDays is the working-day count a user declares for one period. It
// applies to every resource the user owns in that period.
type WorkingDays struct {
	ID        uint      `gorm:"primaryKey" json:"-"`
	UpdatedAt time.Time `json:"updated_at"`
	UserID    uint      `gorm:"not null;uniqueIndex:idx_working_days_scope,priority:1" json:"user_id"`
	Year      int       `gorm:"not null;uniqueIndex:idx_working_days_scope,priority:2" json:"year"`
	Month     int       `gorm:"not null;uniqueIndex:idx_working_days_scope,priority:3" json:"month"`
	Days      int       `gorm:"not null" json:"working_days"`
}

// LeaveEntry records leave days for one resource in one period.
type LeaveEntry struct {
	ID         uint `gorm:"primaryKey" json:"-"`
	UserID     uint `gorm:"not null;index" json:"user_id"`
	ResourceID uint `gorm:"not null;uniqueIndex:idx_leave_entries_scope,priority:1" json:"resource_id"`
	Year       int  `gorm:"not null;uniqueIndex:idx_leave_entries_scope,priority:2" json:"year"`
	Month      int  `gorm:"not null;uniqueIndex:idx_leave_entries_scope,priority:3" json:"month"`
	LeaveDays  int  `gorm:"not null" json:"leave_days"`
}

// LeaveInput is one submitted leave value.
type LeaveInput struct {
	ResourceID uint `json:"resource_id"`
	LeaveDays  int  `json:"leave_days"`
}
