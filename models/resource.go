package models

import "time"

// Resource is one billable unit a user tracks for a single period.
// Names are not unique within a period.
type Resource struct {
	ID        uint      `gorm:"primaryKey" json:"id"`
	CreatedAt time.Time `json:"created_at"`
	Name      string    `gorm:"not null;size:100" json:"name"`
	UserID    uint      `gorm:"not null;index:idx_resources_scope,priority:1" json:"user_id"`
	Month     int       `gorm:"not null;index:idx_resources_scope,priority:3" json:"month"`
	Year      int       `gorm:"not null;index:idx_resources_scope,priority:2" json:"year"`
}

func (r *Resource) Period() Period {
	return Period{Month: r.Month, Year: r.Year}
}

// ResourceWithOwner is a resource joined with its owner's username.
type ResourceWithOwner struct {
	ID       uint   `json:"id"`
	Name     string `json:"name"`
	UserID   uint   `json:"user_id"`
	Username string `json:"username"`
	Month    int    `json:"month"`
	Year     int    `json:"year"`
}
