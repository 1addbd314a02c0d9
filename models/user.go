package models

import (
	"fmt"
	"time"
)

type Role string

const (
	RoleAdmin  Role = "admin"
	RoleMember Role = "member"
)

// ParseRole accepts only the closed set of roles.
func ParseRole(s string) (Role, error) {
	switch Role(s) {
	case RoleAdmin:
		return RoleAdmin, nil
	case RoleMember:
		return RoleMember, nil
	}
	return "", &ValidationError{Field: "role", Reason: fmt.Sprintf("unknown role %q", s)}
}

type User struct {
	ID                 uint      `gorm:"primaryKey" json:"id"`
	CreatedAt          time.Time `json:"created_at"`
	UpdatedAt          time.Time `json:"updated_at"`
	Username           string    `gorm:"uniqueIndex;not null;size:100" json:"username"`
	PasswordHash       string    `gorm:"not null" json:"-"`
	Role               Role      `gorm:"not null;size:20;index" json:"role"`
	MustChangePassword bool      `gorm:"default:true" json:"must_change_password"`
}

func (u *User) IsAdmin() bool {
	return u.Role == RoleAdmin
}

func (u *User) IsMember() bool {
	return u.Role == RoleMember
}

func (u *User) Owns(r *Resource) bool {
	return r != nil && r.UserID == u.ID
}

// MinPasswordLength is 8 for the admin and 6 for members.
func (u *User) MinPasswordLength() int {
	if u.IsAdmin() {
		return 8
	}
	return 6
}
