package tracker

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"timesheet/models"

	"golang.org/x/crypto/bcrypt"
	"gorm.io/gorm"
)

const (
	minUsernameLength = 3
	maxUsernameLength = 100
)

// SecurityStatus tells the client whether the account still needs a
// password change.
type SecurityStatus struct {
	Username           string      `json:"username"`
	Role               models.Role `json:"role"`
	MustChangePassword bool        `json:"must_change_password"`
}

// Authenticate checks a username and password. Unknown users and wrong
// passwords both yield ErrInvalidCredentials.
func (s *Service) Authenticate(ctx context.Context, username, password string) (user *models.User, err error) {
	defer func() { observe("authenticate", err) }()

	user = &models.User{}
	if err := s.db.WithContext(ctx).Where("username = ?", username).First(user).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, models.ErrInvalidCredentials
		}
		return nil, fmt.Errorf("load user: %w", err)
	}

	if err := bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(password)); err != nil {
		return nil, models.ErrInvalidCredentials
	}
	return user, nil
}

// CreateUser creates a member account that must change its password on
// first use. Only the bootstrap admin ever holds the admin role.
func (s *Service) CreateUser(ctx context.Context, username, password string) (user *models.User, err error) {
	defer func() { observe("create_user", err) }()

	username = strings.TrimSpace(username)
	if len(username) < minUsernameLength {
		return nil, &models.ValidationError{Field: "username", Reason: fmt.Sprintf("must be at least %d characters", minUsernameLength)}
	}
	if len(username) > maxUsernameLength {
		return nil, &models.ValidationError{Field: "username", Reason: fmt.Sprintf("must be at most %d characters", maxUsernameLength)}
	}
	user = &models.User{Username: username, Role: models.RoleMember, MustChangePassword: true}
	if len(password) < user.MinPasswordLength() {
		return nil, &models.ValidationError{Field: "password", Reason: fmt.Sprintf("must be at least %d characters", user.MinPasswordLength())}
	}

	db := s.db.WithContext(ctx)

	var count int64
	if err := db.Model(&models.User{}).Where("username = ?", username).Count(&count).Error; err != nil {
		return nil, fmt.Errorf("check username: %w", err)
	}
	if count > 0 {
		return nil, models.ErrConflict
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return nil, fmt.Errorf("hash password: %w", err)
	}
	user.PasswordHash = string(hash)

	if err := db.Create(user).Error; err != nil {
		if errors.Is(err, gorm.ErrDuplicatedKey) {
			return nil, models.ErrConflict
		}
		return nil, fmt.Errorf("create user: %w", err)
	}

	s.log.InfoContext(ctx, "member account created", "user_id", user.ID, "username", user.Username)
	return user, nil
}

// DeleteUser removes a member and every resource, working-day record and
// leave entry they own. The admin account cannot be deleted and is reported
// as not found.
func (s *Service) DeleteUser(ctx context.Context, userID uint) (err error) {
	defer func() { observe("delete_user", err) }()

	unlock := s.locks.lock(userID)
	defer unlock()

	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var user models.User
		if err := tx.Where("id = ? AND role <> ?", userID, models.RoleAdmin).First(&user).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return models.ErrNotFound
			}
			return fmt.Errorf("load user: %w", err)
		}

		for _, m := range []any{&models.LeaveEntry{}, &models.WorkingDays{}, &models.Resource{}} {
			if err := tx.Where("user_id = ?", user.ID).Delete(m).Error; err != nil {
				return fmt.Errorf("delete %T: %w", m, err)
			}
		}
		if err := tx.Delete(&user).Error; err != nil {
			return fmt.Errorf("delete user: %w", err)
		}

		s.log.InfoContext(ctx, "member account deleted", "user_id", user.ID, "username", user.Username)
		return nil
	})
}

// ListMembers returns every non-admin account ordered by username.
func (s *Service) ListMembers(ctx context.Context) ([]models.User, error) {
	var users []models.User
	err := s.db.WithContext(ctx).Where("role <> ?", models.RoleAdmin).Order("username").Find(&users).Error
	observe("list_members", err)
	if err != nil {
		return nil, fmt.Errorf("list members: %w", err)
	}
	return users, nil
}

// ChangePassword replaces the caller's password after checking the current
// one, and clears the must-change flag. user is updated in place.
func (s *Service) ChangePassword(ctx context.Context, user *models.User, current, next string) (err error) {
	defer func() { observe("change_password", err) }()

	if current == "" {
		return &models.ValidationError{Field: "current_password", Reason: "is required"}
	}
	if len(next) < user.MinPasswordLength() {
		return &models.ValidationError{Field: "new_password", Reason: fmt.Sprintf("must be at least %d characters", user.MinPasswordLength())}
	}

	db := s.db.WithContext(ctx)

	var stored models.User
	if err := db.First(&stored, user.ID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return models.ErrNotFound
		}
		return fmt.Errorf("load user: %w", err)
	}
	if err := bcrypt.CompareHashAndPassword([]byte(stored.PasswordHash), []byte(current)); err != nil {
		return models.ErrInvalidCredentials
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(next), bcrypt.DefaultCost)
	if err != nil {
		return fmt.Errorf("hash password: %w", err)
	}

	if err := db.Model(&stored).Updates(map[string]any{
		"password_hash":        string(hash),
		"must_change_password": false,
	}).Error; err != nil {
		return fmt.Errorf("update password: %w", err)
	}

	user.PasswordHash = string(hash)
	user.MustChangePassword = false
	s.log.InfoContext(ctx, "password changed", "user_id", user.ID)
	return nil
}

func (s *Service) SecurityStatus(user *models.User) SecurityStatus {
	return SecurityStatus{
		Username:           user.Username,
		Role:               user.Role,
		MustChangePassword: user.MustChangePassword,
	}
}
