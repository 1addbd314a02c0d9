package tracker

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"timesheet/models"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

const maxResourceNameLength = 100

// ResourceBillable is one resource's line in a period view.
type ResourceBillable struct {
	ResourceID   uint   `json:"resource_id"`
	Name         string `json:"name"`
	LeaveDays    int    `json:"leave_days"`
	BillableDays int    `json:"billable_days"`
}

// PeriodView is a user's own ledger for one period. Billable days in Rows
// are floored at zero per resource, so TotalBillableDays can exceed the
// consolidated report's figure for the same user when leave exceeds the
// working days on some resource.
type PeriodView struct {
	Period            models.Period       `json:"period"`
	Resources         []models.Resource   `json:"resources"`
	WorkingDays       int                 `json:"working_days"`
	Leaves            []models.LeaveEntry `json:"leaves"`
	Rows              []ResourceBillable  `json:"rows"`
	TotalBillableDays int                 `json:"total_billable_days"`
}

// MemberBillableDays is the per-user view's formula, floored at zero.
func MemberBillableDays(workingDays, leaveDays int) int {
	if b := workingDays - leaveDays; b > 0 {
		return b
	}
	return 0
}

// GetPeriodView returns the caller's resources, working days and leaves for
// the period. A member seeing a period for the first time gets one resource
// named after their username.
func (s *Service) GetPeriodView(ctx context.Context, user *models.User, p models.Period) (view *PeriodView, err error) {
	defer func() { observe("get_period_view", err) }()

	if err := p.Validate(); err != nil {
		return nil, err
	}

	unlock := s.locks.lock(user.ID)
	defer unlock()

	if !user.IsAdmin() {
		if _, err := s.provisionLocked(ctx, user, p); err != nil {
			return nil, err
		}
	}

	db := s.db.WithContext(ctx)

	var resources []models.Resource
	if err := db.Where("user_id = ? AND month = ? AND year = ?", user.ID, p.Month, p.Year).
		Order("id").Find(&resources).Error; err != nil {
		return nil, fmt.Errorf("load resources: %w", err)
	}

	workingDays, _, err := loadWorkingDays(db, user.ID, p)
	if err != nil {
		return nil, err
	}

	leaves, err := loadLeaves(db, user.ID, p)
	if err != nil {
		return nil, err
	}

	view = &PeriodView{
		Period:      p,
		Resources:   resources,
		WorkingDays: workingDays,
		Leaves:      leaves,
		Rows:        make([]ResourceBillable, 0, len(resources)),
	}

	byResource := leaveDaysByResource(leaves)
	for _, r := range resources {
		leave := byResource[r.ID]
		billable := MemberBillableDays(workingDays, leave)
		view.Rows = append(view.Rows, ResourceBillable{
			ResourceID:   r.ID,
			Name:         r.Name,
			LeaveDays:    leave,
			BillableDays: billable,
		})
		view.TotalBillableDays += billable
	}

	return view, nil
}

// ProvisionPeriod creates the default resource for a member's period if the
// period has none. It reports whether a resource was created.
func (s *Service) ProvisionPeriod(ctx context.Context, user *models.User, p models.Period) (created bool, err error) {
	defer func() { observe("provision_period", err) }()

	if err := p.Validate(); err != nil {
		return false, err
	}
	if user.IsAdmin() {
		return false, nil
	}

	unlock := s.locks.lock(user.ID)
	defer unlock()

	return s.provisionLocked(ctx, user, p)
}

// provisionLocked must be called with the user's scope lock held.
func (s *Service) provisionLocked(ctx context.Context, user *models.User, p models.Period) (bool, error) {
	created := false
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var count int64
		if err := tx.Model(&models.Resource{}).
			Where("user_id = ? AND month = ? AND year = ?", user.ID, p.Month, p.Year).
			Count(&count).Error; err != nil {
			return err
		}
		if count > 0 {
			return nil
		}

		resource := models.Resource{Name: user.Username, UserID: user.ID, Month: p.Month, Year: p.Year}
		if err := tx.Create(&resource).Error; err != nil {
			return err
		}
		created = true
		return nil
	})
	if err != nil {
		return false, fmt.Errorf("provision resource: %w", err)
	}

	if created {
		resourcesProvisionedTotal.Inc()
		s.log.InfoContext(ctx, "auto-provisioned resource", "user_id", user.ID, "username", user.Username, "period", p.String())
	}
	return created, nil
}

// SetPeriodData stores the working days for the period and replaces every
// leave entry the user has for it with the submitted set. Leaves naming a
// resource the user does not own are dropped without error. Nothing is
// written unless the whole replacement succeeds.
func (s *Service) SetPeriodData(ctx context.Context, user *models.User, p models.Period, workingDays int, leaves []models.LeaveInput) (err error) {
	defer func() { observe("set_period_data", err) }()

	if err := validatePeriodData(p, workingDays, leaves); err != nil {
		return err
	}

	unlock := s.locks.lock(user.ID)
	defer unlock()

	skipped := 0
	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		wd := models.WorkingDays{UserID: user.ID, Month: p.Month, Year: p.Year, Days: workingDays}
		if err := tx.Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "user_id"}, {Name: "year"}, {Name: "month"}},
			DoUpdates: clause.AssignmentColumns([]string{"days", "updated_at"}),
		}).Create(&wd).Error; err != nil {
			return fmt.Errorf("upsert working days: %w", err)
		}

		if err := tx.Where("user_id = ? AND month = ? AND year = ?", user.ID, p.Month, p.Year).
			Delete(&models.LeaveEntry{}).Error; err != nil {
			return fmt.Errorf("clear leaves: %w", err)
		}

		if len(leaves) == 0 {
			return nil
		}

		ids := make([]uint, 0, len(leaves))
		for _, l := range leaves {
			ids = append(ids, l.ResourceID)
		}
		var owned []uint
		if err := tx.Model(&models.Resource{}).
			Where("user_id = ? AND id IN ?", user.ID, ids).
			Pluck("id", &owned).Error; err != nil {
			return fmt.Errorf("check ownership: %w", err)
		}
		ownedSet := make(map[uint]bool, len(owned))
		for _, id := range owned {
			ownedSet[id] = true
		}

		entries := make([]models.LeaveEntry, 0, len(leaves))
		for _, l := range leaves {
			if !ownedSet[l.ResourceID] {
				skipped++
				continue
			}
			// zero is stored too, so it overwrites an earlier value
			entries = append(entries, models.LeaveEntry{
				UserID:     user.ID,
				ResourceID: l.ResourceID,
				Month:      p.Month,
				Year:       p.Year,
				LeaveDays:  l.LeaveDays,
			})
		}
		if len(entries) == 0 {
			return nil
		}
		if err := tx.Create(&entries).Error; err != nil {
			return fmt.Errorf("insert leaves: %w", err)
		}
		return nil
	})
	if err != nil {
		s.log.ErrorContext(ctx, "set period data failed", "user_id", user.ID, "period", p.String(), "error", err)
		return err
	}

	if skipped > 0 {
		leavesSkippedTotal.Add(float64(skipped))
		s.log.DebugContext(ctx, "dropped leaves for resources not owned by caller", "user_id", user.ID, "period", p.String(), "count", skipped)
	}
	s.log.InfoContext(ctx, "period data updated", "user_id", user.ID, "period", p.String(), "working_days", workingDays, "leaves", len(leaves)-skipped)
	return nil
}

func validatePeriodData(p models.Period, workingDays int, leaves []models.LeaveInput) error {
	if err := p.Validate(); err != nil {
		return err
	}
	if workingDays < 0 || workingDays > models.MaxDaysInPeriod {
		return &models.ValidationError{Field: "working_days", Reason: fmt.Sprintf("must be between 0 and %d", models.MaxDaysInPeriod)}
	}

	seen := make(map[uint]bool, len(leaves))
	for i, l := range leaves {
		field := fmt.Sprintf("leaves[%d]", i)
		if l.ResourceID == 0 {
			return &models.ValidationError{Field: field + ".resource_id", Reason: "is required"}
		}
		if l.LeaveDays < 0 || l.LeaveDays > models.MaxDaysInPeriod {
			return &models.ValidationError{Field: field + ".leave_days", Reason: fmt.Sprintf("must be between 0 and %d", models.MaxDaysInPeriod)}
		}
		if seen[l.ResourceID] {
			return &models.ValidationError{Field: field + ".resource_id", Reason: "is duplicated"}
		}
		seen[l.ResourceID] = true
	}
	return nil
}

// AddResource creates a named resource for the caller's period.
func (s *Service) AddResource(ctx context.Context, user *models.User, p models.Period, name string) (resource *models.Resource, err error) {
	defer func() { observe("add_resource", err) }()

	if err := p.Validate(); err != nil {
		return nil, err
	}
	name = strings.TrimSpace(name)
	if name == "" {
		return nil, &models.ValidationError{Field: "name", Reason: "is required"}
	}
	if len(name) > maxResourceNameLength {
		return nil, &models.ValidationError{Field: "name", Reason: fmt.Sprintf("must be at most %d characters", maxResourceNameLength)}
	}

	unlock := s.locks.lock(user.ID)
	defer unlock()

	resource = &models.Resource{Name: name, UserID: user.ID, Month: p.Month, Year: p.Year}
	if err := s.db.WithContext(ctx).Create(resource).Error; err != nil {
		return nil, fmt.Errorf("create resource: %w", err)
	}
	return resource, nil
}

// ListResources returns all the caller's resources across periods.
func (s *Service) ListResources(ctx context.Context, user *models.User) ([]models.Resource, error) {
	var resources []models.Resource
	err := s.db.WithContext(ctx).Where("user_id = ?", user.ID).
		Order("year, month, id").Find(&resources).Error
	observe("list_resources", err)
	if err != nil {
		return nil, fmt.Errorf("list resources: %w", err)
	}
	return resources, nil
}

// DeleteResource removes one of the caller's resources together with its
// leave entries. A resource that is missing or belongs to someone else
// yields ErrAccessDenied either way.
func (s *Service) DeleteResource(ctx context.Context, user *models.User, resourceID uint) (err error) {
	defer func() { observe("delete_resource", err) }()

	unlock := s.locks.lock(user.ID)
	defer unlock()

	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var resource models.Resource
		if err := tx.First(&resource, resourceID).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return models.ErrAccessDenied
			}
			return fmt.Errorf("load resource: %w", err)
		}
		if !user.Owns(&resource) {
			return models.ErrAccessDenied
		}

		if err := tx.Where("resource_id = ? AND user_id = ?", resource.ID, user.ID).
			Delete(&models.LeaveEntry{}).Error; err != nil {
			return fmt.Errorf("delete leaves: %w", err)
		}
		if err := tx.Delete(&resource).Error; err != nil {
			return fmt.Errorf("delete resource: %w", err)
		}

		s.log.InfoContext(ctx, "resource deleted", "user_id", user.ID, "resource_id", resource.ID, "period", resource.Period().String())
		return nil
	})
}

// loadWorkingDays reports the stored count and whether a record exists.
func loadWorkingDays(db *gorm.DB, userID uint, p models.Period) (int, bool, error) {
	var wd models.WorkingDays
	res := db.Where("user_id = ? AND month = ? AND year = ?", userID, p.Month, p.Year).Limit(1).Find(&wd)
	if res.Error != nil {
		return 0, false, fmt.Errorf("load working days: %w", res.Error)
	}
	if res.RowsAffected == 0 {
		return 0, false, nil
	}
	return wd.Days, true, nil
}

func loadLeaves(db *gorm.DB, userID uint, p models.Period) ([]models.LeaveEntry, error) {
	var leaves []models.LeaveEntry
	if err := db.Where("user_id = ? AND month = ? AND year = ?", userID, p.Month, p.Year).
		Order("resource_id").Find(&leaves).Error; err != nil {
		return nil, fmt.Errorf("load leaves: %w", err)
	}
	return leaves, nil
}

func leaveDaysByResource(leaves []models.LeaveEntry) map[uint]int {
	m := make(map[uint]int, len(leaves))
	for _, l := range leaves {
		m[l.ResourceID] = l.LeaveDays
	}
	return m
}
