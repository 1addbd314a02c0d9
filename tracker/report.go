package tracker

import (
	"context"
	"errors"
	"fmt"

	"timesheet/models"

	"gorm.io/gorm"
)

// DefaultAdminWorkingDays is shown in the admin user detail when the user
// has not declared working days for the period.
const DefaultAdminWorkingDays = 22

// UserSummary is one user's line in the consolidated report.
//
// BillableDays is WorkingDays*TotalResources - TotalLeaves and is not
// floored, unlike the per-resource figures of PeriodView. The two disagree
// whenever a single resource's leave exceeds the working days.
type UserSummary struct {
	UserID         uint   `json:"user_id"`
	Username       string `json:"username"`
	WorkingDays    int    `json:"working_days"`
	TotalResources int    `json:"total_resources"`
	TotalLeaves    int    `json:"total_leaves"`
	BillableDays   int    `json:"billable_days"`
}

// ReportTotals sums a consolidated report.
type ReportTotals struct {
	Users        int `json:"users"`
	Resources    int `json:"resources"`
	LeaveDays    int `json:"leave_days"`
	BillableDays int `json:"billable_days"`
}

// UserDetail is the admin's drill-down into one user. Resources span every
// period while WorkingDays, Leaves and Rows are scoped to Period. Rows are
// not floored.
type UserDetail struct {
	User        models.User         `json:"user"`
	Period      models.Period       `json:"period"`
	Resources   []models.Resource   `json:"resources"`
	WorkingDays int                 `json:"working_days"`
	Leaves      []models.LeaveEntry `json:"leaves"`
	Rows        []ResourceBillable  `json:"rows"`
}

// ConsolidatedBillableDays is the report's aggregate formula.
func ConsolidatedBillableDays(workingDays, resources, leaveDays int) int {
	return workingDays*resources - leaveDays
}

type userTotal struct {
	UserID uint
	Total  int64
}

// ConsolidatedReport summarises every member with activity in the period,
// ordered by username. Members with neither resources nor working days are
// left out.
func (s *Service) ConsolidatedReport(ctx context.Context, p models.Period) (rows []UserSummary, err error) {
	defer func() { observe("consolidated_report", err) }()

	if err := p.Validate(); err != nil {
		return nil, err
	}

	db := s.db.WithContext(ctx)

	var members []models.User
	if err := db.Where("role <> ?", models.RoleAdmin).Order("username").Find(&members).Error; err != nil {
		return nil, fmt.Errorf("load members: %w", err)
	}

	var workingDays []userTotal
	if err := db.Model(&models.WorkingDays{}).
		Select("user_id, days AS total").
		Where("month = ? AND year = ?", p.Month, p.Year).
		Scan(&workingDays).Error; err != nil {
		return nil, fmt.Errorf("load working days: %w", err)
	}

	var resourceCounts []userTotal
	if err := db.Model(&models.Resource{}).
		Select("user_id, COUNT(*) AS total").
		Where("month = ? AND year = ?", p.Month, p.Year).
		Group("user_id").
		Scan(&resourceCounts).Error; err != nil {
		return nil, fmt.Errorf("count resources: %w", err)
	}

	var leaveSums []userTotal
	if err := db.Model(&models.LeaveEntry{}).
		Select("user_id, COALESCE(SUM(leave_days), 0) AS total").
		Where("month = ? AND year = ?", p.Month, p.Year).
		Group("user_id").
		Scan(&leaveSums).Error; err != nil {
		return nil, fmt.Errorf("sum leaves: %w", err)
	}

	wd, rc, ls := totalsByUser(workingDays), totalsByUser(resourceCounts), totalsByUser(leaveSums)

	rows = make([]UserSummary, 0, len(members))
	for _, m := range members {
		row := UserSummary{
			UserID:         m.ID,
			Username:       m.Username,
			WorkingDays:    wd[m.ID],
			TotalResources: rc[m.ID],
			TotalLeaves:    ls[m.ID],
		}
		if row.TotalResources == 0 && row.WorkingDays == 0 {
			continue
		}
		row.BillableDays = ConsolidatedBillableDays(row.WorkingDays, row.TotalResources, row.TotalLeaves)
		rows = append(rows, row)
	}
	return rows, nil
}

func totalsByUser(totals []userTotal) map[uint]int {
	m := make(map[uint]int, len(totals))
	for _, t := range totals {
		m[t.UserID] = int(t.Total)
	}
	return m
}

// Summarize adds up the report's columns.
func Summarize(rows []UserSummary) ReportTotals {
	totals := ReportTotals{Users: len(rows)}
	for _, r := range rows {
		totals.Resources += r.TotalResources
		totals.LeaveDays += r.TotalLeaves
		totals.BillableDays += r.BillableDays
	}
	return totals
}

// UserDetail returns a user's ledger as the admin sees it.
func (s *Service) UserDetail(ctx context.Context, userID uint, p models.Period) (detail *UserDetail, err error) {
	defer func() { observe("user_detail", err) }()

	if err := p.Validate(); err != nil {
		return nil, err
	}

	db := s.db.WithContext(ctx)

	var user models.User
	if err := db.First(&user, userID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, models.ErrNotFound
		}
		return nil, fmt.Errorf("load user: %w", err)
	}

	var resources []models.Resource
	if err := db.Where("user_id = ?", user.ID).Order("year, month, id").Find(&resources).Error; err != nil {
		return nil, fmt.Errorf("load resources: %w", err)
	}

	workingDays, ok, err := loadWorkingDays(db, user.ID, p)
	if err != nil {
		return nil, err
	}
	if !ok {
		workingDays = DefaultAdminWorkingDays
	}

	leaves, err := loadLeaves(db, user.ID, p)
	if err != nil {
		return nil, err
	}

	detail = &UserDetail{
		User:        user,
		Period:      p,
		Resources:   resources,
		WorkingDays: workingDays,
		Leaves:      leaves,
		Rows:        make([]ResourceBillable, 0, len(resources)),
	}
	byResource := leaveDaysByResource(leaves)
	for _, r := range resources {
		leave := byResource[r.ID]
		detail.Rows = append(detail.Rows, ResourceBillable{
			ResourceID:   r.ID,
			Name:         r.Name,
			LeaveDays:    leave,
			BillableDays: workingDays - leave,
		})
	}
	return detail, nil
}

// AllResources lists every member's resources with the owner's username,
// optionally restricted to one period.
func (s *Service) AllResources(ctx context.Context, p *models.Period) (resources []models.ResourceWithOwner, err error) {
	defer func() { observe("all_resources", err) }()

	query := s.db.WithContext(ctx).
		Table("resources AS r").
		Select("r.id, r.name, r.user_id, u.username, r.month, r.year").
		Joins("JOIN users u ON u.id = r.user_id").
		Where("u.role <> ?", models.RoleAdmin)

	if p != nil {
		if err := p.Validate(); err != nil {
			return nil, err
		}
		query = query.Where("r.month = ? AND r.year = ?", p.Month, p.Year)
	}

	if err := query.Order("u.username, r.name").Scan(&resources).Error; err != nil {
		return nil, fmt.Errorf("list resources: %w", err)
	}
	return resources, nil
}
