// Package tracker holds the timesheet core: each user's monthly ledger
// (resources, working days, leave entries), the cross-user consolidated
// report and the account operations that cascade into both.
//
// Every method takes an already authenticated caller. Mutations are
// serialised per owning user and run inside a single transaction.
package tracker

import (
	"log/slog"
	"time"

	"timesheet/models"

	"gorm.io/gorm"
)

type Service struct {
	db    *gorm.DB
	log   *slog.Logger
	locks *scopeLocks
	now   func() time.Time
}

func New(db *gorm.DB, log *slog.Logger) *Service {
	return &Service{
		db:    db,
		log:   log.With("component", "tracker"),
		locks: newScopeLocks(),
		now:   time.Now,
	}
}

// CurrentPeriod is the calendar month the service clock is in.
func (s *Service) CurrentPeriod() models.Period {
	return models.PeriodOf(s.now())
}
