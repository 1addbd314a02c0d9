package models

import (
	"fmt"
	"strconv"
	"time"
)

const (
	MinYear = 2000
	MaxYear = 2100

	// MaxDaysInPeriod bounds both working days and leave days.
	MaxDaysInPeriod = 31
)

// Period is a calendar month. Month is 1..12.
type Period struct {
	Month int `json:"month"`
	Year  int `json:"year"`
}

func PeriodOf(t time.Time) Period {
	return Period{Month: int(t.Month()), Year: t.Year()}
}

func (p Period) Validate() error {
	if p.Month < 1 || p.Month > 12 {
		return &ValidationError{Field: "month", Reason: "must be between 1 and 12"}
	}
	if p.Year < MinYear || p.Year > MaxYear {
		return &ValidationError{Field: "year", Reason: fmt.Sprintf("must be between %d and %d", MinYear, MaxYear)}
	}
	return nil
}

func (p Period) String() string {
	return fmt.Sprintf("%04d-%02d", p.Year, p.Month)
}

// ParsePeriod parses month and year as sent by clients and validates them.
func ParsePeriod(month, year string) (Period, error) {
	if month == "" {
		return Period{}, &ValidationError{Field: "month", Reason: "is required"}
	}
	if year == "" {
		return Period{}, &ValidationError{Field: "year", Reason: "is required"}
	}
	m, err := strconv.Atoi(month)
	if err != nil {
		return Period{}, &ValidationError{Field: "month", Reason: "must be a number"}
	}
	y, err := strconv.Atoi(year)
	if err != nil {
		return Period{}, &ValidationError{Field: "year", Reason: "must be a number"}
	}
	p := Period{Month: m, Year: y}
	return p, p.Validate()
}
