package schedule

import (
	"fmt"
	"time"

	"github.com/robfig/cron/v3"

	"hostbackup/internal/engine"
)

// Frequency is how often a schedule fires.
type Frequency string

const (
	FrequencyHourly  Frequency = "hourly"
	FrequencyDaily   Frequency = "daily"
	FrequencyWeekly  Frequency = "weekly"
	FrequencyMonthly Frequency = "monthly"
)

// Schedule is a recurring backup policy: timing, target accounts,
// destination and retention.
type Schedule struct {
	ID            string    `json:"id"`
	Name          string    `json:"name"`
	Enabled       bool      `json:"enabled"`
	Frequency     Frequency `json:"frequency"`
	Hour          int       `json:"hour"`
	Minute        int       `json:"minute"`
	DayOfWeek     int       `json:"day_of_week,omitempty"`  // weekly only, 0 = Sunday
	DayOfMonth    int       `json:"day_of_month,omitempty"` // monthly only, 1-28
	AllAccounts   bool      `json:"all_accounts"`
	Accounts      []string  `json:"accounts,omitempty"`
	DestinationID string    `json:"destination"`
	Retention     int       `json:"retention"` // 0 = unlimited
	NotifySuccess bool      `json:"notify_success"`
	NotifyFailure bool      `json:"notify_failure"`
	LastRun       time.Time `json:"last_run,omitempty"`
	LastStatus    string    `json:"last_status,omitempty"`
	NextRun       time.Time `json:"next_run,omitempty"`
}

// Validate checks the schedule definition for consistency.
func (s *Schedule) Validate() error {
	if s.ID == "" {
		return engine.NewValidationError("schedule id cannot be empty", nil)
	}
	if s.DestinationID == "" {
		return engine.NewValidationError("schedule destination cannot be empty", nil)
	}
	switch s.Frequency {
	case FrequencyHourly, FrequencyDaily, FrequencyWeekly, FrequencyMonthly:
	default:
		return engine.NewValidationError(fmt.Sprintf("unsupported frequency: %s", s.Frequency), nil)
	}
	if s.Hour < 0 || s.Hour > 23 {
		return engine.NewValidationError(fmt.Sprintf("hour out of range: %d", s.Hour), nil)
	}
	if s.Minute < 0 || s.Minute > 59 {
		return engine.NewValidationError(fmt.Sprintf("minute out of range: %d", s.Minute), nil)
	}
	if s.Frequency == FrequencyWeekly && (s.DayOfWeek < 0 || s.DayOfWeek > 6) {
		return engine.NewValidationError(fmt.Sprintf("day of week out of range: %d", s.DayOfWeek), nil)
	}
	if s.Frequency == FrequencyMonthly && (s.DayOfMonth < 1 || s.DayOfMonth > 28) {
		// Capped at 28 so monthly schedules fire in every month.
		return engine.NewValidationError(fmt.Sprintf("day of month out of range: %d", s.DayOfMonth), nil)
	}
	if s.Retention < 0 {
		return engine.NewValidationError(fmt.Sprintf("retention cannot be negative: %d", s.Retention), nil)
	}
	return nil
}

// CronSpec renders the schedule timing as a standard five-field cron spec.
func (s *Schedule) CronSpec() string {
	switch s.Frequency {
	case FrequencyHourly:
		return fmt.Sprintf("%d * * * *", s.Minute)
	case FrequencyDaily:
		return fmt.Sprintf("%d %d * * *", s.Minute, s.Hour)
	case FrequencyWeekly:
		return fmt.Sprintf("%d %d * * %d", s.Minute, s.Hour, s.DayOfWeek)
	case FrequencyMonthly:
		return fmt.Sprintf("%d %d %d * *", s.Minute, s.Hour, s.DayOfMonth)
	default:
		return ""
	}
}

// ComputeNextRun returns the first firing time strictly after the given time.
func (s *Schedule) ComputeNextRun(after time.Time) (time.Time, error) {
	spec, err := cron.ParseStandard(s.CronSpec())
	if err != nil {
		return time.Time{}, engine.NewConfigurationError(
			fmt.Sprintf("schedule %s has an invalid timing spec", s.ID), err)
	}
	return spec.Next(after), nil
}

// Due reports whether the schedule should fire now. A schedule with no
// computed next-run yet is not due; the evaluator seeds NextRun first so a
// freshly created schedule waits for its first real window instead of firing
// immediately.
func (s *Schedule) Due(now time.Time) bool {
	if s.NextRun.IsZero() {
		return false
	}
	return !s.NextRun.After(now)
}
