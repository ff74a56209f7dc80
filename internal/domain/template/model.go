// Package template manages recurring appointment templates and expands
// them into concrete appointments up to a generation horizon.
package template

import (
	"errors"
	"time"

	"github.com/google/uuid"
)

var ErrNotFound = errors.New("recurring template not found")

// RecurrenceWeekly is the only recurrence cadence supported today. The
// column exists so denser cadences can be added without a schema change.
const RecurrenceWeekly = "weekly"

// RecurringTemplate maps to the recurring_template table. DayOfWeek uses
// time.Weekday numbering (0 = Sunday).
type RecurringTemplate struct {
	ID                 uuid.UUID  `db:"id" json:"id"`
	PatientID          uuid.UUID  `db:"patient_id" json:"patient_id"`
	TherapistID        uuid.UUID  `db:"therapist_id" json:"therapist_id"`
	DisciplineID       *uuid.UUID `db:"discipline_id" json:"discipline_id,omitempty"`
	RecurrenceType     string     `db:"recurrence_type" json:"recurrence_type"`
	DayOfWeek          int        `db:"day_of_week" json:"day_of_week"`
	ScheduledTime      string     `db:"scheduled_time" json:"scheduled_time"`
	DurationMinutes    int        `db:"duration_minutes" json:"duration_minutes"`
	StartDate          time.Time  `db:"start_date" json:"start_date"`
	EndDate            *time.Time `db:"end_date" json:"end_date,omitempty"`
	GenerateWeeksAhead int        `db:"generate_weeks_ahead" json:"generate_weeks_ahead"`
	SkipHolidays       bool       `db:"skip_holidays" json:"skip_holidays"`
	IsActive           bool       `db:"is_active" json:"is_active"`
	IsPaused           bool       `db:"is_paused" json:"is_paused"`
	PausedUntil        *time.Time `db:"paused_until" json:"paused_until,omitempty"`
	LastGenerationDate *time.Time `db:"last_generation_date" json:"last_generation_date,omitempty"`
	CreatedBy          *uuid.UUID `db:"created_by" json:"created_by,omitempty"`
	Notes              *string    `db:"notes" json:"notes,omitempty"`
	CreatedAt          time.Time  `db:"created_at" json:"created_at"`
	UpdatedAt          time.Time  `db:"updated_at" json:"updated_at"`
}

// PausedOn reports whether generation should skip the template on the
// given day. A paused_until date in the past means the pause has lapsed.
func (t *RecurringTemplate) PausedOn(day time.Time) bool {
	if !t.IsPaused {
		return false
	}
	return t.PausedUntil == nil || !t.PausedUntil.Before(day)
}

// Holiday maps to the holiday table. Templates with SkipHolidays set
// never generate an appointment on one of these dates.
type Holiday struct {
	ID        uuid.UUID `db:"id" json:"id"`
	Date      time.Time `db:"date" json:"date"`
	Name      string    `db:"name" json:"name"`
	CreatedAt time.Time `db:"created_at" json:"created_at"`
}
