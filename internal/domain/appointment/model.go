// Package appointment holds the appointment store, its status state
// machine and the overlap-based conflict detector.
package appointment

import (
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

// Appointment statuses.
const (
	StatusScheduled = "scheduled"
	StatusCompleted = "completed"
	StatusMissed    = "missed"
	StatusCancelled = "cancelled"
)

// Detection sources record how an appointment entered the system.
const (
	SourceManual          = "manual"
	SourceAutoDetected    = "auto_detected"
	SourceOrphanConverted = "orphan_converted"
)

var validStatuses = map[string]bool{
	StatusScheduled: true, StatusCompleted: true,
	StatusMissed: true, StatusCancelled: true,
}

var validSources = map[string]bool{
	SourceManual: true, SourceAutoDetected: true, SourceOrphanConverted: true,
}

// validTransitions enumerates the allowed status moves. Completed and
// cancelled are terminal; missed can still be cancelled or, via late
// reconciliation, completed.
var validTransitions = map[string]map[string]bool{
	StatusScheduled: {StatusCompleted: true, StatusMissed: true, StatusCancelled: true},
	StatusMissed:    {StatusCompleted: true, StatusCancelled: true},
}

// CanTransition reports whether from -> to is an allowed status move.
func CanTransition(from, to string) bool {
	return validTransitions[from][to]
}

// Appointment maps to the appointment table.
type Appointment struct {
	ID                  uuid.UUID  `db:"id" json:"id"`
	PatientID           uuid.UUID  `db:"patient_id" json:"patient_id"`
	TherapistID         uuid.UUID  `db:"therapist_id" json:"therapist_id"`
	DisciplineID        *uuid.UUID `db:"discipline_id" json:"discipline_id,omitempty"`
	ScheduledDate       time.Time  `db:"scheduled_date" json:"scheduled_date"`
	ScheduledTime       string     `db:"scheduled_time" json:"scheduled_time"`
	DurationMinutes     int        `db:"duration_minutes" json:"duration_minutes"`
	Status              string     `db:"status" json:"status"`
	DetectionSource     string     `db:"detection_source" json:"detection_source"`
	IsRetroactive       bool       `db:"is_retroactive" json:"is_retroactive"`
	ProgressRecordID    *uuid.UUID `db:"progress_record_id" json:"progress_record_id,omitempty"`
	RecurringTemplateID *uuid.UUID `db:"recurring_template_id" json:"recurring_template_id,omitempty"`
	MissedReason        *string    `db:"missed_reason" json:"missed_reason,omitempty"`
	JustifiedBy         *uuid.UUID `db:"justified_by" json:"justified_by,omitempty"`
	JustifiedAt         *time.Time `db:"justified_at" json:"justified_at,omitempty"`
	CancellationReason  *string    `db:"cancellation_reason" json:"cancellation_reason,omitempty"`
	Notes               *string    `db:"notes" json:"notes,omitempty"`
	CreatedBy           *uuid.UUID `db:"created_by" json:"created_by,omitempty"`
	CreatedAt           time.Time  `db:"created_at" json:"created_at"`
	UpdatedAt           time.Time  `db:"updated_at" json:"updated_at"`
}

// ParseClock parses an HH:MM wall-clock string into hour and minute.
func ParseClock(s string) (int, int, error) {
	t, err := time.Parse("15:04", strings.TrimSpace(s))
	if err != nil {
		return 0, 0, fmt.Errorf("invalid time %q, want HH:MM", s)
	}
	return t.Hour(), t.Minute(), nil
}

// StartsAt combines the scheduled date and wall-clock time.
func (a *Appointment) StartsAt() (time.Time, error) {
	h, m, err := ParseClock(a.ScheduledTime)
	if err != nil {
		return time.Time{}, err
	}
	d := a.ScheduledDate
	return time.Date(d.Year(), d.Month(), d.Day(), h, m, 0, 0, d.Location()), nil
}

// Interval returns the half-open [start, end) occupied by the appointment.
func (a *Appointment) Interval() (time.Time, time.Time, error) {
	start, err := a.StartsAt()
	if err != nil {
		return time.Time{}, time.Time{}, err
	}
	return start, start.Add(time.Duration(a.DurationMinutes) * time.Minute), nil
}

// IsActive reports whether the appointment still occupies its slot.
// Cancelled and missed appointments free the slot for others.
func (a *Appointment) IsActive() bool {
	return a.Status == StatusScheduled || a.Status == StatusCompleted
}

// Overlaps reports whether two appointments occupy intersecting intervals.
// Back-to-back appointments (one ends exactly when the other starts) do
// not overlap.
func (a *Appointment) Overlaps(b *Appointment) (bool, error) {
	aStart, aEnd, err := a.Interval()
	if err != nil {
		return false, err
	}
	bStart, bEnd, err := b.Interval()
	if err != nil {
		return false, err
	}
	return aStart.Before(bEnd) && bStart.Before(aEnd), nil
}
