package appointment

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// ListFilter narrows List queries. Nil fields are ignored.
type ListFilter struct {
	PatientID   *uuid.UUID
	TherapistID *uuid.UUID
	TemplateID  *uuid.UUID
	Status      string
	From        *time.Time
	To          *time.Time
}

type Repository interface {
	Create(ctx context.Context, a *Appointment) error
	GetByID(ctx context.Context, id uuid.UUID) (*Appointment, error)
	Update(ctx context.Context, a *Appointment) error
	Delete(ctx context.Context, id uuid.UUID) error
	List(ctx context.Context, f ListFilter, limit, offset int) ([]*Appointment, int, error)

	// ListActiveOnDate returns active appointments on the given date that
	// involve either the patient or the therapist. The conflict detector
	// filters these down to actual interval overlaps.
	ListActiveOnDate(ctx context.Context, date time.Time, patientID, therapistID uuid.UUID) ([]*Appointment, error)

	// ListScheduledUnlinked returns scheduled appointments without a linked
	// progress record whose date falls in [from, to].
	ListScheduledUnlinked(ctx context.Context, from, to time.Time) ([]*Appointment, error)

	// MarkMissedBefore moves every scheduled appointment whose start is
	// before cutoff to missed, returning the number of rows changed.
	MarkMissedBefore(ctx context.Context, cutoff time.Time) (int64, error)

	ExistsByProgressRecord(ctx context.Context, progressRecordID uuid.UUID) (bool, error)

	// HasCompletedFor reports whether a completed appointment already exists
	// for the patient/therapist pair on the given date.
	HasCompletedFor(ctx context.Context, patientID, therapistID uuid.UUID, date time.Time) (bool, error)
}
