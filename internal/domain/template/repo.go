package template

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// ListFilter narrows template listings. Nil fields are ignored.
type ListFilter struct {
	PatientID   *uuid.UUID
	TherapistID *uuid.UUID
	ActiveOnly  bool
}

type Repository interface {
	Create(ctx context.Context, t *RecurringTemplate) error
	GetByID(ctx context.Context, id uuid.UUID) (*RecurringTemplate, error)
	Update(ctx context.Context, t *RecurringTemplate) error
	Delete(ctx context.Context, id uuid.UUID) error
	List(ctx context.Context, f ListFilter, limit, offset int) ([]*RecurringTemplate, int, error)

	// SetLastGeneration advances the generation watermark.
	SetLastGeneration(ctx context.Context, id uuid.UUID, date time.Time) error

	// ListDue returns active, unpaused templates whose next weekly
	// occurrence still falls inside their generation horizon.
	ListDue(ctx context.Context, asOf time.Time) ([]*RecurringTemplate, error)
}

type HolidayRepository interface {
	Create(ctx context.Context, h *Holiday) error
	Delete(ctx context.Context, id uuid.UUID) error
	ListBetween(ctx context.Context, from, to time.Time) ([]*Holiday, error)
}
