package patient

import (
	"context"
	"errors"

	"github.com/google/uuid"
)

var (
	ErrPatientNotFound    = errors.New("patient not found")
	ErrTherapistNotFound  = errors.New("therapist not found")
	ErrDisciplineNotFound = errors.New("discipline not found")
)

// Directory resolves references to people and programs owned by the
// patient-management subsystem.
type Directory interface {
	GetPatient(ctx context.Context, id uuid.UUID) (*Patient, error)
	GetTherapist(ctx context.Context, id uuid.UUID) (*Therapist, error)
	GetDiscipline(ctx context.Context, id uuid.UUID) (*Discipline, error)
}
