// Package patient is the read side of the patient/program store. Patient,
// therapist and discipline records are managed by another subsystem; the
// scheduling engine only resolves references and preference flags here.
package patient

import (
	"time"

	"github.com/google/uuid"
)

// Patient maps to the patient table.
type Patient struct {
	ID                   uuid.UUID  `db:"id" json:"id"`
	FullName             string     `db:"full_name" json:"full_name"`
	PreferredTherapistID *uuid.UUID `db:"preferred_therapist_id" json:"preferred_therapist_id,omitempty"`
	Active               bool       `db:"active" json:"active"`
	CreatedAt            time.Time  `db:"created_at" json:"created_at"`
}

// Therapist maps to the therapist table.
type Therapist struct {
	ID           uuid.UUID  `db:"id" json:"id"`
	FullName     string     `db:"full_name" json:"full_name"`
	DisciplineID *uuid.UUID `db:"discipline_id" json:"discipline_id,omitempty"`
	Active       bool       `db:"active" json:"active"`
	CreatedAt    time.Time  `db:"created_at" json:"created_at"`
}

// Discipline maps to the discipline table (speech therapy, OT, physio, ...).
type Discipline struct {
	ID   uuid.UUID `db:"id" json:"id"`
	Name string    `db:"name" json:"name"`
}
