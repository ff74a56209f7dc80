// Package reconcile matches the performed-session log against scheduled
// appointments and surfaces sessions nobody scheduled.
package reconcile

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
)

var ErrSessionNotFound = errors.New("performed session not found")

// PerformedSession is one row of the append-only session log written by
// the clinical documentation side. Reconciliation only reads it.
type PerformedSession struct {
	ID              uuid.UUID  `db:"id" json:"id"`
	PatientID       uuid.UUID  `db:"patient_id" json:"patient_id"`
	TherapistID     uuid.UUID  `db:"therapist_id" json:"therapist_id"`
	DisciplineID    *uuid.UUID `db:"discipline_id" json:"discipline_id,omitempty"`
	PerformedAt     time.Time  `db:"performed_at" json:"performed_at"`
	DurationMinutes int        `db:"duration_minutes" json:"duration_minutes"`
	Notes           *string    `db:"notes" json:"notes,omitempty"`
	CreatedAt       time.Time  `db:"created_at" json:"created_at"`
}

// SessionLog is the read side of the performed-session store.
type SessionLog interface {
	GetByID(ctx context.Context, id uuid.UUID) (*PerformedSession, error)
	ListBetween(ctx context.Context, from, to time.Time) ([]*PerformedSession, error)
}

// Match records one session linked to one appointment, with the distance
// between session start and scheduled start.
type Match struct {
	SessionID     uuid.UUID     `json:"session_id"`
	AppointmentID uuid.UUID     `json:"appointment_id"`
	Offset        time.Duration `json:"-"`
	OffsetMinutes int           `json:"offset_minutes"`
}

// MatchReport summarises one forward-matching pass.
type MatchReport struct {
	Examined int      `json:"examined"`
	Matched  int      `json:"matched"`
	Matches  []Match  `json:"matches,omitempty"`
	Errors   []string `json:"errors,omitempty"`
}

// ConvertReport summarises one orphan-conversion pass.
type ConvertReport struct {
	Converted      int         `json:"converted"`
	AlreadyLinked  int         `json:"already_linked"`
	AppointmentIDs []uuid.UUID `json:"appointment_ids,omitempty"`
	Errors         []string    `json:"errors,omitempty"`
}

// Report is the outcome of a full reconciliation run.
type Report struct {
	Matching    *MatchReport        `json:"matching"`
	Orphans     []*PerformedSession `json:"orphans,omitempty"`
	OrphanCount int                 `json:"orphan_count"`
	Conversion  *ConvertReport      `json:"conversion,omitempty"`
	RanAt       time.Time           `json:"ran_at"`
	AutoConvert bool                `json:"auto_convert"`
}
