package appointment

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/therakit/therakit/internal/domain/patient"
	"github.com/therakit/therakit/internal/platform/db"
	"github.com/therakit/therakit/internal/platform/notification"
)

// TxRunner executes fn atomically. The production runner wraps db.WithTx;
// tests pass nil to run fn directly.
type TxRunner func(ctx context.Context, fn func(ctx context.Context) error) error

type Service struct {
	repo      Repository
	directory patient.Directory
	notifier  notification.Notifier
	runTx     TxRunner
	logger    zerolog.Logger
}

func NewService(repo Repository, directory patient.Directory, notifier notification.Notifier, runTx TxRunner, logger zerolog.Logger) *Service {
	if runTx == nil {
		runTx = func(ctx context.Context, fn func(ctx context.Context) error) error { return fn(ctx) }
	}
	return &Service{repo: repo, directory: directory, notifier: notifier, runTx: runTx, logger: logger}
}

func (s *Service) notify(ctx context.Context, event notification.Event, count int) {
	if s.notifier == nil || count == 0 {
		return
	}
	_ = s.notifier.Notify(ctx, db.ClinicFromContext(ctx), event, count)
}

// dateOnly strips the wall-clock part so date comparisons work regardless
// of how the caller built the time.Time.
func dateOnly(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, t.Location())
}

// CheckConflicts returns the active appointments that overlap the slot a
// would occupy, excluding a itself. An empty result means the slot is free.
func (s *Service) CheckConflicts(ctx context.Context, a *Appointment) ([]*Appointment, error) {
	candidates, err := s.repo.ListActiveOnDate(ctx, dateOnly(a.ScheduledDate), a.PatientID, a.TherapistID)
	if err != nil {
		return nil, fmt.Errorf("list appointments on date: %w", err)
	}

	var competing []*Appointment
	for _, c := range candidates {
		if c.ID == a.ID {
			continue
		}
		overlaps, err := a.Overlaps(c)
		if err != nil {
			return nil, err
		}
		if overlaps {
			competing = append(competing, c)
		}
	}
	return competing, nil
}

func (s *Service) validateNew(ctx context.Context, a *Appointment) error {
	if a.PatientID == uuid.Nil {
		return fmt.Errorf("patient_id is required")
	}
	if a.TherapistID == uuid.Nil {
		return fmt.Errorf("therapist_id is required")
	}
	if a.ScheduledDate.IsZero() {
		return fmt.Errorf("scheduled_date is required")
	}
	if _, _, err := ParseClock(a.ScheduledTime); err != nil {
		return err
	}
	if a.DurationMinutes == 0 {
		a.DurationMinutes = DefaultDurationMinutes
	}
	if a.DurationMinutes < 0 {
		return fmt.Errorf("duration_minutes must be positive")
	}
	if a.Status == "" {
		a.Status = StatusScheduled
	}
	if !validStatuses[a.Status] {
		return fmt.Errorf("invalid status: %s", a.Status)
	}
	if a.DetectionSource == "" {
		a.DetectionSource = SourceManual
	}
	if !validSources[a.DetectionSource] {
		return fmt.Errorf("invalid detection_source: %s", a.DetectionSource)
	}
	a.ScheduledDate = dateOnly(a.ScheduledDate)

	p, err := s.directory.GetPatient(ctx, a.PatientID)
	if err != nil {
		return err
	}
	if !p.Active {
		return fmt.Errorf("patient %s is inactive", a.PatientID)
	}
	t, err := s.directory.GetTherapist(ctx, a.TherapistID)
	if err != nil {
		return err
	}
	if !t.Active {
		return fmt.Errorf("therapist %s is inactive", a.TherapistID)
	}
	if a.DisciplineID != nil {
		if _, err := s.directory.GetDiscipline(ctx, *a.DisciplineID); err != nil {
			return err
		}
	}
	return nil
}

// DefaultDurationMinutes is applied when a caller omits the duration.
const DefaultDurationMinutes = 60

// Create validates, checks for conflicts and stores a new appointment.
// The conflict check and insert run in one transaction so two concurrent
// creates cannot both observe a free slot.
func (s *Service) Create(ctx context.Context, a *Appointment) error {
	if err := s.validateNew(ctx, a); err != nil {
		return err
	}

	err := s.runTx(ctx, func(ctx context.Context) error {
		competing, err := s.CheckConflicts(ctx, a)
		if err != nil {
			return err
		}
		if len(competing) > 0 {
			return &ConflictError{Competing: competing}
		}
		return s.repo.Create(ctx, a)
	})
	if err != nil {
		return err
	}

	s.notify(ctx, notification.EventAppointmentCreated, 1)
	return nil
}

// CreateRetroactive stores an already-performed appointment. Retroactive
// appointments record the past, so they are exempt from conflict checks.
// When linked to a progress record the existing-link guard makes retries
// idempotent.
func (s *Service) CreateRetroactive(ctx context.Context, a *Appointment) error {
	a.Status = StatusCompleted
	a.IsRetroactive = true
	if err := s.validateNew(ctx, a); err != nil {
		return err
	}

	return s.runTx(ctx, func(ctx context.Context) error {
		if a.ProgressRecordID != nil {
			linked, err := s.repo.ExistsByProgressRecord(ctx, *a.ProgressRecordID)
			if err != nil {
				return err
			}
			if linked {
				return ErrSessionLinked
			}
		}
		return s.repo.Create(ctx, a)
	})
}

// BatchItemResult reports the outcome of one entry of a batch create.
type BatchItemResult struct {
	Index int       `json:"index"`
	ID    uuid.UUID `json:"id,omitempty"`
	Error string    `json:"error,omitempty"`
}

// CreateRetroactiveBatch processes each entry independently. A failing
// entry is reported and the rest of the batch continues.
func (s *Service) CreateRetroactiveBatch(ctx context.Context, appts []*Appointment) ([]BatchItemResult, int) {
	results := make([]BatchItemResult, 0, len(appts))
	created := 0
	for i, a := range appts {
		res := BatchItemResult{Index: i}
		if err := s.CreateRetroactive(ctx, a); err != nil {
			res.Error = err.Error()
			s.logger.Warn().Err(err).Int("index", i).Msg("retroactive batch entry failed")
		} else {
			res.ID = a.ID
			created++
		}
		results = append(results, res)
	}
	return results, created
}

func (s *Service) Get(ctx context.Context, id uuid.UUID) (*Appointment, error) {
	return s.repo.GetByID(ctx, id)
}

func (s *Service) List(ctx context.Context, f ListFilter, limit, offset int) ([]*Appointment, int, error) {
	if f.From != nil {
		from := dateOnly(*f.From)
		f.From = &from
	}
	if f.To != nil {
		to := dateOnly(*f.To)
		f.To = &to
	}
	return s.repo.List(ctx, f, limit, offset)
}

// UpdateInput enumerates the fields an update may change. Nil fields are
// left untouched.
type UpdateInput struct {
	ScheduledDate   *time.Time `json:"scheduled_date,omitempty"`
	ScheduledTime   *string    `json:"scheduled_time,omitempty"`
	DurationMinutes *int       `json:"duration_minutes,omitempty"`
	TherapistID     *uuid.UUID `json:"therapist_id,omitempty"`
	DisciplineID    *uuid.UUID `json:"discipline_id,omitempty"`
	Notes           *string    `json:"notes,omitempty"`
}

func (in UpdateInput) movesSlot() bool {
	return in.ScheduledDate != nil || in.ScheduledTime != nil ||
		in.DurationMinutes != nil || in.TherapistID != nil
}

// Update applies the given fields. Slot changes are only allowed on
// scheduled appointments and go through the conflict detector again.
func (s *Service) Update(ctx context.Context, id uuid.UUID, in UpdateInput) (*Appointment, error) {
	a, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if in.movesSlot() && a.Status != StatusScheduled {
		return nil, fmt.Errorf("%w: cannot move a %s appointment", ErrInvalidTransition, a.Status)
	}

	if in.ScheduledDate != nil {
		a.ScheduledDate = dateOnly(*in.ScheduledDate)
	}
	if in.ScheduledTime != nil {
		if _, _, err := ParseClock(*in.ScheduledTime); err != nil {
			return nil, err
		}
		a.ScheduledTime = *in.ScheduledTime
	}
	if in.DurationMinutes != nil {
		if *in.DurationMinutes <= 0 {
			return nil, fmt.Errorf("duration_minutes must be positive")
		}
		a.DurationMinutes = *in.DurationMinutes
	}
	if in.TherapistID != nil {
		t, err := s.directory.GetTherapist(ctx, *in.TherapistID)
		if err != nil {
			return nil, err
		}
		if !t.Active {
			return nil, fmt.Errorf("therapist %s is inactive", t.ID)
		}
		a.TherapistID = *in.TherapistID
	}
	if in.DisciplineID != nil {
		if _, err := s.directory.GetDiscipline(ctx, *in.DisciplineID); err != nil {
			return nil, err
		}
		a.DisciplineID = in.DisciplineID
	}
	if in.Notes != nil {
		a.Notes = in.Notes
	}

	err = s.runTx(ctx, func(ctx context.Context) error {
		if in.movesSlot() {
			competing, err := s.CheckConflicts(ctx, a)
			if err != nil {
				return err
			}
			if len(competing) > 0 {
				return &ConflictError{Competing: competing}
			}
		}
		return s.repo.Update(ctx, a)
	})
	if err != nil {
		return nil, err
	}
	return a, nil
}

// Complete moves an appointment to completed, optionally linking the
// progress record written for the session.
func (s *Service) Complete(ctx context.Context, id uuid.UUID, progressRecordID *uuid.UUID, notes *string) (*Appointment, error) {
	a, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if !CanTransition(a.Status, StatusCompleted) {
		return nil, fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, a.Status, StatusCompleted)
	}

	err = s.runTx(ctx, func(ctx context.Context) error {
		if progressRecordID != nil {
			linked, err := s.repo.ExistsByProgressRecord(ctx, *progressRecordID)
			if err != nil {
				return err
			}
			if linked {
				return ErrSessionLinked
			}
			a.ProgressRecordID = progressRecordID
		}
		a.Status = StatusCompleted
		if notes != nil {
			a.Notes = notes
		}
		return s.repo.Update(ctx, a)
	})
	if err != nil {
		return nil, err
	}
	return a, nil
}

// Cancel moves a scheduled or missed appointment to cancelled. The slot
// becomes free for other appointments.
func (s *Service) Cancel(ctx context.Context, id uuid.UUID, reason string) (*Appointment, error) {
	if reason == "" {
		return nil, fmt.Errorf("cancellation reason is required")
	}
	a, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if !CanTransition(a.Status, StatusCancelled) {
		return nil, fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, a.Status, StatusCancelled)
	}
	a.Status = StatusCancelled
	a.CancellationReason = &reason
	if err := s.repo.Update(ctx, a); err != nil {
		return nil, err
	}
	s.notify(ctx, notification.EventAppointmentCancelled, 1)
	return a, nil
}

// Justify records why a missed appointment was missed. The status stays
// missed; justification is metadata, not a transition.
func (s *Service) Justify(ctx context.Context, id uuid.UUID, reason string, by uuid.UUID) (*Appointment, error) {
	if reason == "" {
		return nil, fmt.Errorf("justification reason is required")
	}
	a, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if a.Status != StatusMissed {
		return nil, fmt.Errorf("%w: only missed appointments can be justified, got %s", ErrInvalidTransition, a.Status)
	}
	now := time.Now()
	a.MissedReason = &reason
	a.JustifiedAt = &now
	if by != uuid.Nil {
		a.JustifiedBy = &by
	}
	if err := s.repo.Update(ctx, a); err != nil {
		return nil, err
	}
	return a, nil
}

// MarkMissed sweeps scheduled appointments whose start lies more than
// hoursAfter hours in the past into missed.
func (s *Service) MarkMissed(ctx context.Context, hoursAfter int) (int64, error) {
	if hoursAfter < 0 {
		return 0, fmt.Errorf("hours_after must not be negative")
	}
	cutoff := time.Now().Add(-time.Duration(hoursAfter) * time.Hour)
	n, err := s.repo.MarkMissedBefore(ctx, cutoff)
	if err != nil {
		return 0, fmt.Errorf("mark missed: %w", err)
	}
	if n > 0 {
		s.logger.Info().Int64("count", n).Msg("appointments marked missed")
		s.notify(ctx, notification.EventAppointmentMissed, int(n))
	}
	return n, nil
}

func (s *Service) Delete(ctx context.Context, id uuid.UUID) error {
	return s.repo.Delete(ctx, id)
}

// Reschedule moves an appointment to a new slot, re-running the conflict
// check atomically with the write. Missed appointments return to
// scheduled when they are given a new slot.
func (s *Service) Reschedule(ctx context.Context, id uuid.UUID, newDate time.Time, newTime string, note string) (*Appointment, error) {
	if _, _, err := ParseClock(newTime); err != nil {
		return nil, err
	}
	a, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if a.Status != StatusScheduled && a.Status != StatusMissed {
		return nil, fmt.Errorf("%w: cannot reschedule a %s appointment", ErrInvalidTransition, a.Status)
	}

	a.ScheduledDate = dateOnly(newDate)
	a.ScheduledTime = newTime
	a.Status = StatusScheduled
	if note != "" {
		appended := note
		if a.Notes != nil && *a.Notes != "" {
			appended = *a.Notes + "\n" + note
		}
		a.Notes = &appended
	}

	err = s.runTx(ctx, func(ctx context.Context) error {
		competing, err := s.CheckConflicts(ctx, a)
		if err != nil {
			return err
		}
		if len(competing) > 0 {
			return &ConflictError{Competing: competing}
		}
		return s.repo.Update(ctx, a)
	})
	if err != nil {
		return nil, err
	}
	return a, nil
}

// Link attaches a performed-session progress record to a scheduled
// appointment and completes it. Used by the reconciliation engine.
func (s *Service) Link(ctx context.Context, id, progressRecordID uuid.UUID) (*Appointment, error) {
	var linked *Appointment
	err := s.runTx(ctx, func(ctx context.Context) error {
		exists, err := s.repo.ExistsByProgressRecord(ctx, progressRecordID)
		if err != nil {
			return err
		}
		if exists {
			return ErrSessionLinked
		}
		a, err := s.repo.GetByID(ctx, id)
		if err != nil {
			return err
		}
		if a.Status != StatusScheduled {
			return fmt.Errorf("%w: cannot link a %s appointment", ErrInvalidTransition, a.Status)
		}
		a.Status = StatusCompleted
		a.ProgressRecordID = &progressRecordID
		a.DetectionSource = SourceAutoDetected
		if err := s.repo.Update(ctx, a); err != nil {
			return err
		}
		linked = a
		return nil
	})
	if err != nil {
		return nil, err
	}
	return linked, nil
}

// ListScheduledUnlinked exposes the reconciliation candidates.
func (s *Service) ListScheduledUnlinked(ctx context.Context, from, to time.Time) ([]*Appointment, error) {
	return s.repo.ListScheduledUnlinked(ctx, dateOnly(from), dateOnly(to))
}

// IsSessionLinked reports whether a progress record is already attached
// to some appointment.
func (s *Service) IsSessionLinked(ctx context.Context, progressRecordID uuid.UUID) (bool, error) {
	return s.repo.ExistsByProgressRecord(ctx, progressRecordID)
}

// CountScheduledOn returns how many scheduled appointments fall on the
// given date. The maintenance run uses it to size reminder batches.
func (s *Service) CountScheduledOn(ctx context.Context, date time.Time) (int, error) {
	d := dateOnly(date)
	_, total, err := s.repo.List(ctx, ListFilter{Status: StatusScheduled, From: &d, To: &d}, 1, 0)
	return total, err
}

// HasCompletedFor reports whether the patient/therapist pair already has a
// completed appointment on the given date.
func (s *Service) HasCompletedFor(ctx context.Context, patientID, therapistID uuid.UUID, date time.Time) (bool, error) {
	return s.repo.HasCompletedFor(ctx, patientID, therapistID, dateOnly(date))
}
