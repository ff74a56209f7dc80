package template

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/therakit/therakit/internal/domain/appointment"
	"github.com/therakit/therakit/internal/domain/patient"
)

// Appointments is the slice of the appointment service the generator
// needs. Created appointments go through the full conflict detector.
type Appointments interface {
	Create(ctx context.Context, a *appointment.Appointment) error
}

type Service struct {
	repo              Repository
	holidays          HolidayRepository
	appointments      Appointments
	directory         patient.Directory
	defaultWeeksAhead int
	logger            zerolog.Logger
}

func NewService(repo Repository, holidays HolidayRepository, appts Appointments, directory patient.Directory, defaultWeeksAhead int, logger zerolog.Logger) *Service {
	if defaultWeeksAhead <= 0 {
		defaultWeeksAhead = 4
	}
	return &Service{
		repo:              repo,
		holidays:          holidays,
		appointments:      appts,
		directory:         directory,
		defaultWeeksAhead: defaultWeeksAhead,
		logger:            logger,
	}
}

func dateOnly(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, t.Location())
}

func (s *Service) Create(ctx context.Context, t *RecurringTemplate) error {
	if t.PatientID == uuid.Nil {
		return fmt.Errorf("patient_id is required")
	}
	if t.TherapistID == uuid.Nil {
		return fmt.Errorf("therapist_id is required")
	}
	if t.RecurrenceType == "" {
		t.RecurrenceType = RecurrenceWeekly
	}
	if t.RecurrenceType != RecurrenceWeekly {
		return fmt.Errorf("recurrence_type %q is not supported", t.RecurrenceType)
	}
	if t.DayOfWeek < 0 || t.DayOfWeek > 6 {
		return fmt.Errorf("day_of_week must be 0 (Sunday) through 6 (Saturday)")
	}
	if _, _, err := appointment.ParseClock(t.ScheduledTime); err != nil {
		return err
	}
	if t.DurationMinutes == 0 {
		t.DurationMinutes = appointment.DefaultDurationMinutes
	}
	if t.DurationMinutes < 0 {
		return fmt.Errorf("duration_minutes must be positive")
	}
	if t.StartDate.IsZero() {
		return fmt.Errorf("start_date is required")
	}
	t.StartDate = dateOnly(t.StartDate)
	if t.EndDate != nil {
		end := dateOnly(*t.EndDate)
		if end.Before(t.StartDate) {
			return fmt.Errorf("end_date must not precede start_date")
		}
		t.EndDate = &end
	}
	if t.GenerateWeeksAhead == 0 {
		t.GenerateWeeksAhead = s.defaultWeeksAhead
	}
	if t.GenerateWeeksAhead < 0 {
		return fmt.Errorf("generate_weeks_ahead must be positive")
	}
	t.IsActive = true

	p, err := s.directory.GetPatient(ctx, t.PatientID)
	if err != nil {
		return err
	}
	if !p.Active {
		return fmt.Errorf("patient %s is inactive", t.PatientID)
	}
	if _, err := s.directory.GetTherapist(ctx, t.TherapistID); err != nil {
		return err
	}
	if t.DisciplineID != nil {
		if _, err := s.directory.GetDiscipline(ctx, *t.DisciplineID); err != nil {
			return err
		}
	}
	return s.repo.Create(ctx, t)
}

func (s *Service) Get(ctx context.Context, id uuid.UUID) (*RecurringTemplate, error) {
	return s.repo.GetByID(ctx, id)
}

func (s *Service) List(ctx context.Context, f ListFilter, limit, offset int) ([]*RecurringTemplate, int, error) {
	return s.repo.List(ctx, f, limit, offset)
}

// UpdateInput enumerates the template fields an update may change.
type UpdateInput struct {
	TherapistID        *uuid.UUID `json:"therapist_id,omitempty"`
	DisciplineID       *uuid.UUID `json:"discipline_id,omitempty"`
	DayOfWeek          *int       `json:"day_of_week,omitempty"`
	ScheduledTime      *string    `json:"scheduled_time,omitempty"`
	DurationMinutes    *int       `json:"duration_minutes,omitempty"`
	EndDate            *time.Time `json:"end_date,omitempty"`
	GenerateWeeksAhead *int       `json:"generate_weeks_ahead,omitempty"`
	SkipHolidays       *bool      `json:"skip_holidays,omitempty"`
	Notes              *string    `json:"notes,omitempty"`
}

func (s *Service) Update(ctx context.Context, id uuid.UUID, in UpdateInput) (*RecurringTemplate, error) {
	t, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if in.TherapistID != nil {
		if _, err := s.directory.GetTherapist(ctx, *in.TherapistID); err != nil {
			return nil, err
		}
		t.TherapistID = *in.TherapistID
	}
	if in.DisciplineID != nil {
		if _, err := s.directory.GetDiscipline(ctx, *in.DisciplineID); err != nil {
			return nil, err
		}
		t.DisciplineID = in.DisciplineID
	}
	if in.DayOfWeek != nil {
		if *in.DayOfWeek < 0 || *in.DayOfWeek > 6 {
			return nil, fmt.Errorf("day_of_week must be 0 (Sunday) through 6 (Saturday)")
		}
		t.DayOfWeek = *in.DayOfWeek
	}
	if in.ScheduledTime != nil {
		if _, _, err := appointment.ParseClock(*in.ScheduledTime); err != nil {
			return nil, err
		}
		t.ScheduledTime = *in.ScheduledTime
	}
	if in.DurationMinutes != nil {
		if *in.DurationMinutes <= 0 {
			return nil, fmt.Errorf("duration_minutes must be positive")
		}
		t.DurationMinutes = *in.DurationMinutes
	}
	if in.EndDate != nil {
		end := dateOnly(*in.EndDate)
		if end.Before(t.StartDate) {
			return nil, fmt.Errorf("end_date must not precede start_date")
		}
		t.EndDate = &end
	}
	if in.GenerateWeeksAhead != nil {
		if *in.GenerateWeeksAhead <= 0 {
			return nil, fmt.Errorf("generate_weeks_ahead must be positive")
		}
		t.GenerateWeeksAhead = *in.GenerateWeeksAhead
	}
	if in.SkipHolidays != nil {
		t.SkipHolidays = *in.SkipHolidays
	}
	if in.Notes != nil {
		t.Notes = in.Notes
	}
	if err := s.repo.Update(ctx, t); err != nil {
		return nil, err
	}
	return t, nil
}

// Pause stops generation for the template. A nil until pauses until
// Resume is called; otherwise the pause lapses after the given date.
func (s *Service) Pause(ctx context.Context, id uuid.UUID, until *time.Time) (*RecurringTemplate, error) {
	t, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	t.IsPaused = true
	if until != nil {
		u := dateOnly(*until)
		t.PausedUntil = &u
	} else {
		t.PausedUntil = nil
	}
	if err := s.repo.Update(ctx, t); err != nil {
		return nil, err
	}
	return t, nil
}

func (s *Service) Resume(ctx context.Context, id uuid.UUID) (*RecurringTemplate, error) {
	t, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	t.IsPaused = false
	t.PausedUntil = nil
	if err := s.repo.Update(ctx, t); err != nil {
		return nil, err
	}
	return t, nil
}

// Deactivate permanently retires a template. Already generated
// appointments are untouched.
func (s *Service) Deactivate(ctx context.Context, id uuid.UUID) (*RecurringTemplate, error) {
	t, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	t.IsActive = false
	if err := s.repo.Update(ctx, t); err != nil {
		return nil, err
	}
	return t, nil
}

func (s *Service) Delete(ctx context.Context, id uuid.UUID) error {
	return s.repo.Delete(ctx, id)
}

// -- Holidays --

func (s *Service) AddHoliday(ctx context.Context, h *Holiday) error {
	if h.Date.IsZero() {
		return fmt.Errorf("date is required")
	}
	if h.Name == "" {
		return fmt.Errorf("name is required")
	}
	h.Date = dateOnly(h.Date)
	return s.holidays.Create(ctx, h)
}

func (s *Service) DeleteHoliday(ctx context.Context, id uuid.UUID) error {
	return s.holidays.Delete(ctx, id)
}

func (s *Service) ListHolidays(ctx context.Context, from, to time.Time) ([]*Holiday, error) {
	return s.holidays.ListBetween(ctx, dateOnly(from), dateOnly(to))
}
