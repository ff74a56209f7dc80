package template

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/therakit/therakit/internal/domain/appointment"
)

// Occurrence outcomes.
const (
	OutcomeCreated  = "created"
	OutcomeConflict = "conflict"
	OutcomeHoliday  = "holiday"
	OutcomeError    = "error"
)

// Occurrence is the per-date result of one generation run.
type Occurrence struct {
	Date          time.Time `json:"date"`
	Outcome       string    `json:"outcome"`
	AppointmentID uuid.UUID `json:"appointment_id,omitempty"`
	Detail        string    `json:"detail,omitempty"`
}

// GenerateReport summarises one generation run for one template.
type GenerateReport struct {
	TemplateID  uuid.UUID    `json:"template_id"`
	From        time.Time    `json:"from,omitempty"`
	To          time.Time    `json:"to,omitempty"`
	Created     int          `json:"created"`
	Conflicts   int          `json:"conflicts"`
	Skipped     int          `json:"skipped"`
	Occurrences []Occurrence `json:"occurrences,omitempty"`
}

// Generate expands the template into appointments. The candidate range
// runs from the day after the generation watermark (or the start date on
// the first run) to the horizon start_date + weeks, capped by end_date.
// Each occurrence is attempted independently: a conflicting or failing
// date is reported and the rest continue. The watermark advances to the
// last occurrence examined either way, so a re-run never creates
// duplicates.
func (s *Service) Generate(ctx context.Context, id uuid.UUID, weeksOverride int) (*GenerateReport, error) {
	t, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if !t.IsActive {
		return nil, fmt.Errorf("template %s is deactivated", id)
	}
	today := dateOnly(time.Now())
	if t.PausedOn(today) {
		return nil, fmt.Errorf("template %s is paused", id)
	}

	weeks := t.GenerateWeeksAhead
	if weeksOverride > 0 {
		weeks = weeksOverride
	}

	rangeStart := t.StartDate
	if t.LastGenerationDate != nil {
		if next := t.LastGenerationDate.AddDate(0, 0, 1); next.After(rangeStart) {
			rangeStart = next
		}
	}
	rangeEnd := t.StartDate.AddDate(0, 0, weeks*7)
	if t.EndDate != nil && t.EndDate.Before(rangeEnd) {
		rangeEnd = *t.EndDate
	}

	report := &GenerateReport{TemplateID: t.ID, From: rangeStart, To: rangeEnd}
	if rangeEnd.Before(rangeStart) {
		return report, nil
	}

	// First candidate on or after rangeStart falling on the template's
	// weekday.
	first := rangeStart
	for first.Weekday() != time.Weekday(t.DayOfWeek) {
		first = first.AddDate(0, 0, 1)
	}
	if first.After(rangeEnd) {
		return report, nil
	}

	holidaySet := make(map[string]bool)
	if t.SkipHolidays {
		holidays, err := s.holidays.ListBetween(ctx, first, rangeEnd)
		if err != nil {
			return nil, fmt.Errorf("list holidays: %w", err)
		}
		for _, h := range holidays {
			holidaySet[h.Date.Format("2006-01-02")] = true
		}
	}

	var lastExamined time.Time
	for d := first; !d.After(rangeEnd); d = d.AddDate(0, 0, 7) {
		lastExamined = d
		occ := Occurrence{Date: d}

		if holidaySet[d.Format("2006-01-02")] {
			occ.Outcome = OutcomeHoliday
			report.Skipped++
			report.Occurrences = append(report.Occurrences, occ)
			continue
		}

		a := &appointment.Appointment{
			PatientID:           t.PatientID,
			TherapistID:         t.TherapistID,
			DisciplineID:        t.DisciplineID,
			ScheduledDate:       d,
			ScheduledTime:       t.ScheduledTime,
			DurationMinutes:     t.DurationMinutes,
			RecurringTemplateID: &t.ID,
		}
		switch err := s.appointments.Create(ctx, a); {
		case err == nil:
			occ.Outcome = OutcomeCreated
			occ.AppointmentID = a.ID
			report.Created++
		case appointment.IsConflict(err):
			occ.Outcome = OutcomeConflict
			occ.Detail = err.Error()
			report.Conflicts++
		default:
			occ.Outcome = OutcomeError
			occ.Detail = err.Error()
			s.logger.Warn().Err(err).
				Str("template_id", t.ID.String()).
				Time("date", d).
				Msg("occurrence generation failed")
		}
		report.Occurrences = append(report.Occurrences, occ)
	}

	if !lastExamined.IsZero() {
		if err := s.repo.SetLastGeneration(ctx, t.ID, lastExamined); err != nil {
			return report, fmt.Errorf("advance generation watermark: %w", err)
		}
	}
	return report, nil
}

// DueReport aggregates generation across every due template.
type DueReport struct {
	Templates int               `json:"templates"`
	Created   int               `json:"created"`
	Conflicts int               `json:"conflicts"`
	Errors    []string          `json:"errors,omitempty"`
	Reports   []*GenerateReport `json:"reports,omitempty"`
}

// GenerateDue expands every template whose watermark lags its horizon.
// One failing template does not stop the rest.
func (s *Service) GenerateDue(ctx context.Context) (*DueReport, error) {
	due, err := s.repo.ListDue(ctx, dateOnly(time.Now()))
	if err != nil {
		return nil, fmt.Errorf("list due templates: %w", err)
	}

	report := &DueReport{Templates: len(due)}
	for _, t := range due {
		r, err := s.Generate(ctx, t.ID, 0)
		if err != nil {
			report.Errors = append(report.Errors, fmt.Sprintf("template %s: %v", t.ID, err))
			s.logger.Error().Err(err).Str("template_id", t.ID.String()).Msg("due generation failed")
			continue
		}
		report.Created += r.Created
		report.Conflicts += r.Conflicts
		report.Reports = append(report.Reports, r)
	}
	return report, nil
}
