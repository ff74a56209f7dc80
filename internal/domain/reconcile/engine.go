package reconcile

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/therakit/therakit/internal/domain/appointment"
)

// Appointments is the slice of the appointment service the engine needs.
type Appointments interface {
	ListScheduledUnlinked(ctx context.Context, from, to time.Time) ([]*appointment.Appointment, error)
	Link(ctx context.Context, id, progressRecordID uuid.UUID) (*appointment.Appointment, error)
	IsSessionLinked(ctx context.Context, progressRecordID uuid.UUID) (bool, error)
	HasCompletedFor(ctx context.Context, patientID, therapistID uuid.UUID, date time.Time) (bool, error)
	CreateRetroactive(ctx context.Context, a *appointment.Appointment) error
}

// Config tunes the matching tolerance. The window is anchored to the
// scheduled start: a session counts as the appointment's session when it
// began no more than WindowBefore early and no more than WindowAfter late.
type Config struct {
	WindowBefore time.Duration
	WindowAfter  time.Duration
	LookbackDays int
}

func (c *Config) applyDefaults() {
	if c.WindowBefore == 0 {
		c.WindowBefore = time.Hour
	}
	if c.WindowAfter == 0 {
		c.WindowAfter = 3 * time.Hour
	}
	if c.LookbackDays == 0 {
		c.LookbackDays = 2
	}
}

type Engine struct {
	sessions SessionLog
	appts    Appointments
	cfg      Config
	logger   zerolog.Logger
}

func NewEngine(sessions SessionLog, appts Appointments, cfg Config, logger zerolog.Logger) *Engine {
	cfg.applyDefaults()
	return &Engine{sessions: sessions, appts: appts, cfg: cfg, logger: logger}
}

func dateOnly(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, t.Location())
}

// MatchScheduled walks the scheduled, unlinked appointments of the
// lookback window and links each to the closest performed session of the
// same patient and therapist inside the tolerance window. A failing
// appointment is reported and the pass continues.
func (e *Engine) MatchScheduled(ctx context.Context) (*MatchReport, error) {
	now := time.Now()
	from := dateOnly(now.AddDate(0, 0, -e.cfg.LookbackDays))

	appts, err := e.appts.ListScheduledUnlinked(ctx, from, dateOnly(now))
	if err != nil {
		return nil, fmt.Errorf("list unlinked appointments: %w", err)
	}

	report := &MatchReport{Examined: len(appts)}
	if len(appts) == 0 {
		return report, nil
	}

	sessions, err := e.sessions.ListBetween(ctx, from.Add(-e.cfg.WindowBefore), now.Add(e.cfg.WindowAfter))
	if err != nil {
		return nil, fmt.Errorf("list performed sessions: %w", err)
	}

	used := make(map[uuid.UUID]bool)
	for _, a := range appts {
		match, err := e.matchOne(ctx, a, sessions, used)
		if err != nil {
			report.Errors = append(report.Errors, fmt.Sprintf("appointment %s: %v", a.ID, err))
			e.logger.Warn().Err(err).Str("appointment_id", a.ID.String()).Msg("session match failed")
			continue
		}
		if match != nil {
			used[match.SessionID] = true
			report.Matched++
			report.Matches = append(report.Matches, *match)
		}
	}
	return report, nil
}

// matchOne picks the closest unlinked candidate session and links it.
// Returns nil without error when no candidate falls inside the window.
func (e *Engine) matchOne(ctx context.Context, a *appointment.Appointment, sessions []*PerformedSession, used map[uuid.UUID]bool) (*Match, error) {
	start, err := a.StartsAt()
	if err != nil {
		return nil, err
	}
	earliest := start.Add(-e.cfg.WindowBefore)
	latest := start.Add(e.cfg.WindowAfter)

	type candidate struct {
		session *PerformedSession
		offset  time.Duration
	}
	var candidates []candidate
	for _, s := range sessions {
		if used[s.ID] || s.PatientID != a.PatientID || s.TherapistID != a.TherapistID {
			continue
		}
		if s.PerformedAt.Before(earliest) || s.PerformedAt.After(latest) {
			continue
		}
		offset := s.PerformedAt.Sub(start)
		if offset < 0 {
			offset = -offset
		}
		candidates = append(candidates, candidate{session: s, offset: offset})
	}
	sort.Slice(candidates, func(i, j int) bool { return candidates[i].offset < candidates[j].offset })

	for _, c := range candidates {
		linked, err := e.appts.IsSessionLinked(ctx, c.session.ID)
		if err != nil {
			return nil, err
		}
		if linked {
			used[c.session.ID] = true
			continue
		}
		if _, err := e.appts.Link(ctx, a.ID, c.session.ID); err != nil {
			if errors.Is(err, appointment.ErrSessionLinked) {
				used[c.session.ID] = true
				continue
			}
			return nil, err
		}
		return &Match{
			SessionID:     c.session.ID,
			AppointmentID: a.ID,
			Offset:        c.offset,
			OffsetMinutes: int(c.offset / time.Minute),
		}, nil
	}
	return nil, nil
}

// DetectOrphans returns the performed sessions of the lookback window
// that are neither linked to an appointment nor explained by a completed
// appointment of the same patient, therapist and day.
func (e *Engine) DetectOrphans(ctx context.Context) ([]*PerformedSession, error) {
	now := time.Now()
	from := dateOnly(now.AddDate(0, 0, -e.cfg.LookbackDays))

	sessions, err := e.sessions.ListBetween(ctx, from, now)
	if err != nil {
		return nil, fmt.Errorf("list performed sessions: %w", err)
	}

	var orphans []*PerformedSession
	for _, s := range sessions {
		linked, err := e.appts.IsSessionLinked(ctx, s.ID)
		if err != nil {
			return nil, err
		}
		if linked {
			continue
		}
		covered, err := e.appts.HasCompletedFor(ctx, s.PatientID, s.TherapistID, dateOnly(s.PerformedAt))
		if err != nil {
			return nil, err
		}
		if covered {
			continue
		}
		orphans = append(orphans, s)
	}
	return orphans, nil
}

// ConvertSessions turns orphan sessions into retroactive, completed
// appointments linked to their session. The linked-session guard makes a
// re-run a no-op; each session converts independently.
func (e *Engine) ConvertSessions(ctx context.Context, sessions []*PerformedSession) *ConvertReport {
	report := &ConvertReport{}
	for _, s := range sessions {
		a := &appointment.Appointment{
			PatientID:        s.PatientID,
			TherapistID:      s.TherapistID,
			DisciplineID:     s.DisciplineID,
			ScheduledDate:    dateOnly(s.PerformedAt),
			ScheduledTime:    s.PerformedAt.Format("15:04"),
			DurationMinutes:  s.DurationMinutes,
			DetectionSource:  appointment.SourceOrphanConverted,
			ProgressRecordID: &s.ID,
		}
		switch err := e.appts.CreateRetroactive(ctx, a); {
		case err == nil:
			report.Converted++
			report.AppointmentIDs = append(report.AppointmentIDs, a.ID)
		case errors.Is(err, appointment.ErrSessionLinked):
			report.AlreadyLinked++
		default:
			report.Errors = append(report.Errors, fmt.Sprintf("session %s: %v", s.ID, err))
			e.logger.Warn().Err(err).Str("session_id", s.ID.String()).Msg("orphan conversion failed")
		}
	}
	return report
}

// ConvertByID converts the given sessions after resolving them from the
// log. Used by the HTTP surface, where operators pick orphans to convert.
func (e *Engine) ConvertByID(ctx context.Context, ids []uuid.UUID) (*ConvertReport, error) {
	var sessions []*PerformedSession
	report := &ConvertReport{}
	for _, id := range ids {
		s, err := e.sessions.GetByID(ctx, id)
		if err != nil {
			report.Errors = append(report.Errors, fmt.Sprintf("session %s: %v", id, err))
			continue
		}
		sessions = append(sessions, s)
	}
	converted := e.ConvertSessions(ctx, sessions)
	converted.Errors = append(report.Errors, converted.Errors...)
	return converted, nil
}

// Reconcile runs the full pass: forward matching, then orphan detection,
// then (optionally) orphan conversion.
func (e *Engine) Reconcile(ctx context.Context, autoConvert bool) (*Report, error) {
	matching, err := e.MatchScheduled(ctx)
	if err != nil {
		return nil, err
	}
	orphans, err := e.DetectOrphans(ctx)
	if err != nil {
		return nil, err
	}

	report := &Report{
		Matching:    matching,
		Orphans:     orphans,
		OrphanCount: len(orphans),
		RanAt:       time.Now(),
		AutoConvert: autoConvert,
	}
	if autoConvert && len(orphans) > 0 {
		report.Conversion = e.ConvertSessions(ctx, orphans)
	}
	return report, nil
}
