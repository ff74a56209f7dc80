// Package reschedule produces availability-aware slot suggestions for
// appointments that need a new home and applies approved moves.
package reschedule

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/therakit/therakit/internal/domain/appointment"
	"github.com/therakit/therakit/internal/domain/patient"
	"github.com/therakit/therakit/internal/platform/availability"
)

// Appointments is the slice of the appointment service the engine needs.
// Reschedule re-runs the conflict detector before committing a move.
type Appointments interface {
	Get(ctx context.Context, id uuid.UUID) (*appointment.Appointment, error)
	Reschedule(ctx context.Context, id uuid.UUID, newDate time.Time, newTime string, note string) (*appointment.Appointment, error)
}

type Engine struct {
	appts     Appointments
	finder    availability.Finder
	directory patient.Directory
	logger    zerolog.Logger
}

func NewEngine(appts Appointments, finder availability.Finder, directory patient.Directory, logger zerolog.Logger) *Engine {
	return &Engine{appts: appts, finder: finder, directory: directory, logger: logger}
}

// Scoring weights. A candidate starts at the base score, loses points the
// further it drifts from the original slot and gains bonuses for
// continuity of weekday, specialty and therapist preference.
const (
	baseScore          = 100
	dayPenaltyPerDay   = 5
	dayPenaltyCap      = 50
	timePenaltyDivisor = 10
	timePenaltyCap     = 30
	weekdayBonus       = 10
	specialtyBonus     = 10
	preferredBonus     = 10
	maxSuggestions     = 5
)

// Score rates how well a slot replaces the original appointment, on a 0
// to 100 scale.
func Score(original *appointment.Appointment, slot availability.OpenSlot) (int, error) {
	origStart, err := original.StartsAt()
	if err != nil {
		return 0, err
	}
	slotH, slotM, err := appointment.ParseClock(slot.Time)
	if err != nil {
		return 0, err
	}

	dayOffset := int(slot.Date.Sub(original.ScheduledDate).Hours() / 24)
	if dayOffset < 0 {
		dayOffset = -dayOffset
	}
	timeOffset := (slotH*60 + slotM) - (origStart.Hour()*60 + origStart.Minute())
	if timeOffset < 0 {
		timeOffset = -timeOffset
	}

	score := baseScore
	if p := dayOffset * dayPenaltyPerDay; p > dayPenaltyCap {
		score -= dayPenaltyCap
	} else {
		score -= p
	}
	if p := timeOffset / timePenaltyDivisor; p > timePenaltyCap {
		score -= timePenaltyCap
	} else {
		score -= p
	}
	if slot.Date.Weekday() == original.ScheduledDate.Weekday() {
		score += weekdayBonus
	}
	if slot.MatchesSpecialty {
		score += specialtyBonus
	}
	if slot.PreferredTherapist {
		score += preferredBonus
	}

	if score < 0 {
		score = 0
	}
	if score > 100 {
		score = 100
	}
	return score, nil
}

// Suggestion pairs a candidate slot with its score.
type Suggestion struct {
	Slot  availability.OpenSlot `json:"slot"`
	Score int                   `json:"score"`
}

// SuggestParams bound the slot search. Zero values get defaults: a
// two-week window opening the day after the original appointment, capped
// at five suggestions.
type SuggestParams struct {
	From  time.Time
	To    time.Time
	Limit int
}

func (p *SuggestParams) applyDefaults(original *appointment.Appointment) {
	if p.From.IsZero() {
		d := original.ScheduledDate
		p.From = time.Date(d.Year(), d.Month(), d.Day()+1, 0, 0, 0, 0, d.Location())
	}
	if p.To.IsZero() {
		p.To = p.From.AddDate(0, 0, 14)
	}
	if p.Limit <= 0 || p.Limit > maxSuggestions {
		p.Limit = maxSuggestions
	}
}

// Suggest searches the availability calendar and returns the best-scored
// open slots for the appointment, highest first. The search looks forward
// from the day after the original slot unless the caller bounds it.
func (e *Engine) Suggest(ctx context.Context, id uuid.UUID, params SuggestParams) ([]Suggestion, error) {
	a, err := e.appts.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if a.Status != appointment.StatusScheduled && a.Status != appointment.StatusMissed {
		return nil, fmt.Errorf("cannot suggest slots for a %s appointment", a.Status)
	}
	params.applyDefaults(a)

	slots, err := e.finder.FindOpenSlots(ctx, availability.SearchParams{
		PatientID:    a.PatientID,
		DisciplineID: a.DisciplineID,
		StartDate:    params.From,
		EndDate:      params.To,
		Duration:     a.DurationMinutes,
	})
	if err != nil {
		return nil, fmt.Errorf("find open slots: %w", err)
	}

	// The patient's preference outranks whatever the calendar reported.
	p, err := e.directory.GetPatient(ctx, a.PatientID)
	if err != nil {
		return nil, err
	}

	suggestions := make([]Suggestion, 0, len(slots))
	for _, slot := range slots {
		if p.PreferredTherapistID != nil && slot.TherapistID == *p.PreferredTherapistID {
			slot.PreferredTherapist = true
		}
		score, err := Score(a, slot)
		if err != nil {
			e.logger.Warn().Err(err).Msg("slot scoring failed")
			continue
		}
		suggestions = append(suggestions, Suggestion{Slot: slot, Score: score})
	}

	sort.SliceStable(suggestions, func(i, j int) bool {
		return suggestions[i].Score > suggestions[j].Score
	})
	if len(suggestions) > params.Limit {
		suggestions = suggestions[:params.Limit]
	}
	return suggestions, nil
}

// Approval is one operator-approved move.
type Approval struct {
	AppointmentID uuid.UUID `json:"appointment_id"`
	Date          time.Time `json:"date"`
	Time          string    `json:"time"`
	Note          string    `json:"note,omitempty"`
}

// ApplyResult reports the outcome of one approval.
type ApplyResult struct {
	AppointmentID uuid.UUID                `json:"appointment_id"`
	Appointment   *appointment.Appointment `json:"appointment,omitempty"`
	Error         string                   `json:"error,omitempty"`
}

// Apply commits the approved moves one by one. Each move re-runs the
// conflict detector, so a slot taken since the suggestion was produced is
// refused without affecting the other approvals.
func (e *Engine) Apply(ctx context.Context, approvals []Approval) []ApplyResult {
	results := make([]ApplyResult, 0, len(approvals))
	for _, ap := range approvals {
		res := ApplyResult{AppointmentID: ap.AppointmentID}
		note := ap.Note
		if note == "" {
			note = fmt.Sprintf("rescheduled to %s %s", ap.Date.Format("2006-01-02"), ap.Time)
		}
		a, err := e.appts.Reschedule(ctx, ap.AppointmentID, ap.Date, ap.Time, note)
		if err != nil {
			res.Error = err.Error()
			e.logger.Warn().Err(err).Str("appointment_id", ap.AppointmentID.String()).Msg("reschedule refused")
		} else {
			res.Appointment = a
		}
		results = append(results, res)
	}
	return results
}
