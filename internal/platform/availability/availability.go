// Package availability is the read side of the clinic's availability
// calendar. The calendar itself (therapist templates, absences) is owned by
// another system; this package only defines the slot-search contract the
// rescheduling engine consumes, plus an in-memory implementation used in
// development and tests.
package availability

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
)

// SearchParams defines the criteria for an open-slot search.
type SearchParams struct {
	TherapistID  uuid.UUID
	DisciplineID *uuid.UUID
	PatientID    uuid.UUID
	StartDate    time.Time // inclusive
	EndDate      time.Time // inclusive
	Duration     int       // minutes
}

// OpenSlot is a bookable opening returned by the search, annotated with the
// flags the rescheduling score cares about.
type OpenSlot struct {
	TherapistID        uuid.UUID `json:"therapist_id"`
	Date               time.Time `json:"date"`
	Time               string    `json:"time"` // HH:MM
	Duration           int       `json:"duration_minutes"`
	MatchesSpecialty   bool      `json:"matches_specialty"`
	PreferredTherapist bool      `json:"preferred_therapist"`
}

// Finder searches the availability calendar for open slots.
type Finder interface {
	FindOpenSlots(ctx context.Context, params SearchParams) ([]OpenSlot, error)
}

// MemoryFinder is an in-memory Finder seeded with slots.
type MemoryFinder struct {
	mu    sync.RWMutex
	slots []OpenSlot
}

func NewMemoryFinder() *MemoryFinder {
	return &MemoryFinder{}
}

// AddSlot seeds an open slot.
func (f *MemoryFinder) AddSlot(slot OpenSlot) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.slots = append(f.slots, slot)
}

// FindOpenSlots returns seeded slots matching the criteria, ordered by date
// then time.
func (f *MemoryFinder) FindOpenSlots(_ context.Context, params SearchParams) ([]OpenSlot, error) {
	f.mu.RLock()
	defer f.mu.RUnlock()

	var results []OpenSlot
	for _, slot := range f.slots {
		if params.TherapistID != uuid.Nil && slot.TherapistID != params.TherapistID {
			continue
		}
		if !params.StartDate.IsZero() && slot.Date.Before(params.StartDate) {
			continue
		}
		if !params.EndDate.IsZero() && slot.Date.After(params.EndDate) {
			continue
		}
		if params.Duration > 0 && slot.Duration < params.Duration {
			continue
		}
		results = append(results, slot)
	}

	sort.Slice(results, func(i, j int) bool {
		if !results[i].Date.Equal(results[j].Date) {
			return results[i].Date.Before(results[j].Date)
		}
		return results[i].Time < results[j].Time
	})

	return results, nil
}
