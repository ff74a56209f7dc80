// Package notification is the outbound notification collaborator. The core
// engine only increments event counters here; actual delivery (email, SMS,
// push) belongs to a separate system. Failures are swallowed by the callers;
// a notification problem must never fail a scheduling operation.
package notification

import (
	"context"
	"sync"

	"github.com/rs/zerolog"
)

// Event identifies a notification-worthy scheduling event.
type Event string

const (
	EventAppointmentCreated   Event = "appointment_created"
	EventAppointmentCancelled Event = "appointment_cancelled"
	EventAppointmentMissed    Event = "appointment_missed"
	EventReminderDue          Event = "reminder_due"
)

// Notifier records scheduling events for downstream delivery.
type Notifier interface {
	Notify(ctx context.Context, clinicID string, event Event, count int) error
}

// CounterNotifier is an in-process Notifier that keeps per-clinic event
// counters. It stands in for the real delivery transport.
type CounterNotifier struct {
	mu     sync.Mutex
	counts map[string]map[Event]int
}

func NewCounterNotifier() *CounterNotifier {
	return &CounterNotifier{counts: make(map[string]map[Event]int)}
}

func (n *CounterNotifier) Notify(_ context.Context, clinicID string, event Event, count int) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	if n.counts[clinicID] == nil {
		n.counts[clinicID] = make(map[Event]int)
	}
	n.counts[clinicID][event] += count
	return nil
}

// Count returns the accumulated count for a clinic/event pair.
func (n *CounterNotifier) Count(clinicID string, event Event) int {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.counts[clinicID][event]
}

// BestEffort wraps a Notifier so that errors are logged and dropped.
type BestEffort struct {
	next   Notifier
	logger zerolog.Logger
}

func NewBestEffort(next Notifier, logger zerolog.Logger) *BestEffort {
	return &BestEffort{next: next, logger: logger}
}

func (b *BestEffort) Notify(ctx context.Context, clinicID string, event Event, count int) error {
	if b.next == nil {
		return nil
	}
	if err := b.next.Notify(ctx, clinicID, event, count); err != nil {
		b.logger.Warn().
			Err(err).
			Str("clinic_id", clinicID).
			Str("event", string(event)).
			Int("count", count).
			Msg("notification dropped")
	}
	return nil
}
