package notification

import (
	"bytes"
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/rs/zerolog"
)

type failingNotifier struct{}

func (failingNotifier) Notify(context.Context, string, Event, int) error {
	return errors.New("smtp down")
}

func TestCounterNotifier(t *testing.T) {
	n := NewCounterNotifier()
	ctx := context.Background()

	n.Notify(ctx, "north", EventAppointmentCreated, 3)
	n.Notify(ctx, "north", EventAppointmentCreated, 2)
	n.Notify(ctx, "south", EventAppointmentCancelled, 1)

	if got := n.Count("north", EventAppointmentCreated); got != 5 {
		t.Errorf("north created = %d, want 5", got)
	}
	if got := n.Count("south", EventAppointmentCancelled); got != 1 {
		t.Errorf("south cancelled = %d, want 1", got)
	}
	if got := n.Count("north", EventReminderDue); got != 0 {
		t.Errorf("unset counter = %d, want 0", got)
	}
}

func TestBestEffortSwallowsErrors(t *testing.T) {
	var buf bytes.Buffer
	logger := zerolog.New(&buf)

	b := NewBestEffort(failingNotifier{}, logger)
	if err := b.Notify(context.Background(), "north", EventReminderDue, 1); err != nil {
		t.Fatalf("BestEffort must never propagate errors, got %v", err)
	}
	if !strings.Contains(buf.String(), "notification dropped") {
		t.Error("dropped notification not logged")
	}
}

func TestBestEffortNilNotifier(t *testing.T) {
	b := NewBestEffort(nil, zerolog.Nop())
	if err := b.Notify(context.Background(), "north", EventAppointmentMissed, 2); err != nil {
		t.Fatalf("nil notifier should be a no-op, got %v", err)
	}
}
