package appointment

import (
	"testing"
	"time"
)

func TestCanTransition(t *testing.T) {
	tests := []struct {
		from, to string
		want     bool
	}{
		{StatusScheduled, StatusCompleted, true},
		{StatusScheduled, StatusMissed, true},
		{StatusScheduled, StatusCancelled, true},
		{StatusMissed, StatusCompleted, true},
		{StatusMissed, StatusCancelled, true},
		{StatusMissed, StatusScheduled, false},
		{StatusCompleted, StatusCancelled, false},
		{StatusCompleted, StatusScheduled, false},
		{StatusCancelled, StatusScheduled, false},
		{StatusCancelled, StatusCompleted, false},
	}
	for _, tt := range tests {
		if got := CanTransition(tt.from, tt.to); got != tt.want {
			t.Errorf("CanTransition(%s, %s) = %v, want %v", tt.from, tt.to, got, tt.want)
		}
	}
}

func TestOverlaps(t *testing.T) {
	day := time.Date(2024, time.March, 4, 0, 0, 0, 0, time.UTC)
	mk := func(clock string, minutes int) *Appointment {
		return &Appointment{ScheduledDate: day, ScheduledTime: clock, DurationMinutes: minutes}
	}

	tests := []struct {
		name string
		a, b *Appointment
		want bool
	}{
		{"identical", mk("09:00", 60), mk("09:00", 60), true},
		{"partial overlap", mk("09:00", 60), mk("09:30", 60), true},
		{"contained", mk("09:00", 120), mk("09:30", 30), true},
		{"back to back", mk("09:00", 60), mk("10:00", 60), false},
		{"disjoint", mk("09:00", 60), mk("11:00", 60), false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := tt.a.Overlaps(tt.b)
			if err != nil {
				t.Fatal(err)
			}
			if got != tt.want {
				t.Errorf("Overlaps = %v, want %v", got, tt.want)
			}
			// Overlap is symmetric.
			rev, _ := tt.b.Overlaps(tt.a)
			if rev != got {
				t.Error("overlap should be symmetric")
			}
		})
	}
}

func TestOverlaps_DifferentDates(t *testing.T) {
	a := &Appointment{
		ScheduledDate: time.Date(2024, time.March, 4, 0, 0, 0, 0, time.UTC),
		ScheduledTime: "09:00", DurationMinutes: 60,
	}
	b := &Appointment{
		ScheduledDate: time.Date(2024, time.March, 5, 0, 0, 0, 0, time.UTC),
		ScheduledTime: "09:00", DurationMinutes: 60,
	}
	got, err := a.Overlaps(b)
	if err != nil {
		t.Fatal(err)
	}
	if got {
		t.Error("appointments on different dates never overlap")
	}
}

func TestParseClock(t *testing.T) {
	h, m, err := ParseClock("14:30")
	if err != nil || h != 14 || m != 30 {
		t.Errorf("ParseClock(14:30) = %d:%d, %v", h, m, err)
	}
	for _, bad := range []string{"", "9am", "25:00", "12:61", "12-30"} {
		if _, _, err := ParseClock(bad); err == nil {
			t.Errorf("ParseClock(%q) should fail", bad)
		}
	}
}

func TestInterval(t *testing.T) {
	a := &Appointment{
		ScheduledDate: time.Date(2024, time.March, 4, 0, 0, 0, 0, time.UTC),
		ScheduledTime: "09:15", DurationMinutes: 45,
	}
	start, end, err := a.Interval()
	if err != nil {
		t.Fatal(err)
	}
	if start.Hour() != 9 || start.Minute() != 15 {
		t.Errorf("unexpected start %v", start)
	}
	if end.Sub(start) != 45*time.Minute {
		t.Errorf("unexpected interval length %v", end.Sub(start))
	}
}

func TestIsActive(t *testing.T) {
	for status, want := range map[string]bool{
		StatusScheduled: true,
		StatusCompleted: true,
		StatusMissed:    false,
		StatusCancelled: false,
	} {
		a := &Appointment{Status: status}
		if a.IsActive() != want {
			t.Errorf("IsActive(%s) = %v, want %v", status, a.IsActive(), want)
		}
	}
}
