package availability

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
)

func day(d int) time.Time {
	return time.Date(2024, 3, d, 0, 0, 0, 0, time.UTC)
}

func TestFindOpenSlotsFilters(t *testing.T) {
	ctx := context.Background()
	therapistA := uuid.New()
	therapistB := uuid.New()

	f := NewMemoryFinder()
	f.AddSlot(OpenSlot{TherapistID: therapistA, Date: day(4), Time: "10:00", Duration: 60})
	f.AddSlot(OpenSlot{TherapistID: therapistB, Date: day(4), Time: "10:00", Duration: 60})
	f.AddSlot(OpenSlot{TherapistID: therapistA, Date: day(6), Time: "09:00", Duration: 30})
	f.AddSlot(OpenSlot{TherapistID: therapistA, Date: day(20), Time: "10:00", Duration: 60})

	slots, err := f.FindOpenSlots(ctx, SearchParams{
		TherapistID: therapistA,
		StartDate:   day(1),
		EndDate:     day(10),
		Duration:    60,
	})
	if err != nil {
		t.Fatalf("FindOpenSlots: %v", err)
	}
	if len(slots) != 1 {
		t.Fatalf("expected 1 slot, got %d", len(slots))
	}
	if !slots[0].Date.Equal(day(4)) || slots[0].TherapistID != therapistA {
		t.Errorf("wrong slot returned: %+v", slots[0])
	}
}

func TestFindOpenSlotsShorterSlotAccepted(t *testing.T) {
	f := NewMemoryFinder()
	f.AddSlot(OpenSlot{TherapistID: uuid.New(), Date: day(5), Time: "09:00", Duration: 30})

	slots, err := f.FindOpenSlots(context.Background(), SearchParams{Duration: 30})
	if err != nil {
		t.Fatalf("FindOpenSlots: %v", err)
	}
	if len(slots) != 1 {
		t.Fatalf("expected 30-minute slot to satisfy a 30-minute search, got %d slots", len(slots))
	}
}

func TestFindOpenSlotsOrdering(t *testing.T) {
	f := NewMemoryFinder()
	tid := uuid.New()
	f.AddSlot(OpenSlot{TherapistID: tid, Date: day(6), Time: "09:00", Duration: 60})
	f.AddSlot(OpenSlot{TherapistID: tid, Date: day(4), Time: "14:00", Duration: 60})
	f.AddSlot(OpenSlot{TherapistID: tid, Date: day(4), Time: "10:00", Duration: 60})

	slots, err := f.FindOpenSlots(context.Background(), SearchParams{})
	if err != nil {
		t.Fatalf("FindOpenSlots: %v", err)
	}
	if len(slots) != 3 {
		t.Fatalf("expected 3 slots, got %d", len(slots))
	}
	want := []struct {
		d int
		t string
	}{{4, "10:00"}, {4, "14:00"}, {6, "09:00"}}
	for i, w := range want {
		if !slots[i].Date.Equal(day(w.d)) || slots[i].Time != w.t {
			t.Errorf("slot %d: got %s %s, want day %d %s",
				i, slots[i].Date.Format("2006-01-02"), slots[i].Time, w.d, w.t)
		}
	}
}

func TestFindOpenSlotsAnyTherapist(t *testing.T) {
	f := NewMemoryFinder()
	f.AddSlot(OpenSlot{TherapistID: uuid.New(), Date: day(4), Time: "10:00", Duration: 60})
	f.AddSlot(OpenSlot{TherapistID: uuid.New(), Date: day(5), Time: "11:00", Duration: 60})

	slots, err := f.FindOpenSlots(context.Background(), SearchParams{})
	if err != nil {
		t.Fatalf("FindOpenSlots: %v", err)
	}
	if len(slots) != 2 {
		t.Fatalf("nil therapist filter should return every slot, got %d", len(slots))
	}
}
