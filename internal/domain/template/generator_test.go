package template

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/therakit/therakit/internal/domain/appointment"
	"github.com/therakit/therakit/internal/domain/patient"
)

// -- Mocks --

type mockRepo struct {
	templates map[uuid.UUID]*RecurringTemplate
}

func newMockRepo() *mockRepo {
	return &mockRepo{templates: make(map[uuid.UUID]*RecurringTemplate)}
}

func (m *mockRepo) Create(_ context.Context, t *RecurringTemplate) error {
	if t.ID == uuid.Nil {
		t.ID = uuid.New()
	}
	cp := *t
	m.templates[t.ID] = &cp
	return nil
}

func (m *mockRepo) GetByID(_ context.Context, id uuid.UUID) (*RecurringTemplate, error) {
	t, ok := m.templates[id]
	if !ok {
		return nil, ErrNotFound
	}
	cp := *t
	return &cp, nil
}

func (m *mockRepo) Update(_ context.Context, t *RecurringTemplate) error {
	if _, ok := m.templates[t.ID]; !ok {
		return ErrNotFound
	}
	cp := *t
	m.templates[t.ID] = &cp
	return nil
}

func (m *mockRepo) Delete(_ context.Context, id uuid.UUID) error {
	delete(m.templates, id)
	return nil
}

func (m *mockRepo) List(_ context.Context, _ ListFilter, _, _ int) ([]*RecurringTemplate, int, error) {
	var result []*RecurringTemplate
	for _, t := range m.templates {
		result = append(result, t)
	}
	return result, len(result), nil
}

func (m *mockRepo) SetLastGeneration(_ context.Context, id uuid.UUID, date time.Time) error {
	t, ok := m.templates[id]
	if !ok {
		return ErrNotFound
	}
	t.LastGenerationDate = &date
	return nil
}

func (m *mockRepo) ListDue(_ context.Context, asOf time.Time) ([]*RecurringTemplate, error) {
	var due []*RecurringTemplate
	for _, t := range m.templates {
		if !t.IsActive || t.PausedOn(asOf) {
			continue
		}
		horizon := t.StartDate.AddDate(0, 0, t.GenerateWeeksAhead*7)
		if t.EndDate != nil && t.EndDate.Before(horizon) {
			horizon = *t.EndDate
		}
		if t.LastGenerationDate == nil || !t.LastGenerationDate.AddDate(0, 0, 7).After(horizon) {
			due = append(due, t)
		}
	}
	return due, nil
}

type mockHolidayRepo struct {
	holidays map[string]*Holiday
}

func newMockHolidayRepo() *mockHolidayRepo {
	return &mockHolidayRepo{holidays: make(map[string]*Holiday)}
}

func (m *mockHolidayRepo) Create(_ context.Context, h *Holiday) error {
	if h.ID == uuid.Nil {
		h.ID = uuid.New()
	}
	m.holidays[h.Date.Format("2006-01-02")] = h
	return nil
}

func (m *mockHolidayRepo) Delete(_ context.Context, id uuid.UUID) error {
	for k, h := range m.holidays {
		if h.ID == id {
			delete(m.holidays, k)
		}
	}
	return nil
}

func (m *mockHolidayRepo) ListBetween(_ context.Context, from, to time.Time) ([]*Holiday, error) {
	var result []*Holiday
	for _, h := range m.holidays {
		if !h.Date.Before(from) && !h.Date.After(to) {
			result = append(result, h)
		}
	}
	return result, nil
}

// mockAppointments records created appointments and can refuse chosen
// dates with a conflict.
type mockAppointments struct {
	created       []*appointment.Appointment
	conflictDates map[string]bool
}

func newMockAppointments() *mockAppointments {
	return &mockAppointments{conflictDates: make(map[string]bool)}
}

func (m *mockAppointments) Create(_ context.Context, a *appointment.Appointment) error {
	if m.conflictDates[a.ScheduledDate.Format("2006-01-02")] {
		return &appointment.ConflictError{Competing: []*appointment.Appointment{{}}}
	}
	a.ID = uuid.New()
	m.created = append(m.created, a)
	return nil
}

type mockDirectory struct {
	patients   map[uuid.UUID]*patient.Patient
	therapists map[uuid.UUID]*patient.Therapist
}

func newMockDirectory() *mockDirectory {
	return &mockDirectory{
		patients:   make(map[uuid.UUID]*patient.Patient),
		therapists: make(map[uuid.UUID]*patient.Therapist),
	}
}

func (m *mockDirectory) GetPatient(_ context.Context, id uuid.UUID) (*patient.Patient, error) {
	p, ok := m.patients[id]
	if !ok {
		return nil, patient.ErrPatientNotFound
	}
	return p, nil
}

func (m *mockDirectory) GetTherapist(_ context.Context, id uuid.UUID) (*patient.Therapist, error) {
	t, ok := m.therapists[id]
	if !ok {
		return nil, patient.ErrTherapistNotFound
	}
	return t, nil
}

func (m *mockDirectory) GetDiscipline(_ context.Context, id uuid.UUID) (*patient.Discipline, error) {
	return nil, patient.ErrDisciplineNotFound
}

// -- Fixtures --

type fixture struct {
	svc         *Service
	repo        *mockRepo
	holidays    *mockHolidayRepo
	appts       *mockAppointments
	patientID   uuid.UUID
	therapistID uuid.UUID
}

func newFixture() *fixture {
	repo := newMockRepo()
	holidays := newMockHolidayRepo()
	appts := newMockAppointments()
	dir := newMockDirectory()

	patientID := uuid.New()
	therapistID := uuid.New()
	dir.patients[patientID] = &patient.Patient{ID: patientID, Active: true}
	dir.therapists[therapistID] = &patient.Therapist{ID: therapistID, Active: true}

	return &fixture{
		svc:         NewService(repo, holidays, appts, dir, 4, zerolog.Nop()),
		repo:        repo,
		holidays:    holidays,
		appts:       appts,
		patientID:   patientID,
		therapistID: therapistID,
	}
}

func date(y int, m time.Month, d int) time.Time {
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

// januaryTemplate recurs every Tuesday of January 2024 at 10:00.
func (f *fixture) januaryTemplate(t *testing.T) *RecurringTemplate {
	t.Helper()
	end := date(2024, time.January, 31)
	tpl := &RecurringTemplate{
		PatientID:          f.patientID,
		TherapistID:        f.therapistID,
		DayOfWeek:          int(time.Tuesday),
		ScheduledTime:      "10:00",
		DurationMinutes:    60,
		StartDate:          date(2024, time.January, 1),
		EndDate:            &end,
		GenerateWeeksAhead: 4,
		SkipHolidays:       true,
	}
	if err := f.svc.Create(context.Background(), tpl); err != nil {
		t.Fatalf("create template: %v", err)
	}
	return tpl
}

// -- Tests --

func TestGenerate_WeeklyOccurrences(t *testing.T) {
	f := newFixture()
	tpl := f.januaryTemplate(t)

	report, err := f.svc.Generate(context.Background(), tpl.ID, 0)
	if err != nil {
		t.Fatalf("generate: %v", err)
	}
	if report.Created != 4 {
		t.Fatalf("expected 4 appointments, got %d", report.Created)
	}

	want := []time.Time{
		date(2024, time.January, 2),
		date(2024, time.January, 9),
		date(2024, time.January, 16),
		date(2024, time.January, 23),
	}
	for i, a := range f.appts.created {
		if !a.ScheduledDate.Equal(want[i]) {
			t.Errorf("occurrence %d on %v, want %v", i, a.ScheduledDate, want[i])
		}
		if a.ScheduledTime != "10:00" || a.DurationMinutes != 60 {
			t.Errorf("occurrence %d has wrong slot %s/%d", i, a.ScheduledTime, a.DurationMinutes)
		}
		if a.RecurringTemplateID == nil || *a.RecurringTemplateID != tpl.ID {
			t.Errorf("occurrence %d not linked to template", i)
		}
	}

	stored, _ := f.repo.GetByID(context.Background(), tpl.ID)
	if stored.LastGenerationDate == nil || !stored.LastGenerationDate.Equal(want[3]) {
		t.Errorf("watermark = %v, want %v", stored.LastGenerationDate, want[3])
	}
}

func TestGenerate_Idempotent(t *testing.T) {
	f := newFixture()
	tpl := f.januaryTemplate(t)
	ctx := context.Background()

	if _, err := f.svc.Generate(ctx, tpl.ID, 0); err != nil {
		t.Fatalf("first generate: %v", err)
	}
	report, err := f.svc.Generate(ctx, tpl.ID, 0)
	if err != nil {
		t.Fatalf("second generate: %v", err)
	}
	if report.Created != 0 {
		t.Errorf("re-run created %d duplicates", report.Created)
	}
	if len(f.appts.created) != 4 {
		t.Errorf("expected 4 total appointments, got %d", len(f.appts.created))
	}
}

func TestGenerate_SkipsHolidays(t *testing.T) {
	f := newFixture()
	tpl := f.januaryTemplate(t)
	ctx := context.Background()

	if err := f.svc.AddHoliday(ctx, &Holiday{Date: date(2024, time.January, 9), Name: "Clinic closed"}); err != nil {
		t.Fatalf("add holiday: %v", err)
	}

	report, err := f.svc.Generate(ctx, tpl.ID, 0)
	if err != nil {
		t.Fatalf("generate: %v", err)
	}
	if report.Created != 3 || report.Skipped != 1 {
		t.Errorf("created=%d skipped=%d, want 3/1", report.Created, report.Skipped)
	}
	for _, a := range f.appts.created {
		if a.ScheduledDate.Equal(date(2024, time.January, 9)) {
			t.Error("appointment generated on a holiday")
		}
	}
	// Watermark still advances past the skipped date.
	stored, _ := f.repo.GetByID(ctx, tpl.ID)
	if stored.LastGenerationDate == nil || !stored.LastGenerationDate.Equal(date(2024, time.January, 23)) {
		t.Errorf("watermark = %v", stored.LastGenerationDate)
	}
}

func TestGenerate_HolidayOptOut(t *testing.T) {
	f := newFixture()
	tpl := f.januaryTemplate(t)
	ctx := context.Background()

	if err := f.svc.AddHoliday(ctx, &Holiday{Date: date(2024, time.January, 9), Name: "Clinic closed"}); err != nil {
		t.Fatalf("add holiday: %v", err)
	}
	off := false
	if _, err := f.svc.Update(ctx, tpl.ID, UpdateInput{SkipHolidays: &off}); err != nil {
		t.Fatalf("update: %v", err)
	}

	report, err := f.svc.Generate(ctx, tpl.ID, 0)
	if err != nil {
		t.Fatalf("generate: %v", err)
	}
	if report.Created != 4 || report.Skipped != 0 {
		t.Errorf("created=%d skipped=%d, want 4/0", report.Created, report.Skipped)
	}
	found := false
	for _, a := range f.appts.created {
		if a.ScheduledDate.Equal(date(2024, time.January, 9)) {
			found = true
		}
	}
	if !found {
		t.Error("opted-out template should still generate on the holiday")
	}
}

func TestGenerate_ConflictDoesNotStopRun(t *testing.T) {
	f := newFixture()
	tpl := f.januaryTemplate(t)
	ctx := context.Background()

	f.appts.conflictDates["2024-01-09"] = true

	report, err := f.svc.Generate(ctx, tpl.ID, 0)
	if err != nil {
		t.Fatalf("generate: %v", err)
	}
	if report.Created != 3 || report.Conflicts != 1 {
		t.Errorf("created=%d conflicts=%d, want 3/1", report.Created, report.Conflicts)
	}

	// The conflicting date is not retried; the watermark moved past it.
	report, err = f.svc.Generate(ctx, tpl.ID, 0)
	if err != nil {
		t.Fatalf("second generate: %v", err)
	}
	if report.Created != 0 {
		t.Errorf("re-run created %d, want 0", report.Created)
	}
}

func TestGenerate_WeeksOverrideExtendsHorizon(t *testing.T) {
	f := newFixture()
	tpl := &RecurringTemplate{
		PatientID:          f.patientID,
		TherapistID:        f.therapistID,
		DayOfWeek:          int(time.Tuesday),
		ScheduledTime:      "10:00",
		StartDate:          date(2024, time.January, 1),
		GenerateWeeksAhead: 4,
	}
	ctx := context.Background()
	if err := f.svc.Create(ctx, tpl); err != nil {
		t.Fatalf("create: %v", err)
	}

	if _, err := f.svc.Generate(ctx, tpl.ID, 0); err != nil {
		t.Fatalf("generate: %v", err)
	}
	report, err := f.svc.Generate(ctx, tpl.ID, 5)
	if err != nil {
		t.Fatalf("extended generate: %v", err)
	}
	if report.Created != 1 {
		t.Errorf("expected 1 extra occurrence in the fifth week, got %d", report.Created)
	}
}

func TestGenerate_RefusesPausedAndDeactivated(t *testing.T) {
	f := newFixture()
	ctx := context.Background()

	tpl := f.januaryTemplate(t)
	if _, err := f.svc.Pause(ctx, tpl.ID, nil); err != nil {
		t.Fatalf("pause: %v", err)
	}
	if _, err := f.svc.Generate(ctx, tpl.ID, 0); err == nil {
		t.Error("expected error generating a paused template")
	}
	if _, err := f.svc.Resume(ctx, tpl.ID); err != nil {
		t.Fatalf("resume: %v", err)
	}
	if _, err := f.svc.Deactivate(ctx, tpl.ID); err != nil {
		t.Fatalf("deactivate: %v", err)
	}
	if _, err := f.svc.Generate(ctx, tpl.ID, 0); err == nil {
		t.Error("expected error generating a deactivated template")
	}
}

func TestGenerateDue(t *testing.T) {
	f := newFixture()
	ctx := context.Background()

	fresh := f.januaryTemplate(t)

	exhausted := f.januaryTemplate(t)
	if _, err := f.svc.Generate(ctx, exhausted.ID, 0); err != nil {
		t.Fatalf("exhaust template: %v", err)
	}
	createdBefore := len(f.appts.created)

	report, err := f.svc.GenerateDue(ctx)
	if err != nil {
		t.Fatalf("generate due: %v", err)
	}
	if report.Templates != 1 {
		t.Errorf("expected 1 due template, got %d", report.Templates)
	}
	if report.Created != 4 {
		t.Errorf("expected 4 created, got %d", report.Created)
	}
	if len(f.appts.created) != createdBefore+4 {
		t.Errorf("unexpected total %d", len(f.appts.created))
	}

	stored, _ := f.repo.GetByID(ctx, fresh.ID)
	if stored.LastGenerationDate == nil {
		t.Error("due generation did not advance the watermark")
	}
}
