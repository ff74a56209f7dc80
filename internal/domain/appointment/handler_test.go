package appointment

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/labstack/echo/v4"
)

func newTestHandler() (*Handler, *fixture, *echo.Echo) {
	f := newFixture()
	return NewHandler(f.svc), f, echo.New()
}

func TestHandler_Create(t *testing.T) {
	h, f, e := newTestHandler()
	body := `{"patient_id":"` + f.patientID.String() + `",` +
		`"therapist_id":"` + f.therapistID.String() + `",` +
		`"scheduled_date":"2024-03-04T00:00:00Z","scheduled_time":"09:00","duration_minutes":60}`
	req := httptest.NewRequest(http.MethodPost, "/", strings.NewReader(body))
	req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	rec := httptest.NewRecorder()
	c := e.NewContext(req, rec)

	if err := h.Create(c); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if rec.Code != http.StatusCreated {
		t.Errorf("expected 201, got %d", rec.Code)
	}
}

func TestHandler_Create_Conflict(t *testing.T) {
	h, f, e := newTestHandler()
	day := time.Date(2024, time.March, 4, 0, 0, 0, 0, time.UTC)
	if err := f.svc.Create(nil, f.appt(day, "09:00", 60)); err != nil {
		t.Fatalf("seed: %v", err)
	}

	body := `{"patient_id":"` + f.patientID.String() + `",` +
		`"therapist_id":"` + f.therapistID.String() + `",` +
		`"scheduled_date":"2024-03-04T00:00:00Z","scheduled_time":"09:30","duration_minutes":60}`
	req := httptest.NewRequest(http.MethodPost, "/", strings.NewReader(body))
	req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	rec := httptest.NewRecorder()
	c := e.NewContext(req, rec)

	if err := h.Create(c); err != nil {
		t.Fatalf("conflict should be written as JSON, got error: %v", err)
	}
	if rec.Code != http.StatusConflict {
		t.Fatalf("expected 409, got %d", rec.Code)
	}
	var resp conflictResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatal(err)
	}
	if len(resp.Competing) != 1 {
		t.Errorf("expected 1 competing appointment in body, got %d", len(resp.Competing))
	}
}

func TestHandler_Get_InvalidID(t *testing.T) {
	h, _, e := newTestHandler()
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	rec := httptest.NewRecorder()
	c := e.NewContext(req, rec)
	c.SetParamNames("id")
	c.SetParamValues("not-a-uuid")

	err := h.Get(c)
	he, ok := err.(*echo.HTTPError)
	if !ok || he.Code != http.StatusBadRequest {
		t.Errorf("expected 400, got %v", err)
	}
}

func TestHandler_Cancel(t *testing.T) {
	h, f, e := newTestHandler()
	day := time.Date(2024, time.March, 4, 0, 0, 0, 0, time.UTC)
	a := f.appt(day, "09:00", 60)
	if err := f.svc.Create(nil, a); err != nil {
		t.Fatalf("seed: %v", err)
	}

	req := httptest.NewRequest(http.MethodPost, "/", strings.NewReader(`{"reason":"patient request"}`))
	req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	rec := httptest.NewRecorder()
	c := e.NewContext(req, rec)
	c.SetParamNames("id")
	c.SetParamValues(a.ID.String())

	if err := h.Cancel(c); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if rec.Code != http.StatusOK {
		t.Errorf("expected 200, got %d", rec.Code)
	}
	var got Appointment
	if err := json.Unmarshal(rec.Body.Bytes(), &got); err != nil {
		t.Fatal(err)
	}
	if got.Status != StatusCancelled {
		t.Errorf("expected cancelled, got %s", got.Status)
	}
}

func TestHandler_List_Paginated(t *testing.T) {
	h, f, e := newTestHandler()
	day := time.Date(2024, time.March, 4, 0, 0, 0, 0, time.UTC)
	for _, clock := range []string{"09:00", "10:00", "11:00"} {
		if err := f.svc.Create(nil, f.appt(day, clock, 60)); err != nil {
			t.Fatalf("seed: %v", err)
		}
	}

	req := httptest.NewRequest(http.MethodGet, "/?limit=2&offset=0", nil)
	rec := httptest.NewRecorder()
	c := e.NewContext(req, rec)

	if err := h.List(c); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	var resp struct {
		Data    []Appointment `json:"data"`
		Total   int           `json:"total"`
		Limit   int           `json:"limit"`
		Offset  int           `json:"offset"`
		HasMore bool          `json:"has_more"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatal(err)
	}
	if len(resp.Data) != 2 || resp.Total != 3 {
		t.Errorf("expected 2 of 3 items, got %d of %d", len(resp.Data), resp.Total)
	}
	if resp.Limit != 2 || resp.Offset != 0 || !resp.HasMore {
		t.Errorf("pagination envelope wrong: limit=%d offset=%d has_more=%v",
			resp.Limit, resp.Offset, resp.HasMore)
	}
}

func TestHandler_CheckConflicts(t *testing.T) {
	h, f, e := newTestHandler()
	day := time.Date(2024, time.March, 4, 0, 0, 0, 0, time.UTC)
	if err := f.svc.Create(nil, f.appt(day, "09:00", 60)); err != nil {
		t.Fatalf("seed: %v", err)
	}

	body := `{"patient_id":"` + f.patientID.String() + `",` +
		`"therapist_id":"` + f.therapistID.String() + `",` +
		`"scheduled_date":"2024-03-04T00:00:00Z","scheduled_time":"10:00","duration_minutes":60}`
	req := httptest.NewRequest(http.MethodPost, "/", strings.NewReader(body))
	req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	rec := httptest.NewRecorder()
	c := e.NewContext(req, rec)

	if err := h.CheckConflicts(c); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	var resp struct {
		HasConflict bool `json:"has_conflict"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatal(err)
	}
	if resp.HasConflict {
		t.Error("back-to-back slot should be conflict free")
	}
}
