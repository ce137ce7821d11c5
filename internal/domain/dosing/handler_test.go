package dosing

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"

	"github.com/doseledger/doseledger/internal/platform/validate"
	"github.com/doseledger/doseledger/pkg/calendar"
	"github.com/doseledger/doseledger/pkg/money"
)

func newTestHandler() (*Handler, *echo.Echo) {
	e := echo.New()
	e.Validator = validate.New()
	return NewHandler(newTestService()), e
}

func TestHandler_CreateMedication(t *testing.T) {
	h, e := newTestHandler()
	body := `{"name":"Tirzepatida","cost_per_vial":"R$ 1.800,00","total_content_mg":60}`
	req := httptest.NewRequest(http.MethodPost, "/", strings.NewReader(body))
	req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	rec := httptest.NewRecorder()
	c := e.NewContext(req, rec)

	if err := h.CreateMedication(c); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if rec.Code != http.StatusCreated {
		t.Errorf("expected 201, got %d", rec.Code)
	}
	var got Medication
	if err := json.Unmarshal(rec.Body.Bytes(), &got); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if got.CostPerVial != money.FromReais(1800) {
		t.Errorf("expected cost per vial 1800, got %v", got.CostPerVial)
	}
}

func TestHandler_CreateMedication_MissingName(t *testing.T) {
	h, e := newTestHandler()
	req := httptest.NewRequest(http.MethodPost, "/", strings.NewReader(`{"total_content_mg":10}`))
	req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	c := e.NewContext(req, httptest.NewRecorder())

	if err := h.CreateMedication(c); err == nil {
		t.Error("expected validation error")
	}
}

func TestHandler_GetMedication_NotFound(t *testing.T) {
	h, e := newTestHandler()
	c := e.NewContext(httptest.NewRequest(http.MethodGet, "/", nil), httptest.NewRecorder())
	c.SetParamNames("id")
	c.SetParamValues(uuid.New().String())

	err := h.GetMedication(c)
	httpErr, ok := err.(*echo.HTTPError)
	if !ok || httpErr.Code != http.StatusNotFound {
		t.Errorf("expected 404, got %v", err)
	}
}

func TestHandler_ListMedications_Empty(t *testing.T) {
	h, e := newTestHandler()
	rec := httptest.NewRecorder()
	c := e.NewContext(httptest.NewRequest(http.MethodGet, "/", nil), rec)

	if err := h.ListMedications(c); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if strings.TrimSpace(rec.Body.String()) != "[]" {
		t.Errorf("expected empty array, got %s", rec.Body.String())
	}
}

func TestHandler_ListInjections_Filters(t *testing.T) {
	h, e := newTestHandler()
	ctx := context.Background()
	repo := h.svc.injs.(*mockInjectionRepo)
	patientID := uuid.New()
	_ = repo.Create(ctx, &Injection{PatientID: patientID, Dosage: "2,5", AppliedAt: calendar.New(2024, time.January, 5)})
	_ = repo.Create(ctx, &Injection{PatientID: patientID, Dosage: "5", AppliedAt: calendar.New(2024, time.February, 5), IsPaid: true})
	_ = repo.Create(ctx, &Injection{PatientID: uuid.New(), Dosage: "5", AppliedAt: calendar.New(2024, time.February, 6)})

	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/?patient_id="+patientID.String()+"&unpaid=true", nil)
	c := e.NewContext(req, rec)
	if err := h.ListInjections(c); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	var body struct {
		Total int `json:"total"`
	}
	_ = json.Unmarshal(rec.Body.Bytes(), &body)
	if body.Total != 1 {
		t.Errorf("expected 1 unpaid injection, got %d", body.Total)
	}
}

func TestHandler_ListInjections_BadFilter(t *testing.T) {
	h, e := newTestHandler()
	for _, q := range []string{"?patient_id=nope", "?from=garbage", "?to=2024-13-40"} {
		c := e.NewContext(httptest.NewRequest(http.MethodGet, "/"+q, nil), httptest.NewRecorder())
		err := h.ListInjections(c)
		httpErr, ok := err.(*echo.HTTPError)
		if !ok || httpErr.Code != http.StatusBadRequest {
			t.Errorf("%s: expected 400, got %v", q, err)
		}
	}
}

func TestHandler_QuoteDose(t *testing.T) {
	h, e := newTestHandler()
	m := &Medication{Name: "X", CostPerVial: money.FromReais(450), TotalContentMg: 10, SalePricePerMg: money.FromReais(60)}
	_ = h.svc.CreateMedication(context.Background(), m)

	rec := httptest.NewRecorder()
	c := e.NewContext(httptest.NewRequest(http.MethodGet, "/?dosage=2,5mg", nil), rec)
	c.SetParamNames("id")
	c.SetParamValues(m.ID.String())
	if err := h.QuoteDose(c); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !strings.Contains(rec.Body.String(), `"suggested_value":150.00`) {
		t.Errorf("expected suggested value 150.00, got %s", rec.Body.String())
	}
}
