package dosing

import (
	"context"
	"sort"
	"testing"

	"github.com/google/uuid"

	"github.com/doseledger/doseledger/internal/platform/db"
	"github.com/doseledger/doseledger/pkg/money"
)

// ── Mock Repositories ──

type mockMedicationRepo struct {
	data map[uuid.UUID]*Medication
}

func newMockMedicationRepo() *mockMedicationRepo {
	return &mockMedicationRepo{data: make(map[uuid.UUID]*Medication)}
}

func (m *mockMedicationRepo) Create(_ context.Context, med *Medication) error {
	med.ID = uuid.New()
	m.data[med.ID] = med
	return nil
}
func (m *mockMedicationRepo) GetByID(_ context.Context, id uuid.UUID) (*Medication, error) {
	if med, ok := m.data[id]; ok {
		return med, nil
	}
	return nil, db.ErrNotFound
}
func (m *mockMedicationRepo) Update(_ context.Context, med *Medication) error {
	if _, ok := m.data[med.ID]; !ok {
		return db.ErrNotFound
	}
	m.data[med.ID] = med
	return nil
}
func (m *mockMedicationRepo) Delete(_ context.Context, id uuid.UUID) error {
	if _, ok := m.data[id]; !ok {
		return db.ErrNotFound
	}
	delete(m.data, id)
	return nil
}
func (m *mockMedicationRepo) List(_ context.Context) ([]*Medication, error) {
	var out []*Medication
	for _, med := range m.data {
		out = append(out, med)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}

type mockInjectionRepo struct {
	data map[uuid.UUID]*Injection
}

func newMockInjectionRepo() *mockInjectionRepo {
	return &mockInjectionRepo{data: make(map[uuid.UUID]*Injection)}
}

func (m *mockInjectionRepo) Create(_ context.Context, inj *Injection) error {
	inj.ID = uuid.New()
	m.data[inj.ID] = inj
	return nil
}
func (m *mockInjectionRepo) GetByID(_ context.Context, id uuid.UUID) (*Injection, error) {
	if inj, ok := m.data[id]; ok {
		return inj, nil
	}
	return nil, db.ErrNotFound
}
func (m *mockInjectionRepo) Update(_ context.Context, inj *Injection) error {
	if _, ok := m.data[inj.ID]; !ok {
		return db.ErrNotFound
	}
	m.data[inj.ID] = inj
	return nil
}
func (m *mockInjectionRepo) Delete(_ context.Context, id uuid.UUID) error {
	delete(m.data, id)
	return nil
}
func (m *mockInjectionRepo) SetPaid(_ context.Context, id uuid.UUID, paid bool) error {
	inj, ok := m.data[id]
	if !ok {
		return db.ErrNotFound
	}
	inj.IsPaid = paid
	return nil
}
func (m *mockInjectionRepo) List(_ context.Context, f InjectionFilter) ([]*Injection, error) {
	var out []*Injection
	for _, inj := range m.data {
		if f.PatientID != nil && inj.PatientID != *f.PatientID {
			continue
		}
		if f.From != nil && inj.AppliedAt.Before(*f.From) {
			continue
		}
		if f.To != nil && inj.AppliedAt.After(*f.To) {
			continue
		}
		if f.Unpaid && inj.IsPaid {
			continue
		}
		out = append(out, inj)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].AppliedAt.Before(out[j].AppliedAt) })
	return out, nil
}

func newTestService() *Service {
	return NewService(newMockMedicationRepo(), newMockInjectionRepo())
}

// ── Medication ──

func TestCreateMedication(t *testing.T) {
	svc := newTestService()
	m := &Medication{Name: " Tirzepatida 15mg ", CostPerVial: money.FromReais(1800), TotalContentMg: 60}
	if err := svc.CreateMedication(context.Background(), m); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if m.ID == uuid.Nil {
		t.Error("expected ID to be set")
	}
	if m.Name != "Tirzepatida 15mg" {
		t.Errorf("expected trimmed name, got %q", m.Name)
	}
}

func TestCreateMedication_Validation(t *testing.T) {
	svc := newTestService()
	if err := svc.CreateMedication(context.Background(), &Medication{}); err == nil {
		t.Error("expected error for missing name")
	}
	if err := svc.CreateMedication(context.Background(), &Medication{Name: "X", TotalContentMg: -1}); err == nil {
		t.Error("expected error for negative content")
	}
}

func TestUpdateMedication_NotFound(t *testing.T) {
	svc := newTestService()
	err := svc.UpdateMedication(context.Background(), &Medication{ID: uuid.New(), Name: "X"})
	if err != db.ErrNotFound {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
}

func TestQuoteDose(t *testing.T) {
	svc := newTestService()
	ctx := context.Background()
	m := &Medication{
		Name:                 "Tirzepatida",
		CostPerVial:          money.FromReais(450),
		TotalContentMg:       10,
		ConcentrationMgPerMl: 20,
		SalePricePerMg:       money.FromReais(60),
	}
	_ = svc.CreateMedication(ctx, m)

	q, err := svc.QuoteDose(ctx, m.ID, "5 mg")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if q.DosageMg != 5 {
		t.Errorf("expected 5 mg, got %v", q.DosageMg)
	}
	if q.SuggestedValue != money.FromReais(300) {
		t.Errorf("expected suggested 300, got %v", q.SuggestedValue)
	}
	if q.Cost.Cost != money.FromReais(225) {
		t.Errorf("expected cost 225, got %v", q.Cost.Cost)
	}
	if q.VolumeML != 0.25 {
		t.Errorf("expected 0.25 ml, got %v", q.VolumeML)
	}
}
