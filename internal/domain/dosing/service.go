package dosing

import (
	"context"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/doseledger/doseledger/pkg/money"
)

// Service owns medication reference data and injection reads. Injection
// writes go through the finance reconciliation service so the linked
// financial records stay consistent.
type Service struct {
	meds MedicationRepository
	injs InjectionRepository
}

func NewService(meds MedicationRepository, injs InjectionRepository) *Service {
	return &Service{meds: meds, injs: injs}
}

func (s *Service) CreateMedication(ctx context.Context, m *Medication) error {
	m.Name = strings.TrimSpace(m.Name)
	if m.Name == "" {
		return fmt.Errorf("name is required")
	}
	if m.TotalContentMg < 0 || m.ConcentrationMgPerMl < 0 {
		return fmt.Errorf("content and concentration must not be negative")
	}
	if err := s.meds.Create(ctx, m); err != nil {
		return err
	}
	zerolog.Ctx(ctx).Info().Str("medication_id", m.ID.String()).Str("name", m.Name).Msg("medication created")
	return nil
}

func (s *Service) GetMedication(ctx context.Context, id uuid.UUID) (*Medication, error) {
	return s.meds.GetByID(ctx, id)
}

func (s *Service) UpdateMedication(ctx context.Context, m *Medication) error {
	m.Name = strings.TrimSpace(m.Name)
	if m.Name == "" {
		return fmt.Errorf("name is required")
	}
	return s.meds.Update(ctx, m)
}

func (s *Service) DeleteMedication(ctx context.Context, id uuid.UUID) error {
	return s.meds.Delete(ctx, id)
}

func (s *Service) ListMedications(ctx context.Context) ([]*Medication, error) {
	return s.meds.List(ctx)
}

func (s *Service) GetInjection(ctx context.Context, id uuid.UUID) (*Injection, error) {
	return s.injs.GetByID(ctx, id)
}

func (s *Service) ListInjections(ctx context.Context, f InjectionFilter) ([]*Injection, error) {
	return s.injs.List(ctx, f)
}

// Quote prices a prospective dose for the registration form.
type Quote struct {
	DosageMg       float64     `json:"dosage_mg"`
	SuggestedValue money.Money `json:"suggested_value"`
	VolumeML       float64     `json:"volume_ml"`
	Cost           DoseCost    `json:"cost"`
}

func (s *Service) QuoteDose(ctx context.Context, medicationID uuid.UUID, dosage Dosage) (*Quote, error) {
	m, err := s.meds.GetByID(ctx, medicationID)
	if err != nil {
		return nil, err
	}
	mg := dosage.Mg()
	return &Quote{
		DosageMg:       mg,
		SuggestedValue: m.SuggestedDoseValue(mg),
		VolumeML:       m.DoseVolumeML(mg),
		Cost:           CostOfDose(m, mg),
	}, nil
}
