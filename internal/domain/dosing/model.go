package dosing

import (
	"encoding/json"
	"fmt"
	"strconv"
	"time"

	"github.com/google/uuid"

	"github.com/doseledger/doseledger/internal/domain/patient"
	"github.com/doseledger/doseledger/pkg/calendar"
	"github.com/doseledger/doseledger/pkg/money"
)

// Medication maps to the medication table. Staff maintain it as reference
// data for the cost model.
type Medication struct {
	ID                   uuid.UUID   `db:"id" json:"id"`
	Name                 string      `db:"name" json:"name" validate:"required,max=200"`
	CostPerVial          money.Money `db:"cost_per_vial_cents" json:"cost_per_vial" validate:"gte=0"`
	TotalContentMg       float64     `db:"total_content_mg" json:"total_content_mg" validate:"gte=0"`
	ConcentrationMgPerMl float64     `db:"concentration_mg_per_ml" json:"concentration_mg_per_ml" validate:"gte=0"`
	SalePricePerMg       money.Money `db:"sale_price_per_mg_cents" json:"sale_price_per_mg" validate:"gte=0"`
	CreatedAt            time.Time   `db:"created_at" json:"created_at"`
	UpdatedAt            time.Time   `db:"updated_at" json:"updated_at"`
}

// Dosage is the administered amount as typed by staff ("2,5 mg", "5mg",
// "7.5"). JSON numbers are accepted as well.
type Dosage string

// Mg parses the dosage permissively.
func (d Dosage) Mg() float64 { return ParseDosage(string(d)) }

func (d *Dosage) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err == nil {
		*d = Dosage(s)
		return nil
	}
	var f float64
	if err := json.Unmarshal(data, &f); err != nil {
		return fmt.Errorf("dosage must be a string or number")
	}
	*d = Dosage(strconv.FormatFloat(f, 'f', -1, 64))
	return nil
}

// Injection maps to the injection table: one dose administration.
type Injection struct {
	ID              uuid.UUID     `db:"id" json:"id"`
	PatientID       uuid.UUID     `db:"patient_id" json:"patient_id" validate:"required"`
	MedicationID    *uuid.UUID    `db:"medication_id" json:"medication_id,omitempty"`
	Dosage          Dosage        `db:"dosage" json:"dosage" validate:"required"`
	AppliedAt       calendar.Date `db:"applied_at" json:"applied_at"`
	DoseValue       money.Money   `db:"dose_value_cents" json:"dose_value" validate:"gte=0"`
	IsPaid          bool          `db:"is_paid" json:"is_paid"`
	PatientWeightKg *float64      `db:"patient_weight_kg" json:"patient_weight_kg,omitempty" validate:"omitempty,gt=0,lt=700"`
	Notes           *string       `db:"notes" json:"notes,omitempty"`
	CreatedAt       time.Time     `db:"created_at" json:"created_at"`
	UpdatedAt       time.Time     `db:"updated_at" json:"updated_at"`

	// Joined on read.
	Medication *Medication  `json:"medication,omitempty"`
	Patient    *patient.Ref `json:"patient,omitempty"`
}

// DosageMg is the parsed numeric dosage.
func (i *Injection) DosageMg() float64 { return i.Dosage.Mg() }

// Cost prices the dose with the joined medication.
func (i *Injection) Cost() DoseCost { return CostOfDose(i.Medication, i.DosageMg()) }

// ResolvedPatientID normalizes the patient reference.
func (i *Injection) ResolvedPatientID() (uuid.UUID, bool) {
	return patient.ResolveID(i.PatientID, i.Patient)
}
