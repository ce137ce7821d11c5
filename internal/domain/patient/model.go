package patient

import (
	"time"

	"github.com/google/uuid"

	"github.com/doseledger/doseledger/pkg/calendar"
)

// Patient maps to the patient table.
type Patient struct {
	ID              uuid.UUID      `db:"id" json:"id"`
	Name            string         `db:"name" json:"name" validate:"required,max=200"`
	Email           *string        `db:"email" json:"email,omitempty" validate:"omitempty,email"`
	Phone           *string        `db:"phone" json:"phone,omitempty" validate:"omitempty,max=40"`
	BirthDate       *calendar.Date `db:"birth_date" json:"birth_date,omitempty"`
	HeightCm        *float64       `db:"height_cm" json:"height_cm,omitempty" validate:"omitempty,gt=0,lt=300"`
	InitialWeightKg *float64       `db:"initial_weight_kg" json:"initial_weight_kg,omitempty" validate:"omitempty,gt=0,lt=700"`
	TargetWeightKg  *float64       `db:"target_weight_kg" json:"target_weight_kg,omitempty" validate:"omitempty,gt=0,lt=700"`
	DeletedAt       *time.Time     `db:"deleted_at" json:"deleted_at,omitempty"`
	CreatedAt       time.Time      `db:"created_at" json:"created_at"`
	UpdatedAt       time.Time      `db:"updated_at" json:"updated_at"`
}

// Ref returns the join-path view of p.
func (p *Patient) Ref() *Ref {
	return &Ref{ID: p.ID, Name: p.Name, DeletedAt: p.DeletedAt}
}

// Ref is the patient as it appears joined onto injections and financial
// records.
type Ref struct {
	ID        uuid.UUID  `json:"id"`
	Name      string     `json:"name"`
	DeletedAt *time.Time `json:"deleted_at,omitempty"`
}

// ResolveID normalizes the two ways a row can point at a patient: the scalar
// patient_id column and the joined reference. The joined reference wins.
// It reports false when the patient is unknown or soft-deleted.
func ResolveID(scalar uuid.UUID, ref *Ref) (uuid.UUID, bool) {
	if ref != nil {
		if ref.DeletedAt != nil || ref.ID == uuid.Nil {
			return uuid.Nil, false
		}
		return ref.ID, true
	}
	if scalar == uuid.Nil {
		return uuid.Nil, false
	}
	return scalar, true
}

// PortalCredentials is returned once, when portal access is provisioned.
type PortalCredentials struct {
	PatientID         uuid.UUID `json:"patient_id"`
	Email             string    `json:"email"`
	TemporaryPassword string    `json:"temporary_password"`
}
