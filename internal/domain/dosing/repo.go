package dosing

import (
	"context"

	"github.com/google/uuid"

	"github.com/doseledger/doseledger/pkg/calendar"
)

type MedicationRepository interface {
	Create(ctx context.Context, m *Medication) error
	GetByID(ctx context.Context, id uuid.UUID) (*Medication, error)
	Update(ctx context.Context, m *Medication) error
	Delete(ctx context.Context, id uuid.UUID) error
	List(ctx context.Context) ([]*Medication, error)
}

// InjectionFilter narrows List. Zero values mean "no filter".
type InjectionFilter struct {
	PatientID *uuid.UUID
	From      *calendar.Date
	To        *calendar.Date
	Unpaid    bool
}

// InjectionRepository reads injections joined with their medication and
// patient reference.
type InjectionRepository interface {
	Create(ctx context.Context, inj *Injection) error
	GetByID(ctx context.Context, id uuid.UUID) (*Injection, error)
	Update(ctx context.Context, inj *Injection) error
	Delete(ctx context.Context, id uuid.UUID) error
	SetPaid(ctx context.Context, id uuid.UUID, paid bool) error
	// List returns matches ordered by applied_at ascending.
	List(ctx context.Context, f InjectionFilter) ([]*Injection, error)
}
