package finance

import (
	"context"

	"github.com/google/uuid"

	"github.com/doseledger/doseledger/pkg/calendar"
)

// RecordFilter narrows List. Zero values mean "no filter".
type RecordFilter struct {
	PatientID   *uuid.UUID
	InjectionID *uuid.UUID
	Status      *Status
	From        *calendar.Date
	To          *calendar.Date
}

type RecordRepository interface {
	// Create returns ErrAlreadyPaid when a second Pago record would be
	// linked to the same injection.
	Create(ctx context.Context, r *Record) error
	GetByID(ctx context.Context, id uuid.UUID) (*Record, error)
	Update(ctx context.Context, r *Record) error
	Delete(ctx context.Context, id uuid.UUID) error
	// List returns matches ordered by due date descending.
	List(ctx context.Context, f RecordFilter) ([]*Record, error)
	// FindPaidByInjection returns the Pago record linked to an injection.
	FindPaidByInjection(ctx context.Context, injectionID uuid.UUID) (*Record, error)
	// UnlinkInjection clears injection_id on every record pointing at it.
	UnlinkInjection(ctx context.Context, injectionID uuid.UUID) (int64, error)
}
