package patient

import (
	"context"

	"github.com/google/uuid"
)

type Repository interface {
	Create(ctx context.Context, p *Patient) error
	// GetByID returns active patients only.
	GetByID(ctx context.Context, id uuid.UUID) (*Patient, error)
	Update(ctx context.Context, p *Patient) error
	SoftDelete(ctx context.Context, id uuid.UUID) error
	List(ctx context.Context, search string, limit, offset int) ([]*Patient, int, error)
}

// PortalProvisioner stores patient portal credentials.
type PortalProvisioner interface {
	Provision(ctx context.Context, patientID uuid.UUID, email, passwordHash string) error
}
