package patient

import (
	"context"
	"crypto/rand"
	"fmt"
	"io"
	"math/big"
	"strings"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"golang.org/x/crypto/bcrypt"
)

// Unambiguous characters for temporary passwords read over the phone.
const passwordAlphabet = "ABCDEFGHJKLMNPQRSTUVWXYZabcdefghijkmnopqrstuvwxyz23456789"

const temporaryPasswordLength = 10

type Service struct {
	repo       Repository
	portal     PortalProvisioner
	random     io.Reader
	bcryptCost int
}

func NewService(repo Repository, portal PortalProvisioner) *Service {
	return &Service{
		repo:       repo,
		portal:     portal,
		random:     rand.Reader,
		bcryptCost: bcrypt.DefaultCost,
	}
}

func normalize(p *Patient) {
	p.Name = strings.TrimSpace(p.Name)
	if p.Email != nil {
		e := strings.ToLower(strings.TrimSpace(*p.Email))
		if e == "" {
			p.Email = nil
		} else {
			p.Email = &e
		}
	}
}

func (s *Service) CreatePatient(ctx context.Context, p *Patient) error {
	normalize(p)
	if p.Name == "" {
		return fmt.Errorf("name is required")
	}
	if err := s.repo.Create(ctx, p); err != nil {
		return err
	}
	zerolog.Ctx(ctx).Info().Str("patient_id", p.ID.String()).Msg("patient created")
	return nil
}

func (s *Service) GetPatient(ctx context.Context, id uuid.UUID) (*Patient, error) {
	return s.repo.GetByID(ctx, id)
}

func (s *Service) UpdatePatient(ctx context.Context, p *Patient) error {
	normalize(p)
	if p.Name == "" {
		return fmt.Errorf("name is required")
	}
	return s.repo.Update(ctx, p)
}

// DeletePatient soft-deletes; injections and records are kept for the
// clinic totals.
func (s *Service) DeletePatient(ctx context.Context, id uuid.UUID) error {
	if err := s.repo.SoftDelete(ctx, id); err != nil {
		return err
	}
	zerolog.Ctx(ctx).Info().Str("patient_id", id.String()).Msg("patient deleted")
	return nil
}

func (s *Service) ListPatients(ctx context.Context, search string, limit, offset int) ([]*Patient, int, error) {
	return s.repo.List(ctx, strings.TrimSpace(search), limit, offset)
}

// ProvisionPortalAccess issues a temporary password for the patient's portal
// login. The plain password is returned once and only its bcrypt hash is
// stored.
func (s *Service) ProvisionPortalAccess(ctx context.Context, id uuid.UUID) (*PortalCredentials, error) {
	p, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if p.Email == nil || *p.Email == "" {
		return nil, fmt.Errorf("email is required for portal access")
	}

	password, err := s.temporaryPassword()
	if err != nil {
		return nil, fmt.Errorf("generate password: %w", err)
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(password), s.bcryptCost)
	if err != nil {
		return nil, fmt.Errorf("hash password: %w", err)
	}
	if err := s.portal.Provision(ctx, p.ID, *p.Email, string(hash)); err != nil {
		return nil, err
	}

	zerolog.Ctx(ctx).Info().Str("patient_id", p.ID.String()).Msg("portal access provisioned")
	return &PortalCredentials{PatientID: p.ID, Email: *p.Email, TemporaryPassword: password}, nil
}

func (s *Service) temporaryPassword() (string, error) {
	max := big.NewInt(int64(len(passwordAlphabet)))
	var b strings.Builder
	for i := 0; i < temporaryPasswordLength; i++ {
		n, err := rand.Int(s.random, max)
		if err != nil {
			return "", err
		}
		b.WriteByte(passwordAlphabet[n.Int64()])
	}
	return b.String(), nil
}
