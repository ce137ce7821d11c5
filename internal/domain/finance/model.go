package finance

import (
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/doseledger/doseledger/internal/domain/patient"
	"github.com/doseledger/doseledger/internal/platform/db"
	"github.com/doseledger/doseledger/pkg/calendar"
	"github.com/doseledger/doseledger/pkg/money"
)

var (
	ErrNotFound      = db.ErrNotFound
	ErrInvalid       = errors.New("invalid input")
	ErrAlreadyPaid   = errors.New("injection already paid")
	ErrInvalidStatus = errors.New("invalid status transition")
	ErrForbidden     = errors.New("injection belongs to another patient")
)

// Status of a financial record. Atrasado is derived from Pendente and the
// due date; it is accepted on input but stored as Pendente.
type Status string

const (
	StatusPending    Status = "Pendente"
	StatusPaid       Status = "Pago"
	StatusOverdue    Status = "Atrasado"
	StatusProcessing Status = "Em Processamento"
)

var validStatuses = map[Status]bool{
	StatusPending: true, StatusPaid: true, StatusOverdue: true, StatusProcessing: true,
}

// ParseStatus validates s. Empty input defaults to Pendente.
func ParseStatus(s string) (Status, error) {
	if s == "" {
		return StatusPending, nil
	}
	st := Status(s)
	if !validStatuses[st] {
		return "", fmt.Errorf("%w: unknown status %q", ErrInvalid, s)
	}
	return st, nil
}

// Stored maps the derived Atrasado back to Pendente.
func (s Status) Stored() Status {
	if s == StatusOverdue {
		return StatusPending
	}
	return s
}

// Record maps to the financial_record table.
type Record struct {
	ID          uuid.UUID     `db:"id" json:"id"`
	PatientID   *uuid.UUID    `db:"patient_id" json:"patient_id,omitempty"`
	Amount      money.Money   `db:"amount_cents" json:"amount" validate:"gte=0"`
	Description string        `db:"description" json:"description" validate:"max=500"`
	DueDate     calendar.Date `db:"due_date" json:"due_date"`
	Status      Status        `db:"status" json:"status"`
	InjectionID *uuid.UUID    `db:"injection_id" json:"injection_id,omitempty"`
	CreatedAt   time.Time     `db:"created_at" json:"created_at"`
	UpdatedAt   time.Time     `db:"updated_at" json:"updated_at"`

	// Joined on read.
	Patient *patient.Ref `json:"patient,omitempty"`
	// ViewStatus is Status as of the day the record was listed.
	ViewStatus Status `json:"view_status,omitempty"`
}

// Classify returns the status to display on today: a pending record past
// its due date is overdue.
func (r *Record) Classify(today calendar.Date) Status {
	st := r.Status.Stored()
	if st == StatusPending && !r.DueDate.IsZero() && r.DueDate.Before(today) {
		return StatusOverdue
	}
	return st
}

// ResolvedPatientID normalizes the patient reference.
func (r *Record) ResolvedPatientID() (uuid.UUID, bool) {
	scalar := uuid.Nil
	if r.PatientID != nil {
		scalar = *r.PatientID
	}
	return patient.ResolveID(scalar, r.Patient)
}
