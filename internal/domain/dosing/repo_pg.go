package dosing

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/doseledger/doseledger/internal/domain/patient"
	"github.com/doseledger/doseledger/internal/platform/db"
	"github.com/doseledger/doseledger/pkg/calendar"
	"github.com/doseledger/doseledger/pkg/money"
)

// =========== Medication Repository ===========

type medicationRepoPG struct{ pool *pgxpool.Pool }

func NewMedicationRepoPG(pool *pgxpool.Pool) MedicationRepository {
	return &medicationRepoPG{pool: pool}
}

func (r *medicationRepoPG) conn(ctx context.Context) db.Queryable {
	return db.Conn(ctx, r.pool)
}

const medCols = `id, name, cost_per_vial_cents, total_content_mg, concentration_mg_per_ml,
	sale_price_per_mg_cents, created_at, updated_at`

func scanMedication(row pgx.Row) (*Medication, error) {
	var m Medication
	var vial, sale int64
	err := row.Scan(&m.ID, &m.Name, &vial, &m.TotalContentMg, &m.ConcentrationMgPerMl,
		&sale, &m.CreatedAt, &m.UpdatedAt)
	if err != nil {
		return nil, db.MapErr(err)
	}
	m.CostPerVial = money.FromCents(vial)
	m.SalePricePerMg = money.FromCents(sale)
	return &m, nil
}

func (r *medicationRepoPG) Create(ctx context.Context, m *Medication) error {
	m.ID = uuid.New()
	err := r.conn(ctx).QueryRow(ctx, `
		INSERT INTO medication (id, name, cost_per_vial_cents, total_content_mg,
			concentration_mg_per_ml, sale_price_per_mg_cents)
		VALUES ($1,$2,$3,$4,$5,$6)
		RETURNING created_at, updated_at`,
		m.ID, m.Name, m.CostPerVial.Cents(), m.TotalContentMg, m.ConcentrationMgPerMl, m.SalePricePerMg.Cents(),
	).Scan(&m.CreatedAt, &m.UpdatedAt)
	if err != nil {
		return fmt.Errorf("insert medication: %w", err)
	}
	return nil
}

func (r *medicationRepoPG) GetByID(ctx context.Context, id uuid.UUID) (*Medication, error) {
	return scanMedication(r.conn(ctx).QueryRow(ctx, `SELECT `+medCols+` FROM medication WHERE id = $1`, id))
}

func (r *medicationRepoPG) Update(ctx context.Context, m *Medication) error {
	return db.ExpectAffected(r.conn(ctx).Exec(ctx, `
		UPDATE medication SET name=$2, cost_per_vial_cents=$3, total_content_mg=$4,
			concentration_mg_per_ml=$5, sale_price_per_mg_cents=$6, updated_at=NOW()
		WHERE id = $1`,
		m.ID, m.Name, m.CostPerVial.Cents(), m.TotalContentMg, m.ConcentrationMgPerMl, m.SalePricePerMg.Cents()))
}

func (r *medicationRepoPG) Delete(ctx context.Context, id uuid.UUID) error {
	return db.ExpectAffected(r.conn(ctx).Exec(ctx, `DELETE FROM medication WHERE id = $1`, id))
}

func (r *medicationRepoPG) List(ctx context.Context) ([]*Medication, error) {
	rows, err := r.conn(ctx).Query(ctx, `SELECT `+medCols+` FROM medication ORDER BY name`)
	if err != nil {
		return nil, fmt.Errorf("list medications: %w", err)
	}
	defer rows.Close()
	var items []*Medication
	for rows.Next() {
		m, err := scanMedication(rows)
		if err != nil {
			return nil, err
		}
		items = append(items, m)
	}
	return items, rows.Err()
}

// =========== Injection Repository ===========

type injectionRepoPG struct{ pool *pgxpool.Pool }

func NewInjectionRepoPG(pool *pgxpool.Pool) InjectionRepository {
	return &injectionRepoPG{pool: pool}
}

func (r *injectionRepoPG) conn(ctx context.Context) db.Queryable {
	return db.Conn(ctx, r.pool)
}

const injSelect = `SELECT i.id, i.patient_id, i.medication_id, i.dosage, i.applied_at, i.dose_value_cents,
	i.is_paid, i.patient_weight_kg, i.notes, i.created_at, i.updated_at,
	m.id, m.name, m.cost_per_vial_cents, m.total_content_mg, m.concentration_mg_per_ml, m.sale_price_per_mg_cents,
	p.id, p.name, p.deleted_at
FROM injection i
LEFT JOIN medication m ON m.id = i.medication_id
LEFT JOIN patient p ON p.id = i.patient_id`

func scanInjection(row pgx.Row) (*Injection, error) {
	var inj Injection
	var dosage string
	var applied time.Time
	var value int64
	var (
		medID               *uuid.UUID
		medName             *string
		medVial, medSale    *int64
		medContent, medConc *float64
		patID               *uuid.UUID
		patName             *string
		patDeleted          *time.Time
	)
	err := row.Scan(&inj.ID, &inj.PatientID, &inj.MedicationID, &dosage, &applied, &value,
		&inj.IsPaid, &inj.PatientWeightKg, &inj.Notes, &inj.CreatedAt, &inj.UpdatedAt,
		&medID, &medName, &medVial, &medContent, &medConc, &medSale,
		&patID, &patName, &patDeleted)
	if err != nil {
		return nil, db.MapErr(err)
	}
	inj.Dosage = Dosage(dosage)
	inj.AppliedAt = calendar.FromTime(applied)
	inj.DoseValue = money.FromCents(value)

	if medID != nil {
		inj.Medication = &Medication{
			ID:                   *medID,
			Name:                 deref(medName),
			CostPerVial:          money.FromCents(derefInt(medVial)),
			TotalContentMg:       derefFloat(medContent),
			ConcentrationMgPerMl: derefFloat(medConc),
			SalePricePerMg:       money.FromCents(derefInt(medSale)),
		}
	}
	if patID != nil {
		inj.Patient = &patient.Ref{ID: *patID, Name: deref(patName), DeletedAt: patDeleted}
	}
	return &inj, nil
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}

func derefInt(v *int64) int64 {
	if v == nil {
		return 0
	}
	return *v
}

func derefFloat(v *float64) float64 {
	if v == nil {
		return 0
	}
	return *v
}

func (r *injectionRepoPG) Create(ctx context.Context, inj *Injection) error {
	inj.ID = uuid.New()
	err := r.conn(ctx).QueryRow(ctx, `
		INSERT INTO injection (id, patient_id, medication_id, dosage, applied_at, dose_value_cents,
			is_paid, patient_weight_kg, notes)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9)
		RETURNING created_at, updated_at`,
		inj.ID, inj.PatientID, inj.MedicationID, string(inj.Dosage), inj.AppliedAt.Time(), inj.DoseValue.Cents(),
		inj.IsPaid, inj.PatientWeightKg, inj.Notes,
	).Scan(&inj.CreatedAt, &inj.UpdatedAt)
	if err != nil {
		return fmt.Errorf("insert injection: %w", err)
	}
	return nil
}

func (r *injectionRepoPG) GetByID(ctx context.Context, id uuid.UUID) (*Injection, error) {
	return scanInjection(r.conn(ctx).QueryRow(ctx, injSelect+` WHERE i.id = $1`, id))
}

func (r *injectionRepoPG) Update(ctx context.Context, inj *Injection) error {
	return db.ExpectAffected(r.conn(ctx).Exec(ctx, `
		UPDATE injection SET medication_id=$2, dosage=$3, applied_at=$4, dose_value_cents=$5,
			patient_weight_kg=$6, notes=$7, updated_at=NOW()
		WHERE id = $1`,
		inj.ID, inj.MedicationID, string(inj.Dosage), inj.AppliedAt.Time(), inj.DoseValue.Cents(),
		inj.PatientWeightKg, inj.Notes))
}

func (r *injectionRepoPG) Delete(ctx context.Context, id uuid.UUID) error {
	return db.ExpectAffected(r.conn(ctx).Exec(ctx, `DELETE FROM injection WHERE id = $1`, id))
}

func (r *injectionRepoPG) SetPaid(ctx context.Context, id uuid.UUID, paid bool) error {
	return db.ExpectAffected(r.conn(ctx).Exec(ctx,
		`UPDATE injection SET is_paid = $2, updated_at = NOW() WHERE id = $1`, id, paid))
}

func (r *injectionRepoPG) List(ctx context.Context, f InjectionFilter) ([]*Injection, error) {
	var conds []string
	var args []interface{}
	add := func(cond string, v interface{}) {
		args = append(args, v)
		conds = append(conds, fmt.Sprintf(cond, len(args)))
	}
	if f.PatientID != nil {
		add("i.patient_id = $%d", *f.PatientID)
	}
	if f.From != nil {
		add("i.applied_at >= $%d", f.From.Time())
	}
	if f.To != nil {
		add("i.applied_at <= $%d", f.To.Time())
	}
	if f.Unpaid {
		conds = append(conds, "NOT i.is_paid")
	}

	q := injSelect
	if len(conds) > 0 {
		q += " WHERE " + strings.Join(conds, " AND ")
	}
	q += " ORDER BY i.applied_at, i.created_at"

	rows, err := r.conn(ctx).Query(ctx, q, args...)
	if err != nil {
		return nil, fmt.Errorf("list injections: %w", err)
	}
	defer rows.Close()
	var items []*Injection
	for rows.Next() {
		inj, err := scanInjection(rows)
		if err != nil {
			return nil, err
		}
		items = append(items, inj)
	}
	return items, rows.Err()
}
