package finance

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/doseledger/doseledger/internal/domain/patient"
	"github.com/doseledger/doseledger/internal/platform/db"
	"github.com/doseledger/doseledger/pkg/calendar"
	"github.com/doseledger/doseledger/pkg/money"
)

// uniqueViolation is the SQLSTATE raised by the one-paid-record-per-injection index.
const uniqueViolation = "23505"

type recordRepoPG struct{ pool *pgxpool.Pool }

func NewRecordRepoPG(pool *pgxpool.Pool) RecordRepository {
	return &recordRepoPG{pool: pool}
}

func (r *recordRepoPG) conn(ctx context.Context) db.Queryable {
	return db.Conn(ctx, r.pool)
}

const recSelect = `SELECT f.id, f.patient_id, f.amount_cents, f.description, f.due_date, f.status,
	f.injection_id, f.created_at, f.updated_at, p.id, p.name, p.deleted_at
FROM financial_record f
LEFT JOIN patient p ON p.id = f.patient_id`

func scanRecord(row pgx.Row) (*Record, error) {
	var rec Record
	var amount int64
	var due *time.Time
	var status string
	var (
		patID      *uuid.UUID
		patName    *string
		patDeleted *time.Time
	)
	err := row.Scan(&rec.ID, &rec.PatientID, &amount, &rec.Description, &due, &status,
		&rec.InjectionID, &rec.CreatedAt, &rec.UpdatedAt, &patID, &patName, &patDeleted)
	if err != nil {
		return nil, db.MapErr(err)
	}
	rec.Amount = money.FromCents(amount)
	rec.Status = Status(status)
	if due != nil {
		rec.DueDate = calendar.FromTime(*due)
	}
	if patID != nil {
		ref := &patient.Ref{ID: *patID, DeletedAt: patDeleted}
		if patName != nil {
			ref.Name = *patName
		}
		rec.Patient = ref
	}
	return &rec, nil
}

func dueArg(d calendar.Date) interface{} {
	if d.IsZero() {
		return nil
	}
	return d.Time()
}

// mapWriteErr turns the paid-record unique index violation into ErrAlreadyPaid.
func mapWriteErr(op string, err error) error {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == uniqueViolation {
		return ErrAlreadyPaid
	}
	return fmt.Errorf("%s financial record: %w", op, err)
}

func (r *recordRepoPG) Create(ctx context.Context, rec *Record) error {
	rec.ID = uuid.New()
	err := r.conn(ctx).QueryRow(ctx, `
		INSERT INTO financial_record (id, patient_id, amount_cents, description, due_date, status, injection_id)
		VALUES ($1,$2,$3,$4,$5,$6,$7)
		RETURNING created_at, updated_at`,
		rec.ID, rec.PatientID, rec.Amount.Cents(), rec.Description, dueArg(rec.DueDate),
		string(rec.Status.Stored()), rec.InjectionID,
	).Scan(&rec.CreatedAt, &rec.UpdatedAt)
	if err != nil {
		return mapWriteErr("insert", err)
	}
	return nil
}

func (r *recordRepoPG) GetByID(ctx context.Context, id uuid.UUID) (*Record, error) {
	return scanRecord(r.conn(ctx).QueryRow(ctx, recSelect+` WHERE f.id = $1`, id))
}

func (r *recordRepoPG) Update(ctx context.Context, rec *Record) error {
	tag, err := r.conn(ctx).Exec(ctx, `
		UPDATE financial_record SET amount_cents=$2, description=$3, due_date=$4, status=$5,
			injection_id=$6, updated_at=NOW()
		WHERE id = $1`,
		rec.ID, rec.Amount.Cents(), rec.Description, dueArg(rec.DueDate), string(rec.Status.Stored()), rec.InjectionID)
	if err != nil {
		return mapWriteErr("update", err)
	}
	return db.ExpectAffected(tag, nil)
}

func (r *recordRepoPG) Delete(ctx context.Context, id uuid.UUID) error {
	return db.ExpectAffected(r.conn(ctx).Exec(ctx, `DELETE FROM financial_record WHERE id = $1`, id))
}

func (r *recordRepoPG) List(ctx context.Context, f RecordFilter) ([]*Record, error) {
	var conds []string
	var args []interface{}
	add := func(cond string, v interface{}) {
		args = append(args, v)
		conds = append(conds, fmt.Sprintf(cond, len(args)))
	}
	if f.PatientID != nil {
		add("f.patient_id = $%d", *f.PatientID)
	}
	if f.InjectionID != nil {
		add("f.injection_id = $%d", *f.InjectionID)
	}
	if f.Status != nil {
		add("f.status = $%d", string(f.Status.Stored()))
	}
	if f.From != nil {
		add("f.due_date >= $%d", f.From.Time())
	}
	if f.To != nil {
		add("f.due_date <= $%d", f.To.Time())
	}

	q := recSelect
	if len(conds) > 0 {
		q += " WHERE " + strings.Join(conds, " AND ")
	}
	q += " ORDER BY f.due_date DESC NULLS LAST, f.created_at DESC"

	rows, err := r.conn(ctx).Query(ctx, q, args...)
	if err != nil {
		return nil, fmt.Errorf("list financial records: %w", err)
	}
	defer rows.Close()
	var items []*Record
	for rows.Next() {
		rec, err := scanRecord(rows)
		if err != nil {
			return nil, err
		}
		items = append(items, rec)
	}
	return items, rows.Err()
}

func (r *recordRepoPG) FindPaidByInjection(ctx context.Context, injectionID uuid.UUID) (*Record, error) {
	return scanRecord(r.conn(ctx).QueryRow(ctx,
		recSelect+` WHERE f.injection_id = $1 AND f.status = $2`, injectionID, string(StatusPaid)))
}

func (r *recordRepoPG) UnlinkInjection(ctx context.Context, injectionID uuid.UUID) (int64, error) {
	tag, err := r.conn(ctx).Exec(ctx,
		`UPDATE financial_record SET injection_id = NULL, updated_at = NOW() WHERE injection_id = $1`, injectionID)
	if err != nil {
		return 0, fmt.Errorf("unlink injection: %w", err)
	}
	return tag.RowsAffected(), nil
}
