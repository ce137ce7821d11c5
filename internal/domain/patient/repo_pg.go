package patient

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/doseledger/doseledger/internal/platform/db"
	"github.com/doseledger/doseledger/pkg/calendar"
)

type patientRepoPG struct{ pool *pgxpool.Pool }

func NewRepoPG(pool *pgxpool.Pool) Repository {
	return &patientRepoPG{pool: pool}
}

func (r *patientRepoPG) conn(ctx context.Context) db.Queryable {
	return db.Conn(ctx, r.pool)
}

const patientCols = `id, name, email, phone, birth_date, height_cm, initial_weight_kg,
	target_weight_kg, deleted_at, created_at, updated_at`

func scanPatient(row pgx.Row) (*Patient, error) {
	var p Patient
	var birth *time.Time
	err := row.Scan(&p.ID, &p.Name, &p.Email, &p.Phone, &birth, &p.HeightCm, &p.InitialWeightKg,
		&p.TargetWeightKg, &p.DeletedAt, &p.CreatedAt, &p.UpdatedAt)
	if err != nil {
		return nil, db.MapErr(err)
	}
	p.BirthDate = calendar.Ptr(birth)
	return &p, nil
}

func dateArg(d *calendar.Date) interface{} {
	if d == nil || d.IsZero() {
		return nil
	}
	return d.Time()
}

func (r *patientRepoPG) Create(ctx context.Context, p *Patient) error {
	p.ID = uuid.New()
	err := r.conn(ctx).QueryRow(ctx, `
		INSERT INTO patient (id, name, email, phone, birth_date, height_cm, initial_weight_kg, target_weight_kg)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8)
		RETURNING created_at, updated_at`,
		p.ID, p.Name, p.Email, p.Phone, dateArg(p.BirthDate), p.HeightCm, p.InitialWeightKg, p.TargetWeightKg,
	).Scan(&p.CreatedAt, &p.UpdatedAt)
	if err != nil {
		return fmt.Errorf("insert patient: %w", err)
	}
	return nil
}

func (r *patientRepoPG) GetByID(ctx context.Context, id uuid.UUID) (*Patient, error) {
	return scanPatient(r.conn(ctx).QueryRow(ctx,
		`SELECT `+patientCols+` FROM patient WHERE id = $1 AND deleted_at IS NULL`, id))
}

func (r *patientRepoPG) Update(ctx context.Context, p *Patient) error {
	return db.ExpectAffected(r.conn(ctx).Exec(ctx, `
		UPDATE patient SET name=$2, email=$3, phone=$4, birth_date=$5, height_cm=$6,
			initial_weight_kg=$7, target_weight_kg=$8, updated_at=NOW()
		WHERE id = $1 AND deleted_at IS NULL`,
		p.ID, p.Name, p.Email, p.Phone, dateArg(p.BirthDate), p.HeightCm, p.InitialWeightKg, p.TargetWeightKg))
}

func (r *patientRepoPG) SoftDelete(ctx context.Context, id uuid.UUID) error {
	return db.ExpectAffected(r.conn(ctx).Exec(ctx,
		`UPDATE patient SET deleted_at = NOW(), updated_at = NOW() WHERE id = $1 AND deleted_at IS NULL`, id))
}

func (r *patientRepoPG) List(ctx context.Context, search string, limit, offset int) ([]*Patient, int, error) {
	where := `deleted_at IS NULL`
	args := []interface{}{}
	if search != "" {
		where += ` AND (name ILIKE $1 OR email ILIKE $1)`
		args = append(args, "%"+search+"%")
	}

	var total int
	if err := r.conn(ctx).QueryRow(ctx, `SELECT COUNT(*) FROM patient WHERE `+where, args...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("count patients: %w", err)
	}

	args = append(args, limit, offset)
	q := fmt.Sprintf(`SELECT `+patientCols+` FROM patient WHERE %s ORDER BY name LIMIT $%d OFFSET $%d`,
		where, len(args)-1, len(args))
	rows, err := r.conn(ctx).Query(ctx, q, args...)
	if err != nil {
		return nil, 0, fmt.Errorf("list patients: %w", err)
	}
	defer rows.Close()

	var items []*Patient
	for rows.Next() {
		p, err := scanPatient(rows)
		if err != nil {
			return nil, 0, err
		}
		items = append(items, p)
	}
	return items, total, rows.Err()
}

type portalProvisionerPG struct{ pool *pgxpool.Pool }

func NewPortalProvisionerPG(pool *pgxpool.Pool) PortalProvisioner {
	return &portalProvisionerPG{pool: pool}
}

// Provision creates or resets the portal account. A reset forces a password
// change on next login.
func (r *portalProvisionerPG) Provision(ctx context.Context, patientID uuid.UUID, email, passwordHash string) error {
	_, err := db.Conn(ctx, r.pool).Exec(ctx, `
		INSERT INTO portal_account (patient_id, email, password_hash, must_change_password)
		VALUES ($1, $2, $3, TRUE)
		ON CONFLICT (patient_id) DO UPDATE
			SET email = EXCLUDED.email, password_hash = EXCLUDED.password_hash,
				must_change_password = TRUE, updated_at = NOW()`,
		patientID, email, passwordHash)
	if err != nil {
		return fmt.Errorf("provision portal account: %w", err)
	}
	return nil
}
