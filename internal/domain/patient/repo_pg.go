package patient

import (
	"context"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/openmrs/openmrs-api/internal/platform/apperr"
	"github.com/openmrs/openmrs-api/internal/platform/db"
)

type patientRepoPG struct {
	pool *pgxpool.Pool
}

func NewPatientRepo(pool *pgxpool.Pool) PatientRepository {
	return &patientRepoPG{pool: pool}
}

func (r *patientRepoPG) conn(ctx context.Context) db.Querier {
	return db.Resolve(ctx, r.pool)
}

const patientColumns = `id, identifier, given_name, family_name, gender, birthdate, dead,
	creator, date_created, changed_by, date_changed,
	voided, voided_by, date_voided, void_reason`

func (r *patientRepoPG) scanPatient(row pgx.Row) (*Patient, error) {
	var p Patient
	err := row.Scan(&p.ID, &p.Identifier, &p.GivenName, &p.FamilyName, &p.Gender, &p.BirthDate, &p.Dead,
		&p.Creator, &p.DateCreated, &p.ChangedBy, &p.DateChanged,
		&p.Voided, &p.VoidedBy, &p.DateVoided, &p.VoidReason)
	if err != nil {
		return nil, apperr.FromPG(err, "patient")
	}
	return &p, nil
}

func (r *patientRepoPG) Create(ctx context.Context, p *Patient) error {
	p.ID = uuid.New()
	_, err := r.conn(ctx).Exec(ctx, `
		INSERT INTO patient (`+patientColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15)`,
		p.ID, p.Identifier, p.GivenName, p.FamilyName, p.Gender, p.BirthDate, p.Dead,
		p.Creator, p.DateCreated, p.ChangedBy, p.DateChanged,
		p.Voided, p.VoidedBy, p.DateVoided, p.VoidReason,
	)
	return apperr.FromPG(err, "patient "+p.Identifier)
}

func (r *patientRepoPG) Update(ctx context.Context, p *Patient) error {
	tag, err := r.conn(ctx).Exec(ctx, `
		UPDATE patient SET
			identifier = $2, given_name = $3, family_name = $4, gender = $5, birthdate = $6, dead = $7,
			changed_by = $8, date_changed = $9,
			voided = $10, voided_by = $11, date_voided = $12, void_reason = $13
		WHERE id = $1`,
		p.ID, p.Identifier, p.GivenName, p.FamilyName, p.Gender, p.BirthDate, p.Dead,
		p.ChangedBy, p.DateChanged,
		p.Voided, p.VoidedBy, p.DateVoided, p.VoidReason,
	)
	if err != nil {
		return apperr.FromPG(err, "patient "+p.Identifier)
	}
	if tag.RowsAffected() == 0 {
		return apperr.NotFound("patient", p.ID)
	}
	return nil
}

func (r *patientRepoPG) GetByID(ctx context.Context, id uuid.UUID) (*Patient, error) {
	return r.scanPatient(r.conn(ctx).QueryRow(ctx, `SELECT `+patientColumns+` FROM patient WHERE id = $1`, id))
}

func (r *patientRepoPG) GetByIdentifier(ctx context.Context, identifier string) (*Patient, error) {
	return r.scanPatient(r.conn(ctx).QueryRow(ctx,
		`SELECT `+patientColumns+` FROM patient WHERE identifier = $1`, identifier))
}

func (r *patientRepoPG) Search(ctx context.Context, name string, includeVoided bool, limit, offset int) ([]*Patient, int, error) {
	where := `(given_name ILIKE '%' || $1 || '%' OR family_name ILIKE '%' || $1 || '%'
		OR (given_name || ' ' || family_name) ILIKE '%' || $1 || '%' OR identifier = $1)`
	if !includeVoided {
		where += ` AND NOT voided`
	}

	var total int
	if err := r.conn(ctx).QueryRow(ctx, `SELECT COUNT(*) FROM patient WHERE `+where, name).Scan(&total); err != nil {
		return nil, 0, err
	}

	rows, err := r.conn(ctx).Query(ctx, `SELECT `+patientColumns+` FROM patient WHERE `+where+`
		ORDER BY family_name, given_name LIMIT $2 OFFSET $3`, name, limit, offset)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	var out []*Patient
	for rows.Next() {
		p, err := r.scanPatient(rows)
		if err != nil {
			return nil, 0, err
		}
		out = append(out, p)
	}
	return out, total, rows.Err()
}

func (r *patientRepoPG) Delete(ctx context.Context, id uuid.UUID) error {
	tag, err := r.conn(ctx).Exec(ctx, `DELETE FROM patient WHERE id = $1`, id)
	if err != nil {
		return apperr.FromPG(err, "patient")
	}
	if tag.RowsAffected() == 0 {
		return apperr.NotFound("patient", id)
	}
	return nil
}
