package cohort

import (
	"context"
	"strings"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/openmrs/openmrs-api/internal/platform/apperr"
	"github.com/openmrs/openmrs-api/internal/platform/db"
)

type repoPG struct {
	pool *pgxpool.Pool
}

func NewRepo(pool *pgxpool.Pool) Repository {
	return &repoPG{pool: pool}
}

func (r *repoPG) conn(ctx context.Context) db.Querier {
	return db.Resolve(ctx, r.pool)
}

const cohortColumns = `id, name, description,
	creator, date_created, changed_by, date_changed,
	voided, voided_by, date_voided, void_reason`

const memberColumns = `id, cohort_id, patient_id, start_date, end_date,
	creator, date_created, changed_by, date_changed,
	voided, voided_by, date_voided, void_reason`

func scanCohort(row pgx.Row) (*Cohort, error) {
	var c Cohort
	err := row.Scan(&c.ID, &c.Name, &c.Description,
		&c.Creator, &c.DateCreated, &c.ChangedBy, &c.DateChanged,
		&c.Voided, &c.VoidedBy, &c.DateVoided, &c.VoidReason)
	if err != nil {
		return nil, apperr.FromPG(err, "cohort")
	}
	return &c, nil
}

func scanMembership(row pgx.Row) (*CohortMembership, error) {
	var m CohortMembership
	err := row.Scan(&m.ID, &m.CohortID, &m.PatientID, &m.StartDate, &m.EndDate,
		&m.Creator, &m.DateCreated, &m.ChangedBy, &m.DateChanged,
		&m.Voided, &m.VoidedBy, &m.DateVoided, &m.VoidReason)
	if err != nil {
		return nil, apperr.FromPG(err, "cohort membership")
	}
	return &m, nil
}

func (r *repoPG) queryMemberships(ctx context.Context, sql string, args ...interface{}) ([]*CohortMembership, error) {
	rows, err := r.conn(ctx).Query(ctx, sql, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []*CohortMembership
	for rows.Next() {
		m, err := scanMembership(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, m)
	}
	return out, rows.Err()
}

func (r *repoPG) loadMemberships(ctx context.Context, cohorts ...*Cohort) error {
	if len(cohorts) == 0 {
		return nil
	}
	byID := make(map[uuid.UUID]*Cohort, len(cohorts))
	ids := make([]uuid.UUID, 0, len(cohorts))
	for _, c := range cohorts {
		c.Memberships = []*CohortMembership{}
		byID[c.ID] = c
		ids = append(ids, c.ID)
	}
	members, err := r.queryMemberships(ctx, `SELECT `+memberColumns+` FROM cohort_member
		WHERE cohort_id = ANY($1) ORDER BY start_date, date_created`, ids)
	if err != nil {
		return err
	}
	for _, m := range members {
		if c := byID[m.CohortID]; c != nil {
			c.Memberships = append(c.Memberships, m)
		}
	}
	return nil
}

func (r *repoPG) queryCohorts(ctx context.Context, sql string, args ...interface{}) ([]*Cohort, error) {
	rows, err := r.conn(ctx).Query(ctx, sql, args...)
	if err != nil {
		return nil, err
	}
	var out []*Cohort
	for rows.Next() {
		c, err := scanCohort(rows)
		if err != nil {
			rows.Close()
			return nil, err
		}
		out = append(out, c)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return out, r.loadMemberships(ctx, out...)
}

func (r *repoPG) upsertMemberships(ctx context.Context, c *Cohort) error {
	for _, m := range c.Memberships {
		if m.ID == uuid.Nil {
			m.ID = uuid.New()
		}
		m.CohortID = c.ID
		_, err := r.conn(ctx).Exec(ctx, `
			INSERT INTO cohort_member (`+memberColumns+`)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)
			ON CONFLICT (id) DO UPDATE SET
				start_date = EXCLUDED.start_date, end_date = EXCLUDED.end_date,
				changed_by = EXCLUDED.changed_by, date_changed = EXCLUDED.date_changed,
				voided = EXCLUDED.voided, voided_by = EXCLUDED.voided_by,
				date_voided = EXCLUDED.date_voided, void_reason = EXCLUDED.void_reason`,
			m.ID, m.CohortID, m.PatientID, m.StartDate, m.EndDate,
			m.Creator, m.DateCreated, m.ChangedBy, m.DateChanged,
			m.Voided, m.VoidedBy, m.DateVoided, m.VoidReason,
		)
		if err != nil {
			return apperr.FromPG(err, "cohort membership")
		}
	}
	return nil
}

func (r *repoPG) Create(ctx context.Context, c *Cohort) error {
	c.ID = uuid.New()
	return db.RunInTx(ctx, func(ctx context.Context) error {
		_, err := r.conn(ctx).Exec(ctx, `
			INSERT INTO cohort (`+cohortColumns+`)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)`,
			c.ID, c.Name, c.Description,
			c.Creator, c.DateCreated, c.ChangedBy, c.DateChanged,
			c.Voided, c.VoidedBy, c.DateVoided, c.VoidReason,
		)
		if err != nil {
			return apperr.FromPG(err, "cohort "+c.Name)
		}
		return r.upsertMemberships(ctx, c)
	})
}

func (r *repoPG) Update(ctx context.Context, c *Cohort) error {
	return db.RunInTx(ctx, func(ctx context.Context) error {
		tag, err := r.conn(ctx).Exec(ctx, `
			UPDATE cohort SET
				name = $2, description = $3, changed_by = $4, date_changed = $5,
				voided = $6, voided_by = $7, date_voided = $8, void_reason = $9
			WHERE id = $1`,
			c.ID, c.Name, c.Description, c.ChangedBy, c.DateChanged,
			c.Voided, c.VoidedBy, c.DateVoided, c.VoidReason,
		)
		if err != nil {
			return apperr.FromPG(err, "cohort "+c.Name)
		}
		if tag.RowsAffected() == 0 {
			return apperr.NotFound("cohort", c.ID)
		}
		return r.upsertMemberships(ctx, c)
	})
}

func (r *repoPG) GetByID(ctx context.Context, id uuid.UUID) (*Cohort, error) {
	c, err := scanCohort(r.conn(ctx).QueryRow(ctx, `SELECT `+cohortColumns+` FROM cohort WHERE id = $1`, id))
	if err != nil {
		return nil, err
	}
	return c, r.loadMemberships(ctx, c)
}

func (r *repoPG) GetByName(ctx context.Context, name string) (*Cohort, error) {
	c, err := scanCohort(r.conn(ctx).QueryRow(ctx, `SELECT `+cohortColumns+` FROM cohort
		WHERE lower(name) = lower($1) ORDER BY voided, date_created LIMIT 1`, name))
	if err != nil {
		return nil, err
	}
	return c, r.loadMemberships(ctx, c)
}

func (r *repoPG) List(ctx context.Context, includeVoided bool) ([]*Cohort, error) {
	return r.queryCohorts(ctx, `SELECT `+cohortColumns+` FROM cohort
		WHERE $1 OR NOT voided ORDER BY name`, includeVoided)
}

var likeEscaper = strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)

func (r *repoPG) SearchByName(ctx context.Context, fragment string) ([]*Cohort, error) {
	return r.queryCohorts(ctx, `SELECT `+cohortColumns+` FROM cohort
		WHERE NOT voided AND lower(name) LIKE '%' || lower($1) || '%' ORDER BY name`,
		likeEscaper.Replace(fragment))
}

func (r *repoPG) Delete(ctx context.Context, id uuid.UUID) error {
	return db.RunInTx(ctx, func(ctx context.Context) error {
		if _, err := r.conn(ctx).Exec(ctx, `DELETE FROM cohort_member WHERE cohort_id = $1`, id); err != nil {
			return err
		}
		tag, err := r.conn(ctx).Exec(ctx, `DELETE FROM cohort WHERE id = $1`, id)
		if err != nil {
			return apperr.FromPG(err, "cohort")
		}
		if tag.RowsAffected() == 0 {
			return apperr.NotFound("cohort", id)
		}
		return nil
	})
}

func (r *repoPG) GetMembership(ctx context.Context, id uuid.UUID) (*CohortMembership, error) {
	return scanMembership(r.conn(ctx).QueryRow(ctx, `SELECT `+memberColumns+` FROM cohort_member WHERE id = $1`, id))
}

func (r *repoPG) UpdateMembership(ctx context.Context, m *CohortMembership) error {
	tag, err := r.conn(ctx).Exec(ctx, `
		UPDATE cohort_member SET
			start_date = $2, end_date = $3, changed_by = $4, date_changed = $5,
			voided = $6, voided_by = $7, date_voided = $8, void_reason = $9
		WHERE id = $1`,
		m.ID, m.StartDate, m.EndDate, m.ChangedBy, m.DateChanged,
		m.Voided, m.VoidedBy, m.DateVoided, m.VoidReason,
	)
	if err != nil {
		return apperr.FromPG(err, "cohort membership")
	}
	if tag.RowsAffected() == 0 {
		return apperr.NotFound("cohort membership", m.ID)
	}
	return nil
}

func (r *repoPG) ListMembershipsByPatient(ctx context.Context, patientID uuid.UUID, includeVoided bool) ([]*CohortMembership, error) {
	return r.queryMemberships(ctx, `SELECT `+memberColumns+` FROM cohort_member
		WHERE patient_id = $1 AND ($2 OR NOT voided) ORDER BY start_date, date_created`,
		patientID, includeVoided)
}
