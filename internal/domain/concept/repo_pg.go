package concept

import (
	"context"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/openmrs/openmrs-api/internal/platform/apperr"
	"github.com/openmrs/openmrs-api/internal/platform/db"
)

// -- Concept Repository --

type conceptRepoPG struct {
	pool *pgxpool.Pool
}

func NewConceptRepo(pool *pgxpool.Pool) ConceptRepository {
	return &conceptRepoPG{pool: pool}
}

func (r *conceptRepoPG) conn(ctx context.Context) db.Querier {
	return db.Resolve(ctx, r.pool)
}

const conceptColumns = `id, name, short_name, class_name, datatype,
	creator, date_created, changed_by, date_changed,
	retired, retired_by, date_retired, retire_reason`

func (r *conceptRepoPG) scanConcept(row pgx.Row) (*Concept, error) {
	var c Concept
	err := row.Scan(&c.ID, &c.Name, &c.ShortName, &c.ClassName, &c.Datatype,
		&c.Creator, &c.DateCreated, &c.ChangedBy, &c.DateChanged,
		&c.Retired, &c.RetiredBy, &c.DateRetired, &c.RetireReason)
	if err != nil {
		return nil, apperr.FromPG(err, "concept")
	}
	return &c, nil
}

func (r *conceptRepoPG) Create(ctx context.Context, c *Concept) error {
	c.ID = uuid.New()
	_, err := r.conn(ctx).Exec(ctx, `
		INSERT INTO concept (`+conceptColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)`,
		c.ID, c.Name, c.ShortName, c.ClassName, c.Datatype,
		c.Creator, c.DateCreated, c.ChangedBy, c.DateChanged,
		c.Retired, c.RetiredBy, c.DateRetired, c.RetireReason,
	)
	return apperr.FromPG(err, "concept "+c.Name)
}

func (r *conceptRepoPG) Update(ctx context.Context, c *Concept) error {
	tag, err := r.conn(ctx).Exec(ctx, `
		UPDATE concept SET
			name = $2, short_name = $3, class_name = $4, datatype = $5,
			changed_by = $6, date_changed = $7,
			retired = $8, retired_by = $9, date_retired = $10, retire_reason = $11
		WHERE id = $1`,
		c.ID, c.Name, c.ShortName, c.ClassName, c.Datatype,
		c.ChangedBy, c.DateChanged,
		c.Retired, c.RetiredBy, c.DateRetired, c.RetireReason,
	)
	if err != nil {
		return apperr.FromPG(err, "concept "+c.Name)
	}
	if tag.RowsAffected() == 0 {
		return apperr.NotFound("concept", c.ID)
	}
	return nil
}

func (r *conceptRepoPG) GetByID(ctx context.Context, id uuid.UUID) (*Concept, error) {
	return r.scanConcept(r.conn(ctx).QueryRow(ctx, `SELECT `+conceptColumns+` FROM concept WHERE id = $1`, id))
}

func (r *conceptRepoPG) GetByName(ctx context.Context, name string) (*Concept, error) {
	return r.scanConcept(r.conn(ctx).QueryRow(ctx, `SELECT `+conceptColumns+` FROM concept
		WHERE lower(name) = lower($1) ORDER BY retired, date_created LIMIT 1`, name))
}

func (r *conceptRepoPG) List(ctx context.Context, includeRetired bool) ([]*Concept, error) {
	rows, err := r.conn(ctx).Query(ctx, `SELECT `+conceptColumns+` FROM concept
		WHERE $1 OR NOT retired ORDER BY name`, includeRetired)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []*Concept
	for rows.Next() {
		c, err := r.scanConcept(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

// -- Drug Repository --

type drugRepoPG struct {
	pool *pgxpool.Pool
}

func NewDrugRepo(pool *pgxpool.Pool) DrugRepository {
	return &drugRepoPG{pool: pool}
}

func (r *drugRepoPG) conn(ctx context.Context) db.Querier {
	return db.Resolve(ctx, r.pool)
}

const drugColumns = `id, concept_id, name, strength, dosage_form,
	creator, date_created, changed_by, date_changed,
	retired, retired_by, date_retired, retire_reason`

func (r *drugRepoPG) scanDrug(row pgx.Row) (*Drug, error) {
	var d Drug
	err := row.Scan(&d.ID, &d.ConceptID, &d.Name, &d.Strength, &d.DosageForm,
		&d.Creator, &d.DateCreated, &d.ChangedBy, &d.DateChanged,
		&d.Retired, &d.RetiredBy, &d.DateRetired, &d.RetireReason)
	if err != nil {
		return nil, apperr.FromPG(err, "drug")
	}
	return &d, nil
}

func (r *drugRepoPG) Create(ctx context.Context, d *Drug) error {
	d.ID = uuid.New()
	_, err := r.conn(ctx).Exec(ctx, `
		INSERT INTO drug (`+drugColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)`,
		d.ID, d.ConceptID, d.Name, d.Strength, d.DosageForm,
		d.Creator, d.DateCreated, d.ChangedBy, d.DateChanged,
		d.Retired, d.RetiredBy, d.DateRetired, d.RetireReason,
	)
	return apperr.FromPG(err, "drug "+d.Name)
}

func (r *drugRepoPG) Update(ctx context.Context, d *Drug) error {
	tag, err := r.conn(ctx).Exec(ctx, `
		UPDATE drug SET
			concept_id = $2, name = $3, strength = $4, dosage_form = $5,
			changed_by = $6, date_changed = $7,
			retired = $8, retired_by = $9, date_retired = $10, retire_reason = $11
		WHERE id = $1`,
		d.ID, d.ConceptID, d.Name, d.Strength, d.DosageForm,
		d.ChangedBy, d.DateChanged,
		d.Retired, d.RetiredBy, d.DateRetired, d.RetireReason,
	)
	if err != nil {
		return apperr.FromPG(err, "drug "+d.Name)
	}
	if tag.RowsAffected() == 0 {
		return apperr.NotFound("drug", d.ID)
	}
	return nil
}

func (r *drugRepoPG) GetByID(ctx context.Context, id uuid.UUID) (*Drug, error) {
	return r.scanDrug(r.conn(ctx).QueryRow(ctx, `SELECT `+drugColumns+` FROM drug WHERE id = $1`, id))
}

func (r *drugRepoPG) ListByConcept(ctx context.Context, conceptID uuid.UUID, includeRetired bool) ([]*Drug, error) {
	rows, err := r.conn(ctx).Query(ctx, `SELECT `+drugColumns+` FROM drug
		WHERE concept_id = $1 AND ($2 OR NOT retired) ORDER BY name`, conceptID, includeRetired)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []*Drug
	for rows.Next() {
		d, err := r.scanDrug(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, d)
	}
	return out, rows.Err()
}
