package order

import (
	"context"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/openmrs/openmrs-api/internal/platform/apperr"
	"github.com/openmrs/openmrs-api/internal/platform/db"
)

func execOne(ctx context.Context, q db.Querier, entity string, id uuid.UUID, sql string, args ...interface{}) error {
	tag, err := q.Exec(ctx, sql, args...)
	if err != nil {
		return apperr.FromPG(err, entity)
	}
	if tag.RowsAffected() == 0 {
		return apperr.NotFound(entity, id)
	}
	return nil
}

// -- Care Setting Repository --

type careSettingRepoPG struct {
	pool *pgxpool.Pool
}

func NewCareSettingRepo(pool *pgxpool.Pool) CareSettingRepository {
	return &careSettingRepoPG{pool: pool}
}

func (r *careSettingRepoPG) conn(ctx context.Context) db.Querier {
	return db.Resolve(ctx, r.pool)
}

const careSettingCols = `id, name, description, care_setting_type,
	creator, date_created, changed_by, date_changed,
	retired, retired_by, date_retired, retire_reason`

func scanCareSetting(row pgx.Row) (*CareSetting, error) {
	var cs CareSetting
	err := row.Scan(&cs.ID, &cs.Name, &cs.Description, &cs.Type,
		&cs.Creator, &cs.DateCreated, &cs.ChangedBy, &cs.DateChanged,
		&cs.Retired, &cs.RetiredBy, &cs.DateRetired, &cs.RetireReason)
	if err != nil {
		return nil, apperr.FromPG(err, "care setting")
	}
	return &cs, nil
}

func (r *careSettingRepoPG) Create(ctx context.Context, cs *CareSetting) error {
	cs.ID = uuid.New()
	_, err := r.conn(ctx).Exec(ctx, `INSERT INTO care_setting (`+careSettingCols+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)`,
		cs.ID, cs.Name, cs.Description, cs.Type,
		cs.Creator, cs.DateCreated, cs.ChangedBy, cs.DateChanged,
		cs.Retired, cs.RetiredBy, cs.DateRetired, cs.RetireReason)
	return apperr.FromPG(err, "care setting "+cs.Name)
}

func (r *careSettingRepoPG) Update(ctx context.Context, cs *CareSetting) error {
	return execOne(ctx, r.conn(ctx), "care setting", cs.ID, `
		UPDATE care_setting SET name = $2, description = $3, care_setting_type = $4,
			changed_by = $5, date_changed = $6,
			retired = $7, retired_by = $8, date_retired = $9, retire_reason = $10
		WHERE id = $1`,
		cs.ID, cs.Name, cs.Description, cs.Type, cs.ChangedBy, cs.DateChanged,
		cs.Retired, cs.RetiredBy, cs.DateRetired, cs.RetireReason)
}

func (r *careSettingRepoPG) GetByID(ctx context.Context, id uuid.UUID) (*CareSetting, error) {
	return scanCareSetting(r.conn(ctx).QueryRow(ctx, `SELECT `+careSettingCols+` FROM care_setting WHERE id = $1`, id))
}

func (r *careSettingRepoPG) GetByName(ctx context.Context, name string) (*CareSetting, error) {
	return scanCareSetting(r.conn(ctx).QueryRow(ctx,
		`SELECT `+careSettingCols+` FROM care_setting WHERE lower(name) = lower($1)`, name))
}

func (r *careSettingRepoPG) List(ctx context.Context, includeRetired bool) ([]*CareSetting, error) {
	rows, err := r.conn(ctx).Query(ctx, `SELECT `+careSettingCols+` FROM care_setting
		WHERE $1 OR NOT retired ORDER BY name`, includeRetired)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []*CareSetting
	for rows.Next() {
		cs, err := scanCareSetting(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, cs)
	}
	return out, rows.Err()
}

func (r *careSettingRepoPG) Delete(ctx context.Context, id uuid.UUID) error {
	return execOne(ctx, r.conn(ctx), "care setting", id, `DELETE FROM care_setting WHERE id = $1`, id)
}

// -- Order Type Repository --

type orderTypeRepoPG struct {
	pool *pgxpool.Pool
}

func NewOrderTypeRepo(pool *pgxpool.Pool) OrderTypeRepository {
	return &orderTypeRepoPG{pool: pool}
}

func (r *orderTypeRepoPG) conn(ctx context.Context) db.Querier {
	return db.Resolve(ctx, r.pool)
}

const orderTypeCols = `id, name, description, kind, parent_id, concept_classes,
	creator, date_created, changed_by, date_changed,
	retired, retired_by, date_retired, retire_reason`

func scanOrderType(row pgx.Row) (*OrderType, error) {
	var ot OrderType
	err := row.Scan(&ot.ID, &ot.Name, &ot.Description, &ot.Kind, &ot.ParentID, &ot.ConceptClasses,
		&ot.Creator, &ot.DateCreated, &ot.ChangedBy, &ot.DateChanged,
		&ot.Retired, &ot.RetiredBy, &ot.DateRetired, &ot.RetireReason)
	if err != nil {
		return nil, apperr.FromPG(err, "order type")
	}
	return &ot, nil
}

func classes(ot *OrderType) []string {
	if ot.ConceptClasses == nil {
		return []string{}
	}
	return ot.ConceptClasses
}

func (r *orderTypeRepoPG) Create(ctx context.Context, ot *OrderType) error {
	ot.ID = uuid.New()
	_, err := r.conn(ctx).Exec(ctx, `INSERT INTO order_type (`+orderTypeCols+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14)`,
		ot.ID, ot.Name, ot.Description, ot.Kind, ot.ParentID, classes(ot),
		ot.Creator, ot.DateCreated, ot.ChangedBy, ot.DateChanged,
		ot.Retired, ot.RetiredBy, ot.DateRetired, ot.RetireReason)
	return apperr.FromPG(err, "order type "+ot.Name)
}

func (r *orderTypeRepoPG) Update(ctx context.Context, ot *OrderType) error {
	return execOne(ctx, r.conn(ctx), "order type", ot.ID, `
		UPDATE order_type SET name = $2, description = $3, kind = $4, parent_id = $5, concept_classes = $6,
			changed_by = $7, date_changed = $8,
			retired = $9, retired_by = $10, date_retired = $11, retire_reason = $12
		WHERE id = $1`,
		ot.ID, ot.Name, ot.Description, ot.Kind, ot.ParentID, classes(ot),
		ot.ChangedBy, ot.DateChanged,
		ot.Retired, ot.RetiredBy, ot.DateRetired, ot.RetireReason)
}

func (r *orderTypeRepoPG) GetByID(ctx context.Context, id uuid.UUID) (*OrderType, error) {
	return scanOrderType(r.conn(ctx).QueryRow(ctx, `SELECT `+orderTypeCols+` FROM order_type WHERE id = $1`, id))
}

func (r *orderTypeRepoPG) GetByName(ctx context.Context, name string) (*OrderType, error) {
	return scanOrderType(r.conn(ctx).QueryRow(ctx,
		`SELECT `+orderTypeCols+` FROM order_type WHERE lower(name) = lower($1)`, name))
}

func (r *orderTypeRepoPG) List(ctx context.Context, includeRetired bool) ([]*OrderType, error) {
	rows, err := r.conn(ctx).Query(ctx, `SELECT `+orderTypeCols+` FROM order_type
		WHERE $1 OR NOT retired ORDER BY name`, includeRetired)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []*OrderType
	for rows.Next() {
		ot, err := scanOrderType(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, ot)
	}
	return out, rows.Err()
}

func (r *orderTypeRepoPG) Delete(ctx context.Context, id uuid.UUID) error {
	return execOne(ctx, r.conn(ctx), "order type", id, `DELETE FROM order_type WHERE id = $1`, id)
}

// -- Order Frequency Repository --

type frequencyRepoPG struct {
	pool *pgxpool.Pool
}

func NewOrderFrequencyRepo(pool *pgxpool.Pool) OrderFrequencyRepository {
	return &frequencyRepoPG{pool: pool}
}

func (r *frequencyRepoPG) conn(ctx context.Context) db.Querier {
	return db.Resolve(ctx, r.pool)
}

const frequencyCols = `id, concept_id, frequency_per_day,
	creator, date_created, changed_by, date_changed,
	retired, retired_by, date_retired, retire_reason`

func scanFrequency(row pgx.Row) (*OrderFrequency, error) {
	var f OrderFrequency
	err := row.Scan(&f.ID, &f.ConceptID, &f.FrequencyPerDay,
		&f.Creator, &f.DateCreated, &f.ChangedBy, &f.DateChanged,
		&f.Retired, &f.RetiredBy, &f.DateRetired, &f.RetireReason)
	if err != nil {
		return nil, apperr.FromPG(err, "order frequency")
	}
	return &f, nil
}

func (r *frequencyRepoPG) Create(ctx context.Context, f *OrderFrequency) error {
	f.ID = uuid.New()
	_, err := r.conn(ctx).Exec(ctx, `INSERT INTO order_frequency (`+frequencyCols+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)`,
		f.ID, f.ConceptID, f.FrequencyPerDay,
		f.Creator, f.DateCreated, f.ChangedBy, f.DateChanged,
		f.Retired, f.RetiredBy, f.DateRetired, f.RetireReason)
	return apperr.FromPG(err, "order frequency")
}

func (r *frequencyRepoPG) Update(ctx context.Context, f *OrderFrequency) error {
	return execOne(ctx, r.conn(ctx), "order frequency", f.ID, `
		UPDATE order_frequency SET concept_id = $2, frequency_per_day = $3,
			changed_by = $4, date_changed = $5,
			retired = $6, retired_by = $7, date_retired = $8, retire_reason = $9
		WHERE id = $1`,
		f.ID, f.ConceptID, f.FrequencyPerDay, f.ChangedBy, f.DateChanged,
		f.Retired, f.RetiredBy, f.DateRetired, f.RetireReason)
}

func (r *frequencyRepoPG) GetByID(ctx context.Context, id uuid.UUID) (*OrderFrequency, error) {
	return scanFrequency(r.conn(ctx).QueryRow(ctx, `SELECT `+frequencyCols+` FROM order_frequency WHERE id = $1`, id))
}

func (r *frequencyRepoPG) GetByConcept(ctx context.Context, conceptID uuid.UUID) (*OrderFrequency, error) {
	return scanFrequency(r.conn(ctx).QueryRow(ctx,
		`SELECT `+frequencyCols+` FROM order_frequency WHERE concept_id = $1`, conceptID))
}

func (r *frequencyRepoPG) List(ctx context.Context, includeRetired bool) ([]*OrderFrequency, error) {
	rows, err := r.conn(ctx).Query(ctx, `SELECT `+frequencyCols+` FROM order_frequency
		WHERE $1 OR NOT retired ORDER BY frequency_per_day`, includeRetired)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []*OrderFrequency
	for rows.Next() {
		f, err := scanFrequency(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, f)
	}
	return out, rows.Err()
}

func (r *frequencyRepoPG) Delete(ctx context.Context, id uuid.UUID) error {
	return execOne(ctx, r.conn(ctx), "order frequency", id, `DELETE FROM order_frequency WHERE id = $1`, id)
}
