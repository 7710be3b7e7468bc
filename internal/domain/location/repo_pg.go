package location

import (
	"context"
	"strings"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/openmrs/openmrs-api/internal/platform/apperr"
	"github.com/openmrs/openmrs-api/internal/platform/db"
)

// -- Location Repository --

type locationRepoPG struct {
	pool *pgxpool.Pool
}

func NewLocationRepo(pool *pgxpool.Pool) LocationRepository {
	return &locationRepoPG{pool: pool}
}

func (r *locationRepoPG) conn(ctx context.Context) db.Querier {
	return db.Resolve(ctx, r.pool)
}

const locationColumns = `l.id, l.name, l.description, l.address1, l.address2, l.city_village,
	l.state_province, l.country, l.postal_code, l.parent_location_id,
	COALESCE((SELECT array_agg(t.name ORDER BY t.name) FROM location_tag_map m
		JOIN location_tag t ON t.id = m.location_tag_id WHERE m.location_id = l.id), '{}'),
	l.creator, l.date_created, l.changed_by, l.date_changed,
	l.retired, l.retired_by, l.date_retired, l.retire_reason`

func (r *locationRepoPG) scanLocation(row pgx.Row) (*Location, error) {
	var l Location
	err := row.Scan(&l.ID, &l.Name, &l.Description, &l.Address1, &l.Address2, &l.CityVillage,
		&l.StateProvince, &l.Country, &l.PostalCode, &l.ParentLocationID, &l.Tags,
		&l.Creator, &l.DateCreated, &l.ChangedBy, &l.DateChanged,
		&l.Retired, &l.RetiredBy, &l.DateRetired, &l.RetireReason)
	if err != nil {
		return nil, apperr.FromPG(err, "location")
	}
	return &l, nil
}

func (r *locationRepoPG) scanAll(ctx context.Context, sql string, args ...interface{}) ([]*Location, error) {
	rows, err := r.conn(ctx).Query(ctx, sql, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []*Location
	for rows.Next() {
		l, err := r.scanLocation(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, l)
	}
	return out, rows.Err()
}

func (r *locationRepoPG) writeTags(ctx context.Context, loc *Location) error {
	if _, err := r.conn(ctx).Exec(ctx, `DELETE FROM location_tag_map WHERE location_id = $1`, loc.ID); err != nil {
		return err
	}
	if len(loc.Tags) == 0 {
		return nil
	}
	_, err := r.conn(ctx).Exec(ctx, `
		INSERT INTO location_tag_map (location_id, location_tag_id)
		SELECT $1, id FROM location_tag WHERE lower(name) = ANY($2)`,
		loc.ID, lowerAll(loc.Tags))
	return err
}

func (r *locationRepoPG) Create(ctx context.Context, loc *Location) error {
	loc.ID = uuid.New()
	return db.RunInTx(ctx, func(ctx context.Context) error {
		_, err := r.conn(ctx).Exec(ctx, `
			INSERT INTO location (
				id, name, description, address1, address2, city_village,
				state_province, country, postal_code, parent_location_id,
				creator, date_created, changed_by, date_changed,
				retired, retired_by, date_retired, retire_reason
			) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17, $18)`,
			loc.ID, loc.Name, loc.Description, loc.Address1, loc.Address2, loc.CityVillage,
			loc.StateProvince, loc.Country, loc.PostalCode, loc.ParentLocationID,
			loc.Creator, loc.DateCreated, loc.ChangedBy, loc.DateChanged,
			loc.Retired, loc.RetiredBy, loc.DateRetired, loc.RetireReason,
		)
		if err != nil {
			return apperr.FromPG(err, "location "+loc.Name)
		}
		return r.writeTags(ctx, loc)
	})
}

func (r *locationRepoPG) Update(ctx context.Context, loc *Location) error {
	return db.RunInTx(ctx, func(ctx context.Context) error {
		tag, err := r.conn(ctx).Exec(ctx, `
			UPDATE location SET
				name = $2, description = $3, address1 = $4, address2 = $5, city_village = $6,
				state_province = $7, country = $8, postal_code = $9, parent_location_id = $10,
				changed_by = $11, date_changed = $12,
				retired = $13, retired_by = $14, date_retired = $15, retire_reason = $16
			WHERE id = $1`,
			loc.ID, loc.Name, loc.Description, loc.Address1, loc.Address2, loc.CityVillage,
			loc.StateProvince, loc.Country, loc.PostalCode, loc.ParentLocationID,
			loc.ChangedBy, loc.DateChanged,
			loc.Retired, loc.RetiredBy, loc.DateRetired, loc.RetireReason,
		)
		if err != nil {
			return apperr.FromPG(err, "location "+loc.Name)
		}
		if tag.RowsAffected() == 0 {
			return apperr.NotFound("location", loc.ID)
		}
		return r.writeTags(ctx, loc)
	})
}

func (r *locationRepoPG) GetByID(ctx context.Context, id uuid.UUID) (*Location, error) {
	return r.scanLocation(r.conn(ctx).QueryRow(ctx, `SELECT `+locationColumns+` FROM location l WHERE l.id = $1`, id))
}

func (r *locationRepoPG) GetByName(ctx context.Context, name string) (*Location, error) {
	return r.scanLocation(r.conn(ctx).QueryRow(ctx, `SELECT `+locationColumns+` FROM location l
		WHERE lower(l.name) = lower($1) ORDER BY l.retired, l.date_created LIMIT 1`, name))
}

func (r *locationRepoPG) List(ctx context.Context, includeRetired bool) ([]*Location, error) {
	return r.scanAll(ctx, `SELECT `+locationColumns+` FROM location l
		WHERE $1 OR NOT l.retired ORDER BY l.name`, includeRetired)
}

func (r *locationRepoPG) ListByNamePrefix(ctx context.Context, prefix string, includeRetired bool) ([]*Location, error) {
	return r.scanAll(ctx, `SELECT `+locationColumns+` FROM location l
		WHERE lower(l.name) LIKE lower($1) || '%' AND ($2 OR NOT l.retired) ORDER BY l.name`,
		escapeLike(prefix), includeRetired)
}

func (r *locationRepoPG) ListChildren(ctx context.Context, parentID *uuid.UUID, includeRetired bool) ([]*Location, error) {
	if parentID == nil {
		return r.scanAll(ctx, `SELECT `+locationColumns+` FROM location l
			WHERE l.parent_location_id IS NULL AND ($1 OR NOT l.retired) ORDER BY l.name`, includeRetired)
	}
	return r.scanAll(ctx, `SELECT `+locationColumns+` FROM location l
		WHERE l.parent_location_id = $1 AND ($2 OR NOT l.retired) ORDER BY l.name`, *parentID, includeRetired)
}

func (r *locationRepoPG) ListByTags(ctx context.Context, tags []string, matchAll bool) ([]*Location, error) {
	names := lowerAll(tags)
	if matchAll {
		return r.scanAll(ctx, `SELECT `+locationColumns+` FROM location l
			WHERE NOT l.retired AND (
				SELECT count(DISTINCT lower(t.name)) FROM location_tag_map m
				JOIN location_tag t ON t.id = m.location_tag_id
				WHERE m.location_id = l.id AND lower(t.name) = ANY($1)
			) = cardinality($1::text[]) ORDER BY l.name`, names)
	}
	return r.scanAll(ctx, `SELECT `+locationColumns+` FROM location l
		WHERE NOT l.retired AND EXISTS (
			SELECT 1 FROM location_tag_map m JOIN location_tag t ON t.id = m.location_tag_id
			WHERE m.location_id = l.id AND lower(t.name) = ANY($1)
		) ORDER BY l.name`, names)
}

func (r *locationRepoPG) Delete(ctx context.Context, id uuid.UUID) error {
	tag, err := r.conn(ctx).Exec(ctx, `DELETE FROM location WHERE id = $1`, id)
	if err != nil {
		return apperr.FromPG(err, "location")
	}
	if tag.RowsAffected() == 0 {
		return apperr.NotFound("location", id)
	}
	return nil
}

// -- Location Tag Repository --

type tagRepoPG struct {
	pool *pgxpool.Pool
}

func NewLocationTagRepo(pool *pgxpool.Pool) LocationTagRepository {
	return &tagRepoPG{pool: pool}
}

func (r *tagRepoPG) conn(ctx context.Context) db.Querier {
	return db.Resolve(ctx, r.pool)
}

const tagColumns = `id, name, description,
	creator, date_created, changed_by, date_changed,
	retired, retired_by, date_retired, retire_reason`

func (r *tagRepoPG) scanTag(row pgx.Row) (*LocationTag, error) {
	var t LocationTag
	err := row.Scan(&t.ID, &t.Name, &t.Description,
		&t.Creator, &t.DateCreated, &t.ChangedBy, &t.DateChanged,
		&t.Retired, &t.RetiredBy, &t.DateRetired, &t.RetireReason)
	if err != nil {
		return nil, apperr.FromPG(err, "location tag")
	}
	return &t, nil
}

func (r *tagRepoPG) Create(ctx context.Context, t *LocationTag) error {
	t.ID = uuid.New()
	_, err := r.conn(ctx).Exec(ctx, `
		INSERT INTO location_tag (`+tagColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)`,
		t.ID, t.Name, t.Description,
		t.Creator, t.DateCreated, t.ChangedBy, t.DateChanged,
		t.Retired, t.RetiredBy, t.DateRetired, t.RetireReason,
	)
	return apperr.FromPG(err, "location tag "+t.Name)
}

func (r *tagRepoPG) Update(ctx context.Context, t *LocationTag) error {
	tag, err := r.conn(ctx).Exec(ctx, `
		UPDATE location_tag SET
			name = $2, description = $3, changed_by = $4, date_changed = $5,
			retired = $6, retired_by = $7, date_retired = $8, retire_reason = $9
		WHERE id = $1`,
		t.ID, t.Name, t.Description, t.ChangedBy, t.DateChanged,
		t.Retired, t.RetiredBy, t.DateRetired, t.RetireReason,
	)
	if err != nil {
		return apperr.FromPG(err, "location tag "+t.Name)
	}
	if tag.RowsAffected() == 0 {
		return apperr.NotFound("location tag", t.ID)
	}
	return nil
}

func (r *tagRepoPG) GetByID(ctx context.Context, id uuid.UUID) (*LocationTag, error) {
	return r.scanTag(r.conn(ctx).QueryRow(ctx, `SELECT `+tagColumns+` FROM location_tag WHERE id = $1`, id))
}

func (r *tagRepoPG) GetByName(ctx context.Context, name string) (*LocationTag, error) {
	return r.scanTag(r.conn(ctx).QueryRow(ctx,
		`SELECT `+tagColumns+` FROM location_tag WHERE lower(name) = lower($1)`, name))
}

func (r *tagRepoPG) List(ctx context.Context, includeRetired bool) ([]*LocationTag, error) {
	rows, err := r.conn(ctx).Query(ctx, `SELECT `+tagColumns+` FROM location_tag
		WHERE $1 OR NOT retired ORDER BY name`, includeRetired)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []*LocationTag
	for rows.Next() {
		t, err := r.scanTag(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, t)
	}
	return out, rows.Err()
}

func (r *tagRepoPG) InUse(ctx context.Context, id uuid.UUID) (bool, error) {
	var used bool
	err := r.conn(ctx).QueryRow(ctx,
		`SELECT EXISTS (SELECT 1 FROM location_tag_map WHERE location_tag_id = $1)`, id).Scan(&used)
	return used, err
}

func (r *tagRepoPG) Delete(ctx context.Context, id uuid.UUID) error {
	tag, err := r.conn(ctx).Exec(ctx, `DELETE FROM location_tag WHERE id = $1`, id)
	if err != nil {
		return apperr.FromPG(err, "location tag")
	}
	if tag.RowsAffected() == 0 {
		return apperr.NotFound("location tag", id)
	}
	return nil
}

func lowerAll(in []string) []string {
	out := make([]string, len(in))
	for i, s := range in {
		out[i] = strings.ToLower(strings.TrimSpace(s))
	}
	return out
}

var likeEscaper = strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)

func escapeLike(s string) string {
	return likeEscaper.Replace(s)
}
