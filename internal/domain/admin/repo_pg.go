package admin

import (
	"context"
	"errors"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/openmrs/openmrs-api/internal/platform/apperr"
	"github.com/openmrs/openmrs-api/internal/platform/db"
)

type gpRepoPG struct {
	pool *pgxpool.Pool
}

func NewGlobalPropertyRepo(pool *pgxpool.Pool) GlobalPropertyRepository {
	return &gpRepoPG{pool: pool}
}

func (r *gpRepoPG) conn(ctx context.Context) db.Querier {
	return db.Resolve(ctx, r.pool)
}

const gpColumns = `property, property_value, description, datatype`

func (r *gpRepoPG) Get(ctx context.Context, name string) (*GlobalProperty, error) {
	var gp GlobalProperty
	err := r.conn(ctx).QueryRow(ctx,
		`SELECT `+gpColumns+` FROM global_property WHERE lower(property) = lower($1)`, name).
		Scan(&gp.Property, &gp.PropertyValue, &gp.Description, &gp.Datatype)
	if err != nil {
		return nil, apperr.FromPG(err, "global property "+name)
	}
	return &gp, nil
}

func (r *gpRepoPG) List(ctx context.Context) ([]*GlobalProperty, error) {
	return r.query(ctx, `SELECT `+gpColumns+` FROM global_property ORDER BY property`)
}

func (r *gpRepoPG) ListByPrefix(ctx context.Context, prefix string) ([]*GlobalProperty, error) {
	return r.query(ctx, `SELECT `+gpColumns+` FROM global_property
		WHERE lower(property) LIKE lower($1) || '%' ORDER BY property`, escapeLike(prefix))
}

func (r *gpRepoPG) ListBySuffix(ctx context.Context, suffix string) ([]*GlobalProperty, error) {
	return r.query(ctx, `SELECT `+gpColumns+` FROM global_property
		WHERE lower(property) LIKE '%' || lower($1) ORDER BY property`, escapeLike(suffix))
}

func (r *gpRepoPG) query(ctx context.Context, sql string, args ...interface{}) ([]*GlobalProperty, error) {
	rows, err := r.conn(ctx).Query(ctx, sql, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*GlobalProperty
	for rows.Next() {
		var gp GlobalProperty
		if err := rows.Scan(&gp.Property, &gp.PropertyValue, &gp.Description, &gp.Datatype); err != nil {
			return nil, err
		}
		out = append(out, &gp)
	}
	return out, rows.Err()
}

func (r *gpRepoPG) Save(ctx context.Context, gp *GlobalProperty) error {
	err := r.conn(ctx).QueryRow(ctx, `
		INSERT INTO global_property (property, property_value, description, datatype)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT ((lower(property))) DO UPDATE SET
			property_value = EXCLUDED.property_value,
			description = EXCLUDED.description,
			datatype = EXCLUDED.datatype
		RETURNING property`,
		gp.Property, gp.PropertyValue, gp.Description, gp.Datatype,
	).Scan(&gp.Property)
	return apperr.FromPG(err, "global property "+gp.Property)
}

func (r *gpRepoPG) Delete(ctx context.Context, name string) error {
	tag, err := r.conn(ctx).Exec(ctx, `DELETE FROM global_property WHERE lower(property) = lower($1)`, name)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return apperr.NotFound("global property", name)
	}
	return nil
}

func (r *gpRepoPG) NextSequenceValue(ctx context.Context, name string) (int64, error) {
	var prev int64
	err := r.conn(ctx).QueryRow(ctx, `
		UPDATE global_property
		SET property_value = (property_value::bigint + 1)::text
		WHERE lower(property) = lower($1)
		RETURNING property_value::bigint - 1`, name).Scan(&prev)
	if errors.Is(err, pgx.ErrNoRows) {
		return 0, apperr.API("missing global property named: %s", name)
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == "22P02" {
		return 0, apperr.API("global property %s does not hold an integer", name)
	}
	return prev, err
}

var likeEscaper = strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)

func escapeLike(s string) string {
	return likeEscaper.Replace(s)
}
