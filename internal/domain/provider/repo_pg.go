package provider

import (
	"context"
	"strings"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/openmrs/openmrs-api/internal/platform/apperr"
	"github.com/openmrs/openmrs-api/internal/platform/db"
)

type providerRepoPG struct {
	pool *pgxpool.Pool
}

func NewProviderRepo(pool *pgxpool.Pool) ProviderRepository {
	return &providerRepoPG{pool: pool}
}

func (r *providerRepoPG) conn(ctx context.Context) db.Querier {
	return db.Resolve(ctx, r.pool)
}

const providerColumns = `id, person_name, identifier, role,
	creator, date_created, changed_by, date_changed,
	retired, retired_by, date_retired, retire_reason`

func (r *providerRepoPG) scanProvider(row pgx.Row) (*Provider, error) {
	var p Provider
	err := row.Scan(&p.ID, &p.PersonName, &p.Identifier, &p.Role,
		&p.Creator, &p.DateCreated, &p.ChangedBy, &p.DateChanged,
		&p.Retired, &p.RetiredBy, &p.DateRetired, &p.RetireReason)
	if err != nil {
		return nil, apperr.FromPG(err, "provider")
	}
	return &p, nil
}

func (r *providerRepoPG) Create(ctx context.Context, p *Provider) error {
	p.ID = uuid.New()
	_, err := r.conn(ctx).Exec(ctx, `
		INSERT INTO provider (`+providerColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)`,
		p.ID, p.PersonName, p.Identifier, p.Role,
		p.Creator, p.DateCreated, p.ChangedBy, p.DateChanged,
		p.Retired, p.RetiredBy, p.DateRetired, p.RetireReason,
	)
	return apperr.FromPG(err, "provider "+p.Identifier)
}

func (r *providerRepoPG) Update(ctx context.Context, p *Provider) error {
	tag, err := r.conn(ctx).Exec(ctx, `
		UPDATE provider SET
			person_name = $2, identifier = $3, role = $4,
			changed_by = $5, date_changed = $6,
			retired = $7, retired_by = $8, date_retired = $9, retire_reason = $10
		WHERE id = $1`,
		p.ID, p.PersonName, p.Identifier, p.Role,
		p.ChangedBy, p.DateChanged,
		p.Retired, p.RetiredBy, p.DateRetired, p.RetireReason,
	)
	if err != nil {
		return apperr.FromPG(err, "provider "+p.Identifier)
	}
	if tag.RowsAffected() == 0 {
		return apperr.NotFound("provider", p.ID)
	}
	return nil
}

func (r *providerRepoPG) GetByID(ctx context.Context, id uuid.UUID) (*Provider, error) {
	return r.scanProvider(r.conn(ctx).QueryRow(ctx, `SELECT `+providerColumns+` FROM provider WHERE id = $1`, id))
}

func (r *providerRepoPG) GetByIdentifier(ctx context.Context, identifier string) (*Provider, error) {
	return r.scanProvider(r.conn(ctx).QueryRow(ctx, `SELECT `+providerColumns+` FROM provider
		WHERE identifier <> '' AND lower(identifier) = lower($1) LIMIT 1`, identifier))
}

const providerSearch = `($1 = '' OR person_name ILIKE '%' || $1 || '%' OR identifier ILIKE '%' || $1 || '%')
	AND ($2 OR NOT retired)`

func (r *providerRepoPG) Search(ctx context.Context, query string, includeRetired bool, limit, offset int) ([]*Provider, error) {
	rows, err := r.conn(ctx).Query(ctx, `SELECT `+providerColumns+` FROM provider WHERE `+providerSearch+`
		ORDER BY person_name, identifier LIMIT $3 OFFSET $4`,
		escapeLike(query), includeRetired, limit, offset)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []*Provider
	for rows.Next() {
		p, err := r.scanProvider(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

func (r *providerRepoPG) Count(ctx context.Context, query string, includeRetired bool) (int, error) {
	var n int
	err := r.conn(ctx).QueryRow(ctx, `SELECT COUNT(*) FROM provider WHERE `+providerSearch,
		escapeLike(query), includeRetired).Scan(&n)
	return n, err
}

func (r *providerRepoPG) Delete(ctx context.Context, id uuid.UUID) error {
	tag, err := r.conn(ctx).Exec(ctx, `DELETE FROM provider WHERE id = $1`, id)
	if err != nil {
		return apperr.FromPG(err, "provider")
	}
	if tag.RowsAffected() == 0 {
		return apperr.NotFound("provider", id)
	}
	return nil
}

var likeEscaper = strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)

func escapeLike(s string) string {
	return likeEscaper.Replace(s)
}
