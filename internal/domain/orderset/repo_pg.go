package orderset

import (
	"context"

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

const setColumns = `id, name, description, operator, category_concept_id,
	creator, date_created, changed_by, date_changed,
	retired, retired_by, date_retired, retire_reason`

const memberColumns = `id, order_set_id, order_type_id, concept_id, order_template,
	order_template_type, sort_weight,
	creator, date_created, changed_by, date_changed,
	retired, retired_by, date_retired, retire_reason`

func scanSet(row pgx.Row) (*OrderSet, error) {
	var s OrderSet
	err := row.Scan(&s.ID, &s.Name, &s.Description, &s.Operator, &s.CategoryID,
		&s.Creator, &s.DateCreated, &s.ChangedBy, &s.DateChanged,
		&s.Retired, &s.RetiredBy, &s.DateRetired, &s.RetireReason)
	if err != nil {
		return nil, apperr.FromPG(err, "order set")
	}
	return &s, nil
}

func scanMember(row pgx.Row) (*OrderSetMember, error) {
	var m OrderSetMember
	err := row.Scan(&m.ID, &m.OrderSetID, &m.OrderTypeID, &m.ConceptID, &m.OrderTemplate,
		&m.OrderTemplateType, &m.SortWeight,
		&m.Creator, &m.DateCreated, &m.ChangedBy, &m.DateChanged,
		&m.Retired, &m.RetiredBy, &m.DateRetired, &m.RetireReason)
	if err != nil {
		return nil, apperr.FromPG(err, "order set member")
	}
	return &m, nil
}

// loadMembers attaches members to sets in sort_weight order.
func (r *repoPG) loadMembers(ctx context.Context, sets ...*OrderSet) error {
	if len(sets) == 0 {
		return nil
	}
	byID := make(map[uuid.UUID]*OrderSet, len(sets))
	ids := make([]uuid.UUID, 0, len(sets))
	for _, s := range sets {
		s.Members = []*OrderSetMember{}
		byID[s.ID] = s
		ids = append(ids, s.ID)
	}
	rows, err := r.conn(ctx).Query(ctx, `SELECT `+memberColumns+` FROM order_set_member
		WHERE order_set_id = ANY($1) ORDER BY order_set_id, sort_weight`, ids)
	if err != nil {
		return err
	}
	defer rows.Close()
	for rows.Next() {
		m, err := scanMember(rows)
		if err != nil {
			return err
		}
		if s := byID[m.OrderSetID]; s != nil {
			s.Members = append(s.Members, m)
		}
	}
	return rows.Err()
}

func (r *repoPG) writeMembers(ctx context.Context, s *OrderSet) error {
	if _, err := r.conn(ctx).Exec(ctx, `DELETE FROM order_set_member WHERE order_set_id = $1`, s.ID); err != nil {
		return err
	}
	for i, m := range s.Members {
		if m.ID == uuid.Nil {
			m.ID = uuid.New()
		}
		m.OrderSetID = s.ID
		m.SortWeight = i
		_, err := r.conn(ctx).Exec(ctx, `
			INSERT INTO order_set_member (
				id, order_set_id, order_type_id, concept_id, order_template,
				order_template_type, sort_weight,
				creator, date_created, changed_by, date_changed,
				retired, retired_by, date_retired, retire_reason
			) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15)`,
			m.ID, m.OrderSetID, m.OrderTypeID, m.ConceptID, m.OrderTemplate,
			m.OrderTemplateType, m.SortWeight,
			m.Creator, m.DateCreated, m.ChangedBy, m.DateChanged,
			m.Retired, m.RetiredBy, m.DateRetired, m.RetireReason,
		)
		if err != nil {
			return apperr.FromPG(err, "order set member")
		}
	}
	return nil
}

func (r *repoPG) Create(ctx context.Context, s *OrderSet) error {
	s.ID = uuid.New()
	return db.RunInTx(ctx, func(ctx context.Context) error {
		_, err := r.conn(ctx).Exec(ctx, `
			INSERT INTO order_set (`+setColumns+`)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)`,
			s.ID, s.Name, s.Description, s.Operator, s.CategoryID,
			s.Creator, s.DateCreated, s.ChangedBy, s.DateChanged,
			s.Retired, s.RetiredBy, s.DateRetired, s.RetireReason,
		)
		if err != nil {
			return apperr.FromPG(err, "order set "+s.Name)
		}
		return r.writeMembers(ctx, s)
	})
}

func (r *repoPG) Update(ctx context.Context, s *OrderSet) error {
	return db.RunInTx(ctx, func(ctx context.Context) error {
		tag, err := r.conn(ctx).Exec(ctx, `
			UPDATE order_set SET
				name = $2, description = $3, operator = $4, category_concept_id = $5,
				changed_by = $6, date_changed = $7,
				retired = $8, retired_by = $9, date_retired = $10, retire_reason = $11
			WHERE id = $1`,
			s.ID, s.Name, s.Description, s.Operator, s.CategoryID,
			s.ChangedBy, s.DateChanged,
			s.Retired, s.RetiredBy, s.DateRetired, s.RetireReason,
		)
		if err != nil {
			return apperr.FromPG(err, "order set "+s.Name)
		}
		if tag.RowsAffected() == 0 {
			return apperr.NotFound("order set", s.ID)
		}
		return r.writeMembers(ctx, s)
	})
}

func (r *repoPG) GetByID(ctx context.Context, id uuid.UUID) (*OrderSet, error) {
	s, err := scanSet(r.conn(ctx).QueryRow(ctx, `SELECT `+setColumns+` FROM order_set WHERE id = $1`, id))
	if err != nil {
		return nil, err
	}
	return s, r.loadMembers(ctx, s)
}

func (r *repoPG) GetByName(ctx context.Context, name string) (*OrderSet, error) {
	s, err := scanSet(r.conn(ctx).QueryRow(ctx, `SELECT `+setColumns+` FROM order_set
		WHERE lower(name) = lower($1) ORDER BY retired, date_created LIMIT 1`, name))
	if err != nil {
		return nil, err
	}
	return s, r.loadMembers(ctx, s)
}

func (r *repoPG) List(ctx context.Context, includeRetired bool) ([]*OrderSet, error) {
	rows, err := r.conn(ctx).Query(ctx, `SELECT `+setColumns+` FROM order_set
		WHERE $1 OR NOT retired ORDER BY name`, includeRetired)
	if err != nil {
		return nil, err
	}
	var out []*OrderSet
	for rows.Next() {
		s, err := scanSet(rows)
		if err != nil {
			rows.Close()
			return nil, err
		}
		out = append(out, s)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return out, r.loadMembers(ctx, out...)
}

func (r *repoPG) Delete(ctx context.Context, id uuid.UUID) error {
	return db.RunInTx(ctx, func(ctx context.Context) error {
		if _, err := r.conn(ctx).Exec(ctx, `DELETE FROM order_set_member WHERE order_set_id = $1`, id); err != nil {
			return err
		}
		tag, err := r.conn(ctx).Exec(ctx, `DELETE FROM order_set WHERE id = $1`, id)
		if err != nil {
			return apperr.FromPG(err, "order set")
		}
		if tag.RowsAffected() == 0 {
			return apperr.NotFound("order set", id)
		}
		return nil
	})
}
