package encounter

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

const encCols = `e.id, e.patient_id, e.location_id, e.encounter_type, e.encounter_datetime,
	COALESCE((SELECT array_agg(p.provider_id ORDER BY p.provider_id) FROM encounter_provider p
		WHERE p.encounter_id = e.id), '{}'),
	e.creator, e.date_created, e.changed_by, e.date_changed,
	e.voided, e.voided_by, e.date_voided, e.void_reason`

func (r *repoPG) scanEncounter(row pgx.Row) (*Encounter, error) {
	var enc Encounter
	err := row.Scan(&enc.ID, &enc.PatientID, &enc.LocationID, &enc.EncounterType, &enc.EncounterDatetime,
		&enc.ProviderIDs,
		&enc.Creator, &enc.DateCreated, &enc.ChangedBy, &enc.DateChanged,
		&enc.Voided, &enc.VoidedBy, &enc.DateVoided, &enc.VoidReason)
	if err != nil {
		return nil, apperr.FromPG(err, "encounter")
	}
	return &enc, nil
}

func (r *repoPG) writeProviders(ctx context.Context, enc *Encounter) error {
	if _, err := r.conn(ctx).Exec(ctx, `DELETE FROM encounter_provider WHERE encounter_id = $1`, enc.ID); err != nil {
		return err
	}
	for _, pid := range enc.ProviderIDs {
		if _, err := r.conn(ctx).Exec(ctx, `
			INSERT INTO encounter_provider (encounter_id, provider_id) VALUES ($1, $2)
			ON CONFLICT DO NOTHING`, enc.ID, pid); err != nil {
			return apperr.FromPG(err, "encounter provider")
		}
	}
	return nil
}

func (r *repoPG) Create(ctx context.Context, enc *Encounter) error {
	enc.ID = uuid.New()
	return db.RunInTx(ctx, func(ctx context.Context) error {
		_, err := r.conn(ctx).Exec(ctx, `
			INSERT INTO encounter (
				id, patient_id, location_id, encounter_type, encounter_datetime,
				creator, date_created, changed_by, date_changed,
				voided, voided_by, date_voided, void_reason
			) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)`,
			enc.ID, enc.PatientID, enc.LocationID, enc.EncounterType, enc.EncounterDatetime,
			enc.Creator, enc.DateCreated, enc.ChangedBy, enc.DateChanged,
			enc.Voided, enc.VoidedBy, enc.DateVoided, enc.VoidReason,
		)
		if err != nil {
			return apperr.FromPG(err, "encounter")
		}
		return r.writeProviders(ctx, enc)
	})
}

func (r *repoPG) Update(ctx context.Context, enc *Encounter) error {
	return db.RunInTx(ctx, func(ctx context.Context) error {
		tag, err := r.conn(ctx).Exec(ctx, `
			UPDATE encounter SET
				patient_id = $2, location_id = $3, encounter_type = $4, encounter_datetime = $5,
				changed_by = $6, date_changed = $7,
				voided = $8, voided_by = $9, date_voided = $10, void_reason = $11
			WHERE id = $1`,
			enc.ID, enc.PatientID, enc.LocationID, enc.EncounterType, enc.EncounterDatetime,
			enc.ChangedBy, enc.DateChanged,
			enc.Voided, enc.VoidedBy, enc.DateVoided, enc.VoidReason,
		)
		if err != nil {
			return apperr.FromPG(err, "encounter")
		}
		if tag.RowsAffected() == 0 {
			return apperr.NotFound("encounter", enc.ID)
		}
		return r.writeProviders(ctx, enc)
	})
}

func (r *repoPG) GetByID(ctx context.Context, id uuid.UUID) (*Encounter, error) {
	return r.scanEncounter(r.conn(ctx).QueryRow(ctx, `SELECT `+encCols+` FROM encounter e WHERE e.id = $1`, id))
}

func (r *repoPG) ListByPatient(ctx context.Context, patientID uuid.UUID, includeVoided bool) ([]*Encounter, error) {
	rows, err := r.conn(ctx).Query(ctx, `SELECT `+encCols+` FROM encounter e
		WHERE e.patient_id = $1 AND ($2 OR NOT e.voided)
		ORDER BY e.encounter_datetime DESC`, patientID, includeVoided)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*Encounter
	for rows.Next() {
		enc, err := r.scanEncounter(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, enc)
	}
	return out, rows.Err()
}

func (r *repoPG) Delete(ctx context.Context, id uuid.UUID) error {
	tag, err := r.conn(ctx).Exec(ctx, `DELETE FROM encounter WHERE id = $1`, id)
	if err != nil {
		return apperr.FromPG(err, "encounter")
	}
	if tag.RowsAffected() == 0 {
		return apperr.NotFound("encounter", id)
	}
	return nil
}
