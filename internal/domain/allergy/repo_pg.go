package allergy

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

const allergyColumns = `id, patient_id, allergen_type, coded_allergen_id, non_coded_allergen,
	severity, comment,
	creator, date_created, changed_by, date_changed,
	voided, voided_by, date_voided, void_reason`

func scanAllergy(row pgx.Row) (*Allergy, error) {
	var a Allergy
	err := row.Scan(&a.ID, &a.PatientID, &a.AllergenType, &a.CodedAllergenID, &a.NonCodedAllergen,
		&a.Severity, &a.Comment,
		&a.Creator, &a.DateCreated, &a.ChangedBy, &a.DateChanged,
		&a.Voided, &a.VoidedBy, &a.DateVoided, &a.VoidReason)
	if err != nil {
		return nil, apperr.FromPG(err, "allergy")
	}
	return &a, nil
}

func (r *repoPG) loadReactions(ctx context.Context, allergies ...*Allergy) error {
	if len(allergies) == 0 {
		return nil
	}
	byID := make(map[uuid.UUID]*Allergy, len(allergies))
	ids := make([]uuid.UUID, 0, len(allergies))
	for _, a := range allergies {
		a.Reactions = []*AllergyReaction{}
		byID[a.ID] = a
		ids = append(ids, a.ID)
	}
	rows, err := r.conn(ctx).Query(ctx, `SELECT id, allergy_id, reaction_concept_id, reaction_non_coded
		FROM allergy_reaction WHERE allergy_id = ANY($1) ORDER BY allergy_id, id`, ids)
	if err != nil {
		return err
	}
	defer rows.Close()
	for rows.Next() {
		var re AllergyReaction
		if err := rows.Scan(&re.ID, &re.AllergyID, &re.ReactionConceptID, &re.ReactionNonCoded); err != nil {
			return err
		}
		if a := byID[re.AllergyID]; a != nil {
			a.Reactions = append(a.Reactions, &re)
		}
	}
	return rows.Err()
}

func (r *repoPG) writeReactions(ctx context.Context, a *Allergy) error {
	if _, err := r.conn(ctx).Exec(ctx, `DELETE FROM allergy_reaction WHERE allergy_id = $1`, a.ID); err != nil {
		return err
	}
	for _, re := range a.Reactions {
		if re.ID == uuid.Nil {
			re.ID = uuid.New()
		}
		re.AllergyID = a.ID
		_, err := r.conn(ctx).Exec(ctx, `
			INSERT INTO allergy_reaction (id, allergy_id, reaction_concept_id, reaction_non_coded)
			VALUES ($1, $2, $3, $4)`,
			re.ID, re.AllergyID, re.ReactionConceptID, re.ReactionNonCoded)
		if err != nil {
			return apperr.FromPG(err, "allergy reaction")
		}
	}
	return nil
}

func (r *repoPG) Create(ctx context.Context, a *Allergy) error {
	a.ID = uuid.New()
	return db.RunInTx(ctx, func(ctx context.Context) error {
		_, err := r.conn(ctx).Exec(ctx, `
			INSERT INTO allergy (`+allergyColumns+`)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15)`,
			a.ID, a.PatientID, a.AllergenType, a.CodedAllergenID, a.NonCodedAllergen,
			a.Severity, a.Comment,
			a.Creator, a.DateCreated, a.ChangedBy, a.DateChanged,
			a.Voided, a.VoidedBy, a.DateVoided, a.VoidReason,
		)
		if err != nil {
			return apperr.FromPG(err, "allergy")
		}
		return r.writeReactions(ctx, a)
	})
}

func (r *repoPG) Update(ctx context.Context, a *Allergy) error {
	return db.RunInTx(ctx, func(ctx context.Context) error {
		tag, err := r.conn(ctx).Exec(ctx, `
			UPDATE allergy SET
				allergen_type = $2, coded_allergen_id = $3, non_coded_allergen = $4,
				severity = $5, comment = $6, changed_by = $7, date_changed = $8,
				voided = $9, voided_by = $10, date_voided = $11, void_reason = $12
			WHERE id = $1`,
			a.ID, a.AllergenType, a.CodedAllergenID, a.NonCodedAllergen,
			a.Severity, a.Comment, a.ChangedBy, a.DateChanged,
			a.Voided, a.VoidedBy, a.DateVoided, a.VoidReason,
		)
		if err != nil {
			return apperr.FromPG(err, "allergy")
		}
		if tag.RowsAffected() == 0 {
			return apperr.NotFound("allergy", a.ID)
		}
		return r.writeReactions(ctx, a)
	})
}

func (r *repoPG) GetByID(ctx context.Context, id uuid.UUID) (*Allergy, error) {
	a, err := scanAllergy(r.conn(ctx).QueryRow(ctx, `SELECT `+allergyColumns+` FROM allergy WHERE id = $1`, id))
	if err != nil {
		return nil, err
	}
	return a, r.loadReactions(ctx, a)
}

func (r *repoPG) ListByPatient(ctx context.Context, patientID uuid.UUID, includeVoided bool) ([]*Allergy, error) {
	rows, err := r.conn(ctx).Query(ctx, `SELECT `+allergyColumns+` FROM allergy
		WHERE patient_id = $1 AND ($2 OR NOT voided) ORDER BY date_created`, patientID, includeVoided)
	if err != nil {
		return nil, err
	}
	var out []*Allergy
	for rows.Next() {
		a, err := scanAllergy(rows)
		if err != nil {
			rows.Close()
			return nil, err
		}
		out = append(out, a)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return out, r.loadReactions(ctx, out...)
}

func (r *repoPG) GetStatus(ctx context.Context, patientID uuid.UUID) (string, error) {
	var status string
	err := r.conn(ctx).QueryRow(ctx, `SELECT status FROM patient_allergy_status WHERE patient_id = $1`, patientID).Scan(&status)
	if err != nil {
		return "", apperr.FromPG(err, "allergy status")
	}
	return status, nil
}

func (r *repoPG) SetStatus(ctx context.Context, patientID uuid.UUID, status string) error {
	_, err := r.conn(ctx).Exec(ctx, `
		INSERT INTO patient_allergy_status (patient_id, status) VALUES ($1, $2)
		ON CONFLICT (patient_id) DO UPDATE SET status = EXCLUDED.status`, patientID, status)
	return apperr.FromPG(err, "allergy status")
}
