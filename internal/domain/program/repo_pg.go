package program

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

const retireColumns = `creator, date_created, changed_by, date_changed,
	retired, retired_by, date_retired, retire_reason`

const voidColumns = `creator, date_created, changed_by, date_changed,
	voided, voided_by, date_voided, void_reason`

const programColumns = `id, name, description, concept_id, outcomes_concept_id, ` + retireColumns

const workflowColumns = `id, program_id, concept_id, ` + retireColumns

const stateColumns = `id, program_workflow_id, concept_id, initial, terminal, ` + retireColumns

const enrollmentColumns = `id, patient_id, program_id, location_id, date_enrolled,
	date_completed, outcome_concept_id, ` + voidColumns

const patientStateColumns = `id, patient_program_id, state_id, start_date, end_date, ` + voidColumns

func scanProgram(row pgx.Row) (*Program, error) {
	var p Program
	err := row.Scan(&p.ID, &p.Name, &p.Description, &p.ConceptID, &p.OutcomesConceptID,
		&p.Creator, &p.DateCreated, &p.ChangedBy, &p.DateChanged,
		&p.Retired, &p.RetiredBy, &p.DateRetired, &p.RetireReason)
	if err != nil {
		return nil, apperr.FromPG(err, "program")
	}
	return &p, nil
}

func scanPatientProgram(row pgx.Row) (*PatientProgram, error) {
	var pp PatientProgram
	err := row.Scan(&pp.ID, &pp.PatientID, &pp.ProgramID, &pp.LocationID, &pp.DateEnrolled,
		&pp.DateCompleted, &pp.OutcomeConceptID,
		&pp.Creator, &pp.DateCreated, &pp.ChangedBy, &pp.DateChanged,
		&pp.Voided, &pp.VoidedBy, &pp.DateVoided, &pp.VoidReason)
	if err != nil {
		return nil, apperr.FromPG(err, "patient program")
	}
	return &pp, nil
}

func (r *repoPG) queryPrograms(ctx context.Context, sql string, args ...interface{}) ([]*Program, error) {
	rows, err := r.conn(ctx).Query(ctx, sql, args...)
	if err != nil {
		return nil, err
	}
	var out []*Program
	for rows.Next() {
		p, err := scanProgram(rows)
		if err != nil {
			rows.Close()
			return nil, err
		}
		out = append(out, p)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return out, r.loadWorkflows(ctx, out...)
}

func (r *repoPG) loadWorkflows(ctx context.Context, programs ...*Program) error {
	if len(programs) == 0 {
		return nil
	}
	byProgram := make(map[uuid.UUID]*Program, len(programs))
	ids := make([]uuid.UUID, 0, len(programs))
	for _, p := range programs {
		p.Workflows = []*ProgramWorkflow{}
		byProgram[p.ID] = p
		ids = append(ids, p.ID)
	}
	rows, err := r.conn(ctx).Query(ctx, `SELECT `+workflowColumns+` FROM program_workflow
		WHERE program_id = ANY($1) ORDER BY date_created, id`, ids)
	if err != nil {
		return err
	}
	byWorkflow := map[uuid.UUID]*ProgramWorkflow{}
	var workflowIDs []uuid.UUID
	for rows.Next() {
		var w ProgramWorkflow
		err := rows.Scan(&w.ID, &w.ProgramID, &w.ConceptID,
			&w.Creator, &w.DateCreated, &w.ChangedBy, &w.DateChanged,
			&w.Retired, &w.RetiredBy, &w.DateRetired, &w.RetireReason)
		if err != nil {
			rows.Close()
			return err
		}
		w.States = []*ProgramWorkflowState{}
		byProgram[w.ProgramID].Workflows = append(byProgram[w.ProgramID].Workflows, &w)
		byWorkflow[w.ID] = &w
		workflowIDs = append(workflowIDs, w.ID)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return err
	}
	if len(workflowIDs) == 0 {
		return nil
	}

	rows, err = r.conn(ctx).Query(ctx, `SELECT `+stateColumns+` FROM program_workflow_state
		WHERE program_workflow_id = ANY($1) ORDER BY date_created, id`, workflowIDs)
	if err != nil {
		return err
	}
	defer rows.Close()
	for rows.Next() {
		var s ProgramWorkflowState
		err := rows.Scan(&s.ID, &s.WorkflowID, &s.ConceptID, &s.Initial, &s.Terminal,
			&s.Creator, &s.DateCreated, &s.ChangedBy, &s.DateChanged,
			&s.Retired, &s.RetiredBy, &s.DateRetired, &s.RetireReason)
		if err != nil {
			return err
		}
		w := byWorkflow[s.WorkflowID]
		w.States = append(w.States, &s)
	}
	return rows.Err()
}

func (r *repoPG) upsertWorkflows(ctx context.Context, p *Program) error {
	for _, w := range p.Workflows {
		if w.ID == uuid.Nil {
			w.ID = uuid.New()
		}
		w.ProgramID = p.ID
		_, err := r.conn(ctx).Exec(ctx, `
			INSERT INTO program_workflow (`+workflowColumns+`)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
			ON CONFLICT (id) DO UPDATE SET
				concept_id = EXCLUDED.concept_id,
				changed_by = EXCLUDED.changed_by, date_changed = EXCLUDED.date_changed,
				retired = EXCLUDED.retired, retired_by = EXCLUDED.retired_by,
				date_retired = EXCLUDED.date_retired, retire_reason = EXCLUDED.retire_reason`,
			w.ID, w.ProgramID, w.ConceptID,
			w.Creator, w.DateCreated, w.ChangedBy, w.DateChanged,
			w.Retired, w.RetiredBy, w.DateRetired, w.RetireReason,
		)
		if err != nil {
			return apperr.FromPG(err, "program workflow")
		}
		for _, s := range w.States {
			if s.ID == uuid.Nil {
				s.ID = uuid.New()
			}
			s.WorkflowID = w.ID
			_, err := r.conn(ctx).Exec(ctx, `
				INSERT INTO program_workflow_state (`+stateColumns+`)
				VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)
				ON CONFLICT (id) DO UPDATE SET
					concept_id = EXCLUDED.concept_id,
					initial = EXCLUDED.initial, terminal = EXCLUDED.terminal,
					changed_by = EXCLUDED.changed_by, date_changed = EXCLUDED.date_changed,
					retired = EXCLUDED.retired, retired_by = EXCLUDED.retired_by,
					date_retired = EXCLUDED.date_retired, retire_reason = EXCLUDED.retire_reason`,
				s.ID, s.WorkflowID, s.ConceptID, s.Initial, s.Terminal,
				s.Creator, s.DateCreated, s.ChangedBy, s.DateChanged,
				s.Retired, s.RetiredBy, s.DateRetired, s.RetireReason,
			)
			if err != nil {
				return apperr.FromPG(err, "program workflow state")
			}
		}
	}
	return nil
}

func (r *repoPG) CreateProgram(ctx context.Context, p *Program) error {
	p.ID = uuid.New()
	return db.RunInTx(ctx, func(ctx context.Context) error {
		_, err := r.conn(ctx).Exec(ctx, `
			INSERT INTO program (`+programColumns+`)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)`,
			p.ID, p.Name, p.Description, p.ConceptID, p.OutcomesConceptID,
			p.Creator, p.DateCreated, p.ChangedBy, p.DateChanged,
			p.Retired, p.RetiredBy, p.DateRetired, p.RetireReason,
		)
		if err != nil {
			return apperr.FromPG(err, "program "+p.Name)
		}
		return r.upsertWorkflows(ctx, p)
	})
}

func (r *repoPG) UpdateProgram(ctx context.Context, p *Program) error {
	return db.RunInTx(ctx, func(ctx context.Context) error {
		tag, err := r.conn(ctx).Exec(ctx, `
			UPDATE program SET
				name = $2, description = $3, concept_id = $4, outcomes_concept_id = $5,
				changed_by = $6, date_changed = $7,
				retired = $8, retired_by = $9, date_retired = $10, retire_reason = $11
			WHERE id = $1`,
			p.ID, p.Name, p.Description, p.ConceptID, p.OutcomesConceptID,
			p.ChangedBy, p.DateChanged,
			p.Retired, p.RetiredBy, p.DateRetired, p.RetireReason,
		)
		if err != nil {
			return apperr.FromPG(err, "program "+p.Name)
		}
		if tag.RowsAffected() == 0 {
			return apperr.NotFound("program", p.ID)
		}
		return r.upsertWorkflows(ctx, p)
	})
}

func (r *repoPG) GetProgram(ctx context.Context, id uuid.UUID) (*Program, error) {
	p, err := scanProgram(r.conn(ctx).QueryRow(ctx, `SELECT `+programColumns+` FROM program WHERE id = $1`, id))
	if err != nil {
		return nil, err
	}
	return p, r.loadWorkflows(ctx, p)
}

func (r *repoPG) GetProgramByName(ctx context.Context, name string) (*Program, error) {
	p, err := scanProgram(r.conn(ctx).QueryRow(ctx, `SELECT `+programColumns+` FROM program
		WHERE lower(name) = lower($1) ORDER BY retired, date_created LIMIT 1`, name))
	if err != nil {
		return nil, err
	}
	return p, r.loadWorkflows(ctx, p)
}

func (r *repoPG) ListPrograms(ctx context.Context, includeRetired bool) ([]*Program, error) {
	return r.queryPrograms(ctx, `SELECT `+programColumns+` FROM program
		WHERE $1 OR NOT retired ORDER BY name`, includeRetired)
}

func (r *repoPG) DeleteProgram(ctx context.Context, id uuid.UUID) error {
	return db.RunInTx(ctx, func(ctx context.Context) error {
		_, err := r.conn(ctx).Exec(ctx, `
			DELETE FROM program_workflow_state WHERE program_workflow_id IN
				(SELECT id FROM program_workflow WHERE program_id = $1)`, id)
		if err != nil {
			return apperr.FromPG(err, "program workflow state")
		}
		if _, err := r.conn(ctx).Exec(ctx, `DELETE FROM program_workflow WHERE program_id = $1`, id); err != nil {
			return apperr.FromPG(err, "program workflow")
		}
		tag, err := r.conn(ctx).Exec(ctx, `DELETE FROM program WHERE id = $1`, id)
		if err != nil {
			return apperr.FromPG(err, "program")
		}
		if tag.RowsAffected() == 0 {
			return apperr.NotFound("program", id)
		}
		return nil
	})
}

func (r *repoPG) loadPatientStates(ctx context.Context, enrollments ...*PatientProgram) error {
	if len(enrollments) == 0 {
		return nil
	}
	byID := make(map[uuid.UUID]*PatientProgram, len(enrollments))
	ids := make([]uuid.UUID, 0, len(enrollments))
	for _, pp := range enrollments {
		pp.States = []*PatientState{}
		byID[pp.ID] = pp
		ids = append(ids, pp.ID)
	}
	rows, err := r.conn(ctx).Query(ctx, `SELECT `+patientStateColumns+` FROM patient_state
		WHERE patient_program_id = ANY($1) ORDER BY start_date, date_created`, ids)
	if err != nil {
		return err
	}
	defer rows.Close()
	for rows.Next() {
		var ps PatientState
		err := rows.Scan(&ps.ID, &ps.PatientProgramID, &ps.StateID, &ps.StartDate, &ps.EndDate,
			&ps.Creator, &ps.DateCreated, &ps.ChangedBy, &ps.DateChanged,
			&ps.Voided, &ps.VoidedBy, &ps.DateVoided, &ps.VoidReason)
		if err != nil {
			return apperr.FromPG(err, "patient state")
		}
		pp := byID[ps.PatientProgramID]
		pp.States = append(pp.States, &ps)
	}
	return rows.Err()
}

func (r *repoPG) upsertPatientStates(ctx context.Context, pp *PatientProgram) error {
	for _, ps := range pp.States {
		if ps.ID == uuid.Nil {
			ps.ID = uuid.New()
		}
		ps.PatientProgramID = pp.ID
		_, err := r.conn(ctx).Exec(ctx, `
			INSERT INTO patient_state (`+patientStateColumns+`)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)
			ON CONFLICT (id) DO UPDATE SET
				start_date = EXCLUDED.start_date, end_date = EXCLUDED.end_date,
				changed_by = EXCLUDED.changed_by, date_changed = EXCLUDED.date_changed,
				voided = EXCLUDED.voided, voided_by = EXCLUDED.voided_by,
				date_voided = EXCLUDED.date_voided, void_reason = EXCLUDED.void_reason`,
			ps.ID, ps.PatientProgramID, ps.StateID, ps.StartDate, ps.EndDate,
			ps.Creator, ps.DateCreated, ps.ChangedBy, ps.DateChanged,
			ps.Voided, ps.VoidedBy, ps.DateVoided, ps.VoidReason,
		)
		if err != nil {
			return apperr.FromPG(err, "patient state")
		}
	}
	return nil
}

func (r *repoPG) CreatePatientProgram(ctx context.Context, pp *PatientProgram) error {
	pp.ID = uuid.New()
	return db.RunInTx(ctx, func(ctx context.Context) error {
		_, err := r.conn(ctx).Exec(ctx, `
			INSERT INTO patient_program (`+enrollmentColumns+`)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15)`,
			pp.ID, pp.PatientID, pp.ProgramID, pp.LocationID, pp.DateEnrolled,
			pp.DateCompleted, pp.OutcomeConceptID,
			pp.Creator, pp.DateCreated, pp.ChangedBy, pp.DateChanged,
			pp.Voided, pp.VoidedBy, pp.DateVoided, pp.VoidReason,
		)
		if err != nil {
			return apperr.FromPG(err, "patient program")
		}
		return r.upsertPatientStates(ctx, pp)
	})
}

func (r *repoPG) UpdatePatientProgram(ctx context.Context, pp *PatientProgram) error {
	return db.RunInTx(ctx, func(ctx context.Context) error {
		tag, err := r.conn(ctx).Exec(ctx, `
			UPDATE patient_program SET
				location_id = $2, date_enrolled = $3, date_completed = $4, outcome_concept_id = $5,
				changed_by = $6, date_changed = $7,
				voided = $8, voided_by = $9, date_voided = $10, void_reason = $11
			WHERE id = $1`,
			pp.ID, pp.LocationID, pp.DateEnrolled, pp.DateCompleted, pp.OutcomeConceptID,
			pp.ChangedBy, pp.DateChanged,
			pp.Voided, pp.VoidedBy, pp.DateVoided, pp.VoidReason,
		)
		if err != nil {
			return apperr.FromPG(err, "patient program")
		}
		if tag.RowsAffected() == 0 {
			return apperr.NotFound("patient program", pp.ID)
		}
		return r.upsertPatientStates(ctx, pp)
	})
}

func (r *repoPG) GetPatientProgram(ctx context.Context, id uuid.UUID) (*PatientProgram, error) {
	pp, err := scanPatientProgram(r.conn(ctx).QueryRow(ctx,
		`SELECT `+enrollmentColumns+` FROM patient_program WHERE id = $1`, id))
	if err != nil {
		return nil, err
	}
	return pp, r.loadPatientStates(ctx, pp)
}

func (r *repoPG) ListPatientPrograms(ctx context.Context, patientID, programID *uuid.UUID, includeVoided bool) ([]*PatientProgram, error) {
	rows, err := r.conn(ctx).Query(ctx, `SELECT `+enrollmentColumns+` FROM patient_program
		WHERE ($1::uuid IS NULL OR patient_id = $1)
			AND ($2::uuid IS NULL OR program_id = $2)
			AND ($3 OR NOT voided)
		ORDER BY date_enrolled, date_created`, patientID, programID, includeVoided)
	if err != nil {
		return nil, err
	}
	var out []*PatientProgram
	for rows.Next() {
		pp, err := scanPatientProgram(rows)
		if err != nil {
			rows.Close()
			return nil, err
		}
		out = append(out, pp)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return out, r.loadPatientStates(ctx, out...)
}
