package order

import (
	"context"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/openmrs/openmrs-api/internal/platform/apperr"
	"github.com/openmrs/openmrs-api/internal/platform/db"
)

type orderRepoPG struct {
	pool *pgxpool.Pool
}

func NewOrderRepo(pool *pgxpool.Pool) OrderRepository {
	return &orderRepoPG{pool: pool}
}

func (r *orderRepoPG) conn(ctx context.Context) db.Querier {
	return db.Resolve(ctx, r.pool)
}

const orderCols = `o.id, o.order_number, o.patient_id, o.encounter_id, o.concept_id, o.orderer_id,
	o.care_setting_id, o.order_type_id, o.order_action, o.urgency,
	o.scheduled_date, o.date_activated, o.auto_expire_date, o.date_stopped, o.previous_order_id,
	o.order_reason_id, o.order_reason_non_coded, o.instructions, o.comment_to_fulfiller,
	o.fulfiller_status, o.fulfiller_comment,
	o.creator, o.date_created, o.changed_by, o.date_changed,
	o.voided, o.voided_by, o.date_voided, o.void_reason,
	d.order_id IS NOT NULL, d.drug_id, d.dosing_type, d.dose, d.dose_units, d.route, d.frequency_id,
	d.as_needed, d.as_needed_condition, d.quantity, d.quantity_units, d.num_refills,
	d.duration, d.duration_units, d.dosing_instructions,
	t.order_id IS NOT NULL, t.specimen, t.laterality, t.clinical_history, t.number_of_repeats`

const orderFrom = ` FROM orders o
	LEFT JOIN drug_order d ON d.order_id = o.id
	LEFT JOIN test_order t ON t.order_id = o.id`

func str(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}

func (r *orderRepoPG) scanOrder(row pgx.Row) (*Order, error) {
	var (
		o                                                             Order
		isDrug, isTest                                                bool
		d                                                             DrugDetails
		t                                                             TestDetails
		dosingType, doseUnits, route, asNeededCond, qtyUnits, durUnit *string
		dosingInstr, specimen, laterality, history                    *string
		asNeeded                                                      *bool
	)
	err := row.Scan(&o.ID, &o.OrderNumber, &o.PatientID, &o.EncounterID, &o.ConceptID, &o.OrdererID,
		&o.CareSettingID, &o.OrderTypeID, &o.Action, &o.Urgency,
		&o.ScheduledDate, &o.DateActivated, &o.AutoExpireDate, &o.DateStopped, &o.PreviousOrderID,
		&o.OrderReasonID, &o.OrderReasonNonCoded, &o.Instructions, &o.CommentToFulfiller,
		&o.FulfillerStatus, &o.FulfillerComment,
		&o.Creator, &o.DateCreated, &o.ChangedBy, &o.DateChanged,
		&o.Voided, &o.VoidedBy, &o.DateVoided, &o.VoidReason,
		&isDrug, &d.DrugID, &dosingType, &d.Dose, &doseUnits, &route, &d.FrequencyID,
		&asNeeded, &asNeededCond, &d.Quantity, &qtyUnits, &d.NumRefills,
		&d.Duration, &durUnit, &dosingInstr,
		&isTest, &specimen, &laterality, &history, &t.NumberOfRepeats)
	if err != nil {
		return nil, apperr.FromPG(err, "order")
	}
	if isDrug {
		d.DosingType, d.DoseUnits, d.Route = str(dosingType), str(doseUnits), str(route)
		d.AsNeeded = asNeeded != nil && *asNeeded
		d.AsNeededCondition, d.QuantityUnits = str(asNeededCond), str(qtyUnits)
		d.DurationUnits, d.DosingInstructions = str(durUnit), str(dosingInstr)
		o.Drug = &d
	}
	if isTest {
		t.Specimen, t.Laterality, t.ClinicalHistory = str(specimen), str(laterality), str(history)
		o.Test = &t
	}
	return &o, nil
}

func (r *orderRepoPG) scanAll(ctx context.Context, query string, args ...interface{}) ([]*Order, error) {
	rows, err := r.conn(ctx).Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*Order
	for rows.Next() {
		o, err := r.scanOrder(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, o)
	}
	return out, rows.Err()
}

func (r *orderRepoPG) Create(ctx context.Context, o *Order) error {
	o.ID = uuid.New()
	return db.RunInTx(ctx, func(ctx context.Context) error {
		_, err := r.conn(ctx).Exec(ctx, `
			INSERT INTO orders (
				id, order_number, patient_id, encounter_id, concept_id, orderer_id,
				care_setting_id, order_type_id, order_action, urgency,
				scheduled_date, date_activated, auto_expire_date, date_stopped, previous_order_id,
				order_reason_id, order_reason_non_coded, instructions, comment_to_fulfiller,
				fulfiller_status, fulfiller_comment,
				creator, date_created, changed_by, date_changed,
				voided, voided_by, date_voided, void_reason
			) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15,
				$16, $17, $18, $19, $20, $21, $22, $23, $24, $25, $26, $27, $28, $29)`,
			o.ID, o.OrderNumber, o.PatientID, o.EncounterID, o.ConceptID, o.OrdererID,
			o.CareSettingID, o.OrderTypeID, o.Action, o.Urgency,
			o.ScheduledDate, o.DateActivated, o.AutoExpireDate, o.DateStopped, o.PreviousOrderID,
			o.OrderReasonID, o.OrderReasonNonCoded, o.Instructions, o.CommentToFulfiller,
			o.FulfillerStatus, o.FulfillerComment,
			o.Creator, o.DateCreated, o.ChangedBy, o.DateChanged,
			o.Voided, o.VoidedBy, o.DateVoided, o.VoidReason,
		)
		if err != nil {
			return apperr.FromPG(err, "order "+o.OrderNumber)
		}
		if d := o.Drug; d != nil {
			_, err = r.conn(ctx).Exec(ctx, `
				INSERT INTO drug_order (
					order_id, drug_id, dosing_type, dose, dose_units, route, frequency_id,
					as_needed, as_needed_condition, quantity, quantity_units, num_refills,
					duration, duration_units, dosing_instructions
				) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15)`,
				o.ID, d.DrugID, d.DosingType, d.Dose, d.DoseUnits, d.Route, d.FrequencyID,
				d.AsNeeded, d.AsNeededCondition, d.Quantity, d.QuantityUnits, d.NumRefills,
				d.Duration, d.DurationUnits, d.DosingInstructions,
			)
			if err != nil {
				return apperr.FromPG(err, "drug order "+o.OrderNumber)
			}
		}
		if t := o.Test; t != nil {
			_, err = r.conn(ctx).Exec(ctx, `
				INSERT INTO test_order (order_id, specimen, laterality, clinical_history, number_of_repeats)
				VALUES ($1, $2, $3, $4, $5)`,
				o.ID, t.Specimen, t.Laterality, t.ClinicalHistory, t.NumberOfRepeats,
			)
			if err != nil {
				return apperr.FromPG(err, "test order "+o.OrderNumber)
			}
		}
		return nil
	})
}

func (r *orderRepoPG) Update(ctx context.Context, o *Order) error {
	tag, err := r.conn(ctx).Exec(ctx, `
		UPDATE orders SET
			date_stopped = $2, fulfiller_status = $3, fulfiller_comment = $4,
			changed_by = $5, date_changed = $6,
			voided = $7, voided_by = $8, date_voided = $9, void_reason = $10
		WHERE id = $1`,
		o.ID, o.DateStopped, o.FulfillerStatus, o.FulfillerComment,
		o.ChangedBy, o.DateChanged,
		o.Voided, o.VoidedBy, o.DateVoided, o.VoidReason,
	)
	if err != nil {
		return apperr.FromPG(err, "order "+o.OrderNumber)
	}
	if tag.RowsAffected() == 0 {
		return apperr.NotFound("order", o.ID)
	}
	return nil
}

func (r *orderRepoPG) GetByID(ctx context.Context, id uuid.UUID) (*Order, error) {
	return r.scanOrder(r.conn(ctx).QueryRow(ctx, `SELECT `+orderCols+orderFrom+` WHERE o.id = $1`, id))
}

func (r *orderRepoPG) GetByOrderNumber(ctx context.Context, number string) (*Order, error) {
	return r.scanOrder(r.conn(ctx).QueryRow(ctx, `SELECT `+orderCols+orderFrom+` WHERE o.order_number = $1`, number))
}

func (r *orderRepoPG) ListByPatient(ctx context.Context, patientID uuid.UUID, includeVoided bool) ([]*Order, error) {
	return r.scanAll(ctx, `SELECT `+orderCols+orderFrom+`
		WHERE o.patient_id = $1 AND ($2 OR NOT o.voided)
		ORDER BY o.date_activated, o.date_created`, patientID, includeVoided)
}

func (r *orderRepoPG) ListByEncounter(ctx context.Context, encounterID uuid.UUID, includeVoided bool) ([]*Order, error) {
	return r.scanAll(ctx, `SELECT `+orderCols+orderFrom+`
		WHERE o.encounter_id = $1 AND ($2 OR NOT o.voided)
		ORDER BY o.date_activated, o.date_created`, encounterID, includeVoided)
}

func (r *orderRepoPG) ListByPreviousOrder(ctx context.Context, prevID uuid.UUID) ([]*Order, error) {
	return r.scanAll(ctx, `SELECT `+orderCols+orderFrom+`
		WHERE o.previous_order_id = $1 ORDER BY o.date_activated`, prevID)
}

func (r *orderRepoPG) count(ctx context.Context, query string, id uuid.UUID) (int, error) {
	var n int
	if err := r.conn(ctx).QueryRow(ctx, query, id).Scan(&n); err != nil {
		return 0, err
	}
	return n, nil
}

func (r *orderRepoPG) CountByOrderType(ctx context.Context, orderTypeID uuid.UUID) (int, error) {
	return r.count(ctx, `SELECT COUNT(*) FROM orders WHERE order_type_id = $1`, orderTypeID)
}

func (r *orderRepoPG) CountByFrequency(ctx context.Context, frequencyID uuid.UUID) (int, error) {
	return r.count(ctx, `SELECT COUNT(*) FROM drug_order WHERE frequency_id = $1`, frequencyID)
}

func (r *orderRepoPG) CountByCareSetting(ctx context.Context, careSettingID uuid.UUID) (int, error) {
	return r.count(ctx, `SELECT COUNT(*) FROM orders WHERE care_setting_id = $1`, careSettingID)
}

func (r *orderRepoPG) Delete(ctx context.Context, id uuid.UUID) error {
	tag, err := r.conn(ctx).Exec(ctx, `DELETE FROM orders WHERE id = $1`, id)
	if err != nil {
		return apperr.FromPG(err, "order")
	}
	if tag.RowsAffected() == 0 {
		return apperr.NotFound("order", id)
	}
	return nil
}
