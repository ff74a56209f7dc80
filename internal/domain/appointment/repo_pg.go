package appointment

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/therakit/therakit/internal/platform/db"
)

type queryable interface {
	Query(ctx context.Context, sql string, args ...interface{}) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...interface{}) pgx.Row
	Exec(ctx context.Context, sql string, args ...interface{}) (pgconn.CommandTag, error)
}

type repoPG struct{ pool *pgxpool.Pool }

func NewRepoPG(pool *pgxpool.Pool) Repository { return &repoPG{pool: pool} }

func (r *repoPG) conn(ctx context.Context) queryable {
	if c := db.ConnFromContext(ctx); c != nil {
		return c
	}
	return r.pool
}

const apptCols = `id, patient_id, therapist_id, discipline_id, scheduled_date,
	to_char(scheduled_time, 'HH24:MI'), duration_minutes, status, detection_source,
	is_retroactive, progress_record_id, recurring_template_id, missed_reason,
	justified_by, justified_at, cancellation_reason, notes, created_by,
	created_at, updated_at`

func scanAppointment(row pgx.Row) (*Appointment, error) {
	var a Appointment
	err := row.Scan(&a.ID, &a.PatientID, &a.TherapistID, &a.DisciplineID, &a.ScheduledDate,
		&a.ScheduledTime, &a.DurationMinutes, &a.Status, &a.DetectionSource,
		&a.IsRetroactive, &a.ProgressRecordID, &a.RecurringTemplateID, &a.MissedReason,
		&a.JustifiedBy, &a.JustifiedAt, &a.CancellationReason, &a.Notes, &a.CreatedBy,
		&a.CreatedAt, &a.UpdatedAt)
	return &a, err
}

func (r *repoPG) Create(ctx context.Context, a *Appointment) error {
	if a.ID == uuid.Nil {
		a.ID = uuid.New()
	}
	_, err := r.conn(ctx).Exec(ctx, `
		INSERT INTO appointment (id, patient_id, therapist_id, discipline_id,
			scheduled_date, scheduled_time, duration_minutes, status, detection_source,
			is_retroactive, progress_record_id, recurring_template_id, notes, created_by)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14)`,
		a.ID, a.PatientID, a.TherapistID, a.DisciplineID,
		a.ScheduledDate, a.ScheduledTime, a.DurationMinutes, a.Status, a.DetectionSource,
		a.IsRetroactive, a.ProgressRecordID, a.RecurringTemplateID, a.Notes, a.CreatedBy)
	return err
}

func (r *repoPG) GetByID(ctx context.Context, id uuid.UUID) (*Appointment, error) {
	a, err := scanAppointment(r.conn(ctx).QueryRow(ctx,
		`SELECT `+apptCols+` FROM appointment WHERE id = $1`, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return a, nil
}

func (r *repoPG) Update(ctx context.Context, a *Appointment) error {
	tag, err := r.conn(ctx).Exec(ctx, `
		UPDATE appointment SET
			scheduled_date=$2, scheduled_time=$3, duration_minutes=$4,
			therapist_id=$5, discipline_id=$6, status=$7, detection_source=$8,
			is_retroactive=$9, progress_record_id=$10, missed_reason=$11,
			justified_by=$12, justified_at=$13, cancellation_reason=$14,
			notes=$15, updated_at=NOW()
		WHERE id = $1`,
		a.ID, a.ScheduledDate, a.ScheduledTime, a.DurationMinutes,
		a.TherapistID, a.DisciplineID, a.Status, a.DetectionSource,
		a.IsRetroactive, a.ProgressRecordID, a.MissedReason,
		a.JustifiedBy, a.JustifiedAt, a.CancellationReason, a.Notes)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *repoPG) Delete(ctx context.Context, id uuid.UUID) error {
	tag, err := r.conn(ctx).Exec(ctx, `DELETE FROM appointment WHERE id = $1`, id)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *repoPG) List(ctx context.Context, f ListFilter, limit, offset int) ([]*Appointment, int, error) {
	query := `SELECT ` + apptCols + ` FROM appointment WHERE 1=1`
	countQuery := `SELECT COUNT(*) FROM appointment WHERE 1=1`
	var args []interface{}
	idx := 1

	add := func(clause string, arg interface{}) {
		query += fmt.Sprintf(clause, idx)
		countQuery += fmt.Sprintf(clause, idx)
		args = append(args, arg)
		idx++
	}

	if f.PatientID != nil {
		add(` AND patient_id = $%d`, *f.PatientID)
	}
	if f.TherapistID != nil {
		add(` AND therapist_id = $%d`, *f.TherapistID)
	}
	if f.TemplateID != nil {
		add(` AND recurring_template_id = $%d`, *f.TemplateID)
	}
	if f.Status != "" {
		add(` AND status = $%d`, f.Status)
	}
	if f.From != nil {
		add(` AND scheduled_date >= $%d`, *f.From)
	}
	if f.To != nil {
		add(` AND scheduled_date <= $%d`, *f.To)
	}

	var total int
	if err := r.conn(ctx).QueryRow(ctx, countQuery, args...).Scan(&total); err != nil {
		return nil, 0, err
	}

	query += fmt.Sprintf(` ORDER BY scheduled_date, scheduled_time LIMIT $%d OFFSET $%d`, idx, idx+1)
	args = append(args, limit, offset)

	rows, err := r.conn(ctx).Query(ctx, query, args...)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	var items []*Appointment
	for rows.Next() {
		a, err := scanAppointment(rows)
		if err != nil {
			return nil, 0, err
		}
		items = append(items, a)
	}
	return items, total, rows.Err()
}

func (r *repoPG) ListActiveOnDate(ctx context.Context, date time.Time, patientID, therapistID uuid.UUID) ([]*Appointment, error) {
	rows, err := r.conn(ctx).Query(ctx, `
		SELECT `+apptCols+` FROM appointment
		WHERE scheduled_date = $1
		  AND status IN ('scheduled', 'completed')
		  AND (patient_id = $2 OR therapist_id = $3)
		ORDER BY scheduled_time`,
		date, patientID, therapistID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return collectAppointments(rows)
}

func (r *repoPG) ListScheduledUnlinked(ctx context.Context, from, to time.Time) ([]*Appointment, error) {
	rows, err := r.conn(ctx).Query(ctx, `
		SELECT `+apptCols+` FROM appointment
		WHERE status = 'scheduled'
		  AND progress_record_id IS NULL
		  AND scheduled_date BETWEEN $1 AND $2
		ORDER BY scheduled_date, scheduled_time`,
		from, to)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return collectAppointments(rows)
}

func (r *repoPG) MarkMissedBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	tag, err := r.conn(ctx).Exec(ctx, `
		UPDATE appointment SET status = 'missed', updated_at = NOW()
		WHERE status = 'scheduled'
		  AND scheduled_date + scheduled_time < $1`,
		cutoff)
	if err != nil {
		return 0, err
	}
	return tag.RowsAffected(), nil
}

func (r *repoPG) ExistsByProgressRecord(ctx context.Context, progressRecordID uuid.UUID) (bool, error) {
	var exists bool
	err := r.conn(ctx).QueryRow(ctx,
		`SELECT EXISTS(SELECT 1 FROM appointment WHERE progress_record_id = $1)`,
		progressRecordID).Scan(&exists)
	return exists, err
}

func (r *repoPG) HasCompletedFor(ctx context.Context, patientID, therapistID uuid.UUID, date time.Time) (bool, error) {
	var exists bool
	err := r.conn(ctx).QueryRow(ctx, `
		SELECT EXISTS(SELECT 1 FROM appointment
			WHERE patient_id = $1 AND therapist_id = $2
			  AND scheduled_date = $3 AND status = 'completed')`,
		patientID, therapistID, date).Scan(&exists)
	return exists, err
}

func collectAppointments(rows pgx.Rows) ([]*Appointment, error) {
	var items []*Appointment
	for rows.Next() {
		a, err := scanAppointment(rows)
		if err != nil {
			return nil, err
		}
		items = append(items, a)
	}
	return items, rows.Err()
}
