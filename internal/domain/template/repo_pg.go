package template

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

const tplCols = `id, patient_id, therapist_id, discipline_id, recurrence_type,
	day_of_week, to_char(scheduled_time, 'HH24:MI'), duration_minutes,
	start_date, end_date, generate_weeks_ahead, skip_holidays, is_active,
	is_paused, paused_until, last_generation_date, created_by, notes,
	created_at, updated_at`

func scanTemplate(row pgx.Row) (*RecurringTemplate, error) {
	var t RecurringTemplate
	err := row.Scan(&t.ID, &t.PatientID, &t.TherapistID, &t.DisciplineID, &t.RecurrenceType,
		&t.DayOfWeek, &t.ScheduledTime, &t.DurationMinutes,
		&t.StartDate, &t.EndDate, &t.GenerateWeeksAhead, &t.SkipHolidays, &t.IsActive,
		&t.IsPaused, &t.PausedUntil, &t.LastGenerationDate, &t.CreatedBy, &t.Notes,
		&t.CreatedAt, &t.UpdatedAt)
	return &t, err
}

func (r *repoPG) Create(ctx context.Context, t *RecurringTemplate) error {
	if t.ID == uuid.Nil {
		t.ID = uuid.New()
	}
	_, err := r.conn(ctx).Exec(ctx, `
		INSERT INTO recurring_template (id, patient_id, therapist_id, discipline_id,
			recurrence_type, day_of_week, scheduled_time, duration_minutes,
			start_date, end_date, generate_weeks_ahead, skip_holidays, is_active,
			created_by, notes)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15)`,
		t.ID, t.PatientID, t.TherapistID, t.DisciplineID,
		t.RecurrenceType, t.DayOfWeek, t.ScheduledTime, t.DurationMinutes,
		t.StartDate, t.EndDate, t.GenerateWeeksAhead, t.SkipHolidays, t.IsActive,
		t.CreatedBy, t.Notes)
	return err
}

func (r *repoPG) GetByID(ctx context.Context, id uuid.UUID) (*RecurringTemplate, error) {
	t, err := scanTemplate(r.conn(ctx).QueryRow(ctx,
		`SELECT `+tplCols+` FROM recurring_template WHERE id = $1`, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return t, nil
}

func (r *repoPG) Update(ctx context.Context, t *RecurringTemplate) error {
	tag, err := r.conn(ctx).Exec(ctx, `
		UPDATE recurring_template SET
			therapist_id=$2, discipline_id=$3, day_of_week=$4, scheduled_time=$5,
			duration_minutes=$6, start_date=$7, end_date=$8, generate_weeks_ahead=$9,
			skip_holidays=$10, is_active=$11, is_paused=$12, paused_until=$13,
			notes=$14, updated_at=NOW()
		WHERE id = $1`,
		t.ID, t.TherapistID, t.DisciplineID, t.DayOfWeek, t.ScheduledTime,
		t.DurationMinutes, t.StartDate, t.EndDate, t.GenerateWeeksAhead,
		t.SkipHolidays, t.IsActive, t.IsPaused, t.PausedUntil, t.Notes)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *repoPG) Delete(ctx context.Context, id uuid.UUID) error {
	tag, err := r.conn(ctx).Exec(ctx, `DELETE FROM recurring_template WHERE id = $1`, id)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *repoPG) List(ctx context.Context, f ListFilter, limit, offset int) ([]*RecurringTemplate, int, error) {
	query := `SELECT ` + tplCols + ` FROM recurring_template WHERE 1=1`
	countQuery := `SELECT COUNT(*) FROM recurring_template WHERE 1=1`
	var args []interface{}
	idx := 1

	if f.PatientID != nil {
		clause := fmt.Sprintf(` AND patient_id = $%d`, idx)
		query += clause
		countQuery += clause
		args = append(args, *f.PatientID)
		idx++
	}
	if f.TherapistID != nil {
		clause := fmt.Sprintf(` AND therapist_id = $%d`, idx)
		query += clause
		countQuery += clause
		args = append(args, *f.TherapistID)
		idx++
	}
	if f.ActiveOnly {
		query += ` AND is_active = TRUE`
		countQuery += ` AND is_active = TRUE`
	}

	var total int
	if err := r.conn(ctx).QueryRow(ctx, countQuery, args...).Scan(&total); err != nil {
		return nil, 0, err
	}

	query += fmt.Sprintf(` ORDER BY created_at DESC LIMIT $%d OFFSET $%d`, idx, idx+1)
	args = append(args, limit, offset)

	rows, err := r.conn(ctx).Query(ctx, query, args...)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	var items []*RecurringTemplate
	for rows.Next() {
		t, err := scanTemplate(rows)
		if err != nil {
			return nil, 0, err
		}
		items = append(items, t)
	}
	return items, total, rows.Err()
}

func (r *repoPG) SetLastGeneration(ctx context.Context, id uuid.UUID, date time.Time) error {
	tag, err := r.conn(ctx).Exec(ctx, `
		UPDATE recurring_template SET last_generation_date = $2, updated_at = NOW()
		WHERE id = $1`, id, date)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *repoPG) ListDue(ctx context.Context, asOf time.Time) ([]*RecurringTemplate, error) {
	rows, err := r.conn(ctx).Query(ctx, `
		SELECT `+tplCols+` FROM recurring_template
		WHERE is_active = TRUE
		  AND NOT (is_paused AND (paused_until IS NULL OR paused_until >= $1))
		  AND (last_generation_date IS NULL OR last_generation_date + INTERVAL '7 days' <=
			LEAST(start_date + generate_weeks_ahead * INTERVAL '7 days',
			      COALESCE(end_date, 'infinity'::timestamptz)))
		ORDER BY created_at`, asOf)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var items []*RecurringTemplate
	for rows.Next() {
		t, err := scanTemplate(rows)
		if err != nil {
			return nil, err
		}
		items = append(items, t)
	}
	return items, rows.Err()
}

// -- Holiday Repository --

type holidayRepoPG struct{ pool *pgxpool.Pool }

func NewHolidayRepoPG(pool *pgxpool.Pool) HolidayRepository { return &holidayRepoPG{pool: pool} }

func (r *holidayRepoPG) conn(ctx context.Context) queryable {
	if c := db.ConnFromContext(ctx); c != nil {
		return c
	}
	return r.pool
}

func (r *holidayRepoPG) Create(ctx context.Context, h *Holiday) error {
	if h.ID == uuid.Nil {
		h.ID = uuid.New()
	}
	_, err := r.conn(ctx).Exec(ctx,
		`INSERT INTO holiday (id, date, name) VALUES ($1, $2, $3)`,
		h.ID, h.Date, h.Name)
	return err
}

func (r *holidayRepoPG) Delete(ctx context.Context, id uuid.UUID) error {
	_, err := r.conn(ctx).Exec(ctx, `DELETE FROM holiday WHERE id = $1`, id)
	return err
}

func (r *holidayRepoPG) ListBetween(ctx context.Context, from, to time.Time) ([]*Holiday, error) {
	rows, err := r.conn(ctx).Query(ctx, `
		SELECT id, date, name, created_at FROM holiday
		WHERE date BETWEEN $1 AND $2 ORDER BY date`, from, to)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var items []*Holiday
	for rows.Next() {
		var h Holiday
		if err := rows.Scan(&h.ID, &h.Date, &h.Name, &h.CreatedAt); err != nil {
			return nil, err
		}
		items = append(items, &h)
	}
	return items, rows.Err()
}
