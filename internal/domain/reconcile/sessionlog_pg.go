package reconcile

import (
	"context"
	"errors"
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

type sessionLogPG struct{ pool *pgxpool.Pool }

func NewSessionLogPG(pool *pgxpool.Pool) SessionLog { return &sessionLogPG{pool: pool} }

func (r *sessionLogPG) conn(ctx context.Context) queryable {
	if c := db.ConnFromContext(ctx); c != nil {
		return c
	}
	return r.pool
}

const sessionCols = `id, patient_id, therapist_id, discipline_id, performed_at,
	duration_minutes, notes, created_at`

func scanSession(row pgx.Row) (*PerformedSession, error) {
	var s PerformedSession
	err := row.Scan(&s.ID, &s.PatientID, &s.TherapistID, &s.DisciplineID, &s.PerformedAt,
		&s.DurationMinutes, &s.Notes, &s.CreatedAt)
	return &s, err
}

func (r *sessionLogPG) GetByID(ctx context.Context, id uuid.UUID) (*PerformedSession, error) {
	s, err := scanSession(r.conn(ctx).QueryRow(ctx,
		`SELECT `+sessionCols+` FROM performed_session WHERE id = $1`, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrSessionNotFound
	}
	if err != nil {
		return nil, err
	}
	return s, nil
}

func (r *sessionLogPG) ListBetween(ctx context.Context, from, to time.Time) ([]*PerformedSession, error) {
	rows, err := r.conn(ctx).Query(ctx, `
		SELECT `+sessionCols+` FROM performed_session
		WHERE performed_at BETWEEN $1 AND $2
		ORDER BY performed_at`, from, to)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var items []*PerformedSession
	for rows.Next() {
		s, err := scanSession(rows)
		if err != nil {
			return nil, err
		}
		items = append(items, s)
	}
	return items, rows.Err()
}
