package patient

import (
	"context"
	"errors"

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

type directoryPG struct{ pool *pgxpool.Pool }

func NewDirectoryPG(pool *pgxpool.Pool) Directory { return &directoryPG{pool: pool} }

func (r *directoryPG) conn(ctx context.Context) queryable {
	if c := db.ConnFromContext(ctx); c != nil {
		return c
	}
	return r.pool
}

func (r *directoryPG) GetPatient(ctx context.Context, id uuid.UUID) (*Patient, error) {
	var p Patient
	err := r.conn(ctx).QueryRow(ctx, `
		SELECT id, full_name, preferred_therapist_id, active, created_at
		FROM patient WHERE id = $1`, id).
		Scan(&p.ID, &p.FullName, &p.PreferredTherapistID, &p.Active, &p.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrPatientNotFound
	}
	if err != nil {
		return nil, err
	}
	return &p, nil
}

func (r *directoryPG) GetTherapist(ctx context.Context, id uuid.UUID) (*Therapist, error) {
	var t Therapist
	err := r.conn(ctx).QueryRow(ctx, `
		SELECT id, full_name, discipline_id, active, created_at
		FROM therapist WHERE id = $1`, id).
		Scan(&t.ID, &t.FullName, &t.DisciplineID, &t.Active, &t.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrTherapistNotFound
	}
	if err != nil {
		return nil, err
	}
	return &t, nil
}

func (r *directoryPG) GetDiscipline(ctx context.Context, id uuid.UUID) (*Discipline, error) {
	var d Discipline
	err := r.conn(ctx).QueryRow(ctx,
		`SELECT id, name FROM discipline WHERE id = $1`, id).
		Scan(&d.ID, &d.Name)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrDisciplineNotFound
	}
	if err != nil {
		return nil, err
	}
	return &d, nil
}
