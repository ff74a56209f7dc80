package db

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

// serializationFailure is the SQLSTATE Postgres raises when a serializable
// transaction loses a concurrency race and must be retried.
const serializationFailure = "40001"

const maxTxAttempts = 3

// txBeginner is implemented by pools and acquired connections.
type txBeginner interface {
	BeginTx(ctx context.Context, txOptions pgx.TxOptions) (pgx.Tx, error)
}

// IsSerializationFailure reports whether err is a Postgres serialization
// failure, meaning the whole transaction should be retried.
func IsSerializationFailure(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == serializationFailure
}

// WithTx runs fn inside a serializable transaction and commits when fn
// returns nil. Serializable isolation is what lets a read-then-insert
// sequence (the conflict check followed by the booking) refuse a
// concurrent booking of the same free slot; on a serialization failure
// the transaction is retried up to maxTxAttempts times, so fn must be
// safe to re-run. The transaction is stored in the context so
// repositories called from fn share it through ConnFromContext. If the
// context already carries a clinic-scoped connection the transaction
// begins there, keeping the clinic search_path; if it already carries a
// transaction, fn runs in a savepoint without retries.
func WithTx(ctx context.Context, pool *pgxpool.Pool, fn func(ctx context.Context) error) error {
	if q := ConnFromContext(ctx); q != nil {
		if tx, ok := q.(pgx.Tx); ok {
			return withSavepoint(ctx, tx, fn)
		}
		if b, ok := q.(txBeginner); ok {
			return withSerializable(ctx, b, fn)
		}
	}
	return withSerializable(ctx, pool, fn)
}

func withSerializable(ctx context.Context, b txBeginner, fn func(ctx context.Context) error) error {
	var err error
	for attempt := 0; attempt < maxTxAttempts; attempt++ {
		err = runTxOnce(ctx, b, fn)
		if !IsSerializationFailure(err) {
			return err
		}
	}
	return fmt.Errorf("transaction retries exhausted: %w", err)
}

func runTxOnce(ctx context.Context, b txBeginner, fn func(ctx context.Context) error) error {
	tx, err := b.BeginTx(ctx, pgx.TxOptions{IsoLevel: pgx.Serializable})
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	txCtx := context.WithValue(ctx, DBConnKey, Queryable(tx))
	if err := fn(txCtx); err != nil {
		return err
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit transaction: %w", err)
	}
	return nil
}

func withSavepoint(ctx context.Context, outer pgx.Tx, fn func(ctx context.Context) error) error {
	tx, err := outer.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin savepoint: %w", err)
	}
	defer tx.Rollback(ctx)

	txCtx := context.WithValue(ctx, DBConnKey, Queryable(tx))
	if err := fn(txCtx); err != nil {
		return err
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("release savepoint: %w", err)
	}
	return nil
}
