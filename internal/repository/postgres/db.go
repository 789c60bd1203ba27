package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/kirinyoku/tripslot/internal/repository"
)

// DB is satisfied by both *pgxpool.Pool and pgx.Tx.
type DB interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	SendBatch(ctx context.Context, b *pgx.Batch) pgx.BatchResults
}

// Retry budget for serialization failures. Concurrent bookings of one slot
// conflict on the same row and only one commits per round.
const (
	maxTxRetries    = 12
	txRetryInitial  = 5 * time.Millisecond
	txRetryMax      = 200 * time.Millisecond
	txRetryDeadline = 3 * time.Second
)

type Store struct {
	pool *pgxpool.Pool
}

func NewStore(pool *pgxpool.Pool) *Store {
	return &Store{
		pool: pool,
	}
}

func txBackOff() backoff.BackOff {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = txRetryInitial
	b.MaxInterval = txRetryMax
	b.MaxElapsedTime = txRetryDeadline
	b.RandomizationFactor = 0.5
	b.Reset()
	return backoff.WithMaxRetries(b, maxTxRetries)
}

func (s *Store) Repos() repository.Repos {
	return &repos{db: s.pool}
}

// RunTx runs fn in a SERIALIZABLE transaction. Serialization failures and
// deadlocks are retried with jittered exponential backoff until the budget
// or ctx runs out, after which the error matches repository.ErrContention.
func (s *Store) RunTx(
	ctx context.Context,
	fn func(ctx context.Context, tx repository.Repos) error,
) error {
	const op = "postgres.Store.RunTx"

	err := retryTx(ctx, txBackOff(), func() error { return s.runOnce(ctx, fn) })
	if err != nil {
		return fmt.Errorf("%s:%w", op, err)
	}
	return nil
}

func retryTx(ctx context.Context, b backoff.BackOff, attempt func() error) error {
	var last error
	err := backoff.Retry(func() error {
		last = attempt()
		if last != nil && !IsRetryable(last) {
			return backoff.Permanent(last)
		}
		return last
	}, backoff.WithContext(b, ctx))
	if err != nil && IsRetryable(last) {
		return fmt.Errorf("%w: %w", repository.ErrContention, last)
	}
	return err
}

func (s *Store) runOnce(
	ctx context.Context,
	fn func(ctx context.Context, tx repository.Repos) error,
) error {
	tx, err := s.pool.BeginTx(ctx, pgx.TxOptions{
		IsoLevel:   pgx.Serializable,
		AccessMode: pgx.ReadWrite,
	})
	if err != nil {
		return err
	}

	defer tx.Rollback(ctx)

	if err := fn(ctx, &repos{db: tx}); err != nil {
		return err
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit: %w", err)
	}

	return nil
}

type repos struct {
	db DB
}

func (r *repos) Rules() repository.RuleRepo                 { return &RuleRepo{db: r.db} }
func (r *repos) Slots() repository.SlotRepo                 { return &SlotRepo{db: r.db} }
func (r *repos) Bookings() repository.BookingRepo           { return &BookingRepo{db: r.db} }
func (r *repos) Waitlist() repository.WaitlistRepo          { return &WaitlistRepo{db: r.db} }
func (r *repos) Notifications() repository.NotificationRepo { return &NotificationRepo{db: r.db} }
func (r *repos) Refunds() repository.RefundRepo             { return &RefundRepo{db: r.db} }

// collect drains rows through scan.
func collect[T any](rows pgx.Rows, scan func(row pgx.Row) (T, error)) ([]T, error) {
	defer rows.Close()

	var out []T
	for rows.Next() {
		v, err := scan(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, v)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return out, nil
}

func isNoRows(err error) bool {
	return errors.Is(err, pgx.ErrNoRows)
}

var _ repository.Store = (*Store)(nil)
