package postgres

import (
	"context"
	"errors"
	"testing"

	"github.com/cenkalti/backoff/v4"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kirinyoku/tripslot/internal/repository"
)

func TestRetryTxRecoversFromSerializationFailures(t *testing.T) {
	calls := 0
	err := retryTx(context.Background(), backoff.WithMaxRetries(&backoff.ZeroBackOff{}, 5), func() error {
		calls++
		if calls < 4 {
			return &pgconn.PgError{Code: "40001"}
		}
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, 4, calls)
}

func TestRetryTxReportsContention(t *testing.T) {
	calls := 0
	err := retryTx(context.Background(), backoff.WithMaxRetries(&backoff.ZeroBackOff{}, 3), func() error {
		calls++
		return &pgconn.PgError{Code: "40001"}
	})
	require.ErrorIs(t, err, repository.ErrContention)
	var pgErr *pgconn.PgError
	assert.ErrorAs(t, err, &pgErr)
	assert.Equal(t, 4, calls)
}

func TestRetryTxStopsOnOtherErrors(t *testing.T) {
	boom := errors.New("boom")
	calls := 0
	err := retryTx(context.Background(), backoff.WithMaxRetries(&backoff.ZeroBackOff{}, 3), func() error {
		calls++
		return boom
	})
	require.ErrorIs(t, err, boom)
	assert.NotErrorIs(t, err, repository.ErrContention)
	assert.Equal(t, 1, calls)
}

func TestRetryTxStopsWhenContextDone(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	calls := 0
	err := retryTx(ctx, backoff.WithMaxRetries(&backoff.ZeroBackOff{}, 10), func() error {
		calls++
		cancel()
		return &pgconn.PgError{Code: "40P01"}
	})
	require.ErrorIs(t, err, repository.ErrContention)
	assert.Equal(t, 1, calls)
}

func TestTxBackOffIsBounded(t *testing.T) {
	b := txBackOff()
	for i := 0; i < maxTxRetries; i++ {
		d := b.NextBackOff()
		require.NotEqual(t, backoff.Stop, d)
		assert.LessOrEqual(t, d, txRetryMax+txRetryMax/2)
	}
	assert.Equal(t, backoff.Stop, b.NextBackOff())
}
