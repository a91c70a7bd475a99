package database

import (
	"context"
	stderrors "errors"
	"strings"
	"time"

	"queuesync/internal/constants"
	"queuesync/internal/models"

	"github.com/cenkalti/backoff/v5"
	"github.com/mattn/go-sqlite3"
)

// retryPolicy bounds how long a statement is retried while SQLite reports
// the database busy or locked.
type retryPolicy struct {
	initial     time.Duration
	max         time.Duration
	maxAttempts uint
}

func newRetryPolicy(cfg models.RetryConfig) retryPolicy {
	p := retryPolicy{
		initial:     time.Duration(cfg.InitialBackoffMs) * time.Millisecond,
		max:         time.Duration(cfg.MaxBackoffMs) * time.Millisecond,
		maxAttempts: uint(max(cfg.MaxAttempts, 1)),
	}
	if p.initial <= 0 {
		p.initial = constants.DefaultRetryBackoffMs * time.Millisecond
	}
	if p.max < p.initial {
		p.max = p.initial
	}
	return p
}

func (p retryPolicy) backOff() backoff.BackOff {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = p.initial
	b.MaxInterval = p.max
	return b
}

// retryable runs op until it succeeds, fails with a non-retryable error,
// or the attempt budget is spent.
func retryable[T any](ctx context.Context, p retryPolicy, op func() (T, error)) (T, error) {
	return backoff.Retry(ctx, func() (T, error) {
		v, err := op()
		if err != nil && !isRetryableDBError(err) {
			return v, backoff.Permanent(err)
		}
		return v, err
	}, backoff.WithBackOff(p.backOff()), backoff.WithMaxTries(p.maxAttempts))
}

func retryableNoReturn(ctx context.Context, p retryPolicy, op func() error) error {
	_, err := retryable(ctx, p, func() (struct{}, error) {
		return struct{}{}, op()
	})
	return err
}

// isRetryableDBError reports SQLITE_BUSY and SQLITE_LOCKED. Everything
// else (constraints, schema, cancellation) fails immediately.
func isRetryableDBError(err error) bool {
	if err == nil {
		return false
	}
	if stderrors.Is(err, context.Canceled) || stderrors.Is(err, context.DeadlineExceeded) {
		return false
	}

	var sqliteErr sqlite3.Error
	if stderrors.As(err, &sqliteErr) {
		return sqliteErr.Code == sqlite3.ErrBusy || sqliteErr.Code == sqlite3.ErrLocked
	}

	errStr := err.Error()
	return strings.Contains(errStr, "database is locked") || strings.Contains(errStr, "database table is locked")
}
