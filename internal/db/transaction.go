package db

import (
	"context"
	"database/sql"
	"errors"
	"strings"
	"time"

	"modernc.org/sqlite"
	sqlite3 "modernc.org/sqlite/lib"
)

// retryPolicy bounds how long a write waits out another process holding the
// history file's write lock.
type retryPolicy struct {
	attempts int
	backoff  time.Duration
	ceiling  time.Duration
}

var defaultRetry = retryPolicy{
	attempts: 4,
	backoff:  25 * time.Millisecond,
	ceiling:  400 * time.Millisecond,
}

// WithRetry overrides how often a busy write is retried and the first pause
// between attempts. Pauses double up to eight times the first one.
func WithRetry(attempts int, backoff time.Duration) Option {
	return func(db *DB) {
		if attempts > 0 {
			db.retry.attempts = attempts
		}
		if backoff > 0 {
			db.retry.backoff = backoff
			db.retry.ceiling = 8 * backoff
		}
	}
}

// TransactionWithRetry runs fn in a transaction, starting over while another
// writer holds the database.
func (db *DB) TransactionWithRetry(ctx context.Context, fn func(*sql.Tx) error) error {
	return db.whileBusy(ctx, "transaction", func() error {
		return db.Transaction(ctx, fn)
	})
}

// execWithRetry is the single statement form used by repository writes.
func (db *DB) execWithRetry(ctx context.Context, query string, args ...any) (sql.Result, error) {
	var res sql.Result
	err := db.whileBusy(ctx, "exec", func() error {
		var err error
		res, err = db.ExecContext(ctx, query, args...)
		return err
	})
	return res, err
}

func (db *DB) whileBusy(ctx context.Context, op string, fn func() error) error {
	p := db.retry
	pause := p.backoff
	for attempt := 1; ; attempt++ {
		if err := ctx.Err(); err != nil {
			return err
		}
		err := fn()
		if err == nil || !isBusy(err) || attempt >= p.attempts {
			return err
		}
		db.logger.Debug().Str("op", op).Int("attempt", attempt).Dur("pause", pause).Msg("database busy")
		if err := sleepWithContext(ctx, pause); err != nil {
			return err
		}
		pause = min(pause*2, p.ceiling)
	}
}

// isBusy reports whether err means the write lock was held elsewhere.
func isBusy(err error) bool {
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return false
	}
	var serr *sqlite.Error
	if errors.As(err, &serr) {
		// Extended codes carry the primary code in the low byte.
		switch serr.Code() & 0xff {
		case sqlite3.SQLITE_BUSY, sqlite3.SQLITE_LOCKED:
			return true
		}
		return false
	}
	msg := strings.ToLower(err.Error())
	return strings.Contains(msg, "database is locked") || strings.Contains(msg, "sqlite_busy")
}

func sleepWithContext(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
