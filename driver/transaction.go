package driver

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"go.uber.org/zap"
)

// Transactor runs fn inside a database transaction. fn's error rolls the transaction back
// and is returned unchanged.
type Transactor interface {
	ExecuteTransaction(ctx context.Context, fn func(tx pgx.Tx) error) error
	ExecuteSerializableTransaction(ctx context.Context, fn func(tx pgx.Tx) error) error
	ExecuteReadOnlyTransaction(ctx context.Context, fn func(tx pgx.Tx) error) error
}

const (
	defaultTxTimeout = 10 * time.Second
	maxTxAttempts    = 3
	retryBaseDelay   = 20 * time.Millisecond
)

type TransactionManager struct {
	pool    PostgresPool
	logger  *zap.Logger
	timeout time.Duration
}

func NewTransactionManager(pool PostgresPool, logger *zap.Logger) *TransactionManager {
	return &TransactionManager{
		pool:    pool,
		logger:  logger,
		timeout: defaultTxTimeout,
	}
}

// ExecuteTransaction runs fn at read committed isolation. A deadlock aborts only one of the
// transactions involved, so fn is retried when postgres picks this one.
func (tm *TransactionManager) ExecuteTransaction(ctx context.Context, fn func(tx pgx.Tx) error) error {
	return tm.retry(ctx, pgx.TxOptions{IsoLevel: pgx.ReadCommitted}, isDeadlock, fn)
}

// ExecuteSerializableTransaction runs fn at serializable isolation and retries it when
// postgres reports a serialization failure or deadlock.
func (tm *TransactionManager) ExecuteSerializableTransaction(ctx context.Context, fn func(tx pgx.Tx) error) error {
	return tm.retry(ctx, pgx.TxOptions{IsoLevel: pgx.Serializable}, isRetryable, fn)
}

// ExecuteReadOnlyTransaction runs fn against a single repeatable read snapshot.
func (tm *TransactionManager) ExecuteReadOnlyTransaction(ctx context.Context, fn func(tx pgx.Tx) error) error {
	return tm.execute(ctx, pgx.TxOptions{IsoLevel: pgx.RepeatableRead, AccessMode: pgx.ReadOnly}, fn)
}

func (tm *TransactionManager) retry(ctx context.Context, opts pgx.TxOptions, retryable func(error) bool, fn func(tx pgx.Tx) error) error {
	var err error
	for attempt := 1; attempt <= maxTxAttempts; attempt++ {
		err = tm.execute(ctx, opts, fn)
		if err == nil || !retryable(err) {
			return err
		}

		tm.logger.Warn("retrying transaction",
			zap.String("isolation", string(opts.IsoLevel)),
			zap.Int("attempt", attempt),
			zap.Error(err))
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(time.Duration(attempt) * retryBaseDelay):
		}
	}
	return err
}

func (tm *TransactionManager) execute(ctx context.Context, opts pgx.TxOptions, fn func(tx pgx.Tx) error) (err error) {
	ctx, cancel := context.WithTimeout(ctx, tm.timeout)
	defer cancel()

	tx, err := tm.pool.BeginTx(ctx, opts)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}

	defer func() {
		if p := recover(); p != nil {
			_ = tx.Rollback(context.Background())
			panic(p)
		}
	}()

	if err = fn(tx); err != nil {
		if rbErr := tx.Rollback(context.Background()); rbErr != nil {
			tm.logger.Error("failed to rollback transaction", zap.Error(rbErr))
		}
		return err
	}

	if err = tx.Commit(ctx); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}
