package database

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

// DBTX is the subset of pgx operations shared by *pgxpool.Pool and pgx.Tx.
// Repositories accept it so reads can run either on the pool or inside a
// transaction.
type DBTX interface {
	Exec(ctx context.Context, sql string, arguments ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// TransactionManager hands out database transactions with the timeouts and
// isolation levels the engine requires.
type TransactionManager interface {
	// BeginTx starts a read-committed transaction (outbox relay, bookkeeping).
	BeginTx(ctx context.Context) (pgx.Tx, error)

	// BeginSerializableTx starts a SERIALIZABLE transaction with a server-side
	// statement timeout. Used by every write path that touches listing
	// commercial state.
	BeginSerializableTx(ctx context.Context) (pgx.Tx, error)
}

// PostgresTransactionManager implements TransactionManager using pgx.
type PostgresTransactionManager struct {
	pool             *pgxpool.Pool
	statementTimeout time.Duration
}

// NewPostgresTransactionManager creates a new PostgreSQL transaction manager.
// statementTimeout bounds every statement inside a serializable transaction so
// a contended write aborts instead of blocking indefinitely (0 = no timeout).
func NewPostgresTransactionManager(pool *pgxpool.Pool, statementTimeout time.Duration) *PostgresTransactionManager {
	return &PostgresTransactionManager{
		pool:             pool,
		statementTimeout: statementTimeout,
	}
}

// BeginTx starts a transaction at the default isolation level.
func (m *PostgresTransactionManager) BeginTx(ctx context.Context) (pgx.Tx, error) {
	return m.pool.Begin(ctx)
}

// BeginSerializableTx starts a SERIALIZABLE transaction and applies the
// configured statement timeout via SET LOCAL so it expires with the
// transaction.
func (m *PostgresTransactionManager) BeginSerializableTx(ctx context.Context) (pgx.Tx, error) {
	tx, err := m.pool.BeginTx(ctx, pgx.TxOptions{IsoLevel: pgx.Serializable})
	if err != nil {
		return nil, fmt.Errorf("failed to begin serializable transaction: %w", err)
	}

	if m.statementTimeout > 0 {
		timeoutMs := int(m.statementTimeout.Milliseconds())
		_, err = tx.Exec(ctx, fmt.Sprintf("SET LOCAL statement_timeout = '%dms'", timeoutMs))
		if err != nil {
			_ = tx.Rollback(ctx)
			return nil, fmt.Errorf("failed to set statement timeout: %w", err)
		}
	}

	return tx, nil
}
