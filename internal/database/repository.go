package database

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"watcher/internal/model"
)

// Repository defines the standard interface for database operations.
type Repository interface {
	Migrate(ctx context.Context) error
	LogSignal(ctx context.Context, signal model.Signal) error
}

const createSignalsTableSQL = `
CREATE TABLE IF NOT EXISTS signals (
	id          UUID PRIMARY KEY,
	symbol      VARCHAR(32) NOT NULL,
	signal_type VARCHAR(8) NOT NULL,
	price       DOUBLE PRECISION NOT NULL,
	volume      DOUBLE PRECISION NOT NULL,
	avg_volume  DOUBLE PRECISION NOT NULL,
	fired_at    TIMESTAMPTZ NOT NULL,
	reason      TEXT NOT NULL,
	created_at  TIMESTAMPTZ NOT NULL DEFAULT NOW()
);
CREATE INDEX IF NOT EXISTS signals_symbol_fired_at_idx ON signals (symbol, fired_at);`

const insertSignalSQL = `
INSERT INTO signals (id, symbol, signal_type, price, volume, avg_volume, fired_at, reason)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
ON CONFLICT (id) DO NOTHING`

// PostgresRepository archives signals in PostgreSQL.
type PostgresRepository struct {
	Pool *pgxpool.Pool
}

// NewPostgresRepository connects to dsn and verifies the connection.
func NewPostgresRepository(ctx context.Context, dsn string) (*PostgresRepository, error) {
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, fmt.Errorf("create pool: %w", err)
	}
	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := pool.Ping(pingCtx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}
	return &PostgresRepository{Pool: pool}, nil
}

// Migrate creates the signals table if it does not exist.
func (r *PostgresRepository) Migrate(ctx context.Context) error {
	if _, err := r.Pool.Exec(ctx, createSignalsTableSQL); err != nil {
		return fmt.Errorf("migrate signals table: %w", err)
	}
	return nil
}

// LogSignal stores a signal. Re-logging the same ID is a no-op.
func (r *PostgresRepository) LogSignal(ctx context.Context, signal model.Signal) error {
	_, err := r.Pool.Exec(ctx, insertSignalSQL,
		signal.ID,
		signal.Symbol,
		string(signal.SignalType),
		signal.Price,
		signal.Volume,
		signal.AvgVolume,
		time.UnixMilli(signal.Timestamp).UTC(),
		signal.Reason,
	)
	if err != nil {
		return fmt.Errorf("insert signal %s: %w", signal.ID, err)
	}
	return nil
}

// Name identifies the repository as a message sink.
func (r *PostgresRepository) Name() string {
	return "postgres"
}

// Handle archives Signal messages and ignores everything else.
func (r *PostgresRepository) Handle(ctx context.Context, msg model.Message) error {
	if msg.Type != model.MessageSignal || msg.Signal == nil {
		return nil
	}
	return r.LogSignal(ctx, *msg.Signal)
}

// Close releases the pool.
func (r *PostgresRepository) Close() {
	r.Pool.Close()
}
