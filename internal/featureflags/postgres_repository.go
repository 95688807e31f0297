package featureflags

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

const (
	selectFlagSQL = `SELECT key, value, updated_at FROM feature_flags WHERE key = $1`

	listFlagsSQL = `SELECT key, value, updated_at FROM feature_flags ORDER BY key`

	upsertFlagSQL = `
		INSERT INTO feature_flags (key, value, updated_at)
		VALUES ($1, $2, $3)
		ON CONFLICT (key) DO UPDATE SET
			value = EXCLUDED.value,
			updated_at = EXCLUDED.updated_at`
)

// PostgresRepository stores flags in the feature_flags table. Values are
// kept as JSONB so operators can edit them with plain SQL.
type PostgresRepository struct {
	pool *pgxpool.Pool
}

// NewPostgresRepository creates a repository backed by pool.
func NewPostgresRepository(pool *pgxpool.Pool) *PostgresRepository {
	return &PostgresRepository{pool: pool}
}

// Get retrieves a stored flag by key.
func (r *PostgresRepository) Get(ctx context.Context, key string) (Flag, error) {
	rows, err := r.pool.Query(ctx, selectFlagSQL, key)
	if err != nil {
		return Flag{}, err
	}
	f, err := pgx.CollectExactlyOneRow(rows, scanFlag)
	if errors.Is(err, pgx.ErrNoRows) {
		return Flag{}, ErrFlagNotFound
	}
	return f, err
}

// List returns the stored flags sorted by key.
func (r *PostgresRepository) List(ctx context.Context) ([]Flag, error) {
	rows, err := r.pool.Query(ctx, listFlagsSQL)
	if err != nil {
		return nil, err
	}
	return pgx.CollectRows(rows, scanFlag)
}

// Upsert writes flags in one transaction.
func (r *PostgresRepository) Upsert(ctx context.Context, flags ...Flag) error {
	if len(flags) == 0 {
		return nil
	}

	now := time.Now()
	batch := &pgx.Batch{}
	for _, f := range flags {
		value, err := json.Marshal(f.Enabled)
		if err != nil {
			return err
		}
		updatedAt := f.UpdatedAt
		if updatedAt.IsZero() {
			updatedAt = now
		}
		batch.Queue(upsertFlagSQL, f.Key, value, updatedAt)
	}

	return pgx.BeginFunc(ctx, r.pool, func(tx pgx.Tx) error {
		return tx.SendBatch(ctx, batch).Close()
	})
}

func scanFlag(row pgx.CollectableRow) (Flag, error) {
	var (
		f   Flag
		raw []byte
	)
	if err := row.Scan(&f.Key, &raw, &f.UpdatedAt); err != nil {
		return Flag{}, err
	}

	var value any
	if err := json.Unmarshal(raw, &value); err != nil {
		return Flag{}, fmt.Errorf("flag %q: %w", f.Key, err)
	}
	enabled, err := ParseValue(value)
	if err != nil {
		return Flag{}, fmt.Errorf("flag %q: %w", f.Key, err)
	}
	f.Enabled = enabled
	return f, nil
}

var _ Repository = (*PostgresRepository)(nil)
