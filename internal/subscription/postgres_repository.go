package subscription

import (
	"context"

	"github.com/jackc/pgx/v5/pgxpool"
)

// PostgresRepository is a PostgreSQL implementation of Repository.
type PostgresRepository struct {
	pool *pgxpool.Pool
}

// NewPostgresRepository creates a new PostgreSQL subscription repository.
func NewPostgresRepository(pool *pgxpool.Pool) *PostgresRepository {
	return &PostgresRepository{pool: pool}
}

// Upsert creates or replaces the subscription for its endpoint.
// Returns true if a new row was inserted, false if an existing row was updated.
func (r *PostgresRepository) Upsert(ctx context.Context, sub *Subscription) (bool, error) {
	// The endpoint is the conflict target: re-subscribing overwrites keys and
	// metadata instead of creating a duplicate row.
	query := `
		INSERT INTO push_subscriptions (endpoint, p256dh, auth, user_id, platform, user_agent, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		ON CONFLICT (endpoint) DO UPDATE SET
			p256dh = EXCLUDED.p256dh,
			auth = EXCLUDED.auth,
			user_id = EXCLUDED.user_id,
			platform = EXCLUDED.platform,
			user_agent = EXCLUDED.user_agent,
			updated_at = EXCLUDED.updated_at
		RETURNING (xmax = 0) AS inserted
	`

	var inserted bool
	err := r.pool.QueryRow(ctx, query,
		sub.Endpoint,
		sub.Keys.P256dh,
		sub.Keys.Auth,
		sub.UserID,
		sub.Platform,
		sub.UserAgent,
		sub.CreatedAt,
		sub.UpdatedAt,
	).Scan(&inserted)
	if err != nil {
		return false, err
	}

	return inserted, nil
}

// DeleteByEndpoint removes the subscription for an endpoint.
func (r *PostgresRepository) DeleteByEndpoint(ctx context.Context, endpoint string) error {
	query := `DELETE FROM push_subscriptions WHERE endpoint = $1`
	_, err := r.pool.Exec(ctx, query, endpoint)
	return err
}

// DeleteByEndpoints removes every listed endpoint in a single statement.
func (r *PostgresRepository) DeleteByEndpoints(ctx context.Context, endpoints []string) (int, error) {
	if len(endpoints) == 0 {
		return 0, nil
	}

	query := `DELETE FROM push_subscriptions WHERE endpoint = ANY($1)`
	result, err := r.pool.Exec(ctx, query, endpoints)
	if err != nil {
		return 0, err
	}

	return int(result.RowsAffected()), nil
}

// ListAll returns every stored subscription.
func (r *PostgresRepository) ListAll(ctx context.Context) ([]*Subscription, error) {
	query := `
		SELECT endpoint, p256dh, auth, user_id, platform, user_agent, created_at, updated_at
		FROM push_subscriptions
		ORDER BY endpoint
	`

	rows, err := r.pool.Query(ctx, query)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var subs []*Subscription
	for rows.Next() {
		var sub Subscription
		err := rows.Scan(
			&sub.Endpoint,
			&sub.Keys.P256dh,
			&sub.Keys.Auth,
			&sub.UserID,
			&sub.Platform,
			&sub.UserAgent,
			&sub.CreatedAt,
			&sub.UpdatedAt,
		)
		if err != nil {
			return nil, err
		}
		subs = append(subs, &sub)
	}

	if err := rows.Err(); err != nil {
		return nil, err
	}

	return subs, nil
}

// Count returns the number of stored subscriptions.
func (r *PostgresRepository) Count(ctx context.Context) (int, error) {
	var n int
	err := r.pool.QueryRow(ctx, `SELECT count(*) FROM push_subscriptions`).Scan(&n)
	return n, err
}

// Ensure PostgresRepository implements Repository interface.
var _ Repository = (*PostgresRepository)(nil)
