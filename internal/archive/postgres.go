package archive

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rs/zerolog/log"
)

// writeRetryMax bounds retries of transient write failures.
const writeRetryMax = 10 * time.Second

// PostgresDriver is a PostgreSQL-backed Driver. Users provide their own
// instance; the connection URL comes from OPENLOT_ARCHIVE_POSTGRES_URL.
type PostgresDriver struct {
	pool *pgxpool.Pool
}

// NewPostgresDriver connects to PostgreSQL and creates the archive tables
// if they don't exist.
func NewPostgresDriver(ctx context.Context, connURL string) (*PostgresDriver, error) {
	pool, err := pgxpool.New(ctx, connURL)
	if err != nil {
		return nil, fmt.Errorf("postgres archive connect: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("postgres archive ping: %w", err)
	}

	d := &PostgresDriver{pool: pool}
	if err := d.migrate(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("postgres archive migrate: %w", err)
	}

	log.Info().Msg("Postgres archive driver initialized")
	return d, nil
}

func (d *PostgresDriver) migrate(ctx context.Context) error {
	ddl := `
		CREATE TABLE IF NOT EXISTS ol_archive (
			key        TEXT PRIMARY KEY,
			value      JSONB NOT NULL,
			tags       TEXT[] NOT NULL DEFAULT '{}',
			expires_at TIMESTAMPTZ,
			created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
		);

		CREATE INDEX IF NOT EXISTS idx_ol_archive_tags ON ol_archive USING GIN (tags);
		CREATE INDEX IF NOT EXISTS idx_ol_archive_expiry ON ol_archive (expires_at);

		CREATE TABLE IF NOT EXISTS ol_counters (
			key   TEXT PRIMARY KEY,
			value BIGINT NOT NULL DEFAULT 0
		);
	`
	_, err := d.pool.Exec(ctx, ddl)
	return err
}

func (d *PostgresDriver) Kind() string { return "postgres" }

func (d *PostgresDriver) Set(ctx context.Context, key string, value []byte, opts SetOptions) error {
	var expiresAt *time.Time
	if opts.TTL > 0 {
		t := time.Now().Add(opts.TTL)
		expiresAt = &t
	}
	tags := opts.Tags
	if tags == nil {
		tags = []string{}
	}

	// Transient failures (connection blips, failovers) are retried with
	// exponential backoff; permanent errors surface immediately via the
	// context deadline.
	op := func() error {
		_, err := d.pool.Exec(ctx, `
			INSERT INTO ol_archive (key, value, tags, expires_at)
			VALUES ($1, $2, $3, $4)
			ON CONFLICT (key) DO UPDATE
			SET value = EXCLUDED.value, tags = EXCLUDED.tags, expires_at = EXCLUDED.expires_at
		`, key, value, tags, expiresAt)
		return err
	}

	bo := backoff.NewExponentialBackOff()
	bo.MaxElapsedTime = writeRetryMax
	if err := backoff.Retry(op, backoff.WithContext(bo, ctx)); err != nil {
		return fmt.Errorf("postgres archive set %s: %w", key, err)
	}
	return nil
}

func (d *PostgresDriver) Get(ctx context.Context, key string) ([]byte, error) {
	var value []byte
	err := d.pool.QueryRow(ctx, `
		SELECT value FROM ol_archive
		WHERE key = $1 AND (expires_at IS NULL OR expires_at > NOW())
	`, key).Scan(&value)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, &ErrKeyNotFound{Key: key}
	}
	if err != nil {
		return nil, fmt.Errorf("postgres archive get %s: %w", key, err)
	}
	return value, nil
}

func (d *PostgresDriver) ListTag(ctx context.Context, tag string) ([][]byte, error) {
	rows, err := d.pool.Query(ctx, `
		SELECT value FROM ol_archive
		WHERE $1 = ANY(tags) AND (expires_at IS NULL OR expires_at > NOW())
		ORDER BY created_at ASC
	`, tag)
	if err != nil {
		return nil, fmt.Errorf("postgres archive list %s: %w", tag, err)
	}
	defer rows.Close()

	var out [][]byte
	for rows.Next() {
		var value []byte
		if err := rows.Scan(&value); err != nil {
			return nil, fmt.Errorf("postgres archive scan: %w", err)
		}
		out = append(out, value)
	}
	return out, rows.Err()
}

func (d *PostgresDriver) Incr(ctx context.Context, key string) (int64, error) {
	var value int64
	err := d.pool.QueryRow(ctx, `
		INSERT INTO ol_counters (key, value) VALUES ($1, 1)
		ON CONFLICT (key) DO UPDATE SET value = ol_counters.value + 1
		RETURNING value
	`, key).Scan(&value)
	if err != nil {
		return 0, fmt.Errorf("postgres archive incr %s: %w", key, err)
	}
	return value, nil
}

func (d *PostgresDriver) Close(_ context.Context) error {
	d.pool.Close()
	return nil
}
