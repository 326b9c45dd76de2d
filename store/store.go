package store

import (
	"context"
	"errors"
	"fmt"

	"newskeep/config"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	pgxvector "github.com/pgvector/pgvector-go/pgx"
)

// Sentinel errors callers branch on.
var (
	// ErrDuplicateIdentity is returned when a save violates the
	// (user, source_oid, source_aid) uniqueness constraint. The caller must
	// run the duplicate-merge procedure, never overwrite.
	ErrDuplicateIdentity = errors.New("duplicate source identity")

	// ErrDuplicateRowGone is returned when the conflicting row cannot be
	// located during merge resolution.
	ErrDuplicateRowGone = errors.New("conflicting duplicate row not found")

	// ErrNotFound is returned for lookups of absent rows.
	ErrNotFound = errors.New("row not found")
)

// Postgres is the article and profile store. All mutations run inside short
// transactions with row-level locks; no network call ever executes while a
// lock is held.
type Postgres struct {
	pool *pgxpool.Pool
}

// New connects to Postgres and ensures the schema exists.
func New(ctx context.Context, dsn string) (*Postgres, error) {
	cfg, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, fmt.Errorf("parse postgres dsn: %w", err)
	}
	cfg.AfterConnect = func(ctx context.Context, conn *pgx.Conn) error {
		// The vector extension must exist before its OID can be registered.
		if _, err := conn.Exec(ctx, `CREATE EXTENSION IF NOT EXISTS vector`); err != nil {
			return err
		}
		return pgxvector.RegisterTypes(ctx, conn)
	}

	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("connect postgres: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping postgres: %w", err)
	}

	s := &Postgres{pool: pool}
	if err := s.ensureSchema(ctx); err != nil {
		pool.Close()
		return nil, err
	}
	return s, nil
}

// Close releases the connection pool.
func (s *Postgres) Close() {
	s.pool.Close()
}

var schema = fmt.Sprintf(`
CREATE EXTENSION IF NOT EXISTS vector;

CREATE TABLE IF NOT EXISTS articles (
	id                  BIGSERIAL PRIMARY KEY,
	user_id             BIGINT NOT NULL,
	url                 TEXT NOT NULL,
	source_oid          TEXT,
	source_aid          TEXT,
	title               TEXT NOT NULL DEFAULT '',
	content             TEXT NOT NULL DEFAULT '',
	summary             TEXT NOT NULL DEFAULT '',
	tags                JSONB NOT NULL DEFAULT '[]',
	embedding           vector(%[1]d),
	publisher           TEXT NOT NULL DEFAULT '',
	published_at        TIMESTAMPTZ,
	image_url           TEXT NOT NULL DEFAULT '',
	status              TEXT NOT NULL DEFAULT 'PENDING',
	recommendation_kind TEXT,
	failed_reason       TEXT NOT NULL DEFAULT '',
	retry_count         INT NOT NULL DEFAULT 0,
	crawled_at          TIMESTAMPTZ,
	created_at          TIMESTAMPTZ NOT NULL DEFAULT now(),
	updated_at          TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE UNIQUE INDEX IF NOT EXISTS articles_user_identity_uniq
	ON articles (user_id, source_oid, source_aid)
	WHERE source_oid IS NOT NULL AND source_aid IS NOT NULL;

CREATE INDEX IF NOT EXISTS articles_user_status_idx
	ON articles (user_id, status, created_at DESC);

CREATE INDEX IF NOT EXISTS articles_embedding_idx
	ON articles USING ivfflat (embedding vector_cosine_ops) WITH (lists = 100);

CREATE TABLE IF NOT EXISTS user_profiles (
	user_id         BIGINT PRIMARY KEY,
	interest_vector vector(%[1]d),
	last_updated    TIMESTAMPTZ NOT NULL DEFAULT now()
);
`, config.EmbeddingDimensions)

func (s *Postgres) ensureSchema(ctx context.Context) error {
	if _, err := s.pool.Exec(ctx, schema); err != nil {
		return fmt.Errorf("ensure schema: %w", err)
	}
	return nil
}

// isUniqueViolation detects the Postgres unique_violation error class.
func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == "23505"
}
