package database

import (
	"context"
	"fmt"
	"regexp"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// PostgresDB wraps the database connection pool
type PostgresDB struct {
	Pool *pgxpool.Pool
}

// NewPostgresDB creates a new PostgreSQL database connection
func NewPostgresDB(ctx context.Context, databaseURL string) (*PostgresDB, error) {
	config, err := pgxpool.ParseConfig(databaseURL)
	if err != nil {
		return nil, fmt.Errorf("failed to parse database URL: %w", err)
	}

	// Background runs each hold a connection for their log writes.
	config.MaxConns = 16
	config.MinConns = 2

	pool, err := pgxpool.NewWithConfig(ctx, config)
	if err != nil {
		return nil, fmt.Errorf("failed to create connection pool: %w", err)
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	return &PostgresDB{Pool: pool}, nil
}

func (db *PostgresDB) Close() {
	db.Pool.Close()
}

// EnsureVectorExtension ensures the pgvector extension is installed
func (db *PostgresDB) EnsureVectorExtension(ctx context.Context) error {
	if _, err := db.Pool.Exec(ctx, "CREATE EXTENSION IF NOT EXISTS vector"); err != nil {
		return fmt.Errorf("failed to create vector extension: %w", err)
	}
	return nil
}

var identifierPattern = regexp.MustCompile(`^[a-z_][a-zA-Z0-9_]{0,62}$`)

// CreateNotesTable creates the archive table for embedded note chunks.
func (db *PostgresDB) CreateNotesTable(ctx context.Context, tableName string, dimension int) error {
	if !identifierPattern.MatchString(tableName) {
		return fmt.Errorf("invalid table name %q", tableName)
	}
	table := pgx.Identifier{tableName}.Sanitize()

	query := fmt.Sprintf(`
		CREATE TABLE IF NOT EXISTS %s (
			id UUID PRIMARY KEY DEFAULT gen_random_uuid(),
			content TEXT NOT NULL,
			metadata JSONB NOT NULL DEFAULT '{}',
			embedding vector(%d),
			created_at TIMESTAMP WITH TIME ZONE DEFAULT NOW()
		)
	`, table, dimension)
	if _, err := db.Pool.Exec(ctx, query); err != nil {
		return fmt.Errorf("failed to create table %s: %w", tableName, err)
	}

	runIdx := fmt.Sprintf(`CREATE INDEX IF NOT EXISTS %s ON %s ((metadata->>'run_id'))`,
		pgx.Identifier{tableName + "_run_id_idx"}.Sanitize(), table)
	if _, err := db.Pool.Exec(ctx, runIdx); err != nil {
		return fmt.Errorf("failed to create run index on %s: %w", tableName, err)
	}

	// HNSW supports up to 2000 dimensions; larger vectors fall back to exact search.
	if dimension <= 2000 {
		vecIdx := fmt.Sprintf(`CREATE INDEX IF NOT EXISTS %s ON %s USING hnsw (embedding vector_cosine_ops)`,
			pgx.Identifier{tableName + "_embedding_idx"}.Sanitize(), table)
		if _, err := db.Pool.Exec(ctx, vecIdx); err != nil {
			return fmt.Errorf("failed to create index on %s: %w", tableName, err)
		}
	}

	return nil
}
