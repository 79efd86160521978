package database

import (
	"context"
	"fmt"
)

var migrations = []struct {
	name  string
	query string
}{
	{"research_runs table", `
		CREATE TABLE IF NOT EXISTS research_runs (
			id UUID PRIMARY KEY,
			topic TEXT NOT NULL,
			status TEXT NOT NULL DEFAULT 'pending',
			tasks JSONB NOT NULL DEFAULT '[]',
			report TEXT NOT NULL DEFAULT '',
			error TEXT NOT NULL DEFAULT '',
			created_at TIMESTAMP WITH TIME ZONE DEFAULT NOW(),
			updated_at TIMESTAMP WITH TIME ZONE DEFAULT NOW()
		)`},
	{"run_logs table", `
		CREATE TABLE IF NOT EXISTS run_logs (
			id BIGSERIAL PRIMARY KEY,
			run_id UUID NOT NULL REFERENCES research_runs(id) ON DELETE CASCADE,
			timestamp TIMESTAMP WITH TIME ZONE DEFAULT NOW(),
			level TEXT NOT NULL,
			message TEXT NOT NULL,
			metadata JSONB
		)`},
	{"run_logs index", `CREATE INDEX IF NOT EXISTS idx_run_logs_run_id ON run_logs(run_id, id)`},
	{"research_runs index", `CREATE INDEX IF NOT EXISTS idx_research_runs_created_at ON research_runs(created_at DESC)`},
}

// InitSchema creates the run history tables inside one transaction.
func (db *PostgresDB) InitSchema(ctx context.Context) error {
	tx, err := db.Pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("failed to begin schema transaction: %w", err)
	}
	defer tx.Rollback(ctx) //nolint:errcheck

	for _, m := range migrations {
		if _, err := tx.Exec(ctx, m.query); err != nil {
			return fmt.Errorf("failed to create %s: %w", m.name, err)
		}
	}
	return tx.Commit(ctx)
}
