package database

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/mikeboe/research-assistant/pkg/research"
)

var ErrRunNotFound = errors.New("run not found")

// StatusPending is the status of a run that has not started planning yet.
// Afterwards the status follows research.Phase.
const StatusPending = "pending"

// Run is the stored record of one background research run.
type Run struct {
	ID        uuid.UUID               `json:"id"`
	Topic     string                  `json:"topic"`
	Status    string                  `json:"status"`
	Tasks     []research.ResearchTask `json:"tasks"`
	Report    string                  `json:"report,omitempty"`
	Error     string                  `json:"error,omitempty"`
	CreatedAt time.Time               `json:"created_at"`
	UpdatedAt time.Time               `json:"updated_at"`
}

type LogEntry struct {
	ID        int64           `json:"id"`
	Timestamp time.Time       `json:"timestamp"`
	Level     string          `json:"level"`
	Message   string          `json:"message"`
	Metadata  json.RawMessage `json:"metadata"`
}

const runColumns = `id, topic, status, tasks, report, error, created_at, updated_at`

func (db *PostgresDB) CreateRun(ctx context.Context, topic string) (*Run, error) {
	query := `
		INSERT INTO research_runs (id, topic, status)
		VALUES ($1, $2, $3)
		RETURNING ` + runColumns

	run, err := scanRun(db.Pool.QueryRow(ctx, query, uuid.New(), topic, StatusPending))
	if err != nil {
		return nil, fmt.Errorf("failed to create run: %w", err)
	}
	return run, nil
}

func (db *PostgresDB) UpdateRunStatus(ctx context.Context, id uuid.UUID, status string) error {
	_, err := db.Pool.Exec(ctx,
		"UPDATE research_runs SET status = $2, updated_at = NOW() WHERE id = $1", id, status)
	if err != nil {
		return fmt.Errorf("failed to update run status: %w", err)
	}
	return nil
}

// CompleteRun stores the task board and report of a finished run.
func (db *PostgresDB) CompleteRun(ctx context.Context, id uuid.UUID, tasks []research.ResearchTask, report string) error {
	tasksJSON, err := json.Marshal(tasks)
	if err != nil {
		return fmt.Errorf("failed to marshal tasks: %w", err)
	}
	_, err = db.Pool.Exec(ctx, `
		UPDATE research_runs
		SET status = $2, tasks = $3, report = $4, updated_at = NOW()
		WHERE id = $1`,
		id, string(research.PhaseDone), tasksJSON, report)
	if err != nil {
		return fmt.Errorf("failed to complete run: %w", err)
	}
	return nil
}

func (db *PostgresDB) FailRun(ctx context.Context, id uuid.UUID, reason string) error {
	_, err := db.Pool.Exec(ctx, `
		UPDATE research_runs
		SET status = $2, error = $3, updated_at = NOW()
		WHERE id = $1`,
		id, string(research.PhaseFailed), reason)
	if err != nil {
		return fmt.Errorf("failed to mark run failed: %w", err)
	}
	return nil
}

func (db *PostgresDB) GetRun(ctx context.Context, id uuid.UUID) (*Run, error) {
	query := `SELECT ` + runColumns + ` FROM research_runs WHERE id = $1`
	run, err := scanRun(db.Pool.QueryRow(ctx, query, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrRunNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get run: %w", err)
	}
	return run, nil
}

// ListRuns returns the most recent runs first.
func (db *PostgresDB) ListRuns(ctx context.Context, limit int) ([]Run, error) {
	if limit <= 0 {
		limit = 50
	}
	query := `SELECT ` + runColumns + ` FROM research_runs ORDER BY created_at DESC LIMIT $1`
	rows, err := db.Pool.Query(ctx, query, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list runs: %w", err)
	}
	defer rows.Close()

	runs := []Run{}
	for rows.Next() {
		run, err := scanRun(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan run: %w", err)
		}
		runs = append(runs, *run)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating runs: %w", err)
	}
	return runs, nil
}

func (db *PostgresDB) AppendLog(ctx context.Context, runID uuid.UUID, at time.Time, level, message string, metadata json.RawMessage) error {
	_, err := db.Pool.Exec(ctx, `
		INSERT INTO run_logs (run_id, timestamp, level, message, metadata)
		VALUES ($1, $2, $3, $4, $5)`,
		runID, at, level, message, metadata)
	if err != nil {
		return fmt.Errorf("failed to insert log: %w", err)
	}
	return nil
}

func (db *PostgresDB) ListLogs(ctx context.Context, runID uuid.UUID) ([]LogEntry, error) {
	rows, err := db.Pool.Query(ctx, `
		SELECT id, timestamp, level, message, metadata
		FROM run_logs
		WHERE run_id = $1
		ORDER BY id ASC`, runID)
	if err != nil {
		return nil, fmt.Errorf("failed to get logs: %w", err)
	}
	defer rows.Close()

	logs := []LogEntry{}
	for rows.Next() {
		var l LogEntry
		if err := rows.Scan(&l.ID, &l.Timestamp, &l.Level, &l.Message, &l.Metadata); err != nil {
			return nil, fmt.Errorf("failed to scan log: %w", err)
		}
		logs = append(logs, l)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating logs: %w", err)
	}
	return logs, nil
}

func scanRun(row pgx.Row) (*Run, error) {
	var run Run
	var tasksJSON []byte
	if err := row.Scan(&run.ID, &run.Topic, &run.Status, &tasksJSON, &run.Report, &run.Error, &run.CreatedAt, &run.UpdatedAt); err != nil {
		return nil, err
	}
	run.Tasks = []research.ResearchTask{}
	if len(tasksJSON) > 0 {
		if err := json.Unmarshal(tasksJSON, &run.Tasks); err != nil {
			return nil, fmt.Errorf("failed to unmarshal tasks: %w", err)
		}
	}
	return &run, nil
}
