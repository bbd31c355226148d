package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite"
)

// RunStatus is the lifecycle state of a generation run.
type RunStatus string

const (
	RunRunning   RunStatus = "running"
	RunSucceeded RunStatus = "succeeded"
	RunFailed    RunStatus = "failed"
	RunStopped   RunStatus = "stopped"
)

// Run records one local generation task.
type Run struct {
	TaskID         string
	AgentID        string
	ConversationID string
	MessageID      string
	Provider       string
	Model          string
	Status         RunStatus
	Error          string
	ToolCalls      int
	StartedAt      time.Time
	FinishedAt     time.Time // zero while running
}

// RunLog stores runs of local agents in SQLite.
type RunLog struct {
	db *sql.DB
}

func NewRunLog(dataDir string) (*RunLog, error) {
	dbPath := filepath.Join(dataDir, "runs.db")

	db, err := sql.Open("sqlite", dbPath+"?_time_format=sqlite")
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// One writer at a time; concurrent sends would otherwise hit SQLITE_BUSY.
	db.SetMaxOpenConns(1)

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	log := &RunLog{db: db}
	if err := log.initialize(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to initialize database: %w", err)
	}

	return log, nil
}

func (l *RunLog) initialize() error {
	schema := `
	CREATE TABLE IF NOT EXISTS runs (
		task_id TEXT PRIMARY KEY,
		agent_id TEXT NOT NULL,
		conversation_id TEXT NOT NULL,
		message_id TEXT NOT NULL,
		provider TEXT NOT NULL,
		model TEXT NOT NULL,
		status TEXT NOT NULL,
		error TEXT NOT NULL DEFAULT '',
		tool_calls INTEGER NOT NULL DEFAULT 0,
		started_at DATETIME NOT NULL,
		finished_at DATETIME
	);
	CREATE INDEX IF NOT EXISTS idx_runs_agent ON runs(agent_id, started_at);
	`

	_, err := l.db.Exec(schema)
	return err
}

// Start records a run in the running state.
func (l *RunLog) Start(ctx context.Context, run Run) error {
	if run.StartedAt.IsZero() {
		run.StartedAt = time.Now()
	}

	query := `
	INSERT INTO runs (task_id, agent_id, conversation_id, message_id, provider, model, status, started_at)
	VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	`

	_, err := l.db.ExecContext(ctx, query,
		run.TaskID,
		run.AgentID,
		run.ConversationID,
		run.MessageID,
		run.Provider,
		run.Model,
		RunRunning,
		run.StartedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to record run %s: %w", run.TaskID, err)
	}
	return nil
}

// Finish moves a running run to its final status.
func (l *RunLog) Finish(ctx context.Context, taskID string, status RunStatus, toolCalls int, errMsg string) error {
	query := `
	UPDATE runs
	SET status = ?, error = ?, tool_calls = ?, finished_at = ?
	WHERE task_id = ? AND status = ?
	`

	result, err := l.db.ExecContext(ctx, query, status, errMsg, toolCalls, time.Now(), taskID, RunRunning)
	if err != nil {
		return fmt.Errorf("failed to finish run: %w", err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to check affected rows: %w", err)
	}
	if rows == 0 {
		return fmt.Errorf("run %s not found or already finished", taskID)
	}
	return nil
}

const runColumns = `task_id, agent_id, conversation_id, message_id, provider, model, status, error, tool_calls, started_at, finished_at`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanRun(row rowScanner) (Run, error) {
	var (
		run      Run
		finished sql.NullTime
	)
	err := row.Scan(
		&run.TaskID,
		&run.AgentID,
		&run.ConversationID,
		&run.MessageID,
		&run.Provider,
		&run.Model,
		&run.Status,
		&run.Error,
		&run.ToolCalls,
		&run.StartedAt,
		&finished,
	)
	if finished.Valid {
		run.FinishedAt = finished.Time
	}
	return run, err
}

// Get returns the run with the given task id, or nil if there is none.
func (l *RunLog) Get(ctx context.Context, taskID string) (*Run, error) {
	row := l.db.QueryRowContext(ctx, `SELECT `+runColumns+` FROM runs WHERE task_id = ?`, taskID)

	run, err := scanRun(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &run, nil
}

// Recent lists the latest runs of an agent, newest first.
func (l *RunLog) Recent(ctx context.Context, agentID string, limit int) ([]Run, error) {
	if limit <= 0 {
		limit = 20
	}

	rows, err := l.db.QueryContext(ctx,
		`SELECT `+runColumns+` FROM runs WHERE agent_id = ? ORDER BY started_at DESC LIMIT ?`,
		agentID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var runs []Run
	for rows.Next() {
		run, err := scanRun(rows)
		if err != nil {
			continue
		}
		runs = append(runs, run)
	}
	return runs, rows.Err()
}

// MarkInterrupted fails every run still marked running. Called at startup:
// a run can only be running if a previous process died mid-generation.
func (l *RunLog) MarkInterrupted(ctx context.Context) (int64, error) {
	result, err := l.db.ExecContext(ctx,
		`UPDATE runs SET status = ?, error = ?, finished_at = ? WHERE status = ?`,
		RunFailed, "interrupted", time.Now(), RunRunning)
	if err != nil {
		return 0, fmt.Errorf("failed to mark interrupted runs: %w", err)
	}
	return result.RowsAffected()
}

func (l *RunLog) Close() error {
	if l.db != nil {
		return l.db.Close()
	}
	return nil
}
