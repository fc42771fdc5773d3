// Package journal persists the runtime's durable record to SQLite:
// executions, repository changes, accepted state transitions. Values are
// serialized as canonical JSON so two runs over the same inputs produce
// byte-identical rows.
package journal

import (
	"context"
	"database/sql"
	_ "embed"
	"fmt"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"github.com/verveworks/verve/internal/repo"
	"github.com/verveworks/verve/internal/state"
	"github.com/verveworks/verve/internal/value"
)

//go:embed schema.sql
var schemaSQL string

// Journal is a SQLite-backed implementation of engine.Journal.
type Journal struct {
	db *sql.DB
}

// Open creates or opens the journal database at path. The connection is
// configured for SQLite's single-writer model:
//   - WAL mode for concurrent reads during writes
//   - NORMAL synchronous mode
//   - 5-second busy timeout
//   - foreign key enforcement
//
// Idempotent: the schema applies with IF NOT EXISTS.
func Open(path string) (*Journal, error) {
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("open journal: %w", err)
	}
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("connect journal: %w", err)
	}

	// One writer at a time avoids SQLITE_BUSY under handler concurrency.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	if err := applyPragmas(db); err != nil {
		db.Close()
		return nil, err
	}
	if _, err := db.Exec(schemaSQL); err != nil {
		db.Close()
		return nil, fmt.Errorf("apply journal schema: %w", err)
	}
	return &Journal{db: db}, nil
}

// Close closes the database connection.
func (j *Journal) Close() error {
	if j.db == nil {
		return nil
	}
	return j.db.Close()
}

func applyPragmas(db *sql.DB) error {
	pragmas := []string{
		"PRAGMA journal_mode = WAL",
		"PRAGMA synchronous = NORMAL",
		"PRAGMA busy_timeout = 5000",
		"PRAGMA foreign_keys = ON",
	}
	for _, pragma := range pragmas {
		if _, err := db.Exec(pragma); err != nil {
			return fmt.Errorf("execute %q: %w", pragma, err)
		}
	}
	return nil
}

// ExecutionStarted inserts the execution row. Duplicate ids are silently
// ignored for idempotency.
func (j *Journal) ExecutionStarted(ctx context.Context, id, featureSet, activity string, at time.Time) error {
	_, err := j.db.ExecContext(ctx, `
		INSERT INTO executions (id, feature_set, activity, started_at)
		VALUES (?, ?, ?, ?)
		ON CONFLICT(id) DO NOTHING
	`, id, featureSet, activity, at.UTC().Format(time.RFC3339Nano))
	if err != nil {
		return fmt.Errorf("write execution: %w", err)
	}
	return nil
}

// ExecutionFinished stamps the execution's end time and failure text
// ("" = success).
func (j *Journal) ExecutionFinished(ctx context.Context, id, failure string, at time.Time) error {
	_, err := j.db.ExecContext(ctx, `
		UPDATE executions SET finished_at = ?, failure = ? WHERE id = ?
	`, at.UTC().Format(time.RFC3339Nano), failure, id)
	if err != nil {
		return fmt.Errorf("finish execution: %w", err)
	}
	return nil
}

// RepositoryChange inserts one change row keyed by the manager's global
// sequence number. Re-delivery of the same seq is silently ignored.
func (j *Journal) RepositoryChange(ctx context.Context, executionID string, ev repo.ChangeEvent) error {
	oldJSON, err := marshalNullable(ev.Old)
	if err != nil {
		return fmt.Errorf("write change: %w", err)
	}
	newJSON, err := marshalNullable(ev.New)
	if err != nil {
		return fmt.Errorf("write change: %w", err)
	}

	_, err = j.db.ExecContext(ctx, `
		INSERT INTO repository_changes
		(seq, execution_id, repository, change_type, entity_id, old_value, new_value, occurred_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(seq) DO NOTHING
	`,
		ev.Seq,
		executionID,
		ev.Repo,
		string(ev.Type),
		ev.EntityID,
		oldJSON,
		newJSON,
		ev.At.UTC().Format(time.RFC3339Nano),
	)
	if err != nil {
		return fmt.Errorf("write change: %w", err)
	}
	return nil
}

// StateTransition inserts one accepted-transition row.
func (j *Journal) StateTransition(ctx context.Context, executionID string, rec state.TransitionRecord) error {
	snapJSON, err := marshalNullable(rec.Snapshot)
	if err != nil {
		return fmt.Errorf("write transition: %w", err)
	}
	// Content-hash dedup key: re-recording the same accepted transition
	// (same execution, same snapshot) is a no-op.
	hash := ""
	if rec.Snapshot != nil {
		if hash, err = value.SnapshotHash(rec.Snapshot); err != nil {
			return fmt.Errorf("write transition: %w", err)
		}
	}

	_, err = j.db.ExecContext(ctx, `
		INSERT INTO transitions
		(execution_id, object, field, from_state, to_state, entity_id, snapshot, snapshot_hash, occurred_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (execution_id, object, field, from_state, to_state, snapshot_hash) DO NOTHING
	`,
		executionID,
		rec.Object,
		rec.Field,
		rec.From,
		rec.To,
		rec.EntityID,
		snapJSON,
		hash,
		rec.At.UTC().Format(time.RFC3339Nano),
	)
	if err != nil {
		return fmt.Errorf("write transition: %w", err)
	}
	return nil
}

// marshalNullable renders a value as canonical JSON, or SQL NULL for a nil
// value.
func marshalNullable(v value.Value) (any, error) {
	if v == nil {
		return nil, nil
	}
	data, err := value.MarshalCanonical(v)
	if err != nil {
		return nil, err
	}
	return string(data), nil
}
