package journal

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/verveworks/verve/internal/value"
)

// ExecutionRow is one journaled execution.
type ExecutionRow struct {
	ID         string
	FeatureSet string
	Activity   string
	StartedAt  time.Time
	FinishedAt time.Time
	Failure    string
}

// Executions returns journaled executions in start order.
func (j *Journal) Executions(ctx context.Context) ([]ExecutionRow, error) {
	rows, err := j.db.QueryContext(ctx, `
		SELECT id, feature_set, activity, started_at, COALESCE(finished_at, ''), failure
		FROM executions ORDER BY started_at, id
	`)
	if err != nil {
		return nil, fmt.Errorf("read executions: %w", err)
	}
	defer rows.Close()

	var out []ExecutionRow
	for rows.Next() {
		var r ExecutionRow
		var started, finished string
		if err := rows.Scan(&r.ID, &r.FeatureSet, &r.Activity, &started, &finished, &r.Failure); err != nil {
			return nil, fmt.Errorf("scan execution: %w", err)
		}
		if r.StartedAt, err = time.Parse(time.RFC3339Nano, started); err != nil {
			return nil, fmt.Errorf("parse started_at: %w", err)
		}
		if finished != "" {
			if r.FinishedAt, err = time.Parse(time.RFC3339Nano, finished); err != nil {
				return nil, fmt.Errorf("parse finished_at: %w", err)
			}
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

// ChangeRow is one journaled repository change.
type ChangeRow struct {
	Seq        int64
	Repository string
	ChangeType string
	EntityID   string
	Old        value.Value // nil when the column is NULL
	New        value.Value
}

// Changes returns the journaled changes of one repository in sequence order.
func (j *Journal) Changes(ctx context.Context, repository string) ([]ChangeRow, error) {
	rows, err := j.db.QueryContext(ctx, `
		SELECT seq, repository, change_type, entity_id, old_value, new_value
		FROM repository_changes WHERE repository = ? ORDER BY seq
	`, repository)
	if err != nil {
		return nil, fmt.Errorf("read changes: %w", err)
	}
	defer rows.Close()

	var out []ChangeRow
	for rows.Next() {
		var r ChangeRow
		var oldJSON, newJSON sql.NullString
		if err := rows.Scan(&r.Seq, &r.Repository, &r.ChangeType, &r.EntityID, &oldJSON, &newJSON); err != nil {
			return nil, fmt.Errorf("scan change: %w", err)
		}
		if r.Old, err = unmarshalNullable(oldJSON); err != nil {
			return nil, fmt.Errorf("decode old_value: %w", err)
		}
		if r.New, err = unmarshalNullable(newJSON); err != nil {
			return nil, fmt.Errorf("decode new_value: %w", err)
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

func unmarshalNullable(s sql.NullString) (value.Value, error) {
	if !s.Valid {
		return nil, nil
	}
	return value.Unmarshal([]byte(s.String))
}
