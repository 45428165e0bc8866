// internal/history/store.go
package history

import (
	"context"
	"database/sql"
	"encoding/json"
	"time"

	"github.com/google/uuid"

	"research-agent/internal/agent"
	"research-agent/internal/common/errors"
	"research-agent/internal/common/logger"
)

// Record is one persisted analysis run.
type Record struct {
	RunID        uuid.UUID `json:"run_id"`
	Query        string    `json:"query"`
	Approach     string    `json:"approach"`
	Response     string    `json:"response"`
	Iterations   int       `json:"iterations"`
	Completeness float64   `json:"completeness"`
	DurationMS   int64     `json:"duration_ms"`
	TotalTokens  int       `json:"total_tokens"`
	CreatedAt    time.Time `json:"created_at"`
}

// Store persists analysis runs so approaches can be compared after the
// fact.
type Store struct {
	db     *sql.DB
	logger logger.Logger
}

func NewStore(db *sql.DB, log logger.Logger) *Store {
	return &Store{
		db: db,
		logger: log.With(map[string]interface{}{
			"component": "history",
		}),
	}
}

// EnsureSchema creates the runs table if it does not exist yet.
func (s *Store) EnsureSchema(ctx context.Context) error {
	const ddl = `
		CREATE TABLE IF NOT EXISTS analysis_runs (
			run_id UUID PRIMARY KEY,
			query TEXT NOT NULL,
			approach TEXT NOT NULL,
			response TEXT NOT NULL,
			iterations INT NOT NULL,
			completeness DOUBLE PRECISION NOT NULL,
			duration_ms BIGINT NOT NULL,
			total_tokens INT NOT NULL,
			conversation JSONB NOT NULL,
			created_at TIMESTAMPTZ NOT NULL DEFAULT now()
		)`

	if _, err := s.db.ExecContext(ctx, ddl); err != nil {
		return errors.NewHistoryWriteFailedError(err)
	}
	return nil
}

// Save stores a completed run.
func (s *Store) Save(ctx context.Context, result *agent.Result) error {
	conversation, err := json.Marshal(result.History)
	if err != nil {
		return errors.NewHistoryWriteFailedError(err)
	}

	const query = `
		INSERT INTO analysis_runs
			(run_id, query, approach, response, iterations, completeness, duration_ms, total_tokens, conversation)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`

	_, err = s.db.ExecContext(ctx, query,
		result.RunID,
		result.Query,
		result.Approach,
		result.Response,
		result.Iterations,
		result.Completeness,
		result.Duration.Milliseconds(),
		result.Usage.TotalTokens,
		conversation,
	)
	if err != nil {
		return errors.NewHistoryWriteFailedError(err)
	}

	s.logger.Info("run saved", map[string]interface{}{
		"runId":    result.RunID.String(),
		"approach": result.Approach,
	})

	return nil
}

// ListRecent returns the newest runs, most recent first.
func (s *Store) ListRecent(ctx context.Context, limit int) ([]Record, error) {
	const query = `
		SELECT run_id, query, approach, response, iterations, completeness, duration_ms, total_tokens, created_at
		FROM analysis_runs
		ORDER BY created_at DESC
		LIMIT $1`

	rows, err := s.db.QueryContext(ctx, query, limit)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	var records []Record
	for rows.Next() {
		var r Record
		if err := rows.Scan(
			&r.RunID,
			&r.Query,
			&r.Approach,
			&r.Response,
			&r.Iterations,
			&r.Completeness,
			&r.DurationMS,
			&r.TotalTokens,
			&r.CreatedAt,
		); err != nil {
			return nil, err
		}
		records = append(records, r)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	return records, nil
}
