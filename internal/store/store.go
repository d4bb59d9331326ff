// Package store persists finished analysis results and job diagnostics.
package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"revq.app/revq/core/db"
	"revq.app/revq/internal/diag"
	"revq.app/revq/internal/model"
)

// ErrNotFound is returned when a lookup matches no row.
var ErrNotFound = errors.New("store: not found")

// querier is the slice of pgxpool.Pool the store uses.
type querier interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// Store writes analysis results and diagnostic contexts to Postgres.
type Store struct {
	q querier
}

func New(database *db.DB) *Store {
	return &Store{q: database.Pool()}
}

const schema = `
CREATE TABLE IF NOT EXISTS analysis_results (
	job_id       BIGINT PRIMARY KEY,
	repository   TEXT        NOT NULL,
	target       INT         NOT NULL,
	issues       JSONB       NOT NULL,
	metrics      JSONB       NOT NULL,
	duration_ms  BIGINT      NOT NULL,
	failed       BOOLEAN     NOT NULL DEFAULT FALSE,
	fail_reason  TEXT        NOT NULL DEFAULT '',
	created_at   TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE TABLE IF NOT EXISTS diagnostic_contexts (
	correlation_id TEXT PRIMARY KEY,
	operation      TEXT        NOT NULL,
	started_at     TIMESTAMPTZ NOT NULL,
	ended_at       TIMESTAMPTZ,
	traces         JSONB       NOT NULL,
	errors         JSONB       NOT NULL,
	created_at     TIMESTAMPTZ NOT NULL DEFAULT now()
);
`

// EnsureSchema creates the tables if they do not exist. Called once at
// startup; migrations beyond additive table creation are out of scope here.
func (s *Store) EnsureSchema(ctx context.Context) error {
	if _, err := s.q.Exec(ctx, schema); err != nil {
		return fmt.Errorf("ensuring schema: %w", err)
	}
	return nil
}

// SaveAnalysisResult upserts one finished result keyed by job id. Re-running
// a job overwrites its previous result.
func (s *Store) SaveAnalysisResult(ctx context.Context, result *model.AnalysisResult) error {
	issues, err := json.Marshal(result.Issues)
	if err != nil {
		return fmt.Errorf("marshaling issues: %w", err)
	}
	metrics, err := json.Marshal(result.Metrics)
	if err != nil {
		return fmt.Errorf("marshaling metrics: %w", err)
	}

	_, err = s.q.Exec(ctx, `
		INSERT INTO analysis_results (job_id, repository, target, issues, metrics, duration_ms, failed, fail_reason)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		ON CONFLICT (job_id) DO UPDATE SET
			issues = EXCLUDED.issues,
			metrics = EXCLUDED.metrics,
			duration_ms = EXCLUDED.duration_ms,
			failed = EXCLUDED.failed,
			fail_reason = EXCLUDED.fail_reason`,
		result.JobID, result.Repository.String(), result.Target,
		issues, metrics, result.DurationMs, result.Failed, result.FailReason)
	if err != nil {
		return fmt.Errorf("inserting analysis result: %w", err)
	}
	return nil
}

// GetAnalysisResult loads one result by job id.
func (s *Store) GetAnalysisResult(ctx context.Context, jobID int64) (*model.AnalysisResult, error) {
	var (
		result  model.AnalysisResult
		repo    string
		issues  []byte
		metrics []byte
	)
	err := s.q.QueryRow(ctx, `
		SELECT job_id, repository, target, issues, metrics, duration_ms, failed, fail_reason
		FROM analysis_results WHERE job_id = $1`, jobID).
		Scan(&result.JobID, &repo, &result.Target, &issues, &metrics,
			&result.DurationMs, &result.Failed, &result.FailReason)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("loading analysis result: %w", err)
	}

	result.Repository = parseRepository(repo)
	if err := json.Unmarshal(issues, &result.Issues); err != nil {
		return nil, fmt.Errorf("unmarshaling issues: %w", err)
	}
	if err := json.Unmarshal(metrics, &result.Metrics); err != nil {
		return nil, fmt.Errorf("unmarshaling metrics: %w", err)
	}
	return &result, nil
}

// SaveDiagnosticContext persists one finished diagnostic context. Implements
// diag.DiagnosticWriter.
func (s *Store) SaveDiagnosticContext(ctx context.Context, dc *diag.DiagnosticContext) error {
	traces, err := json.Marshal(dc.Traces)
	if err != nil {
		return fmt.Errorf("marshaling traces: %w", err)
	}
	errs, err := json.Marshal(dc.Errors)
	if err != nil {
		return fmt.Errorf("marshaling errors: %w", err)
	}

	_, err = s.q.Exec(ctx, `
		INSERT INTO diagnostic_contexts (correlation_id, operation, started_at, ended_at, traces, errors)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (correlation_id) DO UPDATE SET
			ended_at = EXCLUDED.ended_at,
			traces = EXCLUDED.traces,
			errors = EXCLUDED.errors`,
		dc.CorrelationID, dc.Operation, dc.StartTime, dc.EndTime, traces, errs)
	if err != nil {
		return fmt.Errorf("inserting diagnostic context: %w", err)
	}
	return nil
}

func parseRepository(s string) model.Repository {
	owner, name, ok := strings.Cut(s, "/")
	if !ok {
		return model.Repository{Name: s}
	}
	return model.Repository{Owner: owner, Name: name}
}
